package reports

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/rebalancer/internal/domain"
)

type lockHolder struct {
	token    string
	acquired time.Time
}

// RunLock serializes execute and wait runs per account and report time.
// Acquire never blocks: a held key fails with domain.ErrReportBusy.
type RunLock struct {
	mu   sync.Mutex
	held map[string]lockHolder
	now  func() time.Time
}

// NewRunLock creates an empty lock table.
func NewRunLock() *RunLock {
	return &RunLock{held: make(map[string]lockHolder), now: time.Now}
}

// Acquire takes key and returns the owner token needed to release it.
func (l *RunLock) Acquire(key string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if h, ok := l.held[key]; ok {
		return "", fmt.Errorf("%w: %s held since %s", domain.ErrReportBusy, key, h.acquired.Format(time.RFC3339))
	}
	token := uuid.NewString()
	l.held[key] = lockHolder{token: token, acquired: l.now()}
	return token, nil
}

// Release frees key if token still owns it.
func (l *RunLock) Release(key, token string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if h, ok := l.held[key]; ok && h.token == token {
		delete(l.held, key)
		return true
	}
	return false
}

// Held reports whether key is currently locked.
func (l *RunLock) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[key]
	return ok
}
