package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rebalancer/internal/domain"
	testutil "github.com/aristath/rebalancer/internal/testing"
)

type countingJob struct {
	mu   sync.Mutex
	runs int
	err  error
}

func (j *countingJob) Run() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.runs++
	return j.err
}

func (j *countingJob) Name() string { return "counting" }

func TestScheduler_AddJob(t *testing.T) {
	s := New(testutil.NopLogger())
	job := &countingJob{}

	testCases := []struct {
		schedule string
		wantErr  bool
	}{
		{"0 30 8 * * 1-5", false},
		{"@every 1h", false},
		{"30 8 * * 1-5", true}, // seconds field is required
		{"not a schedule", true},
	}
	for _, tc := range testCases {
		err := s.AddJob(tc.schedule, job)
		if tc.wantErr {
			assert.Error(t, err, tc.schedule)
		} else {
			assert.NoError(t, err, tc.schedule)
		}
	}
	assert.Equal(t, []string{"counting"}, s.Jobs())

	s.Start()
	s.Stop()
	assert.Zero(t, job.runs)
}

func TestScheduler_RunNow(t *testing.T) {
	s := New(testutil.NopLogger())
	job := &countingJob{err: errors.New("boom")}

	assert.EqualError(t, s.RunNow(job), "boom")
	assert.Equal(t, 1, job.runs)

	s.run(job) // errors are logged, not returned
	assert.Equal(t, 2, job.runs)
}

type fakeRefresher struct {
	targets []domain.Target
	fail    domain.Target
}

func (f *fakeRefresher) RefreshPrices(ctx context.Context, target domain.Target, broker domain.BrokerClient) (int, error) {
	f.targets = append(f.targets, target)
	if target == f.fail {
		return 0, errors.New("quote failed")
	}
	return 3, nil
}

func TestPriceRefreshJob(t *testing.T) {
	broker := testutil.NewMockBroker()
	opened, released := 0, 0
	var sawTest []bool
	opener := func(test bool) (domain.BrokerClient, func(), error) {
		opened++
		sawTest = append(sawTest, test)
		return broker, func() { released++ }, nil
	}

	refresher := &fakeRefresher{fail: domain.TargetDomestic}
	job := NewPriceRefreshJob(refresher, opener, true, 0, testutil.NopLogger())
	assert.Equal(t, "price_refresh", job.Name())

	err := job.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "domestic")
	assert.Equal(t, []domain.Target{domain.TargetDomestic, domain.TargetOverseas}, refresher.targets, "a failing target does not stop the other")
	assert.Equal(t, 2, opened)
	assert.Equal(t, opened, released)
	assert.Equal(t, []bool{true, true}, sawTest)

	refresher = &fakeRefresher{}
	assert.NoError(t, NewPriceRefreshJob(refresher, opener, false, 0, testutil.NopLogger()).Run())

	failing := func(test bool) (domain.BrokerClient, func(), error) {
		return nil, nil, errors.New("no credentials")
	}
	assert.Error(t, NewPriceRefreshJob(refresher, failing, false, 0, testutil.NopLogger()).Run())
}
