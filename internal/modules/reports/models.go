// Package reports drives one rebalancing run of one account: price refresh,
// planning, order submission and reconciliation, persisted in ledger.db.
package reports

import (
	"errors"
	"fmt"
	"time"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/modules/rebalancing"
)

// CreatedTimeLayout formats Report.CreatedTime.
const CreatedTimeLayout = "20060102_15_04_05"

var (
	// ErrReportExists is returned by Save when the name and time are taken.
	ErrReportExists = errors.New("report already exists")
	// ErrPlanNotFound is returned when a report has no stored plan.
	ErrPlanNotFound = errors.New("plan not found")
	// ErrStatusRegression is returned when a status update would move backwards.
	ErrStatusRegression = errors.New("report status cannot move backwards")
)

// Status is the lifecycle stage of a report.
type Status string

const (
	StatusCreated  Status = "CREATED"
	StatusPlanning Status = "PLANNING"
	StatusExecuted Status = "EXECUTED"
)

func (s Status) rank() int {
	switch s {
	case StatusCreated:
		return 0
	case StatusPlanning:
		return 1
	case StatusExecuted:
		return 2
	}
	return -1
}

// Report is one rebalancing run.
type Report struct {
	ID          string        `json:"id"`
	Name        string        `json:"report_name"`
	Account     string        `json:"account"`
	Target      domain.Target `json:"target"`
	Test        bool          `json:"test"`
	CreatedTime string        `json:"created_time"`
	Status      Status        `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Title is the display name used in logs and archive keys.
func (r Report) Title() string {
	return fmt.Sprintf("%s_%s_%s", r.Target, r.Name, r.CreatedTime)
}

// lockKey scopes the run lock to one account at one point in time.
func (r Report) lockKey() string {
	return r.Account + "@" + r.CreatedTime
}

// OrdersSince is the earliest order date the reconciler asks about.
func (r Report) OrdersSince() time.Time {
	t, err := time.ParseInLocation(CreatedTimeLayout, r.CreatedTime, time.Local)
	if err != nil {
		t = r.CreatedAt
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// CreateRequest is the body of POST /api/rebalance.
type CreateRequest struct {
	Target string `json:"target"`
	// Test selects the test account. Nil uses the ACCOUNT.TEST setting.
	Test *bool `json:"test,omitempty"`
	// Name defaults to the account number.
	Name string `json:"report_name,omitempty"`
	// CreatedTime pins the report to an earlier run; empty means now.
	CreatedTime    string `json:"created_time,omitempty"`
	DeleteIfExists bool   `json:"delete_if_exists,omitempty"`
}

// PlanRequest is the body of POST /api/rebalance/{name}/plan.
type PlanRequest struct {
	// Additional is capital held elsewhere, in the target currency.
	Additional float64 `json:"additional"`
	// Overall also counts the other market's deposit and holdings.
	Overall bool `json:"overall"`
}

// ExecuteRequest is the body of POST /api/rebalance/{name}/execute.
type ExecuteRequest struct {
	How   string `json:"how"`
	NDiff int    `json:"n_diff"`
}

// WaitRequest is the body of POST /api/rebalance/{name}/wait. Zero values
// fall back to the configured defaults.
type WaitRequest struct {
	TimeoutSeconds    int  `json:"timeout"`
	Retries           int  `json:"retries"`
	RetryDelaySeconds int  `json:"retry_delay"`
	Async             bool `json:"async"`
}

// PlanView is a stored plan, plus its won view for overseas reports.
type PlanView struct {
	Report     Report                  `json:"report"`
	Summary    rebalancing.Summary     `json:"summary"`
	Rows       []rebalancing.PlanRow   `json:"plan"`
	SummaryWon *rebalancing.Summary    `json:"summary_won,omitempty"`
	RowsWon    []rebalancing.PlanRow   `json:"plan_won,omitempty"`
	Rate       float64                 `json:"currency,omitempty"`
}
