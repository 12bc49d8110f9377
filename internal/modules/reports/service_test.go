package reports

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rebalancer/internal/database"
	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/modules/currency"
	"github.com/aristath/rebalancer/internal/modules/portfolio"
	"github.com/aristath/rebalancer/internal/modules/trading"
	testutil "github.com/aristath/rebalancer/internal/testing"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return nil
}

type fixture struct {
	svc      *Service
	broker   *testutil.MockBroker
	configDB *sql.DB
	opened   int
	released int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := testutil.NopLogger()
	configDB := testutil.NewMemoryDB(t, database.NameConfig)
	historyDB := testutil.NewMemoryDB(t, database.NameHistory)
	ledgerDB := testutil.NewMemoryDB(t, database.NameLedger)

	testutil.SeedProduct(t, configDB, "005930", "Samsung Electronics", domain.MarketKRX, 70_000, 1, true)
	testutil.SeedProduct(t, configDB, "035720", "Kakao", domain.MarketKRX, 50_000, 1, true)
	testutil.SeedProduct(t, configDB, "000660", "SK hynix", domain.MarketKRX, 120_000, 1, false)
	testutil.SeedProduct(t, configDB, "SPY", "SPDR S&P 500", domain.MarketNYSE, 400, 1, true)

	f := &fixture{broker: testutil.NewMockBroker(), configDB: configDB}
	f.broker.Rate = 1200
	f.broker.Summaries[domain.TargetDomestic] = &domain.AccountSummary{
		Deposit:  1_000_000,
		Holdings: []domain.Holding{{Code: "005930", Name: "Samsung Electronics", Market: domain.MarketKRX, Quantity: 10, Value: 700_000}},
	}
	f.broker.Summaries[domain.TargetOverseas] = &domain.AccountSummary{Deposit: 1_000}

	portfolioService := portfolio.NewService(
		portfolio.NewProductRepository(configDB, log),
		portfolio.NewEntryRepository(configDB, log),
		portfolio.NewHistoryRepository(historyDB, log),
		nil,
		log,
	)

	brokers := func(test bool) (domain.BrokerClient, func(), error) {
		f.opened++
		return f.broker, func() { f.released++ }, nil
	}

	cfg := ServiceConfig{
		Settings:    domain.AllocationSettings{Usable: 1, Domestic: 0.5, Overseas: 0.3},
		DefaultTest: true,
		AccountFor: func(test bool) string {
			if test {
				return "5001-T"
			}
			return ""
		},
		Wait: trading.WaitOptions{Timeout: time.Minute, RetryDelay: 10 * time.Second},
	}

	f.svc = NewService(
		NewRepository(ledgerDB, log),
		trading.NewOrderRepository(ledgerDB, log),
		portfolioService,
		currency.NewService(nil, 1186.5, log),
		brokers,
		nil,
		cfg,
		log,
	)
	f.svc.SetClock(&fakeClock{now: time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)})
	t.Cleanup(f.svc.Close)
	return f
}

func (f *fixture) create(t *testing.T, target domain.Target) *Report {
	t.Helper()
	report, err := f.svc.Create(context.Background(), CreateRequest{Target: string(target), Name: "acct", CreatedTime: "20240304_09_00_00"})
	require.NoError(t, err)
	return report
}

func (f *fixture) executed(t *testing.T) []trading.SubmittedOrder {
	t.Helper()
	f.create(t, domain.TargetDomestic)
	_, err := f.svc.MakePlan(context.Background(), "acct", "", PlanRequest{})
	require.NoError(t, err)
	orders, err := f.svc.Execute(context.Background(), "acct", "", ExecuteRequest{How: "market"})
	require.NoError(t, err)
	return orders
}

func TestCreate(t *testing.T) {
	f := newFixture(t)

	report, err := f.svc.Create(context.Background(), CreateRequest{Target: "domestic"})
	require.NoError(t, err)
	assert.Equal(t, "5001-T", report.Name, "name defaults to the account")
	assert.Equal(t, "5001-T", report.Account)
	assert.True(t, report.Test)
	assert.Equal(t, StatusCreated, report.Status)
	assert.NotEmpty(t, report.ID)
	_, err = time.Parse(CreatedTimeLayout, report.CreatedTime)
	assert.NoError(t, err)

	notTest := false
	testCases := []struct {
		name string
		req  CreateRequest
	}{
		{"unknown target", CreateRequest{Target: "mars"}},
		{"bad created time", CreateRequest{Target: "domestic", CreatedTime: "2024-03-04"}},
		{"no real account", CreateRequest{Target: "domestic", Test: &notTest}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), tc.req)
			assert.ErrorIs(t, err, domain.ErrConfiguration)
		})
	}
}

func TestCreate_Existing(t *testing.T) {
	f := newFixture(t)
	first := f.create(t, domain.TargetDomestic)

	_, err := f.svc.Create(context.Background(), CreateRequest{Target: "domestic", Name: "acct", CreatedTime: "20240304_09_00_00"})
	assert.ErrorIs(t, err, ErrReportExists)

	second, err := f.svc.Create(context.Background(), CreateRequest{Target: "overseas", Name: "acct", CreatedTime: "20240304_09_00_00", DeleteIfExists: true})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	found, err := f.svc.Get("acct", "")
	require.NoError(t, err)
	assert.Equal(t, domain.TargetOverseas, found.Target)
}

func TestMakePlan_Domestic(t *testing.T) {
	f := newFixture(t)
	f.create(t, domain.TargetDomestic)

	view, err := f.svc.MakePlan(context.Background(), "acct", "", PlanRequest{})
	require.NoError(t, err)

	assert.Equal(t, StatusPlanning, view.Report.Status)
	assert.Equal(t, "KRW", view.Summary.Currency)
	assert.Equal(t, 1_700_000.0, view.Summary.TotalValue)
	assert.Equal(t, 850_000.0, view.Summary.MarketBudget)
	assert.Equal(t, 870_000.0, view.Summary.ToBeTotal)
	assert.Nil(t, view.SummaryWon)

	require.Len(t, view.Rows, 2, "excluded products get no row")
	assert.Equal(t, "005930", view.Rows[0].Code)
	assert.Equal(t, int64(6), view.Rows[0].ToBeQuantity)
	assert.Equal(t, int64(-4), view.Rows[0].Difference)
	assert.Equal(t, "035720", view.Rows[1].Code)
	assert.Equal(t, int64(9), view.Rows[1].ToBeQuantity, "8.5 rounds away from zero")
	assert.Equal(t, f.opened, f.released, "broker handles are released")

	stored, err := f.svc.Plan("acct", "")
	require.NoError(t, err)
	assert.Equal(t, view.Summary, stored.Summary)
	assert.Equal(t, view.Rows, stored.Rows)
}

func TestMakePlan_OverseasWonView(t *testing.T) {
	f := newFixture(t)
	f.create(t, domain.TargetOverseas)

	view, err := f.svc.MakePlan(context.Background(), "acct", "", PlanRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1200.0, view.Rate)
	assert.Equal(t, "USD", view.Summary.Currency)
	assert.Equal(t, 300.0, view.Summary.MarketBudget)
	require.Len(t, view.Rows, 1)
	assert.Equal(t, int64(1), view.Rows[0].ToBeQuantity)

	require.NotNil(t, view.SummaryWon)
	assert.Equal(t, "KRW", view.SummaryWon.Currency)
	assert.Equal(t, 360_000.0, view.SummaryWon.MarketBudget)
	assert.Equal(t, 480_000.0, view.RowsWon[0].Current)

	stored, err := f.svc.Plan("acct", "")
	require.NoError(t, err)
	require.NotNil(t, stored.SummaryWon)
	assert.Equal(t, *view.SummaryWon, *stored.SummaryWon)
	assert.Equal(t, view.RowsWon, stored.RowsWon)
}

func TestMakePlan_Overall(t *testing.T) {
	f := newFixture(t)
	f.create(t, domain.TargetDomestic)
	f.broker.Summaries[domain.TargetOverseas] = &domain.AccountSummary{Deposit: 100}

	view, err := f.svc.MakePlan(context.Background(), "acct", "", PlanRequest{Overall: true, Additional: 80_000})
	require.NoError(t, err)
	assert.Equal(t, 1_120_000.0, view.Summary.Deposit, "overseas deposit converted at the broker rate")
	assert.Equal(t, 1_900_000.0, view.Summary.TotalValue)
}

func TestMakePlan_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.MakePlan(context.Background(), "acct", "", PlanRequest{})
	assert.ErrorIs(t, err, domain.ErrReportNotFound)

	f.create(t, domain.TargetDomestic)
	f.broker.SummaryErr = errors.New("gateway down")
	_, err = f.svc.MakePlan(context.Background(), "acct", "", PlanRequest{})
	assert.ErrorIs(t, err, domain.ErrExternal)

	_, err = f.svc.Plan("acct", "")
	assert.ErrorIs(t, err, domain.ErrReportNotFound, "no plan before PLANNING")
}

func TestExecute(t *testing.T) {
	f := newFixture(t)
	f.create(t, domain.TargetDomestic)

	_, err := f.svc.Execute(context.Background(), "acct", "", ExecuteRequest{})
	assert.ErrorIs(t, err, ErrInvalidStatus, "execute needs a plan")

	_, err = f.svc.MakePlan(context.Background(), "acct", "", PlanRequest{})
	require.NoError(t, err)

	_, err = f.svc.Execute(context.Background(), "acct", "", ExecuteRequest{How: "guess"})
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	orders, err := f.svc.Execute(context.Background(), "acct", "", ExecuteRequest{How: "market"})
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, domain.SideSell, orders[0].Side)
	assert.Equal(t, int64(4), orders[0].Quantity)
	assert.Equal(t, domain.SideBuy, orders[1].Side)
	assert.Equal(t, int64(9), orders[1].Quantity)

	report, err := f.svc.Get("acct", "")
	require.NoError(t, err)
	assert.Equal(t, StatusExecuted, report.Status)
	assert.False(t, f.svc.locks.Held(report.lockKey()), "lock is released")

	_, err = f.svc.Execute(context.Background(), "acct", "", ExecuteRequest{})
	assert.ErrorIs(t, err, ErrInvalidStatus, "a report is executed once")

	_, err = f.svc.MakePlan(context.Background(), "acct", "", PlanRequest{})
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestExecute_PartialFailure(t *testing.T) {
	f := newFixture(t)
	f.create(t, domain.TargetDomestic)
	_, err := f.svc.MakePlan(context.Background(), "acct", "", PlanRequest{})
	require.NoError(t, err)

	f.broker.OrderErr["035720"] = errors.New("market closed")
	orders, err := f.svc.Execute(context.Background(), "acct", "", ExecuteRequest{})
	assert.ErrorIs(t, err, domain.ErrExternal)
	require.Len(t, orders, 1, "orders before the failure are kept")

	report, err := f.svc.Get("acct", "")
	require.NoError(t, err)
	assert.Equal(t, StatusExecuted, report.Status)

	_, recorded, err := f.svc.Orders("acct", "")
	require.NoError(t, err)
	assert.Len(t, recorded, 1)
}

func TestExecute_Busy(t *testing.T) {
	f := newFixture(t)
	report := f.create(t, domain.TargetDomestic)
	_, err := f.svc.MakePlan(context.Background(), "acct", "", PlanRequest{})
	require.NoError(t, err)

	_, err = f.svc.locks.Acquire(report.lockKey())
	require.NoError(t, err)

	_, err = f.svc.Execute(context.Background(), "acct", "", ExecuteRequest{})
	assert.ErrorIs(t, err, domain.ErrReportBusy)
	buys, sells := f.broker.OrderCount()
	assert.Zero(t, buys+sells)
}

func TestExecute_StatusReadUnderLock(t *testing.T) {
	f := newFixture(t)
	f.create(t, domain.TargetDomestic)
	_, err := f.svc.MakePlan(context.Background(), "acct", "", PlanRequest{})
	require.NoError(t, err)

	// Another run finished between our lookup and lock acquisition.
	other, err := f.svc.repo.Find("acct", "")
	require.NoError(t, err)
	require.NoError(t, f.svc.repo.UpdateStatus(other, StatusExecuted))
	require.False(t, f.svc.locks.Held(other.lockKey()))

	_, err = f.svc.Execute(context.Background(), "acct", "", ExecuteRequest{How: "market"})
	assert.ErrorIs(t, err, ErrInvalidStatus)
	buys, sells := f.broker.OrderCount()
	assert.Zero(t, buys+sells)
	assert.Zero(t, f.opened, "no broker session is opened")
}

func TestExecute_ConcurrentSubmitsOnce(t *testing.T) {
	f := newFixture(t)
	f.create(t, domain.TargetDomestic)
	_, err := f.svc.MakePlan(context.Background(), "acct", "", PlanRequest{})
	require.NoError(t, err)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Execute(context.Background(), "acct", "", ExecuteRequest{How: "market"})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, ErrInvalidStatus) || errors.Is(err, domain.ErrReportBusy), err.Error())
	}
	assert.Equal(t, 1, succeeded)

	buys, sells := f.broker.OrderCount()
	assert.Equal(t, 2, buys+sells, "the plan is submitted once")
}

func TestOrderStatus(t *testing.T) {
	f := newFixture(t)
	orders := f.executed(t)

	f.broker.SetProcessed(domain.MarketKRX, orders[0].OrderID)
	f.broker.Unprocessed[domain.MarketKRX] = []string{orders[1].OrderID}

	statuses, err := f.svc.OrderStatus(context.Background(), "acct", "")
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, "processed", statuses[0].State())
	assert.Equal(t, "pending", statuses[1].State())
}

func TestWait(t *testing.T) {
	f := newFixture(t)
	orders := f.executed(t)
	report, err := f.svc.Get("acct", "")
	require.NoError(t, err)

	f.broker.Unprocessed[domain.MarketKRX] = []string{orders[0].OrderID, orders[1].OrderID}

	statuses, err := f.svc.Wait(context.Background(), "acct", "", WaitRequest{TimeoutSeconds: 60, RetryDelaySeconds: 70})
	var timeout *domain.TimeoutError
	require.True(t, errors.As(err, &timeout))
	assert.Equal(t, 70*time.Second, timeout.Elapsed)
	assert.Len(t, statuses, 2)
	assert.False(t, f.svc.locks.Held(report.lockKey()))

	statuses, err = f.svc.Wait(context.Background(), "acct", "", WaitRequest{Retries: 2})
	require.NoError(t, err, "exhausted retries are not an error")
	assert.Len(t, statuses, 2)
	assert.Equal(t, 1+3, f.broker.ProcessedCalls[domain.MarketKRX], "one poll from the timed out wait, then three")

	f.broker.SetProcessed(domain.MarketKRX, orders[0].OrderID, orders[1].OrderID)
	statuses, err = f.svc.Wait(context.Background(), "acct", "", WaitRequest{})
	require.NoError(t, err)
	for _, s := range statuses {
		assert.True(t, s.Resolved())
	}
}

func TestWait_AsyncAndBusy(t *testing.T) {
	f := newFixture(t)
	orders := f.executed(t)
	report, err := f.svc.Get("acct", "")
	require.NoError(t, err)

	token, err := f.svc.locks.Acquire(report.lockKey())
	require.NoError(t, err)
	_, err = f.svc.Wait(context.Background(), "acct", "", WaitRequest{})
	assert.ErrorIs(t, err, domain.ErrReportBusy)
	f.svc.locks.Release(report.lockKey(), token)

	f.broker.SetProcessed(domain.MarketKRX, orders[0].OrderID, orders[1].OrderID)
	statuses, err := f.svc.Wait(context.Background(), "acct", "", WaitRequest{Async: true})
	require.NoError(t, err)
	assert.Nil(t, statuses)

	f.svc.Close()
	assert.False(t, f.svc.locks.Held(report.lockKey()))
	assert.Equal(t, f.opened, f.released)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	orders := f.executed(t)

	f.broker.SetProcessed(domain.MarketKRX, orders[0].OrderID)
	f.broker.Unprocessed[domain.MarketKRX] = []string{orders[1].OrderID}

	results, err := f.svc.CancelAll(context.Background(), "acct", "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, orders[1].OrderID, results[0].OrderID)
	assert.True(t, results[0].Cancelled)
	assert.Equal(t, []string{orders[1].OrderID}, f.broker.Cancelled)

	err = f.svc.CancelOrder(context.Background(), "acct", "", "ORD-404")
	assert.ErrorIs(t, err, ErrOrderNotFound)

	require.NoError(t, f.svc.CancelOrder(context.Background(), "acct", "", orders[0].OrderID))
	assert.Len(t, f.broker.Cancelled, 2)
}

func TestExportCSV(t *testing.T) {
	f := newFixture(t)
	f.executed(t)

	testCases := []struct {
		kind      string
		firstLine string
		lines     int
		wantErr   error
	}{
		{ExportSummary, strings.Join(summaryHeader, ","), 2, nil},
		{ExportPlan, strings.Join(planHeader, ","), 3, nil},
		{ExportOrders, strings.Join(ordersHeader, ","), 3, nil},
		{ExportPlanWon, "", 0, ErrPlanNotFound},
		{"everything", "", 0, domain.ErrConfiguration},
	}

	for _, tc := range testCases {
		t.Run(tc.kind, func(t *testing.T) {
			var buf bytes.Buffer
			err := f.svc.ExportCSV("acct", "", tc.kind, &buf)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			assert.Len(t, lines, tc.lines)
			assert.Equal(t, tc.firstLine, lines[0])
		})
	}

	var buf bytes.Buffer
	require.NoError(t, f.svc.ExportCSV("acct", "", ExportSummary, &buf))
	assert.Contains(t, buf.String(), "20240304_09_00_00,1000000,1700000,1700000,850000,700000,870000")

	report, err := f.svc.Get("acct", "")
	require.NoError(t, err)
	files, err := f.svc.Exports(report)
	require.NoError(t, err)
	assert.Len(t, files, 3, "domestic reports have no won view")
	assert.Contains(t, files, "orders.csv")
}
