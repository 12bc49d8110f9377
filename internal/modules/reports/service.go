package reports

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/events"
	"github.com/aristath/rebalancer/internal/modules/currency"
	"github.com/aristath/rebalancer/internal/modules/portfolio"
	"github.com/aristath/rebalancer/internal/modules/rebalancing"
	"github.com/aristath/rebalancer/internal/modules/trading"
)

var (
	// ErrInvalidStatus is returned when an operation needs a different report status.
	ErrInvalidStatus = errors.New("report is not in the required status")
	// ErrOrderNotFound is returned when an order id is not part of a report.
	ErrOrderNotFound = errors.New("order not found")
)

// BrokerFactory opens a broker handle for the test or the real account.
// The returned func releases it.
type BrokerFactory func(test bool) (domain.BrokerClient, func(), error)

// ServiceConfig holds the report defaults read from configuration.
type ServiceConfig struct {
	Settings domain.AllocationSettings
	// LoadSettings, when set, is read on every plan and replaces Settings.
	LoadSettings func() (domain.AllocationSettings, error)
	// DefaultTest is used when a create request does not choose an account.
	DefaultTest bool
	// AccountFor returns the account number of the test or real account.
	AccountFor func(test bool) string
	Wait       trading.WaitOptions
}

// Service runs the report lifecycle.
type Service struct {
	repo      *Repository
	orders    *trading.OrderRepository
	portfolio *portfolio.Service
	currency  *currency.Service
	brokers   BrokerFactory
	locks     *RunLock
	events    *events.Manager
	cfg       ServiceConfig
	clock     trading.Clock
	log       zerolog.Logger

	bgCtx    context.Context
	bgCancel context.CancelFunc
	wg       sync.WaitGroup
}

// NewService creates a new report service
func NewService(
	repo *Repository,
	orders *trading.OrderRepository,
	portfolioService *portfolio.Service,
	currencyService *currency.Service,
	brokers BrokerFactory,
	eventManager *events.Manager,
	cfg ServiceConfig,
	log zerolog.Logger,
) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		repo:      repo,
		orders:    orders,
		portfolio: portfolioService,
		currency:  currencyService,
		brokers:   brokers,
		locks:     NewRunLock(),
		events:    eventManager,
		cfg:       cfg,
		clock:     trading.SystemClock{},
		log:       log.With().Str("service", "reports").Logger(),
		bgCtx:     ctx,
		bgCancel:  cancel,
	}
}

// SetClock replaces the clock used by waits.
func (s *Service) SetClock(clock trading.Clock) {
	s.clock = clock
}

// Create stores a new report in CREATED status.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Report, error) {
	target, err := domain.ParseTarget(req.Target)
	if err != nil {
		return nil, err
	}

	test := s.cfg.DefaultTest
	if req.Test != nil {
		test = *req.Test
	}
	account := ""
	if s.cfg.AccountFor != nil {
		account = s.cfg.AccountFor(test)
	}
	if account == "" {
		return nil, &domain.ConfigurationError{Field: "account", Reason: fmt.Sprintf("no account number configured (test=%t)", test)}
	}

	createdTime := req.CreatedTime
	if createdTime == "" {
		createdTime = time.Now().Format(CreatedTimeLayout)
	} else if _, err := time.Parse(CreatedTimeLayout, createdTime); err != nil {
		return nil, &domain.ConfigurationError{Field: "created_time", Reason: fmt.Sprintf("expected format %s", CreatedTimeLayout)}
	}

	name := req.Name
	if name == "" {
		name = account
	}

	report := &Report{
		ID:          uuid.NewString(),
		Name:        name,
		Account:     account,
		Target:      target,
		Test:        test,
		CreatedTime: createdTime,
		Status:      StatusCreated,
	}
	if err := s.repo.Save(report, req.DeleteIfExists); err != nil {
		return nil, err
	}

	s.log.Info().Str("report", report.Title()).Bool("test", test).Msg("Report created")
	if s.events != nil {
		s.events.EmitTyped("reports", &events.ReportCreatedData{
			ReportName:  report.Name,
			CreatedTime: report.CreatedTime,
			Target:      string(report.Target),
			Test:        report.Test,
		})
	}
	return report, nil
}

// Get returns a report. An empty createdTime selects the latest.
func (s *Service) Get(name, createdTime string) (*Report, error) {
	return s.repo.Find(name, createdTime)
}

// List returns every report, newest first.
func (s *Service) List() ([]Report, error) {
	return s.repo.List()
}

// RefreshPrices updates the prices of the report's target from its account.
func (s *Service) RefreshPrices(ctx context.Context, name, createdTime string) (int, error) {
	report, err := s.repo.Find(name, createdTime)
	if err != nil {
		return 0, err
	}

	broker, release, err := s.brokers(report.Test)
	if err != nil {
		return 0, err
	}
	defer release()

	return s.portfolio.RefreshPrices(ctx, report.Target, broker)
}

// Prices returns the stored prices of the report's target.
func (s *Service) Prices(name, createdTime string) ([]portfolio.Product, error) {
	report, err := s.repo.Find(name, createdTime)
	if err != nil {
		return nil, err
	}
	return s.portfolio.Prices(report.Target)
}

// MakePlan computes the plan from the live account and stores it. Overseas
// plans are also stored converted to won. The report moves to PLANNING.
func (s *Service) MakePlan(ctx context.Context, name, createdTime string, req PlanRequest) (*PlanView, error) {
	report, err := s.repo.Find(name, createdTime)
	if err != nil {
		return nil, err
	}
	if report.Status == StatusExecuted {
		return nil, fmt.Errorf("%w: %s is already %s", ErrInvalidStatus, report.Title(), report.Status)
	}

	broker, release, err := s.brokers(report.Test)
	if err != nil {
		return nil, err
	}
	defer release()

	account, err := broker.AccountSummary(ctx, report.Target)
	if err != nil {
		return nil, domain.External("account summary", err)
	}
	entries, err := s.portfolio.IncludedEntries(report.Target)
	if err != nil {
		return nil, err
	}
	rate := s.currency.Rate(ctx, broker)

	allocation := s.cfg.Settings
	if s.cfg.LoadSettings != nil {
		if allocation, err = s.cfg.LoadSettings(); err != nil {
			return nil, err
		}
	}

	input := rebalancing.PlanInput{
		Settings:   allocation,
		Target:     report.Target,
		Additional: req.Additional,
		Account:    *account,
		Entries:    entries,
		Rate:       rate.Rate,
		Overall:    req.Overall,
	}
	if req.Overall {
		if err := s.mergeOtherAccount(ctx, broker, &input); err != nil {
			return nil, err
		}
	}

	summary, rows, err := rebalancing.Plan(input)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SavePlan(report.ID, summary, rows); err != nil {
		return nil, err
	}

	view := &PlanView{Summary: summary, Rows: rows, Rate: rate.Rate}
	if report.Target == domain.TargetOverseas {
		won := rebalancing.ConvertSummary(summary, rate.Rate)
		wonRows := rebalancing.ConvertRows(rows, rate.Rate)
		if err := s.repo.SavePlan(report.ID, won, wonRows); err != nil {
			return nil, err
		}
		view.SummaryWon = &won
		view.RowsWon = wonRows
	}

	if err := s.repo.UpdateStatus(report, StatusPlanning); err != nil {
		return nil, err
	}
	view.Report = *report

	s.log.Info().
		Str("report", report.Title()).
		Int("rows", len(rows)).
		Float64("planned_budge", summary.MarketBudget).
		Float64("tobe_total_amount", summary.ToBeTotal).
		Str("rate_source", rate.Source).
		Msg("Plan generated")
	if s.events != nil {
		s.events.EmitTyped("reports", &events.PlanGeneratedData{
			ReportName:      report.Name,
			CreatedTime:     report.CreatedTime,
			Rows:            len(rows),
			PlannedBudget:   summary.MarketBudget,
			ToBeTotalAmount: summary.ToBeTotal,
		})
	}
	return view, nil
}

// mergeOtherAccount adds the other market's holdings and its deposit,
// converted to the target currency, to the planner input.
func (s *Service) mergeOtherAccount(ctx context.Context, broker domain.BrokerClient, input *rebalancing.PlanInput) error {
	other := domain.TargetOverseas
	if input.Target == domain.TargetOverseas {
		other = domain.TargetDomestic
	}

	summary, err := broker.AccountSummary(ctx, other)
	if err != nil {
		return domain.External("account summary", err)
	}
	if input.Rate <= 0 {
		return &domain.ConfigurationError{Field: "currency_rate", Reason: "a positive rate is required for an overall plan"}
	}

	deposit := summary.Deposit * input.Rate
	if input.Target == domain.TargetOverseas {
		deposit = summary.Deposit / input.Rate
	}
	input.Account.Deposit += deposit
	input.Account.Holdings = append(input.Account.Holdings, summary.Holdings...)
	return nil
}

// Plan returns the stored plan of a report.
func (s *Service) Plan(name, createdTime string) (*PlanView, error) {
	report, err := s.repo.Find(name, createdTime, StatusPlanning, StatusExecuted)
	if err != nil {
		return nil, err
	}

	summary, rows, err := s.repo.LoadPlan(report.ID, report.Target.Currency())
	if err != nil {
		return nil, err
	}
	view := &PlanView{Report: *report, Summary: summary, Rows: rows}

	if report.Target == domain.TargetOverseas {
		won, wonRows, err := s.repo.LoadPlan(report.ID, "KRW")
		if err != nil && !errors.Is(err, ErrPlanNotFound) {
			return nil, err
		}
		if err == nil {
			view.SummaryWon = &won
			view.RowsWon = wonRows
		}
	}
	return view, nil
}

// Execute submits the stored plan. The report must be PLANNING; it moves to
// EXECUTED once any order has been accepted, even if a later order failed.
func (s *Service) Execute(ctx context.Context, name, createdTime string, req ExecuteRequest) ([]trading.SubmittedOrder, error) {
	strategy, err := domain.ParsePriceStrategy(req.How)
	if err != nil {
		return nil, err
	}

	report, err := s.repo.Find(name, createdTime)
	if err != nil {
		return nil, err
	}

	token, err := s.locks.Acquire(report.lockKey())
	if err != nil {
		return nil, err
	}
	defer s.locks.Release(report.lockKey(), token)

	// The status is only trusted once read under the lock.
	report, err = s.repo.Find(report.Name, report.CreatedTime)
	if err != nil {
		return nil, err
	}
	if report.Status != StatusPlanning {
		return nil, fmt.Errorf("%w: %s is %s, expected %s", ErrInvalidStatus, report.Title(), report.Status, StatusPlanning)
	}

	_, rows, err := s.repo.LoadPlan(report.ID, report.Target.Currency())
	if err != nil {
		return nil, err
	}

	broker, release, err := s.brokers(report.Test)
	if err != nil {
		return nil, err
	}
	defer release()

	s.log.Info().Str("report", report.Title()).Str("how", string(strategy)).Int("n_diff", req.NDiff).Msg("Executing plan")

	submitter := trading.NewSubmitter(broker, s.orders, s.events, s.log)
	orders, submitErr := submitter.Submit(ctx, report.ID, rows, strategy, req.NDiff)
	if len(orders) > 0 {
		if err := s.repo.UpdateStatus(report, StatusExecuted); err != nil {
			s.log.Error().Err(err).Str("report", report.Title()).Msg("Failed to mark report executed")
			if submitErr == nil {
				submitErr = err
			}
		}
	}
	if submitErr != nil {
		if s.events != nil {
			s.events.EmitError("reports", submitErr, map[string]interface{}{
				"report_name":  report.Name,
				"created_time": report.CreatedTime,
				"submitted":    len(orders),
			})
		}
		return orders, submitErr
	}
	return orders, nil
}

// Orders returns the recorded orders of a report.
func (s *Service) Orders(name, createdTime string) (*Report, []trading.SubmittedOrder, error) {
	report, err := s.repo.Find(name, createdTime)
	if err != nil {
		return nil, nil, err
	}
	orders, err := s.orders.ListByReport(report.ID)
	if err != nil {
		return nil, nil, err
	}
	return report, orders, nil
}

// OrderStatus classifies every order of the report once.
func (s *Service) OrderStatus(ctx context.Context, name, createdTime string) ([]domain.OrderStatus, error) {
	report, orders, err := s.Orders(name, createdTime)
	if err != nil {
		return nil, err
	}

	broker, release, err := s.brokers(report.Test)
	if err != nil {
		return nil, err
	}
	defer release()

	reconciler := trading.NewReconciler(broker, s.clock, s.events, s.log)
	return reconciler.OrderStatus(ctx, orders, report.OrdersSince()), nil
}

// WaitOptions merges a request with the configured defaults.
func (s *Service) WaitOptions(req WaitRequest) trading.WaitOptions {
	opts := s.cfg.Wait
	if req.TimeoutSeconds > 0 {
		opts.Timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}
	if req.Retries > 0 {
		opts.Retries = req.Retries
	}
	if req.RetryDelaySeconds > 0 {
		opts.RetryDelay = time.Duration(req.RetryDelaySeconds) * time.Second
	}
	return opts
}

// Wait polls until every order of the report is resolved. It holds the
// report's run lock for the whole wait. With req.Async the wait runs in the
// background and Wait returns nil statuses right away.
func (s *Service) Wait(ctx context.Context, name, createdTime string, req WaitRequest) ([]domain.OrderStatus, error) {
	report, orders, err := s.Orders(name, createdTime)
	if err != nil {
		return nil, err
	}

	token, err := s.locks.Acquire(report.lockKey())
	if err != nil {
		return nil, err
	}

	broker, release, err := s.brokers(report.Test)
	if err != nil {
		s.locks.Release(report.lockKey(), token)
		return nil, err
	}

	opts := s.WaitOptions(req)
	run := func(ctx context.Context) ([]domain.OrderStatus, error) {
		defer s.locks.Release(report.lockKey(), token)
		defer release()
		reconciler := trading.NewReconciler(broker, s.clock, s.events, s.log)
		return reconciler.WaitUntilResolved(ctx, report.Title(), orders, report.OrdersSince(), opts)
	}

	if !req.Async {
		return run(ctx)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		statuses, err := run(s.bgCtx)
		if err != nil {
			s.log.Warn().Err(err).Str("report", report.Title()).Msg("Background wait ended with error")
			return
		}
		s.log.Info().Str("report", report.Title()).Int("orders", len(statuses)).Msg("Background wait finished")
	}()
	return nil, nil
}

// CancelAll cancels every order of the report that is still unprocessed.
func (s *Service) CancelAll(ctx context.Context, name, createdTime string) ([]domain.CancelResult, error) {
	report, orders, err := s.Orders(name, createdTime)
	if err != nil {
		return nil, err
	}

	broker, release, err := s.brokers(report.Test)
	if err != nil {
		return nil, err
	}
	defer release()

	reconciler := trading.NewReconciler(broker, s.clock, s.events, s.log)
	canceller := trading.NewCanceller(broker, reconciler, s.events, s.log)
	return canceller.CancelUnprocessed(ctx, orders, report.OrdersSince()), nil
}

// CancelOrder cancels one order of the report.
func (s *Service) CancelOrder(ctx context.Context, name, createdTime, orderID string) error {
	report, orders, err := s.Orders(name, createdTime)
	if err != nil {
		return err
	}

	var target *trading.SubmittedOrder
	for i := range orders {
		if orders[i].OrderID == orderID {
			target = &orders[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("%w: %s in %s", ErrOrderNotFound, orderID, report.Title())
	}

	broker, release, err := s.brokers(report.Test)
	if err != nil {
		return err
	}
	defer release()

	reconciler := trading.NewReconciler(broker, s.clock, s.events, s.log)
	return trading.NewCanceller(broker, reconciler, s.events, s.log).CancelOrder(ctx, *target)
}

// Close stops background waits and waits for them to return.
func (s *Service) Close() {
	s.bgCancel()
	s.wg.Wait()
}
