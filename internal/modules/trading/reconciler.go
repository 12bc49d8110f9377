package trading

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/events"
)

// DefaultRetryDelay is the pause between polls when none is given.
const DefaultRetryDelay = 60 * time.Second

// WaitOptions bounds WaitUntilResolved.
type WaitOptions struct {
	// Timeout fails the wait with a TimeoutError once exceeded. Zero waits forever.
	Timeout time.Duration
	// Retries stops the wait, without error, after 1+Retries polls. Zero is unlimited.
	Retries int
	// RetryDelay is the pause between polls. Zero means DefaultRetryDelay.
	RetryDelay time.Duration
}

// Reconciler classifies submitted orders from the broker's order lists.
type Reconciler struct {
	broker domain.BrokerClient
	clock  Clock
	events *events.Manager
	log    zerolog.Logger
}

// NewReconciler creates a reconciler bound to one broker handle.
// A nil clock uses the wall clock.
func NewReconciler(broker domain.BrokerClient, clock Clock, eventManager *events.Manager, log zerolog.Logger) *Reconciler {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Reconciler{
		broker: broker,
		clock:  clock,
		events: eventManager,
		log:    log.With().Str("component", "reconciler").Logger(),
	}
}

// OrderStatus queries the processed and pending lists once per market that
// appears among orders and classifies each order: processed when listed as
// processed, pending when listed as unprocessed, unknown otherwise.
// A market whose lists cannot be fetched leaves its orders unknown; the
// other markets' results are kept.
func (r *Reconciler) OrderStatus(ctx context.Context, orders []SubmittedOrder, since time.Time) []domain.OrderStatus {
	type lists struct {
		processed   map[string]bool
		unprocessed map[string]bool
		ok          bool
	}

	byMarket := make(map[domain.MarketCode]*lists)
	for _, o := range orders {
		if _, seen := byMarket[o.Market]; seen {
			continue
		}
		l := &lists{}
		byMarket[o.Market] = l

		processed, err := r.broker.ProcessedOrders(ctx, o.Market, since)
		if err != nil {
			r.log.Warn().Err(err).Str("market_code", string(o.Market)).Msg("Failed to list processed orders")
			continue
		}
		unprocessed, err := r.broker.UnprocessedOrders(ctx, o.Market)
		if err != nil {
			r.log.Warn().Err(err).Str("market_code", string(o.Market)).Msg("Failed to list unprocessed orders")
			continue
		}
		l.processed = toSet(processed)
		l.unprocessed = toSet(unprocessed)
		l.ok = true
	}

	statuses := make([]domain.OrderStatus, 0, len(orders))
	for _, o := range orders {
		status := domain.OrderStatus{
			OrderID:  o.OrderID,
			Code:     o.Code,
			Market:   o.Market,
			Side:     o.Side,
			Quantity: o.Quantity,
		}
		if l := byMarket[o.Market]; l.ok {
			switch {
			case l.processed[o.OrderID]:
				status.Processed = boolPtr(true)
			case l.unprocessed[o.OrderID]:
				status.Processed = boolPtr(false)
			}
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// WaitUntilResolved polls OrderStatus until every order is processed.
// It returns the last statuses when retries run out, a *domain.TimeoutError
// once the timeout has elapsed, and ctx.Err() if ctx is cancelled while
// sleeping. Orders are only ever resolved by the broker's processed list.
func (r *Reconciler) WaitUntilResolved(ctx context.Context, reportName string, orders []SubmittedOrder, since time.Time, opts WaitOptions) ([]domain.OrderStatus, error) {
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = DefaultRetryDelay
	}

	start := r.clock.Now()
	polls := 0
	for {
		statuses := r.OrderStatus(ctx, orders, since)
		polls++

		pending := unresolved(statuses)
		if pending == 0 {
			r.log.Info().Str("report_name", reportName).Int("orders", len(orders)).Int("polls", polls).Msg("All orders resolved")
			if r.events != nil {
				r.events.EmitTyped("trading", &events.OrdersResolvedData{
					ReportName: reportName,
					Orders:     len(orders),
					Polls:      polls,
				})
			}
			return statuses, nil
		}

		if opts.Retries > 0 && polls > opts.Retries {
			r.log.Info().Str("report_name", reportName).Int("pending", pending).Int("polls", polls).Msg("Retries exhausted")
			return statuses, nil
		}

		r.log.Debug().
			Str("report_name", reportName).
			Int("pending", pending).
			Dur("retry_delay", delay).
			Msg("Orders pending, waiting")

		if err := r.clock.Sleep(ctx, delay); err != nil {
			return statuses, err
		}

		elapsed := r.clock.Now().Sub(start)
		if opts.Timeout > 0 && elapsed > opts.Timeout {
			r.log.Warn().Str("report_name", reportName).Int("pending", pending).Dur("elapsed", elapsed).Msg("Wait timed out")
			return statuses, &domain.TimeoutError{Elapsed: elapsed, Statuses: statuses}
		}
	}
}

func unresolved(statuses []domain.OrderStatus) int {
	n := 0
	for _, s := range statuses {
		if !s.Resolved() {
			n++
		}
	}
	return n
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func boolPtr(b bool) *bool { return &b }
