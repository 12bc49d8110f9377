package trading

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/events"
)

// Canceller withdraws orders that the broker still lists as pending.
type Canceller struct {
	broker     domain.BrokerClient
	reconciler *Reconciler
	events     *events.Manager
	log        zerolog.Logger
}

// NewCanceller creates a canceller bound to one broker handle.
func NewCanceller(broker domain.BrokerClient, reconciler *Reconciler, eventManager *events.Manager, log zerolog.Logger) *Canceller {
	return &Canceller{
		broker:     broker,
		reconciler: reconciler,
		events:     eventManager,
		log:        log.With().Str("component", "canceller").Logger(),
	}
}

// CancelOrder cancels a single order.
func (c *Canceller) CancelOrder(ctx context.Context, order SubmittedOrder) error {
	if err := c.broker.CancelOrder(ctx, order.OrderID, order.Market); err != nil {
		return domain.External("cancel "+order.OrderID, err)
	}

	c.log.Info().Str("order_num", order.OrderID).Str("market_code", string(order.Market)).Msg("Order cancelled")
	if c.events != nil {
		c.events.EmitTyped("trading", &events.OrderCancelledData{
			OrderID: order.OrderID,
			Market:  string(order.Market),
		})
	}
	return nil
}

// CancelUnprocessed cancels every order the broker lists as unprocessed.
// Failures are reported per order; the remaining orders are still attempted.
func (c *Canceller) CancelUnprocessed(ctx context.Context, orders []SubmittedOrder, since time.Time) []domain.CancelResult {
	statuses := c.reconciler.OrderStatus(ctx, orders, since)

	results := make([]domain.CancelResult, 0)
	for i, s := range statuses {
		if s.Processed == nil || *s.Processed {
			continue
		}
		result := domain.CancelResult{OrderID: s.OrderID}
		if err := c.CancelOrder(ctx, orders[i]); err != nil {
			c.log.Warn().Err(err).Str("order_num", s.OrderID).Msg("Failed to cancel order")
			result.Error = err.Error()
		} else {
			result.Cancelled = true
		}
		results = append(results, result)
	}
	return results
}
