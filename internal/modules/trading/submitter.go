// Package trading submits plan rows to the broker, records the orders and
// reconciles them against the broker's processed and pending lists.
package trading

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/events"
	"github.com/aristath/rebalancer/internal/modules/rebalancing"
)

// OrderStore persists submitted orders.
type OrderStore interface {
	Insert(order *SubmittedOrder) error
}

// Submitter places one order per non-zero plan row, in plan order.
type Submitter struct {
	broker domain.BrokerClient
	store  OrderStore
	events *events.Manager
	log    zerolog.Logger
}

// NewSubmitter creates a submitter bound to one broker handle.
func NewSubmitter(broker domain.BrokerClient, store OrderStore, eventManager *events.Manager, log zerolog.Logger) *Submitter {
	return &Submitter{
		broker: broker,
		store:  store,
		events: eventManager,
		log:    log.With().Str("component", "submitter").Logger(),
	}
}

type pendingOrder struct {
	row   rebalancing.PlanRow
	side  domain.OrderSide
	price float64
}

// Submit sends the orders of a plan. Prices are resolved for every row
// before the first order is placed, so strategy errors touch nothing.
// A broker failure stops the run; orders already accepted stay recorded.
func (s *Submitter) Submit(ctx context.Context, reportID string, rows []rebalancing.PlanRow, strategy domain.PriceStrategy, nDiff int) ([]SubmittedOrder, error) {
	pending := make([]pendingOrder, 0, len(rows))
	for _, row := range rows {
		side, ok := row.Side()
		if !ok {
			continue
		}
		price, err := rebalancing.ResolvePrice(row, strategy, nDiff)
		if err != nil {
			return nil, err
		}
		pending = append(pending, pendingOrder{row: row, side: side, price: price})
	}

	s.log.Info().
		Str("report_id", reportID).
		Str("strategy", string(strategy)).
		Int("orders", len(pending)).
		Int("skipped", len(rows)-len(pending)).
		Msg("Submitting orders")

	submitted := make([]SubmittedOrder, 0, len(pending))
	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return submitted, err
		}

		quantity := p.row.Difference
		if quantity < 0 {
			quantity = -quantity
		}
		req := domain.OrderRequest{
			Code:     p.row.Code,
			Market:   p.row.Market,
			Quantity: quantity,
			Price:    p.price,
		}

		var (
			orderID string
			err     error
		)
		if p.side == domain.SideBuy {
			orderID, err = s.broker.Buy(ctx, req)
		} else {
			orderID, err = s.broker.Sell(ctx, req)
		}
		if err != nil {
			s.log.Error().
				Err(err).
				Str("product_code", req.Code).
				Str("order_type", string(p.side)).
				Int("submitted", len(submitted)).
				Msg("Order rejected, stopping")
			return submitted, domain.External(fmt.Sprintf("%s %s", p.side, req.Code), err)
		}

		order := SubmittedOrder{
			ReportID: reportID,
			Code:     req.Code,
			Market:   req.Market,
			Quantity: req.Quantity,
			OrderID:  orderID,
			Side:     p.side,
			Price:    req.Price,
		}
		if err := s.store.Insert(&order); err != nil {
			return submitted, fmt.Errorf("order %s accepted but not recorded: %w", orderID, err)
		}
		submitted = append(submitted, order)

		s.log.Info().
			Str("product_code", order.Code).
			Str("order_type", string(order.Side)).
			Int64("count", order.Quantity).
			Float64("price", order.Price).
			Str("order_num", order.OrderID).
			Msg("Order submitted")

		if s.events != nil {
			s.events.EmitTyped("trading", &events.OrderSubmittedData{
				ReportID: reportID,
				Code:     order.Code,
				Market:   string(order.Market),
				Side:     string(order.Side),
				Quantity: order.Quantity,
				Price:    order.Price,
				OrderID:  order.OrderID,
			})
		}
	}

	return submitted, nil
}
