package domain

import (
	"context"
	"time"
)

// BrokerClient is the brokerage collaborator consumed by the planner, the
// submitter and the reconciler. Implementations must not issue concurrent
// requests for the same account session.
type BrokerClient interface {
	// Account state
	AccountSummary(ctx context.Context, target Target) (*AccountSummary, error)
	CurrencyRate(ctx context.Context) (float64, error)

	// Market data
	Quote(ctx context.Context, code string, market MarketCode) (*Quote, error)
	PriceHistory(ctx context.Context, code string, market MarketCode) ([]PriceBar, error)

	// Orders. Both return the broker's order identifier.
	Buy(ctx context.Context, req OrderRequest) (string, error)
	Sell(ctx context.Context, req OrderRequest) (string, error)
	CancelOrder(ctx context.Context, orderID string, market MarketCode) error

	// Order state, always scoped to a single market
	ProcessedOrders(ctx context.Context, market MarketCode, since time.Time) ([]string, error)
	UnprocessedOrders(ctx context.Context, market MarketCode) ([]string, error)
}

