package alpaca

import (
	"context"
	"time"

	"github.com/aristath/rebalancer/internal/domain"
)

// Router sends domestic calls to one BrokerClient and overseas calls to another.
type Router struct {
	domestic domain.BrokerClient
	overseas domain.BrokerClient
}

// NewRouter creates a market router. CurrencyRate is always asked of domestic.
func NewRouter(domestic, overseas domain.BrokerClient) *Router {
	return &Router{domestic: domestic, overseas: overseas}
}

func (r *Router) forMarket(m domain.MarketCode) domain.BrokerClient {
	if m.IsDomestic() {
		return r.domestic
	}
	return r.overseas
}

func (r *Router) forTarget(t domain.Target) domain.BrokerClient {
	if t == domain.TargetDomestic {
		return r.domestic
	}
	return r.overseas
}

func (r *Router) AccountSummary(ctx context.Context, target domain.Target) (*domain.AccountSummary, error) {
	return r.forTarget(target).AccountSummary(ctx, target)
}

func (r *Router) CurrencyRate(ctx context.Context) (float64, error) {
	return r.domestic.CurrencyRate(ctx)
}

func (r *Router) Quote(ctx context.Context, code string, market domain.MarketCode) (*domain.Quote, error) {
	return r.forMarket(market).Quote(ctx, code, market)
}

func (r *Router) PriceHistory(ctx context.Context, code string, market domain.MarketCode) ([]domain.PriceBar, error) {
	return r.forMarket(market).PriceHistory(ctx, code, market)
}

func (r *Router) Buy(ctx context.Context, req domain.OrderRequest) (string, error) {
	return r.forMarket(req.Market).Buy(ctx, req)
}

func (r *Router) Sell(ctx context.Context, req domain.OrderRequest) (string, error) {
	return r.forMarket(req.Market).Sell(ctx, req)
}

func (r *Router) CancelOrder(ctx context.Context, orderID string, market domain.MarketCode) error {
	return r.forMarket(market).CancelOrder(ctx, orderID, market)
}

func (r *Router) ProcessedOrders(ctx context.Context, market domain.MarketCode, since time.Time) ([]string, error) {
	return r.forMarket(market).ProcessedOrders(ctx, market, since)
}

func (r *Router) UnprocessedOrders(ctx context.Context, market domain.MarketCode) ([]string, error) {
	return r.forMarket(market).UnprocessedOrders(ctx, market)
}

var _ domain.BrokerClient = (*Router)(nil)
