// Package alpaca adapts the Alpaca trading and market data APIs to
// domain.BrokerClient for the US venues.
package alpaca

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/rebalancer/internal/domain"
)

// ErrNoCurrencyRate is returned by CurrencyRate; Alpaca accounts are USD only.
var ErrNoCurrencyRate = errors.New("alpaca does not quote USD/KRW")

// TradeAPI is the subset of *alpaca.Client the adapter uses.
type TradeAPI interface {
	GetAccount() (*alpaca.Account, error)
	GetPositions() ([]alpaca.Position, error)
	PlaceOrder(req alpaca.PlaceOrderRequest) (*alpaca.Order, error)
	GetOrders(req alpaca.GetOrdersRequest) ([]alpaca.Order, error)
	CancelOrder(orderID string) error
}

// DataAPI is the subset of *marketdata.Client the adapter uses.
type DataAPI interface {
	GetLatestTrade(symbol string, req marketdata.GetLatestTradeRequest) (*marketdata.Trade, error)
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

// Config holds the Alpaca credentials and endpoints.
type Config struct {
	APIKey    string
	APISecret string
	BaseURL   string
	DataURL   string
}

// Adapter implements domain.BrokerClient on Alpaca.
type Adapter struct {
	trade TradeAPI
	data  DataAPI
	now   func() time.Time
	log   zerolog.Logger
}

// NewAdapter creates an adapter backed by the Alpaca SDK clients.
func NewAdapter(cfg Config, log zerolog.Logger) *Adapter {
	trade := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
		BaseURL:   cfg.BaseURL,
	})
	data := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
		BaseURL:   cfg.DataURL,
	})
	return NewAdapterWithAPIs(trade, data, log)
}

// NewAdapterWithAPIs creates an adapter over explicit API handles.
func NewAdapterWithAPIs(trade TradeAPI, data DataAPI, log zerolog.Logger) *Adapter {
	return &Adapter{
		trade: trade,
		data:  data,
		now:   time.Now,
		log:   log.With().Str("client", "alpaca").Logger(),
	}
}

// AccountSummary implements domain.BrokerClient. Only the overseas target is served.
func (a *Adapter) AccountSummary(ctx context.Context, target domain.Target) (*domain.AccountSummary, error) {
	if target != domain.TargetOverseas {
		return nil, fmt.Errorf("alpaca serves the overseas target only, got %s", target)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	acct, err := a.trade.GetAccount()
	if err != nil {
		return nil, domain.External("alpaca account", err)
	}
	positions, err := a.trade.GetPositions()
	if err != nil {
		return nil, domain.External("alpaca positions", err)
	}

	deposit, _ := acct.Cash.Float64()
	summary := &domain.AccountSummary{Deposit: deposit, TotalValue: deposit}
	for _, p := range positions {
		value := decimal.Zero
		if p.MarketValue != nil {
			value = *p.MarketValue
		}
		qty, _ := p.Qty.Float64()
		v, _ := value.Float64()
		summary.Holdings = append(summary.Holdings, domain.Holding{
			Code:     p.Symbol,
			Market:   marketFromExchange(string(p.Exchange)),
			Quantity: qty,
			Value:    v,
		})
		summary.TotalValue += v
	}
	return summary, nil
}

// CurrencyRate implements domain.BrokerClient and always fails.
func (a *Adapter) CurrencyRate(ctx context.Context) (float64, error) {
	return 0, domain.External("alpaca currency rate", ErrNoCurrencyRate)
}

// Quote implements domain.BrokerClient from the latest trade and the daily bars.
func (a *Adapter) Quote(ctx context.Context, code string, market domain.MarketCode) (*domain.Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	trade, err := a.data.GetLatestTrade(code, marketdata.GetLatestTradeRequest{})
	if err != nil {
		return nil, domain.External("alpaca latest trade "+code, err)
	}
	if trade == nil || trade.Price <= 0 {
		return nil, domain.External("alpaca latest trade "+code, fmt.Errorf("no trade price"))
	}

	quote := &domain.Quote{Current: trade.Price}
	bars, err := a.data.GetBars(code, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     a.now().AddDate(0, 0, -7),
	})
	if err != nil {
		a.log.Warn().Err(err).Str("product_code", code).Msg("Daily bars unavailable, quoting last trade only")
		return quote, nil
	}
	if n := len(bars); n > 0 {
		last := bars[n-1]
		quote.Minimum, quote.Maximum, quote.Opening = last.Low, last.High, last.Open
		if n > 1 {
			quote.Base = bars[n-2].Close
		}
	}
	return quote, nil
}

// PriceHistory implements domain.BrokerClient with about three months of daily bars.
func (a *Adapter) PriceHistory(ctx context.Context, code string, market domain.MarketCode) ([]domain.PriceBar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bars, err := a.data.GetBars(code, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     a.now().AddDate(0, -3, 0),
	})
	if err != nil {
		return nil, domain.External("alpaca bars "+code, err)
	}

	out := make([]domain.PriceBar, 0, len(bars))
	for _, b := range bars {
		out = append(out, domain.PriceBar{
			Date:    b.Timestamp.UTC().Truncate(24 * time.Hour),
			Minimum: b.Low,
			Maximum: b.High,
			Opening: b.Open,
			Closing: b.Close,
		})
	}
	return out, nil
}

// Buy implements domain.BrokerClient.
func (a *Adapter) Buy(ctx context.Context, req domain.OrderRequest) (string, error) {
	return a.placeOrder(ctx, alpaca.Buy, req)
}

// Sell implements domain.BrokerClient.
func (a *Adapter) Sell(ctx context.Context, req domain.OrderRequest) (string, error) {
	return a.placeOrder(ctx, alpaca.Sell, req)
}

func (a *Adapter) placeOrder(ctx context.Context, side alpaca.Side, req domain.OrderRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if req.Quantity <= 0 {
		return "", fmt.Errorf("order quantity must be positive, got %d", req.Quantity)
	}

	qty := decimal.NewFromInt(req.Quantity)
	order := alpaca.PlaceOrderRequest{
		Symbol:      req.Code,
		Qty:         &qty,
		Side:        side,
		Type:        alpaca.Market,
		TimeInForce: alpaca.Day,
	}
	if !req.IsMarketOrder() {
		limit := decimal.NewFromFloat(req.Price).Round(2)
		order.Type = alpaca.Limit
		order.LimitPrice = &limit
	}

	placed, err := a.trade.PlaceOrder(order)
	if err != nil {
		return "", domain.External(fmt.Sprintf("alpaca %s %s", side, req.Code), err)
	}

	a.log.Info().
		Str("product_code", req.Code).
		Str("side", string(side)).
		Int64("count", req.Quantity).
		Str("order_id", placed.ID).
		Str("status", placed.Status).
		Msg("Order placed")
	return placed.ID, nil
}

// CancelOrder implements domain.BrokerClient.
func (a *Adapter) CancelOrder(ctx context.Context, orderID string, market domain.MarketCode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := a.trade.CancelOrder(orderID); err != nil {
		return domain.External("alpaca cancel "+orderID, err)
	}
	return nil
}

// ProcessedOrders implements domain.BrokerClient with the filled orders
// since the given time. Alpaca order ids are unique across venues, so the
// list is the same for every US market.
func (a *Adapter) ProcessedOrders(ctx context.Context, market domain.MarketCode, since time.Time) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	orders, err := a.trade.GetOrders(alpaca.GetOrdersRequest{
		Status: "closed",
		After:  since,
		Limit:  500,
	})
	if err != nil {
		return nil, domain.External("alpaca closed orders", err)
	}

	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		if o.Status == "filled" {
			ids = append(ids, o.ID)
		}
	}
	return ids, nil
}

// UnprocessedOrders implements domain.BrokerClient.
func (a *Adapter) UnprocessedOrders(ctx context.Context, market domain.MarketCode) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	orders, err := a.trade.GetOrders(alpaca.GetOrdersRequest{Status: "open", Limit: 500})
	if err != nil {
		return nil, domain.External("alpaca open orders", err)
	}

	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	return ids, nil
}

// marketFromExchange maps Alpaca exchange names onto market codes.
// Arca and BATS listings are treated as AMEX, like the domestic gateway does for ETFs.
func marketFromExchange(exchange string) domain.MarketCode {
	switch strings.ToUpper(exchange) {
	case "NASDAQ":
		return domain.MarketNASD
	case "NYSE":
		return domain.MarketNYSE
	default:
		return domain.MarketAMEX
	}
}

var _ domain.BrokerClient = (*Adapter)(nil)
