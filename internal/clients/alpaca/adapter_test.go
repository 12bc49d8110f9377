package alpaca

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rebalancer/internal/domain"
	testutil "github.com/aristath/rebalancer/internal/testing"
)

type fakeTrade struct {
	account   *alpaca.Account
	positions []alpaca.Position
	orders    map[string][]alpaca.Order
	placed    []alpaca.PlaceOrderRequest
	ordersReq []alpaca.GetOrdersRequest
	cancelled []string
	err       error
}

func (f *fakeTrade) GetAccount() (*alpaca.Account, error) { return f.account, f.err }

func (f *fakeTrade) GetPositions() ([]alpaca.Position, error) { return f.positions, f.err }

func (f *fakeTrade) PlaceOrder(req alpaca.PlaceOrderRequest) (*alpaca.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.placed = append(f.placed, req)
	return &alpaca.Order{ID: "ord-1", Status: "accepted"}, nil
}

func (f *fakeTrade) GetOrders(req alpaca.GetOrdersRequest) ([]alpaca.Order, error) {
	f.ordersReq = append(f.ordersReq, req)
	return f.orders[req.Status], f.err
}

func (f *fakeTrade) CancelOrder(orderID string) error {
	if f.err != nil {
		return f.err
	}
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

type fakeData struct {
	trade   *marketdata.Trade
	bars    []marketdata.Bar
	barsErr error
	barsReq []marketdata.GetBarsRequest
}

func (f *fakeData) GetLatestTrade(symbol string, req marketdata.GetLatestTradeRequest) (*marketdata.Trade, error) {
	return f.trade, nil
}

func (f *fakeData) GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error) {
	f.barsReq = append(f.barsReq, req)
	return f.bars, f.barsErr
}

func decPtr(f float64) *decimal.Decimal {
	d := decimal.NewFromFloat(f)
	return &d
}

func newTestAdapter(trade *fakeTrade, data *fakeData) *Adapter {
	a := NewAdapterWithAPIs(trade, data, testutil.NopLogger())
	a.now = func() time.Time { return time.Date(2024, 3, 8, 15, 0, 0, 0, time.UTC) }
	return a
}

func TestAccountSummary(t *testing.T) {
	trade := &fakeTrade{
		account: &alpaca.Account{Cash: decimal.NewFromFloat(5000.5)},
		positions: []alpaca.Position{
			{Symbol: "SPY", Exchange: "ARCA", Qty: decimal.NewFromInt(4), MarketValue: decPtr(1800)},
			{Symbol: "QQQ", Exchange: "NASDAQ", Qty: decimal.NewFromInt(3), MarketValue: decPtr(1200)},
			{Symbol: "KO", Exchange: "NYSE", Qty: decimal.NewFromInt(1)},
		},
	}
	a := newTestAdapter(trade, &fakeData{})

	summary, err := a.AccountSummary(context.Background(), domain.TargetOverseas)
	require.NoError(t, err)

	assert.Equal(t, 5000.5, summary.Deposit)
	require.Len(t, summary.Holdings, 3)
	assert.Equal(t, domain.Holding{Code: "SPY", Market: domain.MarketAMEX, Quantity: 4, Value: 1800}, summary.Holdings[0])
	assert.Equal(t, domain.MarketNASD, summary.Holdings[1].Market)
	assert.Equal(t, domain.MarketNYSE, summary.Holdings[2].Market)
	assert.Zero(t, summary.Holdings[2].Value)
	assert.Equal(t, 8000.5, summary.TotalValue)

	_, err = a.AccountSummary(context.Background(), domain.TargetDomestic)
	assert.Error(t, err)
}

func TestAccountSummary_Error(t *testing.T) {
	a := newTestAdapter(&fakeTrade{err: errors.New("forbidden")}, &fakeData{})
	_, err := a.AccountSummary(context.Background(), domain.TargetOverseas)
	assert.ErrorIs(t, err, domain.ErrExternal)
}

func TestPlaceOrders(t *testing.T) {
	trade := &fakeTrade{}
	a := newTestAdapter(trade, &fakeData{})

	id, err := a.Buy(context.Background(), domain.OrderRequest{Code: "SPY", Market: domain.MarketAMEX, Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, "ord-1", id)

	_, err = a.Sell(context.Background(), domain.OrderRequest{Code: "QQQ", Market: domain.MarketNASD, Quantity: 3, Price: 400.123})
	require.NoError(t, err)

	require.Len(t, trade.placed, 2)
	buy := trade.placed[0]
	assert.Equal(t, alpaca.Buy, buy.Side)
	assert.Equal(t, alpaca.Market, buy.Type)
	assert.Equal(t, alpaca.Day, buy.TimeInForce)
	assert.Nil(t, buy.LimitPrice)
	assert.True(t, buy.Qty.Equal(decimal.NewFromInt(2)))

	sell := trade.placed[1]
	assert.Equal(t, alpaca.Sell, sell.Side)
	assert.Equal(t, alpaca.Limit, sell.Type)
	require.NotNil(t, sell.LimitPrice)
	assert.Equal(t, "400.12", sell.LimitPrice.String())

	_, err = a.Buy(context.Background(), domain.OrderRequest{Code: "SPY", Market: domain.MarketAMEX})
	assert.Error(t, err)
	assert.Len(t, trade.placed, 2)
}

func TestOrderLists(t *testing.T) {
	trade := &fakeTrade{orders: map[string][]alpaca.Order{
		"closed": {{ID: "a", Status: "filled"}, {ID: "b", Status: "canceled"}, {ID: "c", Status: "filled"}},
		"open":   {{ID: "d", Status: "new"}, {ID: "e", Status: "partially_filled"}},
	}}
	a := newTestAdapter(trade, &fakeData{})
	since := time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)

	processed, err := a.ProcessedOrders(context.Background(), domain.MarketNASD, since)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, processed)
	assert.Equal(t, since, trade.ordersReq[0].After)

	open, err := a.UnprocessedOrders(context.Background(), domain.MarketNASD)
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "e"}, open)

	require.NoError(t, a.CancelOrder(context.Background(), "d", domain.MarketNASD))
	assert.Equal(t, []string{"d"}, trade.cancelled)
}

func TestQuote(t *testing.T) {
	data := &fakeData{
		trade: &marketdata.Trade{Price: 512.3},
		bars: []marketdata.Bar{
			{Open: 500, High: 510, Low: 495, Close: 505},
			{Open: 506, High: 515, Low: 504, Close: 512},
		},
	}
	a := newTestAdapter(&fakeTrade{}, data)

	q, err := a.Quote(context.Background(), "SPY", domain.MarketAMEX)
	require.NoError(t, err)
	assert.Equal(t, &domain.Quote{Current: 512.3, Minimum: 504, Maximum: 515, Opening: 506, Base: 505}, q)
	assert.Equal(t, marketdata.OneDay, data.barsReq[0].TimeFrame)

	data.barsErr = errors.New("subscription required")
	q, err = a.Quote(context.Background(), "SPY", domain.MarketAMEX)
	require.NoError(t, err, "last trade alone is enough")
	assert.Equal(t, 512.3, q.Current)

	data.trade = nil
	_, err = a.Quote(context.Background(), "SPY", domain.MarketAMEX)
	assert.ErrorIs(t, err, domain.ErrExternal)
}

func TestPriceHistory(t *testing.T) {
	day := time.Date(2024, 3, 7, 5, 0, 0, 0, time.UTC)
	data := &fakeData{bars: []marketdata.Bar{{Timestamp: day, Open: 1, High: 3, Low: 0.5, Close: 2}}}
	a := newTestAdapter(&fakeTrade{}, data)

	bars, err := a.PriceHistory(context.Background(), "SPY", domain.MarketAMEX)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, domain.PriceBar{Date: time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC), Minimum: 0.5, Maximum: 3, Opening: 1, Closing: 2}, bars[0])
	assert.Equal(t, time.Date(2023, 12, 8, 15, 0, 0, 0, time.UTC), data.barsReq[0].Start)
}

func TestCurrencyRate(t *testing.T) {
	a := newTestAdapter(&fakeTrade{}, &fakeData{})
	_, err := a.CurrencyRate(context.Background())
	assert.ErrorIs(t, err, ErrNoCurrencyRate)
	assert.ErrorIs(t, err, domain.ErrExternal)
}

func TestRouter(t *testing.T) {
	domestic := testutil.NewMockBroker()
	domestic.Rate = 1300
	overseas := testutil.NewMockBroker()
	r := NewRouter(domestic, overseas)
	ctx := context.Background()

	_, err := r.Buy(ctx, domain.OrderRequest{Code: "005930", Market: domain.MarketKRX, Quantity: 1})
	require.NoError(t, err)
	_, err = r.Sell(ctx, domain.OrderRequest{Code: "SPY", Market: domain.MarketAMEX, Quantity: 1})
	require.NoError(t, err)
	_, _ = r.ProcessedOrders(ctx, domain.MarketNYSE, time.Time{})
	_, _ = r.UnprocessedOrders(ctx, domain.MarketKRX)

	assert.Len(t, domestic.Buys, 1)
	assert.Len(t, overseas.Sells, 1)
	assert.Equal(t, 1, overseas.ProcessedCalls[domain.MarketNYSE])
	assert.Equal(t, 1, domestic.UnprocessedCalls[domain.MarketKRX])

	rate, err := r.CurrencyRate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1300.0, rate)

	domestic.Summaries[domain.TargetDomestic] = &domain.AccountSummary{Deposit: 1}
	overseas.Summaries[domain.TargetOverseas] = &domain.AccountSummary{Deposit: 2}
	s, err := r.AccountSummary(ctx, domain.TargetOverseas)
	require.NoError(t, err)
	assert.Equal(t, 2.0, s.Deposit)
}
