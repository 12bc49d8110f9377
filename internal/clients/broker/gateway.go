package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/clientdata"
	"github.com/aristath/rebalancer/internal/domain"
)

// Gateway adapts Client to domain.BrokerClient. Quotes and account
// summaries are served from client_data.db while fresh.
type Gateway struct {
	client *Client
	cache  *clientdata.Repository
	log    zerolog.Logger
}

// NewGateway wraps client. cache may be nil.
func NewGateway(client *Client, cache *clientdata.Repository, log zerolog.Logger) *Gateway {
	return &Gateway{
		client: client,
		cache:  cache,
		log:    log.With().Str("client", "broker_gateway").Logger(),
	}
}

// Close stops the underlying client.
func (g *Gateway) Close() {
	g.client.Close()
}

type depositResult struct {
	Deposit float64 `json:"deposit"`
}

type foreignDeposit struct {
	CurrencyCode    string  `json:"currency_code"`
	AvailableAmount float64 `json:"available_amount"`
}

type holdingResult struct {
	Code   string  `json:"product_code"`
	Name   string  `json:"product_name"`
	Market string  `json:"market_code"`
	Count  float64 `json:"count"`
	Price  float64 `json:"price"` // Evaluated amount
}

type quoteResult struct {
	Current float64 `json:"current"`
	Minimum float64 `json:"minimum"`
	Maximum float64 `json:"maximum"`
	Opening float64 `json:"opening"`
	Base    float64 `json:"base"`
}

type historyResult struct {
	Date    string  `json:"standard_date"`
	Minimum float64 `json:"minimum"`
	Maximum float64 `json:"maximum"`
	Opening float64 `json:"opening"`
	Closing float64 `json:"closing"`
}

type orderResult struct {
	OrderNum string `json:"order_num"`
}

type orderListItem struct {
	OrderNum       string `json:"order_num"`
	OriginOrderNum string `json:"origin_order_num"`
	ProductCode    string `json:"product_code"`
	MarketCode     string `json:"market_code"`
}

type marginResult struct {
	Rate float64 `json:"currency"`
}

const dateLayout = "20060102"

// AccountSummary implements domain.BrokerClient.
func (g *Gateway) AccountSummary(ctx context.Context, target domain.Target) (*domain.AccountSummary, error) {
	cacheKey := string(target) + ":" + g.client.cfg.Account
	if g.cache != nil {
		var cached domain.AccountSummary
		if ok, err := g.cache.GetIfFresh(clientdata.TableAccountSnapshots, cacheKey, &cached); err == nil && ok {
			return &cached, nil
		}
	}

	svc := servicesForTarget(target)
	summary := &domain.AccountSummary{}

	if target == domain.TargetDomestic {
		var dep depositResult
		if err := g.client.call(ctx, svc.deposit, map[string]interface{}{"price_type": "01"}, &dep); err != nil {
			return nil, domain.External("domestic deposit", err)
		}
		summary.Deposit = dep.Deposit
	} else {
		var deps []foreignDeposit
		if err := g.client.call(ctx, svc.deposit, nil, &deps); err != nil {
			return nil, domain.External("overseas deposit", err)
		}
		for _, d := range deps {
			if d.CurrencyCode == "USD" {
				summary.Deposit = d.AvailableAmount
				break
			}
		}
	}

	var holdings []holdingResult
	if err := g.client.call(ctx, svc.holdings, nil, &holdings); err != nil {
		return nil, domain.External(fmt.Sprintf("%s holdings", target), err)
	}

	summary.TotalValue = summary.Deposit
	for _, h := range holdings {
		if h.Code == "" {
			continue
		}
		market := domain.MarketKRX
		if target == domain.TargetOverseas {
			parsed, err := domain.ParseMarketCode(h.Market)
			if err != nil {
				g.log.Warn().Str("product_code", h.Code).Str("market_code", h.Market).Msg("Skipping holding with unknown market")
				continue
			}
			market = parsed
		}
		summary.Holdings = append(summary.Holdings, domain.Holding{
			Code:     h.Code,
			Name:     h.Name,
			Market:   market,
			Quantity: h.Count,
			Value:    h.Price,
		})
		summary.TotalValue += h.Price
	}

	if g.cache != nil {
		if err := g.cache.Store(clientdata.TableAccountSnapshots, cacheKey, summary, clientdata.TTLAccountSnapshot); err != nil {
			g.log.Warn().Err(err).Msg("Failed to cache account summary")
		}
	}
	return summary, nil
}

// CurrencyRate implements domain.BrokerClient with the overseas margin inquiry.
func (g *Gateway) CurrencyRate(ctx context.Context) (float64, error) {
	var margin []marginResult
	if err := g.client.call(ctx, svcOverseasMargin, map[string]interface{}{"region": overseasMarginRegion}, &margin); err != nil {
		return 0, domain.External("currency rate", err)
	}
	for _, m := range margin {
		if m.Rate > 0 {
			return m.Rate, nil
		}
	}
	return 0, domain.External("currency rate", fmt.Errorf("no rate in margin inquiry"))
}

// Quote implements domain.BrokerClient.
func (g *Gateway) Quote(ctx context.Context, code string, market domain.MarketCode) (*domain.Quote, error) {
	cacheKey := string(market) + ":" + code
	if g.cache != nil {
		var cached domain.Quote
		if ok, err := g.cache.GetIfFresh(clientdata.TableQuotes, cacheKey, &cached); err == nil && ok {
			return &cached, nil
		}
	}

	var q quoteResult
	params := map[string]interface{}{"product_code": code, "market_code": market.ShortCode()}
	if err := g.client.call(ctx, servicesFor(market).quote, params, &q); err != nil {
		return nil, domain.External("quote "+code, err)
	}
	if q.Current <= 0 {
		return nil, domain.External("quote "+code, fmt.Errorf("no current price"))
	}

	quote := &domain.Quote{Current: q.Current, Minimum: q.Minimum, Maximum: q.Maximum, Opening: q.Opening, Base: q.Base}
	if g.cache != nil {
		if err := g.cache.Store(clientdata.TableQuotes, cacheKey, quote, clientdata.TTLCurrentPrice); err != nil {
			g.log.Warn().Err(err).Str("product_code", code).Msg("Failed to cache quote")
		}
	}
	return quote, nil
}

// PriceHistory implements domain.BrokerClient. Rows with an unparseable date are skipped.
func (g *Gateway) PriceHistory(ctx context.Context, code string, market domain.MarketCode) ([]domain.PriceBar, error) {
	var rows []historyResult
	params := map[string]interface{}{"product_code": code, "market_code": market.ShortCode(), "period": "D"}
	if err := g.client.call(ctx, servicesFor(market).history, params, &rows); err != nil {
		return nil, domain.External("history "+code, err)
	}

	bars := make([]domain.PriceBar, 0, len(rows))
	for _, r := range rows {
		date, err := time.Parse(dateLayout, r.Date)
		if err != nil {
			continue
		}
		bars = append(bars, domain.PriceBar{Date: date, Minimum: r.Minimum, Maximum: r.Maximum, Opening: r.Opening, Closing: r.Closing})
	}
	return bars, nil
}

// Buy implements domain.BrokerClient.
func (g *Gateway) Buy(ctx context.Context, req domain.OrderRequest) (string, error) {
	return g.order(ctx, servicesFor(req.Market).buy, req)
}

// Sell implements domain.BrokerClient.
func (g *Gateway) Sell(ctx context.Context, req domain.OrderRequest) (string, error) {
	return g.order(ctx, servicesFor(req.Market).sell, req)
}

func (g *Gateway) order(ctx context.Context, service string, req domain.OrderRequest) (string, error) {
	if req.Quantity <= 0 {
		return "", fmt.Errorf("order quantity must be positive, got %d", req.Quantity)
	}

	params := map[string]interface{}{
		"product_code": req.Code,
		"market_code":  req.Market.ShortCode(),
		"count":        req.Quantity,
		"price":        0.0,
		"order_kind":   "market",
	}
	if !req.IsMarketOrder() {
		params["price"] = req.Price
		params["order_kind"] = "limit"
	}

	var res orderResult
	if err := g.client.call(ctx, service, params, &res); err != nil {
		return "", domain.External(service+" "+req.Code, err)
	}
	if res.OrderNum == "" {
		return "", domain.External(service+" "+req.Code, fmt.Errorf("gateway returned no order number"))
	}
	return res.OrderNum, nil
}

// CancelOrder implements domain.BrokerClient.
func (g *Gateway) CancelOrder(ctx context.Context, orderID string, market domain.MarketCode) error {
	params := map[string]interface{}{"order_num": orderID, "market_code": market.ShortCode()}
	if err := g.client.call(ctx, servicesFor(market).cancel, params, nil); err != nil {
		return domain.External("cancel "+orderID, err)
	}
	return nil
}

// ProcessedOrders implements domain.BrokerClient for executed orders since the given day.
func (g *Gateway) ProcessedOrders(ctx context.Context, market domain.MarketCode, since time.Time) ([]string, error) {
	params := map[string]interface{}{
		"start_date":  since.Format(dateLayout),
		"end_date":    g.client.now().Format(dateLayout),
		"market_code": market.ShortCode(),
		"executed":    true,
	}
	return g.orderList(ctx, servicesFor(market).executed, market, params)
}

// UnprocessedOrders implements domain.BrokerClient.
func (g *Gateway) UnprocessedOrders(ctx context.Context, market domain.MarketCode) ([]string, error) {
	params := map[string]interface{}{"market_code": market.ShortCode()}
	return g.orderList(ctx, servicesFor(market).open, market, params)
}

// orderList returns the order numbers of a list inquiry. Overseas inquiries
// cover every US venue, so items tagged with another market are dropped.
func (g *Gateway) orderList(ctx context.Context, service string, market domain.MarketCode, params map[string]interface{}) ([]string, error) {
	var items []orderListItem
	if err := g.client.call(ctx, service, params, &items); err != nil {
		return nil, domain.External(service, err)
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		if item.MarketCode != "" {
			if m, err := domain.ParseMarketCode(item.MarketCode); err == nil && m != market {
				continue
			}
		}
		id := item.OrderNum
		if id == "" {
			id = item.OriginOrderNum
		}
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

var _ domain.BrokerClient = (*Gateway)(nil)
