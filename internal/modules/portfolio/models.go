package portfolio

import (
	"time"

	"github.com/aristath/rebalancer/internal/domain"
)

// Product is an instrument and its latest quote.
type Product struct {
	Code      string            `json:"product_code"`
	Name      string            `json:"product_name"`
	Market    domain.MarketCode `json:"market_code"`
	Current   float64           `json:"current"`
	Minimum   float64           `json:"minimum"`
	Maximum   float64           `json:"maximum"`
	Opening   float64           `json:"opening"`
	Base      float64           `json:"base"`
	QuoteUnit float64           `json:"quote_unit"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// SetPrice applies a quote and recomputes the tick size for the new tier.
func (p *Product) SetPrice(q domain.Quote) {
	p.Current = q.Current
	p.Minimum = q.Minimum
	p.Maximum = q.Maximum
	p.Opening = q.Opening
	p.Base = q.Base
	p.QuoteUnit = domain.QuoteUnit(p.Market, q.Current)
}

// HistoryRow is one trading day of a product.
type HistoryRow struct {
	ProductCode  string  `json:"product_code"`
	ProductName  string  `json:"product_name"`
	StandardDate string  `json:"standard_date"`
	Minimum      float64 `json:"minimum"`
	Maximum      float64 `json:"maximum"`
	Opening      float64 `json:"opening"`
	Closing      float64 `json:"closing"`
}

// EntryUpdate is the request body of PUT /api/portfolio/{code}.
type EntryUpdate struct {
	Weight *float64 `json:"weight"`
	Use    *bool    `json:"use_yn"`
}
