package domain

// PortfolioEntry is an instrument joined with its target weight.
type PortfolioEntry struct {
	Code      string     `json:"product_code"`
	Name      string     `json:"product_name"`
	Market    MarketCode `json:"market_code"`
	Current   float64    `json:"current"`
	QuoteUnit float64    `json:"quote_unit"`
	Weight    float64    `json:"weight"`
	Use       bool       `json:"use_yn"`
}
