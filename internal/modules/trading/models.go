package trading

import (
	"fmt"
	"time"

	"github.com/aristath/rebalancer/internal/domain"
)

// SubmittedOrder is an order accepted by the broker. It is never updated;
// its resolution is tracked by order number.
type SubmittedOrder struct {
	ID        int64             `json:"-"`
	ReportID  string            `json:"-"`
	Code      string            `json:"product_code"`
	Market    domain.MarketCode `json:"market_code"`
	Quantity  int64             `json:"count"`
	OrderID   string            `json:"order_num"`
	Side      domain.OrderSide  `json:"order_type"`
	Price     float64           `json:"price"`
	CreatedAt time.Time         `json:"created_at"`
}

// Validate checks the record before it is written.
func (o SubmittedOrder) Validate() error {
	if o.ReportID == "" {
		return fmt.Errorf("report id is required")
	}
	if o.Code == "" || o.OrderID == "" {
		return fmt.Errorf("product code and order number are required")
	}
	if o.Quantity <= 0 {
		return fmt.Errorf("count must be positive, got %d", o.Quantity)
	}
	if o.Side != domain.SideBuy && o.Side != domain.SideSell {
		return fmt.Errorf("invalid order type %q", o.Side)
	}
	return nil
}

// Request converts the order back into a broker request.
func (o SubmittedOrder) Request() domain.OrderRequest {
	return domain.OrderRequest{Code: o.Code, Market: o.Market, Quantity: o.Quantity, Price: o.Price}
}
