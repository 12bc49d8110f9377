package domain

import "time"

// Broker-agnostic types exchanged with BrokerClient implementations.

// Holding is one position as reported by the broker at plan time.
type Holding struct {
	Code     string     // Instrument code
	Name     string     // Display name, when the broker reports one
	Market   MarketCode // Venue the position is held on
	Quantity float64    // Units held
	Value    float64    // Current market value in the market's currency
}

// AccountSummary is the account snapshot the planner works from.
type AccountSummary struct {
	Deposit    float64   // Idle cash in the target's currency
	Holdings   []Holding // Current positions
	TotalValue float64   // Broker-reported total (informational)
}

// Quote is a current price snapshot for one instrument.
type Quote struct {
	Current float64
	Minimum float64 // Day low
	Maximum float64 // Day high
	Opening float64
	Base    float64 // Previous close
}

// PriceBar is one daily history record.
type PriceBar struct {
	Date    time.Time
	Minimum float64
	Maximum float64
	Opening float64
	Closing float64
}

// OrderRequest is a buy or sell instruction. Price <= 0 means a market order.
type OrderRequest struct {
	Code     string
	Market   MarketCode
	Quantity int64
	Price    float64
}

// IsMarketOrder reports whether the request should execute at the prevailing price.
func (r OrderRequest) IsMarketOrder() bool {
	return r.Price <= 0
}

// OrderStatus is the reconciled state of one submitted order.
// Processed is nil when the broker lists the order as neither processed nor pending.
type OrderStatus struct {
	OrderID   string     `json:"order_num"`
	Code      string     `json:"product_code"`
	Market    MarketCode `json:"market_code"`
	Side      OrderSide  `json:"order_type"`
	Quantity  int64      `json:"count"`
	Processed *bool      `json:"processed"`
}

// Resolved reports whether the broker confirmed the order as processed.
func (s OrderStatus) Resolved() bool {
	return s.Processed != nil && *s.Processed
}

// State returns "processed", "pending" or "unknown".
func (s OrderStatus) State() string {
	switch {
	case s.Processed == nil:
		return "unknown"
	case *s.Processed:
		return "processed"
	default:
		return "pending"
	}
}

// CancelResult is the outcome of one cancellation attempt.
type CancelResult struct {
	OrderID   string `json:"order_num"`
	Cancelled bool   `json:"cancelled"`
	Error     string `json:"error,omitempty"`
}
