package testing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/rebalancer/internal/domain"
)

// MockBroker is an in-memory domain.BrokerClient with call recording.
// Configure the exported fields before handing it to the code under test.
type MockBroker struct {
	mu sync.Mutex

	Summaries   map[domain.Target]*domain.AccountSummary
	SummaryErr  error
	Quotes      map[string]*domain.Quote
	QuoteErr    map[string]error
	History     map[string][]domain.PriceBar
	Rate        float64
	RateErr     error
	Processed   map[domain.MarketCode][]string
	Unprocessed map[domain.MarketCode][]string
	StatusErr   map[domain.MarketCode]error
	OrderErr    map[string]error // keyed by instrument code
	CancelErr   map[string]error // keyed by order id

	Buys             []domain.OrderRequest
	Sells            []domain.OrderRequest
	Cancelled        []string
	ProcessedCalls   map[domain.MarketCode]int
	UnprocessedCalls map[domain.MarketCode]int
	QuoteCalls       int

	nextID int
}

// NewMockBroker creates an empty mock broker.
func NewMockBroker() *MockBroker {
	return &MockBroker{
		Summaries:        make(map[domain.Target]*domain.AccountSummary),
		Quotes:           make(map[string]*domain.Quote),
		QuoteErr:         make(map[string]error),
		History:          make(map[string][]domain.PriceBar),
		Processed:        make(map[domain.MarketCode][]string),
		Unprocessed:      make(map[domain.MarketCode][]string),
		StatusErr:        make(map[domain.MarketCode]error),
		OrderErr:         make(map[string]error),
		CancelErr:        make(map[string]error),
		ProcessedCalls:   make(map[domain.MarketCode]int),
		UnprocessedCalls: make(map[domain.MarketCode]int),
	}
}

func (m *MockBroker) AccountSummary(ctx context.Context, target domain.Target) (*domain.AccountSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SummaryErr != nil {
		return nil, m.SummaryErr
	}
	s, ok := m.Summaries[target]
	if !ok {
		return &domain.AccountSummary{}, nil
	}
	cp := *s
	cp.Holdings = append([]domain.Holding(nil), s.Holdings...)
	return &cp, nil
}

func (m *MockBroker) CurrencyRate(ctx context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RateErr != nil {
		return 0, m.RateErr
	}
	return m.Rate, nil
}

func (m *MockBroker) Quote(ctx context.Context, code string, market domain.MarketCode) (*domain.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QuoteCalls++
	if err := m.QuoteErr[code]; err != nil {
		return nil, err
	}
	q, ok := m.Quotes[code]
	if !ok {
		return nil, fmt.Errorf("no quote for %s", code)
	}
	cp := *q
	return &cp, nil
}

func (m *MockBroker) PriceHistory(ctx context.Context, code string, market domain.MarketCode) ([]domain.PriceBar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.PriceBar(nil), m.History[code]...), nil
}

func (m *MockBroker) Buy(ctx context.Context, req domain.OrderRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.OrderErr[req.Code]; err != nil {
		return "", err
	}
	m.Buys = append(m.Buys, req)
	return m.newID(), nil
}

func (m *MockBroker) Sell(ctx context.Context, req domain.OrderRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.OrderErr[req.Code]; err != nil {
		return "", err
	}
	m.Sells = append(m.Sells, req)
	return m.newID(), nil
}

func (m *MockBroker) CancelOrder(ctx context.Context, orderID string, market domain.MarketCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.CancelErr[orderID]; err != nil {
		return err
	}
	m.Cancelled = append(m.Cancelled, orderID)
	return nil
}

func (m *MockBroker) ProcessedOrders(ctx context.Context, market domain.MarketCode, since time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ProcessedCalls[market]++
	if err := m.StatusErr[market]; err != nil {
		return nil, err
	}
	return append([]string(nil), m.Processed[market]...), nil
}

func (m *MockBroker) UnprocessedOrders(ctx context.Context, market domain.MarketCode) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UnprocessedCalls[market]++
	if err := m.StatusErr[market]; err != nil {
		return nil, err
	}
	return append([]string(nil), m.Unprocessed[market]...), nil
}

// SetProcessed moves order ids into the processed list of a market.
func (m *MockBroker) SetProcessed(market domain.MarketCode, ids ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Processed[market] = ids
}

// OrderCount returns the number of accepted buy and sell orders.
func (m *MockBroker) OrderCount() (buys, sells int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Buys), len(m.Sells)
}

func (m *MockBroker) newID() string {
	m.nextID++
	return fmt.Sprintf("ORD-%d", m.nextID)
}

var _ domain.BrokerClient = (*MockBroker)(nil)
