package trading

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/domain"
)

// OrderRepository appends submitted orders to report_orders in ledger.db.
type OrderRepository struct {
	ledgerDB *sql.DB
	log      zerolog.Logger
}

const orderColumns = `id, report_id, product_code, market_code, count, order_num, order_type, price, created_at`

// NewOrderRepository creates a new order repository
func NewOrderRepository(ledgerDB *sql.DB, log zerolog.Logger) *OrderRepository {
	return &OrderRepository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "report_orders").Logger(),
	}
}

// Insert appends an order and sets its ID. CreatedAt defaults to now.
func (r *OrderRepository) Insert(order *SubmittedOrder) error {
	if err := order.Validate(); err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}

	res, err := r.ledgerDB.Exec(`
		INSERT INTO report_orders (report_id, product_code, market_code, count, order_num, order_type, price, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, order.ReportID, order.Code, string(order.Market), order.Quantity, order.OrderID, string(order.Side), order.Price, order.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert order %s: %w", order.OrderID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get order id: %w", err)
	}
	order.ID = id

	r.log.Debug().
		Str("report_id", order.ReportID).
		Str("order_num", order.OrderID).
		Msg("Order recorded")
	return nil
}

// ListByReport returns the orders of a report in submission order.
func (r *OrderRepository) ListByReport(reportID string) ([]SubmittedOrder, error) {
	rows, err := r.ledgerDB.Query("SELECT "+orderColumns+" FROM report_orders WHERE report_id = ? ORDER BY id", reportID)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []SubmittedOrder
	for rows.Next() {
		var (
			o         SubmittedOrder
			market    string
			side      string
			createdAt int64
		)
		if err := rows.Scan(&o.ID, &o.ReportID, &o.Code, &market, &o.Quantity, &o.OrderID, &side, &o.Price, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		o.Market = domain.MarketCode(market)
		o.Side = domain.OrderSide(side)
		o.CreatedAt = time.Unix(createdAt, 0).UTC()
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}
	return orders, nil
}
