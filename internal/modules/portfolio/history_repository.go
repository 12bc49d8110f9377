package portfolio

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/database"
)

// HistoryRepository handles product_history in history.db.
type HistoryRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sql.DB, log zerolog.Logger) *HistoryRepository {
	return &HistoryRepository{
		db:  db,
		log: log.With().Str("repo", "product_history").Logger(),
	}
}

// Replace drops the stored history of a product and inserts rows, atomically.
func (r *HistoryRepository) Replace(code string, rows []HistoryRow) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM product_history WHERE product_code = ?", code); err != nil {
			return fmt.Errorf("failed to clear history of %s: %w", code, err)
		}

		stmt, err := tx.Prepare(`
			INSERT OR REPLACE INTO product_history
				(product_code, product_name, standard_date, minimum, maximum, opening, closing)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare history insert: %w", err)
		}
		defer stmt.Close()

		for _, h := range rows {
			if _, err := stmt.Exec(code, h.ProductName, h.StandardDate, h.Minimum, h.Maximum, h.Opening, h.Closing); err != nil {
				return fmt.Errorf("failed to insert history %s/%s: %w", code, h.StandardDate, err)
			}
		}
		return nil
	})
}

// List returns the history of a product, newest first.
func (r *HistoryRepository) List(code string) ([]HistoryRow, error) {
	rows, err := r.db.Query(`
		SELECT product_code, product_name, standard_date, minimum, maximum, opening, closing
		FROM product_history
		WHERE product_code = ?
		ORDER BY standard_date DESC
	`, code)
	if err != nil {
		return nil, fmt.Errorf("failed to query history of %s: %w", code, err)
	}
	defer rows.Close()

	var history []HistoryRow
	for rows.Next() {
		var h HistoryRow
		if err := rows.Scan(&h.ProductCode, &h.ProductName, &h.StandardDate, &h.Minimum, &h.Maximum, &h.Opening, &h.Closing); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		history = append(history, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}
	return history, nil
}
