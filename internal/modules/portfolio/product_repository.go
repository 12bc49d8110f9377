package portfolio

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/database"
	"github.com/aristath/rebalancer/internal/domain"
)

// ProductRepository handles the product table in config.db.
type ProductRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewProductRepository creates a new product repository
func NewProductRepository(db *sql.DB, log zerolog.Logger) *ProductRepository {
	return &ProductRepository{
		db:  db,
		log: log.With().Str("repo", "product").Logger(),
	}
}

const productColumns = `code, name, market_code, current, minimum, maximum, opening, base, quote_unit, updated_at`

// GetByCode returns a product, or nil if it does not exist.
func (r *ProductRepository) GetByCode(code string) (*Product, error) {
	row := r.db.QueryRow("SELECT "+productColumns+" FROM product WHERE code = ?", code)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product %s: %w", code, err)
	}
	return p, nil
}

// List returns the products traded in the target's markets, ordered by code.
func (r *ProductRepository) List(target domain.Target) ([]Product, error) {
	markets := target.Markets()
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(markets)), ",")
	args := make([]interface{}, len(markets))
	for i, m := range markets {
		args[i] = string(m)
	}

	rows, err := r.db.Query(
		"SELECT "+productColumns+" FROM product WHERE market_code IN ("+placeholders+") ORDER BY code",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}
	return products, nil
}

// Upsert inserts a product or replaces its name, market and prices.
func (r *ProductRepository) Upsert(p Product) error {
	if p.QuoteUnit <= 0 {
		p.QuoteUnit = domain.QuoteUnit(p.Market, p.Current)
	}
	_, err := r.db.Exec(`
		INSERT INTO product (code, name, market_code, current, minimum, maximum, opening, base, quote_unit, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			name = excluded.name,
			market_code = excluded.market_code,
			current = excluded.current,
			minimum = excluded.minimum,
			maximum = excluded.maximum,
			opening = excluded.opening,
			base = excluded.base,
			quote_unit = excluded.quote_unit,
			updated_at = excluded.updated_at
	`, p.Code, p.Name, string(p.Market), p.Current, p.Minimum, p.Maximum, p.Opening, p.Base, p.QuoteUnit, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert product %s: %w", p.Code, err)
	}
	return nil
}

// UpdatePrices writes the price columns of every product in one transaction.
func (r *ProductRepository) UpdatePrices(products []Product) error {
	now := time.Now().Unix()
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			UPDATE product
			SET current = ?, minimum = ?, maximum = ?, opening = ?, base = ?, quote_unit = ?, updated_at = ?
			WHERE code = ?
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare price update: %w", err)
		}
		defer stmt.Close()

		for _, p := range products {
			if _, err := stmt.Exec(p.Current, p.Minimum, p.Maximum, p.Opening, p.Base, p.QuoteUnit, now, p.Code); err != nil {
				return fmt.Errorf("failed to update prices of %s: %w", p.Code, err)
			}
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProduct(row rowScanner) (*Product, error) {
	var (
		p         Product
		market    string
		updatedAt int64
	)
	if err := row.Scan(&p.Code, &p.Name, &market, &p.Current, &p.Minimum, &p.Maximum,
		&p.Opening, &p.Base, &p.QuoteUnit, &updatedAt); err != nil {
		return nil, err
	}
	p.Market = domain.MarketCode(market)
	p.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &p, nil
}
