package portfolio

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/domain"
)

// EntryRepository handles target weights in the portfolio table.
type EntryRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewEntryRepository creates a new portfolio entry repository
func NewEntryRepository(db *sql.DB, log zerolog.Logger) *EntryRepository {
	return &EntryRepository{
		db:  db,
		log: log.With().Str("repo", "portfolio_entry").Logger(),
	}
}

// Upsert sets the weight and inclusion flag of a product.
func (r *EntryRepository) Upsert(code string, weight float64, use bool) error {
	_, err := r.db.Exec(`
		INSERT INTO portfolio (product_code, weight, use_yn, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(product_code) DO UPDATE SET
			weight = excluded.weight,
			use_yn = excluded.use_yn,
			updated_at = excluded.updated_at
	`, code, weight, boolToInt(use), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert portfolio entry %s: %w", code, err)
	}
	return nil
}

// ListIncluded returns the entries with use_yn set for the target's markets.
func (r *EntryRepository) ListIncluded(target domain.Target) ([]domain.PortfolioEntry, error) {
	return r.list(target, true)
}

// ListAll returns every entry of the target's markets.
func (r *EntryRepository) ListAll(target domain.Target) ([]domain.PortfolioEntry, error) {
	return r.list(target, false)
}

func (r *EntryRepository) list(target domain.Target, onlyIncluded bool) ([]domain.PortfolioEntry, error) {
	markets := target.Markets()
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(markets)), ",")
	args := make([]interface{}, 0, len(markets))
	for _, m := range markets {
		args = append(args, string(m))
	}

	query := `
		SELECT p.code, p.name, p.market_code, p.current, p.quote_unit, e.weight, e.use_yn
		FROM portfolio e
		JOIN product p ON p.code = e.product_code
		WHERE p.market_code IN (` + placeholders + `)`
	if onlyIncluded {
		query += " AND e.use_yn = 1"
	}
	query += " ORDER BY p.code"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolio entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.PortfolioEntry
	for rows.Next() {
		var (
			e      domain.PortfolioEntry
			market string
			use    int
		)
		if err := rows.Scan(&e.Code, &e.Name, &market, &e.Current, &e.QuoteUnit, &e.Weight, &use); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio entry: %w", err)
		}
		e.Market = domain.MarketCode(market)
		e.Use = use == 1
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolio entries: %w", err)
	}
	return entries, nil
}

// Update changes the fields present in u. Returns false if the entry does not exist.
func (r *EntryRepository) Update(code string, u EntryUpdate) (bool, error) {
	sets := []string{"updated_at = ?"}
	args := []interface{}{time.Now().Unix()}
	if u.Weight != nil {
		if *u.Weight < 0 {
			return false, &domain.ConfigurationError{Field: "weight", Reason: "must not be negative"}
		}
		sets = append(sets, "weight = ?")
		args = append(args, *u.Weight)
	}
	if u.Use != nil {
		sets = append(sets, "use_yn = ?")
		args = append(args, boolToInt(*u.Use))
	}
	args = append(args, code)

	res, err := r.db.Exec("UPDATE portfolio SET "+strings.Join(sets, ", ")+" WHERE product_code = ?", args...)
	if err != nil {
		return false, fmt.Errorf("failed to update portfolio entry %s: %w", code, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
