package testing

import (
	"database/sql"
	"testing"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/domain"
)

// NopLogger returns a disabled logger for tests.
func NopLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

// DomesticAccount returns a domestic account with a deposit and two
// positions, one of which (005930) is normally in the portfolio.
func DomesticAccount() *domain.AccountSummary {
	return &domain.AccountSummary{
		Deposit: 1_000_000,
		Holdings: []domain.Holding{
			{Code: "005930", Name: "Samsung Electronics", Market: domain.MarketKRX, Quantity: 10, Value: 700_000},
			{Code: "000660", Name: "SK hynix", Market: domain.MarketKRX, Quantity: 2, Value: 240_000},
		},
	}
}

// OverseasAccount returns a USD account holding SPY and QQQ.
func OverseasAccount() *domain.AccountSummary {
	return &domain.AccountSummary{
		Deposit: 5_000,
		Holdings: []domain.Holding{
			{Code: "SPY", Market: domain.MarketNYSE, Quantity: 4, Value: 1_800},
			{Code: "QQQ", Market: domain.MarketNASD, Quantity: 3, Value: 1_200},
		},
	}
}

// SeedProduct inserts one product and its portfolio entry into a config database.
func SeedProduct(t *testing.T, db *sql.DB, code, name string, market domain.MarketCode, current, weight float64, use bool) {
	t.Helper()

	_, err := db.Exec(`INSERT INTO product (code, name, market_code, current, base, quote_unit, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0)`, code, name, string(market), current, current, domain.QuoteUnit(market, current))
	if err != nil {
		t.Fatalf("Failed to seed product %s: %v", code, err)
	}

	useYN := 0
	if use {
		useYN = 1
	}
	_, err = db.Exec(`INSERT INTO portfolio (product_code, weight, use_yn, updated_at) VALUES (?, ?, ?, 0)`, code, weight, useYN)
	if err != nil {
		t.Fatalf("Failed to seed portfolio entry %s: %v", code, err)
	}
}
