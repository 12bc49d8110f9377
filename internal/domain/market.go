// Package domain holds the broker-agnostic types shared by the planner, the
// order submitter, the reconciler and the broker adapters.
package domain

import (
	"fmt"
	"strings"
)

// MarketCode identifies the venue an instrument trades on.
type MarketCode string

const (
	MarketKRX  MarketCode = "KRX"  // Korea Exchange (domestic)
	MarketNASD MarketCode = "NASD" // NASDAQ
	MarketNYSE MarketCode = "NYSE" // New York Stock Exchange
	MarketAMEX MarketCode = "AMEX" // NYSE American
)

// OverseasMarkets lists every foreign venue in a stable order.
var OverseasMarkets = []MarketCode{MarketNASD, MarketNYSE, MarketAMEX}

var shortCodes = map[MarketCode]string{
	MarketNASD: "NAS",
	MarketNYSE: "NYS",
	MarketAMEX: "AMS",
}

// ParseMarketCode accepts both the long and the three-letter short forms.
func ParseMarketCode(s string) (MarketCode, error) {
	code := MarketCode(strings.ToUpper(strings.TrimSpace(s)))
	switch code {
	case MarketKRX, MarketNASD, MarketNYSE, MarketAMEX:
		return code, nil
	}
	for long, short := range shortCodes {
		if string(code) == short {
			return long, nil
		}
	}
	return "", &ConfigurationError{Field: "market_code", Reason: fmt.Sprintf("unknown market code %q", s)}
}

// ShortCode returns the short form used by the overseas order endpoints.
// Domestic codes are returned unchanged.
func (m MarketCode) ShortCode() string {
	if s, ok := shortCodes[m]; ok {
		return s
	}
	return string(m)
}

// IsDomestic reports whether the market is the home exchange.
func (m MarketCode) IsDomestic() bool {
	return m == MarketKRX
}

// Currency returns the trading currency of the market.
func (m MarketCode) Currency() string {
	if m.IsDomestic() {
		return "KRW"
	}
	return "USD"
}

// Target selects which half of the account a report rebalances.
type Target string

const (
	TargetDomestic Target = "domestic"
	TargetOverseas Target = "overseas"
)

// ParseTarget validates a target name.
func ParseTarget(s string) (Target, error) {
	switch Target(strings.ToLower(strings.TrimSpace(s))) {
	case TargetDomestic:
		return TargetDomestic, nil
	case TargetOverseas:
		return TargetOverseas, nil
	}
	return "", &ConfigurationError{
		Field:  "target",
		Reason: fmt.Sprintf("must be %q or %q, got %q", TargetDomestic, TargetOverseas, s),
	}
}

// Markets returns the market codes covered by the target.
func (t Target) Markets() []MarketCode {
	if t == TargetDomestic {
		return []MarketCode{MarketKRX}
	}
	return OverseasMarkets
}

// Includes reports whether the market belongs to the target.
func (t Target) Includes(m MarketCode) bool {
	return m.IsDomestic() == (t == TargetDomestic)
}

// Currency returns the unit plan values are expressed in.
func (t Target) Currency() string {
	if t == TargetDomestic {
		return "KRW"
	}
	return "USD"
}

// QuoteUnit returns the tick size for an instrument at the given price.
// US venues trade in cents; KRX ticks are tiered by price.
func QuoteUnit(market MarketCode, price float64) float64 {
	if !market.IsDomestic() {
		return 0.01
	}

	switch {
	case price < 1000:
		return 1
	case price < 5000:
		return 5
	case price < 10000:
		return 10
	case price < 50000:
		return 50
	case price < 100000:
		return 100
	case price < 500000:
		return 500
	default:
		return 1000
	}
}

// OrderSide is the direction of a submitted order.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// PriceStrategy selects how an order price is derived from a plan row.
type PriceStrategy string

const (
	StrategyMarket     PriceStrategy = "market"
	StrategyNDiff      PriceStrategy = "n_diff"
	StrategyRegression PriceStrategy = "regression"
)

// ParsePriceStrategy validates a strategy name. An empty string means market.
func ParsePriceStrategy(s string) (PriceStrategy, error) {
	switch PriceStrategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyMarket:
		return StrategyMarket, nil
	case StrategyNDiff:
		return StrategyNDiff, nil
	case StrategyRegression:
		return StrategyRegression, nil
	}
	return "", &ConfigurationError{Field: "how", Reason: fmt.Sprintf("unknown price strategy %q", s)}
}
