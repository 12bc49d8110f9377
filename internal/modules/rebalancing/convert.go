package rebalancing

import "math"

// ConvertSummary returns the summary in won, each figure truncated.
func ConvertSummary(s Summary, rate float64) Summary {
	won := func(v float64) float64 { return math.Trunc(v * rate) }
	return Summary{
		Currency:     "KRW",
		Deposit:      won(s.Deposit),
		TotalValue:   won(s.TotalValue),
		UsableValue:  won(s.UsableValue),
		MarketBudget: won(s.MarketBudget),
		AsIsTotal:    won(s.AsIsTotal),
		ToBeTotal:    won(s.ToBeTotal),
	}
}

// ConvertRows returns copies of rows with the monetary columns in won.
// Quantities, weights and shares are unchanged.
func ConvertRows(rows []PlanRow, rate float64) []PlanRow {
	out := make([]PlanRow, len(rows))
	for i, r := range rows {
		r.Current = math.Trunc(r.Current * rate)
		r.AsIsValue = math.Trunc(r.AsIsValue * rate)
		r.PlannedValue = math.Trunc(r.PlannedValue * rate)
		r.ToBeValue = math.Trunc(r.ToBeValue * rate)
		out[i] = r
	}
	return out
}
