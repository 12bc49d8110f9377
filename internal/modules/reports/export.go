package reports

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/modules/rebalancing"
	"github.com/aristath/rebalancer/internal/modules/trading"
)

// Export kinds, also the CSV file stems.
const (
	ExportPlan       = "plan"
	ExportSummary    = "summary"
	ExportPlanWon    = "plan_won"
	ExportSummaryWon = "summary_won"
	ExportOrders     = "orders"
)

// ExportKinds lists every export in archive order.
var ExportKinds = []string{ExportSummary, ExportPlan, ExportSummaryWon, ExportPlanWon, ExportOrders}

var (
	summaryHeader = []string{"created_time", "deposit", "total_amount", "available_total_amount", "planned_budge", "asis_total_amount", "tobe_total_amount"}
	planHeader    = []string{"product_code", "product_name", "market_code", "current", "weight", "quote_unit", "asis_count", "asis_amount", "planned_rate", "planned_amount", "tobe_count", "tobe_amount", "difference"}
	ordersHeader  = []string{"product_code", "market_code", "count", "order_num", "order_type", "price"}
)

// ExportCSV writes one export of the report to w.
func (s *Service) ExportCSV(name, createdTime, kind string, w io.Writer) error {
	report, err := s.repo.Find(name, createdTime)
	if err != nil {
		return err
	}
	return s.writeExport(report, kind, w)
}

// Exports renders every available export of a report, keyed by file name.
// Plans that were never made and won views of domestic reports are skipped.
func (s *Service) Exports(report *Report) (map[string][]byte, error) {
	files := make(map[string][]byte, len(ExportKinds))
	for _, kind := range ExportKinds {
		var buf bytes.Buffer
		err := s.writeExport(report, kind, &buf)
		if errors.Is(err, ErrPlanNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to export %s: %w", kind, err)
		}
		files[kind+".csv"] = buf.Bytes()
	}
	return files, nil
}

func (s *Service) writeExport(report *Report, kind string, w io.Writer) error {
	currency := report.Target.Currency()
	switch kind {
	case ExportPlanWon, ExportSummaryWon:
		if report.Target != domain.TargetOverseas {
			return fmt.Errorf("%w: %s has no won view", ErrPlanNotFound, report.Title())
		}
		currency = "KRW"
	case ExportPlan, ExportSummary:
	case ExportOrders:
		orders, err := s.orders.ListByReport(report.ID)
		if err != nil {
			return err
		}
		return writeOrders(w, orders)
	default:
		return &domain.ConfigurationError{Field: "kind", Reason: fmt.Sprintf("unknown export %q", kind)}
	}

	summary, rows, err := s.repo.LoadPlan(report.ID, currency)
	if err != nil {
		return err
	}
	if kind == ExportSummary || kind == ExportSummaryWon {
		return writeSummary(w, report.CreatedTime, summary)
	}
	return writePlan(w, rows)
}

func writeSummary(w io.Writer, createdTime string, s rebalancing.Summary) error {
	return writeCSV(w, summaryHeader, [][]string{{
		createdTime,
		formatFloat(s.Deposit),
		formatFloat(s.TotalValue),
		formatFloat(s.UsableValue),
		formatFloat(s.MarketBudget),
		formatFloat(s.AsIsTotal),
		formatFloat(s.ToBeTotal),
	}})
}

func writePlan(w io.Writer, rows []rebalancing.PlanRow) error {
	records := make([][]string, 0, len(rows))
	for _, r := range rows {
		records = append(records, []string{
			r.Code,
			r.Name,
			string(r.Market),
			formatFloat(r.Current),
			formatFloat(r.Weight),
			formatFloat(r.QuoteUnit),
			strconv.FormatInt(r.AsIsQuantity, 10),
			formatFloat(r.AsIsValue),
			formatFloat(r.PlannedShare),
			formatFloat(r.PlannedValue),
			strconv.FormatInt(r.ToBeQuantity, 10),
			formatFloat(r.ToBeValue),
			strconv.FormatInt(r.Difference, 10),
		})
	}
	return writeCSV(w, planHeader, records)
}

func writeOrders(w io.Writer, orders []trading.SubmittedOrder) error {
	records := make([][]string, 0, len(orders))
	for _, o := range orders {
		records = append(records, []string{
			o.Code,
			string(o.Market),
			strconv.FormatInt(o.Quantity, 10),
			o.OrderID,
			string(o.Side),
			formatFloat(o.Price),
		})
	}
	return writeCSV(w, ordersHeader, records)
}

func writeCSV(w io.Writer, header []string, records [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
