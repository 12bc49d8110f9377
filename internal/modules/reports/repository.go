package reports

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/database"
	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/modules/rebalancing"
)

// Repository persists reports, their plans and summaries in ledger.db.
type Repository struct {
	ledgerDB *sql.DB
	log      zerolog.Logger
	now      func() time.Time
}

const reportColumns = `id, report_name, account, target, test, created_time, status, created_at, updated_at`

// NewRepository creates a new report repository
func NewRepository(ledgerDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "reports").Logger(),
		now:      time.Now,
	}
}

// Save inserts the report. With deleteIfExists an existing report of the
// same name and created time is removed first, together with its plan and
// orders; otherwise ErrReportExists is returned.
func (r *Repository) Save(report *Report, deleteIfExists bool) error {
	now := r.now().UTC()
	report.CreatedAt = now
	report.UpdatedAt = now
	if report.Status == "" {
		report.Status = StatusCreated
	}

	return database.WithTransaction(r.ledgerDB, func(tx *sql.Tx) error {
		var existing string
		err := tx.QueryRow("SELECT id FROM reports WHERE report_name = ? AND created_time = ?",
			report.Name, report.CreatedTime).Scan(&existing)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("failed to check existing report: %w", err)
		case !deleteIfExists:
			return fmt.Errorf("%w: %s at %s", ErrReportExists, report.Name, report.CreatedTime)
		default:
			if err := deleteReport(tx, existing); err != nil {
				return err
			}
			r.log.Info().Str("report_name", report.Name).Str("created_time", report.CreatedTime).Msg("Replaced existing report")
		}

		_, err = tx.Exec(`INSERT INTO reports (`+reportColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			report.ID, report.Name, report.Account, string(report.Target), boolToInt(report.Test),
			report.CreatedTime, string(report.Status), now.Unix(), now.Unix())
		if err != nil {
			return fmt.Errorf("failed to insert report: %w", err)
		}
		return nil
	})
}

func deleteReport(tx *sql.Tx, id string) error {
	for _, table := range []string{"report_orders", "report_plan", "report_summary", "reports"} {
		column := "report_id"
		if table == "reports" {
			column = "id"
		}
		if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE %s = ?", table, column), id); err != nil {
			return fmt.Errorf("failed to delete from %s: %w", table, err)
		}
	}
	return nil
}

// Find returns the report with the name, limited to statuses when given.
// An empty createdTime selects the most recent one.
func (r *Repository) Find(name, createdTime string, statuses ...Status) (*Report, error) {
	query := "SELECT " + reportColumns + " FROM reports WHERE report_name = ?"
	args := []interface{}{name}

	if createdTime != "" {
		query += " AND created_time = ?"
		args = append(args, createdTime)
	}
	if len(statuses) > 0 {
		query += " AND status IN (?" + strings.Repeat(", ?", len(statuses)-1) + ")"
		for _, s := range statuses {
			args = append(args, string(s))
		}
	}
	query += " ORDER BY created_time DESC LIMIT 1"

	report, err := scanReport(r.ledgerDB.QueryRow(query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ReportNotFoundError{Name: name, CreatedTime: createdTime}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find report: %w", err)
	}
	return report, nil
}

// List returns every report, newest first.
func (r *Repository) List() ([]Report, error) {
	rows, err := r.ledgerDB.Query("SELECT " + reportColumns + " FROM reports ORDER BY created_time DESC, report_name")
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	var reports []Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, *report)
	}
	return reports, rows.Err()
}

// UpdateStatus moves a report to status. Moving to the current status is a
// no-op; moving backwards returns ErrStatusRegression.
func (r *Repository) UpdateStatus(report *Report, status Status) error {
	if status.rank() < 0 {
		return fmt.Errorf("unknown status %q", status)
	}
	if status.rank() < report.Status.rank() {
		return fmt.Errorf("%w: %s -> %s", ErrStatusRegression, report.Status, status)
	}
	if status == report.Status {
		return nil
	}

	now := r.now().UTC()
	if _, err := r.ledgerDB.Exec("UPDATE reports SET status = ?, updated_at = ? WHERE id = ?", string(status), now.Unix(), report.ID); err != nil {
		return fmt.Errorf("failed to update report status: %w", err)
	}

	r.log.Info().Str("report", report.Title()).Str("from", string(report.Status)).Str("to", string(status)).Msg("Report status updated")
	report.Status = status
	report.UpdatedAt = now
	return nil
}

// SavePlan replaces the stored plan and summary of a report in the summary's currency.
func (r *Repository) SavePlan(reportID string, summary rebalancing.Summary, rows []rebalancing.PlanRow) error {
	return database.WithTransaction(r.ledgerDB, func(tx *sql.Tx) error {
		for _, table := range []string{"report_plan", "report_summary"} {
			if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE report_id = ? AND currency = ?", table), reportID, summary.Currency); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}

		now := r.now().Unix()
		_, err := tx.Exec(`INSERT INTO report_summary (report_id, currency, deposit, total_amount, available_total_amount,
			planned_budge, asis_total_amount, tobe_total_amount, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			reportID, summary.Currency, summary.Deposit, summary.TotalValue, summary.UsableValue,
			summary.MarketBudget, summary.AsIsTotal, summary.ToBeTotal, now)
		if err != nil {
			return fmt.Errorf("failed to insert summary: %w", err)
		}

		stmt, err := tx.Prepare(`INSERT INTO report_plan (report_id, currency, position, product_code, product_name,
			market_code, current, weight, quote_unit, asis_count, asis_amount, planned_rate, planned_amount,
			tobe_count, tobe_amount, difference) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare plan insert: %w", err)
		}
		defer stmt.Close()

		for i, row := range rows {
			_, err := stmt.Exec(reportID, summary.Currency, i, row.Code, row.Name, string(row.Market),
				row.Current, row.Weight, row.QuoteUnit, row.AsIsQuantity, row.AsIsValue, row.PlannedShare,
				row.PlannedValue, row.ToBeQuantity, row.ToBeValue, row.Difference)
			if err != nil {
				return fmt.Errorf("failed to insert plan row %s: %w", row.Code, err)
			}
		}
		return nil
	})
}

// LoadPlan returns the stored plan in currency, or ErrPlanNotFound.
func (r *Repository) LoadPlan(reportID, currency string) (rebalancing.Summary, []rebalancing.PlanRow, error) {
	summary := rebalancing.Summary{Currency: currency}
	err := r.ledgerDB.QueryRow(`SELECT deposit, total_amount, available_total_amount, planned_budge,
		asis_total_amount, tobe_total_amount FROM report_summary WHERE report_id = ? AND currency = ?`, reportID, currency).
		Scan(&summary.Deposit, &summary.TotalValue, &summary.UsableValue, &summary.MarketBudget, &summary.AsIsTotal, &summary.ToBeTotal)
	if errors.Is(err, sql.ErrNoRows) {
		return summary, nil, ErrPlanNotFound
	}
	if err != nil {
		return summary, nil, fmt.Errorf("failed to load summary: %w", err)
	}

	rows, err := r.ledgerDB.Query(`SELECT product_code, product_name, market_code, current, weight, quote_unit,
		asis_count, asis_amount, planned_rate, planned_amount, tobe_count, tobe_amount, difference
		FROM report_plan WHERE report_id = ? AND currency = ? ORDER BY position`, reportID, currency)
	if err != nil {
		return summary, nil, fmt.Errorf("failed to load plan: %w", err)
	}
	defer rows.Close()

	plan := []rebalancing.PlanRow{}
	for rows.Next() {
		var (
			row    rebalancing.PlanRow
			market string
			asis   float64
		)
		if err := rows.Scan(&row.Code, &row.Name, &market, &row.Current, &row.Weight, &row.QuoteUnit,
			&asis, &row.AsIsValue, &row.PlannedShare, &row.PlannedValue, &row.ToBeQuantity, &row.ToBeValue, &row.Difference); err != nil {
			return summary, nil, fmt.Errorf("failed to scan plan row: %w", err)
		}
		row.Market = domain.MarketCode(market)
		row.AsIsQuantity = int64(asis)
		plan = append(plan, row)
	}
	return summary, plan, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReport(row rowScanner) (*Report, error) {
	var (
		report             Report
		target, status     string
		test               int
		createdAt, updated int64
	)
	if err := row.Scan(&report.ID, &report.Name, &report.Account, &target, &test,
		&report.CreatedTime, &status, &createdAt, &updated); err != nil {
		return nil, err
	}
	report.Target = domain.Target(target)
	report.Test = test != 0
	report.Status = Status(status)
	report.CreatedAt = time.Unix(createdAt, 0).UTC()
	report.UpdatedAt = time.Unix(updated, 0).UTC()
	return &report, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
