package payroll

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const deductionColumns = `
    id::text, run_id, employee_id, rule_id::text, rule_name, rule_type, amount, status,
    COALESCE(approved_by, ''), approved_at, notes, version, created_at`

func scanDeduction(row scanner) (PayrollDeduction, error) {
	var d PayrollDeduction
	err := row.Scan(&d.ID, &d.RunID, &d.EmployeeID, &d.RuleID, &d.RuleName, &d.RuleType, &d.Amount, &d.Status,
		&d.ApprovedBy, &d.ApprovedAt, &d.Notes, &d.Version, &d.CreatedAt)
	return d, err
}

func (s *Store) ListRunDeductions(ctx context.Context, tenantID, runID string, filter DeductionFilter) ([]PayrollDeduction, error) {
	query := `SELECT ` + deductionColumns + ` FROM payroll_deductions WHERE tenant_id = $1 AND run_id = $2`
	args := []any{tenantID, runID}
	if filter.EmployeeID != "" {
		args = append(args, filter.EmployeeID)
		query += fmt.Sprintf(" AND employee_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY employee_id, created_at, id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PayrollDeduction
	for rows.Next() {
		d, err := scanDeduction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// SaveEmployeeResult stores an evaluated employee. Deductions already present
// for (run, employee, rule) are left untouched and the stored rows are
// returned in their place, so two runs racing on the same employee converge
// on one record.
func (s *Store) SaveEmployeeResult(ctx context.Context, tenantID, runID string, input EmployeeInput, result EmployeeResult) (EmployeeResult, error) {
	err := withTx(ctx, s.DB, func(tx pgx.Tx) error {
		for i, d := range result.Deductions {
			if _, err := tx.Exec(ctx, `
        INSERT INTO payroll_deductions (
          id, tenant_id, run_id, employee_id, rule_id, rule_name, rule_type, amount,
          status, approved_by, approved_at, notes, version, created_at
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
        ON CONFLICT (tenant_id, run_id, employee_id, rule_id) DO NOTHING
      `, d.ID, tenantID, runID, d.EmployeeID, d.RuleID, d.RuleName, d.RuleType, d.Amount,
				d.Status, nullIfEmpty(d.ApprovedBy), d.ApprovedAt, d.Notes, max(d.Version, 1), d.CreatedAt); err != nil {
				return fmt.Errorf("insert deduction for rule %s: %w", d.RuleID, err)
			}
			stored, err := scanDeduction(tx.QueryRow(ctx, `
        SELECT `+deductionColumns+`
        FROM payroll_deductions
        WHERE tenant_id = $1 AND run_id = $2 AND employee_id = $3 AND rule_id::text = $4
      `, tenantID, runID, d.EmployeeID, d.RuleID))
			if err != nil {
				return err
			}
			result.Deductions[i] = stored
		}

		tax := result.Tax
		result.Totals = Summarize(input.Context.GrossAmount, result.Deductions, tax)

		breakdown := []BracketTax{}
		var taxRuleID any
		taxable := input.Context.taxableIncome()
		if tax != nil {
			breakdown = tax.Breakdown
			taxRuleID = tax.RuleID
			taxable = tax.TaxableIncome
		}
		breakdownJSON, err := json.Marshal(breakdown)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
      INSERT INTO payroll_run_results (
        tenant_id, run_id, employee_id, category, period_start, period_end, gross, taxable_income,
        tax_rule_id, tax, breakdown_json, approved_deductions, pending_adjustments, net
      ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
      ON CONFLICT (tenant_id, run_id, employee_id) DO UPDATE SET
        category = EXCLUDED.category,
        period_start = EXCLUDED.period_start,
        period_end = EXCLUDED.period_end,
        gross = EXCLUDED.gross,
        taxable_income = EXCLUDED.taxable_income,
        tax_rule_id = EXCLUDED.tax_rule_id,
        tax = EXCLUDED.tax,
        breakdown_json = EXCLUDED.breakdown_json,
        approved_deductions = EXCLUDED.approved_deductions,
        pending_adjustments = EXCLUDED.pending_adjustments,
        net = EXCLUDED.net,
        updated_at = now()
    `, tenantID, runID, input.EmployeeID, input.Category,
			dateArg(input.Context.PeriodStart), dateArg(input.Context.AsOf()),
			result.Totals.Gross, taxable, taxRuleID, result.Totals.Tax, breakdownJSON,
			result.Totals.ApprovedDeductions, result.Totals.PendingAdjustments, result.Totals.Net)
		return err
	})
	if err != nil {
		return EmployeeResult{}, err
	}
	return result, nil
}

func (s *Store) GetDeduction(ctx context.Context, tenantID, deductionID string) (PayrollDeduction, error) {
	d, err := scanDeduction(s.DB.QueryRow(ctx, `
    SELECT `+deductionColumns+`
    FROM payroll_deductions
    WHERE tenant_id = $1 AND id::text = $2
  `, tenantID, deductionID))
	if err != nil {
		return PayrollDeduction{}, notFound(err, ErrDeductionNotFound, deductionID)
	}
	return d, nil
}

// DecideDeduction locks the row, applies decide and writes the result back
// guarded by the version read under the lock.
func (s *Store) DecideDeduction(ctx context.Context, tenantID, deductionID string, decide DecideFunc) (before, after PayrollDeduction, err error) {
	err = withTx(ctx, s.DB, func(tx pgx.Tx) error {
		current, err := scanDeduction(tx.QueryRow(ctx, `
      SELECT `+deductionColumns+`
      FROM payroll_deductions
      WHERE tenant_id = $1 AND id::text = $2
      FOR UPDATE
    `, tenantID, deductionID))
		if err != nil {
			return notFound(err, ErrDeductionNotFound, deductionID)
		}
		next, err := decide(current)
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `
      UPDATE payroll_deductions
      SET status = $4, approved_by = $5, approved_at = $6, notes = $7, version = $8
      WHERE tenant_id = $1 AND id::text = $2 AND version = $3
    `, tenantID, deductionID, current.Version, next.Status, nullIfEmpty(next.ApprovedBy), next.ApprovedAt, next.Notes, next.Version)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: deduction %s", ErrConcurrentUpdate, deductionID)
		}
		if err := refreshRunTotals(ctx, tx, tenantID, current.RunID, current.EmployeeID); err != nil {
			return err
		}
		before, after = current, next
		return nil
	})
	return before, after, err
}

// refreshRunTotals recomputes the stored deduction subtotals and net after a
// decision moves an amount between pending and approved.
func refreshRunTotals(ctx context.Context, tx pgx.Tx, tenantID, runID, employeeID string) error {
	_, err := tx.Exec(ctx, `
    UPDATE payroll_run_results r
    SET approved_deductions = t.approved,
        pending_adjustments = t.pending,
        net = r.gross - t.approved - r.tax,
        updated_at = now()
    FROM (
      SELECT
        COALESCE(SUM(amount) FILTER (WHERE status = 'approved'), 0) AS approved,
        COALESCE(SUM(amount) FILTER (WHERE status = 'pending'), 0) AS pending
      FROM payroll_deductions
      WHERE tenant_id = $1 AND run_id = $2 AND employee_id = $3
    ) t
    WHERE r.tenant_id = $1 AND r.run_id = $2 AND r.employee_id = $3
  `, tenantID, runID, employeeID)
	return err
}

const runResultColumns = `
    run_id, employee_id, category, period_start, period_end, gross, taxable_income,
    COALESCE(tax_rule_id::text, ''), tax, breakdown_json, approved_deductions,
    pending_adjustments, net, created_at`

func scanRunResult(row scanner) (RunResult, error) {
	var r RunResult
	var breakdownJSON []byte
	if err := row.Scan(&r.RunID, &r.EmployeeID, &r.Category, &r.PeriodStart, &r.PeriodEnd, &r.Gross, &r.TaxableIncome,
		&r.TaxRuleID, &r.Tax, &breakdownJSON, &r.ApprovedDeductions, &r.PendingAdjustments, &r.Net, &r.CreatedAt); err != nil {
		return RunResult{}, err
	}
	if err := json.Unmarshal(breakdownJSON, &r.Breakdown); err != nil {
		return RunResult{}, fmt.Errorf("run %s employee %s breakdown: %w", r.RunID, r.EmployeeID, err)
	}
	return r, nil
}

func (s *Store) ListRunResults(ctx context.Context, tenantID, runID string) ([]RunResult, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+runResultColumns+`
    FROM payroll_run_results
    WHERE tenant_id = $1 AND run_id = $2
    ORDER BY employee_id
  `, tenantID, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunResult
	for rows.Next() {
		r, err := scanRunResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AnnualTotals sums the runs whose period ends inside the calendar year. The
// category is the one used by the latest run.
func (s *Store) AnnualTotals(ctx context.Context, tenantID, employeeID string, year int) (AnnualTotals, error) {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(1, 0, 0)

	totals := AnnualTotals{}
	err := s.DB.QueryRow(ctx, `
    SELECT
      COALESCE((
        SELECT category FROM payroll_run_results
        WHERE tenant_id = $1 AND employee_id = $2 AND period_end >= $3 AND period_end < $4
        ORDER BY period_end DESC, created_at DESC LIMIT 1
      ), ''),
      COUNT(*),
      COALESCE(SUM(gross), 0),
      COALESCE(SUM(taxable_income), 0),
      COALESCE(SUM(tax), 0)
    FROM payroll_run_results
    WHERE tenant_id = $1 AND employee_id = $2 AND period_end >= $3 AND period_end < $4
  `, tenantID, employeeID, start, end).Scan(&totals.Category, &totals.Runs, &totals.Gross, &totals.TaxableIncome, &totals.TaxWithheld)
	if err != nil {
		return AnnualTotals{}, err
	}
	return totals, nil
}
