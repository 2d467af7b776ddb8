package payroll

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
)

// Register is the printable view of a run: every stored deduction with its
// status, plus the per-employee totals.
type Register struct {
	RunID       string
	GeneratedAt time.Time
	Deductions  []PayrollDeduction
	Results     []RunResult
}

func (s *Service) Register(ctx context.Context, tenantID, runID string) (Register, error) {
	deductions, err := s.store.ListRunDeductions(ctx, tenantID, runID, DeductionFilter{})
	if err != nil {
		return Register{}, err
	}
	results, err := s.store.ListRunResults(ctx, tenantID, runID)
	if err != nil {
		return Register{}, err
	}
	if len(deductions) == 0 && len(results) == 0 {
		return Register{}, fmt.Errorf("%w: run %s", ErrNoRunResults, runID)
	}
	return Register{RunID: runID, GeneratedAt: s.engine.now().UTC(), Deductions: deductions, Results: results}, nil
}

var registerColumns = []string{"Employee", "Rule", "Type", "Amount", "Status", "Decided by", "Notes"}

func (r Register) rows() [][]string {
	out := make([][]string, 0, len(r.Deductions))
	for _, d := range r.Deductions {
		out = append(out, []string{
			d.EmployeeID,
			d.RuleName,
			d.RuleType,
			d.Amount.StringFixed(MinorUnits),
			d.Status,
			d.ApprovedBy,
			d.Notes,
		})
	}
	return out
}

// WritePDF renders the register as an A4 landscape PDF.
func (r Register) WritePDF(w io.Writer) error {
	widths := []float64{40, 60, 25, 30, 25, 35, 62}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, "Deduction register")
	pdf.Ln(10)
	pdf.SetFont("Helvetica", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Run: %s", r.RunID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", r.GeneratedAt.Format(time.RFC3339)))
	pdf.Ln(9)

	pdf.SetFont("Helvetica", "B", 9)
	for i, heading := range registerColumns {
		pdf.CellFormat(widths[i], 7, heading, "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Helvetica", "", 9)
	for _, row := range r.rows() {
		for i, value := range row {
			align := "L"
			if i == 3 {
				align = "R"
			}
			pdf.CellFormat(widths[i], 6, value, "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	if len(r.Results) > 0 {
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "B", 11)
		pdf.Cell(0, 8, "Employee totals")
		pdf.Ln(8)
		pdf.SetFont("Helvetica", "", 9)
		for _, res := range r.Results {
			pdf.Cell(0, 6, fmt.Sprintf("%s  gross %s  tax %s  approved %s  pending %s  net %s",
				res.EmployeeID,
				res.Gross.StringFixed(MinorUnits),
				res.Tax.StringFixed(MinorUnits),
				res.ApprovedDeductions.StringFixed(MinorUnits),
				res.PendingAdjustments.StringFixed(MinorUnits),
				res.Net.StringFixed(MinorUnits),
			))
			pdf.Ln(5)
		}
	}
	return pdf.Output(w)
}

// WriteXLSX writes a workbook with a Deductions sheet and a Totals sheet.
func (r Register) WriteXLSX(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	const deductionsSheet = "Deductions"
	if err := f.SetSheetName("Sheet1", deductionsSheet); err != nil {
		return err
	}
	if err := writeSheet(f, deductionsSheet, registerColumns, r.rows()); err != nil {
		return err
	}

	const totalsSheet = "Totals"
	if _, err := f.NewSheet(totalsSheet); err != nil {
		return err
	}
	totals := make([][]string, 0, len(r.Results))
	for _, res := range r.Results {
		totals = append(totals, []string{
			res.EmployeeID,
			res.Category,
			res.Gross.StringFixed(MinorUnits),
			res.TaxableIncome.StringFixed(MinorUnits),
			res.Tax.StringFixed(MinorUnits),
			res.ApprovedDeductions.StringFixed(MinorUnits),
			res.PendingAdjustments.StringFixed(MinorUnits),
			res.Net.StringFixed(MinorUnits),
		})
	}
	headings := []string{"Employee", "Category", "Gross", "Taxable", "Tax", "Approved", "Pending", "Net"}
	if err := writeSheet(f, totalsSheet, headings, totals); err != nil {
		return err
	}
	return f.Write(w)
}

func writeSheet(f *excelize.File, sheet string, headings []string, rows [][]string) error {
	for col, heading := range headings {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, heading); err != nil {
			return err
		}
	}
	for i, row := range rows {
		for col, value := range row {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return err
			}
		}
	}
	return nil
}
