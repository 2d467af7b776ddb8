package payroll

import (
	"github.com/shopspring/decimal"
)

const (
	AdjustmentAdditionalPayment = "additional_payment"
	AdjustmentRefund            = "refund"
	AdjustmentNone              = "none"
)

type YearEndAdjustment struct {
	EmployeeID  string          `json:"employeeId"`
	Year        int             `json:"year"`
	AnnualGross decimal.Decimal `json:"annualGross"`
	AnnualTax   TaxResult       `json:"annualTax"`
	TaxWithheld decimal.Decimal `json:"taxWithheld"`
	Difference  decimal.Decimal `json:"difference"`
	Adjustment  string          `json:"adjustmentType"`
}

// ComputeYearEndAdjustment recomputes tax on the year's taxable income and
// compares it with what was withheld across the year's runs. A positive
// difference is owed by the employee; a negative one is refunded.
func ComputeYearEndAdjustment(rule TaxRule, employeeID string, year int, annualTaxable, withheld decimal.Decimal, rounding Rounding) (YearEndAdjustment, error) {
	tax, err := ComputeTax(rule, annualTaxable, rounding)
	if err != nil {
		return YearEndAdjustment{}, err
	}
	diff := tax.Total.Sub(withheld)
	kind := AdjustmentNone
	switch {
	case diff.IsPositive():
		kind = AdjustmentAdditionalPayment
	case diff.IsNegative():
		kind = AdjustmentRefund
	}
	return YearEndAdjustment{
		EmployeeID:  employeeID,
		Year:        year,
		AnnualGross: annualTaxable,
		AnnualTax:   tax,
		TaxWithheld: withheld,
		Difference:  diff,
		Adjustment:  kind,
	}, nil
}

// CategoryTaxSummary aggregates stored run results for one employee category.
type CategoryTaxSummary struct {
	Category       string          `json:"category"`
	Employees      int             `json:"employees"`
	TotalGross     decimal.Decimal `json:"totalGross"`
	TotalTaxable   decimal.Decimal `json:"totalTaxable"`
	TotalTax       decimal.Decimal `json:"totalTax"`
	AverageTaxRate decimal.Decimal `json:"averageTaxRate"`
}

// SummarizeTax builds per-category tax figures. The average rate is tax over
// taxable income as a percentage, rounded to two places.
func SummarizeTax(results []RunResult) []CategoryTaxSummary {
	byCategory := map[string]*CategoryTaxSummary{}
	var order []string
	for _, r := range results {
		s, ok := byCategory[r.Category]
		if !ok {
			s = &CategoryTaxSummary{Category: r.Category}
			byCategory[r.Category] = s
			order = append(order, r.Category)
		}
		s.Employees++
		s.TotalGross = s.TotalGross.Add(r.Gross)
		s.TotalTaxable = s.TotalTaxable.Add(r.TaxableIncome)
		s.TotalTax = s.TotalTax.Add(r.Tax)
	}
	out := make([]CategoryTaxSummary, 0, len(order))
	for _, category := range order {
		s := byCategory[category]
		if s.TotalTaxable.IsPositive() {
			s.AverageTaxRate = s.TotalTax.Div(s.TotalTaxable).Mul(hundred).Round(2)
		}
		out = append(out, *s)
	}
	return out
}
