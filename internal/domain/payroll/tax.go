package payroll

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// ComputeTax applies a tax rule to taxable income. Breakdown amounts are
// exact; only the total is rounded.
func ComputeTax(rule TaxRule, income decimal.Decimal, rounding Rounding) (TaxResult, error) {
	result := TaxResult{
		RuleID:        rule.ID,
		RuleName:      rule.Name,
		Method:        rule.CalculationMethod,
		TaxableIncome: income,
		Breakdown:     []BracketTax{},
		Total:         decimal.Zero,
	}
	if !income.IsPositive() {
		return result, nil
	}

	brackets := sortedBrackets(rule.Brackets)
	if rule.CalculationMethod == TaxMethodFlatRate || len(brackets) == 0 {
		amount := percentOf(income, rule.Rate)
		result.Breakdown = append(result.Breakdown, BracketTax{From: decimal.Zero, Rate: rule.Rate, Amount: amount})
		result.Total = rounding.Apply(amount)
		return result, nil
	}

	total := decimal.Zero
	switch rule.CalculationMethod {
	case TaxMethodProgressive:
		for _, b := range brackets {
			if income.LessThanOrEqual(b.IncomeFrom) {
				break
			}
			upper := income
			if b.IncomeTo != nil && b.IncomeTo.LessThan(income) {
				upper = *b.IncomeTo
			}
			amount := percentOf(upper.Sub(b.IncomeFrom), b.Rate)
			result.Breakdown = append(result.Breakdown, BracketTax{From: b.IncomeFrom, To: b.IncomeTo, Rate: b.Rate, Amount: amount})
			total = total.Add(amount)
		}
	case TaxMethodThresholdBased:
		for _, b := range brackets {
			if income.LessThan(b.IncomeFrom) {
				break
			}
			if b.IncomeTo != nil && income.GreaterThanOrEqual(*b.IncomeTo) {
				continue
			}
			amount := percentOf(income, b.Rate)
			result.Breakdown = append(result.Breakdown, BracketTax{From: b.IncomeFrom, To: b.IncomeTo, Rate: b.Rate, Amount: amount})
			total = amount
			break
		}
	default:
		return TaxResult{}, fmt.Errorf("%w: unknown tax method %q", ErrInvalidCalculationMethod, rule.CalculationMethod)
	}
	result.Total = rounding.Apply(total)
	return result, nil
}

func sortedBrackets(brackets []TaxBracket) []TaxBracket {
	out := make([]TaxBracket, len(brackets))
	copy(out, brackets)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].IncomeFrom.LessThan(out[j].IncomeFrom)
	})
	return out
}

// SelectTaxRule returns the active tax rule effective at the given date for
// category. A rule scoped to the category outranks one scoped to "all". A nil
// rule with a nil error means no tax applies.
func SelectTaxRule(rules []TaxRule, category string, at time.Time) (*TaxRule, error) {
	var specific, general []TaxRule
	for _, rule := range rules {
		if rule.Status != RuleStatusActive || !rule.IsEffective(at) {
			continue
		}
		switch {
		case category != CategoryAll && rule.EmployeeCategory == category:
			specific = append(specific, rule)
		case rule.EmployeeCategory == CategoryAll:
			general = append(general, rule)
		}
	}
	for _, candidates := range [][]TaxRule{specific, general} {
		switch len(candidates) {
		case 0:
			continue
		case 1:
			selected := candidates[0]
			return &selected, nil
		default:
			ids := make([]string, 0, len(candidates))
			for _, c := range candidates {
				ids = append(ids, c.ID)
			}
			sort.Strings(ids)
			return nil, &AmbiguousRuleError{Category: category, RuleIDs: ids}
		}
	}
	return nil, nil
}
