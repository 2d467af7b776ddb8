package payroll

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// CalculateRule computes the deduction amount a rule yields for ctx. The
// result is rounded once, after every component has been summed.
func CalculateRule(rule DeductionRule, ctx PayrollContext, rounding Rounding) (decimal.Decimal, error) {
	return calculateRule(rule, ctx, rounding, ConditionEvaluator{})
}

func calculateRule(rule DeductionRule, ctx PayrollContext, rounding Rounding, eval ConditionEvaluator) (decimal.Decimal, error) {
	base := ctx.baseAmount(rule.BaseAmountType)

	var amount decimal.Decimal
	switch rule.CalculationMethod {
	case MethodFixed:
		if rule.Amount == nil {
			return decimal.Zero, fmt.Errorf("%w: rule %s has no amount", ErrInvalidCalculationMethod, rule.ID)
		}
		amount = *rule.Amount
	case MethodPercentage:
		if rule.Percentage == nil {
			return decimal.Zero, fmt.Errorf("%w: rule %s has no percentage", ErrInvalidCalculationMethod, rule.ID)
		}
		amount = percentOf(base, *rule.Percentage)
	case MethodTiered:
		if len(rule.Tiers) == 0 {
			return decimal.Zero, fmt.Errorf("%w: rule %s has no tiers", ErrInvalidCalculationMethod, rule.ID)
		}
		amount = tierAmount(rule.Tiers, base)
	case MethodConditional:
		if len(rule.Conditions) == 0 {
			return decimal.Zero, fmt.Errorf("%w: rule %s has no conditions", ErrInvalidCalculationMethod, rule.ID)
		}
		amount = decimal.Zero
		for _, cond := range rule.Conditions {
			if cond.RuleID == "" {
				cond.RuleID = rule.ID
			}
			if !eval.Evaluate(cond, ctx) {
				continue
			}
			switch {
			case cond.Amount != nil:
				amount = amount.Add(*cond.Amount)
			case cond.Percentage != nil:
				amount = amount.Add(percentOf(base, *cond.Percentage))
			}
		}
	default:
		return decimal.Zero, fmt.Errorf("%w: unknown method %q", ErrInvalidCalculationMethod, rule.CalculationMethod)
	}
	return rounding.Apply(amount), nil
}

// tierAmount picks the tier with the greatest lower bound not above base.
// A base below every tier yields zero.
func tierAmount(tiers []Tier, base decimal.Decimal) decimal.Decimal {
	var selected *Tier
	for i := range tiers {
		tier := &tiers[i]
		if tier.From.GreaterThan(base) {
			continue
		}
		if selected == nil || tier.From.GreaterThan(selected.From) {
			selected = tier
		}
	}
	if selected == nil {
		return decimal.Zero
	}
	if selected.FixedAmount != nil {
		return *selected.FixedAmount
	}
	if selected.Rate != nil {
		return percentOf(base, *selected.Rate)
	}
	return decimal.Zero
}

// Summarize folds deductions and tax into payroll totals. Only approved
// deductions reduce net pay; pending ones are reported separately.
func Summarize(gross decimal.Decimal, deductions []PayrollDeduction, tax *TaxResult) Totals {
	totals := Totals{
		Gross:              gross,
		ApprovedDeductions: decimal.Zero,
		PendingAdjustments: decimal.Zero,
		Tax:                decimal.Zero,
	}
	for _, d := range deductions {
		switch d.Status {
		case DeductionStatusApproved:
			totals.ApprovedDeductions = totals.ApprovedDeductions.Add(d.Amount)
		case DeductionStatusPending:
			totals.PendingAdjustments = totals.PendingAdjustments.Add(d.Amount)
		}
	}
	if tax != nil {
		totals.Tax = tax.Total
	}
	totals.Net = gross.Sub(totals.ApprovedDeductions).Sub(totals.Tax)
	return totals
}
