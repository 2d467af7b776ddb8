package payroll

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return v
}

type issues []ValidationIssue

func (is *issues) add(field, reason string, args ...any) {
	*is = append(*is, ValidationIssue{Field: field, Reason: fmt.Sprintf(reason, args...)})
}

func structIssues(value any) (issues, error) {
	err := structValidator.Struct(value)
	if err == nil {
		return nil, nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return nil, err
	}
	var out issues
	for _, fe := range fieldErrs {
		reason := fe.Tag()
		if fe.Param() != "" {
			reason += "=" + fe.Param()
		}
		out.add(fe.Namespace(), "%s", reason)
	}
	return out, nil
}

func invalid(kind error, found issues) error {
	if len(found) == 0 {
		return nil
	}
	return &ValidationError{Kind: kind, Issues: found}
}

// ValidateRule checks a deduction rule before it is stored. Shape problems
// are reported as ErrInvalidDefinition; missing method data as
// ErrInvalidCalculationMethod.
func ValidateRule(rule DeductionRule) error {
	shape, err := structIssues(rule)
	if err != nil {
		return err
	}
	if rule.EffectiveUntil != nil && dateOnly(*rule.EffectiveUntil).Before(dateOnly(rule.EffectiveFrom)) {
		shape.add("effectiveUntil", "must not be before effectiveFrom")
	}
	if err := invalid(ErrInvalidDefinition, shape); err != nil {
		return err
	}

	var method issues
	switch rule.CalculationMethod {
	case MethodFixed:
		if rule.Amount == nil {
			method.add("amount", "required for fixed rules")
		} else if rule.Amount.IsNegative() {
			method.add("amount", "must not be negative")
		}
	case MethodPercentage:
		if rule.Percentage == nil {
			method.add("percentage", "required for percentage rules")
		} else if !validPercent(*rule.Percentage) {
			method.add("percentage", "must be between 0 and 100")
		}
	case MethodTiered:
		validateTiers(rule.Tiers, &method)
	case MethodConditional:
		validateConditions(rule.Conditions, &method)
	}
	return invalid(ErrInvalidCalculationMethod, method)
}

func validateTiers(tiers []Tier, found *issues) {
	if len(tiers) == 0 {
		found.add("tiers", "required for tiered rules")
		return
	}
	seen := map[string]bool{}
	for i, tier := range tiers {
		field := fmt.Sprintf("tiers[%d]", i)
		if tier.From.IsNegative() {
			found.add(field+".from", "must not be negative")
		}
		key := tier.From.String()
		if seen[key] {
			found.add(field+".from", "duplicates another tier")
		}
		seen[key] = true
		switch {
		case tier.Rate != nil && tier.FixedAmount != nil:
			found.add(field, "set either rate or fixedAmount, not both")
		case tier.Rate != nil:
			if !validPercent(*tier.Rate) {
				found.add(field+".rate", "must be between 0 and 100")
			}
		case tier.FixedAmount != nil:
			if tier.FixedAmount.IsNegative() {
				found.add(field+".fixedAmount", "must not be negative")
			}
		default:
			found.add(field, "needs a rate or a fixedAmount")
		}
	}
}

func validateConditions(conditions []DeductionCondition, found *issues) {
	if len(conditions) == 0 {
		found.add("conditions", "required for conditional rules")
		return
	}
	for i, cond := range conditions {
		field := fmt.Sprintf("conditions[%d]", i)
		if cond.Operator == "" || !slices.Contains(ConditionOperators, cond.Operator) {
			found.add(field+".operator", "unsupported operator %q", cond.Operator)
		}
		switch cond.Operator {
		case OpIn, OpNotIn:
			if cond.Value.Kind != ValueList || len(cond.Value.List) == 0 {
				found.add(field+".value", "operator %s needs a non-empty list", cond.Operator)
			}
		case OpGt, OpLt, OpGte, OpLte:
			if !isNumericField(cond.Field) {
				found.add(field+".operator", "operator %s only applies to numeric fields", cond.Operator)
			}
			fallthrough
		default:
			if cond.Value.Kind != ValueScalar || cond.Value.Scalar == "" {
				found.add(field+".value", "operator %s needs a single value", cond.Operator)
			}
		}
		if isNumericField(cond.Field) {
			for _, raw := range conditionValues(cond.Value) {
				if _, err := decimal.NewFromString(raw); err != nil {
					found.add(field+".value", "%q is not numeric", raw)
				}
			}
		}
		switch {
		case cond.Amount != nil && cond.Percentage != nil:
			found.add(field, "set either amount or percentage, not both")
		case cond.Amount != nil:
			if cond.Amount.IsNegative() {
				found.add(field+".amount", "must not be negative")
			}
		case cond.Percentage != nil:
			if !validPercent(*cond.Percentage) {
				found.add(field+".percentage", "must be between 0 and 100")
			}
		default:
			found.add(field, "needs an amount or a percentage")
		}
	}
}

func conditionValues(v ConditionValue) []string {
	if v.Kind == ValueList {
		return v.List
	}
	if v.Scalar == "" {
		return nil
	}
	return []string{v.Scalar}
}

// ValidateTemplate rejects templates whose order values collide or that list
// a rule twice.
func ValidateTemplate(tpl DeductionTemplate) error {
	shape, err := structIssues(tpl)
	if err != nil {
		return err
	}
	seenRule := map[string]bool{}
	for i, entry := range tpl.Rules {
		if seenRule[entry.RuleID] {
			shape.add(fmt.Sprintf("rules[%d].ruleId", i), "rule listed twice")
		}
		seenRule[entry.RuleID] = true
	}
	if err := invalid(ErrInvalidDefinition, shape); err != nil {
		return err
	}

	var order issues
	seenOrder := map[int]bool{}
	for i, entry := range tpl.Rules {
		if seenOrder[entry.Order] {
			order.add(fmt.Sprintf("rules[%d].order", i), "order %d used twice", entry.Order)
		}
		seenOrder[entry.Order] = true
	}
	return invalid(ErrDuplicateTemplateOrder, order)
}

// ValidateTaxRule checks rate bounds and that brackets partition income:
// each bracket starts where the previous one ends and only the last is open.
func ValidateTaxRule(rule TaxRule) error {
	shape, err := structIssues(rule)
	if err != nil {
		return err
	}
	if rule.EffectiveUntil != nil && dateOnly(*rule.EffectiveUntil).Before(dateOnly(rule.EffectiveFrom)) {
		shape.add("effectiveUntil", "must not be before effectiveFrom")
	}
	if !validPercent(rule.Rate) {
		shape.add("rate", "must be between 0 and 100")
	}
	if rule.CalculationMethod == TaxMethodThresholdBased && len(rule.Brackets) == 0 {
		shape.add("brackets", "required for threshold_based rules")
	}
	for i, b := range rule.Brackets {
		if !validPercent(b.Rate) {
			shape.add(fmt.Sprintf("brackets[%d].rate", i), "must be between 0 and 100")
		}
	}
	if err := invalid(ErrInvalidDefinition, shape); err != nil {
		return err
	}

	var partition issues
	brackets := sortedBrackets(rule.Brackets)
	for i, b := range brackets {
		field := fmt.Sprintf("brackets[%d]", i)
		if b.IncomeFrom.IsNegative() {
			partition.add(field+".incomeFrom", "must not be negative")
		}
		last := i == len(brackets)-1
		if b.IncomeTo == nil {
			if !last {
				partition.add(field+".incomeTo", "only the last bracket may be open-ended")
			}
		} else {
			if last {
				partition.add(field+".incomeTo", "the last bracket must be open-ended")
			}
			if !b.IncomeTo.GreaterThan(b.IncomeFrom) {
				partition.add(field+".incomeTo", "must be greater than incomeFrom")
			}
		}
		if i > 0 {
			prev := brackets[i-1]
			if prev.IncomeTo != nil && !prev.IncomeTo.Equal(b.IncomeFrom) {
				if prev.IncomeTo.LessThan(b.IncomeFrom) {
					partition.add(field+".incomeFrom", "gap after %s", prev.IncomeTo.String())
				} else {
					partition.add(field+".incomeFrom", "overlaps the previous bracket")
				}
			}
		}
	}
	return invalid(ErrBracketGapOrOverlap, partition)
}

// ValidateEmployee checks one batch input.
func ValidateEmployee(emp EmployeeInput) error {
	shape, err := structIssues(emp)
	if err != nil {
		return err
	}
	ctx := emp.Context
	if !ctx.PeriodStart.IsZero() && !ctx.PeriodEnd.IsZero() && ctx.PeriodEnd.Before(ctx.PeriodStart) {
		shape.add("context.periodEnd", "must not be before periodStart")
	}
	if ctx.AsOf().IsZero() {
		shape.add("context.periodEnd", "a payroll period is required")
	}
	return invalid(ErrInvalidDefinition, shape)
}

func validPercent(v decimal.Decimal) bool {
	return !v.IsNegative() && v.LessThanOrEqual(hundred)
}
