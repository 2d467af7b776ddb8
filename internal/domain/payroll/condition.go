package payroll

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
)

type fieldValue struct {
	numeric bool
	number  decimal.Decimal
	text    string
}

func resolveField(ctx PayrollContext, field string) (fieldValue, error) {
	switch field {
	case FieldGrossAmount:
		return fieldValue{numeric: true, number: ctx.GrossAmount}, nil
	case FieldBasicSalary:
		return fieldValue{numeric: true, number: ctx.BasicSalary}, nil
	case FieldYearsOfService:
		return fieldValue{numeric: true, number: ctx.YearsOfService}, nil
	case FieldDepartment:
		return textField(field, ctx.Department)
	case FieldDesignation:
		return textField(field, ctx.Designation)
	case FieldEmploymentType:
		return textField(field, ctx.EmploymentType)
	default:
		return fieldValue{}, fmt.Errorf("%w: unknown field %q", ErrConditionFieldUnresolved, field)
	}
}

func textField(field, value string) (fieldValue, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fieldValue{}, fmt.Errorf("%w: %s missing from payroll context", ErrConditionFieldUnresolved, field)
	}
	return fieldValue{text: value}, nil
}

// EvaluateCondition reports whether cond holds for ctx. A non-nil error means
// the condition could not be evaluated; the result is then always false.
func EvaluateCondition(cond DeductionCondition, ctx PayrollContext) (bool, error) {
	actual, err := resolveField(ctx, cond.Field)
	if err != nil {
		return false, err
	}

	switch cond.Operator {
	case OpIn, OpNotIn:
		if cond.Value.Kind != ValueList {
			return false, fmt.Errorf("%w: operator %s needs a list value", ErrInvalidDefinition, cond.Operator)
		}
		found := false
		for _, candidate := range cond.Value.List {
			eq, err := actual.equals(candidate)
			if err != nil {
				return false, err
			}
			if eq {
				found = true
				break
			}
		}
		if cond.Operator == OpIn {
			return found, nil
		}
		return !found, nil
	case OpEq, OpGt, OpLt, OpGte, OpLte:
		if cond.Value.Kind != ValueScalar {
			return false, fmt.Errorf("%w: operator %s needs a scalar value", ErrInvalidDefinition, cond.Operator)
		}
		cmp, err := actual.compare(cond.Value.Scalar)
		if err != nil {
			return false, err
		}
		switch cond.Operator {
		case OpEq:
			return cmp == 0, nil
		case OpGt:
			return cmp > 0, nil
		case OpLt:
			return cmp < 0, nil
		case OpGte:
			return cmp >= 0, nil
		default:
			return cmp <= 0, nil
		}
	default:
		return false, fmt.Errorf("%w: unsupported operator %q", ErrInvalidDefinition, cond.Operator)
	}
}

func (f fieldValue) compare(raw string) (int, error) {
	if f.numeric {
		expected, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not numeric", ErrInvalidDefinition, raw)
		}
		return f.number.Cmp(expected), nil
	}
	return strings.Compare(f.text, strings.TrimSpace(raw)), nil
}

func (f fieldValue) equals(raw string) (bool, error) {
	cmp, err := f.compare(raw)
	if err != nil {
		return false, err
	}
	return cmp == 0, nil
}

// ConditionEvaluator wraps EvaluateCondition and records evaluation failures
// as configuration warnings instead of surfacing them.
type ConditionEvaluator struct {
	Logger *slog.Logger
}

func (e ConditionEvaluator) Evaluate(cond DeductionCondition, ctx PayrollContext) bool {
	ok, err := EvaluateCondition(cond, ctx)
	if err != nil {
		e.logger().Warn("deduction condition not evaluated",
			"ruleId", cond.RuleID,
			"conditionId", cond.ID,
			"field", cond.Field,
			"operator", cond.Operator,
			"err", err,
		)
		return false
	}
	return ok
}

func (e ConditionEvaluator) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}
