package payroll

import (
	"errors"
	"fmt"
)

var (
	ErrConditionFieldUnresolved  = errors.New("condition field unresolved")
	ErrAmbiguousEffectiveRule    = errors.New("more than one effective rule matches")
	ErrInvalidCalculationMethod  = errors.New("calculation method lacks required data")
	ErrBracketGapOrOverlap       = errors.New("tax brackets must be contiguous and non-overlapping")
	ErrIllegalApprovalTransition = errors.New("illegal approval transition")
	ErrDuplicateTemplateOrder    = errors.New("template order values must be unique")
	ErrInvalidReorder            = errors.New("reorder must list every template rule exactly once")
	ErrRuleNotFound              = errors.New("deduction rule not found")
	ErrTemplateNotFound          = errors.New("deduction template not found")
	ErrTaxRuleNotFound           = errors.New("tax rule not found")
	ErrDeductionNotFound         = errors.New("payroll deduction not found")
	ErrConcurrentUpdate          = errors.New("payroll deduction was modified concurrently")
	ErrInvalidDefinition         = errors.New("invalid payroll definition")
	ErrApproverRequired          = errors.New("approver is required")
	ErrLockNotObtained           = errors.New("payroll deduction is locked by another approver")
	ErrNoRunResults              = errors.New("no stored run results")
)

// IllegalApprovalTransitionError reports the state a deduction was in when a
// transition was refused.
type IllegalApprovalTransitionError struct {
	DeductionID string
	Current     string
	Action      string
}

func (e *IllegalApprovalTransitionError) Error() string {
	return fmt.Sprintf("cannot %s payroll deduction %s: status is %s", e.Action, e.DeductionID, e.Current)
}

func (e *IllegalApprovalTransitionError) Unwrap() error {
	return ErrIllegalApprovalTransition
}

// AmbiguousRuleError names the candidates that matched the same category and date.
type AmbiguousRuleError struct {
	Category string
	RuleIDs  []string
}

func (e *AmbiguousRuleError) Error() string {
	return fmt.Sprintf("category %q has %d effective rules: %v", e.Category, len(e.RuleIDs), e.RuleIDs)
}

func (e *AmbiguousRuleError) Unwrap() error {
	return ErrAmbiguousEffectiveRule
}

// ValidationError collects configuration problems found at write time.
type ValidationError struct {
	Kind   error
	Issues []ValidationIssue
}

type ValidationIssue struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s %s", e.Kind.Error(), e.Issues[0].Field, e.Issues[0].Reason)
}

func (e *ValidationError) Unwrap() []error {
	if e.Kind == ErrInvalidDefinition {
		return []error{e.Kind}
	}
	return []error{e.Kind, ErrInvalidDefinition}
}
