package payroll

import (
	"strings"
)

// ApplyRule materializes rule for one employee in a run. It returns nil when
// the rule does not apply. An existing record for the same run, employee and
// rule is returned unchanged so amounts stay frozen once computed.
func (e *Engine) ApplyRule(rule DeductionRule, runID string, emp EmployeeInput, existing *PayrollDeduction) (*PayrollDeduction, error) {
	if existing != nil {
		frozen := *existing
		return &frozen, nil
	}
	if !eligible(rule, emp) {
		return nil, nil
	}

	amount, err := calculateRule(rule, emp.Context, e.Rounding, ConditionEvaluator{Logger: e.logger()})
	if err != nil {
		return nil, err
	}
	if amount.IsZero() {
		return nil, nil
	}

	now := e.now().UTC()
	d := PayrollDeduction{
		ID:         e.newID(),
		RunID:      runID,
		EmployeeID: emp.EmployeeID,
		RuleID:     rule.ID,
		RuleName:   rule.Name,
		RuleType:   rule.Type,
		Amount:     amount,
		Status:     DeductionStatusPending,
		Version:    1,
		CreatedAt:  now,
	}
	if !rule.RequiresApproval {
		d.Status = DeductionStatusApproved
		d.ApprovedBy = SystemActor
		d.ApprovedAt = &now
	}
	return &d, nil
}

func eligible(rule DeductionRule, emp EmployeeInput) bool {
	if rule.Status != RuleStatusActive {
		return false
	}
	if !rule.IsEffective(emp.Context.AsOf()) {
		return false
	}
	return rule.MatchesCategory(strings.TrimSpace(emp.Category))
}
