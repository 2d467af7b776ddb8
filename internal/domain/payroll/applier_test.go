package payroll

import (
	"errors"
	"testing"
	"time"
)

func fixedEngine() *Engine {
	n := 0
	return &Engine{
		Rounding: RoundHalfUp,
		Now:      func() time.Time { return time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC) },
		NewID: func() string {
			n++
			return "ded-" + string(rune('0'+n))
		},
	}
}

func staffInput() EmployeeInput {
	return EmployeeInput{EmployeeID: "emp-1", Category: "staff", Context: januaryContext()}
}

func TestApplyRuleAutoApproves(t *testing.T) {
	rule := activeRule("meal", MethodFixed)
	rule.Amount = decp("45.5")

	d, err := fixedEngine().ApplyRule(rule, "run-1", staffInput(), nil)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if d == nil {
		t.Fatalf("expected a deduction")
	}
	if d.Status != DeductionStatusApproved || d.ApprovedBy != SystemActor || d.ApprovedAt == nil {
		t.Fatalf("expected system approval, got %+v", d)
	}
	if !d.Amount.Equal(dec("45.5")) || d.RunID != "run-1" || d.EmployeeID != "emp-1" {
		t.Fatalf("unexpected deduction %+v", d)
	}
}

func TestApplyRuleRequiringApprovalIsPending(t *testing.T) {
	rule := activeRule("loan", MethodFixed)
	rule.Amount = decp("300")
	rule.RequiresApproval = true

	d, err := fixedEngine().ApplyRule(rule, "run-1", staffInput(), nil)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if d.Status != DeductionStatusPending || d.ApprovedBy != "" || d.ApprovedAt != nil {
		t.Fatalf("expected pending deduction, got %+v", d)
	}
}

func TestApplyRuleWithoutAutoApplyOrApprovalIsApproved(t *testing.T) {
	rule := activeRule("union", MethodFixed)
	rule.Amount = decp("20")
	rule.AutoApply = false

	d, err := fixedEngine().ApplyRule(rule, "run-1", staffInput(), nil)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if d == nil {
		t.Fatalf("expected a deduction")
	}
	if d.Status != DeductionStatusApproved || d.ApprovedBy != SystemActor || d.ApprovedAt == nil {
		t.Fatalf("expected system approval, got %+v", d)
	}
}

func TestApplyRuleSkipsIneligible(t *testing.T) {
	expired := activeRule("old", MethodFixed)
	expired.Amount = decp("10")
	expired.EffectiveFrom = day("2023-01-01")
	expired.EffectiveUntil = dayp("2023-12-31")

	future := activeRule("future", MethodFixed)
	future.Amount = decp("10")
	future.EffectiveFrom = day("2024-02-01")

	inactive := activeRule("off", MethodFixed)
	inactive.Amount = decp("10")
	inactive.Status = RuleStatusInactive

	otherCategory := activeRule("contractors", MethodFixed)
	otherCategory.Amount = decp("10")
	otherCategory.EmployeeCategory = "contractor"

	zero := activeRule("zero", MethodFixed)
	zero.Amount = decp("0")

	for _, rule := range []DeductionRule{expired, future, inactive, otherCategory, zero} {
		d, err := fixedEngine().ApplyRule(rule, "run-1", staffInput(), nil)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", rule.ID, err)
		}
		if d != nil {
			t.Fatalf("%s: expected rule to be skipped, got %+v", rule.ID, d)
		}
	}
}

func TestApplyRuleWindowIsInclusive(t *testing.T) {
	rule := activeRule("edge", MethodFixed)
	rule.Amount = decp("10")
	rule.EffectiveFrom = day("2024-01-31")
	rule.EffectiveUntil = dayp("2024-01-31")

	d, err := fixedEngine().ApplyRule(rule, "run-1", staffInput(), nil)
	if err != nil || d == nil {
		t.Fatalf("expected deduction on the last effective day, got %v %v", d, err)
	}
}

func TestApplyRuleKeepsFrozenAmount(t *testing.T) {
	rule := activeRule("meal", MethodFixed)
	rule.Amount = decp("45")
	engine := fixedEngine()

	first, err := engine.ApplyRule(rule, "run-1", staffInput(), nil)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	rule.Amount = decp("99")
	second, err := engine.ApplyRule(rule, "run-1", staffInput(), first)
	if err != nil {
		t.Fatalf("reapply: %v", err)
	}
	if !second.Amount.Equal(dec("45")) || second.ID != first.ID {
		t.Fatalf("expected frozen deduction, got %+v", second)
	}
}

func TestApprovalWorkflow(t *testing.T) {
	pending := PayrollDeduction{ID: "d1", Status: DeductionStatusPending, Amount: dec("300"), Version: 1}
	at := time.Date(2024, 2, 3, 10, 0, 0, 0, time.UTC)

	rejected, err := Reject(pending, "mgr-7", "invalid", at)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != DeductionStatusRejected || rejected.ApprovedBy != "mgr-7" || rejected.Notes != "invalid" {
		t.Fatalf("unexpected rejected deduction %+v", rejected)
	}
	if rejected.Version != 2 || pending.Status != DeductionStatusPending {
		t.Fatalf("expected a new version and an untouched input")
	}

	_, err = Approve(rejected, "mgr-8", at.Add(time.Hour))
	if !errors.Is(err, ErrIllegalApprovalTransition) {
		t.Fatalf("expected ErrIllegalApprovalTransition, got %v", err)
	}
	var illegal *IllegalApprovalTransitionError
	if !errors.As(err, &illegal) || illegal.Current != DeductionStatusRejected {
		t.Fatalf("expected current state in error, got %v", err)
	}

	approved, err := Approve(pending, "mgr-7", at)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := Reject(approved, "mgr-7", "late", at); !errors.Is(err, ErrIllegalApprovalTransition) {
		t.Fatalf("expected approved deduction to be terminal, got %v", err)
	}
	if _, err := Approve(pending, " ", at); !errors.Is(err, ErrApproverRequired) {
		t.Fatalf("expected ErrApproverRequired, got %v", err)
	}
}
