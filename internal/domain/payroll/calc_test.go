package payroll

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestCalculateRulePercentageOfBasic(t *testing.T) {
	rule := activeRule("pension", MethodPercentage)
	rule.BaseAmountType = BaseBasic
	rule.Percentage = decp("5")

	amount, err := CalculateRule(rule, januaryContext(), RoundHalfUp)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if !amount.Equal(dec("250")) {
		t.Fatalf("expected 250, got %s", amount)
	}
}

func TestCalculateRuleConditionalSumsMatches(t *testing.T) {
	rule := activeRule("loyalty", MethodConditional)
	rule.Conditions = []DeductionCondition{
		{Field: FieldYearsOfService, Operator: OpGte, Value: ScalarValue("5"), Amount: decp("100")},
		{Field: FieldDepartment, Operator: OpEq, Value: ScalarValue("Ops"), Percentage: decp("2")},
		{Field: FieldDepartment, Operator: OpEq, Value: ScalarValue("Sales"), Amount: decp("999")},
	}

	amount, err := CalculateRule(rule, januaryContext(), RoundHalfUp)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if !amount.Equal(dec("160")) {
		t.Fatalf("expected 160, got %s", amount)
	}
}

func TestCalculateRuleConditionalWithoutMatchesIsZero(t *testing.T) {
	rule := activeRule("loyalty", MethodConditional)
	rule.Conditions = []DeductionCondition{
		{Field: FieldYearsOfService, Operator: OpGt, Value: ScalarValue("10"), Amount: decp("100")},
	}
	amount, err := CalculateRule(rule, januaryContext(), RoundHalfUp)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if !amount.IsZero() {
		t.Fatalf("expected zero, got %s", amount)
	}
}

func TestCalculateRuleTiered(t *testing.T) {
	rule := activeRule("union", MethodTiered)
	rule.Tiers = []Tier{
		{From: dec("5000"), Rate: decp("3")},
		{From: dec("1000"), FixedAmount: decp("20")},
		{From: dec("2500"), Rate: decp("2")},
	}

	cases := []struct {
		gross string
		want  string
	}{
		{"999.99", "0"},
		{"1000", "20"},
		{"2499.99", "20"},
		{"2500", "50"},
		{"3000", "60"},
		{"5000", "150"},
	}
	for _, tc := range cases {
		ctx := januaryContext()
		ctx.GrossAmount = dec(tc.gross)
		amount, err := CalculateRule(rule, ctx, RoundHalfUp)
		if err != nil {
			t.Fatalf("gross %s: %v", tc.gross, err)
		}
		if !amount.Equal(dec(tc.want)) {
			t.Fatalf("gross %s: expected %s, got %s", tc.gross, tc.want, amount)
		}
	}
}

func TestCalculateRuleRoundsOnce(t *testing.T) {
	rule := activeRule("levy", MethodConditional)
	rule.Conditions = []DeductionCondition{
		{Field: FieldDepartment, Operator: OpEq, Value: ScalarValue("Ops"), Percentage: decp("0.0125")},
		{Field: FieldDesignation, Operator: OpEq, Value: ScalarValue("Engineer"), Percentage: decp("0.0125")},
	}
	ctx := januaryContext()
	ctx.GrossAmount = dec("100")

	// Each component is 0.0125; rounding them separately would give 0.02.
	amount, err := CalculateRule(rule, ctx, RoundHalfUp)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if !amount.Equal(dec("0.03")) {
		t.Fatalf("expected 0.03, got %s", amount)
	}
}

func TestRoundingPolicies(t *testing.T) {
	if got := RoundHalfUp.Apply(dec("2.345")); !got.Equal(dec("2.35")) {
		t.Fatalf("half up: got %s", got)
	}
	if got := RoundBankers.Apply(dec("2.345")); !got.Equal(dec("2.34")) {
		t.Fatalf("bankers: got %s", got)
	}
	if _, err := ParseRounding("ceiling"); err == nil {
		t.Fatalf("expected unknown policy to fail")
	}
	if r, err := ParseRounding(""); err != nil || r != RoundHalfUp {
		t.Fatalf("expected default half_up, got %q %v", r, err)
	}
}

func TestCalculateRuleMissingMethodData(t *testing.T) {
	rule := activeRule("broken", MethodFixed)
	if _, err := CalculateRule(rule, januaryContext(), RoundHalfUp); !errors.Is(err, ErrInvalidCalculationMethod) {
		t.Fatalf("expected ErrInvalidCalculationMethod, got %v", err)
	}
}

func TestSummarizeExcludesPendingFromNet(t *testing.T) {
	deductions := []PayrollDeduction{
		{Amount: dec("100"), Status: DeductionStatusApproved},
		{Amount: dec("40"), Status: DeductionStatusPending},
		{Amount: dec("70"), Status: DeductionStatusRejected},
	}
	tax := &TaxResult{Total: dec("200")}

	totals := Summarize(dec("3000"), deductions, tax)
	checks := map[string][2]decimal.Decimal{
		"approved": {totals.ApprovedDeductions, dec("100")},
		"pending":  {totals.PendingAdjustments, dec("40")},
		"tax":      {totals.Tax, dec("200")},
		"net":      {totals.Net, dec("2700")},
	}
	for name, pair := range checks {
		if !pair[0].Equal(pair[1]) {
			t.Fatalf("%s: expected %s, got %s", name, pair[1], pair[0])
		}
	}
}
