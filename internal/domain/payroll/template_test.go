package payroll

import (
	"errors"
	"testing"
)

func templateFixture() (DeductionTemplate, map[string]DeductionRule) {
	rules := map[string]DeductionRule{}
	for _, id := range []string{"a", "b", "c", "d"} {
		rules[id] = activeRule(id, MethodFixed)
	}
	contractorOnly := rules["d"]
	contractorOnly.EmployeeCategory = "contractor"
	rules["d"] = contractorOnly

	tpl := DeductionTemplate{
		ID:   "tpl",
		Name: "Standard",
		Rules: []TemplateRule{
			{RuleID: "c", Order: 30},
			{RuleID: "a", Order: 10},
			{RuleID: "d", Order: 5},
			{RuleID: "b", Order: 20},
		},
	}
	return tpl, rules
}

func ids(rules []DeductionRule) []string {
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		out = append(out, r.ID)
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestResolveTemplateOrdersAndFilters(t *testing.T) {
	tpl, rules := templateFixture()

	for i := 0; i < 5; i++ {
		resolved, err := ResolveTemplate(tpl, rules, "staff")
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if got := ids(resolved); !equalIDs(got, []string{"a", "b", "c"}) {
			t.Fatalf("unexpected order %v", got)
		}
	}

	resolved, err := ResolveTemplate(tpl, rules, "contractor")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got := ids(resolved); !equalIDs(got, []string{"d", "a", "b", "c"}) {
		t.Fatalf("unexpected contractor order %v", got)
	}
}

func TestResolveTemplateRejectsDuplicateOrder(t *testing.T) {
	tpl, rules := templateFixture()
	tpl.Rules[0].Order = 10

	if _, err := ResolveTemplate(tpl, rules, "staff"); !errors.Is(err, ErrDuplicateTemplateOrder) {
		t.Fatalf("expected ErrDuplicateTemplateOrder, got %v", err)
	}
	if err := ValidateTemplate(tpl); !errors.Is(err, ErrDuplicateTemplateOrder) {
		t.Fatalf("expected validation to reject duplicate order, got %v", err)
	}
}

func TestResolveTemplateMissingRule(t *testing.T) {
	tpl, rules := templateFixture()
	delete(rules, "b")
	if _, err := ResolveTemplate(tpl, rules, "staff"); !errors.Is(err, ErrRuleNotFound) {
		t.Fatalf("expected ErrRuleNotFound, got %v", err)
	}
}

func TestReorderTemplate(t *testing.T) {
	tpl, rules := templateFixture()

	reordered, err := ReorderTemplate(tpl, []string{"c", "b", "a", "d"})
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	resolved, err := ResolveTemplate(reordered, rules, "contractor")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got := ids(resolved); !equalIDs(got, []string{"c", "b", "a", "d"}) {
		t.Fatalf("unexpected order %v", got)
	}
	if tpl.Rules[0].Order != 30 {
		t.Fatalf("reorder mutated the original template")
	}

	bad := [][]string{
		{"a", "b", "c"},
		{"a", "b", "c", "c"},
		{"a", "b", "c", "x"},
	}
	for _, ruleIDs := range bad {
		if _, err := ReorderTemplate(tpl, ruleIDs); !errors.Is(err, ErrInvalidReorder) {
			t.Fatalf("%v: expected ErrInvalidReorder, got %v", ruleIDs, err)
		}
	}
}

func TestAddAndRemoveTemplateRule(t *testing.T) {
	tpl, _ := templateFixture()

	added, err := AddTemplateRule(tpl, "e", 0)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	last := added.Rules[len(added.Rules)-1]
	if last.RuleID != "e" || last.Order != 31 {
		t.Fatalf("expected e appended at 31, got %+v", last)
	}
	if len(tpl.Rules) != 4 {
		t.Fatalf("add mutated the original template")
	}

	if _, err := AddTemplateRule(tpl, "e", 20); !errors.Is(err, ErrDuplicateTemplateOrder) {
		t.Fatalf("expected ErrDuplicateTemplateOrder, got %v", err)
	}
	if _, err := AddTemplateRule(tpl, "a", 0); !errors.Is(err, ErrInvalidDefinition) {
		t.Fatalf("expected duplicate rule to be rejected, got %v", err)
	}

	removed, err := RemoveTemplateRule(tpl, "a")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(removed.Rules) != 3 {
		t.Fatalf("expected 3 rules, got %d", len(removed.Rules))
	}
	if _, err := RemoveTemplateRule(tpl, "zzz"); !errors.Is(err, ErrRuleNotFound) {
		t.Fatalf("expected ErrRuleNotFound, got %v", err)
	}
}
