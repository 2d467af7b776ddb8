package payroll

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestEvaluateCondition(t *testing.T) {
	ctx := januaryContext()
	cases := []struct {
		name string
		cond DeductionCondition
		want bool
	}{
		{"numeric gte match", DeductionCondition{Field: FieldYearsOfService, Operator: OpGte, Value: ScalarValue("5")}, true},
		{"numeric gte boundary", DeductionCondition{Field: FieldYearsOfService, Operator: OpGte, Value: ScalarValue("6")}, true},
		{"numeric gt boundary", DeductionCondition{Field: FieldYearsOfService, Operator: OpGt, Value: ScalarValue("6")}, false},
		{"numeric decimal compare", DeductionCondition{Field: FieldGrossAmount, Operator: OpEq, Value: ScalarValue("3000.00")}, true},
		{"numeric lt", DeductionCondition{Field: FieldBasicSalary, Operator: OpLt, Value: ScalarValue("4999.99")}, false},
		{"numeric lte", DeductionCondition{Field: FieldBasicSalary, Operator: OpLte, Value: ScalarValue("5000")}, true},
		{"text equal", DeductionCondition{Field: FieldDepartment, Operator: OpEq, Value: ScalarValue("Ops")}, true},
		{"text equal is case sensitive", DeductionCondition{Field: FieldDepartment, Operator: OpEq, Value: ScalarValue("ops")}, false},
		{"in list", DeductionCondition{Field: FieldEmploymentType, Operator: OpIn, Value: ListValue("contract", "full_time")}, true},
		{"not in list", DeductionCondition{Field: FieldDesignation, Operator: OpNotIn, Value: ListValue("Manager", "Director")}, true},
		{"numeric in list", DeductionCondition{Field: FieldYearsOfService, Operator: OpIn, Value: ListValue("1", "6.0")}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := EvaluateCondition(tc.cond, ctx)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestEvaluateConditionUnresolvedFieldFailsClosed(t *testing.T) {
	ctx := januaryContext()
	ctx.Department = "  "

	got, err := EvaluateCondition(DeductionCondition{Field: FieldDepartment, Operator: OpNotIn, Value: ListValue("Ops")}, ctx)
	if got {
		t.Fatalf("expected unresolved field to fail closed")
	}
	if !errors.Is(err, ErrConditionFieldUnresolved) {
		t.Fatalf("expected ErrConditionFieldUnresolved, got %v", err)
	}

	_, err = EvaluateCondition(DeductionCondition{Field: "age", Operator: OpGt, Value: ScalarValue("30")}, ctx)
	if !errors.Is(err, ErrConditionFieldUnresolved) {
		t.Fatalf("expected unknown field to be unresolved, got %v", err)
	}
}

func TestEvaluateConditionRejectsMismatchedValueShape(t *testing.T) {
	_, err := EvaluateCondition(DeductionCondition{Field: FieldDepartment, Operator: OpIn, Value: ScalarValue("Ops")}, januaryContext())
	if !errors.Is(err, ErrInvalidDefinition) {
		t.Fatalf("expected ErrInvalidDefinition, got %v", err)
	}
	_, err = EvaluateCondition(DeductionCondition{Field: FieldGrossAmount, Operator: OpGt, Value: ScalarValue("lots")}, januaryContext())
	if !errors.Is(err, ErrInvalidDefinition) {
		t.Fatalf("expected non-numeric value to be rejected, got %v", err)
	}
}

func TestConditionEvaluatorLogsUnresolvedField(t *testing.T) {
	var buf bytes.Buffer
	eval := ConditionEvaluator{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}
	ctx := januaryContext()
	ctx.Designation = ""

	if eval.Evaluate(DeductionCondition{ID: "c1", RuleID: "r1", Field: FieldDesignation, Operator: OpEq, Value: ScalarValue("Engineer")}, ctx) {
		t.Fatalf("expected false for missing designation")
	}
	out := buf.String()
	if !strings.Contains(out, `"level":"WARN"`) || !strings.Contains(out, `"ruleId":"r1"`) {
		t.Fatalf("expected warning log with rule id, got %s", out)
	}
}

func TestConditionValueDecoding(t *testing.T) {
	var cond DeductionCondition
	if err := json.Unmarshal([]byte(`{"field":"years_of_service","operator":">=","value":5}`), &cond); err != nil {
		t.Fatalf("unmarshal scalar: %v", err)
	}
	if cond.Value.Kind != ValueScalar || cond.Value.Scalar != "5" {
		t.Fatalf("unexpected scalar value %+v", cond.Value)
	}

	if err := json.Unmarshal([]byte(`{"field":"department","operator":"in","value":["Ops","Finance"]}`), &cond); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if cond.Value.Kind != ValueList || len(cond.Value.List) != 2 || cond.Value.List[1] != "Finance" {
		t.Fatalf("unexpected list value %+v", cond.Value)
	}

	var fromYAML DeductionCondition
	doc := "field: employment_type\noperator: not_in\nvalue: [intern, contract]\n"
	if err := yaml.Unmarshal([]byte(doc), &fromYAML); err != nil {
		t.Fatalf("unmarshal yaml: %v", err)
	}
	if fromYAML.Value.Kind != ValueList || fromYAML.Value.List[0] != "intern" {
		t.Fatalf("unexpected yaml value %+v", fromYAML.Value)
	}

	if err := json.Unmarshal([]byte(`{"value":{"nested":true}}`), &cond); err == nil {
		t.Fatalf("expected object value to be rejected")
	}
}
