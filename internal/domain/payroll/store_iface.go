package payroll

import (
	"context"

	"github.com/shopspring/decimal"
)

type RuleFilter struct {
	Status   string
	Category string
	Type     string
}

type DeductionFilter struct {
	EmployeeID string
	Status     string
	Limit      int
	Offset     int
}

// AnnualTotals sums a year of stored run results for one employee.
type AnnualTotals struct {
	Category      string
	Runs          int
	Gross         decimal.Decimal
	TaxableIncome decimal.Decimal
	TaxWithheld   decimal.Decimal
}

// DecideFunc computes the new state of a locked deduction.
type DecideFunc func(current PayrollDeduction) (PayrollDeduction, error)

type StoreAPI interface {
	CreateRule(ctx context.Context, tenantID string, rule DeductionRule) (DeductionRule, error)
	GetRule(ctx context.Context, tenantID, ruleID string) (DeductionRule, error)
	ListRules(ctx context.Context, tenantID string, filter RuleFilter) ([]DeductionRule, error)
	UpdateRuleStatus(ctx context.Context, tenantID, ruleID, status string) (DeductionRule, error)
	CreateTemplate(ctx context.Context, tenantID string, tpl DeductionTemplate) (DeductionTemplate, error)
	GetTemplate(ctx context.Context, tenantID, templateID string) (DeductionTemplate, error)
	ListTemplates(ctx context.Context, tenantID string) ([]DeductionTemplate, error)
	AddTemplateRule(ctx context.Context, tenantID, templateID string, entry TemplateRule) error
	RemoveTemplateRule(ctx context.Context, tenantID, templateID, ruleID string) error
	ReplaceTemplateOrder(ctx context.Context, tenantID, templateID string, entries []TemplateRule) error
	CreateTaxRule(ctx context.Context, tenantID string, rule TaxRule) (TaxRule, error)
	GetTaxRule(ctx context.Context, tenantID, taxRuleID string) (TaxRule, error)
	ListTaxRules(ctx context.Context, tenantID string) ([]TaxRule, error)
	LoadDefinitions(ctx context.Context, tenantID string) (*Definitions, error)
	ListRunDeductions(ctx context.Context, tenantID, runID string, filter DeductionFilter) ([]PayrollDeduction, error)
	SaveEmployeeResult(ctx context.Context, tenantID, runID string, input EmployeeInput, result EmployeeResult) (EmployeeResult, error)
	GetDeduction(ctx context.Context, tenantID, deductionID string) (PayrollDeduction, error)
	DecideDeduction(ctx context.Context, tenantID, deductionID string, decide DecideFunc) (before, after PayrollDeduction, err error)
	ListRunResults(ctx context.Context, tenantID, runID string) ([]RunResult, error)
	AnnualTotals(ctx context.Context, tenantID, employeeID string, year int) (AnnualTotals, error)
}
