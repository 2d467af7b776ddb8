package payroll

import (
	"time"

	"github.com/shopspring/decimal"
)

type DeductionRule struct {
	ID                string               `json:"id" yaml:"id"`
	Name              string               `json:"name" yaml:"name" validate:"required,max=150"`
	Description       string               `json:"description,omitempty" yaml:"description"`
	Type              string               `json:"type" yaml:"type" validate:"required,oneof=tax loan advance benefit other"`
	CalculationMethod string               `json:"calculationMethod" yaml:"calculation_method" validate:"required,oneof=fixed percentage tiered conditional"`
	Amount            *decimal.Decimal     `json:"amount,omitempty" yaml:"amount"`
	Percentage        *decimal.Decimal     `json:"percentage,omitempty" yaml:"percentage"`
	Frequency         string               `json:"frequency" yaml:"frequency" validate:"required,oneof=once monthly quarterly yearly"`
	EffectiveFrom     time.Time            `json:"effectiveFrom" yaml:"effective_from" validate:"required"`
	EffectiveUntil    *time.Time           `json:"effectiveUntil,omitempty" yaml:"effective_until"`
	RequiresApproval  bool                 `json:"requiresApproval" yaml:"requires_approval"`
	AutoApply         bool                 `json:"autoApply" yaml:"auto_apply"`
	EmployeeCategory  string               `json:"employeeCategory" yaml:"employee_category" validate:"required,max=100"`
	BaseAmountType    string               `json:"baseAmountType" yaml:"base_amount_type" validate:"required,oneof=gross basic net"`
	Status            string               `json:"status" yaml:"status" validate:"required,oneof=draft active inactive"`
	Tiers             []Tier               `json:"tiers,omitempty" yaml:"tiers" validate:"dive"`
	Conditions        []DeductionCondition `json:"conditions,omitempty" yaml:"conditions" validate:"dive"`
	CreatedAt         time.Time            `json:"createdAt" yaml:"-"`
	UpdatedAt         time.Time            `json:"updatedAt" yaml:"-"`
}

// IsEffective reports whether at falls inside the rule's window. Both bounds
// are inclusive calendar dates.
func (r DeductionRule) IsEffective(at time.Time) bool {
	return withinWindow(r.EffectiveFrom, r.EffectiveUntil, at)
}

func (r DeductionRule) MatchesCategory(category string) bool {
	return matchesCategory(r.EmployeeCategory, category)
}

// Tier is one row of a tiered rule's rate table. The tier applies from From
// upwards until the next tier's From.
type Tier struct {
	From        decimal.Decimal  `json:"from" yaml:"from"`
	Rate        *decimal.Decimal `json:"rate,omitempty" yaml:"rate"`
	FixedAmount *decimal.Decimal `json:"fixedAmount,omitempty" yaml:"fixed_amount"`
}

type DeductionCondition struct {
	ID         string           `json:"id,omitempty" yaml:"id"`
	RuleID     string           `json:"ruleId,omitempty" yaml:"-"`
	Field      string           `json:"field" yaml:"field" validate:"required,oneof=gross_amount basic_salary department designation employment_type years_of_service"`
	Operator   string           `json:"operator" yaml:"operator" validate:"required"`
	Value      ConditionValue   `json:"value" yaml:"value"`
	Amount     *decimal.Decimal `json:"amount,omitempty" yaml:"amount"`
	Percentage *decimal.Decimal `json:"percentage,omitempty" yaml:"percentage"`
}

type TemplateRule struct {
	RuleID string `json:"ruleId" yaml:"rule_id" validate:"required"`
	Order  int    `json:"order" yaml:"order" validate:"gte=0"`
}

type DeductionTemplate struct {
	ID          string         `json:"id" yaml:"id"`
	Name        string         `json:"name" yaml:"name" validate:"required,max=150"`
	Description string         `json:"description,omitempty" yaml:"description"`
	Rules       []TemplateRule `json:"rules" yaml:"rules" validate:"dive"`
	CreatedAt   time.Time      `json:"createdAt" yaml:"-"`
}

type TaxRule struct {
	ID                string          `json:"id" yaml:"id"`
	Name              string          `json:"name" yaml:"name" validate:"required,max=150"`
	CalculationMethod string          `json:"calculationMethod" yaml:"calculation_method" validate:"required,oneof=flat_rate progressive threshold_based"`
	Rate              decimal.Decimal `json:"rate" yaml:"rate"`
	EmployeeCategory  string          `json:"employeeCategory" yaml:"employee_category" validate:"required,max=100"`
	EffectiveFrom     time.Time       `json:"effectiveFrom" yaml:"effective_from" validate:"required"`
	EffectiveUntil    *time.Time      `json:"effectiveUntil,omitempty" yaml:"effective_until"`
	Status            string          `json:"status" yaml:"status" validate:"required,oneof=draft active inactive"`
	Brackets          []TaxBracket    `json:"brackets,omitempty" yaml:"brackets"`
	CreatedAt         time.Time       `json:"createdAt" yaml:"-"`
}

func (r TaxRule) IsEffective(at time.Time) bool {
	return withinWindow(r.EffectiveFrom, r.EffectiveUntil, at)
}

type TaxBracket struct {
	ID         string           `json:"id,omitempty" yaml:"id"`
	IncomeFrom decimal.Decimal  `json:"incomeFrom" yaml:"income_from"`
	IncomeTo   *decimal.Decimal `json:"incomeTo" yaml:"income_to"`
	Rate       decimal.Decimal  `json:"rate" yaml:"rate"`
}

type PayrollDeduction struct {
	ID         string          `json:"id"`
	RunID      string          `json:"runId"`
	EmployeeID string          `json:"employeeId"`
	RuleID     string          `json:"ruleId"`
	RuleName   string          `json:"ruleName"`
	RuleType   string          `json:"ruleType"`
	Amount     decimal.Decimal `json:"amount"`
	Status     string          `json:"status"`
	ApprovedBy string          `json:"approvedBy,omitempty"`
	ApprovedAt *time.Time      `json:"approvedAt,omitempty"`
	Notes      string          `json:"notes,omitempty"`
	Version    int             `json:"version"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// PayrollContext carries the figures the payroll generator supplies for one
// employee and one period.
type PayrollContext struct {
	GrossAmount    decimal.Decimal  `json:"grossAmount" yaml:"gross_amount"`
	BasicSalary    decimal.Decimal  `json:"basicSalary" yaml:"basic_salary"`
	NetAmount      decimal.Decimal  `json:"netAmount" yaml:"net_amount"`
	Department     string           `json:"department" yaml:"department"`
	Designation    string           `json:"designation" yaml:"designation"`
	EmploymentType string           `json:"employmentType" yaml:"employment_type"`
	YearsOfService decimal.Decimal  `json:"yearsOfService" yaml:"years_of_service"`
	PeriodStart    time.Time        `json:"periodStart" yaml:"period_start"`
	PeriodEnd      time.Time        `json:"periodEnd" yaml:"period_end"`
	TaxableIncome  *decimal.Decimal `json:"taxableIncome,omitempty" yaml:"taxable_income"`
}

// AsOf is the date rule windows are checked against.
func (c PayrollContext) AsOf() time.Time {
	if !c.PeriodEnd.IsZero() {
		return c.PeriodEnd
	}
	return c.PeriodStart
}

func (c PayrollContext) baseAmount(baseType string) decimal.Decimal {
	switch baseType {
	case BaseBasic:
		return c.BasicSalary
	case BaseNet:
		return c.NetAmount
	default:
		return c.GrossAmount
	}
}

func (c PayrollContext) taxableIncome() decimal.Decimal {
	if c.TaxableIncome != nil {
		return *c.TaxableIncome
	}
	return c.GrossAmount
}

type EmployeeInput struct {
	EmployeeID string         `json:"employeeId" yaml:"employee_id" validate:"required"`
	Category   string         `json:"category" yaml:"category" validate:"required"`
	TemplateID string         `json:"templateId,omitempty" yaml:"template_id"`
	Context    PayrollContext `json:"context" yaml:"context"`
}

type BracketTax struct {
	From   decimal.Decimal  `json:"from"`
	To     *decimal.Decimal `json:"to"`
	Rate   decimal.Decimal  `json:"rate"`
	Amount decimal.Decimal  `json:"amount"`
}

type TaxResult struct {
	RuleID        string          `json:"ruleId"`
	RuleName      string          `json:"ruleName"`
	Method        string          `json:"method"`
	TaxableIncome decimal.Decimal `json:"taxableIncome"`
	Breakdown     []BracketTax    `json:"bracketBreakdown"`
	Total         decimal.Decimal `json:"total"`
}

type Totals struct {
	Gross              decimal.Decimal `json:"gross"`
	ApprovedDeductions decimal.Decimal `json:"approvedDeductions"`
	PendingAdjustments decimal.Decimal `json:"pendingAdjustments"`
	Tax                decimal.Decimal `json:"tax"`
	Net                decimal.Decimal `json:"net"`
}

type EmployeeResult struct {
	EmployeeID string             `json:"employeeId"`
	Deductions []PayrollDeduction `json:"deductions"`
	Tax        *TaxResult         `json:"tax,omitempty"`
	Totals     Totals             `json:"totals"`
}

func withinWindow(from time.Time, until *time.Time, at time.Time) bool {
	day := dateOnly(at)
	if day.Before(dateOnly(from)) {
		return false
	}
	if until != nil && day.After(dateOnly(*until)) {
		return false
	}
	return true
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func matchesCategory(ruleCategory, category string) bool {
	return ruleCategory == CategoryAll || ruleCategory == category
}

// RunResult is the stored per-employee outcome of a deduction run.
type RunResult struct {
	RunID              string          `json:"runId"`
	EmployeeID         string          `json:"employeeId"`
	Category           string          `json:"category"`
	PeriodStart        time.Time       `json:"periodStart"`
	PeriodEnd          time.Time       `json:"periodEnd"`
	Gross              decimal.Decimal `json:"gross"`
	TaxableIncome      decimal.Decimal `json:"taxableIncome"`
	TaxRuleID          string          `json:"taxRuleId,omitempty"`
	Tax                decimal.Decimal `json:"tax"`
	Breakdown          []BracketTax    `json:"bracketBreakdown"`
	ApprovedDeductions decimal.Decimal `json:"approvedDeductions"`
	PendingAdjustments decimal.Decimal `json:"pendingAdjustments"`
	Net                decimal.Decimal `json:"net"`
	CreatedAt          time.Time       `json:"createdAt"`
}
