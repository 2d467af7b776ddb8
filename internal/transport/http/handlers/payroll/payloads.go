package payrollhandler

import (
	"time"

	"github.com/shopspring/decimal"

	"hrpay/internal/domain/payroll"
	"hrpay/internal/transport/http/shared"
)

// Dates arrive as YYYY-MM-DD or RFC3339, so payloads carry them as strings.

type rulePayload struct {
	Name              string                       `json:"name"`
	Description       string                       `json:"description"`
	Type              string                       `json:"type"`
	CalculationMethod string                       `json:"calculationMethod"`
	Amount            *decimal.Decimal             `json:"amount"`
	Percentage        *decimal.Decimal             `json:"percentage"`
	Frequency         string                       `json:"frequency"`
	EffectiveFrom     string                       `json:"effectiveFrom"`
	EffectiveUntil    string                       `json:"effectiveUntil"`
	RequiresApproval  bool                         `json:"requiresApproval"`
	AutoApply         bool                         `json:"autoApply"`
	EmployeeCategory  string                       `json:"employeeCategory"`
	BaseAmountType    string                       `json:"baseAmountType"`
	Status            string                       `json:"status"`
	Tiers             []payroll.Tier               `json:"tiers"`
	Conditions        []payroll.DeductionCondition `json:"conditions"`
}

func (p rulePayload) toRule(v *shared.Validator) payroll.DeductionRule {
	from, until := window(v, p.EffectiveFrom, p.EffectiveUntil)
	return payroll.DeductionRule{
		Name:              p.Name,
		Description:       p.Description,
		Type:              p.Type,
		CalculationMethod: p.CalculationMethod,
		Amount:            p.Amount,
		Percentage:        p.Percentage,
		Frequency:         p.Frequency,
		EffectiveFrom:     from,
		EffectiveUntil:    until,
		RequiresApproval:  p.RequiresApproval,
		AutoApply:         p.AutoApply,
		EmployeeCategory:  p.EmployeeCategory,
		BaseAmountType:    p.BaseAmountType,
		Status:            p.Status,
		Tiers:             p.Tiers,
		Conditions:        p.Conditions,
	}
}

type taxRulePayload struct {
	Name              string               `json:"name"`
	CalculationMethod string               `json:"calculationMethod"`
	Rate              decimal.Decimal      `json:"rate"`
	EmployeeCategory  string               `json:"employeeCategory"`
	EffectiveFrom     string               `json:"effectiveFrom"`
	EffectiveUntil    string               `json:"effectiveUntil"`
	Status            string               `json:"status"`
	Brackets          []payroll.TaxBracket `json:"brackets"`
}

func (p taxRulePayload) toTaxRule(v *shared.Validator) payroll.TaxRule {
	from, until := window(v, p.EffectiveFrom, p.EffectiveUntil)
	return payroll.TaxRule{
		Name:              p.Name,
		CalculationMethod: p.CalculationMethod,
		Rate:              p.Rate,
		EmployeeCategory:  p.EmployeeCategory,
		EffectiveFrom:     from,
		EffectiveUntil:    until,
		Status:            p.Status,
		Brackets:          p.Brackets,
	}
}

func window(v *shared.Validator, rawFrom, rawUntil string) (time.Time, *time.Time) {
	from, _ := v.Date("effectiveFrom", rawFrom)
	if rawUntil == "" {
		return from, nil
	}
	until, ok := v.Date("effectiveUntil", rawUntil)
	if !ok {
		return from, nil
	}
	v.DateOrder("effectiveFrom", from, "effectiveUntil", until)
	return from, &until
}

type contextPayload struct {
	GrossAmount    decimal.Decimal  `json:"grossAmount"`
	BasicSalary    decimal.Decimal  `json:"basicSalary"`
	NetAmount      decimal.Decimal  `json:"netAmount"`
	Department     string           `json:"department"`
	Designation    string           `json:"designation"`
	EmploymentType string           `json:"employmentType"`
	YearsOfService decimal.Decimal  `json:"yearsOfService"`
	PeriodStart    string           `json:"periodStart"`
	PeriodEnd      string           `json:"periodEnd"`
	TaxableIncome  *decimal.Decimal `json:"taxableIncome"`
}

type employeePayload struct {
	EmployeeID string         `json:"employeeId"`
	Category   string         `json:"category"`
	TemplateID string         `json:"templateId"`
	Context    contextPayload `json:"context"`
}

func (p employeePayload) toInput(v *shared.Validator, field string) payroll.EmployeeInput {
	start, _ := v.Date(field+".context.periodStart", p.Context.PeriodStart)
	end, _ := v.Date(field+".context.periodEnd", p.Context.PeriodEnd)
	v.DateOrder(field+".context.periodStart", start, field+".context.periodEnd", end)
	return payroll.EmployeeInput{
		EmployeeID: p.EmployeeID,
		Category:   p.Category,
		TemplateID: p.TemplateID,
		Context: payroll.PayrollContext{
			GrossAmount:    p.Context.GrossAmount,
			BasicSalary:    p.Context.BasicSalary,
			NetAmount:      p.Context.NetAmount,
			Department:     p.Context.Department,
			Designation:    p.Context.Designation,
			EmploymentType: p.Context.EmploymentType,
			YearsOfService: p.Context.YearsOfService,
			PeriodStart:    start,
			PeriodEnd:      end,
			TaxableIncome:  p.Context.TaxableIncome,
		},
	}
}
