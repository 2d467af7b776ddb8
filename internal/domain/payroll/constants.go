package payroll

const (
	RuleTypeTax     = "tax"
	RuleTypeLoan    = "loan"
	RuleTypeAdvance = "advance"
	RuleTypeBenefit = "benefit"
	RuleTypeOther   = "other"

	MethodFixed       = "fixed"
	MethodPercentage  = "percentage"
	MethodTiered      = "tiered"
	MethodConditional = "conditional"

	FrequencyOnce      = "once"
	FrequencyMonthly   = "monthly"
	FrequencyQuarterly = "quarterly"
	FrequencyYearly    = "yearly"

	BaseGross = "gross"
	BaseBasic = "basic"
	BaseNet   = "net"

	RuleStatusDraft    = "draft"
	RuleStatusActive   = "active"
	RuleStatusInactive = "inactive"

	CategoryAll = "all"

	DeductionStatusPending  = "pending"
	DeductionStatusApproved = "approved"
	DeductionStatusRejected = "rejected"

	// SystemActor stamps deductions approved without a human decision.
	SystemActor = "system"

	TaxMethodFlatRate       = "flat_rate"
	TaxMethodProgressive    = "progressive"
	TaxMethodThresholdBased = "threshold_based"
)

const (
	FieldGrossAmount    = "gross_amount"
	FieldBasicSalary    = "basic_salary"
	FieldDepartment     = "department"
	FieldDesignation    = "designation"
	FieldEmploymentType = "employment_type"
	FieldYearsOfService = "years_of_service"
)

const (
	OpEq    = "="
	OpGt    = ">"
	OpLt    = "<"
	OpGte   = ">="
	OpLte   = "<="
	OpIn    = "in"
	OpNotIn = "not_in"
)

const (
	JobDeductionRun = "payroll_deduction_run"

	AuditRuleCreated       = "payroll.rule.created"
	AuditRuleStatusChanged = "payroll.rule.status_changed"
	AuditTemplateCreated   = "payroll.template.created"
	AuditTemplateChanged   = "payroll.template.changed"
	AuditTaxRuleCreated    = "payroll.tax_rule.created"
	AuditDeductionApproved = "payroll.deduction.approved"
	AuditDeductionRejected = "payroll.deduction.rejected"
	AuditEntityRule        = "payroll_deduction_rule"
	AuditEntityTemplate    = "payroll_deduction_template"
	AuditEntityTaxRule     = "payroll_tax_rule"
	AuditEntityDeduction   = "payroll_deduction"
)

var (
	RuleTypes          = []string{RuleTypeTax, RuleTypeLoan, RuleTypeAdvance, RuleTypeBenefit, RuleTypeOther}
	CalculationMethods = []string{MethodFixed, MethodPercentage, MethodTiered, MethodConditional}
	Frequencies        = []string{FrequencyOnce, FrequencyMonthly, FrequencyQuarterly, FrequencyYearly}
	BaseAmountTypes    = []string{BaseGross, BaseBasic, BaseNet}
	RuleStatuses       = []string{RuleStatusDraft, RuleStatusActive, RuleStatusInactive}
	TaxMethods         = []string{TaxMethodFlatRate, TaxMethodProgressive, TaxMethodThresholdBased}
	ConditionFields    = []string{FieldGrossAmount, FieldBasicSalary, FieldDepartment, FieldDesignation, FieldEmploymentType, FieldYearsOfService}
	ConditionOperators = []string{OpEq, OpGt, OpLt, OpGte, OpLte, OpIn, OpNotIn}
)

func isNumericField(field string) bool {
	switch field {
	case FieldGrossAmount, FieldBasicSalary, FieldYearsOfService:
		return true
	default:
		return false
	}
}
