package payroll

import (
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func decp(v string) *decimal.Decimal {
	d := dec(v)
	return &d
}

func day(v string) time.Time {
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		panic(err)
	}
	return t
}

func dayp(v string) *time.Time {
	t := day(v)
	return &t
}

func activeRule(id, method string) DeductionRule {
	return DeductionRule{
		ID:                id,
		Name:              "rule " + id,
		Type:              RuleTypeOther,
		CalculationMethod: method,
		Frequency:         FrequencyMonthly,
		EffectiveFrom:     day("2024-01-01"),
		EmployeeCategory:  CategoryAll,
		BaseAmountType:    BaseGross,
		Status:            RuleStatusActive,
		AutoApply:         true,
	}
}

func januaryContext() PayrollContext {
	return PayrollContext{
		GrossAmount:    dec("3000"),
		BasicSalary:    dec("5000"),
		NetAmount:      dec("2500"),
		Department:     "Ops",
		Designation:    "Engineer",
		EmploymentType: "full_time",
		YearsOfService: dec("6"),
		PeriodStart:    day("2024-01-01"),
		PeriodEnd:      day("2024-01-31"),
	}
}

func issueFields(err error) []string {
	var ve *ValidationError
	if !errors.As(err, &ve) {
		return nil
	}
	fields := make([]string, 0, len(ve.Issues))
	for _, is := range ve.Issues {
		fields = append(fields, is.Field)
	}
	sort.Strings(fields)
	return fields
}
