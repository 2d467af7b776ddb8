package payroll

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoBracketRule() TaxRule {
	return TaxRule{
		ID:                "income-tax",
		Name:              "Income tax",
		CalculationMethod: TaxMethodProgressive,
		EmployeeCategory:  CategoryAll,
		EffectiveFrom:     day("2024-01-01"),
		Status:            RuleStatusActive,
		Brackets: []TaxBracket{
			{IncomeFrom: dec("10000"), IncomeTo: nil, Rate: dec("20")},
			{IncomeFrom: dec("0"), IncomeTo: decp("10000"), Rate: dec("10")},
		},
	}
}

func TestComputeTaxProgressive(t *testing.T) {
	result, err := ComputeTax(twoBracketRule(), dec("15000"), RoundHalfUp)
	require.NoError(t, err)

	assert.True(t, result.Total.Equal(dec("2000")), "total %s", result.Total)
	require.Len(t, result.Breakdown, 2)
	assert.True(t, result.Breakdown[0].Amount.Equal(dec("1000")))
	assert.True(t, result.Breakdown[1].Amount.Equal(dec("1000")))
	assert.Nil(t, result.Breakdown[1].To)
}

func TestComputeTaxStopsAtIncome(t *testing.T) {
	cases := []struct {
		name      string
		income    string
		want      string
		breakdown int
	}{
		{"zero income", "0", "0", 0},
		{"negative income", "-50", "0", 0},
		{"inside first bracket", "4000", "400", 1},
		{"exactly at boundary", "10000", "1000", 1},
		{"just above boundary", "10000.01", "1000", 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := ComputeTax(twoBracketRule(), dec(tc.income), RoundHalfUp)
			require.NoError(t, err)
			assert.True(t, result.Total.Equal(dec(tc.want)), "total %s", result.Total)
			assert.Len(t, result.Breakdown, tc.breakdown)
		})
	}
}

func TestComputeTaxZeroTierFloor(t *testing.T) {
	rule := TaxRule{
		ID:                "floor",
		CalculationMethod: TaxMethodProgressive,
		Brackets: []TaxBracket{
			{IncomeFrom: dec("12000"), IncomeTo: decp("30000"), Rate: dec("15")},
			{IncomeFrom: dec("30000"), Rate: dec("25")},
		},
	}
	result, err := ComputeTax(rule, dec("11999.99"), RoundHalfUp)
	require.NoError(t, err)
	assert.True(t, result.Total.IsZero())
	assert.Empty(t, result.Breakdown)
}

func TestComputeTaxIsSumOfSlicesAndMonotonic(t *testing.T) {
	rule := TaxRule{
		ID:                "three",
		CalculationMethod: TaxMethodProgressive,
		Brackets: []TaxBracket{
			{IncomeFrom: dec("0"), IncomeTo: decp("1000"), Rate: dec("0")},
			{IncomeFrom: dec("1000"), IncomeTo: decp("5000"), Rate: dec("12.5")},
			{IncomeFrom: dec("5000"), Rate: dec("30")},
		},
	}
	previous := dec("0")
	for income := int64(0); income <= 9000; income += 250 {
		result, err := ComputeTax(rule, decimal.NewFromInt(income), RoundHalfUp)
		require.NoError(t, err)

		sum := dec("0")
		for _, b := range result.Breakdown {
			sum = sum.Add(b.Amount)
		}
		assert.True(t, result.Total.Equal(RoundHalfUp.Apply(sum)), "income %d: total %s vs slices %s", income, result.Total, sum)
		assert.True(t, result.Total.GreaterThanOrEqual(previous), "income %d: tax decreased", income)
		previous = result.Total
	}
}

func TestComputeTaxFlatAndThreshold(t *testing.T) {
	flat := TaxRule{ID: "flat", CalculationMethod: TaxMethodFlatRate, Rate: dec("7.5")}
	result, err := ComputeTax(flat, dec("2000"), RoundHalfUp)
	require.NoError(t, err)
	assert.True(t, result.Total.Equal(dec("150")))

	threshold := TaxRule{
		ID:                "threshold",
		CalculationMethod: TaxMethodThresholdBased,
		Brackets: []TaxBracket{
			{IncomeFrom: dec("0"), IncomeTo: decp("10000"), Rate: dec("10")},
			{IncomeFrom: dec("10000"), Rate: dec("20")},
		},
	}
	result, err = ComputeTax(threshold, dec("15000"), RoundHalfUp)
	require.NoError(t, err)
	assert.True(t, result.Total.Equal(dec("3000")), "threshold total %s", result.Total)
	require.Len(t, result.Breakdown, 1)
	assert.True(t, result.Breakdown[0].Rate.Equal(dec("20")))
}

func TestSelectTaxRule(t *testing.T) {
	general := twoBracketRule()
	specific := twoBracketRule()
	specific.ID = "contractor-tax"
	specific.EmployeeCategory = "contractor"
	expired := twoBracketRule()
	expired.ID = "old"
	expired.EmployeeCategory = "contractor"
	expired.EffectiveUntil = dayp("2023-12-31")
	draft := twoBracketRule()
	draft.ID = "draft"
	draft.Status = RuleStatusDraft

	rules := []TaxRule{general, specific, expired, draft}

	got, err := SelectTaxRule(rules, "contractor", day("2024-01-31"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "contractor-tax", got.ID)

	got, err = SelectTaxRule(rules, "staff", day("2024-01-31"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "income-tax", got.ID)

	got, err = SelectTaxRule(rules, "staff", day("2023-06-30"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSelectTaxRuleAmbiguous(t *testing.T) {
	a := twoBracketRule()
	b := twoBracketRule()
	b.ID = "income-tax-v2"

	_, err := SelectTaxRule([]TaxRule{a, b}, "staff", day("2024-03-31"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAmbiguousEffectiveRule))

	var ambiguous *AmbiguousRuleError
	require.True(t, errors.As(err, &ambiguous))
	assert.Equal(t, []string{"income-tax", "income-tax-v2"}, ambiguous.RuleIDs)
}
