package rules

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRule(id string, priority int) PricingRule {
	return PricingRule{
		ID:       id,
		TenantID: "t1",
		Name:     "rule " + id,
		RuleType: RuleTypePercentual,
		Priority: priority,
		IsActive: true,
		Conditions: Condition{
			Field:    "category",
			Operator: OpEq,
			Value:    "hardware",
		},
		Actions: []Action{
			{Kind: ActionSetPercentMargin, Value: decimal.NewFromInt(20)},
		},
	}
}

func TestCompileValidRule(t *testing.T) {
	compiled, err := Compile(validRule("r1", 100))
	require.NoError(t, err)
	assert.Equal(t, "r1", compiled.ID)
	assert.Nil(t, compiled.Program, "non-dynamic rule should have no expression program")
}

func TestCompileRejectsUnknownField(t *testing.T) {
	r := validRule("r1", 100)
	r.Conditions = Condition{Field: "warehouse", Operator: OpEq, Value: "A"}

	_, err := Compile(r)
	require.Error(t, err)
	cfgErr, ok := err.(*ConfigurationError)
	require.True(t, ok)
	assert.Equal(t, "r1", cfgErr.RuleID)
	assert.Contains(t, cfgErr.Reason, "unknown field")
}

func TestCompileRejectsOperatorTypeMismatch(t *testing.T) {
	r := validRule("r1", 100)
	// gt on a string field is a type error, not a runtime miss
	r.Conditions = Condition{Field: "category", Operator: OpGt, Value: "hardware"}

	_, err := Compile(r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid for")
}

func TestCompileRejectsBadValueShapes(t *testing.T) {
	cases := []struct {
		name      string
		condition Condition
		reason    string
	}{
		{
			name:      "in with empty list",
			condition: Condition{Field: "category", Operator: OpIn, Value: []any{}},
			reason:    "non-empty list",
		},
		{
			name:      "in with scalar",
			condition: Condition{Field: "category", Operator: OpIn, Value: "hardware"},
			reason:    "non-empty list",
		},
		{
			name:      "between with one bound",
			condition: Condition{Field: "baseCost", Operator: OpBetween, Value: []any{10.0}},
			reason:    "[low, high]",
		},
		{
			name:      "number field with string value",
			condition: Condition{Field: "baseCost", Operator: OpGt, Value: "ten"},
			reason:    "expected a number",
		},
		{
			name:      "date field with malformed date",
			condition: Condition{Field: "introducedAt", Operator: OpGte, Value: "last tuesday"},
			reason:    "invalid date",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := validRule("r1", 100)
			r.Conditions = tc.condition
			_, err := Compile(r)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.reason)
		})
	}
}

func TestCompileRejectsMixedCompositeNode(t *testing.T) {
	r := validRule("r1", 100)
	r.Conditions = Condition{
		Logical:  LogicalAnd,
		Field:    "category",
		Operator: OpEq,
		Value:    "hardware",
	}

	_, err := Compile(r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "composite node")
}

func TestCompileAcceptsEmptyConditionTree(t *testing.T) {
	r := validRule("r1", 100)
	r.Conditions = Condition{}

	_, err := Compile(r)
	assert.NoError(t, err)
}

func TestCompileRejectsRuleWithoutActions(t *testing.T) {
	r := validRule("r1", 100)
	r.Actions = nil

	_, err := Compile(r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no actions")
}

func TestCompileRejectsNegativePrices(t *testing.T) {
	r := validRule("r1", 100)
	r.Actions = []Action{{Kind: ActionSetFixedPrice, Value: decimal.NewFromInt(-5)}}

	_, err := Compile(r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "negative")
}

func TestCompileAllowsNegativePercentDownToMinusHundred(t *testing.T) {
	r := validRule("r1", 100)
	r.Actions = []Action{{Kind: ActionSetPercentMargin, Value: decimal.NewFromInt(-100)}}
	_, err := Compile(r)
	assert.NoError(t, err)

	r.Actions = []Action{{Kind: ActionSetPercentMargin, Value: decimal.NewFromInt(-101)}}
	_, err = Compile(r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "below -100")
}

func TestCompileBoundsTieredPercentValues(t *testing.T) {
	// Tiered percents get the same -100 floor as scalar ones.
	r := validRule("r1", 100)
	r.RuleType = RuleTypeEscalated
	r.Actions = []Action{{
		Kind: ActionStackPercent,
		Tiers: []Tier{
			{ThresholdQuantity: 5, Value: decimal.NewFromInt(-100)},
		},
	}}
	_, err := Compile(r)
	assert.NoError(t, err)

	r.Actions[0].Tiers[0].Value = decimal.NewFromInt(-150)
	_, err = Compile(r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "below -100")
}

func TestCompileSortsTiersAscending(t *testing.T) {
	r := validRule("r1", 100)
	r.RuleType = RuleTypeEscalated
	r.Actions = []Action{{
		Kind: ActionSetFixedPrice,
		Tiers: []Tier{
			{ThresholdQuantity: 10, Value: decimal.NewFromInt(80)},
			{ThresholdQuantity: 5, Value: decimal.NewFromInt(90)},
		},
	}}

	compiled, err := Compile(r)
	require.NoError(t, err)
	tiers := compiled.Actions[0].Tiers
	require.Len(t, tiers, 2)
	assert.Equal(t, 5.0, tiers[0].ThresholdQuantity)
	assert.Equal(t, 10.0, tiers[1].ThresholdQuantity)
}

func TestCompileDynamicExpression(t *testing.T) {
	r := validRule("r1", 100)
	r.RuleType = RuleTypeDynamic
	r.Expression = `category == "hardware" && quantityTier >= 5`

	compiled, err := Compile(r)
	require.NoError(t, err)
	assert.NotNil(t, compiled.Program)
}

func TestCompileRejectsExpressionOnStaticRule(t *testing.T) {
	r := validRule("r1", 100)
	r.Expression = `true`

	_, err := Compile(r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dynamic")
}

func TestCompileRejectsBrokenExpression(t *testing.T) {
	r := validRule("r1", 100)
	r.RuleType = RuleTypeDynamic
	r.Expression = `category ==`

	_, err := Compile(r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not compile")
}

func TestCompileAllPartitionsAndSorts(t *testing.T) {
	bad := validRule("r-bad", 50)
	bad.Priority = 0

	ruleSet := []PricingRule{
		validRule("r-b", 200),
		bad,
		validRule("r-z", 100),
		validRule("r-a", 100),
	}

	compiled, errs := CompileAll(ruleSet)

	require.Len(t, errs, 1)
	assert.Equal(t, "r-bad", errs[0].RuleID)

	// Priority ascending, rule ID as tie-break.
	require.Len(t, compiled, 3)
	assert.Equal(t, "r-a", compiled[0].ID)
	assert.Equal(t, "r-z", compiled[1].ID)
	assert.Equal(t, "r-b", compiled[2].ID)
}

func TestCompileAllIsDeterministicAcrossInputOrder(t *testing.T) {
	a := validRule("r-a", 100)
	b := validRule("r-b", 100)
	c := validRule("r-c", 10)

	first, _ := CompileAll([]PricingRule{a, b, c})
	second, _ := CompileAll([]PricingRule{b, c, a})

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
}

func TestParseDate(t *testing.T) {
	_, err := ParseDate("2026-03-01")
	assert.NoError(t, err)

	_, err = ParseDate("2026-03-01T10:30:00Z")
	assert.NoError(t, err)

	_, err = ParseDate("01/03/2026")
	assert.Error(t, err)
}
