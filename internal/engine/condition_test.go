package engine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/opsdesk/pricing-engine/internal/rules"
)

func testContext() *Context {
	baseCost := decimal.NewFromInt(40)
	introduced := time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)
	return &Context{
		ItemID: "item-1",
		Attributes: ItemAttributes{
			ItemID:          "item-1",
			Category:        "hardware",
			Subcategory:     "fasteners",
			MeasurementUnit: "piece",
			BaseCost:        &baseCost,
			IntroducedAt:    &introduced,
		},
		PriceList: PriceList{
			ID:           "pl-1",
			TenantID:     "t1",
			Currency:     "EUR",
			CustomerTier: "gold",
		},
		Quantity: 7,
		State: PriceState{
			UnitPrice: decimal.NewFromInt(50),
		},
	}
}

func leaf(field string, op rules.Operator, value any) rules.Condition {
	return rules.Condition{Field: field, Operator: op, Value: value}
}

func TestEvaluateLeafOperators(t *testing.T) {
	ctx := testContext()

	cases := []struct {
		name string
		cond rules.Condition
		want bool
	}{
		{"eq string match", leaf("category", rules.OpEq, "hardware"), true},
		{"eq string miss", leaf("category", rules.OpEq, "services"), false},
		{"neq string", leaf("category", rules.OpNeq, "services"), true},
		{"gt number", leaf("baseCost", rules.OpGt, 30.0), true},
		{"gt number equal is false", leaf("baseCost", rules.OpGt, 40.0), false},
		{"gte number equal is true", leaf("baseCost", rules.OpGte, 40.0), true},
		{"lt number", leaf("baseCost", rules.OpLt, 100.0), true},
		{"lte number", leaf("baseCost", rules.OpLte, 40.0), true},
		{"int condition value against number field", leaf("baseCost", rules.OpGt, 30), true},
		{"in match", leaf("category", rules.OpIn, []any{"services", "hardware"}), true},
		{"in miss", leaf("category", rules.OpIn, []any{"services", "software"}), false},
		{"between inclusive low", leaf("baseCost", rules.OpBetween, []any{40.0, 60.0}), true},
		{"between inclusive high", leaf("baseCost", rules.OpBetween, []any{20.0, 40.0}), true},
		{"between outside", leaf("baseCost", rules.OpBetween, []any{41.0, 60.0}), false},
		{"quantity tier", leaf("quantityTier", rules.OpGte, 5.0), true},
		{"current unit price", leaf("currentUnitPrice", rules.OpEq, 50.0), true},
		{"date gte", leaf("introducedAt", rules.OpGte, "2026-01-01"), true},
		{"date lt", leaf("introducedAt", rules.OpLt, "2026-01-01"), false},
		{"date between", leaf("introducedAt", rules.OpBetween, []any{"2026-02-01", "2026-03-01"}), true},
		{"bool eq", leaf("hasSurcharge", rules.OpEq, false), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Evaluate(&tc.cond, ctx))
		})
	}
}

func TestEvaluateMissingFieldFailsClosed(t *testing.T) {
	ctx := testContext()
	ctx.Attributes.BaseCost = nil
	ctx.PriceList.CustomerTier = ""

	// A missing field never satisfies any comparison, including neq.
	assert.False(t, Evaluate(&rules.Condition{Field: "baseCost", Operator: rules.OpGt, Value: 0.0}, ctx))
	assert.False(t, Evaluate(&rules.Condition{Field: "baseCost", Operator: rules.OpNeq, Value: 999.0}, ctx))
	assert.False(t, Evaluate(&rules.Condition{Field: "customerTier", Operator: rules.OpEq, Value: "gold"}, ctx))
}

func TestEvaluateVacuousTruth(t *testing.T) {
	ctx := testContext()

	emptyAnd := rules.Condition{Logical: rules.LogicalAnd}
	assert.True(t, Evaluate(&emptyAnd, ctx), "empty AND must evaluate to true")

	emptyOr := rules.Condition{Logical: rules.LogicalOr}
	assert.False(t, Evaluate(&emptyOr, ctx), "empty OR must evaluate to false")

	zero := rules.Condition{}
	assert.True(t, Evaluate(&zero, ctx), "zero node counts as an empty AND")
}

func TestEvaluateCompositeTrees(t *testing.T) {
	ctx := testContext()

	and := rules.Condition{
		Logical: rules.LogicalAnd,
		Children: []rules.Condition{
			leaf("category", rules.OpEq, "hardware"),
			leaf("quantityTier", rules.OpGte, 5.0),
		},
	}
	assert.True(t, Evaluate(&and, ctx))

	and.Children[1] = leaf("quantityTier", rules.OpGte, 50.0)
	assert.False(t, Evaluate(&and, ctx))

	or := rules.Condition{
		Logical: rules.LogicalOr,
		Children: []rules.Condition{
			leaf("category", rules.OpEq, "services"),
			leaf("customerTier", rules.OpEq, "gold"),
		},
	}
	assert.True(t, Evaluate(&or, ctx))

	nested := rules.Condition{
		Logical: rules.LogicalAnd,
		Children: []rules.Condition{
			leaf("currency", rules.OpEq, "EUR"),
			{
				Logical: rules.LogicalOr,
				Children: []rules.Condition{
					leaf("category", rules.OpEq, "services"),
					leaf("subcategory", rules.OpEq, "fasteners"),
				},
			},
		},
	}
	assert.True(t, Evaluate(&nested, ctx))
}

func TestEvaluateAndShortCircuitsOnMissingField(t *testing.T) {
	ctx := testContext()
	ctx.Attributes.BaseCost = nil

	and := rules.Condition{
		Logical: rules.LogicalAnd,
		Children: []rules.Condition{
			leaf("baseCost", rules.OpGt, 0.0),
			leaf("category", rules.OpEq, "hardware"),
		},
	}
	assert.False(t, Evaluate(&and, ctx))
}

func TestLookupSurchargeReflectsCurrentState(t *testing.T) {
	ctx := testContext()
	ctx.State.Surcharged = true

	cond := leaf("hasSurcharge", rules.OpEq, true)
	assert.True(t, Evaluate(&cond, ctx))
}

func TestExprEnvOmitsAbsentFields(t *testing.T) {
	ctx := testContext()
	ctx.Attributes.BaseCost = nil

	env := ctx.ExprEnv()
	_, present := env["baseCost"]
	assert.False(t, present)
	assert.Equal(t, "hardware", env["category"])
	assert.Equal(t, 7.0, env["quantityTier"])
	assert.Equal(t, "item-1", env["itemId"])
}
