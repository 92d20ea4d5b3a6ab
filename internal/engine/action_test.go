package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdesk/pricing-engine/internal/rules"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func stateWithUnitPrice(s string) PriceState {
	return PriceState{UnitPrice: dec(s)}
}

func TestApplyPercentMarginUsesBaseCost(t *testing.T) {
	ctx := testContext() // baseCost 40

	next, errs := ApplyActions("r1", "item-1", []rules.Action{
		{Kind: rules.ActionSetPercentMargin, Value: dec("20")},
	}, stateWithUnitPrice("99"), ctx)

	require.Empty(t, errs)
	assert.True(t, next.UnitPrice.Equal(dec("48")), "40 * 1.20 = 48, got %s", next.UnitPrice)
	assert.False(t, next.Surcharged)
}

func TestApplyPercentMarginFallsBackToUnitPrice(t *testing.T) {
	ctx := testContext()
	ctx.Attributes.BaseCost = nil

	next, errs := ApplyActions("r1", "item-1", []rules.Action{
		{Kind: rules.ActionSetPercentMargin, Value: dec("10")},
	}, stateWithUnitPrice("50"), ctx)

	require.Empty(t, errs)
	assert.True(t, next.UnitPrice.Equal(dec("55")), "got %s", next.UnitPrice)
}

func TestApplyFixedPrice(t *testing.T) {
	next, errs := ApplyActions("r1", "item-1", []rules.Action{
		{Kind: rules.ActionSetFixedPrice, Value: dec("19.99")},
	}, stateWithUnitPrice("50"), testContext())

	require.Empty(t, errs)
	assert.True(t, next.UnitPrice.Equal(dec("19.99")))
}

func TestStackPercentIsRelativeAndSetsFlag(t *testing.T) {
	next, errs := ApplyActions("r2", "item-1", []rules.Action{
		{Kind: rules.ActionStackPercent, Value: dec("10")},
	}, stateWithUnitPrice("100"), testContext())

	require.Empty(t, errs)
	assert.True(t, next.UnitPrice.Equal(dec("110")), "got %s", next.UnitPrice)
	assert.True(t, next.Surcharged)
}

func TestStackPercentAfterFixedPriceWithinOneRule(t *testing.T) {
	// Later actions in the same rule observe the state left by earlier ones.
	next, errs := ApplyActions("r1", "item-1", []rules.Action{
		{Kind: rules.ActionSetFixedPrice, Value: dec("100")},
		{Kind: rules.ActionStackPercent, Value: dec("5")},
	}, stateWithUnitPrice("12.34"), testContext())

	require.Empty(t, errs)
	assert.True(t, next.UnitPrice.Equal(dec("105")), "got %s", next.UnitPrice)
}

func TestDiscountStacksMultiplicatively(t *testing.T) {
	// 50 -> +20% margin on baseCost 50 = 60.00 -> -5% = 57.00
	baseCost := dec("50")
	ctx := testContext()
	ctx.Attributes.BaseCost = &baseCost

	state, errs := ApplyActions("r1", "item-1", []rules.Action{
		{Kind: rules.ActionSetPercentMargin, Value: dec("20")},
	}, stateWithUnitPrice("50"), ctx)
	require.Empty(t, errs)
	require.True(t, state.UnitPrice.Equal(dec("60")), "got %s", state.UnitPrice)

	state, errs = ApplyActions("r2", "item-1", []rules.Action{
		{Kind: rules.ActionStackPercent, Value: dec("-5")},
	}, state, ctx)
	require.Empty(t, errs)
	assert.Equal(t, "57.00", state.UnitPrice.StringFixed(2))
}

func TestRoundHalfUpToMinorUnit(t *testing.T) {
	ctx := testContext()
	ctx.Attributes.BaseCost = nil

	// 33.33 * 1.05 = 34.9965 -> 35.00
	next, errs := ApplyActions("r1", "item-1", []rules.Action{
		{Kind: rules.ActionStackPercent, Value: dec("5")},
	}, stateWithUnitPrice("33.33"), ctx)
	require.Empty(t, errs)
	assert.Equal(t, "35.00", next.UnitPrice.StringFixed(2))

	// 10.005 rounds up, not to even.
	next, errs = ApplyActions("r1", "item-1", []rules.Action{
		{Kind: rules.ActionSetFixedPrice, Value: dec("10.005")},
	}, stateWithUnitPrice("1"), ctx)
	require.Empty(t, errs)
	assert.Equal(t, "10.01", next.UnitPrice.StringFixed(2))
}

func TestSecondaryPriceFields(t *testing.T) {
	next, errs := ApplyActions("r1", "item-1", []rules.Action{
		{Kind: rules.ActionSetHourlyRate, Value: dec("85")},
		{Kind: rules.ActionSetTravelCost, Value: dec("0.45")},
		{Kind: rules.ActionSetSpecialPrice, Value: dec("42")},
	}, stateWithUnitPrice("50"), testContext())

	require.Empty(t, errs)
	require.NotNil(t, next.HourlyRate)
	require.NotNil(t, next.TravelCost)
	require.NotNil(t, next.SpecialPrice)
	assert.True(t, next.HourlyRate.Equal(dec("85")))
	assert.True(t, next.TravelCost.Equal(dec("0.45")))
	assert.True(t, next.SpecialPrice.Equal(dec("42")))
	assert.True(t, next.UnitPrice.Equal(dec("50")), "unit price must be untouched")
}

func TestNegativeResultRejectedPriorActionsKept(t *testing.T) {
	next, errs := ApplyActions("r1", "item-1", []rules.Action{
		{Kind: rules.ActionSetFixedPrice, Value: dec("10")},
		{Kind: rules.ActionStackPercent, Value: dec("-150")},
	}, stateWithUnitPrice("50"), testContext())

	require.Len(t, errs, 1)
	assert.Equal(t, "r1", errs[0].RuleID)
	assert.Contains(t, errs[0].Reason, "negative")
	// The fixed price from the first action survives the rejection.
	assert.True(t, next.UnitPrice.Equal(dec("10")), "got %s", next.UnitPrice)
}

func TestEscalatedTierResolution(t *testing.T) {
	tiers := []rules.Tier{
		{ThresholdQuantity: 5, Value: dec("90")},
		{ThresholdQuantity: 10, Value: dec("80")},
	}
	action := []rules.Action{{Kind: rules.ActionSetFixedPrice, Tiers: tiers}}

	cases := []struct {
		quantity float64
		want     string
	}{
		{3, "100"}, // below every threshold: no contribution
		{5, "90"},
		{7, "90"},
		{10, "80"},
		{250, "80"},
	}

	for _, tc := range cases {
		ctx := testContext()
		ctx.Quantity = tc.quantity

		next, errs := ApplyActions("r1", "item-1", action, stateWithUnitPrice("100"), ctx)
		require.Empty(t, errs)
		assert.True(t, next.UnitPrice.Equal(dec(tc.want)),
			"quantity %v: want %s, got %s", tc.quantity, tc.want, next.UnitPrice)
	}
}

func TestApplyActionsIsPureOverInputState(t *testing.T) {
	initial := stateWithUnitPrice("50")

	_, _ = ApplyActions("r1", "item-1", []rules.Action{
		{Kind: rules.ActionSetFixedPrice, Value: dec("99")},
	}, initial, testContext())

	assert.True(t, initial.UnitPrice.Equal(dec("50")), "input state must not be mutated")
}
