package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/opsdesk/pricing-engine/internal/rules"
)

var hundred = decimal.NewFromInt(100)

// minorUnitPlaces is the minor-unit precision of the currencies in scope.
const minorUnitPlaces = 2

// roundPrice rounds to the currency's minor unit using round-half-up.
// Results are never silently truncated.
func roundPrice(d decimal.Decimal) decimal.Decimal {
	return d.Round(minorUnitPlaces)
}

// ApplyActions applies a matched rule's actions to the current price state,
// in declared order. Later actions in the same rule observe the state as
// mutated by earlier ones, so a rule can set a base price and then stack a
// surcharge on it.
//
// An action that would produce a negative price is rejected and reported;
// prior actions in the same rule keep their effect and the run continues.
func ApplyActions(ruleID, itemID string, actions []rules.Action, state PriceState, ctx *Context) (PriceState, []*ActionError) {
	var errs []*ActionError

	for i := range actions {
		a := &actions[i]

		value, ok := effectiveValue(a, ctx.Quantity)
		if !ok {
			// Quantity below the lowest tier threshold: no contribution.
			continue
		}

		next, err := applyOne(a.Kind, value, state, ctx)
		if err != nil {
			errs = append(errs, &ActionError{
				RuleID: ruleID,
				ItemID: itemID,
				Kind:   string(a.Kind),
				Reason: err.Error(),
			})
			continue
		}
		state = next
	}

	return state, errs
}

// effectiveValue resolves an action's numeric payload. For tiered actions
// the tier with the greatest threshold not exceeding the quantity wins;
// tiers are kept sorted ascending at load time.
func effectiveValue(a *rules.Action, quantity float64) (decimal.Decimal, bool) {
	if len(a.Tiers) == 0 {
		return a.Value, true
	}

	matched := false
	var value decimal.Decimal
	for _, t := range a.Tiers {
		if t.ThresholdQuantity > quantity {
			break
		}
		value = t.Value
		matched = true
	}
	return value, matched
}

func applyOne(kind rules.ActionKind, value decimal.Decimal, state PriceState, ctx *Context) (PriceState, error) {
	switch kind {
	case rules.ActionSetPercentMargin:
		base := state.UnitPrice
		if ctx.Attributes.BaseCost != nil {
			base = *ctx.Attributes.BaseCost
		}
		return setUnitPrice(state, base.Mul(hundred.Add(value)).Div(hundred), false)

	case rules.ActionStackPercent:
		// Always relative to the incoming state, never baseCost.
		return setUnitPrice(state, state.UnitPrice.Mul(hundred.Add(value)).Div(hundred), true)

	case rules.ActionSetFixedPrice:
		return setUnitPrice(state, value, false)

	case rules.ActionSetHourlyRate:
		rounded, err := checkedRound(value)
		if err != nil {
			return state, err
		}
		state.HourlyRate = &rounded
		return state, nil

	case rules.ActionSetTravelCost:
		rounded, err := checkedRound(value)
		if err != nil {
			return state, err
		}
		state.TravelCost = &rounded
		return state, nil

	case rules.ActionSetSpecialPrice:
		rounded, err := checkedRound(value)
		if err != nil {
			return state, err
		}
		state.SpecialPrice = &rounded
		return state, nil
	}

	return state, fmt.Errorf("unknown action kind %q", kind)
}

func setUnitPrice(state PriceState, raw decimal.Decimal, surcharge bool) (PriceState, error) {
	rounded, err := checkedRound(raw)
	if err != nil {
		return state, err
	}
	state.UnitPrice = rounded
	if surcharge {
		state.Surcharged = true
	}
	return state, nil
}

func checkedRound(raw decimal.Decimal) (decimal.Decimal, error) {
	rounded := roundPrice(raw)
	if rounded.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("would produce negative price %s", rounded)
	}
	return rounded, nil
}
