package engine

import (
	"time"

	"github.com/opsdesk/pricing-engine/internal/rules"
)

// Evaluate evaluates a condition tree against an item context. It is a pure
// function with no side effects and is safe to call concurrently across
// items.
//
// A leaf referencing a field absent from the context evaluates to false:
// missing data never satisfies a condition. An empty AND evaluates to true
// ("no extra conditions" means the rule always applies); an empty OR
// evaluates to false.
func Evaluate(c *rules.Condition, ctx *Context) bool {
	if c.IsComposite() {
		if c.Logical == rules.LogicalOr {
			for i := range c.Children {
				if Evaluate(&c.Children[i], ctx) {
					return true
				}
			}
			return false
		}
		for i := range c.Children {
			if !Evaluate(&c.Children[i], ctx) {
				return false
			}
		}
		return true
	}

	// The zero node is an empty AND.
	if c.Field == "" && c.Operator == "" && len(c.Children) == 0 {
		return true
	}

	got, ok := ctx.Lookup(c.Field)
	if !ok {
		return false
	}

	switch c.Operator {
	case rules.OpEq:
		return scalarEqual(got, c.Value)
	case rules.OpNeq:
		return !scalarEqual(got, c.Value)
	case rules.OpGt, rules.OpGte, rules.OpLt, rules.OpLte:
		return ordered(got, c.Value, c.Operator)
	case rules.OpIn:
		vals, ok := c.Value.([]any)
		if !ok {
			return false
		}
		for _, v := range vals {
			if scalarEqual(got, v) {
				return true
			}
		}
		return false
	case rules.OpBetween:
		vals, ok := c.Value.([]any)
		if !ok || len(vals) != 2 {
			return false
		}
		// Inclusive on both bounds.
		return ordered(got, vals[0], rules.OpGte) && ordered(got, vals[1], rules.OpLte)
	}
	return false
}

func scalarEqual(got, want any) bool {
	if gf, ok := toFloat(got); ok {
		wf, ok := toFloat(want)
		return ok && gf == wf
	}
	if gt, ok := got.(time.Time); ok {
		wt, ok := toTime(want)
		return ok && gt.Equal(wt)
	}
	return got == want
}

func ordered(got, want any, op rules.Operator) bool {
	if gt, ok := got.(time.Time); ok {
		wt, ok := toTime(want)
		if !ok {
			return false
		}
		return orderedCmp(compareTimes(gt, wt), op)
	}

	gf, ok := toFloat(got)
	if !ok {
		return false
	}
	wf, ok := toFloat(want)
	if !ok {
		return false
	}
	switch {
	case gf < wf:
		return orderedCmp(-1, op)
	case gf > wf:
		return orderedCmp(1, op)
	default:
		return orderedCmp(0, op)
	}
}

func orderedCmp(cmp int, op rules.Operator) bool {
	switch op {
	case rules.OpGt:
		return cmp > 0
	case rules.OpGte:
		return cmp >= 0
	case rules.OpLt:
		return cmp < 0
	case rules.OpLte:
		return cmp <= 0
	}
	return false
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := rules.ParseDate(t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	}
	return time.Time{}, false
}
