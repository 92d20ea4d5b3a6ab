package rules

import (
	"fmt"
	"sort"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/shopspring/decimal"
)

// maxConditionDepth bounds condition tree recursion. The admin UI builds
// shallow trees; anything deeper is a malformed payload.
const maxConditionDepth = 32

// ConfigurationError marks a rule that is structurally invalid. Such rules
// are excluded from the active set with a warning; they never abort a run.
type ConfigurationError struct {
	RuleID   string
	RuleName string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("rule %s (%s): %s", e.RuleID, e.RuleName, e.Reason)
}

// CompiledRule is a validated rule ready for evaluation. Program is the
// compiled expression gate for dynamic rules, nil otherwise.
type CompiledRule struct {
	PricingRule
	Program *vm.Program
}

// Compile validates a single rule and compiles its expression gate.
func Compile(r PricingRule) (CompiledRule, error) {
	fail := func(reason string) (CompiledRule, error) {
		return CompiledRule{}, &ConfigurationError{RuleID: r.ID, RuleName: r.Name, Reason: reason}
	}

	if !r.RuleType.Valid() {
		return fail(fmt.Sprintf("unknown rule type %q", r.RuleType))
	}
	if r.Priority < 1 {
		return fail(fmt.Sprintf("priority must be >= 1, got %d", r.Priority))
	}
	if len(r.Actions) == 0 {
		return fail("rule has no actions")
	}

	if err := validateCondition(&r.Conditions, 0); err != nil {
		return fail(err.Error())
	}

	for i := range r.Actions {
		if err := validateAction(&r.Actions[i]); err != nil {
			return fail(fmt.Sprintf("action %d: %v", i, err))
		}
	}

	compiled := CompiledRule{PricingRule: r}

	if r.Expression != "" {
		if r.RuleType != RuleTypeDynamic {
			return fail("expression is only allowed on dynamic rules")
		}
		program, err := expr.Compile(r.Expression, expr.AsBool(), expr.AllowUndefinedVariables())
		if err != nil {
			return fail(fmt.Sprintf("expression does not compile: %v", err))
		}
		compiled.Program = program
	}

	return compiled, nil
}

// CompileAll partitions rules into the valid evaluation set, sorted by the
// priority contract, and per-rule configuration errors for the rest.
func CompileAll(rs []PricingRule) ([]CompiledRule, []*ConfigurationError) {
	valid := make([]PricingRule, 0, len(rs))
	compiled := make(map[string]CompiledRule, len(rs))
	var errs []*ConfigurationError

	for _, r := range rs {
		c, err := Compile(r)
		if err != nil {
			errs = append(errs, err.(*ConfigurationError))
			continue
		}
		valid = append(valid, r)
		compiled[r.ID] = c
	}

	SortRules(valid)

	out := make([]CompiledRule, len(valid))
	for i, r := range valid {
		out[i] = compiled[r.ID]
	}
	return out, errs
}

func validateCondition(c *Condition, depth int) error {
	if depth > maxConditionDepth {
		return fmt.Errorf("condition tree exceeds max depth %d", maxConditionDepth)
	}

	if c.IsComposite() {
		if c.Logical != LogicalAnd && c.Logical != LogicalOr {
			return fmt.Errorf("unknown logical operator %q", c.Logical)
		}
		if c.Field != "" || c.Operator != "" {
			return fmt.Errorf("composite node must not carry a field comparison")
		}
		for i := range c.Children {
			if err := validateCondition(&c.Children[i], depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	// A zero-value node counts as an empty AND: "no extra conditions".
	if c.Field == "" && c.Operator == "" && len(c.Children) == 0 {
		return nil
	}

	ft, ok := FieldCatalog[c.Field]
	if !ok {
		return fmt.Errorf("unknown field %q", c.Field)
	}
	if !OperatorValidFor(ft, c.Operator) {
		return fmt.Errorf("operator %q not valid for %s field %q", c.Operator, ft, c.Field)
	}
	return validateValueShape(c, ft)
}

func validateValueShape(c *Condition, ft FieldType) error {
	switch c.Operator {
	case OpIn:
		vals, ok := c.Value.([]any)
		if !ok || len(vals) == 0 {
			return fmt.Errorf("field %q: %q expects a non-empty list", c.Field, c.Operator)
		}
		for _, v := range vals {
			if err := checkScalar(v, ft); err != nil {
				return fmt.Errorf("field %q: %v", c.Field, err)
			}
		}
	case OpBetween:
		vals, ok := c.Value.([]any)
		if !ok || len(vals) != 2 {
			return fmt.Errorf("field %q: %q expects [low, high]", c.Field, c.Operator)
		}
		for _, v := range vals {
			if err := checkScalar(v, ft); err != nil {
				return fmt.Errorf("field %q: %v", c.Field, err)
			}
		}
	default:
		if err := checkScalar(c.Value, ft); err != nil {
			return fmt.Errorf("field %q: %v", c.Field, err)
		}
	}
	return nil
}

func checkScalar(v any, ft FieldType) error {
	switch ft {
	case FieldNumber:
		switch v.(type) {
		case float64, float32, int, int32, int64:
			return nil
		}
		return fmt.Errorf("expected a number, got %T", v)
	case FieldString:
		if _, ok := v.(string); ok {
			return nil
		}
		return fmt.Errorf("expected a string, got %T", v)
	case FieldBool:
		if _, ok := v.(bool); ok {
			return nil
		}
		return fmt.Errorf("expected a boolean, got %T", v)
	case FieldDate:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected a date string, got %T", v)
		}
		if _, err := ParseDate(s); err != nil {
			return fmt.Errorf("invalid date %q", s)
		}
		return nil
	}
	return fmt.Errorf("unsupported field type %q", ft)
}

// ParseDate accepts RFC 3339 timestamps and plain dates, which is what the
// admin UI submits for date-typed fields.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func validateAction(a *Action) error {
	if !a.Kind.Valid() {
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}

	minusHundred := decimal.NewFromInt(-100)
	switch a.Kind {
	case ActionSetPercentMargin, ActionStackPercent:
		if len(a.Tiers) == 0 && a.Value.LessThan(minusHundred) {
			return fmt.Errorf("percent value %s below -100", a.Value)
		}
	default:
		if len(a.Tiers) == 0 && a.Value.IsNegative() {
			return fmt.Errorf("price value %s is negative", a.Value)
		}
	}

	for i, t := range a.Tiers {
		if t.ThresholdQuantity < 0 {
			return fmt.Errorf("tier %d: negative threshold", i)
		}
		switch a.Kind {
		case ActionSetPercentMargin, ActionStackPercent:
			if t.Value.LessThan(minusHundred) {
				return fmt.Errorf("tier %d: percent value %s below -100", i, t.Value)
			}
		default:
			if t.Value.IsNegative() {
				return fmt.Errorf("tier %d: negative value", i)
			}
		}
	}

	// Normalize: tiers are consumed sorted ascending by threshold.
	sort.Slice(a.Tiers, func(i, j int) bool {
		return a.Tiers[i].ThresholdQuantity < a.Tiers[j].ThresholdQuantity
	})
	return nil
}
