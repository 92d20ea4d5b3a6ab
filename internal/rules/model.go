package rules

import (
	"sort"

	"github.com/shopspring/decimal"
)

// RuleType classifies a pricing rule for the admin UI. It is a label only:
// the rule's behavior is fully determined by its actions, except that
// dynamic rules may additionally carry an expression gate.
type RuleType string

const (
	RuleTypePercentual RuleType = "percentual"
	RuleTypeFixed      RuleType = "fixed"
	RuleTypeEscalated  RuleType = "escalated"
	RuleTypeDynamic    RuleType = "dynamic"
)

// Valid reports whether t is a known rule type.
func (t RuleType) Valid() bool {
	switch t {
	case RuleTypePercentual, RuleTypeFixed, RuleTypeEscalated, RuleTypeDynamic:
		return true
	}
	return false
}

// Operator is a comparison operator on a condition leaf.
type Operator string

const (
	OpEq      Operator = "eq"
	OpNeq     Operator = "neq"
	OpGt      Operator = "gt"
	OpGte     Operator = "gte"
	OpLt      Operator = "lt"
	OpLte     Operator = "lte"
	OpIn      Operator = "in"
	OpBetween Operator = "between"
)

// LogicalOperator combines children of a composite condition.
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "AND"
	LogicalOr  LogicalOperator = "OR"
)

// Condition is a node in a rule's condition tree. A node is either a leaf
// (Field/Operator/Value set) or a composite (LogicalOperator/Children set);
// the two variants are distinguished by LogicalOperator being non-empty.
type Condition struct {
	Field    string   `json:"field,omitempty"`
	Operator Operator `json:"operator,omitempty"`
	Value    any      `json:"value,omitempty"`

	Logical  LogicalOperator `json:"logicalOperator,omitempty"`
	Children []Condition     `json:"children,omitempty"`
}

// IsComposite reports whether the node is an AND/OR composite.
func (c *Condition) IsComposite() bool {
	return c.Logical != ""
}

// ActionKind identifies the price field an action writes and how.
type ActionKind string

const (
	ActionSetPercentMargin ActionKind = "setPercentMargin"
	ActionSetFixedPrice    ActionKind = "setFixedPrice"
	ActionSetHourlyRate    ActionKind = "setHourlyRate"
	ActionSetTravelCost    ActionKind = "setTravelCost"
	ActionSetSpecialPrice  ActionKind = "setSpecialPrice"
	ActionStackPercent     ActionKind = "stackPercent"
)

// Valid reports whether k is a known action kind.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionSetPercentMargin, ActionSetFixedPrice, ActionSetHourlyRate,
		ActionSetTravelCost, ActionSetSpecialPrice, ActionStackPercent:
		return true
	}
	return false
}

// Tier is one step of an escalated action. The tier whose threshold is the
// greatest value not exceeding the evaluation quantity supplies the value.
type Tier struct {
	ThresholdQuantity float64         `json:"thresholdQuantity"`
	Value             decimal.Decimal `json:"value"`
}

// Action mutates one field of an item's price state. When Tiers is set the
// effective value is resolved from the evaluation quantity; an action whose
// quantity falls below every threshold contributes no change.
type Action struct {
	Kind  ActionKind      `json:"kind"`
	Value decimal.Decimal `json:"value"`
	Tiers []Tier          `json:"tiers,omitempty"`
}

// PricingRule is an admin-authored rule. The engine only ever reads rules;
// it never mutates definitions.
type PricingRule struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenantId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	RuleType    RuleType  `json:"ruleType"`
	Priority    int       `json:"priority"`
	IsActive    bool      `json:"isActive"`
	Conditions  Condition `json:"conditions"`
	Actions     []Action  `json:"actions"`

	// Expression is an optional expr-lang gate evaluated against the item
	// context, used by dynamic rules. Compiled at load time.
	Expression string `json:"expression,omitempty"`
}

// SortRules orders rules by priority ascending (1 = evaluated first) with
// rule ID as the tie-breaker. This ordering is a contract: identical rule
// sets must always produce identical outcomes regardless of storage order.
func SortRules(rs []PricingRule) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Priority != rs[j].Priority {
			return rs[i].Priority < rs[j].Priority
		}
		return rs[i].ID < rs[j].ID
	})
}
