package engine

import (
	"fmt"
)

// FatalError aborts a whole run with zero applied changes. It is reserved
// for the cases where the engine cannot even assemble its inputs, e.g. the
// rule store or price list store being unreachable.
type FatalError struct {
	Stage string
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// EvaluationError marks a single item whose context could not be resolved.
// The item is skipped; the run continues.
type EvaluationError struct {
	ItemID string
	Reason string
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("item %s: %s", e.ItemID, e.Reason)
}

// ActionError marks a single action that would produce an invalid price.
// The action is skipped; prior actions in the same rule still apply.
type ActionError struct {
	RuleID string
	ItemID string
	Kind   string
	Reason string
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("rule %s action %s on item %s: %s", e.RuleID, e.Kind, e.ItemID, e.Reason)
}
