package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceList carries the list-level attributes rules may read.
type PriceList struct {
	ID                string           `json:"id"`
	TenantID          string           `json:"tenantId"`
	Name              string           `json:"name"`
	Currency          string           `json:"currency"`
	CustomerCompanyID string           `json:"customerCompanyId,omitempty"`
	CustomerTier      string           `json:"customerTier,omitempty"`
	AutomaticMargin   *decimal.Decimal `json:"automaticMargin,omitempty"`
}

// PriceListItem is the persisted price record the engine mutates.
type PriceListItem struct {
	ItemID       string           `json:"itemId"`
	PriceListID  string           `json:"priceListId"`
	UnitPrice    decimal.Decimal  `json:"unitPrice"`
	SpecialPrice *decimal.Decimal `json:"specialPrice,omitempty"`
	HourlyRate   *decimal.Decimal `json:"hourlyRate,omitempty"`
	TravelCost   *decimal.Decimal `json:"travelCost,omitempty"`
	Quantity     *float64         `json:"quantity,omitempty"`
	Surcharged   bool             `json:"surcharged,omitempty"`
	IsActive     bool             `json:"isActive"`
}

// ItemAttributes are the catalog attributes of an item.
type ItemAttributes struct {
	ItemID          string           `json:"itemId"`
	Category        string           `json:"category"`
	Subcategory     string           `json:"subcategory,omitempty"`
	MeasurementUnit string           `json:"measurementUnit,omitempty"`
	BaseCost        *decimal.Decimal `json:"baseCost,omitempty"`
	IntroducedAt    *time.Time       `json:"introducedAt,omitempty"`
}

// PriceState is the mutable price portion of an item during evaluation.
// Rules later in priority order observe the state as left by earlier rules.
type PriceState struct {
	UnitPrice    decimal.Decimal  `json:"unitPrice"`
	SpecialPrice *decimal.Decimal `json:"specialPrice,omitempty"`
	HourlyRate   *decimal.Decimal `json:"hourlyRate,omitempty"`
	TravelCost   *decimal.Decimal `json:"travelCost,omitempty"`
	Surcharged   bool             `json:"surcharged,omitempty"`
}

// Equal reports whether two price states are identical.
func (s PriceState) Equal(o PriceState) bool {
	return s.UnitPrice.Equal(o.UnitPrice) &&
		optEqual(s.SpecialPrice, o.SpecialPrice) &&
		optEqual(s.HourlyRate, o.HourlyRate) &&
		optEqual(s.TravelCost, o.TravelCost) &&
		s.Surcharged == o.Surcharged
}

func optEqual(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// ItemStatus classifies the outcome for one item within a run.
type ItemStatus string

const (
	// ItemApplied means the item's state changed and the change persisted.
	ItemApplied ItemStatus = "applied"

	// ItemUnchanged means rules produced no diff from the initial state.
	ItemUnchanged ItemStatus = "unchanged"

	// ItemSkipped means the item's context could not be resolved.
	ItemSkipped ItemStatus = "skipped"

	// ItemFailed means the computed state could not be persisted.
	ItemFailed ItemStatus = "failed"

	// ItemUnprocessed means the run was cancelled before reaching the item.
	ItemUnprocessed ItemStatus = "unprocessed"
)

// ItemResult is the per-item audit record of a run.
type ItemResult struct {
	ItemID         string     `json:"itemId"`
	Status         ItemStatus `json:"status"`
	PreviousState  PriceState `json:"previousState"`
	NewState       PriceState `json:"newState"`
	MatchedRuleIDs []string   `json:"matchedRuleIds"`
	Reason         string     `json:"reason,omitempty"`
	AppliedAt      time.Time  `json:"appliedAt"`
}

// RunStatus is the overall outcome of an apply-rules invocation.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunPartial   RunStatus = "partial"
	RunCancelled RunStatus = "cancelled"
	RunFailed    RunStatus = "failed"
)

// Warning surfaces a rule excluded from the active set, or an action that
// was rejected during application. The run itself proceeds.
type Warning struct {
	RuleID   string `json:"ruleId,omitempty"`
	RuleName string `json:"ruleName,omitempty"`
	ItemID   string `json:"itemId,omitempty"`
	Reason   string `json:"reason"`
}

// EvaluationResult is the full outcome of one apply-rules invocation.
// The engine is stateless between invocations; persistence of this record
// is the audit sink's concern.
type EvaluationResult struct {
	RunID             string       `json:"runId"`
	PriceListID       string       `json:"priceListId"`
	TenantID          string       `json:"tenantId"`
	Status            RunStatus    `json:"status"`
	DryRun            bool         `json:"dryRun,omitempty"`
	Items             []ItemResult `json:"items"`
	Warnings          []Warning    `json:"warnings,omitempty"`
	AffectedItemCount int          `json:"affectedItemCount"`
	StartedAt         time.Time    `json:"startedAt"`
	CompletedAt       time.Time    `json:"completedAt"`
}

// ApplyOptions tune a single apply-rules invocation.
type ApplyOptions struct {
	// DryRun computes the full result without persisting item changes.
	DryRun bool `json:"dryRun,omitempty"`

	// Quantity overrides the evaluation quantity used for quantityTier
	// conditions and escalated tiers. Items carrying their own quantity
	// keep it; zero falls back to the engine default.
	Quantity float64 `json:"quantity,omitempty"`
}

// Config tunes the engine.
type Config struct {
	// Concurrency bounds the per-item worker pool.
	Concurrency int

	// PersistTimeout caps the final batch write. The batch fails closed on
	// expiry; retries are the store's concern, not the engine's.
	PersistTimeout time.Duration

	// DefaultQuantity is the evaluation quantity when neither the request
	// nor the item record supplies one.
	DefaultQuantity float64
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency:     8,
		PersistTimeout:  10 * time.Second,
		DefaultQuantity: 1,
	}
}
