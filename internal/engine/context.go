package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Context is the evaluation context for one (priceList, item) pair. It is
// constructed fresh at the start of a run and discarded afterwards; nothing
// is shared or cached across runs.
type Context struct {
	ItemID     string
	Attributes ItemAttributes
	PriceList  PriceList
	Quantity   float64
	State      PriceState
}

// Lookup fetches a condition field from the context. The second return is
// false when the field is absent, which makes the referencing leaf evaluate
// to false: missing data never satisfies a condition.
func (c *Context) Lookup(field string) (any, bool) {
	switch field {
	case "category":
		return nonEmpty(c.Attributes.Category)
	case "subcategory":
		return nonEmpty(c.Attributes.Subcategory)
	case "measurementUnit":
		return nonEmpty(c.Attributes.MeasurementUnit)
	case "customerTier":
		return nonEmpty(c.PriceList.CustomerTier)
	case "currency":
		return nonEmpty(c.PriceList.Currency)
	case "customerCompanyId":
		return nonEmpty(c.PriceList.CustomerCompanyID)
	case "baseCost":
		if c.Attributes.BaseCost == nil {
			return nil, false
		}
		return c.Attributes.BaseCost.InexactFloat64(), true
	case "quantityTier":
		return c.Quantity, true
	case "currentUnitPrice":
		return c.State.UnitPrice.InexactFloat64(), true
	case "currentSpecialPrice":
		if c.State.SpecialPrice == nil {
			return nil, false
		}
		return c.State.SpecialPrice.InexactFloat64(), true
	case "currentHourlyRate":
		if c.State.HourlyRate == nil {
			return nil, false
		}
		return c.State.HourlyRate.InexactFloat64(), true
	case "currentTravelCost":
		if c.State.TravelCost == nil {
			return nil, false
		}
		return c.State.TravelCost.InexactFloat64(), true
	case "automaticMargin":
		if c.PriceList.AutomaticMargin == nil {
			return nil, false
		}
		return c.PriceList.AutomaticMargin.InexactFloat64(), true
	case "hasSurcharge":
		return c.State.Surcharged, true
	case "isActive":
		return true, true
	case "introducedAt":
		if c.Attributes.IntroducedAt == nil {
			return nil, false
		}
		return *c.Attributes.IntroducedAt, true
	}
	return nil, false
}

func nonEmpty(s string) (any, bool) {
	if s == "" {
		return nil, false
	}
	return s, true
}

// ExprEnv exposes the context to dynamic rule expressions. Absent fields
// are simply not present in the map; expressions referencing them evaluate
// against nil, which AsBool() rejects at runtime, keeping dynamic rules as
// fail-closed as condition leaves.
func (c *Context) ExprEnv() map[string]any {
	env := make(map[string]any, len(contextFields))
	for _, f := range contextFields {
		if v, ok := c.Lookup(f); ok {
			env[f] = v
		}
	}
	env["itemId"] = c.ItemID
	return env
}

var contextFields = []string{
	"category", "subcategory", "measurementUnit", "customerTier",
	"currency", "customerCompanyId", "baseCost", "quantityTier",
	"currentUnitPrice", "currentSpecialPrice", "currentHourlyRate",
	"currentTravelCost", "automaticMargin", "hasSurcharge", "isActive",
	"introducedAt",
}

// ContextResolver assembles evaluation contexts from the catalog and the
// price list item records. It fails per item, not per batch.
type ContextResolver struct {
	catalog CatalogStore
	logger  zerolog.Logger
}

// NewContextResolver creates a resolver backed by the given catalog store.
func NewContextResolver(catalog CatalogStore) *ContextResolver {
	return &ContextResolver{
		catalog: catalog,
		logger:  log.With().Str("component", "context_resolver").Logger(),
	}
}

// ResolveOutcome separates resolved contexts from items that could not be
// resolved and are skipped for the rest of the run.
type ResolveOutcome struct {
	Contexts []*Context
	Skipped  []*EvaluationError
}

// Resolve builds a fresh context per item. A catalog read failure for the
// whole batch is fatal; an individual item with a dangling catalog
// reference is flagged skipped and the batch continues.
func (r *ContextResolver) Resolve(ctx context.Context, pl PriceList, items []PriceListItem, defaultQty float64) (ResolveOutcome, error) {
	itemIDs := make([]string, len(items))
	for i, it := range items {
		itemIDs[i] = it.ItemID
	}

	attrs, err := r.catalog.GetItemAttributes(ctx, itemIDs)
	if err != nil {
		return ResolveOutcome{}, &FatalError{Stage: "resolve item attributes", Err: err}
	}

	outcome := ResolveOutcome{Contexts: make([]*Context, 0, len(items))}
	for _, it := range items {
		attr, ok := attrs[it.ItemID]
		if !ok {
			r.logger.Warn().
				Str("price_list_id", pl.ID).
				Str("item_id", it.ItemID).
				Msg("Item has no catalog attributes, skipping")
			outcome.Skipped = append(outcome.Skipped, &EvaluationError{
				ItemID: it.ItemID,
				Reason: fmt.Sprintf("no catalog attributes for item %s", it.ItemID),
			})
			continue
		}

		quantity := defaultQty
		if it.Quantity != nil && *it.Quantity > 0 {
			quantity = *it.Quantity
		}

		outcome.Contexts = append(outcome.Contexts, &Context{
			ItemID:     it.ItemID,
			Attributes: attr,
			PriceList:  pl,
			Quantity:   quantity,
			State: PriceState{
				UnitPrice:    it.UnitPrice,
				SpecialPrice: it.SpecialPrice,
				HourlyRate:   it.HourlyRate,
				TravelCost:   it.TravelCost,
				Surcharged:   it.Surcharged,
			},
		})
	}

	return outcome, nil
}
