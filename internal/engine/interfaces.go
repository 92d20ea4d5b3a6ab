package engine

import (
	"context"

	"github.com/opsdesk/pricing-engine/internal/rules"
)

// RuleStore lists the active pricing rules in scope for a price list.
type RuleStore interface {
	ListActiveRules(ctx context.Context, tenantID, priceListID string) ([]rules.PricingRule, error)
}

// CatalogStore resolves item attributes for context assembly.
type CatalogStore interface {
	GetItemAttributes(ctx context.Context, itemIDs []string) (map[string]ItemAttributes, error)
}

// SaveOutcome reports which items a batch write committed and which it did
// not. Partial success is expected and surfaced, never swallowed.
type SaveOutcome struct {
	Succeeded []string
	Failed    map[string]string // item ID -> reason
}

// PriceListItemStore reads and writes price list item records.
type PriceListItemStore interface {
	GetPriceList(ctx context.Context, priceListID string) (PriceList, error)
	GetItems(ctx context.Context, priceListID string) ([]PriceListItem, error)
	SaveItems(ctx context.Context, priceListID string, items []PriceListItem) (SaveOutcome, error)
}

// AuditSink receives completed evaluation results. Implementations must not
// block the engine; delivery is fire-and-forget.
type AuditSink interface {
	RecordRun(result *EvaluationResult)
}
