// Package stores contains the Postgres-backed collaborators of the rule
// engine: the item catalog, the price list item store and the run audit
// store.
package stores

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/opsdesk/pricing-engine/internal/engine"
)

// CatalogStore reads item attributes from the shared catalog tables.
type CatalogStore struct {
	pool *pgxpool.Pool
}

// NewCatalogStore creates a catalog store backed by the given pool.
func NewCatalogStore(pool *pgxpool.Pool) *CatalogStore {
	return &CatalogStore{pool: pool}
}

// GetItemAttributes returns attributes keyed by item ID. Items unknown to
// the catalog are simply absent from the map; the resolver flags them as
// skipped.
func (s *CatalogStore) GetItemAttributes(ctx context.Context, itemIDs []string) (map[string]engine.ItemAttributes, error) {
	if len(itemIDs) == 0 {
		return map[string]engine.ItemAttributes{}, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, category, COALESCE(subcategory, ''), COALESCE(measurement_unit, ''),
		       base_cost, introduced_at
		FROM catalog_items
		WHERE id = ANY($1)
	`, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog items: %w", err)
	}
	defer rows.Close()

	out := make(map[string]engine.ItemAttributes, len(itemIDs))
	for rows.Next() {
		var (
			attr     engine.ItemAttributes
			baseCost decimal.NullDecimal
		)
		if err := rows.Scan(
			&attr.ItemID, &attr.Category, &attr.Subcategory, &attr.MeasurementUnit,
			&baseCost, &attr.IntroducedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan catalog item: %w", err)
		}
		if baseCost.Valid {
			attr.BaseCost = &baseCost.Decimal
		}
		out[attr.ItemID] = attr
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("error iterating catalog items: %w", rows.Err())
	}
	return out, nil
}
