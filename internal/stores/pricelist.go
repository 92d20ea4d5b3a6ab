package stores

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/opsdesk/pricing-engine/internal/engine"
)

// PriceListStore reads price lists and reads/writes their item records.
type PriceListStore struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPriceListStore creates a price list store backed by the given pool.
func NewPriceListStore(pool *pgxpool.Pool) *PriceListStore {
	return &PriceListStore{
		pool:   pool,
		logger: log.With().Str("component", "price_list_store").Logger(),
	}
}

// GetPriceList loads a price list with its company attributes.
func (s *PriceListStore) GetPriceList(ctx context.Context, priceListID string) (engine.PriceList, error) {
	var (
		pl     engine.PriceList
		margin decimal.NullDecimal
	)
	err := s.pool.QueryRow(ctx, `
		SELECT pl.id, pl.tenant_id, pl.name, pl.currency,
		       COALESCE(pl.customer_company_id, ''),
		       COALESCE(c.tier, ''),
		       pl.automatic_margin
		FROM price_lists pl
		LEFT JOIN companies c ON pl.customer_company_id = c.id
		WHERE pl.id = $1
	`, priceListID).Scan(
		&pl.ID, &pl.TenantID, &pl.Name, &pl.Currency,
		&pl.CustomerCompanyID, &pl.CustomerTier, &margin,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return engine.PriceList{}, fmt.Errorf("price list %s not found", priceListID)
		}
		return engine.PriceList{}, fmt.Errorf("failed to load price list %s: %w", priceListID, err)
	}
	if margin.Valid {
		pl.AutomaticMargin = &margin.Decimal
	}
	return pl, nil
}

// GetItems returns the active items of a price list.
func (s *PriceListStore) GetItems(ctx context.Context, priceListID string) ([]engine.PriceListItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT item_id, price_list_id, unit_price, special_price,
		       hourly_rate, travel_cost, quantity, surcharged, is_active
		FROM price_list_items
		WHERE price_list_id = $1 AND is_active = TRUE
		ORDER BY item_id
	`, priceListID)
	if err != nil {
		return nil, fmt.Errorf("failed to query price list items: %w", err)
	}
	defer rows.Close()

	var out []engine.PriceListItem
	for rows.Next() {
		var (
			it       engine.PriceListItem
			special  decimal.NullDecimal
			hourly   decimal.NullDecimal
			travel   decimal.NullDecimal
			quantity *float64
		)
		if err := rows.Scan(
			&it.ItemID, &it.PriceListID, &it.UnitPrice, &special,
			&hourly, &travel, &quantity, &it.Surcharged, &it.IsActive,
		); err != nil {
			return nil, fmt.Errorf("failed to scan price list item: %w", err)
		}
		if special.Valid {
			it.SpecialPrice = &special.Decimal
		}
		if hourly.Valid {
			it.HourlyRate = &hourly.Decimal
		}
		if travel.Valid {
			it.TravelCost = &travel.Decimal
		}
		it.Quantity = quantity
		out = append(out, it)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("error iterating price list items: %w", rows.Err())
	}
	return out, nil
}

// SaveItems writes the updated items one by one so each write commits
// independently: a failure for one item never rolls back another. The
// outcome reports both sides; partial success is expected and surfaced.
func (s *PriceListStore) SaveItems(ctx context.Context, priceListID string, items []engine.PriceListItem) (engine.SaveOutcome, error) {
	outcome := engine.SaveOutcome{
		Succeeded: make([]string, 0, len(items)),
		Failed:    make(map[string]string),
	}

	for _, it := range items {
		if ctx.Err() != nil {
			outcome.Failed[it.ItemID] = ctx.Err().Error()
			continue
		}

		tag, err := s.pool.Exec(ctx, `
			UPDATE price_list_items
			SET unit_price = $3,
			    special_price = $4,
			    hourly_rate = $5,
			    travel_cost = $6,
			    surcharged = $7,
			    updated_at = NOW()
			WHERE price_list_id = $1 AND item_id = $2
		`, priceListID, it.ItemID,
			it.UnitPrice, nullDecimal(it.SpecialPrice), nullDecimal(it.HourlyRate),
			nullDecimal(it.TravelCost), it.Surcharged,
		)
		if err != nil {
			s.logger.Error().
				Err(err).
				Str("price_list_id", priceListID).
				Str("item_id", it.ItemID).
				Msg("Failed to persist price list item")
			outcome.Failed[it.ItemID] = err.Error()
			continue
		}
		if tag.RowsAffected() == 0 {
			outcome.Failed[it.ItemID] = "item no longer exists"
			continue
		}
		outcome.Succeeded = append(outcome.Succeeded, it.ItemID)
	}

	return outcome, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
