package rules

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store reads pricing rule definitions from Postgres. Rules are authored by
// the admin UI; this service only ever lists them.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a rule store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// ListActiveRules returns the active rules in scope for a price list: rules
// bound to it plus the tenant's unscoped rules. Order is unspecified; the
// engine sorts by the priority contract after validation.
func (s *Store) ListActiveRules(ctx context.Context, tenantID, priceListID string) ([]PricingRule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, name, COALESCE(description, ''), rule_type,
		       priority, is_active, conditions, actions, COALESCE(expression, '')
		FROM pricing_rules
		WHERE tenant_id = $1
		  AND is_active = TRUE
		  AND (price_list_id IS NULL OR price_list_id = $2)
	`, tenantID, priceListID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pricing rules: %w", err)
	}
	defer rows.Close()

	var out []PricingRule
	for rows.Next() {
		var (
			r          PricingRule
			conditions []byte
			actions    []byte
		)
		if err := rows.Scan(
			&r.ID, &r.TenantID, &r.Name, &r.Description, &r.RuleType,
			&r.Priority, &r.IsActive, &conditions, &actions, &r.Expression,
		); err != nil {
			return nil, fmt.Errorf("failed to scan pricing rule: %w", err)
		}
		if len(conditions) > 0 {
			if err := json.Unmarshal(conditions, &r.Conditions); err != nil {
				return nil, fmt.Errorf("rule %s: malformed conditions payload: %w", r.ID, err)
			}
		}
		if len(actions) > 0 {
			if err := json.Unmarshal(actions, &r.Actions); err != nil {
				return nil, fmt.Errorf("rule %s: malformed actions payload: %w", r.ID, err)
			}
		}
		out = append(out, r)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("error iterating pricing rules: %w", rows.Err())
	}
	return out, nil
}
