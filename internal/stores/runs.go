package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/opsdesk/pricing-engine/internal/engine"
)

// recordTimeout caps the background insert of a run record.
const recordTimeout = 15 * time.Second

// RunStore persists evaluation results as audit records and serves them
// back to the admin UI.
type RunStore struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewRunStore creates a run store backed by the given pool.
func NewRunStore(pool *pgxpool.Pool) *RunStore {
	return &RunStore{
		pool:   pool,
		logger: log.With().Str("component", "run_store").Logger(),
	}
}

// RecordRun persists an evaluation result without blocking the engine.
// A failed insert is logged and dropped; the run itself already succeeded.
func (s *RunStore) RecordRun(result *engine.EvaluationResult) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()

		payload, err := json.Marshal(result)
		if err != nil {
			s.logger.Error().Err(err).Str("run_id", result.RunID).Msg("Failed to marshal run record")
			return
		}

		_, err = s.pool.Exec(ctx, `
			INSERT INTO engine_runs
				(id, tenant_id, price_list_id, status, dry_run,
				 affected_items, result, started_at, completed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, result.RunID, result.TenantID, result.PriceListID, string(result.Status),
			result.DryRun, result.AffectedItemCount, payload,
			result.StartedAt, result.CompletedAt,
		)
		if err != nil {
			s.logger.Error().Err(err).Str("run_id", result.RunID).Msg("Failed to persist run record")
			return
		}

		s.logger.Debug().Str("run_id", result.RunID).Msg("Persisted run record")
	}()
}

// GetRun loads a full evaluation result by run ID.
func (s *RunStore) GetRun(ctx context.Context, runID string) (*engine.EvaluationResult, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `
		SELECT result FROM engine_runs WHERE id = $1
	`, runID).Scan(&payload)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("run %s not found", runID)
		}
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}

	var result engine.EvaluationResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("malformed run record %s: %w", runID, err)
	}
	return &result, nil
}

// RunSummary is the list view of a persisted run.
type RunSummary struct {
	RunID             string           `json:"runId"`
	PriceListID       string           `json:"priceListId"`
	Status            engine.RunStatus `json:"status"`
	DryRun            bool             `json:"dryRun"`
	AffectedItemCount int              `json:"affectedItemCount"`
	StartedAt         time.Time        `json:"startedAt"`
	CompletedAt       time.Time        `json:"completedAt"`
}

// ListRuns returns the most recent runs for a price list, newest first.
func (s *RunStore) ListRuns(ctx context.Context, priceListID string, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, price_list_id, status, dry_run, affected_items,
		       started_at, completed_at
		FROM engine_runs
		WHERE price_list_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, priceListID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(
			&r.RunID, &r.PriceListID, &r.Status, &r.DryRun,
			&r.AffectedItemCount, &r.StartedAt, &r.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run summary: %w", err)
		}
		out = append(out, r)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("error iterating runs: %w", rows.Err())
	}
	return out, nil
}
