// Package engine implements the pricing rule engine: a deterministic,
// priority-ordered condition/action evaluator that recomputes catalog item
// prices for a price list.
package engine

import (
	"context"
	"time"

	"github.com/expr-lang/expr"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/opsdesk/pricing-engine/internal/rules"
)

// Engine orchestrates apply-rules runs. It is stateless between
// invocations: every run loads rules, resolves fresh contexts, computes the
// fold and returns; the only shared state is the per-price-list lock table.
type Engine struct {
	ruleStore RuleStore
	itemStore PriceListItemStore
	resolver  *ContextResolver
	audit     AuditSink
	config    Config
	locks     *PriceListLocks
	metrics   *MetricsRecorder
	logger    zerolog.Logger
}

// New creates an engine. audit may be nil when no run persistence is wanted.
func New(ruleStore RuleStore, catalog CatalogStore, itemStore PriceListItemStore, audit AuditSink, config Config) *Engine {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	if config.DefaultQuantity <= 0 {
		config.DefaultQuantity = 1
	}
	return &Engine{
		ruleStore: ruleStore,
		itemStore: itemStore,
		resolver:  NewContextResolver(catalog),
		audit:     audit,
		config:    config,
		locks:     NewPriceListLocks(),
		metrics:   NewMetricsRecorder(),
		logger:    log.With().Str("component", "rule_engine").Logger(),
	}
}

// ActiveRules loads, validates and orders the rule set in scope for a price
// list. Structurally invalid rules are excluded and reported as warnings.
func (e *Engine) ActiveRules(ctx context.Context, priceListID string) ([]rules.CompiledRule, []Warning, error) {
	pl, err := e.itemStore.GetPriceList(ctx, priceListID)
	if err != nil {
		return nil, nil, &FatalError{Stage: "load price list", Err: err}
	}

	ruleSet, err := e.ruleStore.ListActiveRules(ctx, pl.TenantID, pl.ID)
	if err != nil {
		return nil, nil, &FatalError{Stage: "load rules", Err: err}
	}

	compiled, cfgErrs := rules.CompileAll(ruleSet)
	warnings := make([]Warning, 0, len(cfgErrs))
	for _, ce := range cfgErrs {
		warnings = append(warnings, Warning{RuleID: ce.RuleID, RuleName: ce.RuleName, Reason: ce.Reason})
	}
	return compiled, warnings, nil
}

// ApplyRules evaluates the active rule set against every item of a price
// list and persists the resulting price states in one logical batch.
//
// Concurrent invocations for the same price list are serialized; a
// cancellation mid-batch leaves already-persisted updates committed and
// marks the remaining items unprocessed.
func (e *Engine) ApplyRules(ctx context.Context, priceListID string, opts ApplyOptions) (*EvaluationResult, error) {
	release, err := e.locks.Acquire(ctx, priceListID)
	if err != nil {
		return nil, err
	}
	defer release()

	startedAt := time.Now().UTC()

	result := &EvaluationResult{
		RunID:       uuid.NewString(),
		PriceListID: priceListID,
		DryRun:      opts.DryRun,
		StartedAt:   startedAt,
	}

	pl, err := e.itemStore.GetPriceList(ctx, priceListID)
	if err != nil {
		return nil, &FatalError{Stage: "load price list", Err: err}
	}
	result.TenantID = pl.TenantID

	ruleSet, err := e.ruleStore.ListActiveRules(ctx, pl.TenantID, pl.ID)
	if err != nil {
		return nil, &FatalError{Stage: "load rules", Err: err}
	}

	compiled, cfgErrs := rules.CompileAll(ruleSet)
	for _, ce := range cfgErrs {
		e.logger.Warn().
			Str("price_list_id", pl.ID).
			Str("rule_id", ce.RuleID).
			Str("reason", ce.Reason).
			Msg("Excluding invalid rule from active set")
		result.Warnings = append(result.Warnings, Warning{RuleID: ce.RuleID, RuleName: ce.RuleName, Reason: ce.Reason})
	}
	e.metrics.RecordExcludedRules(len(cfgErrs))

	items, err := e.itemStore.GetItems(ctx, priceListID)
	if err != nil {
		return nil, &FatalError{Stage: "load price list items", Err: err}
	}

	quantity := e.config.DefaultQuantity
	if opts.Quantity > 0 {
		quantity = opts.Quantity
	}

	resolved, err := e.resolver.Resolve(ctx, pl, items, quantity)
	if err != nil {
		return nil, err
	}

	for _, skip := range resolved.Skipped {
		result.Items = append(result.Items, ItemResult{
			ItemID:    skip.ItemID,
			Status:    ItemSkipped,
			Reason:    skip.Reason,
			AppliedAt: time.Now().UTC(),
		})
	}

	evaluated := e.evaluateAll(ctx, resolved.Contexts, compiled, result)

	e.persist(ctx, pl, items, resolved.Contexts, evaluated, result)

	cancelled := ctx.Err() != nil
	result.CompletedAt = time.Now().UTC()
	result.Status = runStatus(result.Items, cancelled)

	e.metrics.RecordRun(result.Status, result.CompletedAt.Sub(startedAt))
	e.metrics.RecordBatch(len(resolved.Contexts), result.AffectedItemCount)

	e.logger.Info().
		Str("run_id", result.RunID).
		Str("price_list_id", priceListID).
		Str("status", string(result.Status)).
		Int("items", len(result.Items)).
		Int("affected", result.AffectedItemCount).
		Bool("dry_run", opts.DryRun).
		Dur("duration", result.CompletedAt.Sub(startedAt)).
		Msg("Apply-rules run finished")

	if e.audit != nil {
		e.audit.RecordRun(result)
	}

	return result, nil
}

// itemEvaluation is the per-item outcome before persistence.
type itemEvaluation struct {
	result   ItemResult
	changed  bool
	warnings []Warning
}

// evaluateAll fans the contexts out over a bounded worker pool. Items share
// no mutable state, so each worker writes only its own slot.
func (e *Engine) evaluateAll(ctx context.Context, contexts []*Context, compiled []rules.CompiledRule, result *EvaluationResult) []itemEvaluation {
	evaluated := make([]itemEvaluation, len(contexts))

	g := &errgroup.Group{}
	g.SetLimit(e.config.Concurrency)

	for i, c := range contexts {
		i, c := i, c
		g.Go(func() error {
			if ctx.Err() != nil {
				evaluated[i] = itemEvaluation{result: ItemResult{
					ItemID:    c.ItemID,
					Status:    ItemUnprocessed,
					Reason:    "run cancelled before item was processed",
					AppliedAt: time.Now().UTC(),
				}}
				return nil
			}
			evaluated[i] = e.evaluateItem(c, compiled)
			return nil
		})
	}
	g.Wait()

	rejected := 0
	for i := range evaluated {
		result.Warnings = append(result.Warnings, evaluated[i].warnings...)
		rejected += len(evaluated[i].warnings)
	}
	e.metrics.RecordRejectedActions(rejected)

	return evaluated
}

// evaluateItem folds the ordered rule set over one item's price state.
// Conditions are evaluated against the current context, so later rules see
// the effects of earlier ones.
func (e *Engine) evaluateItem(c *Context, compiled []rules.CompiledRule) itemEvaluation {
	initial := c.State
	matched := make([]string, 0, 4)
	var warnings []Warning

	for i := range compiled {
		r := &compiled[i]
		if !Evaluate(&r.Conditions, c) {
			continue
		}
		if !e.expressionMatches(r, c) {
			continue
		}

		next, actionErrs := ApplyActions(r.ID, c.ItemID, r.Actions, c.State, c)
		for _, ae := range actionErrs {
			e.logger.Warn().
				Str("rule_id", ae.RuleID).
				Str("item_id", ae.ItemID).
				Str("action", ae.Kind).
				Str("reason", ae.Reason).
				Msg("Rejecting action")
			warnings = append(warnings, Warning{RuleID: ae.RuleID, ItemID: ae.ItemID, Reason: ae.Error()})
		}
		c.State = next
		matched = append(matched, r.ID)
	}

	changed := !initial.Equal(c.State)
	status := ItemUnchanged
	if changed {
		status = ItemApplied
	}

	return itemEvaluation{
		result: ItemResult{
			ItemID:         c.ItemID,
			Status:         status,
			PreviousState:  initial,
			NewState:       c.State,
			MatchedRuleIDs: matched,
			AppliedAt:      time.Now().UTC(),
		},
		changed:  changed,
		warnings: warnings,
	}
}

// expressionMatches runs a dynamic rule's compiled expression gate against
// the item context. Runtime errors fail closed, same as a missing field.
func (e *Engine) expressionMatches(r *rules.CompiledRule, c *Context) bool {
	if r.Program == nil {
		return true
	}
	out, err := expr.Run(r.Program, c.ExprEnv())
	if err != nil {
		e.logger.Debug().
			Str("rule_id", r.ID).
			Str("item_id", c.ItemID).
			Err(err).
			Msg("Dynamic rule expression failed, treating as no match")
		return false
	}
	b, ok := out.(bool)
	return ok && b
}

// persist writes the changed items in one logical batch and folds the store
// outcome back into the per-item results. Each item write commits
// independently; a failure for one item never rolls back another.
func (e *Engine) persist(ctx context.Context, pl PriceList, items []PriceListItem, contexts []*Context, evaluated []itemEvaluation, result *EvaluationResult) {
	byID := make(map[string]PriceListItem, len(items))
	for _, it := range items {
		byID[it.ItemID] = it
	}

	var updated []PriceListItem
	changedIdx := make(map[string]int, len(evaluated))

	for i := range evaluated {
		ev := &evaluated[i]
		result.Items = append(result.Items, ev.result)
		idx := len(result.Items) - 1

		if !ev.changed || ev.result.Status == ItemUnprocessed {
			continue
		}
		changedIdx[ev.result.ItemID] = idx

		item := byID[ev.result.ItemID]
		st := ev.result.NewState
		item.UnitPrice = st.UnitPrice
		item.SpecialPrice = st.SpecialPrice
		item.HourlyRate = st.HourlyRate
		item.TravelCost = st.TravelCost
		item.Surcharged = st.Surcharged
		updated = append(updated, item)
	}

	if len(updated) == 0 {
		return
	}

	if result.DryRun {
		result.AffectedItemCount = len(updated)
		return
	}

	if ctx.Err() != nil {
		// Cancelled before the batch write: nothing new is committed.
		for _, idx := range changedIdx {
			result.Items[idx].Status = ItemUnprocessed
			result.Items[idx].Reason = "run cancelled before persistence"
		}
		return
	}

	persistCtx := ctx
	if e.config.PersistTimeout > 0 {
		var cancel context.CancelFunc
		persistCtx, cancel = context.WithTimeout(ctx, e.config.PersistTimeout)
		defer cancel()
	}

	outcome, err := e.itemStore.SaveItems(persistCtx, pl.ID, updated)
	if err != nil {
		// The whole batch failed closed: report, do not retry.
		e.logger.Error().
			Err(err).
			Str("price_list_id", pl.ID).
			Int("items", len(updated)).
			Msg("Failed to persist item batch")
		for _, idx := range changedIdx {
			result.Items[idx].Status = ItemFailed
			result.Items[idx].Reason = err.Error()
		}
		e.metrics.RecordPersistFailures(len(updated))
		return
	}

	for _, id := range outcome.Succeeded {
		if idx, ok := changedIdx[id]; ok {
			result.Items[idx].Status = ItemApplied
			result.AffectedItemCount++
		}
	}
	for id, reason := range outcome.Failed {
		if idx, ok := changedIdx[id]; ok {
			result.Items[idx].Status = ItemFailed
			result.Items[idx].Reason = reason
		}
	}
	e.metrics.RecordPersistFailures(len(outcome.Failed))
}

func runStatus(items []ItemResult, cancelled bool) RunStatus {
	if cancelled {
		return RunCancelled
	}
	for _, it := range items {
		if it.Status == ItemFailed || it.Status == ItemUnprocessed {
			return RunPartial
		}
	}
	return RunCompleted
}
