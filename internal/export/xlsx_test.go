package export

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdesk/pricing-engine/internal/engine"
)

func sampleResult() *engine.EvaluationResult {
	special := decimal.RequireFromString("42.50")
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &engine.EvaluationResult{
		RunID:       "run-1",
		PriceListID: "pl-1",
		TenantID:    "t1",
		Status:      engine.RunCompleted,
		Items: []engine.ItemResult{
			{
				ItemID:         "item-1",
				Status:         engine.ItemApplied,
				PreviousState:  engine.PriceState{UnitPrice: decimal.RequireFromString("50.00")},
				NewState:       engine.PriceState{UnitPrice: decimal.RequireFromString("57.00"), SpecialPrice: &special, Surcharged: true},
				MatchedRuleIDs: []string{"r1", "r2"},
			},
			{
				ItemID:        "item-2",
				Status:        engine.ItemSkipped,
				PreviousState: engine.PriceState{UnitPrice: decimal.RequireFromString("10.00")},
				NewState:      engine.PriceState{UnitPrice: decimal.RequireFromString("10.00")},
				Reason:        "no catalog attributes for item item-2",
			},
		},
		Warnings:          []engine.Warning{{RuleID: "r9", Reason: "unknown field \"warehouse\""}},
		AffectedItemCount: 1,
		StartedAt:         started,
		CompletedAt:       started.Add(3 * time.Second),
	}
}

func TestRunWorkbookSheetsAndCells(t *testing.T) {
	f, err := RunWorkbook(sampleResult(), "BRL")
	require.NoError(t, err)
	defer f.Close()

	assert.ElementsMatch(t, []string{"Summary", "Items"}, f.GetSheetList())

	runID, err := f.GetCellValue("Summary", "B1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", runID)

	header, err := f.GetCellValue("Items", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Item ID", header)

	newPrice, err := f.GetCellValue("Items", "D2")
	require.NoError(t, err)
	assert.Equal(t, "BRL 57.00", newPrice)

	matched, err := f.GetCellValue("Items", "J2")
	require.NoError(t, err)
	assert.Equal(t, "r1, r2", matched)

	reason, err := f.GetCellValue("Items", "K3")
	require.NoError(t, err)
	assert.Contains(t, reason, "no catalog attributes")

	// Absent optional prices render as empty, not zero.
	hourly, err := f.GetCellValue("Items", "G2")
	require.NoError(t, err)
	assert.Empty(t, hourly)
}

func TestMoneyFormatting(t *testing.T) {
	amount := decimal.RequireFromString("57")

	assert.Equal(t, "EUR 57.00", Money(amount, "EUR"))
	assert.Equal(t, "BRL 57.00", Money(amount, "brl"))
	assert.Equal(t, "XZY 57.00", Money(amount, "XZY"), "unknown codes pass through")
	assert.Equal(t, "57.00", Money(amount, ""))
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "apply-rules-run-abc.xlsx", Filename("abc"))
}
