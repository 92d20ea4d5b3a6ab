// Package export renders apply-rules run results as XLSX workbooks for the
// admin UI download endpoint.
package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/currency"

	"github.com/opsdesk/pricing-engine/internal/engine"
)

const (
	summarySheet = "Summary"
	itemsSheet   = "Items"
	timeLayout   = "2006-01-02 15:04:05 UTC"
)

var itemHeaders = []string{
	"Item ID", "Status", "Unit Price (before)", "Unit Price (after)",
	"Special Price (before)", "Special Price (after)",
	"Hourly Rate", "Travel Cost", "Surcharged", "Matched Rules", "Reason",
}

// RunWorkbook renders an evaluation result as a two-sheet workbook: a run
// summary and a per-item breakdown. currencyCode formats the money columns;
// an unknown code is used verbatim.
func RunWorkbook(result *engine.EvaluationResult, currencyCode string) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, fmt.Errorf("failed to create summary sheet: %w", err)
	}
	if _, err := f.NewSheet(itemsSheet); err != nil {
		return nil, fmt.Errorf("failed to create items sheet: %w", err)
	}

	if err := writeSummary(f, result); err != nil {
		return nil, err
	}
	if err := writeItems(f, result, currencyCode); err != nil {
		return nil, err
	}

	return f, nil
}

// Filename returns the download filename for a run export.
func Filename(runID string) string {
	return fmt.Sprintf("apply-rules-run-%s.xlsx", runID)
}

func writeSummary(f *excelize.File, result *engine.EvaluationResult) error {
	rows := [][]interface{}{
		{"Run ID", result.RunID},
		{"Price List", result.PriceListID},
		{"Tenant", result.TenantID},
		{"Status", string(result.Status)},
		{"Dry run", result.DryRun},
		{"Items evaluated", len(result.Items)},
		{"Items affected", result.AffectedItemCount},
		{"Warnings", len(result.Warnings)},
		{"Started at", result.StartedAt.UTC().Format(timeLayout)},
		{"Completed at", result.CompletedAt.UTC().Format(timeLayout)},
		{"Duration", result.CompletedAt.Sub(result.StartedAt).Round(time.Millisecond).String()},
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("failed to address summary row %d: %w", i+1, err)
		}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write summary row %d: %w", i+1, err)
		}
	}

	warningStart := len(rows) + 2
	for i, w := range result.Warnings {
		cell, err := excelize.CoordinatesToCellName(1, warningStart+i)
		if err != nil {
			return fmt.Errorf("failed to address warning row %d: %w", i+1, err)
		}
		row := []interface{}{"Warning", w.RuleID, w.ItemID, w.Reason}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write warning row %d: %w", i+1, err)
		}
	}
	return nil
}

func writeItems(f *excelize.File, result *engine.EvaluationResult, currencyCode string) error {
	header := make([]interface{}, len(itemHeaders))
	for i, h := range itemHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(itemsSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write item header: %w", err)
	}

	for i, item := range result.Items {
		row := []interface{}{
			item.ItemID,
			string(item.Status),
			Money(item.PreviousState.UnitPrice, currencyCode),
			Money(item.NewState.UnitPrice, currencyCode),
			optMoney(item.PreviousState.SpecialPrice, currencyCode),
			optMoney(item.NewState.SpecialPrice, currencyCode),
			optMoney(item.NewState.HourlyRate, currencyCode),
			optMoney(item.NewState.TravelCost, currencyCode),
			item.NewState.Surcharged,
			strings.Join(item.MatchedRuleIDs, ", "),
			item.Reason,
		}

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("failed to address item row %d: %w", i+2, err)
		}
		if err := f.SetSheetRow(itemsSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write item row %d: %w", i+2, err)
		}
	}
	return nil
}

// Money formats an amount with its ISO 4217 code, e.g. "EUR 57.00". Codes
// that do not parse are used as-is so an export never fails on bad data.
func Money(amount decimal.Decimal, currencyCode string) string {
	code := strings.ToUpper(strings.TrimSpace(currencyCode))
	if unit, err := currency.ParseISO(code); err == nil {
		code = unit.String()
	}
	if code == "" {
		return amount.StringFixed(2)
	}
	return fmt.Sprintf("%s %s", code, amount.StringFixed(2))
}

func optMoney(amount *decimal.Decimal, currencyCode string) string {
	if amount == nil {
		return ""
	}
	return Money(*amount, currencyCode)
}
