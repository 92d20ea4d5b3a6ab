package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/opsdesk/pricing-engine/internal/database"
	"github.com/opsdesk/pricing-engine/internal/engine"
	"github.com/opsdesk/pricing-engine/internal/rules"
	"github.com/opsdesk/pricing-engine/internal/stores"
)

var (
	applyDryRun   bool
	applyQuantity float64
	applyOutput   string
)

// applyCmd represents the apply command
var applyCmd = &cobra.Command{
	Use:   "apply <priceListId>",
	Short: "Apply the active rule set to a price list",
	Long: `Apply the active pricing rules to every item of a price list and print the
run result. With --dry-run the full result is computed and shown without
persisting any item changes, which makes it safe to preview a rule change.`,
	Example: `  pricing-engine apply pl_8fa3 --dry-run
  pricing-engine apply pl_8fa3 --quantity 12
  pricing-engine apply pl_8fa3 --output json`,
	Args: cobra.ExactArgs(1),
	RunE: runApply,
}

func init() {
	rootCmd.AddCommand(applyCmd)

	applyCmd.Flags().BoolVar(&applyDryRun, "dry-run", false, "Compute the result without persisting item changes")
	applyCmd.Flags().Float64Var(&applyQuantity, "quantity", 0, "Evaluation quantity for tiered rules (0 = default)")
	applyCmd.Flags().StringVar(&applyOutput, "output", "table", "Output format: table or json")
}

func runApply(cmd *cobra.Command, args []string) error {
	priceListID := args[0]
	pool := database.Pool()

	priceListStore := stores.NewPriceListStore(pool)
	eng := engine.New(
		rules.NewStore(pool),
		stores.NewCatalogStore(pool),
		priceListStore,
		stores.NewRunStore(pool),
		engine.Config{
			Concurrency:     cfg.Engine.Concurrency,
			PersistTimeout:  cfg.Engine.PersistTimeout,
			DefaultQuantity: cfg.Engine.DefaultQuantity,
		},
	)

	logger.Info().
		Str("price_list_id", priceListID).
		Bool("dry_run", applyDryRun).
		Msg("Applying rules")

	result, err := eng.ApplyRules(context.Background(), priceListID, engine.ApplyOptions{
		DryRun:   applyDryRun,
		Quantity: applyQuantity,
	})
	if err != nil {
		return fmt.Errorf("apply failed: %w", err)
	}

	switch strings.ToLower(applyOutput) {
	case "json":
		return outputApplyJSON(result)
	case "table":
		outputApplyTable(result)
	default:
		return fmt.Errorf("invalid output format: %s (use 'table' or 'json')", applyOutput)
	}

	return nil
}

func outputApplyJSON(result *engine.EvaluationResult) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func outputApplyTable(result *engine.EvaluationResult) {
	fmt.Printf("\nApply-Rules Run %s\n", result.RunID)
	fmt.Println(strings.Repeat("-", 60))

	counts := map[engine.ItemStatus]int{}
	for _, item := range result.Items {
		counts[item.Status]++
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintf(w, "Price list:\t%s\n", result.PriceListID)
	fmt.Fprintf(w, "Status:\t%s\n", result.Status)
	fmt.Fprintf(w, "Dry run:\t%v\n", result.DryRun)
	fmt.Fprintf(w, "Items evaluated:\t%d\n", len(result.Items))
	fmt.Fprintf(w, "Applied:\t%d\n", counts[engine.ItemApplied])
	fmt.Fprintf(w, "Unchanged:\t%d\n", counts[engine.ItemUnchanged])
	fmt.Fprintf(w, "Skipped:\t%d\n", counts[engine.ItemSkipped])
	fmt.Fprintf(w, "Failed:\t%d\n", counts[engine.ItemFailed])
	fmt.Fprintf(w, "Unprocessed:\t%d\n", counts[engine.ItemUnprocessed])
	fmt.Fprintf(w, "Duration:\t%s\n", result.CompletedAt.Sub(result.StartedAt))
	w.Flush()

	if len(result.Warnings) > 0 {
		fmt.Printf("\nWarnings (%d)\n", len(result.Warnings))
		fmt.Println(strings.Repeat("-", 60))
		for _, warn := range result.Warnings {
			switch {
			case warn.RuleID != "" && warn.ItemID != "":
				fmt.Printf("  rule %s, item %s: %s\n", warn.RuleID, warn.ItemID, warn.Reason)
			case warn.RuleID != "":
				fmt.Printf("  rule %s: %s\n", warn.RuleID, warn.Reason)
			default:
				fmt.Printf("  %s\n", warn.Reason)
			}
		}
	}
}
