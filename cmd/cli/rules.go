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
	rulesOutput string
)

// rulesCmd groups rule inspection commands
var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and validate pricing rules",
}

// rulesListCmd represents the rules list command
var rulesListCmd = &cobra.Command{
	Use:   "list <priceListId>",
	Short: "List the active rules in evaluation order",
	Long: `List the validated active rules for a price list in the exact order the
engine evaluates them: priority ascending with rule ID as the tie-breaker.
Rules that fail structural validation are shown separately with the reason.`,
	Example: `  pricing-engine rules list pl_8fa3
  pricing-engine rules list pl_8fa3 --output json`,
	Args: cobra.ExactArgs(1),
	RunE: runRulesList,
}

// rulesValidateCmd represents the rules validate command
var rulesValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a rule definition file",
	Long: `Validate a JSON file containing an array of rule definitions without
touching the database. Exits non-zero when any rule fails validation, so the
command can gate rule deployments in CI.`,
	Example: `  pricing-engine rules validate ./rules.json
  pricing-engine rules validate ./rules.json --output json`,
	Args: cobra.ExactArgs(1),
	RunE: runRulesValidate,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesValidateCmd)

	rulesCmd.PersistentFlags().StringVar(&rulesOutput, "output", "table", "Output format: table or json")
}

func runRulesList(cmd *cobra.Command, args []string) error {
	priceListID := args[0]
	pool := database.Pool()

	eng := engine.New(
		rules.NewStore(pool),
		stores.NewCatalogStore(pool),
		stores.NewPriceListStore(pool),
		nil,
		engine.DefaultConfig(),
	)

	compiled, warnings, err := eng.ActiveRules(context.Background(), priceListID)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}

	switch strings.ToLower(rulesOutput) {
	case "json":
		ruleSet := make([]rules.PricingRule, len(compiled))
		for i, r := range compiled {
			ruleSet[i] = r.PricingRule
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{
			"rules":    ruleSet,
			"warnings": warnings,
		})
	case "table":
		outputRulesTable(priceListID, compiled, warnings)
	default:
		return fmt.Errorf("invalid output format: %s (use 'table' or 'json')", rulesOutput)
	}

	return nil
}

func outputRulesTable(priceListID string, compiled []rules.CompiledRule, warnings []engine.Warning) {
	fmt.Printf("\nActive rules for %s (evaluation order)\n", priceListID)
	fmt.Println(strings.Repeat("-", 60))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "PRIORITY\tID\tNAME\tTYPE\tACTIONS")
	for _, r := range compiled {
		kinds := make([]string, len(r.Actions))
		for i, a := range r.Actions {
			kinds[i] = string(a.Kind)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			r.Priority, r.ID, r.Name, r.RuleType, strings.Join(kinds, ","))
	}
	w.Flush()

	if len(warnings) > 0 {
		fmt.Printf("\nExcluded rules (%d)\n", len(warnings))
		fmt.Println(strings.Repeat("-", 60))
		for _, warn := range warnings {
			fmt.Printf("  %s: %s\n", warn.RuleID, warn.Reason)
		}
	}
}

func runRulesValidate(cmd *cobra.Command, args []string) error {
	filePath := args[0]

	content, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var ruleSet []rules.PricingRule
	if err := json.Unmarshal(content, &ruleSet); err != nil {
		return fmt.Errorf("failed to parse rule file: %w", err)
	}

	compiled, cfgErrs := rules.CompileAll(ruleSet)

	switch strings.ToLower(rulesOutput) {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(map[string]interface{}{
			"valid":   len(compiled),
			"invalid": len(cfgErrs),
			"errors":  cfgErrs,
		}); err != nil {
			return err
		}
	case "table":
		fmt.Printf("\nValidated %d rules: %d valid, %d invalid\n",
			len(ruleSet), len(compiled), len(cfgErrs))
		if len(cfgErrs) > 0 {
			fmt.Println(strings.Repeat("-", 60))
			for _, ce := range cfgErrs {
				fmt.Printf("  %s (%s): %s\n", ce.RuleID, ce.RuleName, ce.Reason)
			}
		}
	default:
		return fmt.Errorf("invalid output format: %s (use 'table' or 'json')", rulesOutput)
	}

	if len(cfgErrs) > 0 {
		return fmt.Errorf("%d rule(s) failed validation", len(cfgErrs))
	}
	return nil
}
