package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gatescan/gatescan/pkg/config"
	"github.com/gatescan/gatescan/pkg/gateway"
)

var (
	rulesTags bool
	rulesJSON bool
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the effective rule catalog",
	Long: `List every rule the scanner would evaluate: the built-in catalog with
any configured rule packs overlaid.

  gatescan rules
  gatescan rules --tags
  gatescan rules --json`,
	RunE: runRules,
}

func init() {
	rulesCmd.Flags().BoolVar(&rulesTags, "tags", false, "Include rule tags")
	rulesCmd.Flags().BoolVar(&rulesJSON, "json", false, "Emit the catalog as JSON")
	rootCmd.AddCommand(rulesCmd)
}

func runRules(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	catalog, packs, err := gateway.BuildCatalog(cfg.RulePacksDir)
	if err != nil {
		return err
	}

	if rulesJSON {
		return printJSON(catalog.Rules())
	}

	fmt.Printf("Catalog: %d rules\n\n", catalog.Len())
	fmt.Printf("  %-24s %-9s %-10s %s\n", "NAME", "SEVERITY", "MODE", "DESCRIPTION")
	for _, r := range catalog.Rules() {
		fmt.Printf("  %-24s %-9s %-10s %s\n", r.Name, r.Severity, r.Mode, r.Description)
		if rulesTags && len(r.Tags) > 0 {
			fmt.Printf("  %-24s tags: %s\n", "", strings.Join(r.Tags, ", "))
		}
	}

	if len(packs) > 0 {
		fmt.Printf("\nRule packs in %s:\n", cfg.RulePacksDir)
		for _, p := range packs {
			if p.Enabled {
				fmt.Printf("  ✓ %s (%d rules)\n", p.Name, p.RuleCount)
			} else {
				fmt.Printf("  ○ %s (not loaded)\n", p.Name)
			}
		}
	}
	return nil
}
