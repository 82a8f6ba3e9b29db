// Package cli wires the gatescan commands: scan, history, serve, rules,
// and version, sharing one persistent --config flag.
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "gatescan",
	Short: "Input validation security gateway",
	Long: `gatescan scans untrusted input text against a rule catalog, scores the
hits, and produces an allow/warn/block decision with a full audit report.
Every scan is journaled; an optional AI advisory can raise, never lower,
the computed decision.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to JSON/YAML config file")
}

// Execute runs the root command and exits non-zero on any failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
