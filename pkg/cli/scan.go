package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gatescan/gatescan/pkg/config"
	"github.com/gatescan/gatescan/pkg/gateway"
	"github.com/gatescan/gatescan/pkg/report"
)

var (
	scanText       string
	scanFile       string
	scanExplain    bool
	scanRules      []string
	scanNoAdvisory bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan input and produce a decision report",
	Long: `Scan text against the rule catalog and print the decision report as
JSON. Input comes from --text, --file, or stdin when neither is given.

  gatescan scan --text "SELECT * FROM users WHERE a OR 1=1"
  gatescan scan --file request.txt --explain
  cat payload.txt | gatescan scan`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanText, "text", "", "Inline input text")
	scanCmd.Flags().StringVar(&scanFile, "file", "", "Path to input file")
	scanCmd.Flags().BoolVar(&scanExplain, "explain", false, "Print the summary line after the report")
	scanCmd.Flags().StringSliceVar(&scanRules, "rules", nil, "Restrict evaluation to the named rules")
	scanCmd.Flags().BoolVar(&scanNoAdvisory, "no-advisory", false, "Skip the remote advisory assessment")
	scanCmd.MarkFlagsMutuallyExclusive("text", "file")
	rootCmd.AddCommand(scanCmd)
}

// loadScanText resolves the input source. An explicitly set --text wins
// even when empty, matching the flag's documented precedence over stdin.
func loadScanText(cmd *cobra.Command) (string, error) {
	if cmd.Flags().Changed("text") {
		return scanText, nil
	}
	if cmd.Flags().Changed("file") {
		data, err := os.ReadFile(scanFile)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", scanFile, err)
		}
		return string(data), nil
	}
	fmt.Println("No --text or --file provided. Please enter input text (end with Ctrl+D or Ctrl+Z on Windows):")
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// failSafe prints the block report for a failure that happened before the
// pipeline could produce one, so callers always get report-shaped output
// on stderr when the exit code is non-zero.
func failSafe(err error) error {
	printErrReport(report.BuildError(err.Error()))
	return err
}

func printErrReport(rep *report.Report) {
	out, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return
	}
	fmt.Fprintln(os.Stderr, string(out))
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	s, err := gateway.New(cmd.Context(), cfg)
	if err != nil {
		return failSafe(err)
	}
	defer s.Close()

	raw, err := loadScanText(cmd)
	if err != nil {
		return failSafe(err)
	}

	rep, err := s.Scan(cmd.Context(), raw, gateway.ScanOptions{
		Rules:        scanRules,
		SkipAdvisory: scanNoAdvisory,
	})
	if err != nil {
		printErrReport(rep)
		return err
	}

	if err := printJSON(rep); err != nil {
		return err
	}
	if scanExplain {
		fmt.Printf("\nExplanation: %s\n", rep.Explanation.Summary)
	}
	return nil
}
