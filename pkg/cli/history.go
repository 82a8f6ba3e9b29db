package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gatescan/gatescan/pkg/audit"
	"github.com/gatescan/gatescan/pkg/config"
	"github.com/gatescan/gatescan/pkg/gateway"
	"github.com/gatescan/gatescan/pkg/recall"
)

var (
	historyLimit   int
	historySimilar string
	historyK       int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent decisions",
	Long: `Print recent scan decisions as JSON, most recent first. With
--similar, query the recall corpus for past scans nearest to the given
text instead.

  gatescan history --limit 25
  gatescan history --similar "select * from users" --k 3`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", audit.DefaultHistoryLimit, "Number of entries to return")
	historyCmd.Flags().StringVar(&historySimilar, "similar", "", "Return past scans similar to this text instead")
	historyCmd.Flags().IntVar(&historyK, "k", 5, "Neighbor count for --similar")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if historySimilar != "" {
		if !cfg.Recall.Enabled {
			return fmt.Errorf("recall corpus is disabled; set recall.enabled to true")
		}
		corpus, err := recall.New(cfg.Recall.Path)
		if err != nil {
			return fmt.Errorf("opening recall corpus: %w", err)
		}
		neighbors, err := corpus.Similar(cmd.Context(), historySimilar, historyK)
		if err != nil {
			return err
		}
		return printJSON(neighbors)
	}

	h, err := gateway.OpenHistory(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("opening history store: %w", err)
	}
	defer h.Close()

	entries, err := h.Recent(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	return printJSON(entries)
}
