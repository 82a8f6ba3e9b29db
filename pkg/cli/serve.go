package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gatescan/gatescan/pkg/config"
	"github.com/gatescan/gatescan/pkg/gateway"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP scan API",
	Long: `Start the long-lived HTTP server exposing POST /scan, GET /history,
GET /similar, and GET /health.

  gatescan serve
  gatescan serve --addr :9090`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	s, err := gateway.New(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	return gateway.Serve(s, cfg.Server.Addr)
}
