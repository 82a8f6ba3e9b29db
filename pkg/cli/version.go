package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gatescan/gatescan/pkg/gateway"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print gatescan version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("gatescan v%s\n", gateway.Version)
		fmt.Println("Input Validation Security Gateway")
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
