// Command rocketcore runs the metadata-driven write pipeline and workflow orchestrator as a
// standalone server. Grounded on station/cmd/main/main.go's cobra root + OnInitialize wiring,
// trimmed to the one thing this binary does: serve HTTP, or apply migrations.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "rocketcore",
	Short: "rocketcore - metadata-driven write pipeline and workflow orchestrator",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default: built-in defaults + ROCKETCORE_ env vars)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
