package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "news-trader",
	Short: "Position management and reconciliation engine for the news-driven trading bot",
	Long: `The engine ships as three binaries:

  trader-service serve   signal consumer, position monitor, order sync, reconciliation and HTTP API
  trader-cli             operator commands (reconcile, close, cancel, import-companies, ...)
  migrate up|down        database schema migrations`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Whoops. There was an error while executing your CLI '%s'", err)
		os.Exit(1)
	}
}
