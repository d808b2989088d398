package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "atomspace",
	Short: "Typed uncertain-knowledge hypergraph with a PLN reasoner",
	Long: `atomspace stores typed atoms with truth values and reasons over them.

Commands:
  serve    - Run the HTTP API
  query    - Match a pattern against the stored snapshot
  chain    - Run forward chaining over the stored snapshot
  prove    - Run backward chaining for a goal
  stats    - Show store statistics
  version  - Show build information

Configuration is read from .env (or $ATOMSPACE_ENV) and its .secret sidecar.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(chainCmd)
	rootCmd.AddCommand(proveCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
