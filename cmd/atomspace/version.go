package main

import (
	"encoding/json"
	"fmt"

	"github.com/Harshitk-cp/atomspace/internal/buildconfig"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		jsonOutput, _ := cmd.Flags().GetBool("json")
		info := buildconfig.Current()

		if jsonOutput {
			output, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error formatting JSON: %v\n", err)
				return
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(output))
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "atomspace %s (%s)\n", info.Version, info.Commit)
		fmt.Fprintf(cmd.OutOrStdout(), "Go: %s\n", info.GoVersion)
	},
}

func init() {
	versionCmd.Flags().BoolP("json", "j", false, "Output version info as JSON")
}
