package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/warmtransfer"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of warmtransfer",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "warmtransfer version %s\n", strings.TrimSpace(warmtransfer.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
