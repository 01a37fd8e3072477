package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "warmtransfer",
	Short: "Warm call transfer coordinator",
	Long: `warmtransfer tracks live call sessions, keeps a rolling transcript of each call
and hands callers from one agent to another after briefing the receiving agent
with an AI-generated summary.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("env", "", "Path to a .env file (defaults to ./.env when present)")
}
