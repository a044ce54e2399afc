package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "linebilling",
	Short: "LINE chatbot with Stripe billing reconciliation",
	Long: `linebilling serves the LINE webhook of the AIコレクションズ account.

Companies add and cancel content products in the chat; every change is
reconciled with the additional-content line item of their Stripe subscription.`,
	SilenceUsage: true,
}

var envFile string

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "additional .env file to load")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}
