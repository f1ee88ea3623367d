// Package main is the CLI entry point for the Majordomo assistant.
//
// Majordomo is a single-user Telegram assistant that orchestrates Gmail,
// Google Calendar and Trello behind an LLM tool loop, with durable
// multi-turn confirmation flows for anything destructive.
//
// Start the server:
//
//	majordomo serve --config majordomo.yaml
//
// Credentials can also come entirely from the environment
// (TELEGRAM_BOT_TOKEN, OPENAI_API_KEY, GOOGLE_CLIENT_ID, ...); see
// internal/config for the full list.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	root := &cobra.Command{
		Use:           "majordomo",
		Short:         "Personal assistant gateway for Telegram, Gmail, Calendar and Trello",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(buildServeCmd())
	root.AddCommand(buildVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("majordomo %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
