// Package main contains the peanut command-line entrypoint. The bot service
// and its operational commands (collect, stats, search, ask) share one
// configuration surface.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	_ "modernc.org/sqlite"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "peanut",
	Short: "Chat history collection bot with keyword-based question answering",
	Long: `peanut collects message history from allowed guilds into per-guild
SQLite databases, analyzes message content at ingestion time, and answers
questions from the collected history through an OpenAI-compatible backend.

Commands:
  run               Start the collection service
  collect           Run one collection cycle immediately
  stats             Show collection statistics for a guild
  search <query>    Search a guild's collected messages
  ask <question>    Answer a question from a guild's collected messages`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to configuration file (default ./config.yaml)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(askCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
