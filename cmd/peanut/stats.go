package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsGuildID string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show collection statistics for a guild",
	Long: `Show the stored message count and every collection checkpoint of one
guild's database. Reads only local state; no platform token needed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		tenant, err := a.registry.Get(statsGuildID)
		if err != nil {
			return err
		}

		count, err := tenant.Store.CountMessages(cmd.Context(), "")
		if err != nil {
			return fmt.Errorf("failed to count messages: %w", err)
		}
		fmt.Printf("Guild %s: %d messages\n", statsGuildID, count)

		checkpoints, err := tenant.Store.ListCheckpoints(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list checkpoints: %w", err)
		}
		if len(checkpoints) == 0 {
			fmt.Println("No collection checkpoints yet.")
			return nil
		}

		fmt.Println("Checkpoints:")
		for _, cp := range checkpoints {
			value := cp.Value.String
			if !cp.Value.Valid {
				value = "(null)"
			}
			fmt.Printf("  %-50s %s (updated %s)\n", cp.Key, value, cp.UpdatedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().StringVar(&statsGuildID, "guild", "", "guild ID (required)")
	statsCmd.MarkFlagRequired("guild")
}
