package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var collectGuildID string

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run one collection cycle immediately",
	Long: `Run one collection cycle for a single guild (--guild) or for every
allowed guild, then exit. Useful for an initial backfill or for catching up
after downtime without waiting for the scheduled interval.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		client, err := a.chatClient()
		if err != nil {
			return err
		}

		guilds, err := client.Guilds(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list guilds: %w", err)
		}

		allowed := make(map[string]struct{}, len(a.cfg.Discord.AllowedGuildIDs))
		for _, id := range a.cfg.Discord.AllowedGuildIDs {
			allowed[id] = struct{}{}
		}

		col := a.collector(client)
		total := 0
		ran := 0

		for _, guild := range guilds {
			if collectGuildID != "" && guild.ID != collectGuildID {
				continue
			}
			if collectGuildID == "" && len(allowed) > 0 {
				if _, ok := allowed[guild.ID]; !ok {
					continue
				}
			}

			collected, err := col.Collect(cmd.Context(), guild)
			if err != nil {
				return fmt.Errorf("collection failed for guild %s: %w", guild.ID, err)
			}
			fmt.Printf("%s (%s): %d new messages\n", guild.Name, guild.ID, collected)
			total += collected
			ran++
		}

		if ran == 0 {
			if collectGuildID != "" {
				return fmt.Errorf("guild %s not found among the bot's guilds", collectGuildID)
			}
			return fmt.Errorf("no allowed guilds found")
		}

		fmt.Printf("Collected %d new messages across %d guild(s)\n", total, ran)
		return nil
	},
}

func init() {
	collectCmd.Flags().StringVar(&collectGuildID, "guild", "", "collect only this guild ID")
}
