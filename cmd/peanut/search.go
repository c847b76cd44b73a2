package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	searchGuildID string
	searchLimit   int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search a guild's collected messages",
	Long: `Search one guild's collected messages with the same tiered keyword
engine the ask command uses for context retrieval, and print the matches.

Examples:
  peanut search "설치 방법" --guild 123456789
  peanut search GPU --guild 123456789 --limit 10`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		engine, err := a.engineFor(searchGuildID)
		if err != nil {
			return err
		}

		result := engine.FindRelevant(cmd.Context(), args[0], searchLimit)

		if len(result.Keywords) > 0 {
			fmt.Printf("Keywords: %s\n", strings.Join(result.Keywords, ", "))
		}
		if result.FromFallback {
			fmt.Println("No tier matched; showing recent messages.")
		}
		if len(result.Messages) == 0 {
			fmt.Println("No messages found.")
			return nil
		}

		for i, msg := range result.Messages {
			channel := msg.ChannelName.String
			if channel == "" {
				channel = msg.ChannelID
			}
			fmt.Printf("%2d. [%s] #%s %s\n", i+1,
				msg.CreatedAt.Format("2006-01-02"), channel, firstLine(msg.Content))
		}
		return nil
	},
}

// firstLine truncates message content to one displayable line.
func firstLine(content string) string {
	line := content
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	const maxLen = 120
	runes := []rune(line)
	if len(runes) > maxLen {
		return string(runes[:maxLen]) + "..."
	}
	return line
}

func init() {
	searchCmd.Flags().StringVar(&searchGuildID, "guild", "", "guild ID (required)")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 30, "maximum number of results")
	searchCmd.MarkFlagRequired("guild")
}
