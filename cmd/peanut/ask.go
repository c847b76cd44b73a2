package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	askGuildID string
	askLimit   int
	askPostTo  string
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from a guild's collected messages",
	Long: `Search one guild's collected messages for context relevant to the
question and generate an answer through the configured backend. The answer is
built only from collected history; generation failures produce an apologetic
message rather than an error.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		service, err := a.qaService()
		if err != nil {
			return err
		}

		answer := service.Ask(cmd.Context(), askGuildID, args[0], askLimit)

		if askPostTo != "" {
			client, err := a.chatClient()
			if err != nil {
				return err
			}
			if err := client.SendMessage(cmd.Context(), askPostTo, answer.Text); err != nil {
				return fmt.Errorf("failed to post answer to channel %s: %w", askPostTo, err)
			}
			fmt.Printf("Answer posted to channel %s\n", askPostTo)
		}

		fmt.Println(answer.Text)
		fmt.Println()
		if len(answer.Keywords) > 0 {
			fmt.Printf("Keywords: %s\n", strings.Join(answer.Keywords, ", "))
		}
		fmt.Printf("Context: %d message(s), relevant: %v\n", len(answer.Context), answer.HasRelevantContext)
		if answer.Usage.PromptTokens > 0 || answer.Usage.CompletionTokens > 0 {
			fmt.Printf("Tokens: %d prompt, %d completion\n",
				answer.Usage.PromptTokens, answer.Usage.CompletionTokens)
		}
		return nil
	},
}

func init() {
	askCmd.Flags().StringVar(&askGuildID, "guild", "", "guild ID (required)")
	askCmd.Flags().IntVar(&askLimit, "limit", 30, "maximum context messages")
	askCmd.Flags().StringVar(&askPostTo, "post-to", "", "also post the answer to this channel ID")
	askCmd.MarkFlagRequired("guild")
}
