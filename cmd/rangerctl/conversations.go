package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Harshitk-cp/ranger/internal/domain"
)

func newConversationsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "conversations [channel]",
		Short: "Show tracked conversation counts, or one channel's context",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				var stats domain.ConversationStats
				if err := opts.call("GET", "/v1/conversations", nil, &stats); err != nil {
					return err
				}
				if opts.json {
					return printJSON(out, stats)
				}
				fmt.Fprintf(out, "Channels: %d\nUsers: %d\n", stats.Channels, stats.Users)
				return nil
			}

			var conv domain.ConversationContext
			if err := opts.call("GET", "/v1/conversations/"+url.PathEscape(args[0]), nil, &conv); err != nil {
				return err
			}
			if opts.json {
				return printJSON(out, conv)
			}
			fmt.Fprintf(out, "Channel: %s\n", conv.ChannelID)
			fmt.Fprintf(out, "Topics: %s\n", orNone(strings.Join(conv.ActiveTopics, ", ")))
			fmt.Fprintf(out, "Emotion: %s (%.2f)\n", conv.EmotionState.Label, conv.EmotionState.Sentiment)
			fmt.Fprintf(out, "Updated: %s\n\n", conv.UpdatedAt.Format("2006-01-02 15:04:05"))

			tw := newTable(out)
			fmt.Fprintln(tw, "TIME\tUSER\tTEXT")
			for _, u := range conv.LastNUtterances {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", u.Timestamp.Format("15:04:05"), u.UserID, truncate(u.Text, 60))
			}
			return tw.Flush()
		},
	}
}

func newUsersCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Inspect what the server learned about users",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "patterns <user-id>",
		Short: "Show a user's preferred topics, emotions and question ratio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p domain.UserPatterns
			if err := opts.call("GET", "/v1/users/"+url.PathEscape(args[0])+"/patterns", nil, &p); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.json {
				return printJSON(out, p)
			}
			fmt.Fprintf(out, "User: %s\n", p.UserID)
			fmt.Fprintf(out, "Messages: %d (%.0f%% questions)\n", p.MessageCount, p.QuestionRatio*100)
			fmt.Fprintf(out, "Average sentiment: %.2f\n", p.AvgSentiment)
			fmt.Fprintf(out, "Topics: %s\n", orNone(joinCounts(p.PreferredTopics)))
			fmt.Fprintf(out, "Emotions: %s\n", orNone(joinCounts(p.PreferredEmotions)))
			return nil
		},
	})
	return cmd
}

func joinCounts(counts []domain.LabelCount) string {
	parts := make([]string, 0, len(counts))
	for _, c := range counts {
		parts = append(parts, fmt.Sprintf("%s (%d)", c.Label, c.Count))
	}
	return strings.Join(parts, ", ")
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
