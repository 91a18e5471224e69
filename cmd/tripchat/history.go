package main

import (
	"context"

	"github.com/aretw0/tripchat/internal/cli"
	"github.com/aretw0/tripchat/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history <user-id>",
	Short: "Print the user's recent conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")
		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			turns, err := app.Sessions.ConversationHistory(ctx, args[0], limit)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(turns)
			}
			return printMarkdown(tui.HistoryMarkdown(turns))
		})
	},
}

var analyticsCmd = &cobra.Command{
	Use:   "analytics <user-id>",
	Short: "Summarize the user's sessions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			a, err := app.Sessions.Analytics(ctx, args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(a)
			}
			return printMarkdown(tui.AnalyticsMarkdown(args[0], a))
		})
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(analyticsCmd)

	historyCmd.Flags().IntP("limit", "n", 0, "Maximum number of turns (0 for all)")
	historyCmd.Flags().Bool("json", false, "Print the turns as JSON")
	analyticsCmd.Flags().Bool("json", false, "Print the analytics as JSON")
}
