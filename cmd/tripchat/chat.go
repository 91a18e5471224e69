package main

import (
	"context"
	"os"
	"strings"

	"github.com/aretw0/tripchat"
	"github.com/aretw0/tripchat/internal/cli"
	"github.com/aretw0/tripchat/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat <user-id>",
	Short: "Record a conversation interactively",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		destination, _ := cmd.Flags().GetString("destination")
		quiet, _ := cmd.Flags().GetBool("quiet")
		jsonMode, _ := cmd.Flags().GetBool("json")

		sigCtx := cli.NewSignalContext(cmd.Context())
		defer sigCtx.Cancel()

		app, err := openApp(sigCtx, cmd, true)
		if err != nil {
			return err
		}
		defer app.Close(context.Background())

		opts := cli.ChatOptions{UserID: args[0], Destination: destination, Quiet: quiet}
		if jsonMode {
			return cli.ChatJSON(sigCtx, app.Sessions, opts, os.Stdin, os.Stdout)
		}
		if !quiet {
			tui.PrintBanner(os.Stdout, strings.TrimSpace(tripchat.Version))
		}
		return cli.Chat(sigCtx, app.Sessions, opts, os.Stdin, os.Stdout, tui.NewRenderer(os.Stdout))
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringP("destination", "d", "", "Destination of a new session")
	chatCmd.Flags().Bool("json", false, "Exchange JSON lines instead of text")
	chatCmd.Flags().BoolP("quiet", "q", false, "Print no banner, prompts or suggestions")
}
