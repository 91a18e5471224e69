package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/aretw0/tripchat/internal/cli"
	"github.com/aretw0/tripchat/internal/presentation/tui"
	"github.com/aretw0/tripchat/pkg/domain"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage persisted sessions",
	Long:  `List, inspect, end and remove the conversation sessions held by the configured store.`,
}

var sessionLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List users with stored sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			users, err := app.Sessions.StoredUsers()
			if err != nil {
				return err
			}
			if len(users) == 0 {
				fmt.Println("No stored sessions found.")
				return nil
			}
			fmt.Println("Users:")
			for _, u := range users {
				fmt.Println("- " + u)
			}
			return nil
		})
	},
}

var sessionInspectCmd = &cobra.Command{
	Use:   "inspect <user-id>",
	Short: "Show the user's current session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			sess, err := app.Sessions.Resume(ctx, args[0])
			if errors.Is(err, domain.ErrSessionNotFound) {
				return fmt.Errorf("no current session for '%s'", args[0])
			}
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(sess)
			}
			return printMarkdown(tui.SessionMarkdown(sess))
		})
	},
}

var sessionEndCmd = &cobra.Command{
	Use:   "end <user-id>",
	Short: "End and archive the user's current session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			if _, err := app.Sessions.Resume(ctx, args[0]); err != nil {
				return fmt.Errorf("no current session for '%s': %w", args[0], err)
			}
			if err := app.Sessions.EndSession(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Ended session of '%s'\n", args[0])
			return nil
		})
	},
}

var sessionRmCmd = &cobra.Command{
	Use:   "rm <user-id>...",
	Short: "Remove all stored data of one or more users",
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		if !all && len(args) == 0 {
			return errors.New("requires at least 1 user id or --all")
		}
		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			if all {
				if err := app.Sessions.ClearAllData(ctx); err != nil {
					return err
				}
				fmt.Println("Removed all conversation data")
				return nil
			}
			var errs []error
			for _, userID := range args {
				if err := app.Sessions.ClearUserData(ctx, userID); err != nil {
					errs = append(errs, fmt.Errorf("removing '%s': %w", userID, err))
					continue
				}
				fmt.Printf("Removed data of '%s'\n", userID)
			}
			return errors.Join(errs...)
		})
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionLsCmd)
	sessionCmd.AddCommand(sessionInspectCmd)
	sessionCmd.AddCommand(sessionEndCmd)
	sessionCmd.AddCommand(sessionRmCmd)

	sessionInspectCmd.Flags().Bool("json", false, "Print the session as JSON")
	sessionRmCmd.Flags().Bool("all", false, "Remove the data of every user")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printMarkdown(md string) error {
	out, err := tui.NewRenderer(os.Stdout)(md)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}
