package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/aretw0/tripchat/internal/cli"
	"github.com/aretw0/tripchat/pkg/domain"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export <user-id>",
	Short: "Write the user's conversation data as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			data, err := app.Sessions.Export(ctx, args[0])
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				return printJSON(data)
			}
			raw, err := json.MarshalIndent(data, "", "  ")
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, raw, 0600); err != nil {
				return err
			}
			fmt.Printf("Exported '%s' to %s\n", args[0], output)
			return nil
		})
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace a user's conversation data from an export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")

		var r io.Reader = os.Stdin
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}
		var data domain.ExportData
		if err := json.NewDecoder(r).Decode(&data); err != nil {
			return fmt.Errorf("failed to parse export: %w", err)
		}
		if userID != "" {
			data.UserID = userID
			if data.Session != nil {
				data.Session.UserID = userID
			}
		}

		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			if err := app.Sessions.Import(ctx, &data); err != nil {
				return err
			}
			fmt.Printf("Imported %d sessions and %d turns for '%s'\n", len(data.Sessions), len(data.History), data.UserID)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)

	exportCmd.Flags().StringP("output", "o", "", "File to write (default stdout)")
	importCmd.Flags().String("user", "", "Import into this user instead of the exported one")
}
