package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/tripchat/internal/cli"
	"github.com/aretw0/tripchat/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tripchat",
	Short: "Tripchat keeps travel-planning conversations",
	Long: `Tripchat tracks the sessions, turns and context of travel-planning
conversations and serves them over HTTP and the Model Context Protocol.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", config.DefaultPath, "Path to the YAML configuration file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level override: debug, info, warn or error")
	rootCmd.PersistentFlags().String("store", "", "Store backend override: memory, file or redis")
}

// loadConfig reads --config, requiring the file only when the flag was set.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path, cmd.Flags().Changed("config"))
	if err != nil {
		return cfg, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	if backend, _ := cmd.Flags().GetString("store"); backend != "" {
		cfg.Store.Backend = backend
	}
	return cfg, cfg.Validate()
}

// openApp loads the configuration and wires the session manager. Quiet
// silences logging for commands that own Stdout.
func openApp(ctx context.Context, cmd *cobra.Command, quiet bool) (*cli.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := cli.NewLogger(cfg.LogLevel, quiet)
	if err != nil {
		return nil, err
	}
	return cli.NewApp(ctx, cfg, logger)
}

// withApp runs fn against a wired app and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *cli.App) error) error {
	ctx := cmd.Context()
	app, err := openApp(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer app.Close(ctx)
	return fn(ctx, app)
}
