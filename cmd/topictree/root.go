package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"topictree/internal/app"
	"topictree/internal/config"
	"topictree/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "topictree",
	Short: "Organize comments into per-tree topic hierarchies",
	Long: `topictree tags free-text comments with a main topic and subtopic paths,
stores them in ordered topic trees and exports or searches the result.

Backends and credentials come from the same environment
variables the API server reads.`,
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
	rootCmd.PersistentFlags().String("store", "", "Override the tree backend (memory, git, postgres, redis, minio, badger)")
	rootCmd.PersistentFlags().String("data-dir", "", "Override the data directory for git and badger backends")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level for the CLI")
}

// withRuntime loads configuration, applies flag overrides and runs fn
// against a bootstrapped runtime.
func withRuntime(cmd *cobra.Command, fn func(ctx context.Context, rt *app.Runtime) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("store"); v != "" {
		cfg.Store = v
	}
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
	level, _ := cmd.Flags().GetString("log-level")
	log, err := logger.New(cfg.LogMode, level)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := app.Bootstrap(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
