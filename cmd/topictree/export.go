package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"topictree/internal/app"
	"topictree/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export [tree-id]",
	Short: "Export a tree as html, pdf or json",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		formatName, _ := cmd.Flags().GetString("format")
		out, _ := cmd.Flags().GetString("out")
		format, err := export.ParseFormat(formatName)
		if err != nil {
			return err
		}
		return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
			result, err := rt.Service.Export(ctx, args[0], format)
			if err != nil {
				return err
			}
			if out == "" {
				out = result.Filename
			}
			if out == "-" {
				_, err := cmd.OutOrStdout().Write(result.Data)
				return err
			}
			if err := os.WriteFile(out, result.Data, 0o644); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%d bytes, %s)\n", out, len(result.Data), result.MimeType)
			return nil
		})
	},
}

func init() {
	exportCmd.Flags().String("format", "html", "Export format: html, pdf or json")
	exportCmd.Flags().StringP("out", "o", "", "Output file, '-' for stdout (default: generated filename)")
	rootCmd.AddCommand(exportCmd)
}
