package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"topictree/internal/app"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an empty topic tree and print its id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
			id, err := rt.Service.CreateTree(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		})
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored tree ids",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
			ids, err := rt.Service.ListTrees(ctx)
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		})
	},
}

var showCmd = &cobra.Command{
	Use:   "show [tree-id]",
	Short: "Print a tree document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		revision, _ := cmd.Flags().GetString("revision")
		return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
			if revision != "" {
				t, err := rt.Service.GetTreeAt(ctx, args[0], revision)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), t)
			}
			t, err := rt.Service.GetTree(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), t)
		})
	},
}

var topicsCmd = &cobra.Command{
	Use:   "topics [tree-id]",
	Short: "List the main topics of a tree in insertion order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
			topics, err := rt.Service.MainTopics(ctx, args[0])
			if err != nil {
				return err
			}
			for _, topic := range topics {
				fmt.Fprintln(cmd.OutOrStdout(), topic)
			}
			return nil
		})
	},
}

var tagCmd = &cobra.Command{
	Use:   "tag [tree-id] [comment]",
	Short: "Tag a comment and insert it into the tree",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
			result, err := rt.Service.Tag(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		})
	},
}

var insertCmd = &cobra.Command{
	Use:   "insert [tree-id]",
	Short: "Insert a comment under explicit topic paths",
	Example: `  topictree insert 0f3c... --main Weather --path "Rain/Forecast" --path "Wind" \
    --comment "Rain and wind expected tomorrow"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mainTopic, _ := cmd.Flags().GetString("main")
		rawPaths, _ := cmd.Flags().GetStringArray("path")
		comment, _ := cmd.Flags().GetString("comment")
		return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
			t, err := rt.Service.InsertComment(ctx, args[0], app.InsertCommentInput{
				Main:    mainTopic,
				Paths:   splitPaths(rawPaths),
				Comment: comment,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), t)
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history [tree-id]",
	Short: "Show the revision history of a tree (git backend only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
			commits, err := rt.Service.History(ctx, args[0], limit)
			if err != nil {
				return err
			}
			for _, c := range commits {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s\n", c.Hash[:min(len(c.Hash), 12)], c.CreatedAt.Format("2006-01-02 15:04:05"), c.Message)
			}
			return nil
		})
	},
}

// splitPaths turns "A/B/C" flag values into label paths. Empty segments
// are kept so validation reports them.
func splitPaths(raw []string) [][]string {
	paths := make([][]string, 0, len(raw))
	for _, p := range raw {
		parts := strings.Split(p, "/")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		paths = append(paths, parts)
	}
	return paths
}

func init() {
	showCmd.Flags().String("revision", "", "Show the tree as of a git revision")
	insertCmd.Flags().String("main", "", "Main topic label")
	insertCmd.Flags().StringArray("path", nil, "Subtopic path, segments separated by '/' (repeatable)")
	insertCmd.Flags().String("comment", "", "Comment text")
	_ = insertCmd.MarkFlagRequired("main")
	_ = insertCmd.MarkFlagRequired("comment")
	historyCmd.Flags().Int("limit", 20, "Maximum number of revisions")

	rootCmd.AddCommand(createCmd, listCmd, showCmd, topicsCmd, tagCmd, insertCmd, historyCmd)
}
