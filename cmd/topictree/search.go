package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"topictree/internal/app"
	"topictree/internal/search"
)

var searchCmd = &cobra.Command{
	Use:   "search [query...]",
	Short: "Search stored comments",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		treeID, _ := cmd.Flags().GetString("tree")
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")
		return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
			resp := rt.Service.Search(ctx, search.Query{
				Text:   strings.Join(args, " "),
				TreeID: treeID,
				Limit:  limit,
			})
			if asJSON {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			for _, r := range resp.Results {
				path := append([]string{r.MainTopic}, r.Path...)
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n    %s\n", r.TreeID, strings.Join(path, " > "), r.Comment)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d of %d results\n", len(resp.Results), resp.Total)
			return nil
		})
	},
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the Meilisearch index from every stored tree",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
			n, err := rt.Service.Reindex(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reindexed %d trees\n", n)
			return nil
		})
	},
}

func init() {
	searchCmd.Flags().String("tree", "", "Restrict results to one tree id")
	searchCmd.Flags().Int("limit", 20, "Maximum number of results")
	searchCmd.Flags().Bool("json", false, "Print the raw search response")
	rootCmd.AddCommand(searchCmd, reindexCmd)
}
