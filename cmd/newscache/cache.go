package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func (c *cli) cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the article cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show [category]",
		Short: "List unexpired cached articles of a category",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			category := c.category(ctx, args)

			rows, err := c.app.Cache.Read(ctx, category)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d cached article(s) [%s]\n", category, len(rows), c.app.Backend.Kind())
			for _, r := range rows {
				printArticle(out, r.Article)
				fmt.Fprintf(out, "    expires %s\n", time.UnixMilli(r.Expiration).Format(time.RFC3339))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached article, keeping favorites and settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !c.app.Loader.ClearCache(cmd.Context()) {
				return errors.New("cache could not be cleared")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
			return nil
		},
	})

	return cmd
}
