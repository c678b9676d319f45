package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"news_cache/internal/domain"
)

func (c *cli) favCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fav",
		Short: "Manage favorite articles",
	}

	var title, category string
	add := &cobra.Command{
		Use:   "add <url>",
		Short: "Mark an article as favorite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if category == "" {
				category = c.app.CurrentCategory(ctx)
			}

			article := domain.Article{URL: args[0], Title: title}
			if rows, err := c.app.Cache.Read(ctx, category); err == nil {
				for _, r := range rows {
					if r.ID() == args[0] {
						article = r.Article
						break
					}
				}
			}

			if !c.app.Favorites.Add(ctx, article, category) {
				return errors.New("favorite not saved")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "saved", args[0])
			return nil
		},
	}
	add.Flags().StringVar(&title, "title", "", "title used when the article is not cached")
	add.Flags().StringVar(&category, "category", "", "category the article belongs to")

	cmd.AddCommand(add,
		&cobra.Command{
			Use:   "rm <url>",
			Short: "Remove a favorite",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if c.app.Favorites.Remove(cmd.Context(), args[0]) {
					fmt.Fprintln(cmd.OutOrStdout(), "removed", args[0])
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "not a favorite", args[0])
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "has <url>",
			Short: "Tell whether an article is a favorite",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				fmt.Fprintln(cmd.OutOrStdout(), c.app.Favorites.Contains(cmd.Context(), args[0]))
				return nil
			},
		},
		&cobra.Command{
			Use:   "ls",
			Short: "List favorites, newest first",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				out := cmd.OutOrStdout()
				favorites := c.app.Favorites.List(cmd.Context())
				fmt.Fprintf(out, "%d favorite(s)\n", len(favorites))
				for _, f := range favorites {
					printArticle(out, f.Article)
				}
				return nil
			},
		},
	)

	return cmd
}
