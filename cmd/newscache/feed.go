package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"news_cache/internal/app"
	"news_cache/internal/domain"
	"news_cache/internal/scheduler"
	"news_cache/internal/service"
)

func (c *cli) loadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load [category]",
		Short: "Show headlines, from the network when online and from the cache otherwise",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			category := c.category(ctx, args)

			feed, err := c.app.Loader.Load(ctx, category)
			if errors.Is(err, service.ErrDebounced) {
				fmt.Fprintln(cmd.OutOrStdout(), "a load finished moments ago, try again shortly")
				return nil
			}
			if err != nil {
				return err
			}

			c.remember(ctx, category)
			printFeed(cmd.OutOrStdout(), feed)
			return nil
		},
	}
}

func (c *cli) refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh [category]",
		Short: "Fetch headlines from the network and overwrite the cache",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			category := c.category(ctx, args)

			feed, err := c.app.Loader.Refresh(ctx, category)
			if err != nil {
				return fmt.Errorf("refresh failed: %w", err)
			}

			c.remember(ctx, category)
			printFeed(cmd.OutOrStdout(), feed)
			return nil
		},
	}
}

func (c *cli) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch [category]",
		Short: "Keep a category loaded and react to connectivity changes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			category := c.category(ctx, args)
			cfg := c.app.Config

			if feed, err := c.app.Loader.Load(ctx, category); err == nil {
				c.remember(ctx, category)
				printFeed(out, feed)
			}

			g, ctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				return c.app.Monitor.Watch(ctx, cfg.Network.Interval, func(ctx context.Context, online bool) {
					feed, err := c.app.Loader.HandleNetworkChange(ctx, online)
					if err != nil || feed == nil {
						return
					}
					printFeed(out, feed)
				})
			})

			g.Go(func() error {
				return scheduler.NewScheduler(c.app.Loader, cfg.Sync.Interval, c.app.Logger).Start(ctx)
			})

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func (c *cli) category(ctx context.Context, args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	return c.app.CurrentCategory(ctx)
}

func (c *cli) remember(ctx context.Context, category string) {
	c.app.Settings.Save(ctx, app.SettingCategory, category)
}

func printFeed(w io.Writer, feed *domain.Feed) {
	fmt.Fprintf(w, "[%s] %s: %d article(s)\n", feed.Status, feed.Category, len(feed.Articles))
	if feed.Message != "" {
		fmt.Fprintln(w, feed.Message)
	}
	for _, a := range feed.Articles {
		printArticle(w, a)
	}
}

func printArticle(w io.Writer, a domain.Article) {
	if a.Source.Name != "" {
		fmt.Fprintf(w, "  - %s (%s)\n    %s\n", a.Title, a.Source.Name, a.URL)
		return
	}
	fmt.Fprintf(w, "  - %s\n    %s\n", a.Title, a.URL)
}
