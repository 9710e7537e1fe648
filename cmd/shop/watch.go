package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/shopcompare/internal/feed"
	"github.com/Veraticus/shopcompare/internal/model"
	"github.com/Veraticus/shopcompare/internal/tui"
)

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a feed live",
		Long: `Open a live view of reviews, posts or comments. New entries are
highlighted as they arrive and your own posts appear immediately. Pass
--user to write; without it the view is read-only.`,
	}
	cmd.PersistentFlags().Bool("remote", false, "use the NATS store bridge instead of the local database")
	cmd.PersistentFlags().String("user", "", "author id for new entries")

	cmd.AddCommand(&cobra.Command{
		Use:   "reviews [product-id]",
		Short: "Follow the reviews of a product, or of every product",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			productID := ""
			if len(args) == 1 {
				productID = args[0]
			}
			return runWatch(cmd, "Reviews", func(env *feedEnv, user string) tui.Source {
				var compose func(string) (model.Review, error)
				if user != "" && productID != "" {
					compose = tui.ComposeReview(productID, user)
				}
				return tui.NewFeedSource(feed.NewReviews(env.store, productID, env.options), tui.ReviewRow, compose)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "posts",
		Short: "Follow the community feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, "Community", func(env *feedEnv, user string) tui.Source {
				var compose func(string) (model.Post, error)
				if user != "" {
					compose = tui.ComposePost(user)
				}
				return tui.NewFeedSource(feed.NewPosts(env.store, env.options), tui.PostRow, compose)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "comments <post-id>",
		Short: "Follow the comments on a post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, fmt.Sprintf("Comments on %s", args[0]), func(env *feedEnv, user string) tui.Source {
				var compose func(string) (model.Comment, error)
				if user != "" {
					compose = tui.ComposeComment(args[0], user)
				}
				return tui.NewFeedSource(feed.NewComments(env.store, args[0], env.options), tui.CommentRow, compose)
			})
		},
	})

	return cmd
}

func runWatch(cmd *cobra.Command, title string, build func(env *feedEnv, user string) tui.Source) error {
	remote, _ := cmd.Flags().GetBool("remote")
	user, _ := cmd.Flags().GetString("user")

	env, err := openFeedEnv(cmd.Context(), remote)
	if err != nil {
		return err
	}
	defer env.Close()

	src := build(env, user)
	env.follow(src)

	return tui.Run(cmd.Context(), src, tui.WithTitle(title))
}
