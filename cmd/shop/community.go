package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/shopcompare/internal/cli"
	"github.com/Veraticus/shopcompare/internal/common"
	"github.com/Veraticus/shopcompare/internal/feed"
	"github.com/Veraticus/shopcompare/internal/live"
	"github.com/Veraticus/shopcompare/internal/model"
	"github.com/Veraticus/shopcompare/internal/service"
	"github.com/Veraticus/shopcompare/internal/tui"
)

func reviewsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reviews",
		Short: "Read and write product reviews",
	}
	cmd.PersistentFlags().Bool("remote", false, "use the NATS store bridge instead of the local database")
	cmd.AddCommand(reviewsAddCmd())
	cmd.AddCommand(reviewsListCmd())
	return cmd
}

func reviewsAddCmd() *cobra.Command {
	var rating int
	var author string

	cmd := &cobra.Command{
		Use:   "add <product-id> <text>",
		Short: "Review a product",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			remote, _ := cmd.Flags().GetBool("remote")
			env, err := openFeedEnv(cmd.Context(), remote)
			if err != nil {
				return err
			}
			defer env.Close()

			f := feed.NewReviews(env.store, args[0], env.options)
			draft := model.Review{
				ProductID: args[0],
				AuthorID:  author,
				Rating:    rating,
				Text:      strings.Join(args[1:], " "),
			}
			saved, err := submit(cmd, f, draft)
			if err != nil {
				return err
			}
			cmd.Println(cli.FormatSuccess(fmt.Sprintf("Review posted (%d/5)", saved.Rating)))
			return nil
		},
	}

	cmd.Flags().IntVar(&rating, "rating", 0, "rating from 1 to 5 (required)")
	cmd.Flags().StringVar(&author, "user", "", "author id")
	_ = cmd.MarkFlagRequired("rating")
	return cmd
}

func reviewsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list [product-id]",
		Short: "List reviews, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope := service.Scope{Collection: service.CollectionReviews}
			if len(args) == 1 {
				scope.Field = feed.FieldProductID
				scope.Value = args[0]
			}
			return runList(cmd, scope, feed.ReviewCodec(), tui.ReviewRow)
		},
	}
	cmd.Flags().Int("limit", 20, "maximum number of reviews to show")
	return cmd
}

func postsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "posts",
		Short: "Read and write community posts",
	}
	cmd.PersistentFlags().Bool("remote", false, "use the NATS store bridge instead of the local database")
	cmd.AddCommand(postsAddCmd())
	cmd.AddCommand(postsListCmd())
	return cmd
}

func postsAddCmd() *cobra.Command {
	var author, product, body string

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Post to the community feed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			remote, _ := cmd.Flags().GetBool("remote")
			env, err := openFeedEnv(cmd.Context(), remote)
			if err != nil {
				return err
			}
			defer env.Close()

			f := feed.NewPosts(env.store, env.options)
			draft := model.Post{
				AuthorID:  author,
				ProductID: product,
				Title:     strings.Join(args, " "),
				Body:      body,
			}
			if _, err := submit(cmd, f, draft); err != nil {
				return err
			}
			cmd.Println(cli.FormatSuccess("Post published"))
			return nil
		},
	}

	cmd.Flags().StringVar(&author, "user", "", "author id")
	cmd.Flags().StringVar(&product, "product", "", "product the post is about")
	cmd.Flags().StringVar(&body, "body", "", "post body")
	return cmd
}

func postsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List community posts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd, service.Scope{Collection: service.CollectionPosts}, feed.PostCodec(), tui.PostRow)
		},
	}
	cmd.Flags().Int("limit", 20, "maximum number of posts to show")
	return cmd
}

func commentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "comments",
		Short: "Read and write comments on a post",
	}
	cmd.PersistentFlags().Bool("remote", false, "use the NATS store bridge instead of the local database")
	cmd.AddCommand(commentsAddCmd())
	cmd.AddCommand(commentsListCmd())
	return cmd
}

func commentsAddCmd() *cobra.Command {
	var author string

	cmd := &cobra.Command{
		Use:   "add <post-id> <text>",
		Short: "Reply to a post",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			remote, _ := cmd.Flags().GetBool("remote")
			env, err := openFeedEnv(cmd.Context(), remote)
			if err != nil {
				return err
			}
			defer env.Close()

			f := feed.NewComments(env.store, args[0], env.options)
			draft := model.Comment{
				PostID:   args[0],
				AuthorID: author,
				Text:     strings.Join(args[1:], " "),
			}
			if _, err := submit(cmd, f, draft); err != nil {
				return err
			}
			cmd.Println(cli.FormatSuccess("Comment posted"))
			return nil
		},
	}

	cmd.Flags().StringVar(&author, "user", "", "author id")
	return cmd
}

func commentsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <post-id>",
		Short: "List the comments on a post, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope := service.Scope{
				Collection: service.CollectionComments,
				Field:      feed.FieldPostID,
				Value:      args[0],
			}
			return runList(cmd, scope, feed.CommentCodec(), tui.CommentRow)
		},
	}
	cmd.Flags().Int("limit", 50, "maximum number of comments to show")
	return cmd
}

// submit runs draft through a started feed so it gets the same validation,
// retries and draft recovery as the interactive screens.
func submit[T model.Entity](cmd *cobra.Command, f *feed.Feed[T], draft T) (T, error) {
	f.Start(cmd.Context())
	defer f.Close()

	saved, err := f.Submit(cmd.Context(), draft)
	if err != nil {
		var draftErr *common.DraftError
		if errors.As(err, &draftErr) {
			cmd.PrintErrln(cli.FormatWarning("Not sent. Your text was:"))
			cmd.PrintErrln(draftErr.Draft)
		}
		return saved, err
	}
	return saved, nil
}

func runList[T model.Entity](cmd *cobra.Command, scope service.Scope, codec feed.Codec[T], render func(T) tui.Row) error {
	remote, _ := cmd.Flags().GetBool("remote")
	limit, _ := cmd.Flags().GetInt("limit")

	env, err := openFeedEnv(cmd.Context(), remote)
	if err != nil {
		return err
	}
	defer env.Close()

	items, err := fetchEntities(cmd.Context(), env.store, env.resolver, scope, codec)
	if err != nil {
		return err
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	printRows(cmd.OutOrStdout(), items, render)
	return nil
}

// fetchEntities reads scope once, drops documents that fail to decode, and
// returns the rest newest first with their linked previews attached.
func fetchEntities[T model.Entity](ctx context.Context, store service.Fetcher, resolver service.Resolver, scope service.Scope, codec feed.Codec[T]) ([]T, error) {
	docs, err := store.FetchOnce(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", scope, err)
	}

	items := make([]T, 0, len(docs))
	for _, doc := range docs {
		item, err := codec.Decode(doc)
		if err != nil {
			common.LogWarn(err, "Skipping malformed document", common.Fields{"id": doc.ID})
			continue
		}
		items = append(items, attachPreview(ctx, resolver, codec, item))
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Created().After(items[j].Created())
	})
	return items, nil
}

func attachPreview[T model.Entity](ctx context.Context, resolver service.Resolver, codec feed.Codec[T], item T) T {
	if resolver == nil || codec.Link == nil || codec.Attach == nil {
		return item
	}
	collection, id, ok := codec.Link(item)
	if !ok {
		return item
	}
	doc, err := resolver.FetchByID(ctx, collection, id)
	if err != nil || doc == nil {
		return item
	}
	return codec.Attach(item, live.PreviewFromDocument(*doc))
}

func printRows[T model.Entity](w io.Writer, items []T, render func(T) tui.Row) {
	if len(items) == 0 {
		fmt.Fprintln(w, cli.FormatInfo("Nothing here yet"))
		return
	}
	for _, item := range items {
		row := render(item)
		if row.Title != "" {
			fmt.Fprintln(w, cli.BoldStyle.Render(row.Title))
		}
		if row.Body != "" {
			fmt.Fprintln(w, row.Body)
		}
		fmt.Fprintln(w, cli.SubtleStyle.Render(fmt.Sprintf("%s · %s", row.Meta, item.Key())))
		fmt.Fprintln(w)
	}
}
