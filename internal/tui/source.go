package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Veraticus/shopcompare/internal/feed"
	"github.com/Veraticus/shopcompare/internal/live"
	"github.com/Veraticus/shopcompare/internal/model"
)

// ErrReadOnly is returned when submitting to a feed that cannot compose.
var ErrReadOnly = errors.New("feed is read-only")

// Row is one rendered feed entry.
type Row struct {
	ID      string
	Title   string
	Body    string
	Meta    string
	Recent  bool
	Pending bool
}

// Snapshot is what the viewer renders for one feed update.
type Snapshot struct {
	Rows     []Row
	State    live.State
	IsLive   bool
	IsOnline bool
}

// Source is a live feed the viewer can display and post to.
type Source interface {
	// OnChange registers the listener. It may be called from any goroutine
	// and must not block.
	OnChange(fn func(Snapshot))
	Start(ctx context.Context)
	SetOnline(online bool)
	Submit(ctx context.Context, text string) error
	CanCompose() bool
	Close()
}

// FeedSource adapts a feed.Feed to the viewer.
type FeedSource[T model.Entity] struct {
	feed    *feed.Feed[T]
	render  func(T) Row
	compose func(text string) (T, error)
}

// NewFeedSource wraps f. compose turns typed text into a draft entity; nil
// makes the source read-only.
func NewFeedSource[T model.Entity](f *feed.Feed[T], render func(T) Row, compose func(text string) (T, error)) *FeedSource[T] {
	return &FeedSource[T]{feed: f, render: render, compose: compose}
}

// OnChange implements Source.
func (s *FeedSource[T]) OnChange(fn func(Snapshot)) {
	s.feed.OnChange(func(v feed.View[T]) {
		fn(s.snapshot(v))
	})
}

// Start implements Source.
func (s *FeedSource[T]) Start(ctx context.Context) { s.feed.Start(ctx) }

// SetOnline implements Source.
func (s *FeedSource[T]) SetOnline(online bool) { s.feed.SetOnline(online) }

// Close implements Source.
func (s *FeedSource[T]) Close() { s.feed.Close() }

// CanCompose implements Source.
func (s *FeedSource[T]) CanCompose() bool { return s.compose != nil }

// Submit implements Source.
func (s *FeedSource[T]) Submit(ctx context.Context, text string) error {
	if s.compose == nil {
		return ErrReadOnly
	}
	draft, err := s.compose(text)
	if err != nil {
		return err
	}
	_, err = s.feed.Submit(ctx, draft)
	return err
}

func (s *FeedSource[T]) snapshot(v feed.View[T]) Snapshot {
	rows := make([]Row, 0, len(v.Items))
	for _, item := range v.Items {
		row := s.render(item)
		row.ID = item.Key()
		row.Recent = v.IsRecent(item.Key())
		row.Pending = item.Speculative()
		rows = append(rows, row)
	}
	return Snapshot{
		Rows:     rows,
		State:    v.State,
		IsLive:   v.IsLive,
		IsOnline: v.IsOnline,
	}
}

const timeLayout = "Jan 2 15:04"

// ReviewRow renders a review.
func ReviewRow(r model.Review) Row {
	stars := clampRating(r.Rating)
	title := strings.Repeat("★", stars) + strings.Repeat("☆", 5-stars)
	if r.Product != nil {
		title += "  " + r.Product.DisplayName
	}
	return Row{
		Title: title,
		Body:  r.Text,
		Meta:  meta(r.AuthorID, r.CreatedAt.Local().Format(timeLayout)),
	}
}

// PostRow renders a community post.
func PostRow(p model.Post) Row {
	title := p.Title
	if p.Product != nil {
		title += "  · " + p.Product.DisplayName
	}
	return Row{
		Title: title,
		Body:  p.Body,
		Meta:  meta(p.AuthorID, p.CreatedAt.Local().Format(timeLayout)),
	}
}

// CommentRow renders a comment.
func CommentRow(c model.Comment) Row {
	return Row{
		Body: c.Text,
		Meta: meta(c.AuthorID, c.CreatedAt.Local().Format(timeLayout)),
	}
}

// ComposeReview parses "<rating> <text>", e.g. "4 creamy and cheap".
func ComposeReview(productID, authorID string) func(string) (model.Review, error) {
	return func(text string) (model.Review, error) {
		head, rest, _ := strings.Cut(strings.TrimSpace(text), " ")
		rating, err := strconv.Atoi(head)
		if err != nil {
			return model.Review{}, fmt.Errorf("start a review with its rating, e.g. \"4 tasty\": %w", feed.ErrInvalidRating)
		}
		return model.Review{ProductID: productID, AuthorID: authorID, Rating: rating, Text: rest}, nil
	}
}

// ComposePost splits "title | body"; text without a bar is all title.
func ComposePost(authorID string) func(string) (model.Post, error) {
	return func(text string) (model.Post, error) {
		title, body, _ := strings.Cut(text, "|")
		return model.Post{AuthorID: authorID, Title: strings.TrimSpace(title), Body: strings.TrimSpace(body)}, nil
	}
}

// ComposeComment replies to postID.
func ComposeComment(postID, authorID string) func(string) (model.Comment, error) {
	return func(text string) (model.Comment, error) {
		return model.Comment{PostID: postID, AuthorID: authorID, Text: text}, nil
	}
}

func meta(author, at string) string {
	if author == "" {
		return at
	}
	return author + " · " + at
}

func clampRating(r int) int {
	return max(0, min(5, r))
}
