package feed

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/shopcompare/internal/common"
	"github.com/Veraticus/shopcompare/internal/live"
	"github.com/Veraticus/shopcompare/internal/model"
	"github.com/Veraticus/shopcompare/internal/service"
)

// Document fields.
const (
	FieldText      = "text"
	FieldRating    = "rating"
	FieldTitle     = "title"
	FieldBody      = "body"
	FieldAuthorID  = "authorId"
	FieldProductID = "productId"
	FieldPostID    = "postId"
)

// Decode errors.
var (
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
	ErrEmptyContent  = errors.New("content cannot be empty")
)

func linkProduct(productID string) (string, string, bool) {
	return service.CollectionProducts, productID, productID != ""
}

// ReviewCodec stores reviews and links them to their product.
func ReviewCodec() Codec[model.Review] {
	return Codec[model.Review]{
		Codec: live.Codec[model.Review]{
			Decode: decodeReview,
			Link: func(r model.Review) (string, string, bool) {
				return linkProduct(r.ProductID)
			},
			Attach: func(r model.Review, p model.LinkedPreview) model.Review {
				r.Product = &p
				return r
			},
		},
		Encode: func(r model.Review) map[string]any {
			return map[string]any{
				FieldText:      r.Text,
				FieldRating:    r.Rating,
				FieldAuthorID:  r.AuthorID,
				FieldProductID: r.ProductID,
			}
		},
		Fingerprint: model.Review.Fingerprint,
		Draft:       func(r model.Review) string { return r.Text },
		Stamp: func(r model.Review, id string, at time.Time) model.Review {
			r.ID = id
			r.CreatedAt = at
			return r
		},
		Validate: func(r model.Review) error {
			if r.Rating < model.MinScore || r.Rating > model.MaxScore {
				return common.NewUserError("pick a rating from 1 to 5", fmt.Errorf("%w: got %d", ErrInvalidRating, r.Rating))
			}
			if r.ProductID == "" {
				return common.NewUserError("a review needs a product", ErrEmptyContent)
			}
			return nil
		},
	}
}

func decodeReview(doc service.Document) (model.Review, error) {
	rating := doc.Int(FieldRating)
	if rating < model.MinScore || rating > model.MaxScore {
		return model.Review{}, fmt.Errorf("review %s: %w: got %d", doc.ID, ErrInvalidRating, rating)
	}
	return model.Review{
		ID:        doc.ID,
		Text:      doc.String(FieldText),
		Rating:    rating,
		AuthorID:  doc.String(FieldAuthorID),
		ProductID: doc.String(FieldProductID),
		CreatedAt: doc.Time(service.FieldCreatedAt),
	}, nil
}

// PostCodec stores community posts and links them to their product, if any.
func PostCodec() Codec[model.Post] {
	return Codec[model.Post]{
		Codec: live.Codec[model.Post]{
			Decode: decodePost,
			Link: func(p model.Post) (string, string, bool) {
				return linkProduct(p.ProductID)
			},
			Attach: func(p model.Post, preview model.LinkedPreview) model.Post {
				p.Product = &preview
				return p
			},
		},
		Encode: func(p model.Post) map[string]any {
			data := map[string]any{
				FieldTitle:    p.Title,
				FieldBody:     p.Body,
				FieldAuthorID: p.AuthorID,
			}
			if p.ProductID != "" {
				data[FieldProductID] = p.ProductID
			}
			return data
		},
		Fingerprint: model.Post.Fingerprint,
		Draft: func(p model.Post) string {
			if p.Body == "" {
				return p.Title
			}
			return p.Title + "\n\n" + p.Body
		},
		Stamp: func(p model.Post, id string, at time.Time) model.Post {
			p.ID = id
			p.CreatedAt = at
			return p
		},
		Validate: func(p model.Post) error {
			if strings.TrimSpace(p.Title) == "" && strings.TrimSpace(p.Body) == "" {
				return common.NewUserError("write something first", ErrEmptyContent)
			}
			return nil
		},
	}
}

func decodePost(doc service.Document) (model.Post, error) {
	post := model.Post{
		ID:        doc.ID,
		Title:     doc.String(FieldTitle),
		Body:      doc.String(FieldBody),
		AuthorID:  doc.String(FieldAuthorID),
		ProductID: doc.String(FieldProductID),
		CreatedAt: doc.Time(service.FieldCreatedAt),
	}
	if strings.TrimSpace(post.Title) == "" && strings.TrimSpace(post.Body) == "" {
		return model.Post{}, fmt.Errorf("post %s: %w", doc.ID, ErrEmptyContent)
	}
	return post, nil
}

// CommentCodec stores replies to posts.
func CommentCodec() Codec[model.Comment] {
	return Codec[model.Comment]{
		Codec: live.Codec[model.Comment]{
			Decode: decodeComment,
		},
		Encode: func(c model.Comment) map[string]any {
			return map[string]any{
				FieldText:     c.Text,
				FieldPostID:   c.PostID,
				FieldAuthorID: c.AuthorID,
			}
		},
		Fingerprint: model.Comment.Fingerprint,
		Draft:       func(c model.Comment) string { return c.Text },
		Stamp: func(c model.Comment, id string, at time.Time) model.Comment {
			c.ID = id
			c.CreatedAt = at
			return c
		},
		Validate: func(c model.Comment) error {
			if strings.TrimSpace(c.Text) == "" {
				return common.NewUserError("write something first", ErrEmptyContent)
			}
			if c.PostID == "" {
				return common.NewUserError("a comment needs a post", ErrEmptyContent)
			}
			return nil
		},
	}
}

func decodeComment(doc service.Document) (model.Comment, error) {
	text := doc.String(FieldText)
	if strings.TrimSpace(text) == "" {
		return model.Comment{}, fmt.Errorf("comment %s: %w", doc.ID, ErrEmptyContent)
	}
	return model.Comment{
		ID:        doc.ID,
		Text:      text,
		PostID:    doc.String(FieldPostID),
		AuthorID:  doc.String(FieldAuthorID),
		CreatedAt: doc.Time(service.FieldCreatedAt),
	}, nil
}

// NewReviews follows the reviews of one product, or of every product when
// productID is empty.
func NewReviews(store Store, productID string, opts Options) *Feed[model.Review] {
	scope := service.Scope{Collection: service.CollectionReviews}
	if productID != "" {
		scope.Field = FieldProductID
		scope.Value = productID
	}
	return New(store, scope, ReviewCodec(), "reviews", opts)
}

// NewPosts follows the community feed.
func NewPosts(store Store, opts Options) *Feed[model.Post] {
	return New(store, service.Scope{Collection: service.CollectionPosts}, PostCodec(), "posts", opts)
}

// NewComments follows the comments of one post.
func NewComments(store Store, postID string, opts Options) *Feed[model.Comment] {
	scope := service.Scope{
		Collection: service.CollectionComments,
		Field:      FieldPostID,
		Value:      postID,
	}
	return New(store, scope, CommentCodec(), "comments", opts)
}
