package model

import (
	"strconv"
	"strings"
	"time"
)

// SpeculativePrefix marks ids synthesized on the client before the store has
// persisted the entity.
const SpeculativePrefix = "temp-"

// IsSpeculativeID reports whether id is a client placeholder.
func IsSpeculativeID(id string) bool {
	return strings.HasPrefix(id, SpeculativePrefix)
}

// Entity is the shape shared by every record that flows through a live feed.
type Entity interface {
	Key() string
	Created() time.Time
	Speculative() bool
}

// Review is a user rating of a product.
type Review struct {
	CreatedAt time.Time
	Product   *LinkedPreview // Resolved from ProductID, nil when unavailable
	ID        string
	AuthorID  string
	ProductID string
	Text      string
	Rating    int
}

// Key implements Entity.
func (r Review) Key() string { return r.ID }

// Created implements Entity.
func (r Review) Created() time.Time { return r.CreatedAt }

// Speculative implements Entity.
func (r Review) Speculative() bool { return IsSpeculativeID(r.ID) }

// Fingerprint identifies the review's authored content: author, rating and
// trimmed text. A rating-only review is still distinct per author and rating.
func (r Review) Fingerprint() string {
	return r.AuthorID + "\n" + strconv.Itoa(r.Rating) + "\n" + strings.TrimSpace(r.Text)
}

// Post is a community feed entry, optionally about a product.
type Post struct {
	CreatedAt time.Time
	Product   *LinkedPreview
	ID        string
	AuthorID  string
	ProductID string
	Title     string
	Body      string
}

// Key implements Entity.
func (p Post) Key() string { return p.ID }

// Created implements Entity.
func (p Post) Created() time.Time { return p.CreatedAt }

// Speculative implements Entity.
func (p Post) Speculative() bool { return IsSpeculativeID(p.ID) }

// Fingerprint is the post's author with its trimmed title and body.
func (p Post) Fingerprint() string {
	return p.AuthorID + "\n" + strings.TrimSpace(p.Title) + "\n" + strings.TrimSpace(p.Body)
}

// Comment is a reply to a post.
type Comment struct {
	CreatedAt time.Time
	ID        string
	PostID    string
	AuthorID  string
	Text      string
}

// Key implements Entity.
func (c Comment) Key() string { return c.ID }

// Created implements Entity.
func (c Comment) Created() time.Time { return c.CreatedAt }

// Speculative implements Entity.
func (c Comment) Speculative() bool { return IsSpeculativeID(c.ID) }

// Fingerprint is the comment's author with its trimmed text.
func (c Comment) Fingerprint() string {
	return c.AuthorID + "\n" + strings.TrimSpace(c.Text)
}

var (
	_ Entity = Review{}
	_ Entity = Post{}
	_ Entity = Comment{}
)
