// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"fmt"
)

// Collection names used by the document store.
const (
	CollectionProducts = "products"
	CollectionReviews  = "reviews"
	CollectionPosts    = "posts"
	CollectionComments = "comments"
	CollectionUsers    = "users"
)

// FieldCreatedAt is the document field that carries the server timestamp.
const FieldCreatedAt = "createdAt"

// Scope selects the documents a query or subscription covers: every document
// of Collection, optionally narrowed to those whose Field equals Value.
type Scope struct {
	Collection string
	Field      string
	Value      string
	Limit      int
}

// String renders the scope for logs.
func (s Scope) String() string {
	if s.Field == "" {
		return s.Collection
	}
	return fmt.Sprintf("%s[%s=%s]", s.Collection, s.Field, s.Value)
}

// Matches reports whether a document belongs to the scope.
func (s Scope) Matches(doc Document) bool {
	if doc.Collection != s.Collection {
		return false
	}
	if s.Field == "" {
		return true
	}
	v, ok := doc.Fields[s.Field]
	if !ok {
		return false
	}
	return fmt.Sprint(v) == s.Value
}

// Document is a stored record. Fields holds the user data plus the
// server-generated FieldCreatedAt timestamp.
type Document struct {
	Fields     map[string]any
	ID         string
	Collection string
}

// Unsubscribe releases a live subscription. It must be safe to call more than once.
type Unsubscribe func()

// SnapshotFunc receives the full current matching set on every change.
type SnapshotFunc func(docs []Document)

// ErrorFunc receives subscription failures.
type ErrorFunc func(err error)

// Fetcher performs one-shot reads.
type Fetcher interface {
	FetchOnce(ctx context.Context, scope Scope) ([]Document, error)
}

// Subscriber opens push-based live subscriptions.
type Subscriber interface {
	Subscribe(ctx context.Context, scope Scope, onSnapshot SnapshotFunc, onError ErrorFunc) (Unsubscribe, error)
}

// Source is what a live feed reads from.
type Source interface {
	Fetcher
	Subscriber
}

// Writer persists documents. Write returns the server-issued id. Put stores
// data under a caller-chosen id, so repeating it leaves one document.
type Writer interface {
	Write(ctx context.Context, collection string, data map[string]any) (string, error)
	Put(ctx context.Context, collection, id string, data map[string]any) error
	Update(ctx context.Context, collection, id string, patch map[string]any) error
}

// Resolver loads a single document. It returns (nil, nil) when the document
// does not exist.
type Resolver interface {
	FetchByID(ctx context.Context, collection, id string) (*Document, error)
}

// DocumentStore is the full data layer contract.
type DocumentStore interface {
	Source
	Writer
	Resolver
	Close() error
}
