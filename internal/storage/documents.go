package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/Veraticus/shopcompare/internal/common"
	"github.com/Veraticus/shopcompare/internal/model"
	"github.com/Veraticus/shopcompare/internal/service"
)

// FetchOnce returns the documents matching scope, newest first. Field
// filters compare the stored JSON value as text.
func (s *SQLiteStorage) FetchOnce(ctx context.Context, scope service.Scope) ([]service.Document, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateScope(scope); err != nil {
		return nil, err
	}
	return s.fetchTx(ctx, s.db, scope)
}

func (s *SQLiteStorage) fetchTx(ctx context.Context, q queryable, scope service.Scope) ([]service.Document, error) {
	var (
		query strings.Builder
		args  []any
	)
	query.WriteString(`SELECT id, data, created_at FROM documents WHERE collection = ?`)
	args = append(args, scope.Collection)

	if scope.Field != "" {
		query.WriteString(` AND CAST(json_extract(data, ?) AS TEXT) = ?`)
		args = append(args, jsonPath(scope.Field), scope.Value)
	}
	query.WriteString(` ORDER BY created_at DESC, id`)
	if scope.Limit > 0 {
		query.WriteString(` LIMIT ?`)
		args = append(args, scope.Limit)
	}

	rows, err := q.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", scope, err)
	}
	defer func() { _ = rows.Close() }()

	var docs []service.Document
	for rows.Next() {
		var (
			id        string
			data      string
			createdAt int64
		)
		if err := rows.Scan(&id, &data, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc, err := decodeDocument(scope.Collection, id, data, createdAt)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}

	return docs, nil
}

// FetchByID returns the document or (nil, nil) when it does not exist.
func (s *SQLiteStorage) FetchByID(ctx context.Context, collection, id string) (*service.Document, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(collection, "collection"); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	doc, err := s.getDocumentTx(ctx, s.db, collection, id)
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil
	}
	return doc, err
}

func (s *SQLiteStorage) getDocumentTx(ctx context.Context, q queryable, collection, id string) (*service.Document, error) {
	var (
		data      string
		createdAt int64
	)
	err := q.QueryRowContext(ctx,
		`SELECT data, created_at FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	).Scan(&data, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", common.ErrNotFound, collection, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s/%s: %w", collection, id, err)
	}

	doc, err := decodeDocument(collection, id, data, createdAt)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// Write stores a new document under a server-issued id and timestamp.
func (s *SQLiteStorage) Write(ctx context.Context, collection string, data map[string]any) (string, error) {
	if err := validateContext(ctx); err != nil {
		return "", err
	}
	if err := validateString(collection, "collection"); err != nil {
		return "", err
	}
	if err := validateData(data); err != nil {
		return "", err
	}

	id := uuid.NewString()
	if err := s.insert(ctx, collection, id, data); err != nil {
		return "", err
	}

	s.notify(ctx, collection)
	return id, nil
}

// Put creates or replaces the document with the given id. A replaced
// document keeps its original timestamp.
func (s *SQLiteStorage) Put(ctx context.Context, collection, id string, data map[string]any) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(collection, "collection"); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	if model.IsSpeculativeID(id) {
		return fmt.Errorf("%w: placeholder id %q", ErrInvalidDocument, id)
	}
	if err := validateData(data); err != nil {
		return err
	}

	if err := s.insert(ctx, collection, id, data); err != nil {
		return err
	}

	s.notify(ctx, collection)
	return nil
}

func (s *SQLiteStorage) insert(ctx context.Context, collection, id string, data map[string]any) error {
	encoded, err := encodeFields(data)
	if err != nil {
		return err
	}

	stamp := s.nextStamp().UnixNano()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at
	`, collection, id, encoded, stamp, stamp)
	if err != nil {
		return fmt.Errorf("%w: %s/%s: %w", common.ErrWriteFailed, collection, id, err)
	}
	return nil
}

// Update merges patch into an existing document. A nil value removes the key.
func (s *SQLiteStorage) Update(ctx context.Context, collection, id string, patch map[string]any) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(collection, "collection"); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	if err := validateData(patch); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	doc, err := s.getDocumentTx(ctx, tx, collection, id)
	if err != nil {
		return err
	}

	fields := doc.Fields
	for k, v := range patch {
		if v == nil {
			delete(fields, k)
			continue
		}
		fields[k] = v
	}

	encoded, err := encodeFields(fields)
	if err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE documents SET data = ?, updated_at = ? WHERE collection = ? AND id = ?`,
		encoded, s.nextStamp().UnixNano(), collection, id,
	)
	if err != nil {
		return fmt.Errorf("%w: %s/%s: %w", common.ErrWriteFailed, collection, id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s/%s", common.ErrNotFound, collection, id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit update: %w", err)
	}

	s.notify(ctx, collection)
	return nil
}

// Delete removes a document. Deleting a missing document is not an error.
func (s *SQLiteStorage) Delete(ctx context.Context, collection, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(collection, "collection"); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id,
	); err != nil {
		return fmt.Errorf("%w: %s/%s: %w", common.ErrWriteFailed, collection, id, err)
	}

	s.notify(ctx, collection)
	return nil
}

// Count returns the number of documents in a collection.
func (s *SQLiteStorage) Count(ctx context.Context, collection string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE collection = ?`, collection,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", collection, err)
	}
	return n, nil
}

// encodeFields serializes user fields. The server timestamp is never
// stored in the payload.
func encodeFields(fields map[string]any) (string, error) {
	payload := make(map[string]any, len(fields))
	for k, v := range fields {
		if k == service.FieldCreatedAt {
			continue
		}
		payload[k] = v
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	return string(data), nil
}

func decodeDocument(collection, id, data string, createdAt int64) (service.Document, error) {
	fields := make(map[string]any)
	if err := json.Unmarshal([]byte(data), &fields); err != nil {
		return service.Document{}, fmt.Errorf("failed to decode document %s/%s: %w", collection, id, err)
	}
	fields[service.FieldCreatedAt] = model.NewTimestamp(time.Unix(0, createdAt))

	return service.Document{
		ID:         id,
		Collection: collection,
		Fields:     fields,
	}, nil
}

func jsonPath(field string) string {
	return "$." + field
}
