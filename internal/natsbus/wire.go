// Package natsbus exposes a document store over NATS.
//
// A Server answers request/reply operations against a local store and
// publishes a fresh snapshot for every scope a client has subscribed to. A
// Client implements service.DocumentStore on top of those subjects, so a
// live feed can run against a remote store exactly as it does against the
// local SQLite one.
//
// Subjects, with the default "shop" prefix:
//
//	shop.store.fetch       one-shot scope read
//	shop.store.get         single document read
//	shop.store.write       create a document
//	shop.store.update      patch a document
//	shop.store.subscribe   open (or join) a scope feed
//	shop.snapshot.<collection>.<scope key>   pushed snapshots
package natsbus

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/Veraticus/shopcompare/internal/common"
	"github.com/Veraticus/shopcompare/internal/live"
	"github.com/Veraticus/shopcompare/internal/model"
	"github.com/Veraticus/shopcompare/internal/service"
)

// DefaultPrefix is the subject prefix used when none is configured.
const DefaultPrefix = "shop"

// Operations.
const (
	opFetch     = "fetch"
	opGet       = "get"
	opWrite     = "write"
	opPut       = "put"
	opUpdate    = "update"
	opSubscribe = "subscribe"
)

// Error codes carried in responses.
const (
	codeNotFound = "not_found"
	codeInvalid  = "invalid"
	codeInternal = "internal"
)

// ErrInvalidSubject is returned for collections that cannot form a subject token.
var ErrInvalidSubject = errors.New("invalid subject token")

type scopeMsg struct {
	Collection string `json:"collection"`
	Field      string `json:"field,omitempty"`
	Value      string `json:"value,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

func toScopeMsg(s service.Scope) scopeMsg {
	return scopeMsg{Collection: s.Collection, Field: s.Field, Value: s.Value, Limit: s.Limit}
}

func (m scopeMsg) scope() service.Scope {
	return service.Scope{Collection: m.Collection, Field: m.Field, Value: m.Value, Limit: m.Limit}
}

type documentMsg struct {
	Fields     map[string]any `json:"fields"`
	ID         string         `json:"id"`
	Collection string         `json:"collection"`
}

type request struct {
	Scope      *scopeMsg      `json:"scope,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	Collection string         `json:"collection,omitempty"`
	ID         string         `json:"id,omitempty"`
}

type response struct {
	Doc     *documentMsg  `json:"doc,omitempty"`
	Error   string        `json:"error,omitempty"`
	Code    string        `json:"code,omitempty"`
	ID      string        `json:"id,omitempty"`
	Subject string        `json:"subject,omitempty"`
	Docs    []documentMsg `json:"docs,omitempty"`
	Seq     uint64        `json:"seq,omitempty"`
}

type snapshotMsg struct {
	Error string        `json:"error,omitempty"`
	Docs  []documentMsg `json:"docs"`
	Seq   uint64        `json:"seq"`
}

// err converts a failed response back into the store's sentinel errors.
func (r *response) err() error {
	if r.Error == "" {
		return nil
	}
	switch r.Code {
	case codeNotFound:
		return fmt.Errorf("%w: %s", common.ErrNotFound, r.Error)
	case codeInvalid:
		return common.NewUserError("invalid request", errors.New(r.Error))
	default:
		return fmt.Errorf("%w: %s", common.ErrWriteFailed, r.Error)
	}
}

func errorResponse(err error) response {
	code := codeInternal
	if errors.Is(err, common.ErrNotFound) {
		code = codeNotFound
	}
	var userErr *common.UserError
	if errors.As(err, &userErr) || errors.Is(err, ErrInvalidSubject) {
		code = codeInvalid
	}
	return response{Error: err.Error(), Code: code}
}

// encodeDocument converts the store timestamp into the portable
// {"seconds","nanoseconds"} form.
func encodeDocument(doc service.Document) documentMsg {
	fields := make(map[string]any, len(doc.Fields))
	for k, v := range doc.Fields {
		fields[k] = v
	}
	if t, ok := live.NormalizeTimestamp(fields[service.FieldCreatedAt]); ok {
		ts := model.NewTimestamp(t)
		fields[service.FieldCreatedAt] = map[string]any{
			"seconds":     ts.Seconds,
			"nanoseconds": ts.Nanos,
		}
	}
	return documentMsg{ID: doc.ID, Collection: doc.Collection, Fields: fields}
}

func encodeDocuments(docs []service.Document) []documentMsg {
	out := make([]documentMsg, 0, len(docs))
	for _, doc := range docs {
		out = append(out, encodeDocument(doc))
	}
	return out
}

func (m documentMsg) document() service.Document {
	fields := m.Fields
	if fields == nil {
		fields = make(map[string]any)
	}
	return service.Document{ID: m.ID, Collection: m.Collection, Fields: fields}
}

func decodeDocuments(msgs []documentMsg) []service.Document {
	out := make([]service.Document, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.document())
	}
	return out
}

func validToken(s string) bool {
	if s == "" {
		return false
	}
	return !strings.ContainsAny(s, ".*> \t\r\n")
}

// scopeKey is a subject-safe, deterministic token for a scope.
func scopeKey(s service.Scope) string {
	raw := s.Field + "\x00" + s.Value + "\x00" + strconv.Itoa(s.Limit)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func requestSubject(prefix, op string) string {
	return prefix + ".store." + op
}

func snapshotSubject(prefix string, s service.Scope) (string, error) {
	if !validToken(s.Collection) {
		return "", fmt.Errorf("%w: collection %q", ErrInvalidSubject, s.Collection)
	}
	return prefix + ".snapshot." + s.Collection + "." + scopeKey(s), nil
}

func marshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		data, _ = json.Marshal(response{Error: err.Error(), Code: codeInternal})
	}
	return data
}
