// Package store is the index store adapter: named full-text indexes holding
// weighted fields, with ranked, sorted and windowed queries.
//
// Two backends implement IndexStore: Bleve (default) and SQLite FTS5.
package store

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors shared by every backend.
var (
	// ErrIndexExists is returned by CreateIndex when the name is taken.
	ErrIndexExists = errors.New("index already exists")

	// ErrDocumentExists is returned by AddDocument when the doc id is taken.
	ErrDocumentExists = errors.New("document already exists")

	// ErrIndexNotFound is returned when an operation names an unknown index.
	ErrIndexNotFound = errors.New("index not found")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("index store is closed")
)

// FieldType is the value type of a field.
type FieldType string

const (
	// FieldText holds analyzed text.
	FieldText FieldType = "text"
	// FieldNumeric holds an int64; numeric fields are sortable.
	FieldNumeric FieldType = "numeric"
)

// Field declares one field of an index. A weight of zero means the field is
// stored and returned but never contributes to the score.
type Field struct {
	Name   string    `json:"name"`
	Weight float64   `json:"weight"`
	Type   FieldType `json:"type"`
}

// Searchable reports whether the field takes part in text matching.
func (f Field) Searchable() bool {
	return f.Type == FieldText && f.Weight > 0
}

// Document holds field values keyed by field name.
// Text fields carry strings, numeric fields carry int64.
type Document map[string]any

// String returns a text field, or "".
func (d Document) String(name string) string {
	s, _ := d[name].(string)
	return s
}

// Int returns a numeric field, or 0.
func (d Document) Int(name string) int64 {
	switch v := d[name].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// Supported analyzer languages.
const (
	LanguageChinese = "chinese"
	LanguageEnglish = "english"
)

// QueryRequest describes one ranked, windowed query.
type QueryRequest struct {
	Index string
	Text  string

	// SortField orders hits by a numeric field instead of relevance.
	SortField string
	SortDesc  bool

	// Start and Count select the window [Start, Start+Count).
	Start int
	Count int

	Language string
}

// Hit is one matching document.
type Hit struct {
	DocID  string
	Fields Document
}

// QueryResult holds one window of hits in store order and the total number
// of matches.
type QueryResult struct {
	Hits     []Hit
	Total    int
	Duration time.Duration
}

// IndexStore is the contract the search service relies on.
// Implementations are safe for concurrent use.
type IndexStore interface {
	// CreateIndex creates a named index. Returns ErrIndexExists if present.
	CreateIndex(ctx context.Context, name string, fields []Field) error

	// AddDocument stores doc under docID. Returns ErrDocumentExists if the id
	// is already present; the stored document is left untouched.
	AddDocument(ctx context.Context, index, docID string, doc Document, language string) error

	// Query returns hits ordered by SortField, ties broken by insertion order.
	// Without a SortField hits are ordered by relevance.
	Query(ctx context.Context, req QueryRequest) (*QueryResult, error)

	// Stats reports per-index document counts.
	Stats(ctx context.Context) ([]IndexStats, error)

	Close() error
}

// IndexStats describes one index.
type IndexStats struct {
	Name      string `json:"name"`
	Documents int    `json:"documents"`
}
