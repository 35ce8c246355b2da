package docstore

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound is returned when a document does not exist in the collection.
var ErrNotFound = errors.New("document not found")

// Predicate is an equality match on a top-level field of the document body.
// Values compare as text, the way Postgres evaluates data ->> field.
type Predicate struct {
	Field string
	Value string
}

// Order names the top-level field the query sorts on.
type Order struct {
	Field      string
	Descending bool
}

// Record pairs a document id with its raw body.
type Record struct {
	DocID string
	Data  json.RawMessage
}

// Store is the document persistence surface used by the domain services.
// Update and UpdateWhere merge the given fields into the stored body;
// UpdateWhere only applies when every predicate still holds and reports how
// many rows it touched, which is the primitive conditional transitions need.
type Store interface {
	Put(ctx context.Context, collection, docID string, data any) error
	Get(ctx context.Context, collection, docID string) (json.RawMessage, error)
	Query(ctx context.Context, collection string, preds []Predicate, order *Order) ([]Record, error)
	Update(ctx context.Context, collection, docID string, fields map[string]any) error
	UpdateWhere(ctx context.Context, collection, docID string, preds []Predicate, fields map[string]any) (int64, error)
	Append(ctx context.Context, collection string, data any) (string, error)
}
