package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/stockrun/stockrun-backend/pkg/db"
	"github.com/stockrun/stockrun-backend/pkg/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore persists documents in a shared Postgres JSONB table.
type GormStore struct {
	client *db.Client
}

// NewGormStore wires the document store against the shared DB client.
func NewGormStore(client *db.Client) (*GormStore, error) {
	if client == nil {
		return nil, fmt.Errorf("db client is required")
	}
	return &GormStore{client: client}, nil
}

// Put creates or fully replaces the document body.
func (s *GormStore) Put(ctx context.Context, collection, docID string, data any) error {
	body, err := marshalBody(data)
	if err != nil {
		return err
	}

	doc := models.Document{
		Collection: collection,
		DocID:      docID,
		Data:       body,
	}

	return s.client.DB().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "collection"}, {Name: "doc_id"}},
			DoUpdates: clause.Assignments(map[string]any{"data": body, "updated_at": gorm.Expr("now()")}),
		}).
		Create(&doc).Error
}

// Get loads a single document body.
func (s *GormStore) Get(ctx context.Context, collection, docID string) (json.RawMessage, error) {
	var doc models.Document
	err := s.client.DB().WithContext(ctx).
		Where("collection = ? AND doc_id = ?", collection, docID).
		First(&doc).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return doc.Data, nil
}

// Query returns every document in the collection matching all predicates.
func (s *GormStore) Query(ctx context.Context, collection string, preds []Predicate, order *Order) ([]Record, error) {
	query := s.client.DB().WithContext(ctx).
		Model(&models.Document{}).
		Where("collection = ?", collection)

	for _, pred := range preds {
		query = query.Where("data ->> ? = ?", pred.Field, pred.Value)
	}

	if order != nil {
		direction := "ASC"
		if order.Descending {
			direction = "DESC"
		}
		field := strings.ReplaceAll(order.Field, "'", "")
		query = query.Order(fmt.Sprintf("data ->> '%s' %s NULLS LAST", field, direction))
	}

	var docs []models.Document
	if err := query.Find(&docs).Error; err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(docs))
	for _, doc := range docs {
		records = append(records, Record{DocID: doc.DocID, Data: doc.Data})
	}
	return records, nil
}

// Update merges fields into the stored body. Missing documents are an error.
func (s *GormStore) Update(ctx context.Context, collection, docID string, fields map[string]any) error {
	affected, err := s.UpdateWhere(ctx, collection, docID, nil, fields)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateWhere merges fields into the body only while every predicate holds,
// in a single conditional UPDATE. The affected-row count tells the caller
// whether the write actually happened.
func (s *GormStore) UpdateWhere(ctx context.Context, collection, docID string, preds []Predicate, fields map[string]any) (int64, error) {
	patch, err := marshalBody(fields)
	if err != nil {
		return 0, err
	}

	var sb strings.Builder
	sb.WriteString("UPDATE documents SET data = data || ?::jsonb, updated_at = now() WHERE collection = ? AND doc_id = ?")
	args := []any{string(patch), collection, docID}
	for _, pred := range preds {
		sb.WriteString(" AND data ->> ? = ?")
		args = append(args, pred.Field, pred.Value)
	}

	result := s.client.DB().WithContext(ctx).Exec(sb.String(), args...)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// Append stores the body under a fresh document id and returns it.
func (s *GormStore) Append(ctx context.Context, collection string, data any) (string, error) {
	docID := uuid.NewString()
	if err := s.Put(ctx, collection, docID, data); err != nil {
		return "", err
	}
	return docID, nil
}

func marshalBody(data any) (json.RawMessage, error) {
	if raw, ok := data.(json.RawMessage); ok {
		return raw, nil
	}
	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encoding document body: %w", err)
	}
	return body, nil
}
