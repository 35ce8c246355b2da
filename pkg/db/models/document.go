package models

import (
	"encoding/json"
	"time"
)

// Document is a single JSONB record inside a named collection.
type Document struct {
	ID         int64           `gorm:"primaryKey;autoIncrement"`
	Collection string          `gorm:"type:text;not null;uniqueIndex:idx_documents_collection_doc,priority:1"`
	DocID      string          `gorm:"column:doc_id;type:text;not null;uniqueIndex:idx_documents_collection_doc,priority:2"`
	Data       json.RawMessage `gorm:"type:jsonb;not null"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName pins the shared document table.
func (Document) TableName() string {
	return "documents"
}
