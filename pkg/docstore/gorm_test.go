package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stockrun/stockrun-backend/pkg/config"
	"github.com/stockrun/stockrun-backend/pkg/db"
	"github.com/stockrun/stockrun-backend/pkg/db/models"
)

func openTestStore(t *testing.T) *GormStore {
	t.Helper()

	dsn := os.Getenv("STOCKRUN_DB_DSN")
	if dsn == "" {
		t.Skip("STOCKRUN_DB_DSN is not set")
	}

	client, err := db.New(context.Background(), config.DBConfig{DSN: dsn}, nil)
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	if err := client.DB().AutoMigrate(&models.Document{}); err != nil {
		t.Fatalf("failed to migrate documents table: %v", err)
	}

	store, err := NewGormStore(client)
	if err != nil {
		t.Fatalf("failed to build store: %v", err)
	}
	return store
}

func testCollection(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("test/%s/%d", t.Name(), time.Now().UnixNano())
}

func TestGormStorePutGet(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	coll := testCollection(t)

	if err := store.Put(ctx, coll, "doc-1", map[string]any{"status": "pending", "amount": 10}); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	raw, err := store.Get(ctx, coll, "doc-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["status"] != "pending" {
		t.Fatalf("expected status pending, got %v", body["status"])
	}

	if _, err := store.Get(ctx, coll, "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGormStoreUpdateWhereGuard(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	coll := testCollection(t)

	if err := store.Put(ctx, coll, "doc-1", map[string]any{"status": "pending"}); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	guard := []Predicate{{Field: "status", Value: "pending"}}

	affected, err := store.UpdateWhere(ctx, coll, "doc-1", guard, map[string]any{"status": "paid"})
	if err != nil {
		t.Fatalf("UpdateWhere returned error: %v", err)
	}
	if affected != 1 {
		t.Fatalf("expected 1 affected row, got %d", affected)
	}

	// The guard no longer holds, so a second attempt must be a no-op.
	affected, err = store.UpdateWhere(ctx, coll, "doc-1", guard, map[string]any{"status": "paid"})
	if err != nil {
		t.Fatalf("UpdateWhere returned error: %v", err)
	}
	if affected != 0 {
		t.Fatalf("expected 0 affected rows, got %d", affected)
	}
}

func TestGormStoreQueryOrdering(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	coll := testCollection(t)

	seed := []map[string]any{
		{"name": "b", "rank": "2"},
		{"name": "a", "rank": "1"},
		{"name": "c", "rank": "3"},
	}
	for i, doc := range seed {
		if err := store.Put(ctx, coll, fmt.Sprintf("doc-%d", i), doc); err != nil {
			t.Fatalf("Put returned error: %v", err)
		}
	}

	records, err := store.Query(ctx, coll, nil, &Order{Field: "rank", Descending: true})
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}

	var first map[string]any
	if err := json.Unmarshal(records[0].Data, &first); err != nil {
		t.Fatalf("decoding record: %v", err)
	}
	if first["name"] != "c" {
		t.Fatalf("expected highest rank first, got %v", first["name"])
	}

	filtered, err := store.Query(ctx, coll, []Predicate{{Field: "name", Value: "a"}}, nil)
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if len(filtered) != 1 {
		t.Fatalf("expected 1 filtered record, got %d", len(filtered))
	}
}
