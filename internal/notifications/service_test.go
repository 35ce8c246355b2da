package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stockrun/stockrun-backend/internal/provisioning"
	"github.com/stockrun/stockrun-backend/pkg/docstore"
	"github.com/stockrun/stockrun-backend/pkg/enums"
	pkgerrors "github.com/stockrun/stockrun-backend/pkg/errors"
	"github.com/stockrun/stockrun-backend/pkg/logger"
)

type fakeDocStore struct {
	docs      map[string]map[string]json.RawMessage
	appendErr error
	seq       int
}

func newFakeDocStore() *fakeDocStore {
	return &fakeDocStore{docs: map[string]map[string]json.RawMessage{}}
}

func (f *fakeDocStore) store(collection, docID string, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if f.docs[collection] == nil {
		f.docs[collection] = map[string]json.RawMessage{}
	}
	f.docs[collection][docID] = body
	return nil
}

func (f *fakeDocStore) Put(ctx context.Context, collection, docID string, data any) error {
	return f.store(collection, docID, data)
}

func (f *fakeDocStore) Get(ctx context.Context, collection, docID string) (json.RawMessage, error) {
	body, ok := f.docs[collection][docID]
	if !ok {
		return nil, docstore.ErrNotFound
	}
	return body, nil
}

func (f *fakeDocStore) Query(ctx context.Context, collection string, preds []docstore.Predicate, order *docstore.Order) ([]docstore.Record, error) {
	records := []docstore.Record{}
	for docID, body := range f.docs[collection] {
		records = append(records, docstore.Record{DocID: docID, Data: body})
	}
	return records, nil
}

func (f *fakeDocStore) Update(ctx context.Context, collection, docID string, fields map[string]any) error {
	body, ok := f.docs[collection][docID]
	if !ok {
		return docstore.ErrNotFound
	}
	var current map[string]any
	if err := json.Unmarshal(body, &current); err != nil {
		return err
	}
	for key, value := range fields {
		current[key] = value
	}
	return f.store(collection, docID, current)
}

func (f *fakeDocStore) UpdateWhere(ctx context.Context, collection, docID string, preds []docstore.Predicate, fields map[string]any) (int64, error) {
	if err := f.Update(ctx, collection, docID, fields); err != nil {
		return 0, nil
	}
	return 1, nil
}

func (f *fakeDocStore) Append(ctx context.Context, collection string, data any) (string, error) {
	if f.appendErr != nil {
		return "", f.appendErr
	}
	f.seq++
	docID := fmt.Sprintf("doc-%d", f.seq)
	return docID, f.store(collection, docID, data)
}

type fakeIdempotencyStore struct {
	seen    map[string]bool
	setErr  error
	deleted []string
}

func newFakeIdempotencyStore() *fakeIdempotencyStore {
	return &fakeIdempotencyStore{seen: map[string]bool{}}
}

func (f *fakeIdempotencyStore) Get(ctx context.Context, key string) (string, error) {
	return "", nil
}

func (f *fakeIdempotencyStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if f.setErr != nil {
		return false, f.setErr
	}
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

func (f *fakeIdempotencyStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("sr:idempotency:%s:%s", scope, id)
}

func (f *fakeIdempotencyStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.seen, key)
		f.deleted = append(f.deleted, key)
	}
	return nil
}

type fakeSubscriber struct{}

func (fakeSubscriber) Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error {
	return nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func newTestService(t *testing.T, documents docstore.Store) Service {
	t.Helper()
	svc, err := NewService(documents, testLogger())
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return svc
}

func TestNotifyWelcomeAppendsUnread(t *testing.T) {
	documents := newFakeDocStore()
	svc := newTestService(t, documents)
	principalID := uuid.New()

	if err := svc.NotifyWelcome(context.Background(), principalID, "Ada", enums.RoleAgent); err != nil {
		t.Fatalf("NotifyWelcome error: %v", err)
	}

	notifications, err := svc.List(context.Background(), principalID)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(notifications) != 1 {
		t.Fatalf("expected one notification, got %d", len(notifications))
	}

	got := notifications[0]
	if got.Type != enums.NotificationTypeWelcome {
		t.Fatalf("expected welcome type, got %s", got.Type)
	}
	if got.Read {
		t.Fatal("new notifications must be unread")
	}
	if got.Title == "" || got.Message == "" {
		t.Fatalf("empty notification content: %+v", got)
	}
}

func TestNotifyWelcomeTwiceAppendsTwice(t *testing.T) {
	documents := newFakeDocStore()
	svc := newTestService(t, documents)
	principalID := uuid.New()

	for i := 0; i < 2; i++ {
		if err := svc.NotifyWelcome(context.Background(), principalID, "Ada", enums.RoleAgent); err != nil {
			t.Fatalf("NotifyWelcome error: %v", err)
		}
	}

	notifications, err := svc.List(context.Background(), principalID)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(notifications) != 2 {
		t.Fatalf("append is not idempotent by design, expected 2, got %d", len(notifications))
	}
}

func TestMarkRead(t *testing.T) {
	documents := newFakeDocStore()
	svc := newTestService(t, documents)
	principalID := uuid.New()

	if err := svc.NotifyPaymentSettled(context.Background(), principalID, "Crate of widgets", 100); err != nil {
		t.Fatalf("NotifyPaymentSettled error: %v", err)
	}

	notifications, err := svc.List(context.Background(), principalID)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}

	if err := svc.MarkRead(context.Background(), principalID, notifications[0].ID); err != nil {
		t.Fatalf("MarkRead error: %v", err)
	}

	notifications, err = svc.List(context.Background(), principalID)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if !notifications[0].Read {
		t.Fatal("notification should be read")
	}

	if err := svc.MarkRead(context.Background(), principalID, "missing"); pkgerrors.CodeOf(err) != pkgerrors.CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func provisionedMessage(t *testing.T, eventID string, payload provisioning.UserProvisionedPayload) *pubsub.Message {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("encoding payload: %v", err)
	}
	envelope, err := json.Marshal(provisioning.DomainEvent{
		EventID:    eventID,
		Type:       provisioning.EventTypeUserProvisioned,
		OccurredAt: time.Now(),
		Data:       data,
	})
	if err != nil {
		t.Fatalf("encoding envelope: %v", err)
	}
	return &pubsub.Message{
		Data:       envelope,
		Attributes: map[string]string{"event_type": provisioning.EventTypeUserProvisioned, "event_id": eventID},
	}
}

func newTestConsumer(t *testing.T, svc Service, idempotency *fakeIdempotencyStore) *Consumer {
	t.Helper()
	consumer, err := NewConsumer(svc, fakeSubscriber{}, idempotency, testLogger())
	if err != nil {
		t.Fatalf("unexpected consumer error: %v", err)
	}
	return consumer
}

func TestConsumerDeliversOnce(t *testing.T) {
	documents := newFakeDocStore()
	svc := newTestService(t, documents)
	idempotency := newFakeIdempotencyStore()
	consumer := newTestConsumer(t, svc, idempotency)

	principalID := uuid.New()
	msg := provisionedMessage(t, uuid.NewString(), provisioning.UserProvisionedPayload{
		UserID: principalID,
		Name:   "Ada",
		Role:   enums.RoleAgent,
	})

	// At-least-once transport: the same event arrives twice.
	for i := 0; i < 2; i++ {
		result := consumer.process(context.Background(), msg)
		if !result.ack {
			t.Fatalf("delivery %d should ack, got %+v", i, result)
		}
	}

	notifications, err := svc.List(context.Background(), principalID)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(notifications) != 1 {
		t.Fatalf("expected exactly one welcome notification, got %d", len(notifications))
	}
}

func TestConsumerSkipsUnrelatedEvents(t *testing.T) {
	documents := newFakeDocStore()
	svc := newTestService(t, documents)
	consumer := newTestConsumer(t, svc, newFakeIdempotencyStore())

	msg := &pubsub.Message{
		Data:       []byte(`{}`),
		Attributes: map[string]string{"event_type": "order.created"},
	}
	result := consumer.process(context.Background(), msg)
	if !result.ack {
		t.Fatalf("unrelated events should ack, got %+v", result)
	}
}

func TestConsumerNacksOnFeedFailure(t *testing.T) {
	documents := newFakeDocStore()
	documents.appendErr = errors.New("store down")
	svc := newTestService(t, documents)
	idempotency := newFakeIdempotencyStore()
	consumer := newTestConsumer(t, svc, idempotency)

	eventID := uuid.NewString()
	msg := provisionedMessage(t, eventID, provisioning.UserProvisionedPayload{
		UserID: uuid.New(),
		Name:   "Ada",
		Role:   enums.RoleAgent,
	})

	result := consumer.process(context.Background(), msg)
	if !result.nack {
		t.Fatalf("feed failures should nack for redelivery, got %+v", result)
	}
	// The dedup key must be released so the retry can run.
	if len(idempotency.deleted) == 0 {
		t.Fatal("expected the idempotency key to be released")
	}
}
