package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stockrun/stockrun-backend/pkg/docstore"
	"github.com/stockrun/stockrun-backend/pkg/enums"
	pkgerrors "github.com/stockrun/stockrun-backend/pkg/errors"
	"github.com/stockrun/stockrun-backend/pkg/logger"
)

// Service appends and reads the per-principal notification feed.
type Service interface {
	NotifyWelcome(ctx context.Context, principalID uuid.UUID, name string, role enums.Role) error
	NotifyPaymentSettled(ctx context.Context, employeeID uuid.UUID, productName string, amount float64) error
	List(ctx context.Context, principalID uuid.UUID) ([]Notification, error)
	MarkRead(ctx context.Context, principalID uuid.UUID, notificationID string) error
}

type service struct {
	documents docstore.Store
	logg      *logger.Logger
	now       func() time.Time
}

// Notification is one entry in a principal's feed.
type Notification struct {
	ID        string                 `json:"-"`
	Type      enums.NotificationType `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Read      bool                   `json:"read"`
	CreatedAt time.Time              `json:"createdAt"`
}

// NewService wires the notification feed service.
func NewService(documents docstore.Store, logg *logger.Logger) (Service, error) {
	if documents == nil {
		return nil, fmt.Errorf("document store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{documents: documents, logg: logg, now: time.Now}, nil
}

func feedCollection(principalID uuid.UUID) string {
	return fmt.Sprintf("principals/%s/notifications", principalID)
}

// NotifyWelcome appends the onboarding notification. Not idempotent on its
// own; the event consumer dedupes deliveries before calling it.
func (s *service) NotifyWelcome(ctx context.Context, principalID uuid.UUID, name string, role enums.Role) error {
	return s.append(ctx, principalID, Notification{
		Type:    enums.NotificationTypeWelcome,
		Title:   "Welcome to StockRun",
		Message: fmt.Sprintf("Hi %s, your %s account is ready.", name, role),
	})
}

// NotifyPaymentSettled appends the settlement notice to the employee's feed.
func (s *service) NotifyPaymentSettled(ctx context.Context, employeeID uuid.UUID, productName string, amount float64) error {
	message := fmt.Sprintf("Your payment of %.2f has been settled.", amount)
	if productName != "" {
		message = fmt.Sprintf("Your payment of %.2f for %s has been settled.", amount, productName)
	}
	return s.append(ctx, employeeID, Notification{
		Type:    enums.NotificationTypePaymentSettled,
		Title:   "Payment settled",
		Message: message,
	})
}

func (s *service) append(ctx context.Context, principalID uuid.UUID, notification Notification) error {
	if principalID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "principal id is required")
	}
	notification.Read = false
	notification.CreatedAt = s.now().UTC()

	if _, err := s.documents.Append(ctx, feedCollection(principalID), notification); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "appending notification")
	}
	return nil
}

// List returns the principal's notifications, newest first.
func (s *service) List(ctx context.Context, principalID uuid.UUID) ([]Notification, error) {
	if principalID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "principal id is required")
	}

	records, err := s.documents.Query(ctx, feedCollection(principalID), nil,
		&docstore.Order{Field: "createdAt", Descending: true})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing notifications")
	}

	notifications := make([]Notification, 0, len(records))
	for _, record := range records {
		var notification Notification
		if err := json.Unmarshal(record.Data, &notification); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decoding notification")
		}
		notification.ID = record.DocID
		notifications = append(notifications, notification)
	}
	return notifications, nil
}

// MarkRead flips the read flag on one notification.
func (s *service) MarkRead(ctx context.Context, principalID uuid.UUID, notificationID string) error {
	if principalID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "principal id is required")
	}
	if notificationID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id is required")
	}

	err := s.documents.Update(ctx, feedCollection(principalID), notificationID, map[string]any{"read": true})
	if err != nil {
		if err == docstore.ErrNotFound {
			return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marking notification read")
	}
	return nil
}
