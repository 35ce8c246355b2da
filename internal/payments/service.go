package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stockrun/stockrun-backend/pkg/docstore"
	"github.com/stockrun/stockrun-backend/pkg/enums"
	pkgerrors "github.com/stockrun/stockrun-backend/pkg/errors"
	"github.com/stockrun/stockrun-backend/pkg/logger"
)

const paymentsCollection = "payments"

// Service manages the payment ledger and its settlement state machine.
type Service interface {
	CreatePayment(ctx context.Context, input CreatePaymentInput) (*Payment, error)
	GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error)
	ListAllPayments(ctx context.Context) ([]Payment, error)
	ListPaymentsByEmployee(ctx context.Context, employeeID uuid.UUID) ([]Payment, error)
	MarkPaid(ctx context.Context, id uuid.UUID, paidBy string, notes string) (*Payment, error)
	CancelPayment(ctx context.Context, id uuid.UUID) (*Payment, error)
}

// SettlementNotifier receives a best-effort signal after a payment settles.
type SettlementNotifier interface {
	NotifyPaymentSettled(ctx context.Context, employeeID uuid.UUID, productName string, amount float64) error
}

type service struct {
	documents docstore.Store
	notifier  SettlementNotifier
	logg      *logger.Logger
	now       func() time.Time
}

// CreatePaymentInput is the work-item snapshot frozen into a new payment.
// Status is always forced to pending server-side.
type CreatePaymentInput struct {
	EmployeeID   uuid.UUID
	EmployeeName string
	AssignmentID string
	OrderID      string
	OrderNumber  string
	ProductName  string
	Amount       float64
	CompletedAt  *time.Time
}

// Payment is the ledger record. paidAt/paidBy/notes are written exactly once
// by the pending → paid transition.
type Payment struct {
	ID           uuid.UUID           `json:"-"`
	EmployeeID   uuid.UUID           `json:"employeeId"`
	EmployeeName string              `json:"employeeName"`
	AssignmentID string              `json:"assignmentId"`
	OrderID      string              `json:"orderId"`
	OrderNumber  string              `json:"orderNumber"`
	ProductName  string              `json:"productName"`
	Amount       float64             `json:"amount"`
	Status       enums.PaymentStatus `json:"status"`
	CompletedAt  *time.Time          `json:"completedAt,omitempty"`
	PaidAt       *time.Time          `json:"paidAt,omitempty"`
	PaidBy       string              `json:"paidBy,omitempty"`
	Notes        *string             `json:"notes,omitempty"`
	CreatedAt    time.Time           `json:"createdAt"`
	UpdatedAt    time.Time           `json:"updatedAt"`
}

// NewService wires the payment ledger. The notifier is optional.
func NewService(documents docstore.Store, notifier SettlementNotifier, logg *logger.Logger) (Service, error) {
	if documents == nil {
		return nil, fmt.Errorf("document store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		documents: documents,
		notifier:  notifier,
		logg:      logg,
		now:       time.Now,
	}, nil
}

// CreatePayment records a new pending payment for a completed assignment.
func (s *service) CreatePayment(ctx context.Context, input CreatePaymentInput) (*Payment, error) {
	if input.EmployeeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "employee id is required")
	}
	if strings.TrimSpace(input.EmployeeName) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "employee name is required")
	}
	if input.Amount < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount cannot be negative")
	}

	now := s.now().UTC()
	completedAt := now
	if input.CompletedAt != nil {
		completedAt = input.CompletedAt.UTC()
	}

	payment := Payment{
		ID:           uuid.New(),
		EmployeeID:   input.EmployeeID,
		EmployeeName: input.EmployeeName,
		AssignmentID: input.AssignmentID,
		OrderID:      input.OrderID,
		OrderNumber:  input.OrderNumber,
		ProductName:  input.ProductName,
		Amount:       input.Amount,
		Status:       enums.PaymentStatusPending,
		CompletedAt:  &completedAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.documents.Put(ctx, paymentsCollection, payment.ID.String(), payment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "storing payment")
	}
	return &payment, nil
}

// GetPayment loads a single ledger record.
func (s *service) GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error) {
	raw, err := s.documents.Get(ctx, paymentsCollection, id.String())
	if err != nil {
		if err == docstore.ErrNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading payment")
	}
	return s.decode(id.String(), raw)
}

// ListAllPayments returns every payment, most recently completed first.
func (s *service) ListAllPayments(ctx context.Context) ([]Payment, error) {
	return s.list(ctx, nil)
}

// ListPaymentsByEmployee returns one employee's payments, most recently
// completed first.
func (s *service) ListPaymentsByEmployee(ctx context.Context, employeeID uuid.UUID) ([]Payment, error) {
	if employeeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "employee id is required")
	}
	return s.list(ctx, []docstore.Predicate{{Field: "employeeId", Value: employeeID.String()}})
}

func (s *service) list(ctx context.Context, preds []docstore.Predicate) ([]Payment, error) {
	records, err := s.documents.Query(ctx, paymentsCollection, preds,
		&docstore.Order{Field: "completedAt", Descending: true})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing payments")
	}

	now := s.now().UTC()
	payments := make([]Payment, 0, len(records))
	for _, record := range records {
		payment, err := s.decode(record.DocID, record.Data)
		if err != nil {
			return nil, err
		}
		// Legacy records may lack completedAt; treat them as just completed.
		if payment.CompletedAt == nil {
			completed := now
			payment.CompletedAt = &completed
		}
		payments = append(payments, *payment)
	}

	sort.SliceStable(payments, func(i, j int) bool {
		return payments[i].CompletedAt.After(*payments[j].CompletedAt)
	})
	return payments, nil
}

// MarkPaid performs the pending → paid transition via a conditional write, so
// concurrent settlements cannot both succeed.
func (s *service) MarkPaid(ctx context.Context, id uuid.UUID, paidBy string, notes string) (*Payment, error) {
	if strings.TrimSpace(paidBy) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "paidBy is required")
	}

	now := s.now().UTC()
	fields := map[string]any{
		"status":    enums.PaymentStatusPaid,
		"paidAt":    now,
		"paidBy":    paidBy,
		"notes":     notes,
		"updatedAt": now,
	}

	payment, err := s.transition(ctx, id, fields)
	if err != nil {
		return nil, err
	}

	s.notifySettled(ctx, payment)
	return payment, nil
}

// CancelPayment performs the pending → cancelled transition under the same
// conditional-write guard.
func (s *service) CancelPayment(ctx context.Context, id uuid.UUID) (*Payment, error) {
	now := s.now().UTC()
	return s.transition(ctx, id, map[string]any{
		"status":    enums.PaymentStatusCancelled,
		"updatedAt": now,
	})
}

func (s *service) transition(ctx context.Context, id uuid.UUID, fields map[string]any) (*Payment, error) {
	guard := []docstore.Predicate{{Field: "status", Value: string(enums.PaymentStatusPending)}}

	affected, err := s.documents.UpdateWhere(ctx, paymentsCollection, id.String(), guard, fields)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "updating payment")
	}

	if affected == 0 {
		current, err := s.GetPayment(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("payment is %s, only pending payments can transition", current.Status)).
			WithDetails(map[string]any{"status": current.Status})
	}

	return s.GetPayment(ctx, id)
}

func (s *service) notifySettled(ctx context.Context, payment *Payment) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyPaymentSettled(ctx, payment.EmployeeID, payment.ProductName, payment.Amount); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "payment_id", payment.ID.String()),
			fmt.Sprintf("settlement notification failed: %v", err))
	}
}

func (s *service) decode(docID string, raw json.RawMessage) (*Payment, error) {
	var payment Payment
	if err := json.Unmarshal(raw, &payment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decoding payment document")
	}
	id, err := uuid.Parse(docID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "parsing payment id")
	}
	payment.ID = id
	return &payment, nil
}
