package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/stockrun/stockrun-backend/api/middleware"
	"github.com/stockrun/stockrun-backend/api/responses"
	"github.com/stockrun/stockrun-backend/api/validators"
	"github.com/stockrun/stockrun-backend/internal/payments"
	pkgerrors "github.com/stockrun/stockrun-backend/pkg/errors"
	"github.com/stockrun/stockrun-backend/pkg/logger"
)

type createPaymentRequest struct {
	EmployeeID   uuid.UUID  `json:"employeeId" validate:"required"`
	EmployeeName string     `json:"employeeName" validate:"required"`
	AssignmentID string     `json:"assignmentId,omitempty"`
	OrderID      string     `json:"orderId,omitempty"`
	OrderNumber  string     `json:"orderNumber,omitempty"`
	ProductName  string     `json:"productName,omitempty"`
	Amount       float64    `json:"amount" validate:"gte=0"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

type markPaidRequest struct {
	Notes string `json:"notes,omitempty"`
}

type paymentResponse struct {
	ID           string     `json:"id"`
	EmployeeID   uuid.UUID  `json:"employeeId"`
	EmployeeName string     `json:"employeeName"`
	AssignmentID string     `json:"assignmentId,omitempty"`
	OrderID      string     `json:"orderId,omitempty"`
	OrderNumber  string     `json:"orderNumber,omitempty"`
	ProductName  string     `json:"productName,omitempty"`
	Amount       float64    `json:"amount"`
	Status       string     `json:"status"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	PaidAt       *time.Time `json:"paidAt,omitempty"`
	PaidBy       string     `json:"paidBy,omitempty"`
	Notes        *string    `json:"notes,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// CreatePayment records a new pending payment (admin only).
func CreatePayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		var req createPaymentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.CreatePayment(r.Context(), payments.CreatePaymentInput{
			EmployeeID:   req.EmployeeID,
			EmployeeName: req.EmployeeName,
			AssignmentID: req.AssignmentID,
			OrderID:      req.OrderID,
			OrderNumber:  req.OrderNumber,
			ProductName:  req.ProductName,
			Amount:       req.Amount,
			CompletedAt:  req.CompletedAt,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toPaymentResponse(*payment))
	}
}

// ListAllPayments returns the full ledger (admin only).
func ListAllPayments(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		records, err := svc.ListAllPayments(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toPaymentResponses(records))
	}
}

// ListMyPayments returns the calling employee's payments.
func ListMyPayments(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		userID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user context"))
			return
		}

		records, err := svc.ListPaymentsByEmployee(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toPaymentResponses(records))
	}
}

// MarkPaymentPaid settles a pending payment (admin only). The settling
// administrator is recorded as paidBy.
func MarkPaymentPaid(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		paymentID, err := uuid.Parse(chi.URLParam(r, "paymentId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment id"))
			return
		}

		var req markPaidRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		paidBy := middleware.UserIDFromContext(r.Context())
		payment, err := svc.MarkPaid(r.Context(), paymentID, paidBy, req.Notes)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toPaymentResponse(*payment))
	}
}

// CancelPayment voids a pending payment (admin only).
func CancelPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		paymentID, err := uuid.Parse(chi.URLParam(r, "paymentId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment id"))
			return
		}

		payment, err := svc.CancelPayment(r.Context(), paymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toPaymentResponse(*payment))
	}
}

func toPaymentResponse(payment payments.Payment) paymentResponse {
	return paymentResponse{
		ID:           payment.ID.String(),
		EmployeeID:   payment.EmployeeID,
		EmployeeName: payment.EmployeeName,
		AssignmentID: payment.AssignmentID,
		OrderID:      payment.OrderID,
		OrderNumber:  payment.OrderNumber,
		ProductName:  payment.ProductName,
		Amount:       payment.Amount,
		Status:       string(payment.Status),
		CompletedAt:  payment.CompletedAt,
		PaidAt:       payment.PaidAt,
		PaidBy:       payment.PaidBy,
		Notes:        payment.Notes,
		CreatedAt:    payment.CreatedAt,
		UpdatedAt:    payment.UpdatedAt,
	}
}

func toPaymentResponses(records []payments.Payment) []paymentResponse {
	payload := make([]paymentResponse, 0, len(records))
	for _, record := range records {
		payload = append(payload, toPaymentResponse(record))
	}
	return payload
}
