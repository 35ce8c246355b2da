package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/stockrun/stockrun-backend/api/middleware"
	"github.com/stockrun/stockrun-backend/internal/payments"
	"github.com/stockrun/stockrun-backend/pkg/enums"
	pkgerrors "github.com/stockrun/stockrun-backend/pkg/errors"
	"github.com/stockrun/stockrun-backend/pkg/logger"
)

type testPaymentsService struct {
	createFn         func(ctx context.Context, input payments.CreatePaymentInput) (*payments.Payment, error)
	listAllFn        func(ctx context.Context) ([]payments.Payment, error)
	listByEmployeeFn func(ctx context.Context, employeeID uuid.UUID) ([]payments.Payment, error)
	markPaidFn       func(ctx context.Context, id uuid.UUID, paidBy, notes string) (*payments.Payment, error)
	cancelFn         func(ctx context.Context, id uuid.UUID) (*payments.Payment, error)
}

func (s *testPaymentsService) CreatePayment(ctx context.Context, input payments.CreatePaymentInput) (*payments.Payment, error) {
	if s.createFn != nil {
		return s.createFn(ctx, input)
	}
	return nil, nil
}

func (s *testPaymentsService) GetPayment(ctx context.Context, id uuid.UUID) (*payments.Payment, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
}

func (s *testPaymentsService) ListAllPayments(ctx context.Context) ([]payments.Payment, error) {
	if s.listAllFn != nil {
		return s.listAllFn(ctx)
	}
	return nil, nil
}

func (s *testPaymentsService) ListPaymentsByEmployee(ctx context.Context, employeeID uuid.UUID) ([]payments.Payment, error) {
	if s.listByEmployeeFn != nil {
		return s.listByEmployeeFn(ctx, employeeID)
	}
	return nil, nil
}

func (s *testPaymentsService) MarkPaid(ctx context.Context, id uuid.UUID, paidBy string, notes string) (*payments.Payment, error) {
	if s.markPaidFn != nil {
		return s.markPaidFn(ctx, id, paidBy, notes)
	}
	return nil, nil
}

func (s *testPaymentsService) CancelPayment(ctx context.Context, id uuid.UUID) (*payments.Payment, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, id)
	}
	return nil, nil
}

func testControllerLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func addRouteParam(req *http.Request, key, value string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func TestMarkPaymentPaidRecordsActor(t *testing.T) {
	adminID := uuid.New()
	paymentID := uuid.New()
	now := time.Now().UTC()
	svc := &testPaymentsService{
		markPaidFn: func(ctx context.Context, id uuid.UUID, paidBy, notes string) (*payments.Payment, error) {
			if id != paymentID {
				t.Fatalf("unexpected payment %s", id)
			}
			if paidBy != adminID.String() {
				t.Fatalf("unexpected paidBy %q", paidBy)
			}
			if notes != "cash drop" {
				t.Fatalf("unexpected notes %q", notes)
			}
			return &payments.Payment{
				ID:         paymentID,
				EmployeeID: uuid.New(),
				Status:     enums.PaymentStatusPaid,
				PaidAt:     &now,
				PaidBy:     paidBy,
			}, nil
		},
	}

	body := strings.NewReader(`{"notes":"cash drop"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/payments/"+paymentID.String()+"/pay", body)
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(middleware.WithUserID(req.Context(), adminID.String()))
	req = addRouteParam(req, "paymentId", paymentID.String())

	resp := httptest.NewRecorder()
	MarkPaymentPaid(svc, testControllerLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data paymentResponse `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data.ID != paymentID.String() {
		t.Fatalf("response missing payment id, got %q", envelope.Data.ID)
	}
	if envelope.Data.Status != string(enums.PaymentStatusPaid) {
		t.Fatalf("unexpected status %q", envelope.Data.Status)
	}
}

func TestMarkPaymentPaidStateConflict(t *testing.T) {
	paymentID := uuid.New()
	svc := &testPaymentsService{
		markPaidFn: func(ctx context.Context, id uuid.UUID, paidBy, notes string) (*payments.Payment, error) {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment is not pending")
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/payments/"+paymentID.String()+"/pay", nil)
	req = req.WithContext(middleware.WithUserID(req.Context(), uuid.NewString()))
	req = addRouteParam(req, "paymentId", paymentID.String())

	resp := httptest.NewRecorder()
	MarkPaymentPaid(svc, testControllerLogger())(resp, req)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
}

func TestMarkPaymentPaidInvalidID(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/payments/invalid/pay", nil)
	req = req.WithContext(middleware.WithUserID(req.Context(), uuid.NewString()))
	req = addRouteParam(req, "paymentId", "invalid")

	resp := httptest.NewRecorder()
	MarkPaymentPaid(&testPaymentsService{}, testControllerLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestListMyPaymentsRequiresUserContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments", nil)
	resp := httptest.NewRecorder()
	ListMyPayments(&testPaymentsService{}, testControllerLogger())(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestListMyPaymentsScopesToCaller(t *testing.T) {
	employeeID := uuid.New()
	svc := &testPaymentsService{
		listByEmployeeFn: func(ctx context.Context, id uuid.UUID) ([]payments.Payment, error) {
			if id != employeeID {
				t.Fatalf("unexpected employee %s", id)
			}
			return []payments.Payment{{ID: uuid.New(), EmployeeID: id, Status: enums.PaymentStatusPending}}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments", nil)
	req = req.WithContext(middleware.WithUserID(req.Context(), employeeID.String()))

	resp := httptest.NewRecorder()
	ListMyPayments(svc, testControllerLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	var envelope struct {
		Data []paymentResponse `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(envelope.Data) != 1 {
		t.Fatalf("expected 1 payment, got %d", len(envelope.Data))
	}
}

func TestCreatePaymentRejectsNegativeAmount(t *testing.T) {
	body := strings.NewReader(`{"employeeId":"` + uuid.NewString() + `","employeeName":"Dana","amount":-5}`)
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/payments", body)
	req.Header.Set("Content-Type", "application/json")

	resp := httptest.NewRecorder()
	CreatePayment(&testPaymentsService{
		createFn: func(ctx context.Context, input payments.CreatePaymentInput) (*payments.Payment, error) {
			t.Fatal("service should not be called")
			return nil, nil
		},
	}, testControllerLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
