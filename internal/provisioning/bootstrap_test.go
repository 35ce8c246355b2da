package provisioning

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stockrun/stockrun-backend/pkg/config"
	"github.com/stockrun/stockrun-backend/pkg/enums"
	pkgerrors "github.com/stockrun/stockrun-backend/pkg/errors"
)

type fakeService struct {
	provisionFn func(ctx context.Context, input ProvisionInput) (*ProvisionResult, error)
	calls       []ProvisionInput
}

func (f *fakeService) ProvisionUser(ctx context.Context, input ProvisionInput) (*ProvisionResult, error) {
	f.calls = append(f.calls, input)
	if f.provisionFn != nil {
		return f.provisionFn(ctx, input)
	}
	return &ProvisionResult{ID: uuid.New(), Message: "ok"}, nil
}

func (f *fakeService) GetPrincipal(ctx context.Context, id uuid.UUID) (*Principal, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "principal not found")
}

func (f *fakeService) ListAgents(ctx context.Context) ([]Principal, error) {
	return nil, nil
}

func (f *fakeService) ListOrphanedIdentities(ctx context.Context) ([]OrphanedIdentity, error) {
	return nil, nil
}

func TestEnsureBootstrapAdminDisabled(t *testing.T) {
	svc := &fakeService{}
	err := EnsureBootstrapAdmin(context.Background(), svc, config.BootstrapConfig{}, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(svc.calls) != 0 {
		t.Fatalf("expected no provisioning calls, got %d", len(svc.calls))
	}
}

func TestEnsureBootstrapAdminGeneratesPassword(t *testing.T) {
	svc := &fakeService{}
	cfg := config.BootstrapConfig{
		AdminEmail: "root@example.com",
		AdminName:  "Root",
	}

	if err := EnsureBootstrapAdmin(context.Background(), svc, cfg, testLogger()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(svc.calls) != 1 {
		t.Fatalf("expected one provisioning call, got %d", len(svc.calls))
	}

	call := svc.calls[0]
	if call.Role != enums.RoleAdmin || call.Email != "root@example.com" {
		t.Fatalf("unexpected bootstrap input: %+v", call)
	}
	if call.Password == "" {
		t.Fatal("expected a generated password")
	}
}

func TestEnsureBootstrapAdminIgnoresExisting(t *testing.T) {
	svc := &fakeService{
		provisionFn: func(ctx context.Context, input ProvisionInput) (*ProvisionResult, error) {
			return nil, pkgerrors.New(pkgerrors.CodeDuplicateEmail, "email is already registered")
		},
	}
	cfg := config.BootstrapConfig{
		AdminEmail:    "root@example.com",
		AdminName:     "Root",
		AdminPassword: "operator-supplied",
	}

	if err := EnsureBootstrapAdmin(context.Background(), svc, cfg, testLogger()); err != nil {
		t.Fatalf("duplicate admin must not be an error: %v", err)
	}
}
