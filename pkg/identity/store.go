package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stockrun/stockrun-backend/pkg/enums"
)

// Claims carry the authorization facts attached to an account.
type Claims struct {
	Role    enums.Role `json:"role,omitempty"`
	AgentID *uuid.UUID `json:"agentId,omitempty"`
}

// Account is the externally visible identity record. The password hash never
// leaves the store.
type Account struct {
	ID          uuid.UUID
	Email       string
	DisplayName string
	Phone       *string
	Disabled    bool
	Claims      Claims
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateAccountParams is the input for a new identity account.
type CreateAccountParams struct {
	Email       string
	Password    string
	DisplayName string
	Phone       *string
}

// Store is the identity persistence surface. Implementations classify
// failures into the shared error taxonomy: DUPLICATE_EMAIL for an already
// registered address, WEAK_CREDENTIAL for policy violations, VALIDATION_ERROR
// for malformed input and UNAUTHORIZED for credential mismatches.
type Store interface {
	CreateAccount(ctx context.Context, params CreateAccountParams) (*Account, error)
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	SetClaims(ctx context.Context, id uuid.UUID, claims Claims) error
	SetDisabled(ctx context.Context, id uuid.UUID, disabled bool) error
	VerifyCredentials(ctx context.Context, email, password string) (*Account, error)
	DeleteAccount(ctx context.Context, id uuid.UUID) error
}
