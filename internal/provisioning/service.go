package provisioning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stockrun/stockrun-backend/pkg/docstore"
	"github.com/stockrun/stockrun-backend/pkg/enums"
	pkgerrors "github.com/stockrun/stockrun-backend/pkg/errors"
	"github.com/stockrun/stockrun-backend/pkg/identity"
	"github.com/stockrun/stockrun-backend/pkg/logger"
)

const principalsCollection = "principals"

// Service orchestrates principal onboarding across the identity store and the
// document store.
type Service interface {
	ProvisionUser(ctx context.Context, input ProvisionInput) (*ProvisionResult, error)
	GetPrincipal(ctx context.Context, id uuid.UUID) (*Principal, error)
	ListAgents(ctx context.Context) ([]Principal, error)
	ListOrphanedIdentities(ctx context.Context) ([]OrphanedIdentity, error)
}

type service struct {
	identities identity.Store
	documents  docstore.Store
	publisher  Publisher
	logg       *logger.Logger
	now        func() time.Time
}

// ProvisionInput is the full onboarding request for a new principal.
type ProvisionInput struct {
	Name     string
	Email    string
	Password string
	Phone    *string
	Role     enums.Role
	AgentID  *uuid.UUID
	Skills   []string
	IsActive *bool
}

// ProvisionResult reports the created identity and a confirmation message.
type ProvisionResult struct {
	ID      uuid.UUID `json:"id"`
	Message string    `json:"message"`
}

// Principal is the profile document kept alongside the identity account.
// Optional fields stay absent from storage when not supplied.
type Principal struct {
	ID        uuid.UUID  `json:"-"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Role      enums.Role `json:"role"`
	Phone     *string    `json:"phone,omitempty"`
	AgentID   *uuid.UUID `json:"agentId,omitempty"`
	Skills    []string   `json:"skills,omitempty"`
	IsActive  bool       `json:"isActive"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// OrphanedIdentity is an identity account with no matching profile document.
type OrphanedIdentity struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewService wires the provisioning service. The publisher is optional; when
// nil, the welcome event is skipped.
func NewService(identities identity.Store, documents docstore.Store, publisher Publisher, logg *logger.Logger) (Service, error) {
	if identities == nil {
		return nil, fmt.Errorf("identity store required")
	}
	if documents == nil {
		return nil, fmt.Errorf("document store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		identities: identities,
		documents:  documents,
		publisher:  publisher,
		logg:       logg,
		now:        time.Now,
	}, nil
}

// ProvisionUser creates the identity account, the profile document and the
// authorization claims as a saga. Any failure after the account write triggers
// compensation; if the compensating delete also fails, the caller gets a
// PARTIAL_FAILURE carrying the orphaned identity id so operators can reconcile.
func (s *service) ProvisionUser(ctx context.Context, input ProvisionInput) (*ProvisionResult, error) {
	if err := s.validateInput(ctx, input); err != nil {
		return nil, err
	}

	isActive := true
	if input.IsActive != nil {
		isActive = *input.IsActive
	}

	account, err := s.identities.CreateAccount(ctx, identity.CreateAccountParams{
		Email:       input.Email,
		Password:    input.Password,
		DisplayName: input.Name,
		Phone:       input.Phone,
	})
	if err != nil {
		return nil, err
	}

	if !isActive {
		if err := s.identities.SetDisabled(ctx, account.ID, true); err != nil {
			return nil, s.compensate(ctx, account.ID, "disable", err)
		}
	}

	now := s.now().UTC()
	profile := Principal{
		Name:      strings.TrimSpace(input.Name),
		Email:     account.Email,
		Role:      input.Role,
		Phone:     input.Phone,
		AgentID:   input.AgentID,
		Skills:    input.Skills,
		IsActive:  isActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.documents.Put(ctx, principalsCollection, account.ID.String(), profile); err != nil {
		return nil, s.compensate(ctx, account.ID, "profile", err)
	}

	claims := identity.Claims{Role: input.Role, AgentID: input.AgentID}
	if err := s.identities.SetClaims(ctx, account.ID, claims); err != nil {
		return nil, s.compensate(ctx, account.ID, "claims", err)
	}

	s.publishProvisioned(ctx, account.ID, profile)

	return &ProvisionResult{
		ID:      account.ID,
		Message: fmt.Sprintf("user %s provisioned as %s", account.Email, input.Role),
	}, nil
}

func (s *service) validateInput(ctx context.Context, input ProvisionInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if !input.Role.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid role %q", input.Role))
	}

	if input.Role == enums.RoleEmployee {
		if input.AgentID == nil || *input.AgentID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "employee requires a supervising agent")
		}
		agent, err := s.GetPrincipal(ctx, *input.AgentID)
		if err != nil {
			if pkgerrors.CodeOf(err) == pkgerrors.CodeNotFound {
				return pkgerrors.New(pkgerrors.CodeValidation, "supervising agent does not exist")
			}
			return err
		}
		if agent.Role != enums.RoleAgent || !agent.IsActive {
			return pkgerrors.New(pkgerrors.CodeValidation, "supervising agent is not an active agent")
		}
	}

	return nil
}

// compensate rolls back the identity account created earlier in the saga.
func (s *service) compensate(ctx context.Context, identityID uuid.UUID, step string, cause error) error {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"identity_id": identityID.String(),
		"failed_step": step,
	})
	s.logg.Error(logCtx, "provisioning step failed, compensating", cause)

	if err := s.identities.DeleteAccount(ctx, identityID); err != nil {
		s.logg.Error(logCtx, "compensation failed, identity orphaned", err)
		return pkgerrors.Wrap(pkgerrors.CodePartialFailure, cause, "provisioning partially failed").
			WithDetails(map[string]any{
				"step":        step,
				"identity_id": identityID.String(),
			})
	}

	s.logg.Info(logCtx, "identity account rolled back")
	if coded := pkgerrors.As(cause); coded != nil {
		return coded
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, cause, fmt.Sprintf("provisioning %s step failed", step))
}

func (s *service) publishProvisioned(ctx context.Context, id uuid.UUID, profile Principal) {
	if s.publisher == nil {
		return
	}

	event, err := NewUserProvisionedEvent(s.now(), UserProvisionedPayload{
		UserID: id,
		Name:   profile.Name,
		Role:   profile.Role,
	})
	if err != nil {
		s.logg.Error(ctx, "building provisioned event", err)
		return
	}

	// Best effort: the notification is a courtesy, not part of the saga.
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logg.Warn(ctx, fmt.Sprintf("publishing %s event failed: %v", event.Type, err))
	}
}

// GetPrincipal loads a single profile document.
func (s *service) GetPrincipal(ctx context.Context, id uuid.UUID) (*Principal, error) {
	raw, err := s.documents.Get(ctx, principalsCollection, id.String())
	if err != nil {
		if err == docstore.ErrNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "principal not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading principal")
	}

	principal, err := decodePrincipal(id.String(), raw)
	if err != nil {
		return nil, err
	}
	return principal, nil
}

// ListAgents returns all active principals with the agent role.
func (s *service) ListAgents(ctx context.Context) ([]Principal, error) {
	records, err := s.documents.Query(ctx, principalsCollection, []docstore.Predicate{
		{Field: "role", Value: string(enums.RoleAgent)},
		{Field: "isActive", Value: "true"},
	}, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing agents")
	}

	agents := make([]Principal, 0, len(records))
	for _, record := range records {
		principal, err := decodePrincipal(record.DocID, record.Data)
		if err != nil {
			return nil, err
		}
		agents = append(agents, *principal)
	}
	return agents, nil
}

// ListOrphanedIdentities reports identity accounts missing a profile document.
// It is the operator-facing safety net for compensation failures.
func (s *service) ListOrphanedIdentities(ctx context.Context) ([]OrphanedIdentity, error) {
	accounts, err := s.identities.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}

	orphans := []OrphanedIdentity{}
	for _, account := range accounts {
		_, err := s.documents.Get(ctx, principalsCollection, account.ID.String())
		switch {
		case err == nil:
			continue
		case err == docstore.ErrNotFound:
			orphans = append(orphans, OrphanedIdentity{
				ID:          account.ID,
				Email:       account.Email,
				DisplayName: account.DisplayName,
				CreatedAt:   account.CreatedAt,
			})
		default:
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "checking principal profile")
		}
	}
	return orphans, nil
}

func decodePrincipal(docID string, raw json.RawMessage) (*Principal, error) {
	var principal Principal
	if err := json.Unmarshal(raw, &principal); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decoding principal document")
	}
	id, err := uuid.Parse(docID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "parsing principal id")
	}
	principal.ID = id
	return &principal, nil
}
