package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/stockrun/stockrun-backend/api/responses"
	"github.com/stockrun/stockrun-backend/api/validators"
	"github.com/stockrun/stockrun-backend/internal/provisioning"
	"github.com/stockrun/stockrun-backend/pkg/enums"
	pkgerrors "github.com/stockrun/stockrun-backend/pkg/errors"
	"github.com/stockrun/stockrun-backend/pkg/logger"
)

type provisionUserRequest struct {
	Name     string     `json:"name" validate:"required"`
	Email    string     `json:"email" validate:"required,email"`
	Password string     `json:"password" validate:"required"`
	Phone    *string    `json:"phone,omitempty"`
	Role     string     `json:"role" validate:"required"`
	AgentID  *uuid.UUID `json:"agentId,omitempty"`
	Skills   []string   `json:"skills,omitempty"`
	IsActive *bool      `json:"isActive,omitempty"`
}

type principalResponse struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Role      string     `json:"role"`
	Phone     *string    `json:"phone,omitempty"`
	AgentID   *uuid.UUID `json:"agentId,omitempty"`
	Skills    []string   `json:"skills,omitempty"`
	IsActive  bool       `json:"isActive"`
	CreatedAt time.Time  `json:"createdAt"`
}

// ProvisionUser onboards a new principal (admin only).
func ProvisionUser(svc provisioning.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "provisioning service unavailable"))
			return
		}

		var req provisionUserRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		role, err := enums.ParseRole(req.Role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid role"))
			return
		}

		result, err := svc.ProvisionUser(r.Context(), provisioning.ProvisionInput{
			Name:     req.Name,
			Email:    req.Email,
			Password: req.Password,
			Phone:    req.Phone,
			Role:     role,
			AgentID:  req.AgentID,
			Skills:   req.Skills,
			IsActive: req.IsActive,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// ListAgents returns the active agents available for employee assignment.
func ListAgents(svc provisioning.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "provisioning service unavailable"))
			return
		}

		agents, err := svc.ListAgents(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payload := make([]principalResponse, 0, len(agents))
		for _, agent := range agents {
			payload = append(payload, toPrincipalResponse(agent))
		}
		responses.WriteSuccess(w, payload)
	}
}

// ListOrphanedIdentities surfaces identity accounts that lost their profile,
// so operators can reconcile them.
func ListOrphanedIdentities(svc provisioning.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "provisioning service unavailable"))
			return
		}

		orphans, err := svc.ListOrphanedIdentities(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, orphans)
	}
}

func toPrincipalResponse(principal provisioning.Principal) principalResponse {
	return principalResponse{
		ID:        principal.ID.String(),
		Name:      principal.Name,
		Email:     principal.Email,
		Role:      string(principal.Role),
		Phone:     principal.Phone,
		AgentID:   principal.AgentID,
		Skills:    principal.Skills,
		IsActive:  principal.IsActive,
		CreatedAt: principal.CreatedAt,
	}
}
