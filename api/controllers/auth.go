package controllers

import (
	"net/http"
	"time"

	"github.com/stockrun/stockrun-backend/api/responses"
	"github.com/stockrun/stockrun-backend/api/validators"
	pkgAuth "github.com/stockrun/stockrun-backend/pkg/auth"
	"github.com/stockrun/stockrun-backend/pkg/config"
	pkgerrors "github.com/stockrun/stockrun-backend/pkg/errors"
	"github.com/stockrun/stockrun-backend/pkg/identity"
	"github.com/stockrun/stockrun-backend/pkg/logger"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token string    `json:"token"`
	User  loginUser `json:"user"`
}

type loginUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// AuthLogin verifies credentials and mints a role-scoped access token.
func AuthLogin(identities identity.Store, jwtCfg config.JWTConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if identities == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "identity store unavailable"))
			return
		}

		var req loginRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		account, err := identities.VerifyCredentials(r.Context(), req.Email, req.Password)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if !account.Claims.Role.IsValid() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "account has no role assigned"))
			return
		}

		token, err := pkgAuth.MintAccessToken(jwtCfg, time.Now(), pkgAuth.AccessTokenPayload{
			UserID:  account.ID,
			Role:    account.Claims.Role,
			AgentID: account.Claims.AgentID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "minting token"))
			return
		}

		responses.WriteSuccess(w, loginResponse{
			Token: token,
			User: loginUser{
				ID:    account.ID.String(),
				Email: account.Email,
				Name:  account.DisplayName,
				Role:  string(account.Claims.Role),
			},
		})
	}
}
