package provisioning

import (
	"context"
	"fmt"

	"github.com/stockrun/stockrun-backend/pkg/config"
	"github.com/stockrun/stockrun-backend/pkg/enums"
	pkgerrors "github.com/stockrun/stockrun-backend/pkg/errors"
	"github.com/stockrun/stockrun-backend/pkg/logger"
	"github.com/stockrun/stockrun-backend/pkg/security"
)

const generatedBootstrapPasswordLength = 24

// EnsureBootstrapAdmin provisions the operator-configured first administrator.
// It is a no-op when bootstrap is not configured or the account already
// exists. When no password is supplied a one-time secret is generated and
// logged exactly once; the operator is expected to rotate it immediately.
func EnsureBootstrapAdmin(ctx context.Context, svc Service, cfg config.BootstrapConfig, logg *logger.Logger) error {
	if svc == nil {
		return fmt.Errorf("provisioning service required")
	}
	if logg == nil {
		return fmt.Errorf("logger required")
	}
	if !cfg.Enabled() {
		return nil
	}

	logCtx := logg.WithField(ctx, "bootstrap_email", cfg.AdminEmail)

	password := cfg.AdminPassword
	generated := false
	if password == "" {
		secret, err := security.GenerateTempPassword(generatedBootstrapPasswordLength)
		if err != nil {
			return fmt.Errorf("generating bootstrap password: %w", err)
		}
		password = secret
		generated = true
	}

	result, err := svc.ProvisionUser(ctx, ProvisionInput{
		Name:     cfg.AdminName,
		Email:    cfg.AdminEmail,
		Password: password,
		Role:     enums.RoleAdmin,
	})
	if err != nil {
		if pkgerrors.CodeOf(err) == pkgerrors.CodeDuplicateEmail {
			logg.Info(logCtx, "bootstrap admin already exists")
			return nil
		}
		return err
	}

	logCtx = logg.WithField(logCtx, "user_id", result.ID.String())
	if generated {
		// One-time secret for first login; rotate after use.
		logg.Warn(logg.WithField(logCtx, "one_time_password", password),
			"bootstrap admin created with generated password")
		return nil
	}

	logg.Info(logCtx, "bootstrap admin created")
	return nil
}
