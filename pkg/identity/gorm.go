package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/stockrun/stockrun-backend/pkg/config"
	"github.com/stockrun/stockrun-backend/pkg/db"
	"github.com/stockrun/stockrun-backend/pkg/db/models"
	pkgerrors "github.com/stockrun/stockrun-backend/pkg/errors"
	"github.com/stockrun/stockrun-backend/pkg/security"
	"gorm.io/gorm"
)

// GormStore implements Store on top of the shared Postgres client.
type GormStore struct {
	client   *db.Client
	password config.PasswordConfig
	policy   config.IdentityConfig
}

// NewGormStore wires the identity store.
func NewGormStore(client *db.Client, password config.PasswordConfig, policy config.IdentityConfig) (*GormStore, error) {
	if client == nil {
		return nil, fmt.Errorf("db client is required")
	}
	return &GormStore{client: client, password: password, policy: policy}, nil
}

// CreateAccount registers a new identity record after validating the address
// and credential policy. The email unique index is the final arbiter for
// concurrent registrations.
func (s *GormStore) CreateAccount(ctx context.Context, params CreateAccountParams) (*Account, error) {
	email, err := normalizeEmail(params.Email)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(params.DisplayName) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "display name is required")
	}
	if len(params.Password) < s.policy.MinPasswordLength {
		return nil, pkgerrors.New(pkgerrors.CodeWeakCredential,
			fmt.Sprintf("password must be at least %d characters", s.policy.MinPasswordLength))
	}

	var existing models.IdentityAccount
	err = s.client.DB().WithContext(ctx).Where("email = ?", email).First(&existing).Error
	switch {
	case err == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDuplicateEmail, "email is already registered")
	case err != gorm.ErrRecordNotFound:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "checking existing email")
	}

	hash, err := security.HashPassword(params.Password, s.password)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hashing password")
	}

	record := models.IdentityAccount{
		Email:        email,
		PasswordHash: hash,
		DisplayName:  strings.TrimSpace(params.DisplayName),
		Phone:        params.Phone,
	}

	if err := s.client.DB().WithContext(ctx).Create(&record).Error; err != nil {
		if pkgerrors.IsUniqueViolation(err) {
			return nil, pkgerrors.New(pkgerrors.CodeDuplicateEmail, "email is already registered")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating identity account")
	}

	return toAccount(record)
}

// GetAccount loads a single account by id.
func (s *GormStore) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	var record models.IdentityAccount
	err := s.client.DB().WithContext(ctx).Where("id = ?", id).First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading identity account")
	}
	return toAccount(record)
}

// ListAccounts returns every identity record.
func (s *GormStore) ListAccounts(ctx context.Context) ([]Account, error) {
	var records []models.IdentityAccount
	if err := s.client.DB().WithContext(ctx).Order("created_at ASC").Find(&records).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing identity accounts")
	}

	accounts := make([]Account, 0, len(records))
	for _, record := range records {
		account, err := toAccount(record)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}
	return accounts, nil
}

// SetClaims replaces the claims payload on the account.
func (s *GormStore) SetClaims(ctx context.Context, id uuid.UUID, claims Claims) error {
	payload, err := json.Marshal(claims)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding claims")
	}
	return s.updateColumns(ctx, id, map[string]any{"claims": json.RawMessage(payload)})
}

// SetDisabled toggles the account's disabled flag.
func (s *GormStore) SetDisabled(ctx context.Context, id uuid.UUID, disabled bool) error {
	return s.updateColumns(ctx, id, map[string]any{"disabled": disabled})
}

// VerifyCredentials checks the password against the stored hash. Unknown
// addresses and bad passwords produce the same UNAUTHORIZED error.
func (s *GormStore) VerifyCredentials(ctx context.Context, email, password string) (*Account, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
	}

	var record models.IdentityAccount
	err = s.client.DB().WithContext(ctx).Where("email = ?", normalized).First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading identity account")
	}

	ok, err := security.VerifyPassword(password, record.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verifying password")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
	}
	if record.Disabled {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "account is disabled")
	}

	return toAccount(record)
}

// DeleteAccount removes the identity record. Used by saga compensation, so a
// missing row is not an error.
func (s *GormStore) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	result := s.client.DB().WithContext(ctx).Where("id = ?", id).Delete(&models.IdentityAccount{})
	if result.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, result.Error, "deleting identity account")
	}
	return nil
}

func (s *GormStore) updateColumns(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	result := s.client.DB().WithContext(ctx).
		Model(&models.IdentityAccount{}).
		Where("id = ?", id).
		Updates(fields)
	if result.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, result.Error, "updating identity account")
	}
	if result.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
	}
	return nil
}

func normalizeEmail(email string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	if _, err := mail.ParseAddress(normalized); err != nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "email address is malformed")
	}
	return normalized, nil
}

func toAccount(record models.IdentityAccount) (*Account, error) {
	account := &Account{
		ID:          record.ID,
		Email:       record.Email,
		DisplayName: record.DisplayName,
		Phone:       record.Phone,
		Disabled:    record.Disabled,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	}
	if len(record.Claims) > 0 {
		if err := json.Unmarshal(record.Claims, &account.Claims); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decoding account claims")
		}
	}
	return account, nil
}
