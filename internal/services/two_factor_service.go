package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/paydesk/internal/metrics"
	"github.com/BradenHooton/paydesk/internal/models"
)

// TwoFactorRepository is the subset of AccountRepository used for enrollment.
// Transitions are compare-and-swap updates keyed on the stored state.
type TwoFactorRepository interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
	SetPendingTwoFactorSecret(ctx context.Context, id string, secret []byte, now time.Time) (bool, error)
	EnableTwoFactor(ctx context.Context, id string, expectedSecret []byte, now time.Time) (bool, error)
	DisableTwoFactor(ctx context.Context, id string, now time.Time) error
}

// OneTimeCodes generates, seals and checks TOTP secrets. *auth.TOTPManager implements it.
type OneTimeCodes interface {
	Generate(accountName string) (*models.TwoFactorSetup, error)
	Encrypt(secret string) ([]byte, error)
	Decrypt(sealed []byte) (string, error)
	Verify(secret, code string, now time.Time) bool
}

// CredentialChecker verifies passwords. *auth.CredentialVerifier implements it.
type CredentialChecker interface {
	Check(hash, password string) bool
	Equalize(password string)
}

// TwoFactorService owns the disabled -> pending -> enabled lifecycle of an
// account's TOTP secret
type TwoFactorService struct {
	repo        TwoFactorRepository
	codes       OneTimeCodes
	credentials CredentialChecker
	audit       AuditRecorder
	logger      *slog.Logger
	now         func() time.Time
}

func NewTwoFactorService(
	repo TwoFactorRepository,
	codes OneTimeCodes,
	credentials CredentialChecker,
	audit AuditRecorder,
	logger *slog.Logger,
) *TwoFactorService {
	return &TwoFactorService{
		repo:        repo,
		codes:       codes,
		credentials: credentials,
		audit:       audit,
		logger:      logger,
		now:         time.Now,
	}
}

func (s *TwoFactorService) getAccount(ctx context.Context, accountID string) (*models.Account, error) {
	account, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, storeError("load account", err)
	}
	return account, nil
}

// BeginSetup generates a new secret and stores it sealed as the pending
// secret, replacing any earlier one. The returned setup is the only time the
// plaintext secret leaves the service.
func (s *TwoFactorService) BeginSetup(ctx context.Context, accountID string, origin models.RequestOrigin) (*models.TwoFactorSetup, error) {
	account, err := s.getAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.TwoFactorEnabled {
		return nil, models.ErrTwoFactorAlreadyEnabled
	}

	setup, err := s.codes.Generate(account.Email)
	if err != nil {
		return nil, fmt.Errorf("generate two-factor secret: %w", err)
	}
	sealed, err := s.codes.Encrypt(setup.Secret)
	if err != nil {
		return nil, fmt.Errorf("seal two-factor secret: %w", err)
	}

	stored, err := s.repo.SetPendingTwoFactorSecret(ctx, account.ID, sealed, s.now())
	if err != nil {
		return nil, storeError("store pending secret", err)
	}
	if !stored {
		// enabled by a concurrent confirm
		return nil, models.ErrTwoFactorAlreadyEnabled
	}

	metrics.RecordTwoFactorEvent(models.AuditActionBeginSetup, true)
	s.audit.Record(ctx, AuditEntry{
		EventType: models.AuditEventTypeTwoFactorSetup,
		AccountID: account.ID,
		Action:    models.AuditActionBeginSetup,
		Success:   true,
		IPAddress: origin.IPAddress,
		UserAgent: origin.UserAgent,
		Metadata:  map[string]interface{}{"replaced_pending": len(account.TwoFactorSecret) > 0},
	})

	return setup, nil
}

// ConfirmSetup enables two-factor when code matches the pending secret. A
// wrong code leaves the pending secret in place.
func (s *TwoFactorService) ConfirmSetup(ctx context.Context, accountID, code string, origin models.RequestOrigin) error {
	account, err := s.getAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if account.TwoFactorState() != models.TwoFactorStatePending {
		return models.ErrNotInSetup
	}

	secret, err := s.codes.Decrypt(account.TwoFactorSecret)
	if err != nil {
		return fmt.Errorf("open pending secret: %w", err)
	}

	now := s.now()
	if !s.codes.Verify(secret, code, now) {
		metrics.RecordTwoFactorEvent(models.AuditActionConfirm, false)
		s.audit.Record(ctx, AuditEntry{
			EventType:     models.AuditEventTypeTwoFactorEnable,
			AccountID:     account.ID,
			Action:        models.AuditActionConfirm,
			Success:       false,
			FailureReason: "invalid_code",
			IPAddress:     origin.IPAddress,
			UserAgent:     origin.UserAgent,
		})
		return models.ErrInvalidCode
	}

	enabled, err := s.repo.EnableTwoFactor(ctx, account.ID, account.TwoFactorSecret, now)
	if err != nil {
		return storeError("enable two-factor", err)
	}
	if !enabled {
		// pending secret replaced or cleared since it was read
		return models.ErrNotInSetup
	}

	metrics.RecordTwoFactorEvent(models.AuditActionConfirm, true)
	s.audit.Record(ctx, AuditEntry{
		EventType: models.AuditEventTypeTwoFactorEnable,
		AccountID: account.ID,
		Action:    models.AuditActionConfirm,
		Success:   true,
		IPAddress: origin.IPAddress,
		UserAgent: origin.UserAgent,
	})
	s.logger.Info("two-factor enabled", slog.String("account_id", account.ID))
	return nil
}

// Disable re-authenticates with password and then clears the secret and the
// enabled flag together
func (s *TwoFactorService) Disable(ctx context.Context, accountID, password string, origin models.RequestOrigin) error {
	account, err := s.getAccount(ctx, accountID)
	if err != nil {
		return err
	}

	if !s.credentials.Check(account.PasswordHash, password) {
		metrics.RecordTwoFactorEvent(models.AuditActionDisable, false)
		s.audit.Record(ctx, AuditEntry{
			EventType:     models.AuditEventTypeTwoFactorDisable,
			AccountID:     account.ID,
			Action:        models.AuditActionDisable,
			Success:       false,
			FailureReason: "invalid_password",
			IPAddress:     origin.IPAddress,
			UserAgent:     origin.UserAgent,
		})
		return models.ErrInvalidPassword
	}

	if err := s.repo.DisableTwoFactor(ctx, account.ID, s.now()); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		return storeError("disable two-factor", err)
	}

	metrics.RecordTwoFactorEvent(models.AuditActionDisable, true)
	s.audit.Record(ctx, AuditEntry{
		EventType: models.AuditEventTypeTwoFactorDisable,
		AccountID: account.ID,
		Action:    models.AuditActionDisable,
		Success:   true,
		IPAddress: origin.IPAddress,
		UserAgent: origin.UserAgent,
		Metadata:  map[string]interface{}{"previous_state": string(account.TwoFactorState())},
	})
	s.logger.Info("two-factor disabled", slog.String("account_id", account.ID))
	return nil
}

// Status reports the enrollment state without exposing the secret
func (s *TwoFactorService) Status(ctx context.Context, accountID string) (*models.TwoFactorStatus, error) {
	account, err := s.getAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &models.TwoFactorStatus{
		State:     account.TwoFactorState(),
		EnabledAt: account.TwoFactorEnabledAt,
	}, nil
}
