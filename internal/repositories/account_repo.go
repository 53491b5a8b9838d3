package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/paydesk/internal/database"
	"github.com/BradenHooton/paydesk/internal/models"
)

// AccountRepository reads accounts and applies atomic updates to their
// security fields. No method reads a value and writes it back.
type AccountRepository struct {
	db database.Querier
}

func NewAccountRepository(db database.Querier) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, email, name, password_hash, balance,
	failed_attempt_count, locked_until, last_failed_attempt_at,
	two_factor_secret, two_factor_enabled, two_factor_enabled_at,
	created_at, updated_at`

// rowScanner is satisfied by pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccountRow(scanner rowScanner) (*models.Account, error) {
	var a models.Account
	err := scanner.Scan(
		&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.Balance,
		&a.FailedAttemptCount, &a.LockedUntil, &a.LastFailedAttemptAt,
		&a.TwoFactorSecret, &a.TwoFactorEnabled, &a.TwoFactorEnabledAt,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &a, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccountRow(r.db.QueryRow(ctx, query, id))
}

// GetByEmail matches case-insensitively
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE LOWER(email) = LOWER($1)`
	return scanAccountRow(r.db.QueryRow(ctx, query, email))
}

// Create inserts an account. Security fields start at their zero values.
func (r *AccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	query := `
		INSERT INTO accounts (email, name, password_hash, balance)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + accountColumns

	created, err := scanAccountRow(r.db.QueryRow(ctx, query,
		account.Email, account.Name, account.PasswordHash, account.Balance,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return created, nil
}

// IncrementFailedAttempts adds one failure and, when the post-increment count
// reaches threshold and no lock is in force, sets locked_until to
// now+lockDuration. NewlyLocked is true only for the call that set the lock;
// the row lock taken by prev serialises concurrent callers on the account.
func (r *AccountRepository) IncrementFailedAttempts(
	ctx context.Context,
	id string,
	now time.Time,
	threshold int,
	lockDuration time.Duration,
) (*models.LockoutState, error) {
	query := `
		WITH prev AS (
		    SELECT id, locked_until FROM accounts WHERE id = $1 FOR UPDATE
		)
		UPDATE accounts a
		SET failed_attempt_count = a.failed_attempt_count + 1,
		    last_failed_attempt_at = $2::timestamptz,
		    locked_until = CASE
		        WHEN a.failed_attempt_count + 1 >= $3::int
		             AND (a.locked_until IS NULL OR a.locked_until <= $2::timestamptz)
		        THEN $4::timestamptz
		        ELSE a.locked_until
		    END,
		    updated_at = $2::timestamptz
		FROM prev
		WHERE a.id = prev.id
		RETURNING a.failed_attempt_count, a.locked_until, a.last_failed_attempt_at,
		          COALESCE(
		              (prev.locked_until IS NULL OR prev.locked_until <= $2::timestamptz)
		                  AND a.locked_until > $2::timestamptz,
		              FALSE)
	`

	lockUntil := now.Add(lockDuration)

	var state models.LockoutState
	err := r.db.QueryRow(ctx, query, id, now, threshold, lockUntil).Scan(
		&state.FailedAttemptCount,
		&state.LockedUntil,
		&state.LastFailedAttemptAt,
		&state.NewlyLocked,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &state, nil
}

// ResetFailedAttempts zeroes the failure counter. locked_until is left alone.
func (r *AccountRepository) ResetFailedAttempts(ctx context.Context, id string, now time.Time) error {
	query := `
		UPDATE accounts
		SET failed_attempt_count = 0, last_failed_attempt_at = NULL, updated_at = $2
		WHERE id = $1 AND failed_attempt_count > 0
	`
	if _, err := r.db.Exec(ctx, query, id, now); err != nil {
		return database.MapPostgresError(err)
	}
	return nil
}

// ClearExpiredLock removes a lock whose expiry is at or before now and resets
// the counters with it. It reports whether this call cleared the lock.
func (r *AccountRepository) ClearExpiredLock(ctx context.Context, id string, now time.Time) (bool, error) {
	query := `
		UPDATE accounts
		SET failed_attempt_count = 0, locked_until = NULL, last_failed_attempt_at = NULL, updated_at = $2
		WHERE id = $1 AND locked_until IS NOT NULL AND locked_until <= $2
	`
	tag, err := r.db.Exec(ctx, query, id, now)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return tag.RowsAffected() == 1, nil
}

// ClearExpiredLocks clears every lock that expired at or before now and
// returns how many accounts were touched
func (r *AccountRepository) ClearExpiredLocks(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE accounts
		SET failed_attempt_count = 0, locked_until = NULL, last_failed_attempt_at = NULL, updated_at = $1
		WHERE locked_until IS NOT NULL AND locked_until <= $1
	`
	tag, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}

// SetPendingTwoFactorSecret stores an encrypted secret for an account that
// has not enabled two-factor, replacing any earlier pending secret. It
// returns false when two-factor is already enabled or the account is gone.
func (r *AccountRepository) SetPendingTwoFactorSecret(ctx context.Context, id string, secret []byte, now time.Time) (bool, error) {
	query := `
		UPDATE accounts
		SET two_factor_secret = $2, updated_at = $3
		WHERE id = $1 AND two_factor_enabled = FALSE
	`
	tag, err := r.db.Exec(ctx, query, id, secret, now)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return tag.RowsAffected() == 1, nil
}

// EnableTwoFactor flips the flag only if the stored pending secret is still
// the one the caller verified against.
func (r *AccountRepository) EnableTwoFactor(ctx context.Context, id string, expectedSecret []byte, now time.Time) (bool, error) {
	query := `
		UPDATE accounts
		SET two_factor_enabled = TRUE, two_factor_enabled_at = $3, updated_at = $3
		WHERE id = $1 AND two_factor_enabled = FALSE AND two_factor_secret = $2
	`
	tag, err := r.db.Exec(ctx, query, id, expectedSecret, now)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return tag.RowsAffected() == 1, nil
}

// DisableTwoFactor clears the secret and the flag in one statement
func (r *AccountRepository) DisableTwoFactor(ctx context.Context, id string, now time.Time) error {
	query := `
		UPDATE accounts
		SET two_factor_secret = NULL, two_factor_enabled = FALSE, two_factor_enabled_at = NULL, updated_at = $2
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id, now)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
