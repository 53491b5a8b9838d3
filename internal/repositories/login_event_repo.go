package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/paydesk/internal/database"
	"github.com/BradenHooton/paydesk/internal/models"
	"github.com/jackc/pgx/v5"
)

// LoginEventRepository is the append-only store of concluded login attempts
type LoginEventRepository struct {
	db database.Querier
}

func NewLoginEventRepository(db database.Querier) *LoginEventRepository {
	return &LoginEventRepository{db: db}
}

// LoginEventQuery selects events for one account at or after Since, newest
// first. A nil Outcome matches both outcomes. Limit must be positive.
type LoginEventQuery struct {
	AccountID      string
	Since          time.Time
	Outcome        *models.LoginOutcome
	ExcludeEventID string
	Limit          int
}

// Insert records an event and fills in its generated ID and timestamp
func (r *LoginEventRepository) Insert(ctx context.Context, event *models.LoginEvent) error {
	query := `
		INSERT INTO login_events (account_id, ip_address, user_agent, outcome, failure_reason, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, occurred_at
	`

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	err := r.db.QueryRow(ctx, query,
		event.AccountID,
		event.IPAddress,
		event.UserAgent,
		string(event.Outcome),
		event.FailureReason,
		occurredAt,
	).Scan(&event.ID, &event.OccurredAt)
	if err != nil {
		return fmt.Errorf("failed to insert login event: %w", database.MapPostgresError(err))
	}
	return nil
}

// ListSince runs a bounded range query over the (account_id, occurred_at) index
func (r *LoginEventRepository) ListSince(ctx context.Context, q LoginEventQuery) ([]*models.LoginEvent, error) {
	if q.Limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", models.ErrBadRequest)
	}

	query := `
		SELECT id, account_id, ip_address, user_agent, outcome, failure_reason, occurred_at
		FROM login_events
		WHERE account_id = $1
		  AND occurred_at >= $2
		  AND ($3::text IS NULL OR outcome = $3::text)
		  AND ($4::uuid IS NULL OR id <> $4::uuid)
		ORDER BY occurred_at DESC
		LIMIT $5
	`

	var outcome, exclude *string
	if q.Outcome != nil {
		o := string(*q.Outcome)
		outcome = &o
	}
	if q.ExcludeEventID != "" {
		exclude = &q.ExcludeEventID
	}

	rows, err := r.db.Query(ctx, query, q.AccountID, q.Since, outcome, exclude, q.Limit)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return scanLoginEventRows(rows)
}

func scanLoginEventRows(rows pgx.Rows) ([]*models.LoginEvent, error) {
	defer rows.Close()

	events := make([]*models.LoginEvent, 0)
	for rows.Next() {
		var e models.LoginEvent
		var outcome string
		if err := rows.Scan(&e.ID, &e.AccountID, &e.IPAddress, &e.UserAgent, &outcome, &e.FailureReason, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan login event: %w", database.MapPostgresError(err))
		}
		e.Outcome = models.LoginOutcome(outcome)
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating login event rows: %w", database.MapPostgresError(err))
	}
	return events, nil
}
