package repositories

import (
	"context"
	"fmt"

	"github.com/BradenHooton/paydesk/internal/database"
	"github.com/BradenHooton/paydesk/internal/models"
)

// AuditLogRepository persists audit entries. Metadata arrives already redacted.
type AuditLogRepository struct {
	db database.Querier
}

func NewAuditLogRepository(db database.Querier) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

// Create inserts an audit entry and returns it with its generated ID
func (r *AuditLogRepository) Create(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error) {
	query := `
		INSERT INTO audit_logs (
			event_type, actor_id, action, success, failure_reason, ip_address, user_agent, metadata
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, event_type, actor_id, action, success, failure_reason, ip_address, user_agent, metadata, created_at
	`

	var out models.AuditLog
	err := r.db.QueryRow(ctx, query,
		log.EventType, log.ActorID, log.Action, log.Success,
		log.FailureReason, log.IPAddress, log.UserAgent, log.Metadata,
	).Scan(
		&out.ID, &out.EventType, &out.ActorID, &out.Action, &out.Success,
		&out.FailureReason, &out.IPAddress, &out.UserAgent, &out.Metadata, &out.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit log: %w", database.MapPostgresError(err))
	}
	return &out, nil
}
