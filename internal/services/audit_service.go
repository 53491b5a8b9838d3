package services

import (
	"context"
	"log/slog"

	"github.com/BradenHooton/paydesk/internal/models"
	pkglogger "github.com/BradenHooton/paydesk/pkg/logger"
)

// AuditLogRepository persists audit entries
type AuditLogRepository interface {
	Create(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error)
}

// AuditRecorder accepts security audit entries. Recording never fails the caller.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// AuditEntry is one audited security decision
type AuditEntry struct {
	EventType     string
	AccountID     string
	Action        string
	Success       bool
	FailureReason string
	IPAddress     string
	UserAgent     string
	Metadata      map[string]interface{}
}

// AuditService writes each entry to the structured log immediately and to
// the audit_logs table in the background. Metadata is redacted before either
// sink sees it.
type AuditService struct {
	repo        AuditLogRepository
	auditLogger *pkglogger.AuditLogger
	tasks       TaskRunner
	logger      *slog.Logger
}

func NewAuditService(repo AuditLogRepository, auditLogger *pkglogger.AuditLogger, tasks TaskRunner, logger *slog.Logger) *AuditService {
	return &AuditService{
		repo:        repo,
		auditLogger: auditLogger,
		tasks:       tasks,
		logger:      logger,
	}
}

func (s *AuditService) Record(ctx context.Context, entry AuditEntry) {
	redacted := pkglogger.Redact(entry.Metadata)

	event := pkglogger.AuditEvent{
		EventType:     entry.EventType,
		AccountID:     entry.AccountID,
		Action:        entry.Action,
		IPAddress:     entry.IPAddress,
		UserAgent:     entry.UserAgent,
		Success:       entry.Success,
		FailureReason: entry.FailureReason,
		Metadata:      redacted,
	}
	switch entry.EventType {
	case models.AuditEventTypeLogin, models.AuditEventTypeLoginSecondStep:
		s.auditLogger.LogAuthAttempt(ctx, event)
	default:
		s.auditLogger.LogTwoFactorChange(ctx, event)
	}

	if s.repo == nil {
		return
	}

	log := &models.AuditLog{
		EventType:     entry.EventType,
		ActorID:       strPtr(entry.AccountID),
		Action:        entry.Action,
		Success:       entry.Success,
		FailureReason: strPtr(entry.FailureReason),
		IPAddress:     strPtr(entry.IPAddress),
		UserAgent:     strPtr(entry.UserAgent),
		Metadata:      models.AuditMetadata(redacted),
	}
	if log.Metadata == nil {
		log.Metadata = models.AuditMetadata{}
	}

	s.tasks.Submit(taskPersistAudit, func(ctx context.Context) error {
		_, err := s.repo.Create(ctx, log)
		return err
	})
}
