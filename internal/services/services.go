package services

import (
	"errors"
	"fmt"

	"github.com/BradenHooton/paydesk/internal/background"
	"github.com/BradenHooton/paydesk/internal/models"
)

// TaskRunner accepts fire-and-forget work. *background.Dispatcher implements it.
type TaskRunner interface {
	Submit(name string, fn background.Task) bool
}

// Background task names, also used as metric labels
const (
	taskNotifyAccountLocked = "notify_account_locked"
	taskNotifySuspicious    = "notify_suspicious_activity"
	taskDetectSuspicious    = "detect_suspicious_activity"
	taskPersistAudit        = "persist_audit_log"
)

// storeError marks err as an infrastructure failure unless it already is one
// or is a business sentinel the caller must see as-is
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, models.ErrStoreUnavailable) || errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, models.ErrStoreUnavailable, err)
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
