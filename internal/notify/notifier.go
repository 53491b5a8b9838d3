// Package notify delivers security notifications to account holders.
// Delivery is best effort; callers run it on the background dispatcher.
package notify

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/paydesk/internal/models"
	pkglogger "github.com/BradenHooton/paydesk/pkg/logger"
)

// Notifier sends the two security notifications keyed by account email
type Notifier interface {
	AccountLocked(ctx context.Context, email string, lockedUntil time.Time) error
	SuspiciousActivity(ctx context.Context, email string, activity SuspiciousActivity) error
}

// SuspiciousActivity describes the login that triggered the notification
type SuspiciousActivity struct {
	Signals    []models.Signal
	IPAddress  string
	UserAgent  string
	OccurredAt time.Time
}

// LogNotifier writes notifications to the log instead of sending them.
// Used when email delivery is disabled.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) AccountLocked(ctx context.Context, email string, lockedUntil time.Time) error {
	n.logger.InfoContext(ctx, "notification: account locked",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.Time("locked_until", lockedUntil),
	)
	return nil
}

func (n *LogNotifier) SuspiciousActivity(ctx context.Context, email string, activity SuspiciousActivity) error {
	n.logger.InfoContext(ctx, "notification: suspicious activity",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.String("signals", strings.Join(models.SignalStrings(activity.Signals), ",")),
		slog.String("ip_address", activity.IPAddress),
	)
	return nil
}
