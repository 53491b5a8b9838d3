package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/BradenHooton/paydesk/internal/metrics"
	"github.com/BradenHooton/paydesk/internal/models"
	"github.com/BradenHooton/paydesk/internal/notify"
	"github.com/BradenHooton/paydesk/internal/repositories"
)

// Detector defaults
const (
	DefaultHistoryWindow = 30 * 24 * time.Hour
	DefaultHistoryLimit  = 500
	DefaultRapidWindow   = 5 * time.Minute
	DefaultRapidLimit    = 100
)

// more attempts than this inside the rapid window raise a signal
const rapidAttemptsAbove = 3

// LoginEventRepository is the append-only login event store
type LoginEventRepository interface {
	Insert(ctx context.Context, event *models.LoginEvent) error
	ListSince(ctx context.Context, q repositories.LoginEventQuery) ([]*models.LoginEvent, error)
}

type DetectorConfig struct {
	HistoryWindow time.Duration // lookback for known IPs and user agents
	HistoryLimit  int
	RapidWindow   time.Duration
	RapidLimit    int
}

// DetectionInput describes the login being examined. ExcludeEventID is the
// event just written for this login; it is left out of both queries and the
// current attempt is counted explicitly instead.
type DetectionInput struct {
	Account        *models.Account
	IPAddress      string
	UserAgent      string
	At             time.Time
	ExcludeEventID string
}

// SuspiciousActivityDetector flags logins from unseen IPs or devices and
// bursts of attempts. It never changes the outcome of a login.
type SuspiciousActivityDetector struct {
	events   LoginEventRepository
	notifier notify.Notifier
	tasks    TaskRunner
	logger   *slog.Logger
	cfg      DetectorConfig
}

func NewSuspiciousActivityDetector(
	events LoginEventRepository,
	notifier notify.Notifier,
	tasks TaskRunner,
	logger *slog.Logger,
	cfg DetectorConfig,
) *SuspiciousActivityDetector {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultHistoryWindow
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.RapidWindow <= 0 {
		cfg.RapidWindow = DefaultRapidWindow
	}
	if cfg.RapidLimit <= 0 {
		cfg.RapidLimit = DefaultRapidLimit
	}
	return &SuspiciousActivityDetector{
		events:   events,
		notifier: notifier,
		tasks:    tasks,
		logger:   logger,
		cfg:      cfg,
	}
}

// Detect computes the signals for in and, if any fired and the account has
// earlier successful logins, queues a notification
func (d *SuspiciousActivityDetector) Detect(ctx context.Context, in DetectionInput) ([]models.Signal, error) {
	success := models.LoginOutcomeSuccess
	history, err := d.events.ListSince(ctx, repositories.LoginEventQuery{
		AccountID:      in.Account.ID,
		Since:          in.At.Add(-d.cfg.HistoryWindow),
		Outcome:        &success,
		ExcludeEventID: in.ExcludeEventID,
		Limit:          d.cfg.HistoryLimit,
	})
	if err != nil {
		return nil, storeError("load login history", err)
	}

	recent, err := d.events.ListSince(ctx, repositories.LoginEventQuery{
		AccountID:      in.Account.ID,
		Since:          in.At.Add(-d.cfg.RapidWindow),
		ExcludeEventID: in.ExcludeEventID,
		Limit:          d.cfg.RapidLimit,
	})
	if err != nil {
		return nil, storeError("load recent attempts", err)
	}

	knownIPs := make(map[string]struct{}, len(history))
	knownAgents := make(map[string]struct{}, len(history))
	for _, e := range history {
		knownIPs[e.IPAddress] = struct{}{}
		knownAgents[e.UserAgent] = struct{}{}
	}

	var signals []models.Signal
	if len(knownIPs) > 0 {
		if _, seen := knownIPs[in.IPAddress]; !seen {
			signals = append(signals, models.SignalNewIP)
		}
	}
	// +1 for the attempt being examined
	if len(recent)+1 > rapidAttemptsAbove {
		signals = append(signals, models.SignalRapidAttempts)
	}
	if len(knownAgents) > 0 {
		if _, seen := knownAgents[in.UserAgent]; !seen {
			signals = append(signals, models.SignalNewDevice)
		}
	}

	if len(signals) == 0 {
		return nil, nil
	}

	for _, s := range signals {
		metrics.RecordSuspiciousSignal(string(s))
	}
	d.logger.Warn("suspicious login activity",
		slog.String("account_id", in.Account.ID),
		slog.Any("signals", models.SignalStrings(signals)),
		slog.String("ip_address", in.IPAddress),
	)

	if len(history) > 0 {
		email := in.Account.Email
		activity := notify.SuspiciousActivity{
			Signals:    signals,
			IPAddress:  in.IPAddress,
			UserAgent:  in.UserAgent,
			OccurredAt: in.At,
		}
		d.tasks.Submit(taskNotifySuspicious, func(ctx context.Context) error {
			return d.notifier.SuspiciousActivity(ctx, email, activity)
		})
	}

	return signals, nil
}
