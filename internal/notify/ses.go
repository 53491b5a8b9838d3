package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/BradenHooton/paydesk/internal/models"
	pkglogger "github.com/BradenHooton/paydesk/pkg/logger"
)

// SESClient is the part of the SES API the notifier needs
type SESClient interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESNotifier sends security notifications through AWS SES
type SESNotifier struct {
	client      SESClient
	fromAddress string
	logger      *slog.Logger
}

// NewSESNotifier loads the default AWS credential chain for region
func NewSESNotifier(ctx context.Context, region, fromAddress string, logger *slog.Logger) (*SESNotifier, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewSESNotifierWithClient(ses.NewFromConfig(cfg), fromAddress, logger), nil
}

func NewSESNotifierWithClient(client SESClient, fromAddress string, logger *slog.Logger) *SESNotifier {
	return &SESNotifier{client: client, fromAddress: fromAddress, logger: logger}
}

func (n *SESNotifier) AccountLocked(ctx context.Context, email string, lockedUntil time.Time) error {
	body := fmt.Sprintf(`Your Paydesk account was temporarily locked after repeated failed sign-in attempts.

You can try again after %s.

If these attempts were not made by you, change your password as soon as the lock ends and contact your administrator.
`, lockedUntil.UTC().Format(time.RFC1123))

	return n.send(ctx, email, "Your Paydesk account has been locked", body, "account_locked")
}

func (n *SESNotifier) SuspiciousActivity(ctx context.Context, email string, activity SuspiciousActivity) error {
	reasons := make([]string, 0, len(activity.Signals))
	for _, s := range activity.Signals {
		reasons = append(reasons, "- "+describeSignal(s))
	}

	body := fmt.Sprintf(`We noticed a sign-in to your Paydesk account that looks unusual.

Time: %s
IP address: %s
Device: %s

Why we flagged it:
%s

If this was you, no action is needed. Otherwise change your password and enable two-factor authentication.
`,
		activity.OccurredAt.UTC().Format(time.RFC1123),
		activity.IPAddress,
		activity.UserAgent,
		strings.Join(reasons, "\n"),
	)

	return n.send(ctx, email, "Unusual sign-in activity on your Paydesk account", body, "suspicious_activity")
}

func (n *SESNotifier) send(ctx context.Context, to, subject, textBody, kind string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(n.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(textBody)},
			},
		},
	}

	result, err := n.client.SendEmail(ctx, input)
	if err != nil {
		n.logger.Error("failed to send notification via SES",
			slog.String("kind", kind),
			slog.String("email", pkglogger.SanitizedEmail(to)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send %s notification: %w", kind, err)
	}

	n.logger.Info("notification sent",
		slog.String("kind", kind),
		slog.String("email", pkglogger.SanitizedEmail(to)),
		slog.String("message_id", aws.ToString(result.MessageId)))
	return nil
}

func describeSignal(s models.Signal) string {
	switch s {
	case models.SignalNewIP:
		return "sign-in from an IP address not seen in the last 30 days"
	case models.SignalNewDevice:
		return "sign-in from a browser or device not seen in the last 30 days"
	case models.SignalRapidAttempts:
		return "several sign-in attempts within a few minutes"
	default:
		return string(s)
	}
}
