package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BradenHooton/paydesk/internal/config"
	"github.com/BradenHooton/paydesk/internal/database"
	"github.com/BradenHooton/paydesk/internal/models"
	"github.com/BradenHooton/paydesk/internal/repositories"
	pkgauth "github.com/BradenHooton/paydesk/pkg/auth"
	"github.com/jackc/pgx/v5"
)

// seed provisions a console account from SEED_EMAIL and SEED_PASSWORD.
// With SEED_LOGIN_HISTORY=true it also records a week of successful logins
// from SEED_KNOWN_IP so the suspicious activity detector has a baseline.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.NewConnection(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if err := seedAccount(ctx, db, cfg.Security.BcryptCost, logger); err != nil {
		logger.Error("seed failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func seedAccount(ctx context.Context, db *database.DB, bcryptCost int, logger *slog.Logger) error {
	email := strings.TrimSpace(os.Getenv("SEED_EMAIL"))
	password := os.Getenv("SEED_PASSWORD")
	if email == "" || password == "" {
		return errors.New("SEED_EMAIL and SEED_PASSWORD are required")
	}

	if err := pkgauth.ValidatePassword(password); err != nil {
		var policyErr *pkgauth.PasswordPolicyError
		if errors.As(err, &policyErr) {
			return fmt.Errorf("SEED_PASSWORD rejected: %s", strings.Join(policyErr.Violations, ", "))
		}
		return err
	}

	name := os.Getenv("SEED_NAME")
	if name == "" {
		name = "Console Operator"
	}
	var balance int64
	if raw := os.Getenv("SEED_BALANCE"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("SEED_BALANCE must be an integer amount in minor units: %w", err)
		}
		balance = parsed
	}

	hash, err := pkgauth.HashPasswordWithCost(password, bcryptCost)
	if err != nil {
		return err
	}

	withHistory := os.Getenv("SEED_LOGIN_HISTORY") == "true"
	knownIP := os.Getenv("SEED_KNOWN_IP")
	if knownIP == "" {
		knownIP = "198.51.100.10"
	}

	return db.WithTransaction(ctx, func(tx pgx.Tx) error {
		accounts := repositories.NewAccountRepository(tx)

		if _, err := accounts.GetByEmail(ctx, email); err == nil {
			logger.Info("account already exists, skipping")
			return nil
		} else if !errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("failed to check for existing account: %w", err)
		}

		account, err := accounts.Create(ctx, &models.Account{
			Email:        email,
			Name:         name,
			PasswordHash: hash,
			Balance:      balance,
		})
		if err != nil {
			return err
		}
		logger.Info("account created", slog.String("account_id", account.ID))

		if !withHistory {
			return nil
		}

		events := repositories.NewLoginEventRepository(tx)
		now := time.Now().UTC()
		for day := 7; day >= 1; day-- {
			event := &models.LoginEvent{
				AccountID:  account.ID,
				IPAddress:  knownIP,
				UserAgent:  "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_5) AppleWebKit/605.1.15 Safari/605.1.15",
				Outcome:    models.LoginOutcomeSuccess,
				OccurredAt: now.Add(-time.Duration(day) * 24 * time.Hour),
			}
			if err := events.Insert(ctx, event); err != nil {
				return err
			}
		}
		logger.Info("login history seeded", slog.String("ip_address", knownIP), slog.Int("events", 7))
		return nil
	})
}
