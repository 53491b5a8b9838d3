package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/paydesk/internal/models"
	"github.com/redis/go-redis/v9"
)

const defaultChallengePrefix = "paydesk:login_challenge"

// ChallengeRepository keeps pending second-factor logins in Redis. Expiry is
// enforced by the key TTL and again on read.
type ChallengeRepository struct {
	redis  redis.UniversalClient
	prefix string
}

func NewChallengeRepository(client redis.UniversalClient, prefix string) *ChallengeRepository {
	if prefix == "" {
		prefix = defaultChallengePrefix
	}
	return &ChallengeRepository{redis: client, prefix: prefix}
}

func (r *ChallengeRepository) key(id string) string {
	return r.prefix + ":" + id
}

// Save stores the challenge until its ExpiresAt
func (r *ChallengeRepository) Save(ctx context.Context, challenge *models.LoginChallenge) error {
	ttl := time.Until(challenge.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("%w: challenge already expired", models.ErrBadRequest)
	}

	payload, err := json.Marshal(challenge)
	if err != nil {
		return fmt.Errorf("failed to encode login challenge: %w", err)
	}

	if err := r.redis.Set(ctx, r.key(challenge.ID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

// Get returns ErrInvalidChallenge for unknown, expired or corrupt entries
func (r *ChallengeRepository) Get(ctx context.Context, id string) (*models.LoginChallenge, error) {
	data, err := r.redis.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrInvalidChallenge
		}
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}

	var challenge models.LoginChallenge
	if err := json.Unmarshal(data, &challenge); err != nil {
		_, _ = r.redis.Del(ctx, r.key(id)).Result()
		return nil, models.ErrInvalidChallenge
	}

	if !time.Now().Before(challenge.ExpiresAt) {
		_, _ = r.redis.Del(ctx, r.key(id)).Result()
		return nil, models.ErrInvalidChallenge
	}
	return &challenge, nil
}

// Delete reports whether this call removed the challenge. Only one caller can
// observe true for a given ID.
func (r *ChallengeRepository) Delete(ctx context.Context, id string) (bool, error) {
	n, err := r.redis.Del(ctx, r.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return n > 0, nil
}
