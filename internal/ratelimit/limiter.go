package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nkiryanov/videohub/internal/apperrors"
)

const (
	defaultMaxAttempts = 5
	defaultCooldown    = 15 * time.Minute

	keyPrefix = "videohub:login"
)

type Config struct {
	// Failed attempts allowed within cooldown window, next attempt is rejected
	MaxAttempts int

	// Fixed window length, counted from the first failure
	Cooldown time.Duration
}

// LoginLimiter counts failed logins per identifier and per client IP in redis
//
// Counters use fixed-window semantics: INCR and EXPIRE set on the first hit only.
type LoginLimiter struct {
	redis       redis.UniversalClient
	maxAttempts int
	cooldown    time.Duration
}

func New(client redis.UniversalClient, cfg Config) *LoginLimiter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultCooldown
	}

	return &LoginLimiter{
		redis:       client,
		maxAttempts: cfg.MaxAttempts,
		cooldown:    cfg.Cooldown,
	}
}

// Check returns apperrors.ErrTooManyAttempts if identifier or ip spent its attempts
func (l *LoginLimiter) Check(ctx context.Context, identifier string, ip string) error {
	for _, key := range l.keys(identifier, ip) {
		count, err := l.redis.Get(ctx, key).Int64()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			return fmt.Errorf("error while reading login attempts. Err: %w", err)
		case count >= int64(l.maxAttempts):
			return apperrors.ErrTooManyAttempts
		}
	}
	return nil
}

// Fail records failed login attempt
func (l *LoginLimiter) Fail(ctx context.Context, identifier string, ip string) error {
	for _, key := range l.keys(identifier, ip) {
		count, err := l.redis.Incr(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("error while counting login attempt. Err: %w", err)
		}
		if count == 1 {
			if err := l.redis.Expire(ctx, key, l.cooldown).Err(); err != nil {
				return fmt.Errorf("error while setting login attempts window. Err: %w", err)
			}
		}
	}
	return nil
}

// Reset forgets failed attempts of the identifier and ip, called after successful login
func (l *LoginLimiter) Reset(ctx context.Context, identifier string, ip string) error {
	if err := l.redis.Del(ctx, l.keys(identifier, ip)...).Err(); err != nil {
		return fmt.Errorf("error while resetting login attempts. Err: %w", err)
	}
	return nil
}

func (l *LoginLimiter) keys(identifier string, ip string) []string {
	keys := []string{identifierKey(identifier)}
	if ip != "" {
		keys = append(keys, keyPrefix+":ip:"+ip)
	}
	return keys
}

func identifierKey(identifier string) string {
	return keyPrefix + ":id:" + strings.ToLower(strings.TrimSpace(identifier))
}
