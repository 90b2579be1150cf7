// Package ratelimit throttles repeated booking attempts from one client.
// A client gets MaxAttempts within Window; the next attempt blocks it for
// Block. Counting restarts once the window or the block has elapsed.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"
)

type Config struct {
	MaxAttempts int
	Window      time.Duration
	Block       time.Duration
}

// DefaultConfig allows 3 attempts per 5 minutes and blocks for 10.
var DefaultConfig = Config{MaxAttempts: 3, Window: 5 * time.Minute, Block: 10 * time.Minute}

// State is the per-client counter persisted by a Store.
type State struct {
	Attempts     int       `json:"attempts"`
	FirstAttempt time.Time `json:"first_attempt"`
	BlockedUntil time.Time `json:"blocked_until,omitempty"`
}

// IsBlocked reports whether s is blocked at now, clearing it when the
// block or the counting window has run out.
func (c Config) IsBlocked(s *State, now time.Time) bool {
	if !s.BlockedUntil.IsZero() {
		if now.Before(s.BlockedUntil) {
			return true
		}
		*s = State{}
		return false
	}
	if s.Attempts > 0 && now.Sub(s.FirstAttempt) > c.Window {
		*s = State{}
	}
	return false
}

// RecordAttempt counts one attempt and reports whether it may proceed.
func (c Config) RecordAttempt(s *State, now time.Time) bool {
	if c.IsBlocked(s, now) {
		return false
	}
	if s.Attempts == 0 {
		*s = State{Attempts: 1, FirstAttempt: now}
		return true
	}

	s.Attempts++
	if s.Attempts > c.MaxAttempts {
		s.BlockedUntil = now.Add(c.Block)
		return false
	}
	return true
}

// RemainingBlockSeconds rounds the rest of the block up to whole seconds.
func (c Config) RemainingBlockSeconds(s State, now time.Time) int {
	if s.BlockedUntil.IsZero() {
		return 0
	}
	remaining := s.BlockedUntil.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Seconds()))
}

// TTL is how long a state stays meaningful after its last write.
func (c Config) TTL() time.Duration {
	return c.Window + c.Block
}

// Store persists State per key. Update must apply fn atomically with
// respect to other Updates of the same key.
type Store interface {
	Update(ctx context.Context, key string, ttl time.Duration, fn func(*State)) error
}

type Decision struct {
	Allowed bool
	// RetryAfter is the remaining block in seconds, zero when allowed.
	RetryAfter int
}

type Limiter struct {
	cfg   Config
	store Store
	now   func() time.Time
}

func NewLimiter(cfg Config, store Store) *Limiter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig.MaxAttempts
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig.Window
	}
	if cfg.Block <= 0 {
		cfg.Block = DefaultConfig.Block
	}
	return &Limiter{cfg: cfg, store: store, now: time.Now}
}

// Allow records one attempt for key.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := l.now()
	var d Decision
	err := l.store.Update(ctx, key, l.cfg.TTL(), func(s *State) {
		d.Allowed = l.cfg.RecordAttempt(s, now)
		if !d.Allowed {
			d.RetryAfter = l.cfg.RemainingBlockSeconds(*s, now)
		}
	})
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit %s: %w", key, err)
	}
	return d, nil
}
