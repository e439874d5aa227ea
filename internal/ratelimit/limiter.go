package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Rule is a named counter limit. Window rules reset a fixed duration after
// the first hit; Daily rules reset at the next UTC midnight.
type Rule struct {
	Name   string
	Limit  int
	Window time.Duration
	Daily  bool
}

// Decision is the outcome of a limiter check
type Decision struct {
	Allowed    bool
	Count      int64
	Remaining  int
	RetryAfter time.Duration
}

type Limiter struct {
	store  Store
	prefix string
	now    func() time.Time
}

func NewLimiter(store Store, prefix string) *Limiter {
	return &Limiter{
		store:  store,
		prefix: prefix,
		now:    time.Now,
	}
}

// WithClock replaces the time source used for daily keys
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Allow records one hit for identity under rule and reports whether it fits
// inside the limit.
func (l *Limiter) Allow(ctx context.Context, rule Rule, identity string) (Decision, error) {
	key, ttl := l.key(rule, identity)

	count, err := l.store.Increment(ctx, key, ttl)
	if err != nil {
		return Decision{Allowed: true}, err
	}

	return l.decide(ctx, rule, key, count), nil
}

// Peek reports the current state without recording a hit. A rule is
// considered exhausted once the count reaches its limit.
func (l *Limiter) Peek(ctx context.Context, rule Rule, identity string) (Decision, error) {
	key, _ := l.key(rule, identity)

	count, err := l.store.Get(ctx, key)
	if err != nil {
		return Decision{Allowed: true}, err
	}

	d := l.decide(ctx, rule, key, count+1)
	d.Count = count
	return d, nil
}

// Reset clears the counter for identity under rule
func (l *Limiter) Reset(ctx context.Context, rule Rule, identity string) error {
	key, _ := l.key(rule, identity)
	return l.store.Reset(ctx, key)
}

func (l *Limiter) decide(ctx context.Context, rule Rule, key string, count int64) Decision {
	d := Decision{
		Allowed:   count <= int64(rule.Limit),
		Count:     count,
		Remaining: max(rule.Limit-int(count), 0),
	}
	if !d.Allowed {
		if ttl, err := l.store.TTL(ctx, key); err == nil {
			d.RetryAfter = ttl
		}
	}
	return d
}

// key builds the counter key and its TTL. Identities are hashed so raw
// emails never land in the store.
func (l *Limiter) key(rule Rule, identity string) (string, time.Duration) {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(identity))))
	parts := []string{l.prefix, "rl", rule.Name, hex.EncodeToString(sum[:16])}

	if !rule.Daily {
		return strings.Join(parts, ":"), rule.Window
	}

	now := l.now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	parts = append(parts, now.Format("2006-01-02"))
	return strings.Join(parts, ":"), midnight.Sub(now)
}
