// Package ratelimit enforces per-user, per-mode daily application caps.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/javimaligno/goapply-core/internal/appstate"
)

// ErrLimitExceeded is returned by CheckLimit when a cap has been reached.
type ErrLimitExceeded struct {
	Limit   int
	Period  string
	ResetAt time.Time
}

func (e *ErrLimitExceeded) Error() string {
	return fmt.Sprintf("rate limit exceeded: %d applications per %s, resets at %s",
		e.Limit, e.Period, e.ResetAt.Format(time.RFC3339))
}

// Limits holds the configured daily caps.
type Limits struct {
	MaxApplicationsPerDay     int
	MaxAutoApplicationsPerDay int
}

// Usage mirrors the counters reported to callers and operators.
type Usage struct {
	TotalAutomatedToday int
	MaxAutomatedPerDay  int
	AutoModeToday       int
	MaxAutoPerDay       int
	RemainingAutomated  int
	RemainingAuto       int
	ResetsAt            time.Time
}

// Limiter enforces Limits using rolling per-day redis counters keyed by user.
type Limiter struct {
	client *redis.Client
	limits Limits
}

// New constructs a Limiter backed by the given redis client.
func New(client *redis.Client, limits Limits) *Limiter {
	return &Limiter{client: client, limits: limits}
}

func dayBounds(now time.Time) (start, end time.Time) {
	start = now.UTC().Truncate(24 * time.Hour)
	return start, start.Add(24 * time.Hour)
}

func combinedKey(userID string, day time.Time) string {
	return fmt.Sprintf("ratelimit:combined:%s:%s", userID, day.Format("2006-01-02"))
}

func autoKey(userID string, day time.Time) string {
	return fmt.Sprintf("ratelimit:auto:%s:%s", userID, day.Format("2006-01-02"))
}

// CheckLimit raises ErrLimitExceeded if submitting in mode would breach the
// user's daily caps. Assisted mode is never limited since the user drives it.
// Call RecordSubmission after a successful submit to account for it.
func (l *Limiter) CheckLimit(ctx context.Context, userID string, mode appstate.Mode) error {
	if mode == appstate.ModeAssisted {
		return nil
	}

	dayStart, dayEnd := dayBounds(time.Now())

	combinedCount, err := l.client.Get(ctx, combinedKey(userID, dayStart)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("ratelimit: read combined counter: %w", err)
	}
	if combinedCount >= l.limits.MaxApplicationsPerDay {
		return &ErrLimitExceeded{Limit: l.limits.MaxApplicationsPerDay, Period: "day", ResetAt: dayEnd}
	}

	if mode == appstate.ModeAuto {
		autoCount, err := l.client.Get(ctx, autoKey(userID, dayStart)).Int()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("ratelimit: read auto counter: %w", err)
		}
		if autoCount >= l.limits.MaxAutoApplicationsPerDay {
			return &ErrLimitExceeded{Limit: l.limits.MaxAutoApplicationsPerDay, Period: "day (AUTO mode)", ResetAt: dayEnd}
		}
	}

	return nil
}

// RecordSubmission increments today's counters for a successfully submitted
// application in the given mode. No-op for assisted mode. Each counter's TTL
// is (re)armed to expire at the next UTC midnight so abandoned keys don't
// linger past their day.
func (l *Limiter) RecordSubmission(ctx context.Context, userID string, mode appstate.Mode) error {
	if mode == appstate.ModeAssisted {
		return nil
	}

	dayStart, dayEnd := dayBounds(time.Now())

	pipe := l.client.TxPipeline()
	pipe.Incr(ctx, combinedKey(userID, dayStart))
	pipe.ExpireAt(ctx, combinedKey(userID, dayStart), dayEnd)
	if mode == appstate.ModeAuto {
		pipe.Incr(ctx, autoKey(userID, dayStart))
		pipe.ExpireAt(ctx, autoKey(userID, dayStart), dayEnd)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ratelimit: record submission: %w", err)
	}
	return nil
}

// GetUsage reports the user's current daily counters and remaining headroom.
func (l *Limiter) GetUsage(ctx context.Context, userID string) (Usage, error) {
	dayStart, dayEnd := dayBounds(time.Now())

	combinedCount, err := l.client.Get(ctx, combinedKey(userID, dayStart)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Usage{}, fmt.Errorf("ratelimit: read combined counter: %w", err)
	}
	autoCount, err := l.client.Get(ctx, autoKey(userID, dayStart)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Usage{}, fmt.Errorf("ratelimit: read auto counter: %w", err)
	}

	return Usage{
		TotalAutomatedToday: combinedCount,
		MaxAutomatedPerDay:  l.limits.MaxApplicationsPerDay,
		AutoModeToday:       autoCount,
		MaxAutoPerDay:       l.limits.MaxAutoApplicationsPerDay,
		RemainingAutomated:  l.limits.MaxApplicationsPerDay - combinedCount,
		RemainingAuto:       l.limits.MaxAutoApplicationsPerDay - autoCount,
		ResetsAt:            dayEnd,
	}, nil
}
