// Package semaphore implements the distributed named counting semaphore
// with crash-safe lease expiry (spec.md §4.1), backed by Redis sorted sets
// per internal/clients/redis/sse_bus.go's go-redis/v9 client usage idiom.
// Backoff is the teacher's computeBackoff exponential-with-jitter helper
// (internal/jobs/orchestrator/engine.go), not a third-party backoff
// library, since the pack's own orchestrator already implements this idiom
// directly with stdlib math/rand and math.
package semaphore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/clipforge/pipeline/internal/platform/logger"
)

var (
	// ErrTimeout is raised when wait_timeout elapses with no available slot.
	ErrTimeout = errors.New("semaphore: timeout waiting for slot")
	// ErrUnavailable is raised on store outage.
	ErrUnavailable = errors.New("semaphore: store unavailable")
)

type Semaphore struct {
	client *goredis.Client
	log    *logger.Logger
}

func New(client *goredis.Client, baseLog *logger.Logger) *Semaphore {
	return &Semaphore{client: client, log: baseLog.With("component", "Semaphore")}
}

// Token is the opaque lease handle returned by Acquire.
type Token struct {
	Name  string
	Value string
}

func key(name string) string { return "pipeline:semaphore:" + name }

// Acquire implements spec.md §4.1's algorithm: evict expired entries,
// conditionally insert under NX semantics, re-check cardinality to guard
// the over-admission race, and retry with capped exponential backoff until
// wait_timeout elapses.
func (s *Semaphore) Acquire(ctx context.Context, name string, limit int64, ttl, waitTimeout time.Duration) (Token, error) {
	deadline := time.Now().Add(waitTimeout)
	attempt := 0
	for {
		tok, err := s.tryAcquireOnce(ctx, name, limit, ttl)
		if err == nil {
			return tok, nil
		}
		if !errors.Is(err, errNoSlot) {
			return Token{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if time.Now().After(deadline) {
			return Token{}, ErrTimeout
		}
		attempt++
		wait := computeBackoff(attempt)
		remaining := time.Until(deadline)
		if wait > remaining {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return Token{}, ctx.Err()
		case <-time.After(wait):
		}
	}
}

var errNoSlot = errors.New("semaphore: no slot available")

func (s *Semaphore) tryAcquireOnce(ctx context.Context, name string, limit int64, ttl time.Duration) (Token, error) {
	k := key(name)
	now := time.Now()

	// (a) evict all entries with expiry <= now (crash recovery).
	if err := s.client.ZRemRangeByScore(ctx, k, "-inf", fmt.Sprintf("%d", now.UnixNano())).Err(); err != nil {
		return Token{}, err
	}

	// (b) if cardinality < limit, conditionally insert the new token.
	card, err := s.client.ZCard(ctx, k).Result()
	if err != nil {
		return Token{}, err
	}
	if card >= limit {
		return Token{}, errNoSlot
	}

	tokenValue := uuid.NewString()
	expiry := now.Add(ttl)
	added, err := s.client.ZAddNX(ctx, k, goredis.Z{
		Score:  float64(expiry.UnixNano()),
		Member: tokenValue,
	}).Result()
	if err != nil {
		return Token{}, err
	}
	if added == 0 {
		// NX collision (uuid reuse is astronomically unlikely but treat as
		// no-slot so the caller retries with a fresh token).
		return Token{}, errNoSlot
	}

	// Re-check cardinality: if the insert pushed us over limit in a race
	// with a concurrent acquirer, undo it and retry.
	card, err = s.client.ZCard(ctx, k).Result()
	if err != nil {
		return Token{}, err
	}
	if card > limit {
		_ = s.client.ZRem(ctx, k, tokenValue).Err()
		return Token{}, errNoSlot
	}

	return Token{Name: name, Value: tokenValue}, nil
}

// Release is idempotent: releasing an unknown or expired token is a no-op
// that logs a warning (spec.md §4.1).
func (s *Semaphore) Release(ctx context.Context, tok Token) {
	removed, err := s.client.ZRem(ctx, key(tok.Name), tok.Value).Result()
	if err != nil {
		s.log.Warn("semaphore release failed", "name", tok.Name, "error", err)
		return
	}
	if removed == 0 {
		s.log.Warn("semaphore release: token already expired or unknown", "name", tok.Name)
	}
}

// LiveTokens reports the current cardinality, for the concurrent-acquire
// probe in spec.md §8.
func (s *Semaphore) LiveTokens(ctx context.Context, name string) (int64, error) {
	now := time.Now()
	if err := s.client.ZRemRangeByScore(ctx, key(name), "-inf", fmt.Sprintf("%d", now.UnixNano())).Err(); err != nil {
		return 0, err
	}
	return s.client.ZCard(ctx, key(name)).Result()
}

// computeBackoff is the teacher's exponential-with-jitter idiom
// (internal/jobs/orchestrator/engine.go's computeBackoff), capped at 5s per
// spec.md §4.1 instead of the teacher's 30s stage-retry cap.
func computeBackoff(attempt int) time.Duration {
	const (
		minBackoff = 50 * time.Millisecond
		maxBackoff = 5 * time.Second
		jitterFrac = 0.20
	)
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(minBackoff) * math.Pow(2, float64(attempt-1)))
	if d > maxBackoff {
		d = maxBackoff
	}
	delta := float64(d) * jitterFrac
	low := float64(d) - delta
	high := float64(d) + delta
	if low < 0 {
		low = 0
	}
	return time.Duration(low + rand.Float64()*(high-low))
}
