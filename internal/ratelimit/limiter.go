// Package ratelimit implements the gateway's per-session sliding-window
// rate limiter (spec.md §4.3).
//
// golang.org/x/time/rate appears transitively elsewhere in the retrieval
// pack, but it models a token bucket that refills smoothly over time; it
// cannot express the spec's exact "N allowed in the trailing window, N+1
// refused until the oldest timestamp ages out" boundary (see spec.md §8
// and DESIGN.md), so this is a small hand-rolled ring of timestamps
// instead, in the teacher's plain-Go, no-framework style.
package ratelimit

import (
	"sync"
	"time"

	"github.com/silexa/gateway-sidecar/internal/gatewayerr"
)

type Class string

const (
	ClassGitPush          Class = "git-push"
	ClassPRMutation       Class = "pr-mutation"
	ClassBranchOperation  Class = "branch-operation"
	ClassCredentialAccess Class = "credential-access"
	ClassLogAccess        Class = "log-access"
)

type Limits map[Class]int

const window = time.Hour

type bucket struct {
	timestamps []time.Time
}

// Limiter tracks sliding-window counters per (session-hash, class). One
// lock guards the whole table, matching the fixed lock-acquisition order
// the spec requires across components (session -> rate-limit -> policy
// -> audit).
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limits  Limits
}

func NewLimiter(limits Limits) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		limits:  limits,
	}
}

func key(sessionHash string, class Class) string {
	return sessionHash + "|" + string(class)
}

// Allow records one attempt for (sessionHash, class) at now, evicting
// timestamps older than the trailing window first. It returns
// rate-limited with a retry-after hint when the class limit is already
// met.
func (l *Limiter) Allow(sessionHash string, class Class, now time.Time) (time.Duration, error) {
	limit, ok := l.limits[class]
	if !ok || limit <= 0 {
		limit = 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key(sessionHash, class)]
	if !ok {
		b = &bucket{}
		l.buckets[key(sessionHash, class)] = b
	}

	cutoff := now.Add(-window)
	kept := b.timestamps[:0]
	for _, ts := range b.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	b.timestamps = kept

	if limit > 0 && len(b.timestamps) >= limit {
		oldest := b.timestamps[0]
		retryAfter := oldest.Add(window).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return retryAfter, gatewayerr.New(gatewayerr.RateLimited, "operation class rate limit exceeded")
	}

	b.timestamps = append(b.timestamps, now)
	return 0, nil
}
