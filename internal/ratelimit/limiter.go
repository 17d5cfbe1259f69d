package ratelimit

import (
	"sync"
	"time"
)

// Scope groups requests that share a budget.
type Scope string

const (
	// ScopeRead covers blob downloads and other GETs.
	ScopeRead Scope = "read"
	// ScopeBuffered covers consumptions held in memory until converted.
	ScopeBuffered Scope = "buffered"
	// ScopeBlob covers consumptions written to blob storage.
	ScopeBlob Scope = "blob"
)

type BucketKind string

const (
	BucketIP  BucketKind = "ip"
	BucketKey BucketKind = "key"
)

// Limits is the per-window budget of one scope. A zero limit is unlimited.
type Limits struct {
	IP  int
	Key int
}

type Config struct {
	Window time.Duration
	Scopes map[Scope]Limits
}

type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   int64
	ResetIn   int64
}

type key struct {
	scope  Scope
	kind   BucketKind
	bucket string
}

type counter struct {
	windowStart int64
	count       int
}

// Limiter is a fixed-window counter keyed by scope and client.
type Limiter struct {
	scopes  map[Scope]Limits
	windowS int64

	mu      sync.Mutex
	entries map[key]counter
}

func New(cfg Config) *Limiter {
	if cfg.Window < time.Second {
		cfg.Window = time.Minute
	}
	scopes := make(map[Scope]Limits, len(cfg.Scopes))
	for scope, limits := range cfg.Scopes {
		scopes[scope] = limits
	}
	return &Limiter{
		scopes:  scopes,
		windowS: int64(cfg.Window.Seconds()),
		entries: make(map[key]counter, 4096),
	}
}

func (l *Limiter) Take(now time.Time, scope Scope, kind BucketKind, bucket string) Result {
	limit := l.limit(scope, kind)
	if limit <= 0 {
		return Result{
			Allowed: true,
			ResetAt: now.Unix(),
		}
	}

	unixNow := now.Unix()
	windowStart := unixNow / l.windowS * l.windowS
	resetAt := windowStart + l.windowS

	k := key{
		scope:  scope,
		kind:   kind,
		bucket: bucket,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[k]
	if !ok || entry.windowStart != windowStart {
		entry = counter{windowStart: windowStart}
	}

	allowed := entry.count < limit
	if allowed {
		entry.count++
	}
	remaining := max(limit-entry.count, 0)
	l.entries[k] = entry

	if len(l.entries) > 100000 {
		l.cleanup(windowStart - l.windowS*2)
	}

	return Result{
		Allowed:   allowed,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
		ResetIn:   max(resetAt-unixNow, 0),
	}
}

func (l *Limiter) limit(scope Scope, kind BucketKind) int {
	limits, ok := l.scopes[scope]
	if !ok {
		return 0
	}
	if kind == BucketKey {
		return limits.Key
	}
	return limits.IP
}

func (l *Limiter) cleanup(olderThanWindowStart int64) {
	for k, v := range l.entries {
		if v.windowStart <= olderThanWindowStart {
			delete(l.entries, k)
		}
	}
}
