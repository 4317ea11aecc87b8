// Package ratelimit limits requests per client and route with token buckets.
package ratelimit

import (
	"strings"
	"sync"
	"time"
)

// Rule limits one route. A Limit of zero or less means unlimited.
type Rule struct {
	// Route is matched exactly, or as a prefix when it ends with "/".
	Route  string
	Limit  int
	Window time.Duration
	// Burst is the bucket capacity. Zero means Limit.
	Burst int
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool
	Default         Rule
	CleanupInterval time.Duration
	// IdleTTL is how long an unused bucket is kept.
	IdleTTL   time.Duration
	Allowlist map[string]bool
	Denylist  map[string]bool
	Rules     []Rule
}

// ToolRoute is the route key of a tool call.
func ToolRoute(tool string) string {
	return "tool:" + tool
}

// HTTPRoute is the route key of a plain HTTP request.
func HTTPRoute(method, path string) string {
	return method + " " + path
}

// DefaultRules are the per-route limits: rendering and remote fetches are the
// expensive calls.
func DefaultRules() []Rule {
	return []Rule{
		{Route: ToolRoute("generate_pdf"), Limit: 10, Window: time.Hour, Burst: 3},
		{Route: ToolRoute("set_job_reference"), Limit: 60, Window: time.Hour, Burst: 5},
		{Route: ToolRoute("ingest_cv"), Limit: 30, Window: time.Hour, Burst: 5},
		{Route: HTTPRoute("GET", "/sessions/"), Limit: 300, Window: time.Minute, Burst: 30},
		{Route: HTTPRoute("GET", "/health")},
		{Route: HTTPRoute("GET", "/metrics")},
	}
}

// DefaultConfig returns an enabled limiter configuration with DefaultRules.
func DefaultConfig() *Config {
	return &Config{
		Enabled:         true,
		Default:         Rule{Limit: 600, Window: time.Minute},
		CleanupInterval: 5 * time.Minute,
		IdleTTL:         time.Hour,
		Allowlist:       map[string]bool{},
		Denylist:        map[string]bool{},
		Rules:           DefaultRules(),
	}
}

// Match returns the rule for route: an exact match first, then the longest
// prefix rule. It returns nil when no rule applies.
func Match(route string, rules []Rule) *Rule {
	for i := range rules {
		if rules[i].Route == route {
			return &rules[i]
		}
	}
	var best *Rule
	for i := range rules {
		r := &rules[i]
		if strings.HasSuffix(r.Route, "/") && strings.HasPrefix(route, r.Route) {
			if best == nil || len(r.Route) > len(best.Route) {
				best = r
			}
		}
	}
	return best
}

// tokenBucket allows capacity requests at once and refills at a steady rate.
type tokenBucket struct {
	mu         sync.Mutex
	capacity   int
	refillRate float64 // tokens per second
	tokens     float64
	lastRefill time.Time
	lastUsed   time.Time
}

func newTokenBucket(capacity int, refillRate float64, now time.Time) *tokenBucket {
	return &tokenBucket{
		capacity:   capacity,
		refillRate: refillRate,
		tokens:     float64(capacity),
		lastRefill: now,
		lastUsed:   now,
	}
}

func (b *tokenBucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens = min(float64(b.capacity), b.tokens+elapsed*b.refillRate)
		b.lastRefill = now
	}
}

// take consumes a token if one is available and reports the bucket state.
func (b *tokenBucket) take(now time.Time) (allowed bool, remaining int, resetAt time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(now)
	b.lastUsed = now
	if b.tokens >= 1 {
		b.tokens--
		allowed = true
	}

	remaining = int(b.tokens)
	resetAt = now
	if missing := float64(b.capacity) - b.tokens; missing > 0 && b.refillRate > 0 {
		resetAt = now.Add(time.Duration(missing / b.refillRate * float64(time.Second)))
	}
	return allowed, remaining, resetAt
}

func (b *tokenBucket) idleSince(now time.Time) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return now.Sub(b.lastUsed)
}

// Info describes the limit applied to a request.
type Info struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

// Limiter manages one token bucket per client and route.
type Limiter struct {
	config *Config
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*tokenBucket

	stopOnce sync.Once
	stop     chan struct{}
}

// NewLimiter creates a limiter. A nil config selects DefaultConfig.
func NewLimiter(config *Config) *Limiter {
	if config == nil {
		config = DefaultConfig()
	}
	l := &Limiter{
		config:  config,
		now:     time.Now,
		buckets: make(map[string]*tokenBucket),
		stop:    make(chan struct{}),
	}
	if config.Enabled && config.CleanupInterval > 0 {
		go l.cleanupLoop(config.CleanupInterval)
	}
	return l
}

// Allow reports whether a request from clientID to route may proceed.
func (l *Limiter) Allow(clientID, route string) (bool, Info) {
	cfg := l.config
	switch {
	case !cfg.Enabled, cfg.Allowlist[clientID]:
		return true, Info{Allowed: true}
	case cfg.Denylist[clientID]:
		return false, Info{}
	}

	rule := Match(route, cfg.Rules)
	if rule == nil {
		rule = &cfg.Default
	}
	if rule.Limit <= 0 || rule.Window <= 0 {
		return true, Info{Allowed: true}
	}

	// Prefix rules share one bucket across the routes they cover.
	key := route
	if rule.Route != "" {
		key = rule.Route
	}
	now := l.now()
	bucket := l.bucket(clientID+"|"+key, rule, now)
	allowed, remaining, resetAt := bucket.take(now)

	info := Info{Allowed: allowed, Limit: rule.Limit, Remaining: remaining, ResetTime: resetAt}
	if !allowed {
		// One token arrives after 1/refillRate seconds.
		info.RetryAfter = time.Duration(rule.Window.Seconds() / float64(rule.Limit) * float64(time.Second))
	}
	return allowed, info
}

func (l *Limiter) bucket(key string, rule *Rule, now time.Time) *tokenBucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[key]; ok {
		return b
	}
	capacity := rule.Burst
	if capacity <= 0 {
		capacity = rule.Limit
	}
	b := newTokenBucket(capacity, float64(rule.Limit)/rule.Window.Seconds(), now)
	l.buckets[key] = b
	return b
}

func (l *Limiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stop:
			return
		}
	}
}

// cleanup drops buckets unused for longer than IdleTTL.
func (l *Limiter) cleanup() {
	ttl := l.config.IdleTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if b.idleSince(now) > ttl {
			delete(l.buckets, key)
		}
	}
}

func (l *Limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Stop ends the cleanup goroutine.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}
