// Package ratelimit provides in-process throttling for chatty client
// intents. The server applies its own limits; throttling locally keeps the
// live channel from being flooded with indicator traffic in the first place.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Rule defines a throttling policy: sustained rate plus burst allowance.
type Rule struct {
	Every time.Duration // minimum sustained spacing between events
	Burst int
}

var (
	// RuleTyping allows one typing indicator per 2 seconds with a small
	// burst, enough for start/stop pairs around short pauses.
	RuleTyping = Rule{Every: 2 * time.Second, Burst: 2}

	// RuleRefresh bounds directory refreshes triggered by UI interaction.
	RuleRefresh = Rule{Every: 5 * time.Second, Burst: 1}
)

// Limiter throttles events per identifier, typically a room ID. The zero
// value is not usable; use NewLimiter.
type Limiter struct {
	rule Rule

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewLimiter creates a Limiter applying rule independently per identifier.
func NewLimiter(rule Rule) *Limiter {
	return &Limiter{
		rule:     rule,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether an event for the identifier may proceed now. Denied
// events are meant to be dropped, not queued.
func (l *Limiter) Allow(identifier string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[identifier]
	if !ok {
		lim = rate.NewLimiter(rate.Every(l.rule.Every), l.rule.Burst)
		l.limiters[identifier] = lim
	}
	l.mu.Unlock()

	return lim.Allow()
}

// Forget drops the identifier's state, releasing its token bucket. Call it
// when a room is left so the map does not grow with dead rooms.
func (l *Limiter) Forget(identifier string) {
	l.mu.Lock()
	delete(l.limiters, identifier)
	l.mu.Unlock()
}
