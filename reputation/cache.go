// Package reputation implements the per-source failure-counter and
// blacklist-deadline cache of spec.md §4.4, grounded on the teacher's
// gateway/state.go sweep-by-pattern idiom (RediScripts.ClearKeys),
// reimplemented in-memory since spec.md requires Reputation to be
// rebuilt from zero on every restart rather than persisted.
package reputation

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Entry mirrors spec.md's ReputationEntry.
type Entry struct {
	Failures         int
	BlacklistedUntil time.Time
	lastActivity     time.Time
}

// BlacklistNotifier receives a fan-out notification whenever a source
// crosses the blacklist threshold. The controller backs this with a
// bus.Publisher through a small adapter; New substitutes a no-op when
// given nil.
type BlacklistNotifier interface {
	NotifyBlacklisted(source string, until time.Time)
}

type noopNotifier struct{}

func (noopNotifier) NotifyBlacklisted(string, time.Time) {}

// Cache is a concurrent map of source address to Entry, with TTL sweep.
type Cache struct {
	threshold     int
	blacklistTime time.Duration
	rememberTime  time.Duration
	log           zerolog.Logger
	notifier      BlacklistNotifier

	mu      sync.Mutex
	entries map[string]*Entry

	stop chan struct{}
}

// New constructs a Cache. notifier may be nil, in which case blacklist
// transitions are not published anywhere.
func New(threshold int, blacklistTime, rememberTime time.Duration, log zerolog.Logger, notifier BlacklistNotifier) *Cache {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Cache{
		threshold:     threshold,
		blacklistTime: blacklistTime,
		rememberTime:  rememberTime,
		log:           log,
		notifier:      notifier,
		entries:       make(map[string]*Entry),
		stop:          make(chan struct{}),
	}
}

// RecordFailure increments source's failure counter, setting a
// blacklist deadline once the threshold is crossed.
func (c *Cache) RecordFailure(source string) {
	now := time.Now()

	c.mu.Lock()
	e, ok := c.entries[source]
	if !ok {
		e = &Entry{}
		c.entries[source] = e
	}
	e.Failures++
	e.lastActivity = now

	var notify bool
	var until time.Time
	if e.Failures >= c.threshold {
		until = now.Add(c.blacklistTime)
		e.BlacklistedUntil = until
		notify = true
	}
	c.mu.Unlock()

	if notify {
		c.log.Warn().Str("source", source).Time("until", until).Msg("source blacklisted")
		c.notifier.NotifyBlacklisted(source, until)
	}
}

// IsBlacklisted reports whether source currently has a live blacklist
// deadline.
func (c *Cache) IsBlacklisted(source string) bool {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[source]
	if !ok {
		return false
	}
	return e.BlacklistedUntil.After(now)
}

// Sweep removes entries whose last activity exceeds rememberTime and
// whose blacklist deadline (if any) has passed. Intended to run every
// 30 seconds per spec.md §4.4.
func (c *Cache) Sweep() {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for source, e := range c.entries {
		agedOut := now.Sub(e.lastActivity) > c.rememberTime
		blacklistExpired := e.BlacklistedUntil.IsZero() || e.BlacklistedUntil.Before(now)
		if agedOut && blacklistExpired {
			delete(c.entries, source)
		}
	}
}

// Run drives the 30-second sweep tick until Stop is called.
func (c *Cache) Run() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Stop ends the sweep loop.
func (c *Cache) Stop() {
	close(c.stop)
}
