// Package ratelimit paces requests to the Trello API and records rate limit replies.
//
// Trello allows a burst of requests per key and token and answers 429 beyond
// it. The Pacer spaces consecutive exchanges by a minimum interval and notes
// every 429 it sees. It never retries: a rejected command is reported to the
// operator, who decides whether to run it again.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"iroha/backend"
	"iroha/internal/utils"
)

// Config holds configuration for a Pacer.
type Config struct {
	// MinInterval is the minimum time between the start of one exchange and
	// the start of the next. Zero disables pacing.
	MinInterval time.Duration

	// Stats is an optional stats tracker for recording rate limit events.
	Stats *Stats
}

// Pacer wraps an Exchanger. Like the Exchanger it wraps, it handles one
// exchange at a time.
type Pacer struct {
	next        backend.Exchanger
	minInterval time.Duration
	stats       *Stats
	last        time.Time
}

// Wrap returns a Pacer in front of next.
func Wrap(next backend.Exchanger, cfg Config) *Pacer {
	stats := cfg.Stats
	if stats == nil {
		stats = NewStats()
	}
	return &Pacer{
		next:        next,
		minInterval: cfg.MinInterval,
		stats:       stats,
	}
}

// Stats returns the tracker the Pacer records into.
func (p *Pacer) Stats() *Stats {
	return p.stats
}

// Exchange waits out the minimum interval, then forwards to the wrapped Exchanger.
func (p *Pacer) Exchange(ctx context.Context, method, target string) (*backend.Response, error) {
	if wait := p.delay(time.Now()); wait > 0 {
		utils.Debugf("Pacing request for %s", wait)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	p.last = time.Now()
	resp, err := p.next.Exchange(ctx, method, target)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := ParseRetryAfter(resp.Header.Get("Retry-After"))
		p.stats.RecordRateLimit(retryAfter)
		if retryAfter != nil {
			utils.Warnf("Trello rate limit reached, retry after %s", retryAfter.Round(time.Second))
		} else {
			utils.Warnf("Trello rate limit reached")
		}
	}
	return resp, nil
}

// delay computes how long to wait before an exchange starting at now.
func (p *Pacer) delay(now time.Time) time.Duration {
	if p.minInterval <= 0 || p.last.IsZero() {
		return 0
	}
	next := p.last.Add(p.minInterval)
	if !now.Before(next) {
		return 0
	}
	return next.Sub(now)
}

// Close closes the wrapped Exchanger.
func (p *Pacer) Close() error {
	return p.next.Close()
}

var _ backend.Exchanger = (*Pacer)(nil)

// ParseRetryAfter parses the Retry-After header value.
// It supports both seconds format (integer) and HTTP-date format.
// Returns nil if the value is invalid or empty.
func ParseRetryAfter(value string) *time.Duration {
	if value == "" {
		return nil
	}

	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		if seconds < 0 {
			return nil
		}
		d := time.Duration(seconds) * time.Second
		return &d
	}

	if t, err := http.ParseTime(value); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return &d
	}

	return nil
}

// Stats tracks rate limit statistics for a session.
type Stats struct {
	mu              sync.RWMutex
	rateLimitCount  int64
	lastRateLimitAt time.Time
	lastRetryAfter  *time.Duration
}

// NewStats creates a new Stats instance.
func NewStats() *Stats {
	return &Stats{}
}

// RecordRateLimit records a rate limit event and the server's Retry-After, if any.
func (s *Stats) RecordRateLimit(retryAfter *time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateLimitCount++
	s.lastRateLimitAt = time.Now()
	s.lastRetryAfter = retryAfter
}

// RateLimitCount returns the total number of rate limit events.
func (s *Stats) RateLimitCount() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rateLimitCount
}

// LastRateLimitTime returns the time of the last rate limit event.
func (s *Stats) LastRateLimitTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRateLimitAt
}

// LastRetryAfter returns the Retry-After of the last rate limit event, or nil.
func (s *Stats) LastRetryAfter() *time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRetryAfter
}

// Suggestion describes the session's rate limiting for an operator who just hit it.
func (s *Stats) Suggestion() string {
	count := s.RateLimitCount()
	if count == 0 {
		return "Wait a few seconds before running the command again"
	}
	msg := fmt.Sprintf("Trello has rate limited %d request(s) this session, most recently at %s. ",
		count, s.LastRateLimitTime().Format("15:04:05"))
	if ra := s.LastRetryAfter(); ra != nil {
		return msg + fmt.Sprintf("Wait %s before running the command again", ra.Round(time.Second))
	}
	return msg + "Wait a few seconds before running the command again"
}
