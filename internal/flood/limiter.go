// Package flood limits how often a single client may hit the catalog.
package flood

import (
	"sync"
	"time"
)

const (
	// windowDuration is the sliding window requests are counted in
	windowDuration = 60 * time.Second
	// cleanupInterval is how often idle clients are forgotten
	cleanupInterval = 10 * time.Minute
	// idleTimeout is how long a client may stay quiet before it is forgotten
	idleTimeout = 10 * time.Minute
)

// Limiter allows each client a fixed number of requests per sliding minute.
type Limiter struct {
	limitPerMinute int
	clients        map[string]*clientWindow
	mutex          sync.Mutex
	now            func() time.Time
	stopCleanup    chan struct{}
	stopOnce       sync.Once
}

type clientWindow struct {
	requests []time.Time
	lastSeen time.Time
}

// NewLimiter creates a limiter and starts its background cleanup. Call Stop when done.
func NewLimiter(limitPerMinute int) *Limiter {
	l := &Limiter{
		limitPerMinute: limitPerMinute,
		clients:        make(map[string]*clientWindow),
		now:            time.Now,
		stopCleanup:    make(chan struct{}),
	}

	go l.cleanup()

	return l
}

func (l *Limiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopCleanup)
	})
}

// Allow records a request from client. When the client is over its limit the request
// is not recorded, and the returned duration says when the oldest request leaves the window.
func (l *Limiter) Allow(client string) (bool, time.Duration) {
	now := l.now()

	l.mutex.Lock()
	defer l.mutex.Unlock()

	window, exists := l.clients[client]
	if !exists {
		window = &clientWindow{
			requests: make([]time.Time, 0, l.limitPerMinute+1),
		}
		l.clients[client] = window
	}
	window.lastSeen = now

	windowStart := now.Add(-windowDuration)
	kept := window.requests[:0]
	for _, ts := range window.requests {
		if ts.After(windowStart) {
			kept = append(kept, ts)
		}
	}
	window.requests = kept

	if len(window.requests) >= l.limitPerMinute {
		if len(window.requests) == 0 {
			return false, windowDuration
		}
		return false, window.requests[0].Sub(windowStart)
	}

	window.requests = append(window.requests, now)
	return true, 0
}

func (l *Limiter) cleanup() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.forgetIdle()
		case <-l.stopCleanup:
			return
		}
	}
}

func (l *Limiter) forgetIdle() {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	cutoff := l.now().Add(-idleTimeout)
	for client, window := range l.clients {
		if window.lastSeen.Before(cutoff) {
			delete(l.clients, client)
		}
	}
}

// Stats reports the limiter's state for monitoring.
func (l *Limiter) Stats() Stats {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	return Stats{
		ActiveClients:  len(l.clients),
		LimitPerMinute: l.limitPerMinute,
		WindowSeconds:  int(windowDuration.Seconds()),
	}
}

type Stats struct {
	ActiveClients  int `json:"active_clients"`
	LimitPerMinute int `json:"limit_per_minute"`
	WindowSeconds  int `json:"window_seconds"`
}
