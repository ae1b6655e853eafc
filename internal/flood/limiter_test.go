package flood

import (
	"sync"
	"testing"
	"time"
)

// newTestLimiter returns a limiter whose clock the test controls.
func newTestLimiter(t *testing.T, limit int) (*Limiter, *time.Time) {
	t.Helper()

	l := NewLimiter(limit)
	t.Cleanup(l.Stop)

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestLimiter_AllowsUpToLimit(t *testing.T) {
	l, _ := newTestLimiter(t, 3)

	for i := range 3 {
		if ok, _ := l.Allow("10.0.0.1"); !ok {
			t.Errorf("request %d should be allowed", i+1)
		}
	}

	ok, retryAfter := l.Allow("10.0.0.1")
	if ok {
		t.Error("4th request should be blocked")
	}
	if retryAfter != windowDuration {
		t.Errorf("retryAfter = %v, expected %v", retryAfter, windowDuration)
	}
}

func TestLimiter_SlidingWindow(t *testing.T) {
	l, now := newTestLimiter(t, 2)

	l.Allow("client")
	*now = now.Add(20 * time.Second)
	l.Allow("client")

	ok, retryAfter := l.Allow("client")
	if ok {
		t.Fatal("third request should be blocked")
	}
	if retryAfter != 40*time.Second {
		t.Errorf("retryAfter = %v, expected 40s", retryAfter)
	}

	*now = now.Add(41 * time.Second)
	if ok, _ := l.Allow("client"); !ok {
		t.Error("request should be allowed once the first one left the window")
	}
	if ok, _ := l.Allow("client"); ok {
		t.Error("window should be full again")
	}
}

func TestLimiter_BlockedRequestsAreNotCounted(t *testing.T) {
	l, now := newTestLimiter(t, 1)

	l.Allow("client")
	for range 5 {
		l.Allow("client")
	}

	*now = now.Add(windowDuration + time.Second)
	if ok, _ := l.Allow("client"); !ok {
		t.Error("blocked requests should not extend the window")
	}
}

func TestLimiter_PerClient(t *testing.T) {
	l, _ := newTestLimiter(t, 1)

	if ok, _ := l.Allow("a"); !ok {
		t.Error("first request from a should be allowed")
	}
	if ok, _ := l.Allow("b"); !ok {
		t.Error("first request from b should be allowed")
	}
	if ok, _ := l.Allow("a"); ok {
		t.Error("second request from a should be blocked")
	}
}

func TestLimiter_ZeroLimit(t *testing.T) {
	l, _ := newTestLimiter(t, 0)

	ok, retryAfter := l.Allow("client")
	if ok {
		t.Error("zero limit should block everything")
	}
	if retryAfter != windowDuration {
		t.Errorf("retryAfter = %v, expected %v", retryAfter, windowDuration)
	}
}

func TestLimiter_ForgetIdle(t *testing.T) {
	l, now := newTestLimiter(t, 5)

	l.Allow("old")
	*now = now.Add(idleTimeout + time.Minute)
	l.Allow("fresh")

	l.forgetIdle()

	stats := l.Stats()
	if stats.ActiveClients != 1 {
		t.Errorf("ActiveClients = %d, expected 1", stats.ActiveClients)
	}
	if stats.LimitPerMinute != 5 || stats.WindowSeconds != 60 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestLimiter_StopTwice(_ *testing.T) {
	l := NewLimiter(1)
	l.Stop()
	l.Stop()
}

func TestLimiter_ConcurrentAccess(t *testing.T) {
	l := NewLimiter(1000)
	defer l.Stop()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				l.Allow("client")
				l.Stats()
			}
		}()
	}
	wg.Wait()

	if got := len(l.clients["client"].requests); got != 500 {
		t.Errorf("recorded %d requests, expected 500", got)
	}
}
