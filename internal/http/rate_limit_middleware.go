package httpx

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const expiredWindowSweepInterval = 5 * time.Minute

// RateLimiter is a fixed-window counter keyed by caller identity. The
// in-memory implementation below is the default; a redis-backed one is
// swapped in when REDIS_ADDR is configured so the window survives restarts.
type RateLimiter interface {
	Allow(key string, limit int, window time.Duration) rateDecision
	Close()
}

type rateDecision struct {
	allowed   bool
	count     int
	windowEnd time.Time
}

type memoryRateLimiter struct {
	mu      sync.Mutex
	windows map[string]countingWindow
	stopCh  chan struct{}
	once    sync.Once
}

type countingWindow struct {
	count int
	end   time.Time
}

func NewMemoryRateLimiter() RateLimiter {
	rl := &memoryRateLimiter{
		windows: make(map[string]countingWindow),
		stopCh:  make(chan struct{}),
	}
	go rl.sweepExpired()
	return rl
}

func (rl *memoryRateLimiter) Allow(key string, limit int, window time.Duration) rateDecision {
	if limit <= 0 {
		return rateDecision{allowed: true}
	}
	if window <= 0 {
		window = rateWindowDefault
	}
	now := time.Now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.windows[key]
	if !ok || now.After(w.end) {
		w = countingWindow{count: 1, end: now.Add(window)}
		rl.windows[key] = w
		return rateDecision{allowed: true, count: w.count, windowEnd: w.end}
	}
	if w.count >= limit {
		return rateDecision{allowed: false, count: w.count, windowEnd: w.end}
	}
	w.count++
	rl.windows[key] = w
	return rateDecision{allowed: true, count: w.count, windowEnd: w.end}
}

// sweepExpired keeps the window map from accumulating one entry per client
// IP and user ever seen.
func (rl *memoryRateLimiter) sweepExpired() {
	ticker := time.NewTicker(expiredWindowSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := time.Now()
			rl.mu.Lock()
			for key, w := range rl.windows {
				if now.After(w.end) {
					delete(rl.windows, key)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *memoryRateLimiter) Close() {
	rl.once.Do(func() {
		close(rl.stopCh)
	})
}

func (r *Router) withRateLimit(route string, limit int, window time.Duration, keyFn func(*http.Request) string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if limit <= 0 || r.limiter == nil {
			next(w, req)
			return
		}
		key := keyFn(req)
		if key == "" {
			key = rateLimitKeyIP(req)
		}
		decision := r.limiter.Allow(key, limit, window)
		r.applyRateHeaders(w, limit, decision)
		if !decision.allowed {
			label := route
			if label == "" {
				label = req.URL.Path
			}
			r.recordRateLimitHit(label, rateMetricKey(key))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, req)
	}
}

// handlerAuthRate wraps an authenticated handler so the window is keyed by
// user id rather than client address. Signup and login stay IP-keyed because
// no identity exists yet there.
func (r *Router) handlerAuthRate(route string, limit int, window time.Duration, next http.HandlerFunc) http.HandlerFunc {
	return r.requireAuth(r.withRateLimit(route, limit, window, r.rateLimitKeyUser, next))
}

func (r *Router) rateLimitKeyUser(req *http.Request) string {
	if info, ok := authInfoFromContext(req.Context()); ok && info.UserID != "" {
		return "user:" + info.UserID
	}
	return ""
}

func rateLimitKeyIP(req *http.Request) string {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		host = req.RemoteAddr
	}
	if host == "" {
		host = "unknown"
	}
	return "ip:" + host
}

// rateMetricKey reduces a limiter key to its kind ("ip", "user") so the
// prometheus label stays low-cardinality.
func rateMetricKey(key string) string {
	if key == "" {
		return "unknown"
	}
	if idx := strings.IndexRune(key, ':'); idx > 0 {
		return key[:idx]
	}
	return key
}
