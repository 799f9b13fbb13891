package handler

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pavelanni/quizzer/internal/model"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter allows maxRequests per window for each user, with a burst of
// maxRequests. Idle entries are pruned once they have been unused for three
// windows.
type rateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	interval  time.Duration
	burst     int
	expiry    time.Duration
	lastPrune time.Time
	now       func() time.Time
}

func newRateLimiter(maxRequests int, window time.Duration) *rateLimiter {
	if maxRequests <= 0 {
		return nil
	}
	return &rateLimiter{
		visitors: make(map[string]*visitor),
		interval: window / time.Duration(maxRequests),
		burst:    maxRequests,
		expiry:   max(window*3, time.Minute),
		now:      time.Now,
	}
}

func (l *rateLimiter) allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	if now.Sub(l.lastPrune) > time.Minute {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > l.expiry {
				delete(l.visitors, k)
			}
		}
		l.lastPrune = now
	}
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Every(l.interval), l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	l.mu.Unlock()

	return v.limiter.AllowN(now, 1)
}

// admit reports model.ErrRateLimited once key has used up its budget. A nil
// limiter admits everything.
func (l *rateLimiter) admit(key string) error {
	if l == nil || l.allow(key) {
		return nil
	}
	return model.ErrRateLimited
}

func (l *rateLimiter) retryAfter() string {
	return strconv.Itoa(max(int((l.interval+time.Second-1)/time.Second), 1))
}

// visitorKey identifies the authenticated user, falling back to the remote
// address.
func visitorKey(r *http.Request) string {
	if u := model.UserFromContext(r.Context()); u != nil {
		return "user:" + strconv.FormatInt(u.ID, 10)
	}
	return r.RemoteAddr
}

// middleware limits by visitorKey. A nil limiter lets everything through.
func (l *rateLimiter) middleware(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(visitorKey(r)) {
			w.Header().Set("Retry-After", l.retryAfter())
			writeError(w, r, http.StatusTooManyRequests, "RateLimited")
			return
		}
		next.ServeHTTP(w, r)
	})
}
