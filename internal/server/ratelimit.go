package server

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig holds login throttling configuration.
type RateLimitConfig struct {
	MaxAttempts int           // attempts allowed per window (default 5)
	Window      time.Duration // sliding window (default 1 minute)
	BlockAfter  int           // consecutive failures before blocking (default 10)
	BlockTime   time.Duration // first block duration, doubled per block (default 5 minutes)
}

// DefaultRateLimitConfig returns the default login throttling configuration.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxAttempts: 5,
		Window:      time.Minute,
		BlockAfter:  10,
		BlockTime:   5 * time.Minute,
	}
}

const maxBlockTime = 24 * time.Hour

// verdict is the outcome of a throttle check.
type verdict struct {
	allowed    bool
	blocked    bool
	retryAfter time.Duration
}

// loginThrottle limits login attempts per client IP with a sliding window,
// and blocks an IP with exponential backoff after repeated failures.
type loginThrottle struct {
	mu       sync.Mutex
	cfg      RateLimitConfig
	now      func() time.Time
	attempts map[string][]time.Time
	failures map[string]int
	blocked  map[string]time.Time
}

func newLoginThrottle(cfg RateLimitConfig) *loginThrottle {
	def := DefaultRateLimitConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.BlockAfter <= 0 {
		cfg.BlockAfter = def.BlockAfter
	}
	if cfg.BlockTime <= 0 {
		cfg.BlockTime = def.BlockTime
	}
	return &loginThrottle{
		cfg:      cfg,
		now:      time.Now,
		attempts: make(map[string][]time.Time),
		failures: make(map[string]int),
		blocked:  make(map[string]time.Time),
	}
}

// check records an attempt for ip if it is allowed.
func (t *loginThrottle) check(ip string) verdict {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()

	if until, ok := t.blocked[ip]; ok {
		if now.Before(until) {
			return verdict{blocked: true, retryAfter: until.Sub(now)}
		}
		delete(t.blocked, ip)
	}

	recent := pruneBefore(t.attempts[ip], now.Add(-t.cfg.Window))
	if len(recent) >= t.cfg.MaxAttempts {
		t.attempts[ip] = recent
		retry := recent[0].Add(t.cfg.Window).Sub(now)
		if retry < time.Second {
			retry = time.Second
		}
		return verdict{retryAfter: retry}
	}

	t.attempts[ip] = append(recent, now)
	return verdict{allowed: true}
}

// succeeded clears the failure history of ip.
func (t *loginThrottle) succeeded(ip string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.failures, ip)
	delete(t.blocked, ip)
}

// failed counts a failed login and blocks ip once the failure threshold is
// reached. Every further BlockAfter failures double the block time.
func (t *loginThrottle) failed(ip string) (blockedFor time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.failures[ip]++
	n := t.failures[ip]
	if n < t.cfg.BlockAfter {
		return 0
	}

	blocks := (n - t.cfg.BlockAfter) / t.cfg.BlockAfter
	d := t.cfg.BlockTime
	for i := 0; i < blocks && d < maxBlockTime; i++ {
		d *= 2
	}
	if d > maxBlockTime {
		d = maxBlockTime
	}
	t.blocked[ip] = t.now().Add(d)
	return d
}

// sweep drops state that no longer affects decisions.
func (t *loginThrottle) sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for ip, ts := range t.attempts {
		if recent := pruneBefore(ts, now.Add(-t.cfg.Window)); len(recent) == 0 {
			delete(t.attempts, ip)
		} else {
			t.attempts[ip] = recent
		}
	}
	for ip, until := range t.blocked {
		if now.After(until) {
			delete(t.blocked, ip)
		}
	}
	for ip := range t.failures {
		_, isBlocked := t.blocked[ip]
		_, active := t.attempts[ip]
		if !isBlocked && !active {
			delete(t.failures, ip)
		}
	}
}

func pruneBefore(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	return ts[i:]
}

// clientIP returns the address login attempts are counted against. The
// forwarding headers are only read when the peer is a trusted proxy; the
// X-Forwarded-For chain is then walked from the right, skipping trusted hops.
func clientIP(r *http.Request, trusted []netip.Prefix) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}
	if !isTrusted(peer, trusted) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if i == 0 || !isTrusted(hop, trusted) {
				return hop
			}
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return peer
}

func isTrusted(ip string, trusted []netip.Prefix) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
