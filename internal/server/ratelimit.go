package server

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultIdleTTL is how long a client's bucket is kept after its last request.
const DefaultIdleTTL = 10 * time.Minute

// RateLimiter enforces per-client and global request rate limits.
// Uses token bucket algorithm via golang.org/x/time/rate.
// Buckets of clients idle for longer than the idle TTL are dropped, so the
// client map stays bounded by the number of recently active clients.
type RateLimiter struct {
	mu        sync.Mutex
	global    *rate.Limiter // nil when there is no global cap
	clients   map[string]*clientBucket
	perClient rate.Limit
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a rate limiter. globalRPM is the total
// requests/minute across all clients (0 or less for no global cap).
// perClientRPM is the per-client requests/minute.
func NewRateLimiter(globalRPM, perClientRPM int) *RateLimiter {
	rl := &RateLimiter{
		clients:   make(map[string]*clientBucket),
		perClient: rate.Limit(float64(perClientRPM) / 60.0),
		burst:     max(perClientRPM, 1),
		idleTTL:   DefaultIdleTTL,
		now:       time.Now,
	}
	if globalRPM > 0 {
		rl.global = rate.NewLimiter(rate.Limit(float64(globalRPM)/60.0), globalRPM)
	}
	rl.lastSweep = rl.now()
	return rl
}

// Allow checks whether a request from the given client is allowed.
func (rl *RateLimiter) Allow(client string) bool {
	rl.mu.Lock()
	now := rl.now()
	if now.Sub(rl.lastSweep) >= rl.idleTTL {
		rl.sweep(now)
	}
	if rl.global != nil && !rl.global.AllowN(now, 1) {
		rl.mu.Unlock()
		return false
	}
	b, ok := rl.clients[client]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(rl.perClient, rl.burst)}
		rl.clients[client] = b
	}
	b.lastSeen = now
	rl.mu.Unlock()
	return b.limiter.AllowN(now, 1)
}

// Len returns the number of client buckets currently held.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// sweep drops idle buckets. Callers hold rl.mu.
func (rl *RateLimiter) sweep(now time.Time) {
	for client, b := range rl.clients {
		if now.Sub(b.lastSeen) >= rl.idleTTL {
			delete(rl.clients, client)
		}
	}
	rl.lastSweep = now
}
