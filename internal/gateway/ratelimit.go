package gateway

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterSweepInterval = 5 * time.Minute
	limiterIdleTTL       = 10 * time.Minute
)

// clientLimiter holds one token bucket per client IP, bounded to maxClients
// entries. Entries unused for limiterIdleTTL are swept in the background.
type clientLimiter struct {
	mu         sync.Mutex
	clients    map[string]*clientBucket
	limit      rate.Limit
	burst      int
	maxClients int
	now        func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

type clientBucket struct {
	tokens   *rate.Limiter
	lastSeen time.Time
}

// newRateLimiter allows perSecond requests per client with an equal burst.
func newRateLimiter(perSecond int) *clientLimiter {
	cl := newClientLimiter(perSecond, perSecond, MaxRateLimitBuckets, time.Now)
	go cl.sweepLoop(limiterSweepInterval)
	return cl
}

func newClientLimiter(perSecond, burst, maxClients int, now func() time.Time) *clientLimiter {
	return &clientLimiter{
		clients:    make(map[string]*clientBucket),
		limit:      rate.Limit(perSecond),
		burst:      burst,
		maxClients: maxClients,
		now:        now,
		stop:       make(chan struct{}),
	}
}

// allow takes one token from ip's bucket.
func (cl *clientLimiter) allow(ip string) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	now := cl.now()
	b, ok := cl.clients[ip]
	if !ok {
		if len(cl.clients) >= cl.maxClients {
			cl.evictLeastRecent()
		}
		b = &clientBucket{tokens: rate.NewLimiter(cl.limit, cl.burst)}
		cl.clients[ip] = b
	}
	b.lastSeen = now
	return b.tokens.AllowN(now, 1)
}

// evictLeastRecent drops the bucket seen longest ago. Called with mu held.
func (cl *clientLimiter) evictLeastRecent() {
	var victim string
	var oldest time.Time
	for ip, b := range cl.clients {
		if victim == "" || b.lastSeen.Before(oldest) {
			victim, oldest = ip, b.lastSeen
		}
	}
	delete(cl.clients, victim)
}

// sweep drops buckets not seen since cutoff and returns how many remain.
func (cl *clientLimiter) sweep(cutoff time.Time) int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	for ip, b := range cl.clients {
		if b.lastSeen.Before(cutoff) {
			delete(cl.clients, ip)
		}
	}
	return len(cl.clients)
}

func (cl *clientLimiter) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-cl.stop:
			return
		case <-ticker.C:
			cl.sweep(cl.now().Add(-limiterIdleTTL))
		}
	}
}

// close stops the background sweep. Safe on nil and safe to repeat.
func (cl *clientLimiter) close() {
	if cl == nil {
		return
	}
	cl.stopOnce.Do(func() { close(cl.stop) })
}
