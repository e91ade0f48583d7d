package transport

import (
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// admissionLimiter applies a token bucket per remote host and evicts idle
// buckets every 512 checks.
type admissionLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu     sync.Mutex
	byHost map[string]*hostBucket
	hits   uint64
}

type hostBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newAdmissionLimiter returns nil when limiting is disabled.
func newAdmissionLimiter(rps float64, burst int, idleTTL time.Duration) *admissionLimiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &admissionLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		idleTTL: idleTTL,
		byHost:  make(map[string]*hostBucket),
	}
}

// Allow reports whether a connection from host may proceed at now.
func (l *admissionLimiter) Allow(host string, now time.Time) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.byHost[host]
	if !ok {
		b = &hostBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byHost[host] = b
	}
	b.lastSeen = now
	allowed := b.limiter.AllowN(now, 1)

	l.hits++
	if l.hits%512 == 0 {
		cutoff := now.Add(-l.idleTTL)
		for k, v := range l.byHost {
			if v.lastSeen.Before(cutoff) {
				delete(l.byHost, k)
			}
		}
	}
	return allowed
}

func (l *admissionLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byHost)
}

// remoteHost strips the port so every connection from one address shares a bucket.
func remoteHost(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
