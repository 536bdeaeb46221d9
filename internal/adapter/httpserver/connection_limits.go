package httpserver

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	viewerConnectRate  = 5.0 // new viewer connections per second per IP
	viewerConnectBurst = 20
	rateEntryIdle      = 10 * time.Minute
	rateCleanupEvery   = 5 * time.Minute
)

// LimitReason describes why a viewer connection was rejected.
type LimitReason string

const (
	LimitReasonGlobal LimitReason = "global_limit"
	LimitReasonPerIP  LimitReason = "per_ip_limit"
	LimitReasonRate   LimitReason = "rate_limit"
)

// ConnectionLimits caps viewer websockets: total open connections, open
// connections per IP, and the rate of new connections per IP.
type ConnectionLimits struct {
	globalMax int64
	global    atomic.Int64

	mu        sync.Mutex
	perIPMax  int
	perIP     map[string]int
	limiters  map[string]*rateEntry
	rate      rate.Limit
	burst     int
	cleanupAt time.Time
	now       func() time.Time
}

type rateEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewConnectionLimits(globalMax int64, perIPMax int, connectionsPerSecond float64, burst int) *ConnectionLimits {
	return &ConnectionLimits{
		globalMax: globalMax,
		perIPMax:  perIPMax,
		perIP:     make(map[string]int),
		limiters:  make(map[string]*rateEntry),
		rate:      rate.Limit(connectionsPerSecond),
		burst:     burst,
		cleanupAt: time.Now().Add(rateCleanupEvery),
		now:       time.Now,
	}
}

// Acquire reserves a slot for ip. On success the caller must Release it.
func (l *ConnectionLimits) Acquire(ip string) (bool, LimitReason) {
	if !l.allowRate(ip) {
		return false, LimitReasonRate
	}

	for {
		current := l.global.Load()
		if current >= l.globalMax {
			return false, LimitReasonGlobal
		}
		if l.global.CompareAndSwap(current, current+1) {
			break
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.perIP[ip] >= l.perIPMax {
		l.global.Add(-1)
		return false, LimitReasonPerIP
	}
	l.perIP[ip]++
	return true, ""
}

func (l *ConnectionLimits) Release(ip string) {
	l.mu.Lock()
	if count := l.perIP[ip]; count > 1 {
		l.perIP[ip] = count - 1
	} else {
		delete(l.perIP, ip)
	}
	l.mu.Unlock()
	l.global.Add(-1)
}

// Current returns the number of open viewer connections.
func (l *ConnectionLimits) Current() int64 {
	return l.global.Load()
}

// CountFor returns the number of open viewer connections from ip.
func (l *ConnectionLimits) CountFor(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.perIP[ip]
}

func (l *ConnectionLimits) allowRate(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.After(l.cleanupAt) {
		cutoff := now.Add(-rateEntryIdle)
		for key, entry := range l.limiters {
			if entry.lastSeen.Before(cutoff) {
				delete(l.limiters, key)
			}
		}
		l.cleanupAt = now.Add(rateCleanupEvery)
	}

	entry, ok := l.limiters[ip]
	if !ok {
		entry = &rateEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}
