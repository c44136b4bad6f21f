package websocket

import (
	"net"
	"net/http"
	"strings"
	"sync"
)

func clientIP(r *http.Request) string {
	// Check X-Forwarded-For header first
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[0])
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ipLimiter caps concurrent sockets per client address. A limit of zero
// or less disables it.
type ipLimiter struct {
	limit int

	mu          sync.Mutex
	connections map[string]int
}

func newIPLimiter(limit int) *ipLimiter {
	return &ipLimiter{limit: limit, connections: make(map[string]int)}
}

func (l *ipLimiter) acquire(ip string) bool {
	if l.limit <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.connections[ip] >= l.limit {
		return false
	}
	l.connections[ip]++
	return true
}

func (l *ipLimiter) release(ip string) {
	if l.limit <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.connections[ip]--
	if l.connections[ip] <= 0 {
		delete(l.connections, ip)
	}
}

func (l *ipLimiter) count(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connections[ip]
}
