package wsapi

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrAuthFailed is returned when a handshake token fails to parse or
// validate against the signing key.
var ErrAuthFailed = errors.New("wsapi: authentication failed")

// ErrRateLimited is returned when a remote address has exceeded
// MaxFailedAttempts within RateLimitWindow.
var ErrRateLimited = errors.New("wsapi: rate limit exceeded")

const (
	// MaxFailedAttempts is the number of failed handshakes tolerated per
	// remote address before a lockout applies.
	MaxFailedAttempts = 5

	// RateLimitWindow is the sliding window failed attempts are counted
	// within.
	RateLimitWindow = 1 * time.Minute

	// RateLimitLockout is how long a remote address is locked out after
	// exceeding MaxFailedAttempts.
	RateLimitLockout = 60 * time.Second
)

// Authenticator validates a bearer JWT presented at WebSocket handshake,
// rate-limiting failed attempts per remote address the same way the
// teacher's rpc.TokenValidator rate-limits raw token mismatches. A nil or
// empty signing key disables authentication entirely (local-first
// default, matching the original daemon's auth_callback=None mode): every
// handshake is accepted and assigned the "local" user.
type Authenticator struct {
	signingKey []byte

	mu             sync.Mutex
	failedAttempts map[string]*rateLimitEntry
	stopCleanup    chan struct{}
	closed         bool
}

type rateLimitEntry struct {
	count       int
	firstFail   time.Time
	lockedUntil time.Time
}

// NewAuthenticator constructs an Authenticator. Pass an empty signingKey
// to accept every connection unauthenticated.
func NewAuthenticator(signingKey string) *Authenticator {
	a := &Authenticator{
		signingKey:     []byte(signingKey),
		failedAttempts: make(map[string]*rateLimitEntry),
		stopCleanup:    make(chan struct{}),
	}
	go a.cleanupLoop()
	return a
}

// Enabled reports whether a signing key was configured.
func (a *Authenticator) Enabled() bool {
	return len(a.signingKey) > 0
}

// Authenticate validates a bearer token from the handshake request and
// returns the subject claim as the user id. When auth is disabled it
// always succeeds with userID "local".
func (a *Authenticator) Authenticate(token, remoteAddr string) (userID string, err error) {
	if !a.Enabled() {
		return "local", nil
	}

	ip := hostOnly(remoteAddr)

	a.mu.Lock()
	entry, locked := a.failedAttempts[ip]
	if locked && time.Now().Before(entry.lockedUntil) {
		a.mu.Unlock()
		return "", ErrRateLimited
	}
	a.mu.Unlock()

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrAuthFailed
		}
		return a.signingKey, nil
	})
	if err != nil || !parsed.Valid {
		a.recordFailure(ip)
		return "", ErrAuthFailed
	}

	a.mu.Lock()
	delete(a.failedAttempts, ip)
	a.mu.Unlock()

	if claims.Subject == "" {
		return "local", nil
	}
	return claims.Subject, nil
}

func (a *Authenticator) recordFailure(ip string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	entry, ok := a.failedAttempts[ip]
	if !ok {
		a.failedAttempts[ip] = &rateLimitEntry{count: 1, firstFail: now}
		return
	}
	if now.Sub(entry.firstFail) > RateLimitWindow {
		entry.count = 1
		entry.firstFail = now
		entry.lockedUntil = time.Time{}
		return
	}
	entry.count++
	if entry.count >= MaxFailedAttempts {
		entry.lockedUntil = now.Add(RateLimitLockout)
	}
}

func (a *Authenticator) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.cleanup()
		case <-a.stopCleanup:
			return
		}
	}
}

func (a *Authenticator) cleanup() {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := time.Now()
	for ip, entry := range a.failedAttempts {
		if now.After(entry.lockedUntil) && now.Sub(entry.firstFail) > RateLimitWindow {
			delete(a.failedAttempts, ip)
		}
	}
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (a *Authenticator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.closed = true
	close(a.stopCleanup)
}

func hostOnly(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
