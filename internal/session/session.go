// Package session resolves Salesforce API sessions from browser cookies and
// caches them per API host.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// CookieName is the Salesforce session cookie whose value is the bearer token.
const CookieName = "sid"

// DefaultTTL is how long a cached session is trusted before re-reading cookies.
const DefaultTTL = time.Hour

// ErrSessionNotFound is returned when no sid cookie exists for the host.
var ErrSessionNotFound = errors.New("session not found")

// Session is a bearer token bound to the API host it is valid for.
type Session struct {
	Token      string    `json:"token"`
	APIHost    string    `json:"api_host"`
	ObtainedAt time.Time `json:"obtained_at"`
}

// CookieStore looks up browser cookies for a domain.
type CookieStore interface {
	Cookies(ctx context.Context, domain string) ([]*http.Cookie, error)
}

// Provider hands out sessions, preferring the cache over the cookie store.
type Provider struct {
	cookies CookieStore
	cache   Cache
	ttl     time.Duration
	now     func() time.Time
	log     *zap.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(p *Provider) { p.ttl = ttl }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// WithLogger attaches a diagnostic logger.
func WithLogger(log *zap.Logger) Option {
	return func(p *Provider) { p.log = log }
}

// NewProvider creates a Provider. A nil cache falls back to an in-memory cache.
func NewProvider(cookies CookieStore, cache Cache, opts ...Option) *Provider {
	if cache == nil {
		cache = NewMemoryCache()
	}
	p := &Provider{
		cookies: cookies,
		cache:   cache,
		ttl:     DefaultTTL,
		now:     time.Now,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Get returns a session for hostname, normalising it to its API host first.
func (p *Provider) Get(ctx context.Context, hostname string) (Session, error) {
	host := NormalizeHost(hostname)
	if host != hostname {
		p.log.Debug("normalized host for API access", zap.String("from", hostname), zap.String("to", host))
	}

	if s, ok := p.cache.Get(host); ok && p.now().Sub(s.ObtainedAt) < p.ttl {
		p.log.Debug("using cached session", zap.String("host", host))
		return s, nil
	}

	p.log.Debug("requesting fresh session", zap.String("host", host))
	cookies, err := p.cookies.Cookies(ctx, host)
	if err != nil {
		return Session{}, fmt.Errorf("failed to read cookies for %s: %w", host, err)
	}

	for _, c := range cookies {
		if c.Name == CookieName && c.Value != "" {
			s := Session{Token: c.Value, APIHost: host, ObtainedAt: p.now()}
			if err := p.cache.Put(host, s); err != nil {
				p.log.Warn("failed to cache session", zap.String("host", host), zap.Error(err))
			}
			return s, nil
		}
	}
	return Session{}, fmt.Errorf("%w for %s", ErrSessionNotFound, host)
}

// Invalidate drops any cached session for hostname.
func (p *Provider) Invalidate(hostname string) {
	host := NormalizeHost(hostname)
	if err := p.cache.Delete(host); err != nil {
		p.log.Warn("failed to invalidate session", zap.String("host", host), zap.Error(err))
	}
}

// NormalizeHost maps a UI hostname to the hostname that serves the API.
// Sandbox Lightning hosts (org--sandbox.lightning.force.com) are rewritten to
// their setup domain; every other host is returned as given.
func NormalizeHost(hostname string) string {
	host := hostname
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	if i := strings.IndexAny(host, "/?#"); i >= 0 {
		host = host[:i]
	}

	if !strings.Contains(host, "lightning.force.com") {
		return host
	}
	first, _, _ := strings.Cut(host, ".")
	org, sandbox, ok := strings.Cut(first, "--")
	if !ok {
		return host
	}
	if i := strings.Index(sandbox, "--"); i >= 0 {
		sandbox = sandbox[:i]
	}
	return org + "--" + sandbox + ".sandbox.my.salesforce-setup.com"
}
