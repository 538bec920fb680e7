// Package salesforce is a small Tooling API client for the metadata records
// sfexplain explains.
package salesforce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"regexp"
	"strconv"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/kernel/sfexplain/internal/session"
)

// DefaultAPIVersion is the REST API version used for every call.
const DefaultAPIVersion = "58.0"

// minAPIVersion is the oldest version with the Tooling sobjects used here.
var minAPIVersion = semver.MustParse("37.0")

var idPattern = regexp.MustCompile(`^[A-Za-z0-9]{1,18}$`)

// Record is a decoded Tooling API record.
type Record map[string]any

// Invalidator drops cached sessions after an authentication failure.
type Invalidator interface {
	Invalidate(hostname string)
}

// Client issues Tooling API requests.
type Client struct {
	httpClient  *http.Client
	apiVersion  string
	scheme      string
	invalidator Invalidator
	log         *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client. Bearer auth is layered on top.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithScheme overrides the https scheme, for tests against plain HTTP servers.
func WithScheme(scheme string) Option {
	return func(cl *Client) { cl.scheme = scheme }
}

// WithInvalidator registers who to notify when a session is rejected.
func WithInvalidator(inv Invalidator) Option {
	return func(cl *Client) { cl.invalidator = inv }
}

// WithLogger attaches a diagnostic logger.
func WithLogger(log *zap.Logger) Option {
	return func(cl *Client) { cl.log = log }
}

// NewClient creates a Client for apiVersion ("58.0" when empty).
func NewClient(apiVersion string, opts ...Option) (*Client, error) {
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	v, err := semver.NewVersion(apiVersion)
	if err != nil {
		return nil, fmt.Errorf("invalid API version %q: %w", apiVersion, err)
	}
	if v.LessThan(minAPIVersion) {
		return nil, fmt.Errorf("API version %s is too old, need at least %s", apiVersion, minAPIVersion.Original())
	}

	c := &Client{
		httpClient: http.DefaultClient,
		apiVersion: fmt.Sprintf("%d.%d", v.Major(), v.Minor()),
		scheme:     "https",
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// APIVersion returns the normalised API version, e.g. "58.0".
func (c *Client) APIVersion() string {
	return c.apiVersion
}

// Get performs an authenticated GET against the session's API host and
// decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, sess session.Session, path string, out any) error {
	u, err := url.Parse(c.scheme + "://" + sess.APIHost + path)
	if err != nil {
		return fmt.Errorf("failed to build request URL: %w", err)
	}
	q := u.Query()
	q.Set("cache", strconv.FormatFloat(rand.Float64(), 'f', -1, 64))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json; charset=UTF-8")

	c.log.Debug("salesforce request", zap.String("host", sess.APIHost), zap.String("path", path))

	resp, err := c.authorized(ctx, sess).Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("request to %s cancelled: %w", sess.APIHost, ctxErr)
		}
		return &NetworkError{URL: u.Scheme + "://" + u.Host + u.Path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.log.Warn("session rejected", zap.String("host", sess.APIHost))
		if c.invalidator != nil {
			c.invalidator.Invalidate(sess.APIHost)
		}
		return ErrAuthenticationExpired
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid response: %w", err)
	}
	return nil
}

func (c *Client) authorized(ctx context.Context, sess session.Session) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: sess.Token,
		TokenType:   "Bearer",
	}))
}

func (c *Client) toolingPath(rest string) string {
	return "/services/data/v" + c.apiVersion + "/tooling/" + rest
}

func validateID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}
