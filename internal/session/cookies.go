package session

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
)

// StaticCookieStore serves a single sid value for any domain. It backs the
// --sid flag and SFEXPLAIN_SID.
type StaticCookieStore struct {
	SID string
}

func (s StaticCookieStore) Cookies(ctx context.Context, domain string) ([]*http.Cookie, error) {
	if s.SID == "" {
		return nil, nil
	}
	return []*http.Cookie{{Name: CookieName, Value: s.SID, Domain: domain}}, nil
}

// CookieFileStore reads a Netscape-format cookies.txt export.
type CookieFileStore struct {
	Path string
}

func (s CookieFileStore) Cookies(ctx context.Context, domain string) ([]*http.Cookie, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cookie file: %w", err)
	}
	defer f.Close()

	var cookies []*http.Cookie
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		// curl marks HttpOnly cookies with this prefix rather than a column.
		line = strings.TrimPrefix(line, "#HttpOnly_")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 7 {
			continue
		}
		host := fields[0]
		if !DomainMatches(host, domain) {
			continue
		}
		cookies = append(cookies, &http.Cookie{
			Domain: host,
			Path:   fields[2],
			Secure: strings.EqualFold(fields[3], "TRUE"),
			Name:   fields[5],
			Value:  fields[6],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cookie file: %w", err)
	}
	return cookies, nil
}

// ChainCookieStore asks each store in turn and returns the first non-empty
// result that contains a session cookie.
type ChainCookieStore []CookieStore

func (c ChainCookieStore) Cookies(ctx context.Context, domain string) ([]*http.Cookie, error) {
	var firstErr error
	for _, store := range c {
		cookies, err := store.Cookies(ctx, domain)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for _, ck := range cookies {
			if ck.Name == CookieName {
				return cookies, nil
			}
		}
	}
	return nil, firstErr
}

// DomainMatches reports whether a cookie stored for cookieHost is visible to
// domain, either directly, from a parent domain, or from a subdomain.
func DomainMatches(cookieHost, domain string) bool {
	h := strings.ToLower(strings.TrimPrefix(cookieHost, "."))
	d := strings.ToLower(strings.TrimPrefix(domain, "."))
	if h == "" || d == "" {
		return false
	}
	return h == d || strings.HasSuffix(h, "."+d) || strings.HasSuffix(d, "."+h)
}
