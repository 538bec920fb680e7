package session

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/kernel/sfexplain/pkg/util"
	_ "modernc.org/sqlite"
)

// FirefoxCookieStore reads cookies from a Firefox profile's cookies.sqlite.
// Firefox keeps the database locked while running, so it is copied to a
// temporary directory before being opened.
type FirefoxCookieStore struct {
	ProfileDir string
}

func (s FirefoxCookieStore) Cookies(ctx context.Context, domain string) ([]*http.Cookie, error) {
	src := filepath.Join(s.ProfileDir, "cookies.sqlite")
	if _, err := os.Stat(src); err != nil {
		return nil, fmt.Errorf("failed to find Firefox cookie database: %w", err)
	}

	tempDir, err := os.MkdirTemp("", "sfexplain-cookies-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	dbPath := filepath.Join(tempDir, "cookies.sqlite")
	if err := util.CopyFile(src, dbPath); err != nil {
		return nil, fmt.Errorf("failed to copy cookie database: %w", err)
	}
	// Recent cookies may still live in the write-ahead log.
	if _, err := os.Stat(src + "-wal"); err == nil {
		_ = util.CopyFile(src+"-wal", dbPath+"-wal")
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cookie database: %w", err)
	}
	defer db.Close()

	// The LIKE narrows to the site's base domain; DomainMatches below applies
	// the same parent and subdomain rules as CookieFileStore.
	rows, err := db.QueryContext(ctx,
		`SELECT host, name, value, path, isSecure FROM moz_cookies WHERE host LIKE ?`,
		"%"+baseDomain(domain),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query cookies: %w", err)
	}
	defer rows.Close()

	var cookies []*http.Cookie
	for rows.Next() {
		var host, name, value, path string
		var secure int
		if err := rows.Scan(&host, &name, &value, &path, &secure); err != nil {
			return nil, fmt.Errorf("failed to scan cookie: %w", err)
		}
		if !DomainMatches(host, domain) {
			continue
		}
		cookies = append(cookies, &http.Cookie{
			Domain: host,
			Name:   name,
			Value:  value,
			Path:   path,
			Secure: secure != 0,
		})
	}
	return cookies, rows.Err()
}

// baseDomain returns the last two labels of a host, e.g. salesforce.com.
func baseDomain(host string) string {
	labels := strings.Split(strings.Trim(host, "."), ".")
	if len(labels) <= 2 {
		return strings.Join(labels, ".")
	}
	return strings.Join(labels[len(labels)-2:], ".")
}
