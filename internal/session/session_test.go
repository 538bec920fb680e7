package session

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

type FakeCookieStore struct {
	CookiesFunc func(ctx context.Context, domain string) ([]*http.Cookie, error)
	calls       int
	domains     []string
}

func (f *FakeCookieStore) Cookies(ctx context.Context, domain string) ([]*http.Cookie, error) {
	f.calls++
	f.domains = append(f.domains, domain)
	if f.CookiesFunc != nil {
		return f.CookiesFunc(ctx, domain)
	}
	return nil, nil
}

func sidStore(values ...string) *FakeCookieStore {
	i := 0
	return &FakeCookieStore{
		CookiesFunc: func(ctx context.Context, domain string) ([]*http.Cookie, error) {
			v := values[i%len(values)]
			i++
			return []*http.Cookie{
				{Name: "oid", Value: "00D000000000001"},
				{Name: CookieName, Value: v},
			}, nil
		},
	}
}

func TestNormalizeHost(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"acme--dev.lightning.force.com", "acme--dev.sandbox.my.salesforce-setup.com"},
		{"https://acme--uat.lightning.force.com/lightning/setup", "acme--uat.sandbox.my.salesforce-setup.com"},
		{"acme.lightning.force.com", "acme.lightning.force.com"},
		{"acme.my.salesforce.com", "acme.my.salesforce.com"},
		{"acme--dev.sandbox.my.salesforce.com", "acme--dev.sandbox.my.salesforce.com"},
		{"acme--dev.sandbox.my.salesforce-setup.com", "acme--dev.sandbox.my.salesforce-setup.com"},
		{"acme.my.salesforce-setup.com", "acme.my.salesforce-setup.com"},
		{"example.com", "example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeHost(tt.in))
		})
	}
}

func TestProviderCachesWithinTTL(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store := sidStore("first", "second")
	p := NewProvider(store, nil, WithClock(func() time.Time { return now }))

	s, err := p.Get(context.Background(), "acme--dev.lightning.force.com")
	require.NoError(t, err)
	assert.Equal(t, "first", s.Token)
	assert.Equal(t, "acme--dev.sandbox.my.salesforce-setup.com", s.APIHost)
	assert.Equal(t, []string{"acme--dev.sandbox.my.salesforce-setup.com"}, store.domains)

	now = now.Add(59 * time.Minute)
	s, err = p.Get(context.Background(), "acme--dev.lightning.force.com")
	require.NoError(t, err)
	assert.Equal(t, "first", s.Token)
	assert.Equal(t, 1, store.calls)

	now = now.Add(2 * time.Minute)
	s, err = p.Get(context.Background(), "acme--dev.lightning.force.com")
	require.NoError(t, err)
	assert.Equal(t, "second", s.Token)
	assert.Equal(t, 2, store.calls)
}

func TestProviderInvalidateForcesFreshToken(t *testing.T) {
	store := sidStore("stale", "fresh")
	p := NewProvider(store, nil)

	s, err := p.Get(context.Background(), "acme.my.salesforce.com")
	require.NoError(t, err)
	assert.Equal(t, "stale", s.Token)

	p.Invalidate("acme.my.salesforce.com")

	s, err = p.Get(context.Background(), "acme.my.salesforce.com")
	require.NoError(t, err)
	assert.Equal(t, "fresh", s.Token)
	assert.Equal(t, 2, store.calls)
}

func TestProviderSessionNotFound(t *testing.T) {
	p := NewProvider(&FakeCookieStore{}, nil)
	_, err := p.Get(context.Background(), "acme.my.salesforce.com")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestProviderCookieStoreError(t *testing.T) {
	p := NewProvider(&FakeCookieStore{
		CookiesFunc: func(ctx context.Context, domain string) ([]*http.Cookie, error) {
			return nil, errors.New("permission denied")
		},
	}, nil)
	_, err := p.Get(context.Background(), "acme.my.salesforce.com")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrSessionNotFound))
	assert.Contains(t, err.Error(), "permission denied")
}

func TestKeyringCache(t *testing.T) {
	keyring.MockInit()
	c := NewKeyringCache()

	_, ok := c.Get("acme.my.salesforce.com")
	assert.False(t, ok)

	obtained := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, c.Put("acme.my.salesforce.com", Session{Token: "tok", APIHost: "acme.my.salesforce.com", ObtainedAt: obtained}))

	s, ok := c.Get("acme.my.salesforce.com")
	require.True(t, ok)
	assert.Equal(t, "tok", s.Token)
	assert.True(t, obtained.Equal(s.ObtainedAt))

	require.NoError(t, c.Delete("acme.my.salesforce.com"))
	_, ok = c.Get("acme.my.salesforce.com")
	assert.False(t, ok)

	// Deleting a missing entry is not an error.
	assert.NoError(t, c.Delete("acme.my.salesforce.com"))
}

func TestStaticCookieStore(t *testing.T) {
	cookies, err := StaticCookieStore{SID: "abc"}.Cookies(context.Background(), "acme.my.salesforce.com")
	require.NoError(t, err)
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)

	cookies, err = StaticCookieStore{}.Cookies(context.Background(), "acme.my.salesforce.com")
	require.NoError(t, err)
	assert.Empty(t, cookies)
}

func TestCookieFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.txt")
	content := "# Netscape HTTP Cookie File\n" +
		"#HttpOnly_acme.my.salesforce.com\tFALSE\t/\tTRUE\t0\tsid\tsecret-token\n" +
		".salesforce.com\tTRUE\t/\tTRUE\t0\tBrowserId\tbid\n" +
		"other.example.com\tFALSE\t/\tFALSE\t0\tsid\tnope\n" +
		"malformed line\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cookies, err := CookieFileStore{Path: path}.Cookies(context.Background(), "acme.my.salesforce.com")
	require.NoError(t, err)
	require.Len(t, cookies, 2)
	assert.Equal(t, "sid", cookies[0].Name)
	assert.Equal(t, "secret-token", cookies[0].Value)
	assert.True(t, cookies[0].Secure)
	assert.Equal(t, "BrowserId", cookies[1].Name)

	_, err = CookieFileStore{Path: filepath.Join(t.TempDir(), "missing.txt")}.Cookies(context.Background(), "x")
	assert.Error(t, err)
}

func TestChainCookieStore(t *testing.T) {
	chain := ChainCookieStore{
		&FakeCookieStore{CookiesFunc: func(ctx context.Context, domain string) ([]*http.Cookie, error) {
			return nil, errors.New("no profile")
		}},
		&FakeCookieStore{CookiesFunc: func(ctx context.Context, domain string) ([]*http.Cookie, error) {
			return []*http.Cookie{{Name: "other", Value: "x"}}, nil
		}},
		StaticCookieStore{SID: "from-static"},
	}
	cookies, err := chain.Cookies(context.Background(), "acme.my.salesforce.com")
	require.NoError(t, err)
	require.Len(t, cookies, 1)
	assert.Equal(t, "from-static", cookies[0].Value)

	_, err = ChainCookieStore{&FakeCookieStore{CookiesFunc: func(ctx context.Context, domain string) ([]*http.Cookie, error) {
		return nil, errors.New("no profile")
	}}}.Cookies(context.Background(), "x")
	assert.EqualError(t, err, "no profile")
}

func TestFirefoxCookieStore(t *testing.T) {
	profile := t.TempDir()
	db, err := sql.Open("sqlite", filepath.Join(profile, "cookies.sqlite"))
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE moz_cookies (id INTEGER PRIMARY KEY, host TEXT, name TEXT, value TEXT, path TEXT, isSecure INTEGER)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO moz_cookies (host, name, value, path, isSecure) VALUES
		('acme.my.salesforce.com', 'sid', 'ff-token', '/', 1),
		('.acme.my.salesforce.com', 'inst', 'YA', '/', 0),
		('other.my.salesforce.com', 'sid', 'wrong', '/', 1),
		('.salesforce.com', 'BrowserId', 'parent', '/', 1),
		('evilsalesforce.com', 'evil', 'no', '/', 0)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	cookies, err := FirefoxCookieStore{ProfileDir: profile}.Cookies(context.Background(), "acme.my.salesforce.com")
	require.NoError(t, err)
	require.Len(t, cookies, 3)

	values := map[string]string{}
	for _, c := range cookies {
		values[c.Name] = c.Value
	}
	assert.Equal(t, "ff-token", values["sid"])
	assert.Equal(t, "YA", values["inst"])
	assert.Equal(t, "parent", values["BrowserId"], "parent domain cookies are visible")

	_, err = FirefoxCookieStore{ProfileDir: t.TempDir()}.Cookies(context.Background(), "acme.my.salesforce.com")
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.ErrorContains(t, err, "failed to find Firefox cookie database")
}

func TestCookieStoresAgreeOnDomains(t *testing.T) {
	rows := [][]string{
		{"acme.my.salesforce.com", "sid", "token"},
		{".my.salesforce.com", "inst", "YA"},
		{".salesforce.com", "BrowserId", "parent"},
		{"sub.acme.my.salesforce.com", "child", "c"},
		{"other.my.salesforce.com", "sid", "wrong"},
		{"evilsalesforce.com", "evil", "no"},
	}

	profile := t.TempDir()
	db, err := sql.Open("sqlite", filepath.Join(profile, "cookies.sqlite"))
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE moz_cookies (id INTEGER PRIMARY KEY, host TEXT, name TEXT, value TEXT, path TEXT, isSecure INTEGER)`)
	require.NoError(t, err)
	var txt strings.Builder
	for _, r := range rows {
		_, err = db.Exec(`INSERT INTO moz_cookies (host, name, value, path, isSecure) VALUES (?, ?, ?, '/', 1)`, r[0], r[1], r[2])
		require.NoError(t, err)
		txt.WriteString(strings.Join([]string{r[0], "TRUE", "/", "TRUE", "0", r[1], r[2]}, "\t") + "\n")
	}
	require.NoError(t, db.Close())
	cookieFile := filepath.Join(t.TempDir(), "cookies.txt")
	require.NoError(t, os.WriteFile(cookieFile, []byte(txt.String()), 0600))

	names := func(cookies []*http.Cookie) []string {
		out := make([]string, 0, len(cookies))
		for _, c := range cookies {
			out = append(out, c.Name+"="+c.Value)
		}
		sort.Strings(out)
		return out
	}

	ff, err := FirefoxCookieStore{ProfileDir: profile}.Cookies(context.Background(), "acme.my.salesforce.com")
	require.NoError(t, err)
	file, err := CookieFileStore{Path: cookieFile}.Cookies(context.Background(), "acme.my.salesforce.com")
	require.NoError(t, err)

	assert.Equal(t, []string{"BrowserId=parent", "child=c", "inst=YA", "sid=token"}, names(ff))
	assert.Equal(t, names(file), names(ff))
}

func TestDomainMatches(t *testing.T) {
	assert.True(t, DomainMatches("acme.my.salesforce.com", "acme.my.salesforce.com"))
	assert.True(t, DomainMatches(".salesforce.com", "acme.my.salesforce.com"))
	assert.True(t, DomainMatches("acme.my.salesforce.com", "salesforce.com"))
	assert.False(t, DomainMatches("evilsalesforce.com", "salesforce.com"))
	assert.False(t, DomainMatches("", "salesforce.com"))
}
