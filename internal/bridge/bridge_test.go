package bridge

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kernel/sfexplain/internal/explain"
	"github.com/kernel/sfexplain/internal/page"
	"github.com/kernel/sfexplain/internal/session"
)

const vrURL = "https://acme.lightning.force.com/lightning/setup/ObjectManager/Opportunity/ValidationRules/03d0X0000009Lom/view"

type FakeSessions struct {
	GetFunc func(ctx context.Context, hostname string) (session.Session, error)
}

func (f *FakeSessions) Get(ctx context.Context, hostname string) (session.Session, error) {
	return f.GetFunc(ctx, hostname)
}

type FakeRunner struct {
	RunFunc func(ctx context.Context, rawURL string) (explain.Outcome, error)
}

func (f *FakeRunner) Run(ctx context.Context, rawURL string) (explain.Outcome, error) {
	return f.RunFunc(ctx, rawURL)
}

type FakeDescriber struct{}

func (FakeDescriber) Describe(err error, kind page.Kind) explain.Failure {
	return explain.Failure{Message: "Unable to explain " + kind.String() + ".", Detail: err.Error(), Kind: kind}
}

func newDispatcher() *Dispatcher {
	sessions := &FakeSessions{GetFunc: func(_ context.Context, hostname string) (session.Session, error) {
		if hostname == "nocookie.my.salesforce.com" {
			return session.Session{}, session.ErrSessionNotFound
		}
		return session.Session{Token: "00D!token", APIHost: session.NormalizeHost(hostname)}, nil
	}}
	runner := &FakeRunner{RunFunc: func(_ context.Context, rawURL string) (explain.Outcome, error) {
		pc, host := explain.Classify(rawURL)
		if strings.Contains(rawURL, "broken") {
			return explain.Outcome{Page: pc, Host: host}, errors.New("upstream exploded")
		}
		return explain.Outcome{Page: pc, Host: host, Result: &explain.Result{Kind: pc.Kind, Text: "explained"}}, nil
	}}
	return NewDispatcher(sessions, runner, FakeDescriber{}, nil)
}

func TestDispatcherChecks(t *testing.T) {
	d := newDispatcher()
	ctx := context.Background()

	resp := d.Handle(ctx, Request{ID: "1", Action: ActionCheckValidationRule, URL: vrURL})
	assert.Equal(t, "1", resp.ID)
	require.NotNil(t, resp.Page)
	assert.True(t, resp.Page.Match)
	assert.Equal(t, page.ValidationRule, resp.Page.Kind)
	assert.Equal(t, "03d0X0000009Lom", resp.Page.ResourceID)

	resp = d.Handle(ctx, Request{ID: "2", Action: ActionCheckFlow, URL: vrURL})
	require.NotNil(t, resp.Page)
	assert.False(t, resp.Page.Match)
	assert.Empty(t, resp.Error)

	resp = d.Handle(ctx, Request{Action: ActionCheckApexClass, URL: "https://example.com/01p000000000001AAA"})
	require.NotNil(t, resp.Page)
	assert.False(t, resp.Page.Match, "non-Salesforce hosts never match")
	assert.NotEmpty(t, resp.ID, "missing ids are generated")
}

func TestDispatcherGetSession(t *testing.T) {
	d := newDispatcher()
	ctx := context.Background()

	resp := d.Handle(ctx, Request{ID: "s", Action: ActionGetSession, Host: "acme--dev.lightning.force.com"})
	require.NotNil(t, resp.Session)
	assert.Equal(t, "00D!token", resp.Session.Token)
	assert.Equal(t, "acme--dev.sandbox.my.salesforce-setup.com", resp.Session.Host)

	resp = d.Handle(ctx, Request{ID: "s2", Action: ActionGetSession, Host: "nocookie.my.salesforce.com"})
	assert.Nil(t, resp.Session)
	assert.Equal(t, session.ErrSessionNotFound.Error(), resp.Error)

	resp = d.Handle(ctx, Request{ID: "s3", Action: ActionGetSession})
	assert.Equal(t, "host is required", resp.Error)
}

func TestDispatcherExplain(t *testing.T) {
	d := newDispatcher()
	ctx := context.Background()

	resp := d.Handle(ctx, Request{ID: "e", Action: ActionExplain, URL: vrURL})
	require.NotNil(t, resp.Result)
	assert.Equal(t, "explained", resp.Result.Text)
	assert.True(t, resp.Page.Match)

	resp = d.Handle(ctx, Request{ID: "e2", Action: ActionExplain, URL: vrURL + "?broken"})
	assert.Nil(t, resp.Result)
	require.NotNil(t, resp.Failure)
	assert.Equal(t, "Unable to explain validation rule.", resp.Error)
	assert.Equal(t, "upstream exploded", resp.Failure.Detail)

	disabled := NewDispatcher(&FakeSessions{}, nil, nil, nil)
	resp = disabled.Handle(ctx, Request{ID: "e3", Action: ActionExplain, URL: vrURL})
	assert.Contains(t, resp.Error, "not enabled")
}

func TestDispatcherUnknownAction(t *testing.T) {
	resp := newDispatcher().Handle(context.Background(), Request{ID: "x", Action: "launchRockets"})
	assert.Contains(t, resp.Error, ErrUnknownAction.Error())
	assert.Contains(t, resp.Error, "launchRockets")
}

func TestChannelRoundTrip(t *testing.T) {
	ch := NewChannel(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	served := make(chan error, 1)
	go func() { served <- ch.Serve(ctx, newDispatcher()) }()

	var wg sync.WaitGroup
	for i, action := range []Action{ActionCheckValidationRule, ActionCheckFlow, ActionGetSession} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := string(rune('a' + i))
			resp, err := ch.Send(ctx, Request{ID: id, Action: action, URL: vrURL, Host: "acme.my.salesforce.com"})
			assert.NoError(t, err)
			assert.Equal(t, id, resp.ID, "each request gets its own reply")
		}()
	}
	wg.Wait()

	ch.Close()
	require.NoError(t, <-served)
	_, err := ch.Send(ctx, Request{Action: ActionCheckFlow})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestChannelSendHonoursContext(t *testing.T) {
	ch := NewChannel(0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := ch.Send(ctx, Request{Action: ActionCheckFlow})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAllowOrigin(t *testing.T) {
	assert.True(t, AllowOrigin("", nil))
	assert.True(t, AllowOrigin("chrome-extension://abcdef", nil))
	assert.True(t, AllowOrigin("moz-extension://1234", nil))
	assert.False(t, AllowOrigin("https://evil.example.com", nil))
	assert.True(t, AllowOrigin("http://localhost:3000", []string{"http://localhost:3000"}))
}

func dial(t *testing.T, srv *httptest.Server, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	return websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
}

func TestServerWebsocket(t *testing.T) {
	srv := httptest.NewServer(NewServer(newDispatcher()))
	defer srv.Close()

	conn, _, err := dial(t, srv, "chrome-extension://abcdef")
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(Request{ID: "ws1", Action: ActionCheckValidationRule, URL: vrURL}))
	var resp Response
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, "ws1", resp.ID)
	require.NotNil(t, resp.Page)
	assert.True(t, resp.Page.Match)
	assert.Equal(t, "03d0X0000009Lom", resp.Page.ResourceID)
}

func TestServerRejectsWebOrigins(t *testing.T) {
	srv := httptest.NewServer(NewServer(newDispatcher()))
	defer srv.Close()

	_, resp, err := dial(t, srv, "https://evil.example.com")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestListenAndServeRequiresLoopback(t *testing.T) {
	err := NewServer(newDispatcher()).ListenAndServe(context.Background(), "0.0.0.0:0")
	assert.ErrorContains(t, err, "non-loopback")

	err = NewServer(newDispatcher()).ListenAndServe(context.Background(), "nonsense")
	assert.ErrorContains(t, err, "invalid listen address")
}
