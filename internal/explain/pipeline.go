package explain

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/kernel/sfexplain/internal/page"
	"github.com/kernel/sfexplain/internal/salesforce"
	"github.com/kernel/sfexplain/internal/session"
)

// SessionSource returns a session for a Salesforce hostname.
type SessionSource interface {
	Get(ctx context.Context, hostname string) (session.Session, error)
}

// Fetcher retrieves metadata records. *salesforce.Client implements it.
type Fetcher interface {
	ValidationRule(ctx context.Context, sess session.Session, id string) (salesforce.Record, error)
	Flow(ctx context.Context, sess session.Session, id string) (salesforce.Record, error)
	ApexClass(ctx context.Context, sess session.Session, id string) (salesforce.Record, error)
	FormulaField(ctx context.Context, sess session.Session, id string) (salesforce.Record, error)
}

type fetchFunc func(ctx context.Context, sess session.Session, id string) (salesforce.Record, error)

// Explainer is satisfied by *Service.
type Explainer interface {
	Explain(ctx context.Context, req Request) (Result, error)
}

// Outcome is the result of running the chain for one URL. Result is nil when
// the page is not something that can be explained.
type Outcome struct {
	Page   page.Context `json:"page"`
	Host   string       `json:"host,omitempty"`
	Result *Result      `json:"result,omitempty"`
}

// Applicable reports whether the URL pointed at an explainable page.
func (o Outcome) Applicable() bool {
	return o.Page.Supported()
}

// Pipeline chains classification, session lookup, metadata fetch and
// explanation. Any failure stops the chain; nothing is retried.
type Pipeline struct {
	sessions  SessionSource
	explainer Explainer
	fetchers  map[page.Kind]fetchFunc
}

// NewPipeline wires the collaborators of the chain.
func NewPipeline(sessions SessionSource, fetcher Fetcher, explainer Explainer) *Pipeline {
	return &Pipeline{
		sessions:  sessions,
		explainer: explainer,
		fetchers: map[page.Kind]fetchFunc{
			page.ValidationRule: fetcher.ValidationRule,
			page.Flow:           fetcher.Flow,
			page.ApexClass:      fetcher.ApexClass,
			page.FormulaField:   fetcher.FormulaField,
		},
	}
}

// Classify parses rawURL and classifies it when the host is a Salesforce
// domain. Other hosts yield a page of kind None.
func Classify(rawURL string) (page.Context, string) {
	host := hostOf(rawURL)
	if host != "" && !page.IsSalesforceHost(host) {
		return page.Context{}, host
	}
	return page.Classify(rawURL), host
}

// Fetch classifies rawURL and retrieves the metadata record behind it.
func (p *Pipeline) Fetch(ctx context.Context, rawURL string) (page.Context, salesforce.Record, error) {
	pc, host := Classify(rawURL)
	if !pc.Supported() {
		return pc, nil, nil
	}
	rec, err := p.fetch(ctx, pc, host, "")
	return pc, rec, err
}

// Run executes the full chain for rawURL.
func (p *Pipeline) Run(ctx context.Context, rawURL string) (Outcome, error) {
	pc, host := Classify(rawURL)
	out := Outcome{Page: pc, Host: host}
	if !pc.Supported() {
		return out, nil
	}

	requestID := ulid.Make().String()
	rec, err := p.fetch(ctx, pc, host, requestID)
	if err != nil {
		return out, err
	}

	res, err := p.explainer.Explain(ctx, Request{Page: pc, Record: rec, RequestID: requestID})
	if err != nil {
		return out, err
	}
	out.Result = &res
	return out, nil
}

func (p *Pipeline) fetch(ctx context.Context, pc page.Context, host, requestID string) (salesforce.Record, error) {
	fail := func(stage Stage, err error) error {
		return &Error{Stage: stage, Kind: pc.Kind, RequestID: requestID, Err: err}
	}

	fetch, ok := p.fetchers[pc.Kind]
	if !ok {
		return nil, fail(StageFetch, fmt.Errorf("%w: %s", ErrUnknownComponentType, pc.Kind))
	}
	if host == "" {
		return nil, fail(StageSession, fmt.Errorf("no host in URL: %w", session.ErrSessionNotFound))
	}

	sess, err := p.sessions.Get(ctx, host)
	if err != nil {
		return nil, fail(StageSession, err)
	}
	rec, err := fetch(ctx, sess, pc.ResourceID)
	if err != nil {
		return nil, fail(StageFetch, err)
	}
	return rec, nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return u.Hostname()
}
