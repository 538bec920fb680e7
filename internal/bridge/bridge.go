// Package bridge answers structured requests from the browser extension:
// page checks, session lookups and explanations.
package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/kernel/sfexplain/internal/explain"
	"github.com/kernel/sfexplain/internal/page"
	"github.com/kernel/sfexplain/internal/session"
)

// Action names a request type.
type Action string

const (
	ActionCheckValidationRule Action = "checkValidationRulePage"
	ActionCheckFlow           Action = "checkFlowPage"
	ActionCheckApexClass      Action = "checkApexClassPage"
	ActionCheckFormulaField   Action = "checkFormulaFieldPage"
	ActionGetSession          Action = "getSession"
	ActionExplain             Action = "explainPage"
)

// checks maps each page check to the kind it looks for.
var checks = map[Action]page.Kind{
	ActionCheckValidationRule: page.ValidationRule,
	ActionCheckFlow:           page.Flow,
	ActionCheckApexClass:      page.ApexClass,
	ActionCheckFormulaField:   page.FormulaField,
}

// ErrUnknownAction is returned for actions the dispatcher does not handle.
var ErrUnknownAction = errors.New("unknown action")

// Request is a single message from the extension.
type Request struct {
	ID     string `json:"id"`
	Action Action `json:"action"`
	URL    string `json:"url,omitempty"`
	Host   string `json:"host,omitempty"`
}

// PageCheck answers a check action.
type PageCheck struct {
	Match bool `json:"match"`
	page.Context
}

// SessionInfo answers getSession.
type SessionInfo struct {
	Host  string `json:"host"`
	Token string `json:"token"`
}

// Response is the single reply to a Request.
type Response struct {
	ID      string           `json:"id"`
	Page    *PageCheck       `json:"page,omitempty"`
	Session *SessionInfo     `json:"session,omitempty"`
	Result  *explain.Result  `json:"result,omitempty"`
	Failure *explain.Failure `json:"failure,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// Handler answers requests.
type Handler interface {
	Handle(ctx context.Context, req Request) Response
}

// SessionSource returns sessions by hostname. *session.Provider implements it.
type SessionSource interface {
	Get(ctx context.Context, hostname string) (session.Session, error)
}

// Runner runs the explanation chain. *explain.Pipeline implements it.
type Runner interface {
	Run(ctx context.Context, rawURL string) (explain.Outcome, error)
}

// Describer turns errors into user-facing failures. *explain.Service implements it.
type Describer interface {
	Describe(err error, kind page.Kind) explain.Failure
}

// Dispatcher routes requests by action.
type Dispatcher struct {
	sessions SessionSource
	runner   Runner
	describe Describer
	log      *zap.Logger
}

// NewDispatcher creates a Dispatcher. runner and describe may be nil, in which
// case explainPage is rejected.
func NewDispatcher(sessions SessionSource, runner Runner, describe Describer, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{sessions: sessions, runner: runner, describe: describe, log: log}
}

// Handle answers req. Failures are reported in the response, never dropped.
func (d *Dispatcher) Handle(ctx context.Context, req Request) Response {
	if req.ID == "" {
		req.ID = ulid.Make().String()
	}
	resp := Response{ID: req.ID}
	log := d.log.With(zap.String("request_id", req.ID), zap.String("action", string(req.Action)))

	if kind, ok := checks[req.Action]; ok {
		pc, _ := explain.Classify(req.URL)
		resp.Page = &PageCheck{Match: pc.Kind == kind, Context: pc}
		return resp
	}

	switch req.Action {
	case ActionGetSession:
		if req.Host == "" {
			resp.Error = "host is required"
			return resp
		}
		sess, err := d.sessions.Get(ctx, req.Host)
		if err != nil {
			log.Warn("session lookup failed", zap.String("host", req.Host), zap.Error(err))
			resp.Error = err.Error()
			return resp
		}
		resp.Session = &SessionInfo{Host: sess.APIHost, Token: sess.Token}
	case ActionExplain:
		if d.runner == nil || d.describe == nil {
			resp.Error = fmt.Sprintf("%s: %s is not enabled", ErrUnknownAction, req.Action)
			return resp
		}
		out, err := d.runner.Run(ctx, req.URL)
		if err != nil {
			f := d.describe.Describe(err, out.Page.Kind)
			resp.Failure = &f
			resp.Error = f.Message
			return resp
		}
		resp.Page = &PageCheck{Match: out.Applicable(), Context: out.Page}
		resp.Result = out.Result
	default:
		log.Debug("rejecting request")
		resp.Error = fmt.Sprintf("%s: %q", ErrUnknownAction, req.Action)
	}
	return resp
}
