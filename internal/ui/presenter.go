// Package ui drives what the user sees while an explanation is produced.
package ui

import (
	"errors"
	"fmt"

	"github.com/kernel/sfexplain/internal/explain"
	"github.com/kernel/sfexplain/internal/page"
)

// State is the presenter state.
type State int

const (
	Idle State = iota
	Loading
	NotApplicable
	Failed
	Done
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case NotApplicable:
		return "not_applicable"
	case Failed:
		return "error"
	case Done:
		return "result"
	default:
		return "idle"
	}
}

// ErrInvalidTransition is returned when Finish is called outside Loading.
var ErrInvalidTransition = errors.New("invalid state transition")

// View renders presenter states.
type View interface {
	Loading(message string)
	NotApplicable(pc page.Context, host string)
	Error(f explain.Failure)
	Result(res explain.Result) error
}

// Describer turns errors into user-facing failures. *explain.Service
// implements it.
type Describer interface {
	Describe(err error, kind page.Kind) explain.Failure
}

// Presenter moves Idle to Loading and Loading to exactly one of
// NotApplicable, Failed or Done.
type Presenter struct {
	view     View
	describe Describer
	state    State
	kind     page.Kind
}

// NewPresenter creates a Presenter in the Idle state.
func NewPresenter(v View, d Describer) *Presenter {
	return &Presenter{view: v, describe: d}
}

// State returns the current state.
func (p *Presenter) State() State {
	return p.state
}

// Start enters Loading. kind may be None when it is not known yet.
func (p *Presenter) Start(kind page.Kind, message string) {
	p.state = Loading
	p.kind = kind
	p.view.Loading(message)
}

// Finish leaves Loading based on the pipeline outcome. The returned error is
// the one to exit with: err itself for failures, nil otherwise.
func (p *Presenter) Finish(out explain.Outcome, err error) error {
	if p.state != Loading {
		return fmt.Errorf("%w: finish from %s", ErrInvalidTransition, p.state)
	}
	kind := out.Page.Kind
	if kind == page.None {
		kind = p.kind
	}

	switch {
	case err != nil:
		p.state = Failed
		p.view.Error(p.describe.Describe(err, kind))
		return err
	case !out.Applicable() || out.Result == nil:
		p.state = NotApplicable
		p.view.NotApplicable(out.Page, out.Host)
		return nil
	default:
		p.state = Done
		return p.view.Result(*out.Result)
	}
}
