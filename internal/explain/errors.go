package explain

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kernel/sfexplain/internal/llm"
	"github.com/kernel/sfexplain/internal/page"
	"github.com/kernel/sfexplain/internal/salesforce"
	"github.com/kernel/sfexplain/internal/session"
)

// Stage names the step of the chain that failed.
type Stage string

const (
	StageSession  Stage = "session"
	StageFetch    Stage = "fetch"
	StagePrepare  Stage = "prepare"
	StageComplete Stage = "complete"
)

// Error records where in the chain a request failed.
type Error struct {
	Stage     Stage
	Kind      page.Kind
	RequestID string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Failure is the user-facing rendition of an error.
type Failure struct {
	Message   string    `json:"message"`
	Hint      string    `json:"hint,omitempty"`
	Detail    string    `json:"detail"`
	Kind      page.Kind `json:"kind"`
	RequestID string    `json:"request_id,omitempty"`
	Time      time.Time `json:"timestamp"`
}

// FromModel reports whether err came from the language model service.
func FromModel(err error) bool {
	var llmErr *llm.Error
	return errors.As(err, &llmErr) || errors.Is(err, llm.ErrNoAPIKey)
}

// Describe converts err into a short message for the user and logs the full
// detail.
func (s *Service) Describe(err error, kind page.Kind) Failure {
	f := Failure{
		Detail: err.Error(),
		Kind:   kind,
		Time:   s.now().UTC(),
	}
	var e *Error
	if errors.As(err, &e) {
		f.RequestID = e.RequestID
		if kind == page.None {
			f.Kind = e.Kind
		}
	}

	if FromModel(err) {
		f.Message = fmt.Sprintf("Unable to explain %s. There was an issue with the AI service.", f.Kind)
	} else {
		f.Message = fmt.Sprintf("Unable to explain %s. Please check your connection and try again.", f.Kind)
	}
	f.Hint = hint(err)

	s.log.Error("explanation failed",
		zap.String("message", f.Detail),
		zap.String("kind", f.Kind.Slug()),
		zap.Time("timestamp", f.Time),
		zap.String("request_id", f.RequestID),
		zap.Error(err))
	return f
}

func hint(err error) string {
	var netErr *salesforce.NetworkError
	var apiErr *salesforce.APIError
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return "No Salesforce session cookie was found. Log in to the org in your browser, or pass --sid."
	case errors.Is(err, salesforce.ErrAuthenticationExpired):
		return "Your Salesforce session expired. Refresh the Salesforce page and try again."
	case errors.Is(err, llm.ErrNoAPIKey):
		return "Set an API key with `sfexplain config set-key` or the OPENAI_API_KEY environment variable."
	case errors.Is(err, salesforce.ErrInvalidID):
		return "The page URL does not contain a record id. Open the record's detail page and try again."
	case errors.Is(err, salesforce.ErrNotFound):
		return "The record was not found. It may have been deleted or you may lack access to it."
	case errors.As(err, &netErr):
		return netErr.Error()
	case errors.As(err, &apiErr):
		return fmt.Sprintf("Salesforce answered with HTTP %d.", apiErr.Status)
	case errors.Is(err, ErrUnknownComponentType):
		return "This kind of page cannot be explained."
	}
	return ""
}
