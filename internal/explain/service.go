// Package explain turns fetched Salesforce metadata into a plain-language
// explanation, obfuscating field names on the way out and restoring them on
// the way back.
package explain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/kernel/sfexplain/internal/llm"
	"github.com/kernel/sfexplain/internal/obfuscate"
	"github.com/kernel/sfexplain/internal/page"
	"github.com/kernel/sfexplain/internal/prompt"
)

// ErrUnknownComponentType is returned for kinds without a handler.
var ErrUnknownComponentType = errors.New("unknown component type")

// Options control obfuscation.
type Options struct {
	// Obfuscate enables field name replacement before the model sees metadata.
	Obfuscate  bool
	Protection obfuscate.Options
}

// DefaultOptions obfuscates with every protection enabled.
func DefaultOptions() Options {
	return Options{Obfuscate: true, Protection: obfuscate.DefaultOptions()}
}

// Request is one explanation request.
type Request struct {
	Page   page.Context
	Record map[string]any
	// RequestID correlates logs. One is generated when empty.
	RequestID string
}

// Result is a restored explanation.
type Result struct {
	RequestID  string    `json:"request_id"`
	Kind       page.Kind `json:"kind"`
	ResourceID string    `json:"resource_id,omitempty"`
	Title      string    `json:"title"`
	Object     string    `json:"object,omitempty"`
	Text       string    `json:"explanation"`
	Obfuscated bool      `json:"obfuscated"`
	Replaced   int       `json:"replaced_fields"`
}

// built is what a handler produces from a record.
type built struct {
	prompt string
	title  string
	object string
}

type handler struct {
	build  func(rec map[string]any, pc page.Context) (built, error)
	system string
}

// handlers maps every explainable kind to its processing, prompt and system
// prompt.
var handlers = map[page.Kind]handler{
	page.ValidationRule: {
		build: func(rec map[string]any, pc page.Context) (built, error) {
			v, err := prompt.ProcessValidationRule(rec)
			if err != nil {
				return built{}, err
			}
			if v.Object == "" {
				v.Object = pc.ObjectName
			}
			p, err := prompt.ValidationRulePrompt(v)
			return built{prompt: p, title: v.Name, object: v.Object}, err
		},
		system: prompt.ValidationRuleSystem,
	},
	page.Flow: {
		build: func(rec map[string]any, _ page.Context) (built, error) {
			f, err := prompt.SimplifyFlow(rec)
			if err != nil {
				return built{}, err
			}
			p, err := prompt.FlowPrompt(f)
			return built{prompt: p, title: f.FlowName, object: f.Start.Object}, err
		},
		system: prompt.FlowSystem,
	},
	page.ApexClass: {
		build: func(rec map[string]any, _ page.Context) (built, error) {
			a, err := prompt.ProcessApexClass(rec)
			if err != nil {
				return built{}, err
			}
			p, err := prompt.ApexClassPrompt(a)
			return built{prompt: p, title: a.Name}, err
		},
		system: prompt.ApexClassSystem,
	},
	page.FormulaField: {
		build: func(rec map[string]any, pc page.Context) (built, error) {
			f, err := prompt.ProcessFormulaField(rec)
			if err != nil {
				return built{}, err
			}
			if f.Object == "" {
				f.Object = pc.ObjectName
			}
			p, err := prompt.FormulaFieldPrompt(f)
			return built{prompt: p, title: f.Name, object: f.Object}, err
		},
		system: prompt.FormulaFieldSystem,
	},
}

// Service explains metadata records with a language model.
type Service struct {
	completer llm.Completer
	opts      Options
	store     *obfuscate.Store
	log       *zap.Logger
	now       func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithStore shares a mapping store, e.g. with the bridge server.
func WithStore(s *obfuscate.Store) ServiceOption {
	return func(svc *Service) { svc.store = s }
}

// WithLogger attaches a diagnostic logger.
func WithLogger(l *zap.Logger) ServiceOption {
	return func(svc *Service) { svc.log = l }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(svc *Service) { svc.now = now }
}

// NewService creates a Service.
func NewService(c llm.Completer, opts Options, sopts ...ServiceOption) *Service {
	s := &Service{
		completer: c,
		opts:      opts,
		store:     obfuscate.NewStore(),
		log:       zap.NewNop(),
		now:       time.Now,
	}
	for _, o := range sopts {
		o(s)
	}
	return s
}

// Prepared is a rendered prompt plus the mapping needed to restore the answer.
type Prepared struct {
	Record  map[string]any     `json:"record"`
	Prompt  string             `json:"prompt"`
	System  string             `json:"system_prompt"`
	Title   string             `json:"title"`
	Object  string             `json:"object,omitempty"`
	Mapping *obfuscate.Mapping `json:"mapping,omitempty"`
}

// Prepare obfuscates the record when enabled and renders the prompt without
// calling the model. Mapping is nil when obfuscation is off.
func (s *Service) Prepare(req Request) (Prepared, error) {
	h, ok := handlers[req.Page.Kind]
	if !ok {
		return Prepared{}, fmt.Errorf("%w: %s", ErrUnknownComponentType, req.Page.Kind)
	}

	out := Prepared{Record: req.Record, System: h.system}
	if s.opts.Obfuscate {
		res, err := obfuscate.New(s.opts.Protection).Obfuscate(req.Record)
		if err != nil {
			return Prepared{}, fmt.Errorf("failed to obfuscate %s: %w", req.Page.Kind, err)
		}
		out.Record, _ = res.Metadata.(map[string]any)
		out.Mapping = res.Mapping
	}

	b, err := h.build(out.Record, req.Page)
	if err != nil {
		return Prepared{}, fmt.Errorf("failed to build prompt: %w", err)
	}
	out.Prompt, out.Title, out.Object = b.prompt, b.title, b.object
	return out, nil
}

// Explain runs obfuscation, prompt rendering, the model call and restoration
// for one record.
func (s *Service) Explain(ctx context.Context, req Request) (Result, error) {
	if req.RequestID == "" {
		req.RequestID = ulid.Make().String()
	}
	fail := func(stage Stage, err error) (Result, error) {
		return Result{}, &Error{Stage: stage, Kind: req.Page.Kind, RequestID: req.RequestID, Err: err}
	}

	prep, err := s.Prepare(req)
	if err != nil {
		return fail(StagePrepare, err)
	}

	key := mappingKey(req)
	if prep.Mapping != nil {
		s.store.Put(key, prep.Mapping)
	}

	s.log.Debug("requesting explanation",
		zap.String("request_id", req.RequestID),
		zap.String("kind", req.Page.Kind.Slug()),
		zap.Int("replaced_fields", prep.Mapping.Len()),
		zap.Int("pending_mappings", s.store.Len()))

	text, err := s.completer.Complete(ctx, prep.System, prep.Prompt)
	if err != nil {
		s.store.Take(key)
		return fail(StageComplete, err)
	}

	out := Result{
		RequestID:  req.RequestID,
		Kind:       req.Page.Kind,
		ResourceID: req.Page.ResourceID,
		Title:      prep.Title,
		Object:     prep.Object,
		Text:       text,
		Obfuscated: prep.Mapping != nil,
	}
	if mapping, ok := s.store.Take(key); ok {
		out.Text = obfuscate.Restore(text, mapping)
		out.Replaced = mapping.Len()
	}
	return out, nil
}

// mappingKey is unique per request, so concurrent explanations of the same
// resource never share or consume each other's mapping.
func mappingKey(req Request) string {
	if req.Page.ResourceID == "" {
		return req.RequestID
	}
	return req.Page.ResourceID + "/" + req.RequestID
}
