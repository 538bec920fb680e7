package cmd

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/pterm/pterm"

	"github.com/kernel/sfexplain/internal/explain"
	"github.com/kernel/sfexplain/internal/page"
	"github.com/kernel/sfexplain/internal/salesforce"
	"github.com/kernel/sfexplain/internal/session"
)

var outBuf bytes.Buffer

// setupStdoutCapture redirects pterm output into outBuf for the test.
func setupStdoutCapture(t *testing.T) {
	t.Helper()
	outBuf.Reset()
	pterm.SetDefaultOutput(&outBuf)
	pterm.DisableStyling()
	// The prefix printers keep the writer they were created with, so
	// SetDefaultOutput alone does not redirect them.
	errW, warnW, infoW, succW := pterm.Error.Writer, pterm.Warning.Writer, pterm.Info.Writer, pterm.Success.Writer
	pterm.Error.Writer, pterm.Warning.Writer, pterm.Info.Writer, pterm.Success.Writer = &outBuf, &outBuf, &outBuf, &outBuf
	t.Cleanup(func() {
		pterm.SetDefaultOutput(os.Stdout)
		pterm.EnableStyling()
		pterm.Error.Writer, pterm.Warning.Writer, pterm.Info.Writer, pterm.Success.Writer = errW, warnW, infoW, succW
	})
}

const vrURL = "https://acme.lightning.force.com/lightning/setup/ObjectManager/Opportunity/ValidationRules/03d0X0000009Lom/view"

type FakeRunner struct {
	RunFunc func(ctx context.Context, rawURL string) (explain.Outcome, error)
}

func (f *FakeRunner) Run(ctx context.Context, rawURL string) (explain.Outcome, error) {
	if f.RunFunc != nil {
		return f.RunFunc(ctx, rawURL)
	}
	pc, host := explain.Classify(rawURL)
	return explain.Outcome{Page: pc, Host: host}, nil
}

type FakeExplainService struct {
	ExplainFunc  func(ctx context.Context, req explain.Request) (explain.Result, error)
	PrepareFunc  func(req explain.Request) (explain.Prepared, error)
	DescribeFunc func(err error, kind page.Kind) explain.Failure
}

func (f *FakeExplainService) Explain(ctx context.Context, req explain.Request) (explain.Result, error) {
	if f.ExplainFunc != nil {
		return f.ExplainFunc(ctx, req)
	}
	return explain.Result{Kind: req.Page.Kind, ResourceID: req.Page.ResourceID, Text: "explained"}, nil
}

func (f *FakeExplainService) Prepare(req explain.Request) (explain.Prepared, error) {
	if f.PrepareFunc != nil {
		return f.PrepareFunc(req)
	}
	return explain.Prepared{Record: req.Record}, nil
}

func (f *FakeExplainService) Describe(err error, kind page.Kind) explain.Failure {
	if f.DescribeFunc != nil {
		return f.DescribeFunc(err, kind)
	}
	return explain.Failure{Message: "Unable to explain " + kind.String() + ".", Detail: err.Error(), Kind: kind}
}

type FakeRecordFetcher struct {
	FetchFunc func(ctx context.Context, rawURL string) (page.Context, salesforce.Record, error)
}

func (f *FakeRecordFetcher) Fetch(ctx context.Context, rawURL string) (page.Context, salesforce.Record, error) {
	return f.FetchFunc(ctx, rawURL)
}

type FakeSessionManager struct {
	GetFunc     func(ctx context.Context, hostname string) (session.Session, error)
	invalidated []string
}

func (f *FakeSessionManager) Get(ctx context.Context, hostname string) (session.Session, error) {
	if f.GetFunc != nil {
		return f.GetFunc(ctx, hostname)
	}
	return session.Session{}, session.ErrSessionNotFound
}

func (f *FakeSessionManager) Invalidate(hostname string) {
	f.invalidated = append(f.invalidated, hostname)
}

type FakeBridgeServer struct {
	ListenAndServeFunc func(ctx context.Context, addr string) error
}

func (f *FakeBridgeServer) ListenAndServe(ctx context.Context, addr string) error {
	return f.ListenAndServeFunc(ctx, addr)
}

func validationRuleRecord() salesforce.Record {
	return salesforce.Record{
		"Id":             "03d0X0000009Lom",
		"ValidationName": "Amount_Limit",
		"ErrorMessage":   "Amount too large",
		"EntityDefinition": map[string]any{
			"QualifiedApiName": "Opportunity",
		},
		"Metadata": map[string]any{
			"errorConditionFormula": "Amount__c > 1000",
		},
	}
}
