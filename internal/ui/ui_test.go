package ui

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kernel/sfexplain/internal/explain"
	"github.com/kernel/sfexplain/internal/page"
)

type FakeView struct {
	events  []string
	failure explain.Failure
	result  explain.Result
}

func (f *FakeView) Loading(message string) { f.events = append(f.events, "loading:"+message) }

func (f *FakeView) NotApplicable(pc page.Context, host string) {
	f.events = append(f.events, "not_applicable:"+host)
}

func (f *FakeView) Error(fl explain.Failure) {
	f.failure = fl
	f.events = append(f.events, "error")
}

func (f *FakeView) Result(res explain.Result) error {
	f.result = res
	f.events = append(f.events, "result")
	return nil
}

type FakeDescriber struct {
	kinds []page.Kind
}

func (f *FakeDescriber) Describe(err error, kind page.Kind) explain.Failure {
	f.kinds = append(f.kinds, kind)
	return explain.Failure{Message: "described: " + err.Error(), Kind: kind}
}

var sampleResult = explain.Result{
	RequestID:  "01HZX",
	Kind:       page.ValidationRule,
	ResourceID: "03d0X0000009Lom",
	Title:      "Amount_Limit",
	Object:     "Opportunity",
	Text:       "- **Amount__c** must be positive\n",
	Obfuscated: true,
	Replaced:   1,
}

func TestPresenterResult(t *testing.T) {
	v := &FakeView{}
	p := NewPresenter(v, &FakeDescriber{})
	assert.Equal(t, Idle, p.State())

	p.Start(page.ValidationRule, "Explaining...")
	assert.Equal(t, Loading, p.State())

	res := sampleResult
	err := p.Finish(explain.Outcome{Page: page.Context{Kind: page.ValidationRule}, Result: &res}, nil)
	require.NoError(t, err)
	assert.Equal(t, Done, p.State())
	assert.Equal(t, []string{"loading:Explaining...", "result"}, v.events)
	assert.Equal(t, sampleResult, v.result)
}

func TestPresenterNotApplicable(t *testing.T) {
	v := &FakeView{}
	p := NewPresenter(v, &FakeDescriber{})
	p.Start(page.None, "")
	require.NoError(t, p.Finish(explain.Outcome{Host: "example.com"}, nil))
	assert.Equal(t, NotApplicable, p.State())
	assert.Equal(t, []string{"loading:", "not_applicable:example.com"}, v.events)
}

func TestPresenterError(t *testing.T) {
	v := &FakeView{}
	d := &FakeDescriber{}
	p := NewPresenter(v, d)
	p.Start(page.Flow, "")

	boom := errors.New("boom")
	err := p.Finish(explain.Outcome{}, boom)
	assert.Same(t, boom, err)
	assert.Equal(t, Failed, p.State())
	assert.Equal(t, "described: boom", v.failure.Message)
	assert.Equal(t, []page.Kind{page.Flow}, d.kinds, "falls back to the kind given at start")
}

func TestPresenterRejectsFinishOutsideLoading(t *testing.T) {
	p := NewPresenter(&FakeView{}, &FakeDescriber{})
	assert.ErrorIs(t, p.Finish(explain.Outcome{}, nil), ErrInvalidTransition)

	p.Start(page.Flow, "")
	require.NoError(t, p.Finish(explain.Outcome{}, nil))
	assert.ErrorIs(t, p.Finish(explain.Outcome{}, nil), ErrInvalidTransition)
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatText, "md": FormatMarkdown, "HTML": FormatHTML, "json": FormatJSON, "text": FormatText} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("pdf")
	assert.ErrorContains(t, err, "text, markdown, html, json")
}

func TestRender(t *testing.T) {
	assert.Equal(t, "Amount_Limit (validation rule on Opportunity)", Heading(sampleResult))
	assert.Equal(t, "03d (flow)", Heading(explain.Result{ResourceID: "03d", Kind: page.Flow}))

	md, err := Render(sampleResult, FormatMarkdown)
	require.NoError(t, err)
	assert.Equal(t, "# Amount_Limit (validation rule on Opportunity)\n\n- **Amount__c** must be positive\n", md)

	html, err := Render(sampleResult, FormatHTML)
	require.NoError(t, err)
	assert.Contains(t, html, "<h1>Amount_Limit (validation rule on Opportunity)</h1>")
	assert.Contains(t, html, "<li><strong>Amount__c</strong> must be positive</li>")

	js, err := Render(sampleResult, FormatJSON)
	require.NoError(t, err)
	assert.Contains(t, js, `"kind": "validation_rule"`)
	assert.Contains(t, js, `"explanation": "- **Amount__c** must be positive\n"`)

	text, err := Render(sampleResult, FormatText)
	require.NoError(t, err)
	assert.Equal(t, "- **Amount__c** must be positive\n", text)
}

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	pterm.SetDefaultOutput(&buf)
	pterm.DisableStyling()
	// The prefix printers keep the writer they were created with, so
	// SetDefaultOutput alone does not redirect them.
	errW, warnW, infoW, succW := pterm.Error.Writer, pterm.Warning.Writer, pterm.Info.Writer, pterm.Success.Writer
	pterm.Error.Writer, pterm.Warning.Writer, pterm.Info.Writer, pterm.Success.Writer = &buf, &buf, &buf, &buf
	t.Cleanup(func() {
		pterm.SetDefaultOutput(os.Stdout)
		pterm.EnableStyling()
		pterm.Error.Writer, pterm.Warning.Writer, pterm.Info.Writer, pterm.Success.Writer = errW, warnW, infoW, succW
	})
	return &buf
}

func TestTerminalView(t *testing.T) {
	buf := captureOutput(t)
	term := NewTerminal(FormatText, false)

	term.Loading("Explaining...")
	require.NoError(t, term.Result(sampleResult))
	out := buf.String()
	assert.Contains(t, out, "Amount_Limit (validation rule on Opportunity)")
	assert.Contains(t, out, "1 field names were hidden from the model and restored")
	assert.Contains(t, out, "- **Amount__c** must be positive")

	buf.Reset()
	term.Error(explain.Failure{Message: "Unable to explain flow.", Hint: "Refresh the page.", RequestID: "01HZX"})
	assert.Contains(t, buf.String(), "Unable to explain flow.")
	assert.Contains(t, buf.String(), "Refresh the page.")
	assert.Contains(t, buf.String(), "request 01HZX")

	buf.Reset()
	term.NotApplicable(page.Context{}, "example.com")
	assert.Contains(t, buf.String(), "example.com is not a Salesforce domain.")

	buf.Reset()
	term.NotApplicable(page.Context{}, "acme.my.salesforce.com")
	assert.Contains(t, buf.String(), "not a validation rule, flow, Apex class or formula field")
}

func TestTerminalViewJSON(t *testing.T) {
	buf := captureOutput(t)
	term := NewTerminal(FormatJSON, true)
	assert.False(t, term.spin)

	term.NotApplicable(page.Context{}, "example.com")
	assert.Contains(t, buf.String(), `"applicable": false`)

	buf.Reset()
	term.Error(explain.Failure{Message: "nope"})
	assert.Contains(t, buf.String(), `"message": "nope"`)
}
