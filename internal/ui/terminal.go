package ui

import (
	"encoding/json"

	"github.com/charmbracelet/lipgloss/v2"
	"github.com/pterm/pterm"

	"github.com/kernel/sfexplain/internal/explain"
	"github.com/kernel/sfexplain/internal/page"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00A1E0"))
	metaStyle    = lipgloss.NewStyle().Faint(true)
)

// Terminal is the pterm based View.
type Terminal struct {
	format  Format
	spin    bool
	spinner *pterm.SpinnerPrinter
}

// NewTerminal creates a Terminal. spin enables the loading spinner, which
// should only be used when stdout is interactive.
func NewTerminal(format Format, spin bool) *Terminal {
	return &Terminal{format: format, spin: spin && format != FormatJSON}
}

func (t *Terminal) Loading(message string) {
	if !t.spin {
		return
	}
	t.spinner, _ = pterm.DefaultSpinner.Start(message)
}

func (t *Terminal) stop() {
	if t.spinner != nil {
		_ = t.spinner.Stop()
		t.spinner = nil
	}
}

func (t *Terminal) NotApplicable(pc page.Context, host string) {
	t.stop()
	if t.format == FormatJSON {
		printJSON(map[string]any{"applicable": false, "host": host, "page": pc})
		return
	}
	if host != "" && !page.IsSalesforceHost(host) {
		pterm.Warning.Printf("%s is not a Salesforce domain.\n", host)
		return
	}
	pterm.Warning.Println("This page is not a validation rule, flow, Apex class or formula field.")
}

func (t *Terminal) Error(f explain.Failure) {
	t.stop()
	if t.format == FormatJSON {
		printJSON(map[string]any{"error": f})
		return
	}
	pterm.Error.Println(f.Message)
	if f.Hint != "" {
		pterm.Info.Println(f.Hint)
	}
	if f.RequestID != "" {
		pterm.Println(metaStyle.Render("request " + f.RequestID))
	}
}

func (t *Terminal) Result(res explain.Result) error {
	t.stop()
	out, err := Render(res, t.format)
	if err != nil {
		return err
	}
	if t.format == FormatText {
		pterm.Println(headingStyle.Render(Heading(res)))
		if res.Obfuscated && res.Replaced > 0 {
			pterm.Println(metaStyle.Render(pterm.Sprintf("%d field names were hidden from the model and restored", res.Replaced)))
		}
		pterm.Println()
	}
	pterm.Print(out)
	return nil
}

func printJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		pterm.Error.Printf("failed to encode output: %v\n", err)
		return
	}
	pterm.Println(string(b))
}
