package ui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/yuin/goldmark"

	"github.com/kernel/sfexplain/internal/explain"
)

// Format selects how an explanation is printed.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatJSON     Format = "json"
)

// Formats lists the supported formats.
var Formats = []Format{FormatText, FormatMarkdown, FormatHTML, FormatJSON}

// ParseFormat validates a --format value. "md" and "" are accepted.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return FormatText, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	}
	f := Format(strings.ToLower(s))
	if !lo.Contains(Formats, f) {
		return "", fmt.Errorf("unsupported format %q, must be one of %s", s, strings.Join(lo.Map(Formats, func(f Format, _ int) string { return string(f) }), ", "))
	}
	return f, nil
}

// Heading is the title line for a result, e.g. "Amount_Limit (validation rule on Opportunity)".
func Heading(res explain.Result) string {
	title := res.Title
	if title == "" {
		title = res.ResourceID
	}
	if res.Object != "" {
		return fmt.Sprintf("%s (%s on %s)", title, res.Kind, res.Object)
	}
	return fmt.Sprintf("%s (%s)", title, res.Kind)
}

// Markdown renders the result as a markdown document.
func Markdown(res explain.Result) string {
	return "# " + Heading(res) + "\n\n" + strings.TrimSpace(res.Text) + "\n"
}

// HTML renders the markdown document as an HTML fragment.
func HTML(res explain.Result) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(Markdown(res)), &buf); err != nil {
		return "", fmt.Errorf("failed to render HTML: %w", err)
	}
	return buf.String(), nil
}

// Render formats res for output in f.
func Render(res explain.Result, f Format) (string, error) {
	switch f {
	case FormatMarkdown:
		return Markdown(res), nil
	case FormatHTML:
		return HTML(res)
	case FormatJSON:
		b, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to encode result: %w", err)
		}
		return string(b) + "\n", nil
	default:
		return strings.TrimSpace(res.Text) + "\n", nil
	}
}
