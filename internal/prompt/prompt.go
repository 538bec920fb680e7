// Package prompt turns fetched Salesforce metadata into the prompts sent to
// the language model.
package prompt

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
)

// System prompts, one per kind of metadata.
const (
	ValidationRuleSystem = "You are an expert in Salesforce validation rules. Explain the validation rule in clear, " +
		"concise language that helps users understand its purpose and how to comply with it."
	FlowSystem = "You are an expert in Salesforce flows. Explain the flow in clear, concise language that helps " +
		"developers understand its purpose and functionality."
	ApexClassSystem = "You are an expert in Salesforce Apex development. Explain the Apex code in clear, concise " +
		"language that helps developers understand its purpose and functionality."
	FormulaFieldSystem = "You are an expert in Salesforce formula fields. Explain the formula in clear, concise " +
		"language that helps users understand what it calculates and why."
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("prompts").Option("missingkey=error").ParseFS(templateFS, "templates/*.tmpl"))

// ValidationRulePrompt renders the validation rule prompt.
func ValidationRulePrompt(v ValidationRule) (string, error) {
	v.Object = orDefault(v.Object, "Unknown Object")
	return render("validation_rule.tmpl", v)
}

// FlowPrompt renders the flow prompt with the simplified flow as indented JSON.
func FlowPrompt(f SimplifiedFlow) (string, error) {
	b, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode flow: %w", err)
	}
	return render("flow.tmpl", struct {
		Flow SimplifiedFlow
		JSON string
	}{f, string(b)})
}

// ApexClassPrompt renders the Apex class prompt.
func ApexClassPrompt(a ApexClass) (string, error) {
	return render("apex_class.tmpl", struct {
		ApexClass
		APIVersion string
	}{a, formatAPIVersion(a.APIVersion)})
}

// FormulaFieldPrompt renders the formula field prompt.
func FormulaFieldPrompt(f FormulaField) (string, error) {
	f.Object = orDefault(f.Object, "Unknown Object")
	return render("formula_field.tmpl", f)
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()) + "\n", nil
}

func formatAPIVersion(v float64) string {
	if v == 0 {
		return "unknown"
	}
	return fmt.Sprintf("%.1f", v)
}
