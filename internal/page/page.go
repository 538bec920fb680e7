// Package page classifies Salesforce setup URLs into the configuration
// resources sfexplain knows how to explain.
package page

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind identifies the type of Salesforce configuration resource a page shows.
type Kind int

const (
	// None means the page is not a supported resource.
	None Kind = iota
	ValidationRule
	Flow
	ApexClass
	FormulaField
)

// Kinds lists every explainable kind, in classification order.
var Kinds = []Kind{ValidationRule, Flow, ApexClass, FormulaField}

// String returns the human-readable name of the kind.
func (k Kind) String() string {
	switch k {
	case ValidationRule:
		return "validation rule"
	case Flow:
		return "flow"
	case ApexClass:
		return "Apex class"
	case FormulaField:
		return "formula field"
	default:
		return "none"
	}
}

// Slug returns the stable machine name used in JSON output and bridge messages.
func (k Kind) Slug() string {
	switch k {
	case ValidationRule:
		return "validation_rule"
	case Flow:
		return "flow"
	case ApexClass:
		return "apex_class"
	case FormulaField:
		return "formula_field"
	default:
		return "none"
	}
}

// ParseKind converts a slug back into a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range append([]Kind{None}, Kinds...) {
		if k.Slug() == s {
			return k, nil
		}
	}
	return None, fmt.Errorf("unknown page kind %q", s)
}

// MarshalJSON encodes the kind as its slug.
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.Slug())
}

// UnmarshalJSON decodes a slug into the kind.
func (k *Kind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Context is the result of classifying a URL.
type Context struct {
	Kind       Kind   `json:"kind"`
	ResourceID string `json:"resource_id,omitempty"`
	ObjectName string `json:"object_name,omitempty"`
}

// Supported reports whether the page can be explained.
func (c Context) Supported() bool {
	return c.Kind != None
}

// IsSalesforceHost reports whether the hostname belongs to a Salesforce domain.
func IsSalesforceHost(host string) bool {
	host = strings.ToLower(host)
	return strings.Contains(host, "salesforce.com") ||
		strings.Contains(host, "force.com") ||
		strings.Contains(host, "salesforce-setup.com")
}
