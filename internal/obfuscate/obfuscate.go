// Package obfuscate replaces field names in formulas and Apex source with
// opaque placeholders before metadata leaves the machine, and restores them
// in the text that comes back.
package obfuscate

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// fieldPattern matches custom field tokens (Amount__c, Owner__r) in group 1 and
// dotted standard field tokens (.Name) in group 2.
var fieldPattern = regexp.MustCompile(`\b([A-Za-z0-9_]+__[cr])\b|\.([A-Za-z0-9_]+)\b`)

// candidateKeys are the record keys whose string values hold formulas or code.
var candidateKeys = []string{"errorConditionFormula", "formula", "Body"}

// reservedKeywords are formula functions and literals. Matching is case-sensitive.
var reservedKeywords = []string{"AND", "OR", "NOT", "IF", "CASE", "ISNEW", "ISBLANK", "ISPICKVAL", "TRUE", "FALSE"}

var sensitiveTerms = []string{"ssn", "email", "phone", "address", "zip", "postal", "credit", "card", "password", "secret"}

// Options selects which kinds of field names are replaced.
type Options struct {
	ProtectCustom    bool `json:"protect_custom_fields" yaml:"protect_custom_fields"`
	ProtectStandard  bool `json:"protect_standard_fields" yaml:"protect_standard_fields"`
	ProtectSensitive bool `json:"protect_sensitive_fields" yaml:"protect_sensitive_fields"`
}

// DefaultOptions protects everything.
func DefaultOptions() Options {
	return Options{ProtectCustom: true, ProtectStandard: true, ProtectSensitive: true}
}

// Result is the outcome of one obfuscation pass.
type Result struct {
	Metadata any      `json:"metadata"`
	Mapping  *Mapping `json:"mapping"`
}

// Obfuscator rewrites metadata records.
type Obfuscator struct {
	opts Options
}

// New returns an Obfuscator using opts.
func New(opts Options) *Obfuscator {
	return &Obfuscator{opts: opts}
}

// Obfuscate returns a deep copy of metadata with eligible field names replaced
// by field<N> placeholders, plus the mapping needed to undo it. The input is
// never modified.
func (o *Obfuscator) Obfuscate(metadata any) (Result, error) {
	cp, err := deepCopy(metadata)
	if err != nil {
		return Result{}, fmt.Errorf("failed to copy metadata: %w", err)
	}
	p := &pass{opts: o.opts, mapping: NewMapping(), next: 1}
	return Result{Metadata: p.walk(cp), Mapping: p.mapping}, nil
}

// pass carries the placeholder counter and mapping across every string of a
// single record.
type pass struct {
	opts    Options
	mapping *Mapping
	next    int
}

func (p *pass) walk(v any) any {
	switch t := v.(type) {
	case map[string]any:
		keys := lo.Keys(t)
		slices.Sort(keys)
		for _, k := range keys {
			child := t[k]
			if s, ok := child.(string); ok {
				if lo.Contains(candidateKeys, k) {
					t[k] = p.rewrite(s)
				}
				continue
			}
			t[k] = p.walk(child)
		}
		return t
	case []any:
		for i, child := range t {
			t[i] = p.walk(child)
		}
		return t
	default:
		return v
	}
}

func (p *pass) rewrite(s string) string {
	matches := fieldPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		custom := m[2] >= 0
		var name string
		if custom {
			name = s[m[2]:m[3]]
		} else {
			name = s[m[4]:m[5]]
		}

		b.WriteString(s[last:m[0]])
		last = m[1]

		if lo.Contains(reservedKeywords, name) || !p.eligible(name, custom) {
			b.WriteString(s[m[0]:m[1]])
			continue
		}
		if !custom {
			b.WriteByte('.')
		}
		b.WriteString(p.placeholder(name))
	}
	b.WriteString(s[last:])
	return b.String()
}

func (p *pass) eligible(name string, custom bool) bool {
	if custom && p.opts.ProtectCustom {
		return true
	}
	if !custom && p.opts.ProtectStandard {
		return true
	}
	if p.opts.ProtectSensitive {
		lower := strings.ToLower(name)
		return lo.ContainsBy(sensitiveTerms, func(term string) bool {
			return strings.Contains(lower, term)
		})
	}
	return false
}

func (p *pass) placeholder(name string) string {
	if ph, ok := p.mapping.Placeholder(name); ok {
		return ph
	}
	ph := "field" + strconv.Itoa(p.next)
	p.next++
	p.mapping.add(name, ph)
	return ph
}

// deepCopy normalises any JSON-shaped value into fresh maps and slices.
func deepCopy(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
