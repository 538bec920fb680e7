package page

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	// 03d is the key prefix of ValidationRule records.
	validationRuleIDPattern = regexp.MustCompile(`(?:^|[^A-Za-z0-9])(03d[A-Za-z0-9]{12,15})(?:[^A-Za-z0-9]|$)`)

	apexPathPattern    = regexp.MustCompile(`/ApexClass/([A-Za-z0-9]{15}(?:[A-Za-z0-9]{3})?)(?:[^A-Za-z0-9]|$)`)
	apexEncodedPattern = regexp.MustCompile(`(?i:%2F)(01p[A-Za-z0-9]{12,15})`)
	apexBarePattern    = regexp.MustCompile(`(?:^|[^A-Za-z0-9])(01p[A-Za-z0-9]{12,15})(?:[^A-Za-z0-9]|$)`)

	formulaFieldPattern = regexp.MustCompile(`FieldsAndRelationships/(00N[A-Za-z0-9]{12,15})(?:[^A-Za-z0-9]|$)`)
)

// Classify inspects a page URL and reports which resource it shows.
// It never fails: unparseable input yields a Context with Kind None.
func Classify(rawURL string) Context {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return Context{}
	}

	path, query := splitURL(raw)

	if ctx, ok := classifyValidationRule(raw, path, query); ok {
		return ctx
	}
	if ctx, ok := classifyFlow(raw, query); ok {
		return ctx
	}
	if ctx, ok := classifyApexClass(raw, query); ok {
		return ctx
	}
	if ctx, ok := classifyFormulaField(raw, path); ok {
		return ctx
	}
	return Context{}
}

func classifyValidationRule(raw string, segments []string, query url.Values) (Context, bool) {
	token := findToken(validationRuleIDPattern, raw)
	isPage := strings.Contains(raw, "/ValidationRule") ||
		strings.Contains(raw, "setupid=ValidationRules") ||
		strings.Contains(raw, "setupentity=") ||
		token != ""
	if !isPage {
		return Context{}, false
	}

	ctx := Context{Kind: ValidationRule, ResourceID: token}
	for i, seg := range segments {
		if seg != "ValidationRule" && seg != "ValidationRules" {
			continue
		}
		if ctx.ResourceID == "" && seg == "ValidationRule" && i+1 < len(segments) {
			ctx.ResourceID = segments[i+1]
		}
		if ctx.ObjectName == "" && i > 0 {
			ctx.ObjectName = segments[i-1]
		}
	}

	// Classic setup pages carry both values in the query string.
	if ctx.ResourceID == "" {
		ctx.ResourceID = query.Get("id")
	}
	if ctx.ObjectName == "" {
		ctx.ObjectName = query.Get("setupentity")
	}
	return ctx, true
}

func classifyFlow(raw string, query url.Values) (Context, bool) {
	if !strings.Contains(raw, "/flowBuilder.app") {
		return Context{}, false
	}
	return Context{Kind: Flow, ResourceID: query.Get("flowId")}, true
}

// classifyApexClass only reports a match when an id could be extracted.
func classifyApexClass(raw string, query url.Values) (Context, bool) {
	marker := strings.Contains(raw, "ApexClass") || strings.Contains(raw, "setupid=ApexClasses")

	id := ""
	if m := apexPathPattern.FindStringSubmatch(raw); m != nil {
		id = m[1]
	} else if m := apexEncodedPattern.FindStringSubmatch(raw); m != nil {
		id = m[1]
	} else if m := apexBarePattern.FindStringSubmatch(raw); m != nil {
		id = m[1]
	} else if marker {
		id = query.Get("id")
		if id == "" {
			id = query.Get("classId")
		}
	}

	if id == "" {
		return Context{}, false
	}
	return Context{Kind: ApexClass, ResourceID: id}, true
}

func classifyFormulaField(raw string, segments []string) (Context, bool) {
	m := formulaFieldPattern.FindStringSubmatch(raw)
	if m == nil {
		return Context{}, false
	}
	ctx := Context{Kind: FormulaField, ResourceID: m[1]}
	for i, seg := range segments {
		if seg == "FieldsAndRelationships" && i > 0 {
			ctx.ObjectName = segments[i-1]
			break
		}
	}
	return ctx, true
}

// findToken looks for an id token in the raw URL first, then in its
// percent-decoded form.
func findToken(re *regexp.Regexp, raw string) string {
	if m := re.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	if decoded, err := url.QueryUnescape(raw); err == nil && decoded != raw {
		if m := re.FindStringSubmatch(decoded); m != nil {
			return m[1]
		}
	}
	return ""
}

// splitURL returns the path segments and query values of raw, tolerating
// input that net/url refuses to parse.
func splitURL(raw string) ([]string, url.Values) {
	var path, rawQuery string
	if u, err := url.Parse(raw); err == nil {
		path, rawQuery = u.Path, u.RawQuery
	} else {
		path, rawQuery, _ = strings.Cut(raw, "?")
	}
	// Lightning puts part of the route behind the fragment.
	if before, _, ok := strings.Cut(rawQuery, "#"); ok {
		rawQuery = before
	}
	query, _ := url.ParseQuery(rawQuery)
	if query == nil {
		query = url.Values{}
	}
	return strings.Split(path, "/"), query
}
