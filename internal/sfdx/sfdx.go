// Package sfdx finds explainable metadata in a local Salesforce DX project
// and turns it into records shaped like Tooling API responses.
package sfdx

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/boyter/gocodewalker"
	"github.com/samber/lo"

	"github.com/kernel/sfexplain/internal/page"
)

const (
	apexSuffix       = ".cls"
	apexMetaSuffix   = ".cls-meta.xml"
	validationSuffix = ".validationRule-meta.xml"
	fieldSuffix      = ".field-meta.xml"
)

// excludedDirs are never descended into.
var excludedDirs = []string{"node_modules", ".git", ".sfdx", ".sf", "coverage"}

// Component is one explainable piece of metadata found on disk.
type Component struct {
	Kind page.Kind
	// Name is the class name, or Object.Name for rules and fields.
	Name   string
	Path   string
	Size   int64
	Record map[string]any
}

type apexMeta struct {
	APIVersion string `xml:"apiVersion"`
	Status     string `xml:"status"`
}

type validationRuleMeta struct {
	FullName              string `xml:"fullName"`
	Active                bool   `xml:"active"`
	Description           string `xml:"description"`
	ErrorConditionFormula string `xml:"errorConditionFormula"`
	ErrorMessage          string `xml:"errorMessage"`
}

type fieldMeta struct {
	FullName    string `xml:"fullName"`
	Description string `xml:"description"`
	Formula     string `xml:"formula"`
	Type        string `xml:"type"`
}

// Scan walks dir, honouring .gitignore, and returns the components of the
// given kinds sorted by path. No kinds means every supported kind. Flows are
// not read from disk.
func Scan(dir string, kinds ...page.Kind) ([]Component, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("failed to read project directory: %w", err)
	}
	if len(kinds) == 0 {
		kinds = []page.Kind{page.ApexClass, page.ValidationRule, page.FormulaField}
	}

	fileQueue := make(chan *gocodewalker.File, 256)
	walker := gocodewalker.NewFileWalker(dir, fileQueue)
	walker.ExcludeDirectory = append(walker.ExcludeDirectory, excludedDirs...)

	errChan := make(chan error, 1)
	go func() {
		errChan <- walker.Start()
	}()

	var out []Component
	var firstErr error
	for f := range fileQueue {
		if firstErr != nil {
			continue
		}
		c, ok, err := read(f.Location)
		if err != nil {
			firstErr = err
			continue
		}
		if ok && lo.Contains(kinds, c.Kind) {
			out = append(out, c)
		}
	}
	if err := <-errChan; err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	if firstErr != nil {
		return nil, firstErr
	}

	slices.SortFunc(out, func(a, b Component) int { return strings.Compare(a.Path, b.Path) })
	return out, nil
}

// read converts one file. ok is false for files that are not explainable.
func read(path string) (Component, bool, error) {
	name := filepath.Base(path)
	switch {
	case strings.HasSuffix(name, apexSuffix):
		return readApexClass(path, strings.TrimSuffix(name, apexSuffix))
	case strings.HasSuffix(name, validationSuffix):
		return readValidationRule(path, strings.TrimSuffix(name, validationSuffix))
	case strings.HasSuffix(name, fieldSuffix):
		return readFormulaField(path, strings.TrimSuffix(name, fieldSuffix))
	}
	return Component{}, false, nil
}

func readApexClass(path, className string) (Component, bool, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return Component{}, false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	rec := map[string]any{"Name": className, "Body": string(body)}

	var meta apexMeta
	if ok, err := decodeXML(path[:len(path)-len(apexSuffix)]+apexMetaSuffix, &meta); err != nil {
		return Component{}, false, err
	} else if ok {
		if v, err := strconv.ParseFloat(strings.TrimSpace(meta.APIVersion), 64); err == nil {
			rec["ApiVersion"] = v
		}
		if meta.Status != "" {
			rec["Status"] = meta.Status
		}
	}
	return Component{Kind: page.ApexClass, Name: className, Path: path, Size: int64(len(body)), Record: rec}, true, nil
}

func readValidationRule(path, ruleName string) (Component, bool, error) {
	var meta validationRuleMeta
	if _, err := decodeXML(path, &meta); err != nil {
		return Component{}, false, err
	}
	object := objectFromPath(path, "validationRules")
	rec := map[string]any{
		"ValidationName": lo.CoalesceOrEmpty(meta.FullName, ruleName),
		"Active":         meta.Active,
		"Description":    meta.Description,
		"ErrorMessage":   meta.ErrorMessage,
		"Metadata":       map[string]any{"errorConditionFormula": meta.ErrorConditionFormula},
	}
	if object != "" {
		rec["EntityDefinition"] = map[string]any{"QualifiedApiName": object}
	}
	return Component{Kind: page.ValidationRule, Name: qualified(object, ruleName), Path: path, Size: fileSize(path), Record: rec}, true, nil
}

// readFormulaField skips fields without a formula.
func readFormulaField(path, fieldName string) (Component, bool, error) {
	var meta fieldMeta
	if _, err := decodeXML(path, &meta); err != nil {
		return Component{}, false, err
	}
	if strings.TrimSpace(meta.Formula) == "" {
		return Component{}, false, nil
	}
	object := objectFromPath(path, "fields")
	rec := map[string]any{
		"DeveloperName": strings.TrimSuffix(fieldName, "__c"),
		"FullName":      qualified(object, fieldName),
		"Description":   meta.Description,
		"type":          meta.Type,
		"formula":       meta.Formula,
	}
	return Component{Kind: page.FormulaField, Name: qualified(object, fieldName), Path: path, Size: fileSize(path), Record: rec}, true, nil
}

// objectFromPath returns the object directory above dirName, as in
// objects/Opportunity/validationRules/Rule.validationRule-meta.xml.
func objectFromPath(path, dirName string) string {
	parent := filepath.Dir(path)
	if filepath.Base(parent) != dirName {
		return ""
	}
	return filepath.Base(filepath.Dir(parent))
}

func qualified(object, name string) string {
	if object == "" {
		return name
	}
	return object + "." + name
}

// decodeXML reads path into v. A missing file reports ok=false.
func decodeXML(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := xml.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return true, nil
}

func fileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}
