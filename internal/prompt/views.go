package prompt

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/samber/lo"
)

// ValidationRule is the part of a validation rule record the prompt uses.
type ValidationRule struct {
	Name         string
	Object       string
	Description  string
	ErrorMessage string
	Formula      string
}

// ApexClass is the part of an Apex class record the prompt uses.
type ApexClass struct {
	Name        string  `json:"name"`
	APIVersion  float64 `json:"apiVersion"`
	Description string  `json:"description"`
	Body        string  `json:"body"`
}

// FormulaField is the part of a custom field record the prompt uses.
type FormulaField struct {
	Name        string
	Object      string
	Type        string
	Description string
	Formula     string
}

type validationRuleRecord struct {
	ValidationName   string
	Description      string
	ErrorMessage     string
	EntityDefinition struct {
		QualifiedApiName string
	}
	Metadata struct {
		ErrorConditionFormula string `mapstructure:"errorConditionFormula"`
	}
}

type apexClassRecord struct {
	Name        string
	ApiVersion  float64
	Description string
	Body        string
}

type formulaFieldRecord struct {
	DeveloperName string
	FullName      string
	Description   string
	Type          string `mapstructure:"type"`
	Formula       string `mapstructure:"formula"`
}

// ProcessValidationRule extracts the rule name, object, messages and formula.
// The object is left empty when the record does not carry it.
func ProcessValidationRule(rec map[string]any) (ValidationRule, error) {
	var r validationRuleRecord
	if err := decode(rec, &r); err != nil {
		return ValidationRule{}, fmt.Errorf("failed to read validation rule: %w", err)
	}
	return ValidationRule{
		Name:         orDefault(r.ValidationName, "Unnamed Rule"),
		Object:       r.EntityDefinition.QualifiedApiName,
		Description:  r.Description,
		ErrorMessage: r.ErrorMessage,
		Formula:      r.Metadata.ErrorConditionFormula,
	}, nil
}

// ProcessApexClass extracts the class name, API version, description and body.
func ProcessApexClass(rec map[string]any) (ApexClass, error) {
	var r apexClassRecord
	if err := decode(rec, &r); err != nil {
		return ApexClass{}, fmt.Errorf("failed to read Apex class: %w", err)
	}
	return ApexClass{
		Name:        r.Name,
		APIVersion:  r.ApiVersion,
		Description: r.Description,
		Body:        r.Body,
	}, nil
}

// ProcessFormulaField extracts the field name, object, return type and
// formula. The object comes from the "Object.Field__c" full name.
func ProcessFormulaField(rec map[string]any) (FormulaField, error) {
	var r formulaFieldRecord
	if err := decode(rec, &r); err != nil {
		return FormulaField{}, fmt.Errorf("failed to read formula field: %w", err)
	}
	object, _, _ := strings.Cut(r.FullName, ".")
	if object == r.FullName {
		object = ""
	}
	return FormulaField{
		Name:        orDefault(r.DeveloperName, "Unnamed Field"),
		Object:      object,
		Type:        orDefault(r.Type, "Unknown"),
		Description: r.Description,
		Formula:     r.Formula,
	}, nil
}

// SimplifiedFlow keeps only the logical structure of a flow.
type SimplifiedFlow struct {
	FlowName        string             `json:"flowName"`
	FlowDescription string             `json:"flowDescription"`
	Start           FlowStart          `json:"start"`
	Actions         []FlowAction       `json:"actions"`
	Decisions       []FlowDecision     `json:"decisions"`
	Loops           []FlowLoop         `json:"loops"`
	RecordLookups   []FlowRecordLookup `json:"recordLookups"`
	TextTemplates   []FlowTextTemplate `json:"textTemplates"`
}

type FlowStart struct {
	Object        string  `json:"object,omitempty"`
	FilterFormula string  `json:"filterFormula,omitempty"`
	TriggerType   string  `json:"triggerType,omitempty"`
	Connector     *string `json:"connector"`
}

type FlowAction struct {
	ActionName      string          `json:"actionName"`
	Label           string          `json:"label"`
	Target          *string         `json:"target"`
	InputParameters []FlowParameter `json:"inputParameters"`
}

type FlowParameter struct {
	Name             string  `json:"name"`
	ElementReference *string `json:"elementReference"`
}

type FlowDecision struct {
	Label         string     `json:"label"`
	Name          string     `json:"name"`
	DefaultTarget *string    `json:"defaultTarget"`
	Rules         []FlowRule `json:"rules"`
}

type FlowRule struct {
	Label          string          `json:"label"`
	ConditionLogic string          `json:"conditionLogic"`
	Conditions     []FlowCondition `json:"conditions"`
	RuleTarget     *string         `json:"ruleTarget"`
}

type FlowCondition struct {
	LeftValueReference string `json:"leftValueReference"`
	Operator           string `json:"operator"`
	RightValue         any    `json:"rightValue"`
}

type FlowLoop struct {
	Name                string  `json:"name"`
	Label               string  `json:"label"`
	CollectionReference string  `json:"collectionReference"`
	NextTarget          *string `json:"nextTarget"`
}

type FlowRecordLookup struct {
	Name    string       `json:"name"`
	Object  string       `json:"object"`
	Filters []FlowFilter `json:"filters"`
}

type FlowFilter struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

type FlowTextTemplate struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

type flowConnector struct {
	TargetReference string `mapstructure:"targetReference"`
}

type flowValue struct {
	StringValue      string `mapstructure:"stringValue"`
	BooleanValue     *bool  `mapstructure:"booleanValue"`
	ElementReference string `mapstructure:"elementReference"`
}

type flowLoop struct {
	Name                string         `mapstructure:"name"`
	Label               string         `mapstructure:"label"`
	CollectionReference string         `mapstructure:"collectionReference"`
	NextValueConnector  *flowConnector `mapstructure:"nextValueConnector"`
}

type flowRecord struct {
	MasterLabel string
	FullName    string
	Description string
	Metadata    struct {
		Start struct {
			Object        string         `mapstructure:"object"`
			FilterFormula string         `mapstructure:"filterFormula"`
			TriggerType   string         `mapstructure:"triggerType"`
			Connector     *flowConnector `mapstructure:"connector"`
		} `mapstructure:"start"`
		ActionCalls []struct {
			ActionName      string         `mapstructure:"actionName"`
			Label           string         `mapstructure:"label"`
			Connector       *flowConnector `mapstructure:"connector"`
			InputParameters []struct {
				Name  string     `mapstructure:"name"`
				Value *flowValue `mapstructure:"value"`
			} `mapstructure:"inputParameters"`
		} `mapstructure:"actionCalls"`
		Decisions []struct {
			Label            string         `mapstructure:"label"`
			Name             string         `mapstructure:"name"`
			DefaultConnector *flowConnector `mapstructure:"defaultConnector"`
			Rules            []struct {
				Label          string         `mapstructure:"label"`
				ConditionLogic string         `mapstructure:"conditionLogic"`
				Connector      *flowConnector `mapstructure:"connector"`
				Conditions     []struct {
					LeftValueReference string     `mapstructure:"leftValueReference"`
					Operator           string     `mapstructure:"operator"`
					RightValue         *flowValue `mapstructure:"rightValue"`
				} `mapstructure:"conditions"`
			} `mapstructure:"rules"`
		} `mapstructure:"decisions"`
		Loops         []flowLoop `mapstructure:"loops"`
		RecordLookups []struct {
			Name    string `mapstructure:"name"`
			Object  string `mapstructure:"object"`
			Filters []struct {
				Field    string     `mapstructure:"field"`
				Operator string     `mapstructure:"operator"`
				Value    *flowValue `mapstructure:"value"`
			} `mapstructure:"filters"`
		} `mapstructure:"recordLookups"`
		TextTemplates []FlowTextTemplate `mapstructure:"textTemplates"`
	}
}

// SimplifyFlow projects a Tooling API flow record onto its start condition,
// actions, decisions, loops, record lookups and text templates, dropping
// layout coordinates and other noise.
func SimplifyFlow(rec map[string]any) (SimplifiedFlow, error) {
	var r flowRecord
	if err := decode(rec, &r); err != nil {
		return SimplifiedFlow{}, fmt.Errorf("failed to read flow: %w", err)
	}
	md := r.Metadata

	out := SimplifiedFlow{
		FlowName:        orDefault(r.MasterLabel, orDefault(r.FullName, "Unknown Flow")),
		FlowDescription: r.Description,
		Start: FlowStart{
			Object:        md.Start.Object,
			FilterFormula: md.Start.FilterFormula,
			TriggerType:   md.Start.TriggerType,
			Connector:     target(md.Start.Connector),
		},
		Loops: lo.Map(md.Loops, func(l flowLoop, _ int) FlowLoop {
			return FlowLoop{
				Name:                l.Name,
				Label:               l.Label,
				CollectionReference: l.CollectionReference,
				NextTarget:          target(l.NextValueConnector),
			}
		}),
		TextTemplates: md.TextTemplates,
	}

	for _, a := range md.ActionCalls {
		action := FlowAction{ActionName: a.ActionName, Label: a.Label, Target: target(a.Connector), InputParameters: []FlowParameter{}}
		for _, p := range a.InputParameters {
			param := FlowParameter{Name: p.Name}
			if p.Value != nil && p.Value.ElementReference != "" {
				param.ElementReference = lo.ToPtr(p.Value.ElementReference)
			}
			action.InputParameters = append(action.InputParameters, param)
		}
		out.Actions = append(out.Actions, action)
	}

	for _, d := range md.Decisions {
		decision := FlowDecision{Label: d.Label, Name: d.Name, DefaultTarget: target(d.DefaultConnector), Rules: []FlowRule{}}
		for _, rule := range d.Rules {
			fr := FlowRule{Label: rule.Label, ConditionLogic: rule.ConditionLogic, RuleTarget: target(rule.Connector), Conditions: []FlowCondition{}}
			for _, c := range rule.Conditions {
				fr.Conditions = append(fr.Conditions, FlowCondition{
					LeftValueReference: c.LeftValueReference,
					Operator:           c.Operator,
					RightValue:         c.RightValue.literal(),
				})
			}
			decision.Rules = append(decision.Rules, fr)
		}
		out.Decisions = append(out.Decisions, decision)
	}

	for _, l := range md.RecordLookups {
		lookup := FlowRecordLookup{Name: l.Name, Object: l.Object, Filters: []FlowFilter{}}
		for _, f := range l.Filters {
			lookup.Filters = append(lookup.Filters, FlowFilter{
				Field:    f.Field,
				Operator: f.Operator,
				Value:    f.Value.reference(),
			})
		}
		out.RecordLookups = append(out.RecordLookups, lookup)
	}

	out.Actions = nonNil(out.Actions)
	out.Decisions = nonNil(out.Decisions)
	out.Loops = nonNil(out.Loops)
	out.RecordLookups = nonNil(out.RecordLookups)
	out.TextTemplates = nonNil(out.TextTemplates)
	return out, nil
}

// literal prefers the string value and falls back to the boolean one.
func (v *flowValue) literal() any {
	if v == nil {
		return nil
	}
	if v.StringValue != "" {
		return v.StringValue
	}
	if v.BooleanValue != nil {
		return *v.BooleanValue
	}
	return nil
}

// reference prefers the element reference and falls back to the string value.
func (v *flowValue) reference() any {
	if v == nil {
		return nil
	}
	if v.ElementReference != "" {
		return v.ElementReference
	}
	if v.StringValue != "" {
		return v.StringValue
	}
	return nil
}

func target(c *flowConnector) *string {
	if c == nil || c.TargetReference == "" {
		return nil
	}
	return lo.ToPtr(c.TargetReference)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func decode(in map[string]any, out any) error {
	d, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return d.Decode(in)
}
