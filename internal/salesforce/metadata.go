package salesforce

import (
	"context"
	"fmt"
	"net/url"

	"github.com/kernel/sfexplain/internal/session"
)

const validationRuleQuery = "SELECT Id, ValidationName, Active, ErrorDisplayField, ErrorMessage, Description, " +
	"EntityDefinition.QualifiedApiName, Metadata FROM ValidationRule WHERE Id = '%s'"

const formulaFieldQuery = "SELECT Id, DeveloperName, Description, Metadata, FullName FROM CustomField WHERE Id = '%s'"

type queryResult struct {
	TotalSize int      `json:"totalSize"`
	Done      bool     `json:"done"`
	Records   []Record `json:"records"`
}

// Query runs a Tooling API SOQL query and returns its records.
func (c *Client) Query(ctx context.Context, sess session.Session, soql string) ([]Record, error) {
	var res queryResult
	if err := c.Get(ctx, sess, c.toolingPath("query?q="+url.QueryEscape(soql)), &res); err != nil {
		return nil, err
	}
	return res.Records, nil
}

// ValidationRule fetches a validation rule, including its Metadata formula.
func (c *Client) ValidationRule(ctx context.Context, sess session.Session, id string) (Record, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	records, err := c.Query(ctx, sess, fmt.Sprintf(validationRuleQuery, id))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch validation rule: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("validation rule %s: %w", id, ErrNotFound)
	}
	return records[0], nil
}

// Flow fetches a flow definition version.
func (c *Client) Flow(ctx context.Context, sess session.Session, id string) (Record, error) {
	return c.sobject(ctx, sess, "Flow", id)
}

// ApexClass fetches an Apex class including its Body.
func (c *Client) ApexClass(ctx context.Context, sess session.Session, id string) (Record, error) {
	return c.sobject(ctx, sess, "ApexClass", id)
}

// FormulaField fetches a custom field and lifts its formula and type out of
// Metadata to the top level of the record.
func (c *Client) FormulaField(ctx context.Context, sess session.Session, id string) (Record, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	records, err := c.Query(ctx, sess, fmt.Sprintf(formulaFieldQuery, id))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch formula field: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("formula field %s: %w", id, ErrNotFound)
	}
	rec := records[0]
	if md, ok := rec["Metadata"].(map[string]any); ok {
		rec["type"] = md["type"]
		rec["formula"] = md["formula"]
	}
	return rec, nil
}

func (c *Client) sobject(ctx context.Context, sess session.Session, sobject, id string) (Record, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	var rec Record
	if err := c.Get(ctx, sess, c.toolingPath("sobjects/"+sobject+"/"+id), &rec); err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", sobject, err)
	}
	if len(rec) == 0 {
		return nil, fmt.Errorf("%s %s: %w", sobject, id, ErrNotFound)
	}
	return rec, nil
}
