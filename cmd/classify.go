package cmd

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/kernel/sfexplain/internal/explain"
	"github.com/kernel/sfexplain/internal/session"
	"github.com/kernel/sfexplain/pkg/util"
)

// ClassifyCmd reports what kind of page a URL points at.
type ClassifyCmd struct{}

// ClassifyInput holds input for classifying a URL.
type ClassifyInput struct {
	URL    string
	Output string
}

// ClassifyOutput is the JSON form of a classification.
type ClassifyOutput struct {
	Applicable bool   `json:"applicable"`
	Host       string `json:"host,omitempty"`
	APIHost    string `json:"api_host,omitempty"`
	Kind       string `json:"kind"`
	ResourceID string `json:"resource_id,omitempty"`
	ObjectName string `json:"object_name,omitempty"`
}

// Classify classifies the URL without any network access.
func (c ClassifyCmd) Classify(in ClassifyInput) error {
	if in.Output != "" && in.Output != "json" {
		return fmt.Errorf("unsupported --output value: use 'json'")
	}

	pc, host := explain.Classify(in.URL)
	out := ClassifyOutput{
		Applicable: pc.Supported(),
		Host:       host,
		Kind:       pc.Kind.Slug(),
		ResourceID: pc.ResourceID,
		ObjectName: pc.ObjectName,
	}
	if host != "" && pc.Supported() {
		out.APIHost = session.NormalizeHost(host)
	}

	if in.Output == "json" {
		return util.PrintPrettyJSON(out)
	}

	if !out.Applicable {
		pterm.Warning.Println("This page is not a validation rule, flow, Apex class or formula field.")
		return nil
	}
	rows := pterm.TableData{{"Property", "Value"}}
	rows = append(rows, []string{"Kind", pc.Kind.String()})
	rows = append(rows, []string{"Resource ID", cell(pc.ResourceID)})
	rows = append(rows, []string{"Object", cell(pc.ObjectName)})
	rows = append(rows, []string{"Host", cell(host)})
	rows = append(rows, []string{"API Host", cell(out.APIHost)})
	PrintTableNoPad(rows, true)
	return nil
}

var classifyCmd = &cobra.Command{
	Use:   "classify <url>",
	Short: "Show what kind of Salesforce page a URL points at",
	Args:  cobra.ExactArgs(1),
	RunE:  runClassify,
}

func init() {
	classifyCmd.Flags().StringP("output", "o", "", "Output format: json for raw JSON")
}

func runClassify(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")
	return ClassifyCmd{}.Classify(ClassifyInput{URL: args[0], Output: output})
}
