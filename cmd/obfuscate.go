package cmd

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/kernel/sfexplain/internal/explain"
	"github.com/kernel/sfexplain/pkg/util"
)

// Preparer renders prompts without calling the model. *explain.Service
// implements it.
type Preparer interface {
	Prepare(req explain.Request) (explain.Prepared, error)
}

// ObfuscateCmd previews exactly what would be sent to the model.
type ObfuscateCmd struct {
	fetcher  RecordFetcher
	preparer Preparer
}

// ObfuscateInput holds input for previewing a prompt.
type ObfuscateInput struct {
	URL        string
	RecordFile string
	Kind       string
	Output     string
}

// Preview prints the field mapping and the rendered prompt.
func (c ObfuscateCmd) Preview(ctx context.Context, in ObfuscateInput) error {
	if in.Output != "" && in.Output != "json" {
		return fmt.Errorf("unsupported --output value: use 'json'")
	}

	var req explain.Request
	if in.RecordFile != "" {
		r, err := recordRequest(in.URL, in.RecordFile, in.Kind)
		if err != nil {
			return err
		}
		req = r
	} else {
		pc, rec, err := c.fetcher.Fetch(ctx, in.URL)
		if err != nil {
			return util.CleanedUpError{Err: err}
		}
		if !pc.Supported() {
			pterm.Warning.Println("This page is not a validation rule, flow, Apex class or formula field.")
			return nil
		}
		req = explain.Request{Page: pc, Record: rec}
	}

	prep, err := c.preparer.Prepare(req)
	if err != nil {
		return err
	}

	if in.Output == "json" {
		return util.PrintPrettyJSON(prep)
	}

	if prep.Mapping == nil {
		pterm.Warning.Println("Field obfuscation is disabled; field names are sent as-is.")
	} else if prep.Mapping.Len() == 0 {
		pterm.Info.Println("No field names were replaced.")
	} else {
		rows := pterm.TableData{{"Placeholder", "Field"}}
		for _, e := range prep.Mapping.Entries() {
			rows = append(rows, []string{e.Placeholder, e.Original})
		}
		PrintTableNoPad(rows, true)
	}

	pterm.DefaultSection.Println("Prompt")
	pterm.Println(prep.Prompt)
	return nil
}

var obfuscateCmd = &cobra.Command{
	Use:   "obfuscate [url]",
	Short: "Preview the obfuscated prompt for a page without calling the model",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runObfuscate,
}

func init() {
	obfuscateCmd.Flags().StringP("output", "o", "", "Output format: json for raw JSON")
	obfuscateCmd.Flags().String("record", "", "Use a record saved with `sfexplain fetch` instead of fetching it")
	obfuscateCmd.Flags().String("kind", "", "Kind of the saved record (validation_rule, flow, apex_class, formula_field)")
}

func runObfuscate(cmd *cobra.Command, args []string) error {
	a := getApp(cmd)
	output, _ := cmd.Flags().GetString("output")
	record, _ := cmd.Flags().GetString("record")
	kind, _ := cmd.Flags().GetString("kind")

	in := ObfuscateInput{RecordFile: record, Kind: kind, Output: output}
	if len(args) > 0 {
		in.URL = args[0]
	}
	if in.URL == "" && in.RecordFile == "" {
		return fmt.Errorf("a page URL or --record is required")
	}

	c := ObfuscateCmd{preparer: a.service()}
	if in.RecordFile == "" {
		ch, err := a.chain()
		if err != nil {
			return err
		}
		c.fetcher = ch.pipeline
	}

	ctx, cancel := a.withTimeout(cmd.Context())
	defer cancel()
	return c.Preview(ctx, in)
}
