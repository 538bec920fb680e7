package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/kernel/sfexplain/internal/explain"
	"github.com/kernel/sfexplain/internal/page"
	"github.com/kernel/sfexplain/internal/ui"
)

// PipelineRunner runs the whole chain for a URL. *explain.Pipeline implements it.
type PipelineRunner interface {
	Run(ctx context.Context, rawURL string) (explain.Outcome, error)
}

// ExplainService is the subset of *explain.Service the commands use.
type ExplainService interface {
	Explain(ctx context.Context, req explain.Request) (explain.Result, error)
	Prepare(req explain.Request) (explain.Prepared, error)
	Describe(err error, kind page.Kind) explain.Failure
}

// ExplainCmd explains a page or a saved record.
type ExplainCmd struct {
	runner  PipelineRunner
	service ExplainService
	view    ui.View
}

// ExplainInput holds input for explaining a page.
type ExplainInput struct {
	URL string
	// RecordFile explains a record saved by `sfexplain fetch` instead of
	// fetching one. Kind is required with it.
	RecordFile string
	Kind       string
}

// Explain runs the chain and reports the outcome through the view.
func (c ExplainCmd) Explain(ctx context.Context, in ExplainInput) error {
	p := ui.NewPresenter(c.view, c.service)

	if in.RecordFile == "" {
		pc, _ := explain.Classify(in.URL)
		p.Start(pc.Kind, loadingMessage(pc.Kind))
		out, err := c.runner.Run(ctx, in.URL)
		return p.Finish(out, err)
	}

	req, err := recordRequest(in.URL, in.RecordFile, in.Kind)
	if err != nil {
		return err
	}
	p.Start(req.Page.Kind, loadingMessage(req.Page.Kind))
	res, err := c.service.Explain(ctx, req)
	out := explain.Outcome{Page: req.Page}
	if err == nil {
		out.Result = &res
	}
	return p.Finish(out, err)
}

func loadingMessage(kind page.Kind) string {
	if kind == page.None {
		return "Explaining..."
	}
	return fmt.Sprintf("Explaining %s...", kind)
}

// recordRequest builds a request from a JSON record on disk. The URL, when
// given, supplies the resource id and object name.
func recordRequest(rawURL, path, kind string) (explain.Request, error) {
	k, err := page.ParseKind(kind)
	if err != nil || k == page.None {
		return explain.Request{}, fmt.Errorf("--kind must be one of validation_rule, flow, apex_class, formula_field when --record is used")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return explain.Request{}, fmt.Errorf("failed to read record: %w", err)
	}
	var rec map[string]any
	if err := json.Unmarshal(data, &rec); err != nil {
		return explain.Request{}, fmt.Errorf("failed to parse record %s: %w", path, err)
	}

	pc := page.Context{Kind: k}
	if rawURL != "" {
		if classified, _ := explain.Classify(rawURL); classified.Kind == k {
			pc = classified
		}
	}
	if id, ok := rec["Id"].(string); ok && pc.ResourceID == "" {
		pc.ResourceID = id
	}
	return explain.Request{Page: pc, Record: rec}, nil
}

var explainCmd = &cobra.Command{
	Use:   "explain [url]",
	Short: "Explain the Salesforce page at a URL",
	Long: `Classify a Salesforce setup URL, fetch the metadata behind it and print a
plain-language explanation. Field names are replaced with placeholders before
the model sees them and restored in the explanation.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExplain,
}

func init() {
	explainCmd.Flags().String("format", "text", "Output format: text, markdown, html or json")
	explainCmd.Flags().String("record", "", "Explain a record saved with `sfexplain fetch` instead of fetching it")
	explainCmd.Flags().String("kind", "", "Kind of the saved record (validation_rule, flow, apex_class, formula_field)")
}

func runExplain(cmd *cobra.Command, args []string) error {
	a := getApp(cmd)
	formatFlag, _ := cmd.Flags().GetString("format")
	record, _ := cmd.Flags().GetString("record")
	kind, _ := cmd.Flags().GetString("kind")

	format, err := ui.ParseFormat(formatFlag)
	if err != nil {
		return err
	}
	in := ExplainInput{RecordFile: record, Kind: kind}
	if len(args) > 0 {
		in.URL = args[0]
	}
	if in.URL == "" && in.RecordFile == "" {
		return fmt.Errorf("a page URL or --record is required")
	}

	ctx, cancel := a.withTimeout(cmd.Context())
	defer cancel()

	c := ExplainCmd{view: ui.NewTerminal(format, pterm.PrintColor && isTerminal())}
	if in.RecordFile != "" {
		c.service = a.service()
	} else {
		ch, err := a.chain()
		if err != nil {
			return err
		}
		c.runner, c.service = ch.pipeline, ch.service
	}
	return c.Explain(ctx, in)
}

func isTerminal() bool {
	fi, err := os.Stdout.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}
