package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/kernel/sfexplain/internal/explain"
	"github.com/kernel/sfexplain/internal/page"
	"github.com/kernel/sfexplain/internal/sfdx"
	"github.com/kernel/sfexplain/internal/ui"
)

// LocalCmd explains metadata from a Salesforce DX project on disk.
type LocalCmd struct {
	service ExplainService
	view    ui.View
	// timeout bounds each explanation. Zero means no limit.
	timeout time.Duration
}

// LocalInput holds input for explaining a local project.
type LocalInput struct {
	Dir   string
	Kinds []string
	// Names keeps only components whose name contains one of these, case-insensitively.
	Names []string
	List  bool
}

// Run lists or explains the matching components. Explanations continue past
// individual failures and the first error is returned at the end.
func (c LocalCmd) Run(ctx context.Context, in LocalInput) error {
	kinds := make([]page.Kind, 0, len(in.Kinds))
	for _, k := range in.Kinds {
		kind, err := page.ParseKind(k)
		if err != nil || kind == page.None || kind == page.Flow {
			return fmt.Errorf("--kind must be apex_class, validation_rule or formula_field, got %q", k)
		}
		kinds = append(kinds, kind)
	}

	comps, err := sfdx.Scan(in.Dir, kinds...)
	if err != nil {
		return err
	}
	if len(in.Names) > 0 {
		comps = lo.Filter(comps, func(comp sfdx.Component, _ int) bool {
			return lo.SomeBy(in.Names, func(n string) bool {
				return strings.Contains(strings.ToLower(comp.Name), strings.ToLower(n))
			})
		})
	}
	if len(comps) == 0 {
		pterm.Info.Println("No matching Apex classes, validation rules or formula fields found")
		return nil
	}

	if in.List {
		rows := pterm.TableData{{"Kind", "Name", "Size", "Path"}}
		for _, comp := range comps {
			rel, err := filepath.Rel(in.Dir, comp.Path)
			if err != nil {
				rel = comp.Path
			}
			rows = append(rows, []string{comp.Kind.String(), comp.Name, sizeCell(comp.Size), rel})
		}
		PrintTableNoPad(rows, true)
		pterm.Info.Printf("%d components, name filter: %s\n", len(comps), cell(strings.Join(in.Names, ", ")))
		return nil
	}

	var firstErr error
	for _, comp := range comps {
		p := ui.NewPresenter(c.view, c.service)
		p.Start(comp.Kind, fmt.Sprintf("Explaining %s %s...", comp.Kind, comp.Name))
		req := explain.Request{Page: page.Context{Kind: comp.Kind}, Record: comp.Record}
		res, err := c.explainOne(ctx, req)
		out := explain.Outcome{Page: req.Page}
		if err == nil {
			res.Title = cell(res.Title, comp.Name)
			out.Result = &res
		}
		if err := p.Finish(out, err); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c LocalCmd) explainOne(ctx context.Context, req explain.Request) (explain.Result, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return c.service.Explain(ctx, req)
}

var localCmd = &cobra.Command{
	Use:   "local <project-dir>",
	Short: "Explain Apex classes, validation rules and formula fields from a local SFDX project",
	Args:  cobra.ExactArgs(1),
	RunE:  runLocal,
}

func init() {
	localCmd.Flags().StringSlice("kind", nil, "Only these kinds (apex_class, validation_rule, formula_field)")
	localCmd.Flags().StringSlice("name", nil, "Only components whose name contains this text")
	localCmd.Flags().Bool("list", false, "List matching components without calling the model")
	localCmd.Flags().String("format", "text", "Output format: text, markdown, html or json")
}

func runLocal(cmd *cobra.Command, args []string) error {
	a := getApp(cmd)
	kinds, _ := cmd.Flags().GetStringSlice("kind")
	names, _ := cmd.Flags().GetStringSlice("name")
	list, _ := cmd.Flags().GetBool("list")
	formatFlag, _ := cmd.Flags().GetString("format")

	format, err := ui.ParseFormat(formatFlag)
	if err != nil {
		return err
	}
	c := LocalCmd{service: a.service(), view: ui.NewTerminal(format, pterm.PrintColor && isTerminal()), timeout: a.cfg.Timeout}
	return c.Run(cmd.Context(), LocalInput{Dir: args[0], Kinds: kinds, Names: names, List: list})
}
