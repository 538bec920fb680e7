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
	"github.com/kernel/sfexplain/internal/salesforce"
	"github.com/kernel/sfexplain/pkg/util"
)

// RecordFetcher classifies a URL and fetches its record. *explain.Pipeline
// implements it.
type RecordFetcher interface {
	Fetch(ctx context.Context, rawURL string) (page.Context, salesforce.Record, error)
}

// FetchCmd prints the raw metadata record behind a page.
type FetchCmd struct {
	fetcher RecordFetcher
}

// FetchInput holds input for fetching a record.
type FetchInput struct {
	URL string
	// OutFile writes the record to a file instead of stdout.
	OutFile string
}

// Fetch retrieves the record and prints or saves it as JSON.
func (c FetchCmd) Fetch(ctx context.Context, in FetchInput) error {
	pc, rec, err := c.fetcher.Fetch(ctx, in.URL)
	if err != nil {
		return util.CleanedUpError{Err: err}
	}
	if !pc.Supported() {
		pterm.Warning.Println("This page is not a validation rule, flow, Apex class or formula field.")
		return nil
	}

	if in.OutFile == "" {
		return util.PrintPrettyJSON(rec)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	if err := os.WriteFile(in.OutFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	pterm.Success.Printf("Saved %s %s to %s\n", pc.Kind, pc.ResourceID, in.OutFile)
	pterm.Info.Printf("Explain it later with: sfexplain explain --record %s --kind %s\n", in.OutFile, pc.Kind.Slug())
	return nil
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Print the Tooling API record behind a Salesforce page",
	Args:  cobra.ExactArgs(1),
	RunE:  runFetch,
}

func init() {
	fetchCmd.Flags().String("save", "", "Write the record to this file")
}

func runFetch(cmd *cobra.Command, args []string) error {
	a := getApp(cmd)
	save, _ := cmd.Flags().GetString("save")

	provider, err := a.sessionProvider()
	if err != nil {
		return err
	}
	client, err := a.salesforceClient(provider)
	if err != nil {
		return err
	}

	ctx, cancel := a.withTimeout(cmd.Context())
	defer cancel()

	c := FetchCmd{fetcher: explain.NewPipeline(provider, client, nil)}
	return c.Fetch(ctx, FetchInput{URL: args[0], OutFile: save})
}
