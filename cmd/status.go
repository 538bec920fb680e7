package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/kernel/sfexplain/internal/config"
	"github.com/kernel/sfexplain/pkg/util"
)

type statusComponent struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

type statusGroup struct {
	Name       string            `json:"name"`
	Status     string            `json:"status"`
	Components []statusComponent `json:"components"`
}

type statusResponse struct {
	Status string        `json:"status"`
	Groups []statusGroup `json:"groups"`
}

const (
	statusOK      = "ok"
	statusWarning = "warning"
	statusMissing = "missing"
	statusDown    = "unreachable"
)

// StatusCmd reports whether sfexplain is ready to explain pages.
type StatusCmd struct {
	dir    string
	cfg    *config.Config
	sid    string
	getenv func(string) string
	// probe checks that a URL answers HTTP at all.
	probe func(ctx context.Context, url string) error
}

// StatusInput holds input for the status check.
type StatusInput struct {
	Output string
}

// Status checks configuration, credentials, cookie sources and the model API.
func (c StatusCmd) Status(ctx context.Context, in StatusInput) error {
	if in.Output != "" && in.Output != "json" {
		return fmt.Errorf("unsupported --output value: use 'json'")
	}

	resp := statusResponse{Groups: []statusGroup{
		group("Configuration", c.configComponents()),
		group("Salesforce session", c.sessionComponents()),
		group("Model", c.modelComponents(ctx)),
	}}
	resp.Status = worst(resp.Groups)

	if in.Output == "json" {
		return util.PrintPrettyJSON(resp)
	}
	printStatus(resp)
	return nil
}

func (c StatusCmd) configComponents() []statusComponent {
	path := filepath.Join(c.dir, config.FileName)
	file := statusComponent{Name: "Config file", Status: statusOK, Detail: path}
	if _, err := os.Stat(path); err != nil {
		file.Status, file.Detail = statusWarning, "using defaults ("+path+" not found)"
	}
	obf := statusComponent{Name: "Field obfuscation", Status: statusOK, Detail: "on"}
	if !c.cfg.ObfuscateFields {
		obf.Status, obf.Detail = statusWarning, "off: field names are sent to the model"
	}
	build := statusComponent{Name: "Version", Status: statusOK, Detail: metadata.Version}
	if metadata.Commit != "" {
		build.Detail += " (" + metadata.Commit + ", " + metadata.Date + ")"
	}
	return []statusComponent{build, file, obf}
}

func (c StatusCmd) sessionComponents() []statusComponent {
	var comps []statusComponent
	if c.sid != "" {
		comps = append(comps, statusComponent{Name: "sid override", Status: statusOK, Detail: "--sid or " + SIDEnv})
	}
	if c.cfg.CookieFile != "" {
		comps = append(comps, fileComponent("Cookie file", c.cfg.CookieFile))
	}
	if c.cfg.FirefoxProfile != "" {
		comps = append(comps, fileComponent("Firefox profile", filepath.Join(c.cfg.FirefoxProfile, "cookies.sqlite")))
	}
	if len(comps) == 0 {
		comps = append(comps, statusComponent{Name: "Cookie source", Status: statusMissing, Detail: "set --sid, cookie_file or firefox_profile"})
	}
	comps = append(comps, statusComponent{Name: "Session cache", Status: statusOK, Detail: c.cfg.SessionCache})
	return comps
}

func (c StatusCmd) modelComponents(ctx context.Context) []statusComponent {
	key := statusComponent{Name: "OpenAI API key", Status: statusOK}
	k, source, err := config.APIKey(c.getenv)
	switch {
	case err != nil:
		key.Status, key.Detail = statusWarning, err.Error()
	case k == "":
		key.Status, key.Detail = statusMissing, "run `sfexplain config set-key`"
	default:
		key.Detail = config.MaskKey(k) + " from " + source
	}

	api := statusComponent{Name: "API endpoint", Status: statusOK, Detail: c.cfg.OpenAIBaseURL + " (" + c.cfg.Model + ")"}
	if err := c.probe(ctx, strings.TrimRight(c.cfg.OpenAIBaseURL, "/")+"/v1/models"); err != nil {
		api.Status, api.Detail = statusDown, util.CleanedUpError{Err: err}.Error()
	}
	return []statusComponent{key, api}
}

func fileComponent(name, path string) statusComponent {
	if _, err := os.Stat(path); err != nil {
		return statusComponent{Name: name, Status: statusMissing, Detail: path + " not found"}
	}
	return statusComponent{Name: name, Status: statusOK, Detail: path}
}

func group(name string, comps []statusComponent) statusGroup {
	g := statusGroup{Name: name, Components: comps}
	g.Status = worst([]statusGroup{{Components: comps}})
	return g
}

var severity = map[string]int{statusOK: 0, statusWarning: 1, statusMissing: 2, statusDown: 2}

// worst returns the most severe component status across groups.
func worst(groups []statusGroup) string {
	out := statusOK
	for _, g := range groups {
		for _, comp := range g.Components {
			if severity[comp.Status] > severity[out] {
				out = comp.Status
			}
		}
	}
	return out
}

var statusDisplay = map[string]struct {
	label string
	rgb   pterm.RGB
}{
	statusOK:      {label: "Ready", rgb: pterm.NewRGB(31, 163, 130)},
	statusWarning: {label: "Warning", rgb: pterm.NewRGB(245, 158, 11)},
	statusMissing: {label: "Missing", rgb: pterm.NewRGB(242, 85, 51)},
	statusDown:    {label: "Unreachable", rgb: pterm.NewRGB(239, 68, 68)},
}

func getStatusDisplay(status string) (string, pterm.RGB) {
	if d, ok := statusDisplay[status]; ok {
		return d.label, d.rgb
	}
	return "Unknown", pterm.NewRGB(128, 128, 128)
}

func coloredDot(rgb pterm.RGB) string {
	return rgb.Sprint("●")
}

func printStatus(resp statusResponse) {
	label, rgb := getStatusDisplay(resp.Status)
	pterm.Println()
	pterm.Println("  " + fmt.Sprintf("sfexplain: %s", rgb.Sprint(label)))

	for _, g := range resp.Groups {
		pterm.Println()
		pterm.Println("  " + pterm.Bold.Sprint(g.Name))
		for _, comp := range g.Components {
			compLabel, compColor := getStatusDisplay(comp.Status)
			pterm.Printf("    %s %-20s %-12s %s\n", coloredDot(compColor), comp.Name, compLabel, comp.Detail)
		}
	}
	pterm.Println()
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check that sfexplain is ready to explain pages",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringP("output", "o", "", "Output format (json)")
}

// probeURL reports an error only when no HTTP response arrives. Any status
// code, including 401 without a key, means the endpoint is reachable.
func probeURL(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func runStatus(cmd *cobra.Command, args []string) error {
	a := getApp(cmd)
	output, _ := cmd.Flags().GetString("output")
	c := StatusCmd{dir: a.dir, cfg: a.cfg, sid: a.sid, getenv: os.Getenv, probe: probeURL}
	return c.Status(cmd.Context(), StatusInput{Output: output})
}
