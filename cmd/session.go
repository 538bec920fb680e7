package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/browser"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/kernel/sfexplain/internal/config"
	"github.com/kernel/sfexplain/internal/session"
	"github.com/kernel/sfexplain/pkg/util"
)

// SessionManager looks up and invalidates sessions. *session.Provider
// implements it.
type SessionManager interface {
	Get(ctx context.Context, hostname string) (session.Session, error)
	Invalidate(hostname string)
}

// SessionCmd handles session operations.
type SessionCmd struct {
	sessions SessionManager
	openURL  func(url string) error
}

// SessionGetInput holds input for showing a session.
type SessionGetInput struct {
	Host      string
	ShowToken bool
	Output    string
}

// Get resolves the session for a host and prints it.
func (c SessionCmd) Get(ctx context.Context, in SessionGetInput) error {
	if in.Output != "" && in.Output != "json" {
		return fmt.Errorf("unsupported --output value: use 'json'")
	}
	host := hostArg(in.Host)
	sess, err := c.sessions.Get(ctx, host)
	if err != nil {
		return util.CleanedUpError{Err: err}
	}

	token := config.MaskKey(sess.Token)
	if in.ShowToken {
		token = sess.Token
	}
	expires := sess.ObtainedAt.Add(session.DefaultTTL)

	if in.Output == "json" {
		return util.PrintPrettyJSON(map[string]any{
			"host":        host,
			"api_host":    sess.APIHost,
			"token":       token,
			"obtained_at": sess.ObtainedAt,
			"expires_at":  expires,
		})
	}

	rows := pterm.TableData{{"Property", "Value"}}
	rows = append(rows, []string{"Host", host})
	rows = append(rows, []string{"API Host", sess.APIHost})
	rows = append(rows, []string{"Token", token})
	rows = append(rows, []string{"Obtained", sess.ObtainedAt.Format(time.RFC3339)})
	rows = append(rows, []string{"Cache Expires", expires.Format(time.RFC3339)})
	PrintTableNoPad(rows, true)
	return nil
}

// SessionClearInput holds input for clearing a cached session.
type SessionClearInput struct {
	Host string
}

// Clear drops the cached session so the next request reads cookies again.
func (c SessionCmd) Clear(in SessionClearInput) error {
	host := hostArg(in.Host)
	c.sessions.Invalidate(host)
	pterm.Success.Printf("Cleared cached session for %s\n", session.NormalizeHost(host))
	return nil
}

// SessionLoginInput holds input for opening the org login page.
type SessionLoginInput struct {
	Host string
}

// Login opens the org in the browser so a fresh sid cookie gets issued.
func (c SessionCmd) Login(in SessionLoginInput) error {
	u := "https://" + hostArg(in.Host) + "/"
	pterm.Info.Printf("Opening %s\n", u)
	if err := c.openURL(u); err != nil {
		pterm.Warning.Printf("Could not open a browser: %v\n", err)
		pterm.Info.Printf("Open %s manually, log in, then export your cookies.\n", u)
		return nil
	}
	pterm.Info.Println("Log in, then run `sfexplain session get` once your cookies are exported.")
	return nil
}

// hostArg accepts a bare hostname or a full URL.
func hostArg(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	return strings.ToLower(s)
}

// --- Cobra wiring ---

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage Salesforce sessions",
	Long:  "Commands for inspecting and clearing the sid sessions used to call the Tooling API",
}

var sessionGetCmd = &cobra.Command{
	Use:   "get <host>",
	Short: "Show the session for a Salesforce host",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionGet,
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear <host>",
	Short: "Clear the cached session for a Salesforce host",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionClear,
}

var sessionLoginCmd = &cobra.Command{
	Use:   "login <host>",
	Short: "Open the Salesforce org in your browser to log in",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionLogin,
}

func init() {
	sessionCmd.AddCommand(sessionGetCmd)
	sessionCmd.AddCommand(sessionClearCmd)
	sessionCmd.AddCommand(sessionLoginCmd)

	sessionGetCmd.Flags().Bool("show-token", false, "Print the full sid value")
	sessionGetCmd.Flags().StringP("output", "o", "", "Output format: json for raw JSON")
}

func newSessionCmd(cmd *cobra.Command) (SessionCmd, error) {
	provider, err := getApp(cmd).sessionProvider()
	if err != nil {
		return SessionCmd{}, err
	}
	return SessionCmd{sessions: provider, openURL: browser.OpenURL}, nil
}

func runSessionGet(cmd *cobra.Command, args []string) error {
	c, err := newSessionCmd(cmd)
	if err != nil {
		return err
	}
	showToken, _ := cmd.Flags().GetBool("show-token")
	output, _ := cmd.Flags().GetString("output")
	return c.Get(cmd.Context(), SessionGetInput{Host: args[0], ShowToken: showToken, Output: output})
}

func runSessionClear(cmd *cobra.Command, args []string) error {
	a := getApp(cmd)
	// Clearing needs only the cache, so it works without a cookie source.
	var cache session.Cache = session.NewMemoryCache()
	if a.keyringSession {
		cache = session.NewKeyringCache()
	}
	c := SessionCmd{sessions: session.NewProvider(session.StaticCookieStore{}, cache)}
	return c.Clear(SessionClearInput{Host: args[0]})
}

func runSessionLogin(cmd *cobra.Command, args []string) error {
	c := SessionCmd{openURL: browser.OpenURL}
	return c.Login(SessionLoginInput{Host: args[0]})
}
