package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/joho/godotenv"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kernel/sfexplain/internal/config"
	"github.com/kernel/sfexplain/internal/explain"
	"github.com/kernel/sfexplain/internal/llm"
	"github.com/kernel/sfexplain/internal/obfuscate"
	"github.com/kernel/sfexplain/internal/salesforce"
	"github.com/kernel/sfexplain/internal/session"
)

// Metadata describes the build.
type Metadata struct {
	Version string
	Commit  string
	Date    string
}

var metadata = Metadata{Version: "dev"}

// SIDEnv supplies a sid cookie value directly.
const SIDEnv = "SFEXPLAIN_SID"

var rootCmd = &cobra.Command{
	Use:   "sfexplain",
	Short: "Explain Salesforce configuration in plain language",
	Long: `sfexplain explains Salesforce validation rules, flows, Apex classes and
formula fields. It reads the metadata behind a setup page URL through the
Tooling API using your browser session, hides field names from the model and
restores them in the explanation.`,
	SilenceUsage:      true,
	PersistentPreRunE: setupApp,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	pf.String("log-file", "", "Log file path, - for stderr (default <config dir>/sfexplain.log)")
	pf.String("sid", "", "Salesforce sid cookie value to use instead of reading browser cookies")
	config.RegisterFlags(pf)

	rootCmd.AddCommand(explainCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(obfuscateCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(localCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(statusCmd)
}

// Execute runs the root command.
func Execute(m Metadata) {
	metadata = m
	registerCompletions()
	if err := fang.Execute(context.Background(), rootCmd, fang.WithVersion(m.Version)); err != nil {
		os.Exit(1)
	}
}

// app is the per-invocation state built before any command runs.
type app struct {
	dir string
	cfg *config.Config
	log *zap.Logger

	sid            string
	keyringSession bool

	store *obfuscate.Store
}

type appKey struct{}

func setupApp(cmd *cobra.Command, args []string) error {
	// A missing .env is normal.
	_ = godotenv.Load()

	dir, err := config.Dir()
	if err != nil {
		return err
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return err
	}
	if err := cfg.ApplyFlags(cmd.Flags()); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, _ := cmd.Flags().GetString("log-level")
	logFile, _ := cmd.Flags().GetString("log-file")
	log, err := newLogger(level, logFile, dir)
	if err != nil {
		return err
	}

	sid, _ := cmd.Flags().GetString("sid")
	if sid == "" {
		sid = strings.TrimSpace(os.Getenv(SIDEnv))
	}
	a := &app{
		dir:            dir,
		cfg:            cfg,
		log:            log,
		sid:            sid,
		keyringSession: cfg.SessionCache == config.CacheKeyring,
		store:          obfuscate.NewStore(),
	}
	cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, a))
	return nil
}

func getApp(cmd *cobra.Command) *app {
	if a, ok := cmd.Context().Value(appKey{}).(*app); ok {
		return a
	}
	pterm.Error.Println("sfexplain was not initialised")
	os.Exit(1)
	return nil
}

// newLogger builds a JSON zap logger writing to path. The default path lives in
// the config directory so diagnostics never mix with command output.
func newLogger(level, path, dir string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	switch path {
	case "":
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}
		path = filepath.Join(dir, "sfexplain.log")
	case "-":
		path = "stderr"
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.OutputPaths = []string{path}
	zc.ErrorOutputPaths = []string{"stderr"}
	zc.EncoderConfig.TimeKey = "timestamp"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	log, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return log, nil
}

// cookieStore chains the configured cookie sources: --sid first, then the
// cookies.txt export, then the Firefox profile.
func (a *app) cookieStore() (session.CookieStore, error) {
	var chain session.ChainCookieStore
	if a.sid != "" {
		chain = append(chain, session.StaticCookieStore{SID: a.sid})
	}
	if a.cfg.CookieFile != "" {
		chain = append(chain, session.CookieFileStore{Path: a.cfg.CookieFile})
	}
	if a.cfg.FirefoxProfile != "" {
		chain = append(chain, session.FirefoxCookieStore{ProfileDir: a.cfg.FirefoxProfile})
	}
	if len(chain) == 0 {
		return nil, errors.New("no session source configured: pass --sid, set SFEXPLAIN_SID, or configure cookie_file or firefox_profile")
	}
	return chain, nil
}

func (a *app) sessionProvider() (*session.Provider, error) {
	cookies, err := a.cookieStore()
	if err != nil {
		return nil, err
	}
	var cache session.Cache = session.NewMemoryCache()
	if a.keyringSession {
		cache = session.NewKeyringCache()
	}
	return session.NewProvider(cookies, cache, session.WithLogger(a.log.Named("session"))), nil
}

func (a *app) salesforceClient(inv salesforce.Invalidator) (*salesforce.Client, error) {
	return salesforce.NewClient(a.cfg.APIVersion,
		salesforce.WithInvalidator(inv),
		salesforce.WithLogger(a.log.Named("salesforce")),
	)
}

func (a *app) completer() *llm.Client {
	key, source, err := config.APIKey(os.Getenv)
	if err != nil {
		// Without a key the model call fails with a hint to run config set-key.
		a.log.Warn("failed to read API key", zap.Error(err))
	}
	a.log.Debug("resolved API key", zap.String("source", source))
	return llm.NewClient(key,
		llm.WithBaseURL(a.cfg.OpenAIBaseURL),
		llm.WithModel(a.cfg.Model),
		llm.WithLogger(a.log.Named("llm")),
	)
}

func (a *app) service() *explain.Service {
	return explain.NewService(a.completer(), a.cfg.ExplainOptions(),
		explain.WithStore(a.store),
		explain.WithLogger(a.log.Named("explain")),
	)
}

// chain is the fully wired explanation chain.
type chain struct {
	sessions *session.Provider
	client   *salesforce.Client
	service  *explain.Service
	pipeline *explain.Pipeline
}

// chain wires sessions, the Tooling API client and the service.
func (a *app) chain() (*chain, error) {
	provider, err := a.sessionProvider()
	if err != nil {
		return nil, err
	}
	client, err := a.salesforceClient(provider)
	if err != nil {
		return nil, err
	}
	svc := a.service()
	return &chain{
		sessions: provider,
		client:   client,
		service:  svc,
		pipeline: explain.NewPipeline(provider, client, svc),
	}, nil
}

// timedRunner bounds every run with the configured timeout. The bridge and
// MCP server use it because they serve many requests from one context.
type timedRunner struct {
	next    PipelineRunner
	timeout time.Duration
}

func (r timedRunner) Run(ctx context.Context, rawURL string) (explain.Outcome, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return r.next.Run(ctx, rawURL)
}

// withTimeout applies the configured request timeout. Zero disables it.
func (a *app) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.cfg.Timeout)
}
