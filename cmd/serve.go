package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/kernel/sfexplain/internal/bridge"
)

// BridgeServer serves bridge requests. *bridge.Server implements it.
type BridgeServer interface {
	ListenAndServe(ctx context.Context, addr string) error
}

// ServeCmd runs the local bridge for the browser extension.
type ServeCmd struct {
	server BridgeServer
}

// ServeInput holds input for the bridge.
type ServeInput struct {
	Addr string
}

// Serve blocks until ctx is cancelled.
func (c ServeCmd) Serve(ctx context.Context, in ServeInput) error {
	pterm.Info.Printf("Bridge listening on ws://%s (Ctrl+C to stop)\n", in.Addr)
	if err := c.server.ListenAndServe(ctx, in.Addr); err != nil {
		return err
	}
	pterm.Success.Println("Bridge stopped")
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local websocket bridge for the browser extension",
	Long: `Serve page checks, session lookups and explanations to the sfexplain browser
extension over a websocket on the loopback interface. Only extension origins and
origins passed with --allow-origin may connect.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default serve_addr from config)")
	serveCmd.Flags().StringSlice("allow-origin", nil, "Additional exact origins allowed to connect")
}

func runServe(cmd *cobra.Command, args []string) error {
	a := getApp(cmd)
	addr, _ := cmd.Flags().GetString("addr")
	origins, _ := cmd.Flags().GetStringSlice("allow-origin")
	if addr == "" {
		addr = a.cfg.ServeAddr
	}

	ch, err := a.chain()
	if err != nil {
		return err
	}
	runner := timedRunner{next: ch.pipeline, timeout: a.cfg.Timeout}

	dispatcher := bridge.NewDispatcher(ch.sessions, runner, ch.service, a.log.Named("bridge"))
	server := bridge.NewServer(dispatcher,
		bridge.WithServerLogger(a.log.Named("bridge")),
		bridge.WithAllowedOrigins(origins...),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return ServeCmd{server: server}.Serve(ctx, ServeInput{Addr: addr})
}
