package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"lhihi/internal/server"
)

var serveAddr string

// serveCmd runs the HTTP API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serves the generation, classification and conversation endpoints.

When policy.watch is set, the policy file is reloaded on every write; an
invalid file is rejected and the previous table stays active.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	a, err := newApp(ctx, cfg, appOptions{withStore: true})
	if err != nil {
		return err
	}
	defer a.Close()

	srv := server.New(cfg, server.Deps{
		Router:   a.router,
		Sessions: a.sessions,
		Store:    a.store,
		Version:  cfg.Version,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Serve(gctx) })
	if cfg.Policy.Watch && cfg.Policy.Path != "" {
		g.Go(func() error { return a.policies.Watch(gctx, cfg.Policy.Path) })
	}

	logger.Info("serving", zap.String("addr", cfg.Server.Addr), zap.String("store", a.store.Driver()))
	return g.Wait()
}
