package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"integrate/internal/config"
	"integrate/internal/detect"
	"integrate/internal/oauth"
	"integrate/internal/server"
	"integrate/pkg/logging"
)

var servePort int

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the OAuth endpoints",
		Long: `Starts an HTTP server exposing the OAuth actions (authorize, callback,
status, disconnect) for the providers in the configuration, plus /healthz
and /metrics.

Flows and sessions are kept in memory unless a valkey section configures a
shared store.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides server.port)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv, cleanup, err := buildServer(cfg, reg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return <-errCh
}

// buildServer wires the stores, the OAuth manager and the HTTP server from
// cfg. The returned cleanup releases the store connection and background
// sweepers.
func buildServer(cfg config.Config, reg *prometheus.Registry) (*server.Server, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	metrics, err := oauth.NewMetrics(reg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	mcfg := oauth.Config{
		StateTTL:     cfg.Server.StateTTL,
		ExpiryMargin: cfg.Server.ExpiryMargin,
		Metrics:      metrics,
	}
	for _, p := range cfg.Providers {
		mcfg.Providers = append(mcfg.Providers, p.OAuth())
	}

	if cfg.Valkey.Enabled() {
		client, err := oauth.DialValkey(cfg.Valkey.Options())
		if err != nil {
			return nil, nil, err
		}
		cleanups = append(cleanups, client.Close)
		store := oauth.NewValkeyStore(client, cfg.Valkey.Prefix, nil)
		mcfg.Pending = store
		mcfg.Sessions = store
		logging.Info("Serve", "Using valkey store at %v", cfg.Valkey.Addrs)
	}

	manager, err := oauth.NewManager(mcfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	cleanups = append(cleanups, manager.Stop)

	srv, err := server.New(server.Options{
		Addr:        net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Manager:     manager,
		OAuthPrefix: cfg.Server.OAuthPrefix,
		MetricsPath: cfg.Server.MetricsPath,
		Gatherer:    reg,
		Detectors:   detect.DefaultChain(),
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	logging.Info("Serve", "Configured %d OAuth provider(s)", len(mcfg.Providers))
	return srv, cleanup, nil
}
