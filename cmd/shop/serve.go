package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/shopcompare/internal/cli"
	"github.com/Veraticus/shopcompare/internal/common"
	"github.com/Veraticus/shopcompare/internal/config"
	"github.com/Veraticus/shopcompare/internal/metrics"
	"github.com/Veraticus/shopcompare/internal/natsbus"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Share the local database over NATS",
		Long: `Serve the local database to remote clients over NATS so several
terminals can follow the same live feeds. With --embedded a NATS server is
started in-process on the configured URL.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().Bool("embedded", false, "start an in-process NATS server")
	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	_ = viper.BindPFlag(config.KeyNATSEmbedded, cmd.Flags().Lookup("embedded"))
	_ = viper.BindPFlag(config.KeyMetricsAddr, cmd.Flags().Lookup("metrics-addr"))
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := initStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	natsURL := cfg.NATSURL
	if cfg.NATSEmbedded {
		host, port, err := listenAddress(cfg.NATSURL)
		if err != nil {
			return err
		}
		broker, err := natsbus.StartEmbedded(host, port)
		if err != nil {
			return fmt.Errorf("failed to start embedded NATS: %w", err)
		}
		defer broker.Shutdown()
		natsURL = broker.ClientURL()
	}

	nc, err := nats.Connect(natsURL,
		nats.Name("shop-serve"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", natsURL, err)
	}
	defer nc.Close()

	bridge := natsbus.NewServer(nc, store, natsbus.ServerOptions{Prefix: cfg.NATSPrefix})
	if err := bridge.Start(ctx); err != nil {
		return err
	}
	defer bridge.Close()

	if cfg.MetricsAddr != "" {
		stop := serveMetrics(cfg.MetricsAddr)
		defer stop()
	}

	cmd.Println(cli.FormatSuccess(fmt.Sprintf("Serving %s on %s (prefix %q)", cfg.DatabasePath, natsURL, cfg.NATSPrefix)))
	cmd.Println(cli.SubtleStyle.Render("Press Ctrl+C to stop"))

	<-ctx.Done()
	return nil
}

// listenAddress extracts the host and port an embedded server should bind
// from a client URL.
func listenAddress(raw string) (string, int, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", 0, fmt.Errorf("invalid NATS URL %q: %w", raw, err)
	}
	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		return u.Hostname(), nats.DefaultPort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid NATS port %q: %w", portStr, err)
	}
	return host, port, nil
}

func serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			common.LogError(err, "Metrics server stopped", common.Fields{"addr": addr})
		}
	}()
	common.LogInfo("Metrics available", common.Fields{"addr": addr, "path": "/metrics"})

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
