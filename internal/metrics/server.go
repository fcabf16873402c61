package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// AddrEnvVar overrides the -metrics-addr default of the binaries.
	AddrEnvVar = "LINEAGE_METRICS_ADDR"

	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// Handler serves the default registry on /metrics.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

// Serve serves Handler on listener until ctx is done.
func Serve(ctx context.Context, listener net.Listener, logger *slog.Logger) error {
	server := &http.Server{
		Handler:           Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error shutting down metrics server", slog.String("error", err.Error()))
		}
	}()

	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server failed: %w", err)
	}

	return nil
}

// Start listens on addr and serves metrics in the background until ctx is done.
// Listen errors are returned; later serve errors are logged.
func Start(ctx context.Context, addr string, logger *slog.Logger) error {
	var lc net.ListenConfig

	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start prometheus metrics server listener on %s: %w", addr, err)
	}

	logger.Info("Prometheus metrics server listening", slog.String("address", listener.Addr().String()))

	go func() {
		if err := Serve(ctx, listener, logger); err != nil {
			logger.Error("Prometheus metrics server stopped", slog.String("error", err.Error()))
		}
	}()

	return nil
}
