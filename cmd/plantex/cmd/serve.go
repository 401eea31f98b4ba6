package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/MeKo-Tech/plantex/internal/server"
	"github.com/MeKo-Tech/plantex/internal/version"
	"github.com/spf13/cobra"
)

func newServeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP server for the classification API",
		Long: `Start an HTTP server that classifies uploaded images.

The server provides the following endpoints:
  POST /classify     - Classify an uploaded image (multipart field "image")
  GET  /ws/classify  - WebSocket endpoint for streaming classification
  GET  /health       - Health check endpoint
  GET  /models       - List known model files
  GET  /metrics      - Prometheus metrics

Examples:
  plantex serve
  plantex serve --port 8080
  plantex serve --host 0.0.0.0 --port 3000 --rate-limit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runServe(cmd)
		},
	}

	f := cmd.Flags()
	f.StringP("host", "H", "localhost", "server host")
	f.IntP("port", "p", 8080, "server port")
	f.String("cors-origin", "*", "CORS allowed origins")
	f.Int("max-upload-size", 50, "maximum upload size in MB")
	f.Int("timeout", 30, "request timeout in seconds")
	f.Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	f.Int("instances", 1, "number of classifiers serving requests in parallel")
	f.String("model", "", "model file (default: <models-dir>/plantex_classifier.onnx)")
	f.String("labels", "", "label file (default: <models-dir>/plantex_labels.txt)")
	f.Bool("softmax", false, "apply softmax to float model outputs")
	f.Int("warmup", 0, "warmup inferences per classifier before serving")
	f.Bool("rate-limit", false, "enable per-client rate limiting")
	f.Int("requests-per-min", 60, "maximum requests per minute per client")
	f.Int("requests-per-hour", 1000, "maximum requests per hour per client")
	return cmd
}

func (a *app) runServe(cmd *cobra.Command) error {
	pool, err := a.openPool(0)
	if err != nil {
		return err
	}

	srvCfg := a.cfg.ToServerConfig()
	srvCfg.Version = version.Get().Version
	apiServer, err := server.NewServer(srvCfg, pool)
	if err != nil {
		closePool(pool)
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	mux := http.NewServeMux()
	apiServer.SetupRoutes(mux)

	addr := net.JoinHostPort(srvCfg.Host, strconv.Itoa(srvCfg.Port))
	timeout := time.Duration(srvCfg.TimeoutSec) * time.Second
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       timeout,
		WriteTimeout:      timeout,
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	go apiServer.PruneIdleClients(ctx, 10*time.Minute, 24*time.Hour)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Starting classification server", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("Received shutdown signal")
	case err, ok := <-serveErr:
		if ok {
			slog.Error("Server error", "error", err)
			runErr = fmt.Errorf("server error: %w", err)
		}
	}

	slog.Info("Starting graceful shutdown", "timeout", fmt.Sprintf("%ds", srvCfg.ShutdownTimeout))
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		time.Duration(srvCfg.ShutdownTimeout)*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server shutdown completed")
	}

	if err := apiServer.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error closing server: %v\n", err)
	}
	slog.Info("Graceful shutdown completed")
	return runErr
}
