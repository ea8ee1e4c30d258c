// Package main provides a standalone HTTP server for E2E testing.
// It serves the real API and workflow, with the model, Yahoo Finance and Serper
// answered by an in-process mock upstream, making it suitable for browser and
// contract tests of API clients.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stock-analyst/config"
	"stock-analyst/e2e"
	"stock-analyst/observability"
)

func main() {
	// Initialize logger in development mode for tests
	observability.InitLogger(false)
	observability.InitMetrics()

	port := os.Getenv("E2E_SERVER_PORT")
	if port == "" {
		port = "9090"
	}
	mode := os.Getenv("E2E_PIPELINE_MODE")
	if mode == "" {
		mode = config.ModeAdvanced
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stack, err := e2e.NewStack(ctx, mode, e2e.DatabaseURL())
	if err != nil {
		observability.Fatal("failed to build e2e stack", "error", err)
	}
	defer stack.Close()

	if err := stack.CleanData(ctx); err != nil {
		observability.Warn("failed to clear previous test data", "error", err)
	}
	observability.Info("connected to test database", "mock_upstream", stack.Mock.URL(), "mode", mode)

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      stack.Router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: time.Duration(stack.Config.Workflow.TimeoutSeconds+30) * time.Second,
	}

	go func() {
		observability.Info("starting E2E test server", "port", port, "url", fmt.Sprintf("http://localhost:%s", port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			observability.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	observability.Info("shutting down E2E test server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		observability.Error("server forced to shutdown", "error", err)
	}
	observability.Info("E2E test server stopped")
}
