// Command stock-analyst serves the analyst API and runs one-off analyses from the shell.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"stock-analyst/agents"
	"stock-analyst/config"
	"stock-analyst/internal/api"
	"stock-analyst/observability"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config.Config{}

	rootCmd := &cobra.Command{
		Use:          "stock-analyst",
		Short:        "Stock analysis workflow for US and Indian equities",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil {
				fmt.Fprintln(os.Stderr, "No .env file found, using environment variables")
			}

			loaded, err := config.Load()
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				loaded.Log.Level = "debug"
			}
			*cfg = *loaded

			observability.InitLoggerWithLevel(cfg.Log.Format == "json", observability.ParseLevel(cfg.Log.Level))
			observability.InitMetrics()
			return nil
		},
	}
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	rootCmd.AddCommand(newServeCmd(cfg))
	rootCmd.AddCommand(newAnalyzeCmd(cfg))
	rootCmd.AddCommand(newTrendingCmd(cfg))

	return rootCmd
}

func newServeCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cfg)
		},
	}
}

// runServe blocks until ctx is cancelled, then drains in-flight requests
func runServe(ctx context.Context, cfg *config.Config) error {
	c, err := wire(ctx, cfg)
	if err != nil {
		return err
	}
	application, err := newApp(c)
	if err != nil {
		c.close()
		return err
	}
	defer application.Shutdown()

	if c.repo != nil && cfg.Database.CacheSweepMinutes > 0 {
		go c.repo.SweepCache(ctx, time.Duration(cfg.Database.CacheSweepMinutes)*time.Minute)
	}

	handler := api.NewHandler(application, cfg)
	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      api.NewRouter(handler, cfg),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: time.Duration(cfg.Workflow.TimeoutSeconds+30) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		observability.Info("starting HTTP server", "addr", cfg.HTTP.Addr, "mode", cfg.Workflow.Mode, "llm", cfg.LLM.Provider)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	observability.Info("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	observability.Info("HTTP server stopped")
	return nil
}

func newAnalyzeCmd(cfg *config.Config) *cobra.Command {
	var ticker, query, mode string

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run one query through the analyst workflow and print the resulting state as JSON",
		Example: `  stock-analyst analyze --ticker AAPL --query "Should I buy Apple?"
  stock-analyst analyze --ticker RELIANCE.NS --query "Outlook?" --mode basic`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if mode != "" {
				cfg.Workflow.Mode = strings.ToLower(mode)
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			return runAnalyze(cmd.Context(), cfg, strings.ToUpper(strings.TrimSpace(ticker)), query)
		},
	}

	cmd.Flags().StringVar(&ticker, "ticker", "", "Ticker symbol, e.g. AAPL or TCS.NS")
	cmd.Flags().StringVar(&query, "query", "", "Question for the analyst")
	cmd.Flags().StringVar(&mode, "mode", "", "Pipeline mode: basic or advanced (defaults to PIPELINE_MODE)")
	_ = cmd.MarkFlagRequired("ticker")
	_ = cmd.MarkFlagRequired("query")

	return cmd
}

func runAnalyze(ctx context.Context, cfg *config.Config, ticker, query string) error {
	c, err := wire(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.close()

	state, err := c.workflow.Run(ctx, agents.Request{Ticker: ticker, Query: query})
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}
	return printJSON(state)
}

func newTrendingCmd(cfg *config.Config) *cobra.Command {
	var withMoves bool

	cmd := &cobra.Command{
		Use:   "trending",
		Short: "Discover today's trending tickers with web search",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := wire(ctx, cfg)
			if err != nil {
				return err
			}
			defer c.close()

			if c.discovery == nil {
				return errors.New("trending discovery requires SERPER_API_KEY")
			}
			tickers := c.discovery.Discover(ctx)

			if withMoves {
				return printJSON(agents.NewTrendingQuotes(c.market, cfg.Workflow.TrendingLimit).Moves(ctx, tickers))
			}
			for _, t := range tickers {
				fmt.Println(t)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&withMoves, "moves", false, "Also fetch quotes and print each ticker's move since the open")
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
