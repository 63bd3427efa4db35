// tskulisproxyd runs the offline caching engine as a reverse proxy in
// front of the news-site origin. It is the hosting-runtime adapter: it
// turns HTTP traffic and admin endpoints into the worker's lifecycle
// events.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/bkalafat/tskulis-sub002/cachestore"
	"github.com/bkalafat/tskulis-sub002/config"
	"github.com/bkalafat/tskulis-sub002/logger"
	"github.com/bkalafat/tskulis-sub002/strategy"
	"github.com/bkalafat/tskulis-sub002/telemetry"
	"github.com/bkalafat/tskulis-sub002/worker"
)

var (
	listenAddr   string
	upstreamURL  string
	redisURL     string
	configPath   string
	logFormat    string
	logLevel     string
	otlpURL      string
	syncInterval time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "tskulisproxyd",
	Short: "Offline caching proxy for the Tskulis news site",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVar(&listenAddr, "listen", ":8080", "address to listen on")
	rootCmd.Flags().StringVar(&upstreamURL, "upstream", "", "origin base URL (required)")
	rootCmd.Flags().StringVar(&redisURL, "redis", "", "redis URL for a shared cache store (in-memory when empty)")
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to a YAML caching config")
	rootCmd.Flags().StringVar(&logFormat, "log-format", "console", "log format: console or json")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	rootCmd.Flags().StringVar(&otlpURL, "otlp-url", "", "OTLP endpoint for traces (disabled when empty)")
	rootCmd.Flags().DurationVar(&syncInterval, "sync-interval", 5*time.Minute, "deferred write replay interval")
	rootCmd.MarkFlagRequired("upstream")
}

func newLogger() logger.Logger {
	level := logger.GetLevelFromEnv()
	if logLevel != "" {
		level = logger.ParseLevel(logLevel)
	}
	if logFormat == "json" {
		return logger.NewJSONLogger(level)
	}
	return logger.NewConsoleLogger(level)
}

func newStore(ctx context.Context, log logger.Logger) (cachestore.Store, error) {
	if redisURL == "" {
		return cachestore.NewInMemory(), nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	log.Info("using redis cache store at %s", opts.Addr)
	return cachestore.NewRedis(client), nil
}

func run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := newLogger()

	if otlpURL != "" {
		shutdown, err := telemetry.New(ctx, otlpURL, "tskulisproxyd")
		if err != nil {
			return err
		}
		defer shutdown()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	store, err := newStore(ctx, log)
	if err != nil {
		return err
	}
	defer store.Close()

	fetcher := strategy.NewHTTPFetcher(&http.Client{}, upstreamURL)
	w := worker.New(cfg, store, fetcher, log)

	if err := w.Install(ctx); err != nil {
		return fmt.Errorf("install: %w", err)
	}
	if err := w.Activate(ctx); err != nil {
		return fmt.Errorf("activate: %w", err)
	}

	srv := &http.Server{
		Addr:    listenAddr,
		Handler: newHandler(w, cfg.SyncTag, upstreamURL, log),
	}

	go func() {
		ticker := time.NewTicker(syncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := w.HandleSync(ctx, cfg.SyncTag); err != nil {
					log.Warn("sync failed: %s", err)
				}
			}
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		w.Wait()
	}()

	log.Info("worker %s (%s) serving on %s, upstream %s", w.ID(), w.Version(), listenAddr, upstreamURL)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
