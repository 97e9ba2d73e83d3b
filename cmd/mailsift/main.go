package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mailsift/mailsift/internal/adapters/queue"
	"github.com/mailsift/mailsift/internal/config"
	"github.com/mailsift/mailsift/internal/core"
	"github.com/mailsift/mailsift/internal/di"
)

func main() {
	// Build the dependency injection container
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	cfg *config.Config,
	logger *zap.Logger,
	corpus core.Corpus,
	counter core.RelayCounter,
	analyzer core.TextAnalyzer,
	stats core.StatsRecorder,
	watcher *queue.Watcher,
) error {
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := seedCredentials(ctx, cfg, corpus, logger); err != nil {
		logger.Fatal("Failed to seed credentials", zap.Error(err))
		return err
	}

	// The scheduler owns counter resets; the gatekeeper only increments.
	resetInterval := cfg.GetRelay().CounterResetInterval
	go runCounterReset(ctx, counter, resetInterval, logger)

	if addr := cfg.GetStats().MetricsListenAddr; addr != "" {
		go serveMetrics(addr, logger)
	}

	watcherErr := make(chan error, 1)
	go func() {
		watcherErr <- watcher.Run(ctx)
	}()
	logger.Info("mailsift started", zap.String("queue", cfg.GetQueue().Path))

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("Shutting down...")
	case err := <-watcherErr:
		if err != nil && err != context.Canceled {
			logger.Error("Queue watcher stopped", zap.Error(err))
		}
	}
	cancel()

	if err := watcher.Stop(); err != nil {
		logger.Error("Failed to stop queue watcher", zap.Error(err))
	}

	// Close any resources that need closing
	if closer, ok := analyzer.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close analyzer", zap.Error(err))
		}
	}
	if closer, ok := stats.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close statistics recorder", zap.Error(err))
		}
	}
	if closer, ok := corpus.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close corpus", zap.Error(err))
		}
	}

	logger.Info("Shutdown complete")
	return nil
}

func seedCredentials(ctx context.Context, cfg *config.Config, corpus core.Corpus, logger *zap.Logger) error {
	configured, err := cfg.GetCredentials()
	if err != nil {
		return fmt.Errorf("reading credentials: %w", err)
	}
	if len(configured) == 0 {
		return nil
	}
	creds := make([]core.Credential, len(configured))
	for i, c := range configured {
		creds[i] = core.Credential{Username: c.Username, Password: c.Password}
	}
	if err := corpus.SeedCredentials(ctx, creds); err != nil {
		return fmt.Errorf("seeding credentials: %w", err)
	}
	logger.Info("Credentials seeded", zap.Int("count", len(creds)))
	return nil
}

func runCounterReset(ctx context.Context, counter core.RelayCounter, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			used := counter.Count()
			counter.Reset()
			logger.Info("Relay counter reset", zap.Int64("used", used))
		}
	}
}

func serveMetrics(addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("Serving metrics", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("Metrics server stopped", zap.Error(err))
	}
}
