// Package main implements the VIN Wizard web server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/WessleyAI/vinwizard/engine/estimate"
	"github.com/WessleyAI/vinwizard/engine/history"
	"github.com/WessleyAI/vinwizard/engine/lookup"
	"github.com/WessleyAI/vinwizard/engine/vpic"
	"github.com/WessleyAI/vinwizard/pkg/metrics"
	"github.com/WessleyAI/vinwizard/pkg/natsutil"
)

// Config holds all environment-based configuration.
type Config struct {
	Port             string
	VPICBaseURL      string
	VPICTimeout      time.Duration
	VPICRate         float64
	VPICBurst        int
	BreakerThreshold int
	BreakerCooldown  time.Duration
	CacheSize        int
	CacheTTL         time.Duration
	HistoryBackend   string
	HistoryDir       string
	NATSURL          string
	NATSBucket       string
	Neo4jURL         string
	Neo4jUser        string
	Neo4jPass        string
	Neo4jDatabase    string
	CORSOrigin       string
	LookupRate       float64
	ClampYearFactor  bool
	ServiceName      string
	LogLevel         string
}

func loadConfig() Config {
	return Config{
		Port:             envOr("PORT", "8080"),
		VPICBaseURL:      envOr("VPIC_BASE_URL", vpic.DefaultBaseURL),
		VPICTimeout:      envDuration("VPIC_TIMEOUT", 30*time.Second),
		VPICRate:         envFloat("VPIC_RATE", 5),
		VPICBurst:        envInt("VPIC_BURST", 5),
		BreakerThreshold: envInt("BREAKER_THRESHOLD", 5),
		BreakerCooldown:  envDuration("BREAKER_COOLDOWN", 30*time.Second),
		CacheSize:        envInt("CACHE_SIZE", 128),
		CacheTTL:         envDuration("CACHE_TTL", 10*time.Minute),
		HistoryBackend:   envOr("HISTORY_BACKEND", "memory"),
		HistoryDir:       envOr("HISTORY_DIR", "data/history"),
		NATSURL:          envOr("NATS_URL", ""),
		NATSBucket:       envOr("NATS_BUCKET", "vinwizard_history"),
		Neo4jURL:         envOr("NEO4J_URL", "neo4j://localhost:7687"),
		Neo4jUser:        envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:        envOr("NEO4J_PASS", "password"),
		Neo4jDatabase:    envOr("NEO4J_DATABASE", ""),
		CORSOrigin:       envOr("CORS_ORIGIN", "*"),
		LookupRate:       envFloat("LOOKUP_RATE", 2),
		ClampYearFactor:  envBool("VINWIZARD_CLAMP_YEAR_FACTOR", false),
		ServiceName:      envOr("OTEL_SERVICE_NAME", "vinwizard"),
		LogLevel:         envOr("VINWIZARD_LOG_LEVEL", "info"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return fallback
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func main() {
	cfg := loadConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Optional NATS connection (events, KV history) ---
	var nc *nats.Conn
	if cfg.NATSURL != "" || cfg.HistoryBackend == "nats" {
		url := cfg.NATSURL
		if url == "" {
			url = nats.DefaultURL
		}
		var err error
		nc, err = nats.Connect(url, nats.Name(cfg.ServiceName))
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Drain()
	}

	backend, closeBackend, err := openBackend(ctx, cfg, nc, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	reg := metrics.New()
	client := vpic.NewClient(vpic.Config{
		BaseURL:          cfg.VPICBaseURL,
		Timeout:          cfg.VPICTimeout,
		Rate:             cfg.VPICRate,
		Burst:            cfg.VPICBurst,
		BreakerThreshold: cfg.BreakerThreshold,
		BreakerCooldown:  cfg.BreakerCooldown,
	})

	opts := lookup.Options{
		CacheSize: cfg.CacheSize,
		CacheTTL:  cfg.CacheTTL,
		Timeout:   2 * cfg.VPICTimeout,
		Metrics:   reg,
		Logger:    logger,
	}
	if nc != nil {
		opts.Publisher = lookup.NewNATSPublisher(nc)
	}

	a, err := newApp(ctx, appDeps{
		lookups:  lookup.New(client, opts),
		decoder:  client,
		backend:  backend,
		metrics:  reg,
		estimate: estimate.Options{ClampYearFactor: cfg.ClampYearFactor},
		origin:   cfg.CORSOrigin,
		logger:   logger,
	})
	if err != nil {
		return err
	}
	defer a.wait()

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newHandler(a, cfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("vinwizard starting", "port", cfg.Port, "history", cfg.HistoryBackend)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// openBackend selects the history persistence named by cfg.HistoryBackend.
func openBackend(ctx context.Context, cfg Config, nc *nats.Conn, logger *slog.Logger) (history.Backend, func(), error) {
	noop := func() {}
	switch cfg.HistoryBackend {
	case "", "memory":
		return history.NewMemoryBackend(), noop, nil
	case "file":
		b, err := history.NewFileBackend(cfg.HistoryDir)
		return b, noop, err
	case "nats":
		if nc == nil {
			return nil, noop, fmt.Errorf("history backend nats: no connection")
		}
		kv, err := natsutil.OpenKV(ctx, nc, cfg.NATSBucket)
		if err != nil {
			return nil, noop, err
		}
		return history.NewKVBackend(kv), noop, nil
	case "neo4j":
		driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
		if err != nil {
			return nil, noop, fmt.Errorf("neo4j driver: %w", err)
		}
		closeDriver := func() {
			if err := driver.Close(context.Background()); err != nil {
				logger.Warn("neo4j close failed", "err", err)
			}
		}
		b, err := history.NewGraphBackend(ctx, driver, cfg.Neo4jDatabase)
		if err != nil {
			closeDriver()
			return nil, noop, err
		}
		return b, closeDriver, nil
	}
	return nil, noop, fmt.Errorf("unknown history backend %q", cfg.HistoryBackend)
}
