package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/vnmchuo/translate-gateway/config"
	"github.com/vnmchuo/translate-gateway/internal/auth"
	"github.com/vnmchuo/translate-gateway/internal/metrics"
	"github.com/vnmchuo/translate-gateway/internal/proxy"
	"github.com/vnmchuo/translate-gateway/internal/telemetry"
	"github.com/vnmchuo/translate-gateway/internal/translator"
	"github.com/vnmchuo/translate-gateway/internal/usage"
	"github.com/vnmchuo/translate-gateway/pkg/ratelimit"
)

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// 2. Init telemetry
	shutdownTracer, err := telemetry.InitTracer("translate-gateway", cfg)
	if err != nil {
		log.Fatalf("failed to init tracer: %v", err)
	}
	defer shutdownTracer()

	ctx := context.Background()

	// 3. Usage log (optional)
	var usageStore usage.Store
	if cfg.PostgresDSN != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("failed to connect postgres: %v", err)
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			log.Fatalf("failed to ping postgres: %v", err)
		}
		store := usage.NewPostgresStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			log.Fatalf("failed to prepare usage table: %v", err)
		}
		usageStore = store
		log.Println("PostgreSQL connected")
	}

	// 4. Rate limiter (optional)
	var limiter *ratelimit.Limiter
	if cfg.RateLimitRPM > 0 {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("failed to ping redis: %v", err)
		}
		limiter = ratelimit.NewLimiter(rdb, cfg.RateLimitRPM)
		log.Println("Redis connected")
	}

	// 5. Translation backend
	var backend translator.Translator = translator.New(cfg.TranslationAPIURL, cfg.TranslationTimeout)
	if cfg.BreakerFailures > 0 {
		backend = translator.NewBreaker(backend, cfg.BreakerFailures, cfg.BreakerCooldown)
	}

	// 6. Access control, metrics, handler
	policy := auth.NewPolicy(cfg.APIKeyProtection, cfg.AllowedOrigins)
	collector := metrics.NewCollector(nil)
	tracer := otel.GetTracerProvider().Tracer("translate-gateway")
	handler := proxy.NewHandler(backend, usageStore, limiter, collector, tracer, cfg.StreamErrorEvents)

	// 7. Graceful shutdown
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      proxy.NewRouter(handler, policy, collector),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.WriteTimeout(),
		IdleTimeout:  120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Translate Gateway starting on %s", cfg.Addr())
		if policy.Protected() {
			log.Println("API protection: enabled")
		} else {
			log.Println("API protection: disabled")
		}
		log.Printf("CORS origins: %v", policy.AllowedOrigins())
		log.Printf("Translation API: %s", cfg.TranslationAPIURL)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-quit
	log.Println("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}
