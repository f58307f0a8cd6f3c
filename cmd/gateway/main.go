package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/vnmchuo/doc-gateway/config"
	"github.com/vnmchuo/doc-gateway/internal/account"
	"github.com/vnmchuo/doc-gateway/internal/auth"
	"github.com/vnmchuo/doc-gateway/internal/calllog"
	"github.com/vnmchuo/doc-gateway/internal/dev"
	"github.com/vnmchuo/doc-gateway/internal/docs"
	"github.com/vnmchuo/doc-gateway/internal/parser/gemini"
	"github.com/vnmchuo/doc-gateway/internal/seeder"
	"github.com/vnmchuo/doc-gateway/internal/telemetry"
	"github.com/vnmchuo/doc-gateway/internal/usage"
	"github.com/vnmchuo/doc-gateway/pkg/ratelimit"
)

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// 2. Init telemetry
	shutdownTracer, err := telemetry.InitTracer("doc-gateway", cfg)
	if err != nil {
		log.Fatalf("failed to init tracer: %v", err)
	}
	defer shutdownTracer()

	// 3. Connect PostgreSQL
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("failed to connect postgres: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("failed to ping postgres: %v", err)
	}
	log.Println("PostgreSQL connected")

	// 4. Connect Redis
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to ping redis: %v", err)
	}
	log.Println("Redis connected")

	// 5. Init stores
	accountStore := account.NewPostgresStore(pool)
	callStore := calllog.NewPostgresStore(pool)

	// 6. Init auth
	authMiddleware := auth.NewMiddleware(accountStore, rdb, cfg.JWTSecret)
	authHandler := auth.NewHandler(accountStore, cfg.JWTSecret)

	// 7. Init call logging
	interceptor := calllog.NewInterceptor(callStore)

	// 8. Init rate limiter
	limiter := ratelimit.NewLimiter(rdb, cfg.DefaultRateLimitRPM)

	// 9. Init parser + handlers
	geminiParser := gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel)
	tracer := otel.GetTracerProvider().Tracer("doc-gateway")
	docsHandler := docs.NewHandler(geminiParser, limiter, tracer)

	aggregator := usage.NewAggregator(callStore, accountStore)
	devHandler := dev.NewHandler(accountStore, aggregator, cfg.DeveloperToken)

	// 10. Seed test user if RUN_SEED=true
	if os.Getenv("RUN_SEED") == "true" {
		seeder.SeedTestUser(ctx, accountStore)
	}

	// 11. Init Chi router
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(interceptor.Middleware)

	// Public routes
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"doc-gateway"}`))
	})
	r.Post("/auth/login", authHandler.HandleLogin)

	// Protected AI routes
	r.Route("/ai", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/status", docsHandler.HandleStatus)
		r.Post("/receipt-parser", docsHandler.HandleReceiptParser)
		r.Post("/resume-parser", docsHandler.HandleResumeParser)
		r.Post("/vclaim-parser", docsHandler.HandleClaimParser)
		r.Post("/chat", docsHandler.HandleChat)
	})

	// Developer routes
	r.Route("/dev", func(r chi.Router) {
		r.Use(devHandler.Middleware)
		r.Post("/users", devHandler.HandleCreateUser)
		r.Get("/users", devHandler.HandleListUsers)
		r.Get("/users/{id}", devHandler.HandleGetUser)
		r.Delete("/users/{id}", devHandler.HandleDeleteUser)
		r.Get("/subscriptions", devHandler.HandleListSubscriptions)
		r.Post("/users/subscription", devHandler.HandleCreateUserSubscription)
		r.Get("/users_usage_monthly", devHandler.HandleMonthlyUsage)
	})

	// 12. Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Doc Gateway starting on port %s", cfg.Port)
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
