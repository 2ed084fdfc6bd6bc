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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GaryRPCondon/training-platform-app-sub002/internal/api"
	"github.com/GaryRPCondon/training-platform-app-sub002/internal/auth"
	"github.com/GaryRPCondon/training-platform-app-sub002/internal/bridge"
	"github.com/GaryRPCondon/training-platform-app-sub002/internal/config"
	"github.com/GaryRPCondon/training-platform-app-sub002/internal/domain"
	"github.com/GaryRPCondon/training-platform-app-sub002/internal/llm"
	"github.com/GaryRPCondon/training-platform-app-sub002/internal/match"
	"github.com/GaryRPCondon/training-platform-app-sub002/internal/outbox"
	postgres "github.com/GaryRPCondon/training-platform-app-sub002/internal/persistence/postgres"
	"github.com/GaryRPCondon/training-platform-app-sub002/internal/plan"
	syncpkg "github.com/GaryRPCondon/training-platform-app-sub002/internal/sync"
	httptransport "github.com/GaryRPCondon/training-platform-app-sub002/internal/transport/http"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	activities := postgres.NewActivityRepository(pool)
	plans := postgres.NewPlanRepository(pool)
	matches := postgres.NewMatchRepository(pool)
	locks := postgres.NewSyncLockRepository(pool, cfg.SyncLockTTL)

	producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
	defer producer.Close()

	registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
	dispatcher := outbox.NewDispatcher(pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
	go dispatcher.Start(ctx)

	matcher := match.NewMatcher(matches)
	orchestrator := syncpkg.NewOrchestrator(activities, locks, matcher)
	syncer := bridge.NewSyncer(orchestrator,
		bridge.NewClient(cfg.GarminBridgeURL, domain.SourceGarmin),
		bridge.NewClient(cfg.StravaBridgeURL, domain.SourceStrava),
	)

	engine := plan.NewEngine(plans)
	provider := llm.NewHTTPProvider(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel)
	refiner := plan.NewRefiner(plans, provider, engine, plans)

	handler := api.NewHandler(activities, plans, engine, refiner, matcher, syncer, locks)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	// Basic request logger
	logger := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("%s %s", r.Method, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}

	authMiddleware := auth.NewMiddleware(
		auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer},
		func(r *http.Request) bool {
			return r.URL.Path == "/healthz" || r.URL.Path == "/metrics"
		},
	)

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, authMiddleware.Wrap(logger(mux)))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("training-platform api listening on %s", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	dispatcher.Wait()
}
