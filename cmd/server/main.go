/**
 * @description
 * This is the main entry point for the registration service. It is responsible
 * for initializing all components: configuration, database connection,
 * external API clients, the message broker, repositories, the orchestration
 * service and the HTTP server. It wires everything together and starts the
 * service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: Redis client for rate limiting.
 * - internal/api, internal/app, internal/config, internal/flowlog, internal/store: Internal packages.
 * - pkg/asaasclient, pkg/authclient, pkg/rabbitmq: External service clients.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/rcarraroia/comademig-sub001/internal/api"
	"github.com/rcarraroia/comademig-sub001/internal/app"
	"github.com/rcarraroia/comademig-sub001/internal/config"
	"github.com/rcarraroia/comademig-sub001/internal/flowlog"
	"github.com/rcarraroia/comademig-sub001/internal/store"
	"github.com/rcarraroia/comademig-sub001/pkg/asaasclient"
	"github.com/rcarraroia/comademig-sub001/pkg/authclient"
	"github.com/rcarraroia/comademig-sub001/pkg/rabbitmq"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.AsaasAPIKey) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"asaas api key must be configured\" env=ASAAS_API_KEY")
	}
	if strings.TrimSpace(cfg.SupabaseServiceKey) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"supabase service role key must be configured\" env=SUPABASE_SERVICE_ROLE_KEY")
	}

	log.Printf("level=info component=bootstrap msg=\"starting registration service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	// Pool tuning sized for registration bursts around campaign launches.
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts with pgbouncer.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer to publish events. Registration must
	// stay available when the broker is down, so fall back to a noop.
	var producer rabbitmq.Publisher
	rabbitProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &rabbitmq.NoopPublisher{}
	} else {
		defer rabbitProducer.Close()
		producer = rabbitProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}
	events := rabbitmq.NewExchangePublisher(producer, cfg.EventsExchange)

	// Redis backs the per-IP rate limit on the public endpoint. A missing or
	// unreachable Redis disables limiting but never blocks startup.
	var redisClient *redis.Client
	if cfg.RegisterRateLimitPerMinute > 0 {
		if strings.TrimSpace(cfg.RedisURL) == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; registration rate limiting disabled\" env=REDIS_URL")
		} else {
			redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
			if parseErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; registration rate limiting disabled\" err=%v", parseErr)
			} else {
				redisClient = redis.NewClient(redisOptions)
				pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancelPing()
				if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
					log.Printf("level=warn component=bootstrap msg=\"redis ping failed; registration rate limiting disabled\" err=%v", pingErr)
					redisClient.Close()
					redisClient = nil
				} else {
					defer redisClient.Close()
					log.Println("level=info component=bootstrap msg=\"redis connected\"")
				}
			}
		}
	}

	// External service clients.
	asaasClient := asaasclient.NewClient(cfg.AsaasBaseURL, cfg.AsaasAPIKey)
	authClient := authclient.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey)

	// Data access and observability layers.
	repository := store.NewRepository(dbpool)
	flowLogger := flowlog.NewLogger(repository)

	// Core orchestration services.
	registrationService := app.NewService(
		asaasClient,
		authClient,
		repository,
		flowLogger,
		events,
		time.Duration(cfg.PollTimeoutSeconds)*time.Second,
		time.Duration(cfg.PollIntervalSeconds)*time.Second,
	)
	reconciler := app.NewReconciler(
		asaasClient,
		authClient,
		repository,
		events,
		time.Duration(cfg.StaleProfileMinutes)*time.Minute,
		cfg.ReconcileBatchLimit,
	)

	// API surface.
	handlers := api.NewHandler(registrationService, reconciler, repository)
	routerCfg := api.RouterConfig{
		RequestTimeout:    time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		SupabaseJWTSecret: cfg.SupabaseJWTSecret,
		InternalAPIKey:    cfg.InternalAPIKey,
		RateLimitPerMin:   cfg.RegisterRateLimitPerMinute,
	}
	if redisClient != nil {
		routerCfg.RateLimiter = app.NewRedisRegistrationRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
	}
	router := api.NewRouter(handlers, routerCfg)

	// Start the HTTP server.
	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
