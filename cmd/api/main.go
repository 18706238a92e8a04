package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/api/option"

	"github.com/bizmatters/mission-dispatch/internal/auth"
	"github.com/bizmatters/mission-dispatch/internal/config"
	"github.com/bizmatters/mission-dispatch/internal/dispatch"
	"github.com/bizmatters/mission-dispatch/internal/fanout"
	"github.com/bizmatters/mission-dispatch/internal/gateway"
	"github.com/bizmatters/mission-dispatch/internal/geo"
	"github.com/bizmatters/mission-dispatch/internal/lifecycle"
	"github.com/bizmatters/mission-dispatch/internal/metrics"
	"github.com/bizmatters/mission-dispatch/internal/ratelimit"
	"github.com/bizmatters/mission-dispatch/internal/realtime"
	"github.com/bizmatters/mission-dispatch/internal/store"
	"github.com/bizmatters/mission-dispatch/internal/tracking"

	_ "github.com/bizmatters/mission-dispatch/docs" // swagger docs
)

// @title Mission Dispatch API
// @version 1.0
// @description Dispatches missions to nearby agents, guards the mission lifecycle and relays live agent positions.
// @description
// @description Companies post missions; agents within the dispatch radius are offered them over realtime, Web Push and FCM.
// @description The first agent to claim wins, and assigned agents stream their location to the company while en route.

// @contact.name API Support
// @contact.email support@bizmatters.dev

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the JWT token.

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize OpenTelemetry
	if err := initTracer(); err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	var missionStore store.Store
	if cfg.DatabaseURL != "" {
		pool := connectDatabase(ctx, cfg.DatabaseURL)
		defer pool.Close()
		missionStore = store.NewPostgresStore(pool)
	} else {
		log.Println(`{"level":"warn","message":"DATABASE_URL not set, using in-memory store"}`)
		missionStore = store.NewMemoryStore()
	}

	hub := realtime.NewHub(64)
	var (
		positions geo.Index            = geo.NewMemoryIndex()
		limiter   ratelimit.Limiter    = ratelimit.NewMemoryLimiter()
		samples   tracking.SampleStore = tracking.NewMemorySampleStore()
		publisher realtime.Publisher   = hub
	)
	if cfg.RedisURL != "" {
		redisConn := connectRedis(ctx, cfg.RedisURL)
		defer redisConn.Close()

		positions = geo.NewRedisIndex(redisConn)
		limiter = ratelimit.NewRedisLimiter(redisConn)
		samples = tracking.NewRedisSampleStore(redisConn)

		bridge := realtime.NewRedisBridge(redisConn, hub)
		ready := make(chan struct{})
		bridgeErr := make(chan error, 1)
		go func() {
			bridgeErr <- bridge.Run(ctx, ready)
		}()
		select {
		case <-ready:
		case err := <-bridgeErr:
			log.Fatalf("Failed to start realtime bridge: %v", err)
		}
		publisher = bridge
		log.Println("Connected to Redis; geo index, limiter, samples and realtime are shared")
	}

	dispatchMetrics, err := metrics.NewDispatchMetrics()
	if err != nil {
		log.Fatalf("Failed to initialize metrics: %v", err)
	}

	fanoutOpts := []fanout.Option{
		fanout.WithPublisher(publisher),
		fanout.WithTimeout(cfg.Dispatch.ChannelTimeout),
		fanout.WithMetrics(dispatchMetrics),
	}
	if cfg.Push.WebPushEnabled() {
		fanoutOpts = append(fanoutOpts, fanout.WithWebSender(fanout.NewWebPushSender(fanout.WebPushConfig{
			PublicKey:  cfg.Push.VAPIDPublicKey,
			PrivateKey: cfg.Push.VAPIDPrivateKey,
			Subject:    cfg.Push.VAPIDSubject,
		})))
	} else {
		log.Println(`{"level":"warn","message":"VAPID keys not set, web push disabled"}`)
	}
	if cfg.Push.FCMEnabled() {
		sender, err := newFCMSender(ctx, cfg.Push)
		if err != nil {
			log.Fatalf("Failed to initialize Firebase messaging: %v", err)
		}
		fanoutOpts = append(fanoutOpts, fanout.WithMobileSender(sender))
	} else {
		log.Println(`{"level":"warn","message":"Firebase credentials not set, mobile push disabled"}`)
	}
	notifier := fanout.New(missionStore, fanoutOpts...)

	relay := tracking.NewRelay(missionStore, samples, limiter, publisher,
		tracking.WithPositions(positions),
		tracking.WithMinInterval(cfg.Tracking.MinInterval),
		tracking.WithMetrics(dispatchMetrics),
	)
	guard := lifecycle.NewGuard(missionStore, notifier,
		lifecycle.WithPublisher(publisher),
		lifecycle.WithTracking(relay),
		lifecycle.WithMetrics(dispatchMetrics),
		lifecycle.WithBaseURL(cfg.AppBaseURL),
	)
	coordinator := dispatch.NewCoordinator(positions, missionStore, notifier,
		dispatch.WithRadiusKm(cfg.Dispatch.RadiusKm),
		dispatch.WithMaxCandidates(cfg.Dispatch.MaxCandidates),
		dispatch.WithConcurrency(cfg.Dispatch.Concurrency),
		dispatch.WithBaseURL(cfg.AppBaseURL),
		dispatch.WithMetrics(dispatchMetrics),
	)

	jwtManager, err := auth.NewJWTManager(cfg.JWTSecret)
	if err != nil {
		log.Fatalf("Failed to initialize JWT manager: %v", err)
	}

	// Initialize gateway layer
	gatewayHandler := gateway.NewHandler(gateway.Dependencies{
		Store:        missionStore,
		JWTManager:   jwtManager,
		Guard:        guard,
		Dispatcher:   coordinator,
		Relay:        relay,
		Positions:    positions,
		Publisher:    publisher,
		Limiter:      limiter,
		CreateLimit:  cfg.Dispatch.CreateLimit,
		CreateWindow: cfg.Dispatch.CreateWindow,
	})
	topicStream := gateway.NewTopicStream(hub, realtime.NewTopicAuthorizer(missionStore), cfg.AllowedOrigins)

	// Setup Gin router
	router := gin.Default()

	// Add structured JSON logging middleware
	router.Use(structuredLoggingMiddleware())

	// Swagger documentation (public)
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	gatewayHandler.RegisterRoutes(router, topicStream)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Starting Mission Dispatch API server on port %s\n", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	// In-flight dispatches finish before the store and Redis close
	gatewayHandler.Wait()
	stop()

	log.Println("Server exited")
}

// connectDatabase opens the pool, retrying while Postgres starts up
func connectDatabase(ctx context.Context, dbURL string) *pgxpool.Pool {
	log.Println("Connecting to PostgreSQL database...")
	var pool *pgxpool.Pool
	var err error

	for i := 0; i < 10; i++ {
		pool, err = pgxpool.New(ctx, dbURL)
		if err == nil {
			err = pool.Ping(ctx)
			if err == nil {
				break
			}
			pool.Close()
		}
		log.Printf("Waiting for database... (attempt %d/10): %v", i+1, err)
		time.Sleep(3 * time.Second)
	}

	if err != nil {
		log.Fatalf("Failed to connect to database after retries: %v", err)
	}

	log.Println("Connected to PostgreSQL database")
	return pool
}

func connectRedis(ctx context.Context, redisURL string) *redis.Client {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Fatalf("Invalid REDIS_URL: %v", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	return client
}

func newFCMSender(ctx context.Context, push config.PushConfig) (*fanout.FCMSender, error) {
	app, err := firebase.NewApp(ctx,
		&firebase.Config{ProjectID: push.FirebaseProjectID},
		option.WithCredentialsJSON([]byte(push.FirebaseCredentialsJSON)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create messaging client: %w", err)
	}
	return fanout.NewFCMSender(client), nil
}

// initTracer initializes OpenTelemetry tracing
func initTracer() error {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return fmt.Errorf("failed to create stdout exporter: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
	)

	otel.SetTracerProvider(tp)

	return nil
}

// structuredLoggingMiddleware provides structured JSON logging for all requests
func structuredLoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		latency := time.Since(start)
		userID, _ := c.Get(auth.UserIDKey)

		logEntry := map[string]interface{}{
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": latency.Milliseconds(),
			"client_ip":  c.ClientIP(),
			"user_agent": c.Request.UserAgent(),
		}

		if userID != nil {
			logEntry["user_id"] = userID
		}

		if len(c.Errors) > 0 {
			logEntry["errors"] = c.Errors.String()
		}

		logJSON, _ := json.Marshal(logEntry)
		log.Println(string(logJSON))
	}
}
