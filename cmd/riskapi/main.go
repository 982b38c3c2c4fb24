package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/richxcame/trust-ring-detector/internal/riskapi"
	"github.com/richxcame/trust-ring-detector/internal/riskstore"
	"github.com/richxcame/trust-ring-detector/pkg/common"
	"github.com/richxcame/trust-ring-detector/pkg/config"
	"github.com/richxcame/trust-ring-detector/pkg/database"
	"github.com/richxcame/trust-ring-detector/pkg/errortracking"
	"github.com/richxcame/trust-ring-detector/pkg/health"
	"github.com/richxcame/trust-ring-detector/pkg/logger"
	"github.com/richxcame/trust-ring-detector/pkg/metrics"
	"github.com/richxcame/trust-ring-detector/pkg/middleware"
	"github.com/richxcame/trust-ring-detector/pkg/ratelimit"
	"github.com/richxcame/trust-ring-detector/pkg/redis"
	"github.com/richxcame/trust-ring-detector/pkg/tracing"
	"go.uber.org/zap"
)

const (
	serviceName    = "riskapi"
	serviceVersion = "1.0.0"
)

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	if err := logger.Init(cfg.Server.Environment); err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	flush, err := errortracking.Init(errortracking.Config{
		DSN:         cfg.Observability.SentryDSN,
		Environment: cfg.Server.Environment,
		Release:     serviceVersion,
		ServiceName: serviceName,
	})
	if err != nil {
		logger.Fatal("Failed to initialize error tracking", zap.Error(err))
	}
	defer flush()

	shutdownTracing, err := tracing.Init(ctx, serviceName, serviceVersion, cfg.Observability.OTLPEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("Failed to shut down tracing", zap.Error(err))
		}
	}()

	// Connect to PostgreSQL
	pool, err := database.NewPostgresPool(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(pool)
	db := database.OpenDB(pool)
	defer db.Close()

	if err := riskstore.Migrate(cfg.Database.URL()); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	logger.Info("Connected to PostgreSQL database")

	checks := map[string]func() error{
		"database": health.DatabaseChecker(db),
	}

	var cache *riskstore.Cache
	var limiter *ratelimit.Limiter
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()

		cache = riskstore.NewCache(redisClient.Client, cfg.Redis.ScoreTTL)
		limiter = ratelimit.NewLimiter(redisClient.Client, cfg.RateLimit)
		checks["redis"] = health.RedisChecker(redisClient.Client)
		logger.Info("Connected to Redis")
	}

	recorder := metrics.NewRecorderWith(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	service := riskapi.NewService(riskstore.NewRepository(db), cache, recorder)
	handler := riskapi.NewHandler(service)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.Metrics(serviceName))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = strings.Split(cfg.Server.CORSOrigins, ",")
	corsConfig.AllowMethods = []string{"GET", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", middleware.CorrelationIDHeader}
	router.Use(cors.New(corsConfig))

	router.GET("/livez", common.HealthCheck(serviceName, serviceVersion))
	router.GET("/healthz", common.HealthCheckWithDeps(serviceName, serviceVersion, checks))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	api.Use(middleware.Timeout(cfg.Server.RequestTimeout))
	if limiter != nil {
		api.Use(limiter.Middleware())
	}
	handler.RegisterRoutes(api)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("Risk API starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down risk API")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
}
