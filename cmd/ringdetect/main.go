package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/richxcame/trust-ring-detector/internal/ingest"
	"github.com/richxcame/trust-ring-detector/internal/pipeline"
	"github.com/richxcame/trust-ring-detector/internal/publish"
	"github.com/richxcame/trust-ring-detector/internal/riskstore"
	"github.com/richxcame/trust-ring-detector/internal/scoring"
	"github.com/richxcame/trust-ring-detector/pkg/config"
	"github.com/richxcame/trust-ring-detector/pkg/database"
	"github.com/richxcame/trust-ring-detector/pkg/errortracking"
	"github.com/richxcame/trust-ring-detector/pkg/logger"
	"github.com/richxcame/trust-ring-detector/pkg/metrics"
	"github.com/richxcame/trust-ring-detector/pkg/redis"
	"github.com/richxcame/trust-ring-detector/pkg/resilience"
	"github.com/richxcame/trust-ring-detector/pkg/storage"
	"github.com/richxcame/trust-ring-detector/pkg/tracing"
	"go.uber.org/zap"
)

const (
	serviceName    = "ringdetect"
	serviceVersion = "1.0.0"
)

func main() {
	var (
		input     = flag.String("input", "", "vouch JSON file or s3://bucket/key")
		fromDB    = flag.Bool("from-db", false, "load vouches from the vouches table")
		outputDir = flag.String("output", "./output", "directory for report files, empty to skip")
		threshold = flag.Float64("threshold", -1, "risk threshold for flagged profiles (default from RISK_THRESHOLD)")
		seed      = flag.Int64("seed", -1, "Louvain seed (default from LOUVAIN_SEED)")
	)
	flag.Parse()

	if err := run(*input, *fromDB, *outputDir, *threshold, *seed); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(input string, fromDB bool, outputDir string, threshold float64, seed int64) error {
	if (input == "") == !fromDB {
		return fmt.Errorf("exactly one of -input or -from-db is required")
	}

	cfg, err := config.Load(serviceName)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if threshold >= 0 {
		cfg.Analysis.RiskThreshold = threshold
	}
	if seed >= 0 {
		cfg.Analysis.LouvainSeed = uint64(seed)
	}

	if err := logger.Init(cfg.Server.Environment); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
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
		return err
	}
	defer flush()

	shutdownTracing, err := tracing.Init(ctx, serviceName, serviceVersion, cfg.Observability.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("Failed to shut down tracing", zap.Error(err))
		}
	}()

	scoringCfg := scoring.ConfigFrom(cfg.Analysis)
	scorer, err := scoring.NewService(scoringCfg)
	if err != nil {
		return err
	}

	recorder := metrics.NewRecorder()
	pipelineCfg := pipeline.Config{
		RiskThreshold:      cfg.Analysis.RiskThreshold,
		TopN:               cfg.Analysis.TopN,
		IsolationThreshold: cfg.Analysis.IsolationThreshold,
		Clusters:           scoringCfg.Clusters,
		OutputDir:          outputDir,
		ReportPrefix:       cfg.Storage.ReportPrefix,
		BatchSize:          cfg.Publish.BatchSize,
		PublishRetry:       resilience.DefaultRetryConfig(),
	}
	var opts []pipeline.Option

	s3Config := storage.S3Config{
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
	}
	if cfg.Storage.Enabled {
		reports, err := storage.NewS3Storage(ctx, s3Config)
		if err != nil {
			return err
		}
		opts = append(opts, pipeline.WithObjectStorage(reports))
	}

	var src ingest.Source
	switch {
	case storage.IsURI(input):
		bucket, key, err := storage.ParseURI(input)
		if err != nil {
			return err
		}
		inputConfig := s3Config
		inputConfig.Bucket = bucket
		objects, err := storage.NewS3Storage(ctx, inputConfig)
		if err != nil {
			return err
		}
		src = ingest.ObjectSource{Store: objects, Key: key}
	case input != "":
		src = ingest.FileSource{Path: input}
	}

	if cfg.Database.Enabled || fromDB {
		pool, err := database.NewPostgresPool(ctx, &cfg.Database)
		if err != nil {
			return err
		}
		defer database.Close(pool)
		db := database.OpenDB(pool)
		defer db.Close()

		if err := riskstore.Migrate(cfg.Database.URL()); err != nil {
			return err
		}
		opts = append(opts, pipeline.WithStore(riskstore.NewRepository(db)))
		if fromDB {
			src = ingest.NewPostgresSource(db)
		}
	}

	if cfg.Redis.Enabled {
		redisClient, err := redis.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		opts = append(opts, pipeline.WithCache(riskstore.NewCache(redisClient.Client, cfg.Redis.ScoreTTL)))
	}

	publisher, err := newPublisher(cfg.Publish)
	if err != nil {
		return err
	}
	if publisher != nil {
		defer publisher.Close()
		opts = append(opts, pipeline.WithPublisher(publisher))
	}

	runner := pipeline.NewRunner(pipelineCfg, scorer, recorder, opts...)
	out, err := runner.Run(ctx, src)
	if err != nil {
		errortracking.CaptureError(ctx, err)
		logger.Error("Analysis run failed", zap.Error(err))
		return err
	}

	if url := cfg.Observability.PushgatewayURL; url != "" {
		pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := recorder.Push(pushCtx, url, serviceName); err != nil {
			logger.Warn("Failed to push metrics", zap.Error(err))
		}
	}

	for _, a := range out.Artifacts {
		logger.Info("Wrote artifact", zap.String("kind", a.Kind), zap.String("location", a.Location))
	}
	logger.Info("Run finished",
		zap.String("run_id", out.RunID.String()),
		zap.Int("high_risk", out.Bundle.HighRiskCount),
		zap.Int("flagged_published", out.Flagged),
	)
	return nil
}

func newPublisher(cfg config.PublishConfig) (publish.Publisher, error) {
	var pubs publish.Multi
	if cfg.NATSEnabled {
		p, err := publish.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, p)
	}
	if cfg.KafkaEnabled {
		p, err := publish.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			_ = pubs.Close()
			return nil, err
		}
		pubs = append(pubs, p)
	}

	switch len(pubs) {
	case 0:
		return nil, nil
	case 1:
		return pubs[0], nil
	default:
		return pubs, nil
	}
}
