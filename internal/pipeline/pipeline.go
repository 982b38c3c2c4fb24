package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/trust-ring-detector/internal/clusters"
	"github.com/richxcame/trust-ring-detector/internal/ingest"
	"github.com/richxcame/trust-ring-detector/internal/publish"
	"github.com/richxcame/trust-ring-detector/internal/report"
	"github.com/richxcame/trust-ring-detector/internal/riskstore"
	"github.com/richxcame/trust-ring-detector/internal/scoring"
	"github.com/richxcame/trust-ring-detector/internal/vouchgraph"
	"github.com/richxcame/trust-ring-detector/pkg/logger"
	"github.com/richxcame/trust-ring-detector/pkg/metrics"
	"github.com/richxcame/trust-ring-detector/pkg/resilience"
	"github.com/richxcame/trust-ring-detector/pkg/storage"
	"go.uber.org/zap"
)

// Config holds the run-level settings that sit outside the scorer
type Config struct {
	RiskThreshold      float64
	TopN               int
	IsolationThreshold float64
	Clusters           clusters.Options

	OutputDir    string
	ReportPrefix string

	BatchSize    int
	PublishRetry resilience.RetryConfig
}

// Runner executes one batch analysis from load to publication
type Runner struct {
	cfg     Config
	scorer  *scoring.Service
	metrics *metrics.Recorder

	objects   storage.Storage
	store     riskstore.Store
	cache     *riskstore.Cache
	publisher publish.Publisher
	now       func() time.Time
}

// Option configures optional run stages
type Option func(*Runner)

// WithObjectStorage also uploads reports to object storage
func WithObjectStorage(s storage.Storage) Option {
	return func(r *Runner) { r.objects = s }
}

// WithStore persists the run and its scores
func WithStore(s riskstore.Store) Option {
	return func(r *Runner) { r.store = s }
}

// WithCache refreshes the API's latest-run cache after persisting
func WithCache(c *riskstore.Cache) Option {
	return func(r *Runner) { r.cache = c }
}

// WithPublisher publishes flagged profiles
func WithPublisher(p publish.Publisher) Option {
	return func(r *Runner) { r.publisher = p }
}

// WithClock overrides the run timestamp source
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a batch runner
func NewRunner(cfg Config, scorer *scoring.Service, rec *metrics.Recorder, opts ...Option) *Runner {
	r := &Runner{cfg: cfg, scorer: scorer, metrics: rec, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Outcome describes a finished run
type Outcome struct {
	RunID     uuid.UUID
	Bundle    report.Bundle
	Artifacts []report.Artifact
	Flagged   int
}

// Run loads vouches from src, scores every profile and fans the results out
// to reports, the store, the cache and the brokers that are configured
func (r *Runner) Run(ctx context.Context, src ingest.Source) (*Outcome, error) {
	runID := uuid.New()
	startedAt := r.now().UTC()
	ctx = logger.ContextWithRunID(ctx, runID.String())
	log := logger.WithContext(ctx)

	log.Info("Starting analysis run", zap.String("source", src.Name()))

	start := time.Now()
	records, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load vouches: %w", err)
	}
	vouches := ingest.Stats(records)
	r.metrics.ObservePhase("load", time.Since(start))
	log.Info("Loaded vouches",
		zap.Int("vouches", vouches.TotalVouches),
		zap.Int("profiles", vouches.UniqueProfiles),
	)

	start = time.Now()
	g, err := vouchgraph.Build(records, nil)
	if err != nil {
		return nil, fmt.Errorf("build graph: %w", err)
	}
	r.metrics.ObservePhase("graph", time.Since(start))
	log.Info("Built vouch graph",
		zap.Int("nodes", g.NodeCount()),
		zap.Int("edges", g.EdgeCount()),
	)

	analysis, err := r.scorer.Analyze(ctx, g, records)
	if err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}
	r.metrics.ObservePhase("rings", analysis.Durations.Rings)
	r.metrics.ObservePhase("clusters", analysis.Durations.Clusters)
	r.metrics.ObservePhase("scoring", analysis.Durations.Scoring)

	isolated := clusters.FindIsolated(g, r.cfg.IsolationThreshold, r.cfg.Clusters)
	summary := scoring.Summarize(g, analysis.Results, r.cfg.TopN)
	highRisk := scoring.HighRisk(analysis.Results, r.cfg.RiskThreshold)
	finishedAt := r.now().UTC()

	bundle := report.NewBundle(runID.String(), finishedAt, vouches, g, analysis.Rings,
		isolated, summary, r.cfg.RiskThreshold, len(highRisk))
	out := &Outcome{RunID: runID, Bundle: bundle}

	start = time.Now()
	out.Artifacts, err = r.exporter(runID.String(), finishedAt).Export(ctx, report.Run{
		Bundle:   bundle,
		Results:  analysis.Results,
		Rings:    analysis.Rings.Rings,
		Isolated: isolated,
	})
	if err != nil {
		return nil, fmt.Errorf("export reports: %w", err)
	}
	r.metrics.ObservePhase("export", time.Since(start))

	if r.store != nil {
		start = time.Now()
		run := &riskstore.Run{
			ID:             runID,
			Source:         src.Name(),
			StartedAt:      startedAt,
			FinishedAt:     finishedAt,
			TotalProfiles:  summary.TotalProfiles,
			TotalVouches:   summary.TotalVouches,
			RingsFound:     len(analysis.Rings.Rings),
			RingsTruncated: analysis.Rings.Truncated,
			HighRiskCount:  len(highRisk),
			RiskThreshold:  r.cfg.RiskThreshold,
			Summary:        summary,
		}
		if err := r.persist(ctx, run, analysis.Results); err != nil {
			return nil, err
		}
		r.metrics.ObservePhase("persist", time.Since(start))
	}

	if r.publisher != nil {
		start = time.Now()
		rows := scoring.ContractRows(analysis.Results, r.cfg.RiskThreshold)
		batches := publish.Batches(runID.String(), r.cfg.RiskThreshold, finishedAt, rows, r.cfg.BatchSize)
		if err := publish.PublishAll(ctx, r.publisher, batches, r.cfg.PublishRetry); err != nil {
			return nil, err
		}
		out.Flagged = len(rows)
		r.metrics.ObservePhase("publish", time.Since(start))
	}

	byLevel := make(map[string]int, len(summary.RiskDistribution))
	for level, n := range summary.RiskDistribution {
		byLevel[string(level)] = n
	}
	r.metrics.RecordRun(metrics.RunResult{
		ProfilesScored: len(analysis.Results),
		Rings:          len(analysis.Rings.Rings),
		Truncated:      analysis.Rings.Truncated,
		Isolated:       len(isolated),
		ByLevel:        byLevel,
		FinishedAt:     finishedAt,
	})

	log.Info("Analysis run complete",
		zap.Int("profiles", len(analysis.Results)),
		zap.Int("high_risk", len(highRisk)),
		zap.Int("rings", len(analysis.Rings.Rings)),
		zap.Int("isolated_clusters", len(isolated)),
		zap.Int("artifacts", len(out.Artifacts)),
	)

	return out, nil
}

func (r *Runner) exporter(runID string, at time.Time) *report.Exporter {
	var sinks []report.Sink
	if r.cfg.OutputDir != "" {
		sinks = append(sinks, report.DirSink{Dir: r.cfg.OutputDir})
	}
	if r.objects != nil {
		sinks = append(sinks, report.StorageSink{
			Store:  r.objects,
			Prefix: r.cfg.ReportPrefix,
			RunID:  runID,
			At:     at,
		})
	}
	return report.NewExporter(sinks...)
}

func (r *Runner) persist(ctx context.Context, run *riskstore.Run, results []scoring.Result) error {
	if err := r.store.CreateRun(ctx, run); err != nil {
		return fmt.Errorf("persist run: %w", err)
	}
	if err := r.store.SaveScores(ctx, run.ID, results); err != nil {
		return fmt.Errorf("persist scores: %w", err)
	}

	if r.cache == nil {
		return nil
	}
	// The API keeps serving the old run if the cache cannot be refreshed,
	// until the latest-run entry expires
	err := errors.Join(r.cache.InvalidateSummary(ctx), r.cache.SetSummary(ctx, run))
	if err != nil {
		logger.WithContext(ctx).Warn("Failed to refresh score cache", zap.Error(err))
	}
	return nil
}
