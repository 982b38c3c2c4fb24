package scoring

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/richxcame/trust-ring-detector/internal/bursts"
	"github.com/richxcame/trust-ring-detector/internal/clusters"
	"github.com/richxcame/trust-ring-detector/internal/reciprocity"
	"github.com/richxcame/trust-ring-detector/internal/rings"
	"github.com/richxcame/trust-ring-detector/internal/stakes"
	"github.com/richxcame/trust-ring-detector/internal/vouchgraph"
	"github.com/richxcame/trust-ring-detector/pkg/config"
	"github.com/richxcame/trust-ring-detector/pkg/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// chunkSize is the number of profiles one scoring task handles
const chunkSize = 256

// Config bundles every knob of an analysis run
type Config struct {
	Weights             Weights
	Rings               rings.Options
	Clusters            clusters.Options
	MembershipThreshold float64
	Bursts              bursts.Options
	Stakes              stakes.Options
	Exclusions          vouchgraph.Exclusions
	Workers             int
}

// DefaultConfig returns the standard detector settings with no exclusions
func DefaultConfig() Config {
	return Config{
		Weights:             DefaultWeights(),
		Rings:               rings.DefaultOptions(),
		Clusters:            clusters.DefaultOptions(),
		MembershipThreshold: 0.7,
		Bursts:              bursts.DefaultOptions(),
		Stakes:              stakes.DefaultOptions(),
	}
}

// ConfigFrom maps environment configuration onto a scoring config
func ConfigFrom(a config.AnalysisConfig) Config {
	return Config{
		Weights: Weights{
			Ring:        a.WeightRing,
			Cluster:     a.WeightCluster,
			Burst:       a.WeightBurst,
			Stake:       a.WeightStake,
			Reciprocity: a.WeightReciprocity,
		},
		Rings: rings.Options{
			MaxLength: a.RingMaxLength,
			MaxRings:  a.RingMaxRings,
			Budget:    a.RingBudget,
		},
		Clusters: clusters.Options{
			Seed:       a.LouvainSeed,
			Resolution: a.LouvainResolution,
		},
		MembershipThreshold: a.MembershipThreshold,
		Bursts: bursts.Options{
			StdThreshold: a.BurstStdThreshold,
			MinRecords:   a.BurstMinRecords,
			MinWindows:   a.BurstMinWindows,
		},
		Stakes: stakes.Options{
			TinyStake:   a.TinyStake,
			MinIncoming: a.MinIncomingStakes,
		},
		Exclusions: vouchgraph.NewExclusions(a.OfficialAccounts...),
		Workers:    a.Workers,
	}
}

// Result is the risk breakdown of one profile
type Result struct {
	ProfileID        int64   `json:"profile_id"`
	RingScore        float64 `json:"ring_score"`
	ClusterScore     float64 `json:"cluster_score"`
	BurstScore       float64 `json:"burst_score"`
	StakeScore       float64 `json:"stake_score"`
	ReciprocityScore float64 `json:"reciprocity_score"`
	CompositeScore   float64 `json:"composite_score"`
	RiskLevel        Level   `json:"risk_level"`
}

// Rounded returns a copy with every score rounded to two decimals
func (r Result) Rounded() Result {
	r.RingScore = Round2(r.RingScore)
	r.ClusterScore = Round2(r.ClusterScore)
	r.BurstScore = Round2(r.BurstScore)
	r.StakeScore = Round2(r.StakeScore)
	r.ReciprocityScore = Round2(r.ReciprocityScore)
	r.CompositeScore = Round2(r.CompositeScore)
	return r
}

// Durations records how long each phase of an analysis took
type Durations struct {
	Rings    time.Duration
	Clusters time.Duration
	Scoring  time.Duration
}

// Analysis is the output of a full scoring pass
type Analysis struct {
	Results     []Result
	Rings       rings.Result
	Memberships clusters.Memberships
	Durations   Durations
}

// Service scores every profile of a vouch graph
type Service struct {
	cfg    Config
	tracer trace.Tracer
}

// NewService validates the configuration and creates a scoring service
func NewService(cfg Config) (*Service, error) {
	if err := cfg.Weights.Validate(); err != nil {
		return nil, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return &Service{cfg: cfg, tracer: otel.Tracer("scoring")}, nil
}

// frozen holds the whole-graph precomputations shared read-only by workers
type frozen struct {
	g           *vouchgraph.Graph
	ringIndex   *rings.Index
	memberships clusters.Memberships
	bursts      *bursts.Index
	stakes      *stakes.Analyzer
}

// Analyze enumerates rings and partitions the graph once, then scores all
// profiles concurrently. Results are sorted by composite score descending;
// ties keep encounter order.
func (s *Service) Analyze(ctx context.Context, g *vouchgraph.Graph, records []vouchgraph.Record) (*Analysis, error) {
	log := logger.WithContext(ctx)
	out := &Analysis{}

	ctx, span := s.tracer.Start(ctx, "scoring.Analyze", trace.WithAttributes(
		attribute.Int("graph.nodes", g.NodeCount()),
		attribute.Int("graph.edges", g.EdgeCount()),
	))
	defer span.End()

	start := time.Now()
	_, ringSpan := s.tracer.Start(ctx, "rings.Find")
	out.Rings = rings.Find(ctx, g, s.cfg.Rings)
	ringSpan.SetAttributes(attribute.Int("rings.found", len(out.Rings.Rings)), attribute.Bool("rings.truncated", out.Rings.Truncated))
	ringSpan.End()
	out.Durations.Rings = time.Since(start)
	log.Info("Ring search complete",
		zap.Int("rings", len(out.Rings.Rings)),
		zap.Bool("truncated", out.Rings.Truncated),
		zap.Duration("duration", out.Durations.Rings),
	)

	start = time.Now()
	_, clusterSpan := s.tracer.Start(ctx, "clusters.Precompute")
	out.Memberships = clusters.Precompute(g, s.cfg.MembershipThreshold, s.cfg.Clusters)
	clusterSpan.End()
	out.Durations.Clusters = time.Since(start)
	log.Info("Community precomputation complete",
		zap.Int("profiles_in_isolated_clusters", len(out.Memberships)),
		zap.Duration("duration", out.Durations.Clusters),
	)

	f := &frozen{
		g:           g,
		ringIndex:   rings.NewIndex(out.Rings.Rings),
		memberships: out.Memberships,
		bursts:      bursts.NewIndex(records),
		stakes:      stakes.NewAnalyzer(g, s.cfg.Stakes),
	}

	start = time.Now()
	nodes := g.Nodes()
	results := make([]Result, len(nodes))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.cfg.Workers)
	for lo := 0; lo < len(nodes); lo += chunkSize {
		hi := min(lo+chunkSize, len(nodes))
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			for i := lo; i < hi; i++ {
				results[i] = s.scoreProfile(f, nodes[i])
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("scoring profiles: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CompositeScore > results[j].CompositeScore
	})
	out.Results = results
	out.Durations.Scoring = time.Since(start)

	log.Info("Profile scoring complete",
		zap.Int("profiles", len(results)),
		zap.Int("workers", s.cfg.Workers),
		zap.Duration("duration", out.Durations.Scoring),
	)

	return out, nil
}

func (s *Service) scoreProfile(f *frozen, id int64) Result {
	if f.g.IsKnownNonRiskParticipant(id, s.cfg.Exclusions) {
		return Result{ProfileID: id, RiskLevel: LevelOfficial}
	}

	b := Breakdown{
		Ring:        rings.Score(f.g, id, f.ringIndex),
		Cluster:     clusters.Score(f.memberships, id),
		Burst:       f.bursts.ScoreProfile(id, s.cfg.Bursts),
		Stake:       f.stakes.Score(id),
		Reciprocity: reciprocity.Score(f.g, id),
	}
	composite := Composite(b, s.cfg.Weights)

	return Result{
		ProfileID:        id,
		RingScore:        b.Ring,
		ClusterScore:     b.Cluster,
		BurstScore:       b.Burst,
		StakeScore:       b.Stake,
		ReciprocityScore: b.Reciprocity,
		CompositeScore:   composite,
		RiskLevel:        LevelFor(composite),
	}
}
