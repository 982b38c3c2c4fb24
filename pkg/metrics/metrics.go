package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "trust_rings"

// Recorder holds the collectors for analysis runs and score lookups
type Recorder struct {
	gatherer prometheus.Gatherer

	phaseDuration   *prometheus.HistogramVec
	profilesScored  prometheus.Counter
	ringsFound      prometheus.Gauge
	ringsTruncated  prometheus.Counter
	isolatedGroups  prometheus.Gauge
	profilesByLevel *prometheus.GaugeVec
	lastRunSuccess  prometheus.Gauge
	cacheLookups    *prometheus.CounterVec
}

// NewRecorder registers the collectors on a fresh registry, which is what a
// batch run pushes to the Pushgateway
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	return newRecorder(reg, reg)
}

// NewRecorderWith registers the collectors on reg, e.g. prometheus.DefaultRegisterer
// for a long-running API served through promhttp
func NewRecorderWith(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Recorder {
	return newRecorder(reg, gatherer)
}

func newRecorder(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		gatherer: gatherer,
		phaseDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Duration of each analysis phase",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"phase"}),
		profilesScored: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profiles_scored_total",
			Help:      "Profiles scored across runs",
		}),
		ringsFound: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rings_found",
			Help:      "Rings found by the last run",
		}),
		ringsTruncated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ring_search_truncated_total",
			Help:      "Ring searches stopped by the time budget or ring cap",
		}),
		isolatedGroups: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "isolated_clusters",
			Help:      "Isolated clusters found by the last run",
		}),
		profilesByLevel: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "profiles_by_risk_level",
			Help:      "Profiles per risk level in the last run",
		}, []string{"level"}),
		lastRunSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success_timestamp_seconds",
			Help:      "Unix time of the last successful run",
		}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "score_cache_lookups_total",
			Help:      "Score cache lookups by result",
		}, []string{"result"}),
	}
}

// ObservePhase records how long a phase took
func (r *Recorder) ObservePhase(phase string, d time.Duration) {
	r.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// RunResult is what a finished run reports
type RunResult struct {
	ProfilesScored int
	Rings          int
	Truncated      bool
	Isolated       int
	ByLevel        map[string]int
	FinishedAt     time.Time
}

// RecordRun records the outcome of a successful run
func (r *Recorder) RecordRun(res RunResult) {
	r.profilesScored.Add(float64(res.ProfilesScored))
	r.ringsFound.Set(float64(res.Rings))
	if res.Truncated {
		r.ringsTruncated.Inc()
	}
	r.isolatedGroups.Set(float64(res.Isolated))
	for level, n := range res.ByLevel {
		r.profilesByLevel.WithLabelValues(level).Set(float64(n))
	}
	r.lastRunSuccess.Set(float64(res.FinishedAt.Unix()))
}

// CacheHit counts a score served from cache
func (r *Recorder) CacheHit() {
	r.cacheLookups.WithLabelValues("hit").Inc()
}

// CacheMiss counts a score loaded from the store
func (r *Recorder) CacheMiss() {
	r.cacheLookups.WithLabelValues("miss").Inc()
}

// Push sends the recorder's metrics to a Pushgateway under job
func (r *Recorder) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(r.gatherer).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}
