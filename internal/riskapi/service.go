package riskapi

import (
	"context"
	"errors"
	"fmt"

	"github.com/richxcame/trust-ring-detector/internal/riskstore"
	"github.com/richxcame/trust-ring-detector/pkg/logger"
	"github.com/richxcame/trust-ring-detector/pkg/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var tracer = otel.Tracer("riskapi")

// Service serves stored risk scores, reading through the cache when one is configured
type Service struct {
	store   riskstore.Store
	cache   *riskstore.Cache
	metrics *metrics.Recorder
	group   singleflight.Group
}

// NewService creates a new risk score service. cache may be nil.
func NewService(store riskstore.Store, cache *riskstore.Cache, rec *metrics.Recorder) *Service {
	return &Service{store: store, cache: cache, metrics: rec}
}

// LatestRun returns the most recent analysis run
func (s *Service) LatestRun(ctx context.Context) (*riskstore.Run, error) {
	ctx, span := tracer.Start(ctx, "riskapi.Service.LatestRun")
	defer span.End()

	if s.cache != nil {
		run, err := s.cache.GetSummary(ctx)
		if err == nil {
			s.metrics.CacheHit()
			span.SetAttributes(attribute.Bool("cache_hit", true))
			return run, nil
		}
		s.logCacheError(ctx, "latest run", err)
	}
	s.metrics.CacheMiss()

	v, err, _ := s.group.Do("latest", func() (interface{}, error) {
		run, err := s.store.LatestRun(ctx)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if err := s.cache.SetSummary(ctx, run); err != nil {
				s.logCacheError(ctx, "latest run", err)
			}
		}
		return run, nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return v.(*riskstore.Run), nil
}

// GetProfileRisk returns a profile's score from the latest run
func (s *Service) GetProfileRisk(ctx context.Context, profileID int64) (*riskstore.ProfileScore, error) {
	ctx, span := tracer.Start(ctx, "riskapi.Service.GetProfileRisk")
	defer span.End()
	span.SetAttributes(attribute.Int64("profile_id", profileID))

	run, err := s.LatestRun(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if s.cache != nil {
		ps, err := s.cache.GetProfile(ctx, run.ID, profileID)
		if err == nil {
			s.metrics.CacheHit()
			span.SetAttributes(attribute.Bool("cache_hit", true))
			return ps, nil
		}
		s.logCacheError(ctx, "profile", err)
	}
	s.metrics.CacheMiss()

	key := fmt.Sprintf("profile:%s:%d", run.ID, profileID)
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		ps, err := s.store.GetProfileScore(ctx, run.ID, profileID)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if err := s.cache.SetProfile(ctx, ps); err != nil {
				s.logCacheError(ctx, "profile", err)
			}
		}
		return ps, nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return v.(*riskstore.ProfileScore), nil
}

// HighRiskPage is one page of flagged profiles
type HighRiskPage struct {
	Run      *riskstore.Run
	MinScore float64
	Profiles []riskstore.ProfileScore
	Total    int64
}

// ListHighRisk pages through the latest run's profiles scoring at least
// minScore. A nil minScore uses the run's own threshold.
func (s *Service) ListHighRisk(ctx context.Context, minScore *float64, limit, offset int) (*HighRiskPage, error) {
	ctx, span := tracer.Start(ctx, "riskapi.Service.ListHighRisk")
	defer span.End()

	run, err := s.LatestRun(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	threshold := run.RiskThreshold
	if minScore != nil {
		threshold = *minScore
	}

	profiles, total, err := s.store.ListHighRisk(ctx, run.ID, threshold, limit, offset)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("count", len(profiles)), attribute.Int64("total", total))

	return &HighRiskPage{Run: run, MinScore: threshold, Profiles: profiles, Total: total}, nil
}

func (s *Service) logCacheError(ctx context.Context, what string, err error) {
	if errors.Is(err, riskstore.ErrNotFound) {
		return
	}
	logger.WithContext(ctx).Warn("Score cache unavailable",
		zap.String("entry", what),
		zap.Error(err),
	)
}
