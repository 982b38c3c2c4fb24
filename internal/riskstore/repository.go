package riskstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/richxcame/trust-ring-detector/internal/scoring"
)

// Store persists runs and scores
type Store interface {
	CreateRun(ctx context.Context, run *Run) error
	SaveScores(ctx context.Context, runID uuid.UUID, results []scoring.Result) error
	LatestRun(ctx context.Context) (*Run, error)
	GetProfileScore(ctx context.Context, runID uuid.UUID, profileID int64) (*ProfileScore, error)
	ListHighRisk(ctx context.Context, runID uuid.UUID, minScore float64, limit, offset int) ([]ProfileScore, int64, error)
}

// Repository implements Store on PostgreSQL
type Repository struct {
	db *sql.DB
}

var _ Store = (*Repository)(nil)

// NewRepository creates a new risk score repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateRun records a finished analysis run
func (r *Repository) CreateRun(ctx context.Context, run *Run) error {
	summaryJSON, err := json.Marshal(run.Summary)
	if err != nil {
		return fmt.Errorf("failed to encode run summary: %w", err)
	}

	query := `
		INSERT INTO analysis_runs (
			id, source, started_at, finished_at, total_profiles, total_vouches,
			rings_found, rings_truncated, high_risk_count, risk_threshold, summary
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = r.db.ExecContext(ctx, query,
		run.ID,
		run.Source,
		run.StartedAt,
		run.FinishedAt,
		run.TotalProfiles,
		run.TotalVouches,
		run.RingsFound,
		run.RingsTruncated,
		run.HighRiskCount,
		run.RiskThreshold,
		summaryJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// SaveScores stores every result of a run in one transaction
func (r *Repository) SaveScores(ctx context.Context, runID uuid.UUID, results []scoring.Result) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO profile_risk_scores (
			run_id, profile_id, ring_score, cluster_score, burst_score,
			stake_score, reciprocity_score, composite_score, risk_level
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare score insert: %w", err)
	}
	defer stmt.Close()

	for _, res := range results {
		if _, err := stmt.ExecContext(ctx,
			runID,
			res.ProfileID,
			res.RingScore,
			res.ClusterScore,
			res.BurstScore,
			res.StakeScore,
			res.ReciprocityScore,
			res.CompositeScore,
			string(res.RiskLevel),
		); err != nil {
			return fmt.Errorf("failed to save score for profile %d: %w", res.ProfileID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit scores: %w", err)
	}
	return nil
}

// LatestRun returns the most recently finished run
func (r *Repository) LatestRun(ctx context.Context) (*Run, error) {
	query := `
		SELECT id, source, started_at, finished_at, total_profiles, total_vouches,
		       rings_found, rings_truncated, high_risk_count, risk_threshold, summary
		FROM analysis_runs
		ORDER BY finished_at DESC
		LIMIT 1
	`

	var run Run
	var summaryJSON []byte
	err := r.db.QueryRowContext(ctx, query).Scan(
		&run.ID,
		&run.Source,
		&run.StartedAt,
		&run.FinishedAt,
		&run.TotalProfiles,
		&run.TotalVouches,
		&run.RingsFound,
		&run.RingsTruncated,
		&run.HighRiskCount,
		&run.RiskThreshold,
		&summaryJSON,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}

	if err := json.Unmarshal(summaryJSON, &run.Summary); err != nil {
		return nil, fmt.Errorf("failed to decode run summary: %w", err)
	}
	return &run, nil
}

const scoreColumns = `run_id, profile_id, ring_score, cluster_score, burst_score,
		       stake_score, reciprocity_score, composite_score, risk_level`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanScore(s scanner) (ProfileScore, error) {
	var ps ProfileScore
	var level string
	err := s.Scan(
		&ps.RunID,
		&ps.ProfileID,
		&ps.RingScore,
		&ps.ClusterScore,
		&ps.BurstScore,
		&ps.StakeScore,
		&ps.ReciprocityScore,
		&ps.CompositeScore,
		&level,
	)
	ps.RiskLevel = scoring.Level(level)
	return ps, err
}

// GetProfileScore returns one profile's score within a run
func (r *Repository) GetProfileScore(ctx context.Context, runID uuid.UUID, profileID int64) (*ProfileScore, error) {
	query := `
		SELECT ` + scoreColumns + `
		FROM profile_risk_scores
		WHERE run_id = $1 AND profile_id = $2
	`

	ps, err := scanScore(r.db.QueryRowContext(ctx, query, runID, profileID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile score: %w", err)
	}
	return &ps, nil
}

// ListHighRisk pages through a run's scores at or above minScore, riskiest first
func (r *Repository) ListHighRisk(ctx context.Context, runID uuid.UUID, minScore float64, limit, offset int) ([]ProfileScore, int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM profile_risk_scores WHERE run_id = $1 AND composite_score >= $2`,
		runID, minScore,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count high-risk profiles: %w", err)
	}

	query := `
		SELECT ` + scoreColumns + `
		FROM profile_risk_scores
		WHERE run_id = $1 AND composite_score >= $2
		ORDER BY composite_score DESC, profile_id
		LIMIT $3 OFFSET $4
	`

	rows, err := r.db.QueryContext(ctx, query, runID, minScore, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list high-risk profiles: %w", err)
	}
	defer rows.Close()

	scores := make([]ProfileScore, 0)
	for rows.Next() {
		ps, err := scanScore(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan profile score: %w", err)
		}
		scores = append(scores, ps)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return scores, total, nil
}
