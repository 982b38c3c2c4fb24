package riskstore

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/trust-ring-detector/internal/scoring"
)

// ErrNotFound is returned when a run or score does not exist
var ErrNotFound = errors.New("not found")

// Run is one persisted analysis
type Run struct {
	ID             uuid.UUID       `json:"id"`
	Source         string          `json:"source"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
	TotalProfiles  int             `json:"total_profiles"`
	TotalVouches   int             `json:"total_vouches"`
	RingsFound     int             `json:"rings_found"`
	RingsTruncated bool            `json:"rings_truncated"`
	HighRiskCount  int             `json:"high_risk_count"`
	RiskThreshold  float64         `json:"risk_threshold"`
	Summary        scoring.Summary `json:"summary"`
}

// ProfileScore is a profile's risk breakdown within a run
type ProfileScore struct {
	RunID uuid.UUID `json:"run_id"`
	scoring.Result
}
