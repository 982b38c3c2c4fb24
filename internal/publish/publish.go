package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/richxcame/trust-ring-detector/pkg/logger"
	"github.com/richxcame/trust-ring-detector/pkg/resilience"
	"go.uber.org/zap"
)

// DefaultBatchSize is how many flagged profiles go in one message
const DefaultBatchSize = 100

// EventFlaggedBatch is the envelope type of flagged-profile messages
const EventFlaggedBatch = "flagged_batch"

// FlaggedBatch is one message worth of flagged profiles. Each row is
// [profile_id, integer composite score].
type FlaggedBatch struct {
	RunID       string     `json:"run_id"`
	Threshold   float64    `json:"threshold"`
	GeneratedAt time.Time  `json:"generated_at"`
	Batch       int        `json:"batch"`
	Batches     int        `json:"batches"`
	Profiles    [][2]int64 `json:"profiles"`
}

// Envelope wraps every published payload
type Envelope struct {
	Type string          `json:"type"`
	TS   int64           `json:"ts"`
	Data json.RawMessage `json:"data"`
}

// Publisher delivers flagged batches to a broker
type Publisher interface {
	Publish(ctx context.Context, batch FlaggedBatch) error
	Close() error
}

// Batches splits rows into messages of at most size rows. No rows means no batches.
func Batches(runID string, threshold float64, at time.Time, rows [][2]int64, size int) []FlaggedBatch {
	if size <= 0 {
		size = DefaultBatchSize
	}
	total := (len(rows) + size - 1) / size

	batches := make([]FlaggedBatch, 0, total)
	for i := 0; i < len(rows); i += size {
		end := min(i+size, len(rows))
		batches = append(batches, FlaggedBatch{
			RunID:       runID,
			Threshold:   threshold,
			GeneratedAt: at.UTC(),
			Batch:       len(batches) + 1,
			Batches:     total,
			Profiles:    rows[i:end],
		})
	}
	return batches
}

func encode(typ string, v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: typ, TS: time.Now().UnixMilli(), Data: data})
}

// PublishAll sends every batch, retrying each on transient failures
func PublishAll(ctx context.Context, p Publisher, batches []FlaggedBatch, retry resilience.RetryConfig) error {
	for _, b := range batches {
		_, err := resilience.Retry(ctx, retry, func(ctx context.Context) (interface{}, error) {
			return nil, p.Publish(ctx, b)
		})
		if err != nil {
			return fmt.Errorf("failed to publish batch %d/%d: %w", b.Batch, b.Batches, err)
		}
	}

	logger.WithContext(ctx).Info("Published flagged profiles", zap.Int("batches", len(batches)))
	return nil
}

// Multi fans a batch out to several publishers
type Multi []Publisher

// Publish sends to every publisher and joins their errors
func (m Multi) Publish(ctx context.Context, batch FlaggedBatch) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, batch); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every publisher
func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
