package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"time"

	"github.com/richxcame/trust-ring-detector/internal/vouchgraph"
	"github.com/richxcame/trust-ring-detector/pkg/logger"
	"github.com/richxcame/trust-ring-detector/pkg/resilience"
	"github.com/richxcame/trust-ring-detector/pkg/storage"
	"go.uber.org/zap"
)

// Source loads the vouch records of one analysis run
type Source interface {
	Load(ctx context.Context) ([]vouchgraph.Record, error)
	Name() string
}

// FileSource reads a JSON export from the local filesystem
type FileSource struct {
	Path string
}

func (s FileSource) Name() string { return "file:" + s.Path }

// Load reads and decodes the file
func (s FileSource) Load(ctx context.Context) ([]vouchgraph.Record, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vouches file: %w", err)
	}
	return Decode(data)
}

// ObjectSource reads a JSON export from object storage
type ObjectSource struct {
	Store storage.Storage
	Key   string
}

func (s ObjectSource) Name() string { return "object:" + s.Key }

// Load downloads and decodes the object
func (s ObjectSource) Load(ctx context.Context) ([]vouchgraph.Record, error) {
	body, err := s.Store.Download(ctx, s.Key)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read vouches object: %w", err)
	}
	return Decode(data)
}

const loadVouchesQuery = `
	SELECT author_profile_id, subject_profile_id, balance::text, created_at,
	       staked, archived, author_score, author_username, subject_score, subject_username
	FROM vouches
	ORDER BY id`

// PostgresSource reads vouches indexed into the vouches table
type PostgresSource struct {
	db    *sql.DB
	retry resilience.RetryConfig
}

// NewPostgresSource creates a source over db
func NewPostgresSource(db *sql.DB) *PostgresSource {
	retry := resilience.DefaultRetryConfig()
	retry.RetryableChecker = func(err error) bool {
		return !errors.Is(err, ErrMalformedInput)
	}
	return &PostgresSource{db: db, retry: retry}
}

func (s *PostgresSource) Name() string { return "postgres:vouches" }

// Load reads every vouch row, retrying transient failures
func (s *PostgresSource) Load(ctx context.Context) ([]vouchgraph.Record, error) {
	start := time.Now()
	records, err := resilience.Do(ctx, s.retry, s.load)
	if err != nil {
		return nil, err
	}

	logger.WithContext(ctx).Info("Loaded vouches from database",
		zap.Int("count", len(records)),
		zap.Duration("duration", time.Since(start)),
	)
	return records, nil
}

func (s *PostgresSource) load(ctx context.Context) ([]vouchgraph.Record, error) {
	rows, err := s.db.QueryContext(ctx, loadVouchesQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query vouches: %w", err)
	}
	defer rows.Close()

	var records []vouchgraph.Record
	for rows.Next() {
		var (
			giver, receiver                 int64
			balance                         sql.NullString
			createdAt                       sql.NullTime
			staked, archived                bool
			giverScore, receiverScore       sql.NullFloat64
			giverUsername, receiverUsername sql.NullString
		)
		if err := rows.Scan(&giver, &receiver, &balance, &createdAt, &staked, &archived,
			&giverScore, &giverUsername, &receiverScore, &receiverUsername); err != nil {
			return nil, fmt.Errorf("failed to scan vouch: %w", err)
		}
		if giver <= 0 || receiver <= 0 {
			return nil, fmt.Errorf("%w: row %d has profile ids %d -> %d", ErrMalformedInput, len(records), giver, receiver)
		}

		rec := vouchgraph.Record{
			GiverID:    giver,
			ReceiverID: receiver,
			Staked:     staked,
			Archived:   archived,
			Giver:      userFromColumns(giverScore, giverUsername),
			Receiver:   userFromColumns(receiverScore, receiverUsername),
		}
		if balance.Valid {
			n, ok := new(big.Int).SetString(balance.String, 10)
			if !ok {
				return nil, fmt.Errorf("%w: row %d has balance %q", ErrMalformedInput, len(records), balance.String)
			}
			rec.Balance = n
		}
		if createdAt.Valid {
			t := createdAt.Time.UTC()
			rec.CreatedAt = &t
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate vouches: %w", err)
	}

	return records, nil
}

func userFromColumns(score sql.NullFloat64, username sql.NullString) *vouchgraph.UserInfo {
	if !score.Valid && !username.Valid {
		return nil
	}
	info := &vouchgraph.UserInfo{Username: username.String}
	if score.Valid {
		s := score.Float64
		info.Score = &s
	}
	return info
}
