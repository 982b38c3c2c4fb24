package report

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/richxcame/trust-ring-detector/pkg/logger"
	"github.com/richxcame/trust-ring-detector/pkg/storage"
	"go.uber.org/zap"
)

// Sink stores one exported artifact and returns where it went
type Sink interface {
	Write(ctx context.Context, name string, data []byte) (string, error)
}

// DirSink writes artifacts into a local directory
type DirSink struct {
	Dir string
}

// Write creates the directory if needed and writes the file
func (s DirSink) Write(ctx context.Context, name string, data []byte) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}
	path := filepath.Join(s.Dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	return path, nil
}

// StorageSink uploads artifacts under {prefix}/{date}/{run_id}/
type StorageSink struct {
	Store  storage.Storage
	Prefix string
	RunID  string
	At     time.Time
}

// Write uploads the artifact
func (s StorageSink) Write(ctx context.Context, name string, data []byte) (string, error) {
	key := storage.ReportKey(s.Prefix, s.RunID, s.At, name)
	res, err := s.Store.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), storage.GetMimeTypeFromExtension(name))
	if err != nil {
		return "", err
	}
	return res.URL, nil
}

// Artifact is one exported file
type Artifact struct {
	Kind     string `json:"kind"`
	Location string `json:"location"`
	Bytes    int    `json:"bytes"`
}

// Exporter writes every artifact of a run to its sinks
type Exporter struct {
	sinks []Sink
}

// NewExporter creates an exporter writing to every sink
func NewExporter(sinks ...Sink) *Exporter {
	return &Exporter{sinks: sinks}
}

type artifactFile struct {
	kind   string
	name   string
	encode func() ([]byte, error)
}

// Export encodes and writes the run artifacts
func (e *Exporter) Export(ctx context.Context, run Run) ([]Artifact, error) {
	ts := run.Bundle.Timestamp
	threshold := run.Bundle.RiskThreshold

	files := []artifactFile{
		{"all_profiles", "all_profiles_" + ts + ".json", func() ([]byte, error) { return EncodeProfiles(run.Results) }},
		{"high_risk", "high_risk_" + ts + ".json", func() ([]byte, error) { return EncodeHighRisk(run.Results, threshold) }},
		{"summary", "summary_" + ts + ".json", func() ([]byte, error) { return EncodeSummary(run.Bundle) }},
		{"rings", "rings_" + ts + ".json", func() ([]byte, error) { return EncodeRings(run.Rings) }},
		{"isolated_clusters", "isolated_clusters_" + ts + ".json", func() ([]byte, error) { return EncodeClusters(run.Isolated) }},
		{"contract", "contract_" + ts + ".json", func() ([]byte, error) { return EncodeContract(run.Results, threshold) }},
	}
	// An empty run has no spreadsheet
	if len(run.Results) > 0 {
		files = append(files, artifactFile{"csv", "risk_scores_" + ts + ".csv", func() ([]byte, error) { return EncodeCSV(run.Results) }})
	}

	var artifacts []Artifact
	for _, file := range files {
		data, err := file.encode()
		if err != nil {
			return artifacts, fmt.Errorf("failed to encode %s: %w", file.kind, err)
		}
		for _, sink := range e.sinks {
			loc, err := sink.Write(ctx, file.name, data)
			if err != nil {
				return artifacts, fmt.Errorf("failed to export %s: %w", file.kind, err)
			}
			artifacts = append(artifacts, Artifact{Kind: file.kind, Location: loc, Bytes: len(data)})
		}
	}

	logger.WithContext(ctx).Info("Exported run artifacts",
		zap.Int("artifacts", len(artifacts)),
		zap.Int("profiles", len(run.Results)),
	)
	return artifacts, nil
}
