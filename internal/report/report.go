package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/richxcame/trust-ring-detector/internal/clusters"
	"github.com/richxcame/trust-ring-detector/internal/ingest"
	"github.com/richxcame/trust-ring-detector/internal/rings"
	"github.com/richxcame/trust-ring-detector/internal/scoring"
	"github.com/richxcame/trust-ring-detector/internal/vouchgraph"
)

// MaxExportedRings caps the rings file
const MaxExportedRings = 1000

// TimestampLayout names the files of one run
const TimestampLayout = "20060102_150405"

const topVouchedCount = 10

// Bundle is the run summary written next to the score exports
type Bundle struct {
	RunID                 string            `json:"run_id"`
	Timestamp             string            `json:"timestamp"`
	GeneratedAt           time.Time         `json:"generated_at"`
	VouchStats            ingest.VouchStats `json:"vouch_stats"`
	GraphStats            vouchgraph.Stats  `json:"graph_stats"`
	RingStats             rings.Stats       `json:"ring_stats"`
	IsolatedClustersCount int               `json:"isolated_clusters_count"`
	NetworkSummary        scoring.Summary   `json:"network_summary"`
	RiskThreshold         float64           `json:"risk_threshold"`
	HighRiskCount         int               `json:"high_risk_count"`

	TopVouched []vouchgraph.DegreeCount `json:"top_vouched_profiles"`
}

// Run is everything a finished analysis exports
type Run struct {
	Bundle   Bundle
	Results  []scoring.Result
	Rings    []rings.Ring
	Isolated []clusters.Cluster
}

// NewBundle assembles the run summary
func NewBundle(runID string, at time.Time, vouches ingest.VouchStats, g *vouchgraph.Graph, found rings.Result,
	isolated []clusters.Cluster, summary scoring.Summary, threshold float64, highRisk int) Bundle {
	at = at.UTC()
	return Bundle{
		RunID:                 runID,
		Timestamp:             at.Format(TimestampLayout),
		GeneratedAt:           at,
		VouchStats:            vouches,
		GraphStats:            g.Stats(),
		RingStats:             rings.ComputeStats(found, g.NodeCount()),
		IsolatedClustersCount: len(isolated),
		NetworkSummary:        summary,
		RiskThreshold:         threshold,
		HighRiskCount:         highRisk,
		TopVouched:            g.TopByInDegree(topVouchedCount),
	}
}

func rounded(results []scoring.Result) []scoring.Result {
	out := make([]scoring.Result, len(results))
	for i, r := range results {
		out[i] = r.Rounded()
	}
	return out
}

func encodeIndented(v interface{}) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// EncodeProfiles writes results as an indented JSON array
func EncodeProfiles(results []scoring.Result) ([]byte, error) {
	return encodeIndented(rounded(results))
}

// EncodeHighRisk writes the results at or above threshold
func EncodeHighRisk(results []scoring.Result, threshold float64) ([]byte, error) {
	return encodeIndented(rounded(scoring.HighRisk(results, threshold)))
}

// EncodeSummary writes the run bundle
func EncodeSummary(b Bundle) ([]byte, error) {
	return encodeIndented(b)
}

// EncodeRings writes at most MaxExportedRings rings
func EncodeRings(found []rings.Ring) ([]byte, error) {
	if len(found) > MaxExportedRings {
		found = found[:MaxExportedRings]
	}
	if found == nil {
		found = []rings.Ring{}
	}
	return encodeIndented(found)
}

// EncodeClusters writes the isolated clusters
func EncodeClusters(isolated []clusters.Cluster) ([]byte, error) {
	if isolated == nil {
		isolated = []clusters.Cluster{}
	}
	return encodeIndented(isolated)
}

// EncodeContract writes [profile_id, score] pairs for flagged profiles
func EncodeContract(results []scoring.Result, threshold float64) ([]byte, error) {
	return json.Marshal(scoring.ContractRows(results, threshold))
}

// CSVHeader is the column order of the scores spreadsheet
var CSVHeader = []string{
	"profile_id",
	"composite_score",
	"risk_level",
	"ring_score",
	"cluster_score",
	"burst_score",
	"stake_score",
	"reciprocity_score",
}

// EncodeCSV writes one row per profile
func EncodeCSV(results []scoring.Result) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(CSVHeader); err != nil {
		return nil, err
	}
	for _, r := range results {
		r = r.Rounded()
		row := []string{
			strconv.FormatInt(r.ProfileID, 10),
			formatScore(r.CompositeScore),
			string(r.RiskLevel),
			formatScore(r.RingScore),
			formatScore(r.ClusterScore),
			formatScore(r.BurstScore),
			formatScore(r.StakeScore),
			formatScore(r.ReciprocityScore),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to write csv: %w", err)
	}
	return buf.Bytes(), nil
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
