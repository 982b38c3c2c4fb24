package scoring

import "github.com/richxcame/trust-ring-detector/internal/vouchgraph"

// HighRisk returns results whose composite score reaches threshold, in order
func HighRisk(results []Result, threshold float64) []Result {
	out := make([]Result, 0)
	for _, r := range results {
		if r.CompositeScore >= threshold {
			out = append(out, r)
		}
	}
	return out
}

// Summary is the network-level view of an analysis
type Summary struct {
	TotalProfiles    int               `json:"total_profiles"`
	TotalVouches     int               `json:"total_vouches"`
	RiskDistribution map[Level]int     `json:"risk_distribution"`
	RiskPercentages  map[Level]float64 `json:"risk_percentages"`
	TopRiskyProfiles []Result          `json:"top_risky_profiles"`
	AvgRiskScore     float64           `json:"avg_risk_score"`
}

// Summarize builds the risk histogram, average score and top-N profiles.
// results must already be sorted.
func Summarize(g *vouchgraph.Graph, results []Result, topN int) Summary {
	s := Summary{
		TotalProfiles:    len(results),
		TotalVouches:     g.EdgeCount(),
		RiskDistribution: make(map[Level]int, len(Levels)),
		RiskPercentages:  make(map[Level]float64, len(Levels)),
	}
	for _, l := range Levels {
		s.RiskDistribution[l] = 0
	}

	total := 0.0
	for _, r := range results {
		s.RiskDistribution[r.RiskLevel]++
		total += r.CompositeScore
	}

	for _, l := range Levels {
		if len(results) > 0 {
			s.RiskPercentages[l] = Round2(float64(s.RiskDistribution[l]) / float64(len(results)) * 100)
		} else {
			s.RiskPercentages[l] = 0
		}
	}
	if len(results) > 0 {
		s.AvgRiskScore = Round2(total / float64(len(results)))
	}

	if topN < 0 || topN > len(results) {
		topN = len(results)
	}
	s.TopRiskyProfiles = make([]Result, 0, topN)
	for _, r := range results[:topN] {
		s.TopRiskyProfiles = append(s.TopRiskyProfiles, r.Rounded())
	}

	return s
}

// ContractRows returns [profile_id, integer score] pairs for flagged profiles
func ContractRows(results []Result, threshold float64) [][2]int64 {
	rows := make([][2]int64, 0)
	for _, r := range HighRisk(results, threshold) {
		rows = append(rows, [2]int64{r.ProfileID, int64(r.CompositeScore)})
	}
	return rows
}
