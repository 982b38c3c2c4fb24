package ingest

import "github.com/richxcame/trust-ring-detector/internal/vouchgraph"

// VouchStats summarizes a vouch export before graph construction
type VouchStats struct {
	TotalVouches   int `json:"total_vouches"`
	UniqueVouchers int `json:"unique_vouchers"`
	UniqueSubjects int `json:"unique_subjects"`
	UniqueProfiles int `json:"unique_profiles"`
}

// Stats counts vouches and distinct participants
func Stats(records []vouchgraph.Record) VouchStats {
	vouchers := make(map[int64]struct{})
	subjects := make(map[int64]struct{})
	profiles := make(map[int64]struct{})

	for _, r := range records {
		vouchers[r.GiverID] = struct{}{}
		subjects[r.ReceiverID] = struct{}{}
		profiles[r.GiverID] = struct{}{}
		profiles[r.ReceiverID] = struct{}{}
	}

	return VouchStats{
		TotalVouches:   len(records),
		UniqueVouchers: len(vouchers),
		UniqueSubjects: len(subjects),
		UniqueProfiles: len(profiles),
	}
}
