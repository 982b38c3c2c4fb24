package vouchgraph

import (
	"math/big"
	"time"
)

// UserInfo is the optional profile snapshot attached to a vouch
type UserInfo struct {
	Score    *float64
	Username string
}

// Record is a single vouch: a stake-backed endorsement from giver to receiver
type Record struct {
	GiverID    int64
	ReceiverID int64
	// Balance is the staked amount in base units (wei)
	Balance *big.Int

	CreatedAt    *time.Time
	Timestamp    *time.Time
	CheckpointAt *time.Time

	Staked   bool
	Archived bool

	Giver    *UserInfo
	Receiver *UserInfo
}

// ResolveTime returns the first present timestamp among createdAt,
// timestamp and the vouched activity checkpoint.
func (r Record) ResolveTime() (time.Time, bool) {
	for _, ts := range []*time.Time{r.CreatedAt, r.Timestamp, r.CheckpointAt} {
		if ts != nil && !ts.IsZero() {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

// UnitConverter turns a base-unit amount into canonical units
type UnitConverter func(*big.Int) float64

var weiPerEth = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

// WeiToEth converts wei to ETH. A nil amount is zero.
func WeiToEth(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), weiPerEth).Float64()
	return f
}
