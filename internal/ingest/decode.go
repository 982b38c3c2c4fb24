package ingest

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/richxcame/trust-ring-detector/internal/vouchgraph"
	"github.com/richxcame/trust-ring-detector/pkg/validation"
	"github.com/tidwall/gjson"
)

// ErrMalformedInput is returned for input that cannot be turned into vouch records
var ErrMalformedInput = errors.New("malformed vouch input")

// epochMillisFloor separates epoch milliseconds from epoch seconds
const epochMillisFloor = 1e12

// identity holds the mandatory fields of a vouch for validation
type identity struct {
	AuthorProfileID  *int64 `json:"authorProfileId" validate:"required,gt=0"`
	SubjectProfileID *int64 `json:"subjectProfileId" validate:"required,gt=0"`
}

// Decode parses a vouch export. The payload is either an array of vouches or
// an object with a "vouches" array.
func Decode(data []byte) ([]vouchgraph.Record, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrMalformedInput)
	}

	root := gjson.ParseBytes(data)
	if root.IsObject() {
		root = root.Get("vouches")
	}
	if !root.IsArray() {
		return nil, fmt.Errorf("%w: expected an array of vouches or an object with a vouches array", ErrMalformedInput)
	}

	items := root.Array()
	records := make([]vouchgraph.Record, 0, len(items))
	for i, item := range items {
		rec, err := decodeVouch(item)
		if err != nil {
			return nil, fmt.Errorf("%w: vouch %d: %w", ErrMalformedInput, i, err)
		}
		records = append(records, rec)
	}

	return records, nil
}

func decodeVouch(v gjson.Result) (vouchgraph.Record, error) {
	if !v.IsObject() {
		return vouchgraph.Record{}, errors.New("not an object")
	}

	ids := identity{
		AuthorProfileID:  parseID(v.Get("authorProfileId")),
		SubjectProfileID: parseID(v.Get("subjectProfileId")),
	}
	if err := validation.ValidateStruct(&ids); err != nil {
		return vouchgraph.Record{}, err
	}

	balance, err := parseBalance(v.Get("balance"))
	if err != nil {
		return vouchgraph.Record{}, err
	}

	return vouchgraph.Record{
		GiverID:      *ids.AuthorProfileID,
		ReceiverID:   *ids.SubjectProfileID,
		Balance:      balance,
		CreatedAt:    ParseTimestamp(v.Get("createdAt")),
		Timestamp:    ParseTimestamp(v.Get("timestamp")),
		CheckpointAt: ParseTimestamp(v.Get("activityCheckpoints.vouched")),
		Staked:       v.Get("staked").Bool(),
		Archived:     v.Get("archived").Bool(),
		Giver:        parseUser(v.Get("authorUser")),
		Receiver:     parseUser(v.Get("subjectUser")),
	}, nil
}

// parseID accepts integral numbers and numeric strings
func parseID(r gjson.Result) *int64 {
	switch r.Type {
	case gjson.Number:
		if r.Num != math.Trunc(r.Num) {
			return nil
		}
		id := r.Int()
		return &id
	case gjson.String:
		id, err := strconv.ParseInt(strings.TrimSpace(r.Str), 10, 64)
		if err != nil {
			return nil
		}
		return &id
	default:
		return nil
	}
}

// parseBalance reads a base-unit amount. Amounts routinely exceed 2^63, so
// the raw token is parsed instead of the float value.
func parseBalance(r gjson.Result) (*big.Int, error) {
	var raw string
	switch r.Type {
	case gjson.Null:
		return nil, nil
	case gjson.String:
		raw = strings.TrimSpace(r.Str)
	case gjson.Number:
		raw = r.Raw
	default:
		return nil, fmt.Errorf("balance has unsupported type %s", r.Type)
	}
	if raw == "" {
		return nil, nil
	}

	if n, ok := new(big.Int).SetString(raw, 10); ok {
		return n, nil
	}
	if f, ok := new(big.Float).SetString(raw); ok {
		n, _ := f.Int(nil)
		return n, nil
	}
	return nil, fmt.Errorf("balance %q is not a number", raw)
}

// ParseTimestamp reads epoch seconds, epoch milliseconds, numeric strings or
// date strings. Anything else is treated as absent.
func ParseTimestamp(r gjson.Result) *time.Time {
	switch r.Type {
	case gjson.Number:
		return fromEpoch(r.Num)
	case gjson.String:
		s := strings.TrimSpace(r.Str)
		if s == "" {
			return nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return fromEpoch(f)
		}
		t, err := dateparse.ParseIn(s, time.UTC)
		if err != nil {
			return nil
		}
		t = t.UTC()
		return &t
	default:
		return nil
	}
}

func fromEpoch(v float64) *time.Time {
	if v <= 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	var t time.Time
	if v > epochMillisFloor {
		t = time.UnixMilli(int64(v)).UTC()
	} else {
		sec, frac := math.Modf(v)
		t = time.Unix(int64(sec), int64(frac*1e9)).UTC()
	}
	return &t
}

func parseUser(r gjson.Result) *vouchgraph.UserInfo {
	if !r.IsObject() {
		return nil
	}
	info := &vouchgraph.UserInfo{Username: r.Get("username").String()}
	if score := r.Get("score"); score.Type == gjson.Number {
		s := score.Float()
		info.Score = &s
	}
	return info
}
