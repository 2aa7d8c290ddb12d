// internal/data/parser.go
package data

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/relvacode/iso8601"
)

// ParseValue normalizes the loosely-typed numeric values devices send.
// Adafruit-style feeds deliver numbers as strings ("23.5"), the dashboard's
// JSON sends float64, and decoded payloads may carry json.Number. Non-finite
// results are rejected.
func ParseValue(raw any) (float64, error) {
	var v float64
	switch x := raw.(type) {
	case float64:
		v = x
	case float32:
		v = float64(x)
	case int:
		v = float64(x)
	case int64:
		v = float64(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: value %q is not numeric", ErrInvalidSample, x)
		}
		v = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: value %q is not numeric", ErrInvalidSample, x)
		}
		v = f
	default:
		return 0, fmt.Errorf("%w: unsupported value type %T", ErrInvalidSample, raw)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: non-finite value", ErrInvalidSample)
	}
	return v, nil
}

// ParseTimestamp normalizes device timestamps. An empty or missing timestamp
// means "now". Strings are parsed as ISO8601, which covers both RFC3339 and
// the fraction/offset variants Adafruit feeds produce.
func ParseTimestamp(raw any, now time.Time) (time.Time, error) {
	switch x := raw.(type) {
	case nil:
		return now, nil
	case time.Time:
		if x.IsZero() {
			return now, nil
		}
		return x, nil
	case string:
		if strings.TrimSpace(x) == "" {
			return now, nil
		}
		t, err := iso8601.ParseString(x)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: bad timestamp %q: %v", ErrInvalidSample, x, err)
		}
		return t, nil
	case float64:
		// Unix seconds, possibly fractional.
		sec, frac := math.Modf(x)
		return time.Unix(int64(sec), int64(frac*1e9)), nil
	default:
		return time.Time{}, fmt.Errorf("%w: unsupported timestamp type %T", ErrInvalidSample, raw)
	}
}

// IngestPayload is the body of POST /data. Either a single reading
// (channel/value/timestamp) or a metrics map covering several channels in
// one report, mirroring what the device-side translators send.
type IngestPayload struct {
	Channel   string         `json:"channel,omitempty"`
	Value     any            `json:"value,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
	Metrics   map[string]any `json:"metrics,omitempty"`
}

// ParseIngest decodes a raw ingest body into per-channel readings.
func ParseIngest(raw []byte) (*IngestPayload, error) {
	var p IngestPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSample, err)
	}
	if p.Channel == "" && len(p.Metrics) == 0 {
		return nil, fmt.Errorf("%w: payload has neither channel nor metrics", ErrInvalidSample)
	}
	return &p, nil
}
