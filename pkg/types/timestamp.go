package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Timestamp normalises the timestamp shapes clients send into a UTC time.
//
// Accepted wire forms:
//   - RFC3339 / RFC3339Nano strings
//   - "2006-01-02 15:04:05" and "2006-01-02" strings (UTC)
//   - unix seconds or milliseconds as a JSON number or numeric string
//   - document-store objects {"seconds","nanoseconds"} or {"_seconds","_nanoseconds"}
//
// Timestamps always encode as RFC3339Nano.
type Timestamp struct {
	time.Time
}

// millisecond values are anything past this many seconds (year 5138).
const unixMillisThreshold = 1e11

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC()}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}

	switch data[0] {
	case '"':
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		parsed, err := ParseTimestamp(raw)
		if err != nil {
			return err
		}
		*t = parsed
		return nil
	case '{':
		parsed, err := parseStoreTimestamp(data)
		if err != nil {
			return err
		}
		*t = parsed
		return nil
	default:
		var num float64
		if err := json.Unmarshal(data, &num); err != nil {
			return fmt.Errorf("timestamp: unsupported value %s", string(data))
		}
		*t = fromUnix(num)
		return nil
	}
}

// ParseTimestamp parses the string forms accepted on the wire.
func ParseTimestamp(raw string) (Timestamp, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Timestamp{}, fmt.Errorf("timestamp: empty value")
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return NewTimestamp(parsed), nil
		}
	}
	if num, err := strconv.ParseFloat(raw, 64); err == nil {
		return fromUnix(num), nil
	}
	return Timestamp{}, fmt.Errorf("timestamp: unsupported format %q", raw)
}

type storeTimestamp struct {
	Seconds       *int64 `json:"seconds"`
	Nanoseconds   int64  `json:"nanoseconds"`
	LegacySeconds *int64 `json:"_seconds"`
	LegacyNanos   int64  `json:"_nanoseconds"`
}

func parseStoreTimestamp(data []byte) (Timestamp, error) {
	var raw storeTimestamp
	if err := json.Unmarshal(data, &raw); err != nil {
		return Timestamp{}, fmt.Errorf("timestamp: %w", err)
	}
	switch {
	case raw.Seconds != nil:
		return NewTimestamp(time.Unix(*raw.Seconds, raw.Nanoseconds)), nil
	case raw.LegacySeconds != nil:
		return NewTimestamp(time.Unix(*raw.LegacySeconds, raw.LegacyNanos)), nil
	default:
		return Timestamp{}, fmt.Errorf("timestamp: object missing seconds")
	}
}

func fromUnix(value float64) Timestamp {
	if math.Abs(value) >= unixMillisThreshold {
		return NewTimestamp(time.UnixMilli(int64(value)))
	}
	sec, frac := math.Modf(value)
	return NewTimestamp(time.Unix(int64(sec), int64(frac*1e9)))
}

// TimePtr converts an optional time into an optional Timestamp.
func TimePtr(t *time.Time) *Timestamp {
	if t == nil {
		return nil
	}
	ts := NewTimestamp(*t)
	return &ts
}
