package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// epochMillisThreshold separates epoch seconds from epoch milliseconds.
// 1e12 seconds is tens of thousands of years out; 1e12 ms is 2001.
const epochMillisThreshold = 1e12

// timeLayouts are tried in order. The backend emits ISO-8601 timestamps
// that may omit the zone, in which case UTC is assumed.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// Time is a timestamp that tolerates zone-less ISO-8601 strings and
// numeric epoch seconds or milliseconds. It always holds UTC.
type Time struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Time) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}

	if c := data[0]; c == '-' || (c >= '0' && c <= '9') {
		parsed, err := fromEpoch(json.Number(data))
		if err != nil {
			return fmt.Errorf("timestamp: %w", err)
		}
		t.Time = parsed
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}

	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognised format %q", s)
}

func fromEpoch(n json.Number) (time.Time, error) {
	if i, err := n.Int64(); err == nil {
		if i >= epochMillisThreshold || i <= -epochMillisThreshold {
			return time.UnixMilli(i).UTC(), nil
		}
		return time.Unix(i, 0).UTC(), nil
	}

	f, err := n.Float64()
	if err != nil {
		return time.Time{}, err
	}
	if math.Abs(f) >= epochMillisThreshold {
		f /= 1e3
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC(), nil
}

// MarshalJSON implements json.Marshaler.
func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}
