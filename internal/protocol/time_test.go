package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTime_UnmarshalJSON(t *testing.T) {
	want := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		in      string
		want    time.Time
		wantErr bool
	}{
		{"rfc3339 utc", `"2024-01-15T10:30:00Z"`, want, false},
		{"rfc3339 offset", `"2024-01-15T12:30:00+02:00"`, want, false},
		{"naive", `"2024-01-15T10:30:00"`, want, false},
		{"naive fractional", `"2024-01-15T10:30:00.000000"`, want, false},
		{"space separated", `"2024-01-15 10:30:00"`, want, false},
		{"null", `null`, time.Time{}, false},
		{"empty", `""`, time.Time{}, false},
		{"garbage", `"yesterday"`, time.Time{}, true},
		{"epoch seconds", `1705314600`, want, false},
		{"epoch millis", `1705314600000`, want, false},
		{"epoch fractional", `1705314600.5`, want.Add(500 * time.Millisecond), false},
		{"boolean", `true`, time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Time
			err := json.Unmarshal([]byte(tt.in), &got)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got.Time), "got %v, want %v", got.Time, tt.want)
		})
	}
}
