package model

import (
	"fmt"
	"time"
)

// TimestampLayout is fixed-width UTC with microseconds, so rendered values sort as strings.
// The job store writes the same layout.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// Timestamp is a time rendered in TimestampLayout on the wire.
type Timestamp struct {
	time.Time
}

// NewTimestamp normalizes t to UTC at microsecond precision.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC().Truncate(time.Microsecond)}
}

// String renders the timestamp in TimestampLayout.
func (t Timestamp) String() string {
	return t.UTC().Truncate(time.Microsecond).Format(TimestampLayout)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return fmt.Errorf("timestamp must be a JSON string, got %s", b)
	}
	parsed, err := time.Parse(time.RFC3339Nano, string(b[1:len(b)-1]))
	if err != nil {
		return fmt.Errorf("parse timestamp: %w", err)
	}
	t.Time = parsed.UTC()
	return nil
}
