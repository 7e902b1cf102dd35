package data

import (
	"time"

	"github.com/target/tenantscan/internal/domain/model"
)

// dbTimeLayout is the API's fixed-width UTC layout, so stored timestamps sort lexicographically.
const dbTimeLayout = model.TimestampLayout

// TimeProvider provides time-related functionality that can be mocked for testing.
type TimeProvider interface {
	// Now returns the current time
	Now() time.Time
	// FormatForDB formats a time for database insertion
	FormatForDB(t time.Time) string
}

// RealTimeProvider implements TimeProvider using real system time.
type RealTimeProvider struct{}

// Now returns the current system time.
func (r *RealTimeProvider) Now() time.Time {
	return time.Now()
}

// FormatForDB formats a time as fixed-width UTC text with microseconds.
func (r *RealTimeProvider) FormatForDB(t time.Time) string {
	return formatDBTime(t)
}

// FixedTimeProvider implements TimeProvider with a fixed time for testing.
type FixedTimeProvider struct {
	fixedTime time.Time
}

// NewFixedTimeProvider creates a new FixedTimeProvider with the given time.
func NewFixedTimeProvider(t time.Time) *FixedTimeProvider {
	return &FixedTimeProvider{fixedTime: t}
}

// Now returns the fixed time.
func (f *FixedTimeProvider) Now() time.Time {
	return f.fixedTime
}

// FormatForDB formats a time as fixed-width UTC text with microseconds.
func (f *FixedTimeProvider) FormatForDB(t time.Time) string {
	return formatDBTime(t)
}

// SetTime updates the fixed time (useful for testing time progression).
func (f *FixedTimeProvider) SetTime(t time.Time) {
	f.fixedTime = t
}

// AddTime adds a duration to the current fixed time.
func (f *FixedTimeProvider) AddTime(d time.Duration) {
	f.fixedTime = f.fixedTime.Add(d)
}

func formatDBTime(t time.Time) string {
	return t.UTC().Truncate(time.Microsecond).Format(dbTimeLayout)
}

func parseDBTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
