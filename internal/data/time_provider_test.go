package data

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatDBTimeIsFixedWidthUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	a := time.Date(2025, 3, 1, 12, 0, 0, 0, loc)
	b := time.Date(2025, 3, 1, 10, 0, 0, 123456789, time.UTC)

	fa, fb := formatDBTime(a), formatDBTime(b)
	assert.Equal(t, "2025-03-01T10:00:00.000000Z", fa)
	assert.Equal(t, "2025-03-01T10:00:00.123456Z", fb)
	assert.Len(t, fa, len(fb))
	assert.Less(t, fa, fb)

	parsed, err := parseDBTime(fb)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(b.Truncate(time.Microsecond)))
}

func TestFixedTimeProvider(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tp := NewFixedTimeProvider(start)
	tp.AddTime(time.Minute)
	assert.Equal(t, start.Add(time.Minute), tp.Now())
	tp.SetTime(start)
	assert.Equal(t, start, tp.Now())
}
