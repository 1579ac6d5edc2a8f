package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWebcamInterval(t *testing.T) {
	valid := map[string]time.Duration{
		"":       0,
		"manual": 0,
		"Off":    0,
		"5s":     5 * time.Second,
		"10s":    10 * time.Second,
		"20s":    20 * time.Second,
		"30s":    30 * time.Second,
		"1m":     time.Minute,
		"60s":    time.Minute,
	}
	for in, want := range valid {
		got, err := ParseWebcamInterval(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"7s", "2m", "-5s", "soon"} {
		_, err := ParseWebcamInterval(in)
		assert.Error(t, err, in)
	}
}

func TestWebcamIntervalLabel(t *testing.T) {
	for _, d := range WebcamIntervals {
		got, err := ParseWebcamInterval(WebcamIntervalLabel(d))
		require.NoError(t, err)
		assert.Equal(t, d, got)
	}
	assert.Equal(t, "manual", WebcamIntervalLabel(0))
	assert.Equal(t, "20s", WebcamIntervalLabel(20*time.Second))
	assert.Equal(t, "1m", WebcamIntervalLabel(time.Minute))
}
