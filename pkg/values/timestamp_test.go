package values

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestampDateOnly(t *testing.T) {
	ts, err := ParseTimestamp("2015-03-11")
	require.NoError(t, err)
	assert.True(t, ts.IsDefined())
}

func TestParseTimestampWithFraction(t *testing.T) {
	a, err := ParseTimestamp("2015-03-11T10:00:00.5")
	require.NoError(t, err)
	b, err := ParseTimestamp("2015-03-11T10:00:00")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, a.Sub(b), 1e-9)
}

func TestParseTimestampSentinels(t *testing.T) {
	min, err := ParseTimestamp("0000-00-00")
	require.NoError(t, err)
	assert.Equal(t, MinTimestamp, min)

	max, err := ParseTimestamp("9999-99-99")
	require.NoError(t, err)
	assert.Equal(t, MaxTimestamp, max)

	assert.False(t, min.IsDefined())
	assert.False(t, max.IsDefined())
}

func TestParseTimestampRejectsBadMonth(t *testing.T) {
	_, err := ParseTimestamp("2015-13-01")
	assert.Error(t, err)
}

func TestSubMillisTruncates(t *testing.T) {
	a, _ := ParseTimestamp("2015-03-11T10:00:01.0009")
	b, _ := ParseTimestamp("2015-03-11T10:00:00")
	assert.InDelta(t, 1.0, a.SubMillis(b), 1e-9)
}
