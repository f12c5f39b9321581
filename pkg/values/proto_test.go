package values

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestampProtoRoundTrip(t *testing.T) {
	ts, err := ParseTimestamp("2015-03-11T10:30:00.5")
	require.NoError(t, err)

	back := TimestampFromProto(ts.ToProto())
	assert.Equal(t, ts, back)
}

func TestTimestampProtoRoundTripNegativeMicros(t *testing.T) {
	ts, err := ParseTimestamp("1969-12-31T23:59:59.25")
	require.NoError(t, err)

	back := TimestampFromProto(ts.ToProto())
	assert.Equal(t, ts, back)
}
