package postgres

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stcorp/muninn/pkg/values"
)

func TestSummaryCacheKeyDeterministic(t *testing.T) {
	a := summaryCacheKey("SELECT 1 FROM t WHERE x = $1", []any{"L1"})
	b := summaryCacheKey("SELECT 1 FROM t WHERE x = $1", []any{"L1"})
	assert.Equal(t, a, b)
}

func TestSummaryCacheKeyDiffersOnArgs(t *testing.T) {
	a := summaryCacheKey("SELECT 1 FROM t WHERE x = $1", []any{"L1"})
	b := summaryCacheKey("SELECT 1 FROM t WHERE x = $1", []any{"L2"})
	assert.NotEqual(t, a, b)
}

func TestCachedValueRoundTrip(t *testing.T) {
	u := uuid.New()
	cases := []values.Value{
		values.NewBoolean(true),
		values.NewInteger(42),
		values.NewLong(9_000_000_000),
		values.NewReal(3.5),
		values.NewText("L1"),
		values.NewTimestamp(values.Timestamp(1234567890)),
		values.NewUUID(u),
		values.NewJSON(`{"a":1}`),
	}
	for _, v := range cases {
		cv := encodeCachedValue(v)
		back, err := decodeCachedValue(cv)
		require.NoError(t, err)
		assert.Equal(t, v.Kind, back.Kind)
		assert.Equal(t, v.String(), back.String())
	}
}
