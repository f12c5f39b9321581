package values

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWKTPoint(t *testing.T) {
	g, err := ParseWKT("POINT (4.900000 52.370000)")
	require.NoError(t, err)
	p, ok := g.(Point)
	require.True(t, ok)
	assert.InDelta(t, 4.9, p.X, 1e-6)
	assert.InDelta(t, 52.37, p.Y, 1e-6)
	assert.Equal(t, "POINT (4.900000 52.370000)", p.AsWKT(true))
}

func TestParseWKTLineStringEmpty(t *testing.T) {
	g, err := ParseWKT("LINESTRING EMPTY")
	require.NoError(t, err)
	ls, ok := g.(LineString)
	require.True(t, ok)
	assert.Equal(t, "LINESTRING EMPTY", ls.AsWKT(true))
}

func TestParseWKTPolygonWithHole(t *testing.T) {
	wkt := "POLYGON ((0.000000 0.000000, 4.000000 0.000000, 4.000000 4.000000, 0.000000 0.000000), (1.000000 1.000000, 2.000000 1.000000, 2.000000 2.000000, 1.000000 1.000000))"
	g, err := ParseWKT(wkt)
	require.NoError(t, err)
	poly, ok := g.(Polygon)
	require.True(t, ok)
	assert.Len(t, poly.Interior, 1)
	assert.Equal(t, wkt, poly.AsWKT(true))
}

func TestNewLinearRingRejectsOpenRing(t *testing.T) {
	_, err := NewLinearRing([]Point{{0, 0}, {1, 0}, {1, 1}, {0, 1}})
	assert.Error(t, err)
}

func TestNewLinearRingRejectsTooFewPoints(t *testing.T) {
	_, err := NewLinearRing([]Point{{0, 0}, {1, 1}, {0, 0}})
	assert.Error(t, err)
}

func TestParseWKTMultiPolygonEmpty(t *testing.T) {
	g, err := ParseWKT("MULTIPOLYGON EMPTY")
	require.NoError(t, err)
	mp, ok := g.(MultiPolygon)
	require.True(t, ok)
	assert.Equal(t, "MULTIPOLYGON EMPTY", mp.AsWKT(true))
}

func TestParseWKTInvalidTag(t *testing.T) {
	_, err := ParseWKT("CIRCLE (0 0)")
	assert.Error(t, err)
}
