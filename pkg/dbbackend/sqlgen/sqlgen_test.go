package sqlgen

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stcorp/muninn/pkg/expr"
	"github.com/stcorp/muninn/pkg/schema"
	"github.com/stcorp/muninn/pkg/values"
)

// testDialect renders SQL the way the sqlite backend will, using "?"
// placeholders, exercised here purely to validate the shared walker.
type testDialect struct{}

func (testDialect) Placeholder(n int) string       { return "?" }
func (testDialect) QuoteIdent(name string) string  { return fmt.Sprintf("%q", name) }
func (testDialect) TableAlias(ns string) string    { return "t_" + ns }
func (testDialect) TableName(ns string) string     { return "muninn_" + ns }
func (testDialect) LikeOperator() string           { return "LIKE" }
func (testDialect) GeometryCovers(a, b string) string    { return fmt.Sprintf("ST_Covers(%s, %s)", a, b) }
func (testDialect) GeometryIntersects(a, b string) string { return fmt.Sprintf("ST_Intersects(%s, %s)", a, b) }
func (testDialect) GeometryDistance(a, b string) string  { return fmt.Sprintf("ST_Distance(%s, %s)", a, b) }
func (testDialect) IntervalCovers(aS, aE, bS, bE string) string {
	return fmt.Sprintf("(%s <= %s AND %s >= %s)", aS, bS, aE, bE)
}
func (testDialect) IntervalIntersects(aS, aE, bS, bE string) string {
	return fmt.Sprintf("(%s <= %s AND %s >= %s)", aS, bE, aE, bS)
}
func (testDialect) Now() string                      { return "CURRENT_TIMESTAMP" }
func (testDialect) TimestampDiff(a, b string) string { return fmt.Sprintf("(%s - %s)", a, b) }
func (testDialect) TimestampBin(subscript, column string) string {
	return fmt.Sprintf("BIN(%s, %s)", subscript, column)
}

func analyzeFor(t *testing.T, text string) expr.Node {
	t.Helper()
	node, err := expr.Parse(text)
	require.NoError(t, err)
	r := schema.NewRegistry()
	a := expr.NewAnalyzer(r, nil, false)
	_, err = a.Analyze(node)
	require.NoError(t, err)
	return node
}

func TestLowerSimpleComparison(t *testing.T) {
	node := analyzeFor(t, `product_type == "L1"`)
	out, err := Lower(node, testDialect{})
	require.NoError(t, err)
	assert.Contains(t, out.SQL, `t_core."product_type"`)
	assert.Contains(t, out.SQL, "=")
	require.Len(t, out.Args, 1)
	assert.Equal(t, "L1", out.Args[0])
	assert.True(t, out.Namespaces["core"])
}

func TestLowerAndIn(t *testing.T) {
	node := analyzeFor(t, `active == true and product_type in ["L1", "L2"]`)
	out, err := Lower(node, testDialect{})
	require.NoError(t, err)
	assert.Contains(t, out.SQL, "AND")
	assert.Contains(t, out.SQL, "IN (")
	require.Len(t, out.Args, 3)
}

func TestLowerNotEqualsIsDistinctFrom(t *testing.T) {
	node := analyzeFor(t, `product_name != "x"`)
	out, err := Lower(node, testDialect{})
	require.NoError(t, err)
	assert.Contains(t, out.SQL, "IS DISTINCT FROM")
}

func TestLowerIsDefinedOnNamespace(t *testing.T) {
	r := schema.NewRegistry()
	ns, err := schema.NewNamespace("optical", []schema.Field{{Name: "sensor", Kind: values.KindText}})
	require.NoError(t, err)
	require.NoError(t, r.Register(ns))
	node, err := expr.Parse(`is_defined(optical)`)
	require.NoError(t, err)
	a := expr.NewAnalyzer(r, nil, false)
	_, err = a.Analyze(node)
	require.NoError(t, err)

	out, err := Lower(node, testDialect{})
	require.NoError(t, err)
	assert.Contains(t, out.SQL, `t_optical.uuid IS NOT NULL`)
	assert.True(t, out.Namespaces["optical"])
}

func TestLowerArithmeticAndUnaryMinus(t *testing.T) {
	node := analyzeFor(t, `-size > 10`)
	out, err := Lower(node, testDialect{})
	require.NoError(t, err)
	assert.Contains(t, out.SQL, "(-t_core.")
}

func TestLowerHasTag(t *testing.T) {
	node := analyzeFor(t, `has_tag("urgent")`)
	out, err := Lower(node, testDialect{})
	require.NoError(t, err)
	assert.Contains(t, out.SQL, `EXISTS (SELECT 1 FROM "muninn_tag" WHERE "uuid" = t_core."uuid" AND "tag" = ?)`)
	require.Len(t, out.Args, 1)
	assert.Equal(t, "urgent", out.Args[0])
	// has_tag references no namespace beyond the implicit core row.
	assert.False(t, out.Namespaces["tag"])
}

func TestLowerIsSourceOfUUID(t *testing.T) {
	node := analyzeFor(t, `is_source_of(123e4567-e89b-12d3-a456-426614174000)`)
	out, err := Lower(node, testDialect{})
	require.NoError(t, err)
	assert.Contains(t, out.SQL, `EXISTS (SELECT 1 FROM "muninn_link" WHERE "source" = t_core."uuid" AND "target" = ?)`)
	require.Len(t, out.Args, 1)
}

func TestLowerIsDerivedFromUUID(t *testing.T) {
	node := analyzeFor(t, `is_derived_from(123e4567-e89b-12d3-a456-426614174000)`)
	out, err := Lower(node, testDialect{})
	require.NoError(t, err)
	assert.Contains(t, out.SQL, `EXISTS (SELECT 1 FROM "muninn_link" WHERE "target" = t_core."uuid" AND "source" = ?)`)
}

func TestLowerIsSourceOfSubquery(t *testing.T) {
	r := schema.NewRegistry()
	ns, err := schema.NewNamespace("raster", []schema.Field{{Name: "cloud_cover", Kind: values.KindReal}})
	require.NoError(t, err)
	require.NoError(t, r.Register(ns))
	node, err := expr.Parse(`is_source_of(raster.cloud_cover < 10)`)
	require.NoError(t, err)
	a := expr.NewAnalyzer(r, nil, false)
	_, err = a.Analyze(node)
	require.NoError(t, err)

	out, err := Lower(node, testDialect{})
	require.NoError(t, err)
	assert.Contains(t, out.SQL, `t_core."uuid" IN (SELECT t_link."source" FROM "muninn_core" AS t_core`)
	assert.Contains(t, out.SQL, `INNER JOIN "muninn_raster" AS t_raster ON t_raster."uuid" = t_core."uuid"`)
	assert.Contains(t, out.SQL, `INNER JOIN "muninn_link" AS t_link ON t_link."target" = t_core."uuid"`)
	assert.Contains(t, out.SQL, `WHERE (t_raster."cloud_cover" < ?)`)
	// the sub-predicate's namespace must not leak into the outer join set.
	assert.False(t, out.Namespaces["raster"])
}
