package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stcorp/muninn/pkg/schema"
	"github.com/stcorp/muninn/pkg/values"
)

func TestParseSimpleComparison(t *testing.T) {
	node, err := Parse(`product_type == "L1"`)
	require.NoError(t, err)
	fc, ok := node.(*FunctionCall)
	require.True(t, ok)
	assert.Equal(t, "==", fc.Name)
	assert.Len(t, fc.Arguments, 2)
}

func TestParseAndPrecedence(t *testing.T) {
	node, err := Parse(`active == true and size > 10`)
	require.NoError(t, err)
	fc, ok := node.(*FunctionCall)
	require.True(t, ok)
	assert.Equal(t, "and", fc.Name)
}

func TestParseRejectsTrailingInput(t *testing.T) {
	_, err := Parse(`active == true )`)
	assert.Error(t, err)
}

func TestParsePointLiteral(t *testing.T) {
	node, err := Parse(`covers(footprint, POINT (4.9 52.3))`)
	require.NoError(t, err)
	fc, ok := node.(*FunctionCall)
	require.True(t, ok)
	assert.Equal(t, "covers", fc.Name)
	lit, ok := fc.Arguments[1].(*Literal)
	require.True(t, ok)
	g, ok := lit.Value.GeometryValue()
	require.True(t, ok)
	pt, ok := g.(values.Point)
	require.True(t, ok)
	assert.InDelta(t, 4.9, pt.X, 1e-9)
}

func TestParseInList(t *testing.T) {
	node, err := Parse(`product_type in ["L1", "L2"]`)
	require.NoError(t, err)
	fc, ok := node.(*FunctionCall)
	require.True(t, ok)
	assert.Equal(t, "in", fc.Name)
	list, ok := fc.Arguments[1].(*List)
	require.True(t, ok)
	assert.Len(t, list.Items, 2)
}

func newTestRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	r := schema.NewRegistry()
	ns, err := schema.NewNamespace("optical", []schema.Field{
		{Name: "sensor", Kind: values.KindText},
	})
	require.NoError(t, err)
	require.NoError(t, r.Register(ns))
	return r
}

func TestAnalyzeResolvesImplicitCoreField(t *testing.T) {
	node, err := Parse(`product_type == "L1"`)
	require.NoError(t, err)
	r := newTestRegistry(t)
	a := NewAnalyzer(r, nil, false)
	_, err = a.Analyze(node)
	require.NoError(t, err)
	fc := node.(*FunctionCall)
	name := fc.Arguments[0].(*Name)
	assert.Equal(t, "core", name.Namespace)
	assert.Equal(t, "product_type", name.Field)
	assert.Equal(t, TypeBoolean, node.Type())
}

func TestAnalyzeResolvesNamespaceQualifiedField(t *testing.T) {
	node, err := Parse(`optical.sensor == "SAR"`)
	require.NoError(t, err)
	r := newTestRegistry(t)
	a := NewAnalyzer(r, nil, false)
	_, err = a.Analyze(node)
	require.NoError(t, err)
}

func TestAnalyzeRejectsUndefinedField(t *testing.T) {
	node, err := Parse(`core.nonexistent == "x"`)
	require.NoError(t, err)
	r := newTestRegistry(t)
	a := NewAnalyzer(r, nil, false)
	_, err = a.Analyze(node)
	assert.Error(t, err)
}

func TestAnalyzeParameterReference(t *testing.T) {
	node, err := Parse(`size > @minsize`)
	require.NoError(t, err)
	r := newTestRegistry(t)
	a := NewAnalyzer(r, map[string]values.Value{"minsize": values.NewLong(100)}, false)
	used, err := a.Analyze(node)
	require.NoError(t, err)
	assert.True(t, used["minsize"])
}

func TestAnalyzeUnboundParameterFails(t *testing.T) {
	node, err := Parse(`size > @minsize`)
	require.NoError(t, err)
	r := newTestRegistry(t)
	a := NewAnalyzer(r, nil, false)
	_, err = a.Analyze(node)
	assert.Error(t, err)
}

func TestAnalyzeIsDefinedOnNamespace(t *testing.T) {
	node, err := Parse(`is_defined(optical)`)
	require.NoError(t, err)
	r := newTestRegistry(t)
	a := NewAnalyzer(r, nil, false)
	_, err = a.Analyze(node)
	require.NoError(t, err)
}

func TestAnalyzeUUIDAsBooleanCompat(t *testing.T) {
	node, err := Parse(`is_source_of(123e4567-e89b-12d3-a456-426614174000)`)
	require.NoError(t, err)
	r := newTestRegistry(t)
	a := NewAnalyzer(r, nil, false)
	_, err = a.Analyze(node)
	require.NoError(t, err)
}

func TestAnalyzeUndefinedFunctionOverloadFails(t *testing.T) {
	// "now" takes no arguments; calling it with one matches no
	// overload -- exercise the "undefined function" branch.
	node, err := Parse(`now(1)`)
	require.NoError(t, err)
	r := newTestRegistry(t)
	a := NewAnalyzer(r, nil, false)
	_, err = a.Analyze(node)
	assert.Error(t, err)
}

func TestResolveIdentifierHavingCountAndTag(t *testing.T) {
	r := newTestRegistry(t)
	id, err := resolveIdentifier("count", r)
	require.NoError(t, err)
	assert.Equal(t, TypeLong, id.Type)

	id, err = resolveIdentifier("tag", r)
	require.NoError(t, err)
	assert.Equal(t, TypeText, id.Type)
}

func TestResolveIdentifierValidityDuration(t *testing.T) {
	r := newTestRegistry(t)
	id, err := resolveIdentifier("core.validity_duration", r)
	require.NoError(t, err)
	assert.Equal(t, TypeReal, id.Type)
}

func TestResolveIdentifierTimestampSubscript(t *testing.T) {
	r := newTestRegistry(t)
	id, err := resolveIdentifier("metadata_date.year", r)
	require.NoError(t, err)
	assert.Equal(t, "core", id.Namespace)
	assert.Equal(t, "metadata_date", id.Identifier)
	assert.Equal(t, "year", id.Subscript)
}
