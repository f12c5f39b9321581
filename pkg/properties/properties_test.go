package properties

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stcorp/muninn/pkg/values"
)

func TestSetGet(t *testing.T) {
	c := New()
	c.Set("core", "product_name", values.NewText("scene-1"))
	v, ok := c.Get("core", "product_name")
	require.True(t, ok)
	s, _ := v.Text()
	assert.Equal(t, "scene-1", s)
}

func TestIsDefinedDistinguishesMissingRowFromMissingField(t *testing.T) {
	c := New()
	assert.False(t, c.IsDefined("optical"))
	c.SetNamespace("optical", map[string]values.Value{})
	assert.True(t, c.IsDefined("optical"))
	_, ok := c.Get("optical", "sensor")
	assert.False(t, ok)
}

func TestMergeOverwritesFieldsWithinNamespace(t *testing.T) {
	base := New()
	base.Set("core", "product_name", values.NewText("a"))
	base.Set("core", "size", values.NewLong(10))

	update := New()
	update.Set("core", "product_name", values.NewText("b"))

	merged := base.Merge(update)
	v, _ := merged.Get("core", "product_name")
	s, _ := v.Text()
	assert.Equal(t, "b", s)

	v2, ok := merged.Get("core", "size")
	require.True(t, ok)
	l, _ := v2.Long()
	assert.Equal(t, int64(10), l)
}

func TestMergeRemovesNamespaceOnNullSentinel(t *testing.T) {
	base := New()
	base.SetNamespace("optical", map[string]values.Value{"sensor": values.NewText("x")})

	update := New()
	update.SetNamespace("optical", Removed)

	merged := base.Merge(update)
	assert.False(t, merged.IsDefined("optical"))
}

func TestDiffReportsChangedFieldsAndRemovedNamespaces(t *testing.T) {
	base := New()
	base.Set("core", "product_name", values.NewText("a"))
	base.SetNamespace("optical", map[string]values.Value{"sensor": values.NewText("x")})

	other := New()
	other.Set("core", "product_name", values.NewText("b"))

	diff := base.Diff(other)
	v, ok := diff.Get("core", "product_name")
	require.True(t, ok)
	s, _ := v.Text()
	assert.Equal(t, "b", s)
	assert.True(t, diff.IsDefined("optical"))
	assert.Nil(t, diff.Namespace("optical"))
}

func TestProjectFieldsHandlesImplicitCore(t *testing.T) {
	c := New()
	c.Set("core", "product_name", values.NewText("a"))
	c.Set("optical", "sensor", values.NewText("x"))

	proj := c.ProjectFields([]string{"product_name", "optical.sensor"})
	v1, ok := proj.Get("core", "product_name")
	require.True(t, ok)
	s1, _ := v1.Text()
	assert.Equal(t, "a", s1)

	v2, ok := proj.Get("optical", "sensor")
	require.True(t, ok)
	s2, _ := v2.Text()
	assert.Equal(t, "x", s2)
}
