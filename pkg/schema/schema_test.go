package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stcorp/muninn/pkg/values"
)

func TestCoreNamespaceHasUUIDFirst(t *testing.T) {
	fields := Core.Fields()
	require.NotEmpty(t, fields)
	assert.Equal(t, "uuid", fields[0].Name)
	assert.False(t, fields[0].Optional)
}

func TestNewNamespaceRejectsUUIDRedeclaration(t *testing.T) {
	_, err := NewNamespace("mytype", []Field{
		{Name: "uuid", Kind: values.KindUUID},
	})
	assert.Error(t, err)
}

func TestNewNamespaceImplicitUUID(t *testing.T) {
	ns, err := NewNamespace("mytype", []Field{
		{Name: "count", Kind: values.KindInteger, Indexed: true},
	})
	require.NoError(t, err)
	assert.True(t, ns.HasField("uuid"))
	assert.True(t, ns.HasField("count"))
	assert.Equal(t, "uuid", ns.Fields()[0].Name)
}

func TestValidateNameRejectsUppercase(t *testing.T) {
	assert.Error(t, ValidateName("MyType"))
	assert.Error(t, ValidateName("1type"))
	assert.NoError(t, ValidateName("my_type2"))
}

func TestRegistryRejectsCoreRedeclaration(t *testing.T) {
	r := NewRegistry()
	ns, err := NewNamespace("core", nil)
	require.NoError(t, err)
	assert.Error(t, r.Register(ns))
}

func TestRegistryResolveFieldImplicitCore(t *testing.T) {
	r := NewRegistry()
	_, f, err := r.ResolveField("", "product_type")
	require.NoError(t, err)
	assert.Equal(t, values.KindText, f.Kind)
}

func TestRegistryDuplicateRegistration(t *testing.T) {
	r := NewRegistry()
	ns, err := NewNamespace("scene", []Field{{Name: "mode", Kind: values.KindText}})
	require.NoError(t, err)
	require.NoError(t, r.Register(ns))
	assert.Error(t, r.Register(ns))
}
