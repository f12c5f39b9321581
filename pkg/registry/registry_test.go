package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stcorp/muninn/pkg/properties"
	"github.com/stcorp/muninn/pkg/schema"
)

type fakePlugin struct {
	name   string
	prefix string
}

func (f *fakePlugin) ProductType() string          { return f.name }
func (f *fakePlugin) UseEnclosingDirectory() bool   { return false }
func (f *fakePlugin) HashType() string              { return "md5" }
func (f *fakePlugin) CascadeRule() CascadeRule      { return CascadeIgnore }
func (f *fakePlugin) Namespaces() []string          { return nil }
func (f *fakePlugin) Identify(paths []string) bool {
	return len(paths) > 0 && len(paths[0]) >= len(f.prefix) && paths[0][:len(f.prefix)] == f.prefix
}
func (f *fakePlugin) Analyze(ctx context.Context, paths []string) (*properties.Container, []string, error) {
	return properties.New(), nil, nil
}
func (f *fakePlugin) ArchivePath(props *properties.Container) (string, error) { return "", nil }

func TestRegisterAndLookupProductType(t *testing.T) {
	r := New(schema.NewRegistry())
	r.RegisterProductType(&fakePlugin{name: "l1", prefix: "L1_"})
	r.RegisterProductType(&fakePlugin{name: "l2", prefix: "L2_"})

	p, err := r.ProductTypePlugin("l2")
	require.NoError(t, err)
	assert.Equal(t, "l2", p.ProductType())

	_, err = r.ProductTypePlugin("missing")
	assert.Error(t, err)
}

func TestIdentifyProductTypeScansInRegistrationOrder(t *testing.T) {
	r := New(schema.NewRegistry())
	r.RegisterProductType(&fakePlugin{name: "l1", prefix: "X"})
	r.RegisterProductType(&fakePlugin{name: "l2", prefix: "L2_"})

	p, err := r.IdentifyProductType([]string{"L2_file.dat"})
	require.NoError(t, err)
	assert.Equal(t, "l2", p.ProductType())
}

type fakeRemote struct{ scheme string }

func (f *fakeRemote) Identify(url string) bool { return len(url) >= len(f.scheme) && url[:len(f.scheme)] == f.scheme }
func (f *fakeRemote) Pull(ctx context.Context, url, targetDir string) ([]string, error) {
	return []string{targetDir + "/file"}, nil
}

func TestRemoteBackendLookup(t *testing.T) {
	r := New(schema.NewRegistry())
	r.RegisterRemoteBackend(&fakeRemote{scheme: "http://"})
	r.RegisterRemoteBackend(&fakeRemote{scheme: "ftp://"})

	b, err := r.RemoteBackendFor("ftp://example/x")
	require.NoError(t, err)
	paths, err := b.Pull(context.Background(), "ftp://example/x", "/tmp")
	require.NoError(t, err)
	assert.Equal(t, []string{"/tmp/file"}, paths)
}

type fakeHook struct{ name string }

func (f *fakeHook) Name() string { return f.name }

func TestHookExtensionsReversedOrder(t *testing.T) {
	r := New(schema.NewRegistry())
	r.RegisterHookExtension(&fakeHook{"a"})
	r.RegisterHookExtension(&fakeHook{"b"})
	r.RegisterHookExtension(&fakeHook{"c"})

	forward := r.HookExtensions()
	reversed := r.HookExtensionsReversed()
	require.Len(t, forward, 3)
	require.Len(t, reversed, 3)
	assert.Equal(t, "a", forward[0].Name())
	assert.Equal(t, "c", reversed[0].Name())
}
