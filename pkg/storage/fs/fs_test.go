package fs

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stcorp/muninn/pkg/config"
	"github.com/stcorp/muninn/pkg/logger"
	"github.com/stcorp/muninn/pkg/storage"
)

func openBackend(t *testing.T) *Backend {
	t.Helper()
	root := t.TempDir()
	b, err := Open(config.FSConfig{Root: filepath.Join(root, "archive")}, logger.New("fs"))
	require.NoError(t, err)
	require.NoError(t, b.Prepare(context.Background()))
	return b
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestPutSingleFileAndRetrieve(t *testing.T) {
	b := openBackend(t)
	ctx := context.Background()
	srcDir := t.TempDir()

	src := writeFile(t, srcDir, "alpha.dat", "hello")
	written, err := b.Put(ctx, []string{src}, "abc/2024", "alpha.dat", false)
	require.NoError(t, err)
	assert.Equal(t, int64(5), written)

	exists, err := b.Exists(ctx, "abc/2024", "alpha.dat")
	require.NoError(t, err)
	assert.True(t, exists)

	size, err := b.Size(ctx, "abc/2024", "alpha.dat")
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)

	targetDir := t.TempDir()
	paths, err := b.Retrieve(ctx, "abc/2024", "alpha.dat", targetDir, false)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestPutMultiPartProduct(t *testing.T) {
	b := openBackend(t)
	ctx := context.Background()
	srcDir := t.TempDir()

	p1 := writeFile(t, srcDir, "part1", "11111")
	p2 := writeFile(t, srcDir, "part2", "2222")
	written, err := b.Put(ctx, []string{p1, p2}, "abc/2024", "multi", false)
	require.NoError(t, err)
	assert.Equal(t, int64(9), written)

	size, err := b.Size(ctx, "abc/2024", "multi")
	require.NoError(t, err)
	assert.Equal(t, int64(9), size)

	targetDir := t.TempDir()
	paths, err := b.Retrieve(ctx, "abc/2024", "multi", targetDir, false)
	require.NoError(t, err)
	assert.Len(t, paths, 2)
}

func TestHashMatchesKnownDigest(t *testing.T) {
	b := openBackend(t)
	ctx := context.Background()
	srcDir := t.TempDir()

	src := writeFile(t, srcDir, "alpha.dat", "hello")
	_, err := b.Put(ctx, []string{src}, "abc/2024", "alpha.dat", false)
	require.NoError(t, err)

	digest, err := b.Hash(ctx, "abc/2024", "alpha.dat", storage.HashMD5)
	require.NoError(t, err)
	assert.Equal(t, "md5:5d41402abc4b2a76b9719d911017c592", digest)
}

func TestPutWithSymlinkIsRelative(t *testing.T) {
	root := t.TempDir()
	archiveRoot := filepath.Join(root, "archive")
	b, err := Open(config.FSConfig{Root: archiveRoot}, logger.New("fs"))
	require.NoError(t, err)
	require.NoError(t, b.Prepare(context.Background()))
	ctx := context.Background()

	// Put the source inside the archive root so the symlink is
	// expected to be created as a relative path.
	srcDir := filepath.Join(archiveRoot, "incoming")
	require.NoError(t, os.MkdirAll(srcDir, 0o755))
	src := writeFile(t, srcDir, "alpha.dat", "hello")

	_, err = b.Put(ctx, []string{src}, "abc/2024", "alpha.dat", true)
	require.NoError(t, err)

	linkPath := filepath.Join(archiveRoot, "abc/2024", "alpha.dat")
	target, err := os.Readlink(linkPath)
	require.NoError(t, err)
	assert.False(t, filepath.IsAbs(target), "expected a relative symlink target, got %q", target)

	data, err := os.ReadFile(linkPath)
	require.NoError(t, err)
	assert.True(t, bytes.Equal([]byte("hello"), data))
}

func TestRemoveAndDestroy(t *testing.T) {
	b := openBackend(t)
	ctx := context.Background()
	srcDir := t.TempDir()

	src := writeFile(t, srcDir, "alpha.dat", "hello")
	_, err := b.Put(ctx, []string{src}, "abc/2024", "alpha.dat", false)
	require.NoError(t, err)

	require.NoError(t, b.Remove(ctx, "abc/2024", "alpha.dat"))
	exists, err := b.Exists(ctx, "abc/2024", "alpha.dat")
	require.NoError(t, err)
	assert.False(t, exists)

	// Removing an already-absent product is not an error.
	require.NoError(t, b.Remove(ctx, "abc/2024", "alpha.dat"))

	require.NoError(t, b.Destroy(ctx))
	_, err = os.Stat(b.root)
	assert.True(t, os.IsNotExist(err))
}

func TestTempWorkspace(t *testing.T) {
	b := openBackend(t)
	ws, err := b.TempWorkspace()
	require.NoError(t, err)
	assert.True(t, isSubPath(ws.Root(), b.root))
	require.NoError(t, ws.Close())
	_, err = os.Stat(ws.Root())
	assert.True(t, os.IsNotExist(err))
}
