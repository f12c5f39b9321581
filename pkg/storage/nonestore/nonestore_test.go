package nonestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutAccountsSizeWithoutStoringBytes(t *testing.T) {
	b := Open()
	ctx := context.Background()

	dir := t.TempDir()
	src := filepath.Join(dir, "alpha.dat")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o644))

	written, err := b.Put(ctx, []string{src}, "abc/2024", "alpha.dat", false)
	require.NoError(t, err)
	assert.Equal(t, int64(5), written)

	exists, err := b.Exists(ctx, "abc/2024", "alpha.dat")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, b.Remove(ctx, "abc/2024", "alpha.dat"))
}

func TestTempWorkspaceIsUsableAndCleanedUp(t *testing.T) {
	b := Open()
	ws, err := b.TempWorkspace()
	require.NoError(t, err)

	_, err = os.Stat(ws.Root())
	require.NoError(t, err)

	require.NoError(t, ws.Close())
	_, err = os.Stat(ws.Root())
	assert.True(t, os.IsNotExist(err))
}
