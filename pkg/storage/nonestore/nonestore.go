// Package nonestore implements the null storage backend (C6): every
// mutation beyond size accounting is a no-op, for catalogues that
// track product metadata without managing any bytes themselves (the
// product's whereabouts, if any, lives entirely in core.remote_url).
package nonestore

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/stcorp/muninn/pkg/muninnerr"
	"github.com/stcorp/muninn/pkg/storage"
)

// Backend implements storage.Backend as a no-op.
type Backend struct{}

func Open() *Backend { return &Backend{} }

func (b *Backend) Prepare(ctx context.Context) error { return nil }
func (b *Backend) Destroy(ctx context.Context) error { return nil }

func (b *Backend) Exists(ctx context.Context, archivePath, physicalName string) (bool, error) {
	return false, nil
}

// Put accounts for the bytes a caller would have written without
// storing them anywhere.
func (b *Backend) Put(ctx context.Context, srcPaths []string, archivePath, physicalName string, useSymlinks bool) (int64, error) {
	var total int64
	for _, p := range srcPaths {
		info, err := os.Stat(p)
		if err != nil {
			return 0, muninnerr.NewStorageError("nonestore.put", fmt.Errorf("source path %q: %w", p, err))
		}
		total += info.Size()
	}
	return total, nil
}

func (b *Backend) PutFromStream(ctx context.Context, r io.Reader, archivePath, physicalName string) (int64, error) {
	n, err := io.Copy(io.Discard, r)
	if err != nil {
		return 0, muninnerr.NewStorageError("nonestore.put_from_stream", err)
	}
	return n, nil
}

func (b *Backend) MoveWithin(ctx context.Context, oldArchivePath, newArchivePath, physicalName string) error {
	return nil
}

func (b *Backend) Retrieve(ctx context.Context, archivePath, physicalName, targetDir string, useSymlinks bool) ([]string, error) {
	return nil, muninnerr.NewNotFoundError("product bytes", physicalName)
}

func (b *Backend) Remove(ctx context.Context, archivePath, physicalName string) error { return nil }

func (b *Backend) Size(ctx context.Context, archivePath, physicalName string) (int64, error) {
	return 0, nil
}

func (b *Backend) Hash(ctx context.Context, archivePath, physicalName string, algorithm storage.HashAlgorithm) (string, error) {
	return "", muninnerr.NewNotFoundError("product bytes", physicalName)
}

type workspace struct{ path string }

func (w *workspace) Root() string { return w.path }
func (w *workspace) Close() error { return os.RemoveAll(w.path) }

func (b *Backend) TempWorkspace() (storage.Workspace, error) {
	path, err := os.MkdirTemp("", "muninn-none-")
	if err != nil {
		return nil, muninnerr.NewStorageError("nonestore.temp_workspace", err)
	}
	return &workspace{path: path}, nil
}

var _ storage.Backend = (*Backend)(nil)
