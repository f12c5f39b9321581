// Package swiftstore implements storage backend object store #2 (C6):
// a container-based object store reached through the minio-go client
// pointed at a Swift deployment's S3-compatible gateway (no native
// Swift/Keystone client lives anywhere in the source pack this module
// was grown from, so the same S3-shaped client the pack uses for
// object-store#1 stands in for Swift's S3 gateway here; see
// DESIGN.md).
package swiftstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/stcorp/muninn/pkg/config"
	"github.com/stcorp/muninn/pkg/muninnerr"
	"github.com/stcorp/muninn/pkg/storage"
)

// Backend implements storage.Backend against a Swift container,
// addressed through its S3-compatible gateway.
type Backend struct {
	client    *minio.Client
	container string
}

// Open builds a Backend from cfg. cfg.AuthURL's host:port pair is
// used as the gateway endpoint; cfg.User/cfg.Key map to the
// access/secret keypair the gateway issues for Swift accounts.
func Open(ctx context.Context, cfg config.SwiftConfig) (*Backend, error) {
	if cfg.Container == "" {
		return nil, muninnerr.NewConfigError("swiftstore.open", fmt.Errorf("no value for mandatory item %q", "container"))
	}
	if cfg.AuthURL == "" {
		return nil, muninnerr.NewConfigError("swiftstore.open", fmt.Errorf("no value for mandatory item %q", "authurl"))
	}

	endpoint, secure := endpointFromAuthURL(cfg.AuthURL)
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.User, cfg.Key, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, muninnerr.NewConfigError("swiftstore.open", fmt.Errorf("creating gateway client: %w", err))
	}

	return &Backend{client: client, container: cfg.Container}, nil
}

func endpointFromAuthURL(authURL string) (endpoint string, secure bool) {
	secure = strings.HasPrefix(authURL, "https://")
	endpoint = strings.TrimPrefix(strings.TrimPrefix(authURL, "https://"), "http://")
	if i := strings.Index(endpoint, "/"); i >= 0 {
		endpoint = endpoint[:i]
	}
	return endpoint, secure
}

func (b *Backend) key(archivePath, physicalName string, parts ...string) string {
	segs := []string{}
	if archivePath != "" {
		segs = append(segs, archivePath)
	}
	segs = append(segs, physicalName)
	segs = append(segs, parts...)
	return path.Join(segs...)
}

func (b *Backend) Prepare(ctx context.Context) error {
	exists, err := b.client.BucketExists(ctx, b.container)
	if err != nil {
		return muninnerr.NewStorageError("swiftstore.prepare", err)
	}
	if !exists {
		if err := b.client.MakeBucket(ctx, b.container, minio.MakeBucketOptions{}); err != nil {
			return muninnerr.NewStorageError("swiftstore.prepare", err)
		}
	}
	return nil
}

func (b *Backend) Destroy(ctx context.Context) error {
	keys, err := b.listAll(ctx, "")
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := b.client.RemoveObject(ctx, b.container, key, minio.RemoveObjectOptions{}); err != nil {
			return muninnerr.NewStorageError("swiftstore.destroy", err)
		}
	}
	if err := b.client.RemoveBucket(ctx, b.container); err != nil {
		return muninnerr.NewStorageError("swiftstore.destroy", err)
	}
	return nil
}

func (b *Backend) listAll(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for obj := range b.client.ListObjects(ctx, b.container, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, muninnerr.NewStorageError("swiftstore.list", obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

func (b *Backend) Exists(ctx context.Context, archivePath, physicalName string) (bool, error) {
	keys, err := b.listAll(ctx, b.key(archivePath, physicalName))
	if err != nil {
		return false, err
	}
	return len(keys) > 0, nil
}

func (b *Backend) Put(ctx context.Context, srcPaths []string, archivePath, physicalName string, useSymlinks bool) (int64, error) {
	if useSymlinks {
		return 0, muninnerr.NewStorageError("swiftstore.put", fmt.Errorf("symlinks are not supported by this storage backend"))
	}
	if len(srcPaths) == 0 {
		return 0, muninnerr.NewStorageError("swiftstore.put", fmt.Errorf("no source paths given"))
	}

	multiPart := len(srcPaths) > 1
	var written int64
	for _, src := range srcPaths {
		info, err := os.Stat(src)
		if err != nil {
			return 0, muninnerr.NewStorageError("swiftstore.put", fmt.Errorf("source path %q: %w", src, err))
		}
		key := b.key(archivePath, physicalName)
		if multiPart {
			key = b.key(archivePath, physicalName, path.Base(src))
		}
		if _, err := b.client.FPutObject(ctx, b.container, key, src, minio.PutObjectOptions{}); err != nil {
			return 0, muninnerr.NewStorageError("swiftstore.put", fmt.Errorf("uploading %q: %w", key, err))
		}
		written += info.Size()
	}

	if multiPart {
		marker := b.key(archivePath, physicalName) + "/"
		if _, err := b.client.PutObject(ctx, b.container, marker, bytes.NewReader(nil), 0, minio.PutObjectOptions{}); err != nil {
			return 0, muninnerr.NewStorageError("swiftstore.put", err)
		}
	}
	return written, nil
}

func (b *Backend) PutFromStream(ctx context.Context, r io.Reader, archivePath, physicalName string) (int64, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return 0, muninnerr.NewStorageError("swiftstore.put_from_stream", err)
	}
	key := b.key(archivePath, physicalName)
	if _, err := b.client.PutObject(ctx, b.container, key, bytes.NewReader(buf), int64(len(buf)), minio.PutObjectOptions{}); err != nil {
		return 0, muninnerr.NewStorageError("swiftstore.put_from_stream", err)
	}
	return int64(len(buf)), nil
}

func (b *Backend) MoveWithin(ctx context.Context, oldArchivePath, newArchivePath, physicalName string) error {
	oldPrefix := b.key(oldArchivePath, physicalName)
	keys, err := b.listAll(ctx, oldPrefix)
	if err != nil {
		return err
	}
	for _, oldKey := range keys {
		newKey := b.key(newArchivePath, physicalName) + strings.TrimPrefix(oldKey, oldPrefix)
		_, err := b.client.CopyObject(ctx,
			minio.CopyDestOptions{Bucket: b.container, Object: newKey},
			minio.CopySrcOptions{Bucket: b.container, Object: oldKey},
		)
		if err != nil {
			return muninnerr.NewStorageError("swiftstore.move_within", fmt.Errorf("copying %q to %q: %w", oldKey, newKey, err))
		}
		if err := b.client.RemoveObject(ctx, b.container, oldKey, minio.RemoveObjectOptions{}); err != nil {
			return muninnerr.NewStorageError("swiftstore.move_within", err)
		}
	}
	return nil
}

func (b *Backend) Retrieve(ctx context.Context, archivePath, physicalName, targetDir string, useSymlinks bool) ([]string, error) {
	if useSymlinks {
		return nil, muninnerr.NewStorageError("swiftstore.retrieve", fmt.Errorf("symlinks are not supported by this storage backend"))
	}
	prefix := b.key(archivePath, physicalName)
	keys, err := b.listAll(ctx, prefix)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, key := range keys {
		if strings.HasSuffix(key, "/") {
			continue
		}
		name := path.Base(key)
		if key == prefix {
			name = physicalName
		}
		target := path.Join(targetDir, name)
		if err := b.client.FGetObject(ctx, b.container, key, target, minio.GetObjectOptions{}); err != nil {
			return nil, muninnerr.NewStorageError("swiftstore.retrieve", fmt.Errorf("fetching %q: %w", key, err))
		}
		out = append(out, target)
	}
	return out, nil
}

func (b *Backend) Remove(ctx context.Context, archivePath, physicalName string) error {
	keys, err := b.listAll(ctx, b.key(archivePath, physicalName))
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := b.client.RemoveObject(ctx, b.container, key, minio.RemoveObjectOptions{}); err != nil {
			return muninnerr.NewStorageError("swiftstore.remove", err)
		}
	}
	return nil
}

func (b *Backend) Size(ctx context.Context, archivePath, physicalName string) (int64, error) {
	prefix := b.key(archivePath, physicalName)
	var total int64
	for obj := range b.client.ListObjects(ctx, b.container, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return 0, muninnerr.NewStorageError("swiftstore.size", obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		total += obj.Size
	}
	return total, nil
}

func (b *Backend) Hash(ctx context.Context, archivePath, physicalName string, algorithm storage.HashAlgorithm) (string, error) {
	prefix := b.key(archivePath, physicalName)
	keys, err := b.listAll(ctx, prefix)
	if err != nil {
		return "", err
	}
	var names []string
	for _, k := range keys {
		if !strings.HasSuffix(k, "/") {
			names = append(names, k)
		}
	}
	sort.Strings(names)

	h, err := storage.NewHasher(algorithm)
	if err != nil {
		return "", muninnerr.NewStorageError("swiftstore.hash", err)
	}
	for _, key := range names {
		obj, err := b.client.GetObject(ctx, b.container, key, minio.GetObjectOptions{})
		if err != nil {
			return "", muninnerr.NewStorageError("swiftstore.hash", err)
		}
		_, copyErr := io.Copy(h, obj)
		obj.Close()
		if copyErr != nil {
			return "", muninnerr.NewStorageError("swiftstore.hash", copyErr)
		}
	}
	return fmt.Sprintf("%s:%x", algorithm, h.Sum(nil)), nil
}

type workspace struct{ path string }

func (w *workspace) Root() string { return w.path }
func (w *workspace) Close() error { return os.RemoveAll(w.path) }

func (b *Backend) TempWorkspace() (storage.Workspace, error) {
	path, err := os.MkdirTemp("", "muninn-swift-")
	if err != nil {
		return nil, muninnerr.NewStorageError("swiftstore.temp_workspace", err)
	}
	return &workspace{path: path}, nil
}

var _ storage.Backend = (*Backend)(nil)
