// Package storage defines the storage backend contract (C6): placing,
// moving, retrieving and removing the byte representation of a
// product under the pair (archive_path, physical_name). Concrete
// backends live in the fs, s3store, swiftstore and nonestore
// sub-packages; the orchestrator drives whichever one an archive was
// opened with through this interface alone.
package storage

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
)

// HashAlgorithm enumerates the checksum algorithms a product's bytes
// may be hashed with. The catalogue's core.hash field stores the
// result as "<algorithm>:<hex digest>".
type HashAlgorithm string

const (
	HashMD5    HashAlgorithm = "md5"
	HashSHA1   HashAlgorithm = "sha1"
	HashSHA256 HashAlgorithm = "sha256"
)

// NewHasher returns the hash.Hash implementing algorithm, or an error
// if algorithm is not one this package supports.
func NewHasher(algorithm HashAlgorithm) (hash.Hash, error) {
	switch algorithm {
	case HashMD5:
		return md5.New(), nil
	case HashSHA1:
		return sha1.New(), nil
	case HashSHA256:
		return sha256.New(), nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q", algorithm)
	}
}

// HashReader consumes r fully and returns its digest formatted as
// "<algorithm>:<hex>", the form stored in core.hash.
func HashReader(r io.Reader, algorithm HashAlgorithm) (string, error) {
	h, err := NewHasher(algorithm)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%s", algorithm, hex.EncodeToString(h.Sum(nil))), nil
}

// Workspace is a scoped staging area a caller may write bytes into
// before handing paths to Put, or that a Retrieve/Pull operation may
// download into. Close removes the workspace and everything under it.
type Workspace interface {
	Root() string
	Close() error
}

// Backend is the contract every storage implementation satisfies. It
// receives (archive_path, physical_name) as an opaque key and knows
// nothing about catalogue rows, plug-ins or product types.
type Backend interface {
	// Prepare makes the storage location ready for use (creates the
	// archive root directory, the bucket, or the container).
	Prepare(ctx context.Context) error

	// Destroy removes every byte this backend manages, including the
	// root location itself.
	Destroy(ctx context.Context) error

	// Exists reports whether any bytes are stored under the given key.
	Exists(ctx context.Context, archivePath, physicalName string) (bool, error)

	// Put transfers srcPaths into storage under (archivePath,
	// physicalName) and returns the total number of bytes written.
	// A single source path is placed directly at physicalName; more
	// than one is placed inside a physicalName directory, each
	// retaining its own base name (a multi-part product). When
	// useSymlinks is true and the implementation supports it, the
	// bytes are linked rather than copied or moved.
	Put(ctx context.Context, srcPaths []string, archivePath, physicalName string, useSymlinks bool) (int64, error)

	// PutFromStream is Put's single-part streaming form, for sources
	// with no path on the local filesystem (a remote pull's response
	// body, for instance).
	PutFromStream(ctx context.Context, r io.Reader, archivePath, physicalName string) (int64, error)

	// MoveWithin relocates an already-stored product to a new
	// archive_path without touching physicalName.
	MoveWithin(ctx context.Context, oldArchivePath, newArchivePath, physicalName string) error

	// Retrieve copies (or, when useSymlinks is true and supported,
	// links) the stored bytes into targetDir and returns the paths
	// written there.
	Retrieve(ctx context.Context, archivePath, physicalName, targetDir string, useSymlinks bool) ([]string, error)

	// Remove deletes the bytes stored under the given key. Removing a
	// key with no bytes is not an error.
	Remove(ctx context.Context, archivePath, physicalName string) error

	// Size reports the total byte size stored under the given key.
	Size(ctx context.Context, archivePath, physicalName string) (int64, error)

	// Hash computes a checksum of the stored bytes. For a multi-part
	// product the parts are hashed in base-name sort order,
	// concatenated, so the result is deterministic.
	Hash(ctx context.Context, archivePath, physicalName string, algorithm HashAlgorithm) (string, error)

	// TempWorkspace returns a scoped staging directory local to this
	// backend (on the archive root for fs, so intra-archive symlinks
	// stay relative; under the system temp directory otherwise).
	TempWorkspace() (Workspace, error)
}
