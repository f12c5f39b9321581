// Package fs implements the local filesystem storage backend (C6):
// products are laid out under a configured root directory at
// <root>/<archive_path>/<physical_name>, with symlinks made relative
// whenever both endpoints live inside the root so the archive stays
// relocatable.
package fs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/stcorp/muninn/pkg/config"
	"github.com/stcorp/muninn/pkg/logger"
	"github.com/stcorp/muninn/pkg/muninnerr"
	"github.com/stcorp/muninn/pkg/storage"
)

// Backend implements storage.Backend against the local filesystem.
type Backend struct {
	root string
	log  *logger.Logger
}

// Open prepares a Backend rooted at cfg.Root. It does not create the
// root directory; call Prepare for that.
func Open(cfg config.FSConfig, log *logger.Logger) (*Backend, error) {
	if cfg.Root == "" {
		return nil, muninnerr.NewConfigError("fs.open", fmt.Errorf("no value for mandatory item %q", "root"))
	}
	return &Backend{root: cfg.Root, log: log}, nil
}

func (b *Backend) Prepare(ctx context.Context) error {
	if err := os.MkdirAll(b.root, 0o755); err != nil {
		return muninnerr.NewStorageError("fs.prepare", fmt.Errorf("creating archive root %q: %w", b.root, err))
	}
	return nil
}

func (b *Backend) Destroy(ctx context.Context) error {
	if _, err := os.Stat(b.root); os.IsNotExist(err) {
		return nil
	}
	if err := os.RemoveAll(b.root); err != nil {
		return muninnerr.NewStorageError("fs.destroy", fmt.Errorf("removing archive root %q: %w", b.root, err))
	}
	return nil
}

func (b *Backend) productPath(archivePath, physicalName string) string {
	return filepath.Join(b.root, archivePath, physicalName)
}

func (b *Backend) Exists(ctx context.Context, archivePath, physicalName string) (bool, error) {
	_, err := os.Lstat(b.productPath(archivePath, physicalName))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, muninnerr.NewStorageError("fs.exists", err)
}

// isSubPath reports whether path lies inside base (or equals it).
func isSubPath(path, base string) bool {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !hasParentPrefix(rel))
}

func hasParentPrefix(rel string) bool {
	return len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)
}

func (b *Backend) Put(ctx context.Context, srcPaths []string, archivePath, physicalName string, useSymlinks bool) (int64, error) {
	if len(srcPaths) == 0 {
		return 0, muninnerr.NewStorageError("fs.put", fmt.Errorf("no source paths given"))
	}
	absArchivePath := filepath.Join(b.root, archivePath)
	absProductPath := filepath.Join(absArchivePath, physicalName)
	multiPart := len(srcPaths) > 1

	if alreadyAtDestination(srcPaths, absProductPath, multiPart) {
		return sumSizes(srcPaths)
	}

	if err := os.MkdirAll(absArchivePath, 0o755); err != nil {
		return 0, muninnerr.NewStorageError("fs.put", fmt.Errorf("creating %q: %w", absArchivePath, err))
	}

	tmpDir, err := os.MkdirTemp(absArchivePath, ".ingest-")
	if err != nil {
		return 0, muninnerr.NewStorageError("fs.put", fmt.Errorf("staging directory under %q: %w", absArchivePath, err))
	}
	defer os.RemoveAll(tmpDir)

	stageDir := tmpDir
	if multiPart {
		stageDir = filepath.Join(tmpDir, physicalName)
		if err := os.MkdirAll(stageDir, 0o755); err != nil {
			return 0, muninnerr.NewStorageError("fs.put", err)
		}
	}

	finalDir := absArchivePath
	if multiPart {
		finalDir = absProductPath
	}

	var written int64
	for _, src := range srcPaths {
		info, err := os.Stat(src)
		if err != nil {
			return 0, muninnerr.NewStorageError("fs.put", fmt.Errorf("source path %q: %w", src, err))
		}
		dst := filepath.Join(stageDir, filepath.Base(src))
		if useSymlinks {
			target := mustAbs(src)
			if isSubPath(target, mustAbs(b.root)) {
				if rel, err := filepath.Rel(mustAbs(finalDir), target); err == nil {
					target = rel
				}
			}
			if err := os.Symlink(target, dst); err != nil {
				return 0, muninnerr.NewStorageError("fs.put", err)
			}
		} else if err := copyFile(src, dst); err != nil {
			return 0, muninnerr.NewStorageError("fs.put", err)
		}
		written += info.Size()
	}

	renameSrc := stageDir
	if !multiPart {
		renameSrc = filepath.Join(tmpDir, filepath.Base(srcPaths[0]))
	}
	if err := os.Rename(renameSrc, absProductPath); err != nil {
		return 0, muninnerr.NewStorageError("fs.put", fmt.Errorf("moving %q into %q: %w", renameSrc, absProductPath, err))
	}
	return written, nil
}

func alreadyAtDestination(srcPaths []string, absProductPath string, multiPart bool) bool {
	if multiPart {
		for _, p := range srcPaths {
			if filepath.Dir(mustAbs(p)) != absProductPath {
				return false
			}
		}
		return true
	}
	return mustAbs(srcPaths[0]) == absProductPath
}

func mustAbs(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}

func sumSizes(paths []string) (int64, error) {
	var total int64
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return 0, muninnerr.NewStorageError("fs.put", err)
		}
		total += info.Size()
	}
	return total, nil
}

// symlinkInto creates dst as a symlink to src. When src lies inside
// root, the link target is relative to dst's own directory so the
// archive can be relocated without breaking it.
func symlinkInto(src, dst, root string) error {
	absSrc := mustAbs(src)
	target := absSrc
	if isSubPath(absSrc, mustAbs(root)) {
		rel, err := filepath.Rel(filepath.Dir(dst), absSrc)
		if err == nil {
			target = rel
		}
	}
	return os.Symlink(target, dst)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %q: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("creating %q: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying %q to %q: %w", src, dst, err)
	}
	return out.Close()
}

func (b *Backend) PutFromStream(ctx context.Context, r io.Reader, archivePath, physicalName string) (int64, error) {
	absArchivePath := filepath.Join(b.root, archivePath)
	if err := os.MkdirAll(absArchivePath, 0o755); err != nil {
		return 0, muninnerr.NewStorageError("fs.put_from_stream", err)
	}

	tmpDir, err := os.MkdirTemp(absArchivePath, ".ingest-")
	if err != nil {
		return 0, muninnerr.NewStorageError("fs.put_from_stream", err)
	}
	defer os.RemoveAll(tmpDir)

	tmpFile := filepath.Join(tmpDir, physicalName)
	out, err := os.OpenFile(tmpFile, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, muninnerr.NewStorageError("fs.put_from_stream", err)
	}
	written, err := io.Copy(out, r)
	if err != nil {
		out.Close()
		return 0, muninnerr.NewStorageError("fs.put_from_stream", err)
	}
	if err := out.Close(); err != nil {
		return 0, muninnerr.NewStorageError("fs.put_from_stream", err)
	}

	absProductPath := filepath.Join(absArchivePath, physicalName)
	if err := os.Rename(tmpFile, absProductPath); err != nil {
		return 0, muninnerr.NewStorageError("fs.put_from_stream", err)
	}
	return written, nil
}

func (b *Backend) MoveWithin(ctx context.Context, oldArchivePath, newArchivePath, physicalName string) error {
	oldPath := b.productPath(oldArchivePath, physicalName)
	newParent := filepath.Join(b.root, newArchivePath)
	if err := os.MkdirAll(newParent, 0o755); err != nil {
		return muninnerr.NewStorageError("fs.move_within", err)
	}
	newPath := filepath.Join(newParent, physicalName)
	if err := os.Rename(oldPath, newPath); err != nil {
		return muninnerr.NewStorageError("fs.move_within", fmt.Errorf("moving %q to %q: %w", oldPath, newPath, err))
	}
	return nil
}

func (b *Backend) Retrieve(ctx context.Context, archivePath, physicalName, targetDir string, useSymlinks bool) ([]string, error) {
	productPath := b.productPath(archivePath, physicalName)
	info, err := os.Stat(productPath)
	if err != nil {
		return nil, muninnerr.NewStorageError("fs.retrieve", err)
	}

	if !info.IsDir() {
		dst := filepath.Join(targetDir, physicalName)
		if useSymlinks {
			if err := symlinkInto(productPath, dst, b.root); err != nil {
				return nil, muninnerr.NewStorageError("fs.retrieve", err)
			}
		} else if err := copyFile(productPath, dst); err != nil {
			return nil, muninnerr.NewStorageError("fs.retrieve", err)
		}
		return []string{dst}, nil
	}

	entries, err := os.ReadDir(productPath)
	if err != nil {
		return nil, muninnerr.NewStorageError("fs.retrieve", err)
	}
	var out []string
	for _, e := range entries {
		src := filepath.Join(productPath, e.Name())
		dst := filepath.Join(targetDir, e.Name())
		if useSymlinks {
			if err := symlinkInto(src, dst, b.root); err != nil {
				return nil, muninnerr.NewStorageError("fs.retrieve", err)
			}
		} else if err := copyFile(src, dst); err != nil {
			return nil, muninnerr.NewStorageError("fs.retrieve", err)
		}
		out = append(out, dst)
	}
	return out, nil
}

func (b *Backend) Remove(ctx context.Context, archivePath, physicalName string) error {
	productPath := b.productPath(archivePath, physicalName)
	if _, err := os.Lstat(productPath); os.IsNotExist(err) {
		return nil
	}

	parent := filepath.Dir(productPath)
	tmpDir, err := os.MkdirTemp(parent, ".remove-")
	if err != nil {
		return muninnerr.NewStorageError("fs.remove", err)
	}
	defer os.RemoveAll(tmpDir)

	staged := filepath.Join(tmpDir, physicalName)
	if err := os.Rename(productPath, staged); err != nil {
		return muninnerr.NewStorageError("fs.remove", fmt.Errorf("staging %q for removal: %w", productPath, err))
	}
	return nil
}

func (b *Backend) Size(ctx context.Context, archivePath, physicalName string) (int64, error) {
	productPath := b.productPath(archivePath, physicalName)
	info, err := os.Stat(productPath)
	if err != nil {
		return 0, muninnerr.NewStorageError("fs.size", err)
	}
	if !info.IsDir() {
		return info.Size(), nil
	}

	var total int64
	err = filepath.WalkDir(productPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		total += fi.Size()
		return nil
	})
	if err != nil {
		return 0, muninnerr.NewStorageError("fs.size", err)
	}
	return total, nil
}

func (b *Backend) Hash(ctx context.Context, archivePath, physicalName string, algorithm storage.HashAlgorithm) (string, error) {
	productPath := b.productPath(archivePath, physicalName)
	info, err := os.Stat(productPath)
	if err != nil {
		return "", muninnerr.NewStorageError("fs.hash", err)
	}

	if !info.IsDir() {
		f, err := os.Open(productPath)
		if err != nil {
			return "", muninnerr.NewStorageError("fs.hash", err)
		}
		defer f.Close()
		digest, err := storage.HashReader(f, algorithm)
		if err != nil {
			return "", muninnerr.NewStorageError("fs.hash", err)
		}
		return digest, nil
	}

	entries, err := os.ReadDir(productPath)
	if err != nil {
		return "", muninnerr.NewStorageError("fs.hash", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	pr, pw := io.Pipe()
	go func() {
		var werr error
		for _, name := range names {
			f, err := os.Open(filepath.Join(productPath, name))
			if err != nil {
				werr = err
				break
			}
			_, err = io.Copy(pw, f)
			f.Close()
			if err != nil {
				werr = err
				break
			}
		}
		pw.CloseWithError(werr)
	}()
	digest, err := storage.HashReader(pr, algorithm)
	if err != nil {
		return "", muninnerr.NewStorageError("fs.hash", err)
	}
	return digest, nil
}

// workspace is a temporary staging directory rooted inside the
// archive so symlinks created from it stay relative.
type workspace struct {
	path string
}

func (w *workspace) Root() string { return w.path }
func (w *workspace) Close() error { return os.RemoveAll(w.path) }

func (b *Backend) TempWorkspace() (storage.Workspace, error) {
	if err := os.MkdirAll(b.root, 0o755); err != nil {
		return nil, muninnerr.NewStorageError("fs.temp_workspace", err)
	}
	path, err := os.MkdirTemp(b.root, ".workspace-")
	if err != nil {
		return nil, muninnerr.NewStorageError("fs.temp_workspace", err)
	}
	return &workspace{path: path}, nil
}

var _ storage.Backend = (*Backend)(nil)
