// Package s3store implements storage backend object store #1 (C6):
// an S3-compatible bucket, optionally scoped under a key prefix, with
// "directory" marker objects materialized so the prefix is visible
// even when a caller lists it before any real object exists under it.
package s3store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/stcorp/muninn/pkg/config"
	"github.com/stcorp/muninn/pkg/muninnerr"
	"github.com/stcorp/muninn/pkg/storage"
)

// Backend implements storage.Backend against an S3-compatible bucket.
type Backend struct {
	client *s3.Client
	bucket string
	prefix string
}

// Open builds a Backend from cfg. When cfg.Host names a non-AWS
// endpoint (MinIO, a local test double, ...) the client is pointed at
// it with path-style addressing, mirroring how the pack's own S3
// client special-cases non-default hosts.
func Open(ctx context.Context, cfg config.S3Config) (*Backend, error) {
	if cfg.Bucket == "" {
		return nil, muninnerr.NewConfigError("s3store.open", fmt.Errorf("no value for mandatory item %q", "bucket"))
	}

	var awsCfg aws.Config
	var err error
	if cfg.AccessKey != "" && cfg.SecretAccessKey != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKey, cfg.SecretAccessKey, "",
			)),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	}
	if err != nil {
		return nil, muninnerr.NewConfigError("s3store.open", fmt.Errorf("loading AWS config: %w", err))
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Host != "" && cfg.Host != "s3.amazonaws.com" {
			scheme := "https"
			if cfg.Port != 0 && cfg.Port != 443 {
				scheme = "http"
			}
			endpoint := fmt.Sprintf("%s://%s", scheme, cfg.Host)
			if cfg.Port != 0 {
				endpoint = fmt.Sprintf("%s:%d", endpoint, cfg.Port)
			}
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &Backend{client: client, bucket: cfg.Bucket, prefix: strings.Trim(cfg.Prefix, "/")}, nil
}

func (b *Backend) key(archivePath, physicalName string, parts ...string) string {
	segs := []string{}
	if b.prefix != "" {
		segs = append(segs, b.prefix)
	}
	if archivePath != "" {
		segs = append(segs, archivePath)
	}
	segs = append(segs, physicalName)
	segs = append(segs, parts...)
	return path.Join(segs...)
}

func (b *Backend) Prepare(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.bucket)})
	if err == nil {
		return b.materializePrefix(ctx)
	}
	if _, err := b.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(b.bucket)}); err != nil {
		return muninnerr.NewStorageError("s3store.prepare", err)
	}
	return b.materializePrefix(ctx)
}

// materializePrefix writes a zero-byte "<prefix>/" marker object so
// the prefix is observable to listings even before any product exists
// under it.
func (b *Backend) materializePrefix(ctx context.Context) error {
	if b.prefix == "" {
		return nil
	}
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.prefix + "/"),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return muninnerr.NewStorageError("s3store.prepare", err)
	}
	return nil
}

func (b *Backend) Destroy(ctx context.Context) error {
	keys, err := b.listAll(ctx, b.prefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if _, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(b.bucket), Key: aws.String(key)}); err != nil {
			return muninnerr.NewStorageError("s3store.destroy", fmt.Errorf("deleting %q: %w", key, err))
		}
	}
	return nil
}

func (b *Backend) listAll(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var token *string
	for {
		out, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(b.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, muninnerr.NewStorageError("s3store.list", err)
		}
		for _, obj := range out.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		token = out.NextContinuationToken
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
		return 0, muninnerr.NewStorageError("s3store.put", fmt.Errorf("symlinks are not supported by this storage backend"))
	}
	if len(srcPaths) == 0 {
		return 0, muninnerr.NewStorageError("s3store.put", fmt.Errorf("no source paths given"))
	}

	multiPart := len(srcPaths) > 1
	var written int64
	for _, src := range srcPaths {
		f, err := os.Open(src)
		if err != nil {
			return 0, muninnerr.NewStorageError("s3store.put", fmt.Errorf("opening %q: %w", src, err))
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return 0, muninnerr.NewStorageError("s3store.put", err)
		}

		key := b.key(archivePath, physicalName)
		if multiPart {
			key = b.key(archivePath, physicalName, path.Base(src))
		}
		_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(key),
			Body:   f,
		})
		f.Close()
		if err != nil {
			return 0, muninnerr.NewStorageError("s3store.put", fmt.Errorf("uploading %q: %w", key, err))
		}
		written += info.Size()
	}

	if multiPart {
		if _, err := b.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(b.key(archivePath, physicalName) + "/"),
			Body:   bytes.NewReader(nil),
		}); err != nil {
			return 0, muninnerr.NewStorageError("s3store.put", err)
		}
	}
	return written, nil
}

func (b *Backend) PutFromStream(ctx context.Context, r io.Reader, archivePath, physicalName string) (int64, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return 0, muninnerr.NewStorageError("s3store.put_from_stream", err)
	}
	key := b.key(archivePath, physicalName)
	if _, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(buf),
	}); err != nil {
		return 0, muninnerr.NewStorageError("s3store.put_from_stream", err)
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
		if _, err := b.client.CopyObject(ctx, &s3.CopyObjectInput{
			Bucket:     aws.String(b.bucket),
			Key:        aws.String(newKey),
			CopySource: aws.String(path.Join(b.bucket, oldKey)),
		}); err != nil {
			return muninnerr.NewStorageError("s3store.move_within", fmt.Errorf("copying %q to %q: %w", oldKey, newKey, err))
		}
		if _, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(b.bucket), Key: aws.String(oldKey)}); err != nil {
			return muninnerr.NewStorageError("s3store.move_within", err)
		}
	}
	return nil
}

func (b *Backend) Retrieve(ctx context.Context, archivePath, physicalName, targetDir string, useSymlinks bool) ([]string, error) {
	if useSymlinks {
		return nil, muninnerr.NewStorageError("s3store.retrieve", fmt.Errorf("symlinks are not supported by this storage backend"))
	}
	prefix := b.key(archivePath, physicalName)
	keys, err := b.listAll(ctx, prefix)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, key := range keys {
		if strings.HasSuffix(key, "/") {
			continue // directory marker
		}
		name := path.Base(key)
		if key == prefix {
			name = physicalName
		}
		target := path.Join(targetDir, name)
		if err := b.download(ctx, key, target); err != nil {
			return nil, err
		}
		out = append(out, target)
	}
	return out, nil
}

func (b *Backend) download(ctx context.Context, key, targetPath string) error {
	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(b.bucket), Key: aws.String(key)})
	if err != nil {
		return muninnerr.NewStorageError("s3store.retrieve", fmt.Errorf("fetching %q: %w", key, err))
	}
	defer result.Body.Close()

	f, err := os.Create(targetPath)
	if err != nil {
		return muninnerr.NewStorageError("s3store.retrieve", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, result.Body); err != nil {
		return muninnerr.NewStorageError("s3store.retrieve", err)
	}
	return nil
}

func (b *Backend) Remove(ctx context.Context, archivePath, physicalName string) error {
	keys, err := b.listAll(ctx, b.key(archivePath, physicalName))
	if err != nil {
		return err
	}
	for _, key := range keys {
		if _, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(b.bucket), Key: aws.String(key)}); err != nil {
			return muninnerr.NewStorageError("s3store.remove", err)
		}
	}
	return nil
}

func (b *Backend) Size(ctx context.Context, archivePath, physicalName string) (int64, error) {
	prefix := b.key(archivePath, physicalName)
	var total int64
	var token *string
	for {
		out, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(b.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return 0, muninnerr.NewStorageError("s3store.size", err)
		}
		for _, obj := range out.Contents {
			if obj.Key != nil && strings.HasSuffix(*obj.Key, "/") {
				continue
			}
			if obj.Size != nil {
				total += *obj.Size
			}
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		token = out.NextContinuationToken
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
		return "", muninnerr.NewStorageError("s3store.hash", err)
	}
	for _, key := range names {
		result, err := b.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(b.bucket), Key: aws.String(key)})
		if err != nil {
			return "", muninnerr.NewStorageError("s3store.hash", err)
		}
		_, copyErr := io.Copy(h, result.Body)
		result.Body.Close()
		if copyErr != nil {
			return "", muninnerr.NewStorageError("s3store.hash", copyErr)
		}
	}
	return fmt.Sprintf("%s:%x", algorithm, h.Sum(nil)), nil
}

// workspace is a local staging directory: S3 has no concept of a
// scoped handle of its own, so Put/PutFromStream read from ordinary
// files a caller stages here before uploading.
type workspace struct{ path string }

func (w *workspace) Root() string { return w.path }
func (w *workspace) Close() error { return os.RemoveAll(w.path) }

func (b *Backend) TempWorkspace() (storage.Workspace, error) {
	path, err := os.MkdirTemp("", "muninn-s3-")
	if err != nil {
		return nil, muninnerr.NewStorageError("s3store.temp_workspace", err)
	}
	return &workspace{path: path}, nil
}

var _ storage.Backend = (*Backend)(nil)
