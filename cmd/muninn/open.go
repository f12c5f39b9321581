package main

import (
	"context"
	"fmt"

	"github.com/stcorp/muninn/pkg/archive"
	"github.com/stcorp/muninn/pkg/config"
	"github.com/stcorp/muninn/pkg/dbbackend"
	"github.com/stcorp/muninn/pkg/dbbackend/postgres"
	"github.com/stcorp/muninn/pkg/dbbackend/sqlite"
	"github.com/stcorp/muninn/pkg/logger"
	"github.com/stcorp/muninn/pkg/registry"
	"github.com/stcorp/muninn/pkg/schema"
	"github.com/stcorp/muninn/pkg/storage"
	"github.com/stcorp/muninn/pkg/storage/fs"
	"github.com/stcorp/muninn/pkg/storage/nonestore"
	"github.com/stcorp/muninn/pkg/storage/s3store"
	"github.com/stcorp/muninn/pkg/storage/swiftstore"
)

// exitCode reduces every command error to a shell exit status; the
// taxonomy in pkg/muninnerr already carries enough detail for the
// printed message, a process only needs zero vs. non-zero (§6).
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}

func openDatabaseBackend(ctx context.Context, log *logger.Logger) (dbbackend.Backend, error) {
	cfg := config.DatabaseBackendConfig{
		ConnectionString: flagDBConnectionString,
		TablePrefix:      flagDBTablePrefix,
	}
	switch flagDBLibrary {
	case "sqlite", "":
		return sqlite.Open(ctx, cfg, log)
	case "postgresql", "postgres":
		return postgres.Open(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("unknown database backend %q", flagDBLibrary)
	}
}

func openStorageBackend(ctx context.Context, log *logger.Logger) (storage.Backend, error) {
	switch flagStorageKind {
	case "fs", "":
		return fs.Open(config.FSConfig{Root: flagStorageRoot, UseSymlinks: flagUseSymlinks}, log)
	case "s3":
		return s3store.Open(ctx, config.S3Config{})
	case "swift":
		return swiftstore.Open(ctx, config.SwiftConfig{})
	case "none":
		return nonestore.Open(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", flagStorageKind)
	}
}

// openArchive wires the requested backends and the compiled-in
// product-type/namespace/remote-backend/hook registrations (see
// registry.go) into a ready-to-use Archive. Callers that only need
// read access (search, summary, retrieve, info, list-tags) still go
// through this path; pkg/archive itself doesn't distinguish a
// read-only mode.
func openArchive(ctx context.Context) (*archive.Archive, func(), error) {
	log := logger.New("muninn")

	db, err := openDatabaseBackend(ctx, log)
	if err != nil {
		return nil, nil, err
	}
	store, err := openStorageBackend(ctx, log)
	if err != nil {
		return nil, nil, err
	}

	reg := registry.New(schema.NewRegistry())
	registerExtensions(reg)

	cfg := config.ArchiveConfig{
		CascadeGracePeriod: flagCascadeGracePeriod,
		MaxCascadeCycles:   flagMaxCascadeCycles,
		TempDir:            flagTempDir,
	}
	a := archive.Open(db, store, reg, cfg, log)

	closer := func() {
		if c, ok := db.(interface{ Close() error }); ok {
			_ = c.Close()
		}
	}
	return a, closer, nil
}
