package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/stcorp/muninn/pkg/muninnerr"
	"github.com/stcorp/muninn/pkg/properties"
	"github.com/stcorp/muninn/pkg/registry"
	"github.com/stcorp/muninn/pkg/schema"
	"github.com/stcorp/muninn/pkg/storage"
	"github.com/stcorp/muninn/pkg/values"
)

// IngestOptions bundles ingest()'s parameters (§4.8). Paths is the one
// mandatory field; everything else has a documented default.
type IngestOptions struct {
	// Paths are the source files or directories to ingest. A single
	// path ingests as a single-part product; more than one requires
	// the product type's plug-in to compute an enclosing directory
	// name (UseEnclosingDirectory/EnclosingDirectoryPlugin).
	Paths []string

	// ProductType forces the product type instead of running
	// registry.IdentifyProductType against Paths.
	ProductType string

	// Properties, when non-nil, is used verbatim instead of calling
	// the plug-in's Analyze.
	Properties *properties.Container

	// CatalogueOnly skips the storage write entirely: the product is
	// created with no archive_path, no archive_date, active=true
	// immediately (the "ingest(props-only)" transition, §4.2's state
	// diagram). Named the mirror of ingest_product=false rather than
	// carrying that flag's inverted default, since a Go zero value of
	// false naturally reads as "ingest with bytes" here.
	CatalogueOnly bool

	// UseSymlinks links source bytes into storage instead of copying
	// them, when the storage backend supports it.
	UseSymlinks bool

	// VerifyHash re-hashes the source paths after the storage write
	// and compares against the digest computed from stored bytes,
	// failing the ingest on mismatch.
	VerifyHash bool

	// Force replaces an existing product of the same (product_type,
	// product_name) instead of failing with a conflict.
	Force bool

	// Tags are attached to the product once it is fully committed.
	Tags []string
}

func duplicateBasenames(paths []string) bool {
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		b := filepath.Base(p)
		if seen[b] {
			return true
		}
		seen[b] = true
	}
	return false
}

func sumSizes(paths []string) (int64, error) {
	var total int64
	for _, p := range paths {
		var size int64
		err := filepath.Walk(p, func(_ string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.IsDir() {
				size += info.Size()
			}
			return nil
		})
		if err != nil {
			return 0, err
		}
		total += size
	}
	return total, nil
}

func (a *Archive) physicalName(plugin registry.ProductTypePlugin, props *properties.Container, paths []string) (string, error) {
	if plugin.UseEnclosingDirectory() {
		ed, ok := plugin.(registry.EnclosingDirectoryPlugin)
		if !ok {
			return "", muninnerr.NewPluginError(plugin.ProductType(), "enclosing_directory", fmt.Errorf("plug-in declares UseEnclosingDirectory but does not implement EnclosingDirectoryPlugin"))
		}
		name, err := ed.EnclosingDirectory(props)
		if err != nil {
			return "", muninnerr.NewPluginError(plugin.ProductType(), "enclosing_directory", err)
		}
		return name, nil
	}
	if len(paths) != 1 {
		return "", muninnerr.NewStateError("archive.ingest", fmt.Errorf("product type %q does not use an enclosing directory and cannot ingest more than one path", plugin.ProductType()))
	}
	return filepath.Base(paths[0]), nil
}

// Ingest brings one or more source paths into the catalogue, and
// unless opts.CatalogueOnly optionally stores their bytes, following
// the state diagram's ingest transition (§4.2, §4.8).
func (a *Archive) Ingest(ctx context.Context, opts IngestOptions) (*properties.Container, error) {
	if len(opts.Paths) == 0 {
		return nil, muninnerr.NewStateError("archive.ingest", fmt.Errorf("no paths to ingest"))
	}
	if duplicateBasenames(opts.Paths) {
		return nil, muninnerr.NewStateError("archive.ingest", fmt.Errorf("source paths must have unique base names"))
	}

	productType := opts.ProductType
	if productType == "" {
		plugin, err := a.registry.IdentifyProductType(opts.Paths)
		if err != nil {
			return nil, err
		}
		productType = plugin.ProductType()
	}
	plugin, err := a.registry.ProductTypePlugin(productType)
	if err != nil {
		return nil, err
	}

	props := opts.Properties
	var tags []string
	if props == nil {
		props, tags, err = plugin.Analyze(ctx, opts.Paths)
		if err != nil {
			return nil, muninnerr.NewPluginError(productType, "analyze", err)
		}
		if props == nil {
			props = properties.New()
		}
	} else {
		props = props.Clone()
	}
	tags = append(tags, opts.Tags...)

	if _, ok := props.Get(schema.CoreName, "product_name"); !ok {
		return nil, muninnerr.NewStateError("archive.ingest", fmt.Errorf("product_name is required"))
	}
	productName := textOf(mustGet(props, "product_name"))

	if err := a.reclaimForForce(ctx, opts.Force, productType, productName); err != nil {
		return nil, err
	}

	id := newUUID()
	props.Set(schema.CoreName, "uuid", id)
	props.Set(schema.CoreName, "active", values.NewBoolean(false))
	props.Set(schema.CoreName, "product_type", values.NewText(productType))
	props.Set(schema.CoreName, "metadata_date", values.NewTimestamp(now()))

	size, err := sumSizes(opts.Paths)
	if err != nil {
		return nil, muninnerr.NewStorageError("archive.ingest", err)
	}
	props.Set(schema.CoreName, "size", values.NewLong(size))

	physicalName, err := a.physicalName(plugin, props, opts.Paths)
	if err != nil {
		return nil, err
	}
	props.Set(schema.CoreName, "physical_name", values.NewText(physicalName))

	var archivePath string
	if !opts.CatalogueOnly {
		archivePath, err = plugin.ArchivePath(props)
		if err != nil {
			return nil, muninnerr.NewPluginError(productType, "archive_path", err)
		}
		props.Set(schema.CoreName, "archive_path", values.NewText(archivePath))
	}

	if err := a.insertCatalogue(ctx, props); err != nil {
		return nil, err
	}

	if opts.CatalogueOnly {
		if err := a.activate(ctx, id, nil); err != nil {
			return nil, err
		}
		props.Set(schema.CoreName, "active", values.NewBoolean(true))
		if err := a.tagAll(ctx, id, tags); err != nil {
			return nil, err
		}
		if err := a.runPostCreateHooks(ctx, plugin, props); err != nil {
			return nil, err
		}
		return props, nil
	}

	if _, err := a.store.Put(ctx, opts.Paths, archivePath, physicalName, opts.UseSymlinks); err != nil {
		return nil, muninnerr.NewStorageError("archive.ingest", err)
	}

	if hashType := plugin.HashType(); hashType != registry.NoHash {
		hash, err := a.store.Hash(ctx, archivePath, physicalName, storage.HashAlgorithm(hashType))
		if err != nil {
			return nil, muninnerr.NewStorageError("archive.ingest", err)
		}
		if opts.VerifyHash {
			source, err := hashSourcePaths(opts.Paths, storage.HashAlgorithm(hashType))
			if err != nil {
				return nil, muninnerr.NewStorageError("archive.ingest", err)
			}
			if source != hash {
				return nil, muninnerr.NewStorageError("archive.ingest", fmt.Errorf("hash mismatch after storing %s", physicalName))
			}
		}
		props.Set(schema.CoreName, "hash", values.NewText(hash))
		hashWhere, err := uuidWhere(id)
		if err != nil {
			return nil, err
		}
		if _, err := a.db.Update(ctx, schema.CoreName, map[string]values.Value{"hash": values.NewText(hash)}, hashWhere); err != nil {
			return nil, muninnerr.NewBackendError("archive.ingest", err)
		}
	}

	archiveDate := now()
	props.Set(schema.CoreName, "archive_date", values.NewTimestamp(archiveDate))
	if err := a.activate(ctx, id, &archiveDate); err != nil {
		return nil, err
	}
	props.Set(schema.CoreName, "active", values.NewBoolean(true))

	if err := a.tagAll(ctx, id, tags); err != nil {
		return nil, err
	}

	if err := a.runPostIngestHooks(ctx, plugin, props); err != nil {
		return nil, err
	}
	return props, nil
}

func mustGet(props *properties.Container, field string) values.Value {
	v, _ := props.Get(schema.CoreName, field)
	return v
}

func now() values.Timestamp { return values.Timestamp(time.Now().UnixMicro()) }

// hashSourcePaths hashes paths directly (sorted by base name, matching
// the storage backend's own multi-part ordering) without going through
// storage, so VerifyHash can compare an independently computed digest
// against the one read back from stored bytes.
func hashSourcePaths(paths []string, algorithm storage.HashAlgorithm) (string, error) {
	sorted := append([]string(nil), paths...)
	sort.Slice(sorted, func(i, j int) bool { return filepath.Base(sorted[i]) < filepath.Base(sorted[j]) })
	h, err := storage.NewHasher(algorithm)
	if err != nil {
		return "", err
	}
	for _, p := range sorted {
		if err := hashFileOrDir(h, p); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("%s:%x", algorithm, h.Sum(nil)), nil
}

func (a *Archive) insertCatalogue(ctx context.Context, props *properties.Container) error {
	core := props.Namespace(schema.CoreName)
	if _, err := a.db.InsertCore(ctx, core); err != nil {
		return muninnerr.NewBackendError("archive.ingest", err)
	}
	id := core["uuid"]
	for _, ns := range props.Namespaces() {
		if ns == schema.CoreName {
			continue
		}
		if err := a.db.InsertNamespace(ctx, ns, id, props.Namespace(ns)); err != nil {
			return muninnerr.NewBackendError("archive.ingest", err)
		}
	}
	return nil
}

func (a *Archive) activate(ctx context.Context, id values.Value, archiveDate *values.Timestamp) error {
	fields := map[string]values.Value{"active": values.NewBoolean(true)}
	if archiveDate != nil {
		fields["archive_date"] = values.NewTimestamp(*archiveDate)
	}
	where, err := uuidWhere(id)
	if err != nil {
		return err
	}
	if _, err := a.db.Update(ctx, schema.CoreName, fields, where); err != nil {
		return muninnerr.NewBackendError("archive.activate", err)
	}
	return nil
}

func (a *Archive) tagAll(ctx context.Context, id values.Value, tags []string) error {
	for _, t := range tags {
		if err := a.db.Tag(ctx, id, t); err != nil {
			return muninnerr.NewBackendError("archive.tag", err)
		}
	}
	return nil
}

// reclaimForForce mirrors ingest()'s force handling: an existing
// product with the same (product_type, product_name) is a conflict
// without force, and with force it is purged before the new one is
// created, whatever its archive_path.
func (a *Archive) reclaimForForce(ctx context.Context, force bool, productType, productName string) error {
	rows, err := a.searchCore(ctx, fmt.Sprintf("product_type == %s and product_name == %s", quoteText(productType), quoteText(productName)))
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	if !force {
		return muninnerr.NewConflictError("archive.ingest", "product_name", fmt.Errorf("product %q of type %q already exists", productName, productType))
	}
	for _, row := range rows {
		if err := a.purgeOne(ctx, row); err != nil {
			return err
		}
	}
	return nil
}
