package archive

import (
	"context"
	"fmt"

	"github.com/stcorp/muninn/pkg/muninnerr"
	"github.com/stcorp/muninn/pkg/properties"
	"github.com/stcorp/muninn/pkg/registry"
	"github.com/stcorp/muninn/pkg/schema"
	"github.com/stcorp/muninn/pkg/storage"
	"github.com/stcorp/muninn/pkg/values"
)

// AttachOptions bundles attach()'s parameters. Attach is strip's
// inverse: it restores bytes for a catalogue row that already exists
// and currently has none (§4.8).
type AttachOptions struct {
	Paths       []string
	ProductType string
	Force       bool
	VerifyHash  bool
	UseSymlinks bool
}

// Attach restores storage bytes for an existing catalogue row matching
// (product_type, physical_name) derived from paths. It refuses a row
// that already has archive_path set, and, unless Force is set, one
// whose recorded size disagrees with the incoming paths.
func (a *Archive) Attach(ctx context.Context, opts AttachOptions) (*properties.Container, error) {
	if len(opts.Paths) == 0 {
		return nil, muninnerr.NewStateError("archive.attach", fmt.Errorf("no paths to attach"))
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

	physicalName, err := a.physicalName(plugin, properties.New(), opts.Paths)
	if err != nil {
		return nil, err
	}

	rows, err := a.searchCore(ctx, fmt.Sprintf("product_type == %s and physical_name == %s", quoteText(productType), quoteText(physicalName)))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, muninnerr.NewNotFoundError("product", physicalName)
	}
	row := rows[0]
	core := row[schema.CoreName]

	if archivePath, ok := core["archive_path"]; ok && archivePath.IsValid() {
		return nil, muninnerr.NewStateError("archive.attach", fmt.Errorf("product %q already has archived bytes", physicalName))
	}

	if !opts.Force {
		size, err := sumSizes(opts.Paths)
		if err != nil {
			return nil, muninnerr.NewStorageError("archive.attach", err)
		}
		recorded, _ := core["size"].Long()
		if recorded != size {
			return nil, muninnerr.NewStateError("archive.attach", fmt.Errorf("incoming size %d does not match recorded size %d", size, recorded))
		}
	}

	props := rowToContainer(row)
	archivePath, err := plugin.ArchivePath(props)
	if err != nil {
		return nil, muninnerr.NewPluginError(productType, "archive_path", err)
	}

	id := core["uuid"]
	if err := a.writeBytes(ctx, id, plugin, props, opts.Paths, archivePath, physicalName, opts.UseSymlinks, opts.VerifyHash); err != nil {
		return nil, err
	}
	return props, nil
}

// PullOptions bundles pull()'s parameters: fetch a product's bytes
// from its recorded remote_url into storage.
type PullOptions struct {
	VerifyHash bool
}

// Pull fetches a product's bytes from its recorded remote_url. The
// product must have remote_url defined and archive_path undefined.
func (a *Archive) Pull(ctx context.Context, id values.Value, opts PullOptions) (*properties.Container, error) {
	row, err := a.findByUUID(ctx, id)
	if err != nil {
		return nil, err
	}
	core := row[schema.CoreName]

	if archivePath, ok := core["archive_path"]; ok && archivePath.IsValid() {
		return nil, muninnerr.NewStateError("archive.pull", fmt.Errorf("product %q already has archived bytes", textOf(core["product_name"])))
	}
	remoteURL, ok := core["remote_url"]
	if !ok || !remoteURL.IsValid() {
		return nil, muninnerr.NewStateError("archive.pull", fmt.Errorf("product %q has no remote_url", textOf(core["product_name"])))
	}
	url, _ := remoteURL.Text()

	backend, err := a.registry.RemoteBackendFor(url)
	if err != nil {
		return nil, err
	}

	ws, err := a.store.TempWorkspace()
	if err != nil {
		return nil, muninnerr.NewStorageError("archive.pull", err)
	}
	defer ws.Close()

	paths, err := backend.Pull(ctx, url, ws.Root())
	if err != nil {
		if rbErr := a.resetActiveAfterFailure(ctx, id); rbErr != nil && a.log != nil {
			a.log.Error("archive.pull: failed to reset active flag after pull error: %v", rbErr)
		}
		return nil, muninnerr.NewStorageError("archive.pull", err)
	}

	productType, _ := core["product_type"].Text()
	plugin, err := a.registry.ProductTypePlugin(productType)
	if err != nil {
		return nil, err
	}
	props := rowToContainer(row)

	archivePath, err := plugin.ArchivePath(props)
	if err != nil {
		return nil, muninnerr.NewPluginError(productType, "archive_path", err)
	}
	physicalName, _ := core["physical_name"].Text()

	if err := a.writeBytes(ctx, id, plugin, props, paths, archivePath, physicalName, false, opts.VerifyHash); err != nil {
		if rbErr := a.resetActiveAfterFailure(ctx, id); rbErr != nil && a.log != nil {
			a.log.Error("archive.pull: failed to reset active flag after pull error: %v", rbErr)
		}
		return nil, err
	}

	if err := a.runPostPullHooks(ctx, plugin, props); err != nil {
		return nil, err
	}
	return props, nil
}

// writeBytes is the shared tail of attach and pull: put the bytes,
// optionally hash and verify, then set archive_path/archive_date/hash
// and activate the row.
func (a *Archive) writeBytes(ctx context.Context, id values.Value, plugin registry.ProductTypePlugin, props *properties.Container, paths []string, archivePath, physicalName string, useSymlinks, verifyHash bool) error {
	if _, err := a.store.Put(ctx, paths, archivePath, physicalName, useSymlinks); err != nil {
		return muninnerr.NewStorageError("archive.attach", err)
	}

	fields := map[string]values.Value{"archive_path": values.NewText(archivePath)}

	if hashType := plugin.HashType(); hashType != registry.NoHash {
		hash, err := a.store.Hash(ctx, archivePath, physicalName, storage.HashAlgorithm(hashType))
		if err != nil {
			return muninnerr.NewStorageError("archive.attach", err)
		}
		if verifyHash {
			source, err := hashSourcePaths(paths, storage.HashAlgorithm(hashType))
			if err != nil {
				return muninnerr.NewStorageError("archive.attach", err)
			}
			if source != hash {
				return muninnerr.NewStorageError("archive.attach", fmt.Errorf("hash mismatch after storing %s", physicalName))
			}
		}
		fields["hash"] = values.NewText(hash)
		props.Set(schema.CoreName, "hash", values.NewText(hash))
	}

	archiveDate := now()
	fields["archive_date"] = values.NewTimestamp(archiveDate)
	fields["active"] = values.NewBoolean(true)
	props.Set(schema.CoreName, "archive_path", values.NewText(archivePath))
	props.Set(schema.CoreName, "archive_date", values.NewTimestamp(archiveDate))
	props.Set(schema.CoreName, "active", values.NewBoolean(true))

	where, err := uuidWhere(id)
	if err != nil {
		return err
	}
	if _, err := a.db.Update(ctx, schema.CoreName, fields, where); err != nil {
		return muninnerr.NewBackendError("archive.attach", err)
	}
	return nil
}

// resetActiveAfterFailure honestly reflects a failed pull/attach: the
// reservation stays (the row, the (type,name) slot) but active is set
// false so the product reads as unavailable until a retry succeeds.
func (a *Archive) resetActiveAfterFailure(ctx context.Context, id values.Value) error {
	where, err := uuidWhere(id)
	if err != nil {
		return err
	}
	_, err = a.db.Update(ctx, schema.CoreName, map[string]values.Value{"active": values.NewBoolean(false)}, where)
	return err
}
