package archive

import (
	"context"
	"fmt"

	"github.com/stcorp/muninn/pkg/muninnerr"
	"github.com/stcorp/muninn/pkg/registry"
	"github.com/stcorp/muninn/pkg/schema"
	"github.com/stcorp/muninn/pkg/values"
)

// Export writes a product's bytes to targetDir, optionally through the
// owning plug-in's format-specific exporter. An empty format behaves
// as a plain retrieve. A product with no archive_path but a recorded
// remote_url is pulled transparently first (§4.8).
func (a *Archive) Export(ctx context.Context, id values.Value, format, targetDir string) ([]string, error) {
	row, err := a.findByUUID(ctx, id)
	if err != nil {
		return nil, err
	}
	core := row[schema.CoreName]

	if archivePath, ok := core["archive_path"]; !ok || !archivePath.IsValid() {
		if remoteURL, ok := core["remote_url"]; ok && remoteURL.IsValid() {
			if _, err := a.Pull(ctx, id, PullOptions{}); err != nil {
				return nil, err
			}
			row, err = a.findByUUID(ctx, id)
			if err != nil {
				return nil, err
			}
			core = row[schema.CoreName]
		}
	}

	archivePath, ok := core["archive_path"]
	if !ok || !archivePath.IsValid() {
		return nil, muninnerr.NewStateError("archive.export", fmt.Errorf("product %q has no archived bytes", textOf(core["product_name"])))
	}
	path, _ := archivePath.Text()
	physicalName, _ := core["physical_name"].Text()

	if format == "" {
		paths, err := a.store.Retrieve(ctx, path, physicalName, targetDir, false)
		if err != nil {
			return nil, muninnerr.NewStorageError("archive.export", err)
		}
		return paths, nil
	}

	productType, _ := core["product_type"].Text()
	plugin, err := a.registry.ProductTypePlugin(productType)
	if err != nil {
		return nil, err
	}
	exporter, ok := plugin.(registry.Exporter)
	if !ok {
		return nil, muninnerr.NewPluginError(productType, "export", fmt.Errorf("product type does not support export"))
	}

	sourcePaths, err := a.store.Retrieve(ctx, path, physicalName, targetDir, false)
	if err != nil {
		return nil, muninnerr.NewStorageError("archive.export", err)
	}
	exported, err := exporter.Export(ctx, format, path, physicalName, targetDir, sourcePaths)
	if err != nil {
		return nil, muninnerr.NewPluginError(productType, "export", err)
	}
	return exported, nil
}
