package archive

import (
	"context"
	"fmt"

	"github.com/stcorp/muninn/pkg/muninnerr"
	"github.com/stcorp/muninn/pkg/properties"
	"github.com/stcorp/muninn/pkg/schema"
	"github.com/stcorp/muninn/pkg/values"
)

// RebuildProperties re-invokes the owning plug-in's Analyze on a
// product's already-archived bytes, merging the returned fields and
// tags into the stored properties. Fields the fresh analysis doesn't
// return are left untouched (§4.8 "pre-existing fields not returned
// are preserved").
func (a *Archive) RebuildProperties(ctx context.Context, id values.Value) (*properties.Container, error) {
	row, err := a.findByUUID(ctx, id)
	if err != nil {
		return nil, err
	}
	core := row[schema.CoreName]
	archivePath, ok := core["archive_path"]
	if !ok || !archivePath.IsValid() {
		return nil, muninnerr.NewStateError("archive.rebuild", fmt.Errorf("product %q has no archived bytes to rebuild from", textOf(core["product_name"])))
	}

	productType, _ := core["product_type"].Text()
	plugin, err := a.registry.ProductTypePlugin(productType)
	if err != nil {
		return nil, err
	}

	path, _ := archivePath.Text()
	physicalName, _ := core["physical_name"].Text()
	ws, err := a.store.TempWorkspace()
	if err != nil {
		return nil, muninnerr.NewStorageError("archive.rebuild", err)
	}
	defer ws.Close()

	paths, err := a.store.Retrieve(ctx, path, physicalName, ws.Root(), true)
	if err != nil {
		return nil, muninnerr.NewStorageError("archive.rebuild", err)
	}

	fresh, tags, err := plugin.Analyze(ctx, paths)
	if err != nil {
		return nil, muninnerr.NewPluginError(productType, "analyze", err)
	}
	if fresh == nil {
		fresh = properties.New()
	}

	current := rowToContainer(row)
	merged := current.Merge(fresh)
	merged.Set(schema.CoreName, "metadata_date", values.NewTimestamp(now()))

	diff := current.Diff(merged)
	where, err := uuidWhere(id)
	if err != nil {
		return nil, err
	}
	for _, ns := range diff.Namespaces() {
		fields := diff.Namespace(ns)
		if fields == nil || len(fields) == 0 {
			continue
		}
		if current.IsDefined(ns) {
			if _, err := a.db.Update(ctx, ns, fields, where); err != nil {
				return nil, muninnerr.NewBackendError("archive.rebuild", err)
			}
		} else if err := a.db.InsertNamespace(ctx, ns, id, merged.Namespace(ns)); err != nil {
			return nil, muninnerr.NewBackendError("archive.rebuild", err)
		}
	}
	if err := a.tagAll(ctx, id, tags); err != nil {
		return nil, err
	}
	return merged, nil
}
