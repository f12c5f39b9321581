package archive

import (
	"context"
	"fmt"

	"github.com/stcorp/muninn/pkg/muninnerr"
	"github.com/stcorp/muninn/pkg/properties"
	"github.com/stcorp/muninn/pkg/schema"
	"github.com/stcorp/muninn/pkg/values"
)

// Retrieve copies every matching, archived product's stored bytes into
// targetDir and returns the written paths per uuid.
func (a *Archive) Retrieve(ctx context.Context, query, targetDir string, useSymlinks bool) (map[string][]string, error) {
	rows, err := a.searchCore(ctx, query)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string, len(rows))
	for _, row := range rows {
		core := row[schema.CoreName]
		paths, err := a.retrieveOne(ctx, core, targetDir, useSymlinks)
		if err != nil {
			return nil, err
		}
		u, _ := core["uuid"].UUIDValue()
		out[u.String()] = paths
	}
	return out, nil
}

// RetrieveByUUID retrieves exactly one product.
func (a *Archive) RetrieveByUUID(ctx context.Context, id values.Value, targetDir string, useSymlinks bool) ([]string, error) {
	row, err := a.findByUUID(ctx, id)
	if err != nil {
		return nil, err
	}
	return a.retrieveOne(ctx, row[schema.CoreName], targetDir, useSymlinks)
}

func (a *Archive) retrieveOne(ctx context.Context, core map[string]values.Value, targetDir string, useSymlinks bool) ([]string, error) {
	active, _ := core["active"].Boolean()
	if !active {
		return nil, muninnerr.NewStateError("archive.retrieve", fmt.Errorf("product %q is not available", textOf(core["product_name"])))
	}
	archivePath, ok := core["archive_path"]
	if !ok || !archivePath.IsValid() {
		return nil, muninnerr.NewStateError("archive.retrieve", fmt.Errorf("product %q has no archived bytes", textOf(core["product_name"])))
	}
	path, _ := archivePath.Text()
	physicalName, _ := core["physical_name"].Text()
	paths, err := a.store.Retrieve(ctx, path, physicalName, targetDir, useSymlinks)
	if err != nil {
		return nil, muninnerr.NewStorageError("archive.retrieve", err)
	}
	return paths, nil
}

// RetrieveProperties returns the property container for exactly one
// product, for callers that only need metadata (no byte retrieval).
func (a *Archive) RetrieveProperties(ctx context.Context, id values.Value) (*properties.Container, error) {
	row, err := a.findByUUID(ctx, id)
	if err != nil {
		return nil, err
	}
	return rowToContainer(row), nil
}
