package archive

import (
	"context"
	"fmt"

	"github.com/stcorp/muninn/pkg/dbbackend"
	"github.com/stcorp/muninn/pkg/muninnerr"
	"github.com/stcorp/muninn/pkg/schema"
	"github.com/stcorp/muninn/pkg/values"
)

// Strip clears a matching product's archived bytes, leaving its
// catalogue row and active flag untouched (the "strip" transition in
// §4.2's state diagram never sets active=false: that value is
// reserved for the two-phase ingest reservation window). query is
// combined with the mandatory "is_defined(archive_path)" prefix every
// strip call in the original carries, since there is nothing to strip
// off a catalogue-only product.
func (a *Archive) Strip(ctx context.Context, query string, force, useCascade bool) (int, error) {
	return a.stripWhere(ctx, query, force, useCascade)
}

// StripByUUID strips exactly one product, failing with NotFoundError
// if it doesn't match (catalogue-only products included).
func (a *Archive) StripByUUID(ctx context.Context, id values.Value, force, useCascade bool) error {
	u, ok := id.UUIDValue()
	if !ok {
		return muninnerr.NewStateError("archive.strip", fmt.Errorf("uuid required"))
	}
	n, err := a.stripWhere(ctx, fmt.Sprintf("uuid == %s", u.String()), force, useCascade)
	if err != nil {
		return err
	}
	if n == 0 {
		return muninnerr.NewNotFoundError("product", u.String())
	}
	return nil
}

func (a *Archive) stripWhere(ctx context.Context, query string, force, useCascade bool) (int, error) {
	full := "is_defined(archive_path)"
	if query != "" {
		full = full + " and (" + query + ")"
	}
	rows, err := a.searchCore(ctx, full)
	if err != nil {
		return 0, err
	}
	for _, row := range rows {
		active, _ := row[schema.CoreName]["active"].Boolean()
		if !active && !force {
			return 0, muninnerr.NewStateError("archive.strip", fmt.Errorf("product %q is not available", textOf(row[schema.CoreName]["product_name"])))
		}
	}
	for _, row := range rows {
		if err := a.stripOne(ctx, row); err != nil {
			return 0, err
		}
	}
	if len(rows) > 0 {
		if err := a.runCascade(ctx, useCascade); err != nil {
			return len(rows), err
		}
	}
	return len(rows), nil
}

func (a *Archive) stripOne(ctx context.Context, row dbbackend.Row) error {
	core := row[schema.CoreName]
	id := core["uuid"]
	where, err := uuidWhere(id)
	if err != nil {
		return err
	}
	if _, err := a.db.Update(ctx, schema.CoreName, map[string]values.Value{
		"archive_path": {},
		"archive_date": {},
	}, where); err != nil {
		return muninnerr.NewBackendError("archive.strip", err)
	}
	archivePath, _ := core["archive_path"].Text()
	physicalName, _ := core["physical_name"].Text()
	if err := a.store.Remove(ctx, archivePath, physicalName); err != nil {
		return muninnerr.NewStorageError("archive.strip", err)
	}
	return nil
}

// Remove deletes every matching product's catalogue row and stored
// bytes. An inactive (reserved) product requires force, matching the
// original's guard against removing a half-committed ingest out from
// under a concurrent caller.
func (a *Archive) Remove(ctx context.Context, query string, force, useCascade bool) (int, error) {
	return a.removeWhere(ctx, query, force, useCascade)
}

// RemoveByUUID removes exactly one product.
func (a *Archive) RemoveByUUID(ctx context.Context, id values.Value, force, useCascade bool) error {
	u, ok := id.UUIDValue()
	if !ok {
		return muninnerr.NewStateError("archive.remove", fmt.Errorf("uuid required"))
	}
	n, err := a.removeWhere(ctx, fmt.Sprintf("uuid == %s", u.String()), force, useCascade)
	if err != nil {
		return err
	}
	if n == 0 {
		return muninnerr.NewNotFoundError("product", u.String())
	}
	return nil
}

func (a *Archive) removeWhere(ctx context.Context, query string, force, useCascade bool) (int, error) {
	rows, err := a.searchCore(ctx, query)
	if err != nil {
		return 0, err
	}
	for _, row := range rows {
		active, _ := row[schema.CoreName]["active"].Boolean()
		if !active && !force {
			return 0, muninnerr.NewStateError("archive.remove", fmt.Errorf("product %q is not available", textOf(row[schema.CoreName]["product_name"])))
		}
	}
	for _, row := range rows {
		if err := a.purgeOne(ctx, row); err != nil {
			return 0, err
		}
	}
	if len(rows) > 0 {
		if err := a.runCascade(ctx, useCascade); err != nil {
			return len(rows), err
		}
	}
	return len(rows), nil
}

// purgeOne deletes a product's catalogue row, removes its stored
// bytes if any, and runs post_remove_hook. Link rows referencing this
// uuid are expected to cascade-delete with the catalogue row (the
// database backend's own foreign-key ON DELETE CASCADE), the
// invariant findWithoutSource relies on.
func (a *Archive) purgeOne(ctx context.Context, row dbbackend.Row) error {
	core := row[schema.CoreName]
	id := core["uuid"]

	productType, _ := core["product_type"].Text()
	plugin, _ := a.registry.ProductTypePlugin(productType)
	props := rowToContainer(row)

	where, err := uuidWhere(id)
	if err != nil {
		return err
	}
	if _, err := a.db.Delete(ctx, where); err != nil {
		return muninnerr.NewBackendError("archive.remove", err)
	}

	if archivePath, ok := core["archive_path"]; ok && archivePath.IsValid() {
		path, _ := archivePath.Text()
		physicalName, _ := core["physical_name"].Text()
		if err := a.store.Remove(ctx, path, physicalName); err != nil {
			return muninnerr.NewStorageError("archive.remove", err)
		}
	}

	return a.runPostRemoveHooks(ctx, plugin, props)
}
