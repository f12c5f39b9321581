package archive

import (
	"context"

	"github.com/stcorp/muninn/pkg/muninnerr"
	"github.com/stcorp/muninn/pkg/properties"
	"github.com/stcorp/muninn/pkg/schema"
	"github.com/stcorp/muninn/pkg/values"
)

// UpdateProperties merges update into a product's stored properties
// (§4.3's merge semantics: a namespace set to properties.Removed is
// dropped, otherwise fields are overlaid) and persists the changed
// fields. metadata_date is always bumped, whether or not the caller's
// diff touched it, matching the original's unconditional
// _update_metadata_date call on every update. Extension namespaces
// have no separate-row-deletion primitive in the database backend
// contract, so "removing" one clears every field it currently holds
// to NULL rather than dropping its row.
func (a *Archive) UpdateProperties(ctx context.Context, id values.Value, update *properties.Container) error {
	row, err := a.findByUUID(ctx, id)
	if err != nil {
		return err
	}
	current := rowToContainer(row)
	merged := current.Merge(update)
	merged.Set(schema.CoreName, "metadata_date", values.NewTimestamp(now()))

	where, err := uuidWhere(id)
	if err != nil {
		return err
	}

	diff := current.Diff(merged)
	for _, ns := range diff.Namespaces() {
		fields := diff.Namespace(ns)
		if fields == nil {
			fields = clearedFields(current.Namespace(ns))
		}
		if len(fields) == 0 {
			continue
		}
		if _, err := a.db.Update(ctx, ns, fields, where); err != nil {
			return muninnerr.NewBackendError("archive.update_properties", err)
		}
	}
	return nil
}

func clearedFields(existing map[string]values.Value) map[string]values.Value {
	cleared := make(map[string]values.Value, len(existing))
	for field := range existing {
		cleared[field] = values.Value{}
	}
	return cleared
}
