package archive

import (
	"context"

	"github.com/stcorp/muninn/pkg/muninnerr"
	"github.com/stcorp/muninn/pkg/values"
)

// Tag attaches a free-form label to a product.
func (a *Archive) Tag(ctx context.Context, id values.Value, tag string) error {
	if err := a.db.Tag(ctx, id, tag); err != nil {
		return muninnerr.NewBackendError("archive.tag", err)
	}
	return nil
}

// Untag removes a label from a product. Removing a label that was
// never attached is not an error.
func (a *Archive) Untag(ctx context.Context, id values.Value, tag string) error {
	if err := a.db.Untag(ctx, id, tag); err != nil {
		return muninnerr.NewBackendError("archive.untag", err)
	}
	return nil
}

// Tags lists every label attached to a product.
func (a *Archive) Tags(ctx context.Context, id values.Value) ([]string, error) {
	tags, err := a.db.ListTags(ctx, id)
	if err != nil {
		return nil, muninnerr.NewBackendError("archive.tags", err)
	}
	return tags, nil
}

// Link records that target derives from source. The cascade engine
// (C9) walks these edges to decide a derived product's fate when its
// sources are stripped or removed.
func (a *Archive) Link(ctx context.Context, source, target values.Value) error {
	if err := a.db.Link(ctx, source, target); err != nil {
		return muninnerr.NewBackendError("archive.link", err)
	}
	return nil
}

// Unlink removes a previously recorded source/target relationship.
func (a *Archive) Unlink(ctx context.Context, source, target values.Value) error {
	if err := a.db.Unlink(ctx, source, target); err != nil {
		return muninnerr.NewBackendError("archive.unlink", err)
	}
	return nil
}

// SourceProducts returns the uuids target was recorded as derived from.
func (a *Archive) SourceProducts(ctx context.Context, target values.Value) ([]values.Value, error) {
	sources, err := a.db.SourcesOf(ctx, target)
	if err != nil {
		return nil, muninnerr.NewBackendError("archive.source_products", err)
	}
	return sources, nil
}

// DerivedProducts returns the uuids recorded as derived from source.
func (a *Archive) DerivedProducts(ctx context.Context, source values.Value) ([]values.Value, error) {
	derived, err := a.db.DerivedOf(ctx, source)
	if err != nil {
		return nil, muninnerr.NewBackendError("archive.derived_products", err)
	}
	return derived, nil
}
