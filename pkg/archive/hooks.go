package archive

import (
	"context"

	"github.com/stcorp/muninn/pkg/muninnerr"
	"github.com/stcorp/muninn/pkg/properties"
	"github.com/stcorp/muninn/pkg/registry"
)

// runPostIngestHooks runs post_ingest_hook on the owning plug-in, then
// on every hook extension, in registration order (§4.7).
func (a *Archive) runPostIngestHooks(ctx context.Context, plugin registry.ProductTypePlugin, props *properties.Container) error {
	if h, ok := plugin.(registry.PostIngestHooker); ok {
		if err := h.PostIngestHook(ctx, props); err != nil {
			return muninnerr.NewPluginError(plugin.ProductType(), "post_ingest_hook", err)
		}
	}
	for _, ext := range a.registry.HookExtensions() {
		if h, ok := ext.(registry.PostIngestHooker); ok {
			if err := h.PostIngestHook(ctx, props); err != nil {
				return muninnerr.NewPluginError(ext.Name(), "post_ingest_hook", err)
			}
		}
	}
	return nil
}

// runPostCreateHooks runs post_create_hook, the catalogue-only sibling
// of post_ingest_hook (ingest_product=false).
func (a *Archive) runPostCreateHooks(ctx context.Context, plugin registry.ProductTypePlugin, props *properties.Container) error {
	if h, ok := plugin.(registry.PostCreateHooker); ok {
		if err := h.PostCreateHook(ctx, props); err != nil {
			return muninnerr.NewPluginError(plugin.ProductType(), "post_create_hook", err)
		}
	}
	for _, ext := range a.registry.HookExtensions() {
		if h, ok := ext.(registry.PostCreateHooker); ok {
			if err := h.PostCreateHook(ctx, props); err != nil {
				return muninnerr.NewPluginError(ext.Name(), "post_create_hook", err)
			}
		}
	}
	return nil
}

// runPostPullHooks runs post_pull_hook after a two-phase pull commit.
func (a *Archive) runPostPullHooks(ctx context.Context, plugin registry.ProductTypePlugin, props *properties.Container) error {
	if h, ok := plugin.(registry.PostPullHooker); ok {
		if err := h.PostPullHook(ctx, props); err != nil {
			return muninnerr.NewPluginError(plugin.ProductType(), "post_pull_hook", err)
		}
	}
	for _, ext := range a.registry.HookExtensions() {
		if h, ok := ext.(registry.PostPullHooker); ok {
			if err := h.PostPullHook(ctx, props); err != nil {
				return muninnerr.NewPluginError(ext.Name(), "post_pull_hook", err)
			}
		}
	}
	return nil
}

// runPostRemoveHooks runs post_remove_hook in reverse order: extensions
// first (reverse configuration order), the owning plug-in last. A
// removal must be able to run even when the plug-in lookup itself
// failed (a product type dropped from configuration since ingest), so
// plugin may be nil.
func (a *Archive) runPostRemoveHooks(ctx context.Context, plugin registry.ProductTypePlugin, props *properties.Container) error {
	for _, ext := range a.registry.HookExtensionsReversed() {
		if h, ok := ext.(registry.PostRemoveHooker); ok {
			if err := h.PostRemoveHook(ctx, props); err != nil {
				return muninnerr.NewPluginError(ext.Name(), "post_remove_hook", err)
			}
		}
	}
	if plugin == nil {
		return nil
	}
	if h, ok := plugin.(registry.PostRemoveHooker); ok {
		if err := h.PostRemoveHook(ctx, props); err != nil {
			return muninnerr.NewPluginError(plugin.ProductType(), "post_remove_hook", err)
		}
	}
	return nil
}
