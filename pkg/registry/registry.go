package registry

import (
	"sync"

	"github.com/stcorp/muninn/pkg/muninnerr"
	"github.com/stcorp/muninn/pkg/schema"
)

// Registry is the archive's plug-in directory, built once at open
// time from the archive's configured extension lists and held for the
// lifetime of the archive handle.
type Registry struct {
	mu sync.RWMutex

	productTypes     map[string]ProductTypePlugin
	productTypeOrder []string
	remoteBackends   []RemoteBackend
	hookExtensions   []HookExtension
	namespaceSchema  *schema.Registry
}

// New builds an empty registry backed by the given namespace registry
// (typically schema.NewRegistry(), pre-seeded with "core").
func New(namespaces *schema.Registry) *Registry {
	return &Registry{
		productTypes:    make(map[string]ProductTypePlugin),
		namespaceSchema: namespaces,
	}
}

// RegisterProductType adds a product-type plug-in. Re-registering the
// same product type replaces the previous plug-in, matching the
// adapter registry's last-write-wins policy.
func (r *Registry) RegisterProductType(p ProductTypePlugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := p.ProductType()
	if _, exists := r.productTypes[name]; !exists {
		r.productTypeOrder = append(r.productTypeOrder, name)
	}
	r.productTypes[name] = p
}

// ProductTypePlugin looks up a plug-in by exact product type name.
func (r *Registry) ProductTypePlugin(productType string) (ProductTypePlugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.productTypes[productType]
	if !ok {
		return nil, muninnerr.NewNotFoundError("product type plug-in", productType)
	}
	return p, nil
}

// IdentifyProductType returns the first registered plug-in (in
// registration order) whose Identify reports true for paths, the rule
// ingest uses to infer a product type when the caller doesn't supply
// one (§4.8).
func (r *Registry) IdentifyProductType(paths []string) (ProductTypePlugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range r.productTypeOrder {
		p := r.productTypes[name]
		if p.Identify(paths) {
			return p, nil
		}
	}
	return nil, muninnerr.NewNotFoundError("product type plug-in", "(no plug-in identified these paths)")
}

// ProductTypes returns every registered product-type plug-in in
// registration order, the set the cascade engine (C9) iterates over
// once per cycle.
func (r *Registry) ProductTypes() []ProductTypePlugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ProductTypePlugin, len(r.productTypeOrder))
	for i, name := range r.productTypeOrder {
		out[i] = r.productTypes[name]
	}
	return out
}

// RegisterNamespace registers an extension namespace's schema.
func (r *Registry) RegisterNamespace(ns *schema.Namespace) error {
	return r.namespaceSchema.Register(ns)
}

// Namespaces returns the registry's namespace schema table.
func (r *Registry) Namespaces() *schema.Registry {
	return r.namespaceSchema
}

// RegisterRemoteBackend appends a remote-transport backend; lookup by
// URL tries backends in registration order.
func (r *Registry) RegisterRemoteBackend(b RemoteBackend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remoteBackends = append(r.remoteBackends, b)
}

// RemoteBackendFor returns the first registered remote backend whose
// Identify reports true for url.
func (r *Registry) RemoteBackendFor(url string) (RemoteBackend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.remoteBackends {
		if b.Identify(url) {
			return b, nil
		}
	}
	return nil, muninnerr.NewNotFoundError("remote backend", url)
}

// RegisterHookExtension appends a hook extension, preserving the
// configuration order the forward-phase hooks iterate in.
func (r *Registry) RegisterHookExtension(h HookExtension) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hookExtensions = append(r.hookExtensions, h)
}

// HookExtensions returns every registered hook extension in
// configuration order (forward phases: post_ingest/post_pull/post_create).
func (r *Registry) HookExtensions() []HookExtension {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]HookExtension, len(r.hookExtensions))
	copy(out, r.hookExtensions)
	return out
}

// HookExtensionsReversed returns the registered hook extensions in
// reverse configuration order, the order post_remove_hook must run in
// (§4.7).
func (r *Registry) HookExtensionsReversed() []HookExtension {
	forward := r.HookExtensions()
	out := make([]HookExtension, len(forward))
	for i, h := range forward {
		out[len(forward)-1-i] = h
	}
	return out
}
