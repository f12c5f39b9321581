package schema

import (
	"fmt"
	"sync"

	"github.com/stcorp/muninn/pkg/muninnerr"
)

// Registry holds the set of namespaces known to an open archive: the
// fixed core namespace plus whatever extension namespaces the plug-in
// registry (C7) registered at open time.
type Registry struct {
	mu         sync.RWMutex
	namespaces map[string]*Namespace
}

// NewRegistry returns a registry pre-seeded with the core namespace.
func NewRegistry() *Registry {
	r := &Registry{namespaces: make(map[string]*Namespace)}
	r.namespaces[CoreName] = Core
	return r
}

// Register adds an extension namespace. Registering "core" or a name
// already in use is rejected.
func (r *Registry) Register(ns *Namespace) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ns.Name == CoreName {
		return muninnerr.NewSchemaError("schema.register", fmt.Errorf("namespace name %q is reserved", CoreName))
	}
	if _, exists := r.namespaces[ns.Name]; exists {
		return muninnerr.NewSchemaError("schema.register", fmt.Errorf("namespace %q already registered", ns.Name))
	}
	r.namespaces[ns.Name] = ns
	return nil
}

// Get looks up a namespace by name, including "core".
func (r *Registry) Get(name string) (*Namespace, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ns, ok := r.namespaces[name]
	if !ok {
		return nil, muninnerr.NewNotFoundError("namespace", name)
	}
	return ns, nil
}

// Has reports whether a namespace is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.namespaces[name]
	return ok
}

// Names returns every registered namespace name, core included, in no
// particular order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.namespaces))
	for n := range r.namespaces {
		names = append(names, n)
	}
	return names
}

// ResolveField resolves a possibly-unqualified field reference. A bare
// field name implies the core namespace (§4.4 "Property reference
// ns.field or field (implicit core)").
func (r *Registry) ResolveField(namespace, field string) (*Namespace, Field, error) {
	if namespace == "" {
		namespace = CoreName
	}
	ns, err := r.Get(namespace)
	if err != nil {
		return nil, Field{}, err
	}
	f, ok := ns.Field(field)
	if !ok {
		return nil, Field{}, muninnerr.NewSchemaError("schema.resolve_field",
			fmt.Errorf("namespace %q has no field %q", namespace, field))
	}
	return ns, f, nil
}
