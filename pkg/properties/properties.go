// Package properties implements the nested namespaced property
// container (C3): a product's in-memory representation as a mapping
// from namespace name to a per-namespace mapping from field name to
// typed value, with merge, diff and projection operations.
package properties

import (
	"reflect"
	"strings"

	"github.com/stcorp/muninn/pkg/values"
)

// Removed is the null sentinel written to a namespace to mark it for
// removal during a merge (§4.3 "A whole namespace is removed by
// setting its mapping to the null sentinel").
var Removed = map[string]values.Value(nil)

// Container is a product's properties, keyed first by namespace name
// then by field name.
type Container struct {
	namespaces map[string]map[string]values.Value
}

// New returns an empty container.
func New() *Container {
	return &Container{namespaces: make(map[string]map[string]values.Value)}
}

// IsDefined reports whether the namespace has a row at all, which is
// distinct from the row existing but a particular field being absent.
func (c *Container) IsDefined(namespace string) bool {
	_, ok := c.namespaces[namespace]
	return ok
}

// Namespace returns the field map for a namespace, or nil if undefined.
// The returned map must not be mutated by the caller; use Set/Merge.
func (c *Container) Namespace(namespace string) map[string]values.Value {
	return c.namespaces[namespace]
}

// Namespaces returns the set of namespace names currently defined.
func (c *Container) Namespaces() []string {
	names := make([]string, 0, len(c.namespaces))
	for n := range c.namespaces {
		names = append(names, n)
	}
	return names
}

// Get returns a single field's value. The second result is false if
// the namespace or the field within it is undefined.
func (c *Container) Get(namespace, field string) (values.Value, bool) {
	ns, ok := c.namespaces[namespace]
	if !ok {
		return values.Value{}, false
	}
	v, ok := ns[field]
	return v, ok
}

// Set assigns a single field, creating the namespace row if needed.
func (c *Container) Set(namespace, field string, v values.Value) {
	ns, ok := c.namespaces[namespace]
	if !ok {
		ns = make(map[string]values.Value)
		c.namespaces[namespace] = ns
	}
	ns[field] = v
}

// SetNamespace replaces an entire namespace's fields in one step.
func (c *Container) SetNamespace(namespace string, fields map[string]values.Value) {
	c.namespaces[namespace] = fields
}

// RemoveNamespace deletes a namespace row entirely (the null sentinel
// behavior described in §4.3).
func (c *Container) RemoveNamespace(namespace string) {
	delete(c.namespaces, namespace)
}

// Clone returns a deep copy safe for independent mutation.
func (c *Container) Clone() *Container {
	out := New()
	for ns, fields := range c.namespaces {
		cp := make(map[string]values.Value, len(fields))
		for k, v := range fields {
			cp[k] = v
		}
		out.namespaces[ns] = cp
	}
	return out
}

// Merge deep-merges update into a clone of c and returns the result:
// fields present in update overwrite those in c within the same
// namespace; a namespace set to the null sentinel (a nil map) in
// update is removed instead of merged field-by-field.
func (c *Container) Merge(update *Container) *Container {
	out := c.Clone()
	for ns, fields := range update.namespaces {
		if fields == nil {
			out.RemoveNamespace(ns)
			continue
		}
		existing, ok := out.namespaces[ns]
		if !ok {
			existing = make(map[string]values.Value, len(fields))
			out.namespaces[ns] = existing
		}
		for field, v := range fields {
			existing[field] = v
		}
	}
	return out
}

// Diff computes the namespaces and fields that differ between c (the
// base) and other (the candidate), in the shape a caller can pass
// straight back into Merge to reproduce the change. A namespace
// present in c but absent from other is reported as removed (nil map).
func (c *Container) Diff(other *Container) *Container {
	out := New()
	for ns, fields := range other.namespaces {
		base := c.namespaces[ns]
		changed := make(map[string]values.Value)
		for field, v := range fields {
			if bv, ok := base[field]; !ok || !reflect.DeepEqual(bv, v) {
				changed[field] = v
			}
		}
		if len(changed) > 0 {
			out.namespaces[ns] = changed
		}
	}
	for ns := range c.namespaces {
		if _, ok := other.namespaces[ns]; !ok {
			out.namespaces[ns] = nil
		}
	}
	return out
}

// ProjectNamespaces returns a clone containing only the listed
// namespaces.
func (c *Container) ProjectNamespaces(namespaces []string) *Container {
	out := New()
	want := make(map[string]bool, len(namespaces))
	for _, n := range namespaces {
		want[n] = true
	}
	for ns, fields := range c.namespaces {
		if !want[ns] {
			continue
		}
		cp := make(map[string]values.Value, len(fields))
		for k, v := range fields {
			cp[k] = v
		}
		out.namespaces[ns] = cp
	}
	return out
}

// ProjectFields returns a clone containing only the listed dotted
// field references ("ns.field"; a bare name implies "core").
func (c *Container) ProjectFields(fieldRefs []string) *Container {
	out := New()
	for _, ref := range fieldRefs {
		ns, field := splitFieldRef(ref)
		v, ok := c.Get(ns, field)
		if !ok {
			continue
		}
		out.Set(ns, field, v)
	}
	return out
}

func splitFieldRef(ref string) (namespace, field string) {
	if i := strings.IndexByte(ref, '.'); i >= 0 {
		return ref[:i], ref[i+1:]
	}
	return "core", ref
}
