// Package schema implements the typed, extensible namespace model (C2):
// the fixed core namespace, run-time registration of extension
// namespaces, and the validation rules that gate registration.
package schema

import (
	"fmt"
	"regexp"

	"github.com/stcorp/muninn/pkg/muninnerr"
	"github.com/stcorp/muninn/pkg/values"
)

// Field describes one column of a namespace: its name, type, whether
// it may be absent, and whether the backend should index it.
type Field struct {
	Name     string
	Kind     values.Kind
	Optional bool
	Indexed  bool
}

// Namespace is a named, ordered field set. Field order is preserved
// because it drives column order in generated DDL and the default
// projection order of query results.
type Namespace struct {
	Name   string
	fields []Field
	index  map[string]int
}

// NewNamespace builds a namespace from an ordered field list. A
// namespace other than "core" implicitly carries a uuid primary key
// field; extensions must not redeclare it (§4.2).
func NewNamespace(name string, fields []Field) (*Namespace, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	ns := &Namespace{Name: name, index: make(map[string]int, len(fields))}
	if name != CoreName {
		ns.fields = append(ns.fields, Field{Name: "uuid", Kind: values.KindUUID, Optional: false, Indexed: false})
		ns.index["uuid"] = 0
	}
	for _, f := range fields {
		if f.Name == "uuid" && name != CoreName {
			return nil, muninnerr.NewSchemaError("namespace.define",
				fmt.Errorf("namespace %q must not redeclare the implicit uuid field", name))
		}
		if _, exists := ns.index[f.Name]; exists {
			return nil, muninnerr.NewSchemaError("namespace.define",
				fmt.Errorf("namespace %q: duplicate field %q", name, f.Name))
		}
		ns.index[f.Name] = len(ns.fields)
		ns.fields = append(ns.fields, f)
	}
	return ns, nil
}

// Fields returns the namespace's fields in declaration order. The
// returned slice must not be mutated.
func (ns *Namespace) Fields() []Field { return ns.fields }

// Field looks up a field by name.
func (ns *Namespace) Field(name string) (Field, bool) {
	i, ok := ns.index[name]
	if !ok {
		return Field{}, false
	}
	return ns.fields[i], true
}

// HasField reports whether the namespace declares the given field.
func (ns *Namespace) HasField(name string) bool {
	_, ok := ns.index[name]
	return ok
}

var nameRE = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ValidateName enforces the "lowercase identifier starting with a
// letter" rule (§4.2).
func ValidateName(name string) error {
	if !nameRE.MatchString(name) {
		return muninnerr.NewSchemaError("namespace.validate_name",
			fmt.Errorf("invalid namespace name %q: must match [a-z][a-z0-9_]*", name))
	}
	return nil
}

// CoreName is the reserved name of the built-in product namespace.
const CoreName = "core"

// Core is the fixed, compile-time core namespace (§4.2). It is built
// once and shared; callers must treat it as read-only.
var Core = mustBuildCore()

func mustBuildCore() *Namespace {
	ns, err := NewNamespace(CoreName, []Field{
		{Name: "uuid", Kind: values.KindUUID, Optional: false, Indexed: false},
		{Name: "active", Kind: values.KindBoolean, Optional: false, Indexed: true},
		{Name: "hash", Kind: values.KindText, Optional: true, Indexed: true},
		{Name: "size", Kind: values.KindLong, Optional: true, Indexed: true},
		{Name: "metadata_date", Kind: values.KindTimestamp, Optional: false, Indexed: true},
		{Name: "archive_date", Kind: values.KindTimestamp, Optional: true, Indexed: true},
		{Name: "archive_path", Kind: values.KindText, Optional: true, Indexed: false},
		{Name: "product_type", Kind: values.KindText, Optional: false, Indexed: true},
		{Name: "product_name", Kind: values.KindText, Optional: false, Indexed: true},
		{Name: "physical_name", Kind: values.KindText, Optional: false, Indexed: true},
		{Name: "validity_start", Kind: values.KindTimestamp, Optional: true, Indexed: true},
		{Name: "validity_stop", Kind: values.KindTimestamp, Optional: true, Indexed: true},
		{Name: "creation_date", Kind: values.KindTimestamp, Optional: true, Indexed: true},
		{Name: "footprint", Kind: values.KindGeometry, Optional: true, Indexed: false},
		{Name: "remote_url", Kind: values.KindText, Optional: true, Indexed: false},
	})
	if err != nil {
		panic(err)
	}
	return ns
}
