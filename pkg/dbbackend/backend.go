// Package dbbackend defines the database backend contract (C5): the
// interface the orchestrator drives every catalogue mutation and query
// through, plus the row/aggregate/order shapes shared by every
// implementation. Concrete backends live in the postgres and sqlite
// sub-packages.
package dbbackend

import (
	"context"

	"github.com/stcorp/muninn/pkg/expr"
	"github.com/stcorp/muninn/pkg/schema"
	"github.com/stcorp/muninn/pkg/values"
)

// Row is one catalogue record: namespace name to field-name/value map,
// always including "core".
type Row map[string]map[string]values.Value

// OrderTerm is one `order_by` entry; Descending reflects a leading
// "-" in the source expression (default ascending, a leading "+" is
// accepted and equivalent to omitting the prefix).
type OrderTerm struct {
	Key        string
	Descending bool
}

// AggregateFunc enumerates the summary() aggregate functions.
type AggregateFunc string

const (
	AggregateMin AggregateFunc = "min"
	AggregateMax AggregateFunc = "max"
	AggregateSum AggregateFunc = "sum"
	AggregateAvg AggregateFunc = "avg"
)

// Aggregate is one requested summary() column: a function applied to
// a dotted field reference, or to the synthetic "validity_duration"
// identifier.
type Aggregate struct {
	Func  AggregateFunc
	Field string
	Alias string
}

// GroupByTerm is one summary() grouping key; Subscript is set for
// timestamp fields binned by .year/.month/.yearmonth/.date/.day/.hour/
// .minute/.second/.time.
type GroupByTerm struct {
	Field     string
	Subscript string
}

// SummaryRow is one row of a summary() result: the group-by key
// values plus the computed aggregate values, both keyed by the
// caller's requested alias.
type SummaryRow struct {
	Group      map[string]values.Value
	Aggregates map[string]values.Value
}

// Backend is the contract the orchestrator drives every catalogue
// operation through. Implementations translate the typed expr AST
// into their native query form (§4.4 Lowering) and enforce the
// uniqueness/ordering guarantees of §5.
type Backend interface {
	// Prepare emits DDL for the registered namespaces (idempotent:
	// safe to call against an already-prepared catalogue holding the
	// same or a superset schema).
	Prepare(ctx context.Context, schemas *schema.Registry) error

	// Destroy drops every catalogue table this backend manages.
	Destroy(ctx context.Context) error

	// WithTransaction runs fn inside a single transaction, committing
	// on a nil return and rolling back otherwise. Nested calls reuse
	// the outer transaction rather than opening a new one.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// InsertCore inserts a new core row and returns its assigned uuid
	// field (already present in row, echoed back for convenience).
	InsertCore(ctx context.Context, row map[string]values.Value) (values.Value, error)

	// InsertNamespace inserts one namespace row keyed by core uuid. It
	// is a plain insert: an existing row for that uuid is not updated.
	InsertNamespace(ctx context.Context, namespace string, uuid values.Value, row map[string]values.Value) error

	// Update applies field-level updates within one namespace to every
	// product matching where; where may reference any namespace (a nil
	// where is rejected by lowering, so callers scope by uuid).
	Update(ctx context.Context, namespace string, fields map[string]values.Value, where expr.Node) (int64, error)

	// Delete removes core rows (and, via ON DELETE CASCADE-equivalent
	// handling, their namespace rows, links and tags) matching where.
	Delete(ctx context.Context, where expr.Node) (int64, error)

	// Search evaluates where against the catalogue and returns
	// matching rows projected to the requested namespaces/fields
	// (nil projection returns every namespace the row has).
	Search(ctx context.Context, where expr.Node, orderBy []OrderTerm, limit int, projection []string) ([]Row, error)

	// Count evaluates where and returns the number of matching rows
	// without materializing them.
	Count(ctx context.Context, where expr.Node) (int64, error)

	// Summary evaluates where, groups and aggregates the matching
	// rows per the requested aggregates/group_by/group_by_tag/having,
	// and returns one SummaryRow per group (or per group-tag pair).
	Summary(ctx context.Context, where expr.Node, aggregates []Aggregate, groupBy []GroupByTerm, groupByTag bool, having expr.Node, orderBy []OrderTerm) ([]SummaryRow, error)

	// Link records a derivation edge (source produced target);
	// duplicate links are accepted silently, self-links are rejected.
	Link(ctx context.Context, source, target values.Value) error
	Unlink(ctx context.Context, source, target values.Value) error

	// Tag attaches an arbitrary non-empty text tag to a product;
	// duplicate tags are accepted silently.
	Tag(ctx context.Context, uuid values.Value, tag string) error
	Untag(ctx context.Context, uuid values.Value, tag string) error
	ListTags(ctx context.Context, uuid values.Value) ([]string, error)

	// DerivedOf returns the uuids of products linked as derived from
	// uuid (the cascade engine's forward edge).
	DerivedOf(ctx context.Context, uuid values.Value) ([]values.Value, error)

	// SourcesOf returns the uuids of products uuid is derived from.
	SourcesOf(ctx context.Context, uuid values.Value) ([]values.Value, error)
}
