package cascade

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stcorp/muninn/pkg/dbbackend"
	"github.com/stcorp/muninn/pkg/expr"
	"github.com/stcorp/muninn/pkg/properties"
	"github.com/stcorp/muninn/pkg/registry"
	"github.com/stcorp/muninn/pkg/schema"
	"github.com/stcorp/muninn/pkg/values"
)

// fakeBackend is a minimal in-memory dbbackend.Backend exercising only
// the subset cascade.Engine actually calls (Search, SourcesOf); every
// other method panics if hit, catching any accidental new dependency.
type fakeBackend struct {
	rows    map[string]dbbackend.Row // keyed by uuid string
	sources map[string][]string      // uuid -> source uuids
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{rows: map[string]dbbackend.Row{}, sources: map[string][]string{}}
}

func (f *fakeBackend) addProduct(productType string, active bool, archived bool, archiveDate time.Time, sources ...string) string {
	id := uuid.New()
	core := map[string]values.Value{
		"uuid":         values.NewUUID(id),
		"product_type": values.NewText(productType),
		"active":       values.NewBoolean(active),
	}
	if archived {
		core["archive_path"] = values.NewText("abc/2024")
		core["archive_date"] = values.NewTimestamp(values.Timestamp(archiveDate.UnixMicro()))
	}
	f.rows[id.String()] = dbbackend.Row{schema.CoreName: core}
	f.sources[id.String()] = sources
	return id.String()
}

func (f *fakeBackend) SourcesOf(ctx context.Context, id values.Value) ([]values.Value, error) {
	u, _ := id.UUIDValue()
	var out []values.Value
	for _, s := range f.sources[u.String()] {
		su, _ := uuid.Parse(s)
		out = append(out, values.NewUUID(su))
	}
	return out, nil
}

func (f *fakeBackend) DerivedOf(ctx context.Context, id values.Value) ([]values.Value, error) {
	panic("not used by cascade")
}

func (f *fakeBackend) Search(ctx context.Context, where expr.Node, orderBy []dbbackend.OrderTerm, limit int, projection []string) ([]dbbackend.Row, error) {
	var out []dbbackend.Row
	for _, row := range f.rows {
		if matches(row[schema.CoreName], where) {
			out = append(out, row)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// matches evaluates the narrow subset of expr ASTs cascade.go
// produces: "field == literal" comparisons joined by "and".
func matches(core map[string]values.Value, node expr.Node) bool {
	call, ok := node.(*expr.FunctionCall)
	if !ok {
		panic(fmt.Sprintf("fakeBackend: unsupported node %v", node))
	}
	switch call.Name {
	case "and":
		return matches(core, call.Arguments[0]) && matches(core, call.Arguments[1])
	case "==":
		name := call.Arguments[0].(*expr.Name).Value
		lit := call.Arguments[1].(*expr.Literal).Value
		got, ok := core[name]
		if !ok {
			return false
		}
		switch lit.Kind {
		case values.KindText:
			a, _ := got.Text()
			b, _ := lit.Text()
			return a == b
		case values.KindBoolean:
			a, _ := got.Boolean()
			b, _ := lit.Boolean()
			return a == b
		case values.KindUUID:
			a, _ := got.UUIDValue()
			b, _ := lit.UUIDValue()
			return a == b
		default:
			panic("fakeBackend: unsupported literal kind in test fixture")
		}
	default:
		panic(fmt.Sprintf("fakeBackend: unsupported operator %q", call.Name))
	}
}

func (f *fakeBackend) Prepare(ctx context.Context, schemas *schema.Registry) error { panic("not used") }
func (f *fakeBackend) Destroy(ctx context.Context) error                          { panic("not used") }
func (f *fakeBackend) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	panic("not used")
}
func (f *fakeBackend) InsertCore(ctx context.Context, row map[string]values.Value) (values.Value, error) {
	panic("not used")
}
func (f *fakeBackend) InsertNamespace(ctx context.Context, namespace string, uuid values.Value, row map[string]values.Value) error {
	panic("not used")
}
func (f *fakeBackend) Update(ctx context.Context, namespace string, fields map[string]values.Value, where expr.Node) (int64, error) {
	panic("not used")
}
func (f *fakeBackend) Delete(ctx context.Context, where expr.Node) (int64, error) {
	panic("not used")
}
func (f *fakeBackend) Count(ctx context.Context, where expr.Node) (int64, error) { panic("not used") }
func (f *fakeBackend) Summary(ctx context.Context, where expr.Node, aggregates []dbbackend.Aggregate, groupBy []dbbackend.GroupByTerm, groupByTag bool, having expr.Node, orderBy []dbbackend.OrderTerm) ([]dbbackend.SummaryRow, error) {
	panic("not used")
}
func (f *fakeBackend) Link(ctx context.Context, source, target values.Value) error { panic("not used") }
func (f *fakeBackend) Unlink(ctx context.Context, source, target values.Value) error {
	panic("not used")
}
func (f *fakeBackend) Tag(ctx context.Context, id values.Value, tag string) error   { panic("not used") }
func (f *fakeBackend) Untag(ctx context.Context, id values.Value, tag string) error { panic("not used") }
func (f *fakeBackend) ListTags(ctx context.Context, id values.Value) ([]string, error) {
	panic("not used")
}

var _ dbbackend.Backend = (*fakeBackend)(nil)

// fakePlugin implements just enough of registry.ProductTypePlugin for
// the cascade engine to enumerate a product type's rule.
type fakePlugin struct {
	productType string
	rule        registry.CascadeRule
}

func (p *fakePlugin) ProductType() string                { return p.productType }
func (p *fakePlugin) UseEnclosingDirectory() bool         { return false }
func (p *fakePlugin) HashType() string                    { return "md5" }
func (p *fakePlugin) CascadeRule() registry.CascadeRule   { return p.rule }
func (p *fakePlugin) Namespaces() []string                { return nil }
func (p *fakePlugin) Identify(paths []string) bool        { return false }
func (p *fakePlugin) Analyze(ctx context.Context, paths []string) (*properties.Container, []string, error) {
	return nil, nil, nil
}
func (p *fakePlugin) ArchivePath(props *properties.Container) (string, error) { return "", nil }

var _ registry.ProductTypePlugin = (*fakePlugin)(nil)

func newEngine(t *testing.T, db *fakeBackend, rule registry.CascadeRule, maxCycles int, grace time.Duration) *Engine {
	t.Helper()
	reg := registry.New(schema.NewRegistry())
	reg.RegisterProductType(&fakePlugin{productType: "DERIVED", rule: rule})
	return New(db, reg, maxCycles, grace, nil)
}

func TestPurgeRuleRemovesProductWithoutSources(t *testing.T) {
	db := newFakeBackend()
	derived := db.addProduct("DERIVED", true, true, time.Now().Add(-time.Hour))

	var removed []string
	engine := newEngine(t, db, registry.CascadePurge, 25, 0)
	err := engine.Run(context.Background(), Actions{
		Strip:  func(ctx context.Context, id values.Value) error { t.Fatal("strip should not run"); return nil },
		Remove: func(ctx context.Context, id values.Value) error {
			u, _ := id.UUIDValue()
			removed = append(removed, u.String())
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{derived}, removed)
}

func TestStripRuleStripsProductWithStrippedSource(t *testing.T) {
	db := newFakeBackend()
	source := db.addProduct("SOURCE", true, false, time.Time{})
	derived := db.addProduct("DERIVED", true, true, time.Now().Add(-time.Hour), source)

	var stripped []string
	engine := newEngine(t, db, registry.CascadeStrip, 25, 0)
	err := engine.Run(context.Background(), Actions{
		Strip: func(ctx context.Context, id values.Value) error {
			u, _ := id.UUIDValue()
			stripped = append(stripped, u.String())
			return nil
		},
		Remove: func(ctx context.Context, id values.Value) error { t.Fatal("remove should not run"); return nil },
	})
	require.NoError(t, err)
	assert.Equal(t, []string{derived}, stripped)
}

func TestGracePeriodDefersCandidate(t *testing.T) {
	db := newFakeBackend()
	db.addProduct("DERIVED", true, true, time.Now())

	var calls int
	engine := newEngine(t, db, registry.CascadePurge, 25, time.Hour)
	err := engine.Run(context.Background(), Actions{
		Strip:  func(ctx context.Context, id values.Value) error { return nil },
		Remove: func(ctx context.Context, id values.Value) error { calls++; return nil },
	})
	require.NoError(t, err)
	assert.Zero(t, calls)
}

func TestIgnoreRuleNeverTriggers(t *testing.T) {
	db := newFakeBackend()
	db.addProduct("DERIVED", true, true, time.Now().Add(-time.Hour))

	var calls int
	engine := newEngine(t, db, registry.CascadeIgnore, 25, 0)
	err := engine.Run(context.Background(), Actions{
		Strip:  func(ctx context.Context, id values.Value) error { calls++; return nil },
		Remove: func(ctx context.Context, id values.Value) error { calls++; return nil },
	})
	require.NoError(t, err)
	assert.Zero(t, calls)
}

func TestMixedSourcesNeitherAllRemovedNorAllStrippedLeavesProductAlone(t *testing.T) {
	db := newFakeBackend()
	stillArchived := db.addProduct("SOURCE", true, true, time.Now().Add(-time.Hour))
	stripped := db.addProduct("SOURCE", true, false, time.Time{})
	db.addProduct("DERIVED", true, true, time.Now().Add(-time.Hour), stillArchived, stripped)

	var calls int
	engine := newEngine(t, db, registry.CascadeCascade, 25, 0)
	err := engine.Run(context.Background(), Actions{
		Strip:  func(ctx context.Context, id values.Value) error { calls++; return nil },
		Remove: func(ctx context.Context, id values.Value) error { calls++; return nil },
	})
	require.NoError(t, err)
	assert.Zero(t, calls)
}
