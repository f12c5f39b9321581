package sqlite

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stcorp/muninn/pkg/config"
	"github.com/stcorp/muninn/pkg/dbbackend"
	"github.com/stcorp/muninn/pkg/expr"
	"github.com/stcorp/muninn/pkg/logger"
	"github.com/stcorp/muninn/pkg/schema"
	"github.com/stcorp/muninn/pkg/values"
)

func openTestBackend(t *testing.T) (*Backend, *schema.Registry) {
	t.Helper()
	r := schema.NewRegistry()
	optical, err := schema.NewNamespace("optical", []schema.Field{
		{Name: "sensor", Kind: values.KindText},
	})
	require.NoError(t, err)
	require.NoError(t, r.Register(optical))

	b, err := Open(context.Background(), config.DatabaseBackendConfig{ConnectionString: ":memory:"}, logger.New("sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	require.NoError(t, b.Prepare(context.Background(), r))
	return b, r
}

func coreRow(productType, productName string, size int64) map[string]values.Value {
	start, _ := values.ParseTimestamp("2020-01-01T00:00:00")
	stop, _ := values.ParseTimestamp("2020-01-01T01:00:00")
	meta, _ := values.ParseTimestamp("2020-01-01T00:00:00")
	return map[string]values.Value{
		"uuid":           values.NewUUID(uuid.New()),
		"active":         values.NewBoolean(true),
		"size":           values.NewLong(size),
		"metadata_date":  values.NewTimestamp(meta),
		"product_type":   values.NewText(productType),
		"product_name":   values.NewText(productName),
		"physical_name":  values.NewText(productName + ".dat"),
		"validity_start": values.NewTimestamp(start),
		"validity_stop":  values.NewTimestamp(stop),
	}
}

func whereNode(t *testing.T, r *schema.Registry, text string) expr.Node {
	t.Helper()
	node, err := expr.Parse(text)
	require.NoError(t, err)
	a := expr.NewAnalyzer(r, nil, false)
	_, err = a.Analyze(node)
	require.NoError(t, err)
	return node
}

func TestInsertCoreAndSearch(t *testing.T) {
	b, r := openTestBackend(t)
	ctx := context.Background()

	row := coreRow("L1", "product-a", 100)
	uuidVal, err := b.InsertCore(ctx, row)
	require.NoError(t, err)
	assert.Equal(t, values.KindUUID, uuidVal.Kind)

	rows, err := b.Search(ctx, whereNode(t, r, `product_type == "L1"`), nil, 0, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	name, ok := rows[0]["core"]["product_name"].Text()
	require.True(t, ok)
	assert.Equal(t, "product-a", name)
}

func TestInsertNamespaceRoundtrip(t *testing.T) {
	b, r := openTestBackend(t)
	ctx := context.Background()

	row := coreRow("L1", "product-b", 200)
	uuidVal, err := b.InsertCore(ctx, row)
	require.NoError(t, err)

	require.NoError(t, b.InsertNamespace(ctx, "optical", uuidVal, map[string]values.Value{
		"sensor": values.NewText("MSI"),
	}))

	rows, err := b.Search(ctx, whereNode(t, r, `optical.sensor == "MSI"`), nil, 0, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	sensor, ok := rows[0]["optical"]["sensor"].Text()
	require.True(t, ok)
	assert.Equal(t, "MSI", sensor)
}

func TestUpdateAndDelete(t *testing.T) {
	b, r := openTestBackend(t)
	ctx := context.Background()

	row := coreRow("L1", "product-c", 300)
	_, err := b.InsertCore(ctx, row)
	require.NoError(t, err)

	n, err := b.Update(ctx, "core", map[string]values.Value{"size": values.NewLong(999)}, whereNode(t, r, `product_name == "product-c"`))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rows, err := b.Search(ctx, whereNode(t, r, `product_name == "product-c"`), nil, 0, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	size, ok := rows[0]["core"]["size"].Long()
	require.True(t, ok)
	assert.Equal(t, int64(999), size)

	count, err := b.Count(ctx, whereNode(t, r, `product_type == "L1"`))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	deleted, err := b.Delete(ctx, whereNode(t, r, `product_name == "product-c"`))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestTagAndLink(t *testing.T) {
	b, _ := openTestBackend(t)
	ctx := context.Background()

	a, err := b.InsertCore(ctx, coreRow("L1", "product-d", 1))
	require.NoError(t, err)
	c, err := b.InsertCore(ctx, coreRow("L1", "product-e", 2))
	require.NoError(t, err)

	require.NoError(t, b.Tag(ctx, a, "calibrated"))
	require.NoError(t, b.Tag(ctx, a, "calibrated")) // duplicate accepted silently
	tags, err := b.ListTags(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, []string{"calibrated"}, tags)

	require.NoError(t, b.Link(ctx, a, c))
	derived, err := b.DerivedOf(ctx, a)
	require.NoError(t, err)
	require.Len(t, derived, 1)

	sources, err := b.SourcesOf(ctx, c)
	require.NoError(t, err)
	require.Len(t, sources, 1)
}

func TestSummaryCountAndAggregates(t *testing.T) {
	b, r := openTestBackend(t)
	ctx := context.Background()

	_, err := b.InsertCore(ctx, coreRow("L1", "product-f", 100))
	require.NoError(t, err)
	_, err = b.InsertCore(ctx, coreRow("L1", "product-g", 300))
	require.NoError(t, err)
	_, err = b.InsertCore(ctx, coreRow("L2", "product-h", 50))
	require.NoError(t, err)

	rows, err := b.Summary(
		ctx,
		whereNode(t, r, `active == true`),
		[]dbbackend.Aggregate{{Func: dbbackend.AggregateSum, Field: "core.size", Alias: "total_size"}},
		[]dbbackend.GroupByTerm{{Field: "core.product_type"}},
		false,
		nil,
		[]dbbackend.OrderTerm{{Key: "core.product_type"}},
	)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byType := map[string]dbbackend.SummaryRow{}
	for _, row := range rows {
		productType, ok := row.Group["core.product_type"].Text()
		require.True(t, ok)
		byType[productType] = row
	}

	l1Count, ok := byType["L1"].Aggregates["count"].Long()
	require.True(t, ok)
	assert.Equal(t, int64(2), l1Count)

	l1Total, ok := byType["L1"].Aggregates["total_size"].Long()
	require.True(t, ok)
	assert.Equal(t, int64(400), l1Total)

	l2Count, ok := byType["L2"].Aggregates["count"].Long()
	require.True(t, ok)
	assert.Equal(t, int64(1), l2Count)
}

func TestSummaryGroupByTag(t *testing.T) {
	b, r := openTestBackend(t)
	ctx := context.Background()

	a, err := b.InsertCore(ctx, coreRow("L1", "product-i", 10))
	require.NoError(t, err)
	require.NoError(t, b.Tag(ctx, a, "red"))
	require.NoError(t, b.Tag(ctx, a, "blue"))

	rows, err := b.Summary(ctx, whereNode(t, r, `active == true`), nil, nil, true, nil, nil)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
