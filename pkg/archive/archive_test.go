package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stcorp/muninn/pkg/config"
	"github.com/stcorp/muninn/pkg/dbbackend/sqlite"
	"github.com/stcorp/muninn/pkg/logger"
	"github.com/stcorp/muninn/pkg/properties"
	"github.com/stcorp/muninn/pkg/registry"
	"github.com/stcorp/muninn/pkg/schema"
	"github.com/stcorp/muninn/pkg/storage/fs"
	"github.com/stcorp/muninn/pkg/values"
)

// rasterPlugin is a minimal single-part product type used to exercise
// the orchestrator without any I/O beyond a plain file on disk.
type rasterPlugin struct {
	rule registry.CascadeRule
}

func (p *rasterPlugin) ProductType() string              { return "RASTER" }
func (p *rasterPlugin) UseEnclosingDirectory() bool       { return false }
func (p *rasterPlugin) HashType() string                  { return "md5" }
func (p *rasterPlugin) CascadeRule() registry.CascadeRule { return p.rule }
func (p *rasterPlugin) Namespaces() []string              { return nil }

func (p *rasterPlugin) Identify(paths []string) bool {
	return len(paths) == 1 && filepath.Ext(paths[0]) == ".raster"
}

func (p *rasterPlugin) Analyze(ctx context.Context, paths []string) (*properties.Container, []string, error) {
	props := properties.New()
	props.Set(schema.CoreName, "product_name", values.NewText(filepath.Base(paths[0])))
	return props, nil, nil
}

func (p *rasterPlugin) ArchivePath(props *properties.Container) (string, error) {
	name, _ := props.Get(schema.CoreName, "product_name")
	return "raster/" + textOf(name), nil
}

var _ registry.ProductTypePlugin = (*rasterPlugin)(nil)

func newTestArchive(t *testing.T, rule registry.CascadeRule) (*Archive, string) {
	t.Helper()

	db, err := sqlite.Open(context.Background(), config.DatabaseBackendConfig{ConnectionString: ":memory:"}, logger.New("sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	root := t.TempDir()
	store, err := fs.Open(config.FSConfig{Root: root}, logger.New("fs"))
	require.NoError(t, err)

	reg := registry.New(schema.NewRegistry())
	reg.RegisterProductType(&rasterPlugin{rule: rule})

	a := Open(db, store, reg, config.ArchiveConfig{}, logger.New("archive"))
	require.NoError(t, a.Prepare(context.Background()))
	return a, root
}

func writeSourceFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestIngestStoresBytesAndActivatesProduct(t *testing.T) {
	a, _ := newTestArchive(t, registry.CascadeIgnore)
	ctx := context.Background()

	src := writeSourceFile(t, t.TempDir(), "scene1.raster", "hello world")

	props, err := a.Ingest(ctx, IngestOptions{Paths: []string{src}})
	require.NoError(t, err)

	active, _ := props.Get(schema.CoreName, "active")
	b, _ := active.Boolean()
	assert.True(t, b)

	archivePath, _ := props.Get(schema.CoreName, "archive_path")
	p, _ := archivePath.Text()
	assert.Equal(t, "raster/scene1.raster", p)

	hash, _ := props.Get(schema.CoreName, "hash")
	h, _ := hash.Text()
	assert.Contains(t, h, "md5:")

	id, _ := props.Get(schema.CoreName, "uuid")
	n, err := a.Count(ctx, "active == true")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	retrieved, err := a.RetrieveByUUID(ctx, id, t.TempDir(), false)
	require.NoError(t, err)
	require.Len(t, retrieved, 1)
	data, err := os.ReadFile(retrieved[0])
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestIngestDuplicateWithoutForceConflicts(t *testing.T) {
	a, _ := newTestArchive(t, registry.CascadeIgnore)
	ctx := context.Background()
	dir := t.TempDir()

	src1 := writeSourceFile(t, dir, "scene2.raster", "one")
	_, err := a.Ingest(ctx, IngestOptions{Paths: []string{src1}})
	require.NoError(t, err)

	dir2 := t.TempDir()
	src2 := writeSourceFile(t, dir2, "scene2.raster", "two")
	_, err = a.Ingest(ctx, IngestOptions{Paths: []string{src2}})
	assert.Error(t, err)

	_, err = a.Ingest(ctx, IngestOptions{Paths: []string{src2}, Force: true})
	assert.NoError(t, err)
}

func TestStripThenAttachRestoresBytes(t *testing.T) {
	a, _ := newTestArchive(t, registry.CascadeIgnore)
	ctx := context.Background()
	dir := t.TempDir()

	src := writeSourceFile(t, dir, "scene3.raster", "payload")
	props, err := a.Ingest(ctx, IngestOptions{Paths: []string{src}})
	require.NoError(t, err)
	id, _ := props.Get(schema.CoreName, "uuid")

	require.NoError(t, a.StripByUUID(ctx, id, false, false))

	row, err := a.findByUUID(ctx, id)
	require.NoError(t, err)
	assert.False(t, row[schema.CoreName]["archive_path"].IsValid())
	active, _ := row[schema.CoreName]["active"].Boolean()
	assert.True(t, active)

	attached, err := a.Attach(ctx, AttachOptions{Paths: []string{src}})
	require.NoError(t, err)
	archivePath, _ := attached.Get(schema.CoreName, "archive_path")
	p, _ := archivePath.Text()
	assert.Equal(t, "raster/scene3.raster", p)
}

func TestRemoveDeletesCatalogueRowAndBytes(t *testing.T) {
	a, _ := newTestArchive(t, registry.CascadeIgnore)
	ctx := context.Background()
	dir := t.TempDir()

	src := writeSourceFile(t, dir, "scene4.raster", "bytes")
	props, err := a.Ingest(ctx, IngestOptions{Paths: []string{src}})
	require.NoError(t, err)
	id, _ := props.Get(schema.CoreName, "uuid")

	require.NoError(t, a.RemoveByUUID(ctx, id, false, false))

	_, err = a.findByUUID(ctx, id)
	assert.Error(t, err)
}

func TestCatalogueOnlyIngestSkipsStorage(t *testing.T) {
	a, _ := newTestArchive(t, registry.CascadeIgnore)
	ctx := context.Background()
	dir := t.TempDir()

	src := writeSourceFile(t, dir, "scene5.raster", "meta-only")
	props, err := a.Ingest(ctx, IngestOptions{Paths: []string{src}, CatalogueOnly: true})
	require.NoError(t, err)

	_, ok := props.Get(schema.CoreName, "archive_path")
	assert.False(t, ok)
	active, _ := props.Get(schema.CoreName, "active")
	b, _ := active.Boolean()
	assert.True(t, b)
}

func TestTagAndUntag(t *testing.T) {
	a, _ := newTestArchive(t, registry.CascadeIgnore)
	ctx := context.Background()
	dir := t.TempDir()

	src := writeSourceFile(t, dir, "scene6.raster", "data")
	props, err := a.Ingest(ctx, IngestOptions{Paths: []string{src}, Tags: []string{"calibrated"}})
	require.NoError(t, err)
	id, _ := props.Get(schema.CoreName, "uuid")

	tags, err := a.Tags(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, tags, "calibrated")

	require.NoError(t, a.Tag(ctx, id, "reviewed"))
	tags, err = a.Tags(ctx, id)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"calibrated", "reviewed"}, tags)

	require.NoError(t, a.Untag(ctx, id, "calibrated"))
	tags, err = a.Tags(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"reviewed"}, tags)
}

func TestCascadePurgesDerivedProductWhenSourceRemoved(t *testing.T) {
	a, _ := newTestArchive(t, registry.CascadePurge)
	ctx := context.Background()
	dir := t.TempDir()

	srcA := writeSourceFile(t, dir, "source.raster", "a")
	source, err := a.Ingest(ctx, IngestOptions{Paths: []string{srcA}})
	require.NoError(t, err)
	sourceID, _ := source.Get(schema.CoreName, "uuid")

	dir2 := t.TempDir()
	srcB := writeSourceFile(t, dir2, "derived.raster", "b")
	derived, err := a.Ingest(ctx, IngestOptions{Paths: []string{srcB}})
	require.NoError(t, err)
	derivedID, _ := derived.Get(schema.CoreName, "uuid")

	require.NoError(t, a.Link(ctx, sourceID, derivedID))
	require.NoError(t, a.RemoveByUUID(ctx, sourceID, false, true))

	_, err = a.findByUUID(ctx, derivedID)
	assert.Error(t, err)
}
