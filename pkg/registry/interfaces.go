// Package registry implements the plug-in registry (C7): four lookup
// tables — product type, namespace, remote-URL, hook extension —
// populated at archive-open time and consulted by the orchestrator
// (C8) throughout every catalogue operation.
package registry

import (
	"context"

	"github.com/stcorp/muninn/pkg/properties"
	"github.com/stcorp/muninn/pkg/schema"
)

// CascadeRule selects how a derived product reacts when its sources
// are removed or stripped (§4.9).
type CascadeRule string

const (
	CascadeIgnore             CascadeRule = "IGNORE"
	CascadePurgeAsStrip       CascadeRule = "CASCADE_PURGE_AS_STRIP"
	CascadePurge              CascadeRule = "CASCADE_PURGE"
	CascadeStrip              CascadeRule = "STRIP"
	CascadeCascade            CascadeRule = "CASCADE"
	CascadePurgeAll           CascadeRule = "PURGE"
)

// NoHash marks a plug-in that disables content hashing on ingest
// (§4.7 "hash_type default md5 or disabled").
const NoHash = ""

// ProductTypePlugin binds archive behavior to one product type:
// identification, analysis, archive-path computation, and optional
// hooks and export formats. Optional methods are exposed through the
// Post*Hook/Export* interfaces below and probed with a type
// assertion, the same pattern the adapter interfaces in this pack use
// for capability detection.
type ProductTypePlugin interface {
	ProductType() string
	UseEnclosingDirectory() bool
	HashType() string
	CascadeRule() CascadeRule
	Namespaces() []string

	Identify(paths []string) bool
	Analyze(ctx context.Context, paths []string) (*properties.Container, []string, error)
	ArchivePath(props *properties.Container) (string, error)
}

// EnclosingDirectoryPlugin is implemented by multi-part product types
// that need a directory name computed from properties rather than the
// single base name derived from the source path.
type EnclosingDirectoryPlugin interface {
	EnclosingDirectory(props *properties.Container) (string, error)
}

// PostIngestHooker, PostPullHooker, PostRemoveHooker and
// PostCreateHooker are the optional per-phase hook signatures a
// product-type plug-in or a hook extension may implement.
type PostIngestHooker interface {
	PostIngestHook(ctx context.Context, props *properties.Container) error
}

type PostPullHooker interface {
	PostPullHook(ctx context.Context, props *properties.Container) error
}

type PostRemoveHooker interface {
	PostRemoveHook(ctx context.Context, props *properties.Container) error
}

type PostCreateHooker interface {
	PostCreateHook(ctx context.Context, props *properties.Container) error
}

// Exporter is implemented by plug-ins that support export_<format>.
type Exporter interface {
	Export(ctx context.Context, format string, archivePath, physicalName, targetDir string, paths []string) ([]string, error)
	ExportFormats() []string
}

// RemoteBackend fetches bytes for a product whose remote_url names a
// transport this backend recognizes (§4.8 Pull).
type RemoteBackend interface {
	Identify(url string) bool
	Pull(ctx context.Context, url, targetDir string) ([]string, error)
}

// Configurable is implemented by remote backends that accept
// transport-specific configuration (credentials, timeouts) at
// registration time.
type Configurable interface {
	SetConfiguration(cfg map[string]string) error
}

// HookExtension is a bag of optional post-phase methods invoked across
// every registered extension in configuration order (reverse order for
// post_remove_hook, per §4.7).
type HookExtension interface {
	Name() string
}

// NamespaceProvider supplies a schema definition for a registered
// extension namespace; it exists so namespace registration can be
// driven by the same extension-loading mechanism as product types.
type NamespaceProvider interface {
	Namespace() (*schema.Namespace, error)
}
