package main

import "github.com/stcorp/muninn/pkg/registry"

// registerExtensions is the compiled-in substitute for the source
// project's dynamic `import_module(name)` extension loading (§9
// "global process state"): Go has no portable equivalent of that
// mechanism short of the standard library's plugin package, which
// requires every extension to be built with the exact same toolchain
// and is unsupported on several platforms the corpus targets. Instead,
// a deployment that needs product-type, namespace, remote-backend, or
// hook extensions registers them here at compile time and rebuilds
// this binary. Left empty, muninn still runs: ingest/attach/pull
// simply have no product type to identify paths against, which
// surfaces as a NotFoundError from the plug-in registry rather than a
// silent no-op.
func registerExtensions(reg *registry.Registry) {
}
