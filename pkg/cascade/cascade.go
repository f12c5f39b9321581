// Package cascade implements the cascade engine (C9): when a product is
// stripped or removed, it walks the derivation graph and decides
// whether downstream products should themselves be stripped, purged,
// or left alone, iterating to a fixed point (§4.9). The engine never
// touches storage bytes or catalogue rows directly; it only decides
// which uuids qualify and hands them to orchestrator-supplied
// callbacks.
package cascade

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stcorp/muninn/pkg/dbbackend"
	"github.com/stcorp/muninn/pkg/expr"
	"github.com/stcorp/muninn/pkg/logger"
	"github.com/stcorp/muninn/pkg/muninnerr"
	"github.com/stcorp/muninn/pkg/registry"
	"github.com/stcorp/muninn/pkg/schema"
	"github.com/stcorp/muninn/pkg/values"
)

// Actions bundles the two state transitions the engine drives a
// qualifying uuid through. The orchestrator supplies these; they are
// expected to compose the same strip/remove logic a direct API call
// would run.
type Actions struct {
	Strip  func(ctx context.Context, uuid values.Value) error
	Remove func(ctx context.Context, uuid values.Value) error
}

// Engine runs the iterative fixed-point cascade described in §4.9.
type Engine struct {
	db          dbbackend.Backend
	registry    *registry.Registry
	maxCycles   int
	gracePeriod time.Duration
	log         *logger.Logger
}

// New builds an Engine. maxCycles <= 0 falls back to the default of 25
// (config.ArchiveConfig's own default).
func New(db dbbackend.Backend, reg *registry.Registry, maxCycles int, gracePeriod time.Duration, log *logger.Logger) *Engine {
	if maxCycles <= 0 {
		maxCycles = 25
	}
	return &Engine{db: db, registry: reg, maxCycles: maxCycles, gracePeriod: gracePeriod, log: log}
}

// Run drives every registered product type with a non-IGNORE cascade
// rule to a fixed point, invoking actions.Strip/actions.Remove for
// each qualifying uuid. It surfaces the first fatal error encountered
// but keeps working through the remaining product types and cycles,
// per §4.7's cascade propagation policy.
func (e *Engine) Run(ctx context.Context, actions Actions) error {
	var firstErr error
	cycle := 0
	for ; cycle < e.maxCycles; cycle++ {
		changed := false
		for _, p := range e.registry.ProductTypes() {
			rule := p.CascadeRule()
			if rule == registry.CascadeIgnore {
				continue
			}
			did, err := e.runProductType(ctx, p.ProductType(), rule, actions)
			if did {
				changed = true
			}
			if err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if !changed {
			return firstErr
		}
	}
	if e.log != nil {
		e.log.Warn("cascade did not reach a fixed point after %d cycles", e.maxCycles)
	}
	return firstErr
}

// runProductType applies one product type's two-phase rule once:
// first the "all sources removed" branch, then — unless the rule
// short-circuits it — the "all sources stripped" branch.
func (e *Engine) runProductType(ctx context.Context, productType string, rule registry.CascadeRule, actions Actions) (bool, error) {
	stripPhase1 := rule == registry.CascadePurgeAsStrip || rule == registry.CascadeStrip

	candidates1, err := e.findWithoutSource(ctx, productType, stripPhase1)
	if err != nil {
		return false, err
	}

	changed := false
	var firstErr error
	for _, uuid := range candidates1 {
		if err := e.apply(ctx, uuid, stripPhase1, actions); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		changed = true
	}

	if rule == registry.CascadePurgeAsStrip || rule == registry.CascadePurge {
		return changed, firstErr
	}

	candidates2, err := e.findWithoutAvailableSource(ctx, productType)
	if err != nil {
		if firstErr == nil {
			firstErr = err
		}
		return changed, firstErr
	}

	stripPhase2 := rule == registry.CascadeStrip || rule == registry.CascadeCascade
	for _, uuid := range candidates2 {
		if err := e.apply(ctx, uuid, stripPhase2, actions); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		changed = true
	}
	return changed, firstErr
}

func (e *Engine) apply(ctx context.Context, uuid values.Value, strip bool, actions Actions) error {
	if strip {
		return actions.Strip(ctx, uuid)
	}
	return actions.Remove(ctx, uuid)
}

// findWithoutSource returns the active products of productType, past
// the grace period, with zero recorded sources — the condition remove()
// leaves behind once every one of a product's former sources has
// itself been removed (removal cascade-deletes its link rows). When
// archivedOnly is true (the cascade action is a strip, not a purge)
// candidates without archive_path are skipped: there is nothing left
// to strip off a product that is already catalogue-only.
func (e *Engine) findWithoutSource(ctx context.Context, productType string, archivedOnly bool) ([]values.Value, error) {
	rows, err := e.activeProducts(ctx, productType)
	if err != nil {
		return nil, err
	}

	var out []values.Value
	for _, row := range rows {
		core := row[schema.CoreName]
		if !e.pastGracePeriod(core) {
			continue
		}
		if archivedOnly && !core["archive_path"].IsValid() {
			continue
		}
		uuid := core["uuid"]
		sources, err := e.db.SourcesOf(ctx, uuid)
		if err != nil {
			return nil, muninnerr.NewBackendError("cascade.find_without_source", err)
		}
		if len(sources) == 0 {
			out = append(out, uuid)
		}
	}
	return out, nil
}

// findWithoutAvailableSource returns the active products of
// productType, past the grace period, that have at least one recorded
// source and where every one of those sources still exists but has
// been stripped (archive_path undefined). A product with a removed
// (no longer existing) source is excluded here — that case belongs to
// findWithoutSource once every source is gone, not a mix of the two.
func (e *Engine) findWithoutAvailableSource(ctx context.Context, productType string) ([]values.Value, error) {
	rows, err := e.activeProducts(ctx, productType)
	if err != nil {
		return nil, err
	}

	var out []values.Value
	for _, row := range rows {
		core := row[schema.CoreName]
		if !e.pastGracePeriod(core) {
			continue
		}
		uuid := core["uuid"]
		sources, err := e.db.SourcesOf(ctx, uuid)
		if err != nil {
			return nil, muninnerr.NewBackendError("cascade.find_without_available_source", err)
		}
		if len(sources) == 0 {
			continue
		}

		allStripped := true
		for _, src := range sources {
			stripped, exists, err := e.sourceStripped(ctx, src)
			if err != nil {
				return nil, err
			}
			if !exists || !stripped {
				allStripped = false
				break
			}
		}
		if allStripped {
			out = append(out, uuid)
		}
	}
	return out, nil
}

// sourceStripped reports whether uuid still has a catalogue row
// (exists) and, if so, whether that row is stripped (archive_path
// undefined).
func (e *Engine) sourceStripped(ctx context.Context, uuid values.Value) (stripped, exists bool, err error) {
	u, ok := uuid.UUIDValue()
	if !ok {
		return false, false, muninnerr.NewBackendError("cascade.source_lookup", fmt.Errorf("source reference is not a uuid value"))
	}
	where, err := e.parseWhere(fmt.Sprintf("uuid == %s", u.String()))
	if err != nil {
		return false, false, muninnerr.NewBackendError("cascade.source_lookup", err)
	}
	rows, err := e.db.Search(ctx, where, nil, 1, []string{schema.CoreName})
	if err != nil {
		return false, false, muninnerr.NewBackendError("cascade.source_lookup", err)
	}
	if len(rows) == 0 {
		return false, false, nil
	}
	return !rows[0][schema.CoreName]["archive_path"].IsValid(), true, nil
}

func (e *Engine) activeProducts(ctx context.Context, productType string) ([]dbbackend.Row, error) {
	where, err := e.parseWhere(fmt.Sprintf("product_type == %s and active == true", quoteText(productType)))
	if err != nil {
		return nil, muninnerr.NewBackendError("cascade.active_products", err)
	}
	rows, err := e.db.Search(ctx, where, nil, 0, []string{schema.CoreName})
	if err != nil {
		return nil, muninnerr.NewBackendError("cascade.active_products", err)
	}
	return rows, nil
}

// parseWhere parses and semantically analyzes text against the
// registry's namespace schema, the step that resolves each bare field
// reference to its ("core", field) pair a database backend's lowering
// pass requires.
func (e *Engine) parseWhere(text string) (expr.Node, error) {
	node, err := expr.Parse(text)
	if err != nil {
		return nil, err
	}
	analyzer := expr.NewAnalyzer(e.registry.Namespaces(), nil, false)
	if _, err := analyzer.Analyze(node); err != nil {
		return nil, err
	}
	return node, nil
}

// pastGracePeriod reports whether core's archive_date, if any, lies at
// least e.gracePeriod in the past. A product with no archive_date
// (catalogue-only) is always eligible: the grace period exists to let
// a freshly-archived product's late-arriving dependents reprieve it,
// which doesn't apply when there was never anything archived.
func (e *Engine) pastGracePeriod(core map[string]values.Value) bool {
	archiveDate, ok := core["archive_date"]
	if !ok || !archiveDate.IsValid() {
		return true
	}
	ts, ok := archiveDate.TimestampValue()
	if !ok {
		return true
	}
	now := values.Timestamp(time.Now().UnixMicro())
	return now.Sub(ts) >= e.gracePeriod.Seconds()
}

func quoteText(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
