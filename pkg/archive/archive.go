// Package archive implements the archive orchestrator (C8): the single
// entry point that composes the schema (C2), property container (C3),
// expression language (C4), database backend (C5), storage backend
// (C6), plug-in registry (C7) and cascade engine (C9) into the
// catalogue operations described in §4.8 — ingest, attach, pull,
// strip, remove, retrieve, tag, link and search.
package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stcorp/muninn/pkg/cascade"
	"github.com/stcorp/muninn/pkg/config"
	"github.com/stcorp/muninn/pkg/dbbackend"
	"github.com/stcorp/muninn/pkg/expr"
	"github.com/stcorp/muninn/pkg/logger"
	"github.com/stcorp/muninn/pkg/muninnerr"
	"github.com/stcorp/muninn/pkg/properties"
	"github.com/stcorp/muninn/pkg/registry"
	"github.com/stcorp/muninn/pkg/schema"
	"github.com/stcorp/muninn/pkg/storage"
	"github.com/stcorp/muninn/pkg/values"
)

// Archive is the orchestrator handle. It owns no lifecycle of its own
// beyond Prepare/Destroy: the database and storage backends, the
// registry and its schema are all constructed by the caller and
// handed in already wired.
type Archive struct {
	db       dbbackend.Backend
	store    storage.Backend
	registry *registry.Registry
	cascade  *cascade.Engine
	cfg      config.ArchiveConfig
	log      *logger.Logger
}

// Open composes an already-constructed database backend, storage
// backend and plug-in registry into an orchestrator. Config parsing
// happens elsewhere (see pkg/config's own doc comment); Open only
// applies cfg's numeric defaults and builds the cascade engine.
func Open(db dbbackend.Backend, store storage.Backend, reg *registry.Registry, cfg config.ArchiveConfig, log *logger.Logger) *Archive {
	cfg.Defaults()
	grace := time.Duration(cfg.CascadeGracePeriod) * time.Minute
	eng := cascade.New(db, reg, cfg.MaxCascadeCycles, grace, log)
	return &Archive{db: db, store: store, registry: reg, cascade: eng, cfg: cfg, log: log}
}

// Prepare makes both backends ready for use: the catalogue schema (core
// plus every registered extension namespace) and the storage location.
func (a *Archive) Prepare(ctx context.Context) error {
	if err := a.db.Prepare(ctx, a.registry.Namespaces()); err != nil {
		return err
	}
	return a.store.Prepare(ctx)
}

// Destroy tears down both backends, discarding every catalogue row and
// stored byte. It does not unregister plug-ins.
func (a *Archive) Destroy(ctx context.Context) error {
	if err := a.db.Destroy(ctx); err != nil {
		return err
	}
	return a.store.Destroy(ctx)
}

// Registry exposes the plug-in registry backing this archive, for
// callers (the CLI, mainly) that need to enumerate product types or
// namespaces directly.
func (a *Archive) Registry() *registry.Registry { return a.registry }

func (a *Archive) parseWhere(text string) (expr.Node, error) {
	node, err := expr.Parse(text)
	if err != nil {
		return nil, muninnerr.NewExpressionError("archive.parse_where", 0, err)
	}
	if _, err := expr.NewAnalyzer(a.registry.Namespaces(), nil, false).Analyze(node); err != nil {
		return nil, err
	}
	return node, nil
}

// ParseQuery parses and semantically analyzes a where-clause against
// this archive's namespace schema, the same step Search/Count/Summary
// apply to the query text they are given.
func (a *Archive) ParseQuery(text string) (expr.Node, error) {
	return a.parseWhere(text)
}

// parseHaving analyzes a summary() having-clause with the having-mode
// name rules (bare count/tag, subscripted names). A name lowers to its
// plain property column: its subscript is not carried over, so the
// query's aggregate results cannot be referenced by alias.
func (a *Archive) parseHaving(text string) (expr.Node, error) {
	node, err := expr.Parse(text)
	if err != nil {
		return nil, muninnerr.NewExpressionError("archive.parse_having", 0, err)
	}
	if _, err := expr.NewAnalyzer(a.registry.Namespaces(), nil, true).Analyze(node); err != nil {
		return nil, err
	}
	return node, nil
}

func uuidWhere(id values.Value) (expr.Node, error) {
	u, ok := id.UUIDValue()
	if !ok {
		return nil, muninnerr.NewStateError("archive", fmt.Errorf("uuid required"))
	}
	return &expr.FunctionCall{
		Name: "==",
		Arguments: []expr.Node{
			&expr.Name{Value: "uuid", Namespace: schema.CoreName, Field: "uuid"},
			&expr.Literal{Value: values.NewUUID(u)},
		},
	}, nil
}

func newUUID() values.Value { return values.NewUUID(uuid.New()) }

func rowToContainer(row dbbackend.Row) *properties.Container {
	c := properties.New()
	for ns, fields := range row {
		cp := make(map[string]values.Value, len(fields))
		for k, v := range fields {
			cp[k] = v
		}
		c.SetNamespace(ns, cp)
	}
	return c
}

func textOf(v values.Value) string {
	s, _ := v.Text()
	return s
}

func (a *Archive) searchCore(ctx context.Context, query string) ([]dbbackend.Row, error) {
	where, err := a.parseWhere(query)
	if err != nil {
		return nil, err
	}
	return a.db.Search(ctx, where, nil, 0, nil)
}

func (a *Archive) findByUUID(ctx context.Context, id values.Value) (dbbackend.Row, error) {
	where, err := uuidWhere(id)
	if err != nil {
		return nil, err
	}
	rows, err := a.db.Search(ctx, where, nil, 1, nil)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		u, _ := id.UUIDValue()
		return nil, muninnerr.NewNotFoundError("product", u.String())
	}
	return rows[0], nil
}

// cascadeActions binds the cascade engine's Strip/Remove callbacks to
// this archive's own byte-level strip and purge implementations, so a
// cascade-triggered transition runs exactly the same code path a
// direct StripByUUID/RemoveByUUID call would.
func (a *Archive) cascadeActions() cascade.Actions {
	return cascade.Actions{
		Strip: func(ctx context.Context, id values.Value) error {
			row, err := a.findByUUID(ctx, id)
			if err != nil {
				if muninnerr.IsNotFound(err) {
					return nil
				}
				return err
			}
			return a.stripOne(ctx, row)
		},
		Remove: func(ctx context.Context, id values.Value) error {
			row, err := a.findByUUID(ctx, id)
			if err != nil {
				if muninnerr.IsNotFound(err) {
					return nil
				}
				return err
			}
			return a.purgeOne(ctx, row)
		},
	}
}

// runCascade invokes the cascade engine unless useCascade is false,
// swallowing nothing: a cascade failure is surfaced to the caller of
// the mutation that triggered it, matching _establish_invariants being
// called synchronously at the end of remove()/strip() in the original.
func (a *Archive) runCascade(ctx context.Context, useCascade bool) error {
	if !useCascade {
		return nil
	}
	return a.cascade.Run(ctx, a.cascadeActions())
}
