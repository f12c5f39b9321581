package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/stcorp/muninn/pkg/config"
	"github.com/stcorp/muninn/pkg/dbbackend"
	"github.com/stcorp/muninn/pkg/dbbackend/ddl"
	"github.com/stcorp/muninn/pkg/dbbackend/sqlgen"
	"github.com/stcorp/muninn/pkg/expr"
	"github.com/stcorp/muninn/pkg/logger"
	"github.com/stcorp/muninn/pkg/muninnerr"
	"github.com/stcorp/muninn/pkg/schema"
	"github.com/stcorp/muninn/pkg/values"
)

type txKey struct{}

// Backend implements dbbackend.Backend against an embedded SQLite
// database, one file (or ":memory:") per archive.
type Backend struct {
	db      *sql.DB
	dialect dialect
	log     *logger.Logger
	schemas *schema.Registry
}

// Open opens (creating if absent) the SQLite database named by
// cfg.ConnectionString, loading mod_spatialite from
// cfg.ModSpatialitePath when configured.
func Open(ctx context.Context, cfg config.DatabaseBackendConfig, log *logger.Logger) (*Backend, error) {
	db, err := sql.Open("sqlite", cfg.ConnectionString)
	if err != nil {
		return nil, muninnerr.NewConfigError("sqlite.open", err)
	}
	db.SetMaxOpenConns(1) // a single SQLite writer connection avoids SQLITE_BUSY under this pack's cooperative concurrency model (§5)
	if cfg.ModSpatialitePath != "" {
		if _, err := db.ExecContext(ctx, `SELECT load_extension(?)`, cfg.ModSpatialitePath); err != nil {
			db.Close()
			return nil, muninnerr.NewConfigError("sqlite.open", fmt.Errorf("loading mod_spatialite from %q: %w", cfg.ModSpatialitePath, err))
		}
	}
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, muninnerr.NewBackendError("sqlite.open", err)
	}
	return &Backend{db: db, dialect: dialect{prefix: cfg.TablePrefix}, log: log}, nil
}

func (b *Backend) Close() error { return b.db.Close() }

// execQuerier is satisfied by both *sql.DB and *sql.Tx.
type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (b *Backend) q(ctx context.Context) execQuerier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return b.db
}

func (b *Backend) Prepare(ctx context.Context, schemas *schema.Registry) error {
	b.schemas = schemas
	for _, name := range schemas.Names() {
		ns, _ := schemas.Get(name)
		table := b.dialect.tableName(name)
		if _, err := b.db.ExecContext(ctx, ddl.CreateTableSQL(ns, table, columnTypes, "")); err != nil {
			return muninnerr.NewBackendError("sqlite.prepare", err)
		}
		for _, stmt := range ddl.IndexSQL(ns, table, nil) {
			if _, err := b.db.ExecContext(ctx, stmt); err != nil {
				return muninnerr.NewBackendError("sqlite.prepare", err)
			}
		}
	}
	coreTable := b.dialect.tableName(schema.CoreName)
	if _, err := b.db.ExecContext(ctx, ddl.LinkTableSQL(coreTable, b.dialect.tableName("link"), "TEXT")); err != nil {
		return muninnerr.NewBackendError("sqlite.prepare", err)
	}
	if _, err := b.db.ExecContext(ctx, ddl.TagTableSQL(coreTable, b.dialect.tableName("tag"), "TEXT")); err != nil {
		return muninnerr.NewBackendError("sqlite.prepare", err)
	}
	return nil
}

func (b *Backend) Destroy(ctx context.Context) error {
	rows, err := b.db.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name LIKE ?`, b.dialect.prefix+"%")
	if err != nil {
		return muninnerr.NewBackendError("sqlite.destroy", err)
	}
	var tables []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			rows.Close()
			return muninnerr.NewBackendError("sqlite.destroy", err)
		}
		tables = append(tables, t)
	}
	rows.Close()
	for _, t := range append(tables, b.dialect.tableName("link"), b.dialect.tableName("tag")) {
		if _, err := b.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %q`, t)); err != nil {
			return muninnerr.NewBackendError("sqlite.destroy", err)
		}
	}
	return nil
}

func (b *Backend) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return muninnerr.NewBackendError("sqlite.transaction", err)
	}
	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return muninnerr.NewBackendError("sqlite.transaction", err)
	}
	return nil
}

func (b *Backend) InsertCore(ctx context.Context, row map[string]values.Value) (values.Value, error) {
	uuid, err := insertRow(ctx, b.q(ctx), b.dialect.tableName(schema.CoreName), row)
	if err != nil {
		if isUniqueViolation(err) {
			return values.Value{}, muninnerr.NewConflictError("sqlite.insert_core", "product_type,product_name,archive_path,physical_name", err)
		}
		return values.Value{}, muninnerr.NewBackendError("sqlite.insert_core", err)
	}
	return uuid, nil
}

func (b *Backend) InsertNamespace(ctx context.Context, namespace string, uuid values.Value, row map[string]values.Value) error {
	full := make(map[string]values.Value, len(row)+1)
	full["uuid"] = uuid
	for k, v := range row {
		full[k] = v
	}
	_, err := insertRow(ctx, b.q(ctx), b.dialect.tableName(namespace), full)
	if err != nil {
		return muninnerr.NewBackendError("sqlite.insert_namespace", err)
	}
	return nil
}

func (b *Backend) Update(ctx context.Context, namespace string, fields map[string]values.Value, where expr.Node) (int64, error) {
	lowered, err := sqlgen.Lower(where, b.dialect)
	if err != nil {
		return 0, err
	}
	table := b.dialect.tableName(namespace)
	var setParts []string
	args := make([]any, 0, len(fields)+len(lowered.Args))
	for k, v := range fields {
		setParts = append(setParts, fmt.Sprintf("%q = ?", k))
		args = append(args, litArg(v))
	}
	args = append(args, lowered.Args...)
	coreAlias := b.dialect.TableAlias(schema.CoreName)
	stmt := fmt.Sprintf(`UPDATE %q SET %s WHERE "uuid" IN (SELECT %s."uuid" FROM %q AS %s %s WHERE %s)`,
		table, strings.Join(setParts, ", "), coreAlias, b.dialect.tableName(schema.CoreName), coreAlias,
		b.joinClause(lowered.Namespaces, schema.CoreName), lowered.SQL)
	res, err := b.q(ctx).ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, muninnerr.NewBackendError("sqlite.update", err)
	}
	return res.RowsAffected()
}

func (b *Backend) Delete(ctx context.Context, where expr.Node) (int64, error) {
	lowered, err := sqlgen.Lower(where, b.dialect)
	if err != nil {
		return 0, err
	}
	coreAlias := b.dialect.TableAlias(schema.CoreName)
	joins := b.joinClause(lowered.Namespaces, schema.CoreName)
	stmt := fmt.Sprintf(`DELETE FROM %q WHERE "uuid" IN (SELECT %s.uuid FROM %q AS %s %s WHERE %s)`,
		b.dialect.tableName(schema.CoreName), coreAlias, b.dialect.tableName(schema.CoreName), coreAlias, joins, lowered.SQL)
	res, err := b.q(ctx).ExecContext(ctx, stmt, lowered.Args...)
	if err != nil {
		return 0, muninnerr.NewBackendError("sqlite.delete", err)
	}
	return res.RowsAffected()
}

func (b *Backend) joinClause(namespaces map[string]bool, base string) string {
	var parts []string
	coreAlias := b.dialect.TableAlias(base)
	for ns := range namespaces {
		if ns == base {
			continue
		}
		alias := b.dialect.TableAlias(ns)
		parts = append(parts, fmt.Sprintf(`LEFT JOIN %q AS %s ON %s.uuid = %s.uuid`, b.dialect.tableName(ns), alias, alias, coreAlias))
	}
	return strings.Join(parts, " ")
}

func (b *Backend) Search(ctx context.Context, where expr.Node, orderBy []dbbackend.OrderTerm, limit int, projection []string) ([]dbbackend.Row, error) {
	lowered, err := sqlgen.Lower(where, b.dialect)
	if err != nil {
		return nil, err
	}
	coreAlias := b.dialect.TableAlias(schema.CoreName)
	joins := b.joinClause(lowered.Namespaces, schema.CoreName)
	stmt := fmt.Sprintf(`SELECT DISTINCT %s."uuid" FROM %q AS %s %s WHERE %s`,
		coreAlias, b.dialect.tableName(schema.CoreName), coreAlias, joins, lowered.SQL)
	stmt += renderOrderAndLimit(orderBy, limit, b.dialect)

	rows, err := b.q(ctx).QueryContext(ctx, stmt, lowered.Args...)
	if err != nil {
		return nil, muninnerr.NewBackendError("sqlite.search", err)
	}
	var uuids []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			rows.Close()
			return nil, muninnerr.NewBackendError("sqlite.search", err)
		}
		uuids = append(uuids, u)
	}
	rows.Close()

	var out []dbbackend.Row
	for _, u := range uuids {
		row, err := b.fetchRow(ctx, u, projection)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

func (b *Backend) fetchRow(ctx context.Context, uuid string, projection []string) (dbbackend.Row, error) {
	coreRow, err := scanTypedRow(ctx, b.q(ctx), b.dialect.tableName(schema.CoreName), uuid, schema.Core)
	if err != nil {
		return nil, muninnerr.NewBackendError("sqlite.fetch", err)
	}
	out := dbbackend.Row{schema.CoreName: coreRow}
	for _, ns := range namespacesToFetch(b.schemas, projection) {
		def, err := b.schemas.Get(ns)
		if err != nil {
			continue
		}
		row, err := scanTypedRow(ctx, b.q(ctx), b.dialect.tableName(ns), uuid, def)
		if err == nil {
			out[ns] = row
		}
	}
	return out, nil
}

// namespacesToFetch returns the extension namespaces a Search result
// should include: every registered namespace when projection is nil,
// otherwise only those projection names (bare "core" implied and
// already handled separately).
func namespacesToFetch(schemas *schema.Registry, projection []string) []string {
	if projection == nil {
		var out []string
		for _, n := range schemas.Names() {
			if n != schema.CoreName {
				out = append(out, n)
			}
		}
		return out
	}
	seen := map[string]bool{}
	var out []string
	for _, p := range projection {
		ns := p
		if i := strings.IndexByte(p, '.'); i >= 0 {
			ns = p[:i]
		}
		if ns == schema.CoreName || seen[ns] {
			continue
		}
		seen[ns] = true
		out = append(out, ns)
	}
	return out
}

func (b *Backend) Count(ctx context.Context, where expr.Node) (int64, error) {
	lowered, err := sqlgen.Lower(where, b.dialect)
	if err != nil {
		return 0, err
	}
	coreAlias := b.dialect.TableAlias(schema.CoreName)
	joins := b.joinClause(lowered.Namespaces, schema.CoreName)
	stmt := fmt.Sprintf(`SELECT COUNT(DISTINCT %s."uuid") FROM %q AS %s %s WHERE %s`,
		coreAlias, b.dialect.tableName(schema.CoreName), coreAlias, joins, lowered.SQL)
	var n int64
	if err := b.q(ctx).QueryRowContext(ctx, stmt, lowered.Args...).Scan(&n); err != nil {
		return 0, muninnerr.NewBackendError("sqlite.count", err)
	}
	return n, nil
}

// summaryResultCol is one column of a summary() SELECT list: either a
// group_by key or an aggregated value, in the order it is scanned back
// from the driver.
type summaryResultCol struct {
	alias string
	kind  values.Kind
}

func (b *Backend) Summary(ctx context.Context, where expr.Node, aggregates []dbbackend.Aggregate, groupBy []dbbackend.GroupByTerm, groupByTag bool, having expr.Node, orderBy []dbbackend.OrderTerm) ([]dbbackend.SummaryRow, error) {
	lowered, err := sqlgen.Lower(where, b.dialect)
	if err != nil {
		return nil, err
	}
	namespaces := map[string]bool{}
	for ns := range lowered.Namespaces {
		namespaces[ns] = true
	}
	coreAlias := b.dialect.TableAlias(schema.CoreName)

	var selectList []string
	var groupCols []summaryResultCol
	var aggCols []summaryResultCol

	for _, g := range groupBy {
		nsName, attr := sqlgen.SplitField(g.Field)
		nsDef, field, err := b.schemas.ResolveField(nsName, attr)
		if err != nil {
			return nil, muninnerr.NewBackendError("sqlite.summary", err)
		}
		if err := sqlgen.ValidateGroupBy(field.Kind, g.Subscript); err != nil {
			return nil, muninnerr.NewBackendError("sqlite.summary", err)
		}
		namespaces[nsDef.Name] = true
		colExpr := fmt.Sprintf("%s.%s", b.dialect.TableAlias(nsDef.Name), b.dialect.QuoteIdent(attr))
		if g.Subscript != "" {
			colExpr = b.dialect.TimestampBin(g.Subscript, colExpr)
		}
		selectList = append(selectList, fmt.Sprintf("%s AS %s", colExpr, b.dialect.QuoteIdent(g.Field)))
		groupCols = append(groupCols, summaryResultCol{alias: g.Field, kind: sqlgen.GroupByResultKind(field.Kind, g.Subscript)})
	}

	tagJoin := ""
	if groupByTag {
		tagAlias := b.dialect.TableAlias("tag")
		tagJoin = fmt.Sprintf(` LEFT JOIN %q AS %s ON %s.uuid = %s.uuid`, b.dialect.tableName("tag"), tagAlias, tagAlias, coreAlias)
		selectList = append(selectList, fmt.Sprintf("%s.%s AS %s", tagAlias, b.dialect.QuoteIdent("tag"), b.dialect.QuoteIdent("tag")))
		groupCols = append(groupCols, summaryResultCol{alias: "tag", kind: values.KindText})
	}

	selectList = append(selectList, `COUNT(*) AS "count"`)
	aggCols = append(aggCols, summaryResultCol{alias: "count", kind: values.KindLong})

	for _, agg := range aggregates {
		isVD := agg.Field == sqlgen.ValidityDuration
		alias := agg.Alias
		if alias == "" {
			alias = agg.Field
		}
		var colExpr string
		var resultKind values.Kind
		if isVD {
			if err := sqlgen.ValidateAggregate(0, true, string(agg.Func)); err != nil {
				return nil, muninnerr.NewBackendError("sqlite.summary", err)
			}
			startCol := fmt.Sprintf("%s.%s", coreAlias, b.dialect.QuoteIdent("validity_start"))
			stopCol := fmt.Sprintf("%s.%s", coreAlias, b.dialect.QuoteIdent("validity_stop"))
			colExpr = b.dialect.TimestampDiff(stopCol, startCol)
			resultKind = values.KindReal
		} else {
			nsName, attr := sqlgen.SplitField(agg.Field)
			nsDef, field, err := b.schemas.ResolveField(nsName, attr)
			if err != nil {
				return nil, muninnerr.NewBackendError("sqlite.summary", err)
			}
			if err := sqlgen.ValidateAggregate(field.Kind, false, string(agg.Func)); err != nil {
				return nil, muninnerr.NewBackendError("sqlite.summary", err)
			}
			namespaces[nsDef.Name] = true
			colExpr = fmt.Sprintf("%s.%s", b.dialect.TableAlias(nsDef.Name), b.dialect.QuoteIdent(attr))
			resultKind = sqlgen.AggregateResultKind(field.Kind, false, string(agg.Func))
		}
		selectList = append(selectList, fmt.Sprintf("%s(%s) AS %s", strings.ToUpper(string(agg.Func)), colExpr, b.dialect.QuoteIdent(alias)))
		aggCols = append(aggCols, summaryResultCol{alias: alias, kind: resultKind})
	}

	args := append([]any{}, lowered.Args...)
	havingClause := ""
	if having != nil {
		hLowered, err := sqlgen.Lower(having, b.dialect)
		if err != nil {
			return nil, err
		}
		for ns := range hLowered.Namespaces {
			namespaces[ns] = true
		}
		havingClause = "HAVING " + hLowered.SQL
		args = append(args, hLowered.Args...)
	}

	joins := b.joinClause(namespaces, schema.CoreName) + tagJoin

	groupByCount := len(groupCols)
	var groupByClause string
	if groupByCount > 0 {
		positions := make([]string, groupByCount)
		for i := range positions {
			positions[i] = strconv.Itoa(i + 1)
		}
		groupByClause = "GROUP BY " + strings.Join(positions, ", ")
	}

	resultAliases := make(map[string]bool, len(groupCols)+len(aggCols))
	for _, c := range groupCols {
		resultAliases[c.alias] = true
	}
	for _, c := range aggCols {
		resultAliases[c.alias] = true
	}

	var orderParts []string
	for _, o := range orderBy {
		if !resultAliases[o.Key] {
			return nil, muninnerr.NewBackendError("sqlite.summary", fmt.Errorf("cannot order result by %q; field is not present in the summary result", o.Key))
		}
		dir := "ASC"
		if o.Descending {
			dir = "DESC"
		}
		orderParts = append(orderParts, fmt.Sprintf("%s %s", b.dialect.QuoteIdent(o.Key), dir))
	}
	for i := 1; i <= groupByCount; i++ {
		orderParts = append(orderParts, strconv.Itoa(i))
	}
	var orderClause string
	if len(orderParts) > 0 {
		orderClause = "ORDER BY " + strings.Join(orderParts, ", ")
	}

	stmt := fmt.Sprintf(`SELECT %s FROM %q AS %s %s`, strings.Join(selectList, ", "), b.dialect.tableName(schema.CoreName), coreAlias, joins)
	if lowered.SQL != "" {
		stmt += " WHERE " + lowered.SQL
	}
	if groupByClause != "" {
		stmt += " " + groupByClause
	}
	if havingClause != "" {
		stmt += " " + havingClause
	}
	if orderClause != "" {
		stmt += " " + orderClause
	}

	rows, err := b.q(ctx).QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, muninnerr.NewBackendError("sqlite.summary", err)
	}
	defer rows.Close()

	var out []dbbackend.SummaryRow
	for rows.Next() {
		raw := make([]any, len(groupCols)+len(aggCols))
		ptrs := make([]any, len(raw))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, muninnerr.NewBackendError("sqlite.summary", err)
		}
		row := dbbackend.SummaryRow{Group: map[string]values.Value{}, Aggregates: map[string]values.Value{}}
		idx := 0
		for _, c := range groupCols {
			v, err := typedValue(c.kind, raw[idx])
			if err != nil {
				return nil, muninnerr.NewBackendError("sqlite.summary", err)
			}
			row.Group[c.alias] = v
			idx++
		}
		for _, c := range aggCols {
			v, err := typedValue(c.kind, raw[idx])
			if err != nil {
				return nil, muninnerr.NewBackendError("sqlite.summary", err)
			}
			row.Aggregates[c.alias] = v
			idx++
		}
		out = append(out, row)
	}
	return out, nil
}

func (b *Backend) Link(ctx context.Context, source, target values.Value) error {
	if litArg(source) == litArg(target) {
		return muninnerr.NewConflictError("sqlite.link", "source==target", fmt.Errorf("self-links are rejected"))
	}
	stmt := fmt.Sprintf(`INSERT OR IGNORE INTO %q ("source", "target") VALUES (?, ?)`, b.dialect.tableName("link"))
	_, err := b.q(ctx).ExecContext(ctx, stmt, litArg(source), litArg(target))
	if err != nil {
		return muninnerr.NewBackendError("sqlite.link", err)
	}
	return nil
}

func (b *Backend) Unlink(ctx context.Context, source, target values.Value) error {
	stmt := fmt.Sprintf(`DELETE FROM %q WHERE "source" = ? AND "target" = ?`, b.dialect.tableName("link"))
	_, err := b.q(ctx).ExecContext(ctx, stmt, litArg(source), litArg(target))
	if err != nil {
		return muninnerr.NewBackendError("sqlite.unlink", err)
	}
	return nil
}

func (b *Backend) Tag(ctx context.Context, uuid values.Value, tag string) error {
	if tag == "" {
		return muninnerr.NewStateError("sqlite.tag", fmt.Errorf("tag text must be non-empty"))
	}
	stmt := fmt.Sprintf(`INSERT OR IGNORE INTO %q ("uuid", "tag") VALUES (?, ?)`, b.dialect.tableName("tag"))
	_, err := b.q(ctx).ExecContext(ctx, stmt, litArg(uuid), tag)
	if err != nil {
		return muninnerr.NewBackendError("sqlite.tag", err)
	}
	return nil
}

func (b *Backend) Untag(ctx context.Context, uuid values.Value, tag string) error {
	stmt := fmt.Sprintf(`DELETE FROM %q WHERE "uuid" = ? AND "tag" = ?`, b.dialect.tableName("tag"))
	_, err := b.q(ctx).ExecContext(ctx, stmt, litArg(uuid), tag)
	if err != nil {
		return muninnerr.NewBackendError("sqlite.untag", err)
	}
	return nil
}

func (b *Backend) ListTags(ctx context.Context, uuid values.Value) ([]string, error) {
	stmt := fmt.Sprintf(`SELECT "tag" FROM %q WHERE "uuid" = ? ORDER BY "tag"`, b.dialect.tableName("tag"))
	rows, err := b.q(ctx).QueryContext(ctx, stmt, litArg(uuid))
	if err != nil {
		return nil, muninnerr.NewBackendError("sqlite.list_tags", err)
	}
	defer rows.Close()
	var tags []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, muninnerr.NewBackendError("sqlite.list_tags", err)
		}
		tags = append(tags, t)
	}
	return tags, nil
}

func (b *Backend) DerivedOf(ctx context.Context, uuid values.Value) ([]values.Value, error) {
	return b.linkQuery(ctx, `SELECT "target" FROM %q WHERE "source" = ?`, uuid)
}

func (b *Backend) SourcesOf(ctx context.Context, uuid values.Value) ([]values.Value, error) {
	return b.linkQuery(ctx, `SELECT "source" FROM %q WHERE "target" = ?`, uuid)
}

func (b *Backend) linkQuery(ctx context.Context, tmpl string, uuid values.Value) ([]values.Value, error) {
	stmt := fmt.Sprintf(tmpl, b.dialect.tableName("link"))
	rows, err := b.q(ctx).QueryContext(ctx, stmt, litArg(uuid))
	if err != nil {
		return nil, muninnerr.NewBackendError("sqlite.link_query", err)
	}
	defer rows.Close()
	var out []values.Value
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, muninnerr.NewBackendError("sqlite.link_query", err)
		}
		u, err := values.ParseUUID(s)
		if err != nil {
			return nil, muninnerr.NewBackendError("sqlite.link_query", err)
		}
		out = append(out, values.NewUUID(u))
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
