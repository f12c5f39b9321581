package postgres

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

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

// defaultSummaryCacheTTL is used when SummaryCacheTTLSeconds is unset.
const defaultSummaryCacheTTL = 5 * time.Minute

type txKey struct{}

// Backend implements dbbackend.Backend against PostgreSQL/PostGIS
// through a pgxpool connection pool, acquired lazily and released at
// the end of the enclosing archive-level operation (§5).
type Backend struct {
	pool     *pgxpool.Pool
	dialect  dialect
	log      *logger.Logger
	schemas  *schema.Registry
	cache    *redis.Client
	cacheTTL time.Duration
}

// Open connects to the configured PostgreSQL instance. The pool is
// created immediately but individual connections are still acquired
// lazily by pgxpool per query, matching §5's "connections are created
// lazily" requirement at the statement level. If cfg.SummaryCacheURL
// is set, it also dials a Redis instance for the summary() read-through
// cache below; an unreachable cache fails Open the same way an
// unreachable database does, rather than silently degrading, so a
// misconfigured cache URL is caught at startup.
func Open(ctx context.Context, cfg config.DatabaseBackendConfig, log *logger.Logger) (*Backend, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString)
	if err != nil {
		return nil, muninnerr.NewConfigError("postgres.open", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, muninnerr.NewBackendError("postgres.open", err)
	}
	b := &Backend{pool: pool, dialect: dialect{prefix: cfg.TablePrefix}, log: log}

	if cfg.SummaryCacheURL != "" {
		opts, err := redis.ParseURL(cfg.SummaryCacheURL)
		if err != nil {
			pool.Close()
			return nil, muninnerr.NewConfigError("postgres.open", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			pool.Close()
			return nil, muninnerr.NewBackendError("postgres.open", err)
		}
		b.cache = client
		b.cacheTTL = time.Duration(cfg.SummaryCacheTTLSeconds) * time.Second
		if b.cacheTTL <= 0 {
			b.cacheTTL = defaultSummaryCacheTTL
		}
	}

	return b, nil
}

// Close releases the connection pool and, if configured, the summary()
// cache client. Returns an error so it satisfies the same
// interface{ Close() error } the caller probes for on every backend
// (sqlite's Close already returns one).
func (b *Backend) Close() error {
	b.pool.Close()
	if b.cache != nil {
		return b.cache.Close()
	}
	return nil
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so every
// method below runs identically whether or not it's inside
// WithTransaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (b *Backend) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return b.pool
}

func (b *Backend) Prepare(ctx context.Context, schemas *schema.Registry) error {
	b.schemas = schemas
	for _, name := range schemas.Names() {
		ns, _ := schemas.Get(name)
		table := b.dialect.tableName(name)
		if _, err := b.pool.Exec(ctx, ddl.CreateTableSQL(ns, table, columnTypes, `COLLATE "C"`)); err != nil {
			return muninnerr.NewBackendError("postgres.prepare", err)
		}
		for _, stmt := range ddl.IndexSQL(ns, table, spatialIndexSQL) {
			if _, err := b.pool.Exec(ctx, stmt); err != nil {
				return muninnerr.NewBackendError("postgres.prepare", err)
			}
		}
	}
	coreTable := b.dialect.tableName(schema.CoreName)
	if _, err := b.pool.Exec(ctx, ddl.LinkTableSQL(coreTable, b.dialect.tableName("link"), "UUID")); err != nil {
		return muninnerr.NewBackendError("postgres.prepare", err)
	}
	if _, err := b.pool.Exec(ctx, ddl.TagTableSQL(coreTable, b.dialect.tableName("tag"), "UUID")); err != nil {
		return muninnerr.NewBackendError("postgres.prepare", err)
	}
	return nil
}

func spatialIndexSQL(tableName, column string) string {
	idx := fmt.Sprintf("idx_%s_%s_gist", tableName, column)
	return fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %q ON %q USING GIST (%q)`, idx, tableName, column)
}

func (b *Backend) Destroy(ctx context.Context) error {
	rows, err := b.pool.Query(ctx, `SELECT tablename FROM pg_tables WHERE tablename LIKE $1`, b.dialect.prefix+"%")
	if err != nil {
		return muninnerr.NewBackendError("postgres.destroy", err)
	}
	var tables []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			rows.Close()
			return muninnerr.NewBackendError("postgres.destroy", err)
		}
		tables = append(tables, t)
	}
	rows.Close()
	for _, t := range append(tables, b.dialect.tableName("link"), b.dialect.tableName("tag")) {
		if _, err := b.pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %q CASCADE`, t)); err != nil {
			return muninnerr.NewBackendError("postgres.destroy", err)
		}
	}
	return nil
}

func (b *Backend) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return muninnerr.NewBackendError("postgres.transaction", err)
	}
	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return muninnerr.NewBackendError("postgres.transaction", err)
	}
	return nil
}

func (b *Backend) InsertCore(ctx context.Context, row map[string]values.Value) (values.Value, error) {
	uuid, err := insertRow(ctx, b.q(ctx), b.dialect.tableName(schema.CoreName), row)
	if err != nil {
		if isUniqueViolation(err) {
			return values.Value{}, muninnerr.NewConflictError("postgres.insert_core", "product_type,product_name,archive_path,physical_name", err)
		}
		return values.Value{}, muninnerr.NewBackendError("postgres.insert_core", err)
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
		return muninnerr.NewBackendError("postgres.insert_namespace", err)
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
		args = append(args, litArg(v))
		setParts = append(setParts, fmt.Sprintf("%q = $%d", k, len(args)))
	}
	args = append(args, lowered.Args...)
	whereSQL := renumberPlaceholders(lowered.SQL, len(fields))
	coreAlias := b.dialect.TableAlias(schema.CoreName)
	stmt := fmt.Sprintf(`UPDATE %q SET %s WHERE "uuid" IN (SELECT %s.uuid FROM %q AS %s %s WHERE %s)`,
		table, strings.Join(setParts, ", "), coreAlias, b.dialect.tableName(schema.CoreName), coreAlias,
		b.joinClause(lowered.Namespaces, schema.CoreName), whereSQL)
	tag, err := b.q(ctx).Exec(ctx, stmt, args...)
	if err != nil {
		return 0, muninnerr.NewBackendError("postgres.update", err)
	}
	return tag.RowsAffected(), nil
}

func (b *Backend) Delete(ctx context.Context, where expr.Node) (int64, error) {
	lowered, err := sqlgen.Lower(where, b.dialect)
	if err != nil {
		return 0, err
	}
	joins := b.joinClause(lowered.Namespaces, schema.CoreName)
	coreAlias := b.dialect.TableAlias(schema.CoreName)
	stmt := fmt.Sprintf(`DELETE FROM %q AS %s USING (SELECT %s.uuid FROM %q AS %s %s WHERE %s) AS victims WHERE %s.uuid = victims.uuid`,
		b.dialect.tableName(schema.CoreName), coreAlias, coreAlias, b.dialect.tableName(schema.CoreName), coreAlias, joins, lowered.SQL, coreAlias)
	tag, err := b.q(ctx).Exec(ctx, stmt, lowered.Args...)
	if err != nil {
		return 0, muninnerr.NewBackendError("postgres.delete", err)
	}
	return tag.RowsAffected(), nil
}

// joinClause renders LEFT JOINs from core to every referenced
// namespace other than core itself.
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
	stmt := fmt.Sprintf(`SELECT DISTINCT %s.uuid FROM %q AS %s %s WHERE %s`,
		coreAlias, b.dialect.tableName(schema.CoreName), coreAlias, joins, lowered.SQL)
	stmt += renderOrderAndLimit(orderBy, limit, b.dialect)

	rows, err := b.q(ctx).Query(ctx, stmt, lowered.Args...)
	if err != nil {
		return nil, muninnerr.NewBackendError("postgres.search", err)
	}
	var uuids []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			rows.Close()
			return nil, muninnerr.NewBackendError("postgres.search", err)
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
		return nil, muninnerr.NewBackendError("postgres.fetch", err)
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
// otherwise only those named by it (bare "core" is handled separately).
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
	stmt := fmt.Sprintf(`SELECT COUNT(DISTINCT %s.uuid) FROM %q AS %s %s WHERE %s`,
		coreAlias, b.dialect.tableName(schema.CoreName), coreAlias, joins, lowered.SQL)
	var n int64
	if err := b.q(ctx).QueryRow(ctx, stmt, lowered.Args...).Scan(&n); err != nil {
		return 0, muninnerr.NewBackendError("postgres.count", err)
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
			return nil, muninnerr.NewBackendError("postgres.summary", err)
		}
		if err := sqlgen.ValidateGroupBy(field.Kind, g.Subscript); err != nil {
			return nil, muninnerr.NewBackendError("postgres.summary", err)
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
				return nil, muninnerr.NewBackendError("postgres.summary", err)
			}
			startCol := fmt.Sprintf("%s.%s", coreAlias, b.dialect.QuoteIdent("validity_start"))
			stopCol := fmt.Sprintf("%s.%s", coreAlias, b.dialect.QuoteIdent("validity_stop"))
			colExpr = b.dialect.TimestampDiff(stopCol, startCol)
			resultKind = values.KindReal
		} else {
			nsName, attr := sqlgen.SplitField(agg.Field)
			nsDef, field, err := b.schemas.ResolveField(nsName, attr)
			if err != nil {
				return nil, muninnerr.NewBackendError("postgres.summary", err)
			}
			if err := sqlgen.ValidateAggregate(field.Kind, false, string(agg.Func)); err != nil {
				return nil, muninnerr.NewBackendError("postgres.summary", err)
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
		havingClause = "HAVING " + renumberPlaceholders(hLowered.SQL, len(args))
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
			return nil, muninnerr.NewBackendError("postgres.summary", fmt.Errorf("cannot order result by %q; field is not present in the summary result", o.Key))
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

	// The cache is keyed on the assembled statement text plus its bound
	// arguments, which together fully determine the result; it is
	// skipped inside a transaction since a cached result might predate
	// writes the transaction itself has made but not yet committed.
	_, inTx := ctx.Value(txKey{}).(pgx.Tx)
	useCache := b.cache != nil && !inTx
	var cacheKey string
	if useCache {
		cacheKey = summaryCacheKey(stmt, args)
		if cached, ok := b.summaryFromCache(ctx, cacheKey); ok {
			return cached, nil
		}
	}

	rows, err := b.q(ctx).Query(ctx, stmt, args...)
	if err != nil {
		return nil, muninnerr.NewBackendError("postgres.summary", err)
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
			return nil, muninnerr.NewBackendError("postgres.summary", err)
		}
		row := dbbackend.SummaryRow{Group: map[string]values.Value{}, Aggregates: map[string]values.Value{}}
		idx := 0
		for _, c := range groupCols {
			v, err := typedValue(c.kind, raw[idx])
			if err != nil {
				return nil, muninnerr.NewBackendError("postgres.summary", err)
			}
			row.Group[c.alias] = v
			idx++
		}
		for _, c := range aggCols {
			v, err := typedValue(c.kind, raw[idx])
			if err != nil {
				return nil, muninnerr.NewBackendError("postgres.summary", err)
			}
			row.Aggregates[c.alias] = v
			idx++
		}
		out = append(out, row)
	}

	if useCache {
		b.summaryToCache(ctx, cacheKey, out)
	}
	return out, nil
}

// summaryCacheKey fingerprints a fully-assembled summary() statement
// and its bound arguments into a cache key; the statement text already
// reflects the where/having/group_by/order_by/aggregate request, so it
// is the cheapest unique key available.
func summaryCacheKey(stmt string, args []any) string {
	h := sha256.New()
	h.Write([]byte(stmt))
	for _, a := range args {
		fmt.Fprintf(h, "|%v", a)
	}
	return "muninn:summary:" + hex.EncodeToString(h.Sum(nil))
}

// cachedValue is the JSON wire form of one values.Value in a cached
// summary() row: its Kind plus the same literal text String() and the
// values package's per-kind Parse helpers already agree on, so no
// bespoke binary codec is needed.
type cachedValue struct {
	Kind values.Kind `json:"k"`
	Text string      `json:"v"`
}

type cachedRow struct {
	Group      map[string]cachedValue `json:"g"`
	Aggregates map[string]cachedValue `json:"a"`
}

func encodeCachedValue(v values.Value) cachedValue {
	return cachedValue{Kind: v.Kind, Text: v.String()}
}

func decodeCachedValue(c cachedValue) (values.Value, error) {
	switch c.Kind {
	case values.KindBoolean:
		b, err := values.ParseBoolean(c.Text)
		return values.NewBoolean(b), err
	case values.KindInteger:
		i, err := values.ParseInteger32(c.Text)
		return values.NewInteger(i), err
	case values.KindLong:
		l, err := values.ParseLong64(c.Text)
		return values.NewLong(l), err
	case values.KindReal:
		r, err := values.ParseReal(c.Text)
		return values.NewReal(r), err
	case values.KindText:
		return values.NewText(c.Text), nil
	case values.KindTimestamp:
		l, err := values.ParseLong64(c.Text)
		return values.NewTimestamp(values.Timestamp(l)), err
	case values.KindUUID:
		u, err := values.ParseUUID(c.Text)
		return values.NewUUID(u), err
	case values.KindJSON:
		s, err := values.ParseJSON(c.Text)
		return values.NewJSON(s), err
	default:
		return values.Value{}, fmt.Errorf("postgres: summary cache cannot decode kind %v", c.Kind)
	}
}

// summaryFromCache returns a cached result for key, treating any read
// or decode error as a cache miss so the cache is purely an
// accelerator and never a point of failure for summary().
func (b *Backend) summaryFromCache(ctx context.Context, key string) ([]dbbackend.SummaryRow, bool) {
	raw, err := b.cache.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var rows []cachedRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		b.log.Warn("postgres.summary: discarding undecodable cache entry: %s", err)
		return nil, false
	}
	out := make([]dbbackend.SummaryRow, len(rows))
	for i, r := range rows {
		row := dbbackend.SummaryRow{Group: map[string]values.Value{}, Aggregates: map[string]values.Value{}}
		for k, cv := range r.Group {
			v, err := decodeCachedValue(cv)
			if err != nil {
				b.log.Warn("postgres.summary: discarding undecodable cache entry: %s", err)
				return nil, false
			}
			row.Group[k] = v
		}
		for k, cv := range r.Aggregates {
			v, err := decodeCachedValue(cv)
			if err != nil {
				b.log.Warn("postgres.summary: discarding undecodable cache entry: %s", err)
				return nil, false
			}
			row.Aggregates[k] = v
		}
		out[i] = row
	}
	return out, true
}

// summaryToCache populates the cache after a live query; failures are
// logged, not returned, since a fresh query result is still valid even
// if it couldn't be cached.
func (b *Backend) summaryToCache(ctx context.Context, key string, rows []dbbackend.SummaryRow) {
	wire := make([]cachedRow, len(rows))
	for i, r := range rows {
		cr := cachedRow{Group: map[string]cachedValue{}, Aggregates: map[string]cachedValue{}}
		for k, v := range r.Group {
			cr.Group[k] = encodeCachedValue(v)
		}
		for k, v := range r.Aggregates {
			cr.Aggregates[k] = encodeCachedValue(v)
		}
		wire[i] = cr
	}
	raw, err := json.Marshal(wire)
	if err != nil {
		b.log.Warn("postgres.summary: failed to encode result for caching: %s", err)
		return
	}
	if err := b.cache.Set(ctx, key, raw, b.cacheTTL).Err(); err != nil {
		b.log.Warn("postgres.summary: failed to populate cache: %s", err)
	}
}

func (b *Backend) Link(ctx context.Context, source, target values.Value) error {
	if litArg(source) == litArg(target) {
		return muninnerr.NewConflictError("postgres.link", "source==target", fmt.Errorf("self-links are rejected"))
	}
	stmt := fmt.Sprintf(`INSERT INTO %q ("source", "target") VALUES ($1, $2) ON CONFLICT DO NOTHING`, b.dialect.tableName("link"))
	_, err := b.q(ctx).Exec(ctx, stmt, litArg(source), litArg(target))
	if err != nil {
		return muninnerr.NewBackendError("postgres.link", err)
	}
	return nil
}

func (b *Backend) Unlink(ctx context.Context, source, target values.Value) error {
	stmt := fmt.Sprintf(`DELETE FROM %q WHERE "source" = $1 AND "target" = $2`, b.dialect.tableName("link"))
	_, err := b.q(ctx).Exec(ctx, stmt, litArg(source), litArg(target))
	if err != nil {
		return muninnerr.NewBackendError("postgres.unlink", err)
	}
	return nil
}

func (b *Backend) Tag(ctx context.Context, uuid values.Value, tag string) error {
	if tag == "" {
		return muninnerr.NewStateError("postgres.tag", fmt.Errorf("tag text must be non-empty"))
	}
	stmt := fmt.Sprintf(`INSERT INTO %q ("uuid", "tag") VALUES ($1, $2) ON CONFLICT DO NOTHING`, b.dialect.tableName("tag"))
	_, err := b.q(ctx).Exec(ctx, stmt, litArg(uuid), tag)
	if err != nil {
		return muninnerr.NewBackendError("postgres.tag", err)
	}
	return nil
}

func (b *Backend) Untag(ctx context.Context, uuid values.Value, tag string) error {
	stmt := fmt.Sprintf(`DELETE FROM %q WHERE "uuid" = $1 AND "tag" = $2`, b.dialect.tableName("tag"))
	_, err := b.q(ctx).Exec(ctx, stmt, litArg(uuid), tag)
	if err != nil {
		return muninnerr.NewBackendError("postgres.untag", err)
	}
	return nil
}

func (b *Backend) ListTags(ctx context.Context, uuid values.Value) ([]string, error) {
	stmt := fmt.Sprintf(`SELECT "tag" FROM %q WHERE "uuid" = $1 ORDER BY "tag"`, b.dialect.tableName("tag"))
	rows, err := b.q(ctx).Query(ctx, stmt, litArg(uuid))
	if err != nil {
		return nil, muninnerr.NewBackendError("postgres.list_tags", err)
	}
	defer rows.Close()
	var tags []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, muninnerr.NewBackendError("postgres.list_tags", err)
		}
		tags = append(tags, t)
	}
	return tags, nil
}

func (b *Backend) DerivedOf(ctx context.Context, uuid values.Value) ([]values.Value, error) {
	return b.linkQuery(ctx, `SELECT "target" FROM %q WHERE "source" = $1`, uuid)
}

func (b *Backend) SourcesOf(ctx context.Context, uuid values.Value) ([]values.Value, error) {
	return b.linkQuery(ctx, `SELECT "source" FROM %q WHERE "target" = $1`, uuid)
}

func (b *Backend) linkQuery(ctx context.Context, tmpl string, uuid values.Value) ([]values.Value, error) {
	stmt := fmt.Sprintf(tmpl, b.dialect.tableName("link"))
	rows, err := b.q(ctx).Query(ctx, stmt, litArg(uuid))
	if err != nil {
		return nil, muninnerr.NewBackendError("postgres.link_query", err)
	}
	defer rows.Close()
	var out []values.Value
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, muninnerr.NewBackendError("postgres.link_query", err)
		}
		u, err := values.ParseUUID(s)
		if err != nil {
			return nil, muninnerr.NewBackendError("postgres.link_query", err)
		}
		out = append(out, values.NewUUID(u))
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "SQLSTATE 23505")
}
