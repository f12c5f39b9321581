// Package postgres implements the relational database backend (C5):
// PostgreSQL with PostGIS, connection pooling via pgxpool, `COLLATE
// "C"` text columns for deterministic ordering across locales, and a
// spatial index on every Geometry column, per §4.5.
package postgres

import (
	"fmt"

	"github.com/stcorp/muninn/pkg/dbbackend/ddl"
)

// dialect renders sqlgen output for PostgreSQL: numbered `$n`
// placeholders and native PostGIS geometry/interval functions.
type dialect struct {
	prefix string
}

func (d dialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }
func (d dialect) QuoteIdent(name string) string { return fmt.Sprintf("%q", name) }
func (d dialect) TableAlias(namespace string) string { return "t_" + namespace }
func (d dialect) LikeOperator() string { return "LIKE" }

func (d dialect) GeometryCovers(a, b string) string {
	return fmt.Sprintf("ST_Covers(%s::geography, %s::geography)", a, b)
}

func (d dialect) GeometryIntersects(a, b string) string {
	return fmt.Sprintf("ST_Intersects(%s::geography, %s::geography)", a, b)
}

func (d dialect) GeometryDistance(a, b string) string {
	return fmt.Sprintf("ST_Distance(%s::geography, %s::geography)", a, b)
}

func (d dialect) IntervalCovers(aStart, aStop, bStart, bStop string) string {
	return fmt.Sprintf("(%s <= %s AND %s >= %s)", aStart, bStart, aStop, bStop)
}

func (d dialect) IntervalIntersects(aStart, aStop, bStart, bStop string) string {
	return fmt.Sprintf("(%s <= %s AND %s >= %s)", aStart, bStop, aStop, bStart)
}

// Now() and TimestampDiff render against the Timestamp column
// representation this backend chose: BIGINT microseconds since the
// Unix epoch (values.Timestamp's own representation), not a native
// TIMESTAMP column. Storing the caller's own integer directly avoids
// a lossy round-trip through pgx's time.Time binding and keeps the
// wire representation identical to sqlite's.
func (d dialect) Now() string {
	return "(FLOOR(EXTRACT(EPOCH FROM clock_timestamp()) * 1000000))::BIGINT"
}

func (d dialect) TimestampDiff(a, b string) string {
	return fmt.Sprintf("((%s - %s) / 1000000.0)", a, b)
}

// tsExpr converts a BIGINT-microseconds column to a native timestamp
// for EXTRACT/TO_CHAR to operate on.
func (d dialect) tsExpr(column string) string {
	return fmt.Sprintf("(TO_TIMESTAMP(%s / 1000000.0) AT TIME ZONE 'UTC')", column)
}

func (d dialect) TimestampBin(subscript, column string) string {
	ts := d.tsExpr(column)
	switch subscript {
	case "year":
		return fmt.Sprintf("EXTRACT(YEAR FROM %s)::INTEGER", ts)
	case "month":
		return fmt.Sprintf("EXTRACT(MONTH FROM %s)::INTEGER", ts)
	case "day":
		return fmt.Sprintf("EXTRACT(DAY FROM %s)::INTEGER", ts)
	case "hour":
		return fmt.Sprintf("EXTRACT(HOUR FROM %s)::INTEGER", ts)
	case "minute":
		return fmt.Sprintf("EXTRACT(MINUTE FROM %s)::INTEGER", ts)
	case "second":
		return fmt.Sprintf("FLOOR(EXTRACT(SECOND FROM %s))::INTEGER", ts)
	case "yearmonth":
		return fmt.Sprintf("TO_CHAR(%s, 'YYYY-MM')", ts)
	case "date":
		return fmt.Sprintf("TO_CHAR(%s, 'YYYY-MM-DD')", ts)
	case "time":
		return fmt.Sprintf("TO_CHAR(%s, 'HH24:MI:SS')", ts)
	default:
		return column
	}
}

func (d dialect) tableName(namespace string) string { return ddl.TableName(d.prefix, namespace) }

// TableName exposes tableName to sqlgen.Dialect callers outside this
// package.
func (d dialect) TableName(namespace string) string { return d.tableName(namespace) }

var columnTypes = ddl.ColumnTypes{
	Boolean:   "BOOLEAN",
	Integer:   "INTEGER",
	Long:      "BIGINT",
	Real:      "DOUBLE PRECISION",
	Text:      "TEXT",
	Timestamp: "BIGINT",
	UUID:      "UUID",
	Geometry:  "GEOMETRY",
	JSON:      "JSONB",
}
