// Package sqlite implements the embedded database backend (C5):
// SQLite via the pure-Go modernc.org/sqlite driver, with the
// mod_spatialite extension loaded at open time from a configurable
// library path for geometry predicates, and millisecond-capped
// timestamp-subtraction precision, documented in §4.4/§9 as a fact of
// this backend rather than a defect.
package sqlite

import (
	"fmt"

	"github.com/stcorp/muninn/pkg/dbbackend/ddl"
)

// dialect renders sqlgen output for SQLite: "?" placeholders and
// spatialite's ST_* function family (same names PostGIS uses, since
// spatialite was designed as a drop-in SQL surface for it).
type dialect struct {
	prefix string
}

func (d dialect) Placeholder(n int) string       { return "?" }
func (d dialect) QuoteIdent(name string) string  { return fmt.Sprintf("%q", name) }
func (d dialect) TableAlias(namespace string) string { return "t_" + namespace }
func (d dialect) LikeOperator() string           { return "LIKE" }

func (d dialect) GeometryCovers(a, b string) string {
	return fmt.Sprintf("ST_Covers(GeomFromText(%s), GeomFromText(%s))", a, b)
}

func (d dialect) GeometryIntersects(a, b string) string {
	return fmt.Sprintf("ST_Intersects(GeomFromText(%s), GeomFromText(%s))", a, b)
}

func (d dialect) GeometryDistance(a, b string) string {
	return fmt.Sprintf("ST_Distance(GeomFromText(%s), GeomFromText(%s))", a, b)
}

func (d dialect) IntervalCovers(aStart, aStop, bStart, bStop string) string {
	return fmt.Sprintf("(%s <= %s AND %s >= %s)", aStart, bStart, aStop, bStop)
}

func (d dialect) IntervalIntersects(aStart, aStop, bStart, bStop string) string {
	return fmt.Sprintf("(%s <= %s AND %s >= %s)", aStart, bStop, aStop, bStart)
}

// Now renders to milliseconds, not microseconds: SQLite's
// `strftime('%f', ...)` only resolves to 1/1000s, so this backend's
// now() and timestamp arithmetic are capped at millisecond precision
// by construction, the allowed exception §4.1/§9 document.
func (d dialect) Now() string {
	return "(CAST(STRFTIME('%s', 'now') AS INTEGER) * 1000000 + (STRFTIME('%f', 'now') - CAST(STRFTIME('%S', 'now') AS INTEGER)) * 1000000)"
}

func (d dialect) TimestampDiff(a, b string) string {
	// Round both operands down to whole milliseconds before
	// subtracting, capping precision exactly as §9 documents.
	return fmt.Sprintf("(((%s / 1000) - (%s / 1000)) * 1000 / 1000000.0)", a, b)
}

// secExpr converts an INTEGER-microseconds column to whole seconds
// since the epoch for strftime to operate on; sub-second precision is
// already capped per the Now()/TimestampDiff documentation above.
func (d dialect) secExpr(column string) string {
	return fmt.Sprintf("(%s / 1000000)", column)
}

func (d dialect) TimestampBin(subscript, column string) string {
	sec := d.secExpr(column)
	switch subscript {
	case "year":
		return fmt.Sprintf("CAST(STRFTIME('%%Y', %s, 'unixepoch') AS INTEGER)", sec)
	case "month":
		return fmt.Sprintf("CAST(STRFTIME('%%m', %s, 'unixepoch') AS INTEGER)", sec)
	case "day":
		return fmt.Sprintf("CAST(STRFTIME('%%d', %s, 'unixepoch') AS INTEGER)", sec)
	case "hour":
		return fmt.Sprintf("CAST(STRFTIME('%%H', %s, 'unixepoch') AS INTEGER)", sec)
	case "minute":
		return fmt.Sprintf("CAST(STRFTIME('%%M', %s, 'unixepoch') AS INTEGER)", sec)
	case "second":
		return fmt.Sprintf("CAST(STRFTIME('%%S', %s, 'unixepoch') AS INTEGER)", sec)
	case "yearmonth":
		return fmt.Sprintf("STRFTIME('%%Y-%%m', %s, 'unixepoch')", sec)
	case "date":
		return fmt.Sprintf("STRFTIME('%%Y-%%m-%%d', %s, 'unixepoch')", sec)
	case "time":
		return fmt.Sprintf("STRFTIME('%%H:%%M:%%S', %s, 'unixepoch')", sec)
	default:
		return column
	}
}

func (d dialect) tableName(namespace string) string { return ddl.TableName(d.prefix, namespace) }

// TableName exposes tableName to sqlgen.Dialect callers outside this
// package.
func (d dialect) TableName(namespace string) string { return d.tableName(namespace) }

var columnTypes = ddl.ColumnTypes{
	Boolean:   "INTEGER",
	Integer:   "INTEGER",
	Long:      "INTEGER",
	Real:      "REAL",
	Text:      "TEXT",
	Timestamp: "INTEGER",
	UUID:      "TEXT",
	Geometry:  "TEXT",
	JSON:      "TEXT",
}
