// Package ddl builds the CREATE TABLE statements shared by the
// postgres and sqlite backends from a schema.Namespace, parameterized
// by the handful of column-type spellings the two dialects disagree
// on (geometry, JSON, autoincrement is never used -- uuid is always
// caller-supplied).
package ddl

import (
	"fmt"
	"strings"

	"github.com/stcorp/muninn/pkg/schema"
	"github.com/stcorp/muninn/pkg/values"
)

// ColumnTypes supplies the dialect-specific SQL type for the value
// kinds whose spelling differs between postgres and sqlite.
type ColumnTypes struct {
	Boolean  string
	Integer  string
	Long     string
	Real     string
	Text     string
	Timestamp string
	UUID     string
	Geometry string
	JSON     string
}

func (c ColumnTypes) forKind(k values.Kind) string {
	switch k {
	case values.KindBoolean:
		return c.Boolean
	case values.KindInteger:
		return c.Integer
	case values.KindLong:
		return c.Long
	case values.KindReal:
		return c.Real
	case values.KindText:
		return c.Text
	case values.KindTimestamp:
		return c.Timestamp
	case values.KindUUID:
		return c.UUID
	case values.KindGeometry:
		return c.Geometry
	case values.KindJSON:
		return c.JSON
	default:
		return c.Text
	}
}

// TableName returns the prefixed, unquoted table name for a namespace.
func TableName(prefix, namespace string) string {
	return fmt.Sprintf("%s%s", prefix, namespace)
}

// CreateTableSQL renders the CREATE TABLE IF NOT EXISTS statement for
// one namespace. The core table additionally gets the catalogue's
// uniqueness constraints (§5: `(type,name)` and `(archive_path,
// physical_name)`); extension namespaces get a uuid foreign key to
// core (declared by the caller's referential-integrity DDL, appended
// separately, since sqlite requires `PRAGMA foreign_keys` handling
// the backend owns).
func CreateTableSQL(ns *schema.Namespace, tableName string, types ColumnTypes, collateClause string) string {
	var cols []string
	for _, f := range ns.Fields() {
		col := fmt.Sprintf("%q %s", f.Name, types.forKind(f.Kind))
		if f.Kind == values.KindText && collateClause != "" {
			col += " " + collateClause
		}
		if !f.Optional {
			col += " NOT NULL"
		}
		if f.Name == "uuid" {
			col += " PRIMARY KEY"
		}
		cols = append(cols, col)
	}
	if ns.Name == schema.CoreName {
		cols = append(cols,
			`UNIQUE ("product_type", "product_name")`,
			`UNIQUE ("archive_path", "physical_name")`,
		)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %q (\n  %s\n)", tableName, strings.Join(cols, ",\n  "))
}

// IndexSQL renders the CREATE INDEX statements for every indexed field
// of ns, plus a spatial index for any Geometry-kind field (§4.5:
// "geometry columns get a spatial index").
func IndexSQL(ns *schema.Namespace, tableName string, spatialIndexSQL func(tableName, column string) string) []string {
	var stmts []string
	for _, f := range ns.Fields() {
		if f.Kind == values.KindGeometry {
			if spatialIndexSQL != nil {
				stmts = append(stmts, spatialIndexSQL(tableName, f.Name))
			}
			continue
		}
		if f.Indexed {
			idxName := fmt.Sprintf("idx_%s_%s", tableName, f.Name)
			stmts = append(stmts, fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %q ON %q (%q)`, idxName, tableName, f.Name))
		}
	}
	return stmts
}

// LinkTableSQL and TagTableSQL render the two catalogue-wide auxiliary
// tables (not namespace-scoped): the derivation graph and the tag
// list, both foreign-keyed to the core table's uuid.
func LinkTableSQL(coreTable, linkTable, uuidType string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
  "source" %s NOT NULL REFERENCES %q("uuid") ON DELETE CASCADE,
  "target" %s NOT NULL REFERENCES %q("uuid") ON DELETE CASCADE,
  PRIMARY KEY ("source", "target")
)`, linkTable, uuidType, coreTable, uuidType, coreTable)
}

func TagTableSQL(coreTable, tagTable, uuidType string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
  "uuid" %s NOT NULL REFERENCES %q("uuid") ON DELETE CASCADE,
  "tag" TEXT NOT NULL,
  PRIMARY KEY ("uuid", "tag")
)`, tagTable, uuidType, coreTable)
}
