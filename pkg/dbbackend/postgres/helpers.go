package postgres

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/stcorp/muninn/pkg/dbbackend"
	"github.com/stcorp/muninn/pkg/dbbackend/sqlgen"
	"github.com/stcorp/muninn/pkg/schema"
	"github.com/stcorp/muninn/pkg/values"
)

func litArg(v values.Value) any { return sqlgen.GoValue(v) }

// insertRow builds and executes a parameterized INSERT ... RETURNING
// uuid statement for one namespace row, returning the uuid value the
// row was stored under (row["uuid"] is required to be present).
func insertRow(ctx context.Context, q querier, table string, row map[string]values.Value) (values.Value, error) {
	uuid, ok := row["uuid"]
	if !ok {
		return values.Value{}, fmt.Errorf("insertRow: row missing uuid")
	}
	cols := make([]string, 0, len(row))
	placeholders := make([]string, 0, len(row))
	args := make([]any, 0, len(row))
	i := 1
	for col, v := range row {
		cols = append(cols, fmt.Sprintf("%q", col))
		placeholders = append(placeholders, fmt.Sprintf("$%d", i))
		args = append(args, litArg(v))
		i++
	}
	stmt := fmt.Sprintf(`INSERT INTO %q (%s) VALUES (%s)`, table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	if _, err := q.Exec(ctx, stmt, args...); err != nil {
		return values.Value{}, err
	}
	return uuid, nil
}

// scanTypedRow fetches every column of one row by uuid and converts
// each raw driver value to its declared Kind per ns, rather than
// guessing a Kind from the driver's own returned Go type (pgx returns
// plain strings for UUID/GEOMETRY/JSONB columns here since no custom
// codecs are registered for them, indistinguishable from TEXT without
// consulting the namespace's declared Field.Kind).
func scanTypedRow(ctx context.Context, q querier, table, uuid string, ns *schema.Namespace) (map[string]values.Value, error) {
	rows, err := q.Query(ctx, fmt.Sprintf(`SELECT * FROM %q WHERE "uuid" = $1`, table), uuid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	fields := rows.FieldDescriptions()
	if !rows.Next() {
		return nil, fmt.Errorf("scanTypedRow: no row for uuid %s in %s", uuid, table)
	}
	raw := make([]any, len(fields))
	ptrs := make([]any, len(fields))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	out := make(map[string]values.Value, len(fields))
	for i, f := range fields {
		col := string(f.Name)
		field, ok := ns.Field(col)
		if !ok {
			continue
		}
		v, err := typedValue(field.Kind, raw[i])
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col, err)
		}
		out[col] = v
	}
	return out, nil
}

// typedValue converts a pgx-returned value to the Value of the given
// Kind; a nil raw value (an absent optional field) yields the zero
// Value, matching the container's IsDefined-false convention.
func typedValue(kind values.Kind, raw any) (values.Value, error) {
	if raw == nil {
		return values.Value{}, nil
	}
	switch kind {
	case values.KindBoolean:
		b, ok := raw.(bool)
		if !ok {
			return values.Value{}, fmt.Errorf("expected boolean column, got %T", raw)
		}
		return values.NewBoolean(b), nil
	case values.KindInteger:
		n, ok := asInt64(raw)
		if !ok {
			return values.Value{}, fmt.Errorf("expected integer column, got %T", raw)
		}
		return values.NewInteger(int32(n)), nil
	case values.KindLong, values.KindTimestamp:
		n, ok := asInt64(raw)
		if !ok {
			return values.Value{}, fmt.Errorf("expected integer column, got %T", raw)
		}
		if kind == values.KindTimestamp {
			return values.NewTimestamp(values.Timestamp(n)), nil
		}
		return values.NewLong(n), nil
	case values.KindReal:
		switch t := raw.(type) {
		case float64:
			return values.NewReal(t), nil
		case float32:
			return values.NewReal(float64(t)), nil
		default:
			n, ok := asInt64(raw)
			if !ok {
				return values.Value{}, fmt.Errorf("expected real column, got %T", raw)
			}
			return values.NewReal(float64(n)), nil
		}
	case values.KindText, values.KindJSON:
		s, ok := asString(raw)
		if !ok {
			return values.Value{}, fmt.Errorf("expected text column, got %T", raw)
		}
		if kind == values.KindJSON {
			return values.NewJSON(s), nil
		}
		return values.NewText(s), nil
	case values.KindUUID:
		s, ok := asString(raw)
		if !ok {
			return values.Value{}, fmt.Errorf("expected text uuid column, got %T", raw)
		}
		u, err := values.ParseUUID(s)
		if err != nil {
			return values.Value{}, err
		}
		return values.NewUUID(u), nil
	case values.KindGeometry:
		s, ok := asString(raw)
		if !ok {
			return values.Value{}, fmt.Errorf("expected text geometry column, got %T", raw)
		}
		g, err := values.ParseWKT(s)
		if err != nil {
			return values.Value{}, err
		}
		return values.NewGeometry(g), nil
	default:
		return values.Value{}, fmt.Errorf("unsupported column kind %s", kind)
	}
}

func asInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int32:
		return int64(t), true
	case float64:
		return int64(t), true
	default:
		return 0, false
	}
}

func asString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case []byte:
		return string(t), true
	default:
		return "", false
	}
}

var placeholderRE = regexp.MustCompile(`\$(\d+)`)

// renumberPlaceholders shifts every "$n" in sql up by offset, used
// when a statement's own SET-clause placeholders are bound before the
// WHERE clause's (whose Lower() output starts numbering at 1).
func renumberPlaceholders(sql string, offset int) string {
	return placeholderRE.ReplaceAllStringFunc(sql, func(m string) string {
		n := 0
		fmt.Sscanf(m[1:], "%d", &n)
		return fmt.Sprintf("$%d", n+offset)
	})
}

func renderOrderAndLimit(orderBy []dbbackend.OrderTerm, limit int, d dialect) string {
	var sb strings.Builder
	if len(orderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		parts := make([]string, len(orderBy))
		for i, t := range orderBy {
			dir := "ASC"
			if t.Descending {
				dir = "DESC"
			}
			parts[i] = fmt.Sprintf("%s.%s %s", d.TableAlias("core"), d.QuoteIdent(t.Key), dir)
		}
		sb.WriteString(strings.Join(parts, ", "))
	}
	if limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", limit)
	}
	return sb.String()
}
