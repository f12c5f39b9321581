package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/stcorp/muninn/pkg/dbbackend"
	"github.com/stcorp/muninn/pkg/dbbackend/sqlgen"
	"github.com/stcorp/muninn/pkg/schema"
	"github.com/stcorp/muninn/pkg/values"
)

func litArg(v values.Value) any { return sqlgen.GoValue(v) }

func insertRow(ctx context.Context, q execQuerier, table string, row map[string]values.Value) (values.Value, error) {
	uuid, ok := row["uuid"]
	if !ok {
		return values.Value{}, fmt.Errorf("insertRow: row missing uuid")
	}
	cols := make([]string, 0, len(row))
	placeholders := make([]string, 0, len(row))
	args := make([]any, 0, len(row))
	for col, v := range row {
		cols = append(cols, fmt.Sprintf("%q", col))
		placeholders = append(placeholders, "?")
		args = append(args, litArg(v))
	}
	stmt := fmt.Sprintf(`INSERT INTO %q (%s) VALUES (%s)`, table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	if _, err := q.ExecContext(ctx, stmt, args...); err != nil {
		return values.Value{}, err
	}
	return uuid, nil
}

// scanTypedRow fetches every column of one row by uuid and converts
// each raw driver value to its declared Kind per ns, rather than
// guessing a Kind from the driver's own loosely-typed return value
// (SQLite has no static column typing, so a naive driver-type switch
// cannot distinguish a Boolean 0/1 from a Long, or a stored UUID/
// Geometry/JSON string from plain Text).
func scanTypedRow(ctx context.Context, q execQuerier, table, uuid string, ns *schema.Namespace) (map[string]values.Value, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf(`SELECT * FROM %q WHERE "uuid" = ?`, table), uuid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if !rows.Next() {
		return nil, fmt.Errorf("scanTypedRow: no row for uuid %s in %s", uuid, table)
	}
	raw := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	out := make(map[string]values.Value, len(cols))
	for i, c := range cols {
		field, ok := ns.Field(c)
		if !ok {
			continue
		}
		v, err := typedValue(field.Kind, raw[i])
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c, err)
		}
		out[c] = v
	}
	return out, nil
}

// typedValue converts a driver-returned value to the Value of the
// given Kind; a nil raw value (an absent optional field) yields the
// zero Value, matching the container's IsDefined-false convention.
func typedValue(kind values.Kind, raw any) (values.Value, error) {
	if raw == nil {
		return values.Value{}, nil
	}
	switch kind {
	case values.KindBoolean:
		n, ok := asInt64(raw)
		if !ok {
			return values.Value{}, fmt.Errorf("expected integer for boolean column, got %T", raw)
		}
		return values.NewBoolean(n != 0), nil
	case values.KindInteger:
		n, ok := asInt64(raw)
		if !ok {
			return values.Value{}, fmt.Errorf("expected integer column, got %T", raw)
		}
		return values.NewInteger(int32(n)), nil
	case values.KindLong:
		n, ok := asInt64(raw)
		if !ok {
			return values.Value{}, fmt.Errorf("expected integer column, got %T", raw)
		}
		return values.NewLong(n), nil
	case values.KindReal:
		switch t := raw.(type) {
		case float64:
			return values.NewReal(t), nil
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
	case values.KindTimestamp:
		n, ok := asInt64(raw)
		if !ok {
			return values.Value{}, fmt.Errorf("expected integer timestamp column, got %T", raw)
		}
		return values.NewTimestamp(values.Timestamp(n)), nil
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
