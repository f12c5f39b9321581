package sqlgen

import "github.com/stcorp/muninn/pkg/values"

// GoValue unwraps a values.Value into the Go type its database driver
// expects as a bind parameter. Geometry and JSON are bound as their
// textual (WKT / canonical JSON) form; every scalar driver in this
// pack (pgx, modernc.org/sqlite) accepts that directly. Backends use
// this directly when binding values outside of a Lower() call (insert
// and update statements, link/tag keys).
func GoValue(v values.Value) any {
	switch v.Kind {
	case values.KindBoolean:
		b, _ := v.Boolean()
		return b
	case values.KindInteger:
		i, _ := v.Integer()
		return i
	case values.KindLong:
		l, _ := v.Long()
		return l
	case values.KindReal:
		r, _ := v.Real()
		return r
	case values.KindText:
		t, _ := v.Text()
		return t
	case values.KindTimestamp:
		ts, _ := v.TimestampValue()
		return int64(ts)
	case values.KindUUID:
		u, _ := v.UUIDValue()
		return u.String()
	case values.KindGeometry:
		g, _ := v.GeometryValue()
		return g.AsWKT(true)
	case values.KindJSON:
		j, _ := v.JSONValue()
		return j
	default:
		return nil
	}
}
