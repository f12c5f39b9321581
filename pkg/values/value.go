package values

import (
	"fmt"

	"github.com/google/uuid"
)

// Value is a dynamically-typed scalar carrying one of the nine kinds
// plus the Sequence pseudo-kind used by the expression language for
// list literals. It is the common currency between the property
// container (C3), the expression evaluator (C4) and the database
// backends (C5).
type Value struct {
	Kind Kind
	data any
}

func NewBoolean(b bool) Value           { return Value{Kind: KindBoolean, data: b} }
func NewInteger(v int32) Value          { return Value{Kind: KindInteger, data: v} }
func NewLong(v int64) Value             { return Value{Kind: KindLong, data: v} }
func NewReal(v float64) Value           { return Value{Kind: KindReal, data: v} }
func NewText(v string) Value            { return Value{Kind: KindText, data: v} }
func NewTimestamp(v Timestamp) Value    { return Value{Kind: KindTimestamp, data: v} }
func NewUUID(v uuid.UUID) Value         { return Value{Kind: KindUUID, data: v} }
func NewGeometry(v Geometry) Value      { return Value{Kind: KindGeometry, data: v} }
func NewJSON(v string) Value            { return Value{Kind: KindJSON, data: v} }
func NewSequence(items []Value) Value   { return Value{Kind: KindSequence, data: items} }

func (v Value) IsValid() bool { return v.Kind != KindInvalid }

func (v Value) Boolean() (bool, bool)       { b, ok := v.data.(bool); return b, ok }
func (v Value) Integer() (int32, bool)      { i, ok := v.data.(int32); return i, ok }
func (v Value) Long() (int64, bool)         { i, ok := v.data.(int64); return i, ok }
func (v Value) Real() (float64, bool)       { f, ok := v.data.(float64); return f, ok }
func (v Value) Text() (string, bool) {
	s, ok := v.data.(string)
	return s, ok && v.Kind == KindText
}
func (v Value) TimestampValue() (Timestamp, bool) { t, ok := v.data.(Timestamp); return t, ok }
func (v Value) UUIDValue() (uuid.UUID, bool)      { u, ok := v.data.(uuid.UUID); return u, ok }
func (v Value) GeometryValue() (Geometry, bool)   { g, ok := v.data.(Geometry); return g, ok }
func (v Value) JSONValue() (string, bool) {
	s, ok := v.data.(string)
	return s, ok && v.Kind == KindJSON
}
func (v Value) Sequence() ([]Value, bool) { s, ok := v.data.([]Value); return s, ok }

// AsReal promotes any numeric kind to float64, the rule arithmetic
// expressions use to mix integer/long/real operands.
func (v Value) AsReal() (float64, bool) {
	switch v.Kind {
	case KindInteger:
		i, _ := v.Integer()
		return float64(i), true
	case KindLong:
		l, _ := v.Long()
		return float64(l), true
	case KindReal:
		return v.Real()
	default:
		return 0, false
	}
}

// String renders the value the way it would appear in a formatted
// expression or log line; it is not a storage format.
func (v Value) String() string {
	switch v.Kind {
	case KindBoolean:
		b, _ := v.Boolean()
		return FormatBoolean(b)
	case KindInteger:
		i, _ := v.Integer()
		return FormatInteger32(i)
	case KindLong:
		l, _ := v.Long()
		return FormatLong64(l)
	case KindReal:
		r, _ := v.Real()
		return FormatReal(r)
	case KindText:
		s, _ := v.Text()
		return s
	case KindTimestamp:
		t, _ := v.TimestampValue()
		return fmt.Sprintf("%d", int64(t))
	case KindUUID:
		u, _ := v.UUIDValue()
		return FormatUUID(u)
	case KindGeometry:
		g, _ := v.GeometryValue()
		return g.AsWKT(true)
	case KindJSON:
		s, _ := v.JSONValue()
		return s
	case KindSequence:
		items, _ := v.Sequence()
		parts := make([]string, len(items))
		for i, it := range items {
			parts[i] = it.String()
		}
		return fmt.Sprintf("%v", parts)
	default:
		return "<invalid>"
	}
}
