package expr

import "github.com/stcorp/muninn/pkg/values"

// Type is the semantic type assigned to an AST node. It extends
// values.Kind with Namespace, a pseudo-type that exists only inside
// the expression language: a bare namespace reference is valid solely
// as the argument to is_defined (§4.4).
type Type int

const (
	TypeInvalid Type = iota
	TypeBoolean
	TypeInteger
	TypeLong
	TypeReal
	TypeText
	TypeTimestamp
	TypeUUID
	TypeGeometry
	TypeJSON
	TypeSequence
	TypeNamespace
)

func (t Type) String() string {
	switch t {
	case TypeBoolean:
		return "boolean"
	case TypeInteger:
		return "integer"
	case TypeLong:
		return "long"
	case TypeReal:
		return "real"
	case TypeText:
		return "text"
	case TypeTimestamp:
		return "timestamp"
	case TypeUUID:
		return "uuid"
	case TypeGeometry:
		return "geometry"
	case TypeJSON:
		return "json"
	case TypeSequence:
		return "sequence"
	case TypeNamespace:
		return "namespace"
	default:
		return "invalid"
	}
}

// FromKind converts a value kind into its semantic-type counterpart.
func FromKind(k values.Kind) Type {
	switch k {
	case values.KindBoolean:
		return TypeBoolean
	case values.KindInteger:
		return TypeInteger
	case values.KindLong:
		return TypeLong
	case values.KindReal:
		return TypeReal
	case values.KindText:
		return TypeText
	case values.KindTimestamp:
		return TypeTimestamp
	case values.KindUUID:
		return TypeUUID
	case values.KindGeometry:
		return TypeGeometry
	case values.KindJSON:
		return TypeJSON
	case values.KindSequence:
		return TypeSequence
	default:
		return TypeInvalid
	}
}

// Kind converts back to values.Kind; TypeNamespace, which has no value
// representation, maps to values.KindInvalid.
func (t Type) Kind() values.Kind {
	switch t {
	case TypeBoolean:
		return values.KindBoolean
	case TypeInteger:
		return values.KindInteger
	case TypeLong:
		return values.KindLong
	case TypeReal:
		return values.KindReal
	case TypeText:
		return values.KindText
	case TypeTimestamp:
		return values.KindTimestamp
	case TypeUUID:
		return values.KindUUID
	case TypeGeometry:
		return values.KindGeometry
	case TypeJSON:
		return values.KindJSON
	case TypeSequence:
		return values.KindSequence
	default:
		return values.KindInvalid
	}
}
