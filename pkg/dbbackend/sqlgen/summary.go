package sqlgen

import (
	"fmt"

	"github.com/stcorp/muninn/pkg/schema"
	"github.com/stcorp/muninn/pkg/values"
)

// AggregateSpec is one requested summary() aggregate column (§4.8),
// expressed against a schema field rather than a concrete backend row.
type AggregateSpec struct {
	Func  string // "min", "max", "sum", "avg"
	Field string // dotted "namespace.attribute", or "core.validity_duration"
	Alias string
}

// GroupBySpec is one requested summary() grouping key; Subscript bins
// a Timestamp field (year/month/yearmonth/date/day/hour/minute/second/
// time) and is empty for every other kind.
type GroupBySpec struct {
	Field     string
	Subscript string
	Alias     string
}

// ValidityDuration is the synthetic core.validity_duration aggregate
// field (§4.8): validity_stop - validity_start, not itself a declared
// schema field.
const ValidityDuration = "core.validity_duration"

var aggregateFuncsByKind = map[values.Kind][]string{
	values.KindInteger:   {"min", "max", "sum", "avg"},
	values.KindLong:      {"min", "max", "sum", "avg"},
	values.KindReal:      {"min", "max", "sum", "avg"},
	values.KindText:      {"min", "max"},
	values.KindTimestamp: {"min", "max"},
}

// validityDurationFuncs are the functions allowed on the synthesized
// validity_duration column (a Real, but with no schema Kind of its
// own to key aggregateFuncsByKind by).
var validityDurationFuncs = []string{"min", "max", "sum", "avg"}

var groupBySubscriptsByKind = map[values.Kind][]string{
	values.KindBoolean:   {""},
	values.KindInteger:   {""},
	values.KindLong:      {""},
	values.KindText:      {""},
	values.KindTimestamp: {"year", "month", "yearmonth", "date", "day", "hour", "minute", "second", "time"},
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// ValidateAggregate reports whether fn is a legal aggregate function
// for a field of kind, or for the synthesized validity_duration column
// when isValidityDuration is true.
func ValidateAggregate(kind values.Kind, isValidityDuration bool, fn string) error {
	allowed := validityDurationFuncs
	if !isValidityDuration {
		allowed = aggregateFuncsByKind[kind]
	}
	if !contains(allowed, fn) {
		return fmt.Errorf("sqlgen: aggregate function %q is not allowed here (allowed: %v)", fn, allowed)
	}
	return nil
}

// ValidateGroupBy reports whether subscript is legal for a group_by
// field of kind.
func ValidateGroupBy(kind values.Kind, subscript string) error {
	allowed, ok := groupBySubscriptsByKind[kind]
	if !ok {
		return fmt.Errorf("sqlgen: values of kind %s cannot be used in group_by", kind)
	}
	if !contains(allowed, subscript) {
		return fmt.Errorf("sqlgen: group_by subscript %q is not allowed for this field (allowed: %v)", subscript, allowed)
	}
	return nil
}

// AggregateResultKind returns the Kind the column fn(field) is
// returned as: min/max preserve the underlying kind, sum/avg promote
// Integer to Long and always yield Real for avg.
func AggregateResultKind(kind values.Kind, isValidityDuration bool, fn string) values.Kind {
	if isValidityDuration {
		return values.KindReal
	}
	switch fn {
	case "avg":
		return values.KindReal
	case "sum":
		if kind == values.KindInteger {
			return values.KindLong
		}
		return kind
	default: // min, max
		return kind
	}
}

// GroupByResultKind returns the Kind a group_by column is returned as:
// the field's own kind when there's no subscript, Integer for the
// numeric timestamp bins and Text for the composite ones.
func GroupByResultKind(kind values.Kind, subscript string) values.Kind {
	switch subscript {
	case "":
		return kind
	case "year", "month", "day", "hour", "minute", "second":
		return values.KindInteger
	case "yearmonth", "date", "time":
		return values.KindText
	default:
		return kind
	}
}

// SplitField splits a dotted "namespace.attribute" field reference
// into its namespace and attribute parts; a bare attribute implies
// core (§4.4 "Property reference ns.field or field (implicit core)").
func SplitField(field string) (namespace, attribute string) {
	for i := 0; i < len(field); i++ {
		if field[i] == '.' {
			return field[:i], field[i+1:]
		}
	}
	return schema.CoreName, field
}
