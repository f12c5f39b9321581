package expr

import (
	"fmt"
	"strings"
)

// Prototype is one overload of an operator or named function: its
// name, the types of its arguments, and its return type.
type Prototype struct {
	Name       string
	Arguments  []Type
	ReturnType Type
}

func (p Prototype) id() string {
	parts := make([]string, len(p.Arguments))
	for i, a := range p.Arguments {
		parts[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", p.Name, strings.Join(parts, ","))
}

func (p Prototype) String() string { return p.id() }

// FunctionTable holds every overload the expression language supports
// and resolves a concrete argument-type tuple to the best-matching
// overload(s), the algorithm the source grammar's function table
// implements: an overload matches when every argument type either
// equals the declared type or is compatible through typeCompat;
// overloads with the most exact (non-compatible) matches win, and
// resolution is ambiguous if more than one overload ties for the lead.
type FunctionTable struct {
	byName map[string][]Prototype
}

// typeCompat mirrors the one domain-specific widening rule the
// language defines: a UUID value may stand in for a Boolean argument
// (§4.4 "UUIDs may be treated as booleans in predicates").
var typeCompat = map[Type]Type{
	TypeUUID: TypeBoolean,
}

func newFunctionTable() *FunctionTable {
	return &FunctionTable{byName: make(map[string][]Prototype)}
}

func (ft *FunctionTable) add(p Prototype) {
	ft.byName[p.Name] = append(ft.byName[p.Name], p)
}

// Resolve returns the best-matching overload(s) for name applied to
// the given argument types. Zero results means no overload matches;
// more than one means the call is ambiguous.
func (ft *FunctionTable) Resolve(name string, argTypes []Type) []Prototype {
	candidates := ft.byName[name]
	var top []Prototype
	topEqual := -1

	for _, c := range candidates {
		if len(c.Arguments) != len(argTypes) {
			continue
		}
		equal, compatible := 0, 0
		ok := true
		for i, want := range c.Arguments {
			got := argTypes[i]
			switch {
			case got == want:
				equal++
			case typeCompat[got] == want:
				compatible++
			default:
				ok = false
			}
			if !ok {
				break
			}
		}
		if !ok || equal+compatible != len(argTypes) {
			continue
		}
		if equal > topEqual {
			top = []Prototype{c}
			topEqual = equal
		} else if equal == topEqual {
			top = append(top, c)
		}
	}
	return top
}

// globalFunctionTable is the fixed operator/function catalogue (§4.4).
var globalFunctionTable = buildFunctionTable()

func buildFunctionTable() *FunctionTable {
	ft := newFunctionTable()
	b, i, l, r, tx, ts, u, g, seq := TypeBoolean, TypeInteger, TypeLong, TypeReal, TypeText, TypeTimestamp, TypeUUID, TypeGeometry, TypeSequence
	ns := TypeNamespace

	ft.add(Prototype{"not", []Type{b}, b})
	ft.add(Prototype{"and", []Type{b, b}, b})
	ft.add(Prototype{"or", []Type{b, b}, b})

	for _, t := range []Type{i, l, r, tx} {
		ft.add(Prototype{"in", []Type{t, seq}, b})
		ft.add(Prototype{"not in", []Type{t, seq}, b})
	}

	numeric := []Type{l, i, r}
	for _, lhs := range numeric {
		for _, rhs := range numeric {
			ft.add(Prototype{"==", []Type{lhs, rhs}, b})
			ft.add(Prototype{"!=", []Type{lhs, rhs}, b})
			ft.add(Prototype{"<", []Type{lhs, rhs}, b})
			ft.add(Prototype{">", []Type{lhs, rhs}, b})
			ft.add(Prototype{"<=", []Type{lhs, rhs}, b})
			ft.add(Prototype{">=", []Type{lhs, rhs}, b})
		}
	}
	for _, op := range []string{"==", "!=", "<", ">", "<=", ">="} {
		ft.add(Prototype{op, []Type{tx, tx}, b})
		ft.add(Prototype{op, []Type{ts, ts}, b})
	}
	for _, op := range []string{"==", "!="} {
		ft.add(Prototype{op, []Type{b, b}, b})
		ft.add(Prototype{op, []Type{u, u}, b})
	}
	ft.add(Prototype{"~=", []Type{tx, tx}, b})

	for _, t := range numeric {
		ft.add(Prototype{"+", []Type{t}, t})
		ft.add(Prototype{"-", []Type{t}, t})
	}
	arith := map[[2]Type]Type{
		{l, l}: l, {l, i}: l, {i, l}: l, {i, i}: i,
		{r, r}: r, {r, l}: r, {l, r}: r, {r, i}: r, {i, r}: r,
	}
	for _, op := range []string{"+", "-", "*", "/"} {
		for pair, ret := range arith {
			ft.add(Prototype{op, []Type{pair[0], pair[1]}, ret})
		}
	}
	ft.add(Prototype{"-", []Type{ts, ts}, r})

	ft.add(Prototype{"covers", []Type{g, g}, b})
	ft.add(Prototype{"covers", []Type{ts, ts, ts, ts}, b})
	ft.add(Prototype{"distance", []Type{g, g}, r})
	ft.add(Prototype{"intersects", []Type{g, g}, b})
	ft.add(Prototype{"intersects", []Type{ts, ts, ts, ts}, b})

	for _, t := range []Type{l, i, r, b, tx, ns, ts, u, g} {
		ft.add(Prototype{"is_defined", []Type{t}, b})
	}
	ft.add(Prototype{"is_source_of", []Type{u}, b})
	ft.add(Prototype{"is_source_of", []Type{b}, b})
	ft.add(Prototype{"is_derived_from", []Type{u}, b})
	ft.add(Prototype{"is_derived_from", []Type{b}, b})
	ft.add(Prototype{"has_tag", []Type{tx}, b})
	ft.add(Prototype{"now", []Type{}, ts})

	return ft
}
