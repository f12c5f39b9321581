package expr

import (
	"fmt"
	"strings"

	"github.com/stcorp/muninn/pkg/values"
)

// Node is any abstract syntax tree node. Callers distinguish the
// concrete node types with a type switch; Type/setType carry the
// result of semantic analysis.
type Node interface {
	fmt.Stringer
	Type() Type
	setType(Type)
}

type base struct {
	kind Type
}

func (b *base) Type() Type     { return b.kind }
func (b *base) setType(k Type) { b.kind = k }

// Literal is a constant value produced directly by the lexer or by a
// WKT geometry literal.
type Literal struct {
	base
	Value values.Value
}

func (l *Literal) String() string { return fmt.Sprintf("(Literal %s)", l.Value.String()) }

// Name is an unresolved identifier; semantic analysis rewrites Value
// to its canonical "namespace.field" (or bare namespace) form.
type Name struct {
	base
	Value string

	// Resolved is populated by the semantic analyzer: the namespace and
	// field the name refers to, or field == "" if Value names a bare
	// namespace (valid only as the argument to is_defined).
	Namespace string
	Field     string
}

func (n *Name) String() string { return fmt.Sprintf("(Name %s)", n.Value) }

// List is a bracketed literal sequence, valid only as the right-hand
// side of in / not in.
type List struct {
	base
	Items []Node

	// Resolved holds the analyzed literal values once semantic analysis
	// has verified every element is a literal; the elements' kinds are
	// not checked against one another.
	Resolved []values.Value
}

func (l *List) String() string {
	parts := make([]string, len(l.Items))
	for i, it := range l.Items {
		parts[i] = it.String()
	}
	return fmt.Sprintf("(List %s)", strings.Join(parts, " "))
}

// ParameterReference is an @name placeholder bound from the caller's
// parameter map during semantic analysis.
type ParameterReference struct {
	base
	Name string

	Resolved values.Value
}

func (p *ParameterReference) String() string { return fmt.Sprintf("(ParameterReference %s)", p.Name) }

// FunctionCall is an operator application or named function call; all
// infix/prefix operators (+, -, ==, and, or, not, in, ...) are
// represented uniformly as FunctionCall nodes, exactly as the grammar
// the parser implements does.
type FunctionCall struct {
	base
	Name      string
	Arguments []Node

	// Prototype is the resolved overload, set by semantic analysis.
	Prototype *Prototype
}

func (f *FunctionCall) String() string {
	if len(f.Arguments) == 0 {
		return fmt.Sprintf("(FunctionCall %s)", f.Name)
	}
	parts := make([]string, len(f.Arguments))
	for i, a := range f.Arguments {
		parts[i] = a.String()
	}
	return fmt.Sprintf("(FunctionCall %s %s)", f.Name, strings.Join(parts, " "))
}
