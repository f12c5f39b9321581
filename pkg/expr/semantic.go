package expr

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/stcorp/muninn/pkg/schema"
	"github.com/stcorp/muninn/pkg/values"
)

// Analyzer resolves names against a live schema registry, substitutes
// parameter references, and assigns a Type to every node, producing
// the typed AST a database backend lowers to SQL. having selects the
// Identifier resolution rules used inside summary()'s having clause,
// where bare "count"/"tag" and timestamp-binning subscripts are valid
// (§4.8 Summary).
type Analyzer struct {
	Schemas    *schema.Registry
	Parameters map[string]values.Value
	Having     bool

	// usedParameters records every @name the walk actually bound, the
	// "free-parameter report" §4.4 promises callers.
	usedParameters map[string]bool
}

// NewAnalyzer builds an analyzer over the given namespace registry and
// caller-supplied parameter bindings.
func NewAnalyzer(schemas *schema.Registry, parameters map[string]values.Value, having bool) *Analyzer {
	return &Analyzer{
		Schemas:        schemas,
		Parameters:     parameters,
		Having:         having,
		usedParameters: make(map[string]bool),
	}
}

// Analyze walks node in place, resolving names, parameters and
// function overloads, and returns the set of parameter names that
// were referenced.
func (a *Analyzer) Analyze(node Node) (map[string]bool, error) {
	if err := a.visit(node); err != nil {
		return nil, AsExpressionError("expr.analyze", err)
	}
	return a.usedParameters, nil
}

func (a *Analyzer) visit(node Node) error {
	switch n := node.(type) {
	case *Literal:
		k, err := literalType(n.Value)
		if err != nil {
			return err
		}
		n.setType(k)
		return nil
	case *Name:
		return a.visitName(n)
	case *List:
		return a.visitList(n)
	case *ParameterReference:
		return a.visitParameterReference(n)
	case *FunctionCall:
		return a.visitFunctionCall(n)
	default:
		return fmt.Errorf("unsupported abstract syntax tree node type: %T", node)
	}
}

func literalType(v values.Value) (Type, error) {
	t := FromKind(v.Kind)
	if t == TypeInvalid {
		return TypeInvalid, fmt.Errorf("unable to determine type of literal value: %v", v)
	}
	return t, nil
}

func (a *Analyzer) visitName(n *Name) error {
	if a.Having {
		id, err := resolveIdentifier(n.Value, a.Schemas)
		if err != nil {
			return err
		}
		n.Namespace = id.Namespace
		n.Field = id.Identifier
		n.setType(id.Type)
		return nil
	}

	parts := strings.Split(n.Value, ".")

	var namespace, field string
	switch len(parts) {
	case 1:
		if a.Schemas.Has(parts[0]) {
			namespace, field = parts[0], ""
		} else {
			namespace, field = schema.CoreName, parts[0]
		}
	case 2:
		namespace, field = parts[0], parts[1]
	default:
		return fmt.Errorf("invalid property name: %q", n.Value)
	}

	ns, err := a.Schemas.Get(namespace)
	if err != nil {
		return fmt.Errorf("undefined namespace: %q", namespace)
	}

	if field == "" {
		n.Namespace = namespace
		n.Field = ""
		n.Value = namespace
		n.setType(TypeNamespace)
		return nil
	}

	f, ok := ns.Field(field)
	if !ok {
		return fmt.Errorf("undefined property: %q", n.Value)
	}
	n.Namespace = namespace
	n.Field = field
	n.Value = namespace + "." + field
	n.setType(FromKind(f.Kind))
	return nil
}

func (a *Analyzer) visitList(n *List) error {
	resolved := make([]values.Value, 0, len(n.Items))
	for _, item := range n.Items {
		lit, ok := item.(*Literal)
		if !ok {
			return fmt.Errorf("list contains non-literal")
		}
		if err := a.visit(lit); err != nil {
			return err
		}
		resolved = append(resolved, lit.Value)
	}
	n.Resolved = resolved
	n.setType(TypeSequence)
	return nil
}

func (a *Analyzer) visitParameterReference(n *ParameterReference) error {
	v, ok := a.Parameters[n.Name]
	if !ok {
		return fmt.Errorf("no value for parameter: %q", n.Name)
	}
	t, err := literalType(v)
	if err != nil {
		return err
	}
	n.Resolved = v
	n.setType(t)
	a.usedParameters[n.Name] = true
	return nil
}

func (a *Analyzer) visitFunctionCall(n *FunctionCall) error {
	argTypes := make([]Type, len(n.Arguments))
	for i, arg := range n.Arguments {
		if err := a.visit(arg); err != nil {
			return err
		}
		argTypes[i] = arg.Type()
	}

	candidates := globalFunctionTable.Resolve(n.Name, argTypes)
	if len(candidates) == 0 {
		return fmt.Errorf("undefined function: %s", (&Prototype{Name: n.Name, Arguments: argTypes}).id())
	}
	if len(candidates) > 1 {
		return fmt.Errorf("cannot uniquely resolve function: %s", n.Name)
	}
	p := candidates[0]
	n.Prototype = &p
	n.setType(p.ReturnType)
	return nil
}

// Identifier resolves the having-clause / group-by identifier grammar
// (§4.8): bare "count" and "tag", the usual ns.field form, and a
// trailing subscript used for timestamp binning
// (.year/.month/.yearmonth/.date/.day/.hour/.minute/.second/.time) or
// for per-aggregate disambiguation.
type Identifier struct {
	Canonical  string
	Namespace  string
	Identifier string
	Subscript  string
	Type       Type
}

var identifierPattern = regexp.MustCompile(`^\w+(\.\w+)+$`)

func resolveIdentifier(canonical string, schemas *schema.Registry) (*Identifier, error) {
	switch canonical {
	case "tag":
		return &Identifier{Canonical: canonical, Namespace: "tag", Identifier: "tag", Type: TypeText}, nil
	case "count":
		return &Identifier{Canonical: canonical, Namespace: "", Identifier: "count", Type: TypeLong}, nil
	}

	if !identifierPattern.MatchString(canonical) {
		return nil, fmt.Errorf("cannot resolve identifier: %q", canonical)
	}

	segments := strings.Split(canonical, ".")
	id := &Identifier{Canonical: canonical}

	switch len(segments) {
	case 1:
		id.Namespace = schema.CoreName
		id.Identifier = segments[0]
	case 2:
		if schemas.Has(segments[0]) {
			id.Namespace, id.Identifier = segments[0], segments[1]
		} else {
			id.Namespace = schema.CoreName
			id.Identifier, id.Subscript = segments[0], segments[1]
		}
	case 3:
		id.Namespace, id.Identifier, id.Subscript = segments[0], segments[1], segments[2]
	default:
		return nil, fmt.Errorf("cannot resolve identifier: %q", canonical)
	}

	if !schemas.Has(id.Namespace) {
		return nil, fmt.Errorf("undefined namespace: %q", id.Namespace)
	}
	ns, _ := schemas.Get(id.Namespace)

	propertyName := id.Namespace + "." + id.Identifier
	if !ns.HasField(id.Identifier) && propertyName != "core.validity_duration" {
		return nil, fmt.Errorf("no property %q defined within namespace %q", id.Identifier, id.Namespace)
	}

	if propertyName == "core.validity_duration" {
		id.Type = TypeReal
	} else {
		f, _ := ns.Field(id.Identifier)
		id.Type = FromKind(f.Kind)
	}
	return id, nil
}

// Resolve renders the canonical backend-facing reference for the
// identifier: "count"/"tag" unchanged, "ns.field" or "ns.field.sub".
func (id *Identifier) Resolve() string {
	if id.Canonical == "count" || id.Canonical == "tag" {
		return id.Canonical
	}
	if id.Subscript == "" {
		return id.Namespace + "." + id.Identifier
	}
	return id.Namespace + "." + id.Identifier + "." + id.Subscript
}
