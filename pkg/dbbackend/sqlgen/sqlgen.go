// Package sqlgen lowers a typed expr.Node into the SQL dialects the
// two database backends (postgres, sqlite) speak, per §4.4
// "Lowering. The typed AST is handed to the active database backend
// which rewrites it into its native query form." Both backends share
// this walker and differ only through the Dialect they supply.
package sqlgen

import (
	"fmt"
	"strings"

	"github.com/stcorp/muninn/pkg/expr"
	"github.com/stcorp/muninn/pkg/muninnerr"
	"github.com/stcorp/muninn/pkg/schema"
)

// Dialect isolates the handful of places postgres and sqlite disagree:
// parameter placeholders, identifier quoting, and the native spelling
// of geometry/interval functions.
type Dialect interface {
	// Placeholder returns the SQL text for the nth (1-based) bound
	// parameter.
	Placeholder(n int) string

	// QuoteIdent quotes a column or table identifier.
	QuoteIdent(name string) string

	// TableAlias returns the FROM-clause alias for a namespace table.
	TableAlias(namespace string) string

	// TableName returns the prefixed, unquoted table name backing a
	// namespace, or the fixed "link"/"tag" tables. Used by has_tag,
	// is_source_of and is_derived_from, which reference those tables
	// directly rather than through an alias the caller already joined.
	TableName(namespace string) string

	// LikeOperator returns the case-sensitive pattern-match operator
	// ("~=" lowers to this).
	LikeOperator() string

	// Covers/Intersects/Distance render the geometry predicates;
	// intervalCovers/intervalIntersects render the 4-timestamp form.
	GeometryCovers(a, b string) string
	GeometryIntersects(a, b string) string
	GeometryDistance(a, b string) string
	IntervalCovers(aStart, aStop, bStart, bStop string) string
	IntervalIntersects(aStart, aStop, bStart, bStop string) string

	// Now renders the zero-argument now() function.
	Now() string

	// TimestampDiff renders `a - b` between two Timestamp-typed
	// expressions as a Real number of seconds (§4.4).
	TimestampDiff(a, b string) string

	// TimestampBin renders column (a Timestamp expression) binned to
	// the given group_by subscript (year/month/yearmonth/date/day/
	// hour/minute/second/time), per §4.8.
	TimestampBin(subscript, column string) string
}

// Lowered is the result of lowering one expression: the SQL text
// (suitable for a WHERE clause) and its positional bind arguments, plus
// the set of namespaces the expression referenced so the caller can
// join in exactly the tables it needs.
type Lowered struct {
	SQL        string
	Args       []any
	Namespaces map[string]bool
}

// Lower renders node as a SQL boolean expression against dialect.
func Lower(node expr.Node, dialect Dialect) (*Lowered, error) {
	l := &lowerer{dialect: dialect, namespaces: map[string]bool{}}
	sql, err := l.render(node)
	if err != nil {
		return nil, muninnerr.Wrap(muninnerr.ErrExpression, "lower", err)
	}
	return &Lowered{SQL: sql, Args: l.args, Namespaces: l.namespaces}, nil
}

type lowerer struct {
	dialect    Dialect
	args       []any
	namespaces map[string]bool
}

func (l *lowerer) bind(v any) string {
	l.args = append(l.args, v)
	return l.dialect.Placeholder(len(l.args))
}

func (l *lowerer) render(node expr.Node) (string, error) {
	switch n := node.(type) {
	case *expr.Literal:
		return l.renderLiteral(n)
	case *expr.Name:
		return l.renderName(n)
	case *expr.ParameterReference:
		return l.bind(GoValue(n.Resolved)), nil
	case *expr.List:
		return l.renderList(n)
	case *expr.FunctionCall:
		return l.renderCall(n)
	default:
		return "", fmt.Errorf("sqlgen: unsupported node %T", node)
	}
}

func (l *lowerer) renderLiteral(n *expr.Literal) (string, error) {
	return l.bind(GoValue(n.Value)), nil
}

func (l *lowerer) renderName(n *expr.Name) (string, error) {
	if n.Field == "" {
		return "", fmt.Errorf("sqlgen: bare namespace reference %q cannot be lowered directly", n.Namespace)
	}
	l.namespaces[n.Namespace] = true
	return fmt.Sprintf("%s.%s", l.dialect.TableAlias(n.Namespace), l.dialect.QuoteIdent(n.Field)), nil
}

func (l *lowerer) renderList(n *expr.List) (string, error) {
	parts := make([]string, len(n.Resolved))
	for i, v := range n.Resolved {
		parts[i] = l.bind(GoValue(v))
	}
	return "(" + strings.Join(parts, ", ") + ")", nil
}

func (l *lowerer) renderCall(n *expr.FunctionCall) (string, error) {
	// has_tag, is_source_of and is_derived_from reach into the tag/link
	// tables directly instead of the joined namespace tables the
	// generic per-argument render below assumes, and the Boolean
	// overloads of is_source_of/is_derived_from take a correlated
	// sub-predicate whose namespace references must not leak into the
	// enclosing query's joins. Handle all three before that loop.
	switch n.Name {
	case "has_tag":
		return l.renderHasTag(n)
	case "is_source_of":
		return l.renderLink(n, "source", "target")
	case "is_derived_from":
		return l.renderLink(n, "target", "source")
	}

	args := make([]string, len(n.Arguments))
	for i, a := range n.Arguments {
		// is_defined(namespace) is the one call whose argument may be
		// a bare namespace reference; handle it before the generic
		// per-argument render, which rejects bare namespaces.
		if n.Name == "is_defined" {
			if name, ok := a.(*expr.Name); ok && name.Field == "" {
				l.namespaces[name.Namespace] = true
				return fmt.Sprintf("%s.uuid IS NOT NULL", l.dialect.TableAlias(name.Namespace)), nil
			}
		}
		s, err := l.render(a)
		if err != nil {
			return "", err
		}
		args[i] = s
	}

	switch n.Name {
	case "not":
		return fmt.Sprintf("(NOT %s)", args[0]), nil
	case "and":
		return fmt.Sprintf("(%s AND %s)", args[0], args[1]), nil
	case "or":
		return fmt.Sprintf("(%s OR %s)", args[0], args[1]), nil
	case "==":
		return l.renderNullAwareCompare(args[0], args[1], "="), nil
	case "!=":
		// p != x is true when p is NULL (§4.4 two-valued NULL coercion).
		return fmt.Sprintf("(%s IS DISTINCT FROM %s)", args[0], args[1]), nil
	case "<", ">", "<=", ">=":
		return fmt.Sprintf("(%s %s %s)", args[0], n.Name, args[1]), nil
	case "~=":
		return fmt.Sprintf("(%s %s %s)", args[0], l.dialect.LikeOperator(), args[1]), nil
	case "in":
		return fmt.Sprintf("(%s IN %s)", args[0], args[1]), nil
	case "not in":
		return fmt.Sprintf("(%s NOT IN %s)", args[0], args[1]), nil
	case "+":
		if len(args) == 1 {
			return fmt.Sprintf("(%s)", args[0]), nil
		}
		return fmt.Sprintf("(%s + %s)", args[0], args[1]), nil
	case "-":
		if len(args) == 1 {
			return fmt.Sprintf("(-%s)", args[0]), nil
		}
		if n.Prototype != nil && len(n.Prototype.Arguments) == 2 && n.Prototype.Arguments[0] == expr.TypeTimestamp && n.Prototype.Arguments[1] == expr.TypeTimestamp {
			return l.dialect.TimestampDiff(args[0], args[1]), nil
		}
		return fmt.Sprintf("(%s - %s)", args[0], args[1]), nil
	case "*":
		return fmt.Sprintf("(%s * %s)", args[0], args[1]), nil
	case "/":
		return fmt.Sprintf("(%s / %s)", args[0], args[1]), nil
	case "covers":
		if len(args) == 2 {
			return l.dialect.GeometryCovers(args[0], args[1]), nil
		}
		return l.dialect.IntervalCovers(args[0], args[1], args[2], args[3]), nil
	case "intersects":
		if len(args) == 2 {
			return l.dialect.GeometryIntersects(args[0], args[1]), nil
		}
		return l.dialect.IntervalIntersects(args[0], args[1], args[2], args[3]), nil
	case "distance":
		return l.dialect.GeometryDistance(args[0], args[1]), nil
	case "now":
		return l.dialect.Now(), nil
	default:
		return "", fmt.Errorf("sqlgen: unsupported function %q", n.Name)
	}
}

// renderNullAwareCompare renders == as ordinary SQL equality, so a
// comparison with NULL on either side never matches (distinct from the
// != NULL-is-true rule above).
func (l *lowerer) renderNullAwareCompare(a, b, op string) string {
	return fmt.Sprintf("(%s %s %s)", a, op, b)
}

// renderHasTag renders has_tag(text) as an EXISTS against the tag
// table scoped to the current product's uuid.
func (l *lowerer) renderHasTag(n *expr.FunctionCall) (string, error) {
	arg, err := l.render(n.Arguments[0])
	if err != nil {
		return "", err
	}
	coreAlias := l.dialect.TableAlias(schema.CoreName)
	return fmt.Sprintf("EXISTS (SELECT 1 FROM %s WHERE %s = %s.%s AND %s = %s)",
		l.dialect.QuoteIdent(l.dialect.TableName("tag")),
		l.dialect.QuoteIdent("uuid"), coreAlias, l.dialect.QuoteIdent("uuid"),
		l.dialect.QuoteIdent("tag"), arg,
	), nil
}

// renderLink renders is_source_of/is_derived_from (§4.4, GLOSSARY
// "Link"). selfCol is the link-table column that must equal the
// current product's uuid; argCol is the column compared against the
// function's argument. is_source_of passes ("source", "target");
// is_derived_from passes ("target", "source") — the two functions are
// mirror images of the same link relationship.
//
// The UUID overload renders a plain EXISTS. The Boolean overload takes
// a correlated sub-predicate over another product (e.g.
// `is_source_of(raster.cloud_cover < 10)`) and is rewritten into the
// equivalent membership subquery, grounded on the source project's
// own is_source_of_subquery/is_derived_from_subquery rewriters.
func (l *lowerer) renderLink(n *expr.FunctionCall, selfCol, argCol string) (string, error) {
	coreAlias := l.dialect.TableAlias(schema.CoreName)
	linkTable := l.dialect.QuoteIdent(l.dialect.TableName("link"))

	if n.Prototype.Arguments[0] == expr.TypeUUID {
		arg, err := l.render(n.Arguments[0])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("EXISTS (SELECT 1 FROM %s WHERE %s = %s.%s AND %s = %s)",
			linkTable, l.dialect.QuoteIdent(selfCol), coreAlias, l.dialect.QuoteIdent("uuid"),
			l.dialect.QuoteIdent(argCol), arg,
		), nil
	}

	// Boolean overload: render the sub-predicate with its own
	// namespace scope so the namespaces it references join inside the
	// subquery, not the enclosing query.
	saved := l.namespaces
	l.namespaces = map[string]bool{}
	predicate, err := l.render(n.Arguments[0])
	subNamespaces := l.namespaces
	l.namespaces = saved
	if err != nil {
		return "", err
	}

	// predicate was rendered with the ordinary t_<namespace> aliases
	// (renderName always calls dialect.TableAlias), so the subquery's
	// own FROM/JOIN must declare those exact same aliases for it to
	// resolve against them. SQL scopes a subquery's own FROM aliases
	// to itself, shadowing any identically-named alias the enclosing
	// query happens to use, so this is unambiguous even when the outer
	// WHERE also references the same namespace.
	innerAlias := l.dialect.TableAlias(schema.CoreName)
	linkAlias := l.dialect.TableAlias("link")
	var joins strings.Builder
	for ns := range subNamespaces {
		if ns == schema.CoreName {
			continue
		}
		alias := l.dialect.TableAlias(ns)
		fmt.Fprintf(&joins, " INNER JOIN %s AS %s ON %s.%s = %s.%s",
			l.dialect.QuoteIdent(l.dialect.TableName(ns)), alias,
			alias, l.dialect.QuoteIdent("uuid"), innerAlias, l.dialect.QuoteIdent("uuid"))
	}

	return fmt.Sprintf("%s.%s IN (SELECT %s.%s FROM %s AS %s%s INNER JOIN %s AS %s ON %s.%s = %s.%s WHERE %s)",
		coreAlias, l.dialect.QuoteIdent("uuid"),
		linkAlias, l.dialect.QuoteIdent(selfCol),
		l.dialect.QuoteIdent(l.dialect.TableName(schema.CoreName)), innerAlias,
		joins.String(),
		linkTable, linkAlias,
		linkAlias, l.dialect.QuoteIdent(argCol), innerAlias, l.dialect.QuoteIdent("uuid"),
		predicate,
	), nil
}
