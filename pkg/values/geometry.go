package values

import (
	"fmt"
	"strconv"
	"strings"
)

// Geometry is any of the six WGS84 2-D shapes the archive stores:
// Point, LineString, Polygon and their Multi* collections. All
// implementations are immutable values and format themselves as WKT
// via AsWKT; only Point is comparable with ==, the others hold slices.
type Geometry interface {
	AsWKT(tagged bool) string
	geometryTag() string
}

// Point is a single (longitude, latitude) pair. X is longitude, Y is
// latitude, matching the source implementation's axis order.
type Point struct {
	X, Y float64
}

func (p Point) geometryTag() string { return "POINT" }

func (p Point) AsWKT(tagged bool) string {
	body := fmt.Sprintf("(%s)", formatCoord(p.X, p.Y))
	if tagged {
		return p.geometryTag() + " " + body
	}
	return body
}

func formatCoord(x, y float64) string {
	return fmt.Sprintf("%f %f", x, y)
}

// LineString is an ordered sequence of points; with no points it is
// the WKT "LINESTRING EMPTY".
type LineString struct {
	Points []Point
}

func (l LineString) geometryTag() string { return "LINESTRING" }

func (l LineString) AsWKT(tagged bool) string {
	body := formatSequence(l.Points)
	if tagged {
		return l.geometryTag() + " " + body
	}
	return body
}

func formatSequence(points []Point) string {
	if len(points) == 0 {
		return "EMPTY"
	}
	parts := make([]string, len(points))
	for i, p := range points {
		parts[i] = formatCoord(p.X, p.Y)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// LinearRing is a LineString whose first and last point coincide and
// that has at least four points (§4.1 "ring-closure validation").
type LinearRing struct {
	Points []Point
}

func NewLinearRing(points []Point) (LinearRing, error) {
	if len(points) < 4 {
		return LinearRing{}, fmt.Errorf("linear ring requires at least 4 points, got %d", len(points))
	}
	if points[0] != points[len(points)-1] {
		return LinearRing{}, fmt.Errorf("linear ring is not closed: first point %v != last point %v", points[0], points[len(points)-1])
	}
	return LinearRing{Points: points}, nil
}

func (r LinearRing) AsWKT(tagged bool) string {
	return formatSequence(r.Points)
}

// Polygon is an exterior ring plus zero or more interior (hole) rings.
type Polygon struct {
	Exterior LinearRing
	Interior []LinearRing
}

func (p Polygon) geometryTag() string { return "POLYGON" }

func (p Polygon) AsWKT(tagged bool) string {
	var body string
	if len(p.Exterior.Points) == 0 && len(p.Interior) == 0 {
		body = "EMPTY"
	} else {
		rings := make([]string, 0, 1+len(p.Interior))
		rings = append(rings, p.Exterior.AsWKT(false))
		for _, h := range p.Interior {
			rings = append(rings, h.AsWKT(false))
		}
		body = "(" + strings.Join(rings, ", ") + ")"
	}
	if tagged {
		return p.geometryTag() + " " + body
	}
	return body
}

// MultiPoint is an unordered collection of points.
type MultiPoint struct {
	Points []Point
}

func (m MultiPoint) geometryTag() string { return "MULTIPOINT" }

func (m MultiPoint) AsWKT(tagged bool) string {
	body := formatSequence(m.Points)
	if tagged {
		return m.geometryTag() + " " + body
	}
	return body
}

// MultiLineString is a collection of LineStrings.
type MultiLineString struct {
	Lines []LineString
}

func (m MultiLineString) geometryTag() string { return "MULTILINESTRING" }

func (m MultiLineString) AsWKT(tagged bool) string {
	var body string
	if len(m.Lines) == 0 {
		body = "EMPTY"
	} else {
		parts := make([]string, len(m.Lines))
		for i, l := range m.Lines {
			parts[i] = l.AsWKT(false)
		}
		body = "(" + strings.Join(parts, ", ") + ")"
	}
	if tagged {
		return m.geometryTag() + " " + body
	}
	return body
}

// MultiPolygon is a collection of Polygons.
type MultiPolygon struct {
	Polygons []Polygon
}

func (m MultiPolygon) geometryTag() string { return "MULTIPOLYGON" }

func (m MultiPolygon) AsWKT(tagged bool) string {
	var body string
	if len(m.Polygons) == 0 {
		body = "EMPTY"
	} else {
		parts := make([]string, len(m.Polygons))
		for i, p := range m.Polygons {
			parts[i] = p.AsWKT(false)
		}
		body = "(" + strings.Join(parts, ", ") + ")"
	}
	if tagged {
		return m.geometryTag() + " " + body
	}
	return body
}

// ParseWKT parses a tagged WKT literal (e.g. "POINT (1.0 2.0)",
// "POLYGON EMPTY") into the matching Geometry implementation.
func ParseWKT(s string) (Geometry, error) {
	s = strings.TrimSpace(s)
	tag, rest, ok := strings.Cut(s, " ")
	if !ok {
		return nil, &ErrInvalidLiteral{KindGeometry, s}
	}
	tag = strings.ToUpper(strings.TrimSpace(tag))
	rest = strings.TrimSpace(rest)

	switch tag {
	case "POINT":
		if rest == "EMPTY" {
			return nil, &ErrInvalidLiteral{KindGeometry, s}
		}
		pts, err := parsePointSequence(rest)
		if err != nil || len(pts) != 1 {
			return nil, &ErrInvalidLiteral{KindGeometry, s}
		}
		return Point(pts[0]), nil
	case "LINESTRING":
		if rest == "EMPTY" {
			return LineString{}, nil
		}
		pts, err := parsePointSequence(rest)
		if err != nil {
			return nil, &ErrInvalidLiteral{KindGeometry, s}
		}
		return LineString{Points: pts}, nil
	case "POLYGON":
		if rest == "EMPTY" {
			return Polygon{}, nil
		}
		rings, err := parseRingSequence(rest)
		if err != nil || len(rings) == 0 {
			return nil, &ErrInvalidLiteral{KindGeometry, s}
		}
		ext, err := NewLinearRing(rings[0])
		if err != nil {
			return nil, &ErrInvalidLiteral{KindGeometry, s}
		}
		holes := make([]LinearRing, 0, len(rings)-1)
		for _, r := range rings[1:] {
			hole, err := NewLinearRing(r)
			if err != nil {
				return nil, &ErrInvalidLiteral{KindGeometry, s}
			}
			holes = append(holes, hole)
		}
		return Polygon{Exterior: ext, Interior: holes}, nil
	case "MULTIPOINT":
		if rest == "EMPTY" {
			return MultiPoint{}, nil
		}
		pts, err := parsePointSequence(rest)
		if err != nil {
			return nil, &ErrInvalidLiteral{KindGeometry, s}
		}
		return MultiPoint{Points: pts}, nil
	case "MULTILINESTRING":
		if rest == "EMPTY" {
			return MultiLineString{}, nil
		}
		rings, err := parseRingSequence(rest)
		if err != nil {
			return nil, &ErrInvalidLiteral{KindGeometry, s}
		}
		lines := make([]LineString, len(rings))
		for i, r := range rings {
			lines[i] = LineString{Points: r}
		}
		return MultiLineString{Lines: lines}, nil
	case "MULTIPOLYGON":
		if rest == "EMPTY" {
			return MultiPolygon{}, nil
		}
		groups, err := parsePolygonGroupSequence(rest)
		if err != nil {
			return nil, &ErrInvalidLiteral{KindGeometry, s}
		}
		polys := make([]Polygon, len(groups))
		for i, g := range groups {
			ext, err := NewLinearRing(g[0])
			if err != nil {
				return nil, &ErrInvalidLiteral{KindGeometry, s}
			}
			holes := make([]LinearRing, 0, len(g)-1)
			for _, r := range g[1:] {
				hole, err := NewLinearRing(r)
				if err != nil {
					return nil, &ErrInvalidLiteral{KindGeometry, s}
				}
				holes = append(holes, hole)
			}
			polys[i] = Polygon{Exterior: ext, Interior: holes}
		}
		return MultiPolygon{Polygons: polys}, nil
	default:
		return nil, &ErrInvalidLiteral{KindGeometry, s}
	}
}

// splitTopLevel splits s on commas that are not nested inside
// parentheses, the primitive every multi-ring/multi-group parser below
// is built on.
func splitTopLevel(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

func stripParens(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return "", false
	}
	return strings.TrimSpace(s[1 : len(s)-1]), true
}

func parsePointSequence(s string) ([]Point, error) {
	inner, ok := stripParens(s)
	if !ok {
		return nil, fmt.Errorf("expected parenthesized coordinate sequence")
	}
	if inner == "" {
		return nil, nil
	}
	parts := splitTopLevel(inner)
	pts := make([]Point, len(parts))
	for i, p := range parts {
		pt, err := parsePointLiteral(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		pts[i] = pt
	}
	return pts, nil
}

func parsePointLiteral(s string) (Point, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return Point{}, fmt.Errorf("expected two coordinates, got %q", s)
	}
	x, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return Point{}, err
	}
	y, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return Point{}, err
	}
	return Point{X: x, Y: y}, nil
}

func parseRingSequence(s string) ([][]Point, error) {
	inner, ok := stripParens(s)
	if !ok {
		return nil, fmt.Errorf("expected parenthesized ring sequence")
	}
	parts := splitTopLevel(inner)
	rings := make([][]Point, len(parts))
	for i, p := range parts {
		pts, err := parsePointSequence(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		rings[i] = pts
	}
	return rings, nil
}

func parsePolygonGroupSequence(s string) ([][][]Point, error) {
	inner, ok := stripParens(s)
	if !ok {
		return nil, fmt.Errorf("expected parenthesized polygon sequence")
	}
	parts := splitTopLevel(inner)
	groups := make([][][]Point, len(parts))
	for i, p := range parts {
		rings, err := parseRingSequence(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		groups[i] = rings
	}
	return groups, nil
}
