package values

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/google/uuid"
)

// ParseBoolean accepts the two canonical spellings used in literals and
// configuration ("true"/"false"); anything else is an error.
func ParseBoolean(s string) (bool, error) {
	switch s {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, &ErrInvalidLiteral{KindBoolean, s}
	}
}

func FormatBoolean(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// ParseInteger32 parses a signed 32-bit literal.
func ParseInteger32(s string) (int32, error) {
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, &ErrInvalidLiteral{KindInteger, s}
	}
	return int32(v), nil
}

func FormatInteger32(v int32) string { return strconv.FormatInt(int64(v), 10) }

// ParseLong64 parses a signed 64-bit literal.
func ParseLong64(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, &ErrInvalidLiteral{KindLong, s}
	}
	return v, nil
}

func FormatLong64(v int64) string { return strconv.FormatInt(v, 10) }

// ParseReal parses a 64-bit floating point literal, including the
// inf/-inf/nan spellings the expression grammar accepts.
func ParseReal(s string) (float64, error) {
	switch s {
	case "inf":
		return math.Inf(1), nil
	case "-inf":
		return math.Inf(-1), nil
	case "nan":
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &ErrInvalidLiteral{KindReal, s}
	}
	return v, nil
}

func FormatReal(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	case math.IsNaN(v):
		return "nan"
	default:
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
}

// ParseUUID parses a canonical hyphenated UUID literal.
func ParseUUID(s string) (uuid.UUID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.UUID{}, &ErrInvalidLiteral{KindUUID, s}
	}
	return u, nil
}

func FormatUUID(u uuid.UUID) string { return u.String() }

// ParseJSON validates s as a JSON document and returns it re-encoded in
// canonical (compact) form; the container stores the canonical form so
// that equal documents compare byte-equal.
func ParseJSON(s string) (string, error) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return "", &ErrInvalidLiteral{KindJSON, s}
	}
	out, err := json.Marshal(v)
	if err != nil {
		return "", &ErrInvalidLiteral{KindJSON, s}
	}
	return string(out), nil
}
