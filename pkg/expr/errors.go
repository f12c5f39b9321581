package expr

import (
	"fmt"

	"github.com/stcorp/muninn/pkg/muninnerr"
)

// SyntaxError is raised by the lexer and parser. Pos is a 1-based
// character offset into the source text, matching the "char %d: ..."
// convention the grammar's diagnostics use.
type SyntaxError struct {
	Pos     int
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("char %d: %s", e.Pos, e.Message)
}

// AsExpressionError wraps any parse/lex/semantic error in the taxonomy
// ExpressionError, preserving the character position when known.
func AsExpressionError(op string, err error) error {
	if err == nil {
		return nil
	}
	pos := 0
	if se, ok := err.(*SyntaxError); ok {
		pos = se.Pos
	}
	return muninnerr.NewExpressionError(op, pos, err)
}
