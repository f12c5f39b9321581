// Package muninnerr defines the closed error taxonomy shared by every
// archive component. Each concrete error type wraps a sentinel base error
// so callers can test with errors.Is/errors.As without depending on the
// wrapper's exact shape.
package muninnerr

import (
	"errors"
	"fmt"
)

// Sentinel base errors. Components never return these directly; they
// wrap them in one of the *Error structs below so context travels with
// the error.
var (
	ErrConfig     = errors.New("configuration error")
	ErrSchema     = errors.New("schema error")
	ErrExpression = errors.New("expression error")
	ErrConflict   = errors.New("conflict")
	ErrNotFound   = errors.New("not found")
	ErrState      = errors.New("invalid state")
	ErrStorage    = errors.New("storage error")
	ErrBackend    = errors.New("backend error")
	ErrPlugin     = errors.New("plugin error")
)

// taxonomyError is the common shape behind every exported *Error type;
// it is never used directly outside this file.
type taxonomyError struct {
	base    error
	Op      string
	Cause   error
	Context map[string]any
}

func (e *taxonomyError) Error() string {
	msg := e.base.Error()
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, msg)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if len(e.Context) > 0 {
		msg = fmt.Sprintf("%s (context: %v)", msg, e.Context)
	}
	return msg
}

func (e *taxonomyError) Unwrap() error { return e.Cause }

func (e *taxonomyError) Is(target error) bool {
	if errors.Is(target, e.base) {
		return true
	}
	return e.Cause != nil && errors.Is(e.Cause, target)
}

func newTaxonomyError(base error, op string, cause error) *taxonomyError {
	return &taxonomyError{base: base, Op: op, Cause: cause}
}

// ConfigError wraps invalid or missing configuration, or an extension
// that could not be resolved.
type ConfigError struct{ *taxonomyError }

func NewConfigError(op string, cause error) *ConfigError {
	return &ConfigError{newTaxonomyError(ErrConfig, op, cause)}
}

// SchemaError wraps an invalid namespace definition or field reference.
type SchemaError struct{ *taxonomyError }

func NewSchemaError(op string, cause error) *SchemaError {
	return &SchemaError{newTaxonomyError(ErrSchema, op, cause)}
}

// ExpressionError wraps a lex/parse/type/parameter failure in the query
// language. Position, when known, is a 1-based character offset.
type ExpressionError struct {
	*taxonomyError
	Position int
}

func NewExpressionError(op string, position int, cause error) *ExpressionError {
	e := &ExpressionError{taxonomyError: newTaxonomyError(ErrExpression, op, cause), Position: position}
	return e
}

func (e *ExpressionError) Error() string {
	if e.Position > 0 {
		return fmt.Sprintf("char %d: %s", e.Position, e.taxonomyError.Error())
	}
	return e.taxonomyError.Error()
}

// ConflictError wraps a unique-constraint violation in the catalogue:
// (type,name), (archive_path,physical_name), or uuid.
type ConflictError struct {
	*taxonomyError
	Field string
}

func NewConflictError(op, field string, cause error) *ConflictError {
	return &ConflictError{newTaxonomyError(ErrConflict, op, cause), field}
}

// NotFoundError wraps a lookup by UUID/name/properties that yielded
// nothing.
type NotFoundError struct {
	*taxonomyError
	ResourceType string
	ResourceName string
}

func NewNotFoundError(resourceType, resourceName string) *NotFoundError {
	return &NotFoundError{newTaxonomyError(ErrNotFound, "", nil), resourceType, resourceName}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.ResourceType, e.ResourceName)
}

// StateError wraps an operation refused because of product state: an
// active=false product without force, strip without archive_path,
// attach onto a product that already has bytes.
type StateError struct{ *taxonomyError }

func NewStateError(op string, cause error) *StateError {
	return &StateError{newTaxonomyError(ErrState, op, cause)}
}

// StorageError wraps a storage backend I/O failure, a hash mismatch on
// verify, or a remote fetch failure.
type StorageError struct{ *taxonomyError }

func NewStorageError(op string, cause error) *StorageError {
	return &StorageError{newTaxonomyError(ErrStorage, op, cause)}
}

// BackendError wraps a database-level failure not modelled by a more
// specific taxonomy member.
type BackendError struct{ *taxonomyError }

func NewBackendError(op string, cause error) *BackendError {
	return &BackendError{newTaxonomyError(ErrBackend, op, cause)}
}

// PluginError wraps a plug-in that raised, returned incompatible data,
// or was missing a mandatory attribute. Any foreign (non-taxonomy)
// error surfacing from a plug-in call must be wrapped as a PluginError
// at the call site.
type PluginError struct {
	*taxonomyError
	PluginName string
}

func NewPluginError(pluginName, op string, cause error) *PluginError {
	return &PluginError{newTaxonomyError(ErrPlugin, op, cause), pluginName}
}

// Wrap wraps err with the given taxonomy base error unless it is
// already one of the taxonomy types, in which case it is returned
// unchanged (mirrors the no-double-wrap rule used across the archive).
func Wrap(base error, op string, err error) error {
	if err == nil {
		return nil
	}
	for _, b := range []error{ErrConfig, ErrSchema, ErrExpression, ErrConflict, ErrNotFound, ErrState, ErrStorage, ErrBackend, ErrPlugin} {
		if errors.Is(err, b) {
			return err
		}
	}
	return newTaxonomyError(base, op, err)
}

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err is, or wraps, a ConflictError.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsState reports whether err is, or wraps, a StateError.
func IsState(err error) bool { return errors.Is(err, ErrState) }
