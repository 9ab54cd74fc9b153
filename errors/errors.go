package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseReflect  Phase = "reflect"  // shape derivation
	PhaseBuild    Phase = "build"    // frame-stack navigation and assignment
	PhaseConvert  Phase = "convert"  // shape coercion
	PhaseFinalize Phase = "finalize" // completeness check and ownership transfer
)

// Kind categorizes the error
type Kind string

const (
	KindFieldNotFound    Kind = "field_not_found"
	KindVariantNotFound  Kind = "variant_not_found"
	KindNoActiveVariant  Kind = "no_active_variant"
	KindShapeMismatch    Kind = "shape_mismatch"
	KindConversionFailed Kind = "conversion_failed"
	KindNotInitialized   Kind = "not_initialized"
	KindUnsized          Kind = "unsized"
	KindOutOfBounds      Kind = "out_of_bounds"
	KindInvalidState     Kind = "invalid_state"
	KindUnsupported      Kind = "unsupported"
)

// Error is the structured error type used throughout shapekit
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	Expected string
	Actual   string
	Detail   string
	Path     []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Expected != "" || e.Actual != "" {
		b.WriteString(": ")
		if e.Expected != "" && e.Actual != "" {
			b.WriteString("expected ")
			b.WriteString(e.Expected)
			b.WriteString(", got ")
			b.WriteString(e.Actual)
		} else if e.Expected != "" {
			b.WriteString("expected ")
			b.WriteString(e.Expected)
		} else {
			b.WriteString("got ")
			b.WriteString(e.Actual)
		}
	}

	if e.Detail != "" {
		if e.Expected != "" || e.Actual != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Expected sets the expected shape name
func (b *Builder) Expected(s string) *Builder {
	b.err.Expected = s
	return b
}

// Actual sets the actual shape name
func (b *Builder) Actual(s string) *Builder {
	b.err.Actual = s
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// FieldNotFound creates an error for navigation into a nonexistent field
func FieldNotFound(path []string, shapeName, fieldName string) *Error {
	return &Error{
		Phase:  PhaseBuild,
		Kind:   KindFieldNotFound,
		Path:   path,
		Actual: shapeName,
		Detail: fmt.Sprintf("no field %q", fieldName),
	}
}

// VariantNotFound creates an error for selecting a nonexistent variant case
func VariantNotFound(path []string, shapeName, caseName string) *Error {
	return &Error{
		Phase:  PhaseBuild,
		Kind:   KindVariantNotFound,
		Path:   path,
		Actual: shapeName,
		Detail: fmt.Sprintf("no case %q", caseName),
	}
}

// NoActiveVariant creates an error for field access before a case is selected
func NoActiveVariant(path []string, shapeName string) *Error {
	return &Error{
		Phase:  PhaseBuild,
		Kind:   KindNoActiveVariant,
		Path:   path,
		Actual: shapeName,
		Detail: "no variant case selected",
	}
}

// ShapeMismatch creates an error naming the expected and actual shapes
func ShapeMismatch(path []string, expected, actual string) *Error {
	return &Error{
		Phase:    PhaseBuild,
		Kind:     KindShapeMismatch,
		Path:     path,
		Expected: expected,
		Actual:   actual,
	}
}

// ConversionFailed creates an error for a conversion that was attempted and refused
func ConversionFailed(path []string, from, to, reason string) *Error {
	return &Error{
		Phase:    PhaseConvert,
		Kind:     KindConversionFailed,
		Path:     path,
		Expected: to,
		Actual:   from,
		Detail:   reason,
	}
}

// NotFullyInitialized creates an error naming the fields still missing
func NotFullyInitialized(shapeName string, missing []string) *Error {
	return &Error{
		Phase:  PhaseFinalize,
		Kind:   KindNotInitialized,
		Actual: shapeName,
		Detail: fmt.Sprintf("missing %s", strings.Join(missing, ", ")),
	}
}

// Unsized creates an error for allocating a shape with no constructible layout
func Unsized(shapeName string) *Error {
	return &Error{
		Phase:  PhaseBuild,
		Kind:   KindUnsized,
		Actual: shapeName,
		Detail: "shape is not directly constructible",
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(path []string, index, length int) *Error {
	return &Error{
		Phase:  PhaseBuild,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// InvalidState creates an error for an operation issued in the wrong builder state
func InvalidState(detail string) *Error {
	return &Error{
		Phase:  PhaseBuild,
		Kind:   KindInvalidState,
		Detail: detail,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
