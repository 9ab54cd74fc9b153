package shape

import (
	"reflect"
	"strings"
	"unicode"
	"unsafe"
)

// unitSentinel provides a stable non-nil address for zero-size values.
// Avoids use-after-free from stack-allocated sentinels.
var unitSentinel byte

func UnitPtr() unsafe.Pointer {
	return unsafe.Pointer(&unitSentinel)
}

// Shape is a runtime descriptor of a type's layout and operations. Shapes are
// produced by a Registry, are immutable once derived, and live for the whole
// program; builders hold only borrowed references into them.
//
// Identity is pointer identity: a Registry returns the same *Shape for the
// same type every time.
type Shape struct {
	// Type is the Go type this shape describes. Nil only for declared-opaque
	// shapes with no constructible layout.
	Type reflect.Type

	Name string
	Kind Kind

	Size  uintptr
	Align uintptr

	// Fields is the ordered direct field table for KindStruct.
	Fields []Field

	// Cases is the variant table for KindVariant, in discriminant order.
	Cases []Case

	// Elem is the element shape for KindSlice and KindArray, and the payload
	// shape for KindOption.
	Elem *Shape

	// Key and Value are set for KindMap.
	Key   *Shape
	Value *Shape

	// Interior is the wrapped value's shape for KindPointer.
	Interior *Shape

	// Inner is set for transparent single-field wrappers: a value of the
	// inner shape may be assigned directly and is converted in place.
	Inner *Shape

	// ArrayLen is the fixed length for KindArray.
	ArrayLen int

	Ops Ops

	// boxLay caches cell field offsets for Box and Weak shapes.
	boxLay *boxLayout
}

// Field describes one direct field of a struct shape.
type Field struct {
	Shape  *Shape
	Name   string
	Index  int
	Offset uintptr
}

// Case describes one arm of a variant shape. The Go representation follows
// the one-pointer-field-per-case convention: exactly one case field is
// non-nil at a time, and the discriminant is the field's declaration index.
type Case struct {
	// Payload is the shape behind the case's pointer field. Zero-size
	// payloads make the case a unit case.
	Payload *Shape

	Name string

	// Discriminant is the case's position in declaration order.
	Discriminant int

	// Offset is the byte offset of the case's pointer field.
	Offset uintptr
}

// Ops is the operation table consumed by the partial builder. Entries are
// nil when the shape has no use for them; callers must check.
type Ops struct {
	// Drop destroys a fully initialized value in place. Nil when the shape
	// holds nothing that needs destruction.
	Drop func(ptr unsafe.Pointer)

	// Default writes the shape's default value over uninitialized memory.
	Default func(ptr unsafe.Pointer)

	// ConvertFrom builds a value of this shape at dst from a value of shape
	// from at src. Returns a conversion error if the value does not fit.
	ConvertFrom func(dst, src unsafe.Pointer, from *Shape) error

	// Push appends elem to the slice at list, taking logical ownership of
	// the element's bytes.
	Push func(list, elem unsafe.Pointer)

	// Insert adds the key/value pair to the map at m, taking ownership of
	// both.
	Insert func(m, key, val unsafe.Pointer)

	// InitPresent initializes the option at opt as present with the payload
	// bytes, taking ownership.
	InitPresent func(opt, payload unsafe.Pointer)

	// Wrap builds the smart pointer at dst around the interior bytes, taking
	// ownership.
	Wrap func(dst, interior unsafe.Pointer)

	// Downgrade produces a weak reference at dst from the strong reference
	// at src.
	Downgrade func(dst, src unsafe.Pointer) error

	// Upgrade produces a strong reference at dst from the weak reference at
	// src, failing if the referent is gone.
	Upgrade func(dst, src unsafe.Pointer) error
}

// Sized reports whether the shape can be directly allocated.
func (s *Shape) Sized() bool {
	return s.Type != nil && s.Kind != KindOpaque
}

// FieldByName looks up a direct field. Matching is exact first, then
// case-insensitive, then kebab-case against the Go name.
func (s *Shape) FieldByName(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	for _, f := range s.Fields {
		if nameMatches(f.Name, name) {
			return f, true
		}
	}
	return Field{}, false
}

// CaseByName looks up a variant case with the same matching rules as
// FieldByName.
func (s *Shape) CaseByName(name string) (Case, bool) {
	for _, c := range s.Cases {
		if c.Name == name {
			return c, true
		}
	}
	for _, c := range s.Cases {
		if nameMatches(c.Name, name) {
			return c, true
		}
	}
	return Case{}, false
}

// CaseFields returns the field table of a case: the payload's fields for
// struct payloads, nothing for unit cases, and a single positional field
// named "0" otherwise.
func (c Case) CaseFields() []Field {
	if c.Payload == nil || c.Payload.Size == 0 {
		return nil
	}
	if c.Payload.Kind == KindStruct {
		return c.Payload.Fields
	}
	return []Field{{Name: "0", Index: 0, Offset: 0, Shape: c.Payload}}
}

// NewPtr allocates zeroed memory for the shape and returns its address
// together with an owner reference that must be kept reachable for the
// memory's lifetime. Zero-size shapes share the unit sentinel.
func (s *Shape) NewPtr() (unsafe.Pointer, any) {
	if s.Size == 0 {
		return UnitPtr(), nil
	}
	v := reflect.New(s.Type)
	return unsafe.Pointer(v.Pointer()), v
}

// CopyInto copies a value of this shape from src to dst. The copy is
// shallow: interior pointers are shared, so exactly one of the two copies
// may subsequently be treated as owning.
func (s *Shape) CopyInto(dst, src unsafe.Pointer) {
	if s.Size == 0 {
		return
	}
	reflect.NewAt(s.Type, dst).Elem().Set(reflect.NewAt(s.Type, src).Elem())
}

// Interface boxes the value at ptr as *T.
func (s *Shape) Interface(ptr unsafe.Pointer) any {
	return reflect.NewAt(s.Type, ptr).Interface()
}

func (s *Shape) String() string {
	if s == nil {
		return "<nil shape>"
	}
	return s.Name
}

// nameMatches implements loose field name matching: case-insensitive, or the
// Go name converted to kebab-case.
func nameMatches(goName, wanted string) bool {
	if strings.EqualFold(goName, wanted) {
		return true
	}
	return toKebabCase(goName) == wanted
}

func toKebabCase(s string) string {
	var result strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				result.WriteByte('-')
			}
			result.WriteRune(unicode.ToLower(r))
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}
