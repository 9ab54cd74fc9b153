// Package shape derives runtime type descriptors used by the partial builder.
//
// A Shape records a type's kind, memory layout, and an operation table of
// type-erased functions (drop, default, convert, container mutation). Shapes
// are derived from Go types through a Registry:
//
//	reg := shape.NewRegistry()
//	s, err := reg.ShapeOf(reflect.TypeOf(Config{}))
//
// Derivation follows a small set of conventions:
//
//   - Pointers are options: *T derives as an option of T.
//   - A struct whose exported fields are all pointers tagged `shape:"case"`
//     derives as a variant; the discriminant is the declaration index and a
//     zero-size payload makes a unit case.
//   - A single-field struct tagged `shape:"inner"` is a transparent wrapper:
//     values of the inner shape assign directly.
//   - Box[T] and Weak[T] derive as reference-counted smart pointers.
//   - Types implementing shapekit.Dropper get a custom drop that runs before
//     the synthesized child drops; shapekit.Defaulter overrides the default.
//
// Shapes may also be overlaid with WIT type definitions via
// Registry.FromWIT, which renames fields and cases to their wire names after
// verifying the Go type conforms.
package shape
