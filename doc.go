// Package shapekit provides incremental, type-erased construction of Go
// values driven by runtime shape descriptors.
//
// A "shape" describes a type's layout (size, alignment, field offsets,
// variant cases) together with a small operation table (drop, default,
// convert, push, insert, wrap). Format readers — JSON, TOML, binary record
// decoders, argument parsers — use shapes to fill in arbitrary user types one
// field or element at a time, without knowing the target type at compile time.
//
// # Architecture Overview
//
// The library is organized into packages with distinct responsibilities:
//
//	shapekit/            Root package with the Dropper and Defaulter interfaces
//	├── shape/           Runtime type descriptors derived from reflect or WIT
//	├── partial/         Frame-stack builder: the incremental construction core
//	├── errors/          Structured error types for debugging
//	└── cmd/inspect/     Shape tree inspector CLI
//
// # Quick Start
//
// Build a value of a type known only at runtime:
//
//	reg := shape.NewRegistry()
//	s, err := reg.ShapeOf(reflect.TypeOf(Point{}))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	b, err := partial.Alloc(reg, s)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer b.Close()
//
//	b.BeginField("x")
//	b.Set(int32(10))
//	b.Pop()
//	b.BeginField("y")
//	b.Set(int32(20))
//	b.Pop()
//
//	v, err := b.Finalize() // *Point
//
// When the target type is known at the call site, the typed facade avoids the
// reflect plumbing:
//
//	b, _ := partial.New[Point](reg)
//	...
//	p, err := partial.Build[Point](b)
//
// Abandoning a builder at any point (error, early return) drops exactly the
// sub-values that were actually written, exactly once.
package shapekit
