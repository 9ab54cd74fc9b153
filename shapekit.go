package shapekit

// Dropper is implemented by values that own an external resource and must be
// told when the last reference to them goes away. The shape registry wires
// Drop into the drop operation of any type whose pointer implements it, so
// partially built values release exactly what was constructed.
//
// Drop must be safe to call exactly once per live value. It is never called
// concurrently for the same value.
type Dropper interface {
	Drop()
}

// Defaulter is implemented by types that have a meaningful non-zero default.
// The registry wires SetDefault into the shape's default operation; types
// without it default to the zero value (or an empty container).
type Defaulter interface {
	SetDefault()
}
