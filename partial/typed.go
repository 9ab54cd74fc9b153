package partial

import (
	"reflect"

	kiterrors "github.com/shapekit/shapekit/errors"
	"github.com/shapekit/shapekit/shape"
)

// New opens a builder for T. The typed facade over Alloc for callers that
// know the target type at the call site.
func New[T any](reg *shape.Registry) (*Builder, error) {
	s, err := reg.ShapeOf(reflect.TypeFor[T]())
	if err != nil {
		return nil, err
	}
	return Alloc(reg, s)
}

// Build finalizes b and returns the result as *T.
func Build[T any](b *Builder) (*T, error) {
	v, err := b.Finalize()
	if err != nil {
		return nil, err
	}
	p, ok := v.(*T)
	if !ok {
		return nil, kiterrors.New(kiterrors.PhaseFinalize, kiterrors.KindShapeMismatch).
			Expected(reflect.TypeFor[T]().String()).
			Actual(reflect.TypeOf(v).String()).
			Build()
	}
	return p, nil
}
