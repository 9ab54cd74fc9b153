package shape

import (
	"reflect"
	"strings"
	"sync"

	kiterrors "github.com/shapekit/shapekit/errors"
)

// Registry derives and caches shapes for Go types. It is safe for concurrent
// use; derived shapes are immutable and may be shared across any number of
// builders.
type Registry struct {
	mu     sync.Mutex
	shapes map[reflect.Type]*Shape
}

func NewRegistry() *Registry {
	return &Registry{
		shapes: make(map[reflect.Type]*Shape),
	}
}

// ShapeOf returns the shape for t, deriving it on first use.
func (r *Registry) ShapeOf(t reflect.Type) (*Shape, error) {
	if t == nil {
		return nil, kiterrors.New(kiterrors.PhaseReflect, kiterrors.KindInvalidState).
			Detail("type cannot be nil").
			Build()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.derive(t)
}

// Of returns the shape for v's dynamic type.
func (r *Registry) Of(v any) (*Shape, error) {
	if v == nil {
		return nil, kiterrors.New(kiterrors.PhaseReflect, kiterrors.KindInvalidState).
			Detail("value cannot be nil").
			Build()
	}
	return r.ShapeOf(reflect.TypeOf(v))
}

// MustShapeOf is ShapeOf for types known to be supported; it panics on error.
func (r *Registry) MustShapeOf(t reflect.Type) *Shape {
	s, err := r.ShapeOf(t)
	if err != nil {
		panic(err)
	}
	return s
}

// derive returns the cached shape or builds one. The placeholder is cached
// before children are derived so recursive types terminate.
func (r *Registry) derive(t reflect.Type) (*Shape, error) {
	if s, ok := r.shapes[t]; ok {
		return s, nil
	}

	s := &Shape{
		Type:  t,
		Name:  t.String(),
		Size:  t.Size(),
		Align: uintptr(t.Align()),
	}
	r.shapes[t] = s

	if err := r.fill(s, t); err != nil {
		delete(r.shapes, t)
		return nil, err
	}

	s.Ops.Drop = makeDrop(s)
	s.Ops.Default = makeDefault(s)
	return s, nil
}

func (r *Registry) fill(s *Shape, t reflect.Type) error {
	switch t.Kind() {
	case reflect.Bool:
		s.Kind = KindBool
	case reflect.Int:
		s.Kind = KindInt
	case reflect.Int8:
		s.Kind = KindInt8
	case reflect.Int16:
		s.Kind = KindInt16
	case reflect.Int32:
		s.Kind = KindInt32
	case reflect.Int64:
		s.Kind = KindInt64
	case reflect.Uint:
		s.Kind = KindUint
	case reflect.Uint8:
		s.Kind = KindUint8
	case reflect.Uint16:
		s.Kind = KindUint16
	case reflect.Uint32:
		s.Kind = KindUint32
	case reflect.Uint64:
		s.Kind = KindUint64
	case reflect.Float32:
		s.Kind = KindFloat32
	case reflect.Float64:
		s.Kind = KindFloat64
	case reflect.String:
		s.Kind = KindString

	case reflect.Struct:
		return r.fillStruct(s, t)

	case reflect.Array:
		s.Kind = KindArray
		s.ArrayLen = t.Len()
		elem, err := r.derive(t.Elem())
		if err != nil {
			return err
		}
		s.Elem = elem

	case reflect.Slice:
		s.Kind = KindSlice
		elem, err := r.derive(t.Elem())
		if err != nil {
			return err
		}
		s.Elem = elem
		s.Ops.Push = makePush(t)

	case reflect.Map:
		s.Kind = KindMap
		key, err := r.derive(t.Key())
		if err != nil {
			return err
		}
		val, err := r.derive(t.Elem())
		if err != nil {
			return err
		}
		s.Key = key
		s.Value = val
		s.Ops.Insert = makeInsert(t)

	case reflect.Pointer:
		s.Kind = KindOption
		elem, err := r.derive(t.Elem())
		if err != nil {
			return err
		}
		s.Elem = elem
		s.Ops.InitPresent = makeInitPresent(t)

	default:
		// Interfaces, funcs, channels and the like have no layout the
		// builder can fill in field by field.
		s.Kind = KindOpaque
	}

	if s.Kind.IsNumeric() {
		s.Ops.ConvertFrom = makeNumericConvert(s)
	}
	return nil
}

func (r *Registry) fillStruct(s *Shape, t reflect.Type) error {
	if isBoxType(t) {
		return r.fillBox(s, t)
	}
	if isWeakType(t) {
		return r.fillWeak(s, t)
	}

	type taggedField struct {
		field reflect.StructField
		name  string
		tag   string
	}
	var members []taggedField
	allCases := true
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := f.Tag.Get("shape")
		if tag == "-" {
			continue
		}
		name := f.Name
		if tag != "" && tag != "case" && tag != "inner" {
			name = tag
		}
		if tag != "case" || f.Type.Kind() != reflect.Pointer {
			allCases = false
		}
		members = append(members, taggedField{field: f, name: name, tag: tag})
	}

	if allCases && len(members) > 0 {
		s.Kind = KindVariant
		for i, m := range members {
			payload, err := r.derive(m.field.Type.Elem())
			if err != nil {
				return err
			}
			s.Cases = append(s.Cases, Case{
				Name:         m.name,
				Discriminant: i,
				Offset:       m.field.Offset,
				Payload:      payload,
			})
		}
		return nil
	}

	s.Kind = KindStruct
	for i, m := range members {
		fs, err := r.derive(m.field.Type)
		if err != nil {
			return err
		}
		s.Fields = append(s.Fields, Field{
			Name:   m.name,
			Index:  i,
			Offset: m.field.Offset,
			Shape:  fs,
		})
		if m.tag == "inner" && len(members) == 1 {
			s.Inner = fs
		}
	}
	if s.Inner != nil {
		s.Ops.ConvertFrom = makeWrapperConvert(s)
	}
	return nil
}

func (r *Registry) fillBox(s *Shape, t reflect.Type) error {
	s.Kind = KindPointer
	lay, err := boxLayoutOf(t)
	if err != nil {
		return err
	}
	interior, err := r.derive(lay.valueType)
	if err != nil {
		return err
	}
	s.Interior = interior
	s.boxLay = lay
	s.Ops.Wrap = makeBoxWrap(s, lay)
	s.Ops.Downgrade = makeBoxDowngrade(lay)
	return nil
}

func (r *Registry) fillWeak(s *Shape, t reflect.Type) error {
	s.Kind = KindPointer
	lay, err := boxLayoutOf(t)
	if err != nil {
		return err
	}
	lay.isWeak = true
	interior, err := r.derive(lay.valueType)
	if err != nil {
		return err
	}
	s.Interior = interior
	s.boxLay = lay
	s.Ops.Upgrade = makeWeakUpgrade(lay)
	return nil
}

var shapePkgPath = reflect.TypeOf(Shape{}).PkgPath()

func isBoxType(t reflect.Type) bool {
	return t.Kind() == reflect.Struct &&
		t.PkgPath() == shapePkgPath &&
		strings.HasPrefix(t.Name(), "Box[")
}

func isWeakType(t reflect.Type) bool {
	return t.Kind() == reflect.Struct &&
		t.PkgPath() == shapePkgPath &&
		strings.HasPrefix(t.Name(), "Weak[")
}
