package shape

import (
	"reflect"
	"strconv"

	"go.bytecodealliance.org/wit"

	kiterrors "github.com/shapekit/shapekit/errors"
)

// FromWIT derives the shape for goType, verifies it conforms to the WIT type
// definition, and returns a shape whose field and case names are the WIT
// names. Format readers that consume WIT-described input can then navigate
// by the names appearing on the wire.
//
// The returned shape shares layout and operations with the plain reflect
// derivation; only the name tables differ.
func (r *Registry) FromWIT(witType wit.Type, goType reflect.Type) (*Shape, error) {
	s, err := r.ShapeOf(goType)
	if err != nil {
		return nil, err
	}
	return r.overlay(witType, s, nil)
}

func (r *Registry) overlay(witType wit.Type, s *Shape, path []string) (*Shape, error) {
	switch t := witType.(type) {
	case wit.Bool:
		return s, expectKind(s, path, KindBool)
	case wit.U8:
		return s, expectKind(s, path, KindUint8)
	case wit.S8:
		return s, expectKind(s, path, KindInt8)
	case wit.U16:
		return s, expectKind(s, path, KindUint16)
	case wit.S16:
		return s, expectKind(s, path, KindInt16)
	case wit.U32:
		return s, expectKind(s, path, KindUint32)
	case wit.S32, wit.Char:
		return s, expectKind(s, path, KindInt32)
	case wit.U64:
		return s, expectKind(s, path, KindUint64)
	case wit.S64:
		return s, expectKind(s, path, KindInt64)
	case wit.F32:
		return s, expectKind(s, path, KindFloat32)
	case wit.F64:
		return s, expectKind(s, path, KindFloat64)
	case wit.String:
		return s, expectKind(s, path, KindString)
	case *wit.TypeDef:
		return r.overlayTypeDef(t, s, path)
	default:
		return nil, kiterrors.New(kiterrors.PhaseReflect, kiterrors.KindUnsupported).
			Path(path...).
			Detail("unsupported WIT type: %T", witType).
			Build()
	}
}

func (r *Registry) overlayTypeDef(t *wit.TypeDef, s *Shape, path []string) (*Shape, error) {
	switch kind := t.Kind.(type) {
	case *wit.Record:
		return r.overlayRecord(kind, s, path)
	case *wit.Tuple:
		return r.overlayTuple(kind, s, path)
	case *wit.List:
		if s.Kind != KindSlice {
			return nil, mismatch(s, path, "slice")
		}
		elem, err := r.overlay(kind.Type, s.Elem, append(path, "[elem]"))
		if err != nil {
			return nil, err
		}
		cs := *s
		cs.Elem = elem
		return &cs, nil
	case *wit.Option:
		if s.Kind != KindOption {
			return nil, mismatch(s, path, "pointer")
		}
		elem, err := r.overlay(kind.Type, s.Elem, append(path, "[some]"))
		if err != nil {
			return nil, err
		}
		cs := *s
		cs.Elem = elem
		return &cs, nil
	case *wit.Variant:
		return r.overlayVariant(kind, s, path)
	case *wit.Result:
		return r.overlayResult(kind, s, path)
	case *wit.Enum:
		if !s.Kind.IsNumeric() {
			return nil, mismatch(s, path, "integer")
		}
		cs := *s
		cs.Cases = make([]Case, len(kind.Cases))
		for i, ec := range kind.Cases {
			cs.Cases[i] = Case{Name: ec.Name, Discriminant: i}
		}
		return &cs, nil
	case *wit.Flags:
		if s.Kind < KindUint || s.Kind > KindUint64 {
			return nil, mismatch(s, path, "unsigned integer")
		}
		return s, nil
	case wit.Type:
		return r.overlay(kind, s, path)
	default:
		return nil, kiterrors.New(kiterrors.PhaseReflect, kiterrors.KindUnsupported).
			Path(path...).
			Detail("unsupported TypeDef kind: %T", kind).
			Build()
	}
}

func (r *Registry) overlayRecord(rec *wit.Record, s *Shape, path []string) (*Shape, error) {
	if s.Kind != KindStruct {
		return nil, mismatch(s, path, "struct")
	}

	fields := make([]Field, 0, len(rec.Fields))
	for _, wf := range rec.Fields {
		gf, ok := s.FieldByName(wf.Name)
		if !ok {
			return nil, kiterrors.New(kiterrors.PhaseReflect, kiterrors.KindFieldNotFound).
				Path(path...).
				Actual(s.Name).
				Detail("no Go field for WIT field %q", wf.Name).
				Build()
		}
		fs, err := r.overlay(wf.Type, gf.Shape, append(path, wf.Name))
		if err != nil {
			return nil, err
		}
		fields = append(fields, Field{
			Name:   wf.Name,
			Index:  len(fields),
			Offset: gf.Offset,
			Shape:  fs,
		})
	}

	cs := *s
	cs.Fields = fields
	return &cs, nil
}

func (r *Registry) overlayTuple(t *wit.Tuple, s *Shape, path []string) (*Shape, error) {
	if s.Kind != KindStruct {
		return nil, mismatch(s, path, "struct")
	}
	if len(t.Types) != len(s.Fields) {
		return nil, kiterrors.New(kiterrors.PhaseReflect, kiterrors.KindShapeMismatch).
			Path(path...).
			Actual(s.Name).
			Detail("tuple has %d elements but struct has %d fields", len(t.Types), len(s.Fields)).
			Build()
	}

	fields := make([]Field, len(s.Fields))
	for i, elemType := range t.Types {
		fs, err := r.overlay(elemType, s.Fields[i].Shape, append(path, "["+strconv.Itoa(i)+"]"))
		if err != nil {
			return nil, err
		}
		fields[i] = s.Fields[i]
		fields[i].Shape = fs
	}

	cs := *s
	cs.Fields = fields
	return &cs, nil
}

// overlayResult maps a WIT result onto a two-case variant named ok and err.
func (r *Registry) overlayResult(res *wit.Result, s *Shape, path []string) (*Shape, error) {
	if s.Kind != KindVariant || len(s.Cases) != 2 {
		return nil, mismatch(s, path, "two-case variant")
	}

	cases := make([]Case, 2)
	for i, arm := range []struct {
		name string
		typ  wit.Type
	}{{"ok", res.OK}, {"err", res.Err}} {
		gc, ok := s.CaseByName(arm.name)
		if !ok {
			return nil, kiterrors.New(kiterrors.PhaseReflect, kiterrors.KindVariantNotFound).
				Path(path...).
				Actual(s.Name).
				Detail("result shape needs a case named %q", arm.name).
				Build()
		}
		payload := gc.Payload
		if arm.typ != nil {
			ps, err := r.overlay(arm.typ, gc.Payload, append(path, arm.name))
			if err != nil {
				return nil, err
			}
			payload = ps
		}
		cases[i] = Case{
			Name:         arm.name,
			Discriminant: i,
			Offset:       gc.Offset,
			Payload:      payload,
		}
	}

	cs := *s
	cs.Cases = cases
	return &cs, nil
}

func (r *Registry) overlayVariant(v *wit.Variant, s *Shape, path []string) (*Shape, error) {
	if s.Kind != KindVariant {
		return nil, mismatch(s, path, "variant")
	}

	cases := make([]Case, 0, len(v.Cases))
	for _, wc := range v.Cases {
		gc, ok := s.CaseByName(wc.Name)
		if !ok {
			return nil, kiterrors.New(kiterrors.PhaseReflect, kiterrors.KindVariantNotFound).
				Path(path...).
				Actual(s.Name).
				Detail("no Go case for WIT case %q", wc.Name).
				Build()
		}
		payload := gc.Payload
		if wc.Type != nil {
			ps, err := r.overlay(wc.Type, gc.Payload, append(path, wc.Name))
			if err != nil {
				return nil, err
			}
			payload = ps
		}
		cases = append(cases, Case{
			Name:         wc.Name,
			Discriminant: len(cases),
			Offset:       gc.Offset,
			Payload:      payload,
		})
	}

	cs := *s
	cs.Cases = cases
	return &cs, nil
}

func expectKind(s *Shape, path []string, want Kind) error {
	if s.Kind != want {
		return mismatch(s, path, want.String())
	}
	return nil
}

func mismatch(s *Shape, path []string, want string) error {
	return kiterrors.New(kiterrors.PhaseReflect, kiterrors.KindShapeMismatch).
		Path(path...).
		Expected(want).
		Actual(s.Name).
		Build()
}
