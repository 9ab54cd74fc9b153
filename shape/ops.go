package shape

import (
	"math"
	"reflect"
	"unsafe"

	"github.com/shapekit/shapekit"
	kiterrors "github.com/shapekit/shapekit/errors"
)

var (
	dropperType   = reflect.TypeOf((*shapekit.Dropper)(nil)).Elem()
	defaulterType = reflect.TypeOf((*shapekit.Defaulter)(nil)).Elem()
)

// makeDrop builds the drop operation. Child drop functions are resolved at
// call time through the child shape, so recursive types work even though
// their operation tables are still being filled when this closure is built.
func makeDrop(s *Shape) func(unsafe.Pointer) {
	var custom func(unsafe.Pointer)
	if s.Type != nil && reflect.PointerTo(s.Type).Implements(dropperType) {
		t := s.Type
		custom = func(ptr unsafe.Pointer) {
			reflect.NewAt(t, ptr).Interface().(shapekit.Dropper).Drop()
		}
	}

	var children func(unsafe.Pointer)
	switch s.Kind {
	case KindStruct:
		children = func(ptr unsafe.Pointer) {
			for i := range s.Fields {
				f := &s.Fields[i]
				if d := f.Shape.Ops.Drop; d != nil {
					d(unsafe.Add(ptr, f.Offset))
				}
			}
		}

	case KindVariant:
		children = func(ptr unsafe.Pointer) {
			for i := range s.Cases {
				c := &s.Cases[i]
				p := *(*unsafe.Pointer)(unsafe.Add(ptr, c.Offset))
				if p == nil {
					continue
				}
				if d := c.Payload.Ops.Drop; d != nil && c.Payload.Size > 0 {
					d(p)
				}
				return
			}
		}

	case KindArray:
		children = func(ptr unsafe.Pointer) {
			d := s.Elem.Ops.Drop
			if d == nil {
				return
			}
			for i := 0; i < s.ArrayLen; i++ {
				d(unsafe.Add(ptr, uintptr(i)*s.Elem.Size))
			}
		}

	case KindSlice:
		children = func(ptr unsafe.Pointer) {
			d := s.Elem.Ops.Drop
			if d == nil {
				return
			}
			sv := reflect.NewAt(s.Type, ptr).Elem()
			for i := 0; i < sv.Len(); i++ {
				d(unsafe.Pointer(sv.Index(i).Addr().Pointer()))
			}
		}

	case KindMap:
		children = func(ptr unsafe.Pointer) {
			kd := s.Key.Ops.Drop
			vd := s.Value.Ops.Drop
			if kd == nil && vd == nil {
				return
			}
			mv := reflect.NewAt(s.Type, ptr).Elem()
			iter := mv.MapRange()
			for iter.Next() {
				// Map entries are not addressable; drop a copy. Drop is
				// about side effects, not the bytes' address.
				if kd != nil {
					tmp := reflect.New(s.Key.Type)
					tmp.Elem().Set(iter.Key())
					kd(unsafe.Pointer(tmp.Pointer()))
				}
				if vd != nil {
					tmp := reflect.New(s.Value.Type)
					tmp.Elem().Set(iter.Value())
					vd(unsafe.Pointer(tmp.Pointer()))
				}
			}
		}

	case KindOption:
		children = func(ptr unsafe.Pointer) {
			d := s.Elem.Ops.Drop
			if d == nil {
				return
			}
			p := *(*unsafe.Pointer)(ptr)
			if p != nil {
				d(p)
			}
		}

	case KindPointer:
		if s.boxLay != nil {
			children = makeBoxDrop(s)
		}
	}

	switch {
	case custom != nil && children != nil:
		return func(ptr unsafe.Pointer) {
			custom(ptr)
			children(ptr)
		}
	case custom != nil:
		return custom
	default:
		return children
	}
}

func makeDefault(s *Shape) func(unsafe.Pointer) {
	if s.Type == nil {
		return nil
	}
	t := s.Type

	var base func(unsafe.Pointer)
	switch s.Kind {
	case KindMap:
		base = func(ptr unsafe.Pointer) {
			reflect.NewAt(t, ptr).Elem().Set(reflect.MakeMap(t))
		}
	case KindSlice:
		base = func(ptr unsafe.Pointer) {
			reflect.NewAt(t, ptr).Elem().Set(reflect.MakeSlice(t, 0, 0))
		}
	default:
		base = func(ptr unsafe.Pointer) {
			reflect.NewAt(t, ptr).Elem().SetZero()
		}
	}

	if reflect.PointerTo(t).Implements(defaulterType) {
		return func(ptr unsafe.Pointer) {
			base(ptr)
			reflect.NewAt(t, ptr).Interface().(shapekit.Defaulter).SetDefault()
		}
	}
	return base
}

func makePush(t reflect.Type) func(list, elem unsafe.Pointer) {
	elemT := t.Elem()
	return func(list, elem unsafe.Pointer) {
		lv := reflect.NewAt(t, list).Elem()
		ev := reflect.NewAt(elemT, elem).Elem()
		lv.Set(reflect.Append(lv, ev))
	}
}

func makeInsert(t reflect.Type) func(m, key, val unsafe.Pointer) {
	keyT := t.Key()
	valT := t.Elem()
	return func(m, key, val unsafe.Pointer) {
		mv := reflect.NewAt(t, m).Elem()
		if mv.IsNil() {
			mv.Set(reflect.MakeMap(t))
		}
		kv := reflect.NewAt(keyT, key).Elem()
		vv := reflect.NewAt(valT, val).Elem()
		mv.SetMapIndex(kv, vv)
	}
}

func makeInitPresent(t reflect.Type) func(opt, payload unsafe.Pointer) {
	elemT := t.Elem()
	return func(opt, payload unsafe.Pointer) {
		pv := reflect.New(elemT)
		pv.Elem().Set(reflect.NewAt(elemT, payload).Elem())
		reflect.NewAt(t, opt).Elem().Set(pv)
	}
}

// makeWrapperConvert handles transparent single-field wrappers: a value of
// the inner shape (or one convertible to it) builds the wrapper in place.
func makeWrapperConvert(s *Shape) func(dst, src unsafe.Pointer, from *Shape) error {
	return func(dst, src unsafe.Pointer, from *Shape) error {
		slot := unsafe.Add(dst, s.Fields[0].Offset)
		if from == s.Inner {
			s.Inner.CopyInto(slot, src)
			return nil
		}
		if cf := s.Inner.Ops.ConvertFrom; cf != nil {
			return cf(slot, src, from)
		}
		return kiterrors.ConversionFailed(nil, from.Name, s.Name, "no conversion to wrapper inner shape")
	}
}

// Numeric conversion. Lossless widening and exact narrowing are accepted;
// anything that would change the value is refused.

type numClass uint8

const (
	numSigned numClass = iota
	numUnsigned
	numFloat
)

type num struct {
	i   int64
	u   uint64
	f   float64
	cls numClass
}

func makeNumericConvert(s *Shape) func(dst, src unsafe.Pointer, from *Shape) error {
	return func(dst, src unsafe.Pointer, from *Shape) error {
		if !from.Kind.IsNumeric() {
			return kiterrors.ConversionFailed(nil, from.Name, s.Name, "source is not numeric")
		}
		n := readNum(from, src)
		if err := storeNum(s, dst, n, from); err != nil {
			return err
		}
		return nil
	}
}

func readNum(from *Shape, ptr unsafe.Pointer) num {
	switch from.Kind {
	case KindInt:
		return num{cls: numSigned, i: int64(*(*int)(ptr))}
	case KindInt8:
		return num{cls: numSigned, i: int64(*(*int8)(ptr))}
	case KindInt16:
		return num{cls: numSigned, i: int64(*(*int16)(ptr))}
	case KindInt32:
		return num{cls: numSigned, i: int64(*(*int32)(ptr))}
	case KindInt64:
		return num{cls: numSigned, i: *(*int64)(ptr)}
	case KindUint:
		return num{cls: numUnsigned, u: uint64(*(*uint)(ptr))}
	case KindUint8:
		return num{cls: numUnsigned, u: uint64(*(*uint8)(ptr))}
	case KindUint16:
		return num{cls: numUnsigned, u: uint64(*(*uint16)(ptr))}
	case KindUint32:
		return num{cls: numUnsigned, u: uint64(*(*uint32)(ptr))}
	case KindUint64:
		return num{cls: numUnsigned, u: *(*uint64)(ptr)}
	case KindFloat32:
		return num{cls: numFloat, f: float64(*(*float32)(ptr))}
	default: // KindFloat64
		return num{cls: numFloat, f: *(*float64)(ptr)}
	}
}

func storeNum(to *Shape, ptr unsafe.Pointer, n num, from *Shape) error {
	fail := func(reason string) error {
		return kiterrors.ConversionFailed(nil, from.Name, to.Name, reason)
	}

	switch to.Kind {
	case KindInt, KindInt64:
		v, ok := n.asInt(math.MinInt64, math.MaxInt64)
		if !ok {
			return fail("value does not fit in signed 64-bit")
		}
		if to.Kind == KindInt {
			*(*int)(ptr) = int(v)
		} else {
			*(*int64)(ptr) = v
		}
	case KindInt8:
		v, ok := n.asInt(math.MinInt8, math.MaxInt8)
		if !ok {
			return fail("value does not fit in int8")
		}
		*(*int8)(ptr) = int8(v)
	case KindInt16:
		v, ok := n.asInt(math.MinInt16, math.MaxInt16)
		if !ok {
			return fail("value does not fit in int16")
		}
		*(*int16)(ptr) = int16(v)
	case KindInt32:
		v, ok := n.asInt(math.MinInt32, math.MaxInt32)
		if !ok {
			return fail("value does not fit in int32")
		}
		*(*int32)(ptr) = int32(v)
	case KindUint, KindUint64:
		v, ok := n.asUint(math.MaxUint64)
		if !ok {
			return fail("value does not fit in unsigned 64-bit")
		}
		if to.Kind == KindUint {
			*(*uint)(ptr) = uint(v)
		} else {
			*(*uint64)(ptr) = v
		}
	case KindUint8:
		v, ok := n.asUint(math.MaxUint8)
		if !ok {
			return fail("value does not fit in uint8")
		}
		*(*uint8)(ptr) = uint8(v)
	case KindUint16:
		v, ok := n.asUint(math.MaxUint16)
		if !ok {
			return fail("value does not fit in uint16")
		}
		*(*uint16)(ptr) = uint16(v)
	case KindUint32:
		v, ok := n.asUint(math.MaxUint32)
		if !ok {
			return fail("value does not fit in uint32")
		}
		*(*uint32)(ptr) = uint32(v)
	case KindFloat32:
		v, ok := n.asFloat32()
		if !ok {
			return fail("value does not convert exactly to float32")
		}
		*(*float32)(ptr) = v
	case KindFloat64:
		v, ok := n.asFloat64()
		if !ok {
			return fail("value does not convert exactly to float64")
		}
		*(*float64)(ptr) = v
	default:
		return fail("target is not numeric")
	}
	return nil
}

func (n num) asInt(min, max int64) (int64, bool) {
	switch n.cls {
	case numSigned:
		if n.i >= min && n.i <= max {
			return n.i, true
		}
	case numUnsigned:
		if n.u <= uint64(max) {
			return int64(n.u), true
		}
	case numFloat:
		if n.f == math.Trunc(n.f) && n.f >= float64(min) && n.f <= float64(max) && n.f == float64(int64(n.f)) {
			return int64(n.f), true
		}
	}
	return 0, false
}

func (n num) asUint(max uint64) (uint64, bool) {
	switch n.cls {
	case numSigned:
		if n.i >= 0 && uint64(n.i) <= max {
			return uint64(n.i), true
		}
	case numUnsigned:
		if n.u <= max {
			return n.u, true
		}
	case numFloat:
		if n.f == math.Trunc(n.f) && n.f >= 0 && n.f <= float64(max) && n.f == float64(uint64(n.f)) {
			return uint64(n.f), true
		}
	}
	return 0, false
}

// asFloat64 requires integer sources to round-trip through the float64
// mantissa, so magnitudes past 2^53 are refused rather than rounded.
func (n num) asFloat64() (float64, bool) {
	switch n.cls {
	case numSigned:
		f := float64(n.i)
		if f >= math.MinInt64 && f < math.MaxInt64 && int64(f) == n.i {
			return f, true
		}
	case numUnsigned:
		f := float64(n.u)
		if f < math.MaxUint64 && uint64(f) == n.u {
			return f, true
		}
	default:
		return n.f, true
	}
	return 0, false
}

func (n num) asFloat32() (float32, bool) {
	f, ok := n.asFloat64()
	if !ok {
		return 0, false
	}
	v := float32(f)
	if float64(v) != f {
		return 0, false
	}
	return v, true
}
