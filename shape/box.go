package shape

import (
	"reflect"
	"unsafe"

	"github.com/shapekit/shapekit"
	kiterrors "github.com/shapekit/shapekit/errors"
)

// Box is a reference-counted strong handle to a value. It exists for shapes
// that need explicit smart-pointer semantics: the builder's wrap operation
// produces a Box around a constructed interior, Downgrade yields a Weak that
// does not keep the value alive, and Drop releases the strong count, firing
// the interior's drop operation when it reaches zero.
//
// Counts are plain integers: a builder and everything it constructs are
// single-threaded by contract.
type Box[T any] struct {
	cell *cell[T]
}

// Weak is a non-owning handle produced by Box.Downgrade. Upgrade recovers a
// Box while the referent is still alive.
type Weak[T any] struct {
	cell *cell[T]
}

// cell field order is relied on by boxLayoutOf: value first, then counts.
type cell[T any] struct {
	value  T
	strong int32
	weak   int32
}

// NewBox wraps v in a fresh strong handle with count 1.
func NewBox[T any](v T) Box[T] {
	return Box[T]{cell: &cell[T]{value: v, strong: 1}}
}

// Get returns the boxed value's address. The pointer is valid while any
// strong handle remains.
func (b Box[T]) Get() *T {
	return &b.cell.value
}

// Alive reports whether the handle still points at a live value.
func (b Box[T]) Alive() bool {
	return b.cell != nil && b.cell.strong > 0
}

// Clone returns a new strong handle to the same value.
func (b Box[T]) Clone() Box[T] {
	b.cell.strong++
	return b
}

// StrongCount returns the current strong count.
func (b Box[T]) StrongCount() int {
	if b.cell == nil {
		return 0
	}
	return int(b.cell.strong)
}

// Drop releases this strong handle. When the last strong handle goes away
// the interior value's Drop fires, if it has one.
func (b Box[T]) Drop() {
	if b.cell == nil || b.cell.strong <= 0 {
		return
	}
	b.cell.strong--
	if b.cell.strong == 0 {
		if d, ok := any(&b.cell.value).(shapekit.Dropper); ok {
			d.Drop()
		}
	}
}

// Downgrade returns a weak handle that does not keep the value alive.
func (b Box[T]) Downgrade() Weak[T] {
	b.cell.weak++
	return Weak[T]{cell: b.cell}
}

// Upgrade recovers a strong handle, failing if the value is gone.
func (w Weak[T]) Upgrade() (Box[T], bool) {
	if w.cell == nil || w.cell.strong <= 0 {
		return Box[T]{}, false
	}
	w.cell.strong++
	return Box[T]{cell: w.cell}, true
}

// Drop releases the weak handle.
func (w Weak[T]) Drop() {
	if w.cell != nil && w.cell.weak > 0 {
		w.cell.weak--
	}
}

// boxLayout records the raw offsets the registry's synthesized operations
// use to manipulate Box and Weak memory without their type parameter.
type boxLayout struct {
	cellType  reflect.Type
	valueType reflect.Type
	valueOff  uintptr
	strongOff uintptr
	weakOff   uintptr
	isWeak    bool
}

func boxLayoutOf(t reflect.Type) (*boxLayout, error) {
	if t.NumField() != 1 || t.Field(0).Type.Kind() != reflect.Pointer {
		return nil, kiterrors.New(kiterrors.PhaseReflect, kiterrors.KindInvalidState).
			Detail("unexpected box layout for %s", t.String()).
			Build()
	}
	cellT := t.Field(0).Type.Elem()
	vf, ok1 := cellT.FieldByName("value")
	sf, ok2 := cellT.FieldByName("strong")
	wf, ok3 := cellT.FieldByName("weak")
	if !ok1 || !ok2 || !ok3 {
		return nil, kiterrors.New(kiterrors.PhaseReflect, kiterrors.KindInvalidState).
			Detail("unexpected cell layout for %s", t.String()).
			Build()
	}
	return &boxLayout{
		cellType:  cellT,
		valueType: vf.Type,
		valueOff:  vf.Offset,
		strongOff: sf.Offset,
		weakOff:   wf.Offset,
	}, nil
}

func makeBoxWrap(s *Shape, lay *boxLayout) func(dst, interior unsafe.Pointer) {
	return func(dst, interior unsafe.Pointer) {
		cv := reflect.New(lay.cellType)
		base := unsafe.Pointer(cv.Pointer())
		s.Interior.CopyInto(unsafe.Add(base, lay.valueOff), interior)
		*(*int32)(unsafe.Add(base, lay.strongOff)) = 1
		// The cell pointer lands in a pointer-typed slot of the Box struct,
		// so the cell stays reachable through dst.
		*(*unsafe.Pointer)(dst) = base
	}
}

// makeBoxDrop releases one count. For strong handles, hitting zero fires the
// interior's drop operation exactly once.
func makeBoxDrop(s *Shape) func(unsafe.Pointer) {
	lay := s.boxLay
	return func(ptr unsafe.Pointer) {
		base := *(*unsafe.Pointer)(ptr)
		if base == nil {
			return
		}
		if lay.isWeak {
			weak := (*int32)(unsafe.Add(base, lay.weakOff))
			if *weak > 0 {
				*weak--
			}
			return
		}
		strong := (*int32)(unsafe.Add(base, lay.strongOff))
		if *strong <= 0 {
			return
		}
		*strong--
		if *strong == 0 {
			if d := s.Interior.Ops.Drop; d != nil {
				d(unsafe.Add(base, lay.valueOff))
			}
		}
	}
}

func makeBoxDowngrade(lay *boxLayout) func(dst, src unsafe.Pointer) error {
	return func(dst, src unsafe.Pointer) error {
		base := *(*unsafe.Pointer)(src)
		if base == nil {
			return kiterrors.InvalidState("downgrade of empty box")
		}
		*(*int32)(unsafe.Add(base, lay.weakOff))++
		*(*unsafe.Pointer)(dst) = base
		return nil
	}
}

func makeWeakUpgrade(lay *boxLayout) func(dst, src unsafe.Pointer) error {
	return func(dst, src unsafe.Pointer) error {
		base := *(*unsafe.Pointer)(src)
		if base == nil {
			return kiterrors.InvalidState("upgrade of empty weak reference")
		}
		strong := (*int32)(unsafe.Add(base, lay.strongOff))
		if *strong <= 0 {
			return kiterrors.InvalidState("upgrade of dead weak reference")
		}
		*strong++
		*(*unsafe.Pointer)(dst) = base
		return nil
	}
}
