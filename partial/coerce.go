package partial

import (
	"reflect"
	"runtime"
	"unsafe"

	kiterrors "github.com/shapekit/shapekit/errors"
	"github.com/shapekit/shapekit/partial/internal/bitset"
	"github.com/shapekit/shapekit/shape"
)

// Set assigns a concrete Go value into the current frame. The value's shape
// is derived from its dynamic type; resolution then follows the same ladder
// as SetShaped.
func (b *Builder) Set(v any) error {
	if _, err := b.open(); err != nil {
		return err
	}
	if v == nil {
		return kiterrors.InvalidState("cannot assign nil")
	}
	from, err := b.reg.Of(v)
	if err != nil {
		return err
	}
	// Copy onto the heap so the frame can take ownership of the bytes.
	rv := reflect.ValueOf(v)
	pv := reflect.New(rv.Type())
	pv.Elem().Set(rv)
	return b.assign(unsafe.Pointer(pv.Pointer()), from)
}

// SetShaped assigns the value of shape from at src into the current frame,
// taking logical ownership of the bytes: on success the caller must not drop
// or reuse them.
func (b *Builder) SetShaped(src unsafe.Pointer, from *shape.Shape) error {
	if _, err := b.open(); err != nil {
		return err
	}
	if from == nil || src == nil {
		return kiterrors.InvalidState("cannot assign without a value shape")
	}
	return b.assign(src, from)
}

// assign resolves a value against the current frame:
//
//  1. exact shape match — copy in place;
//  2. transparent wrapper or registered conversion — the shape's ConvertFrom
//     (wrappers accept their inner shape, numerics widen losslessly and
//     narrow only when exact);
//  3. optional auto-wrap — a bare T initializes an optional-of-T as present;
//  4. first fit — the first uninitialized record or case slot, in
//     declaration order, that matches exactly or converts.
//
// Anything already in the target slot is destroyed before the new value
// lands; a refused conversion leaves the old value untouched.
func (b *Builder) assign(src unsafe.Pointer, from *shape.Shape) error {
	f := b.current()

	if from == f.shape {
		b.assignWhole(f, src)
		return nil
	}

	if cf := f.shape.Ops.ConvertFrom; cf != nil {
		// Convert into scratch first: a failure must not disturb a value
		// already present in the frame.
		tmp, owner := f.shape.NewPtr()
		if err := cf(tmp, src, from); err != nil {
			return err
		}
		b.assignWhole(f, tmp)
		runtime.KeepAlive(owner)
		return nil
	}

	if f.shape.Kind == shape.KindOption {
		if from == f.shape.Elem {
			b.clearLeaf(f)
			f.shape.Ops.InitPresent(f.ptr, src)
			f.init.Set(0)
			return nil
		}
		if cf := f.shape.Elem.Ops.ConvertFrom; cf != nil {
			tmp, owner := f.shape.Elem.NewPtr()
			if cf(tmp, src, from) == nil {
				b.clearLeaf(f)
				f.shape.Ops.InitPresent(f.ptr, tmp)
				f.init.Set(0)
				runtime.KeepAlive(owner)
				return nil
			}
			runtime.KeepAlive(owner)
		}
	}

	if f.shape.Kind == shape.KindVariant {
		if f.selected < 0 {
			return kiterrors.NoActiveVariant(b.path(), f.shape.Name)
		}
		// A value of the selected case's payload shape replaces the whole
		// payload.
		if c := &f.shape.Cases[f.selected]; from == c.Payload && f.payload != nil {
			f.dropContents()
			c.Payload.CopyInto(f.payload, src)
			for i := 0; i < f.bits; i++ {
				f.init.Set(uint32(i))
			}
			return nil
		}
	}
	if table, base := f.slotTable(); len(table) > 0 {
		if b.assignFirstFit(f, table, base, src, from) {
			return nil
		}
	}

	return kiterrors.ShapeMismatch(b.path(), f.shape.Name, from.Name)
}

// assignWhole replaces the frame's entire value. Whatever the ledger says is
// live gets destroyed first, then the new bytes land and every slot is
// marked.
func (b *Builder) assignWhole(f *frame, src unsafe.Pointer) {
	f.dropContents()
	zeroRegion(f.shape, f.ptr)
	f.shape.CopyInto(f.ptr, src)

	if f.shape.Kind == shape.KindVariant {
		// The assigned value carries its own active case. Adopt the payload
		// behind its case pointer as the frame's payload region, fully
		// initialized, so navigation and later payload assignments address
		// live bytes instead of abandoned scratch.
		f.selected = -1
		f.bits = 0
		f.init = bitset.New(1)
		f.payload = nil
		f.payloadOwner = nil
		for i := range f.shape.Cases {
			c := &f.shape.Cases[i]
			p := *(*unsafe.Pointer)(unsafe.Add(f.ptr, c.Offset))
			if p == nil {
				continue
			}
			f.selected = i
			f.payload = p
			f.bits = len(c.CaseFields())
			f.init = bitset.New(f.bits)
			for j := 0; j < f.bits; j++ {
				f.init.Set(uint32(j))
			}
			break
		}
		return
	}
	markAll(f)
}

// assignFirstFit scans slots in declaration order for the first
// uninitialized one that takes the value, exactly or via conversion.
func (b *Builder) assignFirstFit(f *frame, table []shape.Field, base unsafe.Pointer, src unsafe.Pointer, from *shape.Shape) bool {
	for i := range table {
		if f.init.Has(uint32(i)) {
			continue
		}
		fd := &table[i]
		slot := unsafe.Add(base, fd.Offset)
		if from == fd.Shape {
			fd.Shape.CopyInto(slot, src)
			f.init.Set(uint32(i))
			return true
		}
		if cf := fd.Shape.Ops.ConvertFrom; cf != nil {
			tmp, owner := fd.Shape.NewPtr()
			converted := cf(tmp, src, from) == nil
			if converted {
				fd.Shape.CopyInto(slot, tmp)
				f.init.Set(uint32(i))
			}
			runtime.KeepAlive(owner)
			if converted {
				return true
			}
		}
	}
	return false
}
