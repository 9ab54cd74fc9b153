package partial

import (
	"reflect"
	"unsafe"

	"github.com/shapekit/shapekit/partial/internal/bitset"
	"github.com/shapekit/shapekit/shape"
)

// mode records why a frame exists relative to its parent. The mode plus the
// parent's shape determine how a completed frame propagates on Pop.
type mode uint8

const (
	modeTop     mode = iota
	modeField        // struct field or array/payload slot, aliasing parent memory
	modeItem         // list element, scratch
	modeKey          // map key, scratch; parked on the stack until its value pops
	modeValue        // map value, scratch; keyIndex names the parked key frame
	modeSome         // option payload, scratch
	modePointee      // smart pointer interior, scratch
)

var modeNames = [...]string{
	modeTop:     "top",
	modeField:   "field",
	modeItem:    "item",
	modeKey:     "key",
	modeValue:   "value",
	modeSome:    "some",
	modePointee: "pointee",
}

func (m mode) String() string { return modeNames[m] }

// frame is one entry in the construction stack: a possibly-partially-written
// region plus the ledger of which parts hold live values.
//
// Field frames alias their parent's memory at the field offset, so completion
// needs no copy. Container, option and pointer children own scratch memory
// that is spliced into the parent by the matching shape operation on Pop.
type frame struct {
	shape *shape.Shape

	// ptr addresses the frame's value region. owner pins the backing
	// allocation for scratch frames; aliasing frames leave it nil and rely on
	// the parent's pin.
	ptr   unsafe.Pointer
	owner any

	mode mode

	// slot is the parent's field or element index for modeField frames.
	slot int

	// keyIndex is the stack position of the parked key frame for modeValue.
	keyIndex int

	// init has one bit per direct field (structs, selected variant cases),
	// one per element index (fixed arrays), or a single leaf bit.
	init *bitset.BitSet
	bits int

	// selected is the chosen case index for variant frames, -1 before any
	// selection. The case payload is assembled in the payload scratch region
	// and materialized into the variant's case pointer when the frame
	// completes.
	selected     int
	payload      unsafe.Pointer
	payloadOwner any

	// parked marks a completed map key waiting for its value.
	parked bool

	// moved marks bytes whose ownership passed to the parent; a moved frame
	// is never dropped again.
	moved bool

	// label names the frame in error paths and debug logs.
	label string
}

func newFrame(s *shape.Shape, m mode) *frame {
	f := &frame{
		shape:    s,
		mode:     m,
		selected: -1,
	}
	f.bits = trackedBits(s, -1)
	f.init = bitset.New(f.bits)
	return f
}

// trackedBits returns the number of init bits a frame of shape s carries.
// Variant frames track their selected case's field count; selected < 0 means
// no case has been chosen yet.
func trackedBits(s *shape.Shape, selected int) int {
	switch s.Kind {
	case shape.KindStruct:
		return len(s.Fields)
	case shape.KindArray:
		return s.ArrayLen
	case shape.KindVariant:
		if selected < 0 {
			return 0
		}
		return len(s.Cases[selected].CaseFields())
	default:
		return 1
	}
}

// complete reports whether every tracked bit is set. A variant frame is
// complete once a case is selected and that case's fields are all written;
// unit cases complete at selection time.
func (f *frame) complete() bool {
	if f.shape.Kind == shape.KindVariant {
		return f.selected >= 0 && f.init.Full(f.bits)
	}
	return f.init.Full(f.bits)
}

// slotTable returns the field table assignment and navigation operate on:
// the shape's own fields, or the selected case's fields for variants (which
// live in the payload scratch region).
func (f *frame) slotTable() ([]shape.Field, unsafe.Pointer) {
	if f.shape.Kind == shape.KindVariant {
		if f.selected < 0 {
			return nil, nil
		}
		return f.shape.Cases[f.selected].CaseFields(), f.payload
	}
	return f.shape.Fields, f.ptr
}

// dropContents destroys exactly the sub-values whose bit is set and clears
// the ledger. Moved frames are untouched: their bytes belong to the parent.
func (f *frame) dropContents() {
	if f.moved {
		return
	}
	// A complete frame holds a real value: destroy it through the shape's own
	// drop so custom destructors fire. Only incomplete frames are taken apart
	// slot by slot.
	switch f.shape.Kind {
	case shape.KindStruct:
		if f.complete() {
			if d := f.shape.Ops.Drop; d != nil {
				d(f.ptr)
			}
			break
		}
		for _, i := range f.init.ToSlice() {
			fd := &f.shape.Fields[i]
			if d := fd.Shape.Ops.Drop; d != nil {
				d(unsafe.Add(f.ptr, fd.Offset))
			}
		}

	case shape.KindArray:
		elem := f.shape.Elem
		if d := elem.Ops.Drop; d != nil {
			for _, i := range f.init.ToSlice() {
				d(unsafe.Add(f.ptr, uintptr(i)*elem.Size))
			}
		}

	case shape.KindVariant:
		switch {
		case f.selected >= 0 && f.payload == nil:
			// Payload already materialized behind the case pointer, as on a
			// parked map key; destroy through the variant's own drop.
			if d := f.shape.Ops.Drop; d != nil {
				d(f.ptr)
			}
		case f.selected >= 0:
			payload := f.shape.Cases[f.selected].Payload
			if f.complete() {
				if d := payload.Ops.Drop; d != nil && payload.Size > 0 {
					d(f.payload)
				}
				break
			}
			fields := f.shape.Cases[f.selected].CaseFields()
			for _, i := range f.init.ToSlice() {
				fd := &fields[i]
				if d := fd.Shape.Ops.Drop; d != nil {
					d(unsafe.Add(f.payload, fd.Offset))
				}
			}
		}

	default:
		if f.init.Has(0) {
			if d := f.shape.Ops.Drop; d != nil {
				d(f.ptr)
			}
		}
	}
	f.init.Reset()
}

// materializeVariant moves the completed payload out of scratch into a fresh
// heap allocation and points the selected case's pointer field at it. Unit
// payloads get an empty allocation so the active case is observable.
func (f *frame) materializeVariant() {
	c := &f.shape.Cases[f.selected]
	if *(*unsafe.Pointer)(unsafe.Add(f.ptr, c.Offset)) == f.payload {
		// Payload adopted from a whole-value assignment; the case pointer
		// already addresses it.
		f.payload = nil
		f.payloadOwner = nil
		return
	}
	pv := reflect.New(c.Payload.Type)
	if c.Payload.Size > 0 {
		c.Payload.CopyInto(unsafe.Pointer(pv.Pointer()), f.payload)
	}
	slot := reflect.NewAt(reflect.PointerTo(c.Payload.Type), unsafe.Add(f.ptr, c.Offset))
	slot.Elem().Set(pv)
	f.payload = nil
	f.payloadOwner = nil
}

// clearVariant drops whatever the currently selected case has written and
// forgets the selection. Case pointers already materialized in the variant
// memory are dropped through the shape's own drop operation by the caller.
func (f *frame) clearVariant() {
	f.dropContents()
	f.selected = -1
	f.bits = 0
	f.payload = nil
	f.payloadOwner = nil
}
