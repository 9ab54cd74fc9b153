package partial

import (
	"reflect"
	"strconv"
	"strings"
	"unsafe"

	kiterrors "github.com/shapekit/shapekit/errors"
	"github.com/shapekit/shapekit/partial/internal/bitset"
	"github.com/shapekit/shapekit/shape"
)

// Builder assembles a value of a runtime-described shape one field or element
// at a time. It is a stack of construction frames: Begin* operations descend
// into a sub-value, Set assigns into the current frame, Pop ascends and
// splices the completed child into its parent, and Finalize hands the fully
// initialized top-level value to the caller.
//
// A Builder abandoned before Finalize — explicitly via Close or implicitly by
// an error path — destroys exactly the sub-values that were written, exactly
// once. It is single-threaded: one goroutine owns a Builder for its whole
// life.
type Builder struct {
	reg    *shape.Registry
	frames []*frame
	done   bool
}

// Alloc opens a builder with a fresh, uninitialized top-level frame for s.
// Fails with an unsized error when s has no constructible layout.
func Alloc(reg *shape.Registry, s *shape.Shape) (*Builder, error) {
	if !s.Sized() {
		return nil, kiterrors.Unsized(s.Name)
	}
	f := newFrame(s, modeTop)
	f.ptr, f.owner = s.NewPtr()
	f.label = s.Name
	debugf("alloc %s", s)
	return &Builder{
		reg:    reg,
		frames: []*frame{f},
	}, nil
}

// current returns the innermost frame that is open for mutation. Parked map
// keys sit above their map frame but are not open.
func (b *Builder) current() *frame {
	i := b.currentIndex()
	if i < 0 {
		return nil
	}
	return b.frames[i]
}

func (b *Builder) currentIndex() int {
	for i := len(b.frames) - 1; i >= 0; i-- {
		if !b.frames[i].parked {
			return i
		}
	}
	return -1
}

// path names the open frames, outermost first, for error reporting.
func (b *Builder) path() []string {
	var p []string
	for _, f := range b.frames {
		if f.label != "" && f.mode != modeTop {
			p = append(p, f.label)
		}
	}
	return p
}

func (b *Builder) open() (*frame, error) {
	if b.done {
		return nil, kiterrors.InvalidState("builder already finalized or closed")
	}
	f := b.current()
	if f == nil {
		return nil, kiterrors.InvalidState("builder has no open frame")
	}
	return f, nil
}

// BeginField descends into the named field of the current record or selected
// variant case. A previously initialized field is destroyed first, so the new
// frame always starts from uninitialized memory.
func (b *Builder) BeginField(name string) error {
	cur, err := b.open()
	if err != nil {
		return err
	}
	if cur.shape.Kind == shape.KindVariant && cur.selected < 0 {
		return kiterrors.NoActiveVariant(b.path(), cur.shape.Name)
	}
	table, base := cur.slotTable()
	if table == nil {
		return kiterrors.FieldNotFound(b.path(), cur.shape.Name, name)
	}
	idx := -1
	for i := range table {
		if table[i].Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		for i := range table {
			if strings.EqualFold(table[i].Name, name) {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		return kiterrors.FieldNotFound(b.path(), cur.shape.Name, name)
	}
	b.pushSlot(cur, table[idx], idx, base)
	return nil
}

// BeginNth descends into a field or array element by position.
func (b *Builder) BeginNth(i int) error {
	cur, err := b.open()
	if err != nil {
		return err
	}

	if cur.shape.Kind == shape.KindArray {
		if i < 0 || i >= cur.shape.ArrayLen {
			return kiterrors.OutOfBounds(b.path(), i, cur.shape.ArrayLen)
		}
		elem := cur.shape.Elem
		fd := shape.Field{
			Name:   "[" + strconv.Itoa(i) + "]",
			Index:  i,
			Offset: uintptr(i) * elem.Size,
			Shape:  elem,
		}
		b.pushSlot(cur, fd, i, cur.ptr)
		return nil
	}

	if cur.shape.Kind == shape.KindVariant && cur.selected < 0 {
		return kiterrors.NoActiveVariant(b.path(), cur.shape.Name)
	}
	table, base := cur.slotTable()
	if table == nil {
		return kiterrors.FieldNotFound(b.path(), cur.shape.Name, strconv.Itoa(i))
	}
	if i < 0 || i >= len(table) {
		return kiterrors.OutOfBounds(b.path(), i, len(table))
	}
	b.pushSlot(cur, table[i], i, base)
	return nil
}

// pushSlot opens a frame aliasing the parent's memory for slot fd. Any value
// already in the slot is dropped and zeroed first.
func (b *Builder) pushSlot(cur *frame, fd shape.Field, idx int, base unsafe.Pointer) {
	p := unsafe.Add(base, fd.Offset)
	if cur.init.Has(uint32(idx)) {
		dropSlot(fd.Shape, p)
		cur.init.Clear(uint32(idx))
	}
	nf := newFrame(fd.Shape, modeField)
	nf.ptr = p
	nf.slot = idx
	nf.label = fd.Name
	b.frames = append(b.frames, nf)
	debugf("begin %s %s", nf.mode, nf.label)
}

// SelectCase chooses the active case of the current variant frame. Selecting
// a different case after fields of the previous one were written destroys
// those fields before the new case is recorded; re-selecting the same case
// keeps its progress.
func (b *Builder) SelectCase(name string) error {
	cur, err := b.open()
	if err != nil {
		return err
	}
	if cur.shape.Kind != shape.KindVariant {
		return kiterrors.InvalidState("select case on non-variant shape " + cur.shape.Name)
	}
	idx := -1
	for i := range cur.shape.Cases {
		if cur.shape.Cases[i].Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		for i := range cur.shape.Cases {
			if strings.EqualFold(cur.shape.Cases[i].Name, name) {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		return kiterrors.VariantNotFound(b.path(), cur.shape.Name, name)
	}
	if cur.selected == idx && cur.payload != nil {
		return nil
	}
	if cur.selected >= 0 {
		debugf("reselect %s: dropping case %s", cur.shape, cur.shape.Cases[cur.selected].Name)
		cur.clearVariant()
		// A whole-value assignment may have materialized case pointers in the
		// variant memory itself; start the new case from zeroed bytes.
		zeroRegion(cur.shape, cur.ptr)
	}
	c := &cur.shape.Cases[idx]
	cur.selected = idx
	cur.bits = len(c.CaseFields())
	cur.init = bitset.New(cur.bits)
	cur.payload, cur.payloadOwner = c.Payload.NewPtr()
	return nil
}

// BeginItem descends into a fresh element of the current sequence frame. The
// first item on an untouched sequence also installs the empty container, so a
// sequence that receives items (or none at all after SetDefault) finalizes.
func (b *Builder) BeginItem() error {
	cur, err := b.open()
	if err != nil {
		return err
	}
	if cur.shape.Kind != shape.KindSlice {
		return kiterrors.InvalidState("begin item on non-sequence shape " + cur.shape.Name)
	}
	b.ensureContainer(cur)
	b.pushScratch(cur.shape.Elem, modeItem, "[item]")
	return nil
}

// BeginKey descends into a fresh key of the current map frame. The completed
// key stays parked on the stack until its value is popped.
func (b *Builder) BeginKey() error {
	cur, err := b.open()
	if err != nil {
		return err
	}
	if cur.shape.Kind != shape.KindMap {
		return kiterrors.InvalidState("begin key on non-map shape " + cur.shape.Name)
	}
	b.ensureContainer(cur)
	b.pushScratch(cur.shape.Key, modeKey, "[key]")
	return nil
}

// BeginValue descends into the value paired with the most recently parked
// key of the current map frame.
func (b *Builder) BeginValue() error {
	cur, err := b.open()
	if err != nil {
		return err
	}
	if cur.shape.Kind != shape.KindMap {
		return kiterrors.InvalidState("begin value on non-map shape " + cur.shape.Name)
	}
	ci := b.currentIndex()
	ki := -1
	for j := len(b.frames) - 1; j > ci; j-- {
		if b.frames[j].parked && !b.frames[j].moved {
			ki = j
			break
		}
	}
	if ki < 0 {
		return kiterrors.InvalidState("begin value with no pending map key")
	}
	nf := b.pushScratch(cur.shape.Value, modeValue, "[value]")
	nf.keyIndex = ki
	return nil
}

// BeginSome descends into the payload of the current optional frame. An
// already-present optional is destroyed first.
func (b *Builder) BeginSome() error {
	cur, err := b.open()
	if err != nil {
		return err
	}
	if cur.shape.Kind != shape.KindOption {
		return kiterrors.InvalidState("begin payload on non-optional shape " + cur.shape.Name)
	}
	b.clearLeaf(cur)
	b.pushScratch(cur.shape.Elem, modeSome, "[some]")
	return nil
}

// BeginPointee descends into the interior of the current smart-pointer
// frame. Popping the completed interior wraps it via the shape's wrap
// operation.
func (b *Builder) BeginPointee() error {
	cur, err := b.open()
	if err != nil {
		return err
	}
	if cur.shape.Kind != shape.KindPointer || cur.shape.Ops.Wrap == nil {
		return kiterrors.InvalidState("begin interior on non-constructible pointer shape " + cur.shape.Name)
	}
	b.clearLeaf(cur)
	b.pushScratch(cur.shape.Interior, modePointee, "[interior]")
	return nil
}

// ensureContainer installs the empty container on a sequence or map frame
// that has not been touched yet and marks its leaf bit, so containers that
// only ever receive elements still finalize.
func (b *Builder) ensureContainer(cur *frame) {
	if !cur.init.Has(0) {
		cur.shape.Ops.Default(cur.ptr)
		cur.init.Set(0)
	}
}

func (b *Builder) clearLeaf(cur *frame) {
	if cur.init.Has(0) {
		dropSlot(cur.shape, cur.ptr)
		cur.init.Clear(0)
	}
}

func (b *Builder) pushScratch(s *shape.Shape, m mode, label string) *frame {
	nf := newFrame(s, m)
	nf.ptr, nf.owner = s.NewPtr()
	nf.label = label
	b.frames = append(b.frames, nf)
	debugf("begin %s %s", m, s)
	return nf
}

// Pop ascends out of the current frame. A fully initialized frame is spliced
// into its parent according to its mode; an incomplete frame is destroyed
// (only the parts actually written) and the parent slot stays unset, so the
// omission surfaces at Finalize.
func (b *Builder) Pop() error {
	if b.done {
		return kiterrors.InvalidState("builder already finalized or closed")
	}
	ci := b.currentIndex()
	if ci < 0 {
		return kiterrors.InvalidState("builder has no open frame")
	}
	f := b.frames[ci]
	if f.mode == modeTop {
		return kiterrors.InvalidState("top-level frame is only removed by Finalize")
	}

	// Parked keys above f were opened inside it and never paired; abandon
	// their contents along with the frame boundary.
	for _, g := range b.frames[ci+1:] {
		g.dropContents()
	}
	b.frames = b.frames[:ci]

	if !f.complete() {
		debugf("pop incomplete %s %s", f.mode, f.shape)
		f.dropContents()
		return nil
	}
	if f.shape.Kind == shape.KindVariant && f.payload != nil {
		f.materializeVariant()
	}

	parent := b.current()
	switch f.mode {
	case modeField:
		parent.init.Set(uint32(f.slot))

	case modeItem:
		parent.shape.Ops.Push(parent.ptr, f.ptr)
		f.moved = true

	case modeKey:
		f.parked = true
		b.frames = append(b.frames, f)

	case modeValue:
		key := b.frames[f.keyIndex]
		parent.shape.Ops.Insert(parent.ptr, key.ptr, f.ptr)
		key.moved = true
		f.moved = true
		b.frames = append(b.frames[:f.keyIndex], b.frames[f.keyIndex+1:]...)

	case modeSome:
		parent.shape.Ops.InitPresent(parent.ptr, f.ptr)
		f.moved = true
		parent.init.Set(0)

	case modePointee:
		parent.shape.Ops.Wrap(parent.ptr, f.ptr)
		f.moved = true
		parent.init.Set(0)
	}
	debugf("pop %s %s", f.mode, f.shape)
	return nil
}

// SetDefault writes the current frame's default value, destroying whatever
// was already written. Variants have no default; a case must be selected.
func (b *Builder) SetDefault() error {
	cur, err := b.open()
	if err != nil {
		return err
	}
	if cur.shape.Kind == shape.KindVariant {
		return kiterrors.Unsupported(kiterrors.PhaseBuild, "variant shapes have no default value")
	}
	cur.dropContents()
	zeroRegion(cur.shape, cur.ptr)
	cur.shape.Ops.Default(cur.ptr)
	markAll(cur)
	return nil
}

// Finalize validates that the sole remaining frame is fully initialized and
// returns the built value as a *T boxed in any. On success the builder no
// longer owns the value; on failure the builder is left intact so the caller
// can inspect and then Close it.
func (b *Builder) Finalize() (any, error) {
	if b.done {
		return nil, kiterrors.InvalidState("builder already finalized or closed")
	}
	if len(b.frames) != 1 {
		return nil, kiterrors.InvalidState("nested frames still open")
	}
	f := b.frames[0]
	if f.shape.Kind == shape.KindVariant && f.selected < 0 {
		return nil, kiterrors.NoActiveVariant(nil, f.shape.Name)
	}
	if !f.complete() {
		return nil, kiterrors.NotFullyInitialized(f.shape.Name, missingSlots(f))
	}
	if f.shape.Kind == shape.KindVariant && f.payload != nil {
		f.materializeVariant()
	}
	b.frames = nil
	b.done = true
	debugf("finalize %s", f.shape)
	return f.shape.Interface(f.ptr), nil
}

// Close abandons construction, destroying every sub-value that was written,
// innermost frames first. Safe to call at any point and after Finalize, where
// it is a no-op.
func (b *Builder) Close() {
	for i := len(b.frames) - 1; i >= 0; i-- {
		b.frames[i].dropContents()
	}
	b.frames = nil
	b.done = true
}

// CurrentShape returns the shape of the frame open for mutation, or nil once
// the builder is finalized or closed.
func (b *Builder) CurrentShape() *shape.Shape {
	f := b.current()
	if f == nil {
		return nil
	}
	return f.shape
}

// IsFieldSet reports whether slot i of the current frame holds a value.
func (b *Builder) IsFieldSet(i int) bool {
	f := b.current()
	return f != nil && i >= 0 && f.init.Has(uint32(i))
}

// SelectedCase returns the active case of the current variant frame.
func (b *Builder) SelectedCase() (shape.Case, bool) {
	f := b.current()
	if f == nil || f.shape.Kind != shape.KindVariant || f.selected < 0 {
		return shape.Case{}, false
	}
	return f.shape.Cases[f.selected], true
}

// Depth returns the number of open frames.
func (b *Builder) Depth() int {
	n := 0
	for _, f := range b.frames {
		if !f.parked {
			n++
		}
	}
	return n
}

// missingSlots names the uninitialized slots of f for error reporting.
func missingSlots(f *frame) []string {
	var missing []string
	switch f.shape.Kind {
	case shape.KindStruct:
		for i, fd := range f.shape.Fields {
			if !f.init.Has(uint32(i)) {
				missing = append(missing, fd.Name)
			}
		}
	case shape.KindArray:
		for i := 0; i < f.shape.ArrayLen; i++ {
			if !f.init.Has(uint32(i)) {
				missing = append(missing, "["+strconv.Itoa(i)+"]")
			}
		}
	case shape.KindVariant:
		fields := f.shape.Cases[f.selected].CaseFields()
		for i := range fields {
			if !f.init.Has(uint32(i)) {
				missing = append(missing, fields[i].Name)
			}
		}
	default:
		missing = append(missing, "value")
	}
	return missing
}

// markAll records every slot of f as initialized after a whole-value write.
func markAll(f *frame) {
	switch f.shape.Kind {
	case shape.KindStruct:
		for i := range f.shape.Fields {
			f.init.Set(uint32(i))
		}
	case shape.KindArray:
		for i := 0; i < f.shape.ArrayLen; i++ {
			f.init.Set(uint32(i))
		}
	default:
		f.init.Set(0)
	}
}

func dropSlot(s *shape.Shape, p unsafe.Pointer) {
	if d := s.Ops.Drop; d != nil {
		d(p)
	}
	zeroRegion(s, p)
}

func zeroRegion(s *shape.Shape, p unsafe.Pointer) {
	if s.Size == 0 {
		return
	}
	reflect.NewAt(s.Type, p).Elem().SetZero()
}
