package partial_test

import (
	"errors"
	"reflect"
	"testing"

	kiterrors "github.com/shapekit/shapekit/errors"
	"github.com/shapekit/shapekit/partial"
	"github.com/shapekit/shapekit/shape"
)

// sentinel counts destructor invocations through a shared counter, so tests
// can assert "dropped exactly once" across splices, overwrites and abandons.
type sentinel struct {
	ID    int
	Drops *int
}

func (s *sentinel) Drop() {
	if s.Drops != nil {
		*s.Drops++
	}
}

type pair struct {
	A string
	B int64
}

func mustBuilder[T any](t *testing.T, reg *shape.Registry) *partial.Builder {
	t.Helper()
	b, err := partial.New[T](reg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b
}

func step(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("builder op: %v", err)
	}
}

func TestBuildRecordInOrder(t *testing.T) {
	reg := shape.NewRegistry()
	b := mustBuilder[pair](t, reg)

	step(t, b.BeginField("A"))
	step(t, b.Set("hello"))
	step(t, b.Pop())
	step(t, b.BeginField("B"))
	step(t, b.Set(int64(42)))
	step(t, b.Pop())

	got, err := partial.Build[pair](b)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got.A != "hello" || got.B != 42 {
		t.Errorf("got %+v", *got)
	}
}

func TestFinalizeMissingField(t *testing.T) {
	reg := shape.NewRegistry()
	b := mustBuilder[pair](t, reg)
	defer b.Close()

	step(t, b.BeginField("A"))
	step(t, b.Set("only"))
	step(t, b.Pop())

	_, err := b.Finalize()
	if err == nil {
		t.Fatal("finalize succeeded with field B missing")
	}
	var ke *kiterrors.Error
	if !errors.As(err, &ke) || ke.Kind != kiterrors.KindNotInitialized {
		t.Fatalf("error = %v, want not_initialized", err)
	}
	if ke.Detail != "missing B" {
		t.Errorf("detail = %q, want it to name field B", ke.Detail)
	}
}

type clickData struct {
	X int64
	Y int64
}

type unitCase struct{}

type uiEvent struct {
	Click *clickData `shape:"case"`
	Mark  *sentinel  `shape:"case"`
	Quit  *unitCase  `shape:"case"`
}

func TestVariantBuild(t *testing.T) {
	reg := shape.NewRegistry()
	b := mustBuilder[uiEvent](t, reg)

	step(t, b.SelectCase("Click"))
	step(t, b.BeginField("X"))
	step(t, b.Set(int64(3)))
	step(t, b.Pop())
	step(t, b.BeginField("Y"))
	step(t, b.Set(int64(4)))
	step(t, b.Pop())

	got, err := partial.Build[uiEvent](b)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got.Click == nil || got.Click.X != 3 || got.Click.Y != 4 {
		t.Errorf("Click = %+v", got.Click)
	}
	if got.Mark != nil || got.Quit != nil {
		t.Error("inactive cases are non-nil")
	}
}

func TestVariantUnitCase(t *testing.T) {
	reg := shape.NewRegistry()
	b := mustBuilder[uiEvent](t, reg)

	step(t, b.SelectCase("Quit"))

	got, err := partial.Build[uiEvent](b)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got.Quit == nil {
		t.Error("unit case pointer is nil")
	}
	if got.Click != nil || got.Mark != nil {
		t.Error("inactive cases are non-nil")
	}
}

func TestVariantSwitchDropsPreviousArm(t *testing.T) {
	reg := shape.NewRegistry()
	b := mustBuilder[uiEvent](t, reg)
	defer b.Close()

	drops := 0
	step(t, b.SelectCase("Mark"))
	step(t, b.Set(sentinel{ID: 1, Drops: &drops}))

	step(t, b.SelectCase("Quit"))
	if drops != 1 {
		t.Fatalf("drops = %d, want exactly 1 before the new arm proceeds", drops)
	}

	got, err := partial.Build[uiEvent](b)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got.Quit == nil || got.Mark != nil {
		t.Errorf("got %+v", *got)
	}
	if drops != 1 {
		t.Errorf("drops = %d after finalize, want still 1", drops)
	}
}

func TestVariantFieldBeforeSelect(t *testing.T) {
	reg := shape.NewRegistry()
	b := mustBuilder[uiEvent](t, reg)
	defer b.Close()

	err := b.BeginField("X")
	var ke *kiterrors.Error
	if !errors.As(err, &ke) || ke.Kind != kiterrors.KindNoActiveVariant {
		t.Errorf("error = %v, want no_active_variant", err)
	}
}

func TestVariantReselectSameCaseKeepsProgress(t *testing.T) {
	reg := shape.NewRegistry()
	b := mustBuilder[uiEvent](t, reg)
	defer b.Close()

	step(t, b.SelectCase("Click"))
	step(t, b.BeginField("X"))
	step(t, b.Set(int64(7)))
	step(t, b.Pop())

	step(t, b.SelectCase("Click"))
	if !b.IsFieldSet(0) {
		t.Error("re-selecting the same case lost progress")
	}
}

func TestArrayOutOfOrder(t *testing.T) {
	reg := shape.NewRegistry()
	b := mustBuilder[[3]int64](t, reg)

	set := func(i int, v int64) {
		t.Helper()
		step(t, b.BeginNth(i))
		step(t, b.Set(v))
		step(t, b.Pop())
	}

	set(2, 30)
	set(0, 10)

	if _, err := b.Finalize(); err == nil {
		t.Fatal("finalize succeeded with element 1 missing")
	}

	set(1, 20)

	got, err := partial.Build[[3]int64](b)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if *got != [3]int64{10, 20, 30} {
		t.Errorf("got %v", *got)
	}
}

func TestFirstFitAssignment(t *testing.T) {
	reg := shape.NewRegistry()
	b := mustBuilder[pair](t, reg)

	// No field selection: each value lands in the first uninitialized slot
	// whose shape takes it.
	step(t, b.Set("positional"))
	step(t, b.Set(int64(9)))

	got, err := partial.Build[pair](b)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got.A != "positional" || got.B != 9 {
		t.Errorf("got %+v", *got)
	}
}

func TestFirstFitConversion(t *testing.T) {
	reg := shape.NewRegistry()
	b := mustBuilder[pair](t, reg)

	step(t, b.Set("s"))
	// int8 reaches the int64 slot through numeric conversion.
	step(t, b.Set(int8(5)))

	got, err := partial.Build[pair](b)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got.B != 5 {
		t.Errorf("B = %d, want 5", got.B)
	}
}

func TestAbandonPointeeFrame(t *testing.T) {
	reg := shape.NewRegistry()
	b := mustBuilder[shape.Box[sentinel]](t, reg)

	drops := 0
	step(t, b.BeginPointee())
	step(t, b.Set(sentinel{ID: 6, Drops: &drops}))

	// Never popped, never wrapped: abandoning must destroy the interior
	// exactly once.
	b.Close()
	if drops != 1 {
		t.Fatalf("drops = %d, want 1", drops)
	}
}

func TestBoxBuildAndRelease(t *testing.T) {
	reg := shape.NewRegistry()
	drops := 0

	b := mustBuilder[shape.Box[sentinel]](t, reg)
	step(t, b.BeginPointee())
	step(t, b.Set(sentinel{ID: 2, Drops: &drops}))
	step(t, b.Pop())

	box, err := partial.Build[shape.Box[sentinel]](b)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !box.Alive() || box.Get().ID != 2 {
		t.Fatalf("box: alive=%v", box.Alive())
	}
	if drops != 0 {
		t.Fatalf("interior dropped during construction: %d", drops)
	}
	box.Drop()
	if drops != 1 {
		t.Errorf("drops = %d, want 1", drops)
	}
}

func TestBoxCloseAfterWrap(t *testing.T) {
	reg := shape.NewRegistry()
	drops := 0

	b := mustBuilder[shape.Box[sentinel]](t, reg)
	step(t, b.BeginPointee())
	step(t, b.Set(sentinel{ID: 3, Drops: &drops}))
	step(t, b.Pop())

	// The interior was wrapped; closing releases the box's strong count and
	// the interior drops exactly once, through the box, not the scratch.
	b.Close()
	if drops != 1 {
		t.Fatalf("drops = %d, want 1", drops)
	}
}

func TestWeakCannotBeBuiltDirectly(t *testing.T) {
	reg := shape.NewRegistry()
	b := mustBuilder[shape.Weak[int]](t, reg)
	defer b.Close()

	if err := b.BeginPointee(); err == nil {
		t.Error("begin interior on a weak shape succeeded")
	}
}

type inventory struct {
	Items []sentinel
}

func TestReassignmentDropsOldValue(t *testing.T) {
	reg := shape.NewRegistry()
	drops := 0

	type holder struct {
		Res sentinel
	}
	b := mustBuilder[holder](t, reg)

	step(t, b.BeginField("Res"))
	step(t, b.Set(sentinel{ID: 1, Drops: &drops}))
	step(t, b.Pop())

	step(t, b.BeginField("Res"))
	if drops != 1 {
		t.Fatalf("drops = %d after re-open, want 1", drops)
	}
	step(t, b.Set(sentinel{ID: 2, Drops: &drops}))
	step(t, b.Pop())

	got, err := partial.Build[holder](b)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got.Res.ID != 2 {
		t.Errorf("ID = %d, want the second value", got.Res.ID)
	}
	if drops != 1 {
		t.Errorf("drops = %d, want exactly 1", drops)
	}
}

func TestSliceBuild(t *testing.T) {
	reg := shape.NewRegistry()
	b := mustBuilder[inventory](t, reg)
	drops := 0

	step(t, b.BeginField("Items"))
	for i := 1; i <= 3; i++ {
		step(t, b.BeginItem())
		step(t, b.Set(sentinel{ID: i, Drops: &drops}))
		step(t, b.Pop())
	}
	step(t, b.Pop())

	got, err := partial.Build[inventory](b)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(got.Items) != 3 || got.Items[0].ID != 1 || got.Items[2].ID != 3 {
		t.Errorf("Items = %+v", got.Items)
	}
	if drops != 0 {
		t.Errorf("elements dropped during construction: %d", drops)
	}
}

func TestSliceCloseDropsElements(t *testing.T) {
	reg := shape.NewRegistry()
	b := mustBuilder[inventory](t, reg)
	drops := 0

	step(t, b.BeginField("Items"))
	step(t, b.BeginItem())
	step(t, b.Set(sentinel{ID: 1, Drops: &drops}))
	step(t, b.Pop())
	step(t, b.BeginItem())
	step(t, b.Set(sentinel{ID: 2, Drops: &drops}))
	// Second item still open.

	b.Close()
	if drops != 2 {
		t.Fatalf("drops = %d, want 2 (one pushed element, one open frame)", drops)
	}
}

func TestUntouchedSliceNotInitialized(t *testing.T) {
	reg := shape.NewRegistry()
	b := mustBuilder[[]int](t, reg)
	defer b.Close()

	if _, err := b.Finalize(); err == nil {
		t.Fatal("finalize succeeded on an untouched sequence")
	}
}

func TestSetDefaultFinalizesEmptyContainer(t *testing.T) {
	reg := shape.NewRegistry()
	b := mustBuilder[[]int](t, reg)

	step(t, b.SetDefault())
	got, err := partial.Build[[]int](b)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if *got == nil || len(*got) != 0 {
		t.Errorf("got %v, want empty non-nil slice", *got)
	}
}

func TestMapBuild(t *testing.T) {
	reg := shape.NewRegistry()
	b := mustBuilder[map[string]int64](t, reg)

	put := func(k string, v int64) {
		t.Helper()
		step(t, b.BeginKey())
		step(t, b.Set(k))
		step(t, b.Pop())
		step(t, b.BeginValue())
		step(t, b.Set(v))
		step(t, b.Pop())
	}
	put("one", 1)
	put("two", 2)

	got, err := partial.Build[map[string]int64](b)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(*got) != 2 || (*got)["one"] != 1 || (*got)["two"] != 2 {
		t.Errorf("got %v", *got)
	}
}

func TestMapIncompleteValueKeepsKey(t *testing.T) {
	reg := shape.NewRegistry()
	b := mustBuilder[map[string]int64](t, reg)

	step(t, b.BeginKey())
	step(t, b.Set("k"))
	step(t, b.Pop())

	step(t, b.BeginValue())
	step(t, b.Pop()) // nothing assigned: entry not inserted, key stays parked

	step(t, b.BeginValue())
	step(t, b.Set(int64(5)))
	step(t, b.Pop())

	got, err := partial.Build[map[string]int64](b)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if (*got)["k"] != 5 {
		t.Errorf("got %v", *got)
	}
}

func TestMapCloseDropsParkedKey(t *testing.T) {
	reg := shape.NewRegistry()
	drops := 0

	b := mustBuilder[map[sentinel]int64](t, reg)
	step(t, b.BeginKey())
	step(t, b.Set(sentinel{ID: 1, Drops: &drops}))
	step(t, b.Pop())

	b.Close()
	if drops != 1 {
		t.Fatalf("drops = %d, want 1 for the parked key", drops)
	}
}

func TestOptionAutoWrap(t *testing.T) {
	reg := shape.NewRegistry()
	b := mustBuilder[*int64](t, reg)

	step(t, b.Set(int64(11)))

	got, err := partial.Build[*int64](b)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if *got == nil || **got != 11 {
		t.Errorf("got %v", *got)
	}
}

func TestOptionExplicitPayload(t *testing.T) {
	reg := shape.NewRegistry()

	type form struct {
		Note *string
	}
	b := mustBuilder[form](t, reg)

	step(t, b.BeginField("Note"))
	step(t, b.BeginSome())
	step(t, b.Set("present"))
	step(t, b.Pop())
	step(t, b.Pop())

	got, err := partial.Build[form](b)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got.Note == nil || *got.Note != "present" {
		t.Errorf("Note = %v", got.Note)
	}
}

func TestIncompleteChildLeavesParentUnset(t *testing.T) {
	reg := shape.NewRegistry()
	drops := 0

	type sentinelOuter struct {
		In struct {
			Res  sentinel
			Name string
		}
	}

	b := mustBuilder[sentinelOuter](t, reg)
	step(t, b.BeginField("In"))
	step(t, b.BeginField("Res"))
	step(t, b.Set(sentinel{ID: 1, Drops: &drops}))
	step(t, b.Pop())
	step(t, b.Pop()) // Name never set: inner frame incomplete

	if drops != 1 {
		t.Fatalf("drops = %d, want 1 from the abandoned inner frame", drops)
	}
	if b.IsFieldSet(0) {
		t.Error("parent slot marked set after incomplete child pop")
	}
	if _, err := b.Finalize(); err == nil {
		t.Fatal("finalize succeeded with an unset field")
	}
	b.Close()
	if drops != 1 {
		t.Errorf("drops = %d after close, want still 1", drops)
	}
}

func TestPopTopLevelFails(t *testing.T) {
	reg := shape.NewRegistry()
	b := mustBuilder[pair](t, reg)
	defer b.Close()

	if err := b.Pop(); err == nil {
		t.Error("pop of the top-level frame succeeded")
	}
}

func TestFieldNotFound(t *testing.T) {
	reg := shape.NewRegistry()
	b := mustBuilder[pair](t, reg)
	defer b.Close()

	err := b.BeginField("Nope")
	var ke *kiterrors.Error
	if !errors.As(err, &ke) || ke.Kind != kiterrors.KindFieldNotFound {
		t.Errorf("error = %v, want field_not_found", err)
	}
}

func TestUnsizedAlloc(t *testing.T) {
	reg := shape.NewRegistry()
	s, err := reg.ShapeOf(reflect.TypeOf(func() {}))
	if err != nil {
		t.Fatalf("ShapeOf: %v", err)
	}
	_, err = partial.Alloc(reg, s)
	var ke *kiterrors.Error
	if !errors.As(err, &ke) || ke.Kind != kiterrors.KindUnsized {
		t.Errorf("error = %v, want unsized", err)
	}
}

func TestFinalizedValueNotDroppedByClose(t *testing.T) {
	reg := shape.NewRegistry()
	drops := 0

	type holder struct {
		Res sentinel
	}
	b := mustBuilder[holder](t, reg)
	step(t, b.BeginField("Res"))
	step(t, b.Set(sentinel{ID: 1, Drops: &drops}))
	step(t, b.Pop())

	got, err := partial.Build[holder](b)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	b.Close()
	if drops != 0 {
		t.Fatalf("drops = %d, want 0: ownership moved to the caller", drops)
	}
	if got.Res.ID != 1 {
		t.Errorf("result mutated by close: %+v", *got)
	}
}

func TestIntrospection(t *testing.T) {
	reg := shape.NewRegistry()
	b := mustBuilder[uiEvent](t, reg)
	defer b.Close()

	if b.CurrentShape().Kind != shape.KindVariant {
		t.Errorf("CurrentShape = %s", b.CurrentShape())
	}
	if _, ok := b.SelectedCase(); ok {
		t.Error("SelectedCase reported a selection before any was made")
	}
	step(t, b.SelectCase("Click"))
	c, ok := b.SelectedCase()
	if !ok || c.Name != "Click" {
		t.Errorf("SelectedCase = %v, %v", c, ok)
	}
	if b.Depth() != 1 {
		t.Errorf("Depth = %d, want 1", b.Depth())
	}
}
