package partial_test

import (
	"errors"
	"testing"
	"unsafe"

	kiterrors "github.com/shapekit/shapekit/errors"
	"github.com/shapekit/shapekit/partial"
	"github.com/shapekit/shapekit/shape"
)

type portNumber struct {
	Value uint16 `shape:"inner"`
}

func TestAssignWrapperInner(t *testing.T) {
	reg := shape.NewRegistry()
	b := mustBuilder[portNumber](t, reg)

	step(t, b.Set(uint16(8080)))

	got, err := partial.Build[portNumber](b)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got.Value != 8080 {
		t.Errorf("Value = %d, want 8080", got.Value)
	}
}

func TestAssignWrapperThroughConversion(t *testing.T) {
	reg := shape.NewRegistry()
	b := mustBuilder[portNumber](t, reg)

	// int lands in the uint16 inner shape via exact narrowing.
	step(t, b.Set(443))

	got, err := partial.Build[portNumber](b)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got.Value != 443 {
		t.Errorf("Value = %d, want 443", got.Value)
	}
}

func TestConversionRefusedKeepsOldValue(t *testing.T) {
	reg := shape.NewRegistry()
	b := mustBuilder[uint8](t, reg)

	step(t, b.Set(uint8(7)))

	err := b.Set(int64(300))
	var ke *kiterrors.Error
	if !errors.As(err, &ke) || ke.Kind != kiterrors.KindConversionFailed {
		t.Fatalf("error = %v, want conversion_failed", err)
	}

	got, buildErr := partial.Build[uint8](b)
	if buildErr != nil {
		t.Fatalf("Build: %v", buildErr)
	}
	if *got != 7 {
		t.Errorf("got %d, want the original 7", *got)
	}
}

func TestAssignShapeMismatch(t *testing.T) {
	reg := shape.NewRegistry()
	b := mustBuilder[string](t, reg)
	defer b.Close()

	err := b.Set(true)
	var ke *kiterrors.Error
	if !errors.As(err, &ke) || ke.Kind != kiterrors.KindShapeMismatch {
		t.Fatalf("error = %v, want shape_mismatch", err)
	}
	if ke.Expected != "string" || ke.Actual != "bool" {
		t.Errorf("expected/actual = %q/%q", ke.Expected, ke.Actual)
	}
}

func TestAssignWholeOverwriteDropsOld(t *testing.T) {
	reg := shape.NewRegistry()
	drops := 0

	b := mustBuilder[sentinel](t, reg)
	step(t, b.Set(sentinel{ID: 1, Drops: &drops}))
	step(t, b.Set(sentinel{ID: 2, Drops: &drops}))
	if drops != 1 {
		t.Fatalf("drops = %d after overwrite, want 1", drops)
	}

	got, err := partial.Build[sentinel](b)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got.ID != 2 {
		t.Errorf("ID = %d, want the second value", got.ID)
	}
	if drops != 1 {
		t.Errorf("drops = %d, want still 1", drops)
	}
}

func TestSetShaped(t *testing.T) {
	reg := shape.NewRegistry()
	b := mustBuilder[pair](t, reg)

	v := pair{A: "raw", B: 3}
	ps, err := reg.Of(v)
	if err != nil {
		t.Fatalf("Of: %v", err)
	}
	step(t, b.SetShaped(unsafe.Pointer(&v), ps))

	got, err := partial.Build[pair](b)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got.A != "raw" || got.B != 3 {
		t.Errorf("got %+v", *got)
	}
}

func TestVariantWholePayloadAssign(t *testing.T) {
	reg := shape.NewRegistry()
	b := mustBuilder[uiEvent](t, reg)

	step(t, b.SelectCase("Click"))
	step(t, b.Set(clickData{X: 1, Y: 2}))

	got, err := partial.Build[uiEvent](b)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got.Click == nil || got.Click.X != 1 || got.Click.Y != 2 {
		t.Errorf("Click = %+v", got.Click)
	}
}

func TestVariantWholeAssignThenDescend(t *testing.T) {
	reg := shape.NewRegistry()
	b := mustBuilder[uiEvent](t, reg)

	step(t, b.Set(uiEvent{Click: &clickData{X: 1, Y: 2}}))

	// Re-open a field of the assigned case and overwrite it.
	step(t, b.BeginField("Y"))
	step(t, b.Set(int64(9)))
	step(t, b.Pop())

	got, err := partial.Build[uiEvent](b)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got.Click == nil || got.Click.X != 1 || got.Click.Y != 9 {
		t.Errorf("Click = %+v, want {X:1 Y:9}", got.Click)
	}
}

func TestVariantWholeAssignThenReplacePayload(t *testing.T) {
	reg := shape.NewRegistry()
	b := mustBuilder[uiEvent](t, reg)

	step(t, b.Set(uiEvent{Click: &clickData{X: 1, Y: 2}}))
	step(t, b.Set(clickData{X: 5, Y: 6}))

	got, err := partial.Build[uiEvent](b)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got.Click == nil || got.Click.X != 5 || got.Click.Y != 6 {
		t.Errorf("Click = %+v, want {X:5 Y:6}", got.Click)
	}
}

func TestVariantWholeAssignCloseDropsPayload(t *testing.T) {
	reg := shape.NewRegistry()
	drops := 0

	b := mustBuilder[uiEvent](t, reg)
	step(t, b.Set(uiEvent{Mark: &sentinel{ID: 1, Drops: &drops}}))
	b.Close()

	if drops != 1 {
		t.Errorf("drops = %d after close, want 1", drops)
	}
}

func FuzzNumericAssign(f *testing.F) {
	f.Add(int64(0))
	f.Add(int64(255))
	f.Add(int64(256))
	f.Add(int64(-1))
	f.Add(int64(1) << 40)

	reg := shape.NewRegistry()
	f.Fuzz(func(t *testing.T, v int64) {
		b, err := partial.New[uint8](reg)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		defer b.Close()

		err = b.Set(v)
		fits := v >= 0 && v <= 255
		if fits != (err == nil) {
			t.Fatalf("Set(%d): err = %v, fits = %v", v, err, fits)
		}
		if !fits {
			return
		}
		got, err := partial.Build[uint8](b)
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		if int64(*got) != v {
			t.Errorf("got %d, want %d", *got, v)
		}
	})
}
