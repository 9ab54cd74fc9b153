package errors

import (
	stderrors "errors"
	"strings"
	"testing"
)

func TestError_Format(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name:     "phase_and_kind",
			err:      New(PhaseBuild, KindShapeMismatch).Build(),
			contains: []string{"[build]", "shape_mismatch"},
		},
		{
			name:     "with_path",
			err:      New(PhaseBuild, KindFieldNotFound).Path("outer", "inner").Build(),
			contains: []string{"at outer.inner"},
		},
		{
			name:     "expected_and_actual",
			err:      ShapeMismatch(nil, "int32", "string"),
			contains: []string{"expected int32", "got string"},
		},
		{
			name:     "detail",
			err:      New(PhaseConvert, KindConversionFailed).Detail("value %d overflows", 300).Build(),
			contains: []string{"value 300 overflows"},
		},
		{
			name:     "cause",
			err:      Wrap(PhaseFinalize, KindNotInitialized, stderrors.New("boom"), "finalize"),
			contains: []string{"caused by: boom"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, want := range tt.contains {
				if !strings.Contains(msg, want) {
					t.Errorf("error %q missing %q", msg, want)
				}
			}
		})
	}
}

func TestError_Is(t *testing.T) {
	err := FieldNotFound([]string{"a"}, "Point", "z")

	if !stderrors.Is(err, &Error{Phase: PhaseBuild, Kind: KindFieldNotFound}) {
		t.Error("should match on phase+kind")
	}
	if stderrors.Is(err, &Error{Phase: PhaseBuild, Kind: KindShapeMismatch}) {
		t.Error("should not match different kind")
	}
	if stderrors.Is(err, &Error{Phase: PhaseFinalize, Kind: KindFieldNotFound}) {
		t.Error("should not match different phase")
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := stderrors.New("inner")
	err := Wrap(PhaseBuild, KindInvalidState, cause, "outer")

	if !stderrors.Is(err, cause) {
		t.Error("wrapped cause should be reachable via errors.Is")
	}
}

func TestNotFullyInitialized_NamesMissingFields(t *testing.T) {
	err := NotFullyInitialized("Point", []string{"x", "y"})
	msg := err.Error()
	if !strings.Contains(msg, "missing x, y") {
		t.Errorf("error %q should name missing fields", msg)
	}
}
