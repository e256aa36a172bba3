package errors

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
		excludes []string
	}{
		{
			name: "full error",
			err: New(PhaseDecode, KindInvalidOpcode).
				Section("code").
				At(42).
				Opcode(0xfc12).
				Detail("unknown misc sub-opcode").
				Build(),
			contains: []string{"[decode]", "invalid_opcode", "in code section", "at offset 42", "0xfc12", "unknown misc sub-opcode"},
		},
		{
			name:     "minimal error",
			err:      New(PhaseVisit, KindOutOfBounds).Build(),
			contains: []string{"[visit]", "out_of_bounds"},
			excludes: []string{"offset", "opcode", "section"},
		},
		{
			name:     "error with cause",
			err:      Truncated("import", 9, io.ErrUnexpectedEOF),
			contains: []string{"[decode]", "truncated", "import section", "at offset 9", "caused by", "unexpected EOF"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
			for _, s := range tt.excludes {
				if strings.Contains(msg, s) {
					t.Errorf("error message %q should not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(PhaseEngine, KindInvalidData, cause, "compile")

	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should see the cause through the chain")
	}
}

func TestError_Is(t *testing.T) {
	err := Framing("type", 12, "section length mismatch")

	if !err.Is(&Error{Phase: PhaseDecode, Kind: KindFraming}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseVisit, Kind: KindFraming}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseDecode, Kind: KindTruncated}) {
		t.Error("Is should not match different kind")
	}

	wrapped := Wrap(PhaseLoad, KindInvalidData, err, "load module")
	if !errors.Is(wrapped, &Error{Phase: PhaseDecode, Kind: KindFraming}) {
		t.Error("errors.Is should find the framing error through a wrap")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseDecode, KindUnsupported).
		Section("element").
		At(100).
		Value(5).
		Cause(cause).
		Detail("element segment flags %d", 5).
		Build()

	if err.Phase != PhaseDecode || err.Kind != KindUnsupported {
		t.Errorf("Phase/Kind = %v/%v", err.Phase, err.Kind)
	}
	if err.Section != "element" {
		t.Errorf("Section = %q, want element", err.Section)
	}
	if err.Offset != 100 {
		t.Errorf("Offset = %d, want 100", err.Offset)
	}
	if err.Value != 5 {
		t.Errorf("Value = %v, want 5", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "element segment flags 5" {
		t.Errorf("Detail = %q", err.Detail)
	}
}

func TestIsUnsupported(t *testing.T) {
	if !IsUnsupported(Unsupported(PhaseDecode, "SIMD")) {
		t.Error("decode unsupported not detected")
	}
	if !IsUnsupported(Wrap(PhaseLoad, KindInvalidData, Unsupported(PhaseDecode, "threads"), "load")) {
		t.Error("wrapped unsupported not detected")
	}
	if IsUnsupported(InvalidOpcode(3, 0xff)) {
		t.Error("invalid opcode reported as unsupported")
	}
	if IsUnsupported(io.EOF) {
		t.Error("plain error reported as unsupported")
	}
}

func TestKindOf(t *testing.T) {
	k, ok := KindOf(NotImplemented(0x45, "i32.eqz"))
	if !ok || k != KindNotImplemented {
		t.Errorf("KindOf = %v, %v", k, ok)
	}
	if _, ok := KindOf(io.EOF); ok {
		t.Error("KindOf should fail on unstructured error")
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("OutOfBounds", func(t *testing.T) {
		err := OutOfBounds(PhaseDecode, "function", 10, 5)
		if err.Kind != KindOutOfBounds {
			t.Errorf("Kind = %v, want %v", err.Kind, KindOutOfBounds)
		}
		if err.Value != 10 {
			t.Errorf("Value = %v, want 10", err.Value)
		}
		if !strings.Contains(err.Detail, "function index 10") {
			t.Errorf("Detail = %q", err.Detail)
		}
	})

	t.Run("InvalidOpcode", func(t *testing.T) {
		err := InvalidOpcode(77, 0xd7)
		if err.Opcode != 0xd7 || err.Offset != 77 {
			t.Errorf("Opcode=%#x Offset=%d", err.Opcode, err.Offset)
		}
	})

	t.Run("Mismatch", func(t *testing.T) {
		err := Mismatch("export count")
		if err.Phase != PhaseEngine || err.Kind != KindMismatch {
			t.Errorf("Phase/Kind = %v/%v", err.Phase, err.Kind)
		}
	})

	t.Run("Load", func(t *testing.T) {
		err := Load("read file", io.ErrUnexpectedEOF)
		if err.Phase != PhaseLoad || !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Errorf("Load = %v", err)
		}
	})
}

func TestMissingImportsError(t *testing.T) {
	t.Run("grouped by module", func(t *testing.T) {
		err := NewMissingImportsError([]string{"env#log", "wasi_snapshot_preview1#fd_write", "env#abort"})
		if len(err.Imports) != 3 {
			t.Fatalf("expected 3 imports, got %d", len(err.Imports))
		}
		if err.Imports[1].Module != "wasi_snapshot_preview1" || err.Imports[1].Name != "fd_write" {
			t.Errorf("import[1] = %+v", err.Imports[1])
		}
		msg := err.Error()
		for _, s := range []string{"missing 3 import(s)", "env:", "- log", "- abort", "wasi_snapshot_preview1:"} {
			if !strings.Contains(msg, s) {
				t.Errorf("message %q does not contain %q", msg, s)
			}
		}
		if strings.Count(msg, "env:") != 1 {
			t.Errorf("module should appear once: %q", msg)
		}
	})

	t.Run("empty", func(t *testing.T) {
		msg := NewMissingImportsError(nil).Error()
		if !strings.Contains(msg, "no imports specified") {
			t.Errorf("got %q", msg)
		}
	})

	t.Run("errors.Is", func(t *testing.T) {
		if !errors.Is(NewMissingImportsError([]string{"a#b"}), &MissingImportsError{}) {
			t.Error("errors.Is should match MissingImportsError")
		}
	})
}
