package errors

import (
	"bytes"
	stderrors "errors"
	"strings"
	"testing"
)

func TestExitCode(t *testing.T) {
	t.Run("nil error is 0", func(t *testing.T) {
		if got := ExitCode(nil); got != 0 {
			t.Errorf("ExitCode(nil) = %d, want 0", got)
		}
	})

	t.Run("usage error is 2", func(t *testing.T) {
		err := New(EUsage, "bad flags")
		if got := ExitCode(err); got != 2 {
			t.Errorf("ExitCode() = %d, want 2", got)
		}
	})

	t.Run("generic forge error is 1", func(t *testing.T) {
		err := New(EStepNotFound, "no such step")
		if got := ExitCode(err); got != 1 {
			t.Errorf("ExitCode() = %d, want 1", got)
		}
	})

	t.Run("explicit exit code wins", func(t *testing.T) {
		err := WithExitCode(New(EPhaseFailed, "phase failed"), 137)
		if got := ExitCode(err); got != 137 {
			t.Errorf("ExitCode() = %d, want 137", got)
		}
	})

	t.Run("silent carries only the code", func(t *testing.T) {
		err := Silent(1)
		if got := ExitCode(err); got != 1 {
			t.Errorf("ExitCode() = %d, want 1", got)
		}
	})
}

func TestGetCode(t *testing.T) {
	t.Run("direct forge error", func(t *testing.T) {
		err := New(ELocked, "locked")
		if got := GetCode(err); got != ELocked {
			t.Errorf("GetCode() = %q, want %q", got, ELocked)
		}
	})

	t.Run("wrapped forge error", func(t *testing.T) {
		inner := New(EBackupFailed, "copy failed")
		err := WithExitCode(inner, 1)
		if got := GetCode(err); got != EBackupFailed {
			t.Errorf("GetCode() = %q, want %q", got, EBackupFailed)
		}
	})

	t.Run("plain error has no code", func(t *testing.T) {
		if got := GetCode(stderrors.New("plain")); got != "" {
			t.Errorf("GetCode() = %q, want empty", got)
		}
	})
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("root cause")
	err := Wrap(EInternal, "wrapped", cause)
	if !stderrors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause through ForgeError")
	}
}

func TestPrint(t *testing.T) {
	t.Run("forge error format", func(t *testing.T) {
		var buf bytes.Buffer
		Print(&buf, New(EPrereqMissing, "source checkout missing"))
		out := buf.String()
		if !strings.Contains(out, "error_code: E_PREREQ_MISSING") {
			t.Errorf("output missing error_code line: %q", out)
		}
		if !strings.Contains(out, "source checkout missing") {
			t.Errorf("output missing message: %q", out)
		}
	})

	t.Run("silent error prints nothing", func(t *testing.T) {
		var buf bytes.Buffer
		Print(&buf, Silent(1))
		if buf.Len() != 0 {
			t.Errorf("expected no output, got %q", buf.String())
		}
	})

	t.Run("nil prints nothing", func(t *testing.T) {
		var buf bytes.Buffer
		Print(&buf, nil)
		if buf.Len() != 0 {
			t.Errorf("expected no output, got %q", buf.String())
		}
	})
}
