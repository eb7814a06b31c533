package resilience

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"syscall"
	"testing"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("short write"), true},
		{"permanent", Permanent(errors.New("bad json")), false},
		{"wrapped permanent", fmt.Errorf("save: %w", Permanent(errors.New("bad json"))), false},
		{"canceled", fmt.Errorf("save: %w", context.Canceled), false},
		{"deadline", context.DeadlineExceeded, false},
		{"permission", &fs.PathError{Op: "open", Path: "/x", Err: fs.ErrPermission}, false},
		{"missing dir", &fs.PathError{Op: "open", Path: "/x", Err: fs.ErrNotExist}, false},
		{"read-only fs", fmt.Errorf("rename: %w", syscall.EROFS), false},
		{"busy", fmt.Errorf("rename: %w", syscall.EBUSY), true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsRetryable(tc.err); got != tc.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestPermanent_Nil(t *testing.T) {
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}

func TestIsBusy(t *testing.T) {
	if !IsBusy(errors.New("SQLITE_BUSY: database is locked")) {
		t.Error("expected sqlite lock to be busy")
	}
	if !IsBusy(fmt.Errorf("write: %w", syscall.EAGAIN)) {
		t.Error("expected EAGAIN to be busy")
	}
	if IsBusy(errors.New("syntax error")) {
		t.Error("syntax error should not be busy")
	}
	if IsBusy(nil) {
		t.Error("nil should not be busy")
	}
}

func TestAttemptsError_Unwrap(t *testing.T) {
	inner := errors.New("disk full")
	err := &AttemptsError{Attempts: 3, Err: inner}
	if !errors.Is(err, inner) {
		t.Error("expected AttemptsError to unwrap to inner error")
	}
	if err.Error() != "disk full" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestClassifyError(t *testing.T) {
	if got := ClassifyError(errors.New("model timeout")); got != ErrorTransient {
		t.Errorf("plain error classified %q, want %q", got, ErrorTransient)
	}
	if got := ClassifyError(Permanent(errors.New("unknown source type"))); got != ErrorPermanent {
		t.Errorf("permanent error classified %q, want %q", got, ErrorPermanent)
	}
	if got := ClassifyError(context.Canceled); got != ErrorPermanent {
		t.Errorf("cancellation classified %q, want %q", got, ErrorPermanent)
	}
}
