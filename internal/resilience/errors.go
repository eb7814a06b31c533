package resilience

import (
	"context"
	"errors"
	"io/fs"
	"strings"
	"syscall"
)

// PermanentError marks an error that will not go away on retry (for example a
// ledger that cannot be encoded).
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so that Do stops retrying immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err (or any error in its chain) is a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// AttemptsError is returned by Do when every attempt failed.
type AttemptsError struct {
	Attempts int
	Err      error
}

func (e *AttemptsError) Error() string {
	return e.Err.Error()
}

func (e *AttemptsError) Unwrap() error {
	return e.Err
}

// IsRetryable is the default retry predicate for storage writes. Everything is
// retried except permanent errors, cancellation and failures that a short
// backoff cannot fix (missing directories, permission problems).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsPermanent(err) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, fs.ErrPermission) || errors.Is(err, fs.ErrNotExist) {
		return false
	}
	if errors.Is(err, syscall.EROFS) {
		return false
	}
	return true
}

// Error classes recorded on dead letters.
const (
	ErrorTransient = "transient"
	ErrorPermanent = "permanent"
)

// ClassifyError labels err as ErrorTransient or ErrorPermanent using
// IsRetryable.
func ClassifyError(err error) string {
	if IsRetryable(err) {
		return ErrorTransient
	}
	return ErrorPermanent
}

// IsBusy reports whether err looks like lock contention from an embedded or
// remote database. Used to label retry logs.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EBUSY) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"database is locked",
		"sqlite_busy",
		"could not serialize access",
		"deadlock detected",
		"too many connections",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
