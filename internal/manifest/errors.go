package manifest

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/evidence-cli/internal/resilience"
)

// PersistenceError reports a ledger write that failed after all retries.
// Callers must treat it as fatal to the ingestion run: continuing without a
// durable record risks re-ingesting the same document.
type PersistenceError struct {
	Op       string
	Backend  string
	Attempts int
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("manifest: %s via %s failed after %d attempt(s): %v", e.Op, e.Backend, e.Attempts, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsPersistenceError reports whether err (or any error in its chain) is a
// PersistenceError.
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// permanentEncode marks a serialization failure as not worth retrying.
func permanentEncode(err error) error {
	return resilience.Permanent(eris.Wrap(err, "manifest: encode"))
}
