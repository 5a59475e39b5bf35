// Package errs defines the error kinds shared across the stepper core so
// callers can discriminate failure modes with errors.Is instead of string
// matching.
package errs

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Wrap one of these with fmt.Errorf("...: %w", Kind) to
// produce a concrete error that still satisfies errors.Is(err, Kind).
var (
	// Configuration marks a fatal startup error: a missing mandatory field,
	// an inconsistent microstep table, or an unknown generator/driver class.
	Configuration = errors.New("configuration error")

	// Precondition marks a caller error: a command issued in the wrong
	// op_mode, an unknown step-mode name, or an out-of-range target. The
	// motor or group state is left unchanged.
	Precondition = errors.New("precondition error")

	// IO marks a DMA engine or pin-write failure. The current run is
	// aborted and every motor's drive is disabled.
	IO = errors.New("i/o error")
)

// Wrap associates a message with a sentinel kind so errors.Is(err, kind)
// holds for the returned error.
func Wrap(kind error, format string, args ...any) error {
	return &kindError{kind: kind, msg: fmt.Sprintf(format, args...)}
}

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }
