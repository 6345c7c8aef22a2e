package agent

import (
	"errors"
	"fmt"
)

// ErrKind classifies why an update cycle failed. The kind decides whether
// the step is retried (transport only) and what the status query reports.
type ErrKind string

const (
	// ErrTransport covers network failures and timeouts while talking to
	// the manifest endpoint or downloading artifacts. Retried up to the
	// configured bound.
	ErrTransport ErrKind = "TransportError"

	// ErrIntegrity is a digest or size mismatch on a downloaded artifact.
	// Never retried with the same artifact; the cycle aborts before any
	// slot write.
	ErrIntegrity ErrKind = "IntegrityError"

	// ErrStorage covers format/mount/extract failures on the standby
	// slot. Not retried; local storage errors are rarely transient.
	ErrStorage ErrKind = "StorageError"

	// ErrState means the boot state record is unreadable or corrupt. The
	// cycle refuses to proceed past checking until the state is valid.
	ErrState ErrKind = "StateCorrupt"
)

// CycleError carries the failure class of a single update cycle.
type CycleError struct {
	Kind ErrKind
	Err  error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *CycleError) Unwrap() error {
	return e.Err
}

func transportErr(format string, args ...any) *CycleError {
	return &CycleError{Kind: ErrTransport, Err: fmt.Errorf(format, args...)}
}

func integrityErr(format string, args ...any) *CycleError {
	return &CycleError{Kind: ErrIntegrity, Err: fmt.Errorf(format, args...)}
}

func storageErr(format string, args ...any) *CycleError {
	return &CycleError{Kind: ErrStorage, Err: fmt.Errorf(format, args...)}
}

func stateErr(format string, args ...any) *CycleError {
	return &CycleError{Kind: ErrState, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the failure class from err, or empty if err is not a
// cycle error.
func KindOf(err error) ErrKind {
	var ce *CycleError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}
