package acpi

import (
	"errors"
)

var (
	// ErrRetryAttemptsExceeded is returned by transports that gave up after
	// their bounded number of attempts.
	ErrRetryAttemptsExceeded = errors.New("read retry attempts exceeded")
	// ErrNotSupported is returned when a transport cannot provide a method.
	ErrNotSupported = errors.New("method not supported by transport")
	// ErrUnexpectedKind is returned when a method result is not of the
	// expected shape.
	ErrUnexpectedKind = errors.New("unexpected result kind")
)

// Transport evaluates battery methods. Implementations are not required
// to be safe for concurrent use; callers serialize access.
type Transport interface {
	// ReadPresence evaluates _STA.
	ReadPresence() (uint32, error)
	// ReadStaticInfo evaluates _BIX when extended is true, _BIF otherwise.
	ReadStaticInfo(extended bool) (Package, error)
	// ReadExtraInfo evaluates BBIX.
	ReadExtraInfo() (Package, error)
	// ReadDynamicStatus evaluates _BST.
	ReadDynamicStatus() (Package, error)
}
