package battery

import (
	"errors"

	"github.com/charlie0129/acpibatt/pkg/acpi"
)

// ErrorKind is a stable label for a class of read or health failure.
type ErrorKind string

const (
	RetryAttemptsExceeded    ErrorKind = "Read Retry Attempts Exceeded"
	OverallTimeoutExpired    ErrorKind = "Overall Read Timeout Expired"
	ZeroCapacityReported     ErrorKind = "Capacity Read Zero"
	PermanentFailureDetected ErrorKind = "Permanent Battery Failure"
	NonRecoverableStatus     ErrorKind = "Non-recoverable status failure"
)

// ErrorKinds lists every kind in a fixed order.
var ErrorKinds = []ErrorKind{
	RetryAttemptsExceeded,
	OverallTimeoutExpired,
	ZeroCapacityReported,
	PermanentFailureDetected,
	NonRecoverableStatus,
}

func (k ErrorKind) String() string { return string(k) }

var (
	// ErrZeroCapacity is returned by DecodeStatic when the design or maximum
	// capacity resolves to zero. The decoded values are still committed.
	ErrZeroCapacity = errors.New(string(ZeroCapacityReported))
	// ErrPermanentFailure is returned by DecodeDynamic when the charging
	// and discharging bits are both set.
	ErrPermanentFailure = errors.New(string(PermanentFailureDetected))
)

// KindOf maps an error from decoding or from a transport to its kind.
// Any transport error that is not a retry exhaustion is a non-recoverable
// status failure.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrZeroCapacity):
		return ZeroCapacityReported
	case errors.Is(err, ErrPermanentFailure):
		return PermanentFailureDetected
	case errors.Is(err, acpi.ErrRetryAttemptsExceeded):
		return RetryAttemptsExceeded
	}
	return NonRecoverableStatus
}
