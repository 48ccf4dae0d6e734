// Package acpicall evaluates battery methods through the acpi_call kernel
// module.
package acpicall

import (
	"errors"
	"fmt"
	"os"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/acpibatt/pkg/acpi"
)

const (
	DefaultCallPath = "/proc/acpi/call"
	DefaultDevice   = `\_SB.BAT0`
	DefaultRetries  = 5
)

// caller evaluates one ACPI expression and returns the raw result text.
type caller interface {
	Call(expr string) (string, error)
}

// procCaller talks to the acpi_call proc file: the expression is written,
// then the result is read back from the same file.
type procCaller struct {
	path string
}

func (p procCaller) Call(expr string) (string, error) {
	f, err := os.OpenFile(p.path, os.O_WRONLY, 0)
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to open %s", p.path)
	}
	_, err = f.WriteString(expr)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to write %s", p.path)
	}
	out, err := os.ReadFile(p.path)
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to read %s", p.path)
	}
	return string(out), nil
}

// Options configures a Transport.
type Options struct {
	// Device is the battery device path, e.g. \_SB.BAT0.
	Device string
	// CallPath is the acpi_call proc file.
	CallPath string
	// Retries is the number of attempts made for one method before giving
	// up with acpi.ErrRetryAttemptsExceeded.
	Retries int
}

// Transport is an acpi.Transport backed by acpi_call.
type Transport struct {
	device  string
	retries int
	c       caller
}

var _ acpi.Transport = &Transport{}

// New returns a Transport. Zero options take their defaults.
func New(opts Options) *Transport {
	if opts.CallPath == "" {
		opts.CallPath = DefaultCallPath
	}
	return newTransport(opts, procCaller{path: opts.CallPath})
}

func newTransport(opts Options, c caller) *Transport {
	if opts.Device == "" {
		opts.Device = DefaultDevice
	}
	if opts.Retries <= 0 {
		opts.Retries = DefaultRetries
	}
	return &Transport{
		device:  strings.TrimSuffix(opts.Device, "."),
		retries: opts.Retries,
		c:       c,
	}
}

// Probe checks that the acpi_call module is loaded.
func Probe(callPath string) error {
	if callPath == "" {
		callPath = DefaultCallPath
	}
	if _, err := os.Stat(callPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s does not exist, is the acpi_call module loaded?", callPath)
		}
		return pkgerrors.Wrapf(err, "failed to stat %s", callPath)
	}
	return nil
}

// firmwareError is an AE_* status reported by acpi_call.
type firmwareError struct {
	expr   string
	status string
}

func (e *firmwareError) Error() string {
	return fmt.Sprintf("evaluating %s: %s", e.expr, e.status)
}

// evaluate runs method with bounded retries. A method the firmware does
// not define is not retried.
func (t *Transport) evaluate(method string) (string, error) {
	expr := t.device + "." + method

	var lastErr error
	for attempt := 1; attempt <= t.retries; attempt++ {
		out, err := t.c.Call(expr)
		if err == nil {
			out = strings.TrimRight(out, "\x00\n ")
			err = resultError(expr, out)
		}
		if err == nil {
			logrus.WithFields(logrus.Fields{
				"method": method,
				"result": out,
			}).Trace("acpi_call evaluated method")
			return out, nil
		}

		var fe *firmwareError
		if errors.As(err, &fe) && fe.status == "AE_NOT_FOUND" {
			return "", pkgerrors.Wrapf(acpi.ErrNotSupported, "%s", fe.Error())
		}

		lastErr = err
		logrus.WithFields(logrus.Fields{
			"method":  method,
			"attempt": attempt,
			"error":   err,
		}).Debug("acpi_call evaluation failed")
	}

	return "", pkgerrors.Wrapf(acpi.ErrRetryAttemptsExceeded, "%s failed %d times, last error: %v", expr, t.retries, lastErr)
}

func resultError(expr, out string) error {
	switch {
	case strings.HasPrefix(out, "Error: "):
		return &firmwareError{expr: expr, status: strings.TrimSpace(strings.TrimPrefix(out, "Error: "))}
	case out == "not called":
		return fmt.Errorf("evaluating %s: result was consumed by another reader", expr)
	case out == "":
		return fmt.Errorf("evaluating %s: empty result", expr)
	}
	return nil
}

func (t *Transport) readPackage(method string, minFields int) (acpi.Package, error) {
	out, err := t.evaluate(method)
	if err != nil {
		return nil, err
	}
	pkg, err := ParsePackage(out)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to parse %s result", method)
	}
	if len(pkg) < minFields {
		return nil, pkgerrors.Wrapf(acpi.ErrUnexpectedKind, "%s returned %d fields, want %d", method, len(pkg), minFields)
	}
	return pkg, nil
}

func (t *Transport) ReadPresence() (uint32, error) {
	out, err := t.evaluate(acpi.MethodSTA)
	if err != nil {
		return 0, err
	}
	v, err := ParseInteger(out)
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "failed to parse %s result", acpi.MethodSTA)
	}
	return uint32(v), nil
}

func (t *Transport) ReadStaticInfo(extended bool) (acpi.Package, error) {
	if extended {
		return t.readPackage(acpi.MethodBIX, acpi.BIXFieldCount)
	}
	return t.readPackage(acpi.MethodBIF, acpi.BIFFieldCount)
}

func (t *Transport) ReadExtraInfo() (acpi.Package, error) {
	return t.readPackage(acpi.MethodBBIX, acpi.BBIXFieldCount)
}

func (t *Transport) ReadDynamicStatus() (acpi.Package, error) {
	return t.readPackage(acpi.MethodBST, acpi.BSTFieldCount)
}
