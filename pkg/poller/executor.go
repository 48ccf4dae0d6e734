package poller

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/acpibatt/pkg/acpi"
)

// executor runs firmware reads away from the event loop.
type executor interface {
	// Submit queues job. It returns false when the job cannot be queued.
	Submit(job func()) bool
}

// readWorker runs jobs one at a time on a single goroutine, so only one
// transport call is ever outstanding.
type readWorker struct {
	jobs chan func()
}

func newReadWorker(depth int) *readWorker {
	return &readWorker{jobs: make(chan func(), depth)}
}

func (w *readWorker) Submit(job func()) bool {
	select {
	case w.jobs <- job:
		return true
	default:
		return false
	}
}

func (w *readWorker) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-w.jobs:
			job()
		}
	}
}

// step is one read of a poll cycle.
type step int

const (
	stepPresence step = iota
	stepStatic
	stepExtra
	stepDynamic
)

func (s step) String() string {
	switch s {
	case stepPresence:
		return "presence"
	case stepStatic:
		return "static"
	case stepExtra:
		return "extra"
	case stepDynamic:
		return "dynamic"
	}
	return "unknown"
}

func (s step) method(extended bool) string {
	switch s {
	case stepPresence:
		return acpi.MethodSTA
	case stepStatic:
		if extended {
			return acpi.MethodBIX
		}
		return acpi.MethodBIF
	case stepExtra:
		return acpi.MethodBBIX
	case stepDynamic:
		return acpi.MethodBST
	}
	return ""
}

type readResult struct {
	sta uint32
	pkg acpi.Package
	err error
}

// read performs the transport call for s. It runs on the read worker.
func read(t acpi.Transport, s step, extended bool) readResult {
	var res readResult
	switch s {
	case stepPresence:
		res.sta, res.err = t.ReadPresence()
	case stepStatic:
		res.pkg, res.err = t.ReadStaticInfo(extended)
	case stepExtra:
		res.pkg, res.err = t.ReadExtraInfo()
	case stepDynamic:
		res.pkg, res.err = t.ReadDynamicStatus()
	}
	logrus.WithFields(logrus.Fields{
		"method": s.method(extended),
		"sta":    res.sta,
		"fields": len(res.pkg),
		"error":  res.err,
	}).Trace("transport read finished")
	return res
}
