package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/acpibatt/pkg/acpi"
	"github.com/charlie0129/acpibatt/pkg/battery"
	"github.com/charlie0129/acpibatt/pkg/events"
	"github.com/charlie0129/acpibatt/pkg/powersource"
)

var (
	// ErrStopped is returned by calls made after Stop.
	ErrStopped = errors.New("poller is stopped")
	// ErrInvalidInterval is returned for a polling interval that is not
	// positive.
	ErrInvalidInterval = errors.New("polling interval must be positive")
	// ErrIntervalOverridden is returned when the polling interval is
	// fixed by configuration.
	ErrIntervalOverridden = errors.New("polling interval is overridden by configuration")
)

const (
	eventQueueDepth = 64
	readQueueDepth  = 4
)

// Options configures a Poller.
type Options struct {
	Transport acpi.Transport
	// Store receives the decoded attributes. A new one is made if nil.
	Store *powersource.Store
	// Hub receives poll.cycle and power.transition events. Optional.
	Hub   *events.EventHub
	Clock Clock
	// Recorder keeps the cycle history. A new one is made if nil.
	Recorder *CycleRecorder

	UseExtendedInformation bool
	UseExtraInformation    bool
	// PollingOverride fixes the polling interval when non-nil. Zero
	// polls back to back.
	PollingOverride *time.Duration
	// DefaultInterval replaces DefaultInterval when positive.
	DefaultInterval time.Duration
}

// SessionStatus describes the poll cycle in flight.
type SessionStatus struct {
	ID        uint64 `json:"id"`
	Path      Path   `json:"path"`
	Step      string `json:"step"`
	Cancelled bool   `json:"cancelled"`
	AgeMs     int64  `json:"ageMs"`
}

// Status is a point in time view of the poll state machine.
type Status struct {
	Session           *SessionStatus    `json:"session,omitempty"`
	Sleeping          bool              `json:"sleeping"`
	HandshakePending  bool              `json:"handshakePending"`
	Countdown         int               `json:"countdown"`
	QuickPoll         bool              `json:"quickPoll"`
	Overridden        bool              `json:"overridden"`
	IntervalMs        int64             `json:"intervalMs"`
	DefaultIntervalMs int64             `json:"defaultIntervalMs"`
	TimerArmed        bool              `json:"timerArmed"`
	WatchdogArmed     bool              `json:"watchdogArmed"`
	LatestError       battery.ErrorKind `json:"latestError,omitempty"`
	UseExtended       bool              `json:"useExtended"`
	UseExtra          bool              `json:"useExtra"`
	Cycles            []CycleRecord     `json:"cycles,omitempty"`
}

// Poller runs the battery poll state machine on its own event loop. All
// methods are safe for concurrent use. Acknowledgment callbacks run on the
// event loop and must not call back into the Poller.
type Poller struct {
	m      *machine
	loop   *loop
	worker *readWorker

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns a Poller. Nothing happens until Start.
func New(opts Options) *Poller {
	l := newLoop(eventQueueDepth)
	w := newReadWorker(readQueueDepth)
	return &Poller{
		m:      newMachine(opts, w, l.post),
		loop:   l,
		worker: w,
	}
}

// Start runs the event loop and the read worker, then kicks off the first
// full read. The Poller runs until ctx is done or Stop is called.
func (p *Poller) Start(ctx context.Context) {
	logrus.WithFields(logrus.Fields{
		"extended": p.m.extended,
		"extra":    p.m.extra,
		"interval": p.m.activeInterval(),
	}).Info("starting battery poller")

	ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(2)
	go func() {
		defer p.wg.Done()
		p.loop.run()
	}()
	go func() {
		defer p.wg.Done()
		p.worker.run(ctx)
	}()
	go func() {
		<-ctx.Done()
		p.shutdown()
	}()

	p.loop.post(p.m.start)
}

func (p *Poller) shutdown() {
	stopped := make(chan struct{})
	if p.loop.post(func() {
		p.m.shutdown()
		close(stopped)
	}) {
		<-stopped
	}
	p.loop.stop()
}

// Stop stops the Poller and waits for its goroutines. A read blocked in
// the transport is not interrupted; Stop waits for it.
func (p *Poller) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	p.wg.Wait()
	logrus.Info("battery poller stopped")
}

// TriggerPoll starts a poll cycle on path and reports whether it started.
func (p *Poller) TriggerPoll(ctx context.Context, path Path) (bool, error) {
	var started bool
	if err := p.loop.call(ctx, func() { started = p.m.triggerPoll(path) }); err != nil {
		return false, err
	}
	return started, nil
}

// HandleSleep tells the Poller the system is about to sleep. A zero
// duration means the transition is acknowledged and ack will not be
// called. Otherwise ack is called exactly once, and the caller should not
// wait longer than the returned duration for it.
func (p *Poller) HandleSleep(ctx context.Context, ack func()) (time.Duration, error) {
	var d time.Duration
	if err := p.loop.call(ctx, func() { d = p.m.onSleep(ack) }); err != nil {
		return 0, err
	}
	return d, nil
}

// HandleWake tells the Poller the system woke up. See HandleSleep.
func (p *Poller) HandleWake(ctx context.Context, ack func()) (time.Duration, error) {
	var d time.Duration
	if err := p.loop.call(ctx, func() { d = p.m.onWake(ack) }); err != nil {
		return 0, err
	}
	return d, nil
}

// Notify reports a device notification for the battery.
func (p *Poller) Notify() {
	if !p.loop.post(p.m.notify) {
		logrus.Debug("poller stopped, dropping device notification")
	}
}

// SetPollingInterval replaces the default polling interval. It takes
// effect when the timer is next armed.
func (p *Poller) SetPollingInterval(ctx context.Context, d time.Duration) error {
	var err error
	if callErr := p.loop.call(ctx, func() { err = p.m.setPollingInterval(d) }); callErr != nil {
		return callErr
	}
	return err
}

// Status returns the state of the poll state machine.
func (p *Poller) Status(ctx context.Context) (Status, error) {
	var st Status
	if err := p.loop.call(ctx, func() { st = p.m.status() }); err != nil {
		return Status{}, err
	}
	st.Cycles = p.m.recorder.GetRecords()
	return st, nil
}

// Snapshot returns the decoded battery state.
func (p *Poller) Snapshot(ctx context.Context) (battery.Snapshot, error) {
	var snap battery.Snapshot
	if err := p.loop.call(ctx, func() { snap = p.m.decoder.Snapshot() }); err != nil {
		return battery.Snapshot{}, err
	}
	return snap, nil
}

// Store returns the published state store.
func (p *Poller) Store() *powersource.Store {
	return p.m.store
}

// Recorder returns the cycle recorder.
func (p *Poller) Recorder() *CycleRecorder {
	return p.m.recorder
}
