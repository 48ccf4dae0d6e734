package poller

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/acpibatt/pkg/acpi"
	"github.com/charlie0129/acpibatt/pkg/battery"
	"github.com/charlie0129/acpibatt/pkg/events"
	"github.com/charlie0129/acpibatt/pkg/powersource"
)

const (
	// DefaultInterval is the regular polling interval.
	DefaultInterval = 30 * time.Second
	// QuickInterval is used while QuickPoll holds.
	QuickInterval = time.Second
	// WatchdogTimeout bounds a whole poll cycle. It is also the deferral
	// reported for a stalled sleep or wake acknowledgment.
	WatchdogTimeout = 10 * time.Second
	// InitialPollCountdown is the number of periodic expirations after
	// start that re-read everything.
	InitialPollCountdown = 5
)

// Path selects how a poll cycle starts.
type Path int

const (
	// PathRefresh reads the battery again.
	PathRefresh Path = iota
	// PathFresh restarts the periodic timer and the watchdog before reading.
	PathFresh
)

func (p Path) String() string {
	if p == PathFresh {
		return "fresh"
	}
	return "refresh"
}

func (p Path) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Path) UnmarshalText(b []byte) error {
	v, ok := ParsePath(string(b))
	if !ok {
		return fmt.Errorf("unknown poll path %q", b)
	}
	*p = v
	return nil
}

// ParsePath parses the output of Path.String.
func ParsePath(s string) (Path, bool) {
	switch s {
	case "fresh":
		return PathFresh, true
	case "refresh", "":
		return PathRefresh, true
	}
	return PathRefresh, false
}

type session struct {
	id        uint64
	path      Path
	step      step
	started   time.Time
	cancelled bool
}

// machine is the poll state machine. Every method must run on the event
// loop.
type machine struct {
	transport acpi.Transport
	store     *powersource.Store
	hub       *events.EventHub
	clock     Clock
	exec      executor
	post      func(func()) bool
	decoder   *battery.Decoder
	recorder  *CycleRecorder

	extended        bool
	extra           bool
	override        *time.Duration
	defaultInterval time.Duration
	quickPoll       bool
	countdown       int

	lastSTA uint32

	pollTimer   Timer
	pollGen     uint64
	watchdog    Timer
	watchdogGen uint64

	session     *session
	nextSession uint64

	sleeping  bool
	handshake *handshake
}

func newMachine(opts Options, exec executor, post func(func()) bool) *machine {
	m := &machine{
		transport:       opts.Transport,
		store:           opts.Store,
		hub:             opts.Hub,
		clock:           opts.Clock,
		exec:            exec,
		post:            post,
		decoder:         battery.NewDecoder(),
		recorder:        opts.Recorder,
		extended:        opts.UseExtendedInformation,
		extra:           opts.UseExtraInformation,
		override:        opts.PollingOverride,
		defaultInterval: opts.DefaultInterval,
		countdown:       InitialPollCountdown,
	}
	if m.clock == nil {
		m.clock = RealClock()
	}
	if m.store == nil {
		m.store = powersource.NewStore()
	}
	if m.recorder == nil {
		m.recorder = NewCycleRecorder(60)
	}
	if m.defaultInterval <= 0 {
		m.defaultInterval = DefaultInterval
	}
	return m
}

// start publishes the fixed attributes and runs the first full read.
func (m *machine) start() {
	m.store.PublishFixedAttributes()
	m.store.Clear()
	m.triggerPoll(PathFresh)
}

// shutdown stops both timers and abandons any cycle.
func (m *machine) shutdown() {
	m.stopPollTimer()
	m.stopWatchdog()
	if m.session != nil {
		m.endSession(OutcomeCancelled)
	}
	m.acknowledge()
}

func (m *machine) inFlight() bool {
	return m.session != nil && !m.session.cancelled
}

// activeInterval is the delay before the next periodic poll.
func (m *machine) activeInterval() time.Duration {
	if m.override != nil {
		return *m.override
	}
	if m.quickPoll {
		return QuickInterval
	}
	return m.defaultInterval
}

// triggerPoll starts a poll cycle and reports whether it did. A trigger
// while a cycle is in flight is rejected; a cancelled cycle still waiting
// for its read is abandoned instead.
func (m *machine) triggerPoll(path Path) bool {
	if s := m.session; s != nil {
		if !s.cancelled {
			logrus.WithFields(logrus.Fields{
				"path":    path,
				"session": s.id,
				"step":    s.step,
			}).Debug("poll already in flight, rejecting trigger")
			m.recorder.AddRecord(CycleRecord{Time: m.clock.Now(), Path: path, Outcome: OutcomeRejected})
			return false
		}
		m.endSession(OutcomeCancelled)
	}

	if path == PathFresh {
		m.stopPollTimer()
		m.stopWatchdog()
	}
	if m.watchdog == nil {
		m.armWatchdog()
	}

	m.nextSession++
	m.session = &session{
		id:      m.nextSession,
		path:    path,
		started: m.clock.Now(),
	}
	logrus.WithFields(logrus.Fields{
		"session": m.session.id,
		"path":    path,
	}).Debug("starting poll cycle")

	m.issue(stepPresence)
	return true
}

// issue hands the read for st to the read worker.
func (m *machine) issue(st step) {
	s := m.session
	s.step = st
	id, t, extended := s.id, m.transport, m.extended

	ok := m.exec.Submit(func() {
		res := read(t, st, extended)
		m.post(func() { m.onReadComplete(id, st, res) })
	})
	if !ok {
		logrus.WithFields(logrus.Fields{
			"session": id,
			"method":  st.method(extended),
			"label":   battery.RetryAttemptsExceeded,
		}).Warn("read queue is full, transport is not responding")
		m.recordError(battery.RetryAttemptsExceeded)
		m.finish(OutcomeAborted)
	}
}

func (m *machine) onReadComplete(id uint64, st step, res readResult) {
	s := m.session
	if s == nil || s.id != id {
		logrus.WithFields(logrus.Fields{
			"session": id,
			"step":    st,
		}).Debug("dropping read completion of an abandoned cycle")
		return
	}
	if s.cancelled {
		m.finish(OutcomeCancelled)
		return
	}

	switch st {
	case stepPresence:
		m.onPresence(res)
	case stepStatic:
		m.onStatic(res)
	case stepExtra:
		m.onExtra(res)
	case stepDynamic:
		m.onDynamic(res)
	}
}

func (m *machine) onPresence(res readResult) {
	present := false
	if res.err != nil {
		logrus.WithError(res.err).Warn("failed to read battery presence, assuming no battery")
	} else {
		m.lastSTA = res.sta
		present = m.decoder.DecodePresence(res.sta)
	}

	if !present {
		m.decoder.Reset()
		m.store.Clear()
		m.stopWatchdog()
		m.finish(OutcomeNoBattery)
		return
	}

	m.store.PublishPresence(true)
	m.issue(stepStatic)
}

func (m *machine) onStatic(res readResult) {
	if res.err != nil {
		m.readFailed(stepStatic, res.err)
	} else {
		err := m.decoder.DecodeStatic(res.pkg, m.extended)
		m.store.PublishStatic(m.decoder.Snapshot())
		if err != nil {
			m.decodeFailed(err)
		}
	}

	if m.extra {
		m.issue(stepExtra)
		return
	}
	m.issue(stepDynamic)
}

func (m *machine) onExtra(res readResult) {
	if res.err != nil {
		m.readFailed(stepExtra, res.err)
	} else {
		m.decoder.DecodeExtra(res.pkg)
		m.store.PublishExtra(m.decoder.Snapshot())
	}
	m.issue(stepDynamic)
}

func (m *machine) onDynamic(res readResult) {
	if res.err != nil {
		// The watchdog stays armed and restarts the read.
		m.readFailed(stepDynamic, res.err)
		m.finish(OutcomeFailed)
		return
	}

	err := m.decoder.DecodeDynamic(res.pkg)
	m.stopWatchdog()

	snap := m.decoder.Snapshot()
	if m.override == nil && snap.MaxCapacity != 0 {
		m.quickPoll = battery.QuickPoll(snap.MaxCapacity, snap.CurrentCapacity, snap.Metrics.ExternalConnected)
	}
	m.store.PublishDynamic(snap, m.quickPoll)
	if err != nil {
		m.decodeFailed(err)
	}

	m.finish(OutcomeCompleted)
}

func (m *machine) readFailed(st step, err error) {
	kind := battery.KindOf(err)
	logrus.WithFields(logrus.Fields{
		"method": st.method(m.extended),
		"label":  kind,
	}).WithError(err).Warn("battery read failed")
	m.recordError(kind)
}

func (m *machine) decodeFailed(err error) {
	kind := battery.KindOf(err)
	logrus.WithFields(logrus.Fields{
		"label": kind,
	}).Warn("battery reported an unhealthy state")
	m.recordError(kind)
}

func (m *machine) recordError(kind battery.ErrorKind) {
	m.decoder.SetLatestError(kind)
	m.store.RecordError(kind)
	m.recorder.AddError(kind)
}

// endSession forgets the current cycle without touching timers or the
// pending handshake.
func (m *machine) endSession(outcome Outcome) {
	s := m.session
	m.session = nil
	now := m.clock.Now()
	rec := CycleRecord{
		Time:     now,
		Path:     s.path,
		Outcome:  outcome,
		Duration: now.Sub(s.started),
	}
	m.recorder.AddRecord(rec)

	logrus.WithFields(logrus.Fields{
		"session":  s.id,
		"path":     s.path,
		"outcome":  outcome,
		"duration": rec.Duration,
	}).Debug("poll cycle ended")

	m.hub.Publish(events.PollCycle, events.PollCycleEvent{
		Path:       s.path.String(),
		Outcome:    string(outcome),
		DurationMs: rec.Duration.Milliseconds(),
		Ts:         now.Unix(),
	})
}

// finish ends the current cycle, rearms the periodic timer unless the
// cycle was cancelled and releases any pending handshake.
func (m *machine) finish(outcome Outcome) {
	cancelled := m.session.cancelled
	m.endSession(outcome)
	if !cancelled {
		m.armPollTimer(m.activeInterval())
	}
	m.acknowledge()
}

func (m *machine) onTimerExpired() {
	m.pollTimer = nil
	if m.inFlight() {
		return
	}
	if m.countdown > 0 {
		m.countdown--
		m.triggerPoll(PathFresh)
		return
	}
	m.triggerPoll(PathRefresh)
}

func (m *machine) onWatchdogExpired() {
	m.watchdog = nil
	logrus.WithFields(logrus.Fields{
		"label":   battery.OverallTimeoutExpired,
		"timeout": WatchdogTimeout,
	}).Warn("battery read did not complete in time, starting over")
	m.recordError(battery.OverallTimeoutExpired)

	if m.session != nil {
		m.endSession(OutcomeAborted)
		m.acknowledge()
	}
	m.triggerPoll(PathFresh)
}

// notify handles a device notification: presence is read again and
// compared to the last reading.
func (m *machine) notify() {
	t := m.transport
	ok := m.exec.Submit(func() {
		sta, err := t.ReadPresence()
		m.post(func() { m.onNotifiedPresence(sta, err) })
	})
	if !ok {
		logrus.Warn("read queue is full, dropping device notification")
	}
}

func (m *machine) onNotifiedPresence(sta uint32, err error) {
	if err != nil {
		logrus.WithError(err).Warn("failed to read battery presence on notification")
		return
	}

	previous := m.lastSTA
	m.lastSTA = sta
	if sta == previous {
		logrus.Debug("battery notification, polling battery state")
		m.triggerPoll(PathRefresh)
		return
	}
	if sta&acpi.StaPresent != 0 {
		logrus.WithField("sta", sta).Info("battery inserted")
		m.triggerPoll(PathFresh)
		return
	}
	logrus.WithField("sta", sta).Info("battery removed")
	m.batteryRemoved()
}

// batteryRemoved cancels any cycle, clears the state and releases the
// pending handshake. Periodic polling stays armed.
func (m *machine) batteryRemoved() {
	if m.inFlight() {
		m.session.cancelled = true
	}
	m.stopPollTimer()
	m.stopWatchdog()

	m.decoder.Reset()
	m.store.Clear()
	m.acknowledge()

	m.armPollTimer(m.activeInterval())
}

// setPollingInterval replaces the default interval.
func (m *machine) setPollingInterval(d time.Duration) error {
	if d <= 0 {
		return ErrInvalidInterval
	}
	if m.override != nil {
		return ErrIntervalOverridden
	}
	m.defaultInterval = d
	m.quickPoll = false
	logrus.WithField("interval", d).Info("polling interval changed")
	return nil
}

func (m *machine) armPollTimer(d time.Duration) {
	m.stopPollTimer()
	gen := m.pollGen
	m.pollTimer = m.clock.AfterFunc(d, func() {
		m.post(func() {
			if gen == m.pollGen {
				m.onTimerExpired()
			}
		})
	})
}

func (m *machine) stopPollTimer() {
	m.pollGen++
	if m.pollTimer != nil {
		m.pollTimer.Stop()
		m.pollTimer = nil
	}
}

func (m *machine) armWatchdog() {
	m.stopWatchdog()
	gen := m.watchdogGen
	m.watchdog = m.clock.AfterFunc(WatchdogTimeout, func() {
		m.post(func() {
			if gen == m.watchdogGen {
				m.onWatchdogExpired()
			}
		})
	})
}

func (m *machine) stopWatchdog() {
	m.watchdogGen++
	if m.watchdog != nil {
		m.watchdog.Stop()
		m.watchdog = nil
	}
}

func (m *machine) status() Status {
	st := Status{
		Sleeping:          m.sleeping,
		HandshakePending:  m.handshake != nil,
		Countdown:         m.countdown,
		QuickPoll:         m.quickPoll,
		Overridden:        m.override != nil,
		IntervalMs:        m.activeInterval().Milliseconds(),
		DefaultIntervalMs: m.defaultInterval.Milliseconds(),
		TimerArmed:        m.pollTimer != nil,
		WatchdogArmed:     m.watchdog != nil,
		LatestError:       m.decoder.Snapshot().LatestError,
		UseExtended:       m.extended,
		UseExtra:          m.extra,
	}
	if s := m.session; s != nil {
		st.Session = &SessionStatus{
			ID:        s.id,
			Path:      s.path,
			Step:      s.step.String(),
			Cancelled: s.cancelled,
			AgeMs:     m.clock.Now().Sub(s.started).Milliseconds(),
		}
	}
	return st
}
