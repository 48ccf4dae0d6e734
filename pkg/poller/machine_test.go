package poller

import (
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/acpibatt/pkg/acpi"
	"github.com/charlie0129/acpibatt/pkg/battery"
	"github.com/charlie0129/acpibatt/pkg/events"
	"github.com/charlie0129/acpibatt/pkg/powersource"
)

type fakeTimer struct {
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// fakeClock fires timers synchronously from Advance.
type fakeClock struct {
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	t := &fakeTimer{at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	target := c.now.Add(d)
	for {
		var pending []*fakeTimer
		for _, t := range c.timers {
			if !t.stopped && !t.fired && !t.at.After(target) {
				pending = append(pending, t)
			}
		}
		if len(pending) == 0 {
			break
		}
		sort.SliceStable(pending, func(i, j int) bool { return pending[i].at.Before(pending[j].at) })
		next := pending[0]
		c.now = next.at
		next.fired = true
		next.f()
	}
	c.now = target
}

// fakeExecutor queues jobs until the test runs them.
type fakeExecutor struct {
	capacity int
	jobs     []func()
}

func (e *fakeExecutor) Submit(job func()) bool {
	if len(e.jobs) >= e.capacity {
		return false
	}
	e.jobs = append(e.jobs, job)
	return true
}

func (e *fakeExecutor) runNext() bool {
	if len(e.jobs) == 0 {
		return false
	}
	job := e.jobs[0]
	e.jobs = e.jobs[1:]
	job()
	return true
}

func (e *fakeExecutor) runAll() {
	for e.runNext() {
	}
}

type harness struct {
	m     *machine
	clock *fakeClock
	exec  *fakeExecutor
	mock  *acpi.Mock
	store *powersource.Store
	hub   *events.EventHub
}

func newHarness(t *testing.T, mutate func(o *Options)) *harness {
	t.Helper()
	h := &harness{
		clock: newFakeClock(),
		exec:  &fakeExecutor{capacity: readQueueDepth},
		mock:  acpi.NewMock(),
		store: powersource.NewStore(),
		hub:   events.NewEventHub(),
	}
	opts := Options{
		Transport:              h.mock,
		Store:                  h.store,
		Hub:                    h.hub,
		Clock:                  h.clock,
		UseExtendedInformation: true,
	}
	if mutate != nil {
		mutate(&opts)
	}
	h.m = newMachine(opts, h.exec, func(f func()) bool {
		f()
		return true
	})
	return h
}

func (h *harness) prop(key powersource.Key) powersource.Value {
	v, _ := h.store.Get(key)
	return v
}

func (h *harness) lastRecord(t *testing.T) CycleRecord {
	t.Helper()
	rec, ok := h.m.recorder.GetLastRecord()
	require.True(t, ok)
	return rec
}

type ackCounter struct{ n int }

func (a *ackCounter) ack() { a.n++ }

func TestStartRunsFullRead(t *testing.T) {
	h := newHarness(t, nil)
	h.m.start()
	require.True(t, h.m.inFlight())
	require.NotNil(t, h.m.watchdog)

	h.exec.runAll()

	assert.False(t, h.m.inFlight())
	assert.Nil(t, h.m.watchdog)
	assert.NotNil(t, h.m.pollTimer)
	assert.Equal(t, DefaultInterval, h.m.activeInterval())

	assert.True(t, h.prop(powersource.KeyBatteryInstalled).Bool())
	assert.Equal(t, int64(126), h.prop(powersource.KeyTimeRemaining).Int())
	assert.Equal(t, int64(4200), h.prop(powersource.KeyMaxCapacity).Int())
	assert.Equal(t, int64(30), h.prop(powersource.KeyInvalidWakeSeconds).Int())

	assert.Equal(t, 1, h.mock.Calls(acpi.MethodBIX))
	assert.Equal(t, 0, h.mock.Calls(acpi.MethodBIF))
	assert.Equal(t, 0, h.mock.Calls(acpi.MethodBBIX))
	assert.Equal(t, 1, h.mock.Calls(acpi.MethodBST))

	rec := h.lastRecord(t)
	assert.Equal(t, OutcomeCompleted, rec.Outcome)
	assert.Equal(t, PathFresh, rec.Path)
}

func TestReadMethodSelection(t *testing.T) {
	tests := []struct {
		name     string
		extended bool
		extra    bool
		want     map[string]int
	}{
		{
			name:     "extended",
			extended: true,
			want:     map[string]int{acpi.MethodBIX: 1, acpi.MethodBIF: 0, acpi.MethodBBIX: 0},
		},
		{
			name: "legacy",
			want: map[string]int{acpi.MethodBIX: 0, acpi.MethodBIF: 1, acpi.MethodBBIX: 0},
		},
		{
			name:     "extended with extra",
			extended: true,
			extra:    true,
			want:     map[string]int{acpi.MethodBIX: 1, acpi.MethodBIF: 0, acpi.MethodBBIX: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(o *Options) {
				o.UseExtendedInformation = tt.extended
				o.UseExtraInformation = tt.extra
			})
			h.m.start()
			h.exec.runAll()
			for method, n := range tt.want {
				if got := h.mock.Calls(method); got != n {
					t.Errorf("Calls(%s) = %v, want %v", method, got, n)
				}
			}
			if tt.extra {
				assert.Equal(t, int64(2982), h.prop(powersource.KeyTemperature).Int())
				assert.Equal(t, "2003-01-01", h.prop(powersource.KeyDateOfManufacture).Str())
			}
		})
	}
}

func TestTriggerRejectedWhileInFlight(t *testing.T) {
	h := newHarness(t, nil)
	h.m.start()

	assert.False(t, h.m.triggerPoll(PathRefresh))
	assert.Equal(t, OutcomeRejected, h.lastRecord(t).Outcome)

	h.exec.runAll()
	assert.Equal(t, 1, h.mock.Calls(acpi.MethodSTA))
	assert.Equal(t, OutcomeCompleted, h.lastRecord(t).Outcome)
}

func TestTimerExpiryWhileInFlightIsNoOp(t *testing.T) {
	h := newHarness(t, nil)
	h.m.start()
	h.exec.runAll()

	h.clock.Advance(25 * time.Second)
	// A status notification starts a refresh cycle that is still reading
	// when the periodic timer fires.
	h.m.notify()
	require.True(t, h.exec.runNext())
	require.True(t, h.m.inFlight())

	h.clock.Advance(5 * time.Second)
	assert.Equal(t, InitialPollCountdown, h.m.countdown)
	assert.Nil(t, h.m.pollTimer)

	h.exec.runAll()
	assert.NotNil(t, h.m.pollTimer)
	assert.Equal(t, OutcomeCompleted, h.lastRecord(t).Outcome)
	assert.Equal(t, PathRefresh, h.lastRecord(t).Path)
}

func TestBootCountdownForcesFreshReads(t *testing.T) {
	h := newHarness(t, nil)
	h.m.start()
	h.exec.runAll()

	for i := 0; i < InitialPollCountdown; i++ {
		h.clock.Advance(DefaultInterval)
		h.exec.runAll()
		assert.Equal(t, InitialPollCountdown-i-1, h.m.countdown)
		assert.Equal(t, PathFresh, h.lastRecord(t).Path)
	}

	h.clock.Advance(DefaultInterval)
	h.exec.runAll()
	assert.Equal(t, 0, h.m.countdown)
	assert.Equal(t, PathRefresh, h.lastRecord(t).Path)
	assert.Equal(t, InitialPollCountdown+2, h.mock.Calls(acpi.MethodBST))
}

func TestQuickPollIntervalSelection(t *testing.T) {
	tests := []struct {
		name     string
		state    uint32
		capacity uint64
		override *time.Duration
		want     time.Duration
		quick    bool
	}{
		{
			name:     "low while plugged in",
			state:    acpi.StateCharging,
			capacity: 40,
			want:     QuickInterval,
			quick:    true,
		},
		{
			name:     "at threshold",
			state:    acpi.StateCharging,
			capacity: 60,
			want:     DefaultInterval,
		},
		{
			name:     "low on battery",
			state:    acpi.StateDischarging,
			capacity: 40,
			want:     DefaultInterval,
		},
		{
			name:     "overridden",
			state:    acpi.StateCharging,
			capacity: 40,
			override: durationPtr(5 * time.Second),
			want:     5 * time.Second,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(o *Options) { o.PollingOverride = tt.override })
			h.mock.Set(func(m *acpi.Mock) {
				m.BIX[acpi.BIXDesignCapacity] = acpi.Integer(1000)
				m.BIX[acpi.BIXLastFullCapacity] = acpi.Integer(1000)
				m.BST[acpi.BSTState] = acpi.Integer(uint64(tt.state))
				m.BST[acpi.BSTCapacity] = acpi.Integer(tt.capacity)
			})
			h.m.start()
			h.exec.runAll()

			if got := h.m.activeInterval(); got != tt.want {
				t.Errorf("activeInterval() = %v, want %v", got, tt.want)
			}
			assert.Equal(t, tt.quick, h.prop(powersource.KeyQuickPoll).Bool())
		})
	}
}

func TestQuickPollTimerFires(t *testing.T) {
	h := newHarness(t, nil)
	h.mock.Set(func(m *acpi.Mock) {
		m.BST[acpi.BSTState] = acpi.Integer(uint64(acpi.StateCharging))
		m.BST[acpi.BSTCapacity] = acpi.Integer(10)
	})
	h.m.start()
	h.exec.runAll()
	h.m.countdown = 0

	h.clock.Advance(QuickInterval)
	h.exec.runAll()
	assert.Equal(t, 2, h.mock.Calls(acpi.MethodBST))
}

func TestSleepWhileInFlightDefersAcknowledgment(t *testing.T) {
	h := newHarness(t, nil)
	h.m.start()
	require.True(t, h.m.inFlight())

	var a ackCounter
	d := h.m.onSleep(a.ack)
	assert.Equal(t, WatchdogTimeout, d)
	assert.Equal(t, 0, a.n)
	assert.Nil(t, h.m.pollTimer)
	assert.Nil(t, h.m.watchdog)
	assert.True(t, h.m.status().HandshakePending)

	// The outstanding read returns and ends the cycle.
	require.True(t, h.exec.runNext())
	assert.Equal(t, 1, a.n)
	assert.Nil(t, h.m.session)
	assert.Nil(t, h.m.pollTimer)
	assert.Empty(t, h.exec.jobs)
	assert.Equal(t, OutcomeCancelled, h.lastRecord(t).Outcome)

	h.clock.Advance(time.Minute)
	assert.Equal(t, 1, a.n)
	assert.Equal(t, 0, h.mock.Calls(acpi.MethodBIX))
}

func TestSleepWhileIdleAcknowledgesImmediately(t *testing.T) {
	h := newHarness(t, nil)
	h.m.start()
	h.exec.runAll()

	var a ackCounter
	assert.Zero(t, h.m.onSleep(a.ack))
	assert.Zero(t, h.m.onSleep(a.ack))
	assert.Equal(t, 0, a.n)
	assert.True(t, h.m.sleeping)
	assert.NotNil(t, h.m.pollTimer)
}

func TestWakeRefreshesBeforeAcknowledging(t *testing.T) {
	h := newHarness(t, nil)
	h.m.start()
	h.exec.runAll()

	var a ackCounter
	assert.Zero(t, h.m.onWake(a.ack), "wake while awake")

	require.Zero(t, h.m.onSleep(nil))
	h.mock.Set(func(m *acpi.Mock) { m.BST[acpi.BSTCapacity] = acpi.Integer(1800) })

	d := h.m.onWake(a.ack)
	assert.Equal(t, WatchdogTimeout, d)
	assert.Equal(t, 0, a.n)

	h.exec.runAll()
	assert.Equal(t, 1, a.n)
	assert.Equal(t, int64(1800), h.prop(powersource.KeyCurrentCapacity).Int())
	assert.Equal(t, PathRefresh, h.lastRecord(t).Path)
}

func TestWakeAbandonsCycleCancelledBySleep(t *testing.T) {
	h := newHarness(t, nil)
	h.m.start()

	var sleepAck, wakeAck ackCounter
	require.Equal(t, WatchdogTimeout, h.m.onSleep(sleepAck.ack))

	d := h.m.onWake(wakeAck.ack)
	assert.Equal(t, WatchdogTimeout, d)
	assert.Equal(t, 1, sleepAck.n, "superseded handshake")
	assert.Equal(t, 0, wakeAck.n)

	h.exec.runAll()
	assert.Equal(t, 1, sleepAck.n)
	assert.Equal(t, 1, wakeAck.n)
	assert.True(t, h.prop(powersource.KeyBatteryInstalled).Bool())

	outcomes := map[Outcome]uint64{OutcomeCancelled: 1, OutcomeCompleted: 1}
	assert.Equal(t, outcomes, h.m.recorder.OutcomeCounts())
}

func TestWatchdogExpiryRestartsCycle(t *testing.T) {
	h := newHarness(t, nil)
	h.m.start()
	first := h.m.session.id

	h.clock.Advance(WatchdogTimeout)

	assert.Equal(t, battery.OverallTimeoutExpired, h.m.decoder.Snapshot().LatestError)
	assert.Equal(t, string(battery.OverallTimeoutExpired), h.prop(powersource.KeyLatestErrorType).Str())
	assert.Equal(t, OutcomeAborted, h.lastRecord(t).Outcome)
	require.True(t, h.m.inFlight())
	assert.NotEqual(t, first, h.m.session.id)
	assert.NotNil(t, h.m.watchdog)

	// The read of the aborted cycle is dropped; the new cycle completes.
	h.exec.runAll()
	assert.Equal(t, 2, h.mock.Calls(acpi.MethodSTA))
	assert.Equal(t, 1, h.mock.Calls(acpi.MethodBST))
	assert.Equal(t, OutcomeCompleted, h.lastRecord(t).Outcome)
	assert.Equal(t, uint64(1), h.m.recorder.ErrorCounts()[battery.OverallTimeoutExpired])
}

func TestWatchdogExpiryReleasesWakeHandshake(t *testing.T) {
	h := newHarness(t, nil)
	h.m.start()
	h.exec.runAll()
	require.Zero(t, h.m.onSleep(nil))

	var a ackCounter
	require.Equal(t, WatchdogTimeout, h.m.onWake(a.ack))
	h.clock.Advance(WatchdogTimeout)
	assert.Equal(t, 1, a.n)

	h.exec.runAll()
	assert.Equal(t, 1, a.n)
}

func TestDynamicReadFailureIsRetriedByWatchdog(t *testing.T) {
	h := newHarness(t, nil)
	h.mock.Set(func(m *acpi.Mock) { m.Errs[acpi.MethodBST] = errors.New("AE_NOT_FOUND") })
	h.m.start()
	h.exec.runAll()

	assert.Equal(t, string(battery.NonRecoverableStatus), h.prop(powersource.KeyLatestErrorType).Str())
	assert.Equal(t, OutcomeFailed, h.lastRecord(t).Outcome)
	assert.Zero(t, h.m.recorder.OutcomeCounts()[OutcomeCompleted])
	assert.NotNil(t, h.m.watchdog)
	assert.NotNil(t, h.m.pollTimer)

	h.mock.Set(func(m *acpi.Mock) { delete(m.Errs, acpi.MethodBST) })
	h.clock.Advance(WatchdogTimeout)
	h.exec.runAll()

	assert.Equal(t, string(battery.OverallTimeoutExpired), h.prop(powersource.KeyLatestErrorType).Str())
	assert.Nil(t, h.m.watchdog)
	assert.Equal(t, int64(126), h.prop(powersource.KeyTimeRemaining).Int())
}

func TestStepFailureDoesNotAbortCycle(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.UseExtraInformation = true })
	h.mock.Set(func(m *acpi.Mock) {
		m.Errs[acpi.MethodBIX] = acpi.ErrRetryAttemptsExceeded
		m.Errs[acpi.MethodBBIX] = acpi.ErrNotSupported
	})
	h.m.start()
	h.exec.runAll()

	assert.Equal(t, 1, h.mock.Calls(acpi.MethodBST))
	assert.Equal(t, OutcomeCompleted, h.lastRecord(t).Outcome)
	counts := h.m.recorder.ErrorCounts()
	assert.Equal(t, uint64(1), counts[battery.RetryAttemptsExceeded])
	assert.Equal(t, uint64(1), counts[battery.NonRecoverableStatus])
}

func TestPermanentFailureIsPublished(t *testing.T) {
	h := newHarness(t, nil)
	h.mock.Set(func(m *acpi.Mock) {
		m.BST[acpi.BSTState] = acpi.Integer(uint64(acpi.StateCharging | acpi.StateDischarging))
	})
	h.m.start()
	h.exec.runAll()

	assert.Equal(t, string(battery.PermanentFailureDetected), h.prop(powersource.KeyLatestErrorType).Str())
	assert.Equal(t, string(battery.PermanentFailureDetected), h.prop(powersource.KeyErrorCondition).Str())
	assert.True(t, h.prop(powersource.KeyExternalConnected).Bool())
	assert.False(t, h.prop(powersource.KeyIsCharging).Bool())
	assert.Nil(t, h.m.watchdog)
}

func TestNoBatteryClearsState(t *testing.T) {
	tests := []struct {
		name string
		set  func(m *acpi.Mock)
	}{
		{
			name: "absent",
			set:  func(m *acpi.Mock) { m.STA = 0x0F },
		},
		{
			name: "presence read fails",
			set:  func(m *acpi.Mock) { m.Errs[acpi.MethodSTA] = errors.New("AE_NOT_EXIST") },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.mock.Set(tt.set)
			h.m.start()
			h.exec.runAll()

			assert.Equal(t, OutcomeNoBattery, h.lastRecord(t).Outcome)
			assert.Equal(t, 0, h.mock.Calls(acpi.MethodBIX))
			assert.False(t, h.prop(powersource.KeyBatteryInstalled).Bool())
			_, ok := h.store.Get(powersource.KeyMaxCapacity)
			assert.False(t, ok)
			assert.Nil(t, h.m.watchdog)
			assert.NotNil(t, h.m.pollTimer)
		})
	}
}

func TestReadQueueFullAbortsCycle(t *testing.T) {
	h := newHarness(t, nil)
	h.exec.capacity = 0
	h.m.start()

	assert.Nil(t, h.m.session)
	assert.Equal(t, OutcomeAborted, h.lastRecord(t).Outcome)
	assert.Equal(t, string(battery.RetryAttemptsExceeded), h.prop(powersource.KeyLatestErrorType).Str())
	assert.NotNil(t, h.m.pollTimer)
}

func TestBatteryRemovedDuringCycle(t *testing.T) {
	h := newHarness(t, nil)
	h.m.start()
	h.exec.runAll()
	require.Zero(t, h.m.onSleep(nil))

	var a ackCounter
	require.Equal(t, WatchdogTimeout, h.m.onWake(a.ack))

	h.m.onNotifiedPresence(0x0F, nil)

	assert.Equal(t, 1, a.n)
	assert.True(t, h.m.session.cancelled)
	assert.Nil(t, h.m.watchdog)
	assert.NotNil(t, h.m.pollTimer)
	assert.False(t, h.prop(powersource.KeyBatteryInstalled).Bool())
	_, ok := h.store.Get(powersource.KeyTimeRemaining)
	assert.False(t, ok)
	assert.Equal(t, powersource.LegacyInfo{}, h.store.Legacy())

	// The read of the cancelled cycle returns without publishing anything.
	h.exec.runAll()
	assert.Equal(t, 1, a.n)
	assert.Nil(t, h.m.session)
	assert.NotNil(t, h.m.pollTimer)
	_, ok = h.store.Get(powersource.KeyTimeRemaining)
	assert.False(t, ok)
}

func TestLatestErrorSurvivesRemoval(t *testing.T) {
	h := newHarness(t, nil)
	h.mock.Set(func(m *acpi.Mock) { m.Errs[acpi.MethodBST] = errors.New("AE_NOT_FOUND") })
	h.m.start()
	h.exec.runAll()

	h.m.onNotifiedPresence(0x0F, nil)

	want := battery.NonRecoverableStatus
	assert.Equal(t, string(want), h.prop(powersource.KeyLatestErrorType).Str())
	assert.Equal(t, want, h.m.decoder.Snapshot().LatestError)
	assert.Equal(t, want, h.m.status().LatestError)
}

func TestNotificationInsertsBattery(t *testing.T) {
	h := newHarness(t, nil)
	h.mock.Set(func(m *acpi.Mock) { m.STA = 0x0F })
	h.m.start()
	h.exec.runAll()
	require.False(t, h.prop(powersource.KeyBatteryInstalled).Bool())

	h.mock.Set(func(m *acpi.Mock) { m.STA = 0x1F })
	h.m.notify()
	h.exec.runAll()

	assert.True(t, h.prop(powersource.KeyBatteryInstalled).Bool())
	assert.Equal(t, PathFresh, h.lastRecord(t).Path)
	assert.Equal(t, OutcomeCompleted, h.lastRecord(t).Outcome)
}

func TestNotificationPresenceErrorIsIgnored(t *testing.T) {
	h := newHarness(t, nil)
	h.m.start()
	h.exec.runAll()

	h.m.onNotifiedPresence(0, errors.New("AE_TIME"))
	assert.Nil(t, h.m.session)
	assert.True(t, h.prop(powersource.KeyBatteryInstalled).Bool())
}

func TestSetPollingInterval(t *testing.T) {
	h := newHarness(t, nil)
	assert.ErrorIs(t, h.m.setPollingInterval(0), ErrInvalidInterval)
	assert.ErrorIs(t, h.m.setPollingInterval(-time.Second), ErrInvalidInterval)
	require.NoError(t, h.m.setPollingInterval(time.Minute))
	assert.Equal(t, time.Minute, h.m.activeInterval())

	h.m.start()
	h.exec.runAll()
	h.m.countdown = 0
	h.clock.Advance(DefaultInterval)
	assert.Nil(t, h.m.session)
	h.clock.Advance(time.Minute - DefaultInterval)
	assert.NotNil(t, h.m.session)

	o := newHarness(t, func(o *Options) { o.PollingOverride = durationPtr(0) })
	assert.ErrorIs(t, o.m.setPollingInterval(time.Minute), ErrIntervalOverridden)
	assert.Zero(t, o.m.activeInterval())
}

func TestCycleEventsArePublished(t *testing.T) {
	h := newHarness(t, nil)
	ch := h.hub.Subscribe()
	defer h.hub.Unsubscribe(ch)

	h.m.start()
	h.exec.runAll()

	var cycles []events.PollCycleEvent
	for {
		select {
		case ev := <-ch:
			if ev.Name != events.PollCycle {
				continue
			}
			p, err := events.DecodeAs[events.PollCycleEvent](ev)
			require.NoError(t, err)
			cycles = append(cycles, p)
			continue
		default:
		}
		break
	}
	require.Len(t, cycles, 1)
	assert.Equal(t, "fresh", cycles[0].Path)
	assert.Equal(t, "completed", cycles[0].Outcome)
}

func durationPtr(d time.Duration) *time.Duration { return &d }
