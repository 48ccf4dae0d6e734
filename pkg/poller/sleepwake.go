package poller

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/acpibatt/pkg/events"
)

// Direction is the direction of a system power transition.
type Direction int

const (
	DirectionSleep Direction = iota
	DirectionWake
)

func (d Direction) String() string {
	if d == DirectionWake {
		return "wake"
	}
	return "sleep"
}

// handshake is a transition waiting for its acknowledgment.
type handshake struct {
	direction Direction
	ack       func()
	since     time.Time
}

// onSleep handles sleep entry. It returns 0 when the transition is
// acknowledged right away, in which case ack is never called. Otherwise ack
// is called exactly once, when the cycle in flight ends, and the returned
// duration is the longest the caller should wait for it.
func (m *machine) onSleep(ack func()) time.Duration {
	if m.sleeping {
		return 0
	}
	m.acknowledge()
	m.sleeping = true

	if !m.inFlight() {
		m.publishTransition(DirectionSleep, 0)
		return 0
	}

	// Stall the transition until the read in flight returns.
	m.stopPollTimer()
	m.stopWatchdog()
	m.session.cancelled = true
	m.handshake = &handshake{direction: DirectionSleep, ack: ack, since: m.clock.Now()}
	m.publishTransition(DirectionSleep, WatchdogTimeout)
	return WatchdogTimeout
}

// onWake handles wake entry. Its contract matches onSleep. A refresh cycle
// is always started; the acknowledgment waits for it.
func (m *machine) onWake(ack func()) time.Duration {
	if !m.sleeping {
		return 0
	}
	m.acknowledge()
	m.sleeping = false

	m.triggerPoll(PathRefresh)
	if !m.inFlight() {
		m.publishTransition(DirectionWake, 0)
		return 0
	}

	m.handshake = &handshake{direction: DirectionWake, ack: ack, since: m.clock.Now()}
	m.publishTransition(DirectionWake, WatchdogTimeout)
	return WatchdogTimeout
}

// acknowledge releases the pending handshake, if any.
func (m *machine) acknowledge() {
	h := m.handshake
	if h == nil {
		return
	}
	m.handshake = nil

	logrus.WithFields(logrus.Fields{
		"direction": h.direction,
		"waited":    m.clock.Now().Sub(h.since),
	}).Debug("acknowledging power transition")
	if h.ack != nil {
		h.ack()
	}
}

func (m *machine) publishTransition(d Direction, deferral time.Duration) {
	logrus.WithFields(logrus.Fields{
		"direction": d,
		"deferral":  deferral,
	}).Info("system power transition")
	m.hub.Publish(events.PowerTransition, events.PowerTransitionEvent{
		Direction:  d.String(),
		Deferred:   deferral > 0,
		DeferralMs: deferral.Milliseconds(),
		Ts:         m.clock.Now().Unix(),
	})
}
