package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// powerHandler is the part of the poller that takes sleep and wake
// transitions.
type powerHandler interface {
	HandleSleep(ctx context.Context, ack func()) (time.Duration, error)
	HandleWake(ctx context.Context, ack func()) (time.Duration, error)
}

// inhibitLock delays system sleep while held.
type inhibitLock interface {
	Release() error
}

// sleepWakeBridge turns system sleep and resume notifications into poller
// transitions. A delay lock is held while awake so that a poll cycle can
// be wound down before the system goes to sleep.
type sleepWakeBridge struct {
	handler powerHandler
	acquire func() (inhibitLock, error)

	mu   sync.Mutex
	lock inhibitLock
	// afterFunc is replaced in tests.
	afterFunc func(time.Duration, func()) *time.Timer
}

func newSleepWakeBridge(handler powerHandler, acquire func() (inhibitLock, error)) *sleepWakeBridge {
	return &sleepWakeBridge{
		handler:   handler,
		acquire:   acquire,
		afterFunc: time.AfterFunc,
	}
}

// arm takes a new delay lock if none is held.
func (b *sleepWakeBridge) arm() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lock != nil {
		return
	}
	lock, err := b.acquire()
	if err != nil {
		logrus.Warnf("failed to take sleep delay lock, sleep will not wait for the battery poller: %v", err)
		return
	}
	b.lock = lock
	logrus.Debug("sleep delay lock taken")
}

// takeRelease hands out a func releasing the current lock at most once.
func (b *sleepWakeBridge) takeRelease() func() {
	b.mu.Lock()
	lock := b.lock
	b.lock = nil
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			if lock == nil {
				return
			}
			if err := lock.Release(); err != nil {
				logrus.Errorf("failed to release sleep delay lock: %v", err)
				return
			}
			logrus.Debug("sleep delay lock released")
		})
	}
}

// sleep handles an imminent system sleep. The delay lock is released once
// the poller acknowledges, or after the deferral it asked for.
func (b *sleepWakeBridge) sleep(ctx context.Context) {
	release := b.takeRelease()

	deferral, err := b.handler.HandleSleep(ctx, release)
	if err != nil {
		logrus.Errorf("failed to hand sleep to battery poller: %v", err)
		release()
		return
	}
	if deferral == 0 {
		release()
		logrus.Info("system sleep acknowledged")
		return
	}

	logrus.WithField("deferral", deferral).Info("system sleep deferred")
	b.afterFunc(deferral, func() {
		logrus.Warn("battery poller did not acknowledge sleep in time")
		release()
	})
}

// wake handles a system resume and takes the delay lock for the next sleep.
func (b *sleepWakeBridge) wake(ctx context.Context) {
	b.arm()

	deferral, err := b.handler.HandleWake(ctx, func() {
		logrus.Debug("system wake acknowledged")
	})
	if err != nil {
		logrus.Errorf("failed to hand wake to battery poller: %v", err)
		return
	}
	logrus.WithField("deferral", deferral).Info("system woke up")
}

// close releases a held lock.
func (b *sleepWakeBridge) close() {
	b.takeRelease()()
}
