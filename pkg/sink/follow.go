// Package sink holds the event loop shared by the property mirrors.
package sink

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/acpibatt/pkg/events"
)

// ResyncInterval is how often a mirror that fell out of step tries to
// rebuild itself, and how often a quiet mirror checks for lost events.
var ResyncInterval = 5 * time.Second

// Mirror is a remote copy of the published properties.
type Mirror interface {
	// Handle applies one hub event.
	Handle(ctx context.Context, ev events.Event) error
	// Resync rebuilds the whole copy from the current properties.
	Resync(ctx context.Context) error
}

// Follow feeds events from ch into m until ctx is done or ch is closed.
// latest reports the hub's last sequence number. The hub drops events for
// subscribers that fall behind, and m may fail to apply one; either way m
// is rebuilt with Resync, retried every ResyncInterval until it succeeds.
func Follow(ctx context.Context, name string, m Mirror, ch <-chan events.Event, latest func() uint64) {
	log := logrus.WithField("sink", name)

	var last uint64
	stale := false
	resync := func() bool {
		if err := m.Resync(ctx); err != nil {
			log.WithError(err).Warn("failed to resync properties")
			stale = true
			return false
		}
		log.Info("properties resynced")
		stale = false
		return true
	}

	tick := time.NewTicker(ResyncInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			// Nothing buffered yet the hub has moved on: the tail was
			// dropped. A resync covers everything up to target.
			if last != 0 && len(ch) == 0 {
				if target := latest(); target != last {
					log.WithFields(logrus.Fields{"last": last, "latest": target}).Warn("events were dropped")
					if resync() {
						last = target
					}
					continue
				}
			}
			if stale {
				resync()
			}
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if last != 0 && ev.Seq != 0 && ev.Seq != last+1 {
				log.WithFields(logrus.Fields{"last": last, "seq": ev.Seq}).Warn("events were dropped")
				stale = true
			}
			if ev.Seq != 0 {
				last = ev.Seq
			}
			if stale {
				resync()
				continue
			}
			if err := m.Handle(ctx, ev); err != nil {
				log.WithError(err).WithField("event", ev.Name).Warn("failed to forward event")
				stale = true
			}
		}
	}
}
