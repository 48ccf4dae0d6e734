package sink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/acpibatt/pkg/events"
)

type fakeMirror struct {
	mu        sync.Mutex
	handled   []uint64
	resyncs   int
	handleErr error
	resyncErr error
}

func (m *fakeMirror) Handle(_ context.Context, ev events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handleErr != nil {
		return m.handleErr
	}
	m.handled = append(m.handled, ev.Seq)
	return nil
}

func (m *fakeMirror) Resync(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resyncErr != nil {
		return m.resyncErr
	}
	m.resyncs++
	return nil
}

func (m *fakeMirror) counts() (handled []uint64, resyncs int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uint64(nil), m.handled...), m.resyncs
}

func setResyncInterval(t *testing.T, d time.Duration) {
	t.Helper()
	old := ResyncInterval
	ResyncInterval = d
	t.Cleanup(func() { ResyncInterval = old })
}

func follow(t *testing.T, m Mirror, ch chan events.Event, latest func() uint64) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Follow(ctx, "test", m, ch, latest)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func seqEvent(seq uint64) events.Event {
	return events.Event{Name: events.PropertiesChanged, Data: []byte(`{}`), Seq: seq}
}

func TestFollowInSequence(t *testing.T) {
	setResyncInterval(t, time.Hour)
	m := &fakeMirror{}
	ch := make(chan events.Event, 4)
	for i := uint64(1); i <= 3; i++ {
		ch <- seqEvent(i)
	}
	close(ch)

	Follow(context.Background(), "test", m, ch, func() uint64 { return 3 })

	handled, resyncs := m.counts()
	assert.Equal(t, []uint64{1, 2, 3}, handled)
	assert.Zero(t, resyncs)
}

func TestFollowResyncsOnGap(t *testing.T) {
	setResyncInterval(t, time.Hour)
	m := &fakeMirror{}
	ch := make(chan events.Event, 4)
	ch <- seqEvent(1)
	ch <- seqEvent(5)
	ch <- seqEvent(6)
	close(ch)

	Follow(context.Background(), "test", m, ch, func() uint64 { return 6 })

	handled, resyncs := m.counts()
	assert.Equal(t, []uint64{1, 6}, handled)
	assert.Equal(t, 1, resyncs)
}

func TestFollowResyncsWhenTailDropped(t *testing.T) {
	setResyncInterval(t, 10*time.Millisecond)
	m := &fakeMirror{}
	ch := make(chan events.Event, 4)
	ch <- seqEvent(1)
	ch <- seqEvent(2)

	// The hub published up to 9 but only 2 made it into the buffer.
	follow(t, m, ch, func() uint64 { return 9 })

	require.Eventually(t, func() bool {
		_, resyncs := m.counts()
		return resyncs == 1
	}, time.Second, 5*time.Millisecond)

	// Once resynced it stays quiet until something new is missed.
	time.Sleep(50 * time.Millisecond)
	_, resyncs := m.counts()
	assert.Equal(t, 1, resyncs)
}

func TestFollowRetriesFailedResync(t *testing.T) {
	setResyncInterval(t, 10*time.Millisecond)
	m := &fakeMirror{handleErr: errors.New("not connected"), resyncErr: errors.New("not connected")}
	ch := make(chan events.Event, 1)
	ch <- seqEvent(1)

	follow(t, m, ch, func() uint64 { return 1 })

	time.Sleep(50 * time.Millisecond)
	_, resyncs := m.counts()
	require.Zero(t, resyncs)

	m.mu.Lock()
	m.handleErr, m.resyncErr = nil, nil
	m.mu.Unlock()

	assert.Eventually(t, func() bool {
		_, resyncs := m.counts()
		return resyncs == 1
	}, time.Second, 5*time.Millisecond)
}
