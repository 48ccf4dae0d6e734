package events

import (
	"testing"
	"time"
)

func TestHubPublishSubscribe(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	h.Publish(PollCycle, PollCycleEvent{Path: "refresh", Outcome: "completed", Ts: 1})

	select {
	case ev := <-ch:
		if ev.Name != PollCycle {
			t.Fatalf("got event %q, want %q", ev.Name, PollCycle)
		}
		p, err := DecodeAs[PollCycleEvent](ev)
		if err != nil {
			t.Fatalf("DecodeAs() error = %v", err)
		}
		if p.Path != "refresh" || p.Outcome != "completed" {
			t.Errorf("DecodeAs() = %+v", p)
		}
	case <-time.After(time.Second):
		t.Fatalf("event not delivered")
	}
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()

	// Must not block even though nobody reads.
	for i := 0; i < 100; i++ {
		h.Publish(PollCycle, PollCycleEvent{Ts: int64(i)})
	}
	if len(ch) != cap(ch) {
		t.Errorf("len(ch) = %d, want %d", len(ch), cap(ch))
	}

	// The gap shows in the sequence numbers.
	var last uint64
	for len(ch) > 0 {
		last = (<-ch).Seq
	}
	if last != uint64(cap(ch)) {
		t.Errorf("last delivered Seq = %d, want %d", last, cap(ch))
	}
	if h.Seq() != 100 {
		t.Errorf("Seq() = %d, want 100", h.Seq())
	}
}

func TestHubSequence(t *testing.T) {
	h := NewEventHub()
	if h.Seq() != 0 {
		t.Fatalf("Seq() = %d before any event, want 0", h.Seq())
	}
	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	for i := 0; i < 3; i++ {
		h.Publish(PollCycle, PollCycleEvent{Ts: int64(i)})
	}
	for want := uint64(1); want <= 3; want++ {
		if got := (<-ch).Seq; got != want {
			t.Errorf("Seq = %d, want %d", got, want)
		}
	}
}

func TestHubClose(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()
	h.Close()

	if _, ok := <-ch; ok {
		t.Errorf("subscriber channel still open after Close")
	}
	if h.Len() != 0 {
		t.Errorf("Len() = %d, want 0", h.Len())
	}
	late := h.Subscribe()
	if _, ok := <-late; ok {
		t.Errorf("subscription after Close should be closed")
	}
	// Unsubscribing an already closed channel is a no-op.
	h.Unsubscribe(ch)
}

func TestDecodeAsEmpty(t *testing.T) {
	p, err := DecodeAs[PowerTransitionEvent](Event{Name: PowerTransition})
	if err != nil || p != (PowerTransitionEvent{}) {
		t.Errorf("DecodeAs() = %+v, %v", p, err)
	}
}

func TestRawText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: `"DELL 1234"`, want: "DELL 1234"},
		{in: `true`, want: "true"},
		{in: `-1000`, want: "-1000"},
		{in: `[2975,2975,2975,2975]`, want: "[2975,2975,2975,2975]"},
		{in: `"bad`, want: `"bad`},
	}
	for _, tt := range tests {
		if got := RawText([]byte(tt.in)); got != tt.want {
			t.Errorf("RawText(%s) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
