package powersource

import (
	"encoding/json"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/acpibatt/pkg/events"
)

// Sink receives every change made to the store.
type Sink interface {
	Publish(key Key, v Value)
	Unpublish(key Key)
}

// Flusher is implemented by sinks that batch changes until the store
// commits them.
type Flusher interface {
	Flush()
}

// Store holds the published attributes. Writes come from a single owner;
// reads may come from any goroutine.
type Store struct {
	mu    sync.RWMutex
	props map[Key]Value
	sinks []Sink
}

// NewStore returns an empty store forwarding changes to sinks.
func NewStore(sinks ...Sink) *Store {
	return &Store{
		props: make(map[Key]Value),
		sinks: sinks,
	}
}

// Publish sets key to v. Unchanged values are not forwarded.
func (s *Store) Publish(key Key, v Value) {
	s.mu.Lock()
	old, ok := s.props[key]
	if ok && old.Equal(v) {
		s.mu.Unlock()
		return
	}
	s.props[key] = v
	s.mu.Unlock()

	for _, sink := range s.sinks {
		sink.Publish(key, v)
	}
}

// Unpublish removes key.
func (s *Store) Unpublish(key Key) {
	s.mu.Lock()
	if _, ok := s.props[key]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.props, key)
	s.mu.Unlock()

	for _, sink := range s.sinks {
		sink.Unpublish(key)
	}
}

// Commit flushes batching sinks.
func (s *Store) Commit() {
	for _, sink := range s.sinks {
		if f, ok := sink.(Flusher); ok {
			f.Flush()
		}
	}
}

// Get returns the value published under key.
func (s *Store) Get(key Key) (Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.props[key]
	return v, ok
}

// Properties returns a copy of every published attribute.
func (s *Store) Properties() map[Key]Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.props)
}

// EventSink batches changes and publishes them on an event hub as a
// single properties.changed event per commit.
type EventSink struct {
	hub *events.EventHub

	mu      sync.Mutex
	set     map[string]json.RawMessage
	removed map[string]struct{}
}

var _ Sink = &EventSink{}

func NewEventSink(hub *events.EventHub) *EventSink {
	return &EventSink{
		hub:     hub,
		set:     make(map[string]json.RawMessage),
		removed: make(map[string]struct{}),
	}
}

func (e *EventSink) Publish(key Key, v Value) {
	b, err := json.Marshal(v)
	if err != nil {
		logrus.WithError(err).WithField("key", key).Warn("failed to encode property")
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.removed, string(key))
	e.set[string(key)] = b
}

func (e *EventSink) Unpublish(key Key) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.set, string(key))
	e.removed[string(key)] = struct{}{}
}

func (e *EventSink) Flush() {
	e.mu.Lock()
	if len(e.set) == 0 && len(e.removed) == 0 {
		e.mu.Unlock()
		return
	}
	ev := events.PropertiesChangedEvent{
		Set:     e.set,
		Removed: slices.Sorted(maps.Keys(e.removed)),
		Ts:      time.Now().Unix(),
	}
	e.set = make(map[string]json.RawMessage)
	e.removed = make(map[string]struct{})
	e.mu.Unlock()

	e.hub.Publish(events.PropertiesChanged, ev)
}
