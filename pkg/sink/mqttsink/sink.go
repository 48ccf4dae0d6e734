// Package mqttsink mirrors published battery properties onto retained MQTT
// topics, one per property.
package mqttsink

import (
	"context"
	"maps"
	"slices"
	"strings"

	"github.com/charlie0129/acpibatt/pkg/events"
	"github.com/charlie0129/acpibatt/pkg/powersource"
	"github.com/charlie0129/acpibatt/pkg/sink"
)

type publisher interface {
	Publish(topic string, payload []byte, retained bool) error
}

// Sink forwards properties.changed events to MQTT. Each property lives at
// <topic>/<Key>; a removed property gets an empty retained payload, which
// clears it on the broker.
type Sink struct {
	pub     publisher
	topic   string
	current func() map[powersource.Key]powersource.Value

	// Keys holding a retained value on the broker.
	retained map[string]struct{}
}

var _ sink.Mirror = &Sink{}

// New returns a Sink publishing under topic. current supplies the full
// property set when the broker has to be brought back in step.
func New(pub publisher, topic string, current func() map[powersource.Key]powersource.Value) *Sink {
	return &Sink{
		pub:      pub,
		topic:    strings.TrimSuffix(topic, "/"),
		current:  current,
		retained: make(map[string]struct{}),
	}
}

// AvailabilityTopic is where the online/offline state of the daemon is
// kept.
func AvailabilityTopic(topic string) string {
	return strings.TrimSuffix(topic, "/") + "/availability"
}

func (s *Sink) propertyTopic(key string) string {
	return s.topic + "/" + key
}

func (s *Sink) set(key, payload string) error {
	if err := s.pub.Publish(s.propertyTopic(key), []byte(payload), true); err != nil {
		return err
	}
	s.retained[key] = struct{}{}
	return nil
}

func (s *Sink) clear(key string) error {
	if err := s.pub.Publish(s.propertyTopic(key), nil, true); err != nil {
		return err
	}
	delete(s.retained, key)
	return nil
}

// Sync publishes every property in props and clears the retained topics
// of properties no longer in it.
func (s *Sink) Sync(props map[powersource.Key]powersource.Value) error {
	for _, k := range slices.Sorted(maps.Keys(props)) {
		if err := s.set(string(k), props[k].Text()); err != nil {
			return err
		}
	}
	for _, k := range slices.Sorted(maps.Keys(s.retained)) {
		if _, ok := props[powersource.Key(k)]; ok {
			continue
		}
		if err := s.clear(k); err != nil {
			return err
		}
	}
	return nil
}

// Resync brings the broker back in step with the current properties.
func (s *Sink) Resync(context.Context) error {
	return s.Sync(s.current())
}

// Handle applies one event. Events other than properties.changed are
// ignored.
func (s *Sink) Handle(_ context.Context, ev events.Event) error {
	if ev.Name != events.PropertiesChanged {
		return nil
	}
	p, err := events.DecodeAs[events.PropertiesChangedEvent](ev)
	if err != nil {
		return err
	}

	for _, k := range slices.Sorted(maps.Keys(p.Set)) {
		if err := s.set(k, events.RawText(p.Set[k])); err != nil {
			return err
		}
	}
	for _, k := range p.Removed {
		if err := s.clear(k); err != nil {
			return err
		}
	}
	return nil
}

// Run mirrors events from ch until ctx is done or ch is closed. latest is
// the hub's sequence number, used to notice dropped events.
func (s *Sink) Run(ctx context.Context, ch <-chan events.Event, latest func() uint64) {
	sink.Follow(ctx, "mqtt", s, ch, latest)
}

// Offline marks the daemon offline.
func (s *Sink) Offline() error {
	return s.pub.Publish(AvailabilityTopic(s.topic), []byte("offline"), true)
}
