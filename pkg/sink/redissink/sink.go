// Package redissink mirrors published battery properties into a Redis
// hash and announces each change on a channel named after the hash.
package redissink

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/acpibatt/pkg/events"
	"github.com/charlie0129/acpibatt/pkg/powersource"
	"github.com/charlie0129/acpibatt/pkg/sink"
)

// Notification is the message published on the key channel after every
// applied change.
const Notification = "updated"

// update is one batch of hash changes. A reset update replaces the hash.
type update struct {
	set     map[string]any
	removed []string
	reset   bool
}

func (u update) empty() bool {
	return !u.reset && len(u.set) == 0 && len(u.removed) == 0
}

func updateFromEvent(ev events.Event) (update, error) {
	if ev.Name != events.PropertiesChanged {
		return update{}, nil
	}
	p, err := events.DecodeAs[events.PropertiesChangedEvent](ev)
	if err != nil {
		return update{}, err
	}
	u := update{set: make(map[string]any, len(p.Set)), removed: p.Removed}
	for k, raw := range p.Set {
		u.set[k] = events.RawText(raw)
	}
	return u, nil
}

func updateFromProperties(props map[powersource.Key]powersource.Value) update {
	u := update{set: make(map[string]any, len(props)), reset: true}
	for k, v := range props {
		u.set[string(k)] = v.Text()
	}
	return u
}

// Sink writes to the hash at key.
type Sink struct {
	client  *redis.Client
	key     string
	current func() map[powersource.Key]powersource.Value
}

var _ sink.Mirror = &Sink{}

// NewClient returns a client for addr and checks that the server answers.
func NewClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	logrus.WithField("addr", addr).Info("Redis client connected")
	return client, nil
}

// New returns a Sink for the hash at key. current supplies the full
// property set when the hash has to be rebuilt.
func New(client *redis.Client, key string, current func() map[powersource.Key]powersource.Value) *Sink {
	return &Sink{client: client, key: key, current: current}
}

// apply writes u in one MULTI/EXEC so readers never see half an update.
func (s *Sink) apply(ctx context.Context, u update) error {
	if u.empty() {
		return nil
	}

	pipe := s.client.TxPipeline()
	if u.reset {
		pipe.Del(ctx, s.key)
	}
	if len(u.set) > 0 {
		pipe.HSet(ctx, s.key, u.set)
	}
	if len(u.removed) > 0 {
		pipe.HDel(ctx, s.key, u.removed...)
	}
	pipe.Publish(ctx, s.key, Notification)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline execution failed: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"key":     s.key,
		"set":     slices.Sorted(maps.Keys(u.set)),
		"removed": u.removed,
		"reset":   u.reset,
	}).Trace("updated Redis hash")
	return nil
}

// Sync replaces the hash with props.
func (s *Sink) Sync(ctx context.Context, props map[powersource.Key]powersource.Value) error {
	return s.apply(ctx, updateFromProperties(props))
}

// Resync replaces the hash with the current properties.
func (s *Sink) Resync(ctx context.Context) error {
	return s.Sync(ctx, s.current())
}

// Handle applies one event. Events other than properties.changed are
// ignored.
func (s *Sink) Handle(ctx context.Context, ev events.Event) error {
	u, err := updateFromEvent(ev)
	if err != nil {
		return err
	}
	return s.apply(ctx, u)
}

// Run mirrors events from ch until ctx is done or ch is closed. latest is
// the hub's sequence number, used to notice dropped events.
func (s *Sink) Run(ctx context.Context, ch <-chan events.Event, latest func() uint64) {
	sink.Follow(ctx, "redis", s, ch, latest)
}
