package events

import "encoding/json"

// Event name constants
const (
	PropertiesChanged = "properties.changed"
	PollCycle         = "poll.cycle"
	PowerTransition   = "power.transition"
)

// Event is a generic SSE event from daemon.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
	Seq  uint64          `json:"-"` // Hub sequence number, 0 outside the hub
}

// PropertiesChangedEvent is the typed payload for properties.changed.
// Set carries the JSON encoding of every published value that changed.
type PropertiesChangedEvent struct {
	Set     map[string]json.RawMessage `json:"set,omitempty"`
	Removed []string                   `json:"removed,omitempty"`
	Ts      int64                      `json:"ts"`
}

// PollCycleEvent is the typed payload for poll.cycle.
type PollCycleEvent struct {
	Path       string `json:"path"`
	Outcome    string `json:"outcome"`
	DurationMs int64  `json:"durationMs"`
	Ts         int64  `json:"ts"`
}

// PowerTransitionEvent is the typed payload for power.transition.
type PowerTransitionEvent struct {
	Direction  string `json:"direction"`
	Deferred   bool   `json:"deferred"`
	DeferralMs int64  `json:"deferralMs,omitempty"`
	Ts         int64  `json:"ts"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
//
// Example:
//
//	payload, err := events.DecodeAs[events.PollCycleEvent](ev)
//	if err != nil { /* handle */ }
//	fmt.Println(payload.Path, payload.Outcome)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}

// RawText renders a properties.changed value for text-only consumers. JSON
// strings are unquoted, everything else is returned as encoded.
func RawText(raw json.RawMessage) string {
	var s string
	if len(raw) > 0 && raw[0] == '"' && json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}
