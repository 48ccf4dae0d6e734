package client

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/acpibatt/pkg/events"
)

// SubscribeEvents streams daemon events until ctx is done or the daemon
// closes the stream, then closes the returned channel. Reconnecting is up
// to the caller.
func (c *Client) SubscribeEvents(ctx context.Context) <-chan events.Event {
	ch := make(chan events.Event, 16)

	go func() {
		defer close(ch)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://unix/events", nil)
		if err != nil {
			logrus.Errorf("failed to create event request: %v", err)
			return
		}
		req.Header.Set("Accept", "text/event-stream")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			logrus.Debugf("failed to subscribe to events: %v", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			logrus.Debugf("failed to subscribe to events: got %d", resp.StatusCode)
			return
		}

		err = readEventStream(resp.Body, func(ev events.Event) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		})
		if err != nil && ctx.Err() == nil {
			logrus.Debugf("event stream ended: %v", err)
		}
	}()

	return ch
}

// readEventStream parses a text/event-stream body, calling emit for each
// complete event until emit returns false or r is exhausted.
func readEventStream(r io.Reader, emit func(events.Event) bool) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var name string
	var data []string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if name == "" && len(data) == 0 {
				continue
			}
			if name == "" {
				name = "message"
			}
			if !emit(events.Event{Name: name, Data: []byte(strings.Join(data, "\n"))}) {
				return nil
			}
			name, data = "", nil
		case strings.HasPrefix(line, ":"):
			// comment, e.g. keepalive
		default:
			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")
			switch field {
			case "event":
				name = value
			case "data":
				data = append(data, value)
			}
		}
	}
	return sc.Err()
}
