package daemon

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	acpidMinBackoff = time.Second
	acpidMaxBackoff = 30 * time.Second
)

// isBatteryEvent reports whether an acpid event line concerns the battery
// or the AC adapter, e.g. "battery PNP0C0A:00 00000080 00000001".
func isBatteryEvent(line string) bool {
	class, _, _ := strings.Cut(strings.TrimSpace(line), " ")
	class, _, _ = strings.Cut(class, "/")
	return class == "battery" || class == "ac_adapter"
}

// readAcpidEvents calls notify for every battery event read from r and
// returns when r is exhausted.
func readAcpidEvents(r io.Reader, notify func()) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if !isBatteryEvent(line) {
			continue
		}
		logrus.WithField("event", line).Debug("acpid battery event")
		notify()
	}
	return sc.Err()
}

// watchAcpid follows the acpid event socket at path until ctx is done,
// reconnecting when acpid goes away.
func watchAcpid(ctx context.Context, path string, notify func()) {
	var d net.Dialer
	backoff := acpidMinBackoff

	for {
		conn, err := d.DialContext(ctx, "unix", path)
		if err == nil {
			logrus.WithField("socket", path).Info("listening to acpid events")
			backoff = acpidMinBackoff

			stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
			err = readAcpidEvents(conn, notify)
			stop()
			_ = conn.Close()
			if err == nil {
				err = io.EOF
			}
		}
		if ctx.Err() != nil {
			return
		}

		logrus.WithField("socket", path).Warnf("acpid connection lost, retrying in %s: %v", backoff, err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, acpidMaxBackoff)
	}
}
