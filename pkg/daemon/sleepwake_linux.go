//go:build linux

package daemon

import (
	"context"
	"fmt"
	"syscall"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
)

const (
	login1Dest      = "org.freedesktop.login1"
	login1Path      = "/org/freedesktop/login1"
	login1Manager   = "org.freedesktop.login1.Manager"
	prepareForSleep = login1Manager + ".PrepareForSleep"
)

// logindLock is a logind inhibitor. The lock is dropped when the file
// descriptor is closed.
type logindLock struct {
	fd int
}

func (l *logindLock) Release() error {
	if l.fd < 0 {
		return nil
	}
	if err := syscall.Close(l.fd); err != nil {
		return fmt.Errorf("failed to close inhibitor fd: %w", err)
	}
	l.fd = -1
	return nil
}

func inhibitSleep(conn *dbus.Conn) (inhibitLock, error) {
	obj := conn.Object(login1Dest, login1Path)
	call := obj.Call(login1Manager+".Inhibit", 0,
		"sleep",
		"acpibatt",
		"Finishing battery poll cycle",
		"delay")
	if call.Err != nil {
		return nil, fmt.Errorf("failed to acquire inhibitor lock: %w", call.Err)
	}

	var fd dbus.UnixFD
	if err := call.Store(&fd); err != nil {
		return nil, fmt.Errorf("failed to extract file descriptor: %w", err)
	}
	return &logindLock{fd: int(fd)}, nil
}

// listenSleepWake follows logind PrepareForSleep signals until ctx is done.
func listenSleepWake(ctx context.Context, h powerHandler) error {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("failed to connect to system bus: %w", err)
	}
	defer conn.Close()

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(login1Path),
		dbus.WithMatchInterface(login1Manager),
		dbus.WithMatchMember("PrepareForSleep"),
	); err != nil {
		return fmt.Errorf("failed to subscribe to PrepareForSleep: %w", err)
	}

	sigs := make(chan *dbus.Signal, 8)
	conn.Signal(sigs)
	defer conn.RemoveSignal(sigs)

	b := newSleepWakeBridge(h, func() (inhibitLock, error) {
		return inhibitSleep(conn)
	})
	b.arm()
	defer b.close()

	logrus.Info("listening to logind sleep notifications")

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-sigs:
			if !ok {
				return fmt.Errorf("system bus connection closed")
			}
			if sig.Name != prepareForSleep || len(sig.Body) == 0 {
				continue
			}
			start, ok := sig.Body[0].(bool)
			if !ok {
				continue
			}
			if start {
				b.sleep(ctx)
			} else {
				b.wake(ctx)
			}
		}
	}
}
