//go:build !linux

package daemon

import (
	"context"
	"errors"
)

func listenSleepWake(_ context.Context, _ powerHandler) error {
	return errors.New("sleep notifications are only supported with logind")
}
