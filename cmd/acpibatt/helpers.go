package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/fatih/color"

	"github.com/charlie0129/acpibatt/pkg/battery"
	"github.com/charlie0129/acpibatt/pkg/version"
)

// parseDurationArg accepts a Go duration ("90s", "2m") or plain seconds.
func parseDurationArg(args []string, valueName string) (time.Duration, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("invalid number of arguments")
	}

	if secs, err := strconv.ParseFloat(args[0], 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", valueName, err)
	}
	return d, nil
}

func getVersion() (clientVersion, daemonVersion string, err error) {
	daemonVersion, err = apiClient.GetVersion()
	return version.Version, daemonVersion, err
}

func bool2Text(b bool) string {
	if b {
		return color.New(color.Bold, color.FgGreen).Sprint("✔")
	}
	return color.New(color.Bold, color.FgRed).Sprint("✘")
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}

func minutes(m uint32) string {
	if m >= battery.TimeUndefined {
		return "unknown"
	}
	return (time.Duration(m) * time.Minute).String()
}
