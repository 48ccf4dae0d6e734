package main

import (
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/acpibatt/pkg/client"
	"github.com/charlie0129/acpibatt/pkg/events"
)

func NewPollingIntervalCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "polling-interval [duration]",
		Short:   "Set the default polling interval",
		GroupID: gAdvanced,
		Long: `Set the default polling interval.

The interval is a duration such as "90s" or "2m", or a number of seconds. It
takes effect when the polling timer is next armed, and is lost when the
daemon restarts. It cannot be changed when the config fixes the polling
period.`,
		RunE: func(_ *cobra.Command, args []string) error {
			d, err := parseDurationArg(args, "polling interval")
			if err != nil {
				return err
			}

			ret, err := apiClient.SetPollingInterval(d)
			if err != nil {
				var se *client.StatusError
				if errors.As(err, &se) && se.Code == http.StatusConflict {
					return fmt.Errorf("polling interval is fixed by the pollingPeriodOverride config")
				}
				return fmt.Errorf("failed to set polling interval: %w", err)
			}

			if ret != "" {
				logrus.Debugf("daemon responded: %s", ret)
			}

			logrus.Infof("successfully set polling interval to %s", d)
			return nil
		},
	}
}

func NewWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "watch",
		Short:   "Follow daemon events",
		GroupID: gAdvanced,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			for ev := range apiClient.SubscribeEvents(ctx) {
				printEvent(cmd, ev)
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("event stream closed by daemon")
		},
	}
}

func printEvent(cmd *cobra.Command, ev events.Event) {
	switch ev.Name {
	case events.PropertiesChanged:
		p, err := events.DecodeAs[events.PropertiesChangedEvent](ev)
		if err != nil {
			break
		}
		for k, v := range p.Set {
			cmd.Printf("%s %s = %s\n", bold("%s", ev.Name), k, events.RawText(v))
		}
		for _, k := range p.Removed {
			cmd.Printf("%s %s removed\n", bold("%s", ev.Name), k)
		}
		return
	case events.PollCycle:
		p, err := events.DecodeAs[events.PollCycleEvent](ev)
		if err != nil {
			break
		}
		cmd.Printf("%s %s %s in %d ms\n", bold("%s", ev.Name), p.Path, p.Outcome, p.DurationMs)
		return
	case events.PowerTransition:
		p, err := events.DecodeAs[events.PowerTransitionEvent](ev)
		if err != nil {
			break
		}
		cmd.Printf("%s %s deferred=%t\n", bold("%s", ev.Name), p.Direction, p.Deferred)
		return
	}
	cmd.Printf("%s %s\n", bold("%s", ev.Name), ev.Data)
}

func NewMetricsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "metrics",
		Short:   "Print the Prometheus metrics exposed by the daemon",
		GroupID: gAdvanced,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := apiClient.GetMetrics()
			if err != nil {
				return err
			}
			cmd.Print(out)
			return nil
		},
	}
}
