package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/charlie0129/acpibatt/pkg/battery"
	"github.com/charlie0129/acpibatt/pkg/config"
	"github.com/charlie0129/acpibatt/pkg/types"
)

type statusData struct {
	battery *battery.Snapshot
	poller  *types.StatusResponse
	config  *config.RawFileConfig
}

// fetchStatusData gathers all data required for the status command from the daemon.
func fetchStatusData() (*statusData, error) {
	snap, err := apiClient.GetBattery()
	if err != nil {
		return nil, fmt.Errorf("failed to get battery state: %w", err)
	}

	st, err := apiClient.GetStatus()
	if err != nil {
		return nil, fmt.Errorf("failed to get poller status: %w", err)
	}

	conf, err := apiClient.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}

	return &statusData{
		battery: snap,
		poller:  st,
		config:  conf,
	}, nil
}

func chargeStateText(m battery.Metrics) string {
	switch m.State {
	case battery.StateCharging:
		return color.GreenString("charging")
	case battery.StateDischarging:
		return color.RedString("discharging")
	case battery.StateAnomalous:
		return color.YellowString("anomalous")
	}
	if m.FullyCharged {
		return "full"
	}
	return "not charging"
}

func NewStatusCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "status",
		GroupID: gBasic,
		Short:   "Get the current battery and poller status",
		Long:    `Get battery state, poller status, and configuration.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := fetchStatusData()
			if err != nil {
				return err
			}

			conf := config.NewFileFromConfig(data.config, "")

			if asJSON {
				return printStatusJSON(cmd, data, conf)
			}

			bat := data.battery
			m := bat.Metrics

			// Battery Info.
			cmd.Println(bold("Battery status:"))
			cmd.Println("  Installed: " + bool2Text(bat.Present))
			if bat.Present {
				if pct := bat.ChargePercent(); pct >= 0 {
					cmd.Printf("  Current charge: %s\n", bold("%d%%", pct))
				}
				cmd.Printf("  State: %s\n", bold("%s", chargeStateText(m)))
				cmd.Println("  External power: " + bool2Text(m.ExternalConnected))
				cmd.Printf("  Capacity: %s of %s (design %s)\n",
					bold("%d mAh", m.CurrentCapacity), bold("%d mAh", bat.MaxCapacity), bold("%d mAh", bat.DesignCapacity))
				cmd.Printf("  Voltage: %s\n", bold("%.2f V", float64(bat.Voltage)/1e3))

				var ampStr string
				switch {
				case m.Amperage > 0:
					ampStr = color.New(color.Bold, color.FgGreen).Sprintf("%+d mA", m.Amperage)
				case m.Amperage < 0:
					ampStr = color.New(color.Bold, color.FgRed).Sprintf("%+d mA", m.Amperage)
				default:
					ampStr = bold("%+d mA", m.Amperage)
				}
				cmd.Printf("  Current: %s\n", ampStr)
				cmd.Printf("  Time remaining: %s\n", bold("%s", minutes(m.TimeRemaining)))
				cmd.Printf("  Cycle count: %s\n", bold("%d", bat.CycleCount))
				if bat.Temperature > 0 {
					cmd.Printf("  Temperature: %s\n", bold("%.1f °C", float64(bat.Temperature)/10-273.15))
				}
				cmd.Printf("  Device: %s (%s, serial %s)\n", bold("%s", bat.DeviceName), bat.Manufacturer, bat.SerialNumber)
			}

			cmd.Println()

			// Poller.
			st := data.poller
			cmd.Println(bold("Poller status:"))
			cmd.Printf("  Polling interval: %s\n", bold("%s", time.Duration(st.IntervalMs)*time.Millisecond))
			cmd.Println("  Quick polling: " + bool2Text(st.QuickPoll))
			cmd.Println("  Sleeping: " + bool2Text(st.Sleeping))
			if st.Session != nil {
				cmd.Printf("  Poll in flight: %s (%s, %d ms)\n", bold("%s", st.Session.Path), st.Session.Step, st.Session.AgeMs)
			}
			if st.LatestError != "" {
				cmd.Printf("  Latest error: %s\n", color.RedString("%s", st.LatestError))
			}
			if st.NextFreshRead != nil {
				cmd.Printf("  Next scheduled fresh read: %s\n", bold("%s", st.NextFreshRead.Local().Format(time.DateTime)))
			}

			cmd.Println()

			// Config.
			cmd.Println(bold("Daemon configuration:"))
			cmd.Printf("  Transport: %s\n", bold("%s", conf.Transport()))
			if d := conf.PollingPeriodOverride(); d != nil {
				cmd.Printf("  Polling period override: %s\n", bold("%s", *d))
			}
			cmd.Printf("  Use extended information: %s\n", bool2Text(conf.UseExtendedInformation()))
			cmd.Printf("  Use extra information: %s\n", bool2Text(conf.UseExtraInformation()))
			cmd.Printf("  Handle sleep and wake: %s\n", bool2Text(conf.HandleSleepWake()))
			cmd.Printf("  MQTT sink: %s\n", bool2Text(conf.MQTTURL() != ""))
			cmd.Printf("  Redis sink: %s\n", bool2Text(conf.RedisAddr() != ""))
			cmd.Printf("  Allow non-root users to access the daemon: %s\n", bool2Text(conf.AllowNonRootAccess()))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print status as JSON")

	return cmd
}
