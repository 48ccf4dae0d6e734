package main

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/charlie0129/acpibatt/pkg/battery"
	"github.com/charlie0129/acpibatt/pkg/config"
)

type statusJSON struct {
	Battery       statusBatteryJSON `json:"battery"`
	Poller        statusPollerJSON  `json:"poller"`
	Configuration statusConfigJSON  `json:"configuration"`
}

type statusBatteryJSON struct {
	Present              bool   `json:"present"`
	CurrentChargePercent *int   `json:"currentChargePercent"`
	State                string `json:"state"`
	ExternalConnected    bool   `json:"externalConnected"`
	CurrentCapacityMah   uint32 `json:"currentCapacityMah"`
	MaxCapacityMah       uint32 `json:"maxCapacityMah"`
	DesignCapacityMah    uint32 `json:"designCapacityMah"`
	VoltageMv            uint32 `json:"voltageMv"`
	AmperageMa           int64  `json:"amperageMa"`
	TimeRemainingMinutes *int   `json:"timeRemainingMinutes"`
	CycleCount           uint32 `json:"cycleCount"`
	DeviceName           string `json:"deviceName"`
}

type statusPollerJSON struct {
	IntervalMs    int64      `json:"intervalMs"`
	QuickPoll     bool       `json:"quickPoll"`
	Sleeping      bool       `json:"sleeping"`
	InFlight      bool       `json:"inFlight"`
	LatestError   string     `json:"latestError,omitempty"`
	NextFreshRead *time.Time `json:"nextFreshRead"`
}

type statusConfigJSON struct {
	Transport              string `json:"transport"`
	PollingOverrideMs      *int64 `json:"pollingOverrideMs"`
	UseExtendedInformation bool   `json:"useExtendedInformation"`
	UseExtraInformation    bool   `json:"useExtraInformation"`
	HandleSleepWake        bool   `json:"handleSleepWake"`
	AllowNonRootAccess     bool   `json:"allowNonRootAccess"`
}

// chargeStateString returns a camelCase string for the charge state.
func chargeStateString(m battery.Metrics) string {
	switch m.State {
	case battery.StateCharging:
		return "charging"
	case battery.StateDischarging:
		return "discharging"
	case battery.StateAnomalous:
		return "anomalous"
	}
	if m.FullyCharged {
		return "full"
	}
	return "notCharging"
}

func printStatusJSON(cmd *cobra.Command, data *statusData, cfg *config.File) error {
	bat := data.battery
	st := data.poller

	out := statusJSON{
		Battery: statusBatteryJSON{
			Present:            bat.Present,
			State:              chargeStateString(bat.Metrics),
			ExternalConnected:  bat.Metrics.ExternalConnected,
			CurrentCapacityMah: bat.Metrics.CurrentCapacity,
			MaxCapacityMah:     bat.MaxCapacity,
			DesignCapacityMah:  bat.DesignCapacity,
			VoltageMv:          bat.Voltage,
			AmperageMa:         bat.Metrics.Amperage,
			CycleCount:         bat.CycleCount,
			DeviceName:         bat.DeviceName,
		},
		Poller: statusPollerJSON{
			IntervalMs:    st.IntervalMs,
			QuickPoll:     st.QuickPoll,
			Sleeping:      st.Sleeping,
			InFlight:      st.Session != nil,
			LatestError:   string(st.LatestError),
			NextFreshRead: st.NextFreshRead,
		},
		Configuration: statusConfigJSON{
			Transport:              cfg.Transport(),
			UseExtendedInformation: cfg.UseExtendedInformation(),
			UseExtraInformation:    cfg.UseExtraInformation(),
			HandleSleepWake:        cfg.HandleSleepWake(),
			AllowNonRootAccess:     cfg.AllowNonRootAccess(),
		},
	}

	if pct := bat.ChargePercent(); pct >= 0 {
		out.Battery.CurrentChargePercent = &pct
	}
	if m := bat.Metrics.TimeRemaining; m < battery.TimeUndefined {
		v := int(m)
		out.Battery.TimeRemainingMinutes = &v
	}
	if d := cfg.PollingPeriodOverride(); d != nil {
		ms := d.Milliseconds()
		out.Configuration.PollingOverrideMs = &ms
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
