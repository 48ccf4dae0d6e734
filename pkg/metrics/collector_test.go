package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/acpibatt/pkg/battery"
	"github.com/charlie0129/acpibatt/pkg/poller"
	"github.com/charlie0129/acpibatt/pkg/powersource"
)

func TestCollector(t *testing.T) {
	store := powersource.NewStore()
	store.Publish(powersource.KeyBatteryInstalled, powersource.Bool(true))
	store.Publish(powersource.KeyIsCharging, powersource.Bool(false))
	store.Publish(powersource.KeyAmperage, powersource.Int(-1000))
	store.Publish(powersource.KeyVoltage, powersource.Uint(11900))
	store.Publish(powersource.KeyDeviceName, powersource.String("DELL 1234"))

	rec := poller.NewCycleRecorder(10)
	rec.AddRecord(poller.CycleRecord{Time: time.Now(), Outcome: poller.OutcomeCompleted})
	rec.AddRecord(poller.CycleRecord{Time: time.Now(), Outcome: poller.OutcomeCompleted})
	rec.AddRecord(poller.CycleRecord{Time: time.Now(), Outcome: poller.OutcomeAborted})
	rec.AddError(battery.OverallTimeoutExpired)

	c := NewCollector(store, rec)

	expected := `
# HELP acpibatt_battery_amperage_ma Average current, negative when discharging (mA).
# TYPE acpibatt_battery_amperage_ma gauge
acpibatt_battery_amperage_ma -1000
# HELP acpibatt_battery_charging Whether the battery is charging.
# TYPE acpibatt_battery_charging gauge
acpibatt_battery_charging 0
# HELP acpibatt_battery_installed Whether a battery is installed.
# TYPE acpibatt_battery_installed gauge
acpibatt_battery_installed 1
# HELP acpibatt_battery_voltage_mv Present voltage (mV).
# TYPE acpibatt_battery_voltage_mv gauge
acpibatt_battery_voltage_mv 11900
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"acpibatt_battery_amperage_ma",
		"acpibatt_battery_charging",
		"acpibatt_battery_installed",
		"acpibatt_battery_voltage_mv",
		"acpibatt_battery_cycle_count",
	))

	expected = `
# HELP acpibatt_poll_cycles_total Poll cycles by outcome.
# TYPE acpibatt_poll_cycles_total counter
acpibatt_poll_cycles_total{outcome="aborted"} 1
acpibatt_poll_cycles_total{outcome="cancelled"} 0
acpibatt_poll_cycles_total{outcome="completed"} 2
acpibatt_poll_cycles_total{outcome="failed"} 0
acpibatt_poll_cycles_total{outcome="no-battery"} 0
acpibatt_poll_cycles_total{outcome="rejected"} 0
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected), "acpibatt_poll_cycles_total"))

	assert.Equal(t, len(battery.ErrorKinds), testutil.CollectAndCount(c, "acpibatt_poll_errors_total"))
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(NewCollector(powersource.NewStore(), poller.NewCycleRecorder(1)))
	families, err := reg.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["acpibatt_poll_cycles_total"])
	assert.True(t, names["go_goroutines"])
	assert.False(t, names["acpibatt_battery_installed"])
}
