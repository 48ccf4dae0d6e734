// Package metrics exposes the published battery state and the poller
// counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/charlie0129/acpibatt/pkg/battery"
	"github.com/charlie0129/acpibatt/pkg/poller"
	"github.com/charlie0129/acpibatt/pkg/powersource"
)

const namespace = "acpibatt"

// gauge maps one published attribute to a gauge.
type gauge struct {
	key  powersource.Key
	desc *prometheus.Desc
}

func newGauge(key powersource.Key, name, help string) gauge {
	return gauge{
		key:  key,
		desc: prometheus.NewDesc(prometheus.BuildFQName(namespace, "battery", name), help, nil, nil),
	}
}

var gauges = []gauge{
	newGauge(powersource.KeyBatteryInstalled, "installed", "Whether a battery is installed."),
	newGauge(powersource.KeyExternalConnected, "external_connected", "Whether external power is connected."),
	newGauge(powersource.KeyIsCharging, "charging", "Whether the battery is charging."),
	newGauge(powersource.KeyFullyCharged, "fully_charged", "Whether the battery is fully charged."),
	newGauge(powersource.KeyCurrentCapacity, "current_capacity_mah", "Remaining capacity (mAh)."),
	newGauge(powersource.KeyMaxCapacity, "max_capacity_mah", "Full charge capacity (mAh)."),
	newGauge(powersource.KeyDesignCapacity, "design_capacity_mah", "Design capacity (mAh)."),
	newGauge(powersource.KeyVoltage, "voltage_mv", "Present voltage (mV)."),
	newGauge(powersource.KeyAmperage, "amperage_ma", "Average current, negative when discharging (mA)."),
	newGauge(powersource.KeyInstantAmperage, "instant_amperage_ma", "Present current, negative when discharging (mA)."),
	newGauge(powersource.KeyTimeRemaining, "time_remaining_minutes", "Estimated minutes to empty or full."),
	newGauge(powersource.KeyCycleCount, "cycle_count", "Charge cycle count."),
	newGauge(powersource.KeyTemperature, "temperature_decikelvin", "Pack temperature (0.1 K)."),
	newGauge(powersource.KeyRelativeStateOfCharge, "relative_state_of_charge_percent", "Relative state of charge (%)."),
}

var (
	cyclesDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "poll", "cycles_total"),
		"Poll cycles by outcome.",
		[]string{"outcome"}, nil,
	)
	errorsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "poll", "errors_total"),
		"Read and health errors by label.",
		[]string{"label"}, nil,
	)
)

// Collector reads the store and the recorder at scrape time.
type Collector struct {
	store    *powersource.Store
	recorder *poller.CycleRecorder
}

var _ prometheus.Collector = &Collector{}

func NewCollector(store *powersource.Store, recorder *poller.CycleRecorder) *Collector {
	return &Collector{store: store, recorder: recorder}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, g := range gauges {
		ch <- g.desc
	}
	ch <- cyclesDesc
	ch <- errorsDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	props := c.store.Properties()
	for _, g := range gauges {
		v, ok := props[g.key]
		if !ok {
			continue
		}
		var f float64
		switch v.Kind() {
		case powersource.KindBool:
			if v.Bool() {
				f = 1
			}
		case powersource.KindInt:
			f = float64(v.Int())
		default:
			continue
		}
		ch <- prometheus.MustNewConstMetric(g.desc, prometheus.GaugeValue, f)
	}

	outcomes := c.recorder.OutcomeCounts()
	for _, o := range poller.Outcomes {
		ch <- prometheus.MustNewConstMetric(cyclesDesc, prometheus.CounterValue, float64(outcomes[o]), string(o))
	}
	errs := c.recorder.ErrorCounts()
	for _, k := range battery.ErrorKinds {
		ch <- prometheus.MustNewConstMetric(errorsDesc, prometheus.CounterValue, float64(errs[k]), k.String())
	}
}

// NewRegistry returns a registry holding c and the Go runtime collectors.
func NewRegistry(c *Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)
	reg.MustRegister(collectors.NewGoCollector())
	return reg
}
