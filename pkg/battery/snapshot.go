package battery

import (
	"github.com/charlie0129/acpibatt/pkg/acpi"
)

// Snapshot is the decoded state of the battery. Capacities are in mAh and
// rates in mA once decoded, whatever unit the firmware reports in.
type Snapshot struct {
	Present   bool           `json:"present"`
	PowerUnit acpi.PowerUnit `json:"powerUnit"`

	DesignCapacity  uint32 `json:"designCapacity"`
	MaxCapacity     uint32 `json:"maxCapacity"`
	CurrentCapacity uint32 `json:"currentCapacity"`
	DesignVoltage   uint32 `json:"designVoltage"`
	Voltage         uint32 `json:"voltage"`
	Technology      uint32 `json:"technology"`

	// CurrentRate and AverageRate are magnitudes; the sign is carried by
	// Metrics.Amperage and Metrics.InstantAmperage.
	CurrentRate uint32 `json:"currentRate"`
	AverageRate uint32 `json:"averageRate"`
	State       uint32 `json:"state"`

	CycleCount  uint32 `json:"cycleCount"`
	MaxErr      uint32 `json:"maxErr"`
	Temperature uint32 `json:"temperature"` // 0.1 K

	DeviceName     string `json:"deviceName"`
	BatteryType    string `json:"batteryType"`
	Manufacturer   string `json:"manufacturer"`
	SerialNumber   string `json:"serialNumber"`
	FirmwareSerial uint32 `json:"firmwareSerial"`
	HardwareSerial string `json:"hardwareSerial"`

	ManufactureDate       uint32 `json:"manufactureDate"`
	ManufactureDateString string `json:"manufactureDateString,omitempty"`

	// CellVoltages is an even split of Voltage over four assumed cells.
	// It is an estimate, not a measurement.
	CellVoltages           [4]uint32 `json:"cellVoltages"`
	ManufacturerData       []byte    `json:"manufacturerData,omitempty"`
	PermanentFailureStatus uint32    `json:"permanentFailureStatus"`

	Extra   *ExtraInfo `json:"extra,omitempty"`
	Metrics Metrics    `json:"metrics"`

	LatestError ErrorKind `json:"latestError,omitempty"`
}

// ExtraInfo holds the BBIX registers that have no place elsewhere in the
// snapshot.
type ExtraInfo struct {
	ManufacturerAccess    uint32 `json:"manufacturerAccess"`
	BatteryMode           uint32 `json:"batteryMode"`
	AtRateTimeToFull      uint32 `json:"atRateTimeToFull"`
	AtRateTimeToEmpty     uint32 `json:"atRateTimeToEmpty"`
	Voltage               uint32 `json:"voltage"`
	Current               int32  `json:"current"`
	AverageCurrent        int32  `json:"averageCurrent"`
	RelativeStateOfCharge uint32 `json:"relativeStateOfCharge"`
	AbsoluteStateOfCharge uint32 `json:"absoluteStateOfCharge"`
	RemainingCapacity     uint32 `json:"remainingCapacity"`
	RunTimeToEmpty        uint32 `json:"runTimeToEmpty"`
	AverageTimeToEmpty    uint32 `json:"averageTimeToEmpty"`
	AverageTimeToFull     uint32 `json:"averageTimeToFull"`
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	c := s
	if s.ManufacturerData != nil {
		c.ManufacturerData = append([]byte(nil), s.ManufacturerData...)
	}
	if s.Extra != nil {
		e := *s.Extra
		c.Extra = &e
	}
	return c
}

// ChargePercent returns current capacity as a percentage of maximum
// capacity, or -1 when maximum capacity is unknown.
func (s Snapshot) ChargePercent() int {
	if s.MaxCapacity == 0 {
		return -1
	}
	return int(uint64(s.CurrentCapacity) * 100 / uint64(s.MaxCapacity))
}
