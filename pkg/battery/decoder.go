package battery

import (
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/acpibatt/pkg/acpi"
)

// Decoder turns firmware packages into a Snapshot. It also carries the
// rate history used for smoothing. A Decoder is owned by one goroutine.
type Decoder struct {
	snap Snapshot

	haveAverage bool
	lastState   uint32
}

// NewDecoder returns a Decoder with an empty snapshot.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Snapshot returns a copy of the decoded state.
func (d *Decoder) Snapshot() Snapshot {
	return d.snap.Clone()
}

// Reset zeroes the snapshot and forgets the rate history. The latest error
// is kept, as it stays published across a clear.
func (d *Decoder) Reset() {
	d.snap = Snapshot{LatestError: d.snap.LatestError}
	d.haveAverage = false
	d.lastState = 0
}

// SetLatestError records the most recent error kind on the snapshot.
func (d *Decoder) SetLatestError(kind ErrorKind) {
	d.snap.LatestError = kind
}

// DecodePresence applies _STA bits and reports whether a battery is
// installed.
func (d *Decoder) DecodePresence(sta uint32) bool {
	d.snap.Present = sta&acpi.StaPresent != 0
	return d.snap.Present
}

// DecodeStatic applies a _BIX (extended) or _BIF package. It returns
// ErrZeroCapacity, after committing the decoded values, when the design
// or maximum capacity is zero.
func (d *Decoder) DecodeStatic(p acpi.Package, extended bool) error {
	s := &d.snap

	var model, serial, typ, oem int
	if extended {
		s.PowerUnit = acpi.PowerUnit(p.Uint32(acpi.BIXPowerUnit))
		s.DesignCapacity = known(p.Uint32(acpi.BIXDesignCapacity))
		s.MaxCapacity = known(p.Uint32(acpi.BIXLastFullCapacity))
		s.Technology = p.Uint32(acpi.BIXTechnology)
		s.DesignVoltage = known(p.Uint32(acpi.BIXDesignVoltage))
		s.CycleCount = known(p.Uint32(acpi.BIXCycleCount))
		s.MaxErr = known(p.Uint32(acpi.BIXAccuracy))
		model, serial, typ, oem = acpi.BIXModelNumber, acpi.BIXSerialNumber, acpi.BIXBatteryType, acpi.BIXOEM
	} else {
		s.PowerUnit = acpi.PowerUnit(p.Uint32(acpi.BIFPowerUnit))
		s.DesignCapacity = known(p.Uint32(acpi.BIFDesignCapacity))
		s.MaxCapacity = known(p.Uint32(acpi.BIFLastFullCapacity))
		s.Technology = p.Uint32(acpi.BIFTechnology)
		s.DesignVoltage = known(p.Uint32(acpi.BIFDesignVoltage))
		s.CycleCount = 0
		s.MaxErr = 0
		model, serial, typ, oem = acpi.BIFModelNumber, acpi.BIFSerialNumber, acpi.BIFBatteryType, acpi.BIFOEM
	}

	if s.PowerUnit == acpi.PowerUnitEnergy {
		if s.DesignVoltage == 0 {
			logrus.Warn("battery reports energy units without a design voltage, capacities left unconverted")
		} else {
			s.DesignCapacity /= s.DesignVoltage
			s.MaxCapacity /= s.DesignVoltage
		}
	}

	s.DeviceName, _ = p.Text(model)
	s.SerialNumber, _ = p.Text(serial)
	s.BatteryType, _ = p.Text(typ)
	s.Manufacturer, _ = p.Text(oem)
	s.FirmwareSerial = ParseFirmwareSerial(s.SerialNumber)
	s.HardwareSerial = HardwareSerial(s.DeviceName, s.SerialNumber)

	// Only the extra block carries these.
	s.ManufactureDate = 0
	s.ManufactureDateString = ""
	s.ManufacturerData = nil
	s.PermanentFailureStatus = 0

	logrus.WithFields(logrus.Fields{
		"extended":       extended,
		"powerUnit":      s.PowerUnit,
		"designCapacity": s.DesignCapacity,
		"maxCapacity":    s.MaxCapacity,
		"designVoltage":  s.DesignVoltage,
		"cycleCount":     s.CycleCount,
		"deviceName":     s.DeviceName,
		"serial":         s.SerialNumber,
	}).Debug("decoded static battery info")

	if s.DesignCapacity == 0 || s.MaxCapacity == 0 {
		return ErrZeroCapacity
	}
	return nil
}

// DecodeExtra applies a BBIX package.
func (d *Decoder) DecodeExtra(p acpi.Package) {
	s := &d.snap

	s.Temperature = p.Uint32(acpi.BBIXTemperature)
	s.ManufactureDate = p.Uint32(acpi.BBIXManufactureDate)
	s.ManufactureDateString = UnpackDate(s.ManufactureDate)
	s.ManufacturerData = p.Data(acpi.BBIXManufacturerData)
	s.Extra = &ExtraInfo{
		ManufacturerAccess:    p.Uint32(acpi.BBIXManufacturerAccess),
		BatteryMode:           p.Uint32(acpi.BBIXBatteryMode),
		AtRateTimeToFull:      p.Uint32(acpi.BBIXAtRateTimeToFull),
		AtRateTimeToEmpty:     p.Uint32(acpi.BBIXAtRateTimeToEmpty),
		Voltage:               p.Uint32(acpi.BBIXVoltage),
		Current:               signed16(p.Uint32(acpi.BBIXCurrent)),
		AverageCurrent:        signed16(p.Uint32(acpi.BBIXAverageCurrent)),
		RelativeStateOfCharge: p.Uint32(acpi.BBIXRelativeStateOfCharge),
		AbsoluteStateOfCharge: p.Uint32(acpi.BBIXAbsoluteStateOfCharge),
		RemainingCapacity:     p.Uint32(acpi.BBIXRemainingCapacity),
		RunTimeToEmpty:        p.Uint32(acpi.BBIXRunTimeToEmpty),
		AverageTimeToEmpty:    p.Uint32(acpi.BBIXAverageTimeToEmpty),
		AverageTimeToFull:     p.Uint32(acpi.BBIXAverageTimeToFull),
	}

	logrus.WithFields(logrus.Fields{
		"temperature":     s.Temperature,
		"manufactureDate": s.ManufactureDateString,
		"current":         s.Extra.Current,
		"rsoc":            s.Extra.RelativeStateOfCharge,
	}).Debug("decoded extra battery info")
}

// DecodeDynamic applies a _BST package and derives the metrics. It returns
// ErrPermanentFailure, after committing the safe anomalous state, when the
// charging and discharging bits are both set.
func (d *Decoder) DecodeDynamic(p acpi.Package) error {
	s := &d.snap

	state := p.Uint32(acpi.BSTState)
	rate := p.Uint32(acpi.BSTRate)
	capacity := known(p.Uint32(acpi.BSTCapacity))
	voltage := p.Uint32(acpi.BSTVoltage)
	if voltage == acpi.Unknown {
		voltage = s.DesignVoltage
	}

	if rate == acpi.Unknown {
		logrus.Debug("battery present rate unknown")
		rate = 0
	}
	// Some firmware reports discharge as a negative 16 bit value.
	if rate&0x8000 != 0 {
		rate = 0xFFFF - rate
	}

	if s.PowerUnit == acpi.PowerUnitEnergy {
		v := voltage
		if v == 0 {
			v = s.DesignVoltage
		}
		if v != 0 && rate > v {
			rate = uint32(uint64(rate) * 1000 / uint64(v))
		}
		if v != 0 {
			capacity /= v
		}
	}

	// Rough estimate so time calculations stay finite.
	if rate == 0 {
		rate = s.MaxCapacity / 2
	}

	if !d.haveAverage || state != d.lastState {
		s.AverageRate = rate
		d.haveAverage = true
	} else {
		s.AverageRate = uint32((uint64(s.AverageRate) + uint64(rate)) / 2)
	}
	d.lastState = state

	s.State = state
	s.CurrentRate = rate
	s.Voltage = voltage
	s.Metrics = Derive(state, s.MaxCapacity, capacity, rate, s.AverageRate)
	s.CurrentCapacity = s.Metrics.CurrentCapacity
	s.CellVoltages = CellVoltages(voltage)
	s.HardwareSerial = HardwareSerial(s.DeviceName, s.SerialNumber)

	logrus.WithFields(logrus.Fields{
		"state":           s.Metrics.State,
		"currentRate":     s.CurrentRate,
		"averageRate":     s.AverageRate,
		"currentCapacity": s.CurrentCapacity,
		"voltage":         s.Voltage,
		"timeRemaining":   s.Metrics.TimeRemaining,
	}).Debug("decoded battery status")

	if s.Metrics.State == StateAnomalous {
		return ErrPermanentFailure
	}
	return nil
}

func known(v uint32) uint32 {
	if v == acpi.Unknown {
		return 0
	}
	return v
}

func signed16(v uint32) int32 {
	return int32(int16(uint16(v)))
}
