// Package osbattery synthesises firmware packages from the battery
// information the operating system already exposes.
package osbattery

import (
	"fmt"
	"math"

	"github.com/distatus/battery"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/acpibatt/pkg/acpi"
)

// staPresent is what a functioning, installed battery reports for _STA.
const staPresent uint32 = 0x1F

type getter func(idx int) (*battery.Battery, error)

// Transport is an acpi.Transport reading one OS battery. The OS reports
// energy units; they are converted to charge units at the design voltage,
// and left as energy units when the design voltage is unknown.
type Transport struct {
	idx int
	get getter
}

var _ acpi.Transport = &Transport{}

// New returns a Transport for the battery at idx.
func New(idx int) *Transport {
	return &Transport{idx: idx, get: battery.Get}
}

func (t *Transport) read(method string) (*battery.Battery, error) {
	bat, err := t.get(t.idx)
	if bat == nil {
		if err == nil {
			err = fmt.Errorf("battery %d not found", t.idx)
		}
		return nil, pkgerrors.Wrapf(err, "failed to get battery %d", t.idx)
	}
	if err != nil {
		// Partial reads still carry the fields that could be read.
		logrus.WithFields(logrus.Fields{
			"index": t.idx,
			"error": err,
		}).Debug("partial OS battery read")
	}
	logrus.WithFields(logrus.Fields{
		"method":     method,
		"state":      bat.State,
		"current":    bat.Current,
		"full":       bat.Full,
		"chargeRate": bat.ChargeRate,
		"voltage":    bat.Voltage,
	}).Trace("read OS battery")
	return bat, nil
}

// ReadPresence reports the battery as absent when the OS cannot find it.
func (t *Transport) ReadPresence() (uint32, error) {
	if _, err := t.read(acpi.MethodSTA); err != nil {
		logrus.WithError(err).Debug("OS battery not available")
		return 0, nil
	}
	return staPresent, nil
}

func (t *Transport) ReadStaticInfo(extended bool) (acpi.Package, error) {
	method := acpi.MethodBIF
	if extended {
		method = acpi.MethodBIX
	}
	bat, err := t.read(method)
	if err != nil {
		return nil, err
	}

	unit, volts := powerUnit(bat)
	design := milli(bat.Design/volts, 1)
	full := milli(bat.Full/volts, 1)
	voltage := milli(bat.DesignVoltage, 1000)
	serial := fmt.Sprintf("%d", t.idx)

	if !extended {
		return acpi.Package{
			acpi.Integer(uint64(unit)),
			acpi.Integer(design),
			acpi.Integer(full),
			acpi.Integer(1),
			acpi.Integer(voltage),
			acpi.Integer(full / 10),
			acpi.Integer(full / 25),
			acpi.Integer(1),
			acpi.Integer(1),
			acpi.Text("OS Battery"),
			acpi.Text(serial),
			acpi.Text(acpi.UnknownText),
			acpi.Text(acpi.UnknownText),
		}, nil
	}

	unknown := acpi.Integer(uint64(acpi.Unknown))
	return acpi.Package{
		acpi.Integer(0),
		acpi.Integer(uint64(unit)),
		acpi.Integer(design),
		acpi.Integer(full),
		acpi.Integer(1),
		acpi.Integer(voltage),
		acpi.Integer(full / 10),
		acpi.Integer(full / 25),
		unknown,
		unknown,
		unknown,
		unknown,
		unknown,
		unknown,
		acpi.Integer(1),
		acpi.Integer(1),
		acpi.Text("OS Battery"),
		acpi.Text(serial),
		acpi.Text(acpi.UnknownText),
		acpi.Text(acpi.UnknownText),
	}, nil
}

// ReadExtraInfo is not available from the OS.
func (t *Transport) ReadExtraInfo() (acpi.Package, error) {
	return nil, pkgerrors.Wrapf(acpi.ErrNotSupported, "%s", acpi.MethodBBIX)
}

func (t *Transport) ReadDynamicStatus() (acpi.Package, error) {
	bat, err := t.read(acpi.MethodBST)
	if err != nil {
		return nil, err
	}

	var state uint32
	switch bat.State {
	case battery.Charging:
		state = acpi.StateCharging
	case battery.Discharging:
		state = acpi.StateDischarging
	case battery.Empty:
		state = acpi.StateDischarging | acpi.StateCritical
	}

	unit, volts := powerUnit(bat)
	rateVolts := volts
	if unit == acpi.PowerUnitCharge && bat.Voltage > 0 {
		rateVolts = bat.Voltage
	}

	voltage := milli(bat.Voltage, 1000)
	if voltage == 0 {
		voltage = uint64(acpi.Unknown)
	}

	return acpi.Package{
		acpi.Integer(uint64(state)),
		acpi.Integer(milli(math.Abs(bat.ChargeRate)/rateVolts, 1)),
		acpi.Integer(milli(bat.Current/volts, 1)),
		acpi.Integer(voltage),
	}, nil
}

// powerUnit picks the unit the packages of bat are reported in, and the
// divisor in volts turning OS energy values into that unit.
func powerUnit(bat *battery.Battery) (acpi.PowerUnit, float64) {
	if bat.DesignVoltage > 0 {
		return acpi.PowerUnitCharge, bat.DesignVoltage
	}
	return acpi.PowerUnitEnergy, 1
}

// milli scales v and clamps it into the range ACPI treats as valid.
func milli(v, scale float64) uint64 {
	v = math.Round(v * scale)
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	if v > float64(acpi.Max) {
		return uint64(acpi.Max)
	}
	return uint64(v)
}
