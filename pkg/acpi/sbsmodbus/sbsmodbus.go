// Package sbsmodbus reads Smart Battery Data registers through an
// SMBus-to-Modbus bridge and presents them as firmware packages.
package sbsmodbus

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/acpibatt/pkg/acpi"
)

// staPresent is what a functioning, installed battery reports for _STA.
const staPresent uint32 = 0x1F

// registerReader is the part of modbus.Client the transport uses.
type registerReader interface {
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
}

type Config struct {
	Endpoint string
	UnitID   uint8
	Timeout  time.Duration
	// StringBase is the first register of the block command region.
	StringBase uint16
}

// Transport is an acpi.Transport backed by a Modbus TCP bridge.
type Transport struct {
	mu         sync.Mutex
	handler    *modbus.TCPClientHandler
	client     registerReader
	stringBase uint16
}

var _ acpi.Transport = &Transport{}

// New connects to the bridge.
func New(cfg Config) (*Transport, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("sbs modbus: endpoint required")
	}

	h := modbus.NewTCPClientHandler(cfg.Endpoint)
	h.Timeout = cfg.Timeout
	h.SlaveId = cfg.UnitID

	if err := h.Connect(); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to connect to %s", cfg.Endpoint)
	}

	t := newTransport(modbus.NewClient(h), cfg.StringBase)
	t.handler = h
	return t, nil
}

func newTransport(client registerReader, stringBase uint16) *Transport {
	if stringBase == 0 {
		stringBase = defaultBlockRegionBase
	}
	return &Transport{client: client, stringBase: stringBase}
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.handler == nil {
		return nil
	}
	return t.handler.Close()
}

func (t *Transport) readWords(method string) (words, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, err := t.client.ReadHoldingRegisters(0, wordRegisterCount)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "%s: failed to read word registers", method)
	}
	if len(b) < 2*wordRegisterCount {
		return nil, pkgerrors.Wrapf(acpi.ErrUnexpectedKind, "%s: got %d bytes, want %d", method, len(b), 2*wordRegisterCount)
	}
	w := decodeWords(b)
	logrus.WithFields(logrus.Fields{
		"method": method,
		"result": fmt.Sprintf("%04x", []uint16(w)),
	}).Trace("read smart battery registers")
	return w, nil
}

func (t *Transport) readBlock(idx int) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	addr := t.stringBase + uint16(idx*blockRegisterCount)
	b, err := t.client.ReadHoldingRegisters(addr, blockRegisterCount)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to read block registers at %#x", addr)
	}
	return blockBytes(b), nil
}

func (t *Transport) readText(idx int) (acpi.Value, error) {
	b, err := t.readBlock(idx)
	if err != nil {
		return acpi.Value{}, err
	}
	return acpi.Bytes(b), nil
}

// capacityScale is the multiplier from register units to mAh or mWh.
func capacityScale(w words) (acpi.PowerUnit, uint64) {
	if w.get(regBatteryMode)&modeCapacity != 0 {
		return acpi.PowerUnitEnergy, 10
	}
	return acpi.PowerUnitCharge, 1
}

func (t *Transport) ReadPresence() (uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.client.ReadHoldingRegisters(regBatteryMode, 1); err != nil {
		return 0, pkgerrors.Wrapf(err, "%s: failed to read battery mode", acpi.MethodSTA)
	}
	return staPresent, nil
}

func (t *Transport) ReadStaticInfo(extended bool) (acpi.Package, error) {
	method := acpi.MethodBIF
	if extended {
		method = acpi.MethodBIX
	}
	w, err := t.readWords(method)
	if err != nil {
		return nil, err
	}

	var texts [3]acpi.Value
	for i, idx := range []int{blockDeviceName, blockDeviceChemistry, blockManufacturerName} {
		if texts[i], err = t.readText(idx); err != nil {
			return nil, err
		}
	}
	model, chemistry, oem := texts[0], texts[1], texts[2]
	serial := acpi.Text(fmt.Sprintf("%04X", w.get(regSerialNumber)))

	unit, scale := capacityScale(w)
	design := uint64(w.get(regDesignCapacity)) * scale
	full := uint64(w.get(regFullChargeCapacity)) * scale
	voltage := uint64(w.get(regDesignVoltage))

	if !extended {
		return acpi.Package{
			acpi.Integer(uint64(unit)),
			acpi.Integer(design),
			acpi.Integer(full),
			acpi.Integer(1),
			acpi.Integer(voltage),
			acpi.Integer(full / 10),
			acpi.Integer(full / 25),
			acpi.Integer(scale),
			acpi.Integer(scale),
			model,
			serial,
			chemistry,
			oem,
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
		acpi.Integer(uint64(w.get(regCycleCount))),
		// MaxError is a percentage, _BIX accuracy is in thousandths.
		acpi.Integer(uint64(w.get(regMaxError)) * 1000),
		unknown,
		unknown,
		unknown,
		unknown,
		acpi.Integer(scale),
		acpi.Integer(scale),
		model,
		serial,
		chemistry,
		oem,
	}, nil
}

func (t *Transport) ReadExtraInfo() (acpi.Package, error) {
	w, err := t.readWords(acpi.MethodBBIX)
	if err != nil {
		return nil, err
	}
	data, err := t.readBlock(blockManufacturerData)
	if err != nil {
		return nil, err
	}

	reg := func(r int) acpi.Value { return acpi.Integer(uint64(w.get(r))) }
	return acpi.Package{
		reg(regManufacturerAccess),
		reg(regBatteryMode),
		reg(regAtRateTimeToFull),
		reg(regAtRateTimeToEmpty),
		reg(regTemperature),
		reg(regVoltage),
		reg(regCurrent),
		reg(regAverageCurrent),
		reg(regRelativeSOC),
		reg(regAbsoluteSOC),
		reg(regRemainingCapacity),
		reg(regRunTimeToEmpty),
		reg(regAverageTimeToEmpty),
		reg(regAverageTimeToFull),
		reg(regManufactureDate),
		acpi.Bytes(data),
	}, nil
}

func (t *Transport) ReadDynamicStatus() (acpi.Package, error) {
	w, err := t.readWords(acpi.MethodBST)
	if err != nil {
		return nil, err
	}

	status := w.get(regBatteryStatus)
	current := int32(int16(w.get(regCurrent)))
	voltage := uint64(w.get(regVoltage))

	var state uint32
	switch {
	case status&statusDischarging != 0:
		state = acpi.StateDischarging
	case current > 0 && status&statusFullyCharged == 0:
		state = acpi.StateCharging
	}
	if status&statusTerminateDischargeAlarm != 0 {
		state |= acpi.StateCritical
	}

	if current < 0 {
		current = -current
	}
	rate := uint64(current)
	unit, scale := capacityScale(w)
	if unit == acpi.PowerUnitEnergy {
		rate = rate * voltage / 1000
	}

	return acpi.Package{
		acpi.Integer(uint64(state)),
		acpi.Integer(rate),
		acpi.Integer(uint64(w.get(regRemainingCapacity)) * scale),
		acpi.Integer(voltage),
	}, nil
}
