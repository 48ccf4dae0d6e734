package battery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/acpibatt/pkg/acpi"
)

func bst(state, rate, capacity, voltage uint32) acpi.Package {
	return acpi.Package{
		acpi.Integer(uint64(state)),
		acpi.Integer(uint64(rate)),
		acpi.Integer(uint64(capacity)),
		acpi.Integer(uint64(voltage)),
	}
}

func TestDecodeStaticExtended(t *testing.T) {
	d := NewDecoder()
	require.NoError(t, d.DecodeStatic(acpi.NewMock().BIX, true))

	s := d.Snapshot()
	assert.Equal(t, acpi.PowerUnitCharge, s.PowerUnit)
	assert.Equal(t, uint32(4400), s.DesignCapacity)
	assert.Equal(t, uint32(4200), s.MaxCapacity)
	assert.Equal(t, uint32(11100), s.DesignVoltage)
	assert.Equal(t, uint32(37), s.CycleCount)
	assert.Equal(t, uint32(50), s.MaxErr)
	assert.Equal(t, "DELL 1234", s.DeviceName)
	assert.Equal(t, "01A3", s.SerialNumber)
	assert.Equal(t, "LION", s.BatteryType)
	assert.Equal(t, "SMP", s.Manufacturer)
	assert.Equal(t, uint32(0x1A3), s.FirmwareSerial)
	assert.Equal(t, "DELL 1234-01A3", s.HardwareSerial)
}

func TestDecodeStaticLegacyHasNoCycleCount(t *testing.T) {
	d := NewDecoder()
	require.NoError(t, d.DecodeStatic(acpi.NewMock().BIX, true))
	require.NoError(t, d.DecodeStatic(acpi.NewMock().BIF, false))

	s := d.Snapshot()
	assert.Zero(t, s.CycleCount)
	assert.Zero(t, s.MaxErr)
	assert.Equal(t, uint32(4200), s.MaxCapacity)
}

func TestDecodeStaticEnergyUnits(t *testing.T) {
	p := acpi.Package{
		acpi.Integer(uint64(acpi.PowerUnitEnergy)),
		acpi.Integer(57000), // mWh
		acpi.Integer(50000),
		acpi.Integer(1),
		acpi.Integer(11400), // mV
	}
	d := NewDecoder()
	require.NoError(t, d.DecodeStatic(p, false))

	s := d.Snapshot()
	// Energy capacities are divided by the design voltage.
	assert.Equal(t, uint32(5), s.DesignCapacity)
	assert.Equal(t, uint32(4), s.MaxCapacity)
	// Labels the firmware did not provide.
	assert.Equal(t, acpi.UnknownText, s.DeviceName)
	assert.Equal(t, "Unknown-Unknown", s.HardwareSerial)
}

func TestDecodeStaticZeroCapacity(t *testing.T) {
	p := acpi.Package{
		acpi.Integer(uint64(acpi.PowerUnitCharge)),
		acpi.Integer(4400),
		acpi.Integer(uint64(acpi.Unknown)),
	}
	d := NewDecoder()
	err := d.DecodeStatic(p, false)
	assert.ErrorIs(t, err, ErrZeroCapacity)
	assert.Equal(t, uint32(4400), d.Snapshot().DesignCapacity)
	assert.Zero(t, d.Snapshot().MaxCapacity)
}

func TestDecodeExtra(t *testing.T) {
	d := NewDecoder()
	require.NoError(t, d.DecodeStatic(acpi.NewMock().BIX, true))
	d.DecodeExtra(acpi.NewMock().BBIX)

	s := d.Snapshot()
	require.NotNil(t, s.Extra)
	assert.Equal(t, uint32(2982), s.Temperature)
	assert.Equal(t, "2003-01-01", s.ManufactureDateString)
	assert.Equal(t, int32(-1000), s.Extra.Current)
	assert.Equal(t, int32(-1000), s.Extra.AverageCurrent)
	assert.Equal(t, uint32(50), s.Extra.RelativeStateOfCharge)
	assert.Equal(t, []byte{1, 2, 3}, s.ManufacturerData)

	// A following static read resets what only the extra block provides.
	require.NoError(t, d.DecodeStatic(acpi.NewMock().BIX, true))
	assert.Zero(t, d.Snapshot().ManufactureDate)
	assert.Nil(t, d.Snapshot().ManufacturerData)
}

func TestDecodeDynamicDischarging(t *testing.T) {
	d := NewDecoder()
	require.NoError(t, d.DecodeStatic(acpi.NewMock().BIX, true))
	require.NoError(t, d.DecodeDynamic(bst(acpi.StateDischarging, 600, 1200, 11001)))

	s := d.Snapshot()
	assert.Equal(t, uint32(600), s.CurrentRate)
	assert.Equal(t, uint32(600), s.AverageRate)
	assert.Equal(t, uint32(1200), s.CurrentCapacity)
	assert.Equal(t, uint32(120), s.Metrics.TimeRemaining)
	assert.Equal(t, [4]uint32{2750, 2750, 2750, 2751}, s.CellVoltages)
}

func TestDecodeDynamicSmoothing(t *testing.T) {
	d := NewDecoder()
	require.NoError(t, d.DecodeStatic(acpi.NewMock().BIX, true))

	require.NoError(t, d.DecodeDynamic(bst(acpi.StateDischarging, 1000, 2000, 11000)))
	assert.Equal(t, uint32(1000), d.Snapshot().AverageRate)

	require.NoError(t, d.DecodeDynamic(bst(acpi.StateDischarging, 600, 2000, 11000)))
	assert.Equal(t, uint32(800), d.Snapshot().AverageRate)

	// A state change throws the history away.
	require.NoError(t, d.DecodeDynamic(bst(acpi.StateCharging, 400, 2000, 12000)))
	assert.Equal(t, uint32(400), d.Snapshot().AverageRate)

	require.NoError(t, d.DecodeDynamic(bst(acpi.StateCharging, 800, 2100, 12000)))
	assert.Equal(t, uint32(600), d.Snapshot().AverageRate)
}

func TestDecodeDynamicLegacyNegativeRate(t *testing.T) {
	d := NewDecoder()
	require.NoError(t, d.DecodeStatic(acpi.NewMock().BIX, true))
	require.NoError(t, d.DecodeDynamic(bst(acpi.StateDischarging, 0xFC18, 2000, 11000)))
	assert.Equal(t, uint32(0xFFFF-0xFC18), d.Snapshot().CurrentRate)
}

func TestDecodeDynamicZeroRateFallsBackToHalfCapacity(t *testing.T) {
	d := NewDecoder()
	require.NoError(t, d.DecodeStatic(acpi.NewMock().BIX, true))
	require.NoError(t, d.DecodeDynamic(bst(acpi.StateDischarging, 0, 2000, 11000)))
	assert.Equal(t, uint32(4200/2), d.Snapshot().CurrentRate)
}

func TestDecodeDynamicEnergyUnits(t *testing.T) {
	static := acpi.Package{
		acpi.Integer(uint64(acpi.PowerUnitEnergy)),
		acpi.Integer(57000),
		acpi.Integer(50000),
		acpi.Integer(1),
		acpi.Integer(11400),
	}
	d := NewDecoder()
	require.NoError(t, d.DecodeStatic(static, false))
	require.NoError(t, d.DecodeDynamic(bst(acpi.StateDischarging, 15000, 24000, 12000)))

	s := d.Snapshot()
	assert.Equal(t, uint32(15000*1000/12000), s.CurrentRate)
	// Present capacity is divided by the present voltage.
	assert.Equal(t, uint32(2), s.CurrentCapacity)

	// A rate below the present voltage is taken as already in mA.
	require.NoError(t, d.DecodeDynamic(bst(acpi.StateDischarging, 900, 24000, 12000)))
	assert.Equal(t, uint32(900), d.Snapshot().CurrentRate)

	// Without a present voltage the design voltage is used.
	require.NoError(t, d.DecodeDynamic(bst(acpi.StateDischarging, 900, 22800, acpi.Unknown)))
	assert.Equal(t, uint32(2), d.Snapshot().CurrentCapacity)
	assert.Equal(t, uint32(11400), d.Snapshot().Voltage)
}

func TestDecodeDynamicAnomalous(t *testing.T) {
	d := NewDecoder()
	require.NoError(t, d.DecodeStatic(acpi.NewMock().BIX, true))
	err := d.DecodeDynamic(bst(acpi.StateCharging|acpi.StateDischarging, 500, 2000, 11000))
	assert.ErrorIs(t, err, ErrPermanentFailure)

	m := d.Snapshot().Metrics
	assert.Equal(t, StateAnomalous, m.State)
	assert.False(t, m.IsCharging)
	assert.False(t, m.FullyCharged)
	assert.True(t, m.ExternalConnected)
	assert.False(t, m.ExternalChargeCapable)
	assert.Zero(t, m.Amperage)
	assert.Zero(t, m.TimeRemaining)
}

func TestDecoderReset(t *testing.T) {
	d := NewDecoder()
	d.DecodePresence(acpi.StaPresent)
	require.NoError(t, d.DecodeStatic(acpi.NewMock().BIX, true))
	require.NoError(t, d.DecodeDynamic(bst(acpi.StateDischarging, 1000, 2000, 11000)))
	d.SetLatestError(OverallTimeoutExpired)
	d.Reset()

	assert.Equal(t, Snapshot{LatestError: OverallTimeoutExpired}, d.Snapshot())

	require.NoError(t, d.DecodeStatic(acpi.NewMock().BIX, true))
	require.NoError(t, d.DecodeDynamic(bst(acpi.StateDischarging, 600, 2000, 11000)))
	assert.Equal(t, uint32(600), d.Snapshot().AverageRate)
}

func TestDecodePresence(t *testing.T) {
	d := NewDecoder()
	assert.True(t, d.DecodePresence(0x1F))
	assert.False(t, d.DecodePresence(0x0F))
	assert.False(t, d.Snapshot().Present)
}
