package sbsmodbus

// Smart Battery Data word commands. The bridge exposes each one as the
// holding register with the same address.
const (
	regManufacturerAccess  = 0x00
	regBatteryMode         = 0x03
	regAtRateTimeToFull    = 0x05
	regAtRateTimeToEmpty   = 0x06
	regTemperature         = 0x08
	regVoltage             = 0x09
	regCurrent             = 0x0A
	regAverageCurrent      = 0x0B
	regMaxError            = 0x0C
	regRelativeSOC         = 0x0D
	regAbsoluteSOC         = 0x0E
	regRemainingCapacity   = 0x0F
	regFullChargeCapacity  = 0x10
	regRunTimeToEmpty      = 0x11
	regAverageTimeToEmpty  = 0x12
	regAverageTimeToFull   = 0x13
	regBatteryStatus       = 0x16
	regCycleCount          = 0x17
	regDesignCapacity      = 0x18
	regDesignVoltage       = 0x19
	regManufactureDate     = 0x1B
	regSerialNumber        = 0x1C
	wordRegisterCount      = regSerialNumber + 1
	blockRegisterCount     = 16
	defaultBlockRegionBase = 0x100
)

// Smart Battery Data block commands, mirrored at
// StringBase + index*16. The first byte of a block is its length.
const (
	blockManufacturerName = iota
	blockDeviceName
	blockDeviceChemistry
	blockManufacturerData
)

// BatteryMode bits.
const (
	// modeCapacity selects 10 mW / 10 mWh units for capacity registers.
	modeCapacity = 1 << 15
)

// BatteryStatus bits.
const (
	statusTerminateDischargeAlarm = 1 << 11
	statusFullyCharged            = 1 << 5
	statusDischarging             = 1 << 6
)

// words is a decoded run of word registers starting at address 0.
type words []uint16

func (w words) get(reg int) uint16 {
	if reg >= len(w) {
		return 0
	}
	return w[reg]
}

func decodeWords(b []byte) words {
	w := make(words, len(b)/2)
	for i := range w {
		w[i] = uint16(b[2*i])<<8 | uint16(b[2*i+1])
	}
	return w
}

// blockBytes returns the payload of an SMBus block read, dropping the
// length prefix and clamping it to what was received.
func blockBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	n := int(b[0])
	if n > len(b)-1 {
		n = len(b) - 1
	}
	return b[1 : 1+n]
}
