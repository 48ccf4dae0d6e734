package acpi

// PowerUnit is the unit family reported by _BIF/_BIX.
type PowerUnit uint32

const (
	// PowerUnitEnergy means mW and mWh.
	PowerUnitEnergy PowerUnit = 0
	// PowerUnitCharge means mA and mAh.
	PowerUnitCharge PowerUnit = 1
)

func (u PowerUnit) String() string {
	if u == PowerUnitEnergy {
		return "energy"
	}
	return "charge"
}

const (
	// Unknown is the ACPI "value not known" marker.
	Unknown uint32 = 0xFFFFFFFF
	// Max is the largest value ACPI treats as valid.
	Max uint32 = 0x7FFFFFFF
)

// _STA bits.
const (
	StaPresent uint32 = 0x10
)

// _BST state bits.
const (
	StateDischarging uint32 = 1 << 0
	StateCharging    uint32 = 1 << 1
	StateCritical    uint32 = 1 << 2
)

// _BIF field indices.
const (
	BIFPowerUnit = iota
	BIFDesignCapacity
	BIFLastFullCapacity
	BIFTechnology
	BIFDesignVoltage
	BIFCapacityWarning
	BIFLowWarning
	BIFGranularity1
	BIFGranularity2
	BIFModelNumber
	BIFSerialNumber
	BIFBatteryType
	BIFOEM

	BIFFieldCount
)

// _BIX field indices.
const (
	BIXRevision = iota
	BIXPowerUnit
	BIXDesignCapacity
	BIXLastFullCapacity
	BIXTechnology
	BIXDesignVoltage
	BIXCapacityWarning
	BIXLowWarning
	BIXCycleCount
	BIXAccuracy
	BIXMaxSampleTime
	BIXMinSampleTime
	BIXMaxAvgInterval
	BIXMinAvgInterval
	BIXGranularity1
	BIXGranularity2
	BIXModelNumber
	BIXSerialNumber
	BIXBatteryType
	BIXOEM

	BIXFieldCount
)

// BBIX field indices. BBIX is a vendor method exposing Smart Battery
// Data registers that _BIX does not carry.
const (
	BBIXManufacturerAccess = iota
	BBIXBatteryMode
	BBIXAtRateTimeToFull
	BBIXAtRateTimeToEmpty
	BBIXTemperature
	BBIXVoltage
	BBIXCurrent
	BBIXAverageCurrent
	BBIXRelativeStateOfCharge
	BBIXAbsoluteStateOfCharge
	BBIXRemainingCapacity
	BBIXRunTimeToEmpty
	BBIXAverageTimeToEmpty
	BBIXAverageTimeToFull
	BBIXManufactureDate
	BBIXManufacturerData

	BBIXFieldCount
)

// _BST field indices.
const (
	BSTState = iota
	BSTRate
	BSTCapacity
	BSTVoltage

	BSTFieldCount
)

// Method names evaluated under the battery device.
const (
	MethodSTA  = "_STA"
	MethodBIF  = "_BIF"
	MethodBIX  = "_BIX"
	MethodBBIX = "BBIX"
	MethodBST  = "_BST"
)
