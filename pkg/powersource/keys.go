package powersource

// Key names a published attribute.
type Key string

const (
	KeyExternalConnected     Key = "ExternalConnected"
	KeyExternalChargeCapable Key = "ExternalChargeCapable"
	KeyBatteryInstalled      Key = "BatteryInstalled"
	KeyIsCharging            Key = "IsCharging"
	KeyFullyCharged          Key = "FullyCharged"
	KeyAdapterInfo           Key = "AdapterInfo"
	KeyLocation              Key = "Location"

	KeyCurrentCapacity Key = "CurrentCapacity"
	KeyMaxCapacity     Key = "MaxCapacity"
	KeyDesignCapacity  Key = "DesignCapacity"
	KeyTimeRemaining   Key = "TimeRemaining"
	KeyAmperage        Key = "Amperage"
	KeyInstantAmperage Key = "InstantAmperage"
	KeyVoltage         Key = "Voltage"
	KeyCycleCount      Key = "CycleCount"
	KeyMaxErr          Key = "MaxErr"

	KeyErrorCondition       Key = "ErrorCondition"
	KeyManufacturer         Key = "Manufacturer"
	KeyDeviceName           Key = "DeviceName"
	KeyBatteryType          Key = "BatteryType"
	KeyBatterySerialNumber  Key = "BatterySerialNumber"
	KeyFirmwareSerialNumber Key = "FirmwareSerialNumber"

	KeyAvgTimeToEmpty     Key = "AvgTimeToEmpty"
	KeyAvgTimeToFull      Key = "AvgTimeToFull"
	KeyInstantTimeToEmpty Key = "InstantTimeToEmpty"
	KeyInstantTimeToFull  Key = "InstantTimeToFull"

	KeyQuickPoll              Key = "QuickPoll"
	KeyCellVoltage            Key = "CellVoltage"
	KeyTemperature            Key = "Temperature"
	KeyManufactureDate        Key = "ManufactureDate"
	KeyDateOfManufacture      Key = "Date of Manufacture"
	KeyManufacturerData       Key = "ManufacturerData"
	KeyPermanentFailureStatus Key = "PermanentFailureStatus"

	KeyRunTimeToEmpty        Key = "RunTimeToEmpty"
	KeyRelativeStateOfCharge Key = "RelativeStateOfCharge"
	KeyAbsoluteStateOfCharge Key = "AbsoluteStateOfCharge"
	KeyRemainingCapacity     Key = "RemainingCapacity"
	KeyAverageCurrent        Key = "AverageCurrent"
	KeyCurrent               Key = "Current"

	KeyLatestErrorType   Key = "LatestErrorType"
	KeyLegacyBatteryInfo Key = "LegacyBatteryInfo"

	KeyInvalidWakeSeconds       Key = "BatteryInvalidWakeSeconds"
	KeyPostChargeWaitSeconds    Key = "PostChargeWaitSeconds"
	KeyPostDischargeWaitSeconds Key = "PostDischargeWaitSeconds"
)

// baselineKeys stay published with zero values when the battery state is
// cleared.
var baselineKeys = []Key{
	KeyBatteryInstalled,
	KeyIsCharging,
	KeyFullyCharged,
	KeyExternalConnected,
	KeyExternalChargeCapable,
	KeyAdapterInfo,
	KeyLocation,
}

// derivedKeys are produced by decoding and removed on clear.
var derivedKeys = []Key{
	KeyCurrentCapacity,
	KeyMaxCapacity,
	KeyDesignCapacity,
	KeyTimeRemaining,
	KeyAmperage,
	KeyInstantAmperage,
	KeyVoltage,
	KeyCycleCount,
	KeyMaxErr,
	KeyErrorCondition,
	KeyManufacturer,
	KeyDeviceName,
	KeyBatteryType,
	KeyBatterySerialNumber,
	KeyFirmwareSerialNumber,
	KeyAvgTimeToEmpty,
	KeyAvgTimeToFull,
	KeyInstantTimeToEmpty,
	KeyInstantTimeToFull,
	KeyQuickPoll,
	KeyCellVoltage,
	KeyTemperature,
	KeyManufactureDate,
	KeyDateOfManufacture,
	KeyManufacturerData,
	KeyPermanentFailureStatus,
	KeyRunTimeToEmpty,
	KeyRelativeStateOfCharge,
	KeyAbsoluteStateOfCharge,
	KeyRemainingCapacity,
	KeyAverageCurrent,
	KeyCurrent,
}

// DerivedKeys returns the keys that are unpublished when the battery state
// is cleared.
func DerivedKeys() []Key {
	return append([]Key(nil), derivedKeys...)
}

// Legacy battery info flags.
const (
	LegacyFlagExternalPower    uint32 = 1 << 0
	LegacyFlagCharging         uint32 = 1 << 1
	LegacyFlagBatteryInstalled uint32 = 1 << 2
)

// Legacy battery info entries.
const (
	LegacyFlags      = "Flags"
	LegacyCurrent    = "Current"
	LegacyCapacity   = "Capacity"
	LegacyVoltage    = "Voltage"
	LegacyAmperage   = "Amperage"
	LegacyCycleCount = "Cycle Count"
)

// Fixed power source attributes, in seconds.
const (
	InvalidWakeSeconds       = 30
	PostChargeWaitSeconds    = 120
	PostDischargeWaitSeconds = 120
)
