package config

import (
	"time"
)

// Transport names accepted by the transport key.
const (
	TransportACPICall  = "acpi-call"
	TransportOS        = "os"
	TransportSBSModbus = "sbs-modbus"
)

type Config interface {
	// PollingPeriodOverride fixes the polling interval when non-nil. Zero
	// means poll back to back.
	PollingPeriodOverride() *time.Duration
	UseExtendedInformation() bool
	UseExtraInformation() bool

	Transport() string
	ACPIDevice() string
	ACPICallPath() string
	ACPIRetries() int
	BatteryIndex() int
	ModbusEndpoint() string
	ModbusUnitID() uint8
	ModbusTimeout() time.Duration

	MQTTURL() string
	MQTTTopic() string
	RedisAddr() string
	RedisKey() string

	AcpidSocket() string
	HandleSleepWake() bool
	FreshReadCron() string
	AllowNonRootAccess() bool

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}
