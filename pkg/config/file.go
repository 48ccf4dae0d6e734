package config

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/charlie0129/acpibatt/pkg/utils/ptr"
)

var (
	defaultFileConfig = &RawFileConfig{
		UseExtendedInformation: ptr.To(true),
		UseExtraInformation:    ptr.To(false),
		Transport:              ptr.To(TransportACPICall),
		ACPIDevice:             ptr.To(`\_SB.BAT0`),
		ACPICallPath:           ptr.To("/proc/acpi/call"),
		ACPIRetries:            ptr.To(5),
		BatteryIndex:           ptr.To(0),
		ModbusEndpoint:         ptr.To(""),
		ModbusUnitID:           ptr.To(uint8(1)),
		ModbusTimeoutSeconds:   ptr.To(2.0),
		MQTTURL:                ptr.To(""),
		MQTTTopic:              ptr.To("acpibatt"),
		RedisAddr:              ptr.To(""),
		RedisKey:               ptr.To("battery:0"),
		AcpidSocket:            ptr.To("/var/run/acpid.socket"),
		HandleSleepWake:        ptr.To(true),
		FreshReadCron:          ptr.To(""),
		AllowNonRootAccess:     ptr.To(false),
	}
)

var _ Config = &File{}

type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	f := &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}

	return f
}

// RawFileConfig is the on-disk form. Nil fields take their defaults.
type RawFileConfig struct {
	// PollingPeriodOverride is in seconds.
	PollingPeriodOverride  *float64 `json:"pollingPeriodOverride,omitempty" yaml:"pollingPeriodOverride,omitempty"`
	UseExtendedInformation *bool    `json:"useExtendedInformation,omitempty" yaml:"useExtendedInformation,omitempty"`
	UseExtraInformation    *bool    `json:"useExtraInformation,omitempty" yaml:"useExtraInformation,omitempty"`
	Transport              *string  `json:"transport,omitempty" yaml:"transport,omitempty"`
	ACPIDevice             *string  `json:"acpiDevice,omitempty" yaml:"acpiDevice,omitempty"`
	ACPICallPath           *string  `json:"acpiCallPath,omitempty" yaml:"acpiCallPath,omitempty"`
	ACPIRetries            *int     `json:"acpiRetries,omitempty" yaml:"acpiRetries,omitempty"`
	BatteryIndex           *int     `json:"batteryIndex,omitempty" yaml:"batteryIndex,omitempty"`
	ModbusEndpoint         *string  `json:"modbusEndpoint,omitempty" yaml:"modbusEndpoint,omitempty"`
	ModbusUnitID           *uint8   `json:"modbusUnitID,omitempty" yaml:"modbusUnitID,omitempty"`
	ModbusTimeoutSeconds   *float64 `json:"modbusTimeoutSeconds,omitempty" yaml:"modbusTimeoutSeconds,omitempty"`
	MQTTURL                *string  `json:"mqttURL,omitempty" yaml:"mqttURL,omitempty"`
	MQTTTopic              *string  `json:"mqttTopic,omitempty" yaml:"mqttTopic,omitempty"`
	RedisAddr              *string  `json:"redisAddr,omitempty" yaml:"redisAddr,omitempty"`
	RedisKey               *string  `json:"redisKey,omitempty" yaml:"redisKey,omitempty"`
	AcpidSocket            *string  `json:"acpidSocket,omitempty" yaml:"acpidSocket,omitempty"`
	HandleSleepWake        *bool    `json:"handleSleepWake,omitempty" yaml:"handleSleepWake,omitempty"`
	FreshReadCron          *string  `json:"freshReadCron,omitempty" yaml:"freshReadCron,omitempty"`
	AllowNonRootAccess     *bool    `json:"allowNonRootAccess,omitempty" yaml:"allowNonRootAccess,omitempty"`
}

// NewRawFileConfigFromConfig resolves every key of c, defaults included.
func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	rawConfig := &RawFileConfig{
		UseExtendedInformation: ptr.To(c.UseExtendedInformation()),
		UseExtraInformation:    ptr.To(c.UseExtraInformation()),
		Transport:              ptr.To(c.Transport()),
		ACPIDevice:             ptr.To(c.ACPIDevice()),
		ACPICallPath:           ptr.To(c.ACPICallPath()),
		ACPIRetries:            ptr.To(c.ACPIRetries()),
		BatteryIndex:           ptr.To(c.BatteryIndex()),
		ModbusEndpoint:         ptr.To(c.ModbusEndpoint()),
		ModbusUnitID:           ptr.To(c.ModbusUnitID()),
		ModbusTimeoutSeconds:   ptr.To(c.ModbusTimeout().Seconds()),
		MQTTURL:                ptr.To(c.MQTTURL()),
		MQTTTopic:              ptr.To(c.MQTTTopic()),
		RedisAddr:              ptr.To(c.RedisAddr()),
		RedisKey:               ptr.To(c.RedisKey()),
		AcpidSocket:            ptr.To(c.AcpidSocket()),
		HandleSleepWake:        ptr.To(c.HandleSleepWake()),
		FreshReadCron:          ptr.To(c.FreshReadCron()),
		AllowNonRootAccess:     ptr.To(c.AllowNonRootAccess()),
	}
	if d := c.PollingPeriodOverride(); d != nil {
		rawConfig.PollingPeriodOverride = ptr.To(d.Seconds())
	}

	return rawConfig, nil
}

// get reads one key, falling back to its default when unset.
func get[T any](f *File, v func(c *RawFileConfig) *T) T {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if p := v(f.c); p != nil {
		return *p
	}
	return *v(defaultFileConfig)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func (f *File) PollingPeriodOverride() *time.Duration {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.PollingPeriodOverride == nil {
		return nil
	}
	d := seconds(*f.c.PollingPeriodOverride)
	if d < 0 {
		d = 0
	}
	return &d
}

func (f *File) UseExtendedInformation() bool {
	return get(f, func(c *RawFileConfig) *bool { return c.UseExtendedInformation })
}

func (f *File) UseExtraInformation() bool {
	return get(f, func(c *RawFileConfig) *bool { return c.UseExtraInformation })
}

func (f *File) Transport() string {
	return get(f, func(c *RawFileConfig) *string { return c.Transport })
}

func (f *File) ACPIDevice() string {
	return get(f, func(c *RawFileConfig) *string { return c.ACPIDevice })
}

func (f *File) ACPICallPath() string {
	return get(f, func(c *RawFileConfig) *string { return c.ACPICallPath })
}

func (f *File) ACPIRetries() int {
	return get(f, func(c *RawFileConfig) *int { return c.ACPIRetries })
}

func (f *File) BatteryIndex() int {
	return get(f, func(c *RawFileConfig) *int { return c.BatteryIndex })
}

func (f *File) ModbusEndpoint() string {
	return get(f, func(c *RawFileConfig) *string { return c.ModbusEndpoint })
}

func (f *File) ModbusUnitID() uint8 {
	return get(f, func(c *RawFileConfig) *uint8 { return c.ModbusUnitID })
}

func (f *File) ModbusTimeout() time.Duration {
	return seconds(get(f, func(c *RawFileConfig) *float64 { return c.ModbusTimeoutSeconds }))
}

func (f *File) MQTTURL() string {
	return get(f, func(c *RawFileConfig) *string { return c.MQTTURL })
}

func (f *File) MQTTTopic() string {
	return get(f, func(c *RawFileConfig) *string { return c.MQTTTopic })
}

func (f *File) RedisAddr() string {
	return get(f, func(c *RawFileConfig) *string { return c.RedisAddr })
}

func (f *File) RedisKey() string {
	return get(f, func(c *RawFileConfig) *string { return c.RedisKey })
}

func (f *File) AcpidSocket() string {
	return get(f, func(c *RawFileConfig) *string { return c.AcpidSocket })
}

func (f *File) HandleSleepWake() bool {
	return get(f, func(c *RawFileConfig) *bool { return c.HandleSleepWake })
}

func (f *File) FreshReadCron() string {
	return get(f, func(c *RawFileConfig) *string { return c.FreshReadCron })
}

func (f *File) AllowNonRootAccess() bool {
	return get(f, func(c *RawFileConfig) *bool { return c.AllowNonRootAccess })
}

func (f *File) isYAML() bool {
	switch strings.ToLower(filepath.Ext(f.filepath)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	// Since we want to tell if the file is empty, using a decoder will
	// not work.
	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}
	configString := string(b)

	if strings.TrimSpace(configString) == "" {
		// If the file is empty, return the empty config.
		// Do not make f.c a nil.
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	if f.isYAML() {
		err = yaml.Unmarshal(b, &conf)
	} else {
		err = json.Unmarshal(b, &conf)
	}
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	fp, err := os.OpenFile(f.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	if f.isYAML() {
		enc := yaml.NewEncoder(fp)
		enc.SetIndent(2)
		err = enc.Encode(f.c)
		if err == nil {
			err = enc.Close()
		}
	} else {
		enc := json.NewEncoder(fp)
		enc.SetIndent("", "  ")
		err = enc.Encode(f.c)
	}
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	if f.c == nil {
		panic("config is nil")
	}

	fields := logrus.Fields{
		"pollingPeriodOverride":  "unset",
		"useExtendedInformation": f.UseExtendedInformation(),
		"useExtraInformation":    f.UseExtraInformation(),
		"transport":              f.Transport(),
		"mqtt":                   f.MQTTURL() != "",
		"redis":                  f.RedisAddr() != "",
		"acpidSocket":            f.AcpidSocket(),
		"handleSleepWake":        f.HandleSleepWake(),
		"freshReadCron":          f.FreshReadCron(),
		"allowNonRootAccess":     f.AllowNonRootAccess(),
	}
	if d := f.PollingPeriodOverride(); d != nil {
		fields["pollingPeriodOverride"] = d.String()
	}
	switch f.Transport() {
	case TransportACPICall:
		fields["acpiDevice"] = f.ACPIDevice()
	case TransportOS:
		fields["batteryIndex"] = f.BatteryIndex()
	case TransportSBSModbus:
		fields["modbusEndpoint"] = f.ModbusEndpoint()
	}
	return fields
}
