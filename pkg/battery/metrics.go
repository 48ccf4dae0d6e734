package battery

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/charlie0129/acpibatt/pkg/acpi"
)

// TimeUndefined marks a time estimate that cannot be computed.
const TimeUndefined uint32 = 0xFFFF

// QuickPollThreshold is the charge percentage below which a plugged-in
// battery is polled at the accelerated interval.
const QuickPollThreshold = 5

// ChargeState is the classification of a dynamic status read.
type ChargeState int

const (
	StateCharged ChargeState = iota
	StateDischarging
	StateCharging
	StateAnomalous
)

func (s ChargeState) String() string {
	switch s {
	case StateCharged:
		return "charged"
	case StateDischarging:
		return "discharging"
	case StateCharging:
		return "charging"
	case StateAnomalous:
		return "anomalous"
	}
	return fmt.Sprintf("ChargeState(%d)", int(s))
}

func (s ChargeState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *ChargeState) UnmarshalText(b []byte) error {
	for _, c := range []ChargeState{StateCharged, StateDischarging, StateCharging, StateAnomalous} {
		if c.String() == string(b) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown charge state %q", b)
}

// Metrics are the values derived from one dynamic status read. Time
// estimates are in minutes.
type Metrics struct {
	State                 ChargeState `json:"state"`
	FullyCharged          bool        `json:"fullyCharged"`
	IsCharging            bool        `json:"isCharging"`
	ExternalConnected     bool        `json:"externalConnected"`
	ExternalChargeCapable bool        `json:"externalChargeCapable"`

	Amperage        int64 `json:"amperage"`
	InstantAmperage int64 `json:"instantAmperage"`

	TimeRemaining      uint32 `json:"timeRemaining"`
	AvgTimeToEmpty     uint32 `json:"avgTimeToEmpty"`
	AvgTimeToFull      uint32 `json:"avgTimeToFull"`
	InstantTimeToEmpty uint32 `json:"instantTimeToEmpty"`
	InstantTimeToFull  uint32 `json:"instantTimeToFull"`

	// CurrentCapacity is the capacity to publish. It equals the decoded
	// capacity except when charged, where it is forced to maximum.
	CurrentCapacity uint32 `json:"currentCapacity"`
}

// Classify maps status bits to a charge state. Both direction bits set is
// anomalous and wins over everything else.
func Classify(state uint32) ChargeState {
	charging := state&acpi.StateCharging != 0
	discharging := state&acpi.StateDischarging != 0
	switch {
	case charging && discharging:
		return StateAnomalous
	case discharging:
		return StateDischarging
	case charging:
		return StateCharging
	}
	return StateCharged
}

// Derive computes the metrics for one status read. rate and avgRate are
// the instantaneous and smoothed magnitudes in mA.
func Derive(state, maxCap, curCap, rate, avgRate uint32) Metrics {
	m := Metrics{
		State:           Classify(state),
		CurrentCapacity: curCap,
	}

	switch m.State {
	case StateAnomalous:
		m.ExternalConnected = true
	case StateDischarging:
		m.Amperage = -int64(avgRate)
		m.InstantAmperage = -int64(rate)
		m.AvgTimeToEmpty = minutesUntil(curCap, avgRate)
		m.InstantTimeToEmpty = minutesUntil(curCap, rate)
		m.TimeRemaining = m.AvgTimeToEmpty
		m.AvgTimeToFull = TimeUndefined
		m.InstantTimeToFull = TimeUndefined
	case StateCharging:
		m.IsCharging = true
		m.ExternalConnected = true
		m.ExternalChargeCapable = true
		m.Amperage = int64(avgRate)
		m.InstantAmperage = int64(rate)
		var missing uint32
		if maxCap > curCap {
			missing = maxCap - curCap
		}
		m.AvgTimeToFull = minutesUntil(missing, avgRate)
		m.InstantTimeToFull = minutesUntil(missing, rate)
		m.TimeRemaining = m.AvgTimeToFull
		m.AvgTimeToEmpty = TimeUndefined
		m.InstantTimeToEmpty = TimeUndefined
	case StateCharged:
		m.FullyCharged = true
		m.ExternalConnected = true
		m.ExternalChargeCapable = true
		m.TimeRemaining = TimeUndefined
		m.AvgTimeToEmpty = TimeUndefined
		m.AvgTimeToFull = TimeUndefined
		m.InstantTimeToEmpty = TimeUndefined
		m.InstantTimeToFull = TimeUndefined
		m.CurrentCapacity = maxCap
	}

	return m
}

func minutesUntil(capacity, rate uint32) uint32 {
	if rate == 0 {
		return TimeUndefined
	}
	return uint32(60 * uint64(capacity) / uint64(rate))
}

// QuickPoll reports whether the accelerated interval should be used: the
// battery is below QuickPollThreshold percent while on external power.
func QuickPoll(maxCap, curCap uint32, externalConnected bool) bool {
	if maxCap == 0 || !externalConnected {
		return false
	}
	return 100*uint64(curCap)/uint64(maxCap) < QuickPollThreshold
}

// CellVoltages splits voltage over four cells. The first three get a
// quarter each and the last one the remainder, so the sum is exact.
func CellVoltages(voltage uint32) [4]uint32 {
	q := voltage / 4
	return [4]uint32{q, q, q, voltage - 3*q}
}

// UnpackDate decodes a Smart Battery packed date:
// bits 15-9 year since 1980, bits 8-5 month, bits 4-0 day.
func UnpackDate(packed uint32) string {
	year := (packed >> 9) + 1980
	month := (packed >> 5) & 0xF
	day := packed & 0x1F
	return fmt.Sprintf("%4d-%02d-%02d", year, month, day)
}

const maxHardwareSerialLen = 63

// HardwareSerial builds the human readable identifier "<device>-<serial>",
// cut to at most 63 bytes without splitting a character.
func HardwareSerial(device, serial string) string {
	if device == "" {
		device = acpi.UnknownText
	}
	if serial == "" {
		serial = acpi.UnknownText
	}
	s := device + "-" + serial
	if len(s) <= maxHardwareSerialLen {
		return s
	}
	n := maxHardwareSerialLen
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// ParseFirmwareSerial reads the leading hexadecimal digits of s, the way
// zero padded firmware serial strings are usually encoded. Anything that
// does not start with a hex digit yields 0.
func ParseFirmwareSerial(s string) uint32 {
	s = strings.TrimSpace(s)
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	end := 0
	for end < len(s) && isHexDigit(s[end]) {
		end++
	}
	if end == 0 {
		return 0
	}
	digits := s[:end]
	// Keep the low 32 bits of overlong serials.
	if len(digits) > 8 {
		digits = digits[len(digits)-8:]
	}
	v, err := strconv.ParseUint(digits, 16, 32)
	if err != nil {
		return 0
	}
	return uint32(v)
}

func isHexDigit(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}
