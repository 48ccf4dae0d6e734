package powersource

import (
	"github.com/charlie0129/acpibatt/pkg/battery"
)

// LegacyInfo is the fixed subset of attributes mirrored in the legacy
// battery info format. Entries whose attribute is not published are nil.
type LegacyInfo struct {
	Flags      uint32 `json:"Flags"`
	Current    *int64 `json:"Current,omitempty"`
	Capacity   *int64 `json:"Capacity,omitempty"`
	Voltage    *int64 `json:"Voltage,omitempty"`
	Amperage   *int64 `json:"Amperage,omitempty"`
	CycleCount *int64 `json:"Cycle Count,omitempty"`
}

// PublishFixedAttributes publishes attributes that never change.
func (s *Store) PublishFixedAttributes() {
	s.Publish(KeyInvalidWakeSeconds, Int(InvalidWakeSeconds))
	s.Publish(KeyPostChargeWaitSeconds, Int(PostChargeWaitSeconds))
	s.Publish(KeyPostDischargeWaitSeconds, Int(PostDischargeWaitSeconds))
	s.Commit()
}

// PublishPresence publishes the installed flag.
func (s *Store) PublishPresence(installed bool) {
	s.Publish(KeyBatteryInstalled, Bool(installed))
	s.Commit()
}

// PublishStatic publishes what a static info read decoded.
func (s *Store) PublishStatic(snap battery.Snapshot) {
	s.Publish(KeyDesignCapacity, Uint(snap.DesignCapacity))
	s.Publish(KeyMaxCapacity, Uint(snap.MaxCapacity))
	s.Publish(KeyCycleCount, Uint(snap.CycleCount))
	s.Publish(KeyMaxErr, Uint(snap.MaxErr))
	s.Publish(KeyDeviceName, String(snap.DeviceName))
	s.Publish(KeyBatteryType, String(snap.BatteryType))
	s.Publish(KeyManufacturer, String(snap.Manufacturer))
	s.Publish(KeyFirmwareSerialNumber, Uint(snap.FirmwareSerial))
	s.Publish(KeyBatterySerialNumber, String(snap.HardwareSerial))
	s.Publish(KeyManufactureDate, Uint(snap.ManufactureDate))
	s.Publish(KeyManufacturerData, Data(snap.ManufacturerData))
	s.Publish(KeyPermanentFailureStatus, Uint(snap.PermanentFailureStatus))
	s.Commit()
}

// PublishExtra publishes what an extra info read decoded.
func (s *Store) PublishExtra(snap battery.Snapshot) {
	s.Publish(KeyTemperature, Uint(snap.Temperature))
	s.Publish(KeyManufactureDate, Uint(snap.ManufactureDate))
	s.Publish(KeyDateOfManufacture, String(snap.ManufactureDateString))
	s.Publish(KeyManufacturerData, Data(snap.ManufacturerData))
	if x := snap.Extra; x != nil {
		s.Publish(KeyRunTimeToEmpty, Uint(x.RunTimeToEmpty))
		s.Publish(KeyRelativeStateOfCharge, Uint(x.RelativeStateOfCharge))
		s.Publish(KeyAbsoluteStateOfCharge, Uint(x.AbsoluteStateOfCharge))
		s.Publish(KeyRemainingCapacity, Uint(x.RemainingCapacity))
		s.Publish(KeyAverageCurrent, Int(int64(x.AverageCurrent)))
		s.Publish(KeyCurrent, Int(int64(x.Current)))
	}
	s.Commit()
}

// PublishDynamic publishes what a dynamic status read decoded and derived,
// then rebuilds the legacy mirror.
func (s *Store) PublishDynamic(snap battery.Snapshot, quickPoll bool) {
	m := snap.Metrics

	s.Publish(KeyBatteryInstalled, Bool(true))
	s.Publish(KeyExternalConnected, Bool(m.ExternalConnected))
	s.Publish(KeyExternalChargeCapable, Bool(m.ExternalChargeCapable))
	s.Publish(KeyIsCharging, Bool(m.IsCharging))
	s.Publish(KeyFullyCharged, Bool(m.FullyCharged))
	s.Publish(KeyCurrentCapacity, Uint(snap.CurrentCapacity))
	s.Publish(KeyMaxCapacity, Uint(snap.MaxCapacity))
	s.Publish(KeyVoltage, Uint(snap.Voltage))
	s.Publish(KeyAmperage, Int(m.Amperage))
	s.Publish(KeyInstantAmperage, Int(m.InstantAmperage))
	s.Publish(KeyTimeRemaining, Uint(m.TimeRemaining))
	s.Publish(KeyAvgTimeToEmpty, Uint(m.AvgTimeToEmpty))
	s.Publish(KeyAvgTimeToFull, Uint(m.AvgTimeToFull))
	s.Publish(KeyInstantTimeToEmpty, Uint(m.InstantTimeToEmpty))
	s.Publish(KeyInstantTimeToFull, Uint(m.InstantTimeToFull))
	s.Publish(KeyQuickPoll, Bool(quickPoll))
	c := snap.CellVoltages
	s.Publish(KeyCellVoltage, Ints(int64(c[0]), int64(c[1]), int64(c[2]), int64(c[3])))
	s.Publish(KeyTemperature, Uint(snap.Temperature))
	s.Publish(KeyBatterySerialNumber, String(snap.HardwareSerial))

	if m.State == battery.StateAnomalous {
		s.Publish(KeyErrorCondition, String(string(battery.PermanentFailureDetected)))
	} else {
		s.Unpublish(KeyErrorCondition)
	}

	s.rebuildLegacy()
	s.Commit()
}

// RecordError publishes kind as the latest error.
func (s *Store) RecordError(kind battery.ErrorKind) {
	s.Publish(KeyLatestErrorType, String(string(kind)))
	s.Commit()
}

// Clear zeroes the baseline attributes and removes everything decoding
// produced, so nothing stale looks current.
func (s *Store) Clear() {
	for _, k := range baselineKeys {
		switch k {
		case KeyAdapterInfo, KeyLocation:
			s.Publish(k, Int(0))
		default:
			s.Publish(k, Bool(false))
		}
	}
	for _, k := range derivedKeys {
		s.Unpublish(k)
	}
	s.rebuildLegacy()
	s.Commit()
}

// Legacy returns the legacy mirror built from the published attributes.
func (s *Store) Legacy() LegacyInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var info LegacyInfo
	if s.props[KeyExternalConnected].Bool() {
		info.Flags |= LegacyFlagExternalPower
	}
	if s.props[KeyIsCharging].Bool() {
		info.Flags |= LegacyFlagCharging
	}
	if s.props[KeyBatteryInstalled].Bool() {
		info.Flags |= LegacyFlagBatteryInstalled
	}
	info.Current = s.intLocked(KeyCurrentCapacity)
	info.Capacity = s.intLocked(KeyMaxCapacity)
	info.Voltage = s.intLocked(KeyVoltage)
	info.Amperage = s.intLocked(KeyAmperage)
	info.CycleCount = s.intLocked(KeyCycleCount)
	return info
}

func (s *Store) intLocked(key Key) *int64 {
	v, ok := s.props[key]
	if !ok || v.Kind() != KindInt {
		return nil
	}
	i := v.Int()
	return &i
}

func (s *Store) rebuildLegacy() {
	info := s.Legacy()
	d := map[string]int64{LegacyFlags: int64(info.Flags)}
	for name, p := range map[string]*int64{
		LegacyCurrent:    info.Current,
		LegacyCapacity:   info.Capacity,
		LegacyVoltage:    info.Voltage,
		LegacyAmperage:   info.Amperage,
		LegacyCycleCount: info.CycleCount,
	} {
		if p != nil {
			d[name] = *p
		}
	}
	s.Publish(KeyLegacyBatteryInfo, Dict(d))
}
