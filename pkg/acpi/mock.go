package acpi

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Mock is an in-memory Transport with settable results.
type Mock struct {
	mu sync.Mutex

	STA  uint32
	BIF  Package
	BIX  Package
	BBIX Package
	BST  Package

	// Errs maps a method name to the error returned for it.
	Errs map[string]error

	calls map[string]int
}

var _ Transport = &Mock{}

// NewMock returns a Mock describing a present, discharging 4400 mAh pack.
func NewMock() *Mock {
	bif := Package{
		Integer(uint64(PowerUnitCharge)),
		Integer(4400),
		Integer(4200),
		Integer(1),
		Integer(11100),
		Integer(420),
		Integer(132),
		Integer(64),
		Integer(64),
		Text("DELL 1234"),
		Text("01A3"),
		Text("LION"),
		Text("SMP"),
	}
	bix := Package{
		Integer(0),
		Integer(uint64(PowerUnitCharge)),
		Integer(4400),
		Integer(4200),
		Integer(1),
		Integer(11100),
		Integer(420),
		Integer(132),
		Integer(37),
		Integer(50),
		Integer(1000),
		Integer(500),
		Integer(1000),
		Integer(500),
		Integer(64),
		Integer(64),
		Text("DELL 1234"),
		Text("01A3"),
		Text("LION"),
		Text("SMP"),
	}
	bbix := Package{
		Integer(0),
		Integer(0x6001),
		Integer(0xFFFF),
		Integer(0xFFFF),
		Integer(2982),
		Integer(11900),
		Integer(0xFC18), // -1000 mA
		Integer(0xFC18),
		Integer(50),
		Integer(48),
		Integer(2100),
		Integer(126),
		Integer(126),
		Integer(0xFFFF),
		Integer(0x2E21),
		Bytes([]byte{0x01, 0x02, 0x03}),
	}
	bst := Package{
		Integer(uint64(StateDischarging)),
		Integer(1000),
		Integer(2100),
		Integer(11900),
	}
	return &Mock{
		STA:   0x1F,
		BIF:   bif,
		BIX:   bix,
		BBIX:  bbix,
		BST:   bst,
		Errs:  map[string]error{},
		calls: map[string]int{},
	}
}

// Set updates the mock under its lock.
func (m *Mock) Set(f func(m *Mock)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f(m)
}

// Calls returns how many times method was evaluated.
func (m *Mock) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

func (m *Mock) record(method string) error {
	if m.calls == nil {
		m.calls = map[string]int{}
	}
	m.calls[method]++
	logrus.WithField("method", method).Trace("mock transport evaluating method")
	return m.Errs[method]
}

func (m *Mock) ReadPresence() (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(MethodSTA); err != nil {
		return 0, err
	}
	return m.STA, nil
}

func (m *Mock) ReadStaticInfo(extended bool) (Package, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if extended {
		if err := m.record(MethodBIX); err != nil {
			return nil, err
		}
		return m.BIX, nil
	}
	if err := m.record(MethodBIF); err != nil {
		return nil, err
	}
	return m.BIF, nil
}

func (m *Mock) ReadExtraInfo() (Package, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(MethodBBIX); err != nil {
		return nil, err
	}
	return m.BBIX, nil
}

func (m *Mock) ReadDynamicStatus() (Package, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(MethodBST); err != nil {
		return nil, err
	}
	return m.BST, nil
}
