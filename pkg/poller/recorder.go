package poller

import (
	"maps"
	"sync"
	"time"

	"github.com/charlie0129/acpibatt/pkg/battery"
)

// Outcome is how a poll cycle ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeNoBattery Outcome = "no-battery"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeAborted   Outcome = "aborted"
	OutcomeRejected  Outcome = "rejected"
)

// Outcomes lists every outcome in a fixed order.
var Outcomes = []Outcome{
	OutcomeCompleted,
	OutcomeFailed,
	OutcomeNoBattery,
	OutcomeCancelled,
	OutcomeAborted,
	OutcomeRejected,
}

// CycleRecord describes one finished poll cycle.
type CycleRecord struct {
	Time     time.Time     `json:"time"`
	Path     Path          `json:"path"`
	Outcome  Outcome       `json:"outcome"`
	Duration time.Duration `json:"duration"`
}

// CycleRecorder records the last N poll cycles and keeps running totals
// per outcome and per error kind.
type CycleRecorder struct {
	MaxRecordCount int

	mu       *sync.Mutex
	records  []CycleRecord
	outcomes map[Outcome]uint64
	errors   map[battery.ErrorKind]uint64
}

// NewCycleRecorder returns a new CycleRecorder.
func NewCycleRecorder(maxRecordCount int) *CycleRecorder {
	return &CycleRecorder{
		MaxRecordCount: maxRecordCount,
		mu:             &sync.Mutex{},
		records:        make([]CycleRecord, 0),
		outcomes:       make(map[Outcome]uint64),
		errors:         make(map[battery.ErrorKind]uint64),
	}
}

// AddRecord adds a new record.
func (r *CycleRecorder) AddRecord(rec CycleRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Strip monotonic clock reading so ages stay right across system sleep.
	rec.Time = rec.Time.Round(0)

	if len(r.records) >= r.MaxRecordCount {
		r.records = r.records[1:]
	}
	r.records = append(r.records, rec)
	r.outcomes[rec.Outcome]++
}

// AddError counts an occurrence of kind.
func (r *CycleRecorder) AddError(kind battery.ErrorKind) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.errors[kind]++
}

// GetRecords returns a copy of the records, oldest first.
func (r *CycleRecorder) GetRecords() []CycleRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]CycleRecord(nil), r.records...)
}

// GetLastRecord returns the most recent record.
func (r *CycleRecorder) GetLastRecord() (CycleRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.records) == 0 {
		return CycleRecord{}, false
	}
	return r.records[len(r.records)-1], true
}

// OutcomeCounts returns the number of cycles per outcome since start.
func (r *CycleRecorder) OutcomeCounts() map[Outcome]uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return maps.Clone(r.outcomes)
}

// ErrorCounts returns the number of errors per kind since start.
func (r *CycleRecorder) ErrorCounts() map[battery.ErrorKind]uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return maps.Clone(r.errors)
}

// ClearRecords clears the records. Totals are kept.
func (r *CycleRecorder) ClearRecords() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = make([]CycleRecord, 0)
}

// CompletedIn returns the number of continuous completed cycles in the
// last duration, counted back from now. Two completions further apart than
// gap break the run, as does a last completion older than gap.
func (r *CycleRecorder) CompletedIn(now time.Time, last, gap time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var completed []time.Time
	for _, rec := range r.records {
		if rec.Outcome == OutcomeCompleted {
			completed = append(completed, rec.Time)
		}
	}

	if len(completed) == 0 || now.Sub(completed[len(completed)-1]) >= gap {
		return 0
	}

	count := 0
	for i := len(completed) - 1; i >= 0; i-- {
		record := completed[i]
		if now.Sub(record) > last {
			break
		}

		theRecordAfter := record
		if i+1 < len(completed) {
			theRecordAfter = completed[i+1]
		}

		if theRecordAfter.Sub(record) >= gap {
			break
		}
		count++
	}

	return count
}
