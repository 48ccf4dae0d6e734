package poller

import (
	"sync"
	"testing"
	"time"

	"github.com/charlie0129/acpibatt/pkg/battery"
)

func completedAt(now time.Time, ago ...time.Duration) []CycleRecord {
	var records []CycleRecord
	for _, a := range ago {
		records = append(records, CycleRecord{
			Time:    now.Add(-a).Add(-10 * time.Millisecond),
			Outcome: OutcomeCompleted,
		})
	}
	return records
}

func TestCycleRecorder_CompletedIn(t *testing.T) {
	now := time.Now()
	type fields struct {
		MaxRecordCount int
		records        []CycleRecord
	}
	type args struct {
		last time.Duration
		gap  time.Duration
	}
	tests := []struct {
		name   string
		fields fields
		args   args
		want   int
	}{
		{
			name: "test noncontinuous records",
			fields: fields{
				MaxRecordCount: 10,
				records:        completedAt(now, 31*time.Second, 20*time.Second, 10*time.Second),
			},
			args: args{last: 40 * time.Second, gap: 11 * time.Second},
			want: 2,
		},
		{
			name: "test continuous records",
			fields: fields{
				MaxRecordCount: 10,
				records: completedAt(now,
					70*time.Second, 60*time.Second, 40*time.Second,
					30*time.Second, 20*time.Second, 10*time.Second),
			},
			args: args{last: 50 * time.Second, gap: 11 * time.Second},
			want: 4,
		},
		{
			name: "test stale last record",
			fields: fields{
				MaxRecordCount: 10,
				records:        completedAt(now, 40*time.Second, 30*time.Second, 20*time.Second, 15*time.Second),
			},
			args: args{last: 50 * time.Second, gap: 11 * time.Second},
			want: 0,
		},
		{
			name: "test other outcomes are skipped",
			fields: fields{
				MaxRecordCount: 10,
				records: append(completedAt(now, 20*time.Second, 10*time.Second),
					CycleRecord{Time: now.Add(-5 * time.Second), Outcome: OutcomeAborted}),
			},
			args: args{last: 50 * time.Second, gap: 11 * time.Second},
			want: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &CycleRecorder{
				MaxRecordCount: tt.fields.MaxRecordCount,
				mu:             &sync.Mutex{},
				records:        tt.fields.records,
			}
			if got := r.CompletedIn(now, tt.args.last, tt.args.gap); got != tt.want {
				t.Errorf("CompletedIn() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCycleRecorder_AddRecord(t *testing.T) {
	r := NewCycleRecorder(3)
	now := time.Now()
	for i, o := range []Outcome{OutcomeCompleted, OutcomeRejected, OutcomeCompleted, OutcomeNoBattery} {
		r.AddRecord(CycleRecord{Time: now.Add(time.Duration(i) * time.Second), Outcome: o})
	}
	r.AddError(battery.ZeroCapacityReported)

	records := r.GetRecords()
	if len(records) != 3 {
		t.Fatalf("len(GetRecords()) = %v, want 3", len(records))
	}
	if records[0].Outcome != OutcomeRejected {
		t.Errorf("oldest outcome = %v, want %v", records[0].Outcome, OutcomeRejected)
	}
	if got := r.OutcomeCounts()[OutcomeCompleted]; got != 2 {
		t.Errorf("OutcomeCounts()[completed] = %v, want 2", got)
	}
	if got := r.ErrorCounts()[battery.ZeroCapacityReported]; got != 1 {
		t.Errorf("ErrorCounts()[zero capacity] = %v, want 1", got)
	}

	r.ClearRecords()
	if _, ok := r.GetLastRecord(); ok {
		t.Errorf("GetLastRecord() after ClearRecords() returned a record")
	}
	if got := r.OutcomeCounts()[OutcomeNoBattery]; got != 1 {
		t.Errorf("OutcomeCounts()[no-battery] = %v, want 1", got)
	}
}
