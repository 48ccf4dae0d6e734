package main

import (
	"testing"
	"time"
)

func TestParseDurationArg(t *testing.T) {
	tests := []struct {
		args    []string
		want    time.Duration
		wantErr bool
	}{
		{args: []string{"30"}, want: 30 * time.Second},
		{args: []string{"1.5"}, want: 1500 * time.Millisecond},
		{args: []string{"2m"}, want: 2 * time.Minute},
		{args: []string{"soon"}, wantErr: true},
		{args: nil, wantErr: true},
		{args: []string{"1", "2"}, wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseDurationArg(tt.args, "interval")
		if (err != nil) != tt.wantErr {
			t.Fatalf("parseDurationArg(%v) error = %v, wantErr %v", tt.args, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("parseDurationArg(%v) = %v, want %v", tt.args, got, tt.want)
		}
	}
}

func TestMinutes(t *testing.T) {
	if got := minutes(90); got != "1h30m0s" {
		t.Fatalf("minutes(90) = %q", got)
	}
	if got := minutes(0xFFFF); got != "unknown" {
		t.Fatalf("minutes(0xFFFF) = %q", got)
	}
}
