package poller

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/acpibatt/pkg/acpi"
	"github.com/charlie0129/acpibatt/pkg/powersource"
)

func TestPollerLifecycle(t *testing.T) {
	mock := acpi.NewMock()
	p := New(Options{
		Transport:              mock,
		UseExtendedInformation: true,
		UseExtraInformation:    true,
	})
	ctx := context.Background()
	p.Start(ctx)
	defer p.Stop()

	require.Eventually(t, func() bool {
		rec, ok := p.Recorder().GetLastRecord()
		return ok && rec.Outcome == OutcomeCompleted
	}, 5*time.Second, 10*time.Millisecond)

	snap, err := p.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.Present)
	assert.Equal(t, uint32(4200), snap.MaxCapacity)
	assert.NotNil(t, snap.Extra)

	v, ok := p.Store().Get(powersource.KeyDeviceName)
	require.True(t, ok)
	assert.Equal(t, "DELL 1234", v.Str())

	st, err := p.Status(ctx)
	require.NoError(t, err)
	assert.Nil(t, st.Session)
	assert.True(t, st.TimerArmed)
	assert.Equal(t, DefaultInterval.Milliseconds(), st.IntervalMs)
	assert.NotEmpty(t, st.Cycles)

	d, err := p.HandleSleep(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, d)

	acked := make(chan struct{})
	d, err = p.HandleWake(ctx, func() { close(acked) })
	require.NoError(t, err)
	if d > 0 {
		select {
		case <-acked:
		case <-time.After(d):
			t.Fatal("wake was not acknowledged")
		}
	}

	require.NoError(t, p.SetPollingInterval(ctx, time.Minute))
	assert.ErrorIs(t, p.SetPollingInterval(ctx, 0), ErrInvalidInterval)

	started, err := p.TriggerPoll(ctx, PathFresh)
	require.NoError(t, err)
	assert.True(t, started)
	require.Eventually(t, func() bool {
		return mock.Calls(acpi.MethodBST) >= 3
	}, 5*time.Second, 10*time.Millisecond)
}

func TestPollerStopped(t *testing.T) {
	p := New(Options{Transport: acpi.NewMock()})
	p.Start(context.Background())
	p.Stop()

	_, err := p.TriggerPoll(context.Background(), PathRefresh)
	assert.ErrorIs(t, err, ErrStopped)
	p.Notify()
}

func TestPathText(t *testing.T) {
	for _, p := range []Path{PathFresh, PathRefresh} {
		b, err := p.MarshalText()
		require.NoError(t, err)
		var got Path
		require.NoError(t, got.UnmarshalText(b))
		assert.Equal(t, p, got)
	}

	var p Path
	assert.Error(t, p.UnmarshalText([]byte("stale")))
}
