package application_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lightctl/internal/application"
	"lightctl/internal/domain"
)

func newExecutor(cfg application.ExecutorConfig) *application.Executor {
	return application.NewExecutor(cfg, nil, discardLogger())
}

func TestMatch(t *testing.T) {
	devices := devicesOf(
		newLight("Kitchen Light", "k1"),
		newLight("Kitchen Lamp", "k2"),
		newLight("Porch", "p1"),
	)

	tests := []struct {
		filter string
		want   []string
	}{
		{"", []string{"k1", "k2", "p1"}},
		{"kitchen", []string{"k1", "k2"}},
		{"  KITCHEN lamp ", []string{"k2"}},
		{"garage", nil},
	}

	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			var got []string
			for _, d := range application.Match(devices, tt.filter) {
				got = append(got, d.ID())
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExecutor_WritesInOrder(t *testing.T) {
	d := newLight("Desk", "d1")
	instructions := []domain.Instruction{
		domain.PowerInstruction(true),
		domain.BrightnessInstruction(30),
		domain.ColorInstruction(domain.RGB{G: 255}),
	}

	results := newExecutor(application.DefaultExecutorConfig()).Run(context.Background(), devicesOf(d), instructions)

	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Equal(t, instructions, d.Writes())
	require.NotNil(t, results[0].PowerState)
	assert.Equal(t, "ON", *results[0].PowerState)
	require.NotNil(t, results[0].Brightness)
	assert.Equal(t, 30, *results[0].Brightness)
	require.NotNil(t, results[0].Color)
	assert.Equal(t, "#00FF00", *results[0].Color)
}

func TestExecutor_StopsAtFirstFailure(t *testing.T) {
	d := newLight("Desk", "d1")
	d.failOn = kind(domain.InstructionBrightness)
	d.writeErr = errors.New("attribute rejected")

	results := newExecutor(application.DefaultExecutorConfig()).Run(context.Background(), devicesOf(d), []domain.Instruction{
		domain.PowerInstruction(true),
		domain.BrightnessInstruction(30),
		domain.ColorInstruction(domain.RGB{R: 1}),
	})

	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Message, "attribute rejected")
	assert.Equal(t, []domain.Instruction{domain.PowerInstruction(true)}, d.Writes())
	require.NotNil(t, results[0].PowerState)
	assert.Equal(t, "ON", *results[0].PowerState)
	assert.Nil(t, results[0].Color)
}

func TestExecutor_DevicesAreIndependent(t *testing.T) {
	bad := newLight("Bad", "b")
	bad.failOn = kind(domain.InstructionPower)
	bad.writeErr = errors.New("offline")
	good := newLight("Good", "g")

	results := newExecutor(application.DefaultExecutorConfig()).Run(context.Background(), devicesOf(bad, good), []domain.Instruction{
		domain.PowerInstruction(false),
	})

	require.Len(t, results, 2)
	bySeq := map[int]domain.DeviceResult{}
	for _, r := range results {
		bySeq[r.Seq] = r
	}
	assert.False(t, bySeq[0].Success)
	assert.True(t, bySeq[1].Success)
	assert.Equal(t, []domain.Instruction{domain.PowerInstruction(false)}, good.Writes())
}

func TestExecutor_Timeout(t *testing.T) {
	slow := newLight("Slow", "s")
	slow.delay = time.Second
	fast := newLight("Fast", "f")

	cfg := application.DefaultExecutorConfig()
	cfg.DeviceTimeout = 50 * time.Millisecond

	start := time.Now()
	results := newExecutor(cfg).Run(context.Background(), devicesOf(slow, fast), []domain.Instruction{
		domain.PowerInstruction(true),
	})

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	require.Len(t, results, 2)

	resp := application.Aggregate(results, "", application.PolicyAny, time.Now())
	assert.True(t, resp.Success)
	assert.Equal(t, "Controlled 1/2 devices successfully", resp.Message)
	assert.Equal(t, "s", resp.Results[0].DeviceID)
	assert.False(t, resp.Results[0].Success)
	assert.Contains(t, resp.Results[0].Message, "timed out")
	assert.True(t, resp.Results[1].Success)
}

func TestExecutor_IgnoresCallerCancellation(t *testing.T) {
	d := newLight("Desk", "d1")
	d.delay = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := newExecutor(application.DefaultExecutorConfig()).Run(ctx, devicesOf(d), []domain.Instruction{
		domain.PowerInstruction(true),
	})

	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
}

func TestExecutor_PrefillsState(t *testing.T) {
	on := true
	d := newLight("Desk", "d1")
	d.state = domain.DeviceState{Power: &on, Brightness: intPtr(80)}

	results := newExecutor(application.DefaultExecutorConfig()).Run(context.Background(), devicesOf(d), []domain.Instruction{
		domain.ColorInstruction(domain.RGB{B: 255}),
	})

	require.Len(t, results, 1)
	r := results[0]
	assert.True(t, r.Success)
	assert.Equal(t, "ON", *r.PowerState)
	assert.Equal(t, 80, *r.Brightness)
	assert.Equal(t, "#0000FF", *r.Color)
}

func TestExecutor_StateReadFailureIsNotFatal(t *testing.T) {
	d := newLight("Desk", "d1")
	d.stateErr = errors.New("state unavailable")

	results := newExecutor(application.DefaultExecutorConfig()).Run(context.Background(), devicesOf(d), []domain.Instruction{
		domain.PowerInstruction(false),
	})

	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Equal(t, "OFF", *results[0].PowerState)
}

type concurrencyTracker struct {
	*fakeDevice
	active *atomic.Int32
	peak   *atomic.Int32
}

func (p concurrencyTracker) Write(ctx context.Context, ins domain.Instruction) error {
	n := p.active.Add(1)
	defer p.active.Add(-1)
	for {
		old := p.peak.Load()
		if n <= old || p.peak.CompareAndSwap(old, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	return p.fakeDevice.Write(ctx, ins)
}

func TestExecutor_BoundedWorkers(t *testing.T) {
	var active, peak atomic.Int32
	var devices []application.Device
	for i := range 6 {
		devices = append(devices, concurrencyTracker{
			fakeDevice: newLight("Light", string(rune('a'+i))),
			active:     &active,
			peak:       &peak,
		})
	}

	cfg := application.DefaultExecutorConfig()
	cfg.MaxWorkers = 2
	cfg.ReadState = false

	results := newExecutor(cfg).Run(context.Background(), devices, []domain.Instruction{domain.PowerInstruction(true)})

	assert.Len(t, results, 6)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestExecutor_ReportsDeviceError(t *testing.T) {
	d := newLight("Desk", "d1")
	d.failOn = kind(domain.InstructionPower)
	d.writeErr = fmt.Errorf("writing attribute: %w", domain.ErrAuthentication)

	results := newExecutor(application.DefaultExecutorConfig()).Run(context.Background(), devicesOf(d), []domain.Instruction{
		domain.PowerInstruction(true),
	})

	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.ErrorIs(t, results[0].Err, domain.ErrAuthentication)
}

func TestExecutor_TimeoutKeepsPartialProgress(t *testing.T) {
	on := false
	d := newLight("Desk", "d1")
	d.state = domain.DeviceState{Power: &on, Brightness: intPtr(80)}
	d.delay = time.Second
	d.delayOn = kind(domain.InstructionColor)

	cfg := application.DefaultExecutorConfig()
	cfg.DeviceTimeout = 50 * time.Millisecond

	results := newExecutor(cfg).Run(context.Background(), devicesOf(d), []domain.Instruction{
		domain.PowerInstruction(true),
		domain.ColorInstruction(domain.RGB{R: 255}),
	})

	require.Len(t, results, 1)
	r := results[0]
	assert.False(t, r.Success)
	assert.ErrorIs(t, r.Err, domain.ErrDeviceTimeout)
	assert.Contains(t, r.Message, "timed out")
	require.NotNil(t, r.PowerState)
	assert.Equal(t, "ON", *r.PowerState)
	require.NotNil(t, r.Brightness)
	assert.Equal(t, 80, *r.Brightness)
	assert.Nil(t, r.Color)
}

func TestExecutor_ReadStates(t *testing.T) {
	on := true
	a := newLight("A", "a")
	a.state = domain.DeviceState{Power: &on}
	b := newLight("B", "b")
	b.stateErr = errors.New("boom")

	states := newExecutor(application.DefaultExecutorConfig()).ReadStates(context.Background(), devicesOf(a, b))

	require.Len(t, states, 2)
	require.NotNil(t, states[0].Power)
	assert.True(t, *states[0].Power)
	assert.Nil(t, states[1].Power)
}
