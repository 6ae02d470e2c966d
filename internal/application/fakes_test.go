package application_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"lightctl/internal/application"
	"lightctl/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeDevice struct {
	name  string
	id    string
	class string

	// delay is applied before every call; the call honors ctx cancellation.
	delay time.Duration
	// delayOn limits delay to writes of this instruction kind.
	delayOn *domain.InstructionKind
	// failOn makes the write of this instruction kind fail with writeErr.
	failOn   *domain.InstructionKind
	writeErr error
	state    domain.DeviceState
	stateErr error

	mu     sync.Mutex
	writes []domain.Instruction
	reads  int
}

func newLight(name, id string) *fakeDevice {
	return &fakeDevice{name: name, id: id, class: "light"}
}

func (d *fakeDevice) Name() string  { return d.name }
func (d *fakeDevice) ID() string    { return d.id }
func (d *fakeDevice) Class() string { return d.class }

func (d *fakeDevice) wait(ctx context.Context) error {
	if d.delay == 0 {
		return nil
	}
	select {
	case <-time.After(d.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *fakeDevice) Write(ctx context.Context, ins domain.Instruction) error {
	if d.delayOn == nil || *d.delayOn == ins.Kind {
		if err := d.wait(ctx); err != nil {
			return err
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failOn != nil && *d.failOn == ins.Kind {
		return d.writeErr
	}
	d.writes = append(d.writes, ins)
	return nil
}

func (d *fakeDevice) State(ctx context.Context) (domain.DeviceState, error) {
	if d.delayOn == nil {
		if err := d.wait(ctx); err != nil {
			return domain.DeviceState{}, err
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reads++
	return d.state, d.stateErr
}

func (d *fakeDevice) Writes() []domain.Instruction {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]domain.Instruction, len(d.writes))
	copy(out, d.writes)
	return out
}

type fakeVendor struct {
	devices    []*fakeDevice
	connectErr error
	delay      time.Duration
	connects   atomic.Int32
}

func (v *fakeVendor) Name() string { return "fake" }

func (v *fakeVendor) Connect(_ context.Context) ([]application.Device, error) {
	v.connects.Add(1)
	if v.delay > 0 {
		time.Sleep(v.delay)
	}
	if v.connectErr != nil {
		return nil, v.connectErr
	}
	out := make([]application.Device, len(v.devices))
	for i, d := range v.devices {
		out[i] = d
	}
	return out, nil
}

func (v *fakeVendor) totalCalls() int {
	n := int(v.connects.Load())
	for _, d := range v.devices {
		d.mu.Lock()
		n += len(d.writes) + d.reads
		d.mu.Unlock()
	}
	return n
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.ControlEvent
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, event domain.ControlEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

// blockingNotifier holds every delivery until release is closed.
type blockingNotifier struct {
	release chan struct{}

	mu     sync.Mutex
	events []domain.ControlEvent
	ctxErr error
}

func (n *blockingNotifier) Notify(ctx context.Context, event domain.ControlEvent) error {
	<-n.release
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	n.ctxErr = ctx.Err()
	return nil
}

func kind(k domain.InstructionKind) *domain.InstructionKind { return &k }

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }

func devicesOf(fakes ...*fakeDevice) []application.Device {
	out := make([]application.Device, len(fakes))
	for i, f := range fakes {
		out[i] = f
	}
	return out
}
