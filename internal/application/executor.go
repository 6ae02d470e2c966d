package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"lightctl/internal/domain"
)

type ExecutorConfig struct {
	// MaxWorkers bounds concurrent devices. Zero or less means one worker per device.
	MaxWorkers int
	// DeviceTimeout bounds the whole instruction sequence of one device.
	DeviceTimeout time.Duration
	// ReadState pre-fills results with the device's current state before writing.
	ReadState bool
}

func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxWorkers:    8,
		DeviceTimeout: 10 * time.Second,
		ReadState:     true,
	}
}

// Executor applies instructions to many devices concurrently. One device's
// failure or latency never affects another device.
type Executor struct {
	cfg     ExecutorConfig
	metrics Metrics
	logger  *slog.Logger
}

func NewExecutor(cfg ExecutorConfig, metrics Metrics, logger *slog.Logger) *Executor {
	if cfg.DeviceTimeout <= 0 {
		cfg.DeviceTimeout = DefaultExecutorConfig().DeviceTimeout
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Executor{cfg: cfg, metrics: metrics, logger: logger}
}

// Match returns the devices whose name contains filter, case-insensitively,
// in discovery order. An empty filter matches every device.
func Match(devices []Device, filter string) []Device {
	key := strings.ToLower(strings.TrimSpace(filter))
	if key == "" {
		out := make([]Device, len(devices))
		copy(out, devices)
		return out
	}

	var out []Device
	for _, d := range devices {
		if strings.Contains(strings.ToLower(d.Name()), key) {
			out = append(out, d)
		}
	}
	return out
}

// Run dispatches instructions to every device and waits for all of them to
// finish or time out. Results come back in completion order, each tagged with
// the device's dispatch position in Seq.
func (e *Executor) Run(ctx context.Context, devices []Device, instructions []domain.Instruction) []domain.DeviceResult {
	// Device work is not cancelled by the caller going away, only by its own timeout.
	base := context.WithoutCancel(ctx)

	done := make(chan domain.DeviceResult, len(devices))

	var g errgroup.Group
	g.SetLimit(e.workers(len(devices)))
	for i, d := range devices {
		g.Go(func() error {
			done <- e.runDevice(base, i, d, instructions)
			return nil
		})
	}
	_ = g.Wait()
	close(done)

	results := make([]domain.DeviceResult, 0, len(devices))
	for r := range done {
		results = append(results, r)
	}
	return results
}

// ReadStates reads the state of every device concurrently with the same
// worker bound and per-device timeout as Run. Failed reads yield an empty state.
func (e *Executor) ReadStates(ctx context.Context, devices []Device) []domain.DeviceState {
	base := context.WithoutCancel(ctx)
	states := make([]domain.DeviceState, len(devices))

	var g errgroup.Group
	g.SetLimit(e.workers(len(devices)))
	for i, d := range devices {
		g.Go(func() error {
			dctx, cancel := context.WithTimeout(base, e.cfg.DeviceTimeout)
			defer cancel()

			ch := make(chan domain.DeviceState, 1)
			go func() {
				st, err := d.State(dctx)
				if err != nil {
					e.logger.Debug("reading device state", "device", d.Name(), "error", err)
				}
				ch <- st
			}()

			select {
			case st := <-ch:
				states[i] = st
			case <-dctx.Done():
				e.logger.Warn("device state read timed out", "device", d.Name())
			}
			return nil
		})
	}
	_ = g.Wait()
	return states
}

func (e *Executor) workers(n int) int {
	if e.cfg.MaxWorkers <= 0 || e.cfg.MaxWorkers > n {
		return max(n, 1)
	}
	return e.cfg.MaxWorkers
}

// progress is one device's result as far as its sequence got. The timeout
// branch of runDevice reports it while the sequence may still be running.
type progress struct {
	mu  sync.Mutex
	res domain.DeviceResult
}

func (p *progress) update(fn func(r *domain.DeviceResult)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.res)
}

func (p *progress) snapshot() domain.DeviceResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.res
}

func (e *Executor) runDevice(base context.Context, seq int, d Device, instructions []domain.Instruction) domain.DeviceResult {
	start := time.Now()
	ctx, cancel := context.WithTimeout(base, e.cfg.DeviceTimeout)
	defer cancel()

	p := &progress{res: domain.DeviceResult{
		Name:     d.Name(),
		DeviceID: d.ID(),
		Seq:      seq,
	}}
	done := make(chan struct{})
	go func() {
		e.apply(ctx, p, d, instructions)
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}

	// On timeout the sequence goroutine may still be blocked in the vendor
	// call. What it applied so far is reported; anything later is discarded.
	res := p.snapshot()
	if !res.Success && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.Err = fmt.Errorf("%w after %s", domain.ErrDeviceTimeout, e.cfg.DeviceTimeout)
		res.Message = fmt.Sprintf("Error controlling %s: %v", d.Name(), res.Err)
	}

	label := "success"
	if !res.Success {
		label = "failure"
		if errors.Is(res.Err, domain.ErrDeviceTimeout) {
			label = "timeout"
		}
	}
	e.metrics.ObserveDevice(label, time.Since(start))

	e.logger.Info("device controlled",
		"device", d.Name(),
		"device_id", d.ID(),
		"success", res.Success,
		"duration", time.Since(start),
	)
	return res
}

func (e *Executor) apply(ctx context.Context, p *progress, d Device, instructions []domain.Instruction) {
	if e.cfg.ReadState {
		st, err := d.State(ctx)
		if err != nil {
			e.logger.Debug("reading device state", "device", d.Name(), "error", err)
		} else {
			p.update(func(r *domain.DeviceResult) { r.Prefill(st) })
		}
	}

	for _, ins := range instructions {
		if err := d.Write(ctx, ins); err != nil {
			e.logger.Warn("device write failed",
				"device", d.Name(),
				"instruction", ins.String(),
				"error", err,
			)
			p.update(func(r *domain.DeviceResult) {
				r.Err = err
				r.Message = fmt.Sprintf("Error controlling %s: %v", d.Name(), err)
			})
			return
		}
		p.update(func(r *domain.DeviceResult) { r.Apply(ins) })
	}

	p.update(func(r *domain.DeviceResult) {
		r.Success = true
		r.Message = fmt.Sprintf("Successfully controlled %s", d.Name())
	})
}
