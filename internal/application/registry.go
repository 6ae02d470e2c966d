package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"lightctl/internal/domain"
)

type RegistryConfig struct {
	// MaxAge forces a fresh login once the cached session is older. Zero disables expiry.
	MaxAge time.Duration
	// DeviceClass keeps only devices of this class. Empty keeps every device.
	DeviceClass string
}

// Registry caches the vendor session and the device handles it produced.
// Concurrent callers share a single login.
type Registry struct {
	vendor  Vendor
	cfg     RegistryConfig
	metrics Metrics
	logger  *slog.Logger

	group singleflight.Group

	mu         sync.RWMutex
	devices    []Device
	loggedIn   time.Time
	valid      bool
	generation uint64

	now func() time.Time
}

func NewRegistry(vendor Vendor, cfg RegistryConfig, metrics Metrics, logger *slog.Logger) *Registry {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Registry{
		vendor:  vendor,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Session is a snapshot of the cached device list together with the login
// generation that produced it.
type Session struct {
	Devices    []Device
	Generation uint64
}

// Devices returns the cached device list, logging in first when there is no
// usable session.
func (r *Registry) Devices(ctx context.Context) ([]Device, error) {
	s, err := r.Session(ctx)
	if err != nil {
		return nil, err
	}
	return s.Devices, nil
}

// Session is Devices plus the generation to hand back to InvalidateSession.
func (r *Registry) Session(ctx context.Context) (Session, error) {
	if s, ok := r.cached(); ok {
		return s, nil
	}
	return r.refresh(ctx)
}

// Sync forces a new login and device enumeration.
func (r *Registry) Sync(ctx context.Context) error {
	r.Invalidate()
	_, err := r.refresh(ctx)
	return err
}

// Invalidate drops the cached session so the next caller logs in again.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidateLocked()
}

// InvalidateSession drops the cached session only if it is still the one
// identified by generation. A failure seen on an older session must not
// discard a newer login.
func (r *Registry) InvalidateSession(generation uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if generation != r.generation {
		r.logger.Debug("ignoring invalidation of a replaced session",
			"generation", generation,
			"current", r.generation,
		)
		return
	}
	r.invalidateLocked()
}

func (r *Registry) invalidateLocked() {
	if r.valid {
		r.logger.Info("vendor session invalidated", "vendor", r.vendor.Name(), "generation", r.generation)
	}
	r.valid = false
}

// Connected reports whether a usable session is cached. It performs no I/O.
func (r *Registry) Connected() bool {
	_, ok := r.cached()
	return ok
}

// Count returns the number of cached devices, zero when there is no session.
func (r *Registry) Count() int {
	s, ok := r.cached()
	if !ok {
		return 0
	}
	return len(s.Devices)
}

func (r *Registry) cached() (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.valid {
		return Session{}, false
	}
	if r.cfg.MaxAge > 0 && r.now().Sub(r.loggedIn) > r.cfg.MaxAge {
		return Session{}, false
	}
	out := make([]Device, len(r.devices))
	copy(out, r.devices)
	return Session{Devices: out, Generation: r.generation}, true
}

func (r *Registry) refresh(ctx context.Context) (Session, error) {
	v, err, shared := r.group.Do("login", func() (any, error) {
		if s, ok := r.cached(); ok {
			return s, nil
		}
		// Shared by every waiting caller, so not tied to the initiating request.
		return r.login(context.WithoutCancel(ctx))
	})
	if err != nil {
		return Session{}, err
	}
	if shared {
		r.logger.Debug("joined in-flight vendor login")
	}

	s := v.(Session)
	out := make([]Device, len(s.Devices))
	copy(out, s.Devices)
	return Session{Devices: out, Generation: s.Generation}, nil
}

func (r *Registry) login(ctx context.Context) (Session, error) {
	start := r.now()
	all, err := r.vendor.Connect(ctx)
	if err != nil {
		r.metrics.ObserveLogin(false)
		r.logger.Error("vendor login failed", "vendor", r.vendor.Name(), "error", err)
		return Session{}, fmt.Errorf("connecting to %s: %w", r.vendor.Name(), wrapAuth(err))
	}
	r.metrics.ObserveLogin(true)

	devices := r.filter(all)

	r.mu.Lock()
	r.devices = devices
	r.loggedIn = r.now()
	r.valid = true
	r.generation++
	generation := r.generation
	r.mu.Unlock()

	r.logger.Info("vendor session established",
		"vendor", r.vendor.Name(),
		"devices", len(all),
		"lights", len(devices),
		"generation", generation,
		"duration", r.now().Sub(start),
	)
	return Session{Devices: devices, Generation: generation}, nil
}

func (r *Registry) filter(all []Device) []Device {
	class := strings.ToLower(strings.TrimSpace(r.cfg.DeviceClass))

	var out []Device
	for _, d := range all {
		if strings.TrimSpace(d.Name()) == "" {
			continue
		}
		if class != "" && strings.ToLower(d.Class()) != class {
			continue
		}
		out = append(out, d)
	}
	return out
}

// StartPeriodicSync refreshes the session on schedule until ctx is done.
// An empty schedule disables it.
func (r *Registry) StartPeriodicSync(ctx context.Context, schedule string) error {
	if schedule == "" {
		return nil
	}

	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if err := r.Sync(ctx); err != nil {
			r.logger.Error("periodic sync failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("scheduling device sync %q: %w", schedule, err)
	}

	c.Start()
	r.logger.Info("periodic device sync scheduled", "schedule", schedule)

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return nil
}

func wrapAuth(err error) error {
	if errors.Is(err, domain.ErrAuthentication) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrAuthentication, err)
}
