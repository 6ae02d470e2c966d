package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"lightctl/internal/domain"
)

// NotifyTimeout bounds the delivery of one control event to the notifiers.
const NotifyTimeout = 15 * time.Second

// LightService turns control requests into device operations and reports the outcome.
type LightService struct {
	registry *Registry
	executor *Executor
	policy   SuccessPolicy
	notifier Notifier
	metrics  Metrics
	logger   *slog.Logger

	pending sync.WaitGroup
}

func NewLightService(
	registry *Registry,
	executor *Executor,
	policy SuccessPolicy,
	notifier Notifier,
	metrics Metrics,
	logger *slog.Logger,
) *LightService {
	if notifier == nil {
		notifier = &NoopNotifier{}
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &LightService{
		registry: registry,
		executor: executor,
		policy:   policy,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
	}
}

// Control validates req, applies it to every matching light and aggregates
// the per-device results. Validation and vendor session errors are returned;
// device failures are reported inside the response.
func (s *LightService) Control(ctx context.Context, req domain.ControlRequest) (*domain.ControlResponse, error) {
	instructions, err := Translate(req)
	if err != nil {
		return nil, err
	}

	session, err := s.registry.Session(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading devices: %w", err)
	}

	matched := Match(session.Devices, req.Name)
	s.logger.Info("dispatching control request",
		"filter", req.Name,
		"instructions", len(instructions),
		"devices", len(matched),
	)

	results := s.executor.Run(ctx, matched, instructions)
	for _, r := range results {
		if errors.Is(r.Err, domain.ErrAuthentication) {
			s.registry.InvalidateSession(session.Generation)
			break
		}
	}

	resp := Aggregate(results, req.Name, s.policy, time.Now())
	s.metrics.ObserveControl(resp.Success, len(matched))

	if len(matched) > 0 {
		s.publish(ctx, domain.ControlEvent{
			ID:       uuid.NewString(),
			Request:  req,
			Response: resp,
		})
	}

	return &resp, nil
}

// publish hands the event to the notifiers in the background. Delivery
// outlives the request but not NotifyTimeout.
func (s *LightService) publish(ctx context.Context, event domain.ControlEvent) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), NotifyTimeout)
		defer cancel()

		if err := s.notifier.Notify(nctx, event); err != nil {
			s.logger.Error("notifying control event", "event_id", event.ID, "error", err)
		}
	}()
}

// Wait blocks until every in-flight event delivery has finished.
func (s *LightService) Wait() {
	s.pending.Wait()
}

// Lights lists the available lights, optionally reading each one's current state.
func (s *LightService) Lights(ctx context.Context, withState bool) ([]domain.DeviceInfo, error) {
	devices, err := s.registry.Devices(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading devices: %w", err)
	}

	infos := make([]domain.DeviceInfo, len(devices))
	for i, d := range devices {
		infos[i] = domain.DeviceInfo{
			Name:     d.Name(),
			DeviceID: d.ID(),
			Type:     domain.DeviceType(d.Class()),
		}
	}

	if !withState {
		return infos, nil
	}

	states := s.executor.ReadStates(ctx, devices)
	for i, st := range states {
		if st.Power != nil {
			infos[i].Power = domain.PowerString(*st.Power)
		}
		infos[i].Brightness = st.Brightness
		if st.Color != nil {
			infos[i].Color = st.Color.Hex()
		}
	}
	return infos, nil
}

type Status struct {
	Connected       bool
	LightsAvailable int
}

// Status reports the cached session state without contacting the vendor.
func (s *LightService) Status() Status {
	return Status{
		Connected:       s.registry.Connected(),
		LightsAvailable: s.registry.Count(),
	}
}

// Sync forces a fresh vendor login and device enumeration.
func (s *LightService) Sync(ctx context.Context) error {
	return s.registry.Sync(ctx)
}
