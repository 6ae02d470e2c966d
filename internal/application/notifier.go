package application

import (
	"context"
	"errors"

	"lightctl/internal/domain"
)

type Notifier interface {
	Notify(ctx context.Context, event domain.ControlEvent) error
}

type NoopNotifier struct{}

func (n *NoopNotifier) Notify(_ context.Context, _ domain.ControlEvent) error {
	return nil
}

// MultiNotifier delivers each event to every notifier and joins their errors.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, event domain.ControlEvent) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
