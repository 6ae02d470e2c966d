package application

import (
	"context"

	"lightctl/internal/domain"
)

// Vendor is a cloud account holding devices. Connect authenticates with the
// configured credentials and returns the account's device handles.
type Vendor interface {
	Name() string
	Connect(ctx context.Context) ([]Device, error)
}

// Device is a handle owned by the vendor session that produced it.
// Both Write and State perform network I/O and may block.
type Device interface {
	Name() string
	ID() string
	Class() string
	Write(ctx context.Context, ins domain.Instruction) error
	State(ctx context.Context) (domain.DeviceState, error)
}
