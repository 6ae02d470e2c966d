package hubspace

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"lightctl/internal/application"
	"lightctl/internal/domain"
)

type device struct {
	client *Client
	id     string
	name   string
	class  string
}

func (d *device) Name() string  { return d.name }
func (d *device) ID() string    { return d.id }
func (d *device) Class() string { return d.class }

func (d *device) Write(ctx context.Context, ins domain.Instruction) error {
	attrID, value, err := encode(ins)
	if err != nil {
		return err
	}
	if err := d.client.writeAttribute(ctx, d.id, attrID, value); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrDeviceOperation, err)
	}
	return nil
}

func (d *device) State(ctx context.Context) (domain.DeviceState, error) {
	attrs, err := d.client.attributes(ctx, d.id)
	if err != nil {
		return domain.DeviceState{}, err
	}
	return decode(attrs), nil
}

// encode maps an instruction to an attribute write. Values are hex strings.
func encode(ins domain.Instruction) (int, string, error) {
	switch ins.Kind {
	case domain.InstructionPower:
		if ins.Power {
			return attrPower, "01", nil
		}
		return attrPower, "00", nil
	case domain.InstructionBrightness:
		return attrBrightness, fmt.Sprintf("%02X", ins.Brightness), nil
	case domain.InstructionColor:
		return attrColor, strings.TrimPrefix(ins.Color.Hex(), "#"), nil
	default:
		return 0, "", fmt.Errorf("%w: unsupported instruction %s", domain.ErrDeviceOperation, ins.Kind)
	}
}

func decode(attrs []attribute) domain.DeviceState {
	var st domain.DeviceState
	for _, a := range attrs {
		switch a.ID {
		case attrPower:
			on := a.Value == "1" || a.Value == "01"
			st.Power = &on
		case attrBrightness:
			// Read back in the same two-digit hex that encode writes, so a
			// written level round-trips. Decimal parsing would turn "4B" into
			// an error and "32" (50%) into 32.
			if v, err := strconv.ParseUint(a.Value, 16, 8); err == nil {
				level := int(v)
				st.Brightness = &level
			}
		case attrColor:
			if rgb, err := application.ParseColor("#" + strings.TrimPrefix(a.Value, "#")); err == nil {
				st.Color = &rgb
			}
		}
	}
	return st
}
