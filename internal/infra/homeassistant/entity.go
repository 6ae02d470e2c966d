package homeassistant

import (
	"context"
	"fmt"
	"math"
	"strings"

	"lightctl/internal/domain"
)

type entity struct {
	client *Client
	id     string
	name   string
	class  string
}

func (e *entity) Name() string  { return e.name }
func (e *entity) ID() string    { return e.id }
func (e *entity) Class() string { return e.class }

func (e *entity) Write(ctx context.Context, ins domain.Instruction) error {
	service, data := buildServiceCall(e.id, ins)
	if err := e.client.callService(ctx, service, data); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrDeviceOperation, err)
	}
	return nil
}

func (e *entity) State(ctx context.Context) (domain.DeviceState, error) {
	ent, err := e.client.state(ctx, e.id)
	if err != nil {
		return domain.DeviceState{}, err
	}
	return parseEntity(ent), nil
}

func buildServiceCall(entityID string, ins domain.Instruction) (string, map[string]any) {
	data := map[string]any{"entity_id": entityID}

	entityDomain := "light"
	if parts := strings.SplitN(entityID, ".", 2); len(parts) == 2 {
		entityDomain = parts[0]
	}

	switch ins.Kind {
	case domain.InstructionPower:
		if ins.Power {
			return entityDomain + ".turn_on", data
		}
		return entityDomain + ".turn_off", data
	case domain.InstructionBrightness:
		data["brightness_pct"] = ins.Brightness
		return "light.turn_on", data
	case domain.InstructionColor:
		data["rgb_color"] = []int{int(ins.Color.R), int(ins.Color.G), int(ins.Color.B)}
		return "light.turn_on", data
	default:
		return entityDomain + ".turn_on", data
	}
}

func parseEntity(e *Entity) domain.DeviceState {
	var st domain.DeviceState

	switch e.State {
	case "on":
		on := true
		st.Power = &on
	case "off":
		off := false
		st.Power = &off
	}

	// brightness is reported on the 0-255 scale.
	if b, ok := e.Attributes["brightness"].(float64); ok {
		pct := int(math.Round(b * 100 / 255))
		st.Brightness = &pct
	}

	if rgb, ok := e.Attributes["rgb_color"].([]any); ok && len(rgb) == 3 {
		var ch [3]uint8
		valid := true
		for i, v := range rgb {
			f, ok := v.(float64)
			if !ok {
				valid = false
				break
			}
			ch[i] = uint8(f)
		}
		if valid {
			st.Color = &domain.RGB{R: ch[0], G: ch[1], B: ch[2]}
		}
	}

	return st
}
