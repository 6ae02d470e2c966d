package tuya

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/lucasb-eyer/go-colorful"

	"lightctl/internal/domain"
)

const (
	codeSwitch     = "switch_led"
	codeBrightness = "bright_value_v2"
	codeColour     = "colour_data_v2"
	codeWorkMode   = "work_mode"
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
	if err := d.client.sendCommands(ctx, d.id, buildCommands(ins)); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrDeviceOperation, err)
	}
	return nil
}

func (d *device) State(ctx context.Context) (domain.DeviceState, error) {
	status, err := d.client.status(ctx, d.id)
	if err != nil {
		return domain.DeviceState{}, err
	}
	return parseStatus(status), nil
}

type hsv struct {
	H int `json:"h"`
	S int `json:"s"`
	V int `json:"v"`
}

func buildCommands(ins domain.Instruction) []command {
	switch ins.Kind {
	case domain.InstructionPower:
		return []command{{Code: codeSwitch, Value: ins.Power}}
	case domain.InstructionBrightness:
		// bright_value_v2 ranges 10-1000.
		return []command{
			{Code: codeWorkMode, Value: "white"},
			{Code: codeBrightness, Value: max(ins.Brightness*10, 10)},
		}
	case domain.InstructionColor:
		c := colorful.Color{
			R: float64(ins.Color.R) / 255,
			G: float64(ins.Color.G) / 255,
			B: float64(ins.Color.B) / 255,
		}
		h, s, v := c.Hsv()
		return []command{
			{Code: codeWorkMode, Value: "colour"},
			{Code: codeColour, Value: hsv{
				H: int(math.Round(h)),
				S: int(math.Round(s * 1000)),
				V: int(math.Round(v * 1000)),
			}},
		}
	default:
		return nil
	}
}

func parseStatus(status []command) domain.DeviceState {
	var st domain.DeviceState
	for _, s := range status {
		switch s.Code {
		case codeSwitch:
			if on, ok := s.Value.(bool); ok {
				st.Power = &on
			}
		case codeBrightness:
			if v, ok := s.Value.(float64); ok {
				level := int(math.Round(v / 10))
				st.Brightness = &level
			}
		case codeColour:
			// Reported as a JSON-encoded string.
			raw, ok := s.Value.(string)
			if !ok {
				continue
			}
			var c hsv
			if err := json.Unmarshal([]byte(raw), &c); err != nil {
				continue
			}
			r, g, b := colorful.Hsv(float64(c.H), float64(c.S)/1000, float64(c.V)/1000).RGB255()
			st.Color = &domain.RGB{R: r, G: g, B: b}
		}
	}
	return st
}
