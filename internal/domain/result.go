package domain

import "time"

type DeviceResult struct {
	Name       string  `json:"name"`
	DeviceID   string  `json:"device_id"`
	Success    bool    `json:"success"`
	Message    string  `json:"message"`
	PowerState *string `json:"power_state,omitempty"`
	Brightness *int    `json:"brightness,omitempty"`
	Color      *string `json:"color,omitempty"`

	// Seq is the dispatch position of the device within its request.
	Seq int `json:"-"`
	// Err is why the device failed, nil on success.
	Err error `json:"-"`
}

// Apply records a value that was read from or written to the device.
func (r *DeviceResult) Apply(ins Instruction) {
	switch ins.Kind {
	case InstructionPower:
		s := PowerString(ins.Power)
		r.PowerState = &s
	case InstructionBrightness:
		b := ins.Brightness
		r.Brightness = &b
	case InstructionColor:
		c := ins.Color.Hex()
		r.Color = &c
	}
}

// Prefill copies known state values into the result.
func (r *DeviceResult) Prefill(state DeviceState) {
	if state.Power != nil {
		r.Apply(PowerInstruction(*state.Power))
	}
	if state.Brightness != nil {
		r.Apply(BrightnessInstruction(*state.Brightness))
	}
	if state.Color != nil {
		r.Apply(ColorInstruction(*state.Color))
	}
}

type ControlResponse struct {
	Success   bool           `json:"success"`
	Message   string         `json:"message"`
	Results   []DeviceResult `json:"results"`
	Timestamp float64        `json:"timestamp"`
}

// Timestamp converts t to fractional seconds since the epoch.
func Timestamp(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// ControlEvent is published to notifiers after a control request was dispatched.
type ControlEvent struct {
	ID       string          `json:"id"`
	Request  ControlRequest  `json:"request"`
	Response ControlResponse `json:"response"`
}
