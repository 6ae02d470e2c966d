package domain

import "fmt"

type PowerAction string

const (
	ActionOn  PowerAction = "ON"
	ActionOff PowerAction = "OFF"
)

// ControlRequest is the body of POST /control. Nil fields are absent.
type ControlRequest struct {
	Name       string  `json:"name,omitempty"`
	Action     *string `json:"action,omitempty"`
	Brightness *int    `json:"brightness,omitempty"`
	Color      *string `json:"color,omitempty"`
}

type InstructionKind int

const (
	InstructionPower InstructionKind = iota
	InstructionBrightness
	InstructionColor
)

func (k InstructionKind) String() string {
	switch k {
	case InstructionPower:
		return "power"
	case InstructionBrightness:
		return "brightness"
	case InstructionColor:
		return "color"
	default:
		return "unknown"
	}
}

// Instruction is a single attribute write. Only the field matching Kind is meaningful.
type Instruction struct {
	Kind       InstructionKind
	Power      bool
	Brightness int
	Color      RGB
}

func PowerInstruction(on bool) Instruction {
	return Instruction{Kind: InstructionPower, Power: on}
}

func BrightnessInstruction(level int) Instruction {
	return Instruction{Kind: InstructionBrightness, Brightness: level}
}

func ColorInstruction(c RGB) Instruction {
	return Instruction{Kind: InstructionColor, Color: c}
}

func (i Instruction) String() string {
	switch i.Kind {
	case InstructionPower:
		return "power=" + PowerString(i.Power)
	case InstructionBrightness:
		return fmt.Sprintf("brightness=%d", i.Brightness)
	case InstructionColor:
		return "color=" + i.Color.Hex()
	default:
		return "unknown"
	}
}

type RGB struct {
	R, G, B uint8
}

// Hex returns the color as upper-case #RRGGBB.
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

func PowerString(on bool) string {
	if on {
		return string(ActionOn)
	}
	return string(ActionOff)
}
