package application

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lucasb-eyer/go-colorful"

	"lightctl/internal/domain"
)

var hexColorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// Translate converts a control request into attribute writes ordered power,
// brightness, color. Only present fields produce instructions.
func Translate(req domain.ControlRequest) ([]domain.Instruction, error) {
	var out []domain.Instruction

	if req.Action != nil && *req.Action != "" {
		switch domain.PowerAction(strings.ToUpper(strings.TrimSpace(*req.Action))) {
		case domain.ActionOn:
			out = append(out, domain.PowerInstruction(true))
		case domain.ActionOff:
			out = append(out, domain.PowerInstruction(false))
		default:
			return nil, fmt.Errorf("%w: got %q", domain.ErrInvalidAction, *req.Action)
		}
	}

	if req.Brightness != nil {
		level := *req.Brightness
		if level < 0 || level > 100 {
			return nil, fmt.Errorf("%w: got %d", domain.ErrInvalidBrightness, level)
		}
		out = append(out, domain.BrightnessInstruction(level))
	}

	if req.Color != nil && *req.Color != "" {
		rgb, err := ParseColor(*req.Color)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.ColorInstruction(rgb))
	}

	if len(out) == 0 {
		return nil, domain.ErrNoControlFields
	}

	return out, nil
}

// ParseColor parses a #RRGGBB string, case-insensitive.
func ParseColor(s string) (domain.RGB, error) {
	if !hexColorPattern.MatchString(s) {
		return domain.RGB{}, fmt.Errorf("%w: got %q", domain.ErrInvalidColorFormat, s)
	}
	c, err := colorful.Hex(strings.ToLower(s))
	if err != nil {
		return domain.RGB{}, fmt.Errorf("%w: %v", domain.ErrInvalidColorFormat, err)
	}
	r, g, b := c.RGB255()
	return domain.RGB{R: r, G: g, B: b}, nil
}
