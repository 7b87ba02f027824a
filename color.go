package leafprefs

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// Color is an RGBA color whose channels are normalized to [0,1].
type Color struct {
	Red   float64 `json:"red"`
	Green float64 `json:"green"`
	Blue  float64 `json:"blue"`
	Alpha float64 `json:"alpha"`
}

// White is the fallback for color payloads that lack a channel.
var White = Color{Red: 1, Green: 1, Blue: 1, Alpha: 1}

// NewColor builds a Color, clamping every channel into [0,1].
func NewColor(red, green, blue, alpha float64) Color {
	return Color{
		Red:   clampUnit(red),
		Green: clampUnit(green),
		Blue:  clampUnit(blue),
		Alpha: clampUnit(alpha),
	}
}

// ColorFromHex parses "#rrggbb" or "#rrggbbaa".
func ColorFromHex(s string) (Color, error) {
	s = strings.TrimSpace(s)
	alpha := 1.0
	if len(s) == 9 && strings.HasPrefix(s, "#") {
		a, err := strconv.ParseUint(s[7:], 16, 8)
		if err != nil {
			return Color{}, fmt.Errorf("%w: bad alpha in %q", ErrNondecodable, s)
		}
		alpha = float64(a) / 255
		s = s[:7]
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return Color{}, fmt.Errorf("%w: %v", ErrNondecodable, err)
	}
	return NewColor(c.R, c.G, c.B, alpha), nil
}

// Hex renders the color as "#rrggbb", or "#rrggbbaa" when it is not opaque.
func (c Color) Hex() string {
	hex := colorful.Color{R: c.Red, G: c.Green, B: c.Blue}.Clamped().Hex()
	if c.Alpha >= 1 {
		return hex
	}
	return fmt.Sprintf("%s%02x", hex, uint8(clampUnit(c.Alpha)*255+0.5))
}

// colorWire mirrors Color with optional channels so a partial object can be detected.
type colorWire struct {
	Red   *float64 `json:"red"`
	Green *float64 `json:"green"`
	Blue  *float64 `json:"blue"`
	Alpha *float64 `json:"alpha"`
}

// UnmarshalJSON decodes a color object; an object missing any channel yields White.
func (c *Color) UnmarshalJSON(data []byte) error {
	var w colorWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Red == nil || w.Green == nil || w.Blue == nil || w.Alpha == nil {
		*c = White
		return nil
	}
	*c = NewColor(*w.Red, *w.Green, *w.Blue, *w.Alpha)
	return nil
}

func clampUnit(f float64) float64 {
	switch {
	case math.IsNaN(f), f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
