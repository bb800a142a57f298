package overlay

import (
	"fmt"
	"strings"

	"github.com/esimov/shapeloc/utils"
)

// BlendMode mixes the source color with the backdrop color.
type BlendMode uint8

// The supported separable blend modes.
const (
	Normal BlendMode = iota
	Darken
	Lighten
	Multiply
	Screen
	Overlay
)

var blendNames = [...]string{
	Normal:   "normal",
	Darken:   "darken",
	Lighten:  "lighten",
	Multiply: "multiply",
	Screen:   "screen",
	Overlay:  "overlay",
}

func (m BlendMode) String() string {
	if int(m) < len(blendNames) {
		return blendNames[m]
	}
	return fmt.Sprintf("blend(%d)", uint8(m))
}

// ParseBlendMode returns the blend mode with the given name. An empty name means Normal.
func ParseBlendMode(name string) (BlendMode, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Normal, nil
	}
	for i, n := range blendNames {
		if n == name {
			return BlendMode(i), nil
		}
	}
	return Normal, fmt.Errorf("unsupported blend mode %q", name)
}

// blend combines a backdrop channel cb with a source channel cs, both in the 0-1 range.
func (m BlendMode) blend(cb, cs float64) float64 {
	switch m {
	case Darken:
		return utils.Min(cb, cs)
	case Lighten:
		return utils.Max(cb, cs)
	case Multiply:
		return cb * cs
	case Screen:
		return cb + cs - cb*cs
	case Overlay:
		if cb <= 0.5 {
			return 2 * cb * cs
		}
		return 1 - 2*(1-cb)*(1-cs)
	default:
		return cs
	}
}
