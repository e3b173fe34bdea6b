// Package testpattern provides a synthetic video source that generates
// classic test images. It is the reference producer for pipeline bring-up
// and throughput testing: no hardware, deterministic content, full control
// over format and rate.
package testpattern

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jmylchreest/vidpipe/internal/pipeline/core"
)

// Pattern selects the generated image.
type Pattern int

// Available test patterns.
const (
	PatternSolid Pattern = iota
	PatternBars
	PatternCheckerboard
	PatternGradient
	PatternNoise
	PatternMovingBox
)

var patternNames = map[Pattern]string{
	PatternSolid:        "solid",
	PatternBars:         "bars",
	PatternCheckerboard: "checkerboard",
	PatternGradient:     "gradient",
	PatternNoise:        "noise",
	PatternMovingBox:    "moving_box",
}

// String returns the parameter-value name of the pattern.
func (p Pattern) String() string {
	if name, ok := patternNames[p]; ok {
		return name
	}
	return "unknown"
}

// ParsePattern maps a pattern parameter value to a Pattern.
func ParsePattern(name string) (Pattern, error) {
	for p, n := range patternNames {
		if n == name {
			return p, nil
		}
	}
	return PatternSolid, fmt.Errorf("pattern %q: %w", name, core.ErrInvalidArgument)
}

// parseColor accepts "#rrggbb" hex or "r,g,b" decimal.
func parseColor(s string) (r, g, b uint8, err error) {
	if strings.HasPrefix(s, "#") {
		if len(s) != 7 {
			return 0, 0, 0, fmt.Errorf("color %q: %w", s, core.ErrInvalidArgument)
		}
		var vals [3]uint8
		for i := 0; i < 3; i++ {
			v, perr := strconv.ParseUint(s[1+2*i:3+2*i], 16, 8)
			if perr != nil {
				return 0, 0, 0, fmt.Errorf("color %q: %w", s, core.ErrInvalidArgument)
			}
			vals[i] = uint8(v)
		}
		return vals[0], vals[1], vals[2], nil
	}

	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("color %q: %w", s, core.ErrInvalidArgument)
	}
	var vals [3]uint8
	for i, part := range parts {
		v, perr := strconv.ParseUint(strings.TrimSpace(part), 10, 8)
		if perr != nil {
			return 0, 0, 0, fmt.Errorf("color %q: %w", s, core.ErrInvalidArgument)
		}
		vals[i] = uint8(v)
	}
	return vals[0], vals[1], vals[2], nil
}

// rec601Luma converts an RGB triple to its BT.601 luma byte.
func rec601Luma(r, g, b uint8) uint8 {
	return uint8(0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b))
}
