package domain

import (
	"fmt"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// NoDataColor fills features without a value.
const NoDataColor = "#808080"

// Palette is an ordered list of hex colors, one per bucket. Index 0 is always
// NoDataColor.
type Palette []string

// NewPalette validates an explicit color list. The first color must be the
// neutral no-data gray and every entry must be a #rrggbb hex color.
func NewPalette(colors []string) (Palette, error) {
	if len(colors) < 2 {
		return nil, fmt.Errorf("%w: palette needs the no-data color and at least one class color", ErrConfig)
	}
	if !strings.EqualFold(colors[0], NoDataColor) {
		return nil, fmt.Errorf("%w: palette must start with %s, got %q", ErrConfig, NoDataColor, colors[0])
	}
	p := make(Palette, len(colors))
	for i, c := range colors {
		if _, err := colorful.Hex(c); err != nil {
			return nil, fmt.Errorf("%w: palette color %d %q: %v", ErrConfig, i, c, err)
		}
		p[i] = strings.ToLower(c)
	}
	return p, nil
}

// RampPalette interpolates n class colors from -> to in CIE-Lab and prepends
// the no-data gray.
func RampPalette(from, to string, n int) (Palette, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: ramp needs at least one class, got %d", ErrConfig, n)
	}
	start, err := colorful.Hex(from)
	if err != nil {
		return nil, fmt.Errorf("%w: ramp start %q: %v", ErrConfig, from, err)
	}
	end, err := colorful.Hex(to)
	if err != nil {
		return nil, fmt.Errorf("%w: ramp end %q: %v", ErrConfig, to, err)
	}
	p := make(Palette, 0, n+1)
	p = append(p, NoDataColor)
	for i := 0; i < n; i++ {
		t := 0.0
		if n > 1 {
			t = float64(i) / float64(n-1)
		}
		p = append(p, start.BlendLab(end, t).Clamped().Hex())
	}
	return p, nil
}

// Classes returns the number of data classes (everything but the no-data color).
func (p Palette) Classes() int {
	if len(p) == 0 {
		return 0
	}
	return len(p) - 1
}
