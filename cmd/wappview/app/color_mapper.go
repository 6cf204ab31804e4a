package app

import (
	"fmt"
	"image/color"
	"math"
	"slices"
	"strings"
)

// ColorTheme names a gradient from the weakest to the strongest power
type ColorTheme string

const (
	DefaultTheme   ColorTheme = "default"   // Blue through cyan and yellow to red
	ClassicTheme   ColorTheme = "classic"   // Blue to red
	GrayscaleTheme ColorTheme = "grayscale" // Black to white
	ThermalTheme   ColorTheme = "thermal"   // Black to red to yellow to white
	MarineTheme    ColorTheme = "marine"    // Deep blue to cyan to white

	DefaultColorMapSize = 256
)

// paddingColor marks channels and spectra with no data
var paddingColor = color.RGBA{R: 96, G: 96, B: 96, A: 255}

var themes = map[ColorTheme]func(float64) color.RGBA{
	DefaultTheme:   defaultGradient,
	ClassicTheme:   classicGradient,
	GrayscaleTheme: grayscaleGradient,
	ThermalTheme:   thermalGradient,
	MarineTheme:    marineGradient,
}

// ParseColorTheme returns the theme named s, case insensitive
func ParseColorTheme(s string) (ColorTheme, error) {
	theme := ColorTheme(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := themes[theme]; !ok {
		return "", fmt.Errorf("unknown theme '%s', expected one of %v", s, ColorThemes())
	}
	return theme, nil
}

// ColorThemes lists the known themes in alphabetical order
func ColorThemes() []ColorTheme {
	names := make([]ColorTheme, 0, len(themes))
	for name := range themes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ColorMapper maps power to a precomputed gradient stretched over the power
// bounds. Power outside the bounds is clamped to the end colors.
type ColorMapper struct {
	colorMap      []color.RGBA
	theme         ColorTheme
	powerPerIndex float64
	boundsMin     float64
}

func NewColorMapper(theme ColorTheme, bounds PowerBounds) *ColorMapper {
	return NewColorMapperWithSize(theme, bounds, DefaultColorMapSize)
}

// NewColorMapperWithSize creates a mapper with size gradient steps. Unknown
// themes fall back to the default one.
func NewColorMapperWithSize(theme ColorTheme, bounds PowerBounds, size int) *ColorMapper {
	if size < 2 {
		size = DefaultColorMapSize
	}

	gradient, ok := themes[theme]
	if !ok {
		theme, gradient = DefaultTheme, themes[DefaultTheme]
	}

	cm := &ColorMapper{
		colorMap: make([]color.RGBA, size),
		theme:    theme,
	}
	for i := range cm.colorMap {
		cm.colorMap[i] = gradient(float64(i) / float64(size-1))
	}
	cm.UpdateBounds(bounds)
	return cm
}

// UpdateBounds stretches the gradient over new power bounds
func (cm *ColorMapper) UpdateBounds(bounds PowerBounds) {
	cm.boundsMin = bounds.Min
	cm.powerPerIndex = (bounds.Max - bounds.Min) / float64(len(cm.colorMap)-1)
}

// GetColor returns the color of power, nil power is padding
func (cm *ColorMapper) GetColor(power *float64) color.RGBA {
	if power == nil {
		return paddingColor
	}
	if cm.powerPerIndex <= 0 {
		return cm.colorMap[0]
	}

	index := int((*power - cm.boundsMin) / cm.powerPerIndex)
	switch {
	case index < 0:
		return cm.colorMap[0]
	case index >= len(cm.colorMap):
		return cm.colorMap[len(cm.colorMap)-1]
	}
	return cm.colorMap[index]
}

// Gradient returns the color at fraction f of the gradient, in [0, 1]
func (cm *ColorMapper) Gradient(f float64) color.RGBA {
	f = math.Max(0, math.Min(1, f))
	return cm.colorMap[int(math.Round(f*float64(len(cm.colorMap)-1)))]
}

func (cm *ColorMapper) Theme() ColorTheme {
	return cm.theme
}

func (cm *ColorMapper) Size() int {
	return len(cm.colorMap)
}

// HSV is a color in the hue, saturation and value space
type HSV struct {
	H float64 // Hue in degrees [0-360)
	S float64 // Saturation [0-1]
	V float64 // Value [0-1]
}

func (hsv HSV) RGB() color.RGBA {
	s := math.Max(0, math.Min(1, hsv.S))
	val := math.Max(0, math.Min(1, hsv.V))
	v := uint8(val * 255)
	if s == 0 {
		return color.RGBA{R: v, G: v, B: v, A: 255}
	}

	h := math.Mod(hsv.H, 360)
	if h < 0 {
		h += 360
	}
	h /= 60

	i := int(h)
	f := h - float64(i)
	p := uint8(val * (1 - s) * 255)
	q := uint8(val * (1 - s*f) * 255)
	t := uint8(val * (1 - s*(1-f)) * 255)

	switch i {
	case 0:
		return color.RGBA{R: v, G: t, B: p, A: 255}
	case 1:
		return color.RGBA{R: q, G: v, B: p, A: 255}
	case 2:
		return color.RGBA{R: p, G: v, B: t, A: 255}
	case 3:
		return color.RGBA{R: p, G: q, B: v, A: 255}
	case 4:
		return color.RGBA{R: t, G: p, B: v, A: 255}
	default:
		return color.RGBA{R: v, G: p, B: q, A: 255}
	}
}

func defaultGradient(f float64) color.RGBA {
	enhanced := math.Pow(f, 0.7)

	switch {
	case f < 0.25:
		return HSV{H: 240, S: 1, V: enhanced * 4}.RGB()
	case f < 0.5:
		return HSV{H: 240 - (f-0.25)*240, S: 1, V: enhanced * 1.5}.RGB()
	case f < 0.75:
		return HSV{H: 180 - (f-0.5)*4*120, S: 1, V: enhanced * 1.5}.RGB()
	default:
		return HSV{H: 60 - (f-0.75)*4*60, S: 1, V: 1}.RGB()
	}
}

func classicGradient(f float64) color.RGBA {
	return HSV{H: 240 - f*240, S: 0.9 + f*0.1, V: math.Pow(f, 0.7)}.RGB()
}

func grayscaleGradient(f float64) color.RGBA {
	v := uint8(math.Pow(f, 0.7) * 255)
	return color.RGBA{R: v, G: v, B: v, A: 255}
}

func thermalGradient(f float64) color.RGBA {
	ramp := func(x float64) uint8 {
		return uint8(math.Min(1, x*3) * 255)
	}

	switch {
	case f < 1.0/3:
		return color.RGBA{R: ramp(f), A: 255}
	case f < 2.0/3:
		return color.RGBA{R: 255, G: ramp(f - 1.0/3), A: 255}
	default:
		return color.RGBA{R: 255, G: 255, B: ramp(f - 2.0/3), A: 255}
	}
}

func marineGradient(f float64) color.RGBA {
	return HSV{H: 240 - f*60, S: 1 - f*0.8, V: 0.3 + math.Pow(f, 0.6)*0.7}.RGB()
}
