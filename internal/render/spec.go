// Package render draws captions onto the background image.
package render

import (
	"image"
	"image/color"
)

// Spec fixes where and how the caption box is drawn. It is read-only after
// construction.
type Spec struct {
	// Origin is the centre of the caption box on the full-size canvas.
	Origin      image.Point
	Padding     float64
	InnerBorder float64
	OuterBorder float64
	FontSize    float64
	// Scale is applied to the whole canvas before encoding.
	Scale float64

	Accent     color.RGBA
	InnerColor color.RGBA
	OuterColor color.RGBA
	TextColor  color.RGBA
}

// DefaultSpec returns the layout used for every published image.
func DefaultSpec() Spec {
	return Spec{
		Origin:      image.Pt(824, 165),
		Padding:     15,
		InnerBorder: 3,
		OuterBorder: 5,
		FontSize:    26,
		Scale:       0.5,
		Accent:      color.RGBA{R: 1, G: 215, B: 253, A: 255},
		InnerColor:  color.RGBA{A: 255},
		OuterColor:  color.RGBA{R: 255, G: 255, B: 255, A: 255},
		TextColor:   color.RGBA{A: 255},
	}
}
