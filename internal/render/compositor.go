package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Compositor renders captions. It keeps no mutable state between calls, so
// one instance can serve concurrent renders.
type Compositor struct {
	spec    Spec
	assets  Assets
	encoder png.Encoder
}

// NewCompositor creates a Compositor for the given layout and resources.
func NewCompositor(spec Spec, assets Assets) *Compositor {
	return &Compositor{
		spec:    spec,
		assets:  assets,
		encoder: png.Encoder{CompressionLevel: png.DefaultCompression},
	}
}

// Layout is the geometry computed for one caption on the full-size canvas.
type Layout struct {
	Text        image.Rectangle
	Container   image.Rectangle
	InnerBorder image.Rectangle
	OuterBorder image.Rectangle
	// Baseline is where the first glyph's dot is placed.
	Baseline fixed.Point26_6
}

// Render draws caption and returns the encoded PNG.
func (c *Compositor) Render(caption string) ([]byte, error) {
	img, err := c.RenderImage(caption)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := c.encoder.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderImage draws caption and returns the scaled canvas.
func (c *Compositor) RenderImage(caption string) (*image.RGBA, error) {
	if c.assets == nil {
		return nil, fmt.Errorf("%w: no asset provider", ErrAssetUnavailable)
	}
	bg, err := c.assets.Background()
	if err != nil {
		return nil, err
	}
	face, err := c.newFace()
	if err != nil {
		return nil, err
	}
	defer face.Close()

	// copy the shared background so concurrent renders never share pixels
	b := bg.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(canvas, canvas.Bounds(), bg, b.Min, draw.Src)

	layout := c.Measure(face, caption)
	fill(canvas, layout.OuterBorder, c.spec.OuterColor)
	fill(canvas, layout.InnerBorder, c.spec.InnerColor)
	fill(canvas, layout.Container, c.spec.Accent)

	d := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(c.spec.TextColor),
		Face: face,
		Dot:  layout.Baseline,
	}
	d.DrawString(caption)

	return scale(canvas, c.spec.Scale), nil
}

// Measure computes the caption geometry centred on the spec origin.
func (c *Compositor) Measure(face font.Face, caption string) Layout {
	metrics := face.Metrics()
	width := fromFixed(font.MeasureString(face, caption))
	ascent := fromFixed(metrics.Ascent)
	height := ascent + fromFixed(metrics.Descent)

	ox, oy := float64(c.spec.Origin.X), float64(c.spec.Origin.Y)
	left, top := ox-width/2, oy-height/2

	text := rect(left, top, width, height)
	container := expand(left, top, width, height, c.spec.Padding)
	inner := expand(left, top, width, height, c.spec.Padding+c.spec.InnerBorder)
	outer := expand(left, top, width, height, c.spec.Padding+c.spec.InnerBorder+c.spec.OuterBorder)

	return Layout{
		Text:        text,
		Container:   container,
		InnerBorder: inner,
		OuterBorder: outer,
		Baseline:    fixed.Point26_6{X: toFixed(left), Y: toFixed(top + ascent)},
	}
}

// NewFace returns a fresh face for callers that want to measure text.
// Faces are not safe for concurrent use, so the caller owns it.
func (c *Compositor) NewFace() (font.Face, error) {
	return c.newFace()
}

func (c *Compositor) newFace() (font.Face, error) {
	f, err := c.assets.Font()
	if err != nil {
		return nil, err
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    c.spec.FontSize,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create face: %v", ErrAssetUnavailable, err)
	}
	return face, nil
}

func fill(dst draw.Image, r image.Rectangle, c color.RGBA) {
	draw.Draw(dst, r, image.NewUniform(c), image.Point{}, draw.Src)
}

func scale(src *image.RGBA, factor float64) *image.RGBA {
	if factor <= 0 || factor == 1 {
		return src
	}
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, int(float64(b.Dx())*factor), int(float64(b.Dy())*factor)))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

func rect(x, y, w, h float64) image.Rectangle {
	return image.Rect(
		int(math.Floor(x)), int(math.Floor(y)),
		int(math.Ceil(x+w)), int(math.Ceil(y+h)),
	)
}

func expand(x, y, w, h, by float64) image.Rectangle {
	return rect(x-by, y-by, w+2*by, h+2*by)
}

func fromFixed(v fixed.Int26_6) float64 {
	return float64(v) / 64
}

func toFixed(v float64) fixed.Int26_6 {
	return fixed.Int26_6(math.Round(v * 64))
}
