package render

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
)

// ErrAssetUnavailable is returned when the background or font cannot be
// provided. It indicates a deployment problem and is not retried.
var ErrAssetUnavailable = errors.New("render asset unavailable")

// Assets supplies the immutable resources a render needs. Implementations
// must be safe for concurrent use.
type Assets interface {
	Background() (image.Image, error)
	Font() (*opentype.Font, error)
}

// StaticAssets holds resources decoded once at startup.
type StaticAssets struct {
	background image.Image
	font       *opentype.Font
}

// NewStaticAssets wraps already-decoded resources. A nil font selects Go Bold.
func NewStaticAssets(background image.Image, f *opentype.Font) (*StaticAssets, error) {
	if f == nil {
		var err error
		f, err = opentype.Parse(gobold.TTF)
		if err != nil {
			return nil, fmt.Errorf("%w: parse default font: %v", ErrAssetUnavailable, err)
		}
	}
	return &StaticAssets{background: background, font: f}, nil
}

// LoadAssets decodes the background image and font file. An empty fontPath
// selects the built-in Go Bold face.
func LoadAssets(backgroundPath, fontPath string) (*StaticAssets, error) {
	bg, err := loadImage(backgroundPath)
	if err != nil {
		return nil, err
	}

	var f *opentype.Font
	if fontPath != "" {
		data, err := os.ReadFile(fontPath)
		if err != nil {
			return nil, fmt.Errorf("%w: read font: %v", ErrAssetUnavailable, err)
		}
		f, err = opentype.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%w: parse font %s: %v", ErrAssetUnavailable, fontPath, err)
		}
	}
	return NewStaticAssets(bg, f)
}

func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open background: %v", ErrAssetUnavailable, err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("%w: decode background %s: %v", ErrAssetUnavailable, path, err)
	}
	return img, nil
}

func (a *StaticAssets) Background() (image.Image, error) {
	if a == nil || a.background == nil {
		return nil, fmt.Errorf("%w: no background loaded", ErrAssetUnavailable)
	}
	return a.background, nil
}

func (a *StaticAssets) Font() (*opentype.Font, error) {
	if a == nil || a.font == nil {
		return nil, fmt.Errorf("%w: no font loaded", ErrAssetUnavailable)
	}
	return a.font, nil
}
