package orientation

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"github.com/rwcarlsen/goexif/exif"
)

// EXIFCorrector reads the orientation tag with rwcarlsen/goexif.
type EXIFCorrector struct{}

// NewEXIFCorrector returns a new EXIFCorrector.
func NewEXIFCorrector() *EXIFCorrector {
	return &EXIFCorrector{}
}

// Orient applies the orientation found in raw. Payloads without EXIF are returned unchanged.
func (c *EXIFCorrector) Orient(ctx context.Context, img image.Image, raw []byte) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o, err := ReadOrientation(raw)
	if err != nil {
		return img, nil
	}
	return Apply(img, o), nil
}

// ReadOrientation returns the EXIF orientation value stored in raw.
func ReadOrientation(raw []byte) (int, error) {
	x, err := exif.Decode(bytes.NewReader(raw))
	if err != nil {
		return 0, fmt.Errorf("failed to decode EXIF: %w", err)
	}

	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 0, err
	}
	o, err := tag.Int(0)
	if err != nil {
		return 0, fmt.Errorf("invalid orientation tag: %w", err)
	}
	if o < Normal || o > Rotate90CC {
		return 0, fmt.Errorf("orientation out of range: %d", o)
	}
	return o, nil
}
