package orientation

import (
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Backend names accepted by New.
const (
	BackendEXIF     = "exif"
	BackendExiftool = "exiftool"
	BackendNone     = "none"
)

// EXIF orientation tag values.
const (
	Normal     = 1
	FlipH      = 2
	Rotate180  = 3
	FlipV      = 4
	Transpose  = 5
	Rotate90CW = 6
	Transverse = 7
	Rotate90CC = 8
)

// Corrector returns an image rotated and flipped according to the EXIF
// orientation stored in raw, the encoded bytes img was decoded from.
type Corrector interface {
	Orient(ctx context.Context, img image.Image, raw []byte) (image.Image, error)
}

// New returns the corrector for backend. Callers own the returned closer.
func New(backend string) (Corrector, func() error, error) {
	switch backend {
	case "", BackendEXIF:
		return NewEXIFCorrector(), noopClose, nil
	case BackendExiftool:
		c, err := NewExiftoolCorrector()
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	case BackendNone:
		return NopCorrector{}, noopClose, nil
	default:
		return nil, nil, fmt.Errorf("unknown orientation backend: %s", backend)
	}
}

// Apply transforms img for the given orientation value. Unknown values leave img as is.
func Apply(img image.Image, orientation int) image.Image {
	switch orientation {
	case FlipH:
		return imaging.FlipH(img)
	case Rotate180:
		return imaging.Rotate180(img)
	case FlipV:
		return imaging.FlipV(img)
	case Transpose:
		return imaging.Transpose(img)
	case Rotate90CW:
		return imaging.Rotate270(img)
	case Transverse:
		return imaging.Transverse(img)
	case Rotate90CC:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

// NopCorrector leaves images untouched.
type NopCorrector struct{}

// Orient returns img.
func (NopCorrector) Orient(ctx context.Context, img image.Image, raw []byte) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return img, nil
}

func noopClose() error { return nil }
