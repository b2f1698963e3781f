package engine

import (
	"context"
	"errors"
	"image"
)

// DefaultQuality is the encode quality used when a caller has no budget to meet.
const DefaultQuality = 0.92

var (
	// ErrCanvasUnavailable is returned when a destination pixel buffer cannot be allocated.
	ErrCanvasUnavailable = errors.New("canvas unavailable")
	// ErrUnsupportedMimeType is returned when no encoder exists for the requested type.
	ErrUnsupportedMimeType = errors.New("unsupported mime type")
)

// Options are passed through to the resampler untouched by callers.
type Options struct {
	// Filter names the resampling filter, e.g. "lanczos". Empty selects the engine default.
	Filter string
}

// Engine decodes, resamples and encodes pixel buffers.
// Implementations must be safe for concurrent use.
type Engine interface {
	// Decode turns an encoded payload into pixels.
	Decode(ctx context.Context, data []byte) (image.Image, error)
	// NewCanvas allocates a destination buffer of the given size.
	NewCanvas(width, height int) (*image.NRGBA, error)
	// Resize resamples src into dst and returns dst.
	Resize(ctx context.Context, src image.Image, dst *image.NRGBA, opts Options) (*image.NRGBA, error)
	// Encode encodes img as mimeType. Quality is in (0,1]; lossless formats ignore it.
	Encode(ctx context.Context, img image.Image, mimeType string, quality float64) ([]byte, error)
}
