package engine

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"math"
	"strings"

	"github.com/disintegration/imaging"
)

const (
	// DefaultMaxDimension caps canvas width and height.
	DefaultMaxDimension = 32768
	// DefaultMaxPixels caps the canvas pixel count (64 MP, 256 MB of NRGBA).
	DefaultMaxPixels int64 = 64 * 1024 * 1024
)

var filters = map[string]imaging.ResampleFilter{
	"nearest":    imaging.NearestNeighbor,
	"box":        imaging.Box,
	"linear":     imaging.Linear,
	"hermite":    imaging.Hermite,
	"mitchell":   imaging.MitchellNetravali,
	"catmullrom": imaging.CatmullRom,
	"bspline":    imaging.BSpline,
	"gaussian":   imaging.Gaussian,
	"bartlett":   imaging.Bartlett,
	"lanczos":    imaging.Lanczos,
	"hann":       imaging.Hann,
	"hamming":    imaging.Hamming,
	"blackman":   imaging.Blackman,
	"welch":      imaging.Welch,
	"cosine":     imaging.Cosine,
}

var formats = map[string]imaging.Format{
	"image/jpeg": imaging.JPEG,
	"image/jpg":  imaging.JPEG,
	"image/png":  imaging.PNG,
	"image/gif":  imaging.GIF,
	"image/bmp":  imaging.BMP,
	"image/tiff": imaging.TIFF,
}

// Limits bound the canvases an engine will allocate.
type Limits struct {
	MaxDimension int
	MaxPixels    int64
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxDimension: DefaultMaxDimension,
		MaxPixels:    DefaultMaxPixels,
	}
}

// ImagingEngine implements Engine on top of disintegration/imaging.
type ImagingEngine struct {
	limits        Limits
	defaultFilter imaging.ResampleFilter
}

// NewImagingEngine returns an engine using defaultFilter when a call names none.
func NewImagingEngine(limits Limits, defaultFilter string) (*ImagingEngine, error) {
	filter, err := ParseFilter(defaultFilter)
	if err != nil {
		return nil, err
	}
	if limits.MaxDimension <= 0 {
		limits.MaxDimension = DefaultMaxDimension
	}
	if limits.MaxPixels <= 0 {
		limits.MaxPixels = DefaultMaxPixels
	}
	return &ImagingEngine{
		limits:        limits,
		defaultFilter: filter,
	}, nil
}

// ParseFilter resolves a filter name. The empty name selects Lanczos.
func ParseFilter(name string) (imaging.ResampleFilter, error) {
	if name == "" {
		return imaging.Lanczos, nil
	}
	filter, ok := filters[strings.ToLower(name)]
	if !ok {
		return imaging.ResampleFilter{}, fmt.Errorf("unknown resample filter: %s", name)
	}
	return filter, nil
}

// Decode decodes data without applying EXIF orientation.
func (e *ImagingEngine) Decode(ctx context.Context, data []byte) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// NewCanvas allocates a width x height buffer within the engine limits.
func (e *ImagingEngine) NewCanvas(width, height int) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: invalid size %dx%d", ErrCanvasUnavailable, width, height)
	}
	if width > e.limits.MaxDimension || height > e.limits.MaxDimension {
		return nil, fmt.Errorf("%w: dimension exceeds limit (%dx%d > %d)",
			ErrCanvasUnavailable, width, height, e.limits.MaxDimension)
	}
	if pixels := int64(width) * int64(height); pixels > e.limits.MaxPixels {
		return nil, fmt.Errorf("%w: pixel count %d exceeds limit %d",
			ErrCanvasUnavailable, pixels, e.limits.MaxPixels)
	}
	return image.NewNRGBA(image.Rect(0, 0, width, height)), nil
}

// Resize resamples src to the size of dst.
func (e *ImagingEngine) Resize(ctx context.Context, src image.Image, dst *image.NRGBA, opts Options) (*image.NRGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if dst == nil {
		return nil, ErrCanvasUnavailable
	}

	filter := e.defaultFilter
	if opts.Filter != "" {
		f, err := ParseFilter(opts.Filter)
		if err != nil {
			return nil, err
		}
		filter = f
	}

	bounds := dst.Bounds()
	resized := imaging.Resize(src, bounds.Dx(), bounds.Dy(), filter)
	draw.Draw(dst, bounds, resized, image.Point{}, draw.Src)
	return dst, nil
}

// Encode encodes img. JPEG quality is derived from quality; other formats ignore it.
func (e *ImagingEngine) Encode(ctx context.Context, img image.Image, mimeType string, quality float64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	format, ok := formats[strings.ToLower(mimeType)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMimeType, mimeType)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, imaging.JPEGQuality(jpegQuality(quality))); err != nil {
		return nil, fmt.Errorf("encode %s: %w", mimeType, err)
	}
	return buf.Bytes(), nil
}

func jpegQuality(quality float64) int {
	if quality <= 0 {
		quality = DefaultQuality
	}
	q := int(math.Round(quality * 100))
	return max(1, min(q, 100))
}
