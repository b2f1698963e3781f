package orientation

import (
	"context"
	"fmt"
	"image"
	"os"
	"strings"
	"sync"

	"github.com/barasher/go-exiftool"
)

// exiftool prints orientation through its print conversion table.
var exiftoolOrientations = map[string]int{
	"horizontal (normal)":                 Normal,
	"mirror horizontal":                   FlipH,
	"rotate 180":                          Rotate180,
	"mirror vertical":                     FlipV,
	"mirror horizontal and rotate 270 cw": Transpose,
	"rotate 90 cw":                        Rotate90CW,
	"mirror horizontal and rotate 90 cw":  Transverse,
	"rotate 270 cw":                       Rotate90CC,
}

// ExiftoolCorrector reads the orientation through a long-running exiftool process.
// It understands every container exiftool does, including HEIC and RAW formats.
type ExiftoolCorrector struct {
	et    *exiftool.Exiftool
	mutex sync.Mutex
}

// NewExiftoolCorrector starts exiftool. The binary must be on PATH.
func NewExiftoolCorrector() (*ExiftoolCorrector, error) {
	et, err := exiftool.NewExiftool()
	if err != nil {
		return nil, fmt.Errorf("start exiftool: %w", err)
	}
	return &ExiftoolCorrector{et: et}, nil
}

// Orient applies the orientation reported by exiftool. The payload is spooled to a
// temporary file which is removed before Orient returns.
func (c *ExiftoolCorrector) Orient(ctx context.Context, img image.Image, raw []byte) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp("", "image-normalizer-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close temp file: %w", err)
	}

	c.mutex.Lock()
	files := c.et.ExtractMetadata(tmp.Name())
	c.mutex.Unlock()

	if len(files) == 0 || files[0].Err != nil {
		return img, nil
	}
	o, ok := parseExiftoolOrientation(files[0].Fields["Orientation"])
	if !ok {
		return img, nil
	}
	return Apply(img, o), nil
}

// Close stops the exiftool process.
func (c *ExiftoolCorrector) Close() error {
	return c.et.Close()
}

func parseExiftoolOrientation(v interface{}) (int, bool) {
	switch val := v.(type) {
	case float64:
		o := int(val)
		return o, o >= Normal && o <= Rotate90CC
	case string:
		o, ok := exiftoolOrientations[strings.ToLower(strings.TrimSpace(val))]
		return o, ok
	default:
		return 0, false
	}
}
