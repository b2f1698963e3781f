package processor

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
	"sync"
	"testing"
	"time"

	"image-normalizer-go/internal/engine"
	"image-normalizer-go/internal/imagefile"
	"image-normalizer-go/internal/orientation"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

// fakeEngine decodes every payload to a srcW x srcH image and encodes to a
// blob whose length is chosen by size.
type fakeEngine struct {
	srcW, srcH int
	size       func(quality float64) int

	decodeErr error
	resizeErr error
	encodeErr error

	mu        sync.Mutex
	qualities []float64
	canvases  []image.Rectangle
	filters   []string
}

func (f *fakeEngine) Decode(ctx context.Context, data []byte) (image.Image, error) {
	if f.decodeErr != nil {
		return nil, f.decodeErr
	}
	return image.NewNRGBA(image.Rect(0, 0, f.srcW, f.srcH)), nil
}

func (f *fakeEngine) NewCanvas(width, height int) (*image.NRGBA, error) {
	f.mu.Lock()
	f.canvases = append(f.canvases, image.Rect(0, 0, width, height))
	f.mu.Unlock()
	if width <= 0 || height <= 0 {
		return nil, engine.ErrCanvasUnavailable
	}
	return image.NewNRGBA(image.Rect(0, 0, width, height)), nil
}

func (f *fakeEngine) Resize(ctx context.Context, src image.Image, dst *image.NRGBA, opts engine.Options) (*image.NRGBA, error) {
	f.mu.Lock()
	f.filters = append(f.filters, opts.Filter)
	f.mu.Unlock()
	if f.resizeErr != nil {
		return nil, f.resizeErr
	}
	return dst, nil
}

func (f *fakeEngine) Encode(ctx context.Context, img image.Image, mimeType string, quality float64) ([]byte, error) {
	f.mu.Lock()
	f.qualities = append(f.qualities, quality)
	f.mu.Unlock()
	if f.encodeErr != nil {
		return nil, f.encodeErr
	}
	n := 16
	if f.size != nil {
		n = f.size(quality)
	}
	return make([]byte, n), nil
}

func (f *fakeEngine) encodeCalls() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]float64(nil), f.qualities...)
}

func newFakeService(t *testing.T, e engine.Engine) (*Service, *test.Hook) {
	t.Helper()
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	s, err := New(DefaultConfig(), log, WithEngine(e), WithCorrector(orientation.NopCorrector{}))
	require.NoError(t, err)
	return s, hook
}

func newRealService(t *testing.T) *Service {
	t.Helper()
	s, err := New(DefaultConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func fileOfSize(name string, bytes int) imagefile.ImageFile {
	return imagefile.New(name, "image/jpeg", make([]byte, bytes), time.Unix(0, 0))
}

func pngFile(t *testing.T, name string, w, h int) imagefile.ImageFile {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return imagefile.New(name, "image/png", buf.Bytes(), time.Unix(0, 0))
}

// noisyJPEG is hard to compress, so quality has a large effect on its size.
func noisyJPEG(t *testing.T, name string, w, h int) imagefile.ImageFile {
	t.Helper()
	rng := rand.New(rand.NewSource(1))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	rng.Read(img.Pix)
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100}))
	return imagefile.New(name, "image/jpeg", buf.Bytes(), time.Unix(0, 0))
}
