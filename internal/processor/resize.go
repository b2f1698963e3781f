package processor

import (
	"context"
	"errors"
	"math"
	"time"

	"image-normalizer-go/internal/engine"
	"image-normalizer-go/internal/imagefile"
	"image-normalizer-go/internal/logger"

	"github.com/sirupsen/logrus"
)

// AspectRatio controls how the requested box is reconciled with the source shape.
type AspectRatio struct {
	// KeepAspectRatio recomputes the target size from the source proportions.
	KeepAspectRatio bool
	// ForceMinDimensions scales to cover the box instead of fitting inside it.
	ForceMinDimensions bool
}

// ResizeOptions configure ResizeImage.
type ResizeOptions struct {
	// Width and Height are used when the call itself passes a zero dimension.
	Width       int
	Height      int
	AspectRatio AspectRatio
	// Filter is handed to the engine as is.
	Filter string
}

// FitDimensions scales srcW x srcH so it fits inside (or, with cover, covers)
// the width x height box while keeping the source proportions.
func FitDimensions(srcW, srcH, width, height int, cover bool) (int, int) {
	if srcW <= 0 || srcH <= 0 {
		return width, height
	}
	rw := float64(width) / float64(srcW)
	rh := float64(height) / float64(srcH)

	ratio := math.Min(rw, rh)
	if cover {
		ratio = math.Max(rw, rh)
	}
	return int(math.Round(float64(srcW) * ratio)), int(math.Round(float64(srcH) * ratio))
}

// ResizeImage returns a new file holding file resized to width x height.
// Failures are *FileError values naming file.
func (s *Service) ResizeImage(ctx context.Context, file imagefile.ImageFile, width, height int, opts *ResizeOptions) (imagefile.ImageFile, error) {
	log := logger.ForOperation(s.log, "resize", logrus.Fields{"file": file.Name})

	out, err := s.resize(ctx, file, width, height, opts)
	if err != nil {
		s.recordFailure(file, "resize", err)
		log.WithError(err).Warn("Resize failed")
		return imagefile.ImageFile{}, tagFile(err, file)
	}

	s.stats.IncrementFilesResized()
	s.stats.IncrementMimeType(file.MimeType)
	s.stats.AddBytes(file.Size(), out.Size())
	log.WithField("bytes", out.Size()).Info("Image resized")
	return out, nil
}

func (s *Service) resize(ctx context.Context, file imagefile.ImageFile, width, height int, opts *ResizeOptions) (imagefile.ImageFile, error) {
	var o ResizeOptions
	if opts != nil {
		o = *opts
	}
	if width == 0 {
		width = o.Width
	}
	if height == 0 {
		height = o.Height
	}

	src, err := s.load(ctx, file)
	if err != nil {
		return imagefile.ImageFile{}, err
	}

	if o.AspectRatio.KeepAspectRatio {
		b := src.Bounds()
		width, height = FitDimensions(b.Dx(), b.Dy(), width, height, o.AspectRatio.ForceMinDimensions)
	}

	canvas, err := s.engine.NewCanvas(width, height)
	if err != nil {
		if errors.Is(err, engine.ErrCanvasUnavailable) {
			return imagefile.ImageFile{}, newError(KindCanvasContextNotSupported, &file, err)
		}
		return imagefile.ImageFile{}, err
	}

	resized, err := s.engine.Resize(ctx, src, canvas, engine.Options{Filter: o.Filter})
	if err != nil {
		return imagefile.ImageFile{}, err
	}

	blob, err := s.engine.Encode(ctx, resized, file.MimeType, s.cfg.ResizeQuality)
	if err != nil {
		return imagefile.ImageFile{}, err
	}

	return imagefile.New(file.Name, file.MimeType, blob, time.Now()), nil
}
