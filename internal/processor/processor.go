// Package processor resizes and compresses image files one at a time and
// sequences those operations over ordered batches.
package processor

import (
	"context"
	"fmt"
	"image"

	"image-normalizer-go/internal/engine"
	"image-normalizer-go/internal/imagefile"
	"image-normalizer-go/internal/logger"
	"image-normalizer-go/internal/orientation"
	"image-normalizer-go/internal/statistics"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultMaxSteps bounds the quality search.
	DefaultMaxSteps = 20
	// DefaultQualityStep is the fraction of the current quality removed per step.
	DefaultQualityStep = 0.1
)

// Config holds the tunables of a Service.
type Config struct {
	MaxSteps           int
	QualityStep        float64
	ResizeQuality      float64
	Filter             string
	Limits             engine.Limits
	OrientationBackend string
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		MaxSteps:           DefaultMaxSteps,
		QualityStep:        DefaultQualityStep,
		ResizeQuality:      engine.DefaultQuality,
		Filter:             "lanczos",
		Limits:             engine.DefaultLimits(),
		OrientationBackend: orientation.BackendEXIF,
	}
}

// Option customizes a Service.
type Option func(*Service)

// WithEngine replaces the imaging engine.
func WithEngine(e engine.Engine) Option {
	return func(s *Service) { s.engine = e }
}

// WithCorrector replaces the orientation corrector selected by Config.OrientationBackend.
func WithCorrector(c orientation.Corrector) Option {
	return func(s *Service) { s.corrector = c }
}

// WithStatistics makes the service record counters into stats.
func WithStatistics(stats *statistics.Statistics) Option {
	return func(s *Service) { s.stats = stats }
}

// Service resizes and compresses images. The engine and corrector are created
// once and shared by every call; a Service is safe for concurrent use.
type Service struct {
	cfg            Config
	log            *logrus.Logger
	engine         engine.Engine
	corrector      orientation.Corrector
	closeCorrector func() error
	stats          *statistics.Statistics
}

// New returns a Service. Defaults are built only for collaborators no Option supplied.
func New(cfg Config, log *logrus.Logger, opts ...Option) (*Service, error) {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	if cfg.QualityStep <= 0 || cfg.QualityStep >= 1 {
		cfg.QualityStep = DefaultQualityStep
	}
	if cfg.ResizeQuality <= 0 || cfg.ResizeQuality > 1 {
		cfg.ResizeQuality = engine.DefaultQuality
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	s := &Service{
		cfg:            cfg,
		log:            log,
		closeCorrector: func() error { return nil },
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.engine == nil {
		e, err := engine.NewImagingEngine(cfg.Limits, cfg.Filter)
		if err != nil {
			return nil, fmt.Errorf("create engine: %w", err)
		}
		s.engine = e
	}
	if s.corrector == nil {
		c, closeFn, err := orientation.New(cfg.OrientationBackend)
		if err != nil {
			return nil, fmt.Errorf("create orientation corrector: %w", err)
		}
		s.corrector = c
		s.closeCorrector = closeFn
	}
	if s.stats == nil {
		s.stats = statistics.NewStatistics()
	}
	return s, nil
}

// Statistics returns the counters the service records into.
func (s *Service) Statistics() *statistics.Statistics {
	return s.stats
}

// Close releases the orientation backend.
func (s *Service) Close() error {
	return s.closeCorrector()
}

// ResizeImages resizes files in order. See Sequence for the stream contract.
func (s *Service) ResizeImages(ctx context.Context, files []imagefile.ImageFile, width, height int, opts *ResizeOptions) <-chan Result {
	return s.batch(ctx, "resize", files, func(ctx context.Context, f imagefile.ImageFile) (imagefile.ImageFile, error) {
		return s.ResizeImage(ctx, f, width, height, opts)
	})
}

// CompressImages compresses files in order. See Sequence for the stream contract.
func (s *Service) CompressImages(ctx context.Context, files []imagefile.ImageFile, targetSizeMB float64) <-chan Result {
	return s.batch(ctx, "compress", files, func(ctx context.Context, f imagefile.ImageFile) (imagefile.ImageFile, error) {
		return s.CompressImage(ctx, f, targetSizeMB)
	})
}

func (s *Service) batch(ctx context.Context, operation string, files []imagefile.ImageFile, op Operation) <-chan Result {
	log := logger.ForOperation(s.log, operation, logrus.Fields{"files": len(files)})
	log.Info("Starting batch")
	s.stats.IncrementBatchesStarted()
	s.stats.IncrementFilesReceived(len(files))

	return sequence(ctx, files, op, func(err error) {
		if err != nil {
			s.stats.IncrementBatchesFailed()
			if KindOf(err) == KindNoFilesReceived {
				s.stats.AddError("", operation, KindNoFilesReceived.String(), err.Error())
			}
			log.WithError(err).Warn("Batch failed")
			return
		}
		s.stats.IncrementBatchesCompleted()
		log.Info("Batch completed")
	})
}

// load decodes file and corrects its orientation.
func (s *Service) load(ctx context.Context, file imagefile.ImageFile) (image.Image, error) {
	img, err := s.engine.Decode(ctx, file.Data)
	if err != nil {
		return nil, err
	}
	return s.corrector.Orient(ctx, img, file.Data)
}

func (s *Service) recordFailure(file imagefile.ImageFile, operation string, err error) {
	s.stats.IncrementFilesFailed()
	s.stats.AddError(file.Name, operation, KindOf(err).String(), err.Error())
}
