// Package storage persists processed image files.
package storage

import (
	"context"
	"fmt"

	"image-normalizer-go/internal/config"
	"image-normalizer-go/internal/imagefile"

	"github.com/sirupsen/logrus"
)

// Sink stores a processed file and reports where it ended up.
type Sink interface {
	Save(ctx context.Context, file imagefile.ImageFile) (string, error)
}

// New returns the sink selected by cfg.Output.
func New(cfg *config.Config, log *logrus.Logger) (Sink, error) {
	switch cfg.Output.Storage {
	case config.StorageLocal:
		return NewLocalSink(cfg.Output.Directory, cfg.Output.DuplicateHandling, log)
	case config.StorageS3:
		return NewS3Sink(cfg.Output.S3, log)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Output.Storage)
	}
}
