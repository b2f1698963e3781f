package storage

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"time"

	"image-normalizer-go/internal/config"
	"image-normalizer-go/internal/imagefile"
	"image-normalizer-go/internal/logger"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/sirupsen/logrus"
)

// S3Sink uploads files to a bucket under an optional key prefix.
type S3Sink struct {
	uploader s3manageriface.UploaderAPI
	bucket   string
	prefix   string
	log      *logrus.Logger
}

// NewS3Sink creates an uploader from the default AWS credential chain.
func NewS3Sink(cfg config.S3Config, log *logrus.Logger) (*S3Sink, error) {
	awsCfg := aws.NewConfig()
	if cfg.Region != "" {
		awsCfg = awsCfg.WithRegion(cfg.Region)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}
	return NewS3SinkWithUploader(s3manager.NewUploader(sess), cfg.Bucket, cfg.Prefix, log), nil
}

// NewS3SinkWithUploader wraps an existing uploader.
func NewS3SinkWithUploader(uploader s3manageriface.UploaderAPI, bucket, prefix string, log *logrus.Logger) *S3Sink {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &S3Sink{uploader: uploader, bucket: bucket, prefix: prefix, log: log}
}

// Key returns the object key used for a file name.
func (s *S3Sink) Key(name string) string {
	return path.Join(s.prefix, filepath.Base(name))
}

// Save uploads file and returns the object location.
func (s *S3Sink) Save(ctx context.Context, file imagefile.ImageFile) (string, error) {
	key := s.Key(file.Name)
	input := &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   file.Reader(),
	}
	if file.MimeType != "" {
		input.ContentType = aws.String(file.MimeType)
	}
	if !file.LastModified.IsZero() {
		input.Metadata = map[string]*string{
			"last-modified": aws.String(file.LastModified.UTC().Format(time.RFC3339)),
		}
	}

	result, err := s.uploader.UploadWithContext(ctx, input)
	if err != nil {
		return "", fmt.Errorf("can't upload %s: %w", key, err)
	}

	logger.ForSink(s.log, config.StorageS3, file.Name).WithField("location", result.Location).Debug("Uploaded file")
	return result.Location, nil
}
