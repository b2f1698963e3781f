package config

import (
	"os"
	"path/filepath"
	"testing"

	"image-normalizer-go/internal/processor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, processor.DefaultMaxSteps, cfg.Processing.MaxSteps)
	assert.Equal(t, processor.DefaultQualityStep, cfg.Processing.QualityStep)
	assert.Equal(t, StorageLocal, cfg.Output.Storage)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfig(t, `
supported_extensions: [JPG, "png"]
processing:
  max_steps: 5
  quality_step: 0.25
  filter: Box
  orientation: none
output:
  storage: s3
  s3:
    bucket: photos
    region: eu-west-1
    prefix: normalized/
server:
  port: 9090
logging:
  level: DEBUG
  format: text
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, []string{".jpg", ".png"}, cfg.SupportedExtensions)
	assert.Equal(t, 5, cfg.Processing.MaxSteps)
	assert.Equal(t, 0.25, cfg.Processing.QualityStep)
	assert.Equal(t, "box", cfg.Processing.Filter)
	assert.Equal(t, "none", cfg.Processing.Orientation)
	assert.Equal(t, StorageS3, cfg.Output.Storage)
	assert.Equal(t, "photos", cfg.Output.S3.Bucket)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Keys missing from the file keep their defaults.
	assert.Equal(t, DefaultConfig().Processing.DefaultQuality, cfg.Processing.DefaultQuality)
	assert.Equal(t, DefaultConfig().Processing.MaxPixels, cfg.Processing.MaxPixels)
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")
	t.Setenv("IMAGE_NORMALIZER_SERVER_PORT", "7070")
	t.Setenv("IMAGE_NORMALIZER_PROCESSING_MAX_STEPS", "3")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Processing.MaxSteps)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "processing: [not, a, map"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "processing:\n  filter: sharpest\n"))
	assert.ErrorContains(t, err, "config validation failed")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"quality step of one", func(c *Config) { c.Processing.QualityStep = 1 }, "quality_step"},
		{"zero quality", func(c *Config) { c.Processing.DefaultQuality = 0 }, "default_quality"},
		{"unknown filter", func(c *Config) { c.Processing.Filter = "sharpest" }, "resample filter"},
		{"unknown orientation", func(c *Config) { c.Processing.Orientation = "gyro" }, "orientation backend"},
		{"no extensions", func(c *Config) { c.SupportedExtensions = []string{" "} }, "supported_extensions"},
		{"unknown storage", func(c *Config) { c.Output.Storage = "ftp" }, "output storage"},
		{"local without directory", func(c *Config) { c.Output.Directory = "" }, "output.directory"},
		{"bad duplicate handling", func(c *Config) { c.Output.DuplicateHandling = "merge" }, "duplicate_handling"},
		{"s3 without bucket", func(c *Config) { c.Output.Storage = StorageS3 }, "output.s3.bucket"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server port"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "log level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.wantErr)
		})
	}
}

func TestValidateFillsDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Processing.MaxSteps = 0
	cfg.Processing.MaxDimension = -1
	cfg.Server.MaxUploadSize = 0

	require.NoError(t, cfg.Validate())
	assert.Equal(t, processor.DefaultMaxSteps, cfg.Processing.MaxSteps)
	assert.Equal(t, DefaultConfig().Processing.MaxDimension, cfg.Processing.MaxDimension)
	assert.Equal(t, DefaultConfig().Server.MaxUploadSize, cfg.Server.MaxUploadSize)
}

func TestProcessorAndLoggerConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Processing.MaxSteps = 7
	cfg.Processing.MaxPixels = 100
	cfg.Logging.FilePath = "/tmp/x.log"

	pc := cfg.ProcessorConfig()
	assert.Equal(t, 7, pc.MaxSteps)
	assert.Equal(t, int64(100), pc.Limits.MaxPixels)
	assert.Equal(t, cfg.Processing.DefaultQuality, pc.ResizeQuality)
	assert.Equal(t, cfg.Processing.Orientation, pc.OrientationBackend)

	lc := cfg.LoggerConfig()
	assert.Equal(t, "/tmp/x.log", lc.FilePath)
	assert.Equal(t, "json", lc.Format)
}
