package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"image-normalizer-go/internal/engine"
	"image-normalizer-go/internal/logger"
	"image-normalizer-go/internal/orientation"
	"image-normalizer-go/internal/processor"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. IMAGE_NORMALIZER_SERVER_PORT.
const EnvPrefix = "IMAGE_NORMALIZER"

// Storage backends accepted in output.storage.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// Config represents the main configuration structure
type Config struct {
	SupportedExtensions []string         `mapstructure:"supported_extensions"`
	Processing          ProcessingConfig `mapstructure:"processing"`
	Output              OutputConfig     `mapstructure:"output"`
	Server              ServerConfig     `mapstructure:"server"`
	Logging             LoggingConfig    `mapstructure:"logging"`
}

// ProcessingConfig contains resize and compression settings
type ProcessingConfig struct {
	MaxSteps       int     `mapstructure:"max_steps"`
	QualityStep    float64 `mapstructure:"quality_step"`
	DefaultQuality float64 `mapstructure:"default_quality"`
	Filter         string  `mapstructure:"filter"`
	MaxDimension   int     `mapstructure:"max_dimension"`
	MaxPixels      int64   `mapstructure:"max_pixels"`
	Orientation    string  `mapstructure:"orientation"`
}

// OutputConfig selects where processed files are written
type OutputConfig struct {
	Storage           string   `mapstructure:"storage"`
	Directory         string   `mapstructure:"directory"`
	DuplicateHandling string   `mapstructure:"duplicate_handling"`
	S3                S3Config `mapstructure:"s3"`
}

// S3Config contains the bucket settings used by the s3 storage backend
type S3Config struct {
	Bucket string `mapstructure:"bucket"`
	Region string `mapstructure:"region"`
	Prefix string `mapstructure:"prefix"`
}

// ServerConfig contains web service settings
type ServerConfig struct {
	Port          int   `mapstructure:"port"`
	MaxUploadSize int64 `mapstructure:"max_upload_size"` // MB
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
	Console    bool   `mapstructure:"console"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	limits := engine.DefaultLimits()
	return &Config{
		SupportedExtensions: []string{
			".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tiff", ".tif",
		},
		Processing: ProcessingConfig{
			MaxSteps:       processor.DefaultMaxSteps,
			QualityStep:    processor.DefaultQualityStep,
			DefaultQuality: engine.DefaultQuality,
			Filter:         "lanczos",
			MaxDimension:   limits.MaxDimension,
			MaxPixels:      limits.MaxPixels,
			Orientation:    orientation.BackendEXIF,
		},
		Output: OutputConfig{
			Storage:           StorageLocal,
			Directory:         "normalized",
			DuplicateHandling: "rename", // rename, skip, overwrite
		},
		Server: ServerConfig{
			Port:          8080,
			MaxUploadSize: 256,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			FilePath:   "",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
			Console:    true,
		},
	}
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config file in current directory and home directory
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.image-normalizer")
		v.AddConfigPath("/etc/image-normalizer")
	}

	setDefaults(v, DefaultConfig())

	// Enable environment variable support
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// setDefaults registers every key so AutomaticEnv can override keys absent from the file.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("supported_extensions", d.SupportedExtensions)

	v.SetDefault("processing.max_steps", d.Processing.MaxSteps)
	v.SetDefault("processing.quality_step", d.Processing.QualityStep)
	v.SetDefault("processing.default_quality", d.Processing.DefaultQuality)
	v.SetDefault("processing.filter", d.Processing.Filter)
	v.SetDefault("processing.max_dimension", d.Processing.MaxDimension)
	v.SetDefault("processing.max_pixels", d.Processing.MaxPixels)
	v.SetDefault("processing.orientation", d.Processing.Orientation)

	v.SetDefault("output.storage", d.Output.Storage)
	v.SetDefault("output.directory", d.Output.Directory)
	v.SetDefault("output.duplicate_handling", d.Output.DuplicateHandling)
	v.SetDefault("output.s3.bucket", d.Output.S3.Bucket)
	v.SetDefault("output.s3.region", d.Output.S3.Region)
	v.SetDefault("output.s3.prefix", d.Output.S3.Prefix)

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.max_upload_size", d.Server.MaxUploadSize)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file_path", d.Logging.FilePath)
	v.SetDefault("logging.max_size", d.Logging.MaxSize)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max_age", d.Logging.MaxAge)
	v.SetDefault("logging.compress", d.Logging.Compress)
	v.SetDefault("logging.console", d.Logging.Console)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	d := DefaultConfig()

	// Validate processing settings
	if c.Processing.MaxSteps <= 0 {
		c.Processing.MaxSteps = d.Processing.MaxSteps
	}
	if c.Processing.QualityStep <= 0 || c.Processing.QualityStep >= 1 {
		return fmt.Errorf("invalid quality_step: %g (must be between 0 and 1)", c.Processing.QualityStep)
	}
	if c.Processing.DefaultQuality <= 0 || c.Processing.DefaultQuality > 1 {
		return fmt.Errorf("invalid default_quality: %g (must be in (0, 1])", c.Processing.DefaultQuality)
	}
	c.Processing.Filter = strings.ToLower(c.Processing.Filter)
	if _, err := engine.ParseFilter(c.Processing.Filter); err != nil {
		return err
	}
	if c.Processing.MaxDimension <= 0 {
		c.Processing.MaxDimension = d.Processing.MaxDimension
	}
	if c.Processing.MaxPixels <= 0 {
		c.Processing.MaxPixels = d.Processing.MaxPixels
	}

	validBackends := map[string]bool{
		orientation.BackendEXIF:     true,
		orientation.BackendExiftool: true,
		orientation.BackendNone:     true,
	}
	c.Processing.Orientation = strings.ToLower(c.Processing.Orientation)
	if !validBackends[c.Processing.Orientation] {
		return fmt.Errorf("invalid orientation backend: %s (valid: exif, exiftool, none)", c.Processing.Orientation)
	}

	// Validate extensions format
	c.SupportedExtensions = normalizeExtensions(c.SupportedExtensions)
	if len(c.SupportedExtensions) == 0 {
		return fmt.Errorf("supported_extensions must not be empty")
	}

	// Validate output settings
	c.Output.Storage = strings.ToLower(c.Output.Storage)
	switch c.Output.Storage {
	case StorageLocal:
		if c.Output.Directory == "" {
			return fmt.Errorf("output.directory is required for local storage")
		}
		c.Output.Directory = expandPath(c.Output.Directory)

		// Validate duplicate handling strategy
		validStrategies := map[string]bool{
			"rename":    true,
			"skip":      true,
			"overwrite": true,
		}
		if !validStrategies[c.Output.DuplicateHandling] {
			return fmt.Errorf("invalid duplicate_handling strategy: %s (valid: rename, skip, overwrite)",
				c.Output.DuplicateHandling)
		}
	case StorageS3:
		if c.Output.S3.Bucket == "" {
			return fmt.Errorf("output.s3.bucket is required for s3 storage")
		}
	default:
		return fmt.Errorf("invalid output storage: %s (valid: local, s3)", c.Output.Storage)
	}

	// Validate server settings
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.MaxUploadSize <= 0 {
		c.Server.MaxUploadSize = d.Server.MaxUploadSize
	}

	// Validate logging settings
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s (valid: json, text)", c.Logging.Format)
	}

	return nil
}

// ProcessorConfig maps the processing section onto processor.Config.
func (c *Config) ProcessorConfig() processor.Config {
	return processor.Config{
		MaxSteps:      c.Processing.MaxSteps,
		QualityStep:   c.Processing.QualityStep,
		ResizeQuality: c.Processing.DefaultQuality,
		Filter:        c.Processing.Filter,
		Limits: engine.Limits{
			MaxDimension: c.Processing.MaxDimension,
			MaxPixels:    c.Processing.MaxPixels,
		},
		OrientationBackend: c.Processing.Orientation,
	}
}

// LoggerConfig maps the logging section onto logger.LoggerConfig.
func (c *Config) LoggerConfig() logger.LoggerConfig {
	return logger.LoggerConfig{
		Level:      c.Logging.Level,
		Format:     c.Logging.Format,
		FilePath:   c.Logging.FilePath,
		MaxSize:    c.Logging.MaxSize,
		MaxBackups: c.Logging.MaxBackups,
		MaxAge:     c.Logging.MaxAge,
		Compress:   c.Logging.Compress,
		Console:    c.Logging.Console,
	}
}

// Helper functions

func expandPath(path string) string {
	expanded := os.ExpandEnv(path)
	if strings.HasPrefix(expanded, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return expanded
		}
		expanded = filepath.Join(home, expanded[1:])
	}
	return expanded
}

func normalizeExtensions(extensions []string) []string {
	normalized := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized = append(normalized, ext)
	}
	return normalized
}
