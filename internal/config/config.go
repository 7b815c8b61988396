// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Storage backends.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
	StorageMinIO = "minio"
)

// Image codecs.
const (
	CodecFFmpeg = "ffmpeg"
	CodecNative = "native"
)

// Static errors for configuration validation.
var (
	// ErrUnknownStorageBackend is returned when STORAGE_BACKEND is not local, s3 or minio.
	ErrUnknownStorageBackend = errors.New("config: STORAGE_BACKEND must be local, s3 or minio")
	// ErrS3BucketRequired is returned when the s3 backend lacks S3_BUCKET or S3_REGION.
	ErrS3BucketRequired = errors.New("config: S3_BUCKET and S3_REGION are required for the s3 backend")
	// ErrMinIOEndpointRequired is returned when the minio backend lacks its endpoint or bucket.
	ErrMinIOEndpointRequired = errors.New("config: MINIO_ENDPOINT and MINIO_BUCKET are required for the minio backend")
	// ErrUnknownImageCodec is returned when IMAGE_CODEC is not ffmpeg or native.
	ErrUnknownImageCodec = errors.New("config: IMAGE_CODEC must be ffmpeg or native")
	// ErrInvalidLimit is returned when a size, rate or duration setting is not positive.
	ErrInvalidLimit = errors.New("config: limits must be positive")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port            int           `env:"PORT, default=8080" json:"port"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT, default=30s" json:"shutdown_timeout"`
	SessionIdle     time.Duration `env:"SESSION_IDLE_TIMEOUT, default=30m" json:"session_idle_timeout"`

	// Storage settings
	TempDir        string `env:"TEMP_DIR, default=/tmp/mediaconv" json:"temp_dir"`
	OutputDir      string `env:"OUTPUT_DIR, default=/tmp/mediaconv/out" json:"output_dir"`
	StorageBackend string `env:"STORAGE_BACKEND, default=local" json:"storage_backend"`

	// Media tooling
	FFmpegPath  string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FFprobePath string `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path"`
	ImageCodec  string `env:"IMAGE_CODEC, default=ffmpeg" json:"image_codec"`

	// Processing limits
	MaxVideoBytes    int64   `env:"MAX_VIDEO_BYTES, default=104857600" json:"max_video_bytes"`
	MaxImageBytes    int64   `env:"MAX_IMAGE_BYTES, default=52428800" json:"max_image_bytes"`
	MaxDimension     int     `env:"MAX_DIMENSION, default=4096" json:"max_dimension"`
	PreviewMaxWidth  int     `env:"PREVIEW_MAX_WIDTH, default=320" json:"preview_max_width"`
	PreviewMaxHeight int     `env:"PREVIEW_MAX_HEIGHT, default=240" json:"preview_max_height"`
	DefaultFrameRate float64 `env:"DEFAULT_FRAME_RATE, default=10" json:"default_frame_rate"`
	MaxFrames        int     `env:"MAX_FRAMES, default=1800" json:"max_frames"`

	// Export settings
	ArchiveEnabled bool          `env:"ARCHIVE_ENABLED, default=true" json:"archive_enabled"`
	ArchiveStagger time.Duration `env:"ARCHIVE_STAGGER, default=500ms" json:"archive_stagger"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Optional MinIO settings
	MinIOEndpoint  string `env:"MINIO_ENDPOINT" json:"minio_endpoint,omitempty"`
	MinIOAccessKey string `env:"MINIO_ACCESS_KEY" json:"-"` // Masked in JSON
	MinIOSecretKey string `env:"MINIO_SECRET_KEY" json:"-"` // Masked in JSON
	MinIOBucket    string `env:"MINIO_BUCKET" json:"minio_bucket,omitempty"`
	MinIORegion    string `env:"MINIO_REGION" json:"minio_region,omitempty"`
	MinIOUseSSL    bool   `env:"MINIO_USE_SSL, default=false" json:"minio_use_ssl"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the selected backends are known and fully configured.
func (c *Config) Validate() error {
	switch strings.ToLower(c.StorageBackend) {
	case StorageLocal, "":
	case StorageS3:
		if c.S3Bucket == "" || c.S3Region == "" {
			return ErrS3BucketRequired
		}
	case StorageMinIO:
		if c.MinIOEndpoint == "" || c.MinIOBucket == "" {
			return ErrMinIOEndpointRequired
		}
	default:
		return fmt.Errorf("%w: got %q", ErrUnknownStorageBackend, c.StorageBackend)
	}

	switch strings.ToLower(c.ImageCodec) {
	case CodecFFmpeg, CodecNative, "":
	default:
		return fmt.Errorf("%w: got %q", ErrUnknownImageCodec, c.ImageCodec)
	}

	if c.MaxVideoBytes <= 0 || c.MaxImageBytes <= 0 || c.MaxDimension <= 0 ||
		c.PreviewMaxWidth <= 0 || c.PreviewMaxHeight <= 0 || c.DefaultFrameRate <= 0 || c.MaxFrames <= 0 {
		return ErrInvalidLimit
	}
	return nil
}

// Backend returns the normalized storage backend name.
func (c *Config) Backend() string {
	if c.StorageBackend == "" {
		return StorageLocal
	}
	return strings.ToLower(c.StorageBackend)
}

// UseNativeCodec reports whether images are encoded in-process instead of by ffmpeg.
func (c *Config) UseNativeCodec() bool {
	return strings.ToLower(c.ImageCodec) == CodecNative
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, TempDir: %s, OutputDir: %s, StorageBackend: %s, ImageCodec: %s, MaxVideoBytes: %d, MaxImageBytes: %d, DefaultFrameRate: %g, ArchiveEnabled: %t, S3Bucket: %s, S3Region: %s, MinIOEndpoint: %s, MinIOBucket: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.TempDir,
		c.OutputDir,
		c.Backend(),
		c.ImageCodec,
		c.MaxVideoBytes,
		c.MaxImageBytes,
		c.DefaultFrameRate,
		c.ArchiveEnabled,
		c.S3Bucket,
		c.S3Region,
		c.MinIOEndpoint,
		c.MinIOBucket,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
