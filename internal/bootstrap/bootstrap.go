// Package bootstrap provides dependency initialization for the media conversion API.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maauso/mediaconv/internal/archive"
	"github.com/maauso/mediaconv/internal/config"
	"github.com/maauso/mediaconv/internal/dimension"
	"github.com/maauso/mediaconv/internal/gifenc"
	"github.com/maauso/mediaconv/internal/imageconv"
	"github.com/maauso/mediaconv/internal/job"
	"github.com/maauso/mediaconv/internal/media"
	"github.com/maauso/mediaconv/internal/metrics"
	"github.com/maauso/mediaconv/internal/session"
	"github.com/maauso/mediaconv/internal/storage"
	"github.com/maauso/mediaconv/internal/timeline"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	SessionService *job.SessionService
	GIFService     *job.GIFService
	ImageService   *job.ImageService
	Metrics        *metrics.Recorder
	// FilesDir is the directory published artifacts are served from. It is
	// empty when a remote backend serves them.
	FilesDir string
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	// Initialize storage
	store, filesDir, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	recorder := metrics.New(nil)
	processor := media.NewFFmpegProcessor(cfg.FFmpegPath, cfg.FFprobePath)

	// Sessions share one store across the three services
	sessions := session.NewMemoryStore(dimension.Size{Width: cfg.PreviewMaxWidth, Height: cfg.PreviewMaxHeight})

	gifs := job.NewGIFService(
		job.NewMemoryRepository(),
		sessions,
		store,
		func(path string) timeline.FrameSource { return media.NewVideoSource(processor, path) },
		gifenc.NewPalettedEncoder(),
		logger,
		job.WithGIFObserver(recorder),
		job.WithDefaultFrameRate(cfg.DefaultFrameRate),
		job.WithMaxDimension(cfg.MaxDimension),
		job.WithMaxFrames(cfg.MaxFrames),
	)

	converter := imageconv.NewConverter(
		imageEncoder(cfg, processor),
		imageconv.WithObserver(recorder),
		imageconv.WithLogger(logger),
	)

	var builder archive.Builder
	if cfg.ArchiveEnabled {
		builder = archive.NewZipBuilder("")
	}
	exporter := archive.NewExporter(builder, store,
		archive.WithStagger(cfg.ArchiveStagger),
		archive.WithExportObserver(recorder),
		archive.WithExportLogger(logger),
	)

	images := job.NewImageService(sessions, converter, exporter, logger,
		job.WithImageObserver(recorder),
		job.WithMaxImageBytes(cfg.MaxImageBytes),
		job.WithImageMaxDimension(cfg.MaxDimension),
	)

	logger.Info("services configured",
		slog.String("image_codec", cfg.ImageCodec),
		slog.Bool("archive_enabled", cfg.ArchiveEnabled),
		slog.Float64("default_frame_rate", cfg.DefaultFrameRate),
	)

	return &Dependencies{
		SessionService: job.NewSessionService(sessions, store, processor, cfg.MaxVideoBytes, logger),
		GIFService:     gifs,
		ImageService:   images,
		Metrics:        recorder,
		FilesDir:       filesDir,
	}, nil
}

// imageEncoder picks the in-process codec or the ffmpeg-backed one.
func imageEncoder(cfg *config.Config, processor media.Processor) imageconv.Encoder {
	if cfg.UseNativeCodec() {
		return imageconv.NewNativeEncoder()
	}
	return media.NewImageEncoder(processor)
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Storage, string, error) {
	switch cfg.Backend() {
	case config.StorageS3:
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, "", fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, "", nil

	case config.StorageMinIO:
		minioStore, err := storage.NewMinIOStorage(cfg.TempDir, storage.MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			Region:    cfg.MinIORegion,
			UseSSL:    cfg.MinIOUseSSL,
		})
		if err != nil {
			return nil, "", fmt.Errorf("create MinIO storage: %w", err)
		}
		if err := minioStore.EnsureBucket(ctx); err != nil {
			return nil, "", fmt.Errorf("prepare MinIO bucket: %w", err)
		}
		logger.Info("MinIO storage configured",
			slog.String("endpoint", cfg.MinIOEndpoint),
			slog.String("bucket", cfg.MinIOBucket),
		)
		return minioStore, "", nil

	case config.StorageLocal:
		localStore, err := storage.NewLocalStorage(cfg.TempDir, cfg.OutputDir)
		if err != nil {
			return nil, "", fmt.Errorf("create local storage: %w", err)
		}
		logger.Info("local storage configured",
			slog.String("temp_dir", localStore.TempDir()),
			slog.String("output_dir", localStore.OutputDir()),
		)
		return localStore, localStore.OutputDir(), nil

	default:
		return nil, "", fmt.Errorf("%w: got %q", config.ErrUnknownStorageBackend, cfg.StorageBackend)
	}
}
