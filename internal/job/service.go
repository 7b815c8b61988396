package job

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/maauso/mediaconv/internal/dimension"
	"github.com/maauso/mediaconv/internal/gifenc"
	"github.com/maauso/mediaconv/internal/session"
	"github.com/maauso/mediaconv/internal/storage"
	"github.com/maauso/mediaconv/internal/timeline"
)

const (
	// DefaultFrameRate is the sampling rate used when a request omits one.
	DefaultFrameRate = 10.0
	// MinQuality and MaxQuality bound the encoder quality knob.
	MinQuality = 1
	MaxQuality = 30
	// DefaultMaxFrames bounds the frames sampled by a single run.
	DefaultMaxFrames = 1800

	gifContentType = "image/gif"
	gifKeyPrefix   = "gifs"
)

// ErrInvalidSettings is returned when GIF settings are out of range.
var ErrInvalidSettings = errors.New("invalid GIF settings")

// ErrGIFUnavailable is returned when a job has no readable GIF.
var ErrGIFUnavailable = errors.New("GIF not available")

// GIFSettings are the user-facing knobs of a GIF run.
// Zero values select defaults: the service frame rate, gifenc.DefaultQuality
// and the session's preview size.
type GIFSettings struct {
	FrameRate  float64
	Quality    int
	Width      int
	Height     int
	KeepAspect bool
}

// SourceFactory opens a frame source over a video file.
type SourceFactory func(path string) timeline.FrameSource

// Observer receives run metrics. *metrics.Recorder satisfies it.
type Observer interface {
	RunStarted(pipeline string)
	RunFinished(pipeline string)
	GIFFinished(status string)
	StageDuration(stage string, d time.Duration)
	FramesSampled(n int)
}

type noopObserver struct{}

func (noopObserver) RunStarted(string) {}
func (noopObserver) RunFinished(string) {}
func (noopObserver) GIFFinished(string) {}
func (noopObserver) StageDuration(string, time.Duration) {}
func (noopObserver) FramesSampled(int) {}

// GIFServiceOption configures a GIFService.
type GIFServiceOption func(*GIFService)

// WithGIFObserver sets the metrics observer.
func WithGIFObserver(o Observer) GIFServiceOption {
	return func(s *GIFService) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithDefaultFrameRate overrides DefaultFrameRate.
func WithDefaultFrameRate(rate float64) GIFServiceOption {
	return func(s *GIFService) {
		if rate > 0 {
			s.defaultRate = rate
		}
	}
}

// WithMaxDimension bounds explicitly requested output sizes.
func WithMaxDimension(maxDim int) GIFServiceOption {
	return func(s *GIFService) {
		if maxDim > 0 {
			s.maxDim = maxDim
		}
	}
}

// WithMaxFrames overrides DefaultMaxFrames.
func WithMaxFrames(n int) GIFServiceOption {
	return func(s *GIFService) {
		if n > 0 {
			s.maxFrames = n
		}
	}
}

// GIFService turns the selected window of a session's video into an animated
// GIF. Start validates and enqueues; Run does the work.
type GIFService struct {
	repo     Repository
	sessions session.Store
	storage  storage.Storage
	sources  SourceFactory
	encoder  gifenc.Encoder
	observer Observer
	logger   *slog.Logger

	defaultRate float64
	maxDim      int
	maxFrames   int
	now         func() time.Time

	mu       sync.Mutex
	releases map[string]func()
	wg       sync.WaitGroup
}

// NewGIFService creates a new GIFService.
func NewGIFService(
	repo Repository,
	sessions session.Store,
	store storage.Storage,
	sources SourceFactory,
	encoder gifenc.Encoder,
	logger *slog.Logger,
	opts ...GIFServiceOption,
) *GIFService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &GIFService{
		repo:        repo,
		sessions:    sessions,
		storage:     store,
		sources:     sources,
		encoder:     encoder,
		observer:    noopObserver{},
		logger:      logger,
		defaultRate: DefaultFrameRate,
		maxDim:      dimension.DefaultMaxDim,
		maxFrames:   DefaultMaxFrames,
		now:         time.Now,
		releases:    make(map[string]func()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateJob validates settings against the session's video, claims the
// session's video pipeline and persists a queued job. The pipeline stays
// claimed until Run finishes the job.
func (s *GIFService) CreateJob(ctx context.Context, sessionID string, settings GIFSettings) (*Job, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	video, err := sess.Video()
	if err != nil {
		return nil, err
	}

	req, err := s.request(video, settings)
	if err != nil {
		return nil, err
	}

	release, err := sess.TryAcquire(session.PipelineVideo)
	if err != nil {
		return nil, err
	}

	job := New()
	job.SessionID = sessionID
	job.SourceName = video.Name
	job.SourcePath = video.Path
	job.Window = req.Window
	job.FrameRate = req.Rate
	job.DelayMs = timeline.FrameDelay(req.Rate)
	job.Size = req.Size
	job.Quality = settings.Quality
	if job.Quality == 0 {
		job.Quality = gifenc.DefaultQuality
	}

	s.logger.Info("creating GIF job",
		slog.String("job_id", job.ID),
		slog.String("session_id", sessionID),
		slog.String("window", fmt.Sprintf("%s-%s", timeline.FormatTime(req.Window.Start), timeline.FormatTime(req.Window.End))),
		slog.Float64("frame_rate", req.Rate),
		slog.String("size", req.Size.String()),
		slog.Int("expected_frames", timeline.TotalFrames(req.Window, req.Rate)),
	)

	if err := s.repo.Save(ctx, job); err != nil {
		release()
		s.logger.Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.mu.Lock()
	s.releases[job.ID] = release
	s.mu.Unlock()

	return job, nil
}

// Start creates a job and runs it in the background. The run outlives ctx's
// cancellation but keeps its values.
func (s *GIFService) Start(ctx context.Context, sessionID string, settings GIFSettings) (*Job, error) {
	job, err := s.CreateJob(ctx, sessionID, settings)
	if err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go func(ctx context.Context, jobID string) {
		defer s.wg.Done()
		if _, err := s.Run(ctx, jobID); err != nil {
			s.logger.Error("background GIF run failed",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
		}
	}(context.WithoutCancel(ctx), job.ID)

	return job, nil
}

// Wait blocks until every background run has returned.
func (s *GIFService) Wait() {
	s.wg.Wait()
}

// Run samples, encodes, inspects and publishes the GIF for a queued job.
// A failure at any step fails the whole job; no partial GIF is published.
func (s *GIFService) Run(ctx context.Context, jobID string) (*Job, error) {
	defer s.release(jobID)

	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := job.Start(); err != nil {
		return nil, fmt.Errorf("start job %s: %w", jobID, err)
	}
	s.save(ctx, job)

	s.observer.RunStarted(string(session.PipelineVideo))
	defer s.observer.RunFinished(string(session.PipelineVideo))

	out, err := s.produce(ctx, job)
	if err != nil {
		s.logger.Error("GIF job failed",
			slog.String("job_id", job.ID),
			slog.String("stage", string(job.Stage)),
			slog.String("error", err.Error()),
		)
		_ = job.Fail(err.Error())
		s.save(ctx, job)
		s.observer.GIFFinished(string(StatusFailed))
		return job.Clone(), err
	}

	if err := job.Complete(out); err != nil {
		return nil, fmt.Errorf("complete job %s: %w", jobID, err)
	}
	s.save(ctx, job)
	s.observer.GIFFinished(string(StatusCompleted))

	s.logger.Info("GIF job completed",
		slog.String("job_id", job.ID),
		slog.String("file", out.FileName),
		slog.Int("frames", out.FrameCount),
		slog.Int64("bytes", out.Size),
	)
	return job.Clone(), nil
}

func (s *GIFService) produce(ctx context.Context, job *Job) (Output, error) {
	req := timeline.Request{Window: job.Window, Rate: job.FrameRate, Size: job.Size}

	s.stage(ctx, job, StageSampling)
	started := time.Now()
	sampler := timeline.NewSampler(timeline.WithProgress(func(done, total int) {
		if total > 0 {
			job.UpdateProgress(done * 50 / total)
			s.save(ctx, job)
		}
	}))
	frames, err := sampler.Sample(ctx, s.sources(job.SourcePath), req)
	if err != nil {
		return Output{}, err
	}
	s.observer.StageDuration(string(StageSampling), time.Since(started))
	s.observer.FramesSampled(len(frames))

	s.stage(ctx, job, StageEncoding)
	started = time.Now()
	data, err := s.encoder.Encode(ctx, frames, gifenc.Options{
		Width:   job.Size.Width,
		Height:  job.Size.Height,
		Quality: job.Quality,
	}, func(p float64) {
		job.UpdateProgress(50 + int(p*50))
		s.save(ctx, job)
	})
	if err != nil {
		return Output{}, err
	}
	s.observer.StageDuration(string(StageEncoding), time.Since(started))

	verdict := gifenc.Inspect(data)
	if !verdict.Animated {
		s.logger.Warn("GIF verification", slog.String("job_id", job.ID), slog.String("result", verdict.Message))
	} else {
		s.logger.Debug("GIF verification", slog.String("job_id", job.ID), slog.String("result", verdict.Message))
	}

	s.stage(ctx, job, StagePublishing)
	started = time.Now()
	name := gifenc.FileName(job.SourceName, s.now())
	localPath, err := s.storage.SaveTemp(ctx, name, bytes.NewReader(data))
	if err != nil {
		return Output{}, fmt.Errorf("save GIF: %w", err)
	}
	url, err := s.storage.Publish(ctx, publishKey(job, name), bytes.NewReader(data), int64(len(data)), gifContentType)
	if err != nil {
		_ = s.storage.CleanupTemp(ctx, []string{localPath})
		return Output{}, fmt.Errorf("publish GIF: %w", err)
	}
	s.observer.StageDuration(string(StagePublishing), time.Since(started))

	return Output{
		FileName:   name,
		LocalPath:  localPath,
		URL:        url,
		Size:       int64(len(data)),
		FrameCount: len(frames),
		Verdict:    verdict,
	}, nil
}

// GetJob retrieves a job by ID.
func (s *GIFService) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// OpenGIF returns the job and a reader over its local GIF copy. The caller
// closes the reader.
func (s *GIFService) OpenGIF(ctx context.Context, id string) (io.ReadCloser, *Job, error) {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if job.Status != StatusCompleted || job.Output.LocalPath == "" {
		return nil, job, fmt.Errorf("%w: job %s is %s", ErrGIFUnavailable, id, job.Status)
	}

	rc, err := s.storage.LoadTemp(ctx, job.Output.LocalPath)
	if err != nil {
		return nil, job, fmt.Errorf("%w: %w", ErrGIFUnavailable, err)
	}
	return rc, job, nil
}

// ListJobs returns the jobs of one session, oldest first.
func (s *GIFService) ListJobs(ctx context.Context, sessionID string) ([]*Job, error) {
	return s.repo.ListBySession(ctx, sessionID)
}

// DeleteJob removes a finished job and its local GIF copy. Published copies
// are left in place.
func (s *GIFService) DeleteJob(ctx context.Context, id string) error {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !job.IsTerminal() {
		return fmt.Errorf("%w: job %s is %s", ErrInvalidTransition, id, job.GetStatus())
	}
	if job.Output.LocalPath != "" {
		if err := s.storage.CleanupTemp(ctx, []string{job.Output.LocalPath}); err != nil {
			s.logger.Warn("failed to remove GIF copy",
				slog.String("job_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	return s.repo.Delete(ctx, id)
}

// request builds the sampling request for video under settings.
func (s *GIFService) request(video session.Video, settings GIFSettings) (timeline.Request, error) {
	if settings.Quality != 0 && (settings.Quality < MinQuality || settings.Quality > MaxQuality) {
		return timeline.Request{}, fmt.Errorf("%w: quality %d is outside [%d, %d]",
			ErrInvalidSettings, settings.Quality, MinQuality, MaxQuality)
	}
	if err := video.Window.Validate(video.Duration); err != nil {
		return timeline.Request{}, err
	}

	rate := settings.FrameRate
	if rate == 0 {
		rate = s.defaultRate
	}

	size := video.OutputSize
	if settings.Width > 0 || settings.Height > 0 {
		size = dimension.ResolveOrFallback(video.Dimensions, dimension.Request{
			Width:      settings.Width,
			Height:     settings.Height,
			KeepAspect: settings.KeepAspect,
			MaxDim:     s.maxDim,
		})
	}
	if !size.Valid() {
		size = dimension.Fallback
	}

	req := timeline.Request{Window: video.Window, Rate: rate, Size: size}
	if err := req.Validate(); err != nil {
		return timeline.Request{}, err
	}
	if n := timeline.TotalFrames(req.Window, req.Rate); n > s.maxFrames {
		return timeline.Request{}, fmt.Errorf("%w: %d frames exceed the limit of %d",
			ErrInvalidSettings, n, s.maxFrames)
	}
	return req, nil
}

// publishKey scopes a GIF by session and job so equal file names never
// share a key.
func publishKey(job *Job, name string) string {
	return path.Join(gifKeyPrefix, job.SessionID, job.ID, name)
}

func (s *GIFService) stage(ctx context.Context, job *Job, stage Stage) {
	job.SetStage(stage)
	s.save(ctx, job)
	s.logger.Debug("GIF job stage", slog.String("job_id", job.ID), slog.String("stage", string(stage)))
}

func (s *GIFService) save(ctx context.Context, job *Job) {
	if err := s.repo.Save(ctx, job); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *GIFService) release(jobID string) {
	s.mu.Lock()
	release, ok := s.releases[jobID]
	delete(s.releases, jobID)
	s.mu.Unlock()
	if ok {
		release()
	}
}
