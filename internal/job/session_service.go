package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/maauso/mediaconv/internal/dimension"
	"github.com/maauso/mediaconv/internal/job/id"
	"github.com/maauso/mediaconv/internal/media"
	"github.com/maauso/mediaconv/internal/session"
	"github.com/maauso/mediaconv/internal/storage"
	"github.com/maauso/mediaconv/internal/timeline"
	"github.com/maauso/mediaconv/internal/upload"
)

// ErrUnknownWindowAction is returned for a window change with an unknown action.
var ErrUnknownWindowAction = errors.New("unknown window action")

// WindowAction names a way of editing the selected time window.
type WindowAction string

// Window actions.
const (
	// WindowStart moves the start handle to Time.
	WindowStart WindowAction = "start"
	// WindowEnd moves the end handle to Time.
	WindowEnd WindowAction = "end"
	// WindowNearest moves whichever handle is closer to Time.
	WindowNearest WindowAction = "nearest"
	// WindowInput selects [Time, Time+Length] from typed values.
	WindowInput WindowAction = "input"
	// WindowReset restores the default window and output size.
	WindowReset WindowAction = "reset"
)

// WindowChange is one edit of the selected window.
type WindowChange struct {
	Action WindowAction
	Time   float64
	Length float64
}

// VideoUpload is a video file received from a client.
type VideoUpload struct {
	Name     string
	MimeType string
	Size     int64
	Body     io.Reader
}

// Prober reads video metadata. media.Processor satisfies it.
type Prober interface {
	Probe(ctx context.Context, path string) (media.ProbeResult, error)
}

// SessionStore is a session.Store that can evict idle sessions.
type SessionStore interface {
	session.Store
	Expired(maxIdle time.Duration, now time.Time) []*session.Session
}

// SessionService manages session lifecycles and the loaded video.
type SessionService struct {
	store         SessionStore
	storage       storage.Storage
	prober        Prober
	logger        *slog.Logger
	maxVideoBytes int64
	now           func() time.Time
}

// NewSessionService creates a new SessionService. maxVideoBytes of zero
// means upload.DefaultMaxVideoBytes.
func NewSessionService(store SessionStore, st storage.Storage, prober Prober, maxVideoBytes int64, logger *slog.Logger) *SessionService {
	if logger == nil {
		logger = slog.Default()
	}
	if maxVideoBytes <= 0 {
		maxVideoBytes = upload.DefaultMaxVideoBytes
	}
	return &SessionService{
		store:         store,
		storage:       st,
		prober:        prober,
		logger:        logger,
		maxVideoBytes: maxVideoBytes,
		now:           time.Now,
	}
}

// Create starts an empty session.
func (s *SessionService) Create(ctx context.Context) (*session.Session, error) {
	sess, err := s.store.Create(ctx, id.Generate("sess"))
	if err != nil {
		return nil, err
	}
	s.logger.Info("session created", slog.String("session_id", sess.ID))
	return sess, nil
}

// Get returns a session by ID.
func (s *SessionService) Get(ctx context.Context, sessionID string) (*session.Session, error) {
	return s.store.Get(ctx, sessionID)
}

// Delete removes a session and its temporary video. A session with an
// active run cannot be deleted.
func (s *SessionService) Delete(ctx context.Context, sessionID string) error {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Busy(session.PipelineVideo) || sess.Busy(session.PipelineImage) {
		return fmt.Errorf("%w: session %s", session.ErrBusy, sessionID)
	}
	if _, err := s.store.Delete(ctx, sessionID); err != nil {
		return err
	}
	s.discard(ctx, sess)
	s.logger.Info("session deleted", slog.String("session_id", sessionID))
	return nil
}

// Sweep evicts sessions idle for longer than maxIdle and returns how many
// were removed.
func (s *SessionService) Sweep(ctx context.Context, maxIdle time.Duration) int {
	expired := s.store.Expired(maxIdle, s.now())
	for _, sess := range expired {
		s.discard(ctx, sess)
		s.logger.Info("session expired", slog.String("session_id", sess.ID))
	}
	return len(expired)
}

// RunJanitor sweeps idle sessions every interval until ctx is done.
func (s *SessionService) RunJanitor(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx, maxIdle)
		}
	}
}

// LoadVideo validates, stores and probes an uploaded video and makes it the
// session's video. The window resets to its default. A previously loaded
// video is discarded.
func (s *SessionService) LoadVideo(ctx context.Context, sessionID string, in VideoUpload) (session.Video, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return session.Video{}, err
	}
	if err := upload.ValidateVideo(upload.File{Name: in.Name, MimeType: in.MimeType, Size: in.Size}, s.maxVideoBytes); err != nil {
		return session.Video{}, err
	}
	// Held until the new video is in place so a GIF run cannot start on a
	// video that is being replaced.
	release, err := sess.TryAcquire(session.PipelineVideo)
	if err != nil {
		return session.Video{}, err
	}
	defer release()

	path, err := s.storage.SaveTemp(ctx, in.Name, in.Body)
	if err != nil {
		return session.Video{}, fmt.Errorf("save video: %w", err)
	}

	probe, err := s.prober.Probe(ctx, path)
	if err == nil && !(probe.Duration > 0) {
		err = fmt.Errorf("%w: %q has no playable duration", upload.ErrInvalidInput, in.Name)
	}
	if err != nil {
		_ = s.storage.CleanupTemp(ctx, []string{path})
		if errors.Is(err, media.ErrNoVideoStream) {
			return session.Video{}, fmt.Errorf("%w: %w", upload.ErrInvalidInput, err)
		}
		return session.Video{}, err
	}

	prev := sess.SetVideo(session.Video{
		Path:       path,
		Name:       in.Name,
		MimeType:   in.MimeType,
		Size:       in.Size,
		Duration:   probe.Duration,
		Dimensions: dimension.Size{Width: probe.Width, Height: probe.Height},
		Codec:      probe.Codec,
	})
	if prev != nil {
		_ = s.storage.CleanupTemp(ctx, []string{prev.Path})
	}

	video, err := sess.Video()
	if err != nil {
		return session.Video{}, err
	}
	s.logger.Info("video loaded",
		slog.String("session_id", sessionID),
		slog.String("name", in.Name),
		slog.String("size", upload.FormatFileSize(in.Size)),
		slog.Float64("duration", video.Duration),
		slog.String("dimensions", video.Dimensions.String()),
	)
	return video, nil
}

// Video returns the session's loaded video.
func (s *SessionService) Video(ctx context.Context, sessionID string) (session.Video, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return session.Video{}, err
	}
	return sess.Video()
}

// ClearVideo unloads the session's video and removes its temporary file.
func (s *SessionService) ClearVideo(ctx context.Context, sessionID string) error {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Busy(session.PipelineVideo) {
		return fmt.Errorf("%w: %s", session.ErrBusy, session.PipelineVideo)
	}
	v, err := sess.ClearVideo()
	if err != nil {
		return err
	}
	return s.storage.CleanupTemp(ctx, []string{v.Path})
}

// AdjustWindow applies a window change and returns the updated video. An
// edit that would break 0 <= start < end <= duration leaves the window as it
// was and returns timeline.ErrInvalidWindow.
func (s *SessionService) AdjustWindow(ctx context.Context, sessionID string, change WindowChange) (session.Video, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return session.Video{}, err
	}

	var edit func(w timeline.Window, duration float64) timeline.Window
	switch change.Action {
	case WindowReset:
		return sess.ResetVideoSelection()
	case WindowStart:
		edit = func(w timeline.Window, _ float64) timeline.Window { return w.WithStart(change.Time) }
	case WindowEnd:
		edit = func(w timeline.Window, d float64) timeline.Window { return w.WithEnd(change.Time, d) }
	case WindowNearest:
		edit = func(w timeline.Window, d float64) timeline.Window { return w.Nearest(change.Time, d) }
	case WindowInput:
		edit = func(_ timeline.Window, d float64) timeline.Window {
			return timeline.FromInput(change.Time, change.Length, d)
		}
	default:
		return session.Video{}, fmt.Errorf("%w: %q", ErrUnknownWindowAction, change.Action)
	}

	if _, err := sess.UpdateWindow(edit); err != nil {
		return session.Video{}, err
	}
	return sess.Video()
}

// discard removes the temporary files owned by sess.
func (s *SessionService) discard(ctx context.Context, sess *session.Session) {
	v, err := sess.ClearVideo()
	if err != nil {
		return
	}
	if err := s.storage.CleanupTemp(ctx, []string{v.Path}); err != nil {
		s.logger.Warn("failed to remove session video",
			slog.String("session_id", sess.ID),
			slog.String("error", err.Error()),
		)
	}
}
