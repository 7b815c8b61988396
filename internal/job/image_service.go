package job

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maauso/mediaconv/internal/archive"
	"github.com/maauso/mediaconv/internal/imageconv"
	"github.com/maauso/mediaconv/internal/job/id"
	"github.com/maauso/mediaconv/internal/session"
	"github.com/maauso/mediaconv/internal/upload"
)

// ImageUpload is one image file received from a client.
type ImageUpload struct {
	Name     string
	MimeType string
	Data     []byte
}

// AddImagesOutput reports which uploads joined the batch.
type AddImagesOutput struct {
	Accepted []imageconv.Item
	Rejected []upload.Rejection
}

// BatchOutput is the outcome of a whole-batch conversion.
type BatchOutput struct {
	// Results holds the converted outputs, which replace the session's list.
	Results []imageconv.Result
	// Failed holds the items that could not be converted.
	Failed []imageconv.Result
}

// ImageServiceOption configures an ImageService.
type ImageServiceOption func(*ImageService)

// WithImageObserver sets the metrics observer.
func WithImageObserver(o Observer) ImageServiceOption {
	return func(s *ImageService) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithMaxImageBytes overrides upload.DefaultMaxImageBytes.
func WithMaxImageBytes(n int64) ImageServiceOption {
	return func(s *ImageService) {
		if n > 0 {
			s.maxImageBytes = n
		}
	}
}

// WithImageMaxDimension bounds resolved output sizes.
func WithImageMaxDimension(maxDim int) ImageServiceOption {
	return func(s *ImageService) {
		if maxDim > 0 {
			s.maxDim = maxDim
		}
	}
}

// ImageService runs the batch image pipeline of a session. Conversions run
// inline and hold the session's image pipeline for their duration.
type ImageService struct {
	sessions  session.Store
	converter *imageconv.Converter
	exporter  *archive.Exporter
	observer  Observer
	logger    *slog.Logger

	itemIDs       *id.Sequence
	resultIDs     *id.Sequence
	maxImageBytes int64
	maxDim        int
}

// NewImageService creates a new ImageService.
func NewImageService(
	sessions session.Store,
	converter *imageconv.Converter,
	exporter *archive.Exporter,
	logger *slog.Logger,
	opts ...ImageServiceOption,
) *ImageService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ImageService{
		sessions:      sessions,
		converter:     converter,
		exporter:      exporter,
		observer:      noopObserver{},
		logger:        logger,
		itemIDs:       id.NewSequence("img"),
		resultIDs:     id.NewSequence("converted"),
		maxImageBytes: upload.DefaultMaxImageBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddImages validates uploads and appends the accepted ones to the session's
// batch. It fails with upload.ErrInvalidInput when nothing is accepted.
func (s *ImageService) AddImages(ctx context.Context, sessionID string, uploads []ImageUpload) (AddImagesOutput, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return AddImagesOutput{}, err
	}

	files := make([]upload.File, len(uploads))
	byName := make(map[string][]ImageUpload, len(uploads))
	for i, u := range uploads {
		files[i] = upload.File{Name: u.Name, MimeType: u.MimeType, Size: int64(len(u.Data))}
		byName[u.Name] = append(byName[u.Name], u)
	}

	accepted, rejected, err := upload.PartitionImages(files, s.maxImageBytes)
	out := AddImagesOutput{Rejected: rejected}
	if err != nil {
		return out, err
	}

	for _, f := range accepted {
		u := byName[f.Name][0]
		byName[f.Name] = byName[f.Name][1:]
		out.Accepted = append(out.Accepted, imageconv.NewItem(s.itemIDs.Next(), u.Name, u.MimeType, u.Data))
	}
	sess.AddImages(out.Accepted...)

	s.logger.Info("images added",
		slog.String("session_id", sessionID),
		slog.Int("accepted", len(out.Accepted)),
		slog.Int("rejected", len(out.Rejected)),
	)
	return out, nil
}

// ConvertAll converts the whole batch in order and replaces the session's
// results with the successful outputs.
func (s *ImageService) ConvertAll(ctx context.Context, sessionID string, settings imageconv.Settings) (BatchOutput, error) {
	sess, release, err := s.acquire(ctx, sessionID)
	if err != nil {
		return BatchOutput{}, err
	}
	defer release()

	items := sess.Images()
	if len(items) == 0 {
		return BatchOutput{}, session.ErrNoImages
	}
	defer s.track()()

	settings = s.settings(settings)
	results := s.converter.ConvertAll(ctx, items, settings, func(done, total int) {
		s.logger.Debug("batch progress",
			slog.String("session_id", sessionID),
			slog.Int("done", done),
			slog.Int("total", total),
		)
	})

	var out BatchOutput
	for i := range results {
		if results[i].Status != imageconv.StatusConverted {
			out.Failed = append(out.Failed, results[i])
			continue
		}
		results[i].ID = s.resultIDs.Next()
	}
	out.Results = sess.ReplaceResults(results)

	s.logger.Info("batch converted",
		slog.String("session_id", sessionID),
		slog.String("format", string(settings.Format)),
		slog.Int("converted", len(out.Results)),
		slog.Int("failed", len(out.Failed)),
	)
	return out, nil
}

// ConvertOne converts a single item and appends a successful output to the
// session's results. A failed conversion returns the failed result together
// with an error wrapping imageconv.ErrItemFailed.
func (s *ImageService) ConvertOne(ctx context.Context, sessionID, itemID string, settings imageconv.Settings) (imageconv.Result, error) {
	sess, release, err := s.acquire(ctx, sessionID)
	if err != nil {
		return imageconv.Result{}, err
	}
	defer release()

	item, err := sess.Image(itemID)
	if err != nil {
		return imageconv.Result{}, err
	}
	defer s.track()()

	res, err := s.converter.ConvertSingle(ctx, item, s.settings(settings))
	if err == nil {
		res.ID = s.resultIDs.Next()
	}
	sess.AddResult(res)
	return res, err
}

// Export publishes every result of the session, as an archive when enabled.
// Published keys are scoped by the session ID.
func (s *ImageService) Export(ctx context.Context, sessionID string) (archive.Result, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return archive.Result{}, err
	}

	results := sess.Results()
	entries := make([]archive.Entry, 0, len(results))
	for _, r := range results {
		data, err := r.Artifact.Bytes()
		if err != nil {
			return archive.Result{}, fmt.Errorf("result %s: %w", r.ID, err)
		}
		entries = append(entries, archive.Entry{Name: r.FileName, ContentType: r.MimeType, Data: data})
	}

	res, err := s.exporter.Export(ctx, sessionID, entries)
	if err != nil {
		return res, err
	}
	s.logger.Info("results exported",
		slog.String("session_id", sessionID),
		slog.Int("entries", len(entries)),
		slog.Bool("fell_back", res.FellBack),
	)
	return res, nil
}

func (s *ImageService) acquire(ctx context.Context, sessionID string) (*session.Session, func(), error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	release, err := sess.TryAcquire(session.PipelineImage)
	if err != nil {
		return nil, nil, err
	}
	return sess, release, nil
}

// track reports an image run to the observer until the returned func is called.
func (s *ImageService) track() func() {
	s.observer.RunStarted(string(session.PipelineImage))
	return func() { s.observer.RunFinished(string(session.PipelineImage)) }
}

func (s *ImageService) settings(in imageconv.Settings) imageconv.Settings {
	if in.MaxDim <= 0 {
		in.MaxDim = s.maxDim
	}
	return in
}

// Images returns the session's batch in upload order.
func (s *ImageService) Images(ctx context.Context, sessionID string) ([]imageconv.Item, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Images(), nil
}

// RemoveImage drops one item and the results converted from it.
func (s *ImageService) RemoveImage(ctx context.Context, sessionID, itemID string) error {
	sess, release, err := s.acquire(ctx, sessionID)
	if err != nil {
		return err
	}
	defer release()

	_, err = sess.RemoveImage(itemID)
	return err
}

// ClearImages drops the whole batch and every result.
func (s *ImageService) ClearImages(ctx context.Context, sessionID string) error {
	sess, release, err := s.acquire(ctx, sessionID)
	if err != nil {
		return err
	}
	defer release()

	sess.ClearImages()
	return nil
}

// Results returns the session's converted outputs in conversion order.
func (s *ImageService) Results(ctx context.Context, sessionID string) ([]imageconv.Result, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Results(), nil
}

// Result returns one converted output.
func (s *ImageService) Result(ctx context.Context, sessionID, resultID string) (imageconv.Result, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return imageconv.Result{}, err
	}
	return sess.Result(resultID)
}

// RemoveResult drops one converted output.
func (s *ImageService) RemoveResult(ctx context.Context, sessionID, resultID string) error {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	return sess.RemoveResult(resultID)
}
