// Package session holds the per-user state of both converters: the loaded
// video with its selected time window, the image batch and its results, and
// the busy flags that keep a pipeline from running twice at once.
package session

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/maauso/mediaconv/internal/dimension"
	"github.com/maauso/mediaconv/internal/imageconv"
	"github.com/maauso/mediaconv/internal/timeline"
)

var (
	// ErrBusy is returned when a run is requested while one of the same
	// pipeline is already active.
	ErrBusy = errors.New("conversion already in progress")
	// ErrNoVideo is returned when a video operation finds no loaded video.
	ErrNoVideo = errors.New("no video loaded")
	// ErrImageNotFound is returned when an image id is unknown.
	ErrImageNotFound = errors.New("image not found")
	// ErrResultNotFound is returned when a result id is unknown.
	ErrResultNotFound = errors.New("result not found")
	// ErrNoImages is returned when a batch operation finds no images.
	ErrNoImages = errors.New("no images loaded")
)

// Pipeline names a conversion pipeline guarded by its own busy flag.
type Pipeline string

// Pipelines.
const (
	PipelineVideo Pipeline = "video"
	PipelineImage Pipeline = "image"
)

// Video is the currently loaded video and its selection.
type Video struct {
	Path       string          `json:"-"`
	Name       string          `json:"name"`
	MimeType   string          `json:"mime_type"`
	Size       int64           `json:"size"`
	Duration   float64         `json:"duration"`
	Dimensions dimension.Size  `json:"dimensions"`
	Codec      string          `json:"codec,omitempty"`
	Window     timeline.Window `json:"window"`
	// OutputSize is the default GIF size derived from Dimensions.
	OutputSize dimension.Size `json:"output_size"`
}

// Session is the state of one user's work. All mutation goes through its
// methods; readers get copies.
type Session struct {
	mu sync.RWMutex

	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time

	preview dimension.Size
	video   *Video
	images  []imageconv.Item
	results []imageconv.Result
	busy    map[Pipeline]bool
}

// New creates an empty session. preview bounds the default GIF size; an
// invalid preview means DefaultPreview.
func New(sessionID string, preview dimension.Size) *Session {
	if !preview.Valid() {
		preview = DefaultPreview
	}
	now := time.Now()
	return &Session{
		ID:        sessionID,
		CreatedAt: now,
		UpdatedAt: now,
		preview:   preview,
		busy:      make(map[Pipeline]bool),
	}
}

func (s *Session) touch() {
	s.UpdatedAt = time.Now()
}

// TryAcquire marks p busy and returns the function that releases it. It
// returns ErrBusy without waiting when p is already busy.
func (s *Session) TryAcquire(p Pipeline) (release func(), err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy[p] {
		return nil, fmt.Errorf("%w: %s", ErrBusy, p)
	}
	s.busy[p] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.busy, p)
			s.mu.Unlock()
		})
	}, nil
}

// Busy reports whether p has an active run.
func (s *Session) Busy(p Pipeline) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.busy[p]
}

// LastActivity returns when the session was last changed.
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.UpdatedAt
}

// SetVideo replaces the loaded video. The window and output size are reset to
// their defaults for the new video. The replaced video, if any, is returned
// so its temporary file can be removed.
func (s *Session) SetVideo(v Video) (previous *Video) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v.Window = timeline.DefaultWindow(v.Duration)
	v.OutputSize = s.defaultOutputSize(v.Dimensions)
	previous = s.video
	s.video = &v
	s.touch()
	return previous
}

// Video returns a copy of the loaded video.
func (s *Session) Video() (Video, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.video == nil {
		return Video{}, ErrNoVideo
	}
	return *s.video, nil
}

// ClearVideo unloads the video and returns it.
func (s *Session) ClearVideo() (Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.video == nil {
		return Video{}, ErrNoVideo
	}
	v := *s.video
	s.video = nil
	s.touch()
	return v, nil
}

// UpdateWindow applies fn to the current window. The result must satisfy the
// window invariant for the video's duration or the window is left unchanged.
func (s *Session) UpdateWindow(fn func(w timeline.Window, duration float64) timeline.Window) (timeline.Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.video == nil {
		return timeline.Window{}, ErrNoVideo
	}

	next := fn(s.video.Window, s.video.Duration)
	if err := next.Validate(s.video.Duration); err != nil {
		return s.video.Window, err
	}
	s.video.Window = next
	s.touch()
	return next, nil
}

// ResetVideoSelection restores the default window and output size.
func (s *Session) ResetVideoSelection() (Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.video == nil {
		return Video{}, ErrNoVideo
	}
	s.video.Window = timeline.DefaultWindow(s.video.Duration)
	s.video.OutputSize = s.defaultOutputSize(s.video.Dimensions)
	s.touch()
	return *s.video, nil
}

// DefaultPreview bounds the default GIF size.
var DefaultPreview = dimension.Size{Width: 320, Height: 240}

func (s *Session) defaultOutputSize(src dimension.Size) dimension.Size {
	size, err := dimension.Preview(src, s.preview.Width, s.preview.Height)
	if err != nil {
		return s.preview
	}
	return size
}

// AddImages appends items to the batch in order.
func (s *Session) AddImages(items ...imageconv.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images = append(s.images, items...)
	s.touch()
}

// Images returns the batch in upload order.
func (s *Session) Images() []imageconv.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.images)
}

// Image returns one item by id.
func (s *Session) Image(itemID string) (imageconv.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, it := range s.images {
		if it.ID == itemID {
			return it, nil
		}
	}
	return imageconv.Item{}, fmt.Errorf("%w: %s", ErrImageNotFound, itemID)
}

// RemoveImage deletes an item and every result converted from a file of the
// same name.
func (s *Session) RemoveImage(itemID string) (imageconv.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := slices.IndexFunc(s.images, func(it imageconv.Item) bool { return it.ID == itemID })
	if idx < 0 {
		return imageconv.Item{}, fmt.Errorf("%w: %s", ErrImageNotFound, itemID)
	}
	removed := s.images[idx]
	s.images = slices.Delete(s.images, idx, idx+1)
	s.results = slices.DeleteFunc(s.results, func(r imageconv.Result) bool {
		return r.OriginalName == removed.Name
	})
	s.touch()
	return removed, nil
}

// ClearImages removes every item and result.
func (s *Session) ClearImages() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images = nil
	s.results = nil
	s.touch()
}

// ReplaceResults records a full batch run: item statuses are updated from
// results, and the result list is replaced by the converted ones.
func (s *Session) ReplaceResults(results []imageconv.Result) []imageconv.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.applyStatusLocked(results)
	s.results = s.results[:0]
	for _, r := range results {
		if r.Status == imageconv.StatusConverted {
			s.results = append(s.results, r)
		}
	}
	s.touch()
	return slices.Clone(s.results)
}

// AddResult records a single conversion. A converted result is appended to
// the result list.
func (s *Session) AddResult(r imageconv.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.applyStatusLocked([]imageconv.Result{r})
	if r.Status == imageconv.StatusConverted {
		s.results = append(s.results, r)
	}
	s.touch()
}

func (s *Session) applyStatusLocked(results []imageconv.Result) {
	for _, r := range results {
		for i := range s.images {
			if s.images[i].ID == r.ItemID {
				s.images[i].Status = r.Status
				s.images[i].Error = r.Error
			}
		}
	}
}

// Results returns the converted outputs in conversion order.
func (s *Session) Results() []imageconv.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.results)
}

// Result returns one result by id.
func (s *Session) Result(resultID string) (imageconv.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.results {
		if r.ID == resultID {
			return r, nil
		}
	}
	return imageconv.Result{}, fmt.Errorf("%w: %s", ErrResultNotFound, resultID)
}

// RemoveResult deletes one result by id.
func (s *Session) RemoveResult(resultID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := slices.IndexFunc(s.results, func(r imageconv.Result) bool { return r.ID == resultID })
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrResultNotFound, resultID)
	}
	s.results = slices.Delete(s.results, idx, idx+1)
	s.touch()
	return nil
}
