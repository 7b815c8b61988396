// Package job provides the Job aggregate for GIF conversion runs and the
// services that drive both conversion pipelines.
package job

import (
	"errors"
	"sync"
	"time"

	"github.com/maauso/mediaconv/internal/dimension"
	"github.com/maauso/mediaconv/internal/gifenc"
	"github.com/maauso/mediaconv/internal/job/id"
	"github.com/maauso/mediaconv/internal/timeline"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusInQueue indicates the job was accepted and has not started yet.
	StatusInQueue Status = "IN_QUEUE"
	// StatusRunning indicates frames are being sampled or encoded.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates the GIF was produced and published.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the run was aborted. No partial output is kept.
	StatusFailed Status = "FAILED"
)

// Stage names the step a running job is in.
type Stage string

// Stages of a GIF run.
const (
	StageSampling   Stage = "sampling"
	StageEncoding   Stage = "encoding"
	StagePublishing Stage = "publishing"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusInQueue:   {StatusRunning, StatusFailed},
	StatusRunning:   {StatusCompleted, StatusFailed},
	StatusCompleted: {},
	StatusFailed:    {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Output describes a finished GIF.
type Output struct {
	// FileName is the generated name, <source>_<timestamp>.gif.
	FileName string
	// LocalPath is the temporary copy kept for inline download.
	LocalPath string
	// URL is where the GIF was published.
	URL string
	// Size is the GIF size in bytes.
	Size int64
	// FrameCount is the number of frames encoded.
	FrameCount int
	// Verdict is the container check of the produced bytes.
	Verdict gifenc.Verdict
}

// Job represents one GIF conversion run.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string
	// SessionID is the session whose video is converted.
	SessionID string
	// Status is the current job state.
	Status Status
	// Stage is the current step while running.
	Stage Stage
	// Progress is the percentage of completion (0-100). Sampling covers
	// 0-50 and encoding 50-100.
	Progress int
	// Error contains any error message if the job failed.
	Error string

	// SourceName is the original video file name.
	SourceName string
	// SourcePath is the temporary path of the video.
	SourcePath string
	// Window is the sampled time range.
	Window timeline.Window
	// FrameRate is the sampling rate in frames per second.
	FrameRate float64
	// DelayMs is the display delay of every frame.
	DelayMs int
	// Size is the output raster size.
	Size dimension.Size
	// Quality is the encoder quality knob (1 best, 30 fastest).
	Quality int

	// Output is set once the job completes.
	Output Output

	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when processing started.
	StartedAt time.Time
	// CompletedAt is when processing finished.
	CompletedAt time.Time
}

// New creates a new Job with a generated ID and initial IN_QUEUE status.
func New() *Job {
	return NewWithID(id.Generate("job"))
}

// NewWithID creates a new Job with the specified ID and initial IN_QUEUE status.
// Useful for testing or when ID needs to be externally generated.
func NewWithID(jobID string) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		Status:    StatusInQueue,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	// Set timestamps based on state
	switch status {
	case StatusRunning:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted, StatusFailed:
		j.CompletedAt = j.UpdatedAt
		j.Stage = ""
	}

	return nil
}

// Start transitions the job from IN_QUEUE to RUNNING.
// Returns ErrInvalidTransition if the job is not in IN_QUEUE state.
func (j *Job) Start() error {
	return j.TransitionTo(StatusRunning)
}

// Complete records the output and transitions the job to COMPLETED.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) Complete(out Output) error {
	j.mu.Lock()
	if !canTransition(j.Status, StatusCompleted) {
		j.mu.Unlock()
		return ErrInvalidTransition
	}
	j.Output = out
	j.Progress = 100
	j.mu.Unlock()
	return j.TransitionTo(StatusCompleted)
}

// Fail transitions the job to FAILED state with an error message.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) Fail(errMsg string) error {
	j.mu.Lock()
	j.Error = errMsg
	j.mu.Unlock()
	return j.TransitionTo(StatusFailed)
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// SetStage records the current step.
func (j *Job) SetStage(stage Stage) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Stage = stage
	j.UpdatedAt = time.Now()
}

// UpdateProgress sets the progress percentage (0-100).
// Progress never moves backwards.
func (j *Job) UpdateProgress(progress int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	if progress < j.Progress {
		return
	}
	j.Progress = progress
	j.UpdatedAt = time.Now()
}

// ClearOutput forgets the local copy of the GIF.
// This is used when deleting the job's GIF file.
func (j *Job) ClearOutput() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Output.LocalPath = ""
	j.UpdatedAt = time.Now()
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return &Job{
		ID:          j.ID,
		SessionID:   j.SessionID,
		Status:      j.Status,
		Stage:       j.Stage,
		Progress:    j.Progress,
		Error:       j.Error,
		SourceName:  j.SourceName,
		SourcePath:  j.SourcePath,
		Window:      j.Window,
		FrameRate:   j.FrameRate,
		DelayMs:     j.DelayMs,
		Size:        j.Size,
		Quality:     j.Quality,
		Output:      j.Output,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}
