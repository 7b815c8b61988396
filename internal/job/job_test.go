package job

import (
	"strings"
	"testing"
	"time"

	"github.com/maauso/mediaconv/internal/dimension"
	"github.com/maauso/mediaconv/internal/gifenc"
	"github.com/maauso/mediaconv/internal/timeline"
)

func TestNew(t *testing.T) {
	job := New()

	if !strings.HasPrefix(job.ID, "job-") {
		t.Errorf("expected job ID with prefix job-, got %s", job.ID)
	}
	if job.Status != StatusInQueue {
		t.Errorf("expected status %s, got %s", StatusInQueue, job.Status)
	}
	if job.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
	if job.UpdatedAt.IsZero() {
		t.Error("expected UpdatedAt to be set")
	}
}

func TestNewWithID(t *testing.T) {
	id := "test-job-123"
	job := NewWithID(id)

	if job.ID != id {
		t.Errorf("expected ID %s, got %s", id, job.ID)
	}
	if job.Status != StatusInQueue {
		t.Errorf("expected status %s, got %s", StatusInQueue, job.Status)
	}
}

func TestJob_ValidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		wantErr bool
	}{
		{"IN_QUEUE to RUNNING", StatusInQueue, StatusRunning, false},
		{"IN_QUEUE to FAILED", StatusInQueue, StatusFailed, false},
		{"RUNNING to COMPLETED", StatusRunning, StatusCompleted, false},
		{"RUNNING to FAILED", StatusRunning, StatusFailed, false},
		{"IN_QUEUE to COMPLETED", StatusInQueue, StatusCompleted, true},
		{"RUNNING to IN_QUEUE", StatusRunning, StatusInQueue, true},
		{"COMPLETED to RUNNING", StatusCompleted, StatusRunning, true},
		{"FAILED to RUNNING", StatusFailed, StatusRunning, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewWithID("test")
			job.Status = tt.from

			err := job.TransitionTo(tt.to)
			if (err != nil) != tt.wantErr {
				t.Errorf("TransitionTo() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && job.Status != tt.to {
				t.Errorf("expected status %s, got %s", tt.to, job.Status)
			}
		})
	}
}

func TestJob_Start(t *testing.T) {
	job := New()
	beforeStart := time.Now()

	err := job.Start()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if job.Status != StatusRunning {
		t.Errorf("expected status %s, got %s", StatusRunning, job.Status)
	}
	if job.StartedAt.Before(beforeStart) {
		t.Error("expected StartedAt to be set after test start")
	}
}

func TestJob_Complete(t *testing.T) {
	job := New()
	_ = job.Start()
	job.SetStage(StagePublishing)

	out := Output{
		FileName:   "clip_2024-03-01T12-00-00.gif",
		URL:        "/files/gifs/clip_2024-03-01T12-00-00.gif",
		Size:       2048,
		FrameCount: 30,
		Verdict:    gifenc.Verdict{ValidHeader: true, Version: "89a", ImageBlocks: 30, Animated: true},
	}
	err := job.Complete(out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if job.Status != StatusCompleted {
		t.Errorf("expected status %s, got %s", StatusCompleted, job.Status)
	}
	if job.CompletedAt.IsZero() {
		t.Error("expected CompletedAt to be set")
	}
	if job.Progress != 100 {
		t.Errorf("expected progress 100, got %d", job.Progress)
	}
	if job.Stage != "" {
		t.Errorf("expected stage to be cleared, got %s", job.Stage)
	}
	if job.Output.FileName != out.FileName {
		t.Errorf("expected file name %s, got %s", out.FileName, job.Output.FileName)
	}
}

func TestJob_Complete_FromQueue(t *testing.T) {
	job := New()

	if err := job.Complete(Output{FileName: "x.gif"}); err != ErrInvalidTransition {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if job.Output.FileName != "" {
		t.Error("expected output to stay empty after a rejected completion")
	}
}

func TestJob_Fail(t *testing.T) {
	job := New()
	_ = job.Start()

	errMsg := "frame extraction failed at frame 3 (0.300s)"
	err := job.Fail(errMsg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if job.Status != StatusFailed {
		t.Errorf("expected status %s, got %s", StatusFailed, job.Status)
	}
	if job.Error != errMsg {
		t.Errorf("expected error %q, got %q", errMsg, job.Error)
	}
	if job.CompletedAt.IsZero() {
		t.Error("expected CompletedAt to be set on failure")
	}
}

func TestJob_CannotTransitionFromTerminalState(t *testing.T) {
	terminalStates := []Status{StatusCompleted, StatusFailed}
	allStates := []Status{StatusInQueue, StatusRunning, StatusCompleted, StatusFailed}

	for _, terminal := range terminalStates {
		for _, target := range allStates {
			t.Run(string(terminal)+"_to_"+string(target), func(t *testing.T) {
				job := NewWithID("test")
				job.Status = terminal

				err := job.TransitionTo(target)
				if err != ErrInvalidTransition {
					t.Errorf("expected ErrInvalidTransition, got %v", err)
				}
			})
		}
	}
}

func TestJob_IsTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusInQueue, false},
		{StatusRunning, false},
		{StatusCompleted, true},
		{StatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			job := NewWithID("test")
			job.Status = tt.status

			if got := job.IsTerminal(); got != tt.terminal {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.terminal)
			}
		})
	}
}

func TestJob_UpdateProgress(t *testing.T) {
	job := New()

	tests := []struct {
		input    int
		expected int
	}{
		{-10, 0},
		{25, 25},
		{10, 25}, // never moves backwards
		{50, 50},
		{150, 100},
	}

	for _, tt := range tests {
		job.UpdateProgress(tt.input)
		if job.Progress != tt.expected {
			t.Errorf("UpdateProgress(%d): expected %d, got %d", tt.input, tt.expected, job.Progress)
		}
	}
}

func TestJob_ClearOutput(t *testing.T) {
	job := New()
	job.Output = Output{FileName: "a.gif", LocalPath: "/tmp/a.gif", URL: "/files/gifs/a.gif"}

	job.ClearOutput()

	if job.Output.LocalPath != "" {
		t.Errorf("expected LocalPath to be cleared, got %s", job.Output.LocalPath)
	}
	if job.Output.URL == "" {
		t.Error("expected URL to be kept")
	}
}

func TestJob_Clone(t *testing.T) {
	job := New()
	job.Status = StatusRunning
	job.Progress = 50
	job.SessionID = "sess-1"
	job.Window = timeline.Window{Start: 1, End: 2.5}
	job.Size = dimension.Size{Width: 320, Height: 180}
	job.Output = Output{FileName: "a.gif"}

	clone := job.Clone()

	if clone.ID != job.ID {
		t.Errorf("expected ID %s, got %s", job.ID, clone.ID)
	}
	if clone.Status != job.Status {
		t.Errorf("expected Status %s, got %s", job.Status, clone.Status)
	}
	if clone.Progress != job.Progress {
		t.Errorf("expected Progress %d, got %d", job.Progress, clone.Progress)
	}
	if clone.Window != job.Window || clone.Size != job.Size {
		t.Error("expected window and size to be copied")
	}

	clone.Status = StatusCompleted
	clone.Output.FileName = "b.gif"
	if job.Status == StatusCompleted {
		t.Error("modifying clone should not affect original")
	}
	if job.Output.FileName != "a.gif" {
		t.Error("modifying clone output should not affect original")
	}
}

func TestJob_GetStatus_ThreadSafe(t *testing.T) {
	job := New()

	done := make(chan bool)
	go func() {
		for i := 0; i < 100; i++ {
			_ = job.GetStatus()
		}
		done <- true
	}()

	go func() {
		for i := 0; i < 100; i++ {
			_ = job.Start()
		}
		done <- true
	}()

	<-done
	<-done
}
