// Package server provides the HTTP server for the media conversion API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"time"

	"github.com/maauso/mediaconv/internal/dimension"
	"github.com/maauso/mediaconv/internal/gifenc"
	"github.com/maauso/mediaconv/internal/imageconv"
	"github.com/maauso/mediaconv/internal/job"
	"github.com/maauso/mediaconv/internal/session"
	"github.com/maauso/mediaconv/internal/timeline"
	"github.com/maauso/mediaconv/internal/upload"
)

// WindowRequest is the HTTP request body for editing the selected time window.
type WindowRequest struct {
	// Action is one of start, end, nearest, input or reset.
	Action string `json:"action" validate:"required,oneof=start end nearest input reset"`
	// Time is the target position in seconds; the start time for input.
	Time float64 `json:"time" validate:"gte=0"`
	// Duration is the window length in seconds for input.
	Duration float64 `json:"duration" validate:"required_if=Action input,gte=0"`
}

// CreateGIFRequest is the HTTP request body for starting a GIF conversion.
// Omitted fields fall back to the session's preview size and service defaults.
// Sizes above the configured maximum dimension are clamped, not rejected.
type CreateGIFRequest struct {
	Width      int     `json:"width" validate:"omitempty,min=1"`
	Height     int     `json:"height" validate:"omitempty,min=1"`
	KeepAspect bool    `json:"keep_aspect"`
	FrameRate  float64 `json:"frame_rate" validate:"omitempty,gt=0,lte=60"`
	Quality    int     `json:"quality" validate:"omitempty,min=1,max=30"`
}

// ConvertImagesRequest is the HTTP request body for converting images.
type ConvertImagesRequest struct {
	Format     string `json:"format" validate:"omitempty,oneof=jpg jpeg png webp"`
	Quality    int    `json:"quality" validate:"omitempty,min=1,max=100"`
	Width      int    `json:"width" validate:"omitempty,min=1"`
	Height     int    `json:"height" validate:"omitempty,min=1"`
	KeepAspect bool   `json:"keep_aspect"`
}

// SessionResponse is the HTTP response describing a session.
type SessionResponse struct {
	ID        string           `json:"id"`
	CreatedAt time.Time        `json:"created_at"`
	Video     *VideoResponse   `json:"video,omitempty"`
	Images    []ImageResponse  `json:"images"`
	Results   []ResultResponse `json:"results"`
	// Busy lists the pipelines with an active run.
	Busy []string `json:"busy"`
}

// WindowResponse describes the selected time window.
type WindowResponse struct {
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	Length    float64 `json:"length"`
	StartText string  `json:"start_text"`
	EndText   string  `json:"end_text"`
}

// VideoResponse is the HTTP response describing the loaded video.
type VideoResponse struct {
	Name         string         `json:"name"`
	MimeType     string         `json:"mime_type"`
	Size         int64          `json:"size"`
	SizeText     string         `json:"size_text"`
	Duration     float64        `json:"duration"`
	DurationText string         `json:"duration_text"`
	Dimensions   dimension.Size `json:"dimensions"`
	Codec        string         `json:"codec,omitempty"`
	Window       WindowResponse `json:"window"`
	OutputSize   dimension.Size `json:"output_size"`
}

// CreateGIFResponse is the HTTP response after starting a GIF conversion.
type CreateGIFResponse struct {
	// ID is the unique identifier for the created job.
	ID string `json:"id"`
	// Status is the initial job status.
	Status string `json:"status"`
	// ExpectedFrames is the number of frames the run will sample.
	ExpectedFrames int `json:"expected_frames"`
}

// JobResponse is the HTTP response for getting job details.
type JobResponse struct {
	// ID is the unique identifier for the job.
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	// Status is the current job status.
	Status string `json:"status"`
	Stage  string `json:"stage,omitempty"`
	// Progress is the percentage of completion (0-100).
	Progress int `json:"progress"`
	// Error contains any error message if the job failed.
	Error string `json:"error,omitempty"`

	Window    WindowResponse `json:"window"`
	FrameRate float64        `json:"frame_rate"`
	DelayMs   int            `json:"delay_ms"`
	Size      dimension.Size `json:"size"`
	Quality   int            `json:"quality"`

	FileName   string          `json:"file_name,omitempty"`
	URL        string          `json:"url,omitempty"`
	FileSize   int64           `json:"file_size,omitempty"`
	SizeText   string          `json:"size_text,omitempty"`
	FrameCount int             `json:"frame_count,omitempty"`
	Verdict    *gifenc.Verdict `json:"verdict,omitempty"`
	// GIFBase64 is the base64-encoded GIF while a local copy exists.
	GIFBase64 string `json:"gif_base64,omitempty"`
}

// ImageResponse describes one source image of the batch.
type ImageResponse struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	MimeType   string         `json:"mime_type"`
	Size       int64          `json:"size"`
	SizeText   string         `json:"size_text"`
	Dimensions dimension.Size `json:"dimensions"`
	Status     string         `json:"status"`
	Error      string         `json:"error,omitempty"`
}

// UploadImagesResponse is the HTTP response after adding images.
type UploadImagesResponse struct {
	Accepted []ImageResponse    `json:"accepted"`
	Rejected []upload.Rejection `json:"rejected,omitempty"`
}

// ResultResponse describes one converted image.
type ResultResponse struct {
	ID           string         `json:"id,omitempty"`
	ItemID       string         `json:"item_id"`
	OriginalName string         `json:"original_name"`
	FileName     string         `json:"file_name"`
	Format       string         `json:"format"`
	MimeType     string         `json:"mime_type"`
	Dimensions   dimension.Size `json:"dimensions"`
	OriginalSize int64          `json:"original_size"`
	Size         int64          `json:"size,omitempty"`
	SizeText     string         `json:"size_text,omitempty"`
	// SizeEstimated is set when Size was derived from the encoded text form.
	SizeEstimated bool   `json:"size_estimated,omitempty"`
	Status        string `json:"status"`
	Error         string `json:"error,omitempty"`
	DownloadURL   string `json:"download_url,omitempty"`
}

// BatchResponse is the HTTP response after converting the whole batch.
type BatchResponse struct {
	Results []ResultResponse `json:"results"`
	Failed  []ResultResponse `json:"failed,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}

func (r CreateGIFRequest) settings() job.GIFSettings {
	return job.GIFSettings{
		FrameRate:  r.FrameRate,
		Quality:    r.Quality,
		Width:      r.Width,
		Height:     r.Height,
		KeepAspect: r.KeepAspect,
	}
}

func (r ConvertImagesRequest) settings() imageconv.Settings {
	return imageconv.Settings{
		Format:     imageconv.ParseFormat(r.Format),
		Quality:    r.Quality,
		Width:      r.Width,
		Height:     r.Height,
		KeepAspect: r.KeepAspect,
	}
}

func (r WindowRequest) change() job.WindowChange {
	return job.WindowChange{
		Action: job.WindowAction(r.Action),
		Time:   r.Time,
		Length: r.Duration,
	}
}

func newWindowResponse(w timeline.Window) WindowResponse {
	return WindowResponse{
		Start:     w.Start,
		End:       w.End,
		Length:    w.Length(),
		StartText: timeline.FormatTime(w.Start),
		EndText:   timeline.FormatTime(w.End),
	}
}

func newVideoResponse(v session.Video) *VideoResponse {
	return &VideoResponse{
		Name:         v.Name,
		MimeType:     v.MimeType,
		Size:         v.Size,
		SizeText:     upload.FormatFileSize(v.Size),
		Duration:     v.Duration,
		DurationText: timeline.FormatTime(v.Duration),
		Dimensions:   v.Dimensions,
		Codec:        v.Codec,
		Window:       newWindowResponse(v.Window),
		OutputSize:   v.OutputSize,
	}
}

func newImageResponse(it imageconv.Item) ImageResponse {
	return ImageResponse{
		ID:         it.ID,
		Name:       it.Name,
		MimeType:   it.MimeType,
		Size:       it.Size,
		SizeText:   upload.FormatFileSize(it.Size),
		Dimensions: it.Dimensions,
		Status:     string(it.Status),
		Error:      it.Error,
	}
}

func newImageResponses(items []imageconv.Item) []ImageResponse {
	out := make([]ImageResponse, len(items))
	for i, it := range items {
		out[i] = newImageResponse(it)
	}
	return out
}

func newResultResponse(sessionID string, r imageconv.Result) ResultResponse {
	resp := ResultResponse{
		ID:           r.ID,
		ItemID:       r.ItemID,
		OriginalName: r.OriginalName,
		FileName:     r.FileName,
		Format:       string(r.Format),
		MimeType:     r.MimeType,
		Dimensions:   r.Dimensions,
		OriginalSize: r.OriginalSize,
		Status:       string(r.Status),
		Error:        r.Error,
	}
	if r.Status == imageconv.StatusConverted {
		resp.Size, resp.SizeEstimated = r.Size()
		resp.SizeText = upload.FormatFileSize(resp.Size)
		if r.ID != "" {
			resp.DownloadURL = "/sessions/" + sessionID + "/results/" + r.ID + "/download"
		}
	}
	return resp
}

func newResultResponses(sessionID string, results []imageconv.Result) []ResultResponse {
	out := make([]ResultResponse, len(results))
	for i, r := range results {
		out[i] = newResultResponse(sessionID, r)
	}
	return out
}

func newJobResponse(j *job.Job) JobResponse {
	resp := JobResponse{
		ID:        j.ID,
		SessionID: j.SessionID,
		Status:    string(j.Status),
		Stage:     string(j.Stage),
		Progress:  j.Progress,
		Error:     j.Error,
		Window:    newWindowResponse(j.Window),
		FrameRate: j.FrameRate,
		DelayMs:   j.DelayMs,
		Size:      j.Size,
		Quality:   j.Quality,
	}
	if j.Status == job.StatusCompleted {
		verdict := j.Output.Verdict
		resp.FileName = j.Output.FileName
		resp.URL = j.Output.URL
		resp.FileSize = j.Output.Size
		resp.SizeText = upload.FormatFileSize(j.Output.Size)
		resp.FrameCount = j.Output.FrameCount
		resp.Verdict = &verdict
	}
	return resp
}
