package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/mediaconv/internal/archive"
	"github.com/maauso/mediaconv/internal/dimension"
	"github.com/maauso/mediaconv/internal/imageconv"
	"github.com/maauso/mediaconv/internal/job"
	"github.com/maauso/mediaconv/internal/session"
	"github.com/maauso/mediaconv/internal/timeline"
	"github.com/maauso/mediaconv/internal/upload"
)

// multipartMemory is the part of a multipart upload kept in memory; the rest
// spills to temporary files.
const multipartMemory = 32 << 20

// Services groups the use cases the handlers delegate to.
type Services struct {
	Sessions *job.SessionService
	GIFs     *job.GIFService
	Images   *job.ImageService
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	sessions           *job.SessionService
	gifs               *job.GIFService
	images             *job.ImageService
	validator          *validator.Validate
	logger             *slog.Logger
	enableAsyncProcess bool
	maxRequestBytes    int64
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithAsyncProcessing enables or disables background processing.
// When disabled, CreateGIF only creates the job and returns immediately
// without starting background processing.
func WithAsyncProcessing(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.enableAsyncProcess = enabled
	}
}

// WithMaxRequestBytes bounds upload request bodies. Individual files are
// checked against their own limits by the services.
func WithMaxRequestBytes(n int64) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxRequestBytes = n
		}
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(svc Services, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		sessions:           svc.Sessions,
		gifs:               svc.GIFs,
		images:             svc.Images,
		validator:          validator.New(),
		logger:             logger,
		enableAsyncProcess: true, // Default to enabled
		maxRequestBytes:    upload.DefaultMaxVideoBytes + multipartMemory,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateSession handles POST /sessions requests.
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Create(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "failed to create session")
		return
	}
	writeJSON(w, http.StatusCreated, h.sessionResponse(sess))
}

// GetSession handles GET /sessions/{sid} requests.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Get(r.Context(), r.PathValue("sid"))
	if err != nil {
		h.writeServiceError(w, err, "failed to get session")
		return
	}
	writeJSON(w, http.StatusOK, h.sessionResponse(sess))
}

// DeleteSession handles DELETE /sessions/{sid} requests.
func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(r.Context(), r.PathValue("sid")); err != nil {
		h.writeServiceError(w, err, "failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadVideo handles POST /sessions/{sid}/video requests. The video is the
// multipart field "file".
func (h *Handlers) UploadVideo(w http.ResponseWriter, r *http.Request) {
	if !h.parseMultipart(w, r) {
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "multipart field \"file\" is required", "MISSING_FILE")
		return
	}
	fh := headers[0]

	f, err := fh.Open()
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read uploaded file", "INVALID_INPUT")
		return
	}
	defer f.Close()

	video, err := h.sessions.LoadVideo(r.Context(), r.PathValue("sid"), job.VideoUpload{
		Name:     fh.Filename,
		MimeType: partType(fh),
		Size:     fh.Size,
		Body:     f,
	})
	if err != nil {
		h.writeServiceError(w, err, "failed to load video")
		return
	}
	writeJSON(w, http.StatusOK, newVideoResponse(video))
}

// GetVideo handles GET /sessions/{sid}/video requests.
func (h *Handlers) GetVideo(w http.ResponseWriter, r *http.Request) {
	video, err := h.sessions.Video(r.Context(), r.PathValue("sid"))
	if err != nil {
		h.writeServiceError(w, err, "failed to get video")
		return
	}
	writeJSON(w, http.StatusOK, newVideoResponse(video))
}

// DeleteVideo handles DELETE /sessions/{sid}/video requests.
func (h *Handlers) DeleteVideo(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.ClearVideo(r.Context(), r.PathValue("sid")); err != nil {
		h.writeServiceError(w, err, "failed to remove video")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateWindow handles PUT /sessions/{sid}/video/window requests.
func (h *Handlers) UpdateWindow(w http.ResponseWriter, r *http.Request) {
	var req WindowRequest
	if !h.decode(w, r, &req) {
		return
	}

	video, err := h.sessions.AdjustWindow(r.Context(), r.PathValue("sid"), req.change())
	if err != nil {
		h.writeServiceError(w, err, "failed to update window")
		return
	}
	writeJSON(w, http.StatusOK, newVideoResponse(video))
}

// CreateGIF handles POST /sessions/{sid}/gif requests.
func (h *Handlers) CreateGIF(w http.ResponseWriter, r *http.Request) {
	var req CreateGIFRequest
	if !h.decode(w, r, &req) {
		return
	}

	sessionID := r.PathValue("sid")
	var (
		created *job.Job
		err     error
	)
	// Start runs the job in the background with a context detached from
	// the request.
	if h.enableAsyncProcess {
		created, err = h.gifs.Start(r.Context(), sessionID, req.settings())
	} else {
		created, err = h.gifs.CreateJob(r.Context(), sessionID, req.settings())
	}
	if err != nil {
		h.writeServiceError(w, err, "failed to create GIF job")
		return
	}

	h.logger.Info("GIF job created",
		slog.String("job_id", created.ID),
		slog.String("session_id", sessionID),
	)

	writeJSON(w, http.StatusAccepted, CreateGIFResponse{
		ID:             created.ID,
		Status:         string(created.Status),
		ExpectedFrames: timeline.TotalFrames(created.Window, created.FrameRate),
	})
}

// ListJobs handles GET /sessions/{sid}/jobs requests.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sid")
	if _, err := h.sessions.Get(r.Context(), sessionID); err != nil {
		h.writeServiceError(w, err, "failed to list jobs")
		return
	}
	jobs, err := h.gifs.ListJobs(r.Context(), sessionID)
	if err != nil {
		h.writeServiceError(w, err, "failed to list jobs")
		return
	}
	out := make([]JobResponse, len(jobs))
	for i, j := range jobs {
		out[i] = newJobResponse(j)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetJob handles GET /jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	gif, foundJob, err := h.gifs.OpenGIF(r.Context(), jobID)
	if err != nil && !errors.Is(err, job.ErrGIFUnavailable) {
		h.writeServiceError(w, err, "failed to get job")
		return
	}

	resp := newJobResponse(foundJob)

	// Include the GIF content while a local copy exists
	switch {
	case gif != nil:
		defer gif.Close()
		data, err := io.ReadAll(gif)
		if err != nil {
			h.logger.Error("failed to read GIF",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
			break
		}
		resp.GIFBase64 = base64.StdEncoding.EncodeToString(data)
	case foundJob.Status == job.StatusCompleted:
		// Don't fail the request, just log and omit the GIF
		h.logger.Warn("GIF not readable",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}

	writeJSON(w, http.StatusOK, resp)
}

// DownloadGIF handles GET /jobs/{id}/gif requests.
func (h *Handlers) DownloadGIF(w http.ResponseWriter, r *http.Request) {
	gif, foundJob, err := h.gifs.OpenGIF(r.Context(), r.PathValue("id"))
	if errors.Is(err, job.ErrGIFUnavailable) {
		writeError(w, http.StatusNotFound, "GIF not available", "GIF_NOT_AVAILABLE")
		return
	}
	if err != nil {
		h.writeServiceError(w, err, "failed to get job")
		return
	}
	defer gif.Close()

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": foundJob.Output.FileName}))
	if foundJob.Output.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(foundJob.Output.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, gif); err != nil {
		h.logger.Warn("GIF download interrupted",
			slog.String("job_id", foundJob.ID),
			slog.String("error", err.Error()),
		)
	}
}

// DeleteJob handles DELETE /jobs/{id} requests.
func (h *Handlers) DeleteJob(w http.ResponseWriter, r *http.Request) {
	if err := h.gifs.DeleteJob(r.Context(), r.PathValue("id")); err != nil {
		h.writeServiceError(w, err, "failed to delete job")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadImages handles POST /sessions/{sid}/images requests. Images are the
// multipart field "files".
func (h *Handlers) UploadImages(w http.ResponseWriter, r *http.Request) {
	if !h.parseMultipart(w, r) {
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "multipart field \"files\" is required", "MISSING_FILE")
		return
	}

	uploads := make([]job.ImageUpload, 0, len(headers))
	for _, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read uploaded file "+strconv.Quote(fh.Filename), "INVALID_INPUT")
			return
		}
		uploads = append(uploads, job.ImageUpload{Name: fh.Filename, MimeType: partType(fh), Data: data})
	}

	out, err := h.images.AddImages(r.Context(), r.PathValue("sid"), uploads)
	if err != nil {
		if errors.Is(err, upload.ErrInvalidInput) && len(out.Rejected) > 0 {
			writeJSON(w, http.StatusBadRequest, UploadImagesResponse{Accepted: []ImageResponse{}, Rejected: out.Rejected})
			return
		}
		h.writeServiceError(w, err, "failed to add images")
		return
	}
	writeJSON(w, http.StatusOK, UploadImagesResponse{
		Accepted: newImageResponses(out.Accepted),
		Rejected: out.Rejected,
	})
}

// ListImages handles GET /sessions/{sid}/images requests.
func (h *Handlers) ListImages(w http.ResponseWriter, r *http.Request) {
	items, err := h.images.Images(r.Context(), r.PathValue("sid"))
	if err != nil {
		h.writeServiceError(w, err, "failed to list images")
		return
	}
	writeJSON(w, http.StatusOK, newImageResponses(items))
}

// DeleteImage handles DELETE /sessions/{sid}/images/{id} requests.
func (h *Handlers) DeleteImage(w http.ResponseWriter, r *http.Request) {
	if err := h.images.RemoveImage(r.Context(), r.PathValue("sid"), r.PathValue("id")); err != nil {
		h.writeServiceError(w, err, "failed to remove image")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearImages handles DELETE /sessions/{sid}/images requests.
func (h *Handlers) ClearImages(w http.ResponseWriter, r *http.Request) {
	if err := h.images.ClearImages(r.Context(), r.PathValue("sid")); err != nil {
		h.writeServiceError(w, err, "failed to clear images")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ConvertImages handles POST /sessions/{sid}/images/convert requests.
func (h *Handlers) ConvertImages(w http.ResponseWriter, r *http.Request) {
	var req ConvertImagesRequest
	if !h.decode(w, r, &req) {
		return
	}

	sessionID := r.PathValue("sid")
	out, err := h.images.ConvertAll(r.Context(), sessionID, req.settings())
	if err != nil {
		h.writeServiceError(w, err, "failed to convert images")
		return
	}
	writeJSON(w, http.StatusOK, BatchResponse{
		Results: newResultResponses(sessionID, out.Results),
		Failed:  newResultResponses(sessionID, out.Failed),
	})
}

// ConvertImage handles POST /sessions/{sid}/images/{id}/convert requests.
func (h *Handlers) ConvertImage(w http.ResponseWriter, r *http.Request) {
	var req ConvertImagesRequest
	if !h.decode(w, r, &req) {
		return
	}

	sessionID := r.PathValue("sid")
	res, err := h.images.ConvertOne(r.Context(), sessionID, r.PathValue("id"), req.settings())
	if err != nil {
		if errors.Is(err, imageconv.ErrItemFailed) {
			writeJSON(w, http.StatusUnprocessableEntity, newResultResponse(sessionID, res))
			return
		}
		h.writeServiceError(w, err, "failed to convert image")
		return
	}
	writeJSON(w, http.StatusOK, newResultResponse(sessionID, res))
}

// ListResults handles GET /sessions/{sid}/results requests.
func (h *Handlers) ListResults(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sid")
	results, err := h.images.Results(r.Context(), sessionID)
	if err != nil {
		h.writeServiceError(w, err, "failed to list results")
		return
	}
	writeJSON(w, http.StatusOK, newResultResponses(sessionID, results))
}

// DownloadResult handles GET /sessions/{sid}/results/{id}/download requests.
func (h *Handlers) DownloadResult(w http.ResponseWriter, r *http.Request) {
	res, err := h.images.Result(r.Context(), r.PathValue("sid"), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err, "failed to get result")
		return
	}
	data, err := res.Artifact.Bytes()
	if err != nil {
		h.writeServiceError(w, err, "failed to read result")
		return
	}

	w.Header().Set("Content-Type", res.MimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": res.FileName}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// DeleteResult handles DELETE /sessions/{sid}/results/{id} requests.
func (h *Handlers) DeleteResult(w http.ResponseWriter, r *http.Request) {
	if err := h.images.RemoveResult(r.Context(), r.PathValue("sid"), r.PathValue("id")); err != nil {
		h.writeServiceError(w, err, "failed to remove result")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExportResults handles POST /sessions/{sid}/results/export requests.
func (h *Handlers) ExportResults(w http.ResponseWriter, r *http.Request) {
	res, err := h.images.Export(r.Context(), r.PathValue("sid"))
	if err != nil {
		if errors.Is(err, archive.ErrPublishFailed) {
			writeJSON(w, http.StatusBadGateway, res)
			return
		}
		h.writeServiceError(w, err, "failed to export results")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) sessionResponse(sess *session.Session) SessionResponse {
	resp := SessionResponse{
		ID:        sess.ID,
		CreatedAt: sess.CreatedAt,
		Images:    newImageResponses(sess.Images()),
		Results:   newResultResponses(sess.ID, sess.Results()),
		Busy:      []string{},
	}
	if v, err := sess.Video(); err == nil {
		resp.Video = newVideoResponse(v)
	}
	for _, p := range []session.Pipeline{session.PipelineVideo, session.PipelineImage} {
		if sess.Busy(p) {
			resp.Busy = append(resp.Busy, string(p))
		}
	}
	return resp
}

// decode reads and validates a JSON body into dst. An empty body leaves dst
// at its zero value. It reports whether the handler should continue.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return false
	}

	// Validate request
	if err := h.validator.Struct(dst); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return false
	}
	return true
}

func (h *Handlers) parseMultipart(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxRequestBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload is too large", "INVALID_INPUT")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid multipart body", "INVALID_INPUT")
		return false
	}
	return true
}

// writeServiceError maps domain errors to HTTP responses. Unexpected errors
// are logged and reported with msg.
func (h *Handlers) writeServiceError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found", "SESSION_NOT_FOUND")
	case errors.Is(err, job.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
	case errors.Is(err, session.ErrImageNotFound):
		writeError(w, http.StatusNotFound, err.Error(), "IMAGE_NOT_FOUND")
	case errors.Is(err, session.ErrResultNotFound):
		writeError(w, http.StatusNotFound, err.Error(), "RESULT_NOT_FOUND")
	case errors.Is(err, session.ErrBusy):
		writeError(w, http.StatusConflict, err.Error(), "BUSY")
	case errors.Is(err, session.ErrNoVideo):
		writeError(w, http.StatusConflict, err.Error(), "NO_VIDEO")
	case errors.Is(err, session.ErrNoImages):
		writeError(w, http.StatusConflict, err.Error(), "NO_IMAGES")
	case errors.Is(err, archive.ErrNothingToExport):
		writeError(w, http.StatusConflict, "no converted images to export", "NO_RESULTS")
	case errors.Is(err, job.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error(), "JOB_NOT_FINISHED")
	case errors.Is(err, upload.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_INPUT")
	case errors.Is(err, timeline.ErrInvalidWindow),
		errors.Is(err, timeline.ErrInvalidRate),
		errors.Is(err, job.ErrInvalidSettings),
		errors.Is(err, job.ErrUnknownWindowAction),
		errors.Is(err, dimension.ErrInvalidSourceDimensions):
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
	default:
		h.logger.Error(msg, slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, msg, "INTERNAL_ERROR")
	}
}

// partType returns the declared content type of an uploaded part, falling
// back to the file extension.
func partType(fh *multipart.FileHeader) string {
	if ct := fh.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" {
		return ct
	}
	return mime.TypeByExtension(filepath.Ext(fh.Filename))
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
