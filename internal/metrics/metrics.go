// Package metrics exposes Prometheus metrics for the conversion pipelines.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maauso/mediaconv/internal/imageconv"
)

// Recorder holds every metric and implements the observer interfaces of the
// job, imageconv and archive packages.
type Recorder struct {
	gatherer prometheus.Gatherer

	gifRunsTotal     *prometheus.CounterVec
	gifStageDuration *prometheus.HistogramVec
	framesSampled    prometheus.Counter
	activeRuns       *prometheus.GaugeVec
	imagesTotal      *prometheus.CounterVec
	imageDuration    prometheus.Histogram
	archivesTotal    prometheus.Counter
	archiveFallbacks prometheus.Counter
	archivedEntries  prometheus.Counter
}

// New registers the metrics with reg. A nil reg uses a fresh registry, which
// keeps tests independent of the global one.
func New(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Recorder{
		gatherer: reg,
		gifRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mediaconv_gif_runs_total",
			Help: "Total number of GIF conversion runs, by final status",
		}, []string{"status"}),
		gifStageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mediaconv_gif_stage_duration_seconds",
			Help:    "Duration of GIF pipeline stages",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
		framesSampled: f.NewCounter(prometheus.CounterOpts{
			Name: "mediaconv_frames_sampled_total",
			Help: "Total number of video frames sampled across all runs",
		}),
		activeRuns: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mediaconv_active_runs",
			Help: "Number of conversion runs in progress, by pipeline",
		}, []string{"pipeline"}),
		imagesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mediaconv_images_converted_total",
			Help: "Total number of image conversions, by output format and status",
		}, []string{"format", "status"}),
		imageDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "mediaconv_image_convert_duration_seconds",
			Help:    "Duration of successful single image conversions",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		archivesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "mediaconv_archives_built_total",
			Help: "Total number of archives built and published",
		}),
		archiveFallbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "mediaconv_archive_fallbacks_total",
			Help: "Total number of exports published file by file",
		}),
		archivedEntries: f.NewCounter(prometheus.CounterOpts{
			Name: "mediaconv_archived_entries_total",
			Help: "Total number of files placed in archives",
		}),
	}
}

// Handler serves the registered metrics.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

// RunStarted increments the active run gauge of pipeline.
func (r *Recorder) RunStarted(pipeline string) {
	r.activeRuns.WithLabelValues(pipeline).Inc()
}

// RunFinished decrements the active run gauge of pipeline.
func (r *Recorder) RunFinished(pipeline string) {
	r.activeRuns.WithLabelValues(pipeline).Dec()
}

// GIFFinished counts a finished GIF run.
func (r *Recorder) GIFFinished(status string) {
	r.gifRunsTotal.WithLabelValues(status).Inc()
}

// StageDuration observes how long a GIF stage took.
func (r *Recorder) StageDuration(stage string, d time.Duration) {
	r.gifStageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// FramesSampled adds n sampled frames.
func (r *Recorder) FramesSampled(n int) {
	r.framesSampled.Add(float64(n))
}

// ItemConverted implements imageconv.Observer.
func (r *Recorder) ItemConverted(format imageconv.Format, d time.Duration) {
	r.imagesTotal.WithLabelValues(string(format), string(imageconv.StatusConverted)).Inc()
	r.imageDuration.Observe(d.Seconds())
}

// ItemFailed implements imageconv.Observer.
func (r *Recorder) ItemFailed(format imageconv.Format) {
	r.imagesTotal.WithLabelValues(string(format), string(imageconv.StatusFailed)).Inc()
}

// ArchiveBuilt implements archive.Observer.
func (r *Recorder) ArchiveBuilt(entries int) {
	r.archivesTotal.Inc()
	r.archivedEntries.Add(float64(entries))
}

// ArchiveFellBack implements archive.Observer.
func (r *Recorder) ArchiveFellBack() {
	r.archiveFallbacks.Inc()
}
