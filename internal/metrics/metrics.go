// Package metrics exposes Prometheus collectors for option paging, cascade
// runs, submissions and the HTTP surface. A Recorder satisfies the observer
// interfaces of the options, cascade and engine packages.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/goliatone/go-formflow/pkg/cascade"
	"github.com/goliatone/go-formflow/pkg/engine"
	"github.com/goliatone/go-formflow/pkg/options"
)

const namespace = "formflow"

type Recorder struct {
	registry *prometheus.Registry

	optionPages    *prometheus.CounterVec
	optionRows     *prometheus.CounterVec
	optionFailures *prometheus.CounterVec
	cascadeRuns    *prometheus.CounterVec
	submissions    *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

var (
	_ options.Observer      = (*Recorder)(nil)
	_ cascade.Observer      = (*Recorder)(nil)
	_ engine.SubmitObserver = (*Recorder)(nil)
)

// New registers the collectors on a private registry, plus the process and
// Go runtime collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		optionPages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "options",
			Name:      "pages_total",
			Help:      "Option list pages fetched from the backend.",
		}, []string{"source"}),
		optionRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "options",
			Name:      "rows_total",
			Help:      "Option rows fetched from the backend.",
		}, []string{"source"}),
		optionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "options",
			Name:      "fetch_failures_total",
			Help:      "Option list fetches that failed.",
		}, []string{"source"}),
		cascadeRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cascade",
			Name:      "runs_total",
			Help:      "Cascade runs triggered by driver field changes.",
		}, []string{"section", "driver", "result"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "requests",
			Name:      "submissions_total",
			Help:      "Request submissions by form and result.",
		}, []string{"form", "result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		}, []string{"method", "path"}),
	}
	r.registry.MustRegister(
		r.optionPages,
		r.optionRows,
		r.optionFailures,
		r.cascadeRuns,
		r.submissions,
		r.httpRequests,
		r.httpDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler exposes the registered collectors.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) PageFetched(source string, n int) {
	source = label(source)
	r.optionPages.WithLabelValues(source).Inc()
	r.optionRows.WithLabelValues(source).Add(float64(n))
}

func (r *Recorder) FetchFailed(source string) {
	r.optionFailures.WithLabelValues(label(source)).Inc()
}

func (r *Recorder) CascadeRun(section, driver string, err error) {
	r.cascadeRuns.WithLabelValues(label(section), label(driver), result(err)).Inc()
}

func (r *Recorder) Submitted(formID string, err error) {
	r.submissions.WithLabelValues(label(formID), result(err)).Inc()
}

// Instrument wraps next with request counting and timing. The path label
// keeps the first two segments so per-resource ids do not explode the
// label space.
func (r *Recorder) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "/metrics" {
			next.ServeHTTP(w, req)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, req)

		path := canonicalPath(req.URL.Path)
		method := strings.ToUpper(req.Method)
		r.httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		r.httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return "/" + strings.Join(parts, "/")
}

func label(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
