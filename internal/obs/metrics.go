package obs

import (
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	submissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carevault_submissions_total",
			Help: "Ledger operations submitted, by operation and result code.",
		},
		[]string{"op", "result"},
	)

	submissionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "carevault_submission_duration_seconds",
			Help:    "Time to apply and journal one operation.",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"op"},
	)

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "carevault_ready",
		Help: "1 when the service accepts submissions.",
	})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "carevault_build_info",
		Help: "Constant 1, labelled with the running build.",
	}, []string{"version", "commit", "go_version"})

	initOnce sync.Once
)

// Init registers the service metrics in the default registry.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(httpInFlight, httpRequestsTotal, httpRequestDuration,
			submissionsTotal, submissionDuration, ready, buildInfo)
	})
}

// InitBuildInfo registers the metrics and publishes carevault_build_info.
func InitBuildInfo(version, commit string) {
	Init()
	buildInfo.Reset()
	buildInfo.WithLabelValues(version, commit, runtime.Version()).Set(1)
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSubmission records one submitted operation. result is "ok" or an error code.
func ObserveSubmission(op, result string, d time.Duration) {
	submissionsTotal.WithLabelValues(op, result).Inc()
	submissionDuration.WithLabelValues(op).Observe(d.Seconds())
}

// SetReady flips the readiness gauge.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
		return
	}
	ready.Set(0)
}

// Instrument measures RPS, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// routeTemplates keeps the path label bounded; {x} matches any one segment.
var routeTemplates = [][]string{
	split("/v1/identities/{address}"),
	split("/v1/identities/{address}/verify"),
	split("/v1/identities/{address}/reject"),
	split("/v1/identities/{address}/suspend"),
	split("/v1/records/{id}"),
	split("/v1/records/{id}/deactivate"),
	split("/v1/records/{id}/access-requests"),
	split("/v1/records/{id}/access/{doctor}"),
	split("/v1/records/{id}/key"),
	split("/v1/access/{id}"),
	split("/v1/access/{id}/grant"),
	split("/v1/access/{id}/revoke"),
	split("/v1/patients/{address}/records"),
	split("/v1/patients/{address}/pending-requests"),
	split("/v1/doctors/{address}/records"),
}

// literal routes that would otherwise match a template.
var literalRoutes = map[string]bool{
	"/v1/records/count":         true,
	"/v1/identities/patients":   true,
	"/v1/identities/doctors":    true,
	"/v1/identities/me/profile": true,
}

func split(p string) []string { return strings.Split(strings.Trim(p, "/"), "/") }

// CanonicalPath maps a request path onto its route template so metrics
// labels stay bounded. Unknown paths are returned without the query.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	if literalRoutes[p] {
		return p
	}
	segs := split(p)
	for _, tmpl := range routeTemplates {
		if len(tmpl) != len(segs) {
			continue
		}
		out := make([]string, len(tmpl))
		matched := true
		for i, t := range tmpl {
			if strings.HasPrefix(t, "{") {
				out[i] = ":" + strings.Trim(t, "{}")
				continue
			}
			if t != segs[i] {
				matched = false
				break
			}
			out[i] = t
		}
		if matched {
			return "/" + strings.Join(out, "/")
		}
	}
	return p
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming responses working through the wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
