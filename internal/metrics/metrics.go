// Package metrics exposes Prometheus instrumentation for the HTTP layer and
// the arcade's domain events.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "arcade"

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests received",
	}, []string{"method", "route", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	httpInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "http_in_flight_requests",
		Help:      "Current number of in-flight HTTP requests",
	})

	scoreSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "score_submissions_total",
		Help:      "Accepted score submissions by game and source",
	}, []string{"game", "source"})

	newHighscores = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "new_highscores_total",
		Help:      "Submissions that raised a player's highscore",
	}, []string{"game"})

	registrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registrations_total",
		Help:      "Registration attempts by outcome",
	}, []string{"outcome"})

	logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Login attempts by outcome",
	}, []string{"outcome"})

	leaderboardBuild = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "global_leaderboard_build_seconds",
		Help:      "Time spent recomputing the global leaderboard",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
	})

	snapshots = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "snapshots_total",
		Help:      "Backup snapshot runs by outcome",
	}, []string{"outcome"})
)

// Submission sources
const (
	SourceHTTP  = "http"
	SourceKafka = "kafka"
)

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// RecordSubmission counts an accepted score
func RecordSubmission(game, source string, newHighscore bool) {
	scoreSubmissions.WithLabelValues(game, source).Inc()
	if newHighscore {
		newHighscores.WithLabelValues(game).Inc()
	}
}

// RecordRegistration counts a registration attempt
func RecordRegistration(ok bool) {
	registrations.WithLabelValues(outcome(ok)).Inc()
}

// RecordLogin counts a login attempt
func RecordLogin(ok bool) {
	logins.WithLabelValues(outcome(ok)).Inc()
}

// RecordSnapshot counts a backup snapshot run
func RecordSnapshot(ok bool) {
	snapshots.WithLabelValues(outcome(ok)).Inc()
}

// ObserveLeaderboardBuild records how long a global leaderboard took
func ObserveLeaderboardBuild(d time.Duration) {
	leaderboardBuild.Observe(d.Seconds())
}

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack keeps websocket upgrades working behind the middleware
func (r *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := r.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, fmt.Errorf("metrics: underlying ResponseWriter does not support hijacking")
}

// Middleware records request metrics labelled by chi route pattern
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := strconv.Itoa(rec.status)

		httpRequests.WithLabelValues(r.Method, route, status).Inc()
		httpLatency.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes the default Prometheus metrics endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}
