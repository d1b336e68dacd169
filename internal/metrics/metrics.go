// Package metrics holds the application's Prometheus collectors.
//
// Collectors are registered on a private Registry rather than the global
// default one, so tests can build as many Recorders as they like.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "recipe_list"

// Recorder owns one registry and the collectors registered on it.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	recipesCreated     prometheus.Counter
	recipesDeleted     prometheus.Counter
	thumbnailFallbacks prometheus.Counter
	rateLimited        prometheus.Counter
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests handled.",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
			},
			[]string{"method", "route"},
		),
		recipesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recipes_created_total",
			Help:      "Recipes published.",
		}),
		recipesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recipes_deleted_total",
			Help:      "Recipes deleted by their authors.",
		}),
		thumbnailFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "thumbnail_fallbacks_total",
			Help:      "Thumbnail copies that failed and fell back to the placeholder.",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the login rate limiter.",
		}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.httpRequests,
		r.httpDuration,
		r.recipesCreated,
		r.recipesDeleted,
		r.thumbnailFallbacks,
		r.rateLimited,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one finished HTTP request. route is the chi route
// pattern, not the raw path, to keep label cardinality bounded.
func (r *Recorder) ObserveRequest(method, route string, status int, d time.Duration) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (r *Recorder) RecipeCreated() {
	if r != nil {
		r.recipesCreated.Inc()
	}
}

func (r *Recorder) RecipeDeleted() {
	if r != nil {
		r.recipesDeleted.Inc()
	}
}

func (r *Recorder) ThumbnailFallback() {
	if r != nil {
		r.thumbnailFallbacks.Inc()
	}
}

func (r *Recorder) RateLimited() {
	if r != nil {
		r.rateLimited.Inc()
	}
}
