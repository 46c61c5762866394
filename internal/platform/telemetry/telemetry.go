// Package telemetry exposes Prometheus metrics for the HTTP surface and the
// normalization engine.
package telemetry

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "medterm"

// Provider owns a private registry and the collectors registered on it.
type Provider struct {
	registry *prometheus.Registry

	httpDuration   *prometheus.HistogramVec
	httpInFlight   prometheus.Gauge
	normalizations *prometheus.CounterVec
	normDuration   prometheus.Histogram
	categoryDur    *prometheus.HistogramVec
	forbiddenHits  *prometheus.CounterVec
	catalogReloads *prometheus.CounterVec
	catalogRules   prometheus.Gauge
	catalogInfo    *prometheus.GaugeVec
	rateLimited    prometheus.Counter
}

// NewProvider registers all collectors, plus the Go runtime and process
// collectors, on a fresh registry.
func NewProvider() *Provider {
	p := &Provider{
		registry: prometheus.NewRegistry(),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method, route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Requests currently being served.",
		}),
		normalizations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "normalizations_total",
			Help:      "Normalization calls by outcome (ok, findings, rejected, failed).",
		}, []string{"outcome"}),
		normDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "normalization_duration_seconds",
			Help:      "End-to-end normalization latency.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		}),
		categoryDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "category_duration_seconds",
			Help:      "Time spent applying one rule category.",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01},
		}, []string{"category"}),
		forbiddenHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forbidden_expressions_total",
			Help:      "Forbidden phrases found, by where they were found (input, output).",
		}, []string{"stage"}),
		catalogReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "reloads_total",
			Help:      "Catalog load attempts by result.",
		}, []string{"result"}),
		catalogRules: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "rules",
			Help:      "Rules in the published catalog.",
		}),
		catalogInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "info",
			Help:      "Always 1; labelled with the published catalog version.",
		}, []string{"version"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
	}

	p.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		p.httpDuration,
		p.httpInFlight,
		p.normalizations,
		p.normDuration,
		p.categoryDur,
		p.forbiddenHits,
		p.catalogReloads,
		p.catalogRules,
		p.catalogInfo,
		p.rateLimited,
	)
	return p
}

// Registry returns the underlying registry, mainly for tests.
func (p *Provider) Registry() *prometheus.Registry { return p.registry }

// MetricsMiddleware records latency per matched route. Unmatched paths are
// folded into one label to keep cardinality bounded.
func (p *Provider) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p.httpInFlight.Inc()
			defer p.httpInFlight.Dec()

			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			p.httpDuration.
				WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// PrometheusHandler serves the registry in the text exposition format.
func (p *Provider) PrometheusHandler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))
}

// ObserveNormalization records one normalization call.
func (p *Provider) ObserveNormalization(outcome string, elapsed time.Duration) {
	p.normalizations.WithLabelValues(outcome).Inc()
	p.normDuration.Observe(elapsed.Seconds())
}

// ObserveCategory records time spent in one rule category.
func (p *Provider) ObserveCategory(category string, elapsed time.Duration) {
	p.categoryDur.WithLabelValues(category).Observe(elapsed.Seconds())
}

// ForbiddenFound counts forbidden phrases found at a stage.
func (p *Provider) ForbiddenFound(stage string, n int) {
	if n > 0 {
		p.forbiddenHits.WithLabelValues(stage).Add(float64(n))
	}
}

// CatalogLoaded records a load attempt. On success the published version and
// rule count are updated.
func (p *Provider) CatalogLoaded(version string, rules int, err error) {
	if err != nil {
		p.catalogReloads.WithLabelValues("error").Inc()
		return
	}
	p.catalogReloads.WithLabelValues("success").Inc()
	p.catalogRules.Set(float64(rules))
	p.catalogInfo.Reset()
	p.catalogInfo.WithLabelValues(version).Set(1)
}

// RateLimited counts one rejected request.
func (p *Provider) RateLimited() { p.rateLimited.Inc() }
