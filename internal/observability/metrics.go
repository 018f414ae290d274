package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	skillsLoaded       prometheus.Gauge
	skillLoadTotal     *prometheus.CounterVec
	skillLoadDuration  *prometheus.HistogramVec
	skillReloadTotal   *prometheus.CounterVec
	discoveryErrors    *prometheus.CounterVec
	statementTotal     *prometheus.CounterVec
	statementDuration  *prometheus.HistogramVec
	permissionDenied   *prometheus.CounterVec
	publishTotal       *prometheus.CounterVec
	deliveriesTotal    *prometheus.CounterVec
	handlerErrorsTotal *prometheus.CounterVec
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			skillsLoaded: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "skillhost_skills_loaded",
					Help: "Number of skills currently in the registry.",
				},
			),
			skillLoadTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "skillhost_skill_load_total",
					Help: "Skill load attempts by skill and status.",
				},
				[]string{"skill", "status"},
			),
			skillLoadDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "skillhost_skill_load_duration_seconds",
					Help:    "Time to instantiate a skill, schema included.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"skill"},
			),
			skillReloadTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "skillhost_skill_reload_total",
					Help: "Hot reloads by skill and status.",
				},
				[]string{"skill", "status"},
			),
			discoveryErrors: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "skillhost_discovery_errors_total",
					Help: "Manifests skipped during discovery by source.",
				},
				[]string{"source"},
			),
			statementTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "skillhost_statements_total",
					Help: "Statements executed by skill, class and status.",
				},
				[]string{"skill", "class", "status"},
			),
			statementDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "skillhost_statement_duration_seconds",
					Help:    "Statement execution time by class.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"class"},
			),
			permissionDenied: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "skillhost_permission_denied_total",
					Help: "Statements rejected by the permission check, by skill and class.",
				},
				[]string{"skill", "class"},
			),
			publishTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "skillhost_event_publish_total",
					Help: "Event bus publishes by topic.",
				},
				[]string{"topic"},
			),
			deliveriesTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "skillhost_event_deliveries_total",
					Help: "Handler invocations attempted by topic.",
				},
				[]string{"topic"},
			),
			handlerErrorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "skillhost_event_handler_errors_total",
					Help: "Failed event handlers by topic and bus mode.",
				},
				[]string{"topic", "mode"},
			),
			cacheHits: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "skillhost_cache_hits_total",
					Help: "Cache lookups that found a live entry.",
				},
			),
			cacheMisses: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "skillhost_cache_misses_total",
					Help: "Cache lookups that found nothing or an expired entry.",
				},
			),
		}

		prometheus.MustRegister(
			m.skillsLoaded,
			m.skillLoadTotal,
			m.skillLoadDuration,
			m.skillReloadTotal,
			m.discoveryErrors,
			m.statementTotal,
			m.statementDuration,
			m.permissionDenied,
			m.publishTotal,
			m.deliveriesTotal,
			m.handlerErrorsTotal,
			m.cacheHits,
			m.cacheMisses,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func SetSkillsLoaded(count int) {
	m := getMetrics()
	m.skillsLoaded.Set(float64(count))
}

func RecordSkillLoad(skill string, duration time.Duration, success bool) {
	m := getMetrics()
	m.skillLoadTotal.WithLabelValues(skill, status(success)).Inc()
	m.skillLoadDuration.WithLabelValues(skill).Observe(duration.Seconds())
}

// RecordSkillSkipped counts a skill left out by dependency resolution
func RecordSkillSkipped(skill string) {
	m := getMetrics()
	m.skillLoadTotal.WithLabelValues(skill, "skipped").Inc()
}

func RecordSkillReload(skill string, success bool) {
	m := getMetrics()
	m.skillReloadTotal.WithLabelValues(skill, status(success)).Inc()
}

func RecordDiscoveryError(source string) {
	m := getMetrics()
	m.discoveryErrors.WithLabelValues(source).Inc()
}

func RecordStatement(skill, class string, duration time.Duration, success bool) {
	m := getMetrics()
	m.statementTotal.WithLabelValues(skill, class, status(success)).Inc()
	m.statementDuration.WithLabelValues(class).Observe(duration.Seconds())
}

func RecordPermissionDenied(skill, class string) {
	m := getMetrics()
	m.permissionDenied.WithLabelValues(skill, class).Inc()
}

func RecordPublish(topic string, subscribers int) {
	m := getMetrics()
	m.publishTotal.WithLabelValues(topic).Inc()
	m.deliveriesTotal.WithLabelValues(topic).Add(float64(subscribers))
}

func RecordHandlerError(topic, mode string) {
	m := getMetrics()
	m.handlerErrorsTotal.WithLabelValues(topic, mode).Inc()
}

func RecordCacheHit() {
	getMetrics().cacheHits.Inc()
}

func RecordCacheMiss() {
	getMetrics().cacheMisses.Inc()
}
