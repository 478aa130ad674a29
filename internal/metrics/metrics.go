// Package metrics содержит Prometheus-метрики сервиса.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry хранит коллекторы приложения.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "learnhub",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "learnhub",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "route"},
	)

	gateDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "learnhub",
			Subsystem: "access",
			Name:      "decisions_total",
			Help:      "Access gate decisions by outcome.",
		},
		[]string{"outcome"},
	)

	cacheResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "learnhub",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by collection and result (hit, miss, fault).",
		},
		[]string{"collection", "result"},
	)

	ledgerExtensions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "learnhub",
			Subsystem: "ledger",
			Name:      "extensions_total",
			Help:      "Subscription extension attempts by result.",
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		gateDecisions,
		cacheResults,
		ledgerExtensions,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler возвращает HTTP-обработчик с метриками приложения.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// GateDecision учитывает решение проверки доступа.
func GateDecision(outcome string) {
	gateDecisions.WithLabelValues(outcome).Inc()
}

// CacheResult учитывает результат обращения к кэшу.
func CacheResult(collection, result string) {
	cacheResults.WithLabelValues(collection, result).Inc()
}

// LedgerExtension учитывает попытку продления подписки.
func LedgerExtension(result string) {
	ledgerExtensions.WithLabelValues(result).Inc()
}

// InstrumentHandler собирает метрики HTTP-запросов по шаблону маршрута chi.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
