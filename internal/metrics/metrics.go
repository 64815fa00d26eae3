// Package metrics содержит Prometheus-метрики сервиса и служебный HTTP-сервер
// (/livez, /healthz, /metrics).
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Результаты проверки запроса в шлюзе.
const (
	ResultOK           = "ok"
	ResultMissing      = "missing"
	ResultRevoked      = "revoked"
	ResultExpired      = "expired"
	ResultInvalid      = "invalid"
	ResultUserNotFound = "user_not_found"
	ResultForbidden    = "forbidden"
	ResultStoreError   = "store_error"
)

// Шаги отзыва сессий.
const (
	StepBlacklist = "blacklist"
	StepRegistry  = "registry"
)

// Metrics — набор метрик. Nil-значение допустимо: все методы ничего не делают.
type Metrics struct {
	decisions     *prometheus.CounterVec
	issued        *prometheus.CounterVec
	revokeFails   *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDurations *prometheus.HistogramVec
}

// New создаёт метрики и регистрирует их в reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_gateway_decisions_total",
			Help: "Authentication decisions taken by the gateway, by result.",
		}, []string{"result"}),
		issued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_tokens_issued_total",
			Help: "Signed tokens issued, by kind.",
		}, []string{"kind"}),
		revokeFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_revocation_failures_total",
			Help: "Best-effort revocation steps that failed, by step.",
		}, []string{"step"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests served, by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency, by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(m.decisions, m.issued, m.revokeFails, m.httpRequests, m.httpDurations)

	return m
}

// NewRegistry — реестр с метриками процесса и Go-рантайма.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return reg
}

func (m *Metrics) Decision(result string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(result).Inc()
}

func (m *Metrics) TokenIssued(kind string) {
	if m == nil {
		return
	}
	m.issued.WithLabelValues(kind).Inc()
}

func (m *Metrics) RevocationFailed(step string) {
	if m == nil {
		return
	}
	m.revokeFails.WithLabelValues(step).Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDurations.WithLabelValues(method, route).Observe(dur.Seconds())
}

// NewServer собирает служебный сервер: /livez всегда 200, /healthz проверяет
// зависимости через health, /metrics отдаёт метрики из g.
func NewServer(addr string, g prometheus.Gatherer, health func(context.Context) error) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if err := health(ctx); err != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
}
