// Package metrics exposes the Prometheus instruments of the auth core.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
	OutcomeAbsent   = "absent"
)

// Recorder is what the services report to. Metrics implements it; Nop
// discards everything.
type Recorder interface {
	LoginAttempt(outcome string)
	TokenValidation(outcome string)
	TokenRevocation(outcome string)
	PasswordVerification(d time.Duration)
	TokensPurged(n int64)
}

type Metrics struct {
	registry *prometheus.Registry

	LoginsTotal            *prometheus.CounterVec
	TokenValidationsTotal  *prometheus.CounterVec
	TokenRevocationsTotal  *prometheus.CounterVec
	PasswordVerifyDuration prometheus.Histogram
	TokensPurgedTotal      prometheus.Counter
	HTTPRequestsTotal      *prometheus.CounterVec
	HTTPRequestDuration    *prometheus.HistogramVec
}

// New creates the instruments and registers them with registry.
func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authcore_logins_total",
				Help: "Login attempts by outcome",
			},
			[]string{"outcome"},
		),
		TokenValidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authcore_token_validations_total",
				Help: "Access token validations by outcome",
			},
			[]string{"outcome"},
		),
		TokenRevocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authcore_token_revocations_total",
				Help: "Access token revocations by outcome",
			},
			[]string{"outcome"},
		),
		PasswordVerifyDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "authcore_password_verify_duration_seconds",
				Help:    "Time spent in argon2id password verification",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
			},
		),
		TokensPurgedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "authcore_tokens_purged_total",
				Help: "Expired access tokens removed from the store",
			},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authcore_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "authcore_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	registry.MustRegister(
		m.LoginsTotal,
		m.TokenValidationsTotal,
		m.TokenRevocationsTotal,
		m.PasswordVerifyDuration,
		m.TokensPurgedTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)
	return m
}

func (m *Metrics) LoginAttempt(outcome string) { m.LoginsTotal.WithLabelValues(outcome).Inc() }

func (m *Metrics) TokenValidation(outcome string) {
	m.TokenValidationsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) TokenRevocation(outcome string) {
	m.TokenRevocationsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PasswordVerification(d time.Duration) {
	m.PasswordVerifyDuration.Observe(d.Seconds())
}

func (m *Metrics) TokensPurged(n int64) {
	if n > 0 {
		m.TokensPurgedTotal.Add(float64(n))
	}
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type nop struct{}

func (nop) LoginAttempt(string)                {}
func (nop) TokenValidation(string)             {}
func (nop) TokenRevocation(string)             {}
func (nop) PasswordVerification(time.Duration) {}
func (nop) TokensPurged(int64)                 {}

// Nop returns a Recorder that records nothing.
func Nop() Recorder { return nop{} }
