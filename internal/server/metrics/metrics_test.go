package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_AuthOutcomes(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.LoginAttempt(OutcomeSuccess)
	m.LoginAttempt(OutcomeRejected)
	m.LoginAttempt(OutcomeRejected)

	expected := `
		# HELP authcore_logins_total Login attempts by outcome
		# TYPE authcore_logins_total counter
		authcore_logins_total{outcome="rejected"} 2
		authcore_logins_total{outcome="success"} 1
	`
	if err := testutil.CollectAndCompare(m.LoginsTotal, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metric value: %v", err)
	}

	m.TokenValidation(OutcomeError)
	if got := testutil.ToFloat64(m.TokenValidationsTotal.WithLabelValues(OutcomeError)); got != 1 {
		t.Errorf("token validations = %v, want 1", got)
	}

	m.TokenRevocation(OutcomeAbsent)
	if got := testutil.ToFloat64(m.TokenRevocationsTotal.WithLabelValues(OutcomeAbsent)); got != 1 {
		t.Errorf("token revocations = %v, want 1", got)
	}
}

func TestMetrics_TokensPurgedIgnoresZero(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.TokensPurged(0)
	m.TokensPurged(5)

	if got := testutil.ToFloat64(m.TokensPurgedTotal); got != 5 {
		t.Errorf("purged = %v, want 5", got)
	}
}

func TestMetrics_HTTPAndHistogram(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveHTTP("POST", "/api/auth/login", 401, 20*time.Millisecond)
	m.PasswordVerification(40 * time.Millisecond)

	if n := testutil.CollectAndCount(m.HTTPRequestsTotal); n != 1 {
		t.Errorf("http series = %d, want 1", n)
	}
	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/auth/login", "401")); got != 1 {
		t.Errorf("http requests = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.PasswordVerifyDuration); n != 1 {
		t.Errorf("histogram series = %d, want 1", n)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.LoginAttempt(OutcomeSuccess)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `authcore_logins_total{outcome="success"} 1`) {
		t.Errorf("exposition missing login counter:\n%s", body)
	}
}

func TestNop(t *testing.T) {
	r := Nop()
	r.LoginAttempt(OutcomeSuccess)
	r.TokenValidation(OutcomeSuccess)
	r.TokenRevocation(OutcomeSuccess)
	r.PasswordVerification(time.Second)
	r.TokensPurged(3)
}
