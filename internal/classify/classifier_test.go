package classify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/postprober/healthwatch/internal/domain"
)

func svc1() domain.Target {
	return domain.Target{
		ID:       "svc-1",
		Name:     "Svc-1",
		Baseline: domain.Baseline{LatencyMS: 250, ErrorRatePct: 0.5},
	}
}

func rec(status domain.Status, latency, errRate, quota float64) domain.HealthRecord {
	return domain.HealthRecord{
		TargetID:          "svc-1",
		Status:            status,
		LatencyMS:         latency,
		ErrorRatePct:      errRate,
		QuotaUsedFraction: quota,
		CheckedAt:         time.Now().UTC(),
	}
}

func TestRuleCore_SlowLatencyIsWarning(t *testing.T) {
	// baseline 250ms, measured 900ms: above the 3x threshold
	c := New(nil, nil)
	v := c.Classify(context.Background(), rec(domain.StatusHealthy, 900, 0, 0), svc1())

	require.Equal(t, domain.SeverityWarning, v.Severity)
	require.True(t, v.ShouldEmit)
	require.Contains(t, v.Message, "slow")
}

func TestRuleCore_UnreachableIsCritical(t *testing.T) {
	c := New(nil, nil)
	v := c.Classify(context.Background(), rec(domain.StatusUnreachable, 5000, 100, 0), svc1())

	require.Equal(t, domain.SeverityCritical, v.Severity)
	require.True(t, v.ShouldEmit)
}

func TestRuleCore_QuotaNearLimitIsWarning(t *testing.T) {
	c := New(nil, nil)
	v := c.Classify(context.Background(), rec(domain.StatusHealthy, 200, 0, 0.9), svc1())

	require.Equal(t, domain.SeverityWarning, v.Severity)
	require.True(t, v.ShouldEmit)
}

func TestRuleCore_ErrorRateEscalation(t *testing.T) {
	c := New(nil, nil)

	// moderately elevated: warning
	v := c.Classify(context.Background(), rec(domain.StatusDegraded, 200, 2, 0), svc1())
	require.Equal(t, domain.SeverityWarning, v.Severity)

	// >10x baseline: critical
	v = c.Classify(context.Background(), rec(domain.StatusDegraded, 200, 6, 0), svc1())
	require.Equal(t, domain.SeverityCritical, v.Severity)
}

func TestRuleCore_HealthyIsQuietInfo(t *testing.T) {
	c := New(nil, nil)
	v := c.Classify(context.Background(), rec(domain.StatusHealthy, 200, 0, 0.1), svc1())

	require.Equal(t, domain.SeverityInfo, v.Severity)
	require.False(t, v.ShouldEmit)
}

type stubAdvisor struct {
	advice Advice
	err    error
	called bool
}

func (s *stubAdvisor) Advise(ctx context.Context, rec domain.HealthRecord, b domain.Baseline) (Advice, error) {
	s.called = true
	return s.advice, s.err
}

func TestAdvisor_MayRefineReachableVerdicts(t *testing.T) {
	adv := &stubAdvisor{advice: Advice{
		Severity:    domain.SeverityCritical,
		Message:     "auth tokens are failing",
		ShouldAlert: true,
	}}
	c := New(nil, adv)

	v := c.Classify(context.Background(), rec(domain.StatusDegraded, 200, 2, 0), svc1())
	require.True(t, adv.called)
	require.Equal(t, domain.SeverityCritical, v.Severity)
	require.Equal(t, "auth tokens are failing", v.Message)
}

func TestAdvisor_NeverConsultedForUnreachable(t *testing.T) {
	adv := &stubAdvisor{advice: Advice{Severity: domain.SeverityInfo}}
	c := New(nil, adv)

	v := c.Classify(context.Background(), rec(domain.StatusUnreachable, 5000, 100, 0), svc1())
	require.False(t, adv.called, "advisor must not override unreachable")
	require.Equal(t, domain.SeverityCritical, v.Severity)
}

func TestAdvisor_ErrorFallsBackToRules(t *testing.T) {
	adv := &stubAdvisor{err: errors.New("scorer offline")}
	c := New(nil, adv)

	v := c.Classify(context.Background(), rec(domain.StatusHealthy, 900, 0, 0), svc1())
	require.Equal(t, domain.SeverityWarning, v.Severity)
	require.True(t, v.ShouldEmit)
}

func TestAdvisor_MalformedSeverityFallsBack(t *testing.T) {
	adv := &stubAdvisor{advice: Advice{Severity: "panic!", ShouldAlert: true}}
	c := New(nil, adv)

	v := c.Classify(context.Background(), rec(domain.StatusHealthy, 900, 0, 0), svc1())
	require.Equal(t, domain.SeverityWarning, v.Severity)
}

func TestHTTPAdvisor_RoundTrip(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"severity":"warning","message":"slownish","recommended_action":"wait","should_alert":true}`))
	}))
	defer ts.Close()

	adv := NewHTTPAdvisor(ts.URL)
	got, err := adv.Advise(context.Background(), rec(domain.StatusHealthy, 300, 0, 0), domain.Baseline{LatencyMS: 250})
	require.NoError(t, err)
	require.Equal(t, domain.SeverityWarning, got.Severity)
	require.True(t, got.ShouldAlert)
}

func TestHTTPAdvisor_MalformedJSONIsError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"severity": "warning", "bogus_field": 1}`))
	}))
	defer ts.Close()

	adv := NewHTTPAdvisor(ts.URL)
	_, err := adv.Advise(context.Background(), rec(domain.StatusHealthy, 300, 0, 0), domain.Baseline{})
	require.Error(t, err)
}

func TestHTTPAdvisor_Non2xxIsError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	adv := NewHTTPAdvisor(ts.URL)
	_, err := adv.Advise(context.Background(), rec(domain.StatusHealthy, 300, 0, 0), domain.Baseline{})
	require.Error(t, err)
}
