package probe

import (
	"context"
	"testing"
	"time"

	"github.com/postprober/healthwatch/internal/domain"
)

// fake checker you can control
type fakeChecker struct {
	results []domain.HealthRecord
	i       int
}

func (f *fakeChecker) Check(ctx context.Context, target domain.Target) domain.HealthRecord {
	if f.i >= len(f.results) {
		return domain.HealthRecord{TargetID: target.ID, Status: domain.StatusUnreachable}
	}
	r := f.results[f.i]
	f.i++
	return r
}

func TestRetryChecker_RecoversAfterBlip(t *testing.T) {
	f := &fakeChecker{
		results: []domain.HealthRecord{
			{TargetID: "svc-1", Status: domain.StatusUnreachable},
			{TargetID: "svc-1", Status: domain.StatusHealthy, LatencyMS: 42},
		},
	}
	rc := &RetryChecker{Inner: f, Attempts: 3, Backoff: 5 * time.Millisecond}

	out := rc.Check(context.Background(), domain.Target{ID: "svc-1"})
	if out.Status != domain.StatusHealthy {
		t.Fatalf("expected recovery on retry, got %+v", out)
	}
	if f.i != 2 {
		t.Fatalf("expected 2 attempts, got %d", f.i)
	}
}

func TestRetryChecker_AllFailStaysUnreachable(t *testing.T) {
	f := &fakeChecker{
		results: []domain.HealthRecord{
			{TargetID: "svc-1", Status: domain.StatusUnreachable},
			{TargetID: "svc-1", Status: domain.StatusUnreachable},
		},
	}
	rc := &RetryChecker{Inner: f, Attempts: 2, Backoff: 0}

	out := rc.Check(context.Background(), domain.Target{ID: "svc-1"})
	if out.Status != domain.StatusUnreachable {
		t.Fatalf("expected unreachable, got %s", out.Status)
	}
}

func TestRetryChecker_CancelStopsBackoff(t *testing.T) {
	f := &fakeChecker{}
	rc := &RetryChecker{Inner: f, Attempts: 5, Backoff: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		rc.Check(ctx, domain.Target{ID: "svc-1"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cancelled retry loop did not return")
	}
}
