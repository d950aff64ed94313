package dedup

import (
	"sync"
	"testing"
	"time"

	"github.com/postprober/healthwatch/internal/domain"
)

func verdict(id domain.TargetID, sev domain.Severity) domain.Verdict {
	return domain.Verdict{TargetID: id, Severity: sev, ShouldEmit: true}
}

func TestGate_SuppressesRepeatInsideWindow(t *testing.T) {
	// two cycles 5 minutes apart, 15 minute window: second is suppressed
	clock := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	g := NewGate(15 * time.Minute)
	g.now = func() time.Time { return clock }

	if !g.Admit(verdict("svc-2", domain.SeverityWarning)) {
		t.Fatal("first warning should be admitted")
	}

	clock = clock.Add(5 * time.Minute)
	if g.Admit(verdict("svc-2", domain.SeverityWarning)) {
		t.Fatal("repeat warning inside window should be suppressed")
	}
}

func TestGate_ReadmitsAfterWindow(t *testing.T) {
	clock := time.Now()
	g := NewGate(15 * time.Minute)
	g.now = func() time.Time { return clock }

	g.Admit(verdict("svc-2", domain.SeverityWarning))

	clock = clock.Add(15 * time.Minute)
	if !g.Admit(verdict("svc-2", domain.SeverityWarning)) {
		t.Fatal("warning after window expiry should be admitted")
	}
}

func TestGate_EscalationBypassesCooldown(t *testing.T) {
	clock := time.Now()
	g := NewGate(15 * time.Minute)
	g.now = func() time.Time { return clock }

	g.Admit(verdict("svc-1", domain.SeverityWarning))

	clock = clock.Add(time.Minute)
	if !g.Admit(verdict("svc-1", domain.SeverityCritical)) {
		t.Fatal("critical must bypass an active warning cooldown")
	}

	// and the new critical entry now gates equal severity
	clock = clock.Add(time.Minute)
	if g.Admit(verdict("svc-1", domain.SeverityCritical)) {
		t.Fatal("repeat critical inside window should be suppressed")
	}
}

func TestGate_LowerSeverityNeverBypasses(t *testing.T) {
	clock := time.Now()
	g := NewGate(15 * time.Minute)
	g.now = func() time.Time { return clock }

	g.Admit(verdict("svc-1", domain.SeverityCritical))

	clock = clock.Add(time.Minute)
	if g.Admit(verdict("svc-1", domain.SeverityWarning)) {
		t.Fatal("warning must not bypass an active critical cooldown")
	}
}

func TestGate_TargetsAreIndependent(t *testing.T) {
	g := NewGate(15 * time.Minute)
	if !g.Admit(verdict("svc-1", domain.SeverityWarning)) {
		t.Fatal("svc-1 should be admitted")
	}
	if !g.Admit(verdict("svc-2", domain.SeverityWarning)) {
		t.Fatal("svc-2 has its own cooldown state")
	}
	if g.Active() != 2 {
		t.Fatalf("want 2 active entries, got %d", g.Active())
	}
}

func TestGate_CheckThenSetIsAtomic(t *testing.T) {
	g := NewGate(15 * time.Minute)

	const n = 32
	var wg sync.WaitGroup
	admitted := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			admitted <- g.Admit(verdict("svc-1", domain.SeverityWarning))
		}()
	}
	wg.Wait()
	close(admitted)

	count := 0
	for ok := range admitted {
		if ok {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("exactly one concurrent admit should pass, got %d", count)
	}
}
