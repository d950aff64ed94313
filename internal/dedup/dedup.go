// Package dedup gates verdict emission so a flapping target cannot storm
// subscribers, while escalating issues always get through.
package dedup

import (
	"sync"
	"time"

	"github.com/postprober/healthwatch/internal/domain"
)

type entry struct {
	severity domain.Severity
	at       time.Time
}

// Gate tracks the last emitted verdict per target. Admission is an atomic
// check-then-set: two concurrent cycles for the same target can never both
// pass. State is bounded by the number of targets.
type Gate struct {
	mu     sync.Mutex
	window time.Duration
	last   map[domain.TargetID]entry
	now    func() time.Time // swappable for tests
}

func NewGate(window time.Duration) *Gate {
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &Gate{
		window: window,
		last:   make(map[domain.TargetID]entry),
		now:    time.Now,
	}
}

// Admit reports whether the verdict should be emitted and, if so, records
// the emission. A verdict is admitted iff the target has no emission inside
// the cooldown window, or its severity strictly exceeds the recorded one.
func (g *Gate) Admit(v domain.Verdict) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	e, ok := g.last[v.TargetID]
	switch {
	case !ok:
	case now.Sub(e.at) >= g.window:
		// cooling-down expired, back to idle
	case v.Severity.Rank() > e.severity.Rank():
		// escalation bypasses the window
	default:
		return false
	}

	g.last[v.TargetID] = entry{severity: v.Severity, at: now}
	return true
}

// Active returns how many targets currently have cooldown state.
func (g *Gate) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.last)
}
