package probe

import (
	"context"
	"time"

	"github.com/postprober/healthwatch/internal/domain"
)

// RetryChecker re-probes a target that came back unreachable before letting
// the verdict stand. It only smooths over transient blips; a genuinely down
// target still reports unreachable after the last attempt.
type RetryChecker struct {
	Inner    Checker
	Attempts int
	Backoff  time.Duration
}

func (r *RetryChecker) Check(ctx context.Context, target domain.Target) domain.HealthRecord {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var last domain.HealthRecord
	for i := 0; i < attempts; i++ {
		last = r.Inner.Check(ctx, target)
		if last.Status != domain.StatusUnreachable {
			return last
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return last
			case <-time.After(r.Backoff):
			}
		}
	}
	return last
}
