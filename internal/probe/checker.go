package probe

import (
	"context"

	"github.com/postprober/healthwatch/internal/domain"
)

// Checker performs a single health probe against one target. A Checker never
// returns an error: transport failures and timeouts come back as a
// HealthRecord with StatusUnreachable so one bad target cannot stall a cycle.
type Checker interface {
	Check(ctx context.Context, target domain.Target) domain.HealthRecord
}
