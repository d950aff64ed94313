package probe

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/postprober/healthwatch/internal/domain"
)

type HTTPChecker struct {
	Client  *http.Client
	Timeout time.Duration
}

func NewHTTPChecker(timeout time.Duration) *HTTPChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPChecker{
		Client:  &http.Client{Timeout: timeout},
		Timeout: timeout,
	}
}

func (h *HTTPChecker) Check(ctx context.Context, target domain.Target) domain.HealthRecord {
	cctx, cancel := context.WithTimeout(ctx, h.Timeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(cctx, http.MethodGet, target.URL, nil)
	if err != nil {
		return h.unreachable(target, err.Error())
	}

	resp, err := h.Client.Do(req)
	latency := time.Since(start).Seconds() * 1000 // ms
	if err != nil {
		// Timeout and transport errors both report the ceiling latency so
		// downstream consumers see a stable worst-case number.
		return h.unreachable(target, err.Error())
	}
	defer resp.Body.Close()

	rec := domain.HealthRecord{
		TargetID:          target.ID,
		LatencyMS:         latency,
		QuotaUsedFraction: quotaFraction(resp.Header),
		Details:           resp.Status,
		CheckedAt:         time.Now().UTC(),
	}

	switch {
	case resp.StatusCode >= 500:
		rec.Status = domain.StatusUnreachable
		rec.ErrorRatePct = 100
	case resp.StatusCode >= 400:
		rec.Status = domain.StatusDegraded
		rec.ErrorRatePct = 5
	default:
		rec.Status = domain.StatusHealthy
		rec.ErrorRatePct = 0
	}
	return rec
}

func (h *HTTPChecker) unreachable(target domain.Target, reason string) domain.HealthRecord {
	return domain.HealthRecord{
		TargetID:     target.ID,
		Status:       domain.StatusUnreachable,
		LatencyMS:    h.Timeout.Seconds() * 1000,
		ErrorRatePct: 100,
		Details:      reason,
		CheckedAt:    time.Now().UTC(),
	}
}

// quotaFraction reads standard rate-limit headers when the platform exposes
// them. Providers that hide limits report 0, which simply keeps the quota
// rule from firing.
func quotaFraction(h http.Header) float64 {
	limit, err := strconv.ParseFloat(h.Get("X-RateLimit-Limit"), 64)
	if err != nil || limit <= 0 {
		return 0
	}
	remaining, err := strconv.ParseFloat(h.Get("X-RateLimit-Remaining"), 64)
	if err != nil || remaining < 0 {
		return 0
	}
	used := (limit - remaining) / limit
	if used < 0 {
		return 0
	}
	if used > 1 {
		return 1
	}
	return used
}
