package classify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/postprober/healthwatch/internal/domain"
)

// Advisor optionally refines a rule-core verdict, e.g. with a remote
// LLM-backed analysis. Advisors are best-effort only.
type Advisor interface {
	Advise(ctx context.Context, rec domain.HealthRecord, baseline domain.Baseline) (Advice, error)
}

// Advice is an advisor's suggested refinement.
type Advice struct {
	Severity          domain.Severity `json:"severity"`
	Message           string          `json:"message"`
	RecommendedAction string          `json:"recommended_action"`
	ShouldAlert       bool            `json:"should_alert"`
}

type Classifier struct {
	Logger  *zap.Logger
	Advisor Advisor // nil = rule core only
}

func New(logger *zap.Logger, advisor Advisor) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{Logger: logger, Advisor: advisor}
}

// Classify produces a verdict for one health record. The rule core is
// authoritative: an advisor may adjust severity and wording for reachable
// targets, but an unreachable target is always critical, and an advisor
// failure falls back to the rule verdict without blocking the pipeline.
func (c *Classifier) Classify(ctx context.Context, rec domain.HealthRecord, target domain.Target) domain.Verdict {
	v := ruleVerdict(rec, target)

	if c.Advisor == nil || rec.Status == domain.StatusUnreachable {
		return v
	}

	advice, err := c.Advisor.Advise(ctx, rec, target.Baseline)
	if err != nil {
		c.Logger.Debug("advisor_fallback",
			zap.String("target_id", string(rec.TargetID)),
			zap.Error(err),
		)
		return v
	}
	if advice.Severity.Rank() == 0 {
		c.Logger.Debug("advisor_malformed",
			zap.String("target_id", string(rec.TargetID)),
			zap.String("severity", string(advice.Severity)),
		)
		return v
	}

	v.Severity = advice.Severity
	v.ShouldEmit = advice.ShouldAlert
	if advice.Message != "" {
		v.Message = advice.Message
	}
	if advice.RecommendedAction != "" {
		v.RecommendedAction = advice.RecommendedAction
	}
	return v
}

func ruleVerdict(rec domain.HealthRecord, target domain.Target) domain.Verdict {
	b := target.Baseline
	v := domain.Verdict{
		TargetID:     rec.TargetID,
		Status:       rec.Status,
		LatencyMS:    rec.LatencyMS,
		ErrorRatePct: rec.ErrorRatePct,
		At:           rec.CheckedAt,
	}

	name := target.Name
	if name == "" {
		name = titleCase(string(target.ID))
	}

	switch {
	case rec.Status == domain.StatusUnreachable:
		v.Severity = domain.SeverityCritical
		v.ShouldEmit = true
		v.Message = fmt.Sprintf("%s is currently unreachable", name)
		v.RecommendedAction = "Check your connection. Posts cannot be published."

	case b.LatencyMS > 0 && rec.LatencyMS > 3*b.LatencyMS:
		v.Severity = domain.SeverityWarning
		v.ShouldEmit = true
		v.Message = fmt.Sprintf("%s is running slow (%.0fms)", name, rec.LatencyMS)
		v.RecommendedAction = "Posts may be delayed but will succeed"

	case rec.QuotaUsedFraction >= 0.85:
		v.Severity = domain.SeverityWarning
		v.ShouldEmit = true
		v.Message = fmt.Sprintf("%s rate limit at %.0f%%", name, rec.QuotaUsedFraction*100)
		v.RecommendedAction = "Posting may be throttled soon"

	case rec.ErrorRatePct > b.ErrorRatePct:
		if b.ErrorRatePct > 0 && rec.ErrorRatePct > 10*b.ErrorRatePct {
			v.Severity = domain.SeverityCritical
			v.Message = fmt.Sprintf("%s error rate at %.1f%%", name, rec.ErrorRatePct)
			v.RecommendedAction = "Publishing is failing. Check platform status."
		} else {
			v.Severity = domain.SeverityWarning
			v.Message = fmt.Sprintf("%s errors elevated (%.1f%%)", name, rec.ErrorRatePct)
			v.RecommendedAction = "Some posts may fail; retries are likely to succeed"
		}
		v.ShouldEmit = true

	default:
		v.Severity = domain.SeverityInfo
		v.ShouldEmit = false
		v.Message = fmt.Sprintf("%s is healthy", name)
		v.RecommendedAction = "No action needed"
	}
	return v
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
