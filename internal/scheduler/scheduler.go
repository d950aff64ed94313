package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/postprober/healthwatch/internal/classify"
	"github.com/postprober/healthwatch/internal/dedup"
	"github.com/postprober/healthwatch/internal/domain"
	"github.com/postprober/healthwatch/internal/probe"
)

// TargetSource supplies the set of targets to poll. An account service backs
// this in the full system; when it reports no connected targets the
// scheduler idles without probing.
type TargetSource interface {
	Connected(ctx context.Context) ([]domain.Target, error)
}

// StaticTargets is a TargetSource over a fixed configuration-time set.
type StaticTargets []domain.Target

func (s StaticTargets) Connected(ctx context.Context) ([]domain.Target, error) {
	return s, nil
}

// Broadcaster receives everything the cycle produces: every admitted alert
// and one full snapshot per cycle.
type Broadcaster interface {
	BroadcastAlert(v domain.Verdict)
	BroadcastSnapshot(platforms []domain.CheckedTarget)
}

// Status describes the schedule for the status endpoint.
type Status struct {
	Running  bool      `json:"running"`
	Interval string    `json:"interval"`
	NextRun  time.Time `json:"next_run"`
}

type Scheduler struct {
	Logger     *zap.Logger
	Targets    TargetSource
	Checker    probe.Checker
	Classifier *classify.Classifier
	Gate       *dedup.Gate
	Hub        Broadcaster
	Notifier   interface {
		Send(context.Context, string, string) error
	} // optional out-of-band sink
	Interval time.Duration

	// cycleMu serializes cycles: a forced check and a scheduled tick can
	// never probe concurrently, and a slow cycle delays the next tick
	// instead of overlapping it.
	cycleMu sync.Mutex

	mu      sync.Mutex
	running bool
	nextRun time.Time
	last    []domain.CheckedTarget
}

func New(
	logger *zap.Logger,
	targets TargetSource,
	checker probe.Checker,
	classifier *classify.Classifier,
	gate *dedup.Gate,
	hub Broadcaster,
	interval time.Duration,
) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{
		Logger:     logger,
		Targets:    targets,
		Checker:    checker,
		Classifier: classifier,
		Gate:       gate,
		Hub:        hub,
		Interval:   interval,
	}
}

// Run starts the loop: an immediate pass, then one cycle per tick. Stops
// when ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	s.running = true
	s.nextRun = time.Now().Add(s.Interval)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		s.Logger.Info("scheduler_stopped")
	}()

	t := time.NewTicker(s.Interval)
	defer t.Stop()

	s.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.runCycle(ctx)
			s.mu.Lock()
			s.nextRun = time.Now().Add(s.Interval)
			s.mu.Unlock()
		}
	}
}

// ForceCheck runs one cycle outside the schedule without touching the
// ticker. It blocks until any in-flight cycle finishes, then returns this
// cycle's results.
func (s *Scheduler) ForceCheck(ctx context.Context) ([]domain.CheckedTarget, error) {
	return s.runCycle(ctx)
}

// Status reports the schedule state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Running:  s.running,
		Interval: s.Interval.String(),
		NextRun:  s.nextRun,
	}
}

// LastResults returns the most recent cycle's records, or nil before the
// first cycle completes.
func (s *Scheduler) LastResults() []domain.CheckedTarget {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// CheckOne probes and classifies a single target on demand, bypassing the
// dedup gate and broadcast entirely.
func (s *Scheduler) CheckOne(ctx context.Context, target domain.Target) domain.CheckedTarget {
	rec := s.Checker.Check(ctx, target)
	return domain.CheckedTarget{
		HealthRecord: rec,
		Analysis:     s.Classifier.Classify(ctx, rec, target),
	}
}

func (s *Scheduler) runCycle(ctx context.Context) ([]domain.CheckedTarget, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	targets, err := s.Targets.Connected(ctx)
	if err != nil {
		s.Logger.Warn("cycle_target_list_error", zap.Error(err))
		return nil, fmt.Errorf("list targets: %w", err)
	}
	if len(targets) == 0 {
		s.Logger.Debug("cycle_skipped_no_targets")
		return nil, nil
	}

	start := time.Now()

	// fan-out: one probe per target, fan-in before broadcasting, so cycle
	// latency is bounded by the slowest single probe
	results := make([]domain.CheckedTarget, len(targets))
	var wg sync.WaitGroup
	for i, tgt := range targets {
		wg.Add(1)
		go func(i int, tgt domain.Target) {
			defer wg.Done()
			results[i] = s.CheckOne(ctx, tgt)
		}(i, tgt)
	}
	wg.Wait()

	s.mu.Lock()
	s.last = results
	s.mu.Unlock()

	s.Hub.BroadcastSnapshot(results)

	emitted := 0
	for _, r := range results {
		v := r.Analysis
		if !v.ShouldEmit {
			continue
		}
		if !s.Gate.Admit(v) {
			s.Logger.Debug("alert_suppressed",
				zap.String("target_id", string(v.TargetID)),
				zap.String("severity", string(v.Severity)),
			)
			continue
		}
		emitted++
		s.Hub.BroadcastAlert(v)
		s.notify(ctx, v)
		s.Logger.Warn("alert_emitted",
			zap.String("target_id", string(v.TargetID)),
			zap.String("severity", string(v.Severity)),
			zap.String("message", v.Message),
		)
	}

	s.Logger.Info("cycle_complete",
		zap.Int("targets", len(results)),
		zap.Int("alerts", emitted),
		zap.Duration("elapsed", time.Since(start)),
	)
	return results, nil
}

func (s *Scheduler) notify(ctx context.Context, v domain.Verdict) {
	if s.Notifier == nil {
		return
	}
	title := fmt.Sprintf("[%s] %s", v.Severity, v.TargetID)
	text := fmt.Sprintf(
		"%s\nAction: %s\nStatus: %s\nLatency: %.0f ms\nError rate: %.1f%%\nAt: %s",
		v.Message, v.RecommendedAction, v.Status, v.LatencyMS, v.ErrorRatePct,
		v.At.Format(time.RFC3339),
	)
	// Best-effort send; a sink failure never fails the cycle.
	if err := s.Notifier.Send(ctx, title, text); err != nil {
		s.Logger.Warn("notify_error", zap.Error(err))
	}
}
