package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	apimw "github.com/postprober/healthwatch/internal/httpapi/middleware"

	"github.com/postprober/healthwatch/internal/domain"
	"github.com/postprober/healthwatch/internal/scheduler"
	"github.com/postprober/healthwatch/internal/ws"
)

// HealthScheduler is the slice of the scheduler the API consumes.
type HealthScheduler interface {
	ForceCheck(ctx context.Context) ([]domain.CheckedTarget, error)
	LastResults() []domain.CheckedTarget
	Status() scheduler.Status
	CheckOne(ctx context.Context, target domain.Target) domain.CheckedTarget
}

// AlertHub is the slice of the connection manager the API consumes.
type AlertHub interface {
	History(limit int) []domain.Verdict
	Stats() ws.Stats
	HandleConnect(w http.ResponseWriter, r *http.Request)
}

type Server struct {
	Logger    *zap.Logger
	Scheduler HealthScheduler
	Hub       AlertHub
	Targets   []domain.Target
}

func NewServer(l *zap.Logger, sched HealthScheduler, hub AlertHub, targets []domain.Target) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	return &Server{Logger: l, Scheduler: sched, Hub: hub, Targets: targets}
}

// Router wires all routes. Read routes take either key tier; forcing a
// check needs an admin key. Rate limits are per-minute with burst = limit.
func (s *Server) Router(keys apimw.Keys, readRPM, adminRPM int) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.AllowAll().Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/api/ping", s.handlePing)

	// the websocket endpoint authenticates via Origin checks in the hub
	r.Get("/ws/health", s.Hub.HandleConnect)

	r.Group(func(r chi.Router) {
		r.Use(apimw.RequireAny(keys))
		r.Use(apimw.RateLimit(readRPM, readRPM))
		r.Get("/api/health/status", s.handleStatus)
		r.Get("/api/health/platform/{id}", s.handlePlatform)
		r.Get("/api/health/alerts", s.handleAlerts)
		r.Get("/api/health/scheduler/status", s.handleSchedulerStatus)
		r.Get("/api/health/websocket/stats", s.handleWSStats)
	})

	r.Group(func(r chi.Router) {
		r.Use(apimw.RequireAdmin(keys))
		r.Use(apimw.RateLimit(adminRPM, adminRPM))
		r.Post("/api/health/check", s.handleForceCheck)
	})

	return r
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	results := s.Scheduler.LastResults()
	if results == nil {
		// no scheduled cycle yet: probe fresh
		var err error
		results, err = s.Scheduler.ForceCheck(r.Context())
		if err != nil {
			s.fail(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"platforms": results,
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handlePlatform(w http.ResponseWriter, r *http.Request) {
	id := domain.TargetID(chi.URLParam(r, "id"))
	var target *domain.Target
	for i := range s.Targets {
		if s.Targets[i].ID == id {
			target = &s.Targets[i]
			break
		}
	}
	if target == nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "unknown platform",
		})
		return
	}

	checked := s.Scheduler.CheckOne(r.Context(), *target)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"platform": checked,
	})
}

func (s *Server) handleForceCheck(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	results, err := s.Scheduler.ForceCheck(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.Logger.Info("forced_health_check",
		zap.Int("targets", len(results)),
		zap.Duration("elapsed", time.Since(start)),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"message":         "Health check completed",
		"platforms":       results,
		"processing_time": time.Since(start).Seconds(),
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := s.Hub.History(0)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"alerts":  alerts,
		"count":   len(alerts),
	})
}

func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"scheduler": s.Scheduler.Status(),
	})
}

func (s *Server) handleWSStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"stats":   s.Hub.Stats(),
	})
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	s.Logger.Warn("request_failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]any{
		"success": false,
		"error":   err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
