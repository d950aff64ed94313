package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/postprober/healthwatch/internal/classify"
	"github.com/postprober/healthwatch/internal/config"
	"github.com/postprober/healthwatch/internal/dedup"
	"github.com/postprober/healthwatch/internal/httpapi"
	apimw "github.com/postprober/healthwatch/internal/httpapi/middleware"
	"github.com/postprober/healthwatch/internal/logging"
	"github.com/postprober/healthwatch/internal/notify"
	"github.com/postprober/healthwatch/internal/probe"
	"github.com/postprober/healthwatch/internal/scheduler"
	"github.com/postprober/healthwatch/internal/ws"
)

func main() {
	cfg := config.FromEnv()
	logger, err := logging.NewLogger(cfg.LogDir)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	targets, err := config.LoadTargets(cfg.TargetsFile)
	if err != nil {
		log.Fatal(err)
	}
	if len(targets) == 0 {
		logger.Warn("no_targets_configured", zap.String("file", cfg.TargetsFile))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := ws.NewHub(logger, ws.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		PingInterval:   cfg.PingInterval,
		HistorySize:    cfg.HistorySize,
	})
	go hub.Run(ctx)

	checker := &probe.RetryChecker{
		Inner:    probe.NewHTTPChecker(cfg.ProbeTimeout),
		Attempts: 2,
		Backoff:  300 * time.Millisecond,
	}
	var advisor classify.Advisor
	if adv := classify.NewHTTPAdvisor(cfg.AdvisorURL); adv != nil {
		advisor = adv
	}
	classifier := classify.New(logger, advisor)

	sched := scheduler.New(
		logger,
		scheduler.StaticTargets(targets),
		checker,
		classifier,
		dedup.NewGate(cfg.AlertCooldown),
		hub,
		cfg.CheckInterval,
	)
	if slack := notify.NewSlack(cfg.SlackWebhook); slack != nil {
		sched.Notifier = notify.Multi{slack}
	}
	go sched.Run(ctx)

	api := httpapi.NewServer(logger, sched, hub, targets)
	keys := apimw.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys}

	logger.Info("api_listen",
		zap.String("addr", cfg.Addr),
		zap.Int("targets", len(targets)),
		zap.Duration("interval", cfg.CheckInterval),
	)

	srv := &http.Server{Addr: cfg.Addr, Handler: api.Router(keys, 600, 60)}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
