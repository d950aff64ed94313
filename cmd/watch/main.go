// watch is a terminal subscriber: it connects to the health channel, prints
// alerts and snapshots as they arrive, and rides out reconnects.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/postprober/healthwatch/internal/domain"
	"github.com/postprober/healthwatch/internal/ws"
	"github.com/postprober/healthwatch/internal/wsclient"
)

var (
	serverURL   = kingpin.Flag("url", "WebSocket endpoint of the healthwatch API.").Default("ws://127.0.0.1:8080/ws/health").String()
	baseDelay   = kingpin.Flag("reconnect-base", "Initial reconnect delay.").Default("1s").Duration()
	maxAttempts = kingpin.Flag("reconnect-attempts", "Reconnect attempts before giving up.").Default("10").Int()
	showInfo    = kingpin.Flag("show-info", "Also print info-level snapshots.").Bool()
)

func severityMark(s domain.Severity) string {
	switch s {
	case domain.SeverityCritical:
		return "[CRIT]"
	case domain.SeverityWarning:
		return "[WARN]"
	default:
		return "[INFO]"
	}
}

func main() {
	kingpin.Parse()

	c := wsclient.New(nil, wsclient.Options{
		URL:         *serverURL,
		BaseDelay:   *baseDelay,
		MaxAttempts: *maxAttempts,
	}, wsclient.Handlers{
		OnConnection: func(clientID string) {
			fmt.Printf("connected as %s\n", clientID)
		},
		OnAlert: func(v domain.Verdict) {
			fmt.Printf("%s %s %s — %s (%s)\n",
				v.At.Format(time.TimeOnly), severityMark(v.Severity), v.TargetID, v.Message, v.RecommendedAction)
		},
		OnHistory: func(alerts []domain.Verdict) {
			fmt.Printf("replayed %d past alerts\n", len(alerts))
		},
		OnSnapshot: func(platforms []domain.CheckedTarget) {
			if !*showInfo {
				return
			}
			for _, p := range platforms {
				fmt.Printf("  %-12s %-11s %.0fms\n", p.TargetID, p.Status, p.LatencyMS)
			}
		},
		OnStats: func(stats ws.Stats) {
			fmt.Printf("subscribers: %d, alerts recorded: %d\n", stats.ActiveConnections, stats.TotalAlerts)
		},
		OnDisconnect: func(err error) {
			fmt.Fprintf(os.Stderr, "disconnected: %v (showing last known state)\n", err)
		},
	})

	c.Connect()
	defer c.Disconnect()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	snap, at := c.LastSnapshot()
	if len(snap) > 0 {
		fmt.Printf("last snapshot (%s ago):\n", time.Since(at).Round(time.Second))
		for _, p := range snap {
			fmt.Printf("  %-12s %s\n", p.TargetID, p.Status)
		}
	}
}
