package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/postprober/healthwatch/internal/config"
)

func main() {
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		os.Exit(1)
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	cfg := config.FromEnv()

	targets, err := config.LoadTargets(cfg.TargetsFile)
	if err != nil {
		fail(fmt.Sprintf("targets file %s: %v", cfg.TargetsFile, err))
	}
	if len(targets) == 0 {
		warn("targets file lists no targets; the scheduler will idle")
	} else {
		ok(fmt.Sprintf("%d targets configured", len(targets)))
	}
	for _, t := range targets {
		if t.Baseline.LatencyMS <= 0 {
			warn(fmt.Sprintf("target %s has no baseline latency; latency anomalies won't be detected", t.ID))
		}
	}

	// Normalize and sanity-check key lists (comma-separated, no spaces).
	for name, v := range map[string]string{
		"ADMIN_API_KEYS":  strings.TrimSpace(os.Getenv("ADMIN_API_KEYS")),
		"PUBLIC_API_KEYS": strings.TrimSpace(os.Getenv("PUBLIC_API_KEYS")),
	} {
		if v == "" {
			warn(name + " is empty (routes in that tier will be open)")
			continue
		}
		if strings.Contains(v, " ") {
			warn(name + " contains spaces; use comma-separated with no spaces, e.g. key1,key2")
		}
	}

	if cfg.AlertCooldown < cfg.CheckInterval {
		warn(fmt.Sprintf("ALERT_COOLDOWN (%s) below CHECK_INTERVAL (%s): repeats will never be suppressed",
			cfg.AlertCooldown, cfg.CheckInterval))
	}
	if cfg.ProbeTimeout >= cfg.CheckInterval {
		fail("PROBE_TIMEOUT must be well below CHECK_INTERVAL")
	}
	if cfg.ProbeTimeout >= 30*time.Second {
		warn("PROBE_TIMEOUT is unusually high; cycles will be slow when targets hang")
	}

	if cfg.AdvisorURL == "" {
		ok("advisor disabled; rule core only")
	} else {
		ok("advisor enabled: " + cfg.AdvisorURL)
	}

	ok("preflight passed for " + cfg.Addr)
}
