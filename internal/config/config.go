package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/postprober/healthwatch/internal/domain"
)

type Config struct {
	Addr           string        // API bind address, e.g., "127.0.0.1:8080" (local) or ":8080" (Docker)
	LogDir         string        // logs directory
	TargetsFile    string        // YAML file with monitored targets and baselines
	AdvisorURL     string        // optional advisory scorer endpoint (empty = rule core only)
	SlackWebhook   string        // optional out-of-band alert sink
	AllowedOrigins []string      // extra WebSocket origins besides localhost
	PublicAPIKeys  []string      // keys allowed on read routes (empty = open)
	AdminAPIKeys   []string      // keys allowed to force checks (empty = open)
	CheckInterval  time.Duration // scheduled cycle interval
	ProbeTimeout   time.Duration // per-probe ceiling
	AlertCooldown  time.Duration // dedup window per target
	PingInterval   time.Duration // keepalive ping cadence
	HistorySize    int           // alert history ring capacity
}

func FromEnv() Config {
	addr := os.Getenv("ADDR")
	if addr == "" {
		addr = "127.0.0.1:8080"
	}

	logDir := os.Getenv("LOG_DIR")
	if logDir == "" {
		logDir = "logs"
	}

	targetsFile := os.Getenv("TARGETS_FILE")
	if targetsFile == "" {
		targetsFile = "targets.yaml"
	}

	historySize := 50
	if v := os.Getenv("HISTORY_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			historySize = n
		}
	}

	return Config{
		Addr:           addr,
		LogDir:         logDir,
		TargetsFile:    targetsFile,
		AdvisorURL:     os.Getenv("ADVISOR_URL"),
		SlackWebhook:   os.Getenv("SLACK_WEBHOOK"),
		AllowedOrigins: splitList(os.Getenv("ALLOWED_ORIGINS")),
		PublicAPIKeys:  splitList(os.Getenv("PUBLIC_API_KEYS")),
		AdminAPIKeys:   splitList(os.Getenv("ADMIN_API_KEYS")),
		CheckInterval:  durationEnv("CHECK_INTERVAL", 5*time.Minute),
		ProbeTimeout:   durationEnv("PROBE_TIMEOUT", 5*time.Second),
		AlertCooldown:  durationEnv("ALERT_COOLDOWN", 15*time.Minute),
		PingInterval:   durationEnv("PING_INTERVAL", 30*time.Second),
		HistorySize:    historySize,
	}
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func durationEnv(name string, def time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	return def
}

type targetsFile struct {
	Targets []domain.Target `yaml:"targets"`
}

// LoadTargets reads the monitored target set from a YAML file. The set is
// fixed for the life of the process.
func LoadTargets(path string) ([]domain.Target, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read targets file: %w", err)
	}
	var tf targetsFile
	if err := yaml.Unmarshal(raw, &tf); err != nil {
		return nil, fmt.Errorf("parse targets file: %w", err)
	}
	seen := make(map[domain.TargetID]bool, len(tf.Targets))
	for i, t := range tf.Targets {
		if t.ID == "" || t.URL == "" {
			return nil, fmt.Errorf("target %d: id and url are required", i)
		}
		if seen[t.ID] {
			return nil, fmt.Errorf("duplicate target id %q", t.ID)
		}
		seen[t.ID] = true
	}
	return tf.Targets, nil
}
