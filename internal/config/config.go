package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/thatsimonsguy/megad-hub/internal/datadog"
	"github.com/thatsimonsguy/megad-hub/internal/mqtt"
)

const maxPasswordLen = 3

// Controller is one managed MegaD board.
type Controller struct {
	ID       string `json:"id"`
	Host     string `json:"host"`
	Password string `json:"password"`

	// ConfigFile is the saved config dump. Defaults to <dump_dir>/<id>.cfg.
	ConfigFile string `json:"config_file"`
	// RefreshConfig scrapes the controller on start even when a dump exists.
	RefreshConfig bool `json:"refresh_config"`
}

type Config struct {
	ConfigFile string
	LogLevel   zerolog.Level

	ListenAddr string `json:"listen_addr"`
	DBPath     string `json:"db_path"`
	DumpDir    string `json:"dump_dir"`
	LogFile    string `json:"log_file"`

	PollIntervalSeconds   int `json:"poll_interval_seconds"`
	PollTimeoutSeconds    int `json:"poll_timeout_seconds"`
	RequestTimeoutSeconds int `json:"request_timeout_seconds"`
	RequestGapMillis      int `json:"request_gap_millis"`
	RetryBudget           int `json:"retry_budget"`
	RevertDelayMillis     int `json:"revert_delay_millis"`

	Controllers []Controller `json:"controllers"`

	MQTT      mqtt.Config    `json:"mqtt"`
	Datadog   datadog.Config `json:"datadog"`
	NtfyTopic string         `json:"ntfy_topic"`
}

func Load() Config {
	var cfg Config
	var logLevel, dbPath string

	flag.StringVar(&cfg.ConfigFile, "config-file", "config.json", "Path to service config file")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.StringVar(&dbPath, "db", "", "Path to controller database (overrides db_path)")
	flag.Parse()

	cfg.LogLevel = parseLogLevel(logLevel)

	file, err := os.Open(cfg.ConfigFile)
	if err != nil {
		panic("Failed to load config file: " + err.Error())
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		panic("Failed to parse config file: " + err.Error())
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}

	cfg.defaults()
	cfg.validate()
	return cfg
}

func (cfg *Config) defaults() {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "data/megad.db"
	}
	if cfg.DumpDir == "" {
		cfg.DumpDir = "data/dumps"
	}
	if cfg.PollIntervalSeconds == 0 {
		cfg.PollIntervalSeconds = 60
	}
	if cfg.PollTimeoutSeconds == 0 {
		cfg.PollTimeoutSeconds = 30
	}
	if cfg.RequestTimeoutSeconds == 0 {
		cfg.RequestTimeoutSeconds = 5
	}
	if cfg.RequestGapMillis == 0 {
		cfg.RequestGapMillis = 100
	}
	if cfg.RetryBudget == 0 {
		cfg.RetryBudget = 5
	}
	if cfg.RevertDelayMillis == 0 {
		cfg.RevertDelayMillis = 500
	}
	for i := range cfg.Controllers {
		if cfg.Controllers[i].ConfigFile == "" {
			cfg.Controllers[i].ConfigFile = filepath.Join(cfg.DumpDir, cfg.Controllers[i].ID+".cfg")
		}
	}
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (cfg *Config) validate() {
	var problems []string
	seen := map[string]bool{}

	for i, c := range cfg.Controllers {
		if c.ID == "" {
			problems = append(problems, fmt.Sprintf("controllers[%d]: missing id", i))
		} else if seen[c.ID] {
			problems = append(problems, fmt.Sprintf("controllers[%d]: duplicate id %q", i, c.ID))
		}
		seen[c.ID] = true

		if !ValidHost(c.Host) {
			problems = append(problems, fmt.Sprintf("controllers[%d]: host %q is not an IPv4 address", i, c.Host))
		}
		if c.Password == "" || len(c.Password) > maxPasswordLen {
			problems = append(problems, fmt.Sprintf("controllers[%d]: password must be 1 to %d characters", i, maxPasswordLen))
		}
	}

	if len(problems) > 0 {
		panic("Invalid controller config: " + strings.Join(problems, ", "))
	}
}

// ValidHost accepts an IPv4 address with an optional port.
func ValidHost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	return err == nil && addr.Is4()
}

func (cfg Config) PollInterval() time.Duration {
	return time.Duration(cfg.PollIntervalSeconds) * time.Second
}

func (cfg Config) PollTimeout() time.Duration {
	return time.Duration(cfg.PollTimeoutSeconds) * time.Second
}

func (cfg Config) RequestTimeout() time.Duration {
	return time.Duration(cfg.RequestTimeoutSeconds) * time.Second
}

func (cfg Config) RequestGap() time.Duration {
	return time.Duration(cfg.RequestGapMillis) * time.Millisecond
}

func (cfg Config) RevertDelay() time.Duration {
	return time.Duration(cfg.RevertDelayMillis) * time.Millisecond
}
