package server

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/VancePeterson/obd2-reader/internal/obd"
)

// Config holds all reader configuration.
type Config struct {
	mu sync.RWMutex

	Adapter AdapterConfig `yaml:"adapter" json:"adapter"`
	Poll    PollConfig    `yaml:"poll" json:"poll"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Server  ServerConfig  `yaml:"server" json:"server"`
}

type AdapterConfig struct {
	Type           string `yaml:"type" json:"type"`          // "elm327" or "demo"
	PortPath       string `yaml:"port_path" json:"portPath"` // e.g. /dev/ttyUSB0, /dev/rfcomm0
	BaudRate       int    `yaml:"baud_rate" json:"baudRate"`
	QueryTimeoutMs int    `yaml:"query_timeout_ms" json:"queryTimeoutMs"`
	InitTimeoutMs  int    `yaml:"init_timeout_ms" json:"initTimeoutMs"`
}

type PollConfig struct {
	DelayMs int      `yaml:"delay_ms" json:"delayMs"` // pause between parameter queries
	PIDs    []string `yaml:"pids" json:"pids"`        // initial selection, e.g. ["010C", "010D"]
}

type LoggingConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr" json:"listenAddr"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Adapter: AdapterConfig{
			Type:           "elm327",
			PortPath:       "/dev/ttyUSB0",
			BaudRate:       38400,
			QueryTimeoutMs: 1000,
			InitTimeoutMs:  5000,
		},
		Poll: PollConfig{
			DelayMs: 50,
			PIDs:    []string{"010C", "010D", "0105", "0111", "010F"},
		},
		Logging: LoggingConfig{
			Enabled: false,
			Path:    "/var/log/obd2-reader",
		},
		Server: ServerConfig{
			ListenAddr: ":8080",
		},
	}
}

// LoadConfig reads config from a YAML file, then applies .env and
// environment variable overrides. Falls back to defaults if the YAML
// is missing or broken.
func LoadConfig(path string) *Config {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[config] no config at %s, using defaults", path)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		log.Printf("[config] error parsing %s: %v, using defaults", path, err)
		cfg = DefaultConfig()
	} else {
		log.Printf("[config] loaded from %s", path)
	}

	envPaths := []string{
		filepath.Join(filepath.Dir(path), ".env"),
		".env",
	}
	for _, ep := range envPaths {
		loadEnvFile(ep)
	}

	cfg.applyEnvOverrides()
	return cfg
}

// loadEnvFile reads a simple KEY=VALUE .env file and sets os env vars.
func loadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	log.Printf("[config] loading .env from %s", path)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.Trim(strings.TrimSpace(parts[1]), `"'`)
		// Real env takes precedence over the file.
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

// applyEnvOverrides reads environment variables and overrides config
// values. Supported: ADAPTER_TYPE, ADAPTER_PORT, ADAPTER_BAUD,
// QUERY_TIMEOUT_MS, POLL_DELAY_MS, POLL_PIDS, LISTEN_ADDR,
// LOG_ENABLED, LOG_PATH.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ADAPTER_TYPE"); v != "" {
		c.Adapter.Type = v
	}
	if v := os.Getenv("ADAPTER_PORT"); v != "" {
		c.Adapter.PortPath = v
	}
	if v := os.Getenv("ADAPTER_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Adapter.BaudRate = n
		}
	}
	if v := os.Getenv("QUERY_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Adapter.QueryTimeoutMs = n
		}
	}
	if v := os.Getenv("POLL_DELAY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Poll.DelayMs = n
		}
	}
	if v := os.Getenv("POLL_PIDS"); v != "" {
		c.Poll.PIDs = strings.Fields(strings.ReplaceAll(v, ",", " "))
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("LOG_ENABLED"); v != "" {
		c.Logging.Enabled = v == "1" || v == "true" || v == "yes"
	}
	if v := os.Getenv("LOG_PATH"); v != "" {
		c.Logging.Path = v
	}
}

// QueryTimeout returns the per-query bound as a duration.
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.Adapter.QueryTimeoutMs) * time.Millisecond
}

// InitTimeout returns the per-handshake-step bound as a duration.
func (c *Config) InitTimeout() time.Duration {
	return time.Duration(c.Adapter.InitTimeoutMs) * time.Millisecond
}

// PollDelay returns the inter-request pause as a duration.
func (c *Config) PollDelay() time.Duration {
	return time.Duration(c.Poll.DelayMs) * time.Millisecond
}

// SelectedPIDs parses the configured initial selection, skipping (and
// logging) anything that is not a 4-hex-char command.
func (c *Config) SelectedPIDs() []obd.PID {
	pids := make([]obd.PID, 0, len(c.Poll.PIDs))
	for _, s := range c.Poll.PIDs {
		p, err := obd.ParsePID(strings.ToUpper(strings.TrimSpace(s)))
		if err != nil {
			log.Printf("[config] skipping pid %q: %v", s, err)
			continue
		}
		pids = append(pids, p)
	}
	return pids
}

// ToJSON serializes config for the API.
func (c *Config) ToJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(c)
}
