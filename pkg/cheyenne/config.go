package cheyenne

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every tunable for a bridge instance. All timeouts,
// thresholds and capacities live here so components can be constructed
// deterministically in tests without ambient package state.
type Config struct {
	Host string `json:"host"`
	Port int    `json:"port"`

	// DialTimeout bounds one connection attempt.
	DialTimeout time.Duration `json:"dial_timeout"`

	// ReconnectDelay is the fixed sleep between sessions. A fixed interval
	// bounds reconnect storms without exponential backoff bookkeeping.
	ReconnectDelay time.Duration `json:"reconnect_delay"`

	// WatchdogTimeout is how long the connection may go without any
	// inbound message before it is declared dead.
	WatchdogTimeout time.Duration `json:"watchdog_timeout"`

	// ExtensionTimeout bounds the arrival of a message's extra-data and
	// payload blocks after its header line.
	ExtensionTimeout time.Duration `json:"extension_timeout"`

	// HandshakeTimeout bounds the one-shot validation handshake.
	HandshakeTimeout time.Duration `json:"handshake_timeout"`

	// MaxConsecutiveBadMessages is how many bad messages in a row force a
	// reconnect.
	MaxConsecutiveBadMessages int `json:"max_consecutive_bad_messages"`

	// AudioQueueSize is the audio bridge capacity in chunks.
	AudioQueueSize int `json:"audio_queue_size"`

	// OutboxSize is the outbound control message queue capacity.
	OutboxSize int `json:"outbox_size"`

	// DiagAddr enables the diagnostics HTTP server when non-empty.
	DiagAddr string `json:"diag_addr,omitempty"`

	LogLevel   string `json:"log_level"`
	PrettyLogs bool   `json:"pretty_logs"`
}

// NewConfig returns a config with defaults, overridden by CHEYENNE_*
// environment variables (a .env file is honored if present).
func NewConfig() *Config {
	c := &Config{
		Port:                      11700,
		DialTimeout:               10 * time.Second,
		ReconnectDelay:            2 * time.Second,
		WatchdogTimeout:           15 * time.Second,
		ExtensionTimeout:          500 * time.Millisecond,
		HandshakeTimeout:          2 * time.Second,
		MaxConsecutiveBadMessages: 5,
		AudioQueueSize:            2048,
		OutboxSize:                64,
		LogLevel:                  "info",
		PrettyLogs:                true,
	}
	c.loadFromEnv()
	return c
}

func (c *Config) loadFromEnv() {
	_ = godotenv.Load()

	if host := os.Getenv("CHEYENNE_HOST"); host != "" {
		c.Host = host
	}
	if port := os.Getenv("CHEYENNE_PORT"); port != "" {
		if v, err := strconv.Atoi(port); err == nil {
			c.Port = v
		}
	}
	if d := envDuration("CHEYENNE_RECONNECT_DELAY"); d > 0 {
		c.ReconnectDelay = d
	}
	if d := envDuration("CHEYENNE_WATCHDOG_TIMEOUT"); d > 0 {
		c.WatchdogTimeout = d
	}
	if d := envDuration("CHEYENNE_EXTENSION_TIMEOUT"); d > 0 {
		c.ExtensionTimeout = d
	}
	if d := envDuration("CHEYENNE_HANDSHAKE_TIMEOUT"); d > 0 {
		c.HandshakeTimeout = d
	}
	if n := os.Getenv("CHEYENNE_MAX_BAD_MESSAGES"); n != "" {
		if v, err := strconv.Atoi(n); err == nil {
			c.MaxConsecutiveBadMessages = v
		}
	}
	if n := os.Getenv("CHEYENNE_AUDIO_QUEUE_SIZE"); n != "" {
		if v, err := strconv.Atoi(n); err == nil {
			c.AudioQueueSize = v
		}
	}
	if n := os.Getenv("CHEYENNE_OUTBOX_SIZE"); n != "" {
		if v, err := strconv.Atoi(n); err == nil {
			c.OutboxSize = v
		}
	}
	if addr := os.Getenv("CHEYENNE_DIAG_ADDR"); addr != "" {
		c.DiagAddr = addr
	}
	if level := os.Getenv("CHEYENNE_LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
	if pretty := os.Getenv("CHEYENNE_PRETTY_LOGS"); pretty != "" {
		c.PrettyLogs = pretty != "false"
	}
}

func envDuration(key string) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return 0
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	// bare number means seconds
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(v * float64(time.Second))
	}
	return 0
}

// Addr returns the host:port dial target.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate returns a list of configuration issues, empty if the config is
// usable.
func (c *Config) Validate() []string {
	var issues []string

	if c.Host == "" {
		issues = append(issues, "host not set")
	}
	if c.Port < 1 || c.Port > 65535 {
		issues = append(issues, fmt.Sprintf("port %d out of range", c.Port))
	}
	if c.ReconnectDelay <= 0 {
		issues = append(issues, "reconnect delay must be positive")
	}
	if c.WatchdogTimeout <= 0 {
		issues = append(issues, "watchdog timeout must be positive")
	}
	if c.ExtensionTimeout <= 0 {
		issues = append(issues, "extension timeout must be positive")
	}
	if c.MaxConsecutiveBadMessages < 1 {
		issues = append(issues, "bad message threshold must be at least 1")
	}
	if c.AudioQueueSize < 1 {
		issues = append(issues, "audio queue size must be at least 1")
	}
	if c.OutboxSize < 1 {
		issues = append(issues, "outbox size must be at least 1")
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		issues = append(issues, fmt.Sprintf("invalid log level: %s", c.LogLevel))
	}

	return issues
}
