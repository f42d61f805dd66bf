package config

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/c360/blockflow/errors"
)

// Device transports
const (
	TransportNone      = "none"
	TransportHTTP      = "http"
	TransportNATS      = "nats"
	TransportWebSocket = "websocket"
)

// Config is the complete blockflow configuration
type Config struct {
	Log         LogConfig         `json:"log" yaml:"log"`
	NATS        NATSConfig        `json:"nats" yaml:"nats"`
	Device      DeviceConfig      `json:"device" yaml:"device"`
	Interpreter InterpreterConfig `json:"interpreter" yaml:"interpreter"`
	Metrics     MetricsConfig     `json:"metrics" yaml:"metrics"`
	Store       StoreConfig       `json:"store" yaml:"store"`
	RunLog      RunLogConfig      `json:"runlog" yaml:"runlog"`
}

// LogConfig selects the process log handler
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // text or json
}

// NATSConfig defines NATS connection settings
type NATSConfig struct {
	URLs          []string `json:"urls,omitempty" yaml:"urls,omitempty"`
	MaxReconnects int      `json:"max_reconnects" yaml:"max_reconnects"`
	ReconnectWait Duration `json:"reconnect_wait" yaml:"reconnect_wait"`
	Timeout       Duration `json:"timeout" yaml:"timeout"`
	Name          string   `json:"name,omitempty" yaml:"name,omitempty"`
	Username      string   `json:"username,omitempty" yaml:"username,omitempty"`
	Password      string   `json:"password,omitempty" yaml:"password,omitempty"`
	Token         string   `json:"token,omitempty" yaml:"token,omitempty"`
}

// URL returns the server list in the comma-separated form nats.Connect takes
func (n NATSConfig) URL() string {
	return strings.Join(n.URLs, ",")
}

// DeviceConfig selects how block commands reach the robot
type DeviceConfig struct {
	Transport string      `json:"transport" yaml:"transport"`
	URL       string      `json:"url,omitempty" yaml:"url,omitempty"`         // http and websocket
	Subject   string      `json:"subject,omitempty" yaml:"subject,omitempty"` // nats
	Timeout   Duration    `json:"timeout" yaml:"timeout"`
	RateLimit float64     `json:"rate_limit" yaml:"rate_limit"` // commands per second, 0 = unlimited
	Burst     int         `json:"burst" yaml:"burst"`
	Retry     RetryConfig `json:"retry" yaml:"retry"`
}

// RetryConfig mirrors errors.RetryConfig for transports that retry
type RetryConfig struct {
	MaxRetries    int      `json:"max_retries" yaml:"max_retries"`
	InitialDelay  Duration `json:"initial_delay" yaml:"initial_delay"`
	MaxDelay      Duration `json:"max_delay" yaml:"max_delay"`
	BackoffFactor float64  `json:"backoff_factor" yaml:"backoff_factor"`
}

// ToRetryConfig converts to the errors package form
func (r RetryConfig) ToRetryConfig() errors.RetryConfig {
	return errors.RetryConfig{
		MaxRetries:    r.MaxRetries,
		InitialDelay:  r.InitialDelay.Std(),
		MaxDelay:      r.MaxDelay.Std(),
		BackoffFactor: r.BackoffFactor,
	}
}

// InterpreterConfig tunes program execution
type InterpreterConfig struct {
	LoopDelay Duration `json:"loop_delay" yaml:"loop_delay"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Port    int    `json:"port" yaml:"port"`
	Path    string `json:"path" yaml:"path"`
}

// StoreConfig selects the program bucket
type StoreConfig struct {
	Bucket  string `json:"bucket" yaml:"bucket"`
	History int    `json:"history" yaml:"history"`
}

// RunLogConfig controls publishing run logs to NATS
type RunLogConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Level   string `json:"level" yaml:"level"`
}

// Default returns the built-in configuration every load starts from
func Default() *Config {
	retry := errors.DefaultRetryConfig()
	return &Config{
		Log: LogConfig{Level: "info", Format: "text"},
		NATS: NATSConfig{
			URLs:          []string{"nats://localhost:4222"},
			MaxReconnects: -1,
			ReconnectWait: Duration(2 * time.Second),
			Timeout:       Duration(5 * time.Second),
			Name:          "blockflow",
		},
		Device: DeviceConfig{
			Transport: TransportNone,
			Subject:   "blockflow.device.command",
			Timeout:   Duration(5 * time.Second),
			RateLimit: 20,
			Burst:     5,
			Retry: RetryConfig{
				MaxRetries:    retry.MaxRetries,
				InitialDelay:  Duration(retry.InitialDelay),
				MaxDelay:      Duration(retry.MaxDelay),
				BackoffFactor: retry.BackoffFactor,
			},
		},
		Interpreter: InterpreterConfig{LoopDelay: Duration(100 * time.Millisecond)},
		Metrics:     MetricsConfig{Enabled: false, Port: 9090, Path: "/metrics"},
		Store:       StoreConfig{Bucket: "blockflow_programs", History: 10},
		RunLog:      RunLogConfig{Enabled: false, Level: "info"},
	}
}

// ParseLevel maps a configured level name to an slog.Level
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, errors.WrapInvalid(fmt.Errorf("%w: %w", err, errors.ErrInvalidConfig), "config", "ParseLevel", "parse level")
	}
	return l, nil
}

// Validate checks the configuration. All problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		fail("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		fail("log.format %q must be text or json", c.Log.Format)
	}

	switch c.Device.Transport {
	case TransportNone:
	case TransportHTTP, TransportWebSocket:
		if c.Device.URL == "" {
			fail("device.url is required for the %s transport", c.Device.Transport)
		} else if u, err := url.Parse(c.Device.URL); err != nil || u.Host == "" {
			fail("device.url %q is not an absolute URL", c.Device.URL)
		}
	case TransportNATS:
		if !isValidNATSSubject(c.Device.Subject) {
			fail("device.subject %q is not a valid NATS subject", c.Device.Subject)
		}
	default:
		fail("device.transport %q must be one of none, http, nats, websocket", c.Device.Transport)
	}
	if c.Device.Timeout < 0 {
		fail("device.timeout cannot be negative")
	}
	if c.Device.RateLimit < 0 || c.Device.Burst < 0 {
		fail("device.rate_limit and device.burst cannot be negative")
	}
	if c.Device.Retry.MaxRetries < 0 {
		fail("device.retry.max_retries cannot be negative")
	}
	if c.Device.Retry.MaxRetries > 0 && c.Device.Retry.BackoffFactor < 1 {
		fail("device.retry.backoff_factor must be at least 1")
	}

	if c.needsNATS() && len(c.NATS.URLs) == 0 {
		fail("nats.urls is required when the nats transport, the program store or runlog is used")
	}
	if c.NATS.Timeout < 0 {
		fail("nats.timeout cannot be negative")
	}

	if c.Interpreter.LoopDelay < 0 {
		fail("interpreter.loop_delay cannot be negative")
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
			fail("metrics.port %d is out of range", c.Metrics.Port)
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			fail("metrics.path %q must start with /", c.Metrics.Path)
		}
	}

	if !isValidNATSSubjectPart(c.Store.Bucket) || strings.Contains(c.Store.Bucket, ".") {
		fail("store.bucket %q may only contain letters, digits, dashes and underscores", c.Store.Bucket)
	}
	if c.Store.History < 1 || c.Store.History > 64 {
		fail("store.history %d must be between 1 and 64", c.Store.History)
	}

	if c.RunLog.Enabled {
		if _, err := ParseLevel(c.RunLog.Level); err != nil {
			fail("runlog.level %q is not one of debug, info, warn, error", c.RunLog.Level)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.WrapInvalid(fmt.Errorf("%w: %w", stderrors.Join(errs...), errors.ErrInvalidConfig),
		"config", "Validate", "validate configuration")
}

// needsNATS reports whether a NATS connection is part of this setup. The
// program store always needs one; callers that only run local files can
// ignore it.
func (c *Config) needsNATS() bool {
	return c.Device.Transport == TransportNATS || c.RunLog.Enabled
}

// isValidNATSSubjectPart checks a single subject token
func isValidNATSSubjectPart(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) &&
			r != '-' && r != '_' && r != '.' {
			return false
		}
	}
	return true
}

// isValidNATSSubject checks a dotted subject without wildcards
func isValidNATSSubject(s string) bool {
	if s == "" {
		return false
	}
	for _, tok := range strings.Split(s, ".") {
		if tok == "" || !isValidNATSSubjectPart(tok) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy
func (c *Config) Clone() *Config {
	clone := *c
	clone.NATS.URLs = append([]string(nil), c.NATS.URLs...)
	return &clone
}

// Redacted returns a copy with credentials masked, for display
func (c *Config) Redacted() *Config {
	r := c.Clone()
	for _, s := range []*string{&r.NATS.Password, &r.NATS.Token} {
		if *s != "" {
			*s = "****"
		}
	}
	return r
}

// YAML renders the configuration as YAML
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// String returns the redacted configuration as indented JSON
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c.Redacted(), "", "  ")
	return string(data)
}
