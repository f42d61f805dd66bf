package config

import (
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/c360/blockflow/errors"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, TransportNone, cfg.Device.Transport)
	assert.Equal(t, 100*time.Millisecond, cfg.Interpreter.LoopDelay.Std())
	assert.Equal(t, "blockflow_programs", cfg.Store.Bucket)
	assert.Equal(t, 10, cfg.Store.History)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"unknown transport", func(c *Config) { c.Device.Transport = "serial" }, "device.transport"},
		{"http without url", func(c *Config) { c.Device.Transport = TransportHTTP }, "device.url is required"},
		{"websocket relative url", func(c *Config) {
			c.Device.Transport = TransportWebSocket
			c.Device.URL = "robot/ws"
		}, "not an absolute URL"},
		{"nats wildcard subject", func(c *Config) {
			c.Device.Transport = TransportNATS
			c.Device.Subject = "robot.*"
		}, "device.subject"},
		{"nats without urls", func(c *Config) {
			c.Device.Transport = TransportNATS
			c.NATS.URLs = nil
		}, "nats.urls"},
		{"negative loop delay", func(c *Config) { c.Interpreter.LoopDelay = -1 }, "loop_delay"},
		{"metrics port", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Port = 70000
		}, "metrics.port"},
		{"metrics path", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Path = "metrics"
		}, "metrics.path"},
		{"bucket with dot", func(c *Config) { c.Store.Bucket = "a.b" }, "store.bucket"},
		{"history too large", func(c *Config) { c.Store.History = 65 }, "store.history"},
		{"backoff below one", func(c *Config) { c.Device.Retry.BackoffFactor = 0.5 }, "backoff_factor"},
		{"runlog level", func(c *Config) {
			c.RunLog.Enabled = true
			c.RunLog.Level = "chatty"
		}, "runlog.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, errors.IsInvalid(err))
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
		})
	}
}

func TestConfig_ValidateReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "loud"
	cfg.Store.History = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.level")
	assert.Contains(t, err.Error(), "store.history")
}

func TestConfig_ValidTransports(t *testing.T) {
	http := Default()
	http.Device.Transport = TransportHTTP
	http.Device.URL = "http://192.168.4.1"
	assert.NoError(t, http.Validate())

	nats := Default()
	nats.Device.Transport = TransportNATS
	assert.NoError(t, nats.Validate())
}

func TestDuration_JSON(t *testing.T) {
	var v struct {
		A Duration `json:"a"`
		B Duration `json:"b"`
		C Duration `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": "250ms", "b": 1000000000, "c": "2d"}`), &v))
	assert.Equal(t, 250*time.Millisecond, v.A.Std())
	assert.Equal(t, time.Second, v.B.Std())
	assert.Equal(t, 48*time.Hour, v.C.Std())

	data, err := json.Marshal(v.A)
	require.NoError(t, err)
	assert.JSONEq(t, `"250ms"`, string(data))

	assert.Error(t, json.Unmarshal([]byte(`{"a": "soon"}`), &v))
	assert.Error(t, json.Unmarshal([]byte(`{"a": true}`), &v))
}

func TestDuration_YAML(t *testing.T) {
	var v struct {
		A Duration `yaml:"a"`
		B Duration `yaml:"b"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("a: 1m30s\nb: 500\n"), &v))
	assert.Equal(t, 90*time.Second, v.A.Std())
	assert.Equal(t, Duration(500), v.B)

	out, err := yaml.Marshal(v)
	require.NoError(t, err)
	assert.Contains(t, string(out), "a: 1m30s")
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, l)

	l, err = ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, l)

	_, err = ParseLevel("")
	assert.True(t, errors.IsInvalid(err))
}

func TestConfig_RedactedAndClone(t *testing.T) {
	cfg := Default()
	cfg.NATS.Password = "secret"
	cfg.NATS.Token = "tok"

	r := cfg.Redacted()
	assert.Equal(t, "****", r.NATS.Password)
	assert.Equal(t, "****", r.NATS.Token)
	assert.Equal(t, "secret", cfg.NATS.Password, "original untouched")
	assert.NotContains(t, cfg.String(), "secret")

	clone := cfg.Clone()
	clone.NATS.URLs[0] = "nats://other:4222"
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URLs[0])
}

func TestNATSConfig_URL(t *testing.T) {
	n := NATSConfig{URLs: []string{"nats://a:4222", "nats://b:4222"}}
	assert.Equal(t, "nats://a:4222,nats://b:4222", n.URL())
}

func TestRetryConfig_ToRetryConfig(t *testing.T) {
	rc := RetryConfig{MaxRetries: 3, InitialDelay: Duration(time.Millisecond), MaxDelay: Duration(time.Second), BackoffFactor: 1.5}
	got := rc.ToRetryConfig()
	assert.Equal(t, 3, got.MaxRetries)
	assert.Equal(t, time.Millisecond, got.InitialDelay)
	assert.Equal(t, time.Second, got.MaxDelay)
	assert.Equal(t, 1.5, got.BackoffFactor)
}
