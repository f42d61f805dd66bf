package config

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360/blockflow/errors"
)

// DefaultEnvPrefix prefixes every environment override
const DefaultEnvPrefix = "BLOCKFLOW"

// Loader builds a Config from defaults, file layers and the environment
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
	lookupEnv  func(string) (string, bool)
}

// NewLoader creates a loader with validation enabled
func NewLoader() *Loader {
	return &Loader{
		validation: true,
		envPrefix:  DefaultEnvPrefix,
		lookupEnv:  os.LookupEnv,
	}
}

// AddLayer adds a JSON or YAML file. Later layers override earlier ones,
// field by field.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables validation at the end of Load
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// SetEnvPrefix changes the environment prefix
func (l *Loader) SetEnvPrefix(prefix string) {
	l.envPrefix = strings.TrimSuffix(prefix, "_")
}

// Load merges defaults, every layer and the environment, then validates
func (l *Loader) Load() (*Config, error) {
	merged, err := toMap(Default())
	if err != nil {
		return nil, errors.WrapFatal(err, "config", "Load", "encode defaults")
	}

	for _, path := range l.layers {
		layer, err := loadRaw(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load", fmt.Sprintf("load %s", path))
		}
		merged = deepMergeMaps(merged, layer)
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return nil, errors.WrapFatal(err, "config", "Load", "encode merged layers")
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %w", err, errors.ErrInvalidConfig), "config", "Load", "decode merged layers")
	}

	if err := l.applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// LoadFile loads defaults plus a single file
func LoadFile(path string) (*Config, error) {
	l := NewLoader()
	l.AddLayer(path)
	return l.Load()
}

func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	return m, json.Unmarshal(data, &m)
}

// loadRaw reads one layer into a generic map, choosing the decoder by extension
func loadRaw(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%v: %w", err, errors.ErrParsingFailed)
		}
		// yaml keeps ints as int; route through JSON so merging sees one shape
		normalized, err := toMap(raw)
		if err != nil {
			return nil, fmt.Errorf("%v: %w", err, errors.ErrParsingFailed)
		}
		raw = normalized
	default:
		if err := validateJSONDepth(data); err != nil {
			return nil, fmt.Errorf("invalid JSON structure: %w", err)
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%v: %w", err, errors.ErrParsingFailed)
		}
	}
	return raw, nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence.
// Nil values in override leave the base untouched.
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// applyEnvOverrides applies <PREFIX>_* variables on top of the file layers
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	var errs []error

	str := func(name string, dst *string) {
		if v, ok := l.env(name, &errs); ok {
			*dst = v
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := l.env(name, &errs); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s_%s: %w", l.envPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	duration := func(name string, dst *Duration) {
		if v, ok := l.env(name, &errs); ok {
			d, err := parseDurationWithDays(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s_%s: %w", l.envPrefix, name, err))
				return
			}
			*dst = Duration(d)
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := l.env(name, &errs); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s_%s: %w", l.envPrefix, name, err))
				return
			}
			*dst = b
		}
	}

	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)

	if v, ok := l.env("NATS_URLS", &errs); ok {
		cfg.NATS.URLs = nil
		for _, u := range strings.Split(v, ",") {
			if u = strings.TrimSpace(u); u != "" {
				cfg.NATS.URLs = append(cfg.NATS.URLs, u)
			}
		}
	}
	str("NATS_USERNAME", &cfg.NATS.Username)
	str("NATS_PASSWORD", &cfg.NATS.Password)
	str("NATS_TOKEN", &cfg.NATS.Token)
	duration("NATS_TIMEOUT", &cfg.NATS.Timeout)

	str("DEVICE_TRANSPORT", &cfg.Device.Transport)
	str("DEVICE_URL", &cfg.Device.URL)
	str("DEVICE_SUBJECT", &cfg.Device.Subject)
	duration("DEVICE_TIMEOUT", &cfg.Device.Timeout)

	duration("LOOP_DELAY", &cfg.Interpreter.LoopDelay)

	boolean("METRICS_ENABLED", &cfg.Metrics.Enabled)
	integer("METRICS_PORT", &cfg.Metrics.Port)

	str("STORE_BUCKET", &cfg.Store.Bucket)
	boolean("RUNLOG_ENABLED", &cfg.RunLog.Enabled)

	if len(errs) == 0 {
		return nil
	}
	return errors.WrapInvalid(fmt.Errorf("%w: %w", stderrors.Join(errs...), errors.ErrInvalidConfig),
		"config", "Load", "apply environment")
}

// env looks up <prefix>_<name>. Empty values count as unset.
func (l *Loader) env(name string, errs *[]error) (string, bool) {
	key := l.envPrefix + "_" + name
	v, ok := l.lookupEnv(key)
	if !ok || v == "" {
		return "", false
	}
	if err := validateEnvVar(key, v); err != nil {
		*errs = append(*errs, err)
		return "", false
	}
	return v, true
}

// SaveToFile writes the configuration as JSON or YAML depending on the extension
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = c.YAML()
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return errors.WrapFatal(err, "config", "SaveToFile", "encode configuration")
	}
	if err := safeWriteFile(path, data); err != nil {
		return errors.WrapInvalid(err, "config", "SaveToFile", fmt.Sprintf("write %s", path))
	}
	return nil
}
