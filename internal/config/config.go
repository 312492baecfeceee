// Package config loads recon configuration from a YAML, JSON or CUE file,
// applies RECON_* environment overrides, fills defaults and validates the
// result.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/roach88/recon/internal/apperrors"
	"github.com/roach88/recon/internal/document"
)

//go:embed schema.cue
var schemaCUE string

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RECON_"

// Defaults.
const (
	DefaultEventLogPath  = "recon-events.db"
	DefaultReadModelPath = "recon-readmodel.db"
	DefaultConcurrency   = 8
	DefaultCallTimeout   = 10 * time.Second
	DefaultSnapshotEvery = 100
	DefaultHTTPAddr      = ":8080"
	DefaultServiceName   = "recon"
	DefaultTopic         = "recon.reconciliation"
)

// Driver names.
const (
	DriverNone     = "none"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverLog      = "log"
	DriverKafka    = "kafka"
)

// BuiltinProduct selects the built-in product module.
const BuiltinProduct = "product"

// Config is the full recon configuration.
type Config struct {
	EventLog  EventLogConfig  `yaml:"eventLog"`
	ReadModel ReadModelConfig `yaml:"readModel"`
	Snapshots SnapshotConfig  `yaml:"snapshots"`
	Notify    NotifyConfig    `yaml:"notify"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
	Modules   []ModuleConfig  `yaml:"modules"`
}

// EventLogConfig locates the SQLite event log.
type EventLogConfig struct {
	Path string `yaml:"path" env:"EVENT_LOG_PATH"`
}

// ReadModelConfig selects the read-model backend.
type ReadModelConfig struct {
	Driver   string `yaml:"driver" env:"READ_MODEL_DRIVER"`
	Path     string `yaml:"path" env:"READ_MODEL_PATH"`
	URL      string `yaml:"url" env:"READ_MODEL_URL"`
	MaxConns int    `yaml:"maxConns" env:"READ_MODEL_MAX_CONNS"`
}

// SnapshotConfig selects the snapshot cache.
type SnapshotConfig struct {
	Driver   string        `yaml:"driver" env:"SNAPSHOT_DRIVER"`
	Every    int           `yaml:"every" env:"SNAPSHOT_EVERY"`
	RedisURL string        `yaml:"redisURL" env:"SNAPSHOT_REDIS_URL"`
	Prefix   string        `yaml:"prefix" env:"SNAPSHOT_PREFIX"`
	TTL      time.Duration `yaml:"ttl" env:"SNAPSHOT_TTL"`
}

// NotifyConfig selects where drift and repair notifications go.
type NotifyConfig struct {
	Driver  string   `yaml:"driver" env:"NOTIFY_DRIVER"`
	Brokers []string `yaml:"brokers" env:"NOTIFY_BROKERS" envSeparator:","`
	Topic   string   `yaml:"topic" env:"NOTIFY_TOPIC"`
}

// ReconcileConfig bounds batch work.
type ReconcileConfig struct {
	Concurrency int           `yaml:"concurrency" env:"CONCURRENCY"`
	CallTimeout time.Duration `yaml:"callTimeout" env:"CALL_TIMEOUT"`
}

// TelemetryConfig enables OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled" env:"TELEMETRY_ENABLED"`
	Endpoint    string  `yaml:"endpoint" env:"TELEMETRY_ENDPOINT"`
	Insecure    bool    `yaml:"insecure" env:"TELEMETRY_INSECURE"`
	ServiceName string  `yaml:"serviceName" env:"TELEMETRY_SERVICE_NAME"`
	SampleRatio float64 `yaml:"sampleRatio" env:"TELEMETRY_SAMPLE_RATIO"`
}

// HTTPConfig configures recon serve.
type HTTPConfig struct {
	Addr string `yaml:"addr" env:"HTTP_ADDR"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// ModuleConfig declares one reconciliation module: either a built-in type or
// a rule-driven document type.
type ModuleConfig struct {
	Name          string                   `yaml:"name"`
	Builtin       string                   `yaml:"builtin"`
	AggregateType string                   `yaml:"aggregateType"`
	Collection    string                   `yaml:"collection"`
	Fields        []string                 `yaml:"fields"`
	Events        map[string]document.Rule `yaml:"events"`
}

// Definition converts a rule-driven module to a document definition.
func (m ModuleConfig) Definition() document.Definition {
	return document.Definition{
		Name:          m.Name,
		AggregateType: m.AggregateType,
		Collection:    m.Collection,
		Fields:        m.Fields,
		Events:        m.Events,
	}
}

type loadOptions struct {
	environ map[string]string
}

// Option configures Load.
type Option func(*loadOptions)

// WithEnvironment replaces the process environment for overrides.
func WithEnvironment(environ map[string]string) Option {
	return func(o *loadOptions) { o.environ = environ }
}

// Default returns the configuration used when no file is given: SQLite
// stores in the working directory and the built-in product module.
func Default() Config {
	cfg := Config{Modules: []ModuleConfig{{Name: BuiltinProduct, Builtin: BuiltinProduct}}}
	cfg.ApplyDefaults()
	return cfg
}

// Load reads path (empty for defaults), applies environment overrides,
// defaults and validation.
func Load(path string, opts ...Option) (Config, error) {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}

	cfg := Config{}
	if path == "" {
		cfg = Default()
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		cfg, err = Parse(path, data)
		if err != nil {
			return Config{}, err
		}
	}

	envOpts := env.Options{Prefix: EnvPrefix}
	if o.environ != nil {
		envOpts.Environment = o.environ
	}
	for _, section := range cfg.envSections() {
		if err := env.ParseWithOptions(section, envOpts); err != nil {
			return Config{}, apperrors.InvalidConfig("parse env: %v", err)
		}
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envSections lists the sections that accept environment overrides.
// Modules are file-only.
func (c *Config) envSections() []any {
	return []any{&c.EventLog, &c.ReadModel, &c.Snapshots, &c.Notify, &c.Reconcile, &c.Telemetry, &c.HTTP, &c.Log}
}

// Parse decodes configuration data. The format follows the file extension:
// .cue is validated against the embedded schema, anything else is YAML
// (which includes JSON).
func Parse(name string, data []byte) (Config, error) {
	if strings.EqualFold(filepath.Ext(name), ".cue") {
		var err error
		data, err = cueToJSON(name, data)
		if err != nil {
			return Config{}, err
		}
	}
	return decodeYAML(name, data)
}

func decodeYAML(name string, data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, apperrors.InvalidConfig("%s: %v", name, err)
	}
	return cfg, nil
}

// cueToJSON unifies the file with #Config and exports it as JSON.
func cueToJSON(name string, data []byte) ([]byte, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile config schema: %w", err)
	}

	value := ctx.CompileBytes(data, cue.Filename(name))
	if err := value.Err(); err != nil {
		return nil, apperrors.InvalidConfig("%s: %v", name, err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, apperrors.InvalidConfig("%s: %v", name, err)
	}
	out, err := unified.MarshalJSON()
	if err != nil {
		return nil, apperrors.InvalidConfig("%s: %v", name, err)
	}
	return out, nil
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.EventLog.Path == "" {
		c.EventLog.Path = DefaultEventLogPath
	}
	if c.ReadModel.Driver == "" {
		c.ReadModel.Driver = DriverSQLite
	}
	if c.ReadModel.Driver == DriverSQLite && c.ReadModel.Path == "" {
		c.ReadModel.Path = DefaultReadModelPath
	}
	if c.Snapshots.Driver == "" {
		c.Snapshots.Driver = DriverNone
	}
	if c.Snapshots.Every == 0 {
		c.Snapshots.Every = DefaultSnapshotEvery
	}
	if c.Notify.Driver == "" {
		c.Notify.Driver = DriverNone
	}
	if c.Notify.Driver == DriverKafka && c.Notify.Topic == "" {
		c.Notify.Topic = DefaultTopic
	}
	if c.Reconcile.Concurrency == 0 {
		c.Reconcile.Concurrency = DefaultConcurrency
	}
	if c.Reconcile.CallTimeout == 0 {
		c.Reconcile.CallTimeout = DefaultCallTimeout
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = DefaultServiceName
	}
	if c.Telemetry.SampleRatio == 0 {
		c.Telemetry.SampleRatio = 1
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = DefaultHTTPAddr
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate reports every configuration problem at once.
func (c Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) { errs = append(errs, fmt.Sprintf(format, args...)) }

	switch c.ReadModel.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if c.ReadModel.URL == "" {
			add("readModel.url is required for the postgres driver")
		}
	default:
		add("readModel.driver %q is not one of sqlite, postgres", c.ReadModel.Driver)
	}
	switch c.Snapshots.Driver {
	case DriverNone, DriverMemory, DriverSQLite:
	case DriverRedis:
		if c.Snapshots.RedisURL == "" {
			add("snapshots.redisURL is required for the redis driver")
		}
	default:
		add("snapshots.driver %q is not one of none, memory, sqlite, redis", c.Snapshots.Driver)
	}
	if c.Snapshots.Every < 0 {
		add("snapshots.every must be positive")
	}
	switch c.Notify.Driver {
	case DriverNone, DriverLog:
	case DriverKafka:
		if len(c.Notify.Brokers) == 0 {
			add("notify.brokers is required for the kafka driver")
		}
	default:
		add("notify.driver %q is not one of none, log, kafka", c.Notify.Driver)
	}
	if c.Reconcile.Concurrency < 0 {
		add("reconcile.concurrency must be positive")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		add("telemetry.sampleRatio must be within [0, 1]")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		add("log.format %q is not one of text, json", c.Log.Format)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		add("log.level: %v", err)
	}

	seen := make(map[string]bool, len(c.Modules))
	for i, m := range c.Modules {
		if m.Name == "" {
			add("modules[%d]: name is required", i)
			continue
		}
		if seen[m.Name] {
			add("modules[%d]: duplicate module %q", i, m.Name)
		}
		seen[m.Name] = true
		switch {
		case m.Builtin == BuiltinProduct:
			if len(m.Events) > 0 {
				add("module %q: built-in modules take no event rules", m.Name)
			}
		case m.Builtin != "":
			add("module %q: unknown builtin %q", m.Name, m.Builtin)
		default:
			if err := m.Definition().Validate(); err != nil {
				add("%v", err)
			}
		}
	}

	if len(errs) > 0 {
		return apperrors.InvalidConfig("%s", strings.Join(errs, "; "))
	}
	return nil
}
