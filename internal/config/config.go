// Package config provides application settings, defaults and validation
// for regd. The registry descriptor itself is loaded by package descriptor;
// these settings only say where to find it and how to run around it.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/zjrosen/regd/internal/cachemanager"
	"github.com/zjrosen/regd/internal/descriptor"
	"github.com/zjrosen/regd/internal/log"
	"github.com/zjrosen/regd/internal/logwriter"
	"github.com/zjrosen/regd/internal/tenant"
	"github.com/zjrosen/regd/internal/tracing"
)

// EnvPrefix prefixes every environment override, e.g. REGD_HTTP_ADDR.
const EnvPrefix = "REGD"

// Config holds all regd settings.
type Config struct {
	Descriptor DescriptorConfig `mapstructure:"descriptor"`
	Log        LogConfig        `mapstructure:"log"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Database   DatabaseConfig   `mapstructure:"database"`
	LogWriter  logwriter.Config `mapstructure:"log_writer"`
	Tracing    tracing.Config   `mapstructure:"tracing"`
	Events     EventsConfig     `mapstructure:"events"`
	Secrets    SecretsConfig    `mapstructure:"secrets"`
	Watch      WatchConfig      `mapstructure:"watch"`
}

// DescriptorConfig locates the registry descriptor and the values
// substituted into it.
type DescriptorConfig struct {
	Path     string            `mapstructure:"path"`
	Profile  string            `mapstructure:"profile"`
	Home     string            `mapstructure:"home"`
	ReadOnly bool              `mapstructure:"read_only"` // Force the node read-only
	Vars     map[string]string `mapstructure:"vars"`      // Extra ${name} substitutions
	Tenants  map[string]int    `mapstructure:"tenants"`   // Tenant domain -> id for handler tenant attributes
}

// LogConfig configures the debug log.
type LogConfig struct {
	Path   string `mapstructure:"path"` // Empty logs to stderr
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
}

// HTTPConfig configures the admin API.
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	JWTSecret       string        `mapstructure:"jwt_secret"` // Empty disables auth
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// CacheConfig selects the cache backend used by query processors.
type CacheConfig struct {
	Backend   cachemanager.Backend `mapstructure:"backend"`
	RedisURL  string               `mapstructure:"redis_url"`
	KeyPrefix string               `mapstructure:"key_prefix"`
}

// DatabaseConfig controls data access start-up.
type DatabaseConfig struct {
	Migrate bool `mapstructure:"migrate"` // Apply REG_LOG migrations on first use
}

// EventsConfig configures the Kafka event sink. No brokers means no sink.
type EventsConfig struct {
	Brokers  []string `mapstructure:"brokers"`
	Topic    string   `mapstructure:"topic"`
	ClientID string   `mapstructure:"client_id"`
}

// Enabled reports whether any broker is configured.
func (e EventsConfig) Enabled() bool {
	return len(e.Brokers) > 0
}

// SecretsConfig holds the key used for enc: descriptor values.
type SecretsConfig struct {
	Key string `mapstructure:"key"`
}

// WatchConfig controls descriptor hot reload.
type WatchConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// DefaultDir returns ~/.config/regd, or "" when the home directory is
// unknown.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "regd")
}

// DefaultTracesFilePath returns the default JSONL trace file.
func DefaultTracesFilePath() string {
	dir := DefaultDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "traces", "traces.jsonl")
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	tc := tracing.DefaultConfig()
	tc.FilePath = DefaultTracesFilePath()
	return Config{
		Descriptor: DescriptorConfig{
			Path:    "registry.xml",
			Profile: descriptor.DefaultProfile,
		},
		Log: LogConfig{
			Level:  "info",
			Format: string(log.FormatText),
		},
		HTTP: HTTPConfig{
			Addr:            "127.0.0.1:9763",
			ReadTimeout:     10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Cache: CacheConfig{
			Backend:   cachemanager.BackendMemory,
			KeyPrefix: cachemanager.DefaultKeyPrefix,
		},
		Database: DatabaseConfig{
			Migrate: true,
		},
		LogWriter: logwriter.Config{
			QueueSize:     logwriter.DefaultQueueSize,
			BatchSize:     logwriter.DefaultBatchSize,
			FlushInterval: logwriter.DefaultFlushInterval,
		},
		Tracing: tc,
		Events: EventsConfig{
			Topic:    "regd.events",
			ClientID: "regd",
		},
		Watch: WatchConfig{
			Enabled:  true,
			Debounce: 300 * time.Millisecond,
		},
	}
}

// SetDefaults registers every default with v so environment variables
// can override keys that never appear in a config file.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("descriptor.path", d.Descriptor.Path)
	v.SetDefault("descriptor.profile", d.Descriptor.Profile)
	v.SetDefault("descriptor.home", d.Descriptor.Home)
	v.SetDefault("descriptor.read_only", d.Descriptor.ReadOnly)
	v.SetDefault("log.path", d.Log.Path)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("http.jwt_secret", d.HTTP.JWTSecret)
	v.SetDefault("http.read_timeout", d.HTTP.ReadTimeout)
	v.SetDefault("http.shutdown_timeout", d.HTTP.ShutdownTimeout)
	v.SetDefault("cache.backend", string(d.Cache.Backend))
	v.SetDefault("cache.redis_url", d.Cache.RedisURL)
	v.SetDefault("cache.key_prefix", d.Cache.KeyPrefix)
	v.SetDefault("database.migrate", d.Database.Migrate)
	v.SetDefault("log_writer.queue_size", d.LogWriter.QueueSize)
	v.SetDefault("log_writer.batch_size", d.LogWriter.BatchSize)
	v.SetDefault("log_writer.flush_interval", d.LogWriter.FlushInterval)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("events.brokers", []string{})
	v.SetDefault("events.topic", d.Events.Topic)
	v.SetDefault("events.client_id", d.Events.ClientID)
	v.SetDefault("secrets.key", d.Secrets.Key)
	v.SetDefault("watch.enabled", d.Watch.Enabled)
	v.SetDefault("watch.debounce", d.Watch.Debounce)
}

// BindEnv makes REGD_SECTION_KEY override section.key.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Decode unmarshals v into a Config and validates it.
func Decode(v *viper.Viper) (Config, error) {
	var cfg Config
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return Config{}, fmt.Errorf("decoding settings: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every section.
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Descriptor.Path) == "" {
		return fmt.Errorf("descriptor.path is required")
	}
	if _, err := log.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if _, err := log.ParseFormat(cfg.Log.Format); err != nil {
		return fmt.Errorf("log.format: %w", err)
	}
	if err := ValidateCache(cfg.Cache); err != nil {
		return err
	}
	if err := ValidateEvents(cfg.Events); err != nil {
		return err
	}
	if cfg.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative, got %s", cfg.Watch.Debounce)
	}
	return cfg.Tracing.Validate()
}

// ValidateCache checks the cache backend and its connection settings.
func ValidateCache(c CacheConfig) error {
	switch c.Backend {
	case cachemanager.BackendMemory, "":
		return nil
	case cachemanager.BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("cache.redis_url is required when cache.backend is %q", c.Backend)
		}
		return nil
	default:
		return fmt.Errorf("cache.backend must be %q or %q, got %q",
			cachemanager.BackendMemory, cachemanager.BackendRedis, c.Backend)
	}
}

// ValidateEvents checks the event sink settings when brokers are set.
func ValidateEvents(e EventsConfig) error {
	if !e.Enabled() {
		return nil
	}
	if e.Topic == "" {
		return fmt.Errorf("events.topic is required when events.brokers is set")
	}
	for i, b := range e.Brokers {
		if strings.TrimSpace(b) == "" {
			return fmt.Errorf("events.brokers[%d] is empty", i)
		}
	}
	return nil
}

// DescriptorOptions turns the descriptor section into load options.
func (c Config) DescriptorOptions() []descriptor.Option {
	opts := []descriptor.Option{
		descriptor.WithProfile(c.Descriptor.Profile),
		descriptor.WithReadOnlyNode(c.Descriptor.ReadOnly),
	}
	if c.Descriptor.Home != "" {
		opts = append(opts, descriptor.WithHome(c.Descriptor.Home))
	}
	for name, value := range c.Descriptor.Vars {
		opts = append(opts, descriptor.WithVar(name, value))
	}
	if len(c.Descriptor.Tenants) > 0 {
		opts = append(opts, descriptor.WithTenantResolver(tenant.NewDirectory(c.Descriptor.Tenants)))
	}
	return opts
}

// DefaultConfigTemplate returns the default settings as commented YAML.
func DefaultConfigTemplate() string {
	return `# regd settings
# Every key can be overridden with an environment variable, e.g.
# REGD_HTTP_ADDR=0.0.0.0:9763 or REGD_CACHE_BACKEND=redis.

descriptor:
  path: registry.xml        # .xml, .yaml, .json, .toml or .hcl
  profile: default          # Handlers outside this profile are skipped
  # home: /opt/registry     # Substituted for ${registry.home}
  # read_only: false        # Force the node read-only
  # vars:
  #   db.host: localhost    # Extra ${name} substitutions
  # tenants:
  #   example.com: 1        # Tenant domain -> id for handler tenant attributes

log:
  # path: regd.log          # Empty disables the debug log
  level: info               # debug, info, warn, error
  format: text              # text or json

http:
  addr: 127.0.0.1:9763
  # jwt_secret: change-me   # HS256 secret protecting /api/v1; empty disables auth
  read_timeout: 10s
  shutdown_timeout: 10s

cache:
  backend: memory           # memory or redis
  # redis_url: redis://localhost:6379/0
  key_prefix: "regd:"

database:
  migrate: true             # Create REG_LOG on first use

log_writer:
  queue_size: 1024
  batch_size: 100
  flush_interval: 1s

tracing:
  enabled: false
  exporter: file            # none, file, stdout, otlp
  # file_path: ~/.config/regd/traces/traces.jsonl
  # otlp_endpoint: localhost:4317
  sample_rate: 1.0

events:
  # brokers: [localhost:9092]
  topic: regd.events
  client_id: regd

secrets:
  key: ""                   # Decrypts enc: values; see 'regd secret encrypt'

watch:
  enabled: true             # Reload when the descriptor changes (serve only)
  debounce: 300ms
`
}

// WriteDefaultConfig creates a config file at configPath with default
// settings and comments, creating the parent directory if needed.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default settings", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create settings directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write settings file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default settings", "path", configPath)
	return nil
}
