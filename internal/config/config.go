// Package config loads and validates the content loader configuration.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/contentloader/internal/contentreader"
	"git.home.luguber.info/inful/contentloader/internal/foundation/errors"
	"git.home.luguber.info/inful/contentloader/internal/loader"
	"git.home.luguber.info/inful/contentloader/internal/retry"
	"git.home.luguber.info/inful/contentloader/internal/unit"
)

// CurrentVersion is the only configuration version understood.
const CurrentVersion = "1"

// Config is the complete configuration of a content loader instance.
type Config struct {
	Version    string           `yaml:"version"`
	Instance   InstanceConfig   `yaml:"instance"`
	Repository RepositoryConfig `yaml:"repository"`
	Units      UnitsConfig      `yaml:"units"`
	Readers    ReadersConfig    `yaml:"readers"`
	Retry      RetryConfig      `yaml:"retry"`
	Notify     NotifyConfig     `yaml:"notify"`
	Audit      AuditConfig      `yaml:"audit"`
	HTTP       HTTPConfig       `yaml:"http"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// InstanceConfig identifies this cluster member.
type InstanceConfig struct {
	// ID is written into records and locks. Empty means a generated id
	// persisted below DataDir.
	ID      string `yaml:"id"`
	DataDir string `yaml:"data_dir"`
}

// RepositoryConfig locates the shared repository.
type RepositoryConfig struct {
	Path     string `yaml:"path"`
	RootPath string `yaml:"root_path"`
	// LockLease caps how long any lock lives. Zero disables the cap.
	LockLease Duration `yaml:"lock_lease"`
}

// UnitsConfig controls unit discovery.
type UnitsConfig struct {
	Dir      string   `yaml:"dir"`
	Watch    bool     `yaml:"watch"`
	Debounce Duration `yaml:"debounce"`
	Include  []string `yaml:"include,omitempty"`
	Exclude  []string `yaml:"exclude,omitempty"`
}

// ReadersConfig controls the built-in content readers.
type ReadersConfig struct {
	Disabled []string `yaml:"disabled,omitempty"`
}

// RetryConfig controls the periodic retry of deferred units.
type RetryConfig struct {
	// SweepInterval is the time between retries of deferred units, in
	// addition to the retry triggered when a reader registers.
	SweepInterval Duration `yaml:"sweep_interval"`
	// Schedule is a cron expression that replaces SweepInterval when set.
	Schedule string `yaml:"schedule,omitempty"`
}

// NotifyConfig controls publishing content events to NATS.
type NotifyConfig struct {
	Enabled  bool     `yaml:"enabled"`
	NATSURL  string   `yaml:"nats_url"`
	Subject  string   `yaml:"subject"`
	KVBucket string   `yaml:"kv_bucket"`
	Timeout  Duration `yaml:"timeout"`
	// MaxRetries is the number of extra publish attempts after a transient
	// failure. Zero disables retries.
	MaxRetries int      `yaml:"max_retries"`
	Backoff    string   `yaml:"backoff,omitempty"`
	RetryDelay Duration `yaml:"retry_delay,omitempty"`
	MaxDelay   Duration `yaml:"max_delay,omitempty"`
	// QueueSize bounds the events waiting for the broker; further events
	// are dropped.
	QueueSize int `yaml:"queue_size,omitempty"`
}

// RetryPolicy returns the publish retry policy.
func (n NotifyConfig) RetryPolicy() retry.Policy {
	return retry.NewPolicy(n.Backoff, n.RetryDelay.Std(), n.MaxDelay.Std(), n.MaxRetries)
}

// AuditConfig controls the content event audit log.
type AuditConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	HistorySize int    `yaml:"history_size"`
}

// HTTPConfig controls the status and metrics endpoint.
type HTTPConfig struct {
	// Addr of "" disables the HTTP server.
	Addr string `yaml:"addr"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{Version: CurrentVersion}
	applyDefaults(cfg)
	return cfg
}

// Load reads a configuration file. Env files next to the working directory
// are loaded first and ${VAR} references in the file are expanded.
func Load(configPath string) (*Config, error) {
	if _, err := loadEnvFiles(""); err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to load env file").Build()
	}

	data, err := os.ReadFile(filepath.Clean(configPath))
	if os.IsNotExist(err) {
		return nil, errors.ConfigError("configuration file not found").
			WithContext("path", configPath).Build()
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to read config file").
			WithContext("path", configPath).Build()
	}
	return Parse(data)
}

// Parse decodes, defaults and validates a configuration document.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to parse configuration").Build()
	}
	if cfg.Version != CurrentVersion {
		return nil, errors.ConfigError(fmt.Sprintf("unsupported configuration version %q (expected %s)", cfg.Version, CurrentVersion)).Build()
	}
	if err := cfg.Logging.normalize(); err != nil {
		return nil, errors.WrapError(err, errors.CategoryValidation, "invalid logging configuration").Build()
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Instance.DataDir == "" {
		cfg.Instance.DataDir = "./data"
	}
	if cfg.Repository.Path == "" {
		cfg.Repository.Path = filepath.Join(cfg.Instance.DataDir, "repository.db")
	}
	if cfg.Repository.RootPath == "" {
		cfg.Repository.RootPath = loader.DefaultRootPath
	}
	if cfg.Units.Dir == "" {
		cfg.Units.Dir = "./units"
	}
	if cfg.Units.Debounce == 0 {
		cfg.Units.Debounce = Duration(unit.DefaultDebounce)
	}
	if cfg.Retry.SweepInterval == 0 {
		cfg.Retry.SweepInterval = Duration(time.Minute)
	}
	if cfg.Notify.NATSURL == "" {
		cfg.Notify.NATSURL = "nats://127.0.0.1:4222"
	}
	if cfg.Notify.Subject == "" {
		cfg.Notify.Subject = "contentloader.content"
	}
	if cfg.Notify.KVBucket == "" {
		cfg.Notify.KVBucket = "contentloader-units"
	}
	if cfg.Notify.Timeout == 0 {
		cfg.Notify.Timeout = Duration(5 * time.Second)
	}
	if cfg.Notify.QueueSize == 0 {
		cfg.Notify.QueueSize = 256
	}
	if cfg.Audit.Path == "" {
		cfg.Audit.Path = filepath.Join(cfg.Instance.DataDir, "audit.db")
	}
	if cfg.Audit.HistorySize <= 0 {
		cfg.Audit.HistorySize = 500
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = LogLevelInfo
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = LogFormatText
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	root := c.Repository.RootPath
	if !strings.HasPrefix(root, "/") || root == "/" || path.Clean(root) != root {
		return errors.ValidationError("repository.root_path must be an absolute, clean path below /").
			WithContext("root_path", root).Build()
	}
	if c.Repository.LockLease < 0 {
		return errors.ValidationError("repository.lock_lease must not be negative").Build()
	}
	if c.Notify.QueueSize < 0 {
		return errors.ValidationError("notify.queue_size must not be negative").Build()
	}
	if c.Notify.MaxRetries < 0 {
		return errors.ValidationError("notify.max_retries must not be negative").Build()
	}
	if c.Notify.Backoff != "" && !retry.IsValidBackoffMode(c.Notify.Backoff) {
		return errors.ValidationError("notify.backoff must be fixed, linear or exponential").
			WithContext("backoff", c.Notify.Backoff).Build()
	}
	if c.Units.Debounce < 0 || c.Retry.SweepInterval < 0 || c.Notify.Timeout < 0 ||
		c.Notify.RetryDelay < 0 || c.Notify.MaxDelay < 0 {
		return errors.ValidationError("durations must not be negative").Build()
	}
	if _, err := unit.NewFilter(c.Units.Include, c.Units.Exclude); err != nil {
		return errors.WrapError(err, errors.CategoryValidation, "invalid unit filter pattern").Build()
	}
	for _, ext := range c.Readers.Disabled {
		if contentreader.Normalize(ext) == "" {
			return errors.ValidationError("readers.disabled contains an empty extension").Build()
		}
	}
	if c.Notify.Enabled && strings.TrimSpace(c.Notify.Subject) == "" {
		return errors.ValidationError("notify.subject is required when notify is enabled").Build()
	}
	if strings.ContainsAny(c.Instance.ID, " \t\n") {
		return errors.ValidationError("instance.id must not contain whitespace").Build()
	}
	return nil
}

// Init writes an example configuration file.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return errors.ConfigError("configuration file already exists (use --force to overwrite)").
			WithContext("path", configPath).Build()
	}

	example := Default()
	example.Units.Watch = true
	example.Audit.Enabled = true
	example.HTTP.Addr = "127.0.0.1:8090"

	var doc yaml.Node
	if err := doc.Encode(example); err != nil {
		return errors.WrapError(err, errors.CategoryInternal, "failed to marshal example configuration").Build()
	}
	for _, c := range exampleComments {
		if key := mappingKey(&doc, c.path...); key != nil {
			key.HeadComment = c.text
		}
	}
	data, err := yaml.Marshal(&doc)
	if err != nil {
		return errors.WrapError(err, errors.CategoryInternal, "failed to marshal example configuration").Build()
	}
	if dir := filepath.Dir(configPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return errors.WrapError(err, errors.CategoryConfig, "failed to create config directory").Build()
		}
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return errors.WrapError(err, errors.CategoryConfig, "failed to write config file").
			WithContext("path", configPath).Build()
	}
	return nil
}

var exampleComments = []struct {
	path []string
	text string
}{
	{[]string{"repository", "lock_lease"}, "# 0 keeps a record lock until its holder releases it or an operator runs\n" +
		"# `contentloader unlock`. When several instances share the repository a\n" +
		"# finite lease such as 10m is recommended, so that a crashed instance\n" +
		"# cannot keep a unit locked."},
	{[]string{"notify", "queue_size"}, "# Events waiting for the broker; further events are dropped."},
}

// mappingKey returns the key node at path in a mapping tree, or nil.
func mappingKey(n *yaml.Node, path ...string) *yaml.Node {
	var key *yaml.Node
	for _, name := range path {
		if n == nil || n.Kind != yaml.MappingNode {
			return nil
		}
		var next *yaml.Node
		for i := 0; i+1 < len(n.Content); i += 2 {
			if n.Content[i].Value == name {
				key, next = n.Content[i], n.Content[i+1]
				break
			}
		}
		if next == nil {
			return nil
		}
		n = next
	}
	return key
}
