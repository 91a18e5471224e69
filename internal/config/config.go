package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/aretw0/tripchat/pkg/registry"
	"github.com/aretw0/tripchat/pkg/session"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file read when none is given.
const DefaultPath = "tripchat.yaml"

// Store backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// Config is the process configuration.
type Config struct {
	LogLevel string         `mapstructure:"log_level"`
	Store    StoreConfig    `mapstructure:"store"`
	Session  session.Config `mapstructure:"session"`
	Server   ServerConfig   `mapstructure:"server"`

	// AutoSaveInterval is the period of background flushes. Zero disables them.
	AutoSaveInterval time.Duration `mapstructure:"auto_save_interval"`

	// Namespaces overrides the default policy of individual namespaces.
	Namespaces map[registry.NamespaceID]NamespaceOverride `mapstructure:"namespaces"`
}

// StoreConfig selects and decorates the persistent backend.
type StoreConfig struct {
	Backend string      `mapstructure:"backend"`
	Dir     string      `mapstructure:"dir"`
	Redis   RedisConfig `mapstructure:"redis"`

	// L1Entries enables an in-process read tier in front of the backend.
	L1Entries int64         `mapstructure:"l1_entries"`
	L1TTL     time.Duration `mapstructure:"l1_ttl"`

	// QuotaBytes caps the stored bytes. Zero is unlimited.
	QuotaBytes int64 `mapstructure:"quota_bytes"`
	// EncryptionKey is a hex-encoded AES-256 key. Empty disables encryption.
	EncryptionKey string `mapstructure:"encryption_key"`
	// Redact lists regular expressions masked before values are stored.
	Redact []string `mapstructure:"redact"`
}

// RedisConfig addresses the redis backend.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
	// Lock enables cross-process session locking.
	Lock bool `mapstructure:"lock"`
}

// ServerConfig configures the network front ends.
type ServerConfig struct {
	Port    int  `mapstructure:"port"`
	Metrics bool `mapstructure:"metrics"`
}

// NamespaceOverride replaces selected fields of a namespace policy.
type NamespaceOverride struct {
	TTL         *time.Duration `mapstructure:"ttl"`
	StaleWindow *time.Duration `mapstructure:"stale_window"`
	MaxEntries  *int           `mapstructure:"max_entries"`
	Persistence *bool          `mapstructure:"persistence"`
	Compress    *bool          `mapstructure:"compress"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		LogLevel: "info",
		Store: StoreConfig{
			Backend: BackendFile,
			Dir:     ".tripchat/store",
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "tripchat:",
			},
			L1TTL: time.Minute,
		},
		Session:          session.DefaultConfig(),
		Server:           ServerConfig{Port: 8080, Metrics: true},
		AutoSaveInterval: 30 * time.Second,
	}
}

// Load reads path over the defaults. A missing file yields the defaults
// unless required is set.
func Load(path string, required bool) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && !required {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := Merge(&cfg, data); err != nil {
		return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Merge decodes YAML data over cfg. Keys absent from data keep their value.
func Merge(cfg *Config, data []byte) error {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           cfg,
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}

// Validate reports settings that cannot be wired.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendFile, BackendRedis:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Store.EncryptionKey != "" {
		if _, err := c.EncryptionKey(); err != nil {
			return err
		}
	}
	for ns := range c.Namespaces {
		if !ns.Valid() {
			return fmt.Errorf("unknown namespace %q", ns)
		}
	}
	return nil
}

// EncryptionKey decodes the configured key.
func (c Config) EncryptionKey() ([]byte, error) {
	key, err := hex.DecodeString(c.Store.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("encryption key is not hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}

// Policies returns the default namespace policies with overrides applied.
func (c Config) Policies() []registry.Policy {
	policies := registry.DefaultPolicies()
	for i, p := range policies {
		o, ok := c.Namespaces[p.Namespace]
		if !ok {
			continue
		}
		if o.TTL != nil {
			p.TTL = *o.TTL
		}
		if o.StaleWindow != nil {
			p.StaleWindow = *o.StaleWindow
		}
		if o.MaxEntries != nil {
			p.MaxEntries = *o.MaxEntries
		}
		if o.Persistence != nil {
			p.Persistence = *o.Persistence
		}
		if o.Compress != nil {
			p.Compress = *o.Compress
		}
		policies[i] = p
	}
	return policies
}
