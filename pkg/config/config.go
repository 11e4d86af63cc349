// Package config loads veriwire's settings from a config file, VERIWIRE_*
// environment variables and command-line flags.
package config

import (
	"strings"
	"time"

	"github.com/go-go-golems/veriwire/pkg/agent"
	"github.com/go-go-golems/veriwire/pkg/audit"
	"github.com/go-go-golems/veriwire/pkg/redisstream"
	"github.com/go-go-golems/veriwire/pkg/relay"
	"github.com/go-go-golems/veriwire/pkg/risk"
	"github.com/go-go-golems/veriwire/pkg/session"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const EnvPrefix = "VERIWIRE"

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type Config struct {
	Addr    string               `mapstructure:"addr"`
	Agent   AgentConfig          `mapstructure:"agent"`
	Bank    BankConfig           `mapstructure:"bank"`
	Session SessionConfig        `mapstructure:"session"`
	Risk    RiskConfig           `mapstructure:"risk"`
	Relay   relay.Options        `mapstructure:"relay"`
	Audit   AuditConfig          `mapstructure:"audit"`
	Redis   redisstream.Settings `mapstructure:"redis"`
}

type AgentConfig struct {
	URL string `mapstructure:"url"`
	// Settings is a YAML or JSON settings document; empty uses the built-in one.
	Settings string `mapstructure:"settings"`
}

type BankConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	SummaryRetries uint64        `mapstructure:"summary_retries"`
	RetryInitial   time.Duration `mapstructure:"retry_initial"`
}

type SessionConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	Backend       string        `mapstructure:"backend"`
}

type RiskConfig struct {
	Threshold float64 `mapstructure:"threshold"`
}

type AuditConfig struct {
	// DB is the sqlite file events are recorded to; empty disables recording.
	DB    string `mapstructure:"db"`
	Topic string `mapstructure:"topic"`
}

// SetDefaults registers every key so that environment variables can
// override keys that appear in no config file.
func SetDefaults(v *viper.Viper) {
	ro := relay.DefaultOptions()
	rs := redisstream.DefaultSettings()

	v.SetDefault("addr", ":8080")
	v.SetDefault("agent.url", agent.DefaultURL)
	v.SetDefault("agent.settings", "")
	v.SetDefault("bank.base_url", "http://localhost:8000")
	v.SetDefault("bank.timeout", 5*time.Second)
	v.SetDefault("bank.summary_retries", 2)
	v.SetDefault("bank.retry_initial", 200*time.Millisecond)
	v.SetDefault("session.ttl", session.DefaultTTL)
	v.SetDefault("session.sweep_interval", time.Minute)
	v.SetDefault("session.backend", BackendMemory)
	v.SetDefault("risk.threshold", risk.DefaultThreshold)
	v.SetDefault("relay.audio_queue_size", ro.AudioQueueSize)
	v.SetDefault("relay.text_queue_size", ro.TextQueueSize)
	v.SetDefault("relay.chunk_size", ro.ChunkSize)
	v.SetDefault("relay.stream_id_wait", ro.StreamIDWait)
	v.SetDefault("relay.write_timeout", ro.WriteTimeout)
	v.SetDefault("relay.flush_partial_on_stop", ro.FlushPartialOnStop)
	v.SetDefault("relay.forward_dtmf", ro.ForwardDTMF)
	v.SetDefault("audit.db", "veriwire.db")
	v.SetDefault("audit.topic", audit.DefaultTopic)
	v.SetDefault("redis.enabled", rs.Enabled)
	v.SetDefault("redis.addr", rs.Addr)
	v.SetDefault("redis.group", rs.Group)
	v.SetDefault("redis.consumer", rs.Consumer)
}

// New returns a viper instance with defaults and environment binding. If
// file is set it is read as the config file.
func New(file string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "config: read %s", file)
		}
	}
	return v, nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, errors.Wrap(err, "config: decode")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	var problems []string
	positive := func(name string, d time.Duration) {
		if d <= 0 {
			problems = append(problems, name+" must be positive")
		}
	}
	if c.Addr == "" {
		problems = append(problems, "addr is required")
	}
	if c.Bank.BaseURL == "" {
		problems = append(problems, "bank.base_url is required")
	}
	positive("bank.timeout", c.Bank.Timeout)
	positive("bank.retry_initial", c.Bank.RetryInitial)
	positive("session.ttl", c.Session.TTL)
	positive("session.sweep_interval", c.Session.SweepInterval)
	positive("relay.stream_id_wait", c.Relay.StreamIDWait)
	positive("relay.write_timeout", c.Relay.WriteTimeout)
	if c.Relay.AudioQueueSize <= 0 {
		problems = append(problems, "relay.audio_queue_size must be positive")
	}
	if c.Relay.TextQueueSize <= 0 {
		problems = append(problems, "relay.text_queue_size must be positive")
	}
	if c.Relay.ChunkSize <= 0 {
		problems = append(problems, "relay.chunk_size must be positive")
	}
	if c.Risk.Threshold <= 0 || c.Risk.Threshold > 1 {
		problems = append(problems, "risk.threshold must be in (0, 1]")
	}
	switch c.Session.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.Addr == "" {
			problems = append(problems, "redis.addr is required for the redis session backend")
		}
	default:
		problems = append(problems, "session.backend must be memory or redis")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		problems = append(problems, "redis.addr is required when redis is enabled")
	}
	if len(problems) > 0 {
		return errors.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
