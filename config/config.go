// Package config loads and validates the agent configuration. Settings come
// from a YAML file, environment variables with the BELLHOP_ prefix, and
// built-in defaults, in that order of increasing precedence for env over
// file. Validation is fail-fast: the process refuses to start on a bad
// configuration rather than limping with partial behavior.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	configName = "bellhop"
	configType = "yaml"
	envPrefix  = "BELLHOP"
)

// Config is the full agent configuration tree.
type Config struct {
	Gateway    Gateway    `mapstructure:"gateway"`
	Agent      Agent      `mapstructure:"agent"`
	Connection Connection `mapstructure:"connection"`
	TTS        TTS        `mapstructure:"tts"`
	Cache      Cache      `mapstructure:"cache"`
	Announce   Announce   `mapstructure:"announce"`
	Metrics    Metrics    `mapstructure:"metrics"`
	LogLevel   string     `mapstructure:"log_level"`
}

// Gateway configures the websocket platform connection.
type Gateway struct {
	URL            string        `mapstructure:"url"`
	Token          string        `mapstructure:"token"`
	Heartbeat      time.Duration `mapstructure:"heartbeat"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// Agent configures identity and presence evaluation.
type Agent struct {
	// SelfID is the agent's own member identifier on the platform.
	SelfID string `mapstructure:"self_id"`

	// IgnoredChannels are channel IDs never considered for presence.
	IgnoredChannels []string `mapstructure:"ignored_channels"`

	// WeightedScorer enables activity-weighted channel scoring instead of
	// the plain human headcount.
	WeightedScorer bool `mapstructure:"weighted_scorer"`
}

// Connection configures session establishment and maintenance.
type Connection struct {
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BackoffBase    time.Duration `mapstructure:"backoff_base"`
	SwitchCooldown time.Duration `mapstructure:"switch_cooldown"`
	StartupGrace   time.Duration `mapstructure:"startup_grace"`
	HealthInterval time.Duration `mapstructure:"health_interval"`
}

// Provider configures one speech synthesis backend. Kind selects the
// implementation: "http" for a remote synthesis API, "piper" for the local
// subprocess engine.
type Provider struct {
	Name     string `mapstructure:"name"`
	Kind     string `mapstructure:"kind"`
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
	Binary   string `mapstructure:"binary"`
	Model    string `mapstructure:"model"`
}

// TTS configures synthesis providers and voice parameters. Provider order is
// the fallback order.
type TTS struct {
	Providers []Provider `mapstructure:"providers"`
	Voice     string     `mapstructure:"voice"`
	Language  string     `mapstructure:"language"`
	Speed     float64    `mapstructure:"speed"`
	Model     string     `mapstructure:"model"`

	// ParamsFile, when set, loads the voice parameters from a YAML file and
	// overrides the inline fields above.
	ParamsFile string `mapstructure:"params_file"`

	FFmpegPath string `mapstructure:"ffmpeg_path"`
	BitRate    string `mapstructure:"bit_rate"`
}

// Redis configures the optional shared cache index.
type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// Cache configures the on-disk speech artifact store.
type Cache struct {
	Dir        string `mapstructure:"dir"`
	MaxEntries int    `mapstructure:"max_entries"`
	Redis      Redis  `mapstructure:"redis"`
}

// Announce configures the spoken notification pipeline.
type Announce struct {
	Workers     int           `mapstructure:"workers"`
	QueueSize   int           `mapstructure:"queue_size"`
	MinInterval time.Duration `mapstructure:"min_interval"`
	Burst       int           `mapstructure:"burst"`

	JoinTemplate  string `mapstructure:"join_template"`
	LeaveTemplate string `mapstructure:"leave_template"`
	MoveTemplate  string `mapstructure:"move_template"`
}

// Metrics configures the Prometheus exporter.
type Metrics struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Load reads the configuration. path names an explicit config file; when
// empty the default search paths are used and a missing file is not an
// error, the defaults plus environment apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType(configType)
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/bellhop")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("gateway.heartbeat", 30*time.Second)
	v.SetDefault("gateway.request_timeout", 15*time.Second)

	v.SetDefault("connection.connect_timeout", 30*time.Second)
	v.SetDefault("connection.max_attempts", 3)
	v.SetDefault("connection.backoff_base", time.Second)
	v.SetDefault("connection.switch_cooldown", 30*time.Second)
	v.SetDefault("connection.startup_grace", 10*time.Second)
	v.SetDefault("connection.health_interval", 5*time.Minute)

	v.SetDefault("tts.language", "pt-br")
	v.SetDefault("tts.speed", 1.0)
	v.SetDefault("tts.bit_rate", "192k")

	v.SetDefault("cache.dir", "speechcache")
	v.SetDefault("cache.max_entries", 100)

	v.SetDefault("announce.workers", 2)
	v.SetDefault("announce.queue_size", 64)
	v.SetDefault("announce.min_interval", 2*time.Second)
	v.SetDefault("announce.burst", 3)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", ":9090")
}

// Validate checks the configuration for values the agent cannot start with.
// All problems are reported at once.
func (c *Config) Validate() error {
	var problems []error

	if c.Gateway.URL == "" {
		problems = append(problems, errors.New("gateway.url is required"))
	}
	if c.Gateway.Token == "" {
		problems = append(problems, errors.New("gateway.token is required"))
	}
	if c.Agent.SelfID == "" {
		problems = append(problems, errors.New("agent.self_id is required"))
	}
	if len(c.TTS.Providers) == 0 {
		problems = append(problems, errors.New("tts.providers must name at least one provider"))
	}
	for i, p := range c.TTS.Providers {
		switch p.Kind {
		case "http":
			if p.Endpoint == "" {
				problems = append(problems, fmt.Errorf("tts.providers[%d]: http provider %q needs an endpoint", i, p.Name))
			}
		case "piper":
			if p.Model == "" {
				problems = append(problems, fmt.Errorf("tts.providers[%d]: piper provider %q needs a model", i, p.Name))
			}
		default:
			problems = append(problems, fmt.Errorf("tts.providers[%d]: unknown kind %q", i, p.Kind))
		}
	}
	if c.TTS.Speed <= 0 {
		problems = append(problems, errors.New("tts.speed must be positive"))
	}
	if c.Cache.MaxEntries < 1 {
		problems = append(problems, errors.New("cache.max_entries must be at least 1"))
	}
	if c.Connection.MaxAttempts < 1 {
		problems = append(problems, errors.New("connection.max_attempts must be at least 1"))
	}
	if c.Announce.Workers < 1 {
		problems = append(problems, errors.New("announce.workers must be at least 1"))
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		problems = append(problems, errors.New("metrics.addr is required when metrics are enabled"))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(problems...))
	}
	return nil
}
