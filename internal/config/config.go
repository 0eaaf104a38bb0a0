// Package config loads process configuration from an optional YAML file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"dronedispatch/internal/opt"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Engine   opt.Config     `mapstructure:"engine"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Sink     SinkConfig     `mapstructure:"sink"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	// RateRPS <= 0 disables per-client rate limiting.
	RateRPS   float64 `mapstructure:"rate_rps"`
	RateBurst int     `mapstructure:"rate_burst"`
	// TrustedProxies lists the addresses or CIDRs allowed to set
	// X-Forwarded-For. Requests from anyone else are keyed by their own address.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// TrustedPrefixes parses TrustedProxies; bare addresses become single-host prefixes.
func (s ServerConfig) TrustedPrefixes() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(s.TrustedProxies))
	for _, raw := range s.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("server.trusted_proxies: %w", err)
			}
			out = append(out, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("server.trusted_proxies: %w", err)
		}
		a = a.Unmap()
		out = append(out, netip.PrefixFrom(a, a.BitLen()))
	}
	return out, nil
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// DatabaseConfig selects the Postgres store when URL is set; otherwise the
// in-memory store is used.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// RedisConfig selects the Redis event broker when URL is set.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type SinkConfig struct {
	Kind  string      `mapstructure:"kind"`
	Path  string      `mapstructure:"path"`
	Topic string      `mapstructure:"topic"`
	Kafka KafkaConfig `mapstructure:"kafka"`
	S3    S3Config    `mapstructure:"s3"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
}

type S3Config struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
	Region string `mapstructure:"region"`
}

// SetDefaults registers every key with viper so AutomaticEnv can override
// nested values (engine.depot.x <- ENGINE_DEPOT_X).
func SetDefaults(v *viper.Viper) {
	e := opt.DefaultConfig()
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_header_timeout", 5*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.rate_rps", 20)
	v.SetDefault("server.rate_burst", 40)
	v.SetDefault("server.trusted_proxies", []string{})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("engine.depot.x", e.Depot.X)
	v.SetDefault("engine.depot.y", e.Depot.Y)
	v.SetDefault("engine.bounds.min_x", e.Bounds.MinX)
	v.SetDefault("engine.bounds.min_y", e.Bounds.MinY)
	v.SetDefault("engine.bounds.max_x", e.Bounds.MaxX)
	v.SetDefault("engine.bounds.max_y", e.Bounds.MaxY)
	v.SetDefault("engine.battery_rate", e.BatteryRate)
	v.SetDefault("engine.speed", e.Speed)
	v.SetDefault("engine.kmeans_iterations", e.KMeansIterations)
	v.SetDefault("engine.seed", e.Seed)
	v.SetDefault("engine.default_strategy", string(e.DefaultStrategy))
	v.SetDefault("engine.scoring.wait_normalize_minutes", e.Scoring.WaitNormalizeMinutes)
	v.SetDefault("engine.scoring.wait_bonus_cap", e.Scoring.WaitBonusCap)
	v.SetDefault("engine.scoring.distance_offset", e.Scoring.DistanceOffset)
	v.SetDefault("engine.scoring.priority_factor", e.Scoring.PriorityFactor)
	v.SetDefault("engine.scoring.wait_factor", e.Scoring.WaitFactor)
	v.SetDefault("engine.scoring.wait_cap", e.Scoring.WaitCap)
	v.SetDefault("engine.scoring.distance_penalty", e.Scoring.DistancePenalty)
	v.SetDefault("database.url", "")
	v.SetDefault("redis.url", "")
	v.SetDefault("sink.kind", "console")
	v.SetDefault("sink.path", "dispatch-results")
	v.SetDefault("sink.topic", "dispatch.plans")
	v.SetDefault("sink.kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("sink.s3.bucket", "")
	v.SetDefault("sink.s3.prefix", "plans/")
	v.SetDefault("sink.s3.region", "us-east-1")
}

// Load reads cfgFile when given, else config.yaml from the working directory or
// ./config if present. Environment variables win over the file.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Conventional names used by deploy manifests.
	_ = v.BindEnv("server.port", "SERVER_PORT", "PORT")
	_ = v.BindEnv("database.url", "DATABASE_URL")
	_ = v.BindEnv("redis.url", "REDIS_URL")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("config")
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if !errors.As(err, &nf) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var cfg Config
	decoderConfigOption := viper.DecoderConfigOption(func(dc *mapstructure.DecoderConfig) {
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			dc.DecodeHook,
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	})
	if err := v.Unmarshal(&cfg, decoderConfigOption); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if _, err := c.Server.TrustedPrefixes(); err != nil {
		return err
	}
	b := c.Engine.Bounds
	if b.MinX >= b.MaxX || b.MinY >= b.MaxY {
		return fmt.Errorf("engine.bounds: empty service area %+v", b)
	}
	if !b.Contains(c.Engine.Depot) {
		return fmt.Errorf("engine.depot %+v outside bounds", c.Engine.Depot)
	}
	if c.Engine.DefaultStrategy != "" && !c.Engine.DefaultStrategy.Valid() {
		return fmt.Errorf("engine.default_strategy: %w: %q", opt.ErrUnknownStrategy, c.Engine.DefaultStrategy)
	}
	switch c.Sink.Kind {
	case "console", "file", "kafka", "s3":
	default:
		return fmt.Errorf("sink.kind %q: want console, file, kafka or s3", c.Sink.Kind)
	}
	return nil
}

func (c *Config) Addr() string { return fmt.Sprintf(":%d", c.Server.Port) }
