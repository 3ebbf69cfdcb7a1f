// Package config loads service settings from defaults, an optional
// conea.yaml and CONEA_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	BridgeNone      = "none"
	BridgeLocal     = "local"
	BridgeWebSocket = "websocket"
	BridgeRedis     = "redis"
)

type Config struct {
	Port           string   `mapstructure:"port" validate:"required"`
	DBPath         string   `mapstructure:"db_path" validate:"required"`
	BaseURL        string   `mapstructure:"base_url" validate:"omitempty,url"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	Log      LogConfig      `mapstructure:"log"`
	Bridge   BridgeConfig   `mapstructure:"bridge"`
	Redis    RedisConfig    `mapstructure:"redis"`
	VAPID    VAPIDConfig    `mapstructure:"vapid"`
	Postmark PostmarkConfig `mapstructure:"postmark"`

	FromEmail string `mapstructure:"from_email" validate:"omitempty,email"`
	DigestTo  string `mapstructure:"digest_to" validate:"omitempty,email"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

type BridgeConfig struct {
	Kind    string `mapstructure:"kind" validate:"oneof=none local websocket redis"`
	URL     string `mapstructure:"url" validate:"required_if=Kind websocket"`
	Channel string `mapstructure:"channel" validate:"required"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type VAPIDConfig struct {
	PublicKey  string `mapstructure:"public_key"`
	PrivateKey string `mapstructure:"private_key"`
	Subscriber string `mapstructure:"subscriber"`
}

type PostmarkConfig struct {
	Token string `mapstructure:"token"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("db_path", "conea.db")
	v.SetDefault("base_url", "http://localhost:8080")
	v.SetDefault("allowed_origins", []string{})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("bridge.kind", BridgeNone)
	v.SetDefault("bridge.url", "")
	v.SetDefault("bridge.channel", "notifications")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("vapid.public_key", "")
	v.SetDefault("vapid.private_key", "")
	v.SetDefault("vapid.subscriber", "mailto:noreply@conea.app")
	v.SetDefault("postmark.token", "")
	v.SetDefault("from_email", "")
	v.SetDefault("digest_to", "")
}

// Load reads the configuration. With no paths it looks for conea.yaml in
// . and ./config; a missing file is not an error.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("conea")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "./config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix("CONEA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Bridge.Kind = strings.ToLower(cfg.Bridge.Kind)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// PushEnabled reports whether VAPID keys are configured.
func (c *Config) PushEnabled() bool {
	return c.VAPID.PublicKey != "" && c.VAPID.PrivateKey != ""
}

// EmailEnabled reports whether Postmark delivery is configured.
func (c *Config) EmailEnabled() bool {
	return c.Postmark.Token != "" && c.DigestTo != ""
}
