// Package config loads process configuration from the environment and an
// optional YAML file. Tunable game parameters are not here: they live in
// the game config store and change at runtime.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const envPrefix = "RHYTHMCHECK"

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Gamification GamificationConfig `mapstructure:"gamification"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins" validate:"min=1"`
}

// DatabaseConfig selects Postgres. An empty URL runs every store in memory.
type DatabaseConfig struct {
	URL            string `mapstructure:"url" validate:"omitempty,url"`
	MigrateOnStart bool   `mapstructure:"migrate_on_start"`
}

// RedisConfig enables the cross-instance learner lock when Addr is set.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr" validate:"omitempty,hostname_port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db" validate:"gte=0,lte=15"`
	LockTTL  time.Duration `mapstructure:"lock_ttl" validate:"gt=0"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenTTL  time.Duration `mapstructure:"token_ttl" validate:"gt=0"`
}

type GamificationConfig struct {
	CatalogFile        string        `mapstructure:"catalog_file" validate:"omitempty,file"`
	LeaderboardTTL     time.Duration `mapstructure:"leaderboard_ttl" validate:"gte=0"`
	RecheckConcurrency int           `mapstructure:"recheck_concurrency" validate:"gte=1,lte=64"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("database.url", "")
	v.SetDefault("database.migrate_on_start", true)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", 5*time.Second)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 72*time.Hour)

	v.SetDefault("gamification.catalog_file", "")
	v.SetDefault("gamification.leaderboard_ttl", 30*time.Second)
	v.SetDefault("gamification.recheck_concurrency", 4)
}

// Load reads configuration. Environment variables (RHYTHMCHECK_SERVER_PORT,
// RHYTHMCHECK_AUTH_JWT_SECRET, ...) override the file at path, which may be
// empty. The plain PORT, DATABASE_URL and JWT_SECRET variables are honoured
// as fallbacks.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, fallback := range map[string]string{
		"server.port":     "PORT",
		"database.url":    "DATABASE_URL",
		"auth.jwt_secret": "JWT_SECRET",
	} {
		envKey := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, fallback); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field constraint and reports the offending keys.
func Validate(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(fields, ", "))
}

// UsesPostgres reports whether stores should be backed by the database.
func (c *Config) UsesPostgres() bool {
	return c.Database.URL != ""
}

// UsesRedis reports whether learner locks should be shared through Redis.
func (c *Config) UsesRedis() bool {
	return c.Redis.Addr != ""
}
