package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. QUIZROOM_POSTGRES_URL.
const EnvPrefix = "quizroom"

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Quiz     QuizConfig     `yaml:"quiz"`
	WS       WSConfig       `yaml:"ws"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

type RedisConfig struct {
	Addr            string `yaml:"addr"`
	Password        string `yaml:"password"`
	DB              int    `yaml:"db" validate:"gte=0"`
	TTL             string `yaml:"ttl" validate:"omitempty,duration"`
	FinalizeLockTTL string `yaml:"finalize_lock_ttl" split_words:"true" validate:"omitempty,duration"`
}

type PostgresConfig struct {
	URL string `yaml:"url"`
}

// QuizConfig paces the question driver. Counts are in time units.
type QuizConfig struct {
	TTL              string `yaml:"ttl" validate:"omitempty,duration"`
	TimeUnit         string `yaml:"time_unit" split_words:"true" validate:"omitempty,duration"`
	PreRoll          int    `yaml:"pre_roll" split_words:"true" validate:"gte=0"`
	RevealDelay      int    `yaml:"reveal_delay" split_words:"true" validate:"gte=0"`
	DefaultTimeLimit int    `yaml:"default_time_limit" split_words:"true" validate:"gte=0"`
}

type WSConfig struct {
	WriteTimeout   string `yaml:"write_timeout" split_words:"true" validate:"omitempty,duration"`
	PongWait       string `yaml:"pong_wait" split_words:"true" validate:"omitempty,duration"`
	PingInterval   string `yaml:"ping_interval" split_words:"true" validate:"omitempty,duration"`
	MaxMessageSize int64  `yaml:"max_message_size" split_words:"true" validate:"gt=0"`
	SendBuffer     int    `yaml:"send_buffer" split_words:"true" validate:"gt=0"`
}

var validate = newValidator()

// newValidator adds the "duration" tag: a string time.ParseDuration accepts
// with a positive result.
func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		d, err := time.ParseDuration(fl.Field().String())
		return err == nil && d > 0
	})
	return v
}

// Default returns the configuration used when neither file nor environment
// set a value.
func Default() Config {
	return Config{
		Server: ServerConfig{Port: "8080"},
		Log:    LogConfig{Level: "info", Format: "text"},
		Redis:  RedisConfig{TTL: "2h", FinalizeLockTTL: "1m"},
		Quiz: QuizConfig{
			TTL:              "10m",
			TimeUnit:         "1s",
			PreRoll:          2,
			RevealDelay:      3,
			DefaultTimeLimit: 30,
		},
		WS: WSConfig{
			WriteTimeout:   "10s",
			PongWait:       "60s",
			PingInterval:   "54s",
			MaxMessageSize: 4096,
			SendBuffer:     64,
		},
	}
}

// Load reads .env (if present), then the YAML file at path (if present), then
// QUIZROOM_* environment variables, each layer overriding the previous one.
func Load(path string) (Config, error) {
	cfg := Default()
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("read environment: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Duration parses a duration string or returns the fallback if it is empty,
// malformed or not positive.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	return fallback
}
