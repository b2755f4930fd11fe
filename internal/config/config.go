package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port            string   `yaml:"port" validate:"omitempty,numeric"`
		AllowOrigins    []string `yaml:"allowOrigins"`
		ShutdownTimeout string   `yaml:"shutdownTimeout" validate:"duration"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr" validate:"omitempty,hostname_port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db" validate:"gte=0"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url" validate:"omitempty,url"`
	} `yaml:"postgres"`
	Questions struct {
		// Cache selects where question lists are cached: memory, redis or none.
		Cache string `yaml:"cache" validate:"omitempty,oneof=memory redis none"`
		TTL   string `yaml:"ttl" validate:"duration"`
	} `yaml:"questions"`
	Session SessionConfig `yaml:"session"`
	Admin   struct {
		Username     string `yaml:"username"`
		PasswordHash string `yaml:"passwordHash" validate:"required_with=Username"`
	} `yaml:"admin"`
	Log LogConfig `yaml:"log"`
}

type SessionConfig struct {
	JoinCodeLength int `yaml:"joinCodeLength" validate:"gte=0,lte=16"`
	// Observe is push (notifier) or poll (store polling).
	Observe           string      `yaml:"observe" validate:"omitempty,oneof=push poll"`
	PollInterval      string      `yaml:"pollInterval" validate:"duration"`
	ReconcileInterval string      `yaml:"reconcileInterval" validate:"duration"`
	Retry             RetryConfig `yaml:"retry"`
}

type RetryConfig struct {
	Attempts        int    `yaml:"attempts" validate:"gte=0,lte=10"`
	InitialInterval string `yaml:"initialInterval" validate:"duration"`
	MaxInterval     string `yaml:"maxInterval" validate:"duration"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=json text"`
}

// Load reads YAML config from path. An empty path yields the zero config,
// which runs fully in memory.
func Load(path string) (Config, error) {
	cfg := Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks field constraints and reports every failing field at once.
func Validate(cfg Config) error {
	validate := validator.New()
	_ = validate.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		raw := fl.Field().String()
		if raw == "" {
			return true
		}
		_, err := time.ParseDuration(raw)
		return err == nil
	})

	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
