// Package config loads server configuration in layers: built-in defaults,
// an optional YAML file, then AUTODOOR_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	EnvPrefix = "AUTODOOR_"

	// PathEnvVar names the YAML file to load. Without it ./autodoor.yaml is
	// used when present.
	PathEnvVar  = "AUTODOOR_CONFIG"
	DefaultPath = "./autodoor.yaml"
)

type Config struct {
	HTTPAddr string `koanf:"http_addr" validate:"required"`
	GRPCAddr string `koanf:"grpc_addr"` // "" disables the gRPC health server

	Env    string `koanf:"env" validate:"oneof=dev prod"`
	DBPath string `koanf:"db_path" validate:"required"`

	LogLevel  string `koanf:"log_level" validate:"oneof=trace debug info warn error"`
	LogFormat string `koanf:"log_format" validate:"oneof=json console"`

	// Settings cache; "" disables it.
	RedisAddr string        `koanf:"redis_addr"`
	RedisTTL  time.Duration `koanf:"redis_ttl" validate:"gte=0"`

	// MQTT mirror of broadcast events; "" disables it.
	MQTTBroker      string `koanf:"mqtt_broker"`
	MQTTClientID    string `koanf:"mqtt_client_id" validate:"required"`
	MQTTTopicPrefix string `koanf:"mqtt_topic_prefix" validate:"required"`

	AuditSensorUpdates   bool `koanf:"audit_sensor_updates"`
	AuditRetentionHours  int  `koanf:"audit_retention_hours" validate:"gte=0"` // 0 = keep audit rows
	PruneIntervalMinutes int  `koanf:"prune_interval_minutes" validate:"gte=1"`

	CORSOrigins          []string `koanf:"cors_origins"`
	ControlRatePerMinute int      `koanf:"control_rate_per_minute" validate:"gte=0"`

	OutboxCapacity  int    `koanf:"outbox_capacity" validate:"gte=1"`
	BreakerFailures uint32 `koanf:"breaker_failures" validate:"gte=1"`
}

func Defaults() Config {
	return Config{
		HTTPAddr:             ":8080",
		GRPCAddr:             ":9090",
		Env:                  "dev",
		DBPath:               "./data/autodoor.db",
		LogLevel:             "info",
		LogFormat:            "json",
		RedisTTL:             5 * time.Minute,
		MQTTClientID:         "autodoor-server",
		MQTTTopicPrefix:      "autodoor",
		AuditRetentionHours:  72,
		PruneIntervalMinutes: 60,
		CORSOrigins:          []string{"*"},
		ControlRatePerMinute: 60,
		OutboxCapacity:       256,
		BreakerFailures:      3,
	}
}

// Load builds the configuration. path names a YAML file; when empty the
// file from AUTODOOR_CONFIG or ./autodoor.yaml is used if it exists.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	} else if _, err := os.Stat(path); err != nil {
		return Config{}, fmt.Errorf("config file %s: %w", path, err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// AUTODOOR_HTTP_ADDR -> http_addr
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}
	k.Delete("config")

	if err := splitList(k, "cors_origins"); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q (got %v)", fe.Field(), fe.Tag()+paramSuffix(fe.Param()), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func paramSuffix(p string) string {
	if p == "" {
		return ""
	}
	return "=" + p
}

func findConfigFile() string {
	if p := os.Getenv(PathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if _, err := os.Stat(DefaultPath); err == nil {
		return DefaultPath
	}
	return ""
}

// splitList turns a comma-separated env value into a list. Values that are
// already lists (from YAML) are left alone.
func splitList(k *koanf.Koanf, key string) error {
	s, ok := k.Get(key).(string)
	if !ok {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if err := k.Set(key, out); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}
