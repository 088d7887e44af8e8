// internal/config/config.go
package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	DB            DatabaseConfig      `mapstructure:"db"`
	WhatsApp      WhatsAppConfig      `mapstructure:"whatsapp"`
	Fallback      FallbackConfig      `mapstructure:"fallback"`
	AMQP          AMQPConfig          `mapstructure:"amqp"`
	Log           LogConfig           `mapstructure:"log"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" validate:"required"`
}

type DatabaseConfig struct {
	User     string `mapstructure:"user" validate:"required"`
	Password string `mapstructure:"password"`
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Name     string `mapstructure:"name" validate:"required"`
	SSLMode  string `mapstructure:"sslmode" validate:"oneof=disable require verify-ca verify-full"`

	MaxOpenConns int `mapstructure:"max_open_conns" validate:"min=0"`
}

// DSN returns a lib/pq connection URL.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type WhatsAppConfig struct {
	BaseURL              string        `mapstructure:"base_url" validate:"required,url"`
	APIKey               string        `mapstructure:"api_key"`
	Timeout              time.Duration `mapstructure:"timeout" validate:"gt=0"`
	VerificationTemplate string        `mapstructure:"verification_template" validate:"required"`
	AffiliateTemplate    string        `mapstructure:"affiliate_template" validate:"required"`
}

type FallbackConfig struct {
	BatchSize int           `mapstructure:"batch_size" validate:"min=1,max=500"`
	Delay     time.Duration `mapstructure:"delay" validate:"min=0"`
}

type AMQPConfig struct {
	URL   string `mapstructure:"url"` // empty disables RabbitMQ and uses the in-memory queue
	Queue string `mapstructure:"queue" validate:"required"`
}

type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"min=1"`
	MaxBackups int    `mapstructure:"max_backups" validate:"min=0"`
}

type ObservabilityConfig struct {
	ServiceName string `mapstructure:"service_name" validate:"required"`
	TracingURL  string `mapstructure:"tracing_url"` // host:port of an OTLP/HTTP collector; empty disables tracing
}

var defaults = map[string]any{
	"server.addr":                    ":8080",
	"db.user":                        "postgres",
	"db.password":                    "",
	"db.host":                        "localhost",
	"db.port":                        5432,
	"db.name":                        "crm",
	"db.sslmode":                     "disable",
	"db.max_open_conns":              10,
	"whatsapp.base_url":              "http://localhost:54321/functions/v1",
	"whatsapp.api_key":               "",
	"whatsapp.timeout":               "15s",
	"whatsapp.verification_template": "reenvio-codigo-verificacao",
	"whatsapp.affiliate_template":    "reenvio-link-indicacao",
	"fallback.batch_size":            50,
	"fallback.delay":                 "1s",
	"amqp.url":                       "",
	"amqp.queue":                     "sms_fallback_runs",
	"log.file":                       "",
	"log.max_size_mb":                50,
	"log.max_backups":                5,
	"observability.service_name":     "crm-sms-fallback",
	"observability.tracing_url":      "",
}

// Load reads .env (if any) and the environment. Keys map to upper-case
// variables with dots replaced by underscores, e.g. DB_HOST or
// WHATSAPP_TIMEOUT.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on OS environment variables")
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	return validator.New().Struct(c)
}
