// Package config loads client settings from an optional YAML file and the
// environment. Environment values win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/johndosdos/conecta/internal/broker"
)

const (
	BrokerMQTT = "mqtt"
	BrokerNATS = "nats"
	BrokerNone = "none"
)

type Config struct {
	Broker   BrokerConfig   `yaml:"broker"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Identity IdentityConfig `yaml:"identity"`
	Send     SendConfig     `yaml:"send"`
	HTTPAddr string         `yaml:"httpAddr"`

	// WSOrigins are extra hosts allowed to open the websocket cross-origin.
	WSOrigins []string `yaml:"wsOrigins"`
}

type BrokerConfig struct {
	Kind           string        `yaml:"kind"`
	URL            string        `yaml:"url"`
	NATSCred       string        `yaml:"natsCred"`
	NATSUser       string        `yaml:"natsUser"`
	NATSPassword   string        `yaml:"natsPassword"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
	PublishTimeout time.Duration `yaml:"publishTimeout"`
}

type DatabaseConfig struct {
	// URL empty means the in-memory store.
	URL string `yaml:"url"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type IdentityConfig struct {
	Token     string `yaml:"token"`
	JWTSecret string `yaml:"jwtSecret"`
	JWTIssuer string `yaml:"jwtIssuer"`
	// Static is a fixed identity for development, used when Token is empty.
	Static string `yaml:"static"`
}

type SendConfig struct {
	// RatePerMinute is also the burst. Zero disables the limit.
	RatePerMinute int `yaml:"ratePerMinute"`
	// Sanitize strips markup from outgoing text. Plain text is kept as typed.
	Sanitize bool `yaml:"sanitize"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Broker: BrokerConfig{
			Kind:           BrokerMQTT,
			URL:            broker.DefaultBrokerURL,
			ConnectTimeout: 10 * time.Second,
			PublishTimeout: 5 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Identity: IdentityConfig{
			JWTIssuer: "conecta",
		},
		Send: SendConfig{
			RatePerMinute: 30,
			Sanitize:      false,
		},
	}
}

// Load reads the YAML file named by CONECTA_CONFIG, if set, over the
// defaults and then applies environment overrides.
func Load() (Config, error) {
	cfg := Default()

	if path := EnvString("CONECTA_CONFIG", ""); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config [%s]: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config [%s]: %w", path, err)
		}
	}

	ApplyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func ApplyEnvOverrides(cfg *Config) {
	cfg.Broker.Kind = strings.ToLower(EnvString("CONECTA_BROKER_KIND", cfg.Broker.Kind))
	cfg.Broker.URL = EnvString("CONECTA_BROKER_URL", cfg.Broker.URL)
	cfg.Broker.NATSCred = EnvString("NATS_CRED", cfg.Broker.NATSCred)
	cfg.Broker.NATSUser = EnvString("NATS_USER", cfg.Broker.NATSUser)
	cfg.Broker.NATSPassword = EnvString("NATS_PASSWORD", cfg.Broker.NATSPassword)
	cfg.Broker.ConnectTimeout = EnvDuration("CONECTA_CONNECT_TIMEOUT", cfg.Broker.ConnectTimeout)
	cfg.Broker.PublishTimeout = EnvDuration("CONECTA_PUBLISH_TIMEOUT", cfg.Broker.PublishTimeout)

	cfg.Database.URL = EnvString("CONECTA_DB_URL", cfg.Database.URL)

	cfg.Log.Level = EnvString("CONECTA_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = EnvString("CONECTA_LOG_FORMAT", cfg.Log.Format)

	cfg.Identity.Token = EnvString("CONECTA_IDENTITY_TOKEN", cfg.Identity.Token)
	cfg.Identity.JWTSecret = EnvString("CONECTA_JWT_SECRET", cfg.Identity.JWTSecret)
	cfg.Identity.JWTIssuer = EnvString("CONECTA_JWT_ISSUER", cfg.Identity.JWTIssuer)
	cfg.Identity.Static = EnvString("CONECTA_IDENTITY", cfg.Identity.Static)

	cfg.Send.RatePerMinute = EnvInt("CONECTA_SEND_RATE_PER_MIN", cfg.Send.RatePerMinute)
	cfg.Send.Sanitize = EnvBool("CONECTA_SANITIZE", cfg.Send.Sanitize)

	cfg.HTTPAddr = EnvString("CONECTA_HTTP_ADDR", cfg.HTTPAddr)
	if v := EnvString("CONECTA_WS_ORIGINS", ""); v != "" {
		cfg.WSOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.WSOrigins = append(cfg.WSOrigins, o)
			}
		}
	}
}

func (c Config) Validate() error {
	switch c.Broker.Kind {
	case BrokerMQTT, BrokerNATS, BrokerNone:
	default:
		return fmt.Errorf("config: unknown broker kind %q", c.Broker.Kind)
	}
	if c.Broker.Kind != BrokerNone && c.Broker.URL == "" {
		return errors.New("config: broker url is required")
	}
	if c.Identity.Token != "" && c.Identity.JWTSecret == "" {
		return errors.New("config: identity token set without a jwt secret")
	}
	return nil
}
