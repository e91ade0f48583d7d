// Package config loads securemsg settings from an optional YAML file and
// SECUREMSG_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/opd-ai/securemsg/limits"
)

// DefaultPort is the TCP port messages are exchanged on.
const DefaultPort = 5000

// DefaultPaths are tried in order when no config path is given.
var DefaultPaths = []string{"securemsg.yaml", "config.yaml"}

// Config is the full runtime configuration.
type Config struct {
	KeysDir      string          `yaml:"keysDir"`
	ContactsFile string          `yaml:"contactsFile"`
	SenderName   string          `yaml:"senderName"`
	Listen       ListenConfig    `yaml:"listen"`
	Send         SendConfig      `yaml:"send"`
	Messaging    MessagingConfig `yaml:"messaging"`
	Login        LoginConfig     `yaml:"login"`
	Log          LogConfig       `yaml:"log"`
	Metrics      MetricsConfig   `yaml:"metrics"`
}

type ListenConfig struct {
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	MaxFrameSize  uint32        `yaml:"maxFrameSize"`
	ReadTimeout   time.Duration `yaml:"readTimeout"`
	ShutdownGrace time.Duration `yaml:"shutdownGrace"`
	QueueSize     int           `yaml:"queueSize"`
	// RateLimit is connections per second per remote host; 0 disables it.
	RateLimit float64 `yaml:"rateLimit"`
	RateBurst int     `yaml:"rateBurst"`
}

type SendConfig struct {
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
}

type MessagingConfig struct {
	Workers int `yaml:"workers"`
}

type LoginConfig struct {
	MaxAttempts int `yaml:"maxAttempts"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	// Listen is the address of the /metrics endpoint; empty disables it.
	Listen string `yaml:"listen"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		KeysDir:      "Keys",
		ContactsFile: "contacts.json",
		SenderName:   "Anonymous",
		Listen: ListenConfig{
			Port:          DefaultPort,
			MaxFrameSize:  limits.MaxFrameSize,
			ReadTimeout:   30 * time.Second,
			ShutdownGrace: 5 * time.Second,
			QueueSize:     64,
			RateLimit:     5,
			RateBurst:     20,
		},
		Send: SendConfig{
			DialTimeout:  10 * time.Second,
			WriteTimeout: 5 * time.Second,
		},
		Messaging: MessagingConfig{Workers: 4},
		Login:     LoginConfig{MaxAttempts: 3},
		Log:       LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads configPath over the defaults and applies environment
// overrides. With an empty path the DefaultPaths are tried and a missing
// file is not an error; an explicit path must exist.
func Load(configPath string) (Config, error) {
	cfg := Default()

	candidates := DefaultPaths
	if configPath != "" {
		candidates = []string{configPath}
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) && configPath == "" {
			continue
		}
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
		logrus.WithFields(logrus.Fields{
			"package":  "config",
			"function": "Load",
			"path":     path,
		}).Debug("Loaded configuration file")
		break
	}

	if err := ApplyEnvOverrides(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnvOverrides applies SECUREMSG_* variables on top of cfg.
func ApplyEnvOverrides(cfg *Config) error {
	if v := env("SECUREMSG_KEYS_DIR"); v != "" {
		cfg.KeysDir = v
	}
	if v := env("SECUREMSG_CONTACTS_FILE"); v != "" {
		cfg.ContactsFile = v
	}
	if v := env("SECUREMSG_SENDER_NAME"); v != "" {
		cfg.SenderName = v
	}
	if v := env("SECUREMSG_LISTEN_HOST"); v != "" {
		cfg.Listen.Host = v
	}
	if v := env("SECUREMSG_LISTEN_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SECUREMSG_LISTEN_PORT: %w", err)
		}
		cfg.Listen.Port = port
	}
	if v := env("SECUREMSG_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := env("SECUREMSG_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := env("SECUREMSG_METRICS_LISTEN"); v != "" {
		cfg.Metrics.Listen = v
	}
	return nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// Validate rejects settings the runtime cannot honour.
func (c Config) Validate() error {
	if c.Listen.Port < 0 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port %d out of range", c.Listen.Port)
	}
	if c.Listen.MaxFrameSize == 0 {
		return errors.New("listen.maxFrameSize must be positive")
	}
	if c.Listen.RateLimit < 0 || c.Listen.RateBurst < 0 {
		return errors.New("listen.rateLimit and listen.rateBurst must not be negative")
	}
	if c.Login.MaxAttempts < 1 {
		return fmt.Errorf("login.maxAttempts must be at least 1, got %d", c.Login.MaxAttempts)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// ConfigureLogging applies the log level and format to the standard logrus
// logger.
func (c Config) ConfigureLogging() error {
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	if c.Log.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}
