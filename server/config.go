package server

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config represents a server config.
type Config struct {
	ListenAddr           string `yaml:"listen_addr"`
	RedisAddr            string `yaml:"redis_addr"`
	RedisDB              int    `yaml:"redis_db"`
	MongoURI             string `yaml:"mongo_uri"`
	MongoDatabase        string `yaml:"mongo_database"`
	RateLimitMax         int64  `yaml:"rate_limit_max"`
	RateLimitWindowSecs  int    `yaml:"rate_limit_window_seconds"`
	Debug                bool   `yaml:"debug"`
	Verbose              bool   `yaml:"verbose"`
}

// DefaultConfig returns the development defaults.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:          ":8080",
		RedisAddr:           "localhost:6379",
		MongoURI:            "mongodb://localhost:27017/",
		MongoDatabase:       "toeic4all",
		RateLimitMax:        100,
		RateLimitWindowSecs: 60,
	}
}

// RateLimitWindow returns the configured window length.
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSecs) * time.Second
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (*Config, error) {
	c := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}
	return c, nil
}
