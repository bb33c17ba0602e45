package flags

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/Vasu1712/scenyx-chat/internal/upload"
)

// Config is the optional YAML configuration file of the chat server.
type Config struct {
	AllowedOrigins []string      `yaml:"allowedOrigins"`
	Uploads        upload.Config `yaml:"uploads"`
	RateLimit      RateLimit     `yaml:"rateLimit"`
	SendBuffer     int           `yaml:"sendBuffer"`
	Messages       PageSize      `yaml:"messages"`
}

// RateLimit bounds inbound socket events per connection.
type RateLimit struct {
	EventsPerSecond float64 `yaml:"eventsPerSecond"`
	Burst           int     `yaml:"burst"`
}

type PageSize struct {
	Default int `yaml:"defaultPageSize"`
	Max     int `yaml:"maxPageSize"`
}

// ConfigFlags holds the location of the configuration file.
type ConfigFlags struct {
	Path string
}

func NewConfigFlags() *ConfigFlags {
	return &ConfigFlags{Path: os.Getenv("SCENYX_CONFIG")}
}

func (f *ConfigFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.Path,
		"config",
		f.Path,
		"YAML configuration file (optional)")
}

func (f *ConfigFlags) GetConfig() (*Config, error) {
	var cfg Config
	if f.Path == "" {
		return &cfg, nil
	}

	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, errors.WithMessage(err, "could not load config")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WithMessage(err, "couldn't unmarshal config")
	}
	return &cfg, nil
}
