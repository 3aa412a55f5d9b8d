package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Narrative NarrativeConfig `yaml:"narrative"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Media     MediaConfig     `yaml:"media"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	BaseURL      string        `yaml:"base_url"`
}

type DatabaseConfig struct {
	MySQL MySQLConfig `yaml:"mysql"`
	Redis RedisConfig `yaml:"redis"`
}

type MySQLConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type RedisConfig struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"pool_size"`
	ListTTL  time.Duration `yaml:"list_ttl"`
}

// NarrativeConfig points at the remote chat/narrative API.
type NarrativeConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

type OpenAIConfig struct {
	APIKey string       `yaml:"api_key"`
	Image  ImageConfig  `yaml:"image"`
	Speech SpeechConfig `yaml:"speech"`
}

type ImageConfig struct {
	Model   string `yaml:"model"`
	Size    string `yaml:"size"`
	Quality string `yaml:"quality"`
}

type SpeechConfig struct {
	Model string  `yaml:"model"`
	Voice string  `yaml:"voice"`
	Speed float64 `yaml:"speed"`
}

type MediaConfig struct {
	Directory string `yaml:"directory"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Apply environment variable overrides
	if apiKey := os.Getenv("ZORK_API_KEY"); apiKey != "" {
		cfg.Narrative.APIKey = apiKey
	}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		cfg.OpenAI.APIKey = apiKey
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Narrative.Timeout == 0 {
		cfg.Narrative.Timeout = 120 * time.Second
	}
	if cfg.OpenAI.Image.Model == "" {
		cfg.OpenAI.Image.Model = "dall-e-3"
	}
	if cfg.OpenAI.Image.Size == "" {
		cfg.OpenAI.Image.Size = "1024x1024"
	}
	if cfg.OpenAI.Image.Quality == "" {
		cfg.OpenAI.Image.Quality = "standard"
	}
	if cfg.OpenAI.Speech.Model == "" {
		cfg.OpenAI.Speech.Model = "tts-1"
	}
	if cfg.OpenAI.Speech.Voice == "" {
		cfg.OpenAI.Speech.Voice = "nova"
	}
	if cfg.OpenAI.Speech.Speed == 0 {
		cfg.OpenAI.Speech.Speed = 1.0
	}
	if cfg.Media.Directory == "" {
		cfg.Media.Directory = "./data/media"
	}
	if cfg.Database.Redis.ListTTL == 0 {
		cfg.Database.Redis.ListTTL = 5 * time.Minute
	}
}
