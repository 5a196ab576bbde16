// Package config loads the service configuration from a YAML file, an
// optional .env file and the process environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/amanullahtanweer/fluency-coach/internal/logging"
)

type Config struct {
	HTTP          HTTPConfig          `yaml:"http"`
	AudioSocket   AudioSocketConfig   `yaml:"audiosocket"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Redis         RedisConfig         `yaml:"redis"`
	Analysis      AnalysisConfig      `yaml:"analysis"`
	Scripts       ScriptsConfig       `yaml:"scripts"`
	Sessions      SessionsConfig      `yaml:"sessions"`
	Log           logging.Config      `yaml:"log"`
}

type HTTPConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type AudioSocketConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

type TranscriptionConfig struct {
	Provider      string        `yaml:"provider"` // "vosk" or "assemblyai"
	VoskServerURL string        `yaml:"vosk_server_url"`
	SampleRate    int           `yaml:"sample_rate"`
	AssemblyAIKey string        `yaml:"assemblyai_api_key"`
	BaseURL       string        `yaml:"assemblyai_base_url"`
	StreamingURL  string        `yaml:"assemblyai_streaming_url"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	MaxAttempts   int           `yaml:"max_attempts"`
	LanguageCode  string        `yaml:"language_code"`
}

type RedisConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Addr       string        `yaml:"addr"`
	Password   string        `yaml:"password"`
	DB         int           `yaml:"db"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
	RateLimit  int           `yaml:"rate_limit"`
	RateWindow time.Duration `yaml:"rate_window"`
}

type AnalysisConfig struct {
	VocabularyFile string `yaml:"vocabulary_file"`
}

type ScriptsConfig struct {
	OpenAIKey   string  `yaml:"openai_api_key"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

type SessionsConfig struct {
	LogDir      string        `yaml:"log_dir"`
	AudioDir    string        `yaml:"audio_dir"`
	PromptFile  string        `yaml:"prompt_file"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// Default returns the configuration used when no file overrides it.
func Default() *Config {
	cfg := &Config{
		HTTP: HTTPConfig{
			Host:           "0.0.0.0",
			Port:           5000,
			AllowedOrigins: []string{"*"},
			RequestTimeout: 2 * time.Minute,
		},
		AudioSocket: AudioSocketConfig{Host: "0.0.0.0", Port: 8080},
		Transcription: TranscriptionConfig{
			Provider:      "assemblyai",
			VoskServerURL: "ws://localhost:2700",
			SampleRate:    8000,
			BaseURL:       "https://api.assemblyai.com",
			StreamingURL:  "wss://streaming.assemblyai.com/v3/ws",
			PollInterval:  time.Second,
			MaxAttempts:   30,
			LanguageCode:  "en_us",
		},
		Redis: RedisConfig{
			Enabled:    true,
			Addr:       "localhost:6379",
			CacheTTL:   time.Hour,
			RateLimit:  100,
			RateWindow: 15 * time.Minute,
		},
		Scripts: ScriptsConfig{
			Model:       "gpt-4o-mini",
			MaxTokens:   500,
			Temperature: 0.7,
		},
		Sessions: SessionsConfig{
			LogDir:      "./sessions",
			IdleTimeout: 30 * time.Second,
		},
	}
	cfg.Log.ApplyDefaults()
	return cfg
}

// Load builds the configuration. envFile is loaded into the environment
// first when it exists; path may be empty to run on defaults. Environment
// variables override file values.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	cfg := Default()
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open config: %w", err)
		}
		defer file.Close()

		if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.Log.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("ASSEMBLYAI_API_KEY"); v != "" {
		c.Transcription.AssemblyAIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Scripts.OpenAIKey = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}

	host, port := os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT")
	if host != "" || port != "" {
		curHost, curPort, err := net.SplitHostPort(c.Redis.Addr)
		if err != nil {
			curHost, curPort = "localhost", "6379"
		}
		if host == "" {
			host = curHost
		}
		if port == "" {
			port = curPort
		}
		c.Redis.Addr = net.JoinHostPort(host, port)
	}

	if v := os.Getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.HTTP.Port = p
	}
	return nil
}

// Validate checks the values the services cannot start without.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port out of range: %d", c.HTTP.Port)
	}
	switch c.Transcription.Provider {
	case "vosk", "assemblyai":
	default:
		return fmt.Errorf("transcription.provider must be vosk or assemblyai (got: %s)", c.Transcription.Provider)
	}
	if c.Transcription.MaxAttempts <= 0 {
		return fmt.Errorf("transcription.max_attempts must be positive")
	}
	if c.Transcription.PollInterval <= 0 {
		return fmt.Errorf("transcription.poll_interval must be positive")
	}
	if c.Redis.Enabled && c.Redis.RateLimit <= 0 {
		return fmt.Errorf("redis.rate_limit must be positive")
	}
	return c.Log.Validate()
}
