// Package config loads the t140cast configuration.
//
// Values come from, in increasing priority: built-in defaults, the YAML
// file (--config, else ~/.t140cast/config.yaml when present) and
// environment variables.
//
//	server:
//	  host: 0.0.0.0          # HOST
//	  port: 3000             # PORT
//	t140:
//	  websocket_port: 8765
//	  rtp_port: 5004
//	  char_rate_limit: 30
//	  backspace_processing: true
//	  handshake_timeout: 10s
//	llm:
//	  default_provider: openai   # DEFAULT_LLM_PROVIDER
//	  dev: false                 # registers the "echo" provider
//	  openai:    {api_key: "", model: gpt-4, base_url: ""}
//	  anthropic: {api_key: "", model: claude-3-sonnet-20240229, max_tokens: 4000}
//	  gemini:    {api_key: "", model: gemini-2.0-flash}
//	store:
//	  driver: file           # file | badger | memory | s3
//	  path: ./data           # DB_PATH
//	  name: devices.json
//	  s3: {bucket: "", prefix: "", region: "", endpoint: "", access_key: "", secret_key: "", path_style: false}
//	fanout:
//	  mode: shared           # shared | tee
//	  max_concurrency: 0
//	log:
//	  level: info            # LOG_LEVEL
//	  format: text           # text | json
//	  file: ""               # LOG_FILE
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"
)

// Config is the full configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	T140   T140Config   `yaml:"t140"`
	LLM    LLMConfig    `yaml:"llm"`
	Store  StoreConfig  `yaml:"store"`
	Fanout FanoutConfig `yaml:"fanout"`
	Log    LogConfig    `yaml:"log"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns host:port for net.Listen.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// T140Config holds the transport defaults. Device settings override the
// rate limit and backspace flag; the ports are suggested when adding
// devices without one.
type T140Config struct {
	WebSocketPort       int           `yaml:"websocket_port"`
	RTPPort             int           `yaml:"rtp_port"`
	CharRateLimit       int           `yaml:"char_rate_limit"`
	BackspaceProcessing *bool         `yaml:"backspace_processing"`
	HandshakeTimeout    time.Duration `yaml:"handshake_timeout"`
}

type LLMConfig struct {
	DefaultProvider string         `yaml:"default_provider"`
	Dev             bool           `yaml:"dev"`
	OpenAI          ProviderConfig `yaml:"openai"`
	Anthropic       ProviderConfig `yaml:"anthropic"`
	Gemini          ProviderConfig `yaml:"gemini"`
}

type ProviderConfig struct {
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	MaxTokens int    `yaml:"max_tokens"`
}

type StoreConfig struct {
	Driver string   `yaml:"driver"`
	Path   string   `yaml:"path"`
	Name   string   `yaml:"name"`
	S3     S3Config `yaml:"s3"`
}

type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	PathStyle bool   `yaml:"path_style"`
}

type FanoutConfig struct {
	Mode           string `yaml:"mode"`
	MaxConcurrency int    `yaml:"max_concurrency"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Default returns the built-in defaults.
func Default() *Config {
	backspaces := true
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 3000},
		T140: T140Config{
			WebSocketPort:       8765,
			RTPPort:             5004,
			CharRateLimit:       30,
			BackspaceProcessing: &backspaces,
			HandshakeTimeout:    10 * time.Second,
		},
		LLM: LLMConfig{
			DefaultProvider: "openai",
			OpenAI:          ProviderConfig{Model: "gpt-4"},
			Anthropic:       ProviderConfig{Model: "claude-3-sonnet-20240229", MaxTokens: 4000},
			Gemini:          ProviderConfig{Model: "gemini-2.0-flash"},
		},
		Store:  StoreConfig{Driver: "file", Path: "./data", Name: "devices.json"},
		Fanout: FanoutConfig{Mode: "shared"},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults and applies the environment. A missing
// file is not an error when optional is true.
func Load(path string, optional bool) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist) && optional:
		case err != nil:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("HOST", &c.Server.Host)
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: PORT: %w", err)
		}
		c.Server.Port = port
	}
	str("DEFAULT_LLM_PROVIDER", &c.LLM.DefaultProvider)
	str("OPENAI_API_KEY", &c.LLM.OpenAI.APIKey)
	str("OPENAI_MODEL", &c.LLM.OpenAI.Model)
	str("OPENAI_BASE_URL", &c.LLM.OpenAI.BaseURL)
	str("ANTHROPIC_API_KEY", &c.LLM.Anthropic.APIKey)
	str("ANTHROPIC_MODEL", &c.LLM.Anthropic.Model)
	str("GEMINI_API_KEY", &c.LLM.Gemini.APIKey)
	str("DB_PATH", &c.Store.Path)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FILE", &c.Log.File)
	return nil
}

// Validate checks ports and enum values.
func (c *Config) Validate() error {
	var errs []error
	for name, port := range map[string]int{
		"server.port":         c.Server.Port,
		"t140.websocket_port": c.T140.WebSocketPort,
		"t140.rtp_port":       c.T140.RTPPort,
	} {
		if port < 1 || port > 65535 {
			errs = append(errs, fmt.Errorf("%s %d out of range 1..65535", name, port))
		}
	}
	if c.T140.CharRateLimit < 0 {
		errs = append(errs, errors.New("t140.char_rate_limit must not be negative"))
	}
	switch c.Store.Driver {
	case "file", "badger", "memory":
	case "s3":
		if c.Store.S3.Bucket == "" {
			errs = append(errs, errors.New("store.s3.bucket is required for the s3 driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver %q must be file, badger, memory or s3", c.Store.Driver))
	}
	switch c.Fanout.Mode {
	case "", "shared", "tee":
	default:
		errs = append(errs, fmt.Errorf("fanout.mode %q must be shared or tee", c.Fanout.Mode))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q must be debug, info, warn or error", c.Log.Level))
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Backspaces returns the default backspace-processing flag.
func (t T140Config) Backspaces() bool {
	return t.BackspaceProcessing == nil || *t.BackspaceProcessing
}

// DefaultPort returns the suggested device port for a protocol name.
func (t T140Config) DefaultPort(protocol string) int {
	if protocol == "websocket" {
		return t.WebSocketPort
	}
	return t.RTPPort
}
