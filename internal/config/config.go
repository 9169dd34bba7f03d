package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the system-wide settings for the consultation client.
type Config struct {
	Server       *ServerConfig       `json:"server"`
	Storage      *StorageConfig      `json:"storage"`
	Channel      *ChannelConfig      `json:"channel"`
	Consultation *ConsultationConfig `json:"consultation"`
}

// ServerConfig names the backend endpoints.
type ServerConfig struct {
	APIBaseURL     string        `json:"api_base_url"`
	SocketURL      string        `json:"socket_url"`
	RequestTimeout time.Duration `json:"request_timeout"`
}

// StorageConfig covers the local hint database.
type StorageConfig struct {
	Path        string        `json:"path"`
	BusyTimeout time.Duration `json:"busy_timeout"`
}

// ChannelConfig tunes the session channel's reconnect and write behavior.
type ChannelConfig struct {
	BaseDelay    time.Duration `json:"base_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
	WriteTimeout time.Duration `json:"write_timeout"`
	QueueSize    int           `json:"queue_size"`
}

// ConsultationConfig tunes countdown behavior during an active session.
type ConsultationConfig struct {
	TickInterval        time.Duration `json:"tick_interval"`
	RechargePromptBelow int           `json:"recharge_prompt_below"` // seconds
	RechargeButtonAt    int           `json:"recharge_button_at"`    // seconds
	MaxCommitments      int           `json:"max_commitments"`
}

// DefaultConfig returns defaults matching the production backend:
// reconnect backoff from one to five seconds, both recharge thresholds
// at two minutes remaining, a cap of ten outstanding commitments.
func DefaultConfig() *Config {
	return &Config{
		Server: &ServerConfig{
			APIBaseURL:     "https://api.starcall.example/api/v1",
			SocketURL:      "wss://api.starcall.example/socket",
			RequestTimeout: 15 * time.Second,
		},
		Storage: &StorageConfig{
			Path:        "./starcall.db",
			BusyTimeout: 5 * time.Second,
		},
		Channel: &ChannelConfig{
			BaseDelay:    1 * time.Second,
			MaxDelay:     5 * time.Second,
			WriteTimeout: 5 * time.Second,
			QueueSize:    100,
		},
		Consultation: &ConsultationConfig{
			TickInterval:        time.Second,
			RechargePromptBelow: 120,
			RechargeButtonAt:    120,
			MaxCommitments:      10,
		},
	}
}

// Validate rejects configurations that would fail at runtime.
func (c *Config) Validate() error {
	if c.Server == nil {
		return fmt.Errorf("server configuration is required")
	}
	if c.Server.APIBaseURL == "" {
		return fmt.Errorf("API base URL cannot be empty")
	}
	if c.Server.SocketURL == "" {
		return fmt.Errorf("socket URL cannot be empty")
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}

	if c.Storage == nil {
		return fmt.Errorf("storage configuration is required")
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage path cannot be empty")
	}
	if c.Storage.BusyTimeout <= 0 {
		return fmt.Errorf("storage busy timeout must be positive")
	}

	if c.Channel == nil {
		return fmt.Errorf("channel configuration is required")
	}
	if c.Channel.BaseDelay <= 0 {
		return fmt.Errorf("channel base delay must be positive")
	}
	if c.Channel.MaxDelay < c.Channel.BaseDelay {
		return fmt.Errorf("channel max delay must be at least the base delay")
	}
	if c.Channel.WriteTimeout <= 0 {
		return fmt.Errorf("channel write timeout must be positive")
	}
	if c.Channel.QueueSize <= 0 {
		return fmt.Errorf("channel queue size must be positive")
	}

	if c.Consultation == nil {
		return fmt.Errorf("consultation configuration is required")
	}
	if c.Consultation.TickInterval <= 0 {
		return fmt.Errorf("consultation tick interval must be positive")
	}
	if c.Consultation.RechargePromptBelow < 0 {
		return fmt.Errorf("recharge prompt threshold cannot be negative")
	}
	if c.Consultation.RechargeButtonAt < 0 {
		return fmt.Errorf("recharge button threshold cannot be negative")
	}
	if c.Consultation.MaxCommitments <= 0 {
		return fmt.Errorf("max commitments must be positive")
	}

	return nil
}

// LoadFromEnv builds a config from defaults overridden by STARCALL_*
// environment variables. A .env file in the working directory is loaded
// first when present.
func LoadFromEnv() *Config {
	_ = godotenv.Load()

	config := DefaultConfig()

	if v := os.Getenv("STARCALL_API_BASE_URL"); v != "" {
		config.Server.APIBaseURL = v
	}
	if v := os.Getenv("STARCALL_SOCKET_URL"); v != "" {
		config.Server.SocketURL = v
	}
	if v := os.Getenv("STARCALL_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Server.RequestTimeout = d
		}
	}

	if v := os.Getenv("STARCALL_STORAGE_PATH"); v != "" {
		config.Storage.Path = v
	}
	if v := os.Getenv("STARCALL_STORAGE_BUSY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Storage.BusyTimeout = d
		}
	}

	if v := os.Getenv("STARCALL_CHANNEL_BASE_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Channel.BaseDelay = d
		}
	}
	if v := os.Getenv("STARCALL_CHANNEL_MAX_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Channel.MaxDelay = d
		}
	}
	if v := os.Getenv("STARCALL_CHANNEL_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Channel.WriteTimeout = d
		}
	}
	if v := os.Getenv("STARCALL_CHANNEL_QUEUE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Channel.QueueSize = n
		}
	}

	if v := os.Getenv("STARCALL_TICK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Consultation.TickInterval = d
		}
	}
	if v := os.Getenv("STARCALL_RECHARGE_PROMPT_BELOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Consultation.RechargePromptBelow = n
		}
	}
	if v := os.Getenv("STARCALL_RECHARGE_BUTTON_AT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Consultation.RechargeButtonAt = n
		}
	}
	if v := os.Getenv("STARCALL_MAX_COMMITMENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Consultation.MaxCommitments = n
		}
	}

	return config
}

// ConfigFile is the JSON structure for file-based configuration.
// Durations are strings so files can say "5s" instead of nanoseconds.
type ConfigFile struct {
	Server       *ServerConfigFile       `json:"server"`
	Storage      *StorageConfigFile      `json:"storage"`
	Channel      *ChannelConfigFile      `json:"channel"`
	Consultation *ConsultationConfigFile `json:"consultation"`
}

type ServerConfigFile struct {
	APIBaseURL     string `json:"api_base_url"`
	SocketURL      string `json:"socket_url"`
	RequestTimeout string `json:"request_timeout"`
}

type StorageConfigFile struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout"`
}

type ChannelConfigFile struct {
	BaseDelay    string `json:"base_delay"`
	MaxDelay     string `json:"max_delay"`
	WriteTimeout string `json:"write_timeout"`
	QueueSize    int    `json:"queue_size"`
}

type ConsultationConfigFile struct {
	TickInterval        string `json:"tick_interval"`
	RechargePromptBelow *int   `json:"recharge_prompt_below"`
	RechargeButtonAt    *int   `json:"recharge_button_at"`
	MaxCommitments      int    `json:"max_commitments"`
}

// LoadFromFile reads a JSON config file and merges it over the defaults.
func LoadFromFile(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var configFile ConfigFile
	if err := json.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	config := DefaultConfig()

	if configFile.Server != nil {
		if configFile.Server.APIBaseURL != "" {
			config.Server.APIBaseURL = configFile.Server.APIBaseURL
		}
		if configFile.Server.SocketURL != "" {
			config.Server.SocketURL = configFile.Server.SocketURL
		}
		if configFile.Server.RequestTimeout != "" {
			if d, err := time.ParseDuration(configFile.Server.RequestTimeout); err == nil {
				config.Server.RequestTimeout = d
			}
		}
	}

	if configFile.Storage != nil {
		if configFile.Storage.Path != "" {
			config.Storage.Path = configFile.Storage.Path
		}
		if configFile.Storage.BusyTimeout != "" {
			if d, err := time.ParseDuration(configFile.Storage.BusyTimeout); err == nil {
				config.Storage.BusyTimeout = d
			}
		}
	}

	if configFile.Channel != nil {
		if configFile.Channel.BaseDelay != "" {
			if d, err := time.ParseDuration(configFile.Channel.BaseDelay); err == nil {
				config.Channel.BaseDelay = d
			}
		}
		if configFile.Channel.MaxDelay != "" {
			if d, err := time.ParseDuration(configFile.Channel.MaxDelay); err == nil {
				config.Channel.MaxDelay = d
			}
		}
		if configFile.Channel.WriteTimeout != "" {
			if d, err := time.ParseDuration(configFile.Channel.WriteTimeout); err == nil {
				config.Channel.WriteTimeout = d
			}
		}
		if configFile.Channel.QueueSize > 0 {
			config.Channel.QueueSize = configFile.Channel.QueueSize
		}
	}

	if configFile.Consultation != nil {
		if configFile.Consultation.TickInterval != "" {
			if d, err := time.ParseDuration(configFile.Consultation.TickInterval); err == nil {
				config.Consultation.TickInterval = d
			}
		}
		if configFile.Consultation.RechargePromptBelow != nil {
			config.Consultation.RechargePromptBelow = *configFile.Consultation.RechargePromptBelow
		}
		if configFile.Consultation.RechargeButtonAt != nil {
			config.Consultation.RechargeButtonAt = *configFile.Consultation.RechargeButtonAt
		}
		if configFile.Consultation.MaxCommitments > 0 {
			config.Consultation.MaxCommitments = configFile.Consultation.MaxCommitments
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}

	return config, nil
}

// LoadConfigWithPrecedence resolves configuration as file > environment
// > defaults. File errors fall back silently to the environment config.
func LoadConfigWithPrecedence(filepath string) *Config {
	config := LoadFromEnv()

	if filepath != "" {
		if fileConfig, err := LoadFromFile(filepath); err == nil {
			config = fileConfig
		}
	}

	return config
}
