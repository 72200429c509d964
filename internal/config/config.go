package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Channel drivers
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Channel   ChannelConfig   `yaml:"channel"`
	Redis     RedisConfig     `yaml:"redis"`
	Tarantool TarantoolConfig `yaml:"tarantool"`
	MinIO     MinIOConfig     `yaml:"minio"`
	Vault     VaultConfig     `yaml:"vault"`
	Logger    LoggerConfig    `yaml:"logger"`
	Realtime  RealtimeConfig  `yaml:"realtime"`
	Session   SessionConfig   `yaml:"session"`
	Display   DisplayConfig   `yaml:"display"`
}

// ServerConfig represents the ports exposed by the daemon
type ServerConfig struct {
	MetricsPort int `yaml:"metrics_port" envconfig:"METRICS_PORT"`
	HealthPort  int `yaml:"health_port" envconfig:"HEALTH_PORT"`
}

// ChannelConfig selects the Remote Data Channel implementation
type ChannelConfig struct {
	Driver string `yaml:"driver" envconfig:"CHANNEL_DRIVER"`
}

// RedisConfig represents Redis connection configuration
type RedisConfig struct {
	Address      string        `yaml:"address" envconfig:"REDIS_ADDRESS"`
	Password     string        `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB           int           `yaml:"db" envconfig:"REDIS_DB"`
	KeyPrefix    string        `yaml:"key_prefix" envconfig:"REDIS_KEY_PREFIX"`
	PingInterval time.Duration `yaml:"ping_interval" envconfig:"REDIS_PING_INTERVAL"`
	DialRetries  uint64        `yaml:"dial_retries" envconfig:"REDIS_DIAL_RETRIES"`

	// Vault path for credentials (optional)
	VaultPath string `yaml:"vault_path" envconfig:"REDIS_VAULT_PATH"`
}

// TarantoolConfig represents Tarantool connection configuration for the dead-letter log
type TarantoolConfig struct {
	Enabled  bool          `yaml:"enabled" envconfig:"TARANTOOL_ENABLED"`
	Address  string        `yaml:"address" envconfig:"TARANTOOL_ADDRESS"`
	User     string        `yaml:"user" envconfig:"TARANTOOL_USER"`
	Password string        `yaml:"password" envconfig:"TARANTOOL_PASSWORD"`
	Timeout  time.Duration `yaml:"timeout" envconfig:"TARANTOOL_TIMEOUT"`

	// Vault path for credentials (optional)
	VaultPath string `yaml:"vault_path" envconfig:"TARANTOOL_VAULT_PATH"`
}

// MinIOConfig represents MinIO connection configuration for message attachments
type MinIOConfig struct {
	Enabled         bool   `yaml:"enabled" envconfig:"MINIO_ENABLED"`
	Endpoint        string `yaml:"endpoint" envconfig:"MINIO_ENDPOINT"`
	AccessKeyID     string `yaml:"access_key_id" envconfig:"MINIO_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" envconfig:"MINIO_SECRET_ACCESS_KEY"`
	UseSSL          bool   `yaml:"use_ssl" envconfig:"MINIO_USE_SSL"`
	BucketName      string `yaml:"bucket_name" envconfig:"MINIO_BUCKET_NAME"`

	// Vault path for credentials (optional)
	VaultPath string `yaml:"vault_path" envconfig:"MINIO_VAULT_PATH"`
}

// VaultConfig represents HashiCorp Vault configuration
type VaultConfig struct {
	Enabled   bool   `yaml:"enabled" envconfig:"VAULT_ENABLED"`
	Address   string `yaml:"address" envconfig:"VAULT_ADDR"`
	Token     string `yaml:"token" envconfig:"VAULT_TOKEN"`
	TokenPath string `yaml:"token_path" envconfig:"VAULT_TOKEN_PATH"`
	Namespace string `yaml:"namespace" envconfig:"VAULT_NAMESPACE"`
}

// LoggerConfig represents logger configuration
type LoggerConfig struct {
	Level      string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format     string `yaml:"format" envconfig:"LOG_FORMAT"` // json or console
	OutputPath string `yaml:"output_path" envconfig:"LOG_OUTPUT_PATH"`
}

// RealtimeConfig holds the tunables of the sync core
type RealtimeConfig struct {
	MaxAttempts       int           `yaml:"max_attempts" envconfig:"REALTIME_MAX_ATTEMPTS"`
	BaseDelay         time.Duration `yaml:"base_delay" envconfig:"REALTIME_BASE_DELAY"`
	TypingTTL         time.Duration `yaml:"typing_ttl" envconfig:"REALTIME_TYPING_TTL"`
	RoomPageSize      int           `yaml:"room_page_size" envconfig:"REALTIME_ROOM_PAGE_SIZE"`
	NotificationLimit int           `yaml:"notification_limit" envconfig:"REALTIME_NOTIFICATION_LIMIT"`
	AlertDismissAfter time.Duration `yaml:"alert_dismiss_after" envconfig:"REALTIME_ALERT_DISMISS_AFTER"`
	OnlineWindow      time.Duration `yaml:"online_window" envconfig:"REALTIME_ONLINE_WINDOW"`
}

// SessionConfig describes the identity the daemon syncs for
type SessionConfig struct {
	UserID   string   `yaml:"user_id" envconfig:"SESSION_USER_ID"`
	UserName string   `yaml:"user_name" envconfig:"SESSION_USER_NAME"`
	Rooms    []string `yaml:"rooms" envconfig:"SESSION_ROOMS"`
}

// DisplayConfig controls delivery and alert behavior of notification feeds
type DisplayConfig struct {
	EnableNotifications bool   `yaml:"enable_notifications" envconfig:"DISPLAY_ENABLE_NOTIFICATIONS"`
	AnimateNewItems     bool   `yaml:"animate_new_items" envconfig:"DISPLAY_ANIMATE_NEW_ITEMS"`
	SortBy              string `yaml:"sort_by" envconfig:"DISPLAY_SORT_BY"` // newest or oldest
	MaxDisplayCount     int    `yaml:"max_display_count" envconfig:"DISPLAY_MAX_DISPLAY_COUNT"`
}

// Default returns the configuration used when neither file nor environment set a value
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			MetricsPort: 9090,
			HealthPort:  50051,
		},
		Channel: ChannelConfig{
			Driver: DriverMemory,
		},
		Redis: RedisConfig{
			Address:      "localhost:6379",
			KeyPrefix:    "rt:",
			PingInterval: 2 * time.Second,
			DialRetries:  5,
		},
		Tarantool: TarantoolConfig{
			Address: "localhost:3301",
			User:    "realtime",
			Timeout: 5 * time.Second,
		},
		MinIO: MinIOConfig{
			Endpoint:   "localhost:9000",
			BucketName: "chat-attachments",
		},
		Vault: VaultConfig{
			Address: "http://localhost:8200",
		},
		Logger: LoggerConfig{
			Level:      "info",
			Format:     "json",
			OutputPath: "stdout",
		},
		Realtime: RealtimeConfig{
			MaxAttempts:       3,
			BaseDelay:         time.Second,
			TypingTTL:         5 * time.Second,
			RoomPageSize:      50,
			NotificationLimit: 50,
			AlertDismissAfter: 5 * time.Second,
			OnlineWindow:      5 * time.Minute,
		},
		Display: DisplayConfig{
			EnableNotifications: true,
			AnimateNewItems:     true,
			SortBy:              "newest",
			MaxDisplayCount:     50,
		},
	}
}

// Load loads configuration from file and environment variables.
// Precedence: environment, then file, then Default().
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := loadFromFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := loadDotEnv(".env"); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile loads configuration from YAML file
func loadFromFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true) // Strict parsing

	if err := decoder.Decode(cfg); err != nil {
		return err
	}

	return nil
}

// loadDotEnv exports variables from a .env file without overriding the real environment.
// A missing file is not an error.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validatePort("metrics", c.Server.MetricsPort); err != nil {
		return err
	}
	if err := validatePort("health", c.Server.HealthPort); err != nil {
		return err
	}

	switch c.Channel.Driver {
	case DriverMemory:
	case DriverRedis:
		if c.Redis.Address == "" {
			return fmt.Errorf("redis address is required for the redis channel driver")
		}
		if c.Redis.PingInterval <= 0 {
			return fmt.Errorf("redis ping interval must be positive")
		}
	default:
		return fmt.Errorf("unknown channel driver: %q", c.Channel.Driver)
	}

	if c.Tarantool.Enabled && c.Tarantool.Address == "" {
		return fmt.Errorf("tarantool address is required when tarantool is enabled")
	}

	if c.MinIO.Enabled {
		if c.MinIO.Endpoint == "" {
			return fmt.Errorf("minio endpoint is required when minio is enabled")
		}
		if c.MinIO.BucketName == "" {
			return fmt.Errorf("minio bucket name is required when minio is enabled")
		}
	}

	if c.Vault.Enabled && c.Vault.Address == "" {
		return fmt.Errorf("vault address is required when vault is enabled")
	}

	if c.Realtime.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1: %d", c.Realtime.MaxAttempts)
	}
	if c.Realtime.BaseDelay <= 0 {
		return fmt.Errorf("base delay must be positive")
	}
	if c.Realtime.TypingTTL <= 0 {
		return fmt.Errorf("typing ttl must be positive")
	}
	if c.Realtime.RoomPageSize < 1 {
		return fmt.Errorf("room page size must be at least 1: %d", c.Realtime.RoomPageSize)
	}
	if c.Realtime.NotificationLimit < 1 {
		return fmt.Errorf("notification limit must be at least 1: %d", c.Realtime.NotificationLimit)
	}
	if c.Realtime.AlertDismissAfter <= 0 {
		return fmt.Errorf("alert dismiss window must be positive")
	}

	switch c.Display.SortBy {
	case "newest", "oldest":
	default:
		return fmt.Errorf("invalid display sort order: %q", c.Display.SortBy)
	}

	return nil
}

func validatePort(name string, port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid %s port: %d", name, port)
	}
	return nil
}

// GetVaultToken returns the Vault token from config or file
func (c *VaultConfig) GetVaultToken() (string, error) {
	if c.Token != "" {
		return c.Token, nil
	}

	if c.TokenPath != "" {
		token, err := os.ReadFile(c.TokenPath)
		if err != nil {
			return "", fmt.Errorf("failed to read vault token from file: %w", err)
		}
		return strings.TrimSpace(string(token)), nil
	}

	return "", fmt.Errorf("vault token not configured")
}
