package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Storage backends selectable with STORAGE_TYPE.
const (
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
	StorageMemory   = "memory"
)

type AppConfig struct {
	IrisBaseURL string `env:"IRIS_BASE_URL"`
	IrisWSURL   string `env:"IRIS_WS_URL"`

	BotPrefix string `env:"BOT_PREFIX"`

	XUserID    string `env:"X_USER_ID"`
	XUserEmail string `env:"X_USER_EMAIL"`
	XSessionID string `env:"X_SESSION_ID"`

	AllowedRooms []string `env:"ALLOWED_ROOMS" envSeparator:","`

	// EgressMode selects how replies leave: http, ws or auto.
	EgressMode  string `env:"EGRESS_MODE" envDefault:"http"`
	TemplateDir string `env:"TEMPLATE_DIR"`
	// FoldLines folds replies longer than this behind "see more"; 0 disables.
	FoldLines int `env:"REPLY_FOLD_LINES" envDefault:"8"`

	StorageType string `env:"STORAGE_TYPE" envDefault:"redis"`
	RedisURL    string `env:"REDIS_URL"`
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"data/matches.db"`

	PersistTimeout        time.Duration `env:"PERSIST_TIMEOUT" envDefault:"3s"`
	InvitationRetention   time.Duration `env:"INVITATION_RETENTION" envDefault:"72h"`
	JanitorInterval       time.Duration `env:"JANITOR_INTERVAL" envDefault:"15m"`
	LeaderboardSize       int           `env:"LEADERBOARD_SIZE" envDefault:"10"`
	MaxConcurrentCommands int           `env:"MAX_CONCURRENT_COMMANDS" envDefault:"64"`

	Log LogConfig
}

// LogConfig feeds obslog.Init.
type LogConfig struct {
	Level   string `env:"LOG_LEVEL" envDefault:"info"`
	Format  string `env:"LOG_FORMAT" envDefault:"legacy"`
	Console bool   `env:"LOG_TO_CONSOLE" envDefault:"true"`
	ToFile  bool   `env:"LOG_TO_FILE" envDefault:"false"`
	File    string `env:"LOG_FILE" envDefault:"logs/bot.log"`
	Caller  bool   `env:"LOG_CALLER" envDefault:"false"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return Parse()
}

// LoadStorage is Load for tools that only touch the store; gateway keys are optional.
func LoadStorage() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg, err := parse()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateStorage(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse builds the config from the process environment only.
func Parse() (*AppConfig, error) {
	cfg, err := parse()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parse() (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *AppConfig) normalize() {
	c.IrisBaseURL = strings.TrimSpace(c.IrisBaseURL)
	c.IrisWSURL = strings.TrimSpace(c.IrisWSURL)
	c.BotPrefix = strings.TrimSpace(c.BotPrefix)
	c.StorageType = strings.ToLower(strings.TrimSpace(c.StorageType))
	c.EgressMode = strings.ToLower(strings.TrimSpace(c.EgressMode))
	c.RedisURL = strings.TrimSpace(c.RedisURL)
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)
	rooms := c.AllowedRooms[:0]
	for _, r := range c.AllowedRooms {
		if s := strings.TrimSpace(r); s != "" {
			rooms = append(rooms, s)
		}
	}
	c.AllowedRooms = rooms
}

// Validate checks required keys, including the ones the storage backend needs.
func (c *AppConfig) Validate() error {
	if c.IrisBaseURL == "" {
		return errors.New("IRIS_BASE_URL is required")
	}
	if c.IrisWSURL == "" {
		return errors.New("IRIS_WS_URL is required")
	}
	if c.BotPrefix == "" {
		return errors.New("BOT_PREFIX is required")
	}
	switch c.EgressMode {
	case "http", "ws", "auto":
	default:
		return fmt.Errorf("unsupported EGRESS_MODE %q", c.EgressMode)
	}
	return c.ValidateStorage()
}

// ValidateStorage checks only the storage keys; tools without a chat gateway use it.
func (c *AppConfig) ValidateStorage() error {
	switch c.StorageType {
	case StorageRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required for STORAGE_TYPE=redis")
		}
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for STORAGE_TYPE=postgres")
		}
	case StorageSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return errors.New("SQLITE_PATH is required for STORAGE_TYPE=sqlite")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unsupported STORAGE_TYPE %q", c.StorageType)
	}
	if c.PersistTimeout <= 0 {
		return errors.New("PERSIST_TIMEOUT must be positive")
	}
	if c.MaxConcurrentCommands <= 0 {
		return errors.New("MAX_CONCURRENT_COMMANDS must be positive")
	}
	if c.LeaderboardSize <= 0 {
		return errors.New("LEADERBOARD_SIZE must be positive")
	}
	return nil
}

// RoomAllowed reports whether commands from room are served. An empty list allows every room.
func (c *AppConfig) RoomAllowed(room string) bool {
	if len(c.AllowedRooms) == 0 {
		return true
	}
	for _, r := range c.AllowedRooms {
		if r == room {
			return true
		}
	}
	return false
}
