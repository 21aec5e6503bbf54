package config

import (
	"time"

	"github.com/dinehub/realtime/internal/archive"
	"github.com/dinehub/realtime/internal/database"
	"github.com/dinehub/realtime/internal/session"
)

// Config is the root configuration for the realtime client tools.
type Config struct {
	Instance  InstanceConfig  `yaml:"instance"`
	API       APIConfig       `yaml:"api"`
	Endpoints EndpointsConfig `yaml:"endpoints"`
	Session   SessionConfig   `yaml:"session"`
	History   HistoryConfig   `yaml:"history"`
	Database  database.Config `yaml:"database"`
	Archive   archive.Config  `yaml:"archive"`
}

// InstanceConfig identifies this client instance.
type InstanceConfig struct {
	ID      string `yaml:"id"`
	AdminID int64  `yaml:"admin_id"` // 0 when not running as an admin
}

// APIConfig holds REST API settings.
type APIConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RateLimit  int           `yaml:"rate_limit"` // requests per second, 0 = unlimited
}

// EndpointsConfig holds WebSocket endpoint settings.
type EndpointsConfig struct {
	NotificationURL string `yaml:"notification_url"`
	ChatURL         string `yaml:"chat_url"`

	HandshakeTimeout   time.Duration `yaml:"handshake_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	ReadTimeout        time.Duration `yaml:"read_timeout"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectAttempts  int           `yaml:"reconnect_attempts"`
}

// SessionConfig selects the session store backend.
type SessionConfig struct {
	Store    string              `yaml:"store"` // "memory", "file", "redis"
	FilePath string              `yaml:"file_path"`
	Redis    session.RedisConfig `yaml:"redis"`
}

// HistoryConfig holds pagination settings.
type HistoryConfig struct {
	PageSize int `yaml:"page_size"`
}
