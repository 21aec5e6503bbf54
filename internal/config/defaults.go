package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultBaseURL            = "https://api.dinehub.io"
	DefaultNotificationURL    = "wss://notify.dinehub.io/ws"
	DefaultChatURL            = "wss://chat.dinehub.io/ws"
	DefaultAPITimeout         = 30 * time.Second
	DefaultMaxRetries         = 3
	DefaultRateLimit          = 20
	DefaultHandshakeTimeout   = 10 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultPingInterval       = 15 * time.Second
	DefaultReadTimeout        = 45 * time.Second
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectAttempts  = 8
	DefaultPageSize           = 20
	DefaultSessionStore       = "file"
	DefaultSessionFile        = ".dinehub-session.json"
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 10
	DefaultMinConns           = 2
	DefaultBatchSize          = 500
	DefaultFlushInterval      = 1 * time.Second
	DefaultBufferSize         = 10000
)

func (c *Config) applyDefaults() {
	// API defaults
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}
	if c.API.RateLimit == 0 {
		c.API.RateLimit = DefaultRateLimit
	}

	// Endpoint defaults
	if c.Endpoints.NotificationURL == "" {
		c.Endpoints.NotificationURL = DefaultNotificationURL
	}
	if c.Endpoints.ChatURL == "" {
		c.Endpoints.ChatURL = DefaultChatURL
	}
	if c.Endpoints.HandshakeTimeout == 0 {
		c.Endpoints.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Endpoints.WriteTimeout == 0 {
		c.Endpoints.WriteTimeout = DefaultWriteTimeout
	}
	if c.Endpoints.PingInterval == 0 {
		c.Endpoints.PingInterval = DefaultPingInterval
	}
	if c.Endpoints.ReadTimeout == 0 {
		c.Endpoints.ReadTimeout = DefaultReadTimeout
	}
	if c.Endpoints.ReconnectBaseDelay == 0 {
		c.Endpoints.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Endpoints.ReconnectAttempts == 0 {
		c.Endpoints.ReconnectAttempts = DefaultReconnectAttempts
	}

	// Session defaults
	if c.Session.Store == "" {
		c.Session.Store = DefaultSessionStore
	}
	if c.Session.FilePath == "" {
		c.Session.FilePath = DefaultSessionFile
	}

	// History defaults
	if c.History.PageSize == 0 {
		c.History.PageSize = DefaultPageSize
	}

	// Database defaults (archiver only)
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Archive defaults
	if c.Archive.BatchSize == 0 {
		c.Archive.BatchSize = DefaultBatchSize
	}
	if c.Archive.FlushInterval == 0 {
		c.Archive.FlushInterval = DefaultFlushInterval
	}
	if c.Archive.BufferSize == 0 {
		c.Archive.BufferSize = DefaultBufferSize
	}
}
