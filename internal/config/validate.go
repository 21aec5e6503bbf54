package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if !strings.HasPrefix(c.API.BaseURL, "http://") && !strings.HasPrefix(c.API.BaseURL, "https://") {
		return fmt.Errorf("api.base_url must be http(s), got %q", c.API.BaseURL)
	}
	if err := validateWSURL("endpoints.notification_url", c.Endpoints.NotificationURL); err != nil {
		return err
	}
	if err := validateWSURL("endpoints.chat_url", c.Endpoints.ChatURL); err != nil {
		return err
	}

	if c.Endpoints.ReconnectAttempts < 1 {
		return errors.New("endpoints.reconnect_attempts must be >= 1")
	}

	switch c.Session.Store {
	case "memory", "file":
	case "redis":
		if c.Session.Redis.Addr == "" {
			return errors.New("session.redis.addr is required for the redis store")
		}
	default:
		return fmt.Errorf("session.store must be memory, file, or redis, got %q", c.Session.Store)
	}

	if c.History.PageSize < 1 {
		return errors.New("history.page_size must be >= 1")
	}

	if c.Archive.BatchSize < 1 {
		return errors.New("archive.batch_size must be >= 1")
	}
	if c.Archive.BufferSize < 1 {
		return errors.New("archive.buffer_size must be >= 1")
	}

	return nil
}

// ValidateDatabase additionally checks database settings. Only the
// archiver needs a database; the watcher skips this.
func (c *Config) ValidateDatabase() error {
	if c.Database.Host == "" {
		return errors.New("database.host is required")
	}
	if c.Database.Name == "" {
		return errors.New("database.name is required")
	}
	if c.Database.User == "" {
		return errors.New("database.user is required")
	}
	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("database.min_conns (%d) cannot exceed max_conns (%d)",
			c.Database.MinConns, c.Database.MaxConns)
	}
	return nil
}

func validateWSURL(field, value string) error {
	if !strings.HasPrefix(value, "ws://") && !strings.HasPrefix(value, "wss://") {
		return fmt.Errorf("%s must be ws(s), got %q", field, value)
	}
	return nil
}
