package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// Drivers lists the accepted endpoint.driver values.
var Drivers = []string{"gorilla", "nhooyr"}

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Endpoint.URL == "" {
		return errors.New("endpoint.url is required")
	}
	u, err := url.Parse(c.Endpoint.URL)
	if err != nil {
		return fmt.Errorf("endpoint.url is invalid: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("endpoint.url scheme must be ws or wss, got %q", u.Scheme)
	}
	if !slices.Contains(Drivers, c.Endpoint.Driver) {
		return fmt.Errorf("endpoint.driver must be one of %s, got %q", strings.Join(Drivers, ", "), c.Endpoint.Driver)
	}
	for i, kv := range c.Endpoint.Cookies {
		if kv.Key == "" {
			return fmt.Errorf("endpoint.cookies[%d].key is required", i)
		}
	}
	for i, kv := range c.Endpoint.Headers {
		if kv.Key == "" {
			return fmt.Errorf("endpoint.headers[%d].key is required", i)
		}
	}

	nonNegative := []struct {
		name  string
		value int64
	}{
		{"connection.handshake_timeout", int64(c.Connection.HandshakeTimeout)},
		{"connection.write_timeout", int64(c.Connection.WriteTimeout)},
		{"connection.connect_timeout", int64(c.Connection.ConnectTimeout)},
		{"connection.ping_interval", int64(c.Connection.PingInterval)},
		{"connection.ping_timeout", int64(c.Connection.PingTimeout)},
		{"connection.read_limit", c.Connection.ReadLimit},
		{"reconnect.base_delay", int64(c.Reconnect.BaseDelay)},
		{"reconnect.max_delay", int64(c.Reconnect.MaxDelay)},
		{"reconnect.max_elapsed", int64(c.Reconnect.MaxElapsed)},
	}
	for _, d := range nonNegative {
		if d.value < 0 {
			return fmt.Errorf("%s must be >= 0", d.name)
		}
	}
	if c.Reconnect.MaxDelay > 0 && c.Reconnect.BaseDelay > c.Reconnect.MaxDelay {
		return fmt.Errorf("reconnect.base_delay (%s) cannot exceed max_delay (%s)", c.Reconnect.BaseDelay, c.Reconnect.MaxDelay)
	}

	if c.Journal.Enabled {
		if err := c.Journal.Database.validate("journal.database"); err != nil {
			return err
		}
		if c.Journal.BatchSize < 1 {
			return errors.New("journal.batch_size must be >= 1")
		}
		if c.Journal.BufferSize < 1 {
			return errors.New("journal.buffer_size must be >= 1")
		}
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
