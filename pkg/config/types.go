package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config represents the persistent chatstream configuration stored as
// config.toml in the .chatstream/ directory. The TOML layout uses sections
// for logical grouping.
type Config struct {
	Version int           `toml:"version"`
	Storage StorageConfig `toml:"storage"`
	Chat    ChatConfig    `toml:"chat"`
	API     APIConfig     `toml:"api"`
	Client  ClientConfig  `toml:"client"`
	Events  EventsConfig  `toml:"events"`
	Workers WorkersConfig `toml:"workers"`
}

// StorageConfig holds turn persistence settings shared by the chat CLI and
// the API server.
type StorageConfig struct {
	// Backend selects the store: "memory", "sqlite", or "postgres".
	Backend     string `toml:"backend,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// ChatConfig holds upstream assistant settings.
type ChatConfig struct {
	Endpoint string `toml:"endpoint,omitempty"`
	Model    string `toml:"model,omitempty"`
	APIKey   string `toml:"api_key,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// ClientConfig holds settings for CLI commands that connect to the running
// API server (e.g. chatstream history). Values are full URLs.
type ClientConfig struct {
	APITarget string `toml:"api_target,omitempty"`
}

// EventsConfig holds turn-event publishing settings.
type EventsConfig struct {
	Enabled bool     `toml:"enabled,omitempty"`
	Brokers []string `toml:"brokers,omitempty"`
	Topic   string   `toml:"topic,omitempty"`
}

// WorkersConfig holds persistence worker pool settings.
type WorkersConfig struct {
	Num       uint `toml:"num,omitempty"`
	QueueSize uint `toml:"queue_size,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.backend": {
		get: func(c *Config) string { return c.Storage.Backend },
		set: func(c *Config, v string) error { c.Storage.Backend = v; return nil },
	},
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"storage.postgres_dsn": {
		get: func(c *Config) string { return c.Storage.PostgresDSN },
		set: func(c *Config, v string) error { c.Storage.PostgresDSN = v; return nil },
	},
	"chat.endpoint": {
		get: func(c *Config) string { return c.Chat.Endpoint },
		set: func(c *Config, v string) error { c.Chat.Endpoint = v; return nil },
	},
	"chat.model": {
		get: func(c *Config) string { return c.Chat.Model },
		set: func(c *Config, v string) error { c.Chat.Model = v; return nil },
	},
	"chat.api_key": {
		get: func(c *Config) string { return c.Chat.APIKey },
		set: func(c *Config, v string) error { c.Chat.APIKey = v; return nil },
	},
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
	"client.api_target": {
		get: func(c *Config) string { return c.Client.APITarget },
		set: func(c *Config, v string) error { c.Client.APITarget = v; return nil },
	},
	"events.enabled": {
		get: func(c *Config) string { return strconv.FormatBool(c.Events.Enabled) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for events.enabled: %w", err)
			}
			c.Events.Enabled = b
			return nil
		},
	},
	"events.brokers": {
		get: func(c *Config) string { return strings.Join(c.Events.Brokers, ",") },
		set: func(c *Config, v string) error {
			if v == "" {
				c.Events.Brokers = nil
				return nil
			}
			parts := strings.Split(v, ",")
			brokers := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					brokers = append(brokers, p)
				}
			}
			c.Events.Brokers = brokers
			return nil
		},
	},
	"events.topic": {
		get: func(c *Config) string { return c.Events.Topic },
		set: func(c *Config, v string) error { c.Events.Topic = v; return nil },
	},
	"workers.num": {
		get: func(c *Config) string {
			if c.Workers.Num == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Workers.Num), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for workers.num: %w", err)
			}
			c.Workers.Num = uint(n)
			return nil
		},
	},
	"workers.queue_size": {
		get: func(c *Config) string {
			if c.Workers.QueueSize == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Workers.QueueSize), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for workers.queue_size: %w", err)
			}
			c.Workers.QueueSize = uint(n)
			return nil
		},
	},
}
