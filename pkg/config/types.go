package config

import "fmt"

// Config represents the persistent alchemister configuration stored as
// config.toml in the .alchemister/ directory. The TOML layout uses sections
// for logical grouping.
type Config struct {
	Version int          `toml:"version"`
	Client  ClientConfig `toml:"client"`
	Chat    ChatConfig   `toml:"chat"`
	Serve   ServeConfig  `toml:"serve"`
}

// ClientConfig holds settings for commands that connect to the chat backend.
type ClientConfig struct {
	// APITarget is the backend base URL (scheme + host + port).
	APITarget string `toml:"api_target,omitempty"`
}

// ChatConfig holds chat command presentation settings.
type ChatConfig struct {
	// Render selects how completed replies are displayed:
	// "markdown" (glamour-rendered) or "plain".
	Render string `toml:"render,omitempty"`
}

// ServeConfig holds settings for the local development stub server.
type ServeConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// keyInfo couples a config key with its getter and setter so the config
// get/set/list commands share one registry.
type keyInfo struct {
	get func(*Config) string
	set func(*Config, string) error
}

var configKeys = map[string]keyInfo{
	"client.api_target": {
		get: func(c *Config) string { return c.Client.APITarget },
		set: func(c *Config, v string) error {
			c.Client.APITarget = v
			return nil
		},
	},
	"chat.render": {
		get: func(c *Config) string { return c.Chat.Render },
		set: func(c *Config, v string) error {
			if v != "markdown" && v != "plain" {
				return fmt.Errorf("chat.render must be %q or %q, got %q", "markdown", "plain", v)
			}
			c.Chat.Render = v
			return nil
		},
	},
	"serve.listen": {
		get: func(c *Config) string { return c.Serve.Listen },
		set: func(c *Config, v string) error {
			c.Serve.Listen = v
			return nil
		},
	},
}
