package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/hallucinationguys/alchemister/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the ALCHEMISTER_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindFlag)
//  2. Environment variables (ALCHEMISTER_CLIENT_API_TARGET, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: ALCHEMISTER_CLIENT_API_TARGET, etc.
	v.SetEnvPrefix("ALCHEMISTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	defaults := NewDefaultConfig()

	v.SetDefault("client.api_target", defaults.Client.APITarget)
	v.SetDefault("chat.render", defaults.Chat.Render)
	v.SetDefault("serve.listen", defaults.Serve.Listen)
}

// ResolvedConfig reads the fully merged configuration (flags > env > file >
// defaults) back out of viper into a Config.
func ResolvedConfig(v *viper.Viper) *Config {
	return &Config{
		Version: CurrentV,
		Client: ClientConfig{
			APITarget: v.GetString("client.api_target"),
		},
		Chat: ChatConfig{
			Render: v.GetString("chat.render"),
		},
		Serve: ServeConfig{
			Listen: v.GetString("serve.listen"),
		},
	}
}
