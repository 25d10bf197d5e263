package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag. Commands reference flags
// by registry key rather than hard-coding names, shorthands, defaults, and
// descriptions inline, so the same logical flag cannot drift between
// commands.
type Flag struct {
	// Name is the long flag name (e.g. "api-target").
	Name string

	// Shorthand is the one-letter short flag. Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to.
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// Flag registry keys.
const (
	FlagAPITarget = "api-target"
	FlagRender    = "render"
	FlagListen    = "listen"
)

var flagRegistry = map[string]Flag{
	FlagAPITarget: {
		Name:        "api-target",
		Shorthand:   "a",
		ViperKey:    "client.api_target",
		Description: "Chat backend base URL",
	},
	FlagRender: {
		Name:        "render",
		Shorthand:   "",
		ViperKey:    "chat.render",
		Description: "How completed replies are displayed: markdown or plain",
	},
	FlagListen: {
		Name:        "listen",
		Shorthand:   "l",
		ViperKey:    "serve.listen",
		Description: "Address for the local stub server to listen on",
	},
}

// AddStringFlag registers a string flag on cmd from the registry with the
// given default. The flag's name, shorthand, and description all come from
// the registry entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, key, defaultValue string) {
	def, ok := flagRegistry[key]
	if !ok {
		return
	}
	cmd.Flags().StringP(def.Name, def.Shorthand, defaultValue, def.Description)
}

// BindRegisteredFlags binds every registry flag present on cmd to its viper
// key, completing the flags > env > file > defaults precedence chain.
func BindRegisteredFlags(cmd *cobra.Command, v *viper.Viper) error {
	for _, def := range flagRegistry {
		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(def.ViperKey, f); err != nil {
			return err
		}
	}
	return nil
}
