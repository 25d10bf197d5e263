// Package configcmder provides the config command for managing persistent
// alchemister configuration stored in the .alchemister/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent alchemister configuration.

Configuration is stored as config.toml in the .alchemister/ directory and
provides default values for command flags. CLI flags always take precedence
over config file values.

Keys use dotted notation matching the TOML section structure:
  client.api_target, chat.render, serve.listen

Use subcommands to get, set, or list configuration values:
  alchemister config set <key> <value>    Set a configuration value
  alchemister config get <key>            Get a configuration value
  alchemister config list                 List all configuration values

Examples:
  alchemister config set client.api_target https://chat.example.com
  alchemister config set chat.render plain
  alchemister config get client.api_target
  alchemister config list`

const configShortDesc string = "Manage persistent alchemister configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
