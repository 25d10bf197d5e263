// Package alchemistercmder
package alchemistercmder

import (
	"fmt"

	"github.com/spf13/cobra"

	chatcmder "github.com/hallucinationguys/alchemister/cmd/alchemister/chat"
	configcmder "github.com/hallucinationguys/alchemister/cmd/alchemister/config"
	servecmder "github.com/hallucinationguys/alchemister/cmd/alchemister/serve"
)

const alchemisterLongDesc string = `Alchemister is a streaming chat client.

Start chatting with:
  alchemister chat --conversation <id>

Run a local stub backend for development:
  alchemister serve`

const alchemisterShortDesc string = "Alchemister - streaming chat client"

// Build metadata, injected at release time via ldflags.
var (
	Version   = "dev"
	Sha       = "unknown"
	Buildtime = "unknown"
)

func NewAlchemisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "alchemister",
		Short:   alchemisterShortDesc,
		Long:    alchemisterLongDesc,
		Version: fmt.Sprintf("%s (commit %s, built %s)", Version, Sha, Buildtime),
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .alchemister/ directory")

	// Add subcommands
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(servecmder.NewServeCmd())

	return cmd
}
