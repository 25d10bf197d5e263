// Package servecmder provides the serve command, a local stub backend for
// developing and demoing the chat client without a real deployment.
package servecmder

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hallucinationguys/alchemister/pkg/config"
	"github.com/hallucinationguys/alchemister/pkg/devserver"
	"github.com/hallucinationguys/alchemister/pkg/logger"
)

const serveLongDesc string = `Run a local stub chat backend.

The stub replays a scripted reply as a line-delimited event stream and keeps
conversations in memory, so "alchemister chat" works end to end against it.

Failure injection flags exercise the client's retry and stall handling:
  --fail-first 2    answer the first two message requests with 503
  --stall-after 5   stop sending bytes after five deltas, holding the
                    connection open

Examples:
  alchemister serve
  alchemister serve --listen :9090 --delay 100ms
  alchemister serve --fail-first 2`

const serveShortDesc string = "Run a local stub chat backend"

type serveCommander struct {
	listen     string
	reply      string
	delay      time.Duration
	failFirst  int
	stallAfter int
	debug      bool
}

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if err := config.BindRegisteredFlags(cmd, v); err != nil {
				return fmt.Errorf("binding flags: %w", err)
			}

			cmder.listen = config.ResolvedConfig(v).Serve.Listen
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run()
		},
	}

	defaults := config.NewDefaultConfig()
	config.AddStringFlag(cmd, config.FlagListen, defaults.Serve.Listen)
	cmd.Flags().StringVar(&cmder.reply, "reply", "", "Scripted reply text (defaults to a built-in greeting)")
	cmd.Flags().DurationVar(&cmder.delay, "delay", 30*time.Millisecond, "Delay between streamed lines")
	cmd.Flags().IntVar(&cmder.failFirst, "fail-first", 0, "Answer the first N message requests with 503")
	cmd.Flags().IntVar(&cmder.stallAfter, "stall-after", 0, "Stop sending bytes after N deltas, keeping the connection open")

	return cmd
}

func (c *serveCommander) run() error {
	log := logger.NewLogger(c.debug)
	defer func() { _ = log.Sync() }()

	srv := devserver.New(devserver.Script{
		Reply:      c.reply,
		Delay:      c.delay,
		FailFirst:  c.failFirst,
		StallAfter: c.stallAfter,
	}, log)

	return srv.Run(c.listen)
}
