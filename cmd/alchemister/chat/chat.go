// Package chatcmder provides the interactive chat command.
package chatcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hallucinationguys/alchemister/pkg/api"
	"github.com/hallucinationguys/alchemister/pkg/chat"
	"github.com/hallucinationguys/alchemister/pkg/cliui"
	"github.com/hallucinationguys/alchemister/pkg/config"
	"github.com/hallucinationguys/alchemister/pkg/credentials"
	"github.com/hallucinationguys/alchemister/pkg/logger"
	"github.com/hallucinationguys/alchemister/pkg/stream"
)

var (
	userPrompt      = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true).Render("you> ")
	assistantPrompt = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render("assistant> ")
)

const chatLongDesc string = `Start an interactive chat session against the configured backend.

Replies stream token by token. If the connection drops or stalls the client
retries automatically with backoff; partial output is never discarded.
Press Ctrl+C during a reply to cancel just that reply.

Examples:
  alchemister chat
  alchemister chat --conversation 4f1c2a
  alchemister chat --api-target http://localhost:8081 --render plain`

const chatShortDesc string = "Interactive streaming chat"

type chatCommander struct {
	apiTarget      string
	render         string
	conversationID string
	debug          bool

	logger *zap.Logger
}

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if err := config.BindRegisteredFlags(cmd, v); err != nil {
				return fmt.Errorf("binding flags: %w", err)
			}

			cfg := config.ResolvedConfig(v)
			cmder.apiTarget = cfg.Client.APITarget
			cmder.render = cfg.Chat.Render
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			configDir, _ := cmd.Flags().GetString("config-dir")
			return cmder.run(configDir)
		},
	}

	defaults := config.NewDefaultConfig()
	config.AddStringFlag(cmd, config.FlagAPITarget, defaults.Client.APITarget)
	config.AddStringFlag(cmd, config.FlagRender, defaults.Chat.Render)
	cmd.Flags().StringVarP(&cmder.conversationID, "conversation", "c", "", "Conversation id to resume (defaults to a new conversation)")

	return cmd
}

func (c *chatCommander) run(configDir string) error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	credMgr, err := credentials.NewManager(configDir)
	if err != nil {
		return fmt.Errorf("resolving credentials: %w", err)
	}
	token, err := credMgr.ResolveToken()
	if err != nil {
		return fmt.Errorf("resolving credentials: %w", err)
	}

	resuming := c.conversationID != ""
	if !resuming {
		c.conversationID = uuid.NewString()
	}

	client := api.New(c.apiTarget, token, api.WithLogger(c.logger))
	controller := chat.NewController(client, c.conversationID, c.logger)

	fmt.Println()
	fmt.Printf("  %s %s\n",
		cliui.KeyStyle.Render("Backend:"),
		cliui.NameStyle.Render(c.apiTarget),
	)
	fmt.Printf("  %s %s\n\n",
		cliui.KeyStyle.Render("Conversation:"),
		cliui.DimStyle.Render(c.conversationID),
	)
	fmt.Printf("  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /exit or Ctrl+D to quit."))

	if resuming {
		if err := c.printHistory(client, os.Stdout); err != nil {
			return err
		}
	}

	// Ctrl+C cancels the in-flight reply rather than killing the process.
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupts)
	go func() {
		for range interrupts {
			controller.Stop()
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print(userPrompt)
		if !scanner.Scan() {
			// EOF or error
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "/exit" {
			break
		}

		if err := c.sendAndStream(controller, input); err != nil {
			fmt.Fprintf(os.Stderr, "  %s %v\n", cliui.FailMark, err)
			continue
		}

		fmt.Println()
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Println()
	return nil
}

// printHistory replays the messages of a resumed conversation, with a
// spinner over the fetch. A missing conversation is not an error; the first
// message will create it.
func (c *chatCommander) printHistory(client *api.Client, w io.Writer) error {
	var conv *api.Conversation
	err := cliui.Step(w, "loading conversation history", func() error {
		var fetchErr error
		conv, fetchErr = client.GetConversation(context.Background(), c.conversationID)
		return fetchErr
	})
	if err != nil {
		var statusErr *api.StatusError
		if errors.As(err, &statusErr) && statusErr.Status == http.StatusNotFound {
			fmt.Fprintf(w, "  %s\n\n", cliui.DimStyle.Render("no history yet, starting fresh"))
			return nil
		}
		return fmt.Errorf("loading conversation %s: %w", c.conversationID, err)
	}

	for _, msg := range conv.Messages {
		prompt := assistantPrompt
		if msg.Role == "user" {
			prompt = userPrompt
		}
		fmt.Fprintf(w, "%s%s\n", prompt, msg.Content)
	}
	if len(conv.Messages) > 0 {
		fmt.Fprintln(w)
	}

	return nil
}

// sendAndStream runs one exchange, printing coalesced tokens as they arrive.
func (c *chatCommander) sendAndStream(controller *chat.Controller, input string) error {
	events, err := controller.Send(context.Background(), input)
	if err != nil {
		return err
	}

	fmt.Print(assistantPrompt)

	for ev := range events {
		switch ev.Type {
		case stream.TypeContentDelta:
			fmt.Print(ev.Content)

		case stream.TypeInfo:
			fmt.Printf("\n  %s\n%s", cliui.DimStyle.Render(ev.Message), assistantPrompt)

		case stream.TypeMessageEnd:
			fmt.Println()
			c.renderCompleted(controller.PartialContent())

		case stream.TypeMessageCancelled:
			fmt.Printf("\n  %s\n", cliui.DimStyle.Render("cancelled"))

		case stream.TypeError:
			fmt.Printf("\n  %s %s\n", cliui.FailMark, ev.Message)
		}
	}

	return nil
}

// renderCompleted re-renders the finished reply as markdown when configured.
// The raw token stream stays on screen in plain mode.
func (c *chatCommander) renderCompleted(content string) {
	if c.render != "markdown" || content == "" {
		return
	}

	rendered, err := cliui.RenderMarkdown(content)
	if err != nil {
		c.logger.Debug("markdown rendering failed", zap.Error(err))
		return
	}

	fmt.Println()
	fmt.Print(rendered)
}
