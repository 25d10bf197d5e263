// Package devserver is a local stub chat backend used to exercise the client
// end to end without a real deployment. It replays a scripted reply as a
// line-delimited event stream and keeps conversations in memory so the
// client's authoritative re-fetch works.
package devserver

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Script controls what one message request streams back.
type Script struct {
	// Reply is split into rune-sized deltas unless Deltas is set.
	Reply string

	// Deltas, when non-empty, are streamed verbatim.
	Deltas []string

	// Delay between streamed lines.
	Delay time.Duration

	// FailFirst makes the server answer the first N message requests with
	// 503, exercising the client's retry policy.
	FailFirst int

	// StallAfter, when positive, stops writing after that many deltas
	// while keeping the connection open, exercising the stall watchdog.
	StallAfter int
}

type message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	Role           string `json:"role"`
	Content        string `json:"content"`
}

type conversation struct {
	ID       string    `json:"id"`
	Title    string    `json:"title,omitempty"`
	Messages []message `json:"messages"`
}

// Server is the stub backend.
type Server struct {
	app    *fiber.App
	logger *zap.Logger
	script Script

	mu            sync.Mutex
	requests      int
	conversations map[string]*conversation
}

// New creates a stub server replaying the given script.
func New(script Script, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if script.Reply == "" && len(script.Deltas) == 0 {
		script.Reply = "Hello from the alchemister stub backend. Everything is wired up."
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		StreamRequestBody:     true,
	})

	s := &Server{
		app:           app,
		logger:        logger,
		script:        script,
		conversations: make(map[string]*conversation),
	}

	app.Get("/api/conversations/:id", s.handleGetConversation)
	app.Post("/api/conversations/:id/messages", s.handleSendMessage)
	app.Post("/api/conversations/:id/messages/:mid/regenerate", s.handleRegenerate)
	app.Delete("/api/conversations/:id/messages/:mid", s.handleDeleteMessage)

	return s
}

// Run starts the server on the given listening address.
func (s *Server) Run(addr string) error {
	s.logger.Info("starting stub backend", zap.String("listen", addr))
	return s.app.Listen(addr)
}

// RunWithListener starts the server using the provided listener.
func (s *Server) RunWithListener(listener net.Listener) error {
	s.logger.Info("starting stub backend", zap.String("listen", listener.Addr().String()))
	return s.app.Listener(listener)
}

// Close shuts the server down.
func (s *Server) Close() error {
	return s.app.Shutdown()
}

func (s *Server) handleGetConversation(c *fiber.Ctx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.conversationLocked(c.Params("id"))
	return c.JSON(fiber.Map{"data": conv})
}

func (s *Server) handleDeleteMessage(c *fiber.Ctx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.conversationLocked(c.Params("id"))
	mid := c.Params("mid")
	kept := conv.Messages[:0]
	for _, m := range conv.Messages {
		if m.ID != mid {
			kept = append(kept, m)
		}
	}
	conv.Messages = kept

	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleSendMessage(c *fiber.Ctx) error {
	var req struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(c.Body(), &req); err != nil || req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "content is required"})
	}

	s.mu.Lock()
	s.requests++
	if s.requests <= s.script.FailFirst {
		n := s.requests
		s.mu.Unlock()
		s.logger.Info("failing scripted request", zap.Int("request", n))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "scripted failure"})
	}

	conv := s.conversationLocked(c.Params("id"))
	conv.Messages = append(conv.Messages, message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           "user",
		Content:        req.Content,
	})
	s.mu.Unlock()

	return s.streamReply(c, conv.ID)
}

func (s *Server) handleRegenerate(c *fiber.Ctx) error {
	s.mu.Lock()
	conv := s.conversationLocked(c.Params("id"))
	id := conv.ID
	s.mu.Unlock()

	return s.streamReply(c, id)
}

// streamReply writes the scripted reply as "data: "-prefixed event lines.
// io.Pipe + SetBodyStream gives per-chunk delivery with backpressure instead
// of buffering the whole reply, same as a real streaming backend.
func (s *Server) streamReply(c *fiber.Ctx, conversationID string) error {
	deltas := s.script.Deltas
	if len(deltas) == 0 {
		for _, r := range s.script.Reply {
			deltas = append(deltas, string(r))
		}
	}

	c.Set("Content-Type", "text/event-stream")

	pr, pw := io.Pipe()
	go s.writeScript(pw, conversationID, deltas)

	c.Context().Response.SetBodyStream(pr, -1)
	return nil
}

func (s *Server) writeScript(pw *io.PipeWriter, conversationID string, deltas []string) {
	defer pw.Close()

	writeEvent := func(payload any) bool {
		raw, err := json.Marshal(payload)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(pw, "data: %s\n", raw); err != nil {
			return false
		}
		if s.script.Delay > 0 {
			time.Sleep(s.script.Delay)
		}
		return true
	}

	if !writeEvent(fiber.Map{"type": "message_start"}) {
		return
	}

	var full strings.Builder
	for i, delta := range deltas {
		if s.script.StallAfter > 0 && i >= s.script.StallAfter {
			// Hold the connection open without bytes until the client
			// gives up.
			time.Sleep(time.Hour)
			return
		}
		full.WriteString(delta)
		if !writeEvent(fiber.Map{"type": "content_delta", "content_delta": delta}) {
			return
		}
	}

	s.mu.Lock()
	conv := s.conversationLocked(conversationID)
	conv.Messages = append(conv.Messages, message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           "assistant",
		Content:        full.String(),
	})
	s.mu.Unlock()

	writeEvent(fiber.Map{"type": "message_end"})
}

// conversationLocked returns the conversation, creating it on first use.
// Caller holds mu.
func (s *Server) conversationLocked(id string) *conversation {
	conv, ok := s.conversations[id]
	if !ok {
		conv = &conversation{ID: id, Title: "stub conversation"}
		s.conversations[id] = conv
	}
	return conv
}
