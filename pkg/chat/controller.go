// Package chat binds stream sessions to a conversation and maintains the
// externally visible exchange state: whether a reply is in progress, the
// accumulated partial content, and the last error.
package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hallucinationguys/alchemister/pkg/api"
	"github.com/hallucinationguys/alchemister/pkg/stream"
)

// ErrExchangeInProgress is returned when a second exchange is started while
// one is already active for the conversation. Exchanges are never queued.
var ErrExchangeInProgress = errors.New("an exchange is already in progress for this conversation")

// Backend is the slice of the API client the controller depends on.
// *api.Client satisfies it.
type Backend interface {
	GetConversation(ctx context.Context, id string) (*api.Conversation, error)
	OpenMessageStream(ctx context.Context, conversationID string, req api.SendMessageRequest) (*http.Response, error)
	OpenRegenerateStream(ctx context.Context, conversationID, messageID string) (*http.Response, error)
}

// Controller drives exchanges for one conversation. At most one exchange is
// active at a time; Send and Regenerate reject concurrent use rather than
// queueing.
type Controller struct {
	backend Backend
	logger  *zap.Logger

	conversationID string

	mu                 sync.Mutex
	streaming          bool
	messages           []api.Message
	partial            string
	assistantMessageID string
	lastErr            error
	session            *stream.Session
}

// NewController creates a controller bound to one conversation.
func NewController(backend Backend, conversationID string, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		backend:        backend,
		logger:         logger,
		conversationID: conversationID,
	}
}

// Send posts a user message and starts the streaming exchange for the reply.
// The user message appears in Messages immediately (optimistic); the
// assistant placeholder carries a client-generated id that survives internal
// retries. The returned channel carries the normalized, coalesced event
// sequence and closes after the terminal event.
func (c *Controller) Send(ctx context.Context, content string) (<-chan stream.Event, error) {
	open := func(ctx context.Context) (*http.Response, error) {
		return c.backend.OpenMessageStream(ctx, c.conversationID, api.SendMessageRequest{
			Content: content,
			Stream:  true,
		})
	}

	return c.start(ctx, open, func() {
		c.messages = append(c.messages, api.Message{
			ID:             uuid.NewString(),
			ConversationID: c.conversationID,
			Role:           "user",
			Content:        content,
		})
	})
}

// Regenerate re-runs the assistant reply for an existing message. It is a
// thin wrapper over the same session type as Send, parameterized only by the
// request it opens.
func (c *Controller) Regenerate(ctx context.Context, messageID string) (<-chan stream.Event, error) {
	open := func(ctx context.Context) (*http.Response, error) {
		return c.backend.OpenRegenerateStream(ctx, c.conversationID, messageID)
	}

	return c.start(ctx, open, nil)
}

// start launches one exchange. optimistic, when non-nil, mutates the local
// message view under the controller lock before the session begins.
func (c *Controller) start(ctx context.Context, open stream.OpenFunc, optimistic func()) (<-chan stream.Event, error) {
	c.mu.Lock()
	if c.streaming {
		c.mu.Unlock()
		return nil, ErrExchangeInProgress
	}

	assistantID := uuid.NewString()
	c.streaming = true
	c.partial = ""
	c.lastErr = nil
	c.assistantMessageID = assistantID
	if optimistic != nil {
		optimistic()
	}

	session := stream.NewSession(stream.Config{
		Open:               open,
		AssistantMessageID: assistantID,
		Logger:             c.logger,
	})
	c.session = session
	c.mu.Unlock()

	events := session.Start(ctx)
	out := make(chan stream.Event, 256)
	go c.consume(ctx, events, out)

	return out, nil
}

// Stop cancels the active exchange. Idempotent when nothing is active.
func (c *Controller) Stop() {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()

	if session != nil {
		session.Cancel()
	}
}

// Streaming reports whether a reply is in progress.
func (c *Controller) Streaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streaming
}

// PartialContent returns the assistant content accumulated so far. It is
// never discarded on error, so partial output stays visible to the caller.
func (c *Controller) PartialContent() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.partial
}

// LastError returns the terminal error of the most recent exchange, if any.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Messages returns the current local view of the conversation, including
// optimistic entries and any in-flight assistant placeholder.
func (c *Controller) Messages() []api.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]api.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// consume updates controller state from the session's event sequence and
// forwards every event to the caller in order.
func (c *Controller) consume(ctx context.Context, events <-chan stream.Event, out chan<- stream.Event) {
	defer close(out)

	for ev := range events {
		switch ev.Type {
		case stream.TypeContentDelta:
			c.mu.Lock()
			c.partial += ev.Content
			c.mu.Unlock()

		case stream.TypeMessageEnd:
			c.onCompleted(ctx)

		case stream.TypeMessageCancelled:
			c.onTerminal(nil)

		case stream.TypeError:
			c.onTerminal(fmt.Errorf("exchange failed: %s", ev.Message))
		}

		out <- ev
	}
}

// onCompleted performs the single authoritative re-fetch, reconciling the
// optimistic local view with server-confirmed content.
func (c *Controller) onCompleted(ctx context.Context) {
	conv, err := c.backend.GetConversation(context.WithoutCancel(ctx), c.conversationID)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		// The exchange itself succeeded; keep the streamed view and
		// surface the fetch failure.
		c.logger.Warn("conversation re-fetch failed", zap.Error(err))
		c.finishLocked(err, true)
		return
	}

	c.messages = conv.Messages
	c.finishLocked(nil, false)
}

func (c *Controller) onTerminal(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		// Leave the placeholder holding whatever partial content arrived.
		c.logger.Warn("exchange ended with error",
			zap.String("assistant_message_id", c.assistantMessageID),
			zap.Error(err),
		)
	}
	c.finishLocked(err, true)
}

// finishLocked flips the externally visible state. When keepPartial is set,
// accumulated assistant content is materialized into the local message view
// under the client-generated id instead of being discarded. Caller holds mu.
func (c *Controller) finishLocked(err error, keepPartial bool) {
	c.streaming = false
	c.lastErr = err
	c.session = nil

	if keepPartial && c.partial != "" {
		c.messages = append(c.messages, api.Message{
			ID:             c.assistantMessageID,
			ConversationID: c.conversationID,
			Role:           "assistant",
			Content:        c.partial,
		})
	}
}
