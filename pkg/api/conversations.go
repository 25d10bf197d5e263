package api

import (
	"context"
	"fmt"
	"net/http"
)

// GetConversation fetches the authoritative conversation by id, including its
// full ordered message list.
func (c *Client) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var env envelope[Conversation]
	path := fmt.Sprintf("/api/conversations/%s", id)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &env); err != nil {
		return nil, fmt.Errorf("fetching conversation %s: %w", id, err)
	}
	return &env.Data, nil
}

// GetMessage fetches a single message.
func (c *Client) GetMessage(ctx context.Context, conversationID, messageID string) (*Message, error) {
	var env envelope[Message]
	path := fmt.Sprintf("/api/conversations/%s/messages/%s", conversationID, messageID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &env); err != nil {
		return nil, fmt.Errorf("fetching message %s: %w", messageID, err)
	}
	return &env.Data, nil
}

// DeleteMessage removes a message from the conversation.
func (c *Client) DeleteMessage(ctx context.Context, conversationID, messageID string) error {
	path := fmt.Sprintf("/api/conversations/%s/messages/%s", conversationID, messageID)
	if err := c.doJSON(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("deleting message %s: %w", messageID, err)
	}
	return nil
}

// OpenMessageStream posts a new user message and returns the raw response for
// the stream session to consume. The reply body is either a single JSON
// document or the line-delimited event stream.
func (c *Client) OpenMessageStream(ctx context.Context, conversationID string, req SendMessageRequest) (*http.Response, error) {
	path := fmt.Sprintf("/api/conversations/%s/messages", conversationID)
	return c.openStream(ctx, http.MethodPost, path, req)
}

// OpenRegenerateStream re-runs an assistant reply. Same response shape as
// OpenMessageStream.
func (c *Client) OpenRegenerateStream(ctx context.Context, conversationID, messageID string) (*http.Response, error) {
	path := fmt.Sprintf("/api/conversations/%s/messages/%s/regenerate", conversationID, messageID)
	return c.openStream(ctx, http.MethodPost, path, nil)
}
