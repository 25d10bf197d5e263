package chat_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/hallucinationguys/alchemister/pkg/api"
	"github.com/hallucinationguys/alchemister/pkg/chat"
	"github.com/hallucinationguys/alchemister/pkg/stream"
)

// fakeBackend satisfies chat.Backend with canned responses.
type fakeBackend struct {
	mu sync.Mutex

	conversation *api.Conversation
	fetchErr     error
	fetches      int

	openStream   func(ctx context.Context) (*http.Response, error)
	regenerated  []string
	sentContents []string
}

func (f *fakeBackend) GetConversation(ctx context.Context, id string) (*api.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.conversation, nil
}

func (f *fakeBackend) OpenMessageStream(ctx context.Context, conversationID string, req api.SendMessageRequest) (*http.Response, error) {
	f.mu.Lock()
	f.sentContents = append(f.sentContents, req.Content)
	f.mu.Unlock()
	return f.openStream(ctx)
}

func (f *fakeBackend) OpenRegenerateStream(ctx context.Context, conversationID, messageID string) (*http.Response, error) {
	f.mu.Lock()
	f.regenerated = append(f.regenerated, messageID)
	f.mu.Unlock()
	return f.openStream(ctx)
}

func (f *fakeBackend) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

// streamResponse builds a complete event-stream response from wire lines.
func streamResponse(lines ...string) *http.Response {
	var b strings.Builder
	for _, line := range lines {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"text/event-stream"}},
		Body:       io.NopCloser(strings.NewReader(b.String())),
	}
}

// pipeResponse builds a stream that stays open until the writer is driven by
// the test, so exchanges can be interrupted mid-flight.
func pipeResponse() (*http.Response, *io.PipeWriter) {
	r, w := io.Pipe()
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"text/event-stream"}},
		Body:       r,
	}
	return resp, w
}

func drain(events <-chan stream.Event) []stream.Event {
	var out []stream.Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func lastEvent(events []stream.Event) stream.Event {
	Expect(events).NotTo(BeEmpty())
	return events[len(events)-1]
}

var _ = Describe("Controller", func() {
	const conversationID = "conv-1"

	var backend *fakeBackend

	BeforeEach(func() {
		backend = &fakeBackend{
			conversation: &api.Conversation{
				ID: conversationID,
				Messages: []api.Message{
					{ID: "u1", ConversationID: conversationID, Role: "user", Content: "hello"},
					{ID: "a1", ConversationID: conversationID, Role: "assistant", Content: "Hi there"},
				},
			},
		}
	})

	Describe("Send", func() {
		It("shows the user message immediately and reconciles on completion", func() {
			backend.openStream = func(ctx context.Context) (*http.Response, error) {
				return streamResponse(
					`{"type":"content_delta","content_delta":"Hi there"}`,
					`{"type":"message_end"}`,
				), nil
			}

			controller := chat.NewController(backend, conversationID, nil)
			events, err := controller.Send(context.Background(), "hello")
			Expect(err).NotTo(HaveOccurred())

			// Optimistic entry is visible before the reply finishes.
			messages := controller.Messages()
			Expect(messages).To(HaveLen(1))
			Expect(messages[0].Role).To(Equal("user"))
			Expect(messages[0].Content).To(Equal("hello"))

			all := drain(events)
			Expect(lastEvent(all).Type).To(Equal(stream.TypeMessageEnd))

			Expect(controller.Streaming()).To(BeFalse())
			Expect(controller.LastError()).NotTo(HaveOccurred())

			// Exactly one authoritative re-fetch, local view replaced by it.
			Expect(backend.fetchCount()).To(Equal(1))
			Expect(controller.Messages()).To(Equal(backend.conversation.Messages))
		})

		It("rejects a second exchange while one is active", func() {
			resp, w := pipeResponse()
			backend.openStream = func(ctx context.Context) (*http.Response, error) {
				return resp, nil
			}

			controller := chat.NewController(backend, conversationID, nil)
			events, err := controller.Send(context.Background(), "first")
			Expect(err).NotTo(HaveOccurred())

			_, err = controller.Send(context.Background(), "second")
			Expect(err).To(MatchError(chat.ErrExchangeInProgress))

			controller.Stop()
			all := drain(events)
			Expect(lastEvent(all).Type).To(Equal(stream.TypeMessageCancelled))
			Expect(controller.Streaming()).To(BeFalse())
			w.Close()

			// A new exchange is allowed once the previous one settled.
			backend.openStream = func(ctx context.Context) (*http.Response, error) {
				return streamResponse(`{"type":"message_end"}`), nil
			}
			events, err = controller.Send(context.Background(), "third")
			Expect(err).NotTo(HaveOccurred())
			drain(events)
		})

		It("keeps partial content in the message view after a terminal error", func() {
			backend.openStream = func(ctx context.Context) (*http.Response, error) {
				return streamResponse(
					`{"type":"content_delta","content_delta":"partial reply"}`,
					`{"type":"error","error":"model exploded"}`,
				), nil
			}

			controller := chat.NewController(backend, conversationID, nil)
			events, err := controller.Send(context.Background(), "hello")
			Expect(err).NotTo(HaveOccurred())

			all := drain(events)
			Expect(lastEvent(all).Type).To(Equal(stream.TypeError))

			Expect(controller.LastError()).To(MatchError(ContainSubstring("model exploded")))
			Expect(controller.PartialContent()).To(Equal("partial reply"))
			Expect(backend.fetchCount()).To(BeZero())

			messages := controller.Messages()
			assistant := messages[len(messages)-1]
			Expect(assistant.Role).To(Equal("assistant"))
			Expect(assistant.Content).To(Equal("partial reply"))
		})

		It("keeps the streamed view when the re-fetch fails", func() {
			backend.fetchErr = fmt.Errorf("backend unreachable")
			backend.openStream = func(ctx context.Context) (*http.Response, error) {
				return streamResponse(
					`{"type":"content_delta","content_delta":"Hi there"}`,
					`{"type":"message_end"}`,
				), nil
			}

			controller := chat.NewController(backend, conversationID, nil)
			events, err := controller.Send(context.Background(), "hello")
			Expect(err).NotTo(HaveOccurred())

			drain(events)

			Expect(controller.LastError()).To(MatchError(backend.fetchErr))

			messages := controller.Messages()
			assistant := messages[len(messages)-1]
			Expect(assistant.Role).To(Equal("assistant"))
			Expect(assistant.Content).To(Equal("Hi there"))
		})

		It("keeps partial content on cancellation mid-stream", func() {
			resp, w := pipeResponse()
			backend.openStream = func(ctx context.Context) (*http.Response, error) {
				return resp, nil
			}

			controller := chat.NewController(backend, conversationID, nil)
			events, err := controller.Send(context.Background(), "hello")
			Expect(err).NotTo(HaveOccurred())

			go w.Write([]byte(`data: {"type":"content_delta","content_delta":"began..."}` + "\n"))
			Eventually(controller.PartialContent).Should(Equal("began..."))

			controller.Stop()
			all := drain(events)
			Expect(lastEvent(all).Type).To(Equal(stream.TypeMessageCancelled))
			w.Close()

			Expect(controller.LastError()).NotTo(HaveOccurred())
			messages := controller.Messages()
			assistant := messages[len(messages)-1]
			Expect(assistant.Role).To(Equal("assistant"))
			Expect(assistant.Content).To(Equal("began..."))
		})
	})

	Describe("Regenerate", func() {
		It("re-runs the reply for the given message", func() {
			backend.openStream = func(ctx context.Context) (*http.Response, error) {
				return streamResponse(
					`{"type":"content_delta","content_delta":"second take"}`,
					`{"type":"message_end"}`,
				), nil
			}

			controller := chat.NewController(backend, conversationID, nil)
			events, err := controller.Regenerate(context.Background(), "a1")
			Expect(err).NotTo(HaveOccurred())

			all := drain(events)
			Expect(lastEvent(all).Type).To(Equal(stream.TypeMessageEnd))

			Expect(backend.regenerated).To(Equal([]string{"a1"}))
			Expect(backend.fetchCount()).To(Equal(1))
		})
	})

	Describe("Stop", func() {
		It("is a no-op when nothing is active", func() {
			controller := chat.NewController(backend, conversationID, nil)
			controller.Stop()
			Expect(controller.Streaming()).To(BeFalse())
		})
	})
})
