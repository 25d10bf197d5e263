package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/hallucinationguys/alchemister/pkg/api"
)

// recordedRequest captures what the backend saw for header and body checks.
type recordedRequest struct {
	method string
	path   string
	header http.Header
	body   []byte
}

var _ = Describe("Client", func() {
	var (
		mu       sync.Mutex
		requests []recordedRequest
		handler  http.HandlerFunc
		server   *httptest.Server
		client   *api.Client
	)

	lastRequest := func() recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		Expect(requests).NotTo(BeEmpty())
		return requests[len(requests)-1]
	}

	BeforeEach(func() {
		requests = nil
		handler = nil
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body := make([]byte, 0)
			if r.Body != nil {
				raw := make([]byte, 4096)
				n, _ := r.Body.Read(raw)
				body = raw[:n]
			}
			mu.Lock()
			requests = append(requests, recordedRequest{
				method: r.Method,
				path:   r.URL.Path,
				header: r.Header.Clone(),
				body:   body,
			})
			mu.Unlock()
			handler(w, r)
		}))
		client = api.New(server.URL, "secret-token")
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("GetConversation", func() {
		It("decodes the data envelope and sends the bearer credential", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprint(w, `{"data":{"id":"c1","title":"greetings","messages":[
					{"id":"m1","conversation_id":"c1","role":"user","content":"hi"},
					{"id":"m2","conversation_id":"c1","role":"assistant","content":"hello"}
				]}}`)
			}

			conv, err := client.GetConversation(context.Background(), "c1")
			Expect(err).NotTo(HaveOccurred())

			Expect(conv.ID).To(Equal("c1"))
			Expect(conv.Title).To(Equal("greetings"))
			Expect(conv.Messages).To(HaveLen(2))
			Expect(conv.Messages[1].Role).To(Equal("assistant"))

			req := lastRequest()
			Expect(req.method).To(Equal(http.MethodGet))
			Expect(req.path).To(Equal("/api/conversations/c1"))
			Expect(req.header.Get("Authorization")).To(Equal("Bearer secret-token"))
			Expect(req.header.Get("Accept")).To(ContainSubstring("text/event-stream"))
		})

		It("returns a StatusError carrying the backend's error detail", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				fmt.Fprint(w, `{"error":"no such conversation"}`)
			}

			_, err := client.GetConversation(context.Background(), "missing")
			Expect(err).To(HaveOccurred())

			var statusErr *api.StatusError
			Expect(errors.As(err, &statusErr)).To(BeTrue())
			Expect(statusErr.Status).To(Equal(http.StatusNotFound))
			Expect(statusErr.Detail).To(Equal("no such conversation"))
		})

		It("falls back to the status text when the error body does not parse", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				fmt.Fprint(w, "<html>nope</html>")
			}

			_, err := client.GetConversation(context.Background(), "c1")

			var statusErr *api.StatusError
			Expect(errors.As(err, &statusErr)).To(BeTrue())
			Expect(statusErr.Detail).To(Equal("Internal Server Error"))
		})
	})

	Describe("DeleteMessage", func() {
		It("issues a DELETE to the message path", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			}

			Expect(client.DeleteMessage(context.Background(), "c1", "m2")).To(Succeed())

			req := lastRequest()
			Expect(req.method).To(Equal(http.MethodDelete))
			Expect(req.path).To(Equal("/api/conversations/c1/messages/m2"))
		})
	})

	Describe("OpenMessageStream", func() {
		It("posts the JSON payload and returns the raw response", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				fmt.Fprint(w, "data: {\"type\":\"message_end\"}\n")
			}

			resp, err := client.OpenMessageStream(context.Background(), "c1", api.SendMessageRequest{
				Content: "hi there",
				Stream:  true,
			})
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("text/event-stream"))

			req := lastRequest()
			Expect(req.method).To(Equal(http.MethodPost))
			Expect(req.path).To(Equal("/api/conversations/c1/messages"))

			var sent api.SendMessageRequest
			Expect(json.Unmarshal(req.body, &sent)).To(Succeed())
			Expect(sent.Content).To(Equal("hi there"))
			Expect(sent.Stream).To(BeTrue())
		})

		It("hands back non-success responses undecoded for the session to classify", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
				fmt.Fprint(w, `{"error":"overloaded"}`)
			}

			resp, err := client.OpenMessageStream(context.Background(), "c1", api.SendMessageRequest{Content: "hi"})
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))
		})
	})

	Describe("OpenRegenerateStream", func() {
		It("posts to the regenerate path without a body", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
			}

			resp, err := client.OpenRegenerateStream(context.Background(), "c1", "m2")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			req := lastRequest()
			Expect(req.method).To(Equal(http.MethodPost))
			Expect(req.path).To(Equal("/api/conversations/c1/messages/m2/regenerate"))
			Expect(req.body).To(BeEmpty())
		})
	})
})
