package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the session's position in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateOpening
	StateStreaming
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpening:
		return "opening"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// streamContentType marks a response body as the line-delimited event stream.
// Anything else is handled by the whole-body fallback.
const streamContentType = "text/event-stream"

// OpenFunc opens the transport request for one attempt of the exchange.
// The session retries through the same OpenFunc, so "send" and "regenerate"
// differ only in the request this function issues.
type OpenFunc func(ctx context.Context) (*http.Response, error)

// Config parameterizes one Session.
type Config struct {
	// Open issues the transport request. Required.
	Open OpenFunc

	// AssistantMessageID is the client-generated identifier for the reply
	// placeholder. Retries reuse it so the caller updates in place.
	AssistantMessageID string

	// Retry is the retry policy. The zero value applies the defaults.
	Retry Policy

	StallCheck time.Duration
	StallAfter time.Duration
	FlushChars int
	FlushEvery time.Duration

	Logger *zap.Logger
}

// Session orchestrates one logical "send a message, receive a reply"
// exchange: it opens the transport, feeds bytes through the line framer and
// event decoder, drives the stall watchdog, consults the retry policy on
// failure, and emits a normalized, strictly ordered event sequence.
//
// A session is single-use. The caller must drain the event channel returned
// by Start until it closes; the channel closes immediately after the single
// terminal event.
type Session struct {
	cfg    Config
	logger *zap.Logger

	events    chan Event
	coalescer *Coalescer
	cancel    context.CancelFunc

	startOnce sync.Once

	emitMu sync.Mutex
	closed bool

	mu      sync.Mutex
	state   State
	attempt int
}

// outcome classifies how one attempt ended.
type outcome struct {
	kind      outcomeKind
	retryable bool
	errEvent  Event
}

type outcomeKind int

const (
	outcomeCompleted outcomeKind = iota
	outcomeCancelled
	outcomeAppError
	outcomeFailure
)

// NewSession creates a session for one exchange.
func NewSession(cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Session{
		cfg:    cfg,
		logger: logger,
		events: make(chan Event, 256),
		state:  StateIdle,
	}
	s.coalescer = NewCoalescer(cfg.FlushChars, cfg.FlushEvery, func(batch string) {
		s.emit(Event{Type: TypeContentDelta, Content: batch})
	})

	return s
}

// Start begins the exchange and returns the event channel. Subsequent calls
// return the same channel without restarting.
func (s *Session) Start(ctx context.Context) <-chan Event {
	s.startOnce.Do(func() {
		ctx, s.cancel = context.WithCancel(ctx)
		go s.run(ctx)
	})
	return s.events
}

// Cancel aborts the exchange. Safe to call at any time, including after the
// session reached a terminal state.
func (s *Session) Cancel() {
	if s.cancel != nil {
		s.cancel()
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Attempt returns the 0-based attempt counter.
func (s *Session) Attempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}

// Content returns the accumulated reply text so far. Partial content stays
// available after a terminal error.
func (s *Session) Content() string {
	return s.coalescer.Content()
}

// run is the explicit retry loop: Opening -> Streaming -> terminal, with
// Failed cycling back to Opening while the retry policy allows it.
func (s *Session) run(ctx context.Context) {
	defer s.cancel()

	// The exchange has been accepted; surfaced once, not per attempt.
	s.emit(Event{Type: TypeMessageStart})

	for {
		out := s.attemptOnce(ctx)

		switch out.kind {
		case outcomeCompleted:
			s.finish(StateCompleted, Event{Type: TypeMessageEnd})
			return

		case outcomeCancelled:
			s.finish(StateCancelled, Event{Type: TypeMessageCancelled})
			return

		case outcomeAppError:
			// The backend reported failure mid-stream. A partial reply may
			// already exist, so retrying could duplicate content.
			s.finish(StateFailed, out.errEvent)
			return

		case outcomeFailure:
			s.mu.Lock()
			attempt := s.attempt
			s.mu.Unlock()

			decision := s.cfg.Retry.Decide(attempt, out.retryable)
			if !decision.Retry {
				s.finish(StateFailed, out.errEvent)
				return
			}

			s.logger.Info("retrying exchange",
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", decision.Delay),
				zap.String("reason", out.errEvent.Message),
			)
			s.emit(Event{
				Type: TypeInfo,
				Message: fmt.Sprintf("connection interrupted, retrying in %s (attempt %d of %d)",
					decision.Delay, attempt+2, s.cfg.Retry.maxAttempts()),
			})

			select {
			case <-ctx.Done():
				s.finish(StateCancelled, Event{Type: TypeMessageCancelled})
				return
			case <-time.After(decision.Delay):
			}

			s.mu.Lock()
			s.attempt++
			s.mu.Unlock()
		}
	}
}

// attemptOnce runs one transport attempt from Opening through its end.
func (s *Session) attemptOnce(ctx context.Context) outcome {
	s.setState(StateOpening)

	resp, err := s.cfg.Open(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return outcome{kind: outcomeCancelled}
		}
		return outcome{
			kind:      outcomeFailure,
			retryable: RetryableError(err),
			errEvent: Event{
				Type:    TypeError,
				Message: fmt.Sprintf("connection failed: %v", err),
			},
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return s.statusFailure(resp)
	}

	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, streamContentType) {
		return s.readWholeBody(resp)
	}

	return s.streamBody(ctx, resp)
}

// statusFailure turns a non-success response into a classified failure,
// extracting error detail from the body when it parses.
func (s *Session) statusFailure(resp *http.Response) outcome {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	resp.Body.Close()

	ev := errorEventFromBody(body, resp.StatusCode)
	s.logger.Warn("transport returned error status",
		zap.Int("status", resp.StatusCode),
		zap.String("detail", ev.Message),
	)

	return outcome{
		kind:      outcomeFailure,
		retryable: RetryableStatus(resp.StatusCode),
		errEvent:  ev,
	}
}

// readWholeBody handles the non-streaming JSON fallback: the reply arrived as
// a single document, so the attempt completes immediately and the caller's
// authoritative re-fetch picks up the content. Degraded but valid.
func (s *Session) readWholeBody(resp *http.Response) outcome {
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return outcome{
			kind:      outcomeFailure,
			retryable: RetryableError(err),
			errEvent: Event{
				Type:    TypeError,
				Message: fmt.Sprintf("reading response: %v", err),
			},
		}
	}

	s.logger.Debug("non-streaming response, completing via re-fetch")
	return outcome{kind: outcomeCompleted}
}

// streamBody is the Streaming state: the decode loop over the chunked body.
func (s *Session) streamBody(ctx context.Context, resp *http.Response) outcome {
	s.setState(StateStreaming)

	watchdog := NewWatchdog(s.cfg.StallCheck, s.cfg.StallAfter, func() {
		// Unblock the pending read; the loop classifies it as a stall below.
		resp.Body.Close()
	})
	watchdog.Start()

	// Propagate caller cancellation into the blocking read.
	stop := context.AfterFunc(ctx, func() {
		resp.Body.Close()
	})

	// Single cleanup routine for every exit path of the attempt: watchdog
	// disarmed, reader released, pending coalescer timer cleared.
	defer func() {
		stop()
		watchdog.Stop()
		resp.Body.Close()
		s.coalescer.Stop()
	}()

	framer := &LineFramer{}
	decoder := NewDecoder(s.logger)
	buf := make([]byte, 4096)

	payloadSeen := false
	sawEvent := false

	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			watchdog.Touch()
			if !payloadSeen {
				payloadSeen = true
				watchdog.MarkStarted()
			}

			for _, line := range framer.Push(buf[:n]) {
				ev, ok := decoder.Decode(line)
				if !ok {
					continue
				}
				sawEvent = true
				if out := s.dispatch(ev); out != nil {
					return *out
				}
			}
		}

		if err == nil {
			continue
		}

		if errors.Is(err, io.EOF) {
			if line, ok := framer.Flush(); ok {
				if ev, ok := decoder.Decode(line); ok {
					sawEvent = true
					if out := s.dispatch(ev); out != nil {
						return *out
					}
				}
			}
			if sawEvent {
				// Natural end-of-stream after a complete reply.
				return outcome{kind: outcomeCompleted}
			}
			return outcome{
				kind:      outcomeFailure,
				retryable: true,
				errEvent: Event{
					Type:    TypeError,
					Message: "stream ended before any event arrived",
				},
			}
		}

		if ctx.Err() != nil {
			return outcome{kind: outcomeCancelled}
		}

		if watchdog.Fired() {
			s.logger.Warn("stall watchdog fired",
				zap.Duration("threshold", s.cfg.StallAfter),
			)
			return outcome{
				kind:      outcomeFailure,
				retryable: RetryableError(ErrStalled),
				errEvent:  Event{Type: TypeError, Message: ErrStalled.Error()},
			}
		}

		return outcome{
			kind:      outcomeFailure,
			retryable: RetryableError(err),
			errEvent: Event{
				Type:    TypeError,
				Message: fmt.Sprintf("reading stream: %v", err),
			},
		}
	}
}

// dispatch routes one decoded event. A non-nil return ends the attempt.
func (s *Session) dispatch(ev Event) *outcome {
	switch ev.Type {
	case TypeContentDelta:
		s.coalescer.Add(ev.Content)
		return nil

	case TypeInfo:
		s.emit(ev)
		return nil

	case TypeMessageStart:
		// Transport acceptance was already surfaced when the exchange began.
		return nil

	case TypeMessageEnd:
		return &outcome{kind: outcomeCompleted}

	case TypeMessageCancelled:
		return &outcome{kind: outcomeCancelled}

	case TypeError:
		return &outcome{kind: outcomeAppError, errEvent: ev}

	default:
		return nil
	}
}

// finish performs the terminal transition: final forced flush so no trailing
// fragment is lost, then exactly one terminal event, then channel close.
func (s *Session) finish(state State, terminal Event) {
	s.setState(state)
	s.coalescer.Flush()
	s.coalescer.Stop()

	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if s.closed {
		return
	}
	s.events <- terminal
	s.closed = true
	close(s.events)
}

// emit delivers one non-terminal event in decode order. Events arriving after
// the terminal transition are dropped.
func (s *Session) emit(ev Event) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if s.closed {
		return
	}
	s.events <- ev
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}
