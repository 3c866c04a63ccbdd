package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/the-missionary-company/parley/internal/identity"
	"github.com/the-missionary-company/parley/internal/llm"
	"github.com/the-missionary-company/parley/pkg/logger"
)

// StreamErrorTrailer mirrors the relay's abnormal-termination trailer
const StreamErrorTrailer = "X-Stream-Error"

// ErrStreamActive is returned when a submission arrives while a stream is
// already in flight. At most one stream runs per session.
var ErrStreamActive = errors.New("a stream is already active for this session")

// ConversationStore receives finished turns for persistence. Calls are
// fire-and-forget from the consumer's perspective.
type ConversationStore interface {
	Append(userID string, turns []llm.Message, model string, timestamp time.Time) error
}

// Consumer drives one chat session against the stream relay: it issues the
// request, decodes the byte stream back into text deltas, applies them in
// arrival order, and exposes cancellation. State machine:
//
//	IDLE -> SENDING -> STREAMING -> {DONE | ERROR | CANCELLED} -> (next Submit) SENDING ...
type Consumer struct {
	endpoint   string
	model      string
	httpClient *http.Client
	store      ConversationStore
	identity   identity.Provider
	logger     *logger.Logger

	// OnDelta, when set, is invoked for every delta as it arrives, before
	// Submit returns. Deltas are delivered in arrival order.
	OnDelta func(delta string)

	mu         sync.Mutex
	state      State
	transcript Transcript
	cancel     context.CancelFunc
}

// NewConsumer creates a consumer for the given relay endpoint and model
// selector. Store and identity may be nil to disable persistence.
func NewConsumer(endpoint, model string, store ConversationStore, identityProvider identity.Provider, log *logger.Logger) *Consumer {
	if identityProvider == nil {
		identityProvider = identity.Anonymous{}
	}
	return &Consumer{
		endpoint:   endpoint,
		model:      model,
		httpClient: &http.Client{}, // No timeout: streams are long-lived, ctx cancels
		store:      store,
		identity:   identityProvider,
		logger:     log.Named("chat-consumer"),
		state:      StateIdle,
	}
}

// State returns the current state
func (c *Consumer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Transcript returns a snapshot of the session transcript
func (c *Consumer) Transcript() []llm.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript.Turns()
}

// SetModel changes the model selector used for subsequent submissions
func (c *Consumer) SetModel(model string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.model = model
}

// Cancel aborts the in-flight stream, if any. Cancelling with no active
// stream is a no-op. Partial assistant output is preserved by the submit
// path, never here.
func (c *Consumer) Cancel() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Submit sends the pending input and consumes the resulting stream to
// completion, cancellation, or failure. It returns ErrStreamActive if a
// stream is already in flight.
//
// On a clean end of stream the accumulated assistant turn is appended to the
// transcript and the finished exchange is persisted fire-and-forget. On
// cancellation or mid-stream failure, whatever partial output arrived is
// appended; output visible to the user is never discarded. A failure before
// the first byte leaves the transcript exactly as it was.
func (c *Consumer) Submit(ctx context.Context, input string) (*Result, error) {
	c.mu.Lock()
	if c.state == StateSending || c.state == StateStreaming {
		c.mu.Unlock()
		return nil, ErrStreamActive
	}

	snapshot := c.transcript.Len()
	c.transcript.Append(llm.RoleUser, input)
	history := c.transcript.Turns()
	model := c.model

	streamCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.state = StateSending
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.cancel = nil
		c.mu.Unlock()
		cancel()
	}()

	resp, err := c.openStream(streamCtx, history, model)
	if err != nil {
		// Pre-stream failure: restore the transcript to its pre-request
		// shape, nothing the user saw is lost because nothing arrived.
		c.mu.Lock()
		c.transcript.truncate(snapshot)
		if errors.Is(err, context.Canceled) {
			c.state = StateCancelled
			c.mu.Unlock()
			return &Result{State: StateCancelled}, nil
		}
		c.state = StateError
		c.mu.Unlock()
		return nil, err
	}
	defer resp.Body.Close()

	c.setState(StateStreaming)

	content, readErr := c.consume(resp.Body)

	cancelled := readErr != nil && (errors.Is(readErr, context.Canceled) || streamCtx.Err() != nil)
	if cancelled || readErr == nil {
		readErr = nil
		// Clean EOF can still be an abnormal end: the relay reports
		// mid-stream provider failures in the trailer.
		if !cancelled {
			if msg := resp.Trailer.Get(StreamErrorTrailer); msg != "" {
				readErr = fmt.Errorf("stream ended abnormally: %s", msg)
			}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Partial output is preserved on every path that produced any
	if content != "" {
		c.transcript.Append(llm.RoleAssistant, content)
	}

	switch {
	case cancelled:
		c.state = StateCancelled
		c.logger.Debug("Stream cancelled by user", logger.Int("chars", len(content)))
		return &Result{Content: content, State: StateCancelled}, nil
	case readErr != nil:
		c.state = StateError
		c.logger.Error("Stream failed", logger.Error(readErr))
		return nil, readErr
	default:
		c.state = StateDone
		c.persistExchange(input, content, model)
		return &Result{Content: content, State: StateDone}, nil
	}
}

// openStream issues the relay request and verifies the pre-stream status
func (c *Consumer) openStream(ctx context.Context, history []llm.Message, model string) (*http.Response, error) {
	body, err := json.Marshal(map[string]interface{}{
		"history": history,
		"model":   model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to reach relay: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		var envelope struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(io.LimitReader(resp.Body, 4*1024)).Decode(&envelope) == nil && envelope.Error != "" {
			return nil, fmt.Errorf("request failed: %s", envelope.Error)
		}
		return nil, fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	return resp, nil
}

// consume reads the response body and applies deltas in arrival order. Chunk
// boundaries may split multi-byte runes, so incomplete trailing bytes are
// held back until the next read. Returns the accumulated content alongside
// any read error; content read before a failure is always returned.
func (c *Consumer) consume(body io.Reader) (string, error) {
	var accumulated strings.Builder
	var pending []byte
	buf := make([]byte, 4*1024)

	for {
		n, err := body.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			complete := completeRuneBoundary(pending)
			if complete > 0 {
				delta := string(pending[:complete])
				pending = append(pending[:0], pending[complete:]...)
				accumulated.WriteString(delta)
				if c.OnDelta != nil {
					c.OnDelta(delta)
				}
			}
		}
		if err != nil {
			if len(pending) > 0 {
				// Trailing bytes that never completed a rune; deliver them
				// like any other delta rather than dropping data silently.
				delta := string(pending)
				accumulated.WriteString(delta)
				if c.OnDelta != nil {
					c.OnDelta(delta)
				}
			}
			if err == io.EOF {
				return accumulated.String(), nil
			}
			return accumulated.String(), err
		}
	}
}

// completeRuneBoundary returns the length of the longest prefix of b that
// ends on a UTF-8 rune boundary. A genuine U+FFFD decodes as RuneError with
// size 3; only a size-1 result marks a truncated suffix.
func completeRuneBoundary(b []byte) int {
	end := len(b)
	for end > 0 && end > len(b)-utf8.UTFMax {
		r, size := utf8.DecodeLastRune(b[:end])
		if r != utf8.RuneError || size > 1 {
			return end
		}
		end--
	}
	return end
}

// persistExchange hands the finished exchange to the conversation store.
// Failures are logged, never surfaced, never retried. Skipped entirely with
// no signed-in user. Caller holds the lock; the store call itself runs
// without it.
func (c *Consumer) persistExchange(input, content, model string) {
	if c.store == nil {
		return
	}
	user, ok := c.identity.CurrentUser()
	if !ok {
		c.logger.Debug("No signed-in user, skipping persistence")
		return
	}

	turns := []llm.Message{
		{Role: llm.RoleUser, Content: input},
		{Role: llm.RoleAssistant, Content: content},
	}
	go func() {
		if err := c.store.Append(user.ID, turns, model, time.Now().UTC()); err != nil {
			c.logger.Error("Failed to persist conversation", logger.Error(err))
		}
	}()
}

func (c *Consumer) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}
