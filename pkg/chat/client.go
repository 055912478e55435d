// Package chat drives a single streamed assistant response: it issues the
// upstream request, consumes the chunked SSE-style body through the frame
// decoder and line classifier, applies text deltas to the transcript, and
// hands finished turns to the persistence pool.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/marketstead/chatstream/pkg/llm"
	"github.com/marketstead/chatstream/pkg/sse"
	"github.com/marketstead/chatstream/pkg/transcript"
	"github.com/marketstead/chatstream/pkg/worker"
)

// Config is the configuration options for a chat Client.
type Config struct {
	// Endpoint is the upstream chat completions URL.
	Endpoint string

	// Model is the model name sent with each request.
	Model string

	// APIKey, when set, is sent as a bearer token.
	APIKey string

	// HTTPClient overrides the default client. Streams can be slow, so the
	// default carries a generous timeout.
	HTTPClient *http.Client
}

// Client is the transport orchestrator for one conversation's streams.
// It holds an implicit mutex by construction: one stream at a time, and a
// Send while a stream is active is rejected, never interleaved.
type Client struct {
	config     Config
	httpClient *http.Client
	transcript *transcript.Transcript
	pool       *worker.Pool
	logger     *slog.Logger

	mu    sync.Mutex
	state State
}

// chatMessage is the wire shape of one conversation message in the request.
type chatMessage struct {
	Role     string `json:"role"`
	Content  string `json:"content"`
	ImageRef string `json:"image_ref,omitempty"`
}

// chatRequest is the upstream request body.
type chatRequest struct {
	Model    string        `json:"model,omitempty"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// New creates a chat Client bound to a transcript and a persistence pool.
func New(config Config, tr *transcript.Transcript, pool *worker.Pool, logger *slog.Logger) *Client {
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			// Assistant responses can be slow
			Timeout: 5 * time.Minute,
		}
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		transcript: tr,
		pool:       pool,
		logger:     logger,
		state:      StateIdle,
	}
}

// State returns the state of the most recent stream.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Transcript returns the transcript this client mutates.
func (c *Client) Transcript() *transcript.Transcript {
	return c.transcript
}

// Send appends the user's message to the transcript, opens an assistant
// turn, streams the upstream response into it delta by delta, and enqueues
// both turns for persistence. It blocks until the stream reaches a terminal
// state and returns nil on Completed, ErrStreamInProgress when a stream is
// already active, or a categorized *Error otherwise.
//
// The user turn is persisted fire-and-forget before the request goes out;
// a persistence failure never blocks or fails the stream.
func (c *Client) Send(ctx context.Context, ref llm.ConversationRef, text, imageRef string) error {
	c.mu.Lock()
	if c.state == StateRequesting || c.state == StateStreaming {
		c.mu.Unlock()
		return ErrStreamInProgress
	}
	c.state = StateRequesting
	c.mu.Unlock()

	userTurn := llm.NewUserTurn(text, imageRef)
	c.transcript.Append(userTurn)
	c.pool.Enqueue(worker.Job{Ref: ref, Turn: userTurn})

	if err := c.transcript.OpenAssistantTurn(); err != nil {
		c.setState(StateFailed)
		return &Error{Category: CategoryTransportFailure, Err: err}
	}

	resp, err := c.request(ctx)
	if err != nil {
		return c.failRequesting(ctx, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return c.failStatus(CategoryRateLimited, resp.StatusCode)
	case resp.StatusCode == http.StatusPaymentRequired:
		return c.failStatus(CategoryPaymentRequired, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return c.failStatus(CategoryTransportFailure, resp.StatusCode)
	case resp.Body == nil || resp.Body == http.NoBody:
		return c.failStatus(CategoryTransportFailure, resp.StatusCode)
	}

	c.setState(StateStreaming)
	return c.consume(ctx, ref, resp.Body)
}

// request builds and issues the upstream streaming request. The request
// body carries the full message history excluding the open assistant
// placeholder.
func (c *Client) request(ctx context.Context) (*http.Response, error) {
	turns := c.transcript.Turns()
	messages := make([]chatMessage, 0, len(turns))
	for _, turn := range turns[:len(turns)-1] {
		messages = append(messages, chatMessage{
			Role:     string(turn.Role),
			Content:  turn.Text,
			ImageRef: turn.ImageRef,
		})
	}

	body, err := json.Marshal(chatRequest{
		Model:    c.config.Model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	c.logger.Debug("sending chat request",
		"endpoint", c.config.Endpoint,
		"model", c.config.Model,
		"message_count", len(messages),
	)

	return c.httpClient.Do(req)
}

// consume runs the read loop: decode chunks into lines, classify each line,
// extract deltas, and mutate the transcript. Cancellation is observed only
// at chunk-read points; line processing within one chunk is atomic with
// respect to cancellation.
func (c *Client) consume(ctx context.Context, ref llm.ConversationRef, body io.Reader) error {
	var dec sse.Decoder
	carry := ""

	// pending holds at most one unparsed payload whose JSON may contain a
	// literal newline split across lines; each following line is appended
	// (newline restored) and the parse retried.
	pending := ""

	buf := make([]byte, 32*1024)
	terminated := false

	for !terminated {
		n, readErr := body.Read(buf)
		if n > 0 {
			var lines []string
			lines, carry = dec.Decode(buf[:n], carry)
			terminated = c.applyLines(lines, &pending)
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			if ctx.Err() != nil {
				return c.abort(ref, ctx.Err())
			}
			return c.failStreaming(readErr)
		}
	}

	assistantTurn, err := c.transcript.Finalize()
	if err != nil {
		return c.failStreaming(err)
	}

	// An assistant turn that produced no deltas is still persisted as-is:
	// the user saw it, so it is never silently dropped.
	c.pool.Enqueue(worker.Job{Ref: ref, Turn: assistantTurn})

	if pending != "" {
		c.logger.Warn("stream ended with unparseable payload",
			"payload_preview", preview(pending),
		)
		c.setState(StateFailed)
		return &Error{Category: CategoryProtocolViolation}
	}

	c.setState(StateCompleted)
	return nil
}

// applyLines processes decoded lines in order and reports whether the
// terminator was seen. Lines after a terminator in the same chunk are not
// processed.
func (c *Client) applyLines(lines []string, pending *string) bool {
	for _, raw := range lines {
		if *pending != "" {
			// Restore the newline the frame decoder consumed and retry
			// the parse with the continuation attached.
			candidate := *pending + "\n" + raw
			delta, err := llm.ExtractDelta(candidate)
			if err != nil {
				*pending = candidate
				continue
			}
			*pending = ""
			c.applyDelta(delta)
			continue
		}

		line := sse.Classify(raw)
		switch line.Kind {
		case sse.LineTerminator:
			return true
		case sse.LineData:
			delta, err := llm.ExtractDelta(line.Payload)
			if err != nil {
				*pending = line.Payload
				continue
			}
			c.applyDelta(delta)
		default:
			// Comments, blanks, and unrecognized lines are ignored.
		}
	}

	return false
}

func (c *Client) applyDelta(delta string) {
	if delta == "" {
		return
	}
	if err := c.transcript.AppendDelta(delta); err != nil {
		c.logger.Error("failed to apply delta", "error", err)
	}
}

// abort finalizes the partial assistant turn without reverting it — the
// user keeps the partial answer — and enqueues a best-effort persist.
func (c *Client) abort(ref llm.ConversationRef, cause error) error {
	assistantTurn, err := c.transcript.Finalize()
	if err == nil {
		c.pool.Enqueue(worker.Job{Ref: ref, Turn: assistantTurn})
	}

	c.setState(StateAborted)
	return &Error{Category: CategoryCancelled, Err: cause}
}

// failRequesting handles errors before any byte of body was consumed.
func (c *Client) failRequesting(ctx context.Context, cause error) error {
	if discardErr := c.transcript.Discard(); discardErr != nil {
		c.logger.Error("failed to discard assistant turn", "error", discardErr)
	}

	if ctx.Err() != nil {
		c.setState(StateAborted)
		return &Error{Category: CategoryCancelled, Err: cause}
	}

	c.setState(StateFailed)
	return &Error{Category: CategoryTransportFailure, Err: cause}
}

// failStatus handles a rejected request: the opened assistant turn is
// discarded so no half-formed turn stays visible, and no assistant
// persistence happens.
func (c *Client) failStatus(category Category, status int) error {
	if err := c.transcript.Discard(); err != nil {
		c.logger.Error("failed to discard assistant turn", "error", err)
	}

	c.logger.Warn("upstream rejected chat request",
		"status", status,
		"category", category.String(),
	)

	c.setState(StateFailed)
	return &Error{Category: category, Status: status}
}

// failStreaming handles an unexpected failure mid-stream: the transcript is
// restored to its pre-stream state so no half-formed turn stays visible.
func (c *Client) failStreaming(cause error) error {
	if err := c.transcript.Discard(); err != nil {
		c.logger.Error("failed to discard assistant turn", "error", err)
	}

	c.setState(StateFailed)
	return &Error{Category: CategoryTransportFailure, Err: cause}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func preview(s string) string {
	const max = 120
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
