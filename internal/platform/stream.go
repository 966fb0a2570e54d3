package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Event kinds emitted by the platform's streaming endpoints.
const (
	eventStart     = "start"
	eventChunk     = "chunk"
	eventHeartbeat = "heartbeat"
	eventComplete  = "complete"
	eventError     = "error"
)

const dataMarker = "data: "

// ErrStreamCancelled is returned by Stream when Stop is called while the
// stream is in flight. No handler is invoked for a cancelled stream.
var ErrStreamCancelled = errors.New("stream cancelled")

// ErrUnexpectedEnd is returned when the response body ends before a complete
// or error event was received.
var ErrUnexpectedEnd = errors.New("stream ended unexpectedly")

// StreamError is a server-reported failure, carried by an error event on the
// wire.
type StreamError struct {
	Code    string
	Message string
}

func (e *StreamError) Error() string {
	switch {
	case e.Code != "" && e.Message != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	case e.Message != "":
		return e.Message
	default:
		return e.Code
	}
}

// streamEvent is the wire shape of one frame. Counts and durations are
// pointers so an omitted field can be told apart from a zero value.
type streamEvent struct {
	Type           string   `json:"type"`
	Content        string   `json:"content,omitempty"`
	ChunksReceived int      `json:"chunks_received,omitempty"`
	Chunks         *int     `json:"chunks,omitempty"`
	ElapsedSeconds *float64 `json:"elapsed_seconds,omitempty"`
	MessageID      string   `json:"message_id,omitempty"`
	ErrorCode      string   `json:"error,omitempty"`
	Message        string   `json:"message,omitempty"`
}

// StreamHandlers carries the per-event callbacks for one streaming call. Any
// handler may be nil.
//
// OnStart is invoked synchronously when Stream is called, before the request
// is issued and regardless of whether the server ever emits a start event, so
// UIs keying a loading state off the callback never hang on a quiet server.
// OnChunk is invoked once per chunk event with non-empty content, in wire
// order. OnComplete and OnError are mutually exclusive and invoked at most
// once; OnError fires before Stream returns the same error.
type StreamHandlers struct {
	OnStart     func()
	OnChunk     func(content string)
	OnHeartbeat func(chunksReceived int)
	OnComplete  func(chunks int, elapsedSeconds float64)
	OnError     func(err error)
}

// StreamResult is the settled outcome of a successful stream.
type StreamResult struct {
	Chunks         int
	ElapsedSeconds float64
	MessageID      string
}

// RequestOptions shapes the streaming HTTP request. Method defaults to POST.
type RequestOptions struct {
	Method string
	Header http.Header
	Body   []byte
}

// Consumer issues a streaming request against the platform and dispatches the
// framed events it reads to caller-supplied handlers. Each call to Stream
// owns its own connection and buffer; the session counters are reset per call
// and exposed for UI binding through Active, ChunkCount and LastError.
//
// A Consumer performs no retries and enforces no timeouts: heartbeat events
// are surfaced so the caller can build its own liveness policy on top.
type Consumer struct {
	client *Client
	logger *slog.Logger

	mu         sync.Mutex
	active     bool
	terminated bool
	stopped    bool
	chunkCount int
	lastErr    error
	startedAt  time.Time
	cancel     context.CancelFunc
}

// NewConsumer creates a Consumer that resolves paths and credentials through
// the given client.
func NewConsumer(client *Client, logger *slog.Logger) *Consumer {
	return &Consumer{
		client: client,
		logger: logger.With(slog.String("module", "stream")),
	}
}

// Active reports whether a stream is currently in flight.
func (c *Consumer) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// ChunkCount returns the number of non-empty chunks seen by the current or
// most recent stream.
func (c *Consumer) ChunkCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chunkCount
}

// LastError returns the terminal error of the most recent stream, or nil.
func (c *Consumer) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Stop cancels the in-flight stream, if any. The consumer is marked inactive
// immediately and no further handler fires, even for frames already buffered;
// the pending Stream call returns ErrStreamCancelled.
func (c *Consumer) Stop() {
	c.mu.Lock()
	c.active = false
	c.terminated = true
	c.stopped = true
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Stream issues a streaming request to path, resolved against the client's
// base endpoint, and dispatches each framed event to h until a complete or
// error event settles the call. The bearer token is injected when the
// client's token provider can supply one; otherwise the request proceeds
// unauthenticated.
//
// Partial content already delivered through OnChunk is valid prefix content
// even when Stream ultimately returns an error.
func (c *Consumer) Stream(ctx context.Context, path string, opts RequestOptions, h StreamHandlers) (StreamResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	c.active = true
	c.terminated = false
	c.stopped = false
	c.chunkCount = 0
	c.lastErr = nil
	c.startedAt = time.Now()
	c.cancel = cancel
	c.mu.Unlock()

	if h.OnStart != nil {
		h.OnStart()
	}

	method := opts.Method
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, c.client.resolve(path), bytes.NewReader(opts.Body))
	if err != nil {
		return StreamResult{}, c.fail(h, fmt.Errorf("creating stream request: %w", err))
	}
	if len(opts.Body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "text/event-stream")
	for k, vs := range opts.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	c.client.authorize(ctx, req)

	resp, err := c.client.httpClient.Do(req)
	if err != nil {
		if c.isStopped() {
			return StreamResult{}, ErrStreamCancelled
		}
		return StreamResult{}, c.fail(h, fmt.Errorf("sending stream request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return StreamResult{}, c.fail(h, fmt.Errorf("stream request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	// The buffer accumulates raw bytes so a multi-byte character or frame
	// split across reads is reassembled before decoding. Newlines are
	// single-byte in UTF-8, so splitting at the byte level is safe.
	var pending []byte
	buf := make([]byte, 4096)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			for {
				nl := bytes.IndexByte(pending, '\n')
				if nl < 0 {
					break
				}
				line := string(pending[:nl])
				pending = pending[nl+1:]
				if res, done, derr := c.dispatch(line, h); done {
					return res, derr
				}
			}
		}
		if readErr != nil {
			if c.isStopped() {
				return StreamResult{}, ErrStreamCancelled
			}
			if errors.Is(readErr, io.EOF) {
				// A final frame may arrive without a trailing newline.
				if len(strings.TrimSpace(string(pending))) > 0 {
					if res, done, derr := c.dispatch(string(pending), h); done {
						return res, derr
					}
				}
				return StreamResult{}, c.fail(h, ErrUnexpectedEnd)
			}
			return StreamResult{}, c.fail(h, fmt.Errorf("reading stream: %w", readErr))
		}
	}
}

// dispatch parses one candidate frame and invokes the matching handler. It
// reports done=true when the frame settled the stream.
func (c *Consumer) dispatch(line string, h StreamHandlers) (StreamResult, bool, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, dataMarker) {
		return StreamResult{}, false, nil
	}

	var ev streamEvent
	if err := json.Unmarshal([]byte(strings.TrimPrefix(line, dataMarker)), &ev); err != nil {
		// One bad frame must not kill a long-running generation.
		c.logger.Warn("Skipping malformed stream frame",
			slog.String("frame", line),
			slog.String("err", err.Error()))
		return StreamResult{}, false, nil
	}

	c.mu.Lock()
	if c.terminated {
		c.mu.Unlock()
		return StreamResult{}, false, nil
	}

	switch ev.Type {
	case eventStart:
		// Informational only; OnStart already fired at call time.
		c.mu.Unlock()

	case eventChunk:
		if ev.Content == "" {
			c.mu.Unlock()
			return StreamResult{}, false, nil
		}
		c.chunkCount++
		c.mu.Unlock()
		if h.OnChunk != nil {
			h.OnChunk(ev.Content)
		}

	case eventHeartbeat:
		c.mu.Unlock()
		if h.OnHeartbeat != nil {
			h.OnHeartbeat(ev.ChunksReceived)
		}

	case eventComplete:
		c.terminated = true
		c.active = false
		res := StreamResult{
			Chunks:         c.chunkCount,
			ElapsedSeconds: time.Since(c.startedAt).Seconds(),
			MessageID:      ev.MessageID,
		}
		c.mu.Unlock()
		if ev.Chunks != nil {
			res.Chunks = *ev.Chunks
		}
		if ev.ElapsedSeconds != nil {
			res.ElapsedSeconds = *ev.ElapsedSeconds
		}
		if h.OnComplete != nil {
			h.OnComplete(res.Chunks, res.ElapsedSeconds)
		}
		return res, true, nil

	case eventError:
		c.mu.Unlock()
		err := c.fail(h, &StreamError{Code: ev.ErrorCode, Message: ev.Message})
		return StreamResult{}, true, err

	default:
		c.mu.Unlock()
		c.logger.Warn("Ignoring unknown stream event kind", slog.String("kind", ev.Type))
	}

	return StreamResult{}, false, nil
}

// fail settles the stream on the error path, invoking OnError exactly once
// before returning err. A stream that already terminated is left untouched.
func (c *Consumer) fail(h StreamHandlers, err error) error {
	c.mu.Lock()
	if c.terminated {
		c.mu.Unlock()
		return err
	}
	c.terminated = true
	c.active = false
	c.lastErr = err
	c.mu.Unlock()

	if h.OnError != nil {
		h.OnError(err)
	}
	return err
}

func (c *Consumer) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}
