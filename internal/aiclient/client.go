// Package aiclient talks to the AI analysis service. It builds review
// requests and consumes responses that arrive either as an NDJSON event
// stream or as a single JSON document.
package aiclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rostilos/CodeCrow-sub008/consts"
	"github.com/rostilos/CodeCrow-sub008/pkg/logger"
	"github.com/rostilos/CodeCrow-sub008/pkg/telemetry"
)

const (
	acceptStreaming = "application/x-ndjson, application/json"
	acceptJSON      = "application/json"

	// maxBodySize caps how much of a response body is read
	maxBodySize = 64 << 20
	// maxLineSize caps a single NDJSON line
	maxLineSize = 16 << 20
)

// streamContentTypes mark line-delimited response bodies
var streamContentTypes = []string{"ndjson", "jsonl", "json-stream", "event-stream"}

// Config configures a Client
type Config struct {
	// Endpoint is the full URL the review request is POSTed to
	Endpoint string
	// Timeout bounds each HTTP exchange, including reading the stream
	Timeout time.Duration
	// HTTPClient overrides the default client; its Timeout is left untouched
	HTTPClient *http.Client
}

// Client invokes the AI service
type Client struct {
	endpoint string
	http     *http.Client
	log      *zap.Logger
}

// New creates a Client
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("ai endpoint is required")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = consts.DefaultAITimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{endpoint: cfg.Endpoint, http: hc, log: logger.Named("aiclient")}, nil
}

// Invoke sends req and returns the validated result. Stream events are
// forwarded to sink as they arrive; sink may be nil.
//
// When the streaming exchange fails or yields no final result, Invoke
// retries once as a plain request/response call to the same endpoint.
// A candidate that lacks comment and issues is returned as an error
// wrapping ErrMissingFields without falling back.
func (c *Client) Invoke(ctx context.Context, req Request, sink Sink) (*Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "ai.invoke",
		telemetry.WithAnalysisAttributes(req.ProjectID, req.PullRequestID, req.CommitHash, req.SourceBranch),
	)
	defer span.End()

	start := time.Now()
	metrics := telemetry.GetMetrics()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, newClientError("encode", "failed to encode request", err)
	}

	candidate, streamed, err := c.exchange(ctx, body, sink)
	fallback := false
	if err != nil || candidate == nil {
		if err == nil {
			err = ErrNoFinalEvent
		}
		c.log.Warn("Streaming exchange produced no result, falling back to plain request",
			zap.Uint(logger.FieldProjectID, req.ProjectID),
			zap.Int(logger.FieldPRNumber, req.PullRequestID),
			zap.Error(err),
		)
		metrics.RecordAIInvocation(ctx, transportName(streamed), false, time.Since(start).Seconds())

		fallbackStart := time.Now()
		candidate, err = c.plain(ctx, body)
		if err != nil {
			metrics.RecordAIInvocation(ctx, "fallback", false, time.Since(fallbackStart).Seconds())
			telemetry.SetSpanError(span, err)
			return nil, err
		}
		fallback, streamed = true, false
	}

	result, err := parseResult(candidate)
	transport := transportName(streamed)
	if fallback {
		transport = "fallback"
	}
	if err != nil {
		metrics.RecordAIInvocation(ctx, transport, false, time.Since(start).Seconds())
		telemetry.SetSpanError(span, err)
		return nil, err
	}
	result.Streamed = streamed
	result.Fallback = fallback

	metrics.RecordAIInvocation(ctx, transport, true, time.Since(start).Seconds())
	span.SetAttributes(
		telemetry.AttrAIStreamed.Bool(streamed),
		telemetry.AttrAIFallback.Bool(fallback),
		telemetry.AttrIssuesCount.Int(len(result.Issues)),
	)
	telemetry.SetSpanOK(span)

	c.log.Info("AI analysis received",
		zap.Uint(logger.FieldProjectID, req.ProjectID),
		zap.Int(logger.FieldPRNumber, req.PullRequestID),
		zap.String("transport", transport),
		zap.Int("issues", len(result.Issues)),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}

// exchange performs the stream-capable POST. It returns the final candidate
// document, or nil if none was found.
func (c *Client) exchange(ctx context.Context, body []byte, sink Sink) ([]byte, bool, error) {
	resp, err := c.post(ctx, body, acceptStreaming)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	if !isStream(resp.Header.Get("Content-Type")) {
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		if err != nil {
			return nil, false, newRetryableError("read", "failed to read response body", resp.StatusCode, err)
		}
		if !json.Valid(data) {
			return nil, false, newClientError("read", "response body is not JSON", ErrInvalidResponse)
		}
		return data, false, nil
	}

	candidate, err := c.consumeStream(ctx, resp.Body, sink)
	if err != nil && candidate == nil {
		return nil, true, err
	}
	if err != nil {
		c.log.Warn("Stream ended with an error after the final event", zap.Error(err))
	}
	return candidate, true, nil
}

// consumeStream reads events until EOF. The last final/result event wins.
func (c *Client) consumeStream(ctx context.Context, r io.Reader, sink Sink) ([]byte, error) {
	metrics := telemetry.GetMetrics()
	reader := bufio.NewReaderSize(io.LimitReader(r, maxBodySize), 64*1024)

	var candidate []byte
	for {
		line, readErr := readLine(reader)
		if len(line) > 0 {
			if ev, ok := c.decodeEvent(line); ok {
				metrics.RecordAIStreamEvent(ctx, ev.Type)
				c.deliver(sink, ev)
				if ev.IsFinal() {
					if doc := finalDocument(ev, line); doc != nil {
						candidate = doc
					}
				}
			}
		}
		if readErr == io.EOF {
			return candidate, nil
		}
		if readErr != nil {
			return candidate, newRetryableError("stream", "failed to read event stream", 0, readErr)
		}
	}
}

// readLine returns the next trimmed line. Lines longer than maxLineSize are
// an error.
func readLine(r *bufio.Reader) ([]byte, error) {
	var buf []byte
	for {
		chunk, isPrefix, err := r.ReadLine()
		buf = append(buf, chunk...)
		if len(buf) > maxLineSize {
			return nil, fmt.Errorf("event line exceeds %d bytes", maxLineSize)
		}
		if err != nil || !isPrefix {
			line := bytes.TrimSpace(buf)
			// server-sent events carry the payload after "data:"
			line = bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))
			return line, err
		}
	}
}

func (c *Client) decodeEvent(line []byte) (Event, bool) {
	var fields map[string]any
	if err := json.Unmarshal(line, &fields); err != nil {
		c.log.Debug("Skipping malformed event line", zap.ByteString("line", truncate(line, 200)), zap.Error(err))
		return Event{}, false
	}
	t, _ := fields["type"].(string)
	return Event{Type: t, Fields: fields}, true
}

// deliver forwards an event and contains sink failures
func (c *Client) deliver(sink Sink, ev Event) {
	if sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Event sink panicked", zap.String("event_type", ev.Type), zap.Any("panic", r))
		}
	}()
	sink(ev)
}

// finalDocument extracts the candidate from a final/result event. Object
// results are used as is, a string holding a JSON object is decoded, other
// values are wrapped as {"result": value}. An event without a result field
// is itself the candidate.
func finalDocument(ev Event, line []byte) []byte {
	value, ok := ev.Fields["result"]
	if !ok {
		return line
	}
	switch v := value.(type) {
	case map[string]any:
		doc, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		return doc
	case string:
		trimmed := strings.TrimSpace(v)
		if strings.HasPrefix(trimmed, "{") && json.Valid([]byte(trimmed)) {
			return []byte(trimmed)
		}
	}
	doc, err := json.Marshal(map[string]any{"result": value})
	if err != nil {
		return nil
	}
	return doc
}

// plain performs the request/response fallback call
func (c *Client) plain(ctx context.Context, body []byte) ([]byte, error) {
	resp, err := c.post(ctx, body, acceptJSON)
	if err != nil {
		var ce *ClientError
		if errors.As(err, &ce) {
			ce.Operation = "fallback"
		}
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, newRetryableError("fallback", "failed to read response body", resp.StatusCode, err)
	}
	if isStream(resp.Header.Get("Content-Type")) {
		// a server that only streams still ends with a final event
		if doc, _ := c.consumeStream(ctx, bytes.NewReader(data), nil); doc != nil {
			return doc, nil
		}
		return nil, newClientError("fallback", "stream response without a final event", ErrNoFinalEvent)
	}
	if !json.Valid(data) {
		return nil, newClientError("fallback", "response body is not JSON", ErrInvalidResponse)
	}
	return data, nil
}

func (c *Client) post(ctx context.Context, body []byte, accept string) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, newClientError("request", "failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", accept)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, newRetryableError("request", "AI service unreachable", 0, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		resp.Body.Close()
		msg := fmt.Sprintf("AI service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, newRetryableError("request", msg, resp.StatusCode, nil)
		}
		return nil, &ClientError{Operation: "request", Message: msg, StatusCode: resp.StatusCode}
	}
	return resp, nil
}

func isStream(contentType string) bool {
	ct := strings.ToLower(contentType)
	for _, marker := range streamContentTypes {
		if strings.Contains(ct, marker) {
			return true
		}
	}
	return false
}

func transportName(streamed bool) string {
	if streamed {
		return "stream"
	}
	return "json"
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
