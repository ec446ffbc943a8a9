// Package llm talks to an Ollama-compatible inference service and turns its
// text output into JSON.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/okian/rcagrade/pkg/logger"
	"github.com/okian/rcagrade/pkg/metrics"
)

// Defaults for a local Ollama install.
const (
	DefaultModel       = "llama3.1:8b"
	DefaultHost        = "http://localhost:11434"
	DefaultTemperature = 0.2
	DefaultTimeout     = 180 * time.Second

	generatePath = "/api/generate"
	maxErrorBody = 4 << 10
)

// Client issues non-streaming generate requests. It is safe for concurrent use.
type Client struct {
	model      string
	host       string
	httpClient *http.Client
	logger     logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithModel sets the model name sent with every request.
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithHost sets the base URL of the inference service.
func WithHost(host string) Option {
	return func(c *Client) {
		if host != "" {
			c.host = strings.TrimRight(host, "/")
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Client.
func New(opts ...Option) *Client {
	c := &Client{
		model:      DefaultModel,
		host:       DefaultHost,
		httpClient: &http.Client{},
		logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Host returns the configured base URL.
func (c *Client) Host() string { return c.host }

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Response *string `json:"response"`
}

// GenerateJSON sends prompt to the model and returns its output parsed as
// JSON. A timeout of zero or less leaves the deadline to ctx. Failures are
// *TransportError or *MalformedResponseError and are never retried here.
func (c *Client) GenerateJSON(ctx context.Context, prompt string, temperature float64, timeout time.Duration) (json.RawMessage, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	body, err := json.Marshal(generateRequest{
		Model:   c.model,
		Prompt:  prompt,
		Stream:  false,
		Options: generateOptions{Temperature: temperature},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal generate request: %w", err)
	}
	metrics.RecordPromptSize(len(prompt))

	url := c.host + generatePath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Op: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug(ctx, "sending generate request",
		logger.String("model", c.model),
		logger.String("url", url),
		logger.Int("prompt_bytes", len(prompt)),
		logger.Float64("temperature", temperature),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordError("llm", "transport")
		return nil, &TransportError{Op: "POST " + generatePath, Timeout: isTimeout(ctx, err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		metrics.RecordError("llm", "status")
		return nil, &TransportError{
			Op:         "POST " + generatePath,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", strings.TrimSpace(string(snippet))),
		}
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RecordError("llm", "transport")
		return nil, &TransportError{Op: "read response", Timeout: isTimeout(ctx, err), Err: err}
	}

	var envelope generateResponse
	if err := json.Unmarshal(payload, &envelope); err != nil {
		metrics.RecordError("llm", "envelope")
		return nil, &MalformedResponseError{Raw: string(payload), Err: fmt.Errorf("decode envelope: %w", err)}
	}
	if envelope.Response == nil {
		metrics.RecordError("llm", "envelope")
		return nil, &MalformedResponseError{Raw: string(payload), Err: errors.New("envelope has no response field")}
	}

	raw, fallback, err := ExtractJSON(*envelope.Response)
	if fallback {
		metrics.RecordFallbackExtraction()
	}
	if err != nil {
		metrics.RecordError("llm", "malformed")
		c.logger.Warn(ctx, "model output is not JSON",
			logger.String("model", c.model),
			logger.Int("raw_bytes", len(*envelope.Response)),
		)
		return nil, err
	}
	if fallback {
		c.logger.Warn(ctx, "recovered JSON from surrounding text",
			logger.String("model", c.model),
			logger.Int("raw_bytes", len(*envelope.Response)),
		)
	}
	return raw, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
