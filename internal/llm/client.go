package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrStatus is wrapped by errors for non-2xx responses.
var ErrStatus = errors.New("llm endpoint returned an error status")

// Fallback is what the assistant says when the endpoint cannot be reached.
const Fallback = "I'm sorry, I encountered an error. Please try again!"

// StatusError is a non-2xx answer from the endpoint. It matches ErrStatus.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v: status=%d body=%s", ErrStatus, e.Code, e.Body)
}

func (e *StatusError) Is(target error) bool { return target == ErrStatus }

// FailureReply is the text shown in place of a reply when Invoke fails. An
// error status is surfaced with its body; anything else gets Fallback.
func FailureReply(err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		return fmt.Sprintf("Server error (%d): %s", se.Code, se.Body)
	}
	return Fallback
}

// Client posts a prompt to the language-model endpoint and returns its
// reply. It never retries.
type Client struct {
	endpoint string
	httpc    *http.Client
}

func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{endpoint: endpoint, httpc: &http.Client{Timeout: timeout}}
}

func (c *Client) Endpoint() string { return c.endpoint }

type invokeRequest struct {
	Prompt string `json:"prompt"`
}

type invokeResponse struct {
	Reply string `json:"reply"`
	Error string `json:"error,omitempty"`
}

// Invoke sends prompt and returns the reply text.
func (c *Client) Invoke(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	reply, err := c.invoke(ctx, prompt)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metricRequests.WithLabelValues(outcome).Inc()
	metricLatencyMS.Observe(float64(time.Since(start).Milliseconds()))
	return reply, err
}

func (c *Client) invoke(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(invokeRequest{Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("invoke llm: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	var out invokeResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return "", fmt.Errorf("decode reply: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrStatus, out.Error)
	}
	return out.Reply, nil
}

// Prompt wraps a viewer message in the assistant instructions.
func Prompt(message string) string {
	return "You are ChatGPT, a large language model by OpenAI. You are having a friendly and helpful " +
		"conversation with a user who is watching a YouTube video. Keep your responses concise and " +
		"engaging. User's message: \"" + message + "\""
}
