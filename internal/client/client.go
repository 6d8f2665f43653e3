// Package client provides a Go client for the tts-server HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// API endpoints and paths.
const (
	apiTTS    = "/tts"
	apiHealth = "/health"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
	contentTypeWAV    = "audio/wav"
)

// Service status values reported by the health endpoint.
const (
	StatusLoading = "loading"
	StatusReady   = "ready"
	StatusError   = "error"
)

// Error messages.
const (
	errReceivedEmptyAudio    = "received empty audio data"
	errFmtServiceError       = "tts-server error (%s): %s"
	errFmtServiceNonOKStatus = "tts-server returned non-OK status: %s, body: %s"
	errFmtServiceNotReady    = "%w: status %q"
)

// ErrServiceNotReady indicates the server is up but the model is not usable.
var ErrServiceNotReady = errors.New("tts-server is not ready")

// ContextTurn is one prior speaker/text/audio triple conditioning synthesis.
type ContextTurn struct {
	Speaker int       `json:"speaker"`
	Text    string    `json:"text"`
	Audio   []float32 `json:"audio,omitempty"`
}

// Request defines the JSON payload for speech synthesis requests. Omitted
// optional parameters fall back to the server-side defaults.
type Request struct {
	Text             string        `json:"text"`
	Speaker          int           `json:"speaker"`
	Temperature      *float64      `json:"temperature,omitempty"`
	TopK             *int          `json:"top_k,omitempty"`
	MaxAudioLengthMS *int          `json:"max_audio_length_ms,omitempty"`
	Context          []ContextTurn `json:"context,omitempty"`
}

// errorResponse is the machine-readable error body returned by the server.
type errorResponse struct {
	Error string `json:"error"`
}

// statusResponse is the body of the health endpoint.
type statusResponse struct {
	Status string `json:"status"`
}

// Client is a client for the tts-server HTTP API.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// New creates a client for the server at baseURL, which should include the
// protocol and port (e.g., "http://localhost:3001"). The timeout applies to
// all HTTP requests made by this client.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Synthesize sends a synthesis request and returns the WAV audio bytes.
func (c *Client) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	requestBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + apiTTS

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		url,
		bytes.NewBuffer(requestBody),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, contentTypeWAV)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to send request to tts-server at %s: %w",
			c.baseURL,
			err,
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}

	if len(audioData) == 0 {
		return nil, errors.New(errReceivedEmptyAudio)
	}

	return audioData, nil
}

// Health queries the health endpoint. It returns the reported status string
// and an error when the service is reachable but not ready to synthesize.
func (c *Client) Health(ctx context.Context) (string, error) {
	url := c.baseURL + apiHealth

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf(
			"health check failed for service at %s: %w",
			c.baseURL,
			err,
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("health check failed with status: %s", resp.Status)
	}

	var status statusResponse

	decodeErr := json.NewDecoder(resp.Body).Decode(&status)
	if decodeErr != nil {
		return "", fmt.Errorf("failed to decode health response: %w", decodeErr)
	}

	if status.Status != StatusReady {
		return status.Status, fmt.Errorf(
			errFmtServiceNotReady, ErrServiceNotReady, status.Status,
		)
	}

	return status.Status, nil
}

// parseErrorResponse attempts to decode a structured JSON error from the
// server. If structured parsing fails, it falls back to returning the raw
// response body so diagnostic information is preserved.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errorResp errorResponse

	err := json.NewDecoder(resp.Body).Decode(&errorResp)
	if err == nil {
		return fmt.Errorf(errFmtServiceError, resp.Status, errorResp.Error)
	}

	// Fallback to raw response for non-JSON errors
	body, _ := io.ReadAll(resp.Body)

	return fmt.Errorf(
		errFmtServiceNonOKStatus,
		resp.Status,
		string(body),
	)
}
