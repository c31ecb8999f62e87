package transport

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

// SendryTransport submits messages to a Sendry MTA through its HTTP API
type SendryTransport struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewSendryTransport creates a Sendry API transport
func NewSendryTransport(baseURL, apiKey string) *SendryTransport {
	return &SendryTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type sendryRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body,omitempty"`
}

type sendryResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type sendryError struct {
	Error string `json:"error"`
}

// APIError is a non-2xx reply from the Sendry API
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("API error (HTTP %d): %s", e.StatusCode, e.Message)
}

func (t *SendryTransport) Deliver(ctx context.Context, env Envelope) (Outcome, error) {
	req := &sendryRequest{
		From:    env.Sender,
		To:      []string{env.Recipient},
		Subject: env.Subject,
		Body:    env.Body,
	}

	var resp sendryResponse
	if err := t.request(ctx, http.MethodPost, "/api/v1/send", req, &resp); err != nil {
		var apiErr *APIError
		// 4xx means the MTA looked at the message and refused it.
		if errors.As(err, &apiErr) && apiErr.StatusCode < 500 {
			return Failed(apiErr.Error()), nil
		}
		return Outcome{}, err
	}

	return Sent(fmt.Sprintf("queued as %s (%s)", resp.ID, resp.Status)), nil
}

// request performs an HTTP request to the Sendry API
func (t *SendryTransport) request(ctx context.Context, method, path string, body any, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errResp sendryError
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil {
			apiErr.Message = errResp.Error
		}
		return apiErr
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}
