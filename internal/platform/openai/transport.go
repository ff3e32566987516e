// Package openai implements scheduler.Transport for openai-compatible chat
// completion endpoints.
package openai

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

	"github.com/quizgen/quizgen-api/internal/generation"
	"github.com/quizgen/quizgen-api/internal/scheduler"
)

// maxErrorBody bounds how much of a failed response is kept in the error.
const maxErrorBody = 4 << 10

// Transport posts chat requests with bearer authentication.
type Transport struct {
	client *http.Client
	logger *slog.Logger
}

// NewTransport creates a Transport. A nil client uses a dedicated
// http.Client; per-attempt deadlines come from the request context.
func NewTransport(client *http.Client, logger *slog.Logger) (*Transport, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Transport{client: client, logger: logger.With("component", "openai_transport")}, nil
}

// Complete implements scheduler.Transport.
func (t *Transport) Complete(
	ctx context.Context,
	cred scheduler.Credential,
	req generation.ChatRequest,
) (*generation.ChatResponse, error) {
	if cred.Endpoint == "" {
		return nil, fmt.Errorf("%w: credential %q has no endpoint", generation.ErrInvalidConfig, cred.Name)
	}
	req.Stream = false

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, cred.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to build request: %v", generation.ErrInvalidConfig, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+cred.Key)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat completion request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		t.logger.WarnContext(ctx, "provider returned error status",
			"credential", cred.Name,
			"status", resp.StatusCode)
		return nil, &generation.ProviderError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(msg),
		}
	}

	var out generation.ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", generation.ErrInvalidResponse, err)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("%w: response has no choices", generation.ErrInvalidResponse)
	}
	return &out, nil
}

// errorMessage extracts error.message from an openai-style error body and
// falls back to the raw text.
func errorMessage(body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return strings.TrimSpace(string(body))
}
