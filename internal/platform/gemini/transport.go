package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/quizgen/quizgen-api/internal/generation"
	"github.com/quizgen/quizgen-api/internal/scheduler"
)

// Transport sends chat requests to Gemini. Clients are created lazily per
// API key and endpoint and reused.
type Transport struct {
	logger  *slog.Logger
	baseURL string

	mu      sync.Mutex
	clients map[clientKey]*genai.Client
}

type clientKey struct {
	apiKey  string
	baseURL string
}

// NewTransport creates a Transport. baseURL overrides the Gemini endpoint for
// every credential that does not set its own; empty uses the SDK default.
func NewTransport(logger *slog.Logger, baseURL string) (*Transport, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &Transport{
		logger:  logger.With("component", "gemini_transport"),
		baseURL: baseURL,
		clients: make(map[clientKey]*genai.Client),
	}, nil
}

func (t *Transport) client(ctx context.Context, cred scheduler.Credential) (*genai.Client, error) {
	key := clientKey{apiKey: cred.Key, baseURL: t.baseURL}
	if cred.Endpoint != "" {
		key.baseURL = cred.Endpoint
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.clients[key]; ok {
		return c, nil
	}

	cc := &genai.ClientConfig{
		APIKey:  key.apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if key.baseURL != "" {
		cc.HTTPOptions.BaseURL = key.baseURL
	}

	c, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", generation.ErrInvalidConfig, err)
	}
	t.clients[key] = c
	return c, nil
}

// Complete implements scheduler.Transport.
func (t *Transport) Complete(
	ctx context.Context,
	cred scheduler.Credential,
	req generation.ChatRequest,
) (*generation.ChatResponse, error) {
	if cred.Key == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}

	client, err := t.client(ctx, cred)
	if err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = cred.Model
	}
	contents, cfg := toGemini(req)

	resp, err := client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return nil, &generation.ProviderError{StatusCode: apiErr.Code, Message: apiErr.Message}
		}
		return nil, err
	}

	out, err := fromGemini(resp)
	if err != nil {
		t.logger.WarnContext(ctx, "unusable Gemini response", "model", model, "error", err)
		return nil, err
	}
	out.Model = model
	return out, nil
}

// toGemini translates an openai-style chat request.
func toGemini(req generation.ChatRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	temperature := float32(req.Temperature)
	cfg := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(req.MaxTokens),
	}

	var system []string
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case generation.RoleSystem:
			system = append(system, m.Content)
		case generation.RoleAssistant:
			contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: m.Content}}})
		default:
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{{Text: m.Content}}})
		}
	}
	if len(system) > 0 {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: strings.Join(system, "\n\n")}}}
	}
	return contents, cfg
}

// fromGemini converts the first candidate to a ChatResponse.
func fromGemini(resp *genai.GenerateContentResponse) (*generation.ChatResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no content generated", generation.ErrInvalidResponse)
	}
	cand := resp.Candidates[0]
	if cand.FinishReason == genai.FinishReasonSafety {
		return nil, fmt.Errorf("%w: finish reason %s", generation.ErrContentBlocked, cand.FinishReason)
	}
	if cand.Content == nil {
		return nil, fmt.Errorf("%w: empty content in response", generation.ErrInvalidResponse)
	}

	var text strings.Builder
	for _, part := range cand.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		text.WriteString(part.Text)
	}

	out := &generation.ChatResponse{
		ID: resp.ResponseID,
		Choices: []generation.Choice{{
			Message:      generation.Message{Role: generation.RoleAssistant, Content: text.String()},
			FinishReason: strings.ToLower(string(cand.FinishReason)),
		}},
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = &generation.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}
