package scheduler

import (
	"context"

	"github.com/quizgen/quizgen-api/internal/generation"
)

// Transport performs one provider call with the given credential.
//
// Implementations return a *generation.ProviderError for non-2xx answers,
// wrap generation.ErrInvalidResponse for 2xx answers they cannot read, and
// return any other error for timeouts and network failures.
//
// Version: 1.0
type Transport interface {
	Complete(ctx context.Context, cred Credential, req generation.ChatRequest) (*generation.ChatResponse, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, cred Credential, req generation.ChatRequest) (*generation.ChatResponse, error)

// Complete calls f.
func (f TransportFunc) Complete(
	ctx context.Context,
	cred Credential,
	req generation.ChatRequest,
) (*generation.ChatResponse, error) {
	return f(ctx, cred, req)
}
