package generation_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/quizgen/quizgen-api/internal/domain"
	"github.com/quizgen/quizgen-api/internal/generation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "plain", input: ` [{"a":1}] `, want: `[{"a":1}]`},
		{name: "json fence", input: "Here you go:\n```json\n[{\"a\":1}]\n```\nEnjoy", want: `[{"a":1}]`},
		{name: "bare fence", input: "```\n[1,2]\n```", want: `[1,2]`},
		{name: "unterminated fence", input: "```json\n[1,2]", want: `[1,2]`},
		{name: "json fence wins over earlier bare fence", input: "```\nnote\n```\n```json\n[3]\n```", want: `[3]`},
		{name: "empty", input: "   ", wantErr: generation.ErrNoJSON},
		{name: "empty fence", input: "```json\n```", wantErr: generation.ErrNoJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := generation.ExtractJSON(tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProviderError(t *testing.T) {
	t.Parallel()

	err := error(&generation.ProviderError{StatusCode: 429, Message: "slow down"})
	assert.Equal(t, "provider returned status 429: slow down", err.Error())
	assert.True(t, generation.IsProviderError(err))

	wrapped := errors.Join(errors.New("attempt 1"), err)
	assert.True(t, generation.IsProviderError(wrapped))
	assert.False(t, generation.IsProviderError(errors.New("dial tcp: refused")))
	assert.Equal(t, "provider returned status 500", (&generation.ProviderError{StatusCode: 500}).Error())
}

func TestChatResponseContent(t *testing.T) {
	t.Parallel()

	var nilResp *generation.ChatResponse
	assert.Empty(t, nilResp.Content())
	assert.Empty(t, (&generation.ChatResponse{}).Content())

	resp := &generation.ChatResponse{Choices: []generation.Choice{
		{Message: generation.Message{Role: generation.RoleAssistant, Content: "first"}},
		{Message: generation.Message{Role: generation.RoleAssistant, Content: "second"}},
	}}
	assert.Equal(t, "first", resp.Content())
}

func TestImportRequest(t *testing.T) {
	t.Parallel()

	req, err := generation.ImportRequest("1. 单选题 What is 2+2?")
	require.NoError(t, err)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, generation.RoleSystem, req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, "JSON array")
	assert.Equal(t, generation.RoleUser, req.Messages[1].Role)
	assert.Contains(t, req.Messages[1].Content, "What is 2+2?")
	assert.Equal(t, generation.DefaultTemperature, req.Temperature)
	assert.False(t, req.Stream)

	_, err = generation.ImportRequest("")
	assert.ErrorIs(t, err, domain.ErrEmptyContent)
}

func TestExplanationRequest(t *testing.T) {
	t.Parallel()

	q, err := domain.NewQuestion(uuid.Nil, domain.QuestionTypeSingleChoice, "Capital of France?", "B",
		[]domain.Option{{Letter: "A", Text: "Lyon"}, {Letter: "B", Text: "Paris"}})
	require.NoError(t, err)

	req, err := generation.ExplanationRequest(q)
	require.NoError(t, err)
	require.Len(t, req.Messages, 2)
	user := req.Messages[1].Content
	assert.Contains(t, user, "Type: single_choice")
	assert.Contains(t, user, "Question: Capital of France?")
	assert.Contains(t, user, "B. Paris")
	assert.Contains(t, user, "Correct answer: B")

	_, err = generation.ExplanationRequest(nil)
	assert.ErrorIs(t, err, domain.ErrEmptyContent)
}
