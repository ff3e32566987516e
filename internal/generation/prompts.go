package generation

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"

	"github.com/quizgen/quizgen-api/internal/domain"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// render executes the named embedded template.
func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to execute prompt template %s: %w", name, err)
	}
	return buf.String(), nil
}

// ImportRequest builds the chat request that asks the model to turn one chunk
// of question bank text into a JSON array of questions.
func ImportRequest(chunk string) (ChatRequest, error) {
	if chunk == "" {
		return ChatRequest{}, domain.ErrEmptyContent
	}
	system, err := render("import.tmpl", nil)
	if err != nil {
		return ChatRequest{}, err
	}
	user, err := render("import_user.tmpl", struct{ Chunk string }{chunk})
	if err != nil {
		return ChatRequest{}, err
	}
	return NewChatRequest(system, user), nil
}

// ExplanationRequest builds the chat request that asks for an explanation of q.
func ExplanationRequest(q *domain.Question) (ChatRequest, error) {
	if q == nil {
		return ChatRequest{}, domain.ErrEmptyContent
	}
	system, err := render("explanation.tmpl", nil)
	if err != nil {
		return ChatRequest{}, err
	}
	user, err := render("explanation_user.tmpl", q)
	if err != nil {
		return ChatRequest{}, err
	}
	return NewChatRequest(system, user), nil
}
