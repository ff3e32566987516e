package api

import (
	"time"

	"github.com/quizgen/quizgen-api/internal/importer"
	"github.com/quizgen/quizgen-api/internal/scheduler"
)

// ImportRequest is the body of POST /api/questions/import/ai.
type ImportRequest struct {
	Content string `json:"content" validate:"required"`
	// Mode is "add" (default) or "replace".
	Mode string `json:"mode" validate:"omitempty,oneof=add replace"`
	// BankID scopes the import; empty means unbanked questions.
	BankID string `json:"bank_id" validate:"omitempty,uuid"`
}

// ImportAcceptedResponse is returned when an import task starts.
type ImportAcceptedResponse struct {
	TaskID string `json:"task_id"`
	Mode   string `json:"mode"`
}

// ImportProgress summarizes chunk counters.
type ImportProgress struct {
	Total      int     `json:"total"`
	Processed  int     `json:"processed"`
	Successful int     `json:"successful"`
	Failed     int     `json:"failed"`
	Percentage float64 `json:"percentage"`
}

// ImportStatusResponse is the status view of an import task.
type ImportStatusResponse struct {
	TaskID          string         `json:"task_id"`
	Status          string         `json:"status"`
	Mode            string         `json:"mode"`
	Progress        ImportProgress `json:"progress"`
	ImportedCount   int            `json:"imported_count"`
	Errors          []string       `json:"errors"`
	Error           string         `json:"error,omitempty"`
	DurationSeconds float64        `json:"duration_seconds"`
}

func importStatusToResponse(t *importer.ImportTask, now time.Time) ImportStatusResponse {
	errs := t.VisibleErrors()
	if errs == nil {
		errs = []string{}
	}
	return ImportStatusResponse{
		TaskID: t.ID.String(),
		Status: string(t.Status),
		Mode:   string(t.Mode),
		Progress: ImportProgress{
			Total:      t.TotalChunks,
			Processed:  t.ProcessedChunks,
			Successful: t.SuccessfulChunks,
			Failed:     t.FailedChunks,
			Percentage: t.Percentage(),
		},
		ImportedCount:   len(t.ImportedQuestions),
		Errors:          errs,
		Error:           t.Error,
		DurationSeconds: t.Duration(now).Seconds(),
	}
}

// ExplanationAcceptedResponse is returned when explanation generation is queued.
type ExplanationAcceptedResponse struct {
	QuestionID string `json:"question_id"`
	RequestID  string `json:"request_id"`
}

// ExplanationResponse is a stored explanation.
type ExplanationResponse struct {
	QuestionID      string    `json:"question_id"`
	Content         string    `json:"content"`
	CredentialIndex int       `json:"credential_index"`
	GeneratedAt     time.Time `json:"generated_at"`
}

// CredentialRequest is the body for adding or updating a credential. On
// update an empty Key keeps the stored key.
type CredentialRequest struct {
	Name      string `json:"name" validate:"required"`
	Key       string `json:"key"`
	Endpoint  string `json:"endpoint" validate:"omitempty,url"`
	Model     string `json:"model" validate:"required"`
	MaxTokens int    `json:"max_tokens" validate:"gte=0"`
	Provider  string `json:"provider" validate:"omitempty,oneof=openai gemini"`
}

func (c CredentialRequest) toCredential() scheduler.Credential {
	return scheduler.Credential{
		Name:      c.Name,
		Key:       c.Key,
		Endpoint:  c.Endpoint,
		Model:     c.Model,
		MaxTokens: c.MaxTokens,
		Provider:  scheduler.Provider(c.Provider),
	}
}

// CredentialResponse is a credential with its key masked.
type CredentialResponse struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	Key       string `json:"key"`
	Endpoint  string `json:"endpoint,omitempty"`
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	Provider  string `json:"provider"`
	Usable    bool   `json:"usable"`
}

func credentialToResponse(index int, c scheduler.Credential) CredentialResponse {
	m := c.Masked()
	return CredentialResponse{
		Index:     index,
		Name:      m.Name,
		Key:       m.Key,
		Endpoint:  m.Endpoint,
		Model:     m.Model,
		MaxTokens: m.MaxTokens,
		Provider:  string(m.Provider),
		Usable:    c.Usable(),
	}
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status      string          `json:"status"`
	Scheduler   scheduler.Stats `json:"scheduler"`
	Credentials int             `json:"credentials"`
}
