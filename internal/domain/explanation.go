package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrEmptyExplanation is returned when generated explanation text is blank.
var ErrEmptyExplanation = errors.New("explanation content cannot be empty")

// Explanation is a generated walkthrough of one question. There is at most one
// per question; regenerating replaces it.
type Explanation struct {
	QuestionID uuid.UUID `json:"question_id"`
	Content    string    `json:"content"`
	// CredentialIndex records which configured credential produced it.
	CredentialIndex int       `json:"credential_index"`
	GeneratedAt     time.Time `json:"generated_at"`
}

// NewExplanation validates and builds an Explanation stamped with the current time.
func NewExplanation(questionID uuid.UUID, content string, credentialIndex int) (*Explanation, error) {
	if questionID == uuid.Nil {
		return nil, ErrEmptyQuestionID
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyExplanation
	}
	return &Explanation{
		QuestionID:      questionID,
		Content:         content,
		CredentialIndex: credentialIndex,
		GeneratedAt:     time.Now().UTC(),
	}, nil
}
