package importer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/quizgen/quizgen-api/internal/domain"
	"github.com/quizgen/quizgen-api/internal/generation"
)

// Chunk parse errors.
var (
	ErrUnparseable   = errors.New("response is not a JSON array of questions")
	ErrNoCandidates  = errors.New("response contained no questions")
	errEmptyResponse = errors.New("empty response")
)

// flexAnswer accepts the answer shapes models produce: a string, a bool,
// a number, or an array of letters. Ids use it too, since models often
// number questions instead of giving a UUID.
type flexAnswer string

func (a *flexAnswer) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = flexAnswer(s)
	case '[':
		var parts []flexAnswer
		if err := json.Unmarshal(data, &parts); err != nil {
			return err
		}
		strs := make([]string, len(parts))
		for i, p := range parts {
			strs[i] = string(p)
		}
		*a = flexAnswer(strings.Join(strs, ","))
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*a = flexAnswer(strconv.FormatBool(b))
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*a = flexAnswer(n.String())
	}
	return nil
}

type candidateOption struct {
	Letter string `json:"letter" validate:"required"`
	Text   string `json:"text" validate:"required"`
}

// UnmarshalJSON also accepts the flattened "A. text" form.
func (o *candidateOption) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		letter, text, ok := strings.Cut(s, ".")
		if !ok || len([]rune(strings.TrimSpace(letter))) != 1 {
			letter, text = "", s
		}
		o.Letter, o.Text = strings.TrimSpace(letter), strings.TrimSpace(text)
		return nil
	}
	type plain candidateOption
	return json.Unmarshal(data, (*plain)(o))
}

// candidate is one question as generated by the model.
type candidate struct {
	ID          flexAnswer        `json:"id"`
	Type        string            `json:"type" validate:"required"`
	Text        string            `json:"text" validate:"required"`
	Options     []candidateOption `json:"options" validate:"dive"`
	Answer      flexAnswer        `json:"answer" validate:"required"`
	Explanation string            `json:"explanation"`
	Tags        []string          `json:"tags"`
}

var candidateValidator = validator.New()

// parseCandidates turns model output into question candidates. A response
// that is not a JSON array, or an empty array, fails the chunk.
func parseCandidates(content string) ([]candidate, error) {
	if strings.TrimSpace(content) == "" {
		return nil, errEmptyResponse
	}
	raw, err := generation.ExtractJSON(content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	var cands []candidate
	if err := json.Unmarshal([]byte(raw), &cands); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	if len(cands) == 0 {
		return nil, ErrNoCandidates
	}
	return cands, nil
}

// toQuestion validates a candidate and builds the question to persist.
// Candidates without text, type or answer are rejected.
func (c candidate) toQuestion(bankID uuid.UUID, now time.Time) (*domain.Question, error) {
	c.Text = strings.TrimSpace(c.Text)
	c.Answer = flexAnswer(strings.TrimSpace(string(c.Answer)))
	if err := candidateValidator.Struct(c); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	// Only a well-formed UUID is kept; anything else gets a fresh id.
	id, err := uuid.Parse(strings.TrimSpace(string(c.ID)))
	if err != nil || id == uuid.Nil {
		id = uuid.New()
	}
	qType, _ := domain.ParseQuestionType(c.Type)

	options := make([]domain.Option, 0, len(c.Options))
	for _, o := range c.Options {
		options = append(options, domain.Option{
			Letter: strings.TrimSpace(o.Letter),
			Text:   strings.TrimSpace(o.Text),
		})
	}
	tags := c.Tags
	if tags == nil {
		tags = []string{}
	}

	q := &domain.Question{
		ID:          id,
		BankID:      bankID,
		Type:        qType,
		Text:        c.Text,
		Options:     options,
		Answer:      string(c.Answer),
		Explanation: strings.TrimSpace(c.Explanation),
		Tags:        tags,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}
