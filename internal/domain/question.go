package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// QuestionType identifies the shape of a question and how its answer is encoded.
type QuestionType string

// Supported question types.
const (
	QuestionTypeSingleChoice   QuestionType = "single_choice"
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
	QuestionTypeTrueFalse      QuestionType = "true_false"
	QuestionTypeFillBlank      QuestionType = "fill_blank"
	QuestionTypeShortAnswer    QuestionType = "short_answer"
	QuestionTypeUnknown        QuestionType = "unknown"
)

// Common validation errors for Question
var (
	ErrEmptyQuestionID     = errors.New("question ID cannot be empty")
	ErrEmptyQuestionText   = errors.New("question text cannot be empty")
	ErrEmptyQuestionAnswer = errors.New("question answer cannot be empty")
	ErrInvalidQuestionType = errors.New("invalid question type")
	ErrInvalidOption       = errors.New("option letter and text cannot be empty")
)

// questionTypeAliases maps the labels a language model tends to produce,
// lowercased, to canonical types.
var questionTypeAliases = func() map[string]QuestionType {
	labels := map[QuestionType][]string{
		QuestionTypeSingleChoice:   {"single choice", "single", "单选", "单选题"},
		QuestionTypeMultipleChoice: {"multiple choice", "multiple", "多选", "多选题"},
		QuestionTypeTrueFalse:      {"true/false", "true or false", "判断", "判断题"},
		QuestionTypeFillBlank:      {"fill in the blank", "fill-in-the-blank", "填空", "填空题"},
		QuestionTypeShortAnswer:    {"short answer", "简答", "简答题"},
		QuestionTypeUnknown:        {"未知类型"},
	}
	aliases := make(map[string]QuestionType)
	for t, names := range labels {
		aliases[string(t)] = t
		for _, name := range names {
			aliases[name] = t
		}
	}
	return aliases
}()

// ParseQuestionType normalizes a free-form type label. Labels that are not
// recognized return QuestionTypeUnknown and false.
func ParseQuestionType(label string) (QuestionType, bool) {
	t, ok := questionTypeAliases[strings.ToLower(strings.TrimSpace(label))]
	if !ok {
		return QuestionTypeUnknown, false
	}
	return t, true
}

// Option is one lettered choice of a choice question.
type Option struct {
	Letter string `json:"letter"`
	Text   string `json:"text"`
}

// Question is a single quiz item. BankID is uuid.Nil when the question does
// not belong to a bank.
type Question struct {
	ID          uuid.UUID    `json:"id"`
	BankID      uuid.UUID    `json:"bank_id"`
	Type        QuestionType `json:"type"`
	Text        string       `json:"text"`
	Options     []Option     `json:"options"`
	Answer      string       `json:"answer"`
	Explanation string       `json:"explanation,omitempty"`
	Tags        []string     `json:"tags"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// NewQuestion creates a Question with a fresh ID and timestamps.
// Returns an error if validation fails.
func NewQuestion(bankID uuid.UUID, qType QuestionType, text, answer string, options []Option) (*Question, error) {
	now := time.Now().UTC()
	if options == nil {
		options = []Option{}
	}
	q := &Question{
		ID:        uuid.New(),
		BankID:    bankID,
		Type:      qType,
		Text:      strings.TrimSpace(text),
		Options:   options,
		Answer:    strings.TrimSpace(answer),
		Tags:      []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

// Validate checks if the Question has valid data.
func (q *Question) Validate() error {
	if q.ID == uuid.Nil {
		return ErrEmptyQuestionID
	}
	if strings.TrimSpace(q.Text) == "" {
		return ErrEmptyQuestionText
	}
	if strings.TrimSpace(q.Answer) == "" {
		return ErrEmptyQuestionAnswer
	}
	if !isValidQuestionType(q.Type) {
		return ErrInvalidQuestionType
	}
	for _, opt := range q.Options {
		if strings.TrimSpace(opt.Letter) == "" || strings.TrimSpace(opt.Text) == "" {
			return ErrInvalidOption
		}
	}
	return nil
}

func isValidQuestionType(t QuestionType) bool {
	switch t {
	case QuestionTypeSingleChoice, QuestionTypeMultipleChoice, QuestionTypeTrueFalse,
		QuestionTypeFillBlank, QuestionTypeShortAnswer, QuestionTypeUnknown:
		return true
	default:
		return false
	}
}
