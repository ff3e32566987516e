package importer

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/quizgen/quizgen-api/internal/domain"
)

// MaxTaskErrors bounds the error messages kept per task.
const MaxTaskErrors = 100

// StatusErrorLimit is how many errors the status view returns.
const StatusErrorLimit = 10

// TaskStatus is the state of an import task.
type TaskStatus string

// Task states. processing is the only non-terminal state.
const (
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Mode selects whether the destination bank is wiped first.
type Mode string

// Import modes.
const (
	ModeAdd     Mode = "add"
	ModeReplace Mode = "replace"
)

// ErrInvalidMode is returned for a mode other than add or replace.
var ErrInvalidMode = errors.New("import mode must be add or replace")

// ParseMode validates a mode string. Empty means add.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeAdd:
		return ModeAdd, nil
	case ModeReplace:
		return ModeReplace, nil
	default:
		return "", ErrInvalidMode
	}
}

// ImportTask is one run of the import pipeline.
//
// ProcessedChunks always equals SuccessfulChunks + FailedChunks and never
// exceeds TotalChunks. EndedAt is set exactly once, on the transition to a
// terminal status.
type ImportTask struct {
	ID                uuid.UUID          `json:"id"`
	Status            TaskStatus         `json:"status"`
	Mode              Mode               `json:"mode"`
	BankID            uuid.UUID          `json:"bank_id"`
	TotalChunks       int                `json:"total_chunks"`
	ProcessedChunks   int                `json:"processed_chunks"`
	SuccessfulChunks  int                `json:"successful_chunks"`
	FailedChunks      int                `json:"failed_chunks"`
	ImportedQuestions []*domain.Question `json:"imported_questions"`
	Errors            []string           `json:"errors"`
	Error             string             `json:"error,omitempty"`
	StartedAt         time.Time          `json:"started_at"`
	EndedAt           *time.Time         `json:"ended_at,omitempty"`
}

// NewImportTask creates a task in the processing state.
func NewImportTask(mode Mode, bankID uuid.UUID, now time.Time) *ImportTask {
	return &ImportTask{
		ID:                uuid.New(),
		Status:            TaskStatusProcessing,
		Mode:              mode,
		BankID:            bankID,
		ImportedQuestions: []*domain.Question{},
		Errors:            []string{},
		StartedAt:         now,
	}
}

// Clone returns a copy that shares no mutable state with t. Questions are
// never modified after creation, so the pointers are shared.
func (t *ImportTask) Clone() *ImportTask {
	c := *t
	c.ImportedQuestions = append([]*domain.Question(nil), t.ImportedQuestions...)
	c.Errors = append([]string(nil), t.Errors...)
	if t.EndedAt != nil {
		ended := *t.EndedAt
		c.EndedAt = &ended
	}
	return &c
}

// SetTotal records the chunk count. It has no effect once chunks have been
// processed or the task is terminal.
func (t *ImportTask) SetTotal(n int) {
	if t.Status.Terminal() || t.ProcessedChunks > 0 {
		return
	}
	t.TotalChunks = n
}

// RecordSuccess counts a parsed chunk and appends what it persisted.
func (t *ImportTask) RecordSuccess(imported []*domain.Question) {
	if t.Status.Terminal() || t.ProcessedChunks >= t.TotalChunks {
		return
	}
	t.ProcessedChunks++
	t.SuccessfulChunks++
	t.ImportedQuestions = append(t.ImportedQuestions, imported...)
}

// RecordFailure counts a failed chunk and keeps its message while there is room.
func (t *ImportTask) RecordFailure(msg string) {
	if t.Status.Terminal() || t.ProcessedChunks >= t.TotalChunks {
		return
	}
	t.ProcessedChunks++
	t.FailedChunks++
	t.addError(msg)
}

func (t *ImportTask) addError(msg string) {
	if len(t.Errors) < MaxTaskErrors {
		t.Errors = append(t.Errors, msg)
	}
}

// Complete moves the task to completed. It only applies once every chunk
// has been processed.
func (t *ImportTask) Complete(now time.Time) bool {
	if t.Status.Terminal() || t.ProcessedChunks != t.TotalChunks {
		return false
	}
	t.Status = TaskStatusCompleted
	t.EndedAt = &now
	return true
}

// Fail moves the task to failed with a top-level error.
func (t *ImportTask) Fail(msg string, now time.Time) bool {
	if t.Status.Terminal() {
		return false
	}
	t.Status = TaskStatusFailed
	t.Error = msg
	t.EndedAt = &now
	return true
}

// Percentage is processed chunks over total, 0 to 100.
func (t *ImportTask) Percentage() float64 {
	if t.TotalChunks == 0 {
		if t.Status.Terminal() {
			return 100
		}
		return 0
	}
	return float64(t.ProcessedChunks) / float64(t.TotalChunks) * 100
}

// Duration is the elapsed time, frozen at EndedAt once terminal.
func (t *ImportTask) Duration(now time.Time) time.Duration {
	end := now
	if t.EndedAt != nil {
		end = *t.EndedAt
	}
	return end.Sub(t.StartedAt)
}

// VisibleErrors returns the first StatusErrorLimit errors.
func (t *ImportTask) VisibleErrors() []string {
	if len(t.Errors) <= StatusErrorLimit {
		return t.Errors
	}
	return t.Errors[:StatusErrorLimit]
}

// expiredAt reports whether a terminal task has outlived retention.
func (t *ImportTask) expiredAt(now time.Time, retention time.Duration) bool {
	return t.EndedAt != nil && now.Sub(*t.EndedAt) > retention
}
