package autofill

import (
	"time"

	"github.com/google/uuid"

	"github.com/yanqian/formfiller/internal/domain/form"
	"github.com/yanqian/formfiller/pkg/metrics"
)

// RunStatus tracks the lifecycle of a fill run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// AnswerStatus is the outcome for a single question.
type AnswerStatus string

const (
	AnswerAnswered AnswerStatus = metrics.StatusAnswered
	AnswerSkipped  AnswerStatus = metrics.StatusSkipped
	AnswerFailed   AnswerStatus = metrics.StatusFailed
	AnswerRejected AnswerStatus = metrics.StatusRejected
)

// Request asks for one form to be filled. Submit nil falls back to the
// configured default; RunID is set when the run was created by Enqueue.
type Request struct {
	URL      string    `json:"url"`
	Provider string    `json:"provider,omitempty"`
	Model    string    `json:"model,omitempty"`
	Submit   *bool     `json:"submit,omitempty"`
	RunID    uuid.UUID `json:"-"`
}

// Run is the persisted summary of a fill.
type Run struct {
	ID           uuid.UUID          `json:"id"`
	URL          string             `json:"url"`
	Title        string             `json:"title,omitempty"`
	Provider     string             `json:"provider"`
	Model        string             `json:"model"`
	Status       RunStatus          `json:"status"`
	Submit       bool               `json:"submit"`
	Submitted    bool               `json:"submitted"`
	SubmitStatus int                `json:"submitStatus,omitempty"`
	Questions    int                `json:"questions"`
	Answered     int                `json:"answered"`
	Error        string             `json:"error,omitempty"`
	Usage        metrics.TokenUsage `json:"usage"`
	CreatedAt    time.Time          `json:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt"`
	FinishedAt   *time.Time         `json:"finishedAt,omitempty"`
}

// AnswerRecord logs what happened to one question of a run.
type AnswerRecord struct {
	RunID     uuid.UUID         `json:"runId"`
	Position  int               `json:"position"`
	EntryID   string            `json:"entryId"`
	Question  string            `json:"question"`
	Type      form.QuestionType `json:"type"`
	Raw       string            `json:"raw,omitempty"`
	Answer    string            `json:"answer,omitempty"`
	Status    AnswerStatus      `json:"status"`
	Detail    string            `json:"detail,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Report is the full result of a synchronous fill.
type Report struct {
	Run     Run            `json:"run"`
	Action  string         `json:"action"`
	Fields  []form.Field   `json:"fields"`
	Answers []AnswerRecord `json:"answers"`
}

// RunDetails pairs a stored run with its answer log.
type RunDetails struct {
	Run     Run            `json:"run"`
	Answers []AnswerRecord `json:"answers"`
}

// Job is the queued form of a Request.
type Job struct {
	RunID   uuid.UUID `json:"runId"`
	Request Request   `json:"request"`
}
