package autofill

import (
	"context"

	"github.com/google/uuid"

	"github.com/yanqian/formfiller/internal/domain/form"
	"github.com/yanqian/formfiller/internal/domain/llm"
	"github.com/yanqian/formfiller/internal/domain/qacache"
)

// FormClient fetches, parses and submits forms.
type FormClient interface {
	Parse(ctx context.Context, url string) (form.Form, error)
	Submit(ctx context.Context, action string, fields []form.Field, referer string) (int, error)
}

// ProviderResolver hands out LLM providers by name.
type ProviderResolver interface {
	Get(name string) (llm.Provider, error)
	Default() string
}

// PromptSource supplies the system prompt.
type PromptSource interface {
	SystemPrompt() string
}

// History is the bounded Q->A memory fed back into prompts.
type History interface {
	Add(ctx context.Context, question, answer string) error
	Clear(ctx context.Context) error
	Pairs() []qacache.Pair
	AsText() string
}

// RunRepository records runs and their per-question outcomes.
type RunRepository interface {
	CreateRun(ctx context.Context, run Run) error
	UpdateRun(ctx context.Context, run Run) error
	AppendAnswer(ctx context.Context, rec AnswerRecord) error
	GetRun(ctx context.Context, id uuid.UUID) (Run, bool, error)
	ListAnswers(ctx context.Context, runID uuid.UUID) ([]AnswerRecord, error)
}

// SnapshotStore keeps JSON copies of parsed forms and reports.
type SnapshotStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// JobQueue accepts fills to run in the background.
type JobQueue interface {
	Enqueue(ctx context.Context, job Job) error
}
