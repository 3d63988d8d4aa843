package autofill

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/yanqian/formfiller/internal/domain/form"
	"github.com/yanqian/formfiller/internal/domain/llm"
	"github.com/yanqian/formfiller/internal/domain/qacache"
	apperrors "github.com/yanqian/formfiller/pkg/errors"
	"github.com/yanqian/formfiller/pkg/logger"
	"github.com/yanqian/formfiller/pkg/metrics"
)

const testFormURL = "https://docs.google.com/forms/d/e/abc/viewform"

func sampleForm() form.Form {
	return form.Form{
		Title:          "Team survey",
		QuestionsCount: 5,
		Questions: []form.Question{
			{Text: "1. About you", Type: form.TypeText},
			{EntryID: "101", Text: "a) Your name?", Type: form.TypeShortAnswer},
			{EntryID: "102", Text: "b) Favourite colour?", Type: form.TypeMultipleChoice, Choices: []string{"Red", "Blue"}},
			{EntryID: "103", Text: "Languages you use?", Type: form.TypeCheckboxes, Choices: []string{"Go", "Rust"}, OtherAllowed: true},
			{EntryID: "104", Text: "Anything else?", Type: form.TypeParagraph},
		},
		Meta: form.Meta{Action: "https://docs.google.com/forms/d/e/abc/formResponse", Fbzx: "123"},
	}
}

func sampleReplies() map[string]string {
	return map[string]string{
		"a) Your name?":        `{"answer": "Ada"}`,
		"b) Favourite colour?": "```json\n{\"answer\": \"2\"}\n```",
		"Languages you use?":   `{"answer": ["go", "Haskell"]}`,
		"Anything else?":       "I have nothing to add",
	}
}

type stubForms struct {
	mu           sync.Mutex
	form         form.Form
	parseErr     error
	submitStatus int
	submitErr    error
	submitted    []form.Field
	action       string
	referer      string
}

func (s *stubForms) Parse(_ context.Context, _ string) (form.Form, error) {
	if s.parseErr != nil {
		return form.Form{}, s.parseErr
	}
	return s.form, nil
}

func (s *stubForms) Submit(_ context.Context, action string, fields []form.Field, referer string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.action = action
	s.submitted = fields
	s.referer = referer
	return s.submitStatus, s.submitErr
}

type stubProvider struct {
	mu      sync.Mutex
	replies map[string]string
	pingErr error
	prompts map[string]string
	models  []llm.Model
}

func (p *stubProvider) Name() string         { return "stub" }
func (p *stubProvider) DefaultModel() string { return "stub-model" }

func (p *stubProvider) Chat(_ context.Context, req llm.Request) (llm.Completion, error) {
	user := req.Messages[len(req.Messages)-1].Content
	if user == pingUser {
		if p.pingErr != nil {
			return llm.Completion{}, p.pingErr
		}
		return llm.Completion{Content: "pong"}, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for question, reply := range p.replies {
		if strings.Contains(user, "Question:\n"+question) {
			if p.prompts == nil {
				p.prompts = make(map[string]string)
			}
			p.prompts[question] = user
			return llm.Completion{Content: reply, Usage: metrics.TokenUsage{PromptTokens: 7, CompletionTokens: 3, TotalTokens: 10}}, nil
		}
	}
	return llm.Completion{}, fmt.Errorf("unexpected prompt %q", user)
}

func (p *stubProvider) ListModels(_ context.Context) ([]llm.Model, error) {
	return p.models, nil
}

func (p *stubProvider) prompt(question string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prompts[question]
}

type stubResolver struct {
	provider llm.Provider
}

func (r stubResolver) Get(name string) (llm.Provider, error) {
	if name == "" || name == "stub" {
		return r.provider, nil
	}
	return nil, fmt.Errorf("%w: %q", llm.ErrUnknownProvider, name)
}

func (r stubResolver) Default() string { return "stub" }

type staticPrompt string

func (p staticPrompt) SystemPrompt() string { return string(p) }

type memoryRuns struct {
	mu      sync.Mutex
	runs    map[uuid.UUID]Run
	answers map[uuid.UUID][]AnswerRecord
}

func newMemoryRuns() *memoryRuns {
	return &memoryRuns{runs: make(map[uuid.UUID]Run), answers: make(map[uuid.UUID][]AnswerRecord)}
}

func (m *memoryRuns) CreateRun(_ context.Context, run Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run
	return nil
}

func (m *memoryRuns) UpdateRun(_ context.Context, run Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; !ok {
		return errors.New("missing run")
	}
	m.runs[run.ID] = run
	return nil
}

func (m *memoryRuns) AppendAnswer(_ context.Context, rec AnswerRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers[rec.RunID] = append(m.answers[rec.RunID], rec)
	return nil
}

func (m *memoryRuns) GetRun(_ context.Context, id uuid.UUID) (Run, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	return run, ok, nil
}

func (m *memoryRuns) ListAnswers(_ context.Context, id uuid.UUID) ([]AnswerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AnswerRecord(nil), m.answers[id]...), nil
}

type memorySnapshots struct {
	mu   sync.Mutex
	keys []string
}

func (m *memorySnapshots) Put(_ context.Context, key string, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(data) == 0 {
		return errors.New("empty snapshot")
	}
	m.keys = append(m.keys, key)
	return nil
}

type recordingQueue struct {
	jobs []Job
	err  error
}

func (q *recordingQueue) Enqueue(_ context.Context, job Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type fixture struct {
	svc       Service
	forms     *stubForms
	provider  *stubProvider
	history   *qacache.Cache
	runs      *memoryRuns
	snapshots *memorySnapshots
	queue     *recordingQueue
}

func newFixture(t *testing.T, cfg Config, withQueue bool) *fixture {
	t.Helper()
	f := &fixture{
		forms:     &stubForms{form: sampleForm(), submitStatus: 200},
		provider:  &stubProvider{replies: sampleReplies(), models: []llm.Model{{ID: "stub-model"}}},
		history:   qacache.New(context.Background(), qacache.Config{MaxPairs: qacache.DefaultMaxPairs, MaxChars: qacache.DefaultMaxChars}, nil, logger.Discard()),
		runs:      newMemoryRuns(),
		snapshots: &memorySnapshots{},
	}
	var queue JobQueue
	if withQueue {
		f.queue = &recordingQueue{}
		queue = f.queue
	}
	f.svc = NewService(cfg, f.forms, stubResolver{provider: f.provider}, staticPrompt("fill the form"), f.history, f.runs, f.snapshots, queue, logger.Discard())
	return f
}

func defaultConfig() Config {
	return Config{Temperature: 0.1, Strict: true, ResetHistoryOnSection: true}
}

func TestFillAnswersAndBuildsPayload(t *testing.T) {
	f := newFixture(t, defaultConfig(), false)

	report, err := f.svc.Fill(context.Background(), Request{URL: testFormURL})
	require.NoError(t, err)

	require.Equal(t, RunStatusCompleted, report.Run.Status)
	require.Equal(t, "Team survey", report.Run.Title)
	require.Equal(t, "stub", report.Run.Provider)
	require.Equal(t, "stub-model", report.Run.Model)
	require.Equal(t, 5, report.Run.Questions)
	require.Equal(t, 3, report.Run.Answered)
	require.False(t, report.Run.Submitted)
	require.NotNil(t, report.Run.FinishedAt)
	require.Equal(t, 40, report.Run.Usage.TotalTokens)

	require.Equal(t, "https://docs.google.com/forms/d/e/abc/formResponse", report.Action)
	require.Equal(t, []form.Field{
		{Key: "fbzx", Value: "123"},
		{Key: "entry.101", Value: "Ada"},
		{Key: "entry.102", Value: "Blue"},
		{Key: "entry.103", Value: "Go"},
	}, report.Fields)

	require.Len(t, report.Answers, 4)
	statuses := make([]AnswerStatus, 0, len(report.Answers))
	for i, rec := range report.Answers {
		require.Equal(t, i+1, rec.Position)
		require.Equal(t, report.Run.ID, rec.RunID)
		statuses = append(statuses, rec.Status)
	}
	require.Equal(t, []AnswerStatus{AnswerAnswered, AnswerAnswered, AnswerAnswered, AnswerSkipped}, statuses)
	require.Equal(t, "I have nothing to add", report.Answers[3].Raw)

	require.Contains(t, f.provider.prompt("a) Your name?"), "Shared context:\n1. About you")
	require.Contains(t, f.provider.prompt("Languages you use?"), "- Q: a) Your name? | A: Ada")
	require.Nil(t, f.forms.submitted)

	stored, err := f.svc.GetRun(context.Background(), report.Run.ID)
	require.NoError(t, err)
	require.Equal(t, RunStatusCompleted, stored.Run.Status)
	require.Len(t, stored.Answers, 4)

	id := report.Run.ID.String()
	require.ElementsMatch(t, []string{"forms/" + id + ".json", "reports/" + id + ".json"}, f.snapshots.keys)
	require.Len(t, f.svc.History(context.Background()), 3)
}

func TestFillSubmitsWhenRequested(t *testing.T) {
	f := newFixture(t, defaultConfig(), false)
	submit := true

	report, err := f.svc.Fill(context.Background(), Request{URL: testFormURL, Submit: &submit})
	require.NoError(t, err)

	require.True(t, report.Run.Submit)
	require.True(t, report.Run.Submitted)
	require.Equal(t, 200, report.Run.SubmitStatus)
	require.Equal(t, report.Fields, f.forms.submitted)
	require.Equal(t, report.Action, f.forms.action)
	require.Equal(t, testFormURL, f.forms.referer)
}

func TestFillSubmitFailureMarksRunFailed(t *testing.T) {
	f := newFixture(t, Config{Strict: true, Submit: true}, false)
	f.forms.submitStatus = 400
	f.forms.submitErr = apperrors.Wrap(apperrors.CodeSubmitError, "submit rejected", nil)

	report, err := f.svc.Fill(context.Background(), Request{URL: testFormURL})
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, apperrors.CodeSubmitError))
	require.Equal(t, RunStatusFailed, report.Run.Status)
	require.Equal(t, 400, report.Run.SubmitStatus)
	require.False(t, report.Run.Submitted)

	stored, err := f.svc.GetRun(context.Background(), report.Run.ID)
	require.NoError(t, err)
	require.Equal(t, RunStatusFailed, stored.Run.Status)
	require.NotEmpty(t, stored.Run.Error)
}

func TestFillFailsWhenPingFails(t *testing.T) {
	f := newFixture(t, defaultConfig(), false)
	f.provider.pingErr = errors.New("invalid api key")

	report, err := f.svc.Fill(context.Background(), Request{URL: testFormURL})
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, apperrors.CodeLLMError))
	require.Equal(t, RunStatusFailed, report.Run.Status)
	require.Empty(t, report.Answers)
	require.Empty(t, f.provider.prompts)
}

func TestFillPropagatesParseError(t *testing.T) {
	f := newFixture(t, defaultConfig(), false)
	f.forms.parseErr = apperrors.Wrap(apperrors.CodeFormError, "no form payload", nil)

	report, err := f.svc.Fill(context.Background(), Request{URL: testFormURL})
	require.True(t, apperrors.IsCode(err, apperrors.CodeFormError))
	require.Equal(t, RunStatusFailed, report.Run.Status)
}

func TestFillRejectsBadInput(t *testing.T) {
	f := newFixture(t, defaultConfig(), false)

	_, err := f.svc.Fill(context.Background(), Request{URL: "not a url"})
	require.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput))

	_, err = f.svc.Fill(context.Background(), Request{URL: "  "})
	require.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput))

	_, err = f.svc.Fill(context.Background(), Request{URL: testFormURL, Provider: "nope"})
	require.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput))
}

func sectionedForm() form.Form {
	return form.Form{
		Title:          "Work survey",
		QuestionsCount: 3,
		Questions: []form.Question{
			{EntryID: "100", Text: "Warm-up?", Type: form.TypeShortAnswer},
			{EntryID: "200", Text: "2. Your work", Type: form.TypeShortAnswer},
			{EntryID: "201", Text: "a) Team size?", Type: form.TypeShortAnswer},
		},
		Meta: form.Meta{Action: "https://docs.google.com/forms/d/e/abc/formResponse", Fbzx: "456"},
	}
}

func TestFillResetsHistoryAtSectionStart(t *testing.T) {
	f := newFixture(t, defaultConfig(), false)
	f.forms.form = sectionedForm()
	f.provider.replies = map[string]string{
		"Warm-up?":      `{"answer": "ready"}`,
		"2. Your work":  `{"answer": "coding"}`,
		"a) Team size?": `{"answer": "5"}`,
	}
	require.NoError(t, f.history.Add(context.Background(), "old question", "old answer"))

	_, err := f.svc.Fill(context.Background(), Request{URL: testFormURL})
	require.NoError(t, err)

	require.Contains(t, f.provider.prompt("Warm-up?"), "- Q: old question | A: old answer")
	sectionPrompt := f.provider.prompt("2. Your work")
	require.NotContains(t, sectionPrompt, "old question")
	require.NotContains(t, sectionPrompt, "Q: Warm-up?")
	require.Contains(t, f.provider.prompt("a) Team size?"), "- Q: 2. Your work | A: coding")
}

func TestFillKeepsHistoryAcrossHeaderWithoutEntry(t *testing.T) {
	f := newFixture(t, defaultConfig(), false)
	require.NoError(t, f.history.Add(context.Background(), "old question", "old answer"))

	_, err := f.svc.Fill(context.Background(), Request{URL: testFormURL})
	require.NoError(t, err)
	require.Contains(t, f.provider.prompt("a) Your name?"), "- Q: old question | A: old answer")
}

func TestFillKeepsHistoryWhenResetDisabled(t *testing.T) {
	cfg := defaultConfig()
	cfg.ResetHistoryOnSection = false
	f := newFixture(t, cfg, false)
	require.NoError(t, f.history.Add(context.Background(), "old question", "old answer"))

	_, err := f.svc.Fill(context.Background(), Request{URL: testFormURL})
	require.NoError(t, err)
	require.Contains(t, f.provider.prompt("a) Your name?"), "- Q: old question | A: old answer")
}

func TestEnqueueThenHandleJob(t *testing.T) {
	f := newFixture(t, defaultConfig(), true)
	ctx := context.Background()

	run, err := f.svc.Enqueue(ctx, Request{URL: " " + testFormURL + " ", Model: "bigger-model"})
	require.NoError(t, err)
	require.Equal(t, RunStatusPending, run.Status)
	require.Equal(t, "bigger-model", run.Model)
	require.Len(t, f.queue.jobs, 1)

	job := f.queue.jobs[0]
	require.Equal(t, run.ID, job.RunID)
	require.Equal(t, testFormURL, job.Request.URL)
	require.Equal(t, "stub", job.Request.Provider)

	stored, err := f.svc.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, RunStatusPending, stored.Run.Status)

	require.NoError(t, f.svc.HandleJob(ctx, job))

	stored, err = f.svc.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, RunStatusCompleted, stored.Run.Status)
	require.Equal(t, run.CreatedAt, stored.Run.CreatedAt)
	require.Equal(t, "bigger-model", stored.Run.Model)
	require.Len(t, stored.Answers, 4)
}

func TestHandleJobMarksRunFailedOnBadRequest(t *testing.T) {
	f := newFixture(t, defaultConfig(), true)
	ctx := context.Background()

	run, err := f.svc.Enqueue(ctx, Request{URL: testFormURL})
	require.NoError(t, err)

	job := f.queue.jobs[0]
	job.Request.Provider = "gone"
	require.Error(t, f.svc.HandleJob(ctx, job))

	stored, err := f.svc.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, RunStatusFailed, stored.Run.Status)
}

func TestEnqueueWithoutQueue(t *testing.T) {
	f := newFixture(t, defaultConfig(), false)

	_, err := f.svc.Enqueue(context.Background(), Request{URL: testFormURL})
	require.True(t, apperrors.IsCode(err, apperrors.CodeStorageError))
}

func TestEnqueueFailureMarksRunFailed(t *testing.T) {
	f := newFixture(t, defaultConfig(), true)
	f.queue.err = errors.New("queue down")

	_, err := f.svc.Enqueue(context.Background(), Request{URL: testFormURL})
	require.True(t, apperrors.IsCode(err, apperrors.CodeStorageError))
	for _, run := range f.runs.runs {
		require.Equal(t, RunStatusFailed, run.Status)
	}
}

func TestGetRunNotFound(t *testing.T) {
	f := newFixture(t, defaultConfig(), false)

	_, err := f.svc.GetRun(context.Background(), uuid.New())
	require.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestModelsAndClearHistory(t *testing.T) {
	f := newFixture(t, defaultConfig(), false)
	ctx := context.Background()

	models, err := f.svc.Models(ctx, "")
	require.NoError(t, err)
	require.Equal(t, []llm.Model{{ID: "stub-model"}}, models)

	_, err = f.svc.Models(ctx, "nope")
	require.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput))

	require.NoError(t, f.history.Add(ctx, "q", "a"))
	require.NoError(t, f.svc.ClearHistory(ctx))
	require.Empty(t, f.svc.History(ctx))
}

func TestParseValidatesURL(t *testing.T) {
	f := newFixture(t, defaultConfig(), false)

	got, err := f.svc.Parse(context.Background(), testFormURL)
	require.NoError(t, err)
	require.Equal(t, "Team survey", got.Title)

	_, err = f.svc.Parse(context.Background(), "ftp://example.com/form")
	require.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput))
}
