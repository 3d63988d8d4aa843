package autofill

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/yanqian/formfiller/internal/domain/form"
	"github.com/yanqian/formfiller/internal/domain/llm"
	"github.com/yanqian/formfiller/internal/domain/qacache"
	apperrors "github.com/yanqian/formfiller/pkg/errors"
	"github.com/yanqian/formfiller/pkg/metrics"
	"github.com/yanqian/formfiller/pkg/util"
)

const (
	modelSampleSize = 8
	previewRunes    = 80
)

// Service exposes the form filling workflow.
type Service interface {
	Parse(ctx context.Context, url string) (form.Form, error)
	Fill(ctx context.Context, req Request) (Report, error)
	Enqueue(ctx context.Context, req Request) (Run, error)
	HandleJob(ctx context.Context, job Job) error
	GetRun(ctx context.Context, id uuid.UUID) (RunDetails, error)
	History(ctx context.Context) []qacache.Pair
	ClearHistory(ctx context.Context) error
	Models(ctx context.Context, provider string) ([]llm.Model, error)
}

type service struct {
	cfg       Config
	forms     FormClient
	providers ProviderResolver
	prompts   PromptSource
	history   History
	runs      RunRepository
	snapshots SnapshotStore
	queue     JobQueue
	logger    *slog.Logger
	now       func() time.Time

	// fills share one history, so they run one at a time
	fillMu sync.Mutex
}

// NewService wires up the autofill domain. snapshots and queue may be nil.
func NewService(cfg Config, forms FormClient, providers ProviderResolver, prompts PromptSource, history History, runs RunRepository, snapshots SnapshotStore, queue JobQueue, logger *slog.Logger) Service {
	return &service{
		cfg:       cfg,
		forms:     forms,
		providers: providers,
		prompts:   prompts,
		history:   history,
		runs:      runs,
		snapshots: snapshots,
		queue:     queue,
		logger:    logger.With("component", "autofill.service"),
		now:       util.NowUTC,
	}
}

func (s *service) Parse(ctx context.Context, rawURL string) (form.Form, error) {
	formURL, err := validateURL(rawURL)
	if err != nil {
		return form.Form{}, err
	}
	return s.forms.Parse(ctx, formURL)
}

func (s *service) Fill(ctx context.Context, req Request) (Report, error) {
	formURL, err := validateURL(req.URL)
	if err != nil {
		s.abandon(ctx, req.RunID, err)
		return Report{}, err
	}
	provider, err := s.provider(req.Provider)
	if err != nil {
		s.abandon(ctx, req.RunID, err)
		return Report{}, err
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = provider.DefaultModel()
	}

	s.fillMu.Lock()
	defer s.fillMu.Unlock()

	report := Report{Run: s.startRun(ctx, req, formURL, provider.Name(), model)}
	logger := s.logger.With("run_id", report.Run.ID.String(), "provider", provider.Name(), "model", model)

	f, err := s.forms.Parse(ctx, formURL)
	if err != nil {
		return s.failRun(ctx, report, err)
	}
	report.Run.Title = f.Title
	report.Run.Questions = f.QuestionsCount
	s.snapshot(ctx, "forms/"+report.Run.ID.String()+".json", f)
	logger.Info("form parsed", "title", f.Title, "questions", f.QuestionsCount)

	if err := s.sanityCheck(ctx, provider, model, logger); err != nil {
		return s.failRun(ctx, report, apperrors.Wrap(apperrors.CodeLLMError, "chat sanity check failed", err))
	}

	builder := form.NewBuilder(f, s.cfg.Strict)
	sectionCtx := form.SectionContextMap(f.Questions)
	system := s.prompts.SystemPrompt()
	limiter := s.newLimiter()

	position := 0
	for _, q := range f.Questions {
		if q.EntryID == "" {
			continue
		}
		if s.cfg.ResetHistoryOnSection && form.IsSectionStart(q.Text) {
			if err := s.history.Clear(ctx); err != nil {
				logger.Warn("clear qa history failed", "error", err)
			}
		}
		position++

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return s.failRun(ctx, report, apperrors.Wrap(apperrors.CodeLLMError, "fill interrupted", err))
			}
		}

		rec := s.answerQuestion(ctx, provider, model, system, q, sectionCtx[q.EntryID], builder, &report.Run.Usage)
		if err := ctx.Err(); err != nil {
			return s.failRun(ctx, report, apperrors.Wrap(apperrors.CodeLLMError, "fill interrupted", err))
		}
		rec.RunID = report.Run.ID
		rec.Position = position
		rec.CreatedAt = s.now()

		metrics.ObserveQuestion(provider.Name(), string(rec.Status))
		if rec.Status == AnswerAnswered {
			report.Run.Answered++
			logger.Info("question answered", "entry_id", q.EntryID, "answer", rec.Answer, "question", preview(q.Text))
		} else {
			logger.Warn("question not answered", "entry_id", q.EntryID, "status", rec.Status, "detail", rec.Detail, "question", preview(q.Text))
		}
		if err := s.runs.AppendAnswer(ctx, rec); err != nil {
			logger.Warn("record answer failed", "entry_id", q.EntryID, "error", err)
		}
		report.Answers = append(report.Answers, rec)
	}

	report.Action, report.Fields = builder.Pairs()
	logger.Info("payload built", "action", report.Action, "fields", len(report.Fields))

	if report.Run.Submit {
		status, err := s.forms.Submit(ctx, report.Action, report.Fields, formURL)
		report.Run.SubmitStatus = status
		if err != nil {
			metrics.ObserveSubmission("error")
			return s.failRun(ctx, report, err)
		}
		metrics.ObserveSubmission("ok")
		report.Run.Submitted = true
		logger.Info("form submitted", "status", status)
	}

	s.finishRun(ctx, &report, RunStatusCompleted, "")
	return report, nil
}

// answerQuestion asks the model, maps its reply and stores the answer. It
// never fails the run; the outcome is carried by the record's status.
func (s *service) answerQuestion(ctx context.Context, provider llm.Provider, model, system string, q form.Question, sectionCtx string, builder *form.Builder, usage *metrics.TokenUsage) AnswerRecord {
	rec := AnswerRecord{EntryID: q.EntryID, Question: q.Text, Type: q.Type}

	start := time.Now()
	completion, err := provider.Chat(ctx, llm.Request{
		Model:       model,
		Messages:    BuildMessages(system, q, sectionCtx, s.history.AsText()),
		Temperature: s.cfg.Temperature,
	})
	metrics.ObserveLLMLatency(provider.Name(), time.Since(start).Seconds())
	if err != nil {
		rec.Status = AnswerFailed
		rec.Detail = err.Error()
		return rec
	}
	*usage = usage.Add(completion.Usage)
	rec.Raw = completion.Content

	ext, ok := ExtractAnswer(completion.Content)
	if !ok {
		rec.Status = AnswerSkipped
		rec.Detail = "reply carried no JSON answer"
		return rec
	}
	answer, ok := ResolveAnswer(q, ext)
	if !ok {
		rec.Status = AnswerSkipped
		rec.Detail = "answer does not map to the options"
		return rec
	}
	if err := builder.SetAnswer(q.EntryID, answer); err != nil {
		rec.Status = AnswerRejected
		rec.Answer = answer.String()
		rec.Detail = err.Error()
		return rec
	}

	rec.Status = AnswerAnswered
	rec.Answer = answer.String()
	if err := s.history.Add(ctx, q.Text, rec.Answer); err != nil {
		s.logger.Warn("save qa history failed", "error", err)
	}
	return rec
}

// sanityCheck pings the chat endpoint before spending a whole form on a
// broken provider. The model listing is informational only.
func (s *service) sanityCheck(ctx context.Context, provider llm.Provider, model string, logger *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		models, err := provider.ListModels(gctx)
		if err != nil {
			logger.Warn("list models failed", "error", err)
			return nil
		}
		logger.Info("provider models", "count", len(models), "sample", modelIDs(models, modelSampleSize))
		return nil
	})
	g.Go(func() error {
		completion, err := provider.Chat(gctx, llm.Request{Model: model, Messages: pingMessages()})
		if err != nil {
			return err
		}
		logger.Info("chat check ok", "reply", strings.TrimSpace(completion.Content))
		return nil
	})
	return g.Wait()
}

func (s *service) Enqueue(ctx context.Context, req Request) (Run, error) {
	formURL, err := validateURL(req.URL)
	if err != nil {
		return Run{}, err
	}
	provider, err := s.provider(req.Provider)
	if err != nil {
		return Run{}, err
	}
	if s.queue == nil {
		return Run{}, apperrors.Wrap(apperrors.CodeStorageError, "background fills are not configured", nil)
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = provider.DefaultModel()
	}

	now := s.now()
	run := Run{
		ID:        uuid.New(),
		URL:       formURL,
		Provider:  provider.Name(),
		Model:     model,
		Status:    RunStatusPending,
		Submit:    s.submitFlag(req),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.runs.CreateRun(ctx, run); err != nil {
		return Run{}, apperrors.Wrap(apperrors.CodeStorageError, "failed to persist run", err)
	}

	req.URL = formURL
	req.Provider = provider.Name()
	req.Model = model
	req.RunID = uuid.Nil
	if err := s.queue.Enqueue(ctx, Job{RunID: run.ID, Request: req}); err != nil {
		s.abandon(ctx, run.ID, err)
		return Run{}, apperrors.Wrap(apperrors.CodeStorageError, "failed to enqueue fill", err)
	}
	s.logger.Info("fill enqueued", "run_id", run.ID.String(), "url", formURL)
	return run, nil
}

func (s *service) HandleJob(ctx context.Context, job Job) error {
	req := job.Request
	req.RunID = job.RunID
	if _, err := s.Fill(ctx, req); err != nil {
		s.logger.Error("background fill failed", "run_id", job.RunID.String(), "error", err)
		return err
	}
	return nil
}

func (s *service) GetRun(ctx context.Context, id uuid.UUID) (RunDetails, error) {
	run, found, err := s.runs.GetRun(ctx, id)
	if err != nil {
		return RunDetails{}, apperrors.Wrap(apperrors.CodeStorageError, "failed to load run", err)
	}
	if !found {
		return RunDetails{}, apperrors.Wrap(apperrors.CodeNotFound, "run not found", nil)
	}
	answers, err := s.runs.ListAnswers(ctx, id)
	if err != nil {
		return RunDetails{}, apperrors.Wrap(apperrors.CodeStorageError, "failed to load answers", err)
	}
	return RunDetails{Run: run, Answers: answers}, nil
}

func (s *service) History(_ context.Context) []qacache.Pair {
	return s.history.Pairs()
}

func (s *service) ClearHistory(ctx context.Context) error {
	return s.history.Clear(ctx)
}

func (s *service) Models(ctx context.Context, name string) ([]llm.Model, error) {
	provider, err := s.provider(name)
	if err != nil {
		return nil, err
	}
	models, err := provider.ListModels(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeLLMError, "failed to list models", err)
	}
	return models, nil
}

func (s *service) provider(name string) (llm.Provider, error) {
	p, err := s.providers.Get(name)
	if err != nil {
		if errors.Is(err, llm.ErrUnknownProvider) {
			return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "unknown provider", err)
		}
		return nil, apperrors.Wrap(apperrors.CodeLLMError, "provider unavailable", err)
	}
	return p, nil
}

func (s *service) submitFlag(req Request) bool {
	if req.Submit != nil {
		return *req.Submit
	}
	return s.cfg.Submit
}

// startRun creates the run record, or resumes the pending one a queued job points at.
func (s *service) startRun(ctx context.Context, req Request, formURL, provider, model string) Run {
	now := s.now()
	run := Run{
		ID:        req.RunID,
		URL:       formURL,
		Provider:  provider,
		Model:     model,
		Status:    RunStatusRunning,
		Submit:    s.submitFlag(req),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.RunID != uuid.Nil {
		if existing, found, err := s.runs.GetRun(ctx, req.RunID); err == nil && found {
			run.CreatedAt = existing.CreatedAt
			if err := s.runs.UpdateRun(ctx, run); err != nil {
				s.logger.Warn("update run failed", "run_id", run.ID.String(), "error", err)
			}
			return run
		}
	} else {
		run.ID = uuid.New()
	}
	if err := s.runs.CreateRun(ctx, run); err != nil {
		s.logger.Warn("create run failed", "run_id", run.ID.String(), "error", err)
	}
	return run
}

func (s *service) failRun(ctx context.Context, report Report, cause error) (Report, error) {
	s.finishRun(ctx, &report, RunStatusFailed, cause.Error())
	return report, cause
}

func (s *service) finishRun(ctx context.Context, report *Report, status RunStatus, reason string) {
	now := s.now()
	report.Run.Status = status
	report.Run.Error = reason
	report.Run.UpdatedAt = now
	report.Run.FinishedAt = &now
	if err := s.runs.UpdateRun(ctx, report.Run); err != nil {
		s.logger.Warn("update run failed", "run_id", report.Run.ID.String(), "error", err)
	}
	s.snapshot(ctx, "reports/"+report.Run.ID.String()+".json", report)
}

// abandon marks a queued run as failed when its fill could not even start.
func (s *service) abandon(ctx context.Context, id uuid.UUID, cause error) {
	if id == uuid.Nil {
		return
	}
	run, found, err := s.runs.GetRun(ctx, id)
	if err != nil || !found {
		return
	}
	now := s.now()
	run.Status = RunStatusFailed
	run.Error = cause.Error()
	run.UpdatedAt = now
	run.FinishedAt = &now
	if err := s.runs.UpdateRun(ctx, run); err != nil {
		s.logger.Warn("update run failed", "run_id", id.String(), "error", err)
	}
}

func (s *service) snapshot(ctx context.Context, key string, v any) {
	if s.snapshots == nil {
		return
	}
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		s.logger.Warn("encode snapshot failed", "key", key, "error", err)
		return
	}
	if err := s.snapshots.Put(ctx, key, payload, "application/json"); err != nil {
		s.logger.Warn("store snapshot failed", "key", key, "error", err)
	}
}

func (s *service) newLimiter() *rate.Limiter {
	if s.cfg.Delay <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(s.cfg.Delay), 1)
}

func validateURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", apperrors.Wrap(apperrors.CodeInvalidInput, "form url cannot be empty", nil)
	}
	u, err := url.Parse(trimmed)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", apperrors.Wrap(apperrors.CodeInvalidInput, "form url must be an absolute http(s) url", err)
	}
	return trimmed, nil
}

func modelIDs(models []llm.Model, limit int) []string {
	ids := make([]string, 0, min(len(models), limit))
	for _, m := range models {
		if len(ids) == limit {
			break
		}
		ids = append(ids, m.ID)
	}
	return ids
}

func preview(text string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	if utf8.RuneCountInString(line) <= previewRunes {
		return line
	}
	return string([]rune(line)[:previewRunes]) + "..."
}
