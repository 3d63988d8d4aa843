package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/yanqian/formfiller/internal/domain/autofill"
	"github.com/yanqian/formfiller/internal/domain/form"
	"github.com/yanqian/formfiller/internal/domain/llm"
	"github.com/yanqian/formfiller/internal/domain/qacache"
	"github.com/yanqian/formfiller/internal/infra/config"
	apperrors "github.com/yanqian/formfiller/pkg/errors"
	"github.com/yanqian/formfiller/pkg/logger"
)

func TestRouter_ParseFormSuccess(t *testing.T) {
	parsed := form.Form{Title: "Survey", QuestionsCount: 1, Questions: []form.Question{{EntryID: "1", Text: "Name?", Type: form.TypeShortAnswer}}}
	svc := &stubService{
		parseFn: func(_ context.Context, url string) (form.Form, error) {
			require.Equal(t, "https://docs.google.com/forms/d/e/x/viewform", url)
			return parsed, nil
		},
	}

	rec := performRequest(http.MethodPost, "/api/v1/forms/parse", `{"url":"https://docs.google.com/forms/d/e/x/viewform"}`, newRouterUnderTest(t, svc, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got form.Form
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, parsed, got)
}

func TestRouter_ParseFormMissingURL(t *testing.T) {
	rec := performRequest(http.MethodPost, "/api/v1/forms/parse", `{}`, newRouterUnderTest(t, &stubService{}, nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeErrorBody(t, rec.Body.Bytes())
	require.Equal(t, "invalid_request", body["error"]["code"])
	require.NotEmpty(t, body["error"]["message"])
}

func TestRouter_ParseFormUpstreamError(t *testing.T) {
	svc := &stubService{
		parseFn: func(context.Context, string) (form.Form, error) {
			return form.Form{}, apperrors.Wrap(apperrors.CodeFormError, "no form payload found", nil)
		},
	}

	rec := performRequest(http.MethodPost, "/api/v1/forms/parse", `{"url":"https://example.com"}`, newRouterUnderTest(t, svc, nil))
	require.Equal(t, http.StatusBadGateway, rec.Code)

	body := decodeErrorBody(t, rec.Body.Bytes())
	require.Equal(t, "form_error", body["error"]["code"])
	require.Contains(t, body["error"]["message"], "no form payload found")
}

func TestRouter_StartFillAccepted(t *testing.T) {
	runID := uuid.New()
	svc := &stubService{
		enqueueFn: func(_ context.Context, req autofill.Request) (autofill.Run, error) {
			require.Equal(t, "https://example.com/form", req.URL)
			require.Equal(t, "gemini", req.Provider)
			require.NotNil(t, req.Submit)
			require.True(t, *req.Submit)
			return autofill.Run{ID: runID, URL: req.URL, Provider: "gemini", Status: autofill.RunStatusPending}, nil
		},
	}

	rec := performRequest(http.MethodPost, "/api/v1/fills", `{"url":"https://example.com/form","provider":"gemini","submit":true}`, newRouterUnderTest(t, svc, nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, "/api/v1/fills/"+runID.String(), rec.Header().Get("Location"))

	var got autofill.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, runID, got.ID)
	require.Equal(t, autofill.RunStatusPending, got.Status)
}

func TestRouter_StartFillInvalidInput(t *testing.T) {
	svc := &stubService{
		enqueueFn: func(context.Context, autofill.Request) (autofill.Run, error) {
			return autofill.Run{}, apperrors.Wrap(apperrors.CodeInvalidInput, "unknown provider", nil)
		},
	}

	rec := performRequest(http.MethodPost, "/api/v1/fills", `{"url":"https://example.com/form","provider":"nope"}`, newRouterUnderTest(t, svc, nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_request", decodeErrorBody(t, rec.Body.Bytes())["error"]["code"])
}

func TestRouter_GetFill(t *testing.T) {
	runID := uuid.New()
	svc := &stubService{
		getRunFn: func(_ context.Context, id uuid.UUID) (autofill.RunDetails, error) {
			if id != runID {
				return autofill.RunDetails{}, apperrors.Wrap(apperrors.CodeNotFound, "run not found", nil)
			}
			return autofill.RunDetails{
				Run:     autofill.Run{ID: runID, Status: autofill.RunStatusCompleted},
				Answers: []autofill.AnswerRecord{{RunID: runID, Position: 1, EntryID: "1", Status: autofill.AnswerAnswered}},
			}, nil
		},
	}
	server := newRouterUnderTest(t, svc, nil)

	rec := performRequest(http.MethodGet, "/api/v1/fills/"+runID.String(), "", server)
	require.Equal(t, http.StatusOK, rec.Code)
	var got autofill.RunDetails
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, autofill.RunStatusCompleted, got.Run.Status)
	require.Len(t, got.Answers, 1)

	rec = performRequest(http.MethodGet, "/api/v1/fills/"+uuid.NewString(), "", server)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = performRequest(http.MethodGet, "/api/v1/fills/not-a-uuid", "", server)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_History(t *testing.T) {
	svc := &stubService{pairs: []qacache.Pair{{Q: "Name?", A: "Ada"}}}
	server := newRouterUnderTest(t, svc, nil)

	rec := performRequest(http.MethodGet, "/api/v1/qa-cache", "", server)
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Pairs []qacache.Pair `json:"pairs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, []qacache.Pair{{Q: "Name?", A: "Ada"}}, got.Pairs)

	rec = performRequest(http.MethodDelete, "/api/v1/qa-cache", "", server)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Empty(t, svc.pairs)
}

func TestRouter_Models(t *testing.T) {
	svc := &stubService{
		modelsFn: func(_ context.Context, provider string) ([]llm.Model, error) {
			if provider != "groq" {
				return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "unknown provider", nil)
			}
			return []llm.Model{{ID: "llama-3.3-70b-versatile"}}, nil
		},
	}
	server := newRouterUnderTest(t, svc, nil)

	rec := performRequest(http.MethodGet, "/api/v1/providers/groq/models", "", server)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "llama-3.3-70b-versatile")

	rec = performRequest(http.MethodGet, "/api/v1/providers/other/models", "", server)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_FormSchema(t *testing.T) {
	rec := performRequest(http.MethodGet, "/api/v1/schema/form", "", newRouterUnderTest(t, &stubService{}, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &schema))
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	require.Contains(t, props, "questions")
	require.Contains(t, props, "meta")
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	server := newRouterUnderTest(t, &stubService{}, nil)

	rec := performRequest(http.MethodGet, "/healthz", "", server)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = performRequest(http.MethodGet, "/metrics", "", server)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRouter_CORSPreflight(t *testing.T) {
	server := newRouterUnderTest(t, &stubService{}, func(cfg *config.Config) {
		cfg.HTTP.AllowedOrigins = []string{"https://app.example"}
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/fills", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "DELETE")
}

func TestRouter_RateLimit(t *testing.T) {
	server := newRouterUnderTest(t, &stubService{}, func(cfg *config.Config) {
		cfg.HTTP.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1, Burst: 1}
	})

	rec := performRequest(http.MethodGet, "/api/v1/qa-cache", "", server)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = performRequest(http.MethodGet, "/api/v1/qa-cache", "", server)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "rate_limit_exceeded", decodeErrorBody(t, rec.Body.Bytes())["error"]["code"])

	rec = performRequest(http.MethodGet, "/healthz", "", server)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_RetriesTransientFailures(t *testing.T) {
	calls := 0
	svc := &stubService{
		modelsFn: func(context.Context, string) ([]llm.Model, error) {
			calls++
			if calls == 1 {
				return nil, apperrors.Wrap(apperrors.CodeLLMError, "upstream hiccup", nil)
			}
			return []llm.Model{{ID: "m"}}, nil
		},
	}
	server := newRouterUnderTest(t, svc, enableRetry)

	rec := performRequest(http.MethodGet, "/api/v1/providers/groq/models", "", server)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 2, calls)
}

func TestRouter_DoesNotRetryFills(t *testing.T) {
	calls := 0
	svc := &stubService{
		enqueueFn: func(context.Context, autofill.Request) (autofill.Run, error) {
			calls++
			return autofill.Run{}, apperrors.Wrap(apperrors.CodeStorageError, "queue down", nil)
		},
	}
	server := newRouterUnderTest(t, svc, enableRetry)

	rec := performRequest(http.MethodPost, "/api/v1/fills", `{"url":"https://example.com/form"}`, server)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, 1, calls)
}

func enableRetry(cfg *config.Config) {
	cfg.HTTP.Retry = config.RetryConfig{Enabled: true, MaxAttempts: 3, Exclude: []string{"/api/v1/fills"}}
}

func performRequest(method, path, body string, server *http.Server) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, req)
	return rec
}

func newRouterUnderTest(t *testing.T, svc autofill.Service, mutate func(*config.Config)) *http.Server {
	t.Helper()
	cfg := &config.Config{
		HTTP: config.HTTPConfig{
			Address:      ":0",
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
		},
	}
	if mutate != nil {
		mutate(cfg)
	}
	return NewRouter(cfg, NewHandler(svc, logger.Discard()))
}

func decodeErrorBody(t *testing.T, raw []byte) map[string]map[string]string {
	t.Helper()
	var body map[string]map[string]string
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

type stubService struct {
	parseFn   func(ctx context.Context, url string) (form.Form, error)
	enqueueFn func(ctx context.Context, req autofill.Request) (autofill.Run, error)
	getRunFn  func(ctx context.Context, id uuid.UUID) (autofill.RunDetails, error)
	modelsFn  func(ctx context.Context, provider string) ([]llm.Model, error)
	pairs     []qacache.Pair
}

func (s *stubService) Parse(ctx context.Context, url string) (form.Form, error) {
	if s.parseFn != nil {
		return s.parseFn(ctx, url)
	}
	return form.Form{}, nil
}

func (s *stubService) Fill(_ context.Context, _ autofill.Request) (autofill.Report, error) {
	return autofill.Report{}, nil
}

func (s *stubService) Enqueue(ctx context.Context, req autofill.Request) (autofill.Run, error) {
	if s.enqueueFn != nil {
		return s.enqueueFn(ctx, req)
	}
	return autofill.Run{ID: uuid.New(), Status: autofill.RunStatusPending}, nil
}

func (s *stubService) HandleJob(_ context.Context, _ autofill.Job) error {
	return nil
}

func (s *stubService) GetRun(ctx context.Context, id uuid.UUID) (autofill.RunDetails, error) {
	if s.getRunFn != nil {
		return s.getRunFn(ctx, id)
	}
	return autofill.RunDetails{}, apperrors.Wrap(apperrors.CodeNotFound, "run not found", nil)
}

func (s *stubService) History(_ context.Context) []qacache.Pair {
	return s.pairs
}

func (s *stubService) ClearHistory(_ context.Context) error {
	s.pairs = nil
	return nil
}

func (s *stubService) Models(ctx context.Context, provider string) ([]llm.Model, error) {
	if s.modelsFn != nil {
		return s.modelsFn(ctx, provider)
	}
	return nil, nil
}

var _ autofill.Service = (*stubService)(nil)

func TestOriginPolicy(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    string
	}{
		{name: "empty list allows any", allowed: nil, origin: "https://x", want: "*"},
		{name: "wildcard entry", allowed: []string{"https://a", "*"}, origin: "https://x", want: "*"},
		{name: "case-insensitive match echoes request", allowed: []string{"https://a", "https://b"}, origin: "https://B", want: "https://B"},
		{name: "unknown origin", allowed: []string{"https://a"}, origin: "https://evil", want: ""},
		{name: "missing origin", allowed: []string{"https://a"}, origin: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, newOriginPolicy(tt.allowed).allowOrigin(tt.origin))
		})
	}
}

func TestRouter_CORSRejectsUnknownOrigin(t *testing.T) {
	server := newRouterUnderTest(t, &stubService{}, func(cfg *config.Config) {
		cfg.HTTP.AllowedOrigins = []string{"https://app.example"}
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/fills", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
