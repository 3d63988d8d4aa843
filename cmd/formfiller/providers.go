package main

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/formfiller/internal/domain/autofill"
	"github.com/yanqian/formfiller/internal/domain/llm"
	"github.com/yanqian/formfiller/internal/domain/qacache"
	"github.com/yanqian/formfiller/internal/infra/config"
	"github.com/yanqian/formfiller/internal/infra/gform"
	"github.com/yanqian/formfiller/internal/infra/jobqueue"
	"github.com/yanqian/formfiller/internal/infra/llm/gemini"
	"github.com/yanqian/formfiller/internal/infra/llm/groq"
	"github.com/yanqian/formfiller/internal/infra/prompt"
	"github.com/yanqian/formfiller/internal/infra/qastore"
	"github.com/yanqian/formfiller/internal/infra/runrepo"
	"github.com/yanqian/formfiller/internal/infra/snapshot"
)

const startupTimeout = 5 * time.Second

func provideAutofillConfig(cfg *config.Config) autofill.Config {
	return autofill.Config{
		Temperature:           cfg.LLM.Temperature,
		Delay:                 cfg.Form.Delay,
		Strict:                cfg.Form.Strict,
		Submit:                cfg.Form.Submit,
		ResetHistoryOnSection: cfg.QACache.ResetOnSection,
	}
}

func provideFormClient(cfg *config.Config) autofill.FormClient {
	return gform.NewClient(gform.Config{
		UserAgent:     cfg.Form.UserAgent,
		FetchTimeout:  cfg.Form.FetchTimeout,
		SubmitTimeout: cfg.Form.SubmitTimeout,
	})
}

func provideProviderRegistry(cfg *config.Config) autofill.ProviderResolver {
	registry := llm.NewRegistry(cfg.LLM.Provider)
	registry.Register(groq.ProviderName, func() (llm.Provider, error) {
		client, err := groq.NewClient(groq.Config{
			APIKey:     cfg.LLM.Groq.APIKey,
			Model:      cfg.LLM.Groq.Model,
			BaseURL:    cfg.LLM.Groq.BaseURL,
			Timeout:    cfg.LLM.Timeout,
			MaxRetries: cfg.LLM.MaxRetries,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	})
	registry.Register(gemini.ProviderName, func() (llm.Provider, error) {
		client, err := gemini.NewClient(gemini.Config{
			APIKey:  cfg.LLM.Gemini.APIKey,
			Model:   cfg.LLM.Gemini.Model,
			BaseURL: cfg.LLM.Gemini.BaseURL,
			Timeout: cfg.LLM.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	})
	return registry
}

func providePromptSource(cfg *config.Config, logger *slog.Logger) autofill.PromptSource {
	return prompt.NewFileSource(cfg.Prompt.SystemPromptPath, cfg.Prompt.Fallback, logger)
}

// provideHistory picks the Q->A store: Valkey when enabled and reachable,
// else the JSON file when a path is set, else memory only.
func provideHistory(cfg *config.Config, logger *slog.Logger) (autofill.History, func()) {
	store, cleanup := provideHistoryStore(cfg, logger)
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()
	cache := qacache.New(ctx, qacache.Config{
		MaxPairs:      cfg.QACache.MaxPairs,
		MaxChars:      cfg.QACache.MaxChars,
		MaxFieldChars: cfg.QACache.MaxFieldChars,
	}, store, logger)
	return cache, cleanup
}

func provideHistoryStore(cfg *config.Config, logger *slog.Logger) (qacache.Store, func()) {
	if cfg.QACache.Valkey.Enabled {
		client, err := newValkeyClient(cfg.QACache.Valkey.Addr)
		if err != nil {
			logger.Error("valkey history unavailable, falling back", "error", err)
		} else {
			logger.Info("qa history valkey store enabled", "addr", cfg.QACache.Valkey.Addr)
			return qastore.NewValkeyStore(client, cfg.QACache.Valkey.Key), client.Close
		}
	}
	if path := strings.TrimSpace(cfg.QACache.Path); path != "" {
		logger.Info("qa history file store enabled", "path", path)
		return qastore.NewFileStore(path), func() {}
	}
	return qastore.NewMemoryStore(), func() {}
}

func provideRunRepository(cfg *config.Config, logger *slog.Logger) (autofill.RunRepository, func()) {
	fallback := runrepo.NewMemoryRepository()
	noop := func() {}
	dsn := strings.TrimSpace(cfg.RunLog.Postgres.DSN)
	if dsn == "" {
		logger.Info("run log postgres dsn not set, using memory repository")
		return fallback, noop
	}
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		logger.Error("invalid postgres dsn, using memory repository", "error", err)
		return fallback, noop
	}
	if cfg.RunLog.Postgres.MaxConns > 0 {
		poolConfig.MaxConns = cfg.RunLog.Postgres.MaxConns
	}
	if cfg.RunLog.Postgres.MinConns > 0 {
		poolConfig.MinConns = cfg.RunLog.Postgres.MinConns
	}
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("failed to initialize postgres pool, using memory repository", "error", err)
		return fallback, noop
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Error("postgres ping failed, using memory repository", "error", err)
		pool.Close()
		return fallback, noop
	}
	repo := runrepo.NewPostgresRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		logger.Error("run log schema setup failed, using memory repository", "error", err)
		pool.Close()
		return fallback, noop
	}
	logger.Info("run log postgres repository enabled")
	return repo, pool.Close
}

func provideSnapshotStore(cfg *config.Config, logger *slog.Logger) autofill.SnapshotStore {
	if !cfg.Snapshot.Enabled {
		return snapshot.NewMemoryStore(snapshot.DefaultMemoryLimit)
	}
	store, err := snapshot.NewS3Store(snapshot.S3Config{
		Endpoint:  cfg.Snapshot.Endpoint,
		AccessKey: cfg.Snapshot.AccessKey,
		SecretKey: cfg.Snapshot.SecretKey,
		Bucket:    cfg.Snapshot.Bucket,
		Region:    cfg.Snapshot.Region,
		UseSSL:    cfg.Snapshot.UseSSL,
	}, logger)
	if err != nil {
		logger.Error("snapshot bucket unavailable, keeping snapshots in memory", "error", err)
		return snapshot.NewMemoryStore(snapshot.DefaultMemoryLimit)
	}
	logger.Info("s3 snapshots enabled", "endpoint", cfg.Snapshot.Endpoint, "bucket", cfg.Snapshot.Bucket)
	return store
}

func provideJobQueue(cfg *config.Config, logger *slog.Logger) (jobqueue.HandlerQueue, func()) {
	if cfg.Jobs.Valkey.Enabled {
		client, err := newValkeyClient(cfg.Jobs.Valkey.Addr)
		if err != nil {
			logger.Error("valkey queue unavailable, running fills in-process", "error", err)
		} else {
			logger.Info("valkey job queue enabled", "addr", cfg.Jobs.Valkey.Addr)
			return jobqueue.NewValkeyQueue(client, cfg.Jobs.Valkey.Key, logger), client.Close
		}
	}
	return jobqueue.NewImmediateQueue(), func() {}
}

// provideService builds the service for the HTTP server and starts the
// queue delivering to it.
func provideService(
	cfg autofill.Config,
	forms autofill.FormClient,
	providers autofill.ProviderResolver,
	prompts autofill.PromptSource,
	history autofill.History,
	runs autofill.RunRepository,
	snapshots autofill.SnapshotStore,
	queue jobqueue.HandlerQueue,
	logger *slog.Logger,
) autofill.Service {
	svc := autofill.NewService(cfg, forms, providers, prompts, history, runs, snapshots, queue, logger)
	queue.SetHandler(svc.HandleJob)
	return svc
}

// provideCLIService builds a service without background jobs.
func provideCLIService(
	cfg autofill.Config,
	forms autofill.FormClient,
	providers autofill.ProviderResolver,
	prompts autofill.PromptSource,
	history autofill.History,
	runs autofill.RunRepository,
	snapshots autofill.SnapshotStore,
	logger *slog.Logger,
) autofill.Service {
	return autofill.NewService(cfg, forms, providers, prompts, history, runs, snapshots, nil, logger)
}

func newValkeyClient(addr string) (valkey.Client, error) {
	var (
		opt valkey.ClientOption
		err error
	)
	if strings.Contains(addr, "://") {
		opt, err = valkey.ParseURL(addr)
		if err != nil {
			return nil, err
		}
	} else {
		opt = valkey.ClientOption{InitAddress: []string{addr}}
	}
	client, err := valkey.NewClient(opt)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
