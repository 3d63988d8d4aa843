//go:build wireinject
// +build wireinject

package main

import (
	"log/slog"

	"github.com/google/wire"

	"github.com/yanqian/formfiller/internal/bootstrap"
	"github.com/yanqian/formfiller/internal/domain/autofill"
	"github.com/yanqian/formfiller/internal/infra/config"
	httpiface "github.com/yanqian/formfiller/internal/interface/http"
)

var serviceDeps = wire.NewSet(
	provideAutofillConfig,
	provideFormClient,
	provideProviderRegistry,
	providePromptSource,
	provideHistory,
	provideRunRepository,
	provideSnapshotStore,
)

func initializeApp(cfg *config.Config, logger *slog.Logger) (*bootstrap.App, func(), error) {
	wire.Build(
		serviceDeps,
		provideJobQueue,
		provideService,
		httpiface.NewHandler,
		httpiface.NewRouter,
		bootstrap.NewApp,
	)
	return nil, nil, nil
}

func initializeService(cfg *config.Config, logger *slog.Logger) (autofill.Service, func(), error) {
	wire.Build(
		serviceDeps,
		provideCLIService,
	)
	return nil, nil, nil
}
