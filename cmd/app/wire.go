//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/yanqian/forum-inference/internal/bootstrap"
	"github.com/yanqian/forum-inference/internal/domain/inference"
	"github.com/yanqian/forum-inference/internal/infra/config"
	httpiface "github.com/yanqian/forum-inference/internal/interface/http"
	"github.com/yanqian/forum-inference/pkg/logger"
)

func initializeApp() (*bootstrap.App, error) {
	wire.Build(
		config.Load,
		logger.New,
		provideInferenceConfig,
		provideCorpusLoader,
		provideExtractor,
		provideEmbedder,
		providePgxPool,
		provideStorage,
		provideForumRepository,
		provideArtifactStore,
		inference.NewService,
		httpiface.NewHandler,
		httpiface.NewRouter,
		bootstrap.NewApp,
	)
	return nil, nil
}
