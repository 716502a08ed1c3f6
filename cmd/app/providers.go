package main

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/forum-inference/internal/domain/inference"
	"github.com/yanqian/forum-inference/internal/infra/artifactstore"
	"github.com/yanqian/forum-inference/internal/infra/config"
	"github.com/yanqian/forum-inference/internal/infra/corpus"
	"github.com/yanqian/forum-inference/internal/infra/embedder"
	"github.com/yanqian/forum-inference/internal/infra/forumrepo"
	"github.com/yanqian/forum-inference/internal/infra/qa"
	"github.com/yanqian/forum-inference/internal/infra/storage"
)

func provideInferenceConfig(cfg *config.Config) inference.Config {
	return inference.Config{
		VectorDim:       cfg.Inference.VectorDim,
		Workers:         cfg.Inference.Workers,
		MaxUploadBytes:  cfg.Forum.MaxUploadBytes,
		IncludeBaseline: cfg.Inference.IncludeBaseline,
	}
}

func provideCorpusLoader() inference.CorpusLoader {
	return corpus.NewCSVLoader()
}

func provideExtractor(cfg *config.Config, logger *slog.Logger) (inference.AnswerExtractor, error) {
	if strings.TrimSpace(cfg.Inference.APIKey) == "" {
		logger.Info("inference api key not set, using lexical extractor")
		return qa.NewLexicalExtractor(), nil
	}
	return qa.NewClient(cfg.Inference.QABaseURL, cfg.Inference.QAModel, cfg.Inference.APIKey)
}

func provideEmbedder(cfg *config.Config, logger *slog.Logger) (inference.Embedder, error) {
	if strings.TrimSpace(cfg.Inference.APIKey) == "" {
		logger.Info("inference api key not set, using deterministic embedder")
		return embedder.NewDeterministic(cfg.Inference.VectorDim), nil
	}
	return embedder.NewClient(cfg.Inference.QABaseURL, cfg.Inference.EmbeddingModel, cfg.Inference.APIKey, cfg.Inference.VectorDim, logger)
}

func provideStorage(cfg *config.Config, logger *slog.Logger) (inference.ObjectStorage, error) {
	if strings.TrimSpace(cfg.Storage.Endpoint) == "" {
		logger.Info("object storage endpoint not set, using memory storage")
		return storage.NewMemoryStorage(), nil
	}
	return storage.NewS3Storage(cfg.Storage.Endpoint, cfg.Storage.AccessKey, cfg.Storage.SecretKey, cfg.Storage.Bucket, cfg.Storage.Region, logger)
}

func providePgxPool(cfg *config.Config, logger *slog.Logger) *pgxpool.Pool {
	dsn := strings.TrimSpace(cfg.Postgres.DSN)
	if dsn == "" {
		logger.Info("postgres dsn not set, repositories fall back to memory")
		return nil
	}
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		logger.Error("invalid postgres dsn, falling back to memory", "error", err)
		return nil
	}
	if cfg.Postgres.MaxConns > 0 {
		poolConfig.MaxConns = cfg.Postgres.MaxConns
	}
	if cfg.Postgres.MinConns > 0 {
		poolConfig.MinConns = cfg.Postgres.MinConns
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		logger.Error("failed to initialize postgres pool, falling back to memory", "error", err)
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("postgres ping failed, falling back to memory", "error", err)
		pool.Close()
		return nil
	}
	return pool
}

func provideForumRepository(pool *pgxpool.Pool, logger *slog.Logger) inference.ForumRepository {
	if pool == nil {
		return forumrepo.NewMemoryRepository()
	}
	logger.Info("postgres forum repository enabled")
	return forumrepo.NewPostgresRepository(pool)
}

func provideArtifactStore(cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger) inference.ArtifactStore {
	var store inference.ArtifactStore
	if pool == nil {
		store = artifactstore.NewMemoryStore()
	} else {
		logger.Info("postgres artifact store enabled")
		store = artifactstore.NewPostgresStore(pool)
	}
	if !cfg.Cache.Enabled {
		return store
	}
	opt, err := buildValkeyOptions(cfg)
	if err != nil {
		logger.Error("invalid valkey configuration, artifact cache disabled", "error", err)
		return store
	}
	client, err := valkey.NewClient(opt)
	if err != nil {
		logger.Error("failed to create valkey client, artifact cache disabled", "error", err)
		return store
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		logger.Error("valkey ping failed, artifact cache disabled", "error", err)
		return store
	}
	logger.Info("valkey artifact cache enabled", "addr", cfg.Cache.Addr)
	return artifactstore.NewCachedStore(store, client, "inference", cfg.Cache.TTL, logger)
}

func buildValkeyOptions(cfg *config.Config) (valkey.ClientOption, error) {
	var (
		opt valkey.ClientOption
		err error
	)
	if strings.Contains(cfg.Cache.Addr, "://") {
		opt, err = valkey.ParseURL(cfg.Cache.Addr)
	} else {
		opt = valkey.ClientOption{InitAddress: []string{cfg.Cache.Addr}}
	}
	if err != nil {
		return valkey.ClientOption{}, err
	}
	return opt, nil
}
