package artifactstore

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/valkey-io/valkey-go"

	domain "github.com/yanqian/forum-inference/internal/domain/inference"
)

// CachedStore decorates an ArtifactStore with a Valkey read-through cache.
// Artifacts are immutable once written, so cached copies never go stale;
// deletion is the only invalidation event.
type CachedStore struct {
	inner  domain.ArtifactStore
	client valkey.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedStore wraps inner with caching.
func NewCachedStore(inner domain.ArtifactStore, client valkey.Client, prefix string, ttl time.Duration, logger *slog.Logger) *CachedStore {
	if prefix == "" {
		prefix = "inferences"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedStore{
		inner:  inner,
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.With("component", "artifactstore.cache"),
	}
}

func (s *CachedStore) Create(ctx context.Context, forumID uuid.UUID, artifact domain.Artifact) error {
	if err := s.inner.Create(ctx, forumID, artifact); err != nil {
		return err
	}
	s.fill(ctx, forumID, artifact)
	return nil
}

func (s *CachedStore) Get(ctx context.Context, forumID uuid.UUID) (domain.Artifact, bool, error) {
	result := s.client.Do(ctx, s.client.B().Get().Key(s.key(forumID)).Build())
	payload, err := result.ToString()
	if err == nil {
		var artifact domain.Artifact
		if err := json.Unmarshal([]byte(payload), &artifact); err == nil {
			return artifact, true, nil
		}
		s.logger.Warn("cached artifact corrupt, falling through", "forum_id", forumID)
	} else if !valkey.IsValkeyNil(err) {
		s.logger.Warn("artifact cache read failed", "forum_id", forumID, "error", err)
	}

	artifact, found, err := s.inner.Get(ctx, forumID)
	if err != nil || !found {
		return artifact, found, err
	}
	s.fill(ctx, forumID, artifact)
	return artifact, true, nil
}

func (s *CachedStore) Delete(ctx context.Context, forumID uuid.UUID) (bool, error) {
	deleted, err := s.inner.Delete(ctx, forumID)
	if err != nil {
		return deleted, err
	}
	if delErr := s.client.Do(ctx, s.client.B().Del().Key(s.key(forumID)).Build()).Error(); delErr != nil {
		s.logger.Warn("artifact cache invalidation failed", "forum_id", forumID, "error", delErr)
	}
	return deleted, nil
}

func (s *CachedStore) fill(ctx context.Context, forumID uuid.UUID, artifact domain.Artifact) {
	payload, err := json.Marshal(artifact)
	if err != nil {
		return
	}
	cmd := s.client.B().Set().Key(s.key(forumID)).Value(string(payload)).Ex(s.ttl).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		s.logger.Warn("artifact cache fill failed", "forum_id", forumID, "error", err)
	}
}

func (s *CachedStore) key(forumID uuid.UUID) string {
	return s.prefix + ":" + forumID.String()
}

var _ domain.ArtifactStore = (*CachedStore)(nil)
