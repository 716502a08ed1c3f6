package artifactstore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	domain "github.com/yanqian/forum-inference/internal/domain/inference"
	apperrors "github.com/yanqian/forum-inference/pkg/errors"
)

// MemoryStore keeps artifacts in memory. Create is atomic under the store
// mutex, so the duplicate check and insert cannot interleave.
type MemoryStore struct {
	mu        sync.RWMutex
	artifacts map[uuid.UUID]domain.Artifact
}

// NewMemoryStore constructs the store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{artifacts: make(map[uuid.UUID]domain.Artifact)}
}

func (s *MemoryStore) Create(_ context.Context, forumID uuid.UUID, artifact domain.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.artifacts[forumID]; exists {
		return apperrors.Wrap("duplicate_artifact", "an inference artifact already exists for this forum", nil)
	}
	s.artifacts[forumID] = artifact
	return nil
}

func (s *MemoryStore) Get(_ context.Context, forumID uuid.UUID) (domain.Artifact, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	artifact, ok := s.artifacts[forumID]
	return artifact, ok, nil
}

func (s *MemoryStore) Delete(_ context.Context, forumID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.artifacts[forumID]; !ok {
		return false, nil
	}
	delete(s.artifacts, forumID)
	return true, nil
}

var _ domain.ArtifactStore = (*MemoryStore)(nil)
