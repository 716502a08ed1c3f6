package forumrepo

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	domain "github.com/yanqian/forum-inference/internal/domain/inference"
)

// MemoryRepository is an in-memory forum store for tests and local dev.
type MemoryRepository struct {
	mu     sync.RWMutex
	forums map[uuid.UUID]domain.Forum
}

// NewMemoryRepository constructs the repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{forums: make(map[uuid.UUID]domain.Forum)}
}

func (r *MemoryRepository) Create(_ context.Context, forum domain.Forum) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forums[forum.ID] = forum
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id uuid.UUID) (domain.Forum, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	forum, ok := r.forums[id]
	return forum, ok, nil
}

func (r *MemoryRepository) List(_ context.Context) ([]domain.Forum, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Forum, 0, len(r.forums))
	for _, forum := range r.forums {
		out = append(out, forum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.forums[id]; !ok {
		return false, nil
	}
	delete(r.forums, id)
	return true, nil
}

var _ domain.ForumRepository = (*MemoryRepository)(nil)
