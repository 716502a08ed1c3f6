package inference

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// ObjectStorage abstracts blob storage (S3/R2/local).
type ObjectStorage interface {
	Put(ctx context.Context, key string, data []byte, mimeType string) (StoredObject, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// StoredObject captures persisted blob metadata.
type StoredObject struct {
	Key      string
	Size     int64
	MimeType string
	ETag     string
}

// CorpusLoader parses a raw forum export into ordered top-level posts.
type CorpusLoader interface {
	Load(r io.Reader) ([]Post, error)
}

// AnswerExtractor returns the best contiguous span of passage answering
// question. Implementations hold any model state for the lifetime of the
// process so a batch reuses one loaded model.
type AnswerExtractor interface {
	Extract(ctx context.Context, question, passage string) (Answer, error)
}

// Answer is an extracted span with character offsets into the passage,
// End exclusive.
type Answer struct {
	Text  string
	Start int
	End   int
}

// Embedder produces fixed-dimension embeddings for free form text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ForumRepository persists forum metadata.
type ForumRepository interface {
	Create(ctx context.Context, forum Forum) error
	Get(ctx context.Context, id uuid.UUID) (Forum, bool, error)
	List(ctx context.Context) ([]Forum, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

// ArtifactStore persists at most one artifact per forum. Create must be
// atomic: it fails with the duplicate_artifact code when an artifact already
// exists, and never leaves a partial artifact behind.
type ArtifactStore interface {
	Create(ctx context.Context, forumID uuid.UUID, artifact Artifact) error
	Get(ctx context.Context, forumID uuid.UUID) (Artifact, bool, error)
	Delete(ctx context.Context, forumID uuid.UUID) (bool, error)
}
