package inference

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	apperrors "github.com/yanqian/forum-inference/pkg/errors"
)

const skyCSV = "id,userid,userfullname,message,parent\n" +
	"1,7,Ada,The sky is blue.,0\n" +
	"2,8,Bob,I agree,1\n"

func newTestService(t *testing.T, cfg Config) (*Service, *stubArtifactStore) {
	t.Helper()
	artifacts := newStubArtifactStore()
	svc := NewService(
		cfg,
		newStubForumRepo(),
		artifacts,
		newStubStorage(),
		&stubLoader{},
		&stubExtractor{},
		&stubEmbedder{dim: cfg.VectorDim},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return svc, artifacts
}

func TestCreateForumRejectsEmptyUpload(t *testing.T) {
	svc, _ := newTestService(t, Config{VectorDim: 3})
	_, err := svc.CreateForum(context.Background(), "forum.csv", nil)
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, "invalid_input"))
}

func TestCreateForumRejectsOversizedUpload(t *testing.T) {
	svc, _ := newTestService(t, Config{VectorDim: 3, MaxUploadBytes: 4})
	_, err := svc.CreateForum(context.Background(), "forum.csv", []byte(skyCSV))
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, "invalid_input"))
}

func TestBuildProducesAlignedArtifact(t *testing.T) {
	svc, _ := newTestService(t, Config{VectorDim: 3})
	ctx := context.Background()

	forum, err := svc.CreateForum(ctx, "sky talk.csv", []byte(skyCSV))
	require.NoError(t, err)
	require.Equal(t, "sky talk", forum.Name)

	questions := []string{"What color is the sky?", "Who said it?"}
	result, err := svc.BuildInferences(ctx, forum.ID, questions)
	require.NoError(t, err)

	artifact := result.Artifact
	require.Equal(t, questions, artifact.Questions)
	// Reply rows are filtered out of the corpus, so only post 1 remains.
	require.Len(t, artifact.Inferences, 1)
	require.Contains(t, artifact.Inferences, "1")
	for _, answers := range artifact.Inferences {
		require.Len(t, answers, len(questions))
		for _, answer := range answers {
			require.Len(t, answer.AnswerEmbedding, 3)
		}
	}
	require.Contains(t, artifact.Inferences["1"][0].Answer, "blue")
	require.Equal(t, 1, result.Stats.Posts)
	require.Equal(t, 2, result.Stats.Questions)
	require.Equal(t, 2, result.Stats.Pairs)
}

func TestBuildRejectsDuplicateArtifact(t *testing.T) {
	svc, artifacts := newTestService(t, Config{VectorDim: 3})
	ctx := context.Background()

	forum, err := svc.CreateForum(ctx, "forum.csv", []byte(skyCSV))
	require.NoError(t, err)

	first, err := svc.BuildInferences(ctx, forum.ID, []string{"What color is the sky?"})
	require.NoError(t, err)

	_, err = svc.BuildInferences(ctx, forum.ID, []string{"Another question?"})
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, "duplicate_artifact"))

	// The existing artifact is untouched by the rejected build.
	stored, found, err := artifacts.Get(ctx, forum.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, first.Artifact, stored)
}

func TestBuildValidatesQuestions(t *testing.T) {
	svc, _ := newTestService(t, Config{VectorDim: 3})
	ctx := context.Background()
	forum, err := svc.CreateForum(ctx, "forum.csv", []byte(skyCSV))
	require.NoError(t, err)

	for _, questions := range [][]string{nil, {""}, {"  "}, {"dup?", "dup?"}} {
		_, err := svc.BuildInferences(ctx, forum.ID, questions)
		require.Error(t, err)
		require.True(t, apperrors.IsCode(err, "invalid_input"))
	}
}

func TestBuildAbortsOnExtractionFailure(t *testing.T) {
	svc, artifacts := newTestService(t, Config{VectorDim: 3})
	svc.extractor = &stubExtractor{err: apperrors.Wrap("qa_error", "model unavailable", nil)}
	ctx := context.Background()

	forum, err := svc.CreateForum(ctx, "forum.csv", []byte(skyCSV))
	require.NoError(t, err)

	_, err = svc.BuildInferences(ctx, forum.ID, []string{"What color is the sky?"})
	require.Error(t, err)

	_, found, err := artifacts.Get(ctx, forum.ID)
	require.NoError(t, err)
	require.False(t, found, "a failed build must not persist a partial artifact")
}

func TestEmptyAnswerEmbedsToZeroVector(t *testing.T) {
	svc, _ := newTestService(t, Config{VectorDim: 4})
	svc.extractor = &stubExtractor{empty: true}
	ctx := context.Background()

	forum, err := svc.CreateForum(ctx, "forum.csv", []byte(skyCSV))
	require.NoError(t, err)

	result, err := svc.BuildInferences(ctx, forum.ID, []string{"What color is the sky?"})
	require.NoError(t, err)
	record := result.Artifact.Inferences["1"][0]
	require.Empty(t, record.Answer)
	require.Equal(t, []float32{0, 0, 0, 0}, record.AnswerEmbedding)
}

func TestEmbedderDimensionMismatchFailsBuild(t *testing.T) {
	svc, _ := newTestService(t, Config{VectorDim: 3})
	svc.embedder = &stubEmbedder{dim: 5}
	ctx := context.Background()

	forum, err := svc.CreateForum(ctx, "forum.csv", []byte(skyCSV))
	require.NoError(t, err)

	_, err = svc.BuildInferences(ctx, forum.ID, []string{"What color is the sky?"})
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, "embedding_error"))
}

func TestDeleteInferencesWithoutArtifact(t *testing.T) {
	svc, _ := newTestService(t, Config{VectorDim: 3})
	ctx := context.Background()

	forum, err := svc.CreateForum(ctx, "forum.csv", []byte(skyCSV))
	require.NoError(t, err)

	err = svc.DeleteInferences(ctx, forum.ID)
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, "not_found"))

	// The forum itself stays intact.
	got, _, err := svc.GetForumPosts(ctx, forum.ID)
	require.NoError(t, err)
	require.Equal(t, forum.ID, got.ID)
}

func TestRankOverridesBaselineInclusion(t *testing.T) {
	svc, _ := newTestService(t, Config{VectorDim: 3, IncludeBaseline: true})
	ctx := context.Background()

	forum, err := svc.CreateForum(ctx, "forum.csv", []byte(skyCSV))
	require.NoError(t, err)
	_, err = svc.BuildInferences(ctx, forum.ID, []string{"What color is the sky?"})
	require.NoError(t, err)

	relations, err := svc.Rank(ctx, forum.ID, "What color is the sky?", "1", 0.5, nil)
	require.NoError(t, err)
	require.Contains(t, relations, "1")

	exclude := false
	relations, err = svc.Rank(ctx, forum.ID, "What color is the sky?", "1", 0.5, &exclude)
	require.NoError(t, err)
	require.NotContains(t, relations, "1")
}

func TestTargetedQA(t *testing.T) {
	svc, _ := newTestService(t, Config{VectorDim: 3})
	ctx := context.Background()

	forum, err := svc.CreateForum(ctx, "forum.csv", []byte(skyCSV))
	require.NoError(t, err)

	answers, err := svc.TargetedQA(ctx, forum.ID, "What color is the sky?", []string{"1"})
	require.NoError(t, err)
	require.Len(t, answers, 1)
	require.Contains(t, answers["1"].Answer, "blue")
	require.Len(t, answers["1"].AnswerEmbedding, 3)

	_, err = svc.TargetedQA(ctx, forum.ID, "", []string{"1"})
	require.True(t, apperrors.IsCode(err, "invalid_input"))

	_, err = svc.TargetedQA(ctx, forum.ID, "What color is the sky?", nil)
	require.True(t, apperrors.IsCode(err, "invalid_input"))

	_, err = svc.TargetedQA(ctx, forum.ID, "What color is the sky?", []string{"2"})
	require.True(t, apperrors.IsCode(err, "invalid_input"), "reply post ids are not part of the corpus")
}

func TestGetPost(t *testing.T) {
	svc, _ := newTestService(t, Config{VectorDim: 3})
	ctx := context.Background()

	forum, err := svc.CreateForum(ctx, "forum.csv", []byte(skyCSV))
	require.NoError(t, err)

	post, err := svc.GetPost(ctx, forum.ID, 1)
	require.NoError(t, err)
	require.Equal(t, "The sky is blue.", post.Message)
	require.Equal(t, "Ada", post.UserFullName)

	_, err = svc.GetPost(ctx, forum.ID, 2)
	require.True(t, apperrors.IsCode(err, "not_found"))
}

func TestDeleteForumCascades(t *testing.T) {
	svc, artifacts := newTestService(t, Config{VectorDim: 3})
	ctx := context.Background()

	forum, err := svc.CreateForum(ctx, "forum.csv", []byte(skyCSV))
	require.NoError(t, err)
	_, err = svc.BuildInferences(ctx, forum.ID, []string{"What color is the sky?"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteForum(ctx, forum.ID))

	_, found, err := artifacts.Get(ctx, forum.ID)
	require.NoError(t, err)
	require.False(t, found)

	_, _, err = svc.GetForumPosts(ctx, forum.ID)
	require.True(t, apperrors.IsCode(err, "not_found"))
}

// stubLoader parses the tiny CSV fixture format used by these tests: a header
// row followed by id,userid,userfullname,message,parent rows. Rows with a
// non-zero parent are dropped, mirroring the real corpus loader.
type stubLoader struct{}

func (l *stubLoader) Load(r io.Reader) ([]Post, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) < 1 || !strings.HasPrefix(lines[0], "id,") {
		return nil, apperrors.Wrap("malformed_input", "missing header", nil)
	}
	var posts []Post
	for _, line := range lines[1:] {
		fields := strings.Split(line, ",")
		if len(fields) != 5 {
			return nil, apperrors.Wrap("malformed_input", "bad row", nil)
		}
		if fields[4] != "0" {
			continue
		}
		posts = append(posts, Post{
			ID:           mustInt64(fields[0]),
			UserID:       mustInt64(fields[1]),
			UserFullName: fields[2],
			Message:      fields[3],
		})
	}
	return posts, nil
}

func mustInt64(s string) int64 {
	var n int64
	for _, c := range s {
		n = n*10 + int64(c-'0')
	}
	return n
}

// stubExtractor returns the word before the final period, which is enough to
// surface "blue" from the fixture. With empty set it extracts nothing.
type stubExtractor struct {
	err   error
	empty bool
}

func (e *stubExtractor) Extract(ctx context.Context, question, passage string) (Answer, error) {
	if e.err != nil {
		return Answer{}, e.err
	}
	if e.empty {
		return Answer{}, nil
	}
	trimmed := strings.TrimSuffix(passage, ".")
	idx := strings.LastIndexByte(trimmed, ' ')
	return Answer{Text: trimmed[idx+1:], Start: idx + 1, End: len(trimmed)}, nil
}

// stubEmbedder hashes each text into a fixed-dimension vector so equal texts
// embed identically.
type stubEmbedder struct {
	dim int
}

func (e *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, e.dim)
		for j, c := range text {
			vec[j%e.dim] += float32(c)
		}
		out[i] = vec
	}
	return out, nil
}

type stubForumRepo struct {
	mu     sync.Mutex
	forums map[uuid.UUID]Forum
}

func newStubForumRepo() *stubForumRepo {
	return &stubForumRepo{forums: make(map[uuid.UUID]Forum)}
}

func (r *stubForumRepo) Create(ctx context.Context, forum Forum) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forums[forum.ID] = forum
	return nil
}

func (r *stubForumRepo) Get(ctx context.Context, id uuid.UUID) (Forum, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	forum, ok := r.forums[id]
	return forum, ok, nil
}

func (r *stubForumRepo) List(ctx context.Context) ([]Forum, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Forum, 0, len(r.forums))
	for _, forum := range r.forums {
		out = append(out, forum)
	}
	return out, nil
}

func (r *stubForumRepo) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.forums[id]
	delete(r.forums, id)
	return ok, nil
}

type stubArtifactStore struct {
	mu        sync.Mutex
	artifacts map[uuid.UUID]Artifact
}

func newStubArtifactStore() *stubArtifactStore {
	return &stubArtifactStore{artifacts: make(map[uuid.UUID]Artifact)}
}

func (s *stubArtifactStore) Create(ctx context.Context, forumID uuid.UUID, artifact Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.artifacts[forumID]; exists {
		return apperrors.Wrap("duplicate_artifact", "artifact exists", nil)
	}
	s.artifacts[forumID] = artifact
	return nil
}

func (s *stubArtifactStore) Get(ctx context.Context, forumID uuid.UUID) (Artifact, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	artifact, ok := s.artifacts[forumID]
	return artifact, ok, nil
}

func (s *stubArtifactStore) Delete(ctx context.Context, forumID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.artifacts[forumID]
	delete(s.artifacts, forumID)
	return ok, nil
}

type stubStorage struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newStubStorage() *stubStorage {
	return &stubStorage{blobs: make(map[string][]byte)}
}

func (s *stubStorage) Put(ctx context.Context, key string, data []byte, mimeType string) (StoredObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = data
	return StoredObject{Key: key, Size: int64(len(data)), MimeType: mimeType}, nil
}

func (s *stubStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[key]
	if !ok {
		return nil, apperrors.Wrap("not_found", "blob not found", nil)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *stubStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	return nil
}
