package inference

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/yanqian/forum-inference/pkg/errors"
	"github.com/yanqian/forum-inference/pkg/metrics"
	"github.com/yanqian/forum-inference/pkg/util"
)

// Config drives forum and build limits.
type Config struct {
	// VectorDim is the embedding dimension expected from the embedder. Empty
	// extracted answers embed to the zero vector of this dimension instead of
	// hitting the model.
	VectorDim int
	// Workers bounds the build worker pool; zero means one worker per CPU.
	Workers int
	// MaxUploadBytes caps accepted forum exports; zero disables the cap.
	MaxUploadBytes int64
	// IncludeBaseline is the default for ranking when the request leaves the
	// flag unset.
	IncludeBaseline bool
}

// Service orchestrates the corpus loader, answer extractor, and embedder to
// build per-forum inference artifacts and serve similarity queries over them.
type Service struct {
	cfg       Config
	forums    ForumRepository
	artifacts ArtifactStore
	storage   ObjectStorage
	corpus    CorpusLoader
	extractor AnswerExtractor
	embedder  Embedder
	logger    *slog.Logger

	buildMu sync.Mutex
	builds  map[uuid.UUID]*sync.Mutex
}

// NewService constructs a Service.
func NewService(cfg Config, forums ForumRepository, artifacts ArtifactStore, storage ObjectStorage, corpus CorpusLoader, extractor AnswerExtractor, embedder Embedder, logger *slog.Logger) *Service {
	return &Service{
		cfg:       cfg,
		forums:    forums,
		artifacts: artifacts,
		storage:   storage,
		corpus:    corpus,
		extractor: extractor,
		embedder:  embedder,
		logger:    logger.With("component", "inference.service"),
		builds:    make(map[uuid.UUID]*sync.Mutex),
	}
}

// BuildResult bundles the persisted artifact with batch cost metrics.
type BuildResult struct {
	Artifact Artifact           `json:"artifact"`
	Stats    metrics.BuildStats `json:"stats"`
}

// CreateForum stores the uploaded export blob and registers the forum.
func (s *Service) CreateForum(ctx context.Context, filename string, content []byte) (Forum, error) {
	if len(content) == 0 {
		return Forum{}, apperrors.Wrap("invalid_input", "forum export cannot be empty", nil)
	}
	if s.cfg.MaxUploadBytes > 0 && int64(len(content)) > s.cfg.MaxUploadBytes {
		return Forum{}, apperrors.Wrap("invalid_input", "forum export exceeds maximum allowed size", nil)
	}
	// Reject unparseable exports up front so a forum never exists without a
	// loadable corpus.
	if _, err := s.corpus.Load(bytes.NewReader(content)); err != nil {
		return Forum{}, err
	}

	forum := Forum{
		ID:        uuid.New(),
		Name:      forumName(filename),
		CreatedAt: util.NowUTC(),
	}
	forum.StorageKey = fmt.Sprintf("forums/%s/%s", forum.ID.String(), sanitizeFilename(filename))

	obj, err := s.storage.Put(ctx, forum.StorageKey, content, "text/csv")
	if err != nil {
		return Forum{}, apperrors.Wrap("storage_error", "failed to store forum export", err)
	}
	forum.StorageKey = obj.Key

	if err := s.forums.Create(ctx, forum); err != nil {
		return Forum{}, apperrors.Wrap("storage_error", "failed to persist forum", err)
	}
	s.logger.Info("forum created", "forum_id", forum.ID, "name", forum.Name, "bytes", obj.Size)
	return forum, nil
}

// ListForums returns all registered forums.
func (s *Service) ListForums(ctx context.Context) ([]Forum, error) {
	forums, err := s.forums.List(ctx)
	if err != nil {
		return nil, apperrors.Wrap("storage_error", "failed to list forums", err)
	}
	return forums, nil
}

// GetForumPosts loads the forum and its normalized top-level posts.
func (s *Service) GetForumPosts(ctx context.Context, forumID uuid.UUID) (Forum, []Post, error) {
	forum, err := s.getForum(ctx, forumID)
	if err != nil {
		return Forum{}, nil, err
	}
	posts, err := s.loadPosts(ctx, forum)
	if err != nil {
		return Forum{}, nil, err
	}
	return forum, posts, nil
}

// GetPost returns a single top-level post by id.
func (s *Service) GetPost(ctx context.Context, forumID uuid.UUID, postID int64) (Post, error) {
	_, posts, err := s.GetForumPosts(ctx, forumID)
	if err != nil {
		return Post{}, err
	}
	for _, post := range posts {
		if post.ID == postID {
			return post, nil
		}
	}
	return Post{}, apperrors.Wrap("not_found", "post not found in forum", nil)
}

// DeleteForum removes the forum, its source blob, and its artifact if any.
func (s *Service) DeleteForum(ctx context.Context, forumID uuid.UUID) error {
	forum, err := s.getForum(ctx, forumID)
	if err != nil {
		return err
	}
	if _, err := s.artifacts.Delete(ctx, forumID); err != nil {
		return apperrors.Wrap("storage_error", "failed to delete inference artifact", err)
	}
	if err := s.storage.Delete(ctx, forum.StorageKey); err != nil {
		return apperrors.Wrap("storage_error", "failed to delete forum export", err)
	}
	if _, err := s.forums.Delete(ctx, forumID); err != nil {
		return apperrors.Wrap("storage_error", "failed to delete forum", err)
	}
	s.logger.Info("forum deleted", "forum_id", forumID)
	return nil
}

// BuildInferences runs the extractor and embedder over every (post, question)
// pair and persists the batch as the forum's artifact. The batch is atomic: a
// single failed pair aborts the build and nothing is persisted. At most one
// build per forum ever succeeds.
func (s *Service) BuildInferences(ctx context.Context, forumID uuid.UUID, questions []string) (BuildResult, error) {
	if err := validateQuestions(questions); err != nil {
		return BuildResult{}, err
	}
	forum, err := s.getForum(ctx, forumID)
	if err != nil {
		return BuildResult{}, err
	}

	// Serialize builds per forum so two concurrent requests cannot both pass
	// the existence check. The store's create-if-absent backs this up across
	// processes.
	mu := s.buildLock(forumID)
	mu.Lock()
	defer mu.Unlock()

	if _, found, err := s.artifacts.Get(ctx, forumID); err != nil {
		return BuildResult{}, apperrors.Wrap("storage_error", "failed to check for existing artifact", err)
	} else if found {
		return BuildResult{}, apperrors.Wrap("duplicate_artifact", "an inference artifact already exists for this forum", nil)
	}

	posts, err := s.loadPosts(ctx, forum)
	if err != nil {
		return BuildResult{}, err
	}

	start := time.Now()
	workers := s.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	s.logger.Info("inference build started", "forum_id", forumID, "posts", len(posts), "questions", len(questions), "workers", workers)

	answersByPost := make([][]AnswerRecord, len(posts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, post := range posts {
		i, post := i, post
		g.Go(func() error {
			answers, err := s.inferPost(gctx, post, questions)
			if err != nil {
				return err
			}
			answersByPost[i] = answers
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Warn("inference build aborted", "forum_id", forumID, "error", err)
		return BuildResult{}, err
	}

	artifact := Artifact{
		Questions:  questions,
		Inferences: make(map[string][]AnswerRecord, len(posts)),
	}
	for i, post := range posts {
		artifact.Inferences[strconv.FormatInt(post.ID, 10)] = answersByPost[i]
	}

	if err := s.artifacts.Create(ctx, forumID, artifact); err != nil {
		if apperrors.IsCode(err, "duplicate_artifact") {
			return BuildResult{}, err
		}
		return BuildResult{}, apperrors.Wrap("storage_error", "failed to persist inference artifact", err)
	}

	stats := metrics.BuildStats{
		Posts:      len(posts),
		Questions:  len(questions),
		Pairs:      len(posts) * len(questions),
		DurationMs: time.Since(start).Milliseconds(),
	}
	s.logger.Info("inference build complete", "forum_id", forumID, "pairs", stats.Pairs, "duration_ms", stats.DurationMs)
	return BuildResult{Artifact: artifact, Stats: stats}, nil
}

// GetInferences returns the forum's persisted artifact.
func (s *Service) GetInferences(ctx context.Context, forumID uuid.UUID) (Artifact, error) {
	if _, err := s.getForum(ctx, forumID); err != nil {
		return Artifact{}, err
	}
	artifact, found, err := s.artifacts.Get(ctx, forumID)
	if err != nil {
		return Artifact{}, apperrors.Wrap("storage_error", "failed to load inference artifact", err)
	}
	if !found {
		return Artifact{}, apperrors.Wrap("not_found", "no inferences exist for forum", nil)
	}
	return artifact, nil
}

// DeleteInferences removes the forum's artifact as a unit.
func (s *Service) DeleteInferences(ctx context.Context, forumID uuid.UUID) error {
	if _, err := s.getForum(ctx, forumID); err != nil {
		return err
	}
	deleted, err := s.artifacts.Delete(ctx, forumID)
	if err != nil {
		return apperrors.Wrap("storage_error", "failed to delete inference artifact", err)
	}
	if !deleted {
		return apperrors.Wrap("not_found", "no inferences exist for forum", nil)
	}
	s.logger.Info("inferences deleted", "forum_id", forumID)
	return nil
}

// Rank computes cosine similarity between the baseline post's answer and every
// other post's answer for the same question, keeping results strictly above
// threshold. includeBaseline overrides the configured default when non-nil.
func (s *Service) Rank(ctx context.Context, forumID uuid.UUID, question, basePostID string, threshold float64, includeBaseline *bool) (map[string]Relation, error) {
	artifact, err := s.GetInferences(ctx, forumID)
	if err != nil {
		return nil, err
	}
	opts := RankOptions{IncludeBaseline: s.cfg.IncludeBaseline}
	if includeBaseline != nil {
		opts.IncludeBaseline = *includeBaseline
	}
	return Rank(artifact, question, basePostID, threshold, opts)
}

// TargetedQA answers one ad hoc question for a named subset of posts, without
// touching the persisted artifact.
func (s *Service) TargetedQA(ctx context.Context, forumID uuid.UUID, question string, postIDs []string) (map[string]AnswerRecord, error) {
	if strings.TrimSpace(question) == "" {
		return nil, apperrors.Wrap("invalid_input", "question cannot be empty", nil)
	}
	if len(postIDs) == 0 {
		return nil, apperrors.Wrap("invalid_input", "post_ids cannot be empty", nil)
	}
	_, posts, err := s.GetForumPosts(ctx, forumID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Post, len(posts))
	for _, post := range posts {
		byID[strconv.FormatInt(post.ID, 10)] = post
	}

	out := make(map[string]AnswerRecord, len(postIDs))
	for _, id := range postIDs {
		post, ok := byID[id]
		if !ok {
			return nil, apperrors.Wrap("invalid_input", "post id "+id+" not present in forum", nil)
		}
		answers, err := s.inferPost(ctx, post, []string{question})
		if err != nil {
			return nil, err
		}
		out[id] = answers[0]
	}
	return out, nil
}

// inferPost produces one AnswerRecord per question, in question order.
func (s *Service) inferPost(ctx context.Context, post Post, questions []string) ([]AnswerRecord, error) {
	answers := make([]AnswerRecord, 0, len(questions))
	for _, question := range questions {
		extracted, err := s.extractor.Extract(ctx, question, post.Message)
		if err != nil {
			return nil, apperrors.Wrap("qa_error", fmt.Sprintf("answer extraction failed for post %d", post.ID), err)
		}
		embedding, err := s.embedAnswer(ctx, extracted.Text)
		if err != nil {
			return nil, apperrors.Wrap("embedding_error", fmt.Sprintf("answer embedding failed for post %d", post.ID), err)
		}
		answers = append(answers, AnswerRecord{
			Answer:          extracted.Text,
			StartInd:        extracted.Start,
			EndInd:          extracted.End,
			AnswerEmbedding: embedding,
		})
	}
	return answers, nil
}

// embedAnswer maps an extracted answer to its vector. Empty answers embed to
// the zero vector of the configured dimension so the artifact keeps its
// fixed-dimensionality invariant without a model round trip.
func (s *Service) embedAnswer(ctx context.Context, answer string) ([]float32, error) {
	if strings.TrimSpace(answer) == "" {
		return make([]float32, s.cfg.VectorDim), nil
	}
	embeddings, err := s.embedder.Embed(ctx, []string{answer})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, apperrors.Wrap("embedding_error", "no embedding returned", nil)
	}
	if s.cfg.VectorDim > 0 && len(embeddings[0]) != s.cfg.VectorDim {
		return nil, apperrors.Wrap("dimension_mismatch", "embedder returned unexpected dimension", nil)
	}
	return embeddings[0], nil
}

func (s *Service) getForum(ctx context.Context, forumID uuid.UUID) (Forum, error) {
	forum, found, err := s.forums.Get(ctx, forumID)
	if err != nil {
		return Forum{}, apperrors.Wrap("storage_error", "failed to load forum", err)
	}
	if !found {
		return Forum{}, apperrors.Wrap("not_found", "forum does not exist", nil)
	}
	return forum, nil
}

func (s *Service) loadPosts(ctx context.Context, forum Forum) ([]Post, error) {
	reader, err := s.storage.Get(ctx, forum.StorageKey)
	if err != nil {
		return nil, apperrors.Wrap("storage_error", "failed to fetch forum export", err)
	}
	defer reader.Close()
	posts, err := s.corpus.Load(reader)
	if err != nil {
		return nil, err
	}
	return posts, nil
}

func (s *Service) buildLock(forumID uuid.UUID) *sync.Mutex {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()
	mu, ok := s.builds[forumID]
	if !ok {
		mu = &sync.Mutex{}
		s.builds[forumID] = mu
	}
	return mu
}

func validateQuestions(questions []string) error {
	if len(questions) == 0 {
		return apperrors.Wrap("invalid_input", "questions cannot be empty", nil)
	}
	seen := make(map[string]struct{}, len(questions))
	for _, question := range questions {
		if strings.TrimSpace(question) == "" {
			return apperrors.Wrap("invalid_input", "questions cannot contain empty entries", nil)
		}
		if _, dup := seen[question]; dup {
			return apperrors.Wrap("invalid_input", "questions must be unique", nil)
		}
		seen[question] = struct{}{}
	}
	return nil
}

func forumName(filename string) string {
	name := filename
	if idx := strings.LastIndexByte(name, '/'); idx >= 0 {
		name = name[idx+1:]
	}
	name = strings.TrimSuffix(name, ".csv")
	if strings.TrimSpace(name) == "" {
		return "forum"
	}
	return name
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, " ", "_")
	if name == "" {
		return "forum.csv"
	}
	return name
}
