package artifactstore

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	domain "github.com/yanqian/forum-inference/internal/domain/inference"
	apperrors "github.com/yanqian/forum-inference/pkg/errors"
)

const uniqueViolationCode = "23505"

// PostgresStore persists one artifact per forum: a header row carrying the
// question list and one answer row per (post, question) pair with the
// embedding in a pgvector column. The primary key on forum_inferences makes
// concurrent duplicate builds lose cleanly.
//
// Expected schema (dimension matches the configured embedder):
//
//	CREATE TABLE forum_inferences (
//	    forum_id uuid PRIMARY KEY REFERENCES forums(id) ON DELETE CASCADE,
//	    questions jsonb NOT NULL,
//	    created_at timestamptz NOT NULL DEFAULT now()
//	);
//	CREATE TABLE forum_inference_answers (
//	    forum_id uuid NOT NULL REFERENCES forum_inferences(forum_id) ON DELETE CASCADE,
//	    post_id text NOT NULL,
//	    question_ind int NOT NULL,
//	    answer text NOT NULL,
//	    start_ind int NOT NULL,
//	    end_ind int NOT NULL,
//	    answer_embedding vector NOT NULL,
//	    PRIMARY KEY (forum_id, post_id, question_ind)
//	);
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs the store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Create(ctx context.Context, forumID uuid.UUID, artifact domain.Artifact) error {
	questions, err := json.Marshal(artifact.Questions)
	if err != nil {
		return err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO forum_inferences (forum_id, questions)
		VALUES ($1, $2)
	`, forumID, questions); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return apperrors.Wrap("duplicate_artifact", "an inference artifact already exists for this forum", err)
		}
		return err
	}

	batch := &pgx.Batch{}
	for _, postID := range artifact.PostIDs() {
		for ind, answer := range artifact.Inferences[postID] {
			batch.Queue(`
				INSERT INTO forum_inference_answers (forum_id, post_id, question_ind, answer, start_ind, end_ind, answer_embedding)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, forumID, postID, ind, answer.Answer, answer.StartInd, answer.EndInd, pgvector.NewVector(answer.AnswerEmbedding))
		}
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) Get(ctx context.Context, forumID uuid.UUID) (domain.Artifact, bool, error) {
	var rawQuestions []byte
	err := s.pool.QueryRow(ctx, `
		SELECT questions FROM forum_inferences WHERE forum_id = $1
	`, forumID).Scan(&rawQuestions)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Artifact{}, false, nil
		}
		return domain.Artifact{}, false, err
	}
	artifact := domain.Artifact{Inferences: make(map[string][]domain.AnswerRecord)}
	if err := json.Unmarshal(rawQuestions, &artifact.Questions); err != nil {
		return domain.Artifact{}, false, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT post_id, question_ind, answer, start_ind, end_ind, answer_embedding
		FROM forum_inference_answers
		WHERE forum_id = $1
		ORDER BY post_id, question_ind
	`, forumID)
	if err != nil {
		return domain.Artifact{}, false, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			postID      string
			questionInd int
			record      domain.AnswerRecord
			embedding   pgvector.Vector
		)
		if err := rows.Scan(&postID, &questionInd, &record.Answer, &record.StartInd, &record.EndInd, &embedding); err != nil {
			return domain.Artifact{}, false, err
		}
		record.AnswerEmbedding = embedding.Slice()
		answers := artifact.Inferences[postID]
		if answers == nil {
			answers = make([]domain.AnswerRecord, len(artifact.Questions))
		}
		if questionInd >= 0 && questionInd < len(answers) {
			answers[questionInd] = record
		}
		artifact.Inferences[postID] = answers
	}
	if err := rows.Err(); err != nil {
		return domain.Artifact{}, false, err
	}
	return artifact, true, nil
}

func (s *PostgresStore) Delete(ctx context.Context, forumID uuid.UUID) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)
	if _, err := tx.Exec(ctx, `DELETE FROM forum_inference_answers WHERE forum_id = $1`, forumID); err != nil {
		return false, err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM forum_inferences WHERE forum_id = $1`, forumID)
	if err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

var _ domain.ArtifactStore = (*PostgresStore)(nil)
