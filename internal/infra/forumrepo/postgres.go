package forumrepo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domain "github.com/yanqian/forum-inference/internal/domain/inference"
)

// PostgresRepository persists forums in Postgres.
//
// Expected schema:
//
//	CREATE TABLE forums (
//	    id uuid PRIMARY KEY,
//	    name text NOT NULL,
//	    storage_key text NOT NULL,
//	    created_at timestamptz NOT NULL
//	);
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs the repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Create(ctx context.Context, forum domain.Forum) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO forums (id, name, storage_key, created_at)
		VALUES ($1, $2, $3, $4)
	`, forum.ID, forum.Name, forum.StorageKey, forum.CreatedAt)
	return err
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (domain.Forum, bool, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, storage_key, created_at
		FROM forums
		WHERE id = $1
	`, id)
	var forum domain.Forum
	if err := row.Scan(&forum.ID, &forum.Name, &forum.StorageKey, &forum.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Forum{}, false, nil
		}
		return domain.Forum{}, false, err
	}
	return forum, true, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]domain.Forum, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, storage_key, created_at
		FROM forums
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Forum
	for rows.Next() {
		var forum domain.Forum
		if err := rows.Scan(&forum.ID, &forum.Name, &forum.StorageKey, &forum.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, forum)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM forums WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

var _ domain.ForumRepository = (*PostgresRepository)(nil)
