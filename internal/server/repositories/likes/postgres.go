package likes

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/poapgate/internal/common"
	"github.com/dmitrijs2005/poapgate/internal/dbx"
	"github.com/dmitrijs2005/poapgate/internal/server/models"
	"github.com/google/uuid"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, like *models.Like) (*models.Like, error) {
	if like.ID == "" {
		like.ID = uuid.NewString()
	}

	query :=
		`INSERT INTO likes (id, post_id, liker)
		 VALUES ($1, $2, $3)
		 RETURNING created_at
		 `

	err := r.db.QueryRowContext(ctx, query, like.ID, like.PostID, like.Liker).Scan(&like.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s already liked post %s", common.ErrDuplicateAction, like.Liker, like.PostID)
		}
		if dbx.IsForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: post %s", common.ErrorNotFound, like.PostID)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return like, nil
}

func (r *PostgresRepository) Exists(ctx context.Context, postID, liker string) (bool, error) {
	query :=
		`SELECT EXISTS (SELECT 1 FROM likes WHERE post_id = $1 AND liker = $2)
		 `

	var ok bool
	if err := r.db.QueryRowContext(ctx, query, postID, liker).Scan(&ok); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return ok, nil
}

func (r *PostgresRepository) CountForPost(ctx context.Context, postID string) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM likes WHERE post_id = $1`, postID).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
