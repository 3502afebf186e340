package likes

import (
	"context"

	"github.com/dmitrijs2005/poapgate/internal/server/models"
)

type Repository interface {
	// Create fails with common.ErrDuplicateAction when liker already liked the post.
	Create(ctx context.Context, like *models.Like) (*models.Like, error)
	Exists(ctx context.Context, postID, liker string) (bool, error)
	CountForPost(ctx context.Context, postID string) (int64, error)
}
