package posts

import (
	"context"

	"github.com/dmitrijs2005/poapgate/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, post *models.Post) (*models.Post, error)
	Get(ctx context.Context, id string) (*models.Post, error)
	// List returns posts newest first.
	List(ctx context.Context, limit, offset int) ([]*models.Post, error)
	IncrementLikes(ctx context.Context, id string) (int64, error)
	Count(ctx context.Context) (int64, error)
}
