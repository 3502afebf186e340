package completions

import (
	"context"

	"github.com/dmitrijs2005/poapgate/internal/server/models"
)

type Repository interface {
	// Create fails with common.ErrDuplicateAction if the pair already exists.
	Create(ctx context.Context, address, milestoneID string) (*models.Completion, error)
	Exists(ctx context.Context, address, milestoneID string) (bool, error)
	ListForAddress(ctx context.Context, address string) ([]*models.Completion, error)
}
