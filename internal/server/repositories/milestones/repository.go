package milestones

import (
	"context"

	"github.com/dmitrijs2005/poapgate/internal/server/models"
)

type Repository interface {
	// Upsert inserts or replaces a definition by ID.
	Upsert(ctx context.Context, m *models.Milestone) error
	Get(ctx context.Context, id string) (*models.Milestone, error)
	// List returns all definitions ordered by target ascending.
	List(ctx context.Context) ([]*models.Milestone, error)
	ListByCategory(ctx context.Context, category models.MilestoneCategory) ([]*models.Milestone, error)
}
