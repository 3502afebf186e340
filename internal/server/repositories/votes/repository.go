package votes

import (
	"context"

	"github.com/dmitrijs2005/poapgate/internal/server/models"
)

type Repository interface {
	// Create fails with common.ErrDuplicateAction when voter already voted on
	// the proposal.
	Create(ctx context.Context, v *models.Vote) (*models.Vote, error)
	// Get returns common.ErrorNotFound when voter has not voted.
	Get(ctx context.Context, proposalID, voter string) (*models.Vote, error)
	ListPending(ctx context.Context, limit int) ([]*models.Vote, error)
	SetLedgerStatus(ctx context.Context, id string, status models.LedgerStatus) error
}
