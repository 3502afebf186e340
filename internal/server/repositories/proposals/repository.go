package proposals

import (
	"context"

	"github.com/dmitrijs2005/poapgate/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, p *models.Proposal) (*models.Proposal, error)
	Get(ctx context.Context, id string) (*models.Proposal, error)
	// GetForUpdate locks the row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id string) (*models.Proposal, error)
	// List returns proposals newest first.
	List(ctx context.Context, limit, offset int) ([]*models.Proposal, error)
	UpdateTally(ctx context.Context, id string, votes []int64, total int64) error
	// Link records the ledger outcome of the creating transaction. A nil
	// ledgerID keeps the stored one.
	Link(ctx context.Context, id string, ledgerID *uint64, status models.LedgerStatus) error
	// ListPending returns proposals whose creating transaction is unconfirmed.
	ListPending(ctx context.Context, limit int) ([]*models.Proposal, error)
	// CloseEnded marks active proposals with end_block <= tip as ended.
	CloseEnded(ctx context.Context, tip uint64) (int64, error)
	Count(ctx context.Context) (int64, error)
	CountActive(ctx context.Context) (int64, error)
}
