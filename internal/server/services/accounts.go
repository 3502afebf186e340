package services

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/poapgate/internal/common"
	"github.com/dmitrijs2005/poapgate/internal/ledger/clarity"
	"github.com/dmitrijs2005/poapgate/internal/logging"
	"github.com/dmitrijs2005/poapgate/internal/server/milestones"
	"github.com/dmitrijs2005/poapgate/internal/server/mirror"
	"github.com/dmitrijs2005/poapgate/internal/server/models"
)

type AccountService struct {
	mirror    *mirror.Client
	contracts Contracts
	engine    *milestones.Engine
	logger    logging.Logger
}

func NewAccountService(m *mirror.Client, contracts Contracts, engine *milestones.Engine, logger logging.Logger) *AccountService {
	if logger == nil {
		logger = logging.Nop()
	}
	return &AccountService{mirror: m, contracts: contracts, engine: engine, logger: logger.With("module", "accounts")}
}

// Overview returns counters and milestone progress for address. The
// credential count is first raised to the ledger balance; it is never
// lowered, and a failed balance read leaves it as is.
func (s *AccountService) Overview(ctx context.Context, address string) (*milestones.Overview, error) {
	if _, err := s.mirror.Stats().Ensure(ctx, address); err != nil {
		return nil, fmt.Errorf("creating account stats: %w", err)
	}
	if err := s.SyncCredentials(ctx, address); err != nil {
		s.logger.Warn(ctx, "credential count not synced", "address", address, "error", err)
	}
	return s.engine.Overview(ctx, address)
}

// PublicOverview is Overview for any address, as seen by anyone. It reads
// only, so looking an address up never creates an account.
func (s *AccountService) PublicOverview(ctx context.Context, address string) (*milestones.Overview, error) {
	if _, err := clarity.Principal(address); err != nil {
		return nil, fmt.Errorf("%w: address: %v", common.ErrInvalidInput, err)
	}
	return s.engine.Overview(ctx, address)
}

// SyncCredentials raises poaps_owned to the ledger balance and evaluates
// poaps milestones.
func (s *AccountService) SyncCredentials(ctx context.Context, address string) error {
	balance, err := s.contracts.GetBalance(ctx, address)
	if err != nil {
		return err
	}
	if _, err := s.mirror.Stats().RaisePOAPs(ctx, address, int64(balance)); err != nil {
		return fmt.Errorf("raising poaps_owned: %w", err)
	}
	if _, err := s.engine.Evaluate(ctx, address, models.CategoryPOAPs); err != nil {
		return fmt.Errorf("evaluating poaps milestones: %w", err)
	}
	return nil
}

// Evaluate re-runs milestone evaluation for every category.
func (s *AccountService) Evaluate(ctx context.Context, address string) ([]*models.Milestone, error) {
	var awarded []*models.Milestone
	for _, c := range models.Categories {
		got, err := s.engine.Evaluate(ctx, address, c)
		if err != nil {
			return awarded, err
		}
		awarded = append(awarded, got...)
	}
	return awarded, nil
}
