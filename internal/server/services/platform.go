package services

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/poapgate/internal/logging"
	"github.com/dmitrijs2005/poapgate/internal/server/mirror"
	"github.com/dmitrijs2005/poapgate/internal/server/models"
	"github.com/dmitrijs2005/poapgate/internal/server/tally"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PlatformService serves the read side: listings, proposal detail and the
// platform summary.
type PlatformService struct {
	mirror    *mirror.Client
	contracts Contracts
	logger    logging.Logger
}

func NewPlatformService(m *mirror.Client, contracts Contracts, logger logging.Logger) *PlatformService {
	if logger == nil {
		logger = logging.Nop()
	}
	return &PlatformService{mirror: m, contracts: contracts, logger: logger.With("module", "platform")}
}

func (s *PlatformService) Stats(ctx context.Context) (*models.PlatformStats, error) {
	var out models.PlatformStats
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		out.Posts, err = s.mirror.Posts().Count(gctx)
		return err
	})
	g.Go(func() (err error) {
		out.Proposals, err = s.mirror.Proposals().Count(gctx)
		return err
	})
	g.Go(func() (err error) {
		out.Users, err = s.mirror.Stats().Count(gctx)
		return err
	})
	g.Go(func() (err error) {
		out.ActiveProposals, err = s.mirror.Proposals().CountActive(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("counting platform stats: %w", err)
	}
	return &out, nil
}

// ClampPage bounds a requested page size.
func ClampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (s *PlatformService) ListPosts(ctx context.Context, limit, offset int) ([]*models.Post, error) {
	limit, offset = ClampPage(limit, offset)
	return s.mirror.Posts().List(ctx, limit, offset)
}

func (s *PlatformService) GetPost(ctx context.Context, id string) (*models.Post, error) {
	return s.mirror.Posts().Get(ctx, id)
}

func (s *PlatformService) ListProposals(ctx context.Context, limit, offset int) ([]*models.Proposal, error) {
	limit, offset = ClampPage(limit, offset)
	return s.mirror.Proposals().List(ctx, limit, offset)
}

func (s *PlatformService) ListMilestones(ctx context.Context) ([]*models.Milestone, error) {
	return s.mirror.Milestones().List(ctx)
}

// ProposalDetail is a proposal with its per-option shares and, once known,
// the ledger's winning option.
type ProposalDetail struct {
	*models.Proposal
	Percentages   []float64 `json:"percentages"`
	WinningOption *int      `json:"winning_option,omitempty"`
}

// GetProposal returns the mirrored proposal. The winning option is read from
// the ledger so the contract's tie-break applies; if that read fails the
// field is left empty.
func (s *PlatformService) GetProposal(ctx context.Context, id string) (*ProposalDetail, error) {
	p, err := s.mirror.Proposals().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	tally.Normalize(p)

	d := &ProposalDetail{Proposal: p, Percentages: tally.Percentages(p)}
	if p.LedgerID == nil || p.TotalVotes == 0 {
		return d, nil
	}

	idx, ok, err := s.contracts.GetWinningOption(ctx, *p.LedgerID)
	if err != nil {
		s.logger.Warn(ctx, "winning option unavailable", "proposal_id", p.ID, "ledger_id", *p.LedgerID, "error", err)
		return d, nil
	}
	if ok && idx >= 0 && idx < len(p.Options) {
		d.WinningOption = &idx
	}
	return d, nil
}
