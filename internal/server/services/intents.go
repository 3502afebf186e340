package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/poapgate/internal/common"
	"github.com/dmitrijs2005/poapgate/internal/ledger"
	"github.com/dmitrijs2005/poapgate/internal/logging"
	"github.com/dmitrijs2005/poapgate/internal/metrics"
	"github.com/dmitrijs2005/poapgate/internal/server/milestones"
	"github.com/dmitrijs2005/poapgate/internal/server/mirror"
	"github.com/dmitrijs2005/poapgate/internal/server/models"
	"github.com/dmitrijs2005/poapgate/internal/server/repositories/stats"
	"github.com/dmitrijs2005/poapgate/internal/server/tally"
	"github.com/microcosm-cc/bluemonday"
)

const (
	ActionMintCredential = "mint_credential"
	ActionCreatePost     = "create_post"
	ActionLikePost       = "like_post"
	ActionCreateProposal = "create_proposal"
	ActionCastVote       = "cast_vote"

	maxTitleLen = 200
)

// IntentService runs every state-changing user action as an ordered series
// of steps: eligibility gate, ledger submission, mirror write, counters and
// milestones. There is no transaction spanning the ledger and the mirror; a
// step that fails after an earlier one took effect is logged as a partial
// failure and reported to the caller as an error.
type IntentService struct {
	mirror     *mirror.Client
	gate       Gate
	contracts  Contracts
	chain      Chain
	engine     *milestones.Engine
	reconciler *Reconciler
	sanitizer  *bluemonday.Policy
	logger     logging.Logger
	metrics    *metrics.Metrics
}

func NewIntentService(m *mirror.Client, gate Gate, contracts Contracts, chain Chain, engine *milestones.Engine,
	reconciler *Reconciler, logger logging.Logger, mt *metrics.Metrics) *IntentService {
	if logger == nil {
		logger = logging.Nop()
	}
	return &IntentService{
		mirror:     m,
		gate:       gate,
		contracts:  contracts,
		chain:      chain,
		engine:     engine,
		reconciler: reconciler,
		sanitizer:  newPostPolicy(),
		logger:     logger.With("module", "intents"),
		metrics:    mt,
	}
}

// MintCredential submits mint-poap. Credentials live only on the ledger, so
// nothing is written to the mirror.
func (s *IntentService) MintCredential(ctx context.Context, signer ledger.Signer, recipient, eventName string, eventDate uint64, imageURI string) (h ledger.Handle, err error) {
	defer func() { s.metrics.Intent(ActionMintCredential, outcome(err)) }()

	if strings.TrimSpace(eventName) == "" {
		return ledger.Handle{}, fmt.Errorf("%w: event name is required", common.ErrInvalidInput)
	}
	h, err = s.contracts.MintPOAP(ctx, signer, recipient, eventName, eventDate, imageURI)
	if err != nil {
		return ledger.Handle{}, err
	}
	s.logger.Info(ctx, "credential mint submitted", "recipient", recipient, "event", eventName, "tx_id", h.TxID)
	return h, nil
}

// CreatePost is an off-ledger action gated on credential ownership.
func (s *IntentService) CreatePost(ctx context.Context, author, title, content string) (post *models.Post, err error) {
	defer func() { s.metrics.Intent(ActionCreatePost, outcome(err)) }()

	if len(strings.TrimSpace(title)) > maxTitleLen {
		return nil, fmt.Errorf("%w: title longer than %d bytes", common.ErrInvalidInput, maxTitleLen)
	}
	title, content = s.cleanPost(title, content)
	if title == "" || content == "" {
		return nil, fmt.Errorf("%w: title and content are required", common.ErrInvalidInput)
	}

	if err := s.gate.Require(ctx, author); err != nil {
		return nil, err
	}

	post, err = s.mirror.Posts().Create(ctx, &models.Post{Author: author, Title: title, Content: content})
	if err != nil {
		return nil, mirrorErr(err)
	}
	s.mirror.NotifyPost(ctx, post)

	if err := s.countAndEvaluate(ctx, ActionCreatePost, author, "", stats.PostsCreated, models.CategoryPosts); err != nil {
		return post, err
	}
	return post, nil
}

// LikePost needs only a connected identity. An address can like a post once.
func (s *IntentService) LikePost(ctx context.Context, postID, liker string) (likes int64, err error) {
	defer func() { s.metrics.Intent(ActionLikePost, outcome(err)) }()

	if liker == "" {
		return 0, common.ErrorUnauthorized
	}

	err = s.mirror.InTx(ctx, func(ctx context.Context, st mirror.Store) error {
		if _, err := st.Likes().Create(ctx, &models.Like{PostID: postID, Liker: liker}); err != nil {
			return err
		}
		n, err := st.Posts().IncrementLikes(ctx, postID)
		likes = n
		return err
	})
	if err != nil {
		return 0, mirrorErr(err)
	}

	if err := s.countAndEvaluate(ctx, ActionLikePost, liker, "", stats.LikesGiven, models.CategoryLikes); err != nil {
		return likes, err
	}
	return likes, nil
}

// ProposalInput describes a new proposal.
type ProposalInput struct {
	Title          string
	Description    string
	DurationBlocks uint64
	Options        []string
}

func (in *ProposalInput) validate() error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return fmt.Errorf("%w: title is required", common.ErrInvalidInput)
	}
	if in.DurationBlocks == 0 {
		return fmt.Errorf("%w: duration must be at least one block", common.ErrInvalidInput)
	}
	if n := len(in.Options); n < ledger.MinProposalOptions || n > ledger.MaxProposalOptions {
		return fmt.Errorf("%w: proposals need %d to %d options, got %d",
			common.ErrInvalidInput, ledger.MinProposalOptions, ledger.MaxProposalOptions, n)
	}
	for i, o := range in.Options {
		in.Options[i] = strings.TrimSpace(o)
		if in.Options[i] == "" {
			return fmt.Errorf("%w: option %d is empty", common.ErrInvalidInput, i)
		}
	}
	return nil
}

// CreateProposal submits create-proposal and mirrors the proposal with an
// empty tally. The mirror record keeps its own id; the ledger id is linked
// once the transaction confirms.
func (s *IntentService) CreateProposal(ctx context.Context, signer ledger.Signer, creator string, in ProposalInput) (p *models.Proposal, err error) {
	defer func() { s.metrics.Intent(ActionCreateProposal, outcome(err)) }()

	if err := in.validate(); err != nil {
		return nil, err
	}
	if err := s.gate.Require(ctx, creator); err != nil {
		return nil, err
	}

	start, err := s.chain.TipHeight(ctx)
	if err != nil {
		s.logger.Warn(ctx, "tip height unavailable, proposal window starts at 0", "address", creator, "error", err)
		start = 0
	}

	h, err := s.contracts.CreateProposal(ctx, signer, in.Title, in.Description, in.DurationBlocks, in.Options)
	if err != nil {
		return nil, err
	}

	p, err = s.mirror.Proposals().Create(ctx, &models.Proposal{
		Title:        in.Title,
		Description:  in.Description,
		Creator:      creator,
		StartBlock:   start,
		EndBlock:     start + in.DurationBlocks,
		Options:      in.Options,
		Votes:        make([]int64, len(in.Options)),
		Status:       models.ProposalActive,
		TxID:         h.TxID,
		LedgerStatus: models.LedgerPending,
	})
	if err != nil {
		s.partialFailure(ctx, ActionCreateProposal, "mirror_insert", creator, h.TxID, err)
		return nil, fmt.Errorf("%w: proposal submitted as %s but not recorded: %v", common.ErrMirrorWrite, h.TxID, err)
	}
	return p, nil
}

// CastVote records one vote per address per proposal. The prior read rejects
// repeat votes early; the uniqueness of the vote record rejects a concurrent
// second vote before the tally is touched.
func (s *IntentService) CastVote(ctx context.Context, signer ledger.Signer, voter, proposalID string, option int) (p *models.Proposal, err error) {
	defer func() { s.metrics.Intent(ActionCastVote, outcome(err)) }()

	if err := s.gate.Require(ctx, voter); err != nil {
		return nil, err
	}

	p, err = s.mirror.Proposals().Get(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if p.Status != models.ProposalActive {
		return nil, fmt.Errorf("%w: voting on proposal %s has ended", common.ErrInvalidInput, p.ID)
	}
	if tip, err := s.chain.TipHeight(ctx); err != nil {
		s.logger.Warn(ctx, "tip height unavailable, end block not checked", "proposal_id", p.ID, "error", err)
	} else if tip >= p.EndBlock {
		if _, err := s.mirror.Proposals().CloseEnded(ctx, tip); err != nil {
			s.logger.Warn(ctx, "closing ended proposals", "tip_height", tip, "error", err)
		}
		return nil, fmt.Errorf("%w: voting on proposal %s ended at block %d", common.ErrInvalidInput, p.ID, p.EndBlock)
	}
	if option < 0 || option >= len(p.Options) {
		return nil, fmt.Errorf("%w: option %d out of range", common.ErrInvalidInput, option)
	}

	if _, err := s.mirror.Votes().Get(ctx, p.ID, voter); err == nil {
		return nil, fmt.Errorf("%w: %s already voted on proposal %s", common.ErrDuplicateAction, voter, p.ID)
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	if p.LedgerID == nil && s.reconciler != nil {
		linked, err := s.reconciler.LinkProposal(ctx, p)
		if err != nil {
			s.logger.Warn(ctx, "linking proposal before vote", "proposal_id", p.ID, "error", err)
		} else {
			p = linked
		}
	}
	if p.LedgerID == nil {
		if p.LedgerStatus == models.LedgerFailed {
			return nil, fmt.Errorf("%w: proposal %s was rejected by the ledger", common.ErrInvalidInput, p.ID)
		}
		return nil, common.ErrProposalPending
	}

	if voted, err := s.contracts.HasVoted(ctx, *p.LedgerID, voter); err != nil {
		s.logger.Warn(ctx, "has-voted check failed", "proposal_id", p.ID, "address", voter, "error", err)
	} else if voted {
		return nil, fmt.Errorf("%w: %s already voted on proposal %s", common.ErrDuplicateAction, voter, p.ID)
	}

	h, err := s.contracts.CastVote(ctx, signer, *p.LedgerID, option)
	if err != nil {
		return nil, err
	}

	err = s.mirror.InTx(ctx, func(ctx context.Context, st mirror.Store) error {
		if _, err := st.Votes().Create(ctx, &models.Vote{
			ProposalID:   p.ID,
			Voter:        voter,
			OptionIndex:  option,
			TxID:         h.TxID,
			LedgerStatus: models.LedgerPending,
		}); err != nil {
			return err
		}
		locked, err := st.Proposals().GetForUpdate(ctx, p.ID)
		if err != nil {
			return err
		}
		if err := tally.RecordVote(locked, option); err != nil {
			return err
		}
		if err := st.Proposals().UpdateTally(ctx, locked.ID, locked.Votes, locked.TotalVotes); err != nil {
			return err
		}
		p = locked
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrDuplicateAction) {
			s.logger.Warn(ctx, "concurrent vote rejected", "proposal_id", proposalID, "address", voter, "tx_id", h.TxID)
			return nil, err
		}
		s.partialFailure(ctx, ActionCastVote, "tally", voter, h.TxID, err)
		return nil, fmt.Errorf("%w: vote submitted as %s but not recorded: %v", common.ErrMirrorWrite, h.TxID, err)
	}

	if err := s.countAndEvaluate(ctx, ActionCastVote, voter, h.TxID, stats.VotesCast, models.CategoryVotes); err != nil {
		return p, err
	}
	return p, nil
}

// countAndEvaluate increments counter for address and awards milestones of
// category. Both run after the primary record is durable.
func (s *IntentService) countAndEvaluate(ctx context.Context, action, address, txID string, counter stats.Counter, category models.MilestoneCategory) error {
	if _, err := s.mirror.Stats().Increment(ctx, address, counter); err != nil {
		s.partialFailure(ctx, action, "counter", address, txID, err)
		return fmt.Errorf("%w: %s counter not updated: %v", common.ErrMirrorWrite, counter, err)
	}
	if _, err := s.engine.Evaluate(ctx, address, category); err != nil {
		s.partialFailure(ctx, action, "milestones", address, txID, err)
		return fmt.Errorf("%w: %s milestones not evaluated: %v", common.ErrMirrorWrite, category, err)
	}
	return nil
}

func (s *IntentService) partialFailure(ctx context.Context, action, step, address, txID string, err error) {
	s.metrics.PartialFailure(action, step)
	s.logger.Error(ctx, "partial failure",
		"action", action, "step", step, "address", address, "tx_id", txID, "error", err)
}

// mirrorErr keeps the sentinels callers act on and folds anything else into
// ErrMirrorWrite.
func mirrorErr(err error) error {
	switch {
	case errors.Is(err, common.ErrDuplicateAction),
		errors.Is(err, common.ErrorNotFound),
		errors.Is(err, common.ErrInvalidInput):
		return err
	default:
		return fmt.Errorf("%w: %v", common.ErrMirrorWrite, err)
	}
}
