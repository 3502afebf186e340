package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/poapgate/internal/ledger"
	"github.com/dmitrijs2005/poapgate/internal/logging"
	"github.com/dmitrijs2005/poapgate/internal/metrics"
	"github.com/dmitrijs2005/poapgate/internal/server/mirror"
	"github.com/dmitrijs2005/poapgate/internal/server/models"
	"github.com/dmitrijs2005/poapgate/internal/server/tally"
)

const defaultReconcileBatch = 100

// ReconcileReport summarizes one reconcile pass.
type ReconcileReport struct {
	TipHeight          uint64 `json:"tip_height"`
	ProposalsClosed    int64  `json:"proposals_closed"`
	ProposalsConfirmed int    `json:"proposals_confirmed"`
	ProposalsFailed    int    `json:"proposals_failed"`
	VotesConfirmed     int    `json:"votes_confirmed"`
	VotesFailed        int    `json:"votes_failed"`
	StillPending       int    `json:"still_pending"`
}

// maxUnseenAge is how long a transaction id may stay unknown to the indexer
// before its mirror record is given up as failed.
const maxUnseenAge = 24 * time.Hour

// Reconciler brings mirror records in line with what the ledger confirmed.
// A record fails when its transaction fails, when the indexer shows a
// different call or sender than the record claims, or when the indexer never
// sees it. Failed votes are taken back out of the tally.
type Reconciler struct {
	mirror  *mirror.Client
	chain   Chain
	voting  ledger.ContractID
	logger  logging.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	batch   int
}

func NewReconciler(m *mirror.Client, chain Chain, voting ledger.ContractID, logger logging.Logger, mt *metrics.Metrics) *Reconciler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Reconciler{
		mirror:  m,
		chain:   chain,
		voting:  voting,
		logger:  logger.With("module", "reconciler"),
		metrics: mt,
		now:     time.Now,
		batch:   defaultReconcileBatch,
	}
}

// Run performs one pass: closes proposals past their end block, then checks
// every pending proposal and vote transaction.
func (r *Reconciler) Run(ctx context.Context) (*ReconcileReport, error) {
	rep := &ReconcileReport{}

	tip, err := r.chain.TipHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading tip height: %w", err)
	}
	rep.TipHeight = tip

	closed, err := r.mirror.Proposals().CloseEnded(ctx, tip)
	if err != nil {
		return nil, fmt.Errorf("closing ended proposals: %w", err)
	}
	rep.ProposalsClosed = closed

	pending, err := r.mirror.Proposals().ListPending(ctx, r.batch)
	if err != nil {
		return nil, fmt.Errorf("listing pending proposals: %w", err)
	}
	stillProposals := 0
	for _, p := range pending {
		linked, err := r.LinkProposal(ctx, p)
		if err != nil {
			r.logger.Warn(ctx, "proposal not reconciled", "proposal_id", p.ID, "tx_id", p.TxID, "error", err)
			stillProposals++
			continue
		}
		switch linked.LedgerStatus {
		case models.LedgerConfirmed:
			rep.ProposalsConfirmed++
		case models.LedgerFailed:
			rep.ProposalsFailed++
		default:
			stillProposals++
		}
	}

	votes, err := r.mirror.Votes().ListPending(ctx, r.batch)
	if err != nil {
		return nil, fmt.Errorf("listing pending votes: %w", err)
	}
	stillVotes := 0
	for _, v := range votes {
		status, err := r.confirmVote(ctx, v)
		if err != nil {
			r.logger.Warn(ctx, "vote not reconciled", "vote_id", v.ID, "tx_id", v.TxID, "error", err)
			stillVotes++
			continue
		}
		switch status {
		case models.LedgerConfirmed:
			rep.VotesConfirmed++
		case models.LedgerFailed:
			rep.VotesFailed++
		default:
			stillVotes++
		}
	}

	rep.StillPending = stillProposals + stillVotes
	r.metrics.PendingTransactions("proposal", stillProposals)
	r.metrics.PendingTransactions("vote", stillVotes)

	r.logger.Info(ctx, "reconcile pass finished",
		"tip_height", tip,
		"closed", rep.ProposalsClosed,
		"proposals_confirmed", rep.ProposalsConfirmed,
		"proposals_failed", rep.ProposalsFailed,
		"votes_confirmed", rep.VotesConfirmed,
		"votes_failed", rep.VotesFailed,
		"pending", rep.StillPending)
	return rep, nil
}

// check returns why the record behind st cannot stand, or "" while it can.
// A pending or successful transaction stands only if it is call from sender.
func (r *Reconciler) check(st ledger.TxStatus, sender string, call ledger.ContractCall, created time.Time) string {
	if !st.Seen() {
		if !created.IsZero() && r.now().Sub(created) > maxUnseenAge {
			return fmt.Sprintf("not seen by the indexer after %s", maxUnseenAge)
		}
		return ""
	}
	if st.State == ledger.TxFailed {
		return "failed on ledger with status " + st.RawStatus
	}
	return ledger.CallMismatch(st, sender, call)
}

func (r *Reconciler) proposalCall(p *models.Proposal) ledger.ContractCall {
	return ledger.ContractCall{
		Contract: r.voting,
		Function: "create-proposal",
		Args:     ledger.ProposalArgs(p.Title, p.Description, p.EndBlock-p.StartBlock, p.Options),
	}
}

func (r *Reconciler) voteCall(ledgerID uint64, v *models.Vote) ledger.ContractCall {
	return ledger.ContractCall{
		Contract: r.voting,
		Function: "cast-vote",
		Args:     ledger.VoteArgs(ledgerID, v.OptionIndex),
	}
}

// LinkProposal checks the creating transaction of p. On success the ledger
// proposal id is recorded; the returned proposal reflects any change.
func (r *Reconciler) LinkProposal(ctx context.Context, p *models.Proposal) (*models.Proposal, error) {
	if p.LedgerID != nil || p.TxID == "" || p.LedgerStatus != models.LedgerPending {
		return p, nil
	}

	st, err := r.chain.TxStatus(ctx, p.TxID)
	if err != nil {
		return p, err
	}

	if reason := r.check(st, p.Creator, r.proposalCall(p), p.CreatedAt); reason != "" {
		if err := r.mirror.Proposals().Link(ctx, p.ID, nil, models.LedgerFailed); err != nil {
			return p, fmt.Errorf("marking proposal failed: %w", err)
		}
		r.metrics.Divergence("proposal")
		r.logger.Error(ctx, "proposal transaction rejected",
			"action", "create_proposal", "step", "ledger", "address", p.Creator, "tx_id", p.TxID,
			"status", st.RawStatus, "reason", reason)
		cp := *p
		cp.LedgerStatus = models.LedgerFailed
		return &cp, nil
	}
	if st.State != ledger.TxSuccess {
		return p, nil
	}

	id, err := createdProposalID(st.Result)
	if err != nil {
		return p, fmt.Errorf("decoding create-proposal result: %w", err)
	}
	if err := r.mirror.Proposals().Link(ctx, p.ID, &id, models.LedgerConfirmed); err != nil {
		return p, fmt.Errorf("linking ledger id %d: %w", id, err)
	}
	r.logger.Info(ctx, "proposal confirmed", "proposal_id", p.ID, "ledger_id", id, "tx_id", p.TxID)
	cp := *p
	cp.LedgerID = &id
	cp.LedgerStatus = models.LedgerConfirmed
	return &cp, nil
}

func (r *Reconciler) confirmVote(ctx context.Context, v *models.Vote) (models.LedgerStatus, error) {
	p, err := r.mirror.Proposals().Get(ctx, v.ProposalID)
	if err != nil {
		return models.LedgerPending, err
	}
	if p.LedgerID == nil {
		return models.LedgerPending, fmt.Errorf("proposal %s has no ledger id", p.ID)
	}

	st, err := r.chain.TxStatus(ctx, v.TxID)
	if err != nil {
		return models.LedgerPending, err
	}

	if reason := r.check(st, v.Voter, r.voteCall(*p.LedgerID, v), v.CreatedAt); reason != "" {
		if err := r.failVote(ctx, v); err != nil {
			return models.LedgerPending, err
		}
		r.metrics.Divergence("vote")
		r.logger.Error(ctx, "vote transaction rejected",
			"action", "cast_vote", "step", "ledger", "address", v.Voter, "tx_id", v.TxID,
			"status", st.RawStatus, "reason", reason)
		return models.LedgerFailed, nil
	}
	if st.State != ledger.TxSuccess {
		return models.LedgerPending, nil
	}

	if err := r.mirror.Votes().SetLedgerStatus(ctx, v.ID, models.LedgerConfirmed); err != nil {
		return models.LedgerPending, err
	}
	return models.LedgerConfirmed, nil
}

// failVote marks v failed and takes it back out of its proposal's tally.
// The vote record stays, so the voter still cannot vote twice.
func (r *Reconciler) failVote(ctx context.Context, v *models.Vote) error {
	return r.mirror.InTx(ctx, func(ctx context.Context, st mirror.Store) error {
		if err := st.Votes().SetLedgerStatus(ctx, v.ID, models.LedgerFailed); err != nil {
			return err
		}
		locked, err := st.Proposals().GetForUpdate(ctx, v.ProposalID)
		if err != nil {
			return err
		}
		if err := tally.RetractVote(locked, v.OptionIndex); err != nil {
			return err
		}
		return st.Proposals().UpdateTally(ctx, locked.ID, locked.Votes, locked.TotalVotes)
	})
}

// Loop runs a pass every interval until ctx is done.
func (r *Reconciler) Loop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := r.Run(ctx); err != nil && ctx.Err() == nil {
				r.logger.Warn(ctx, "reconcile pass failed", "error", err)
			}
		}
	}
}
