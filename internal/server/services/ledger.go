package services

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/poapgate/internal/common"
	"github.com/dmitrijs2005/poapgate/internal/ledger"
	"github.com/dmitrijs2005/poapgate/internal/ledger/clarity"
)

// Contracts is the contract surface used by the services; *ledger.Contracts
// implements it.
type Contracts interface {
	MintPOAP(ctx context.Context, signer ledger.Signer, recipient, eventName string, eventDate uint64, imageURI string) (ledger.Handle, error)
	GetBalance(ctx context.Context, address string) (uint64, error)
	CreateProposal(ctx context.Context, signer ledger.Signer, title, description string, durationBlocks uint64, options []string) (ledger.Handle, error)
	CastVote(ctx context.Context, signer ledger.Signer, proposalID uint64, optionIndex int) (ledger.Handle, error)
	HasVoted(ctx context.Context, proposalID uint64, voter string) (bool, error)
	GetWinningOption(ctx context.Context, proposalID uint64) (int, bool, error)
}

// Chain reads node state; *ledger.Gateway implements it.
type Chain interface {
	TipHeight(ctx context.Context) (uint64, error)
	TxStatus(ctx context.Context, txID string) (ledger.TxStatus, error)
}

// Gate decides whether an address may perform a credential-gated action;
// *eligibility.Oracle implements it.
type Gate interface {
	Require(ctx context.Context, address string) error
}

// outcome names the terminal result of an intent for metrics.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, common.ErrNotEligible):
		return "not_eligible"
	case errors.Is(err, common.ErrDuplicateAction):
		return "duplicate"
	case errors.Is(err, common.ErrTransactionSubmission):
		return "submission_failed"
	case errors.Is(err, common.ErrMirrorWrite):
		return "mirror_failed"
	case errors.Is(err, common.ErrInvalidInput):
		return "invalid"
	case errors.Is(err, common.ErrProposalPending):
		return "pending"
	case errors.Is(err, common.ErrorNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// createdProposalID extracts the id from a create-proposal result (ok uN).
func createdProposalID(result clarity.Value) (uint64, error) {
	if result == nil {
		return 0, errors.New("transaction has no result")
	}
	return clarity.AsUInt(result)
}
