package models

import "time"

type ProposalStatus string

const (
	ProposalActive ProposalStatus = "active"
	ProposalEnded  ProposalStatus = "ended"
)

// LedgerStatus tracks whether the ledger transaction behind a mirror record
// has been confirmed.
type LedgerStatus string

const (
	LedgerPending   LedgerStatus = "pending"
	LedgerConfirmed LedgerStatus = "confirmed"
	LedgerFailed    LedgerStatus = "failed"
)

// Proposal is the mirror copy of a ledger proposal. ID is the mirror's own
// identifier; LedgerID is filled in once the creating transaction confirms.
// Votes has one entry per option and TotalVotes equals their sum.
type Proposal struct {
	ID           string         `json:"id"`
	LedgerID     *uint64        `json:"ledger_id,omitempty"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Creator      string         `json:"creator"`
	StartBlock   uint64         `json:"start_block"`
	EndBlock     uint64         `json:"end_block"`
	Options      []string       `json:"options"`
	Votes        []int64        `json:"votes"`
	TotalVotes   int64          `json:"total_votes"`
	Status       ProposalStatus `json:"status"`
	TxID         string         `json:"tx_id,omitempty"`
	LedgerStatus LedgerStatus   `json:"ledger_status"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Vote is unique per (ProposalID, Voter).
type Vote struct {
	ID           string       `json:"id"`
	ProposalID   string       `json:"proposal_id"`
	Voter        string       `json:"voter"`
	OptionIndex  int          `json:"option_index"`
	TxID         string       `json:"tx_id,omitempty"`
	LedgerStatus LedgerStatus `json:"ledger_status"`
	CreatedAt    time.Time    `json:"created_at"`
}
